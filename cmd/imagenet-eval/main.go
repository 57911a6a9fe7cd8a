// imagenet-eval benchmarks a pretrained image-classification model over an
// ImageNet-style validation set, or exports it to a deployable ONNX graph.
//
// Usage:
//
//	imagenet-eval [flags] <dataset>
//
// <dataset> is a class-per-subdirectory image tree or a .parquet shard.
// With -format=gomlx (the default) it runs a full validation pass through
// GoMLX/XLA and prints top-1/top-5 accuracy. With -format=onnx it writes
// model.onnx under -output with the canonical "images"/"prob" graph names.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/imagenet-eval/eval"
	"github.com/gomlx/imagenet-eval/export"
	"github.com/gomlx/imagenet-eval/imagefolder"
	"github.com/gomlx/imagenet-eval/model"
	"github.com/gomlx/imagenet-eval/zoo"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	_ "github.com/gomlx/gomlx/backends/default"
)

var (
	flagWorkers   = flag.Int("workers", 2, "Number of data loading workers.")
	flagBatchSize = flag.Int("batch", 32, "Mini-batch size.")
	flagOutput    = flag.String("output", "./output", "Output directory for the converted model.")
	flagFormat    = flag.String("format", "gomlx", "Output format, one of \"gomlx\", \"onnx\" or \"tensorrt\".")
	flagModel     = flag.String("model", "resnet18", fmt.Sprintf("Pretrained model to use, one of %v.", zoo.Names()))
	flagPrintFreq = flag.Int("print_freq", 20, "Progress printing period, in batches.")
)

var formats = []string{"gomlx", "onnx", "tensorrt"}

func main() {
	klog.InitFlags(nil)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <dataset dir or .parquet file>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	err := exceptions.TryCatch[error](func() {
		must.M(run(flag.Arg(0)))
	})
	if err != nil {
		klog.Fatalf("Failed: %+v", err)
	}
}

func run(dataPath string) error {
	if !slices.Contains(formats, *flagFormat) {
		return errors.Errorf("invalid -format %q, must be one of %v", *flagFormat, formats)
	}
	if err := os.MkdirAll(*flagOutput, 0755); err != nil {
		return errors.Wrapf(err, "failed to create output directory %s", *flagOutput)
	}
	onnxPath := filepath.Join(*flagOutput, "model.onnx")
	// Reserved for the TensorRT path, not populated.
	enginePath := filepath.Join(*flagOutput, "model.trt")
	cachePath := filepath.Join(*flagOutput, "cache.txt")

	dataset, err := imagefolder.Open(dataPath)
	if err != nil {
		return err
	}
	loader := imagefolder.NewLoader(dataset, *flagBatchSize, *flagWorkers)

	if *flagFormat == "tensorrt" {
		return errors.Errorf("format \"tensorrt\" is not implemented (%s and %s are reserved for its engine and calibration cache)",
			enginePath, cachePath)
	}

	onnxModel, localPath, err := zoo.Load(*flagModel)
	if err != nil {
		return err
	}
	klog.V(1).Infof("loaded %s from %s", *flagModel, localPath)
	backend := backends.MustNew()
	classifier, err := model.New(backend, onnxModel)
	if err != nil {
		return err
	}
	defer classifier.Finalize()

	ctx := context.Background()
	if *flagFormat == "onnx" {
		batch, err := loader.FirstBatch(ctx)
		if err != nil {
			return err
		}
		traced := export.NewTracedClassifier(classifier)
		if err = export.Export(traced, classifier.Model(), batch, onnxPath); err != nil {
			return err
		}
		fmt.Printf("Exported %s to %s\n", *flagModel, onnxPath)
		return nil
	}

	_, err = eval.Validate(ctx, loader, classifier, eval.Options{PrintFreq: *flagPrintFreq})
	return err
}
