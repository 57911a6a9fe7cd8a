package benchmarks

import (
	"fmt"
	"math/rand/v2"
	"runtime"
	"testing"

	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/graph/graphtest"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/types/shapes"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/imagenet-eval/imagefolder"
	"github.com/gomlx/imagenet-eval/zoo"
	"github.com/gomlx/onnx-gomlx/onnx"
	benchmarks "github.com/janpfeifer/go-benchmarks"
	"github.com/janpfeifer/must"
	ort "github.com/yalue/onnxruntime_go"
)

// numClasses of the ImageNet-1k models served by the zoo.
const numClasses = 1000

func TestBenchResNet18(t *testing.T) {
	if testing.Short() {
		fmt.Printf("Skipping ResNet-18 benchmark test: --short is set\n")
		t.SkipNow()
	}
	if *flagBenchDuration == 0 {
		fmt.Printf("Skipping ResNet-18 benchmark test: --bench_duration is not set\n")
		t.SkipNow()
	}
	t.Run("ONNX-GoMLX", func(t *testing.T) { benchGoMLX(t, "resnet18") })
	t.Run("ONNX-ORT", func(t *testing.T) { benchORT(t, "resnet18") })
}

// randomImages fills a [batchSize, 3, 224, 224] tensor with uniform noise.
func randomImages(batchSize int) *tensors.Tensor {
	r := rand.New(rand.NewPCG(42, 0))
	images := tensors.FromShape(shapes.Make(dtypes.Float32,
		batchSize, imagefolder.NumChannels, imagefolder.CropSize, imagefolder.CropSize))
	tensors.MutableFlatData[float32](images, func(flat []float32) {
		for i := range flat {
			flat[i] = r.Float32()
		}
	})
	return images
}

func benchGoMLX(t *testing.T, modelName string) {
	onnxModel, onnxModelPath := must.M2(zoo.Load(modelName))
	fmt.Printf("Model %s: %s\n", modelName, onnxModelPath)

	backend := graphtest.BuildTestBackend()
	ctx := context.New()
	must.M(onnxModel.VariablesToContext(ctx))
	ctx = ctx.Reuse()
	inputName := onnxModel.InputsNames[0]

	for batchIdx, batchSize := range BatchSizes {
		exec := context.NewExec(backend, ctx, func(ctx *context.Context, images *Node) *Node {
			g := images.Graph()
			outputs := onnxModel.CallGraph(ctx, g, map[string]*Node{inputName: images})
			if *flagPrintXLAGraph {
				fmt.Printf("Graph:\n%s\n", g)
			}
			return outputs[0]
		})

		inputImages := randomImages(batchSize)
		benchFn := benchmarks.NamedFunction{
			Name: fmt.Sprintf("%s/batchSize=%02d", t.Name(), batchSize),
			Func: func() {
				output := exec.Call(inputImages)[0]
				// Force transfer to local memory: this should be part of the cost.
				tensors.ConstFlatData(output, func(flat []float32) {
					_ = flat[0]
				})
				output.FinalizeAll()
			},
		}

		runtime.LockOSThread()
		benchmarks.New(benchFn).
			WithWarmUps(16).
			WithDuration(*flagBenchDuration).
			WithHeader(batchIdx == 0).
			Done()
		runtime.UnlockOSThread()
		exec.Finalize()
	}
}

func benchORT(t *testing.T, modelName string) {
	onnxModelPath := must.M1(zoo.Fetch(modelName))
	// The graph input/output names come from the parsed model, so the same
	// registry entry works for both engines.
	onnxModel := must.M1(onnx.ReadFile(onnxModelPath))
	inputName := onnxModel.InputsNames[0]
	outputName := onnxModel.OutputsNames[0]

	ortInitFn()
	var options *ort.SessionOptions
	if ortIsCUDA {
		options = must.M1(ort.NewSessionOptions())
		cudaOptions := must.M1(ort.NewCUDAProviderOptions())
		must.M(options.AppendExecutionProviderCUDA(cudaOptions))
	}
	session := must.M1(ort.NewDynamicAdvancedSession(
		onnxModelPath,
		[]string{inputName}, []string{outputName},
		options))
	defer func() {
		if err := session.Destroy(); err != nil {
			fmt.Printf("Error destroying session: %v\n", err)
		}
	}()

	for batchIdx, batchSize := range BatchSizes {
		inputShape := ort.NewShape(int64(batchSize), imagefolder.NumChannels,
			imagefolder.CropSize, imagefolder.CropSize)
		images := must.M1(ort.NewEmptyTensor[float32](inputShape))
		r := rand.New(rand.NewPCG(42, 0))
		{
			flat := images.GetData()
			for i := range flat {
				flat[i] = r.Float32()
			}
		}
		outputShape := ort.NewShape(int64(batchSize), numClasses)
		outputTensor := must.M1(ort.NewEmptyTensor[float32](outputShape))

		benchFn := benchmarks.NamedFunction{
			Name: fmt.Sprintf("%s/batchSize=%02d", t.Name(), batchSize),
			Func: func() {
				must.M(session.Run(
					[]ort.Value{images},
					[]ort.Value{outputTensor},
				))
				{
					// Force transfer to local memory: this should be part of the cost.
					flat := outputTensor.GetData()
					_ = flat[0]
				}
			},
		}
		runtime.LockOSThread()
		benchmarks.New(benchFn).
			WithWarmUps(16).
			WithDuration(*flagBenchDuration).
			WithHeader(batchIdx == 0).
			Done()
		runtime.UnlockOSThread()
	}
}
