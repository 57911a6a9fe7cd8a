// Package benchmarks races the GoMLX/XLA execution of the zoo models against
// ONNX Runtime, over the batch sizes the validation loop typically uses.
//
// The benchmarks are disabled unless -bench_duration is set, e.g.:
//
//	go test ./internal/benchmarks -bench_duration=10s
//
// The ONNX Runtime side additionally needs ORT_SO_PATH pointing at the
// onnxruntime dynamic library; a path containing "gpu" enables the CUDA
// provider.
package benchmarks

import (
	"flag"
	"os"
	"strings"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/janpfeifer/must"
	ort "github.com/yalue/onnxruntime_go"

	_ "github.com/gomlx/gomlx/backends/default"
)

var (
	flagBenchDuration = flag.Duration("bench_duration", 0,
		"Benchmark duration, typically use 10 seconds. If left as 0, benchmark tests are disabled")
	flagPrintXLAGraph = flag.Bool("xla_graph", false, "Prints XLA graph")

	// BatchSizes benchmarked per engine.
	BatchSizes = []int{1, 16, 32, 64}
)

// ortInitFn will execute only once.
var (
	ortInitFn = sync.OnceFunc(func() {
		ortPath := os.Getenv("ORT_SO_PATH")
		if ortPath == "" {
			exceptions.Panicf("Please set environment ORT_SO_PATH with the path to your ONNX Runtime dynamic linked library")
		}
		if strings.Contains(ortPath, "gpu") {
			ortIsCUDA = true
		}
		ort.SetSharedLibraryPath(ortPath)
		must.M(ort.InitializeEnvironment())
		// Since we may run this function multiple times, we never destroy the environment.
	})
	ortIsCUDA bool
)
