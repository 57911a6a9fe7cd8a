package eval

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/chewxy/math32"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/imagenet-eval/imagefolder"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Predictor computes class logits for a batch of images.
//
// Images are Float32 shaped [batch, 3, height, width], the returned logits
// [batch, numClasses].
type Predictor interface {
	Predict(images *tensors.Tensor) (*tensors.Tensor, error)
}

// BatchSource is a finite, restartable sequence of batches.
// It is implemented by imagefolder.Loader.
type BatchSource interface {
	// NumBatches in one full pass.
	NumBatches() int
	// Batches starts a fresh pass. The channel is closed when the pass ends;
	// check Err afterwards.
	Batches(ctx context.Context) <-chan imagefolder.Batch
	// Err returns the error that interrupted the last pass, if any.
	Err() error
}

// Options configures Validate.
type Options struct {
	// PrintFreq is the progress-line period in batches. Defaults to 20.
	PrintFreq int
	// Out receives progress and summary lines. Defaults to os.Stdout.
	Out io.Writer
}

// Result holds the final metrics of one validation pass.
type Result struct {
	Top1, Top5 *AverageMeter
	BatchTime  *AverageMeter
	// Samples is the total number of examples evaluated.
	Samples int
}

// Validate runs one full pass over the batch source, measuring top-1 and
// top-5 accuracy of the predictor. Every Options.PrintFreq batches it prints
// a progress line, and at the end a final accuracy and error summary.
//
// There is no recovery: the first loader or predictor failure aborts the pass.
func Validate(ctx context.Context, src BatchSource, predictor Predictor, opts Options) (Result, error) {
	if opts.PrintFreq <= 0 {
		opts.PrintFreq = 20
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	batchTime := NewAverageMeter("Time", "%6.3f")
	top1 := NewAverageMeter("Acc@1", "%6.2f")
	top5 := NewAverageMeter("Acc@5", "%6.2f")
	progress := NewProgressMeter(src.NumBatches(), []*AverageMeter{batchTime, top1, top5}, "")
	progress.out = opts.Out
	result := Result{Top1: top1, Top5: top5, BatchTime: batchTime}

	batchIdx := 0
	end := time.Now()
	for batch := range src.Batches(ctx) {
		logits, err := predictor.Predict(batch.Images)
		if err != nil {
			return result, errors.WithMessagef(err, "predicting batch %d", batchIdx)
		}
		if err = checkFinite(logits); err != nil {
			return result, errors.WithMessagef(err, "batch %d", batchIdx)
		}

		n := len(batch.Labels)
		accuracies := TopKAccuracy(logits, batch.Labels, 1, 5)
		logits.FinalizeAll()
		top1.Update(accuracies[0], n)
		top5.Update(accuracies[1], n)
		result.Samples += n
		batchTime.Update(time.Since(end).Seconds(), 1)
		end = time.Now()

		if batchIdx%opts.PrintFreq == 0 {
			progress.Display(batchIdx)
		}
		batchIdx++
	}
	if err := src.Err(); err != nil {
		return result, errors.WithMessage(err, "loading validation batches")
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}
	klog.V(1).Infof("validation pass done: %d batches, %d examples", batchIdx, result.Samples)

	fmt.Fprintf(opts.Out, " * Acc@1 %.3f Acc@5 %.3f\n", top1.Avg, top5.Avg)
	fmt.Fprintf(opts.Out, " * Err@1 %.3f Err@5 %.3f\n", top1.Err(), top5.Err())
	return result, nil
}

// checkFinite fails if the model produced any NaN logit, which would silently
// poison the accuracy averages.
func checkFinite(logits *tensors.Tensor) (err error) {
	tensors.ConstFlatData[float32](logits, func(flat []float32) {
		for _, v := range flat {
			if math32.IsNaN(v) {
				err = errors.New("model produced NaN logits")
				return
			}
		}
	})
	return
}
