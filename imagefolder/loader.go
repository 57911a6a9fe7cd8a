package imagefolder

import (
	"context"
	"os"
	"sync"

	"github.com/gomlx/gomlx/types/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Batch is one mini-batch of preprocessed examples. Images is Float32 shaped
// [n, NumChannels, CropSize, CropSize] and Labels holds the n true classes.
type Batch struct {
	Images *tensors.Tensor
	Labels []int32
}

// Loader serves a Dataset as an ordered sequence of batches, decoding and
// transforming images on a pool of worker goroutines.
//
// A Loader is restartable: each call to Batches starts a fresh pass. The
// final batch of a pass may be short (the dataset size is not required to be
// a multiple of the batch size).
type Loader struct {
	ds         *Dataset
	batchSize  int
	numWorkers int

	mu  sync.Mutex
	err error
}

// NewLoader creates a loader over ds. numWorkers decoding goroutines are used
// per pass; values below 1 mean 1.
func NewLoader(ds *Dataset, batchSize, numWorkers int) *Loader {
	batchSize = max(1, batchSize)
	numWorkers = max(1, numWorkers)
	return &Loader{ds: ds, batchSize: batchSize, numWorkers: numWorkers}
}

// BatchSize returns the configured batch size.
func (l *Loader) BatchSize() int { return l.batchSize }

// NumBatches returns the number of batches in one full pass, including a
// final short batch if the dataset size is not a multiple of the batch size.
func (l *Loader) NumBatches() int {
	return (l.ds.NumSamples() + l.batchSize - 1) / l.batchSize
}

// Err returns the error that interrupted the last pass, or nil. It is only
// meaningful after the channel returned by Batches is closed.
func (l *Loader) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *Loader) setErr(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err == nil {
		l.err = err
	}
}

// indexedBatch carries the batch position so out-of-order worker completions
// can be re-sequenced.
type indexedBatch struct {
	idx   int
	batch Batch
}

// Batches starts one pass over the dataset and returns the channel on which
// batches are delivered, in dataset order. The channel is closed when the
// pass finishes, fails, or ctx is canceled; check Err afterwards.
func (l *Loader) Batches(ctx context.Context) <-chan Batch {
	l.mu.Lock()
	l.err = nil
	l.mu.Unlock()

	numBatches := l.NumBatches()
	ctx, cancel := context.WithCancel(ctx)
	jobs := make(chan int, numBatches)
	for batchIdx := range numBatches {
		jobs <- batchIdx
	}
	close(jobs)

	results := make(chan indexedBatch, l.numWorkers)
	var wg sync.WaitGroup
	for range l.numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batchIdx := range jobs {
				batch, err := l.buildBatch(batchIdx)
				if err != nil {
					l.setErr(err)
					cancel()
					return
				}
				select {
				case results <- indexedBatch{idx: batchIdx, batch: batch}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	// Workers finish out of order; re-sequence before delivering.
	out := make(chan Batch, 1)
	go func() {
		defer cancel()
		defer close(out)
		next := 0
		pending := make(map[int]Batch, l.numWorkers)
		for ib := range results {
			pending[ib.idx] = ib.batch
			for {
				batch, ready := pending[next]
				if !ready {
					break
				}
				delete(pending, next)
				select {
				case out <- batch:
					next++
				case <-ctx.Done():
					l.setErr(ctx.Err())
					return
				}
			}
		}
		if err := ctx.Err(); err != nil && l.Err() == nil {
			l.setErr(err)
		}
		klog.V(2).Infof("imagefolder: pass delivered %d of %d batches", next, numBatches)
	}()
	return out
}

// buildBatch decodes and assembles the batchIdx-th batch.
func (l *Loader) buildBatch(batchIdx int) (Batch, error) {
	start := batchIdx * l.batchSize
	end := min(start+l.batchSize, l.ds.NumSamples())
	n := end - start

	plane := NumChannels * CropSize * CropSize
	flat := make([]float32, n*plane)
	labels := make([]int32, n)
	for i, s := range l.ds.samples[start:end] {
		encoded := s.Raw
		if encoded == nil {
			var err error
			encoded, err = os.ReadFile(s.Path)
			if err != nil {
				return Batch{}, errors.Wrapf(err, "failed to read image %s", s.Path)
			}
		}
		chw, err := transform(encoded)
		if err != nil {
			return Batch{}, errors.WithMessagef(err, "sample %d (%s)", start+i, s.Path)
		}
		copy(flat[i*plane:], chw)
		labels[i] = s.Label
	}
	images := tensors.FromFlatDataAndDimensions(flat, n, NumChannels, CropSize, CropSize)
	return Batch{Images: images, Labels: labels}, nil
}

// FirstBatch materializes only the first batch of a pass. It is used to trace
// a sample batch through the model for export.
func (l *Loader) FirstBatch(ctx context.Context) (Batch, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	batch, ok := <-l.Batches(ctx)
	if !ok {
		if err := l.Err(); err != nil {
			return Batch{}, err
		}
		return Batch{}, errors.New("dataset produced no batches")
	}
	return batch, nil
}
