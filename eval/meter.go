// Package eval implements the validation loop of imagenet-eval and its
// supporting pieces: running-average meters, a progress printer and top-k
// accuracy over model logits.
package eval

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// AverageMeter accumulates a running weighted average of a metric.
//
// It is not safe for concurrent use: the validation loop is single-threaded.
type AverageMeter struct {
	// Name of the metric, used as a prefix when printing.
	Name string
	// Verb is the fmt verb used to render values, e.g. "%6.2f". Defaults to "%f".
	Verb string

	// Val is the last observed value, Avg the running weighted average.
	Val, Avg float64
	// Sum is the weighted sum of observations, Count the sum of weights.
	Sum, Count float64
}

// NewAverageMeter creates a meter with the given name and fmt verb for printing.
func NewAverageMeter(name, verb string) *AverageMeter {
	if verb == "" {
		verb = "%f"
	}
	return &AverageMeter{Name: name, Verb: verb}
}

// Update folds a new observation with weight n into the running average.
// Typically n is the number of examples the value was computed over.
func (m *AverageMeter) Update(val float64, n int) {
	m.Val = val
	m.Sum += val * float64(n)
	m.Count += float64(n)
	m.Avg = m.Sum / m.Count
}

// Err returns the error rate corresponding to the average, as 100 - Avg.
// It only makes sense for meters measuring accuracy percentages.
func (m *AverageMeter) Err() float64 {
	return 100 - m.Avg
}

// String renders "<name> <current> (<average>)" using the configured verb.
func (m *AverageMeter) String() string {
	return fmt.Sprintf("%s "+m.Verb+" ("+m.Verb+")", m.Name, m.Val, m.Avg)
}

// ProgressMeter prints a one-line snapshot of a list of meters, prefixed with
// a batch counter zero-padded to the digit width of the total batch count.
type ProgressMeter struct {
	numBatches int
	meters     []*AverageMeter
	prefix     string

	// out defaults to os.Stdout.
	out io.Writer
}

// NewProgressMeter creates a progress printer for numBatches batches over the
// given meters. The prefix, if any, is printed before the batch counter.
func NewProgressMeter(numBatches int, meters []*AverageMeter, prefix string) *ProgressMeter {
	return &ProgressMeter{
		numBatches: numBatches,
		meters:     meters,
		prefix:     prefix,
		out:        os.Stdout,
	}
}

// Display prints the current state of all meters for the given batch index.
func (p *ProgressMeter) Display(batch int) {
	entries := make([]string, 0, len(p.meters)+1)
	entries = append(entries, p.prefix+p.batchString(batch))
	for _, m := range p.meters {
		entries = append(entries, m.String())
	}
	fmt.Fprintf(p.out, "%s %s\n",
		time.Now().Format("2006-01-02 15:04:05.000000"),
		strings.Join(entries, "\t"))
}

// batchString renders "[005/100]": the index zero-padded to the width of the
// total batch count.
func (p *ProgressMeter) batchString(batch int) string {
	width := len(strconv.Itoa(p.numBatches))
	return fmt.Sprintf("[%0*d/%d]", width, batch, p.numBatches)
}
