package eval

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/types/tensors"
)

// TopKAccuracy computes the top-k accuracy of a batch of logits for each of
// the requested values of k, as a percentage in [0, 100].
//
// logits must be a Float32 tensor shaped [batchSize, numClasses] and labels
// must hold batchSize true class indices. An example counts as correct for k
// if its true class is among the k highest-scored classes; ties are resolved
// by first occurrence, matching a stable descending sort of the scores.
//
// As in GoMLX graph functions, it panics in case of shape mismatches.
func TopKAccuracy(logits *tensors.Tensor, labels []int32, ks ...int) []float64 {
	shape := logits.Shape()
	if shape.Rank() != 2 {
		exceptions.Panicf("eval.TopKAccuracy: logits must be rank-2 [batch, classes], got %s", shape)
	}
	batchSize, numClasses := shape.Dim(0), shape.Dim(1)
	if batchSize == 0 {
		exceptions.Panicf("eval.TopKAccuracy: empty batch of logits, accuracy is undefined")
	}
	if batchSize != len(labels) {
		exceptions.Panicf("eval.TopKAccuracy: logits batch size %d != %d labels", batchSize, len(labels))
	}

	correct := make([]int, len(ks))
	tensors.ConstFlatData[float32](logits, func(flat []float32) {
		for exampleIdx := range batchSize {
			scores := flat[exampleIdx*numClasses : (exampleIdx+1)*numClasses]
			label := labels[exampleIdx]
			if label < 0 || int(label) >= numClasses {
				exceptions.Panicf("eval.TopKAccuracy: label %d of example %d out of range [0, %d)",
					label, exampleIdx, numClasses)
			}
			rank := scoreRank(scores, int(label))
			for kIdx, k := range ks {
				if rank < k {
					correct[kIdx]++
				}
			}
		}
	})

	accuracies := make([]float64, len(ks))
	for kIdx := range ks {
		accuracies[kIdx] = 100 * float64(correct[kIdx]) / float64(batchSize)
	}
	return accuracies
}

// scoreRank returns the position the given class takes in a stable descending
// sort of scores: the number of classes scored strictly higher, plus the
// equally-scored classes that come before it.
func scoreRank(scores []float32, label int) int {
	target := scores[label]
	rank := 0
	for classIdx, score := range scores {
		if score > target {
			rank++
		} else if score == target && classIdx < label {
			rank++
		}
	}
	return rank
}
