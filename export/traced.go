package export

import (
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/imagenet-eval/imagefolder"
	"github.com/gomlx/imagenet-eval/model"
)

// Exported graph naming convention for classifiers.
var (
	classifierInputNames  = []string{"images"}
	classifierOutputNames = []string{"prob"}
)

// TracedClassifier adapts a model.Classifier to the MetaModel tracing
// contract. It holds no state beyond the wrapped classifier.
type TracedClassifier struct {
	classifier *model.Classifier
}

// NewTracedClassifier wraps a classifier for export.
func NewTracedClassifier(classifier *model.Classifier) *TracedClassifier {
	return &TracedClassifier{classifier: classifier}
}

// ConvertInputs drops the labels: the model consumes only the image tensor.
func (t *TracedClassifier) ConvertInputs(batch imagefolder.Batch) *tensors.Tensor {
	return batch.Images
}

// ConvertOutputs is the identity: classifier logits need no postprocessing.
func (t *TracedClassifier) ConvertOutputs(_ imagefolder.Batch, _, results *tensors.Tensor) *tensors.Tensor {
	return results
}

// Inference runs the wrapped classifier.
func (t *TracedClassifier) Inference(inputs *tensors.Tensor) (*tensors.Tensor, error) {
	return t.classifier.Predict(inputs)
}

// InputNames declares the exported input names.
func (t *TracedClassifier) InputNames() []string { return classifierInputNames }

// OutputNames declares the exported output names.
func (t *TracedClassifier) OutputNames() []string { return classifierOutputNames }
