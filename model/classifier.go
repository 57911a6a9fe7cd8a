// Package model wraps an ONNX classification model into a GoMLX executable
// that predicts class logits for batches of images.
package model

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/onnx-gomlx/onnx"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Classifier executes an ONNX image-classification model through GoMLX.
//
// The ONNX initializers are uploaded once into a context, and a context.Exec
// (re-)compiles the graph per input shape, so a short final batch only costs
// one extra compilation.
type Classifier struct {
	backend backends.Backend
	ctx     *context.Context
	model   *onnx.Model
	exec    *context.Exec
}

// New creates a Classifier for the given ONNX model on the given backend.
func New(backend backends.Backend, onnxModel *onnx.Model) (*Classifier, error) {
	if len(onnxModel.InputsNames) != 1 || len(onnxModel.OutputsNames) != 1 {
		return nil, errors.Errorf("classification model must have exactly one input and one output, got inputs=%v outputs=%v",
			onnxModel.InputsNames, onnxModel.OutputsNames)
	}
	c := &Classifier{
		backend: backend,
		ctx:     context.New(),
		model:   onnxModel,
	}
	if err := onnxModel.VariablesToContext(c.ctx); err != nil {
		return nil, errors.WithMessage(err, "uploading ONNX variables to context")
	}
	c.ctx = c.ctx.Reuse()
	err := exceptions.TryCatch[error](func() {
		c.exec = context.NewExec(backend, c.ctx, func(ctx *context.Context, images *Node) *Node {
			g := images.Graph()
			outputs := onnxModel.CallGraph(ctx, g, map[string]*Node{c.InputName(): images})
			return outputs[0]
		})
	})
	if err != nil {
		return nil, errors.WithMessage(err, "building model executor")
	}
	klog.V(1).Infof("model: classifier ready, input %q, output %q", c.InputName(), c.OutputName())
	return c, nil
}

// Predict computes class logits for a batch of images shaped
// [batch, channels, height, width]. The returned tensor is [batch, classes].
func (c *Classifier) Predict(images *tensors.Tensor) (logits *tensors.Tensor, err error) {
	err = exceptions.TryCatch[error](func() {
		logits = c.exec.Call(images)[0]
	})
	if err != nil {
		return nil, errors.WithMessage(err, "model inference")
	}
	return logits, nil
}

// Model returns the wrapped ONNX model.
func (c *Classifier) Model() *onnx.Model { return c.model }

// InputName returns the ONNX graph input name the model expects.
func (c *Classifier) InputName() string { return c.model.InputsNames[0] }

// OutputName returns the ONNX graph output name.
func (c *Classifier) OutputName() string { return c.model.OutputsNames[0] }

// Finalize releases the compiled executables. The Classifier must not be used
// afterwards.
func (c *Classifier) Finalize() {
	if c.exec != nil {
		c.exec.Finalize()
	}
}
