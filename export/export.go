// Package export writes a trained classifier to a deployable ONNX graph with
// a fixed input/output naming convention.
//
// The tracing contract mirrors what deployment tooling expects of a wrapped
// model: it must convert a raw batch into the tensor the model consumes,
// convert model results into the exported output format, run inference, and
// declare the graph's input and output names.
package export

import (
	"os"

	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/imagenet-eval/imagefolder"
	"github.com/gomlx/onnx-gomlx/onnx"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
	"k8s.io/klog/v2"
)

// MetaModel is the adapter contract required to trace and export a model.
type MetaModel interface {
	// ConvertInputs extracts from a raw batch the tensor the model consumes.
	ConvertInputs(batch imagefolder.Batch) *tensors.Tensor
	// ConvertOutputs converts raw model results into the exported output
	// format.
	ConvertOutputs(batch imagefolder.Batch, inputs, results *tensors.Tensor) *tensors.Tensor
	// Inference runs the wrapped model on converted inputs.
	Inference(inputs *tensors.Tensor) (*tensors.Tensor, error)
	// InputNames declares the graph input names of the exported model.
	InputNames() []string
	// OutputNames declares the graph output names of the exported model.
	OutputNames() []string
}

// Export traces one sample batch through meta to validate the adapter
// contract, renames the ONNX graph's inputs and outputs to the adapter's
// names, and writes the resulting graph to onnxPath.
//
// The model proto in onnxModel is modified in place.
func Export(meta MetaModel, onnxModel *onnx.Model, sample imagefolder.Batch, onnxPath string) error {
	// Trace: one forward pass through the adapter proves the conversions and
	// the model agree on shapes before anything is written.
	inputs := meta.ConvertInputs(sample)
	results, err := meta.Inference(inputs)
	if err != nil {
		return errors.WithMessage(err, "tracing sample batch")
	}
	outputs := meta.ConvertOutputs(sample, inputs, results)
	klog.V(1).Infof("export: traced batch %s -> %s", inputs.Shape(), outputs.Shape())

	if err = RenameGraphIO(onnxModel, meta.InputNames(), meta.OutputNames()); err != nil {
		return err
	}
	contents, err := proto.Marshal(&onnxModel.Proto)
	if err != nil {
		return errors.Wrap(err, "failed to serialize ONNX model")
	}
	if err = os.WriteFile(onnxPath, contents, 0644); err != nil {
		return errors.Wrapf(err, "failed to write ONNX model to %s", onnxPath)
	}
	klog.V(1).Infof("export: wrote %d bytes to %s", len(contents), onnxPath)
	return nil
}

// RenameGraphIO renames the model graph's inputs and outputs, positionally,
// to the given names, updating every node edge that references them.
func RenameGraphIO(onnxModel *onnx.Model, inputNames, outputNames []string) error {
	g := onnxModel.Proto.Graph
	if len(g.Input) != len(inputNames) {
		return errors.Errorf("model has %d inputs, %d input names given", len(g.Input), len(inputNames))
	}
	if len(g.Output) != len(outputNames) {
		return errors.Errorf("model has %d outputs, %d output names given", len(g.Output), len(outputNames))
	}

	renames := make(map[string]string, len(inputNames)+len(outputNames))
	for i, valueInfo := range g.Input {
		renames[valueInfo.Name] = inputNames[i]
		valueInfo.Name = inputNames[i]
	}
	for i, valueInfo := range g.Output {
		renames[valueInfo.Name] = outputNames[i]
		valueInfo.Name = outputNames[i]
	}
	for _, node := range g.Node {
		for i, name := range node.Input {
			if newName, found := renames[name]; found {
				node.Input[i] = newName
			}
		}
		for i, name := range node.Output {
			if newName, found := renames[name]; found {
				node.Output[i] = newName
			}
		}
	}

	// Keep the parsed model's view of its own names consistent.
	copy(onnxModel.InputsNames, inputNames)
	copy(onnxModel.OutputsNames, outputNames)
	return nil
}
