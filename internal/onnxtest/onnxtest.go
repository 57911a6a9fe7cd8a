// Package onnxtest builds minimal ONNX models for tests, hand-encoding the
// protobuf wire format so no binary fixture files need to be checked in.
//
// Field numbers follow onnx/onnx.proto (ModelProto.graph=7, GraphProto.node=1
// /input=11/output=12, NodeProto.input=1/output=2/name=3/op_type=4,
// ValueInfoProto.name=1/type=2).
package onnxtest

import (
	"testing"

	"github.com/gomlx/onnx-gomlx/onnx"
	"github.com/stretchr/testify/require"
)

const (
	wireVarint = 0
	wireBytes  = 2

	// TensorProto.DataType value for Float32.
	elemTypeFloat = 1
)

func appendVarint(buf []byte, v uint64) []byte {
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}
	return append(buf, byte(v))
}

func appendTag(buf []byte, field, wireType int) []byte {
	return appendVarint(buf, uint64(field)<<3|uint64(wireType))
}

func appendVarintField(buf []byte, field int, v uint64) []byte {
	buf = appendTag(buf, field, wireVarint)
	return appendVarint(buf, v)
}

func appendBytesField(buf []byte, field int, contents []byte) []byte {
	buf = appendTag(buf, field, wireBytes)
	buf = appendVarint(buf, uint64(len(contents)))
	return append(buf, contents...)
}

func appendStringField(buf []byte, field int, s string) []byte {
	return appendBytesField(buf, field, []byte(s))
}

// valueInfo encodes a ValueInfoProto for a Float32 tensor with static dims.
func valueInfo(name string, dims ...int) []byte {
	var shape []byte
	for _, dim := range dims {
		var dimension []byte
		dimension = appendVarintField(dimension, 1, uint64(dim)) // dim_value
		shape = appendBytesField(shape, 1, dimension)            // TensorShapeProto.dim
	}
	var tensorType []byte
	tensorType = appendVarintField(tensorType, 1, elemTypeFloat) // elem_type
	tensorType = appendBytesField(tensorType, 2, shape)          // shape
	var typeProto []byte
	typeProto = appendBytesField(typeProto, 1, tensorType) // TypeProto.tensor_type

	var buf []byte
	buf = appendStringField(buf, 1, name)      // name
	return appendBytesField(buf, 2, typeProto) // type
}

// node encodes a NodeProto.
func node(opType, name string, inputs, outputs []string) []byte {
	var buf []byte
	for _, input := range inputs {
		buf = appendStringField(buf, 1, input)
	}
	for _, output := range outputs {
		buf = appendStringField(buf, 2, output)
	}
	buf = appendStringField(buf, 3, name)
	return appendStringField(buf, 4, opType)
}

// AddModelBytes returns the serialized ModelProto of a single-op model that
// computes y = x + x over a Float32 tensor shaped dims.
func AddModelBytes(dims ...int) []byte {
	var graph []byte
	graph = appendBytesField(graph, 1, node("Add", "add", []string{"x", "x"}, []string{"y"}))
	graph = appendStringField(graph, 2, "add_graph")
	graph = appendBytesField(graph, 11, valueInfo("x", dims...)) // input
	graph = appendBytesField(graph, 12, valueInfo("y", dims...)) // output

	var opset []byte
	opset = appendVarintField(opset, 2, 17) // version, default domain

	var buf []byte
	buf = appendVarintField(buf, 1, 8) // ir_version
	buf = appendBytesField(buf, 7, graph)
	return appendBytesField(buf, 8, opset)
}

// AddModel parses AddModelBytes into an onnx.Model.
func AddModel(t *testing.T, dims ...int) *onnx.Model {
	t.Helper()
	m, err := onnx.Parse(AddModelBytes(dims...))
	require.NoError(t, err)
	return m
}
