// Package ndimage implements CPU-side numeric primitives over tensors, used
// by the augments package: min/max rescaling, one-hot encoding, border-margin
// checks, centered region copies and the interpolated geometric resampling
// operations (rotation, zoom, displacement-field warps).
//
// All operations take a `*tensors.Tensor` of dtype Float32 or Float64, shaped
// `[height, width]` or `[height, width, channels...]` -- any axes beyond the
// first two are treated as (flattened) channels and transformed alike. Inputs
// are never mutated; every operation returns a fresh tensor.
package ndimage

import (
	. "github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
)

// Interpolation selects how geometric operations sample between pixels.
type Interpolation int

const (
	// Nearest takes the closest source pixel.
	Nearest Interpolation = iota
	// Bilinear interpolates linearly between the 4 closest source pixels.
	Bilinear
)

// floatOp transforms flat data and its dimensions. Implementations are
// generic on the element type and instantiated for each supported dtype by
// apply.
type floatOp[T float32 | float64] func(data []T, dims []int) (out []T, outDims []int)

// apply dispatches op to the tensor's dtype and wraps the result back into a
// tensor. It panics on unsupported dtypes.
func apply(t *tensors.Tensor, opName string, op32 floatOp[float32], op64 floatOp[float64]) *tensors.Tensor {
	dims := t.Shape().Dimensions
	var result *tensors.Tensor
	switch t.Shape().DType {
	case dtypes.Float32:
		t.MustConstFlatData(func(flat any) {
			out, outDims := op32(flat.([]float32), dims)
			result = tensors.FromFlatDataAndDimensions(out, outDims...)
		})
	case dtypes.Float64:
		t.MustConstFlatData(func(flat any) {
			out, outDims := op64(flat.([]float64), dims)
			result = tensors.FromFlatDataAndDimensions(out, outDims...)
		})
	default:
		Panicf("ndimage.%s: unsupported dtype %s, only Float32 and Float64 are supported", opName, t.Shape().DType)
	}
	return result
}

// spatialDims returns height, width and the flattened channel count of dims.
// It panics if dims has rank < 2.
func spatialDims(opName string, dims []int) (height, width, channels int) {
	if len(dims) < 2 {
		Panicf("ndimage.%s: arrays must have rank >= 2 ([height, width, channels...]), got rank %d", opName, len(dims))
	}
	height, width = dims[0], dims[1]
	channels = 1
	for _, dim := range dims[2:] {
		channels *= dim
	}
	return
}

// withSpatial returns outDims with the first two axes of dims replaced, and
// any channel axes preserved.
func withSpatial(dims []int, height, width int) []int {
	outDims := make([]int, len(dims))
	copy(outDims, dims)
	outDims[0], outDims[1] = height, width
	return outDims
}
