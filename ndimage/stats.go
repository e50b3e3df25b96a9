package ndimage

import (
	"math"

	. "github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
)

// Rescale returns t with its values linearly rescaled to the range [0, 1].
// A constant-valued input rescales to all zeros.
func Rescale(t *tensors.Tensor) *tensors.Tensor {
	return RescaleTo(t, 0, 1)
}

// RescaleTo returns t with its values linearly rescaled to [minValue, maxValue].
func RescaleTo(t *tensors.Tensor, minValue, maxValue float64) *tensors.Tensor {
	return apply(t, "RescaleTo",
		func(data []float32, dims []int) ([]float32, []int) {
			return rescale(data, dims, float32(minValue), float32(maxValue))
		},
		func(data []float64, dims []int) ([]float64, []int) {
			return rescale(data, dims, minValue, maxValue)
		})
}

func rescale[T float32 | float64](data []T, dims []int, minValue, maxValue T) ([]T, []int) {
	lowest, highest := data[0], data[0]
	for _, v := range data[1:] {
		lowest = min(lowest, v)
		highest = max(highest, v)
	}
	out := make([]T, len(data))
	if highest > lowest {
		scale := (maxValue - minValue) / (highest - lowest)
		for ii, v := range data {
			out[ii] = (v-lowest)*scale + minValue
		}
	}
	return out, dims
}

// OneHot expands an integer-valued label map into a trailing one-hot class
// axis: the output is shaped `dims + [numClasses]`, with a 1 at the class
// index (taken modulo numClasses, like the original label maps that include
// the background class) and 0 elsewhere.
func OneHot(t *tensors.Tensor, numClasses int) *tensors.Tensor {
	if numClasses < 1 {
		Panicf("ndimage.OneHot: numClasses must be >= 1, got %d", numClasses)
	}
	return apply(t, "OneHot",
		func(data []float32, dims []int) ([]float32, []int) { return oneHot(data, dims, numClasses) },
		func(data []float64, dims []int) ([]float64, []int) { return oneHot(data, dims, numClasses) })
}

func oneHot[T float32 | float64](data []T, dims []int, numClasses int) ([]T, []int) {
	out := make([]T, len(data)*numClasses)
	for ii, v := range data {
		class := ((int(v) % numClasses) + numClasses) % numClasses
		out[ii*numClasses+class] = 1
	}
	outDims := make([]int, len(dims)+1)
	copy(outDims, dims)
	outDims[len(dims)] = numClasses
	return out, outDims
}

// ArgMaxAxis collapses the trailing axis of t to the index of its largest
// value, the inverse of OneHot. Ties resolve to the lowest index.
func ArgMaxAxis(t *tensors.Tensor) *tensors.Tensor {
	if t.Shape().Rank() < 2 {
		Panicf("ndimage.ArgMaxAxis: requires rank >= 2, got shape %s", t.Shape())
	}
	return apply(t, "ArgMaxAxis",
		func(data []float32, dims []int) ([]float32, []int) { return argMaxAxis(data, dims) },
		func(data []float64, dims []int) ([]float64, []int) { return argMaxAxis(data, dims) })
}

func argMaxAxis[T float32 | float64](data []T, dims []int) ([]T, []int) {
	classes := dims[len(dims)-1]
	out := make([]T, len(data)/classes)
	for ii := range out {
		best := 0
		for class := 1; class < classes; class++ {
			if data[ii*classes+class] > data[ii*classes+best] {
				best = class
			}
		}
		out[ii] = T(best)
	}
	return out, dims[:len(dims)-1]
}

// ZeroMargins reports whether every border band of width margin is entirely
// zero, i.e. whether the foreground of a segmentation mask keeps clear of the
// array edges. Channels are checked alike.
func ZeroMargins(t *tensors.Tensor, margin int) bool {
	if margin < 1 {
		Panicf("ndimage.ZeroMargins: margin must be >= 1, got %d", margin)
	}
	dims := t.Shape().Dimensions
	var zero bool
	switch t.Shape().DType {
	case dtypes.Float32:
		t.MustConstFlatData(func(flat any) { zero = zeroMargins(flat.([]float32), dims, margin) })
	case dtypes.Float64:
		t.MustConstFlatData(func(flat any) { zero = zeroMargins(flat.([]float64), dims, margin) })
	default:
		Panicf("ndimage.ZeroMargins: unsupported dtype %s, only Float32 and Float64 are supported", t.Shape().DType)
	}
	return zero
}

func zeroMargins[T float32 | float64](data []T, dims []int, margin int) bool {
	height, width, channels := spatialDims("ZeroMargins", dims)
	if 2*margin >= height || 2*margin >= width {
		return false
	}
	inBorder := func(y, x int) bool {
		return y < margin || y >= height-margin || x < margin || x >= width-margin
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if !inBorder(y, x) {
				continue
			}
			base := (y*width + x) * channels
			for c := 0; c < channels; c++ {
				if data[base+c] != 0 {
					return false
				}
			}
		}
	}
	return true
}

// IsZero reports whether every element of t is zero.
func IsZero(t *tensors.Tensor) bool {
	return MaxAbs(t) == 0
}

// MaxValue returns the largest value in t.
func MaxValue(t *tensors.Tensor) float64 {
	maxValue := math.Inf(-1)
	switch t.Shape().DType {
	case dtypes.Float32:
		t.MustConstFlatData(func(flat any) {
			for _, v := range flat.([]float32) {
				maxValue = math.Max(maxValue, float64(v))
			}
		})
	case dtypes.Float64:
		t.MustConstFlatData(func(flat any) {
			for _, v := range flat.([]float64) {
				maxValue = math.Max(maxValue, v)
			}
		})
	default:
		Panicf("ndimage.MaxValue: unsupported dtype %s, only Float32 and Float64 are supported", t.Shape().DType)
	}
	return maxValue
}

// MaxAbs returns the largest absolute value in t.
func MaxAbs(t *tensors.Tensor) float64 {
	var maxAbs float64
	switch t.Shape().DType {
	case dtypes.Float32:
		t.MustConstFlatData(func(flat any) {
			for _, v := range flat.([]float32) {
				maxAbs = math.Max(maxAbs, math.Abs(float64(v)))
			}
		})
	case dtypes.Float64:
		t.MustConstFlatData(func(flat any) {
			for _, v := range flat.([]float64) {
				maxAbs = math.Max(maxAbs, math.Abs(v))
			}
		})
	default:
		Panicf("ndimage.MaxAbs: unsupported dtype %s, only Float32 and Float64 are supported", t.Shape().DType)
	}
	return maxAbs
}

// Stack stacks equally shaped tensors into a new leading batch axis.
func Stack(ts []*tensors.Tensor) *tensors.Tensor {
	if len(ts) == 0 {
		Panicf("ndimage.Stack: at least one tensor required")
	}
	shape := ts[0].Shape()
	for ii, t := range ts[1:] {
		if !t.Shape().Equal(shape) {
			Panicf("ndimage.Stack: tensor %d shaped %s, want %s", ii+1, t.Shape(), shape)
		}
	}
	outDims := make([]int, 0, shape.Rank()+1)
	outDims = append(outDims, len(ts))
	outDims = append(outDims, shape.Dimensions...)
	switch shape.DType {
	case dtypes.Float32:
		return stack[float32](ts, outDims)
	case dtypes.Float64:
		return stack[float64](ts, outDims)
	default:
		Panicf("ndimage.Stack: unsupported dtype %s, only Float32 and Float64 are supported", shape.DType)
	}
	return nil
}

func stack[T float32 | float64](ts []*tensors.Tensor, outDims []int) *tensors.Tensor {
	size := ts[0].Shape().Size()
	out := make([]T, size*len(ts))
	for ii, t := range ts {
		t.MustConstFlatData(func(flat any) {
			copy(out[ii*size:(ii+1)*size], flat.([]T))
		})
	}
	return tensors.FromFlatDataAndDimensions(out, outDims...)
}
