package ndimage

import (
	. "github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// Transpose swaps the two spatial axes of t, keeping channels in place.
func Transpose(t *tensors.Tensor) *tensors.Tensor {
	return apply(t, "Transpose",
		func(data []float32, dims []int) ([]float32, []int) { return transpose(data, dims) },
		func(data []float64, dims []int) ([]float64, []int) { return transpose(data, dims) })
}

func transpose[T float32 | float64](data []T, dims []int) ([]T, []int) {
	height, width, channels := spatialDims("Transpose", dims)
	out := make([]T, len(data))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			src := (y*width + x) * channels
			dst := (x*height + y) * channels
			copy(out[dst:dst+channels], data[src:src+channels])
		}
	}
	return out, withSpatial(dims, width, height)
}

// FlipLR mirrors t along the width axis.
func FlipLR(t *tensors.Tensor) *tensors.Tensor {
	return apply(t, "FlipLR",
		func(data []float32, dims []int) ([]float32, []int) { return flip(data, dims, false) },
		func(data []float64, dims []int) ([]float64, []int) { return flip(data, dims, false) })
}

// FlipUD mirrors t along the height axis.
func FlipUD(t *tensors.Tensor) *tensors.Tensor {
	return apply(t, "FlipUD",
		func(data []float32, dims []int) ([]float32, []int) { return flip(data, dims, true) },
		func(data []float64, dims []int) ([]float64, []int) { return flip(data, dims, true) })
}

func flip[T float32 | float64](data []T, dims []int, vertical bool) ([]T, []int) {
	height, width, channels := spatialDims("Flip", dims)
	out := make([]T, len(data))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			srcY, srcX := y, width-1-x
			if vertical {
				srcY, srcX = height-1-y, x
			}
			src := (srcY*width + srcX) * channels
			dst := (y*width + x) * channels
			copy(out[dst:dst+channels], data[src:src+channels])
		}
	}
	return out, dims
}

// Rot90 rotates t counter-clockwise by k quarter-turns (any integer k).
func Rot90(t *tensors.Tensor, k int) *tensors.Tensor {
	k = ((k % 4) + 4) % 4
	return apply(t, "Rot90",
		func(data []float32, dims []int) ([]float32, []int) { return rot90(data, dims, k) },
		func(data []float64, dims []int) ([]float64, []int) { return rot90(data, dims, k) })
}

func rot90[T float32 | float64](data []T, dims []int, k int) ([]T, []int) {
	height, width, channels := spatialDims("Rot90", dims)
	if k == 0 {
		out := make([]T, len(data))
		copy(out, data)
		return out, dims
	}
	outH, outW := height, width
	if k%2 == 1 {
		outH, outW = width, height
	}
	out := make([]T, len(data))
	for y := 0; y < outH; y++ {
		for x := 0; x < outW; x++ {
			var srcY, srcX int
			switch k {
			case 1:
				srcY, srcX = x, width-1-y
			case 2:
				srcY, srcX = height-1-y, width-1-x
			default: // k == 3
				srcY, srcX = height-1-x, y
			}
			src := (srcY*width + srcX) * channels
			dst := (y*outW + x) * channels
			copy(out[dst:dst+channels], data[src:src+channels])
		}
	}
	return out, withSpatial(dims, outH, outW)
}

// Rect is a half-open spatial rectangle [Y0, Y1) x [X0, X1).
type Rect struct {
	Y0, X0, Y1, X1 int
}

// Patch extracts the rectangle r from t. The rectangle must lie within the
// spatial bounds of t.
func Patch(t *tensors.Tensor, r Rect) *tensors.Tensor {
	return apply(t, "Patch",
		func(data []float32, dims []int) ([]float32, []int) { return patch(data, dims, r) },
		func(data []float64, dims []int) ([]float64, []int) { return patch(data, dims, r) })
}

func patch[T float32 | float64](data []T, dims []int, r Rect) ([]T, []int) {
	height, width, channels := spatialDims("Patch", dims)
	if r.Y0 < 0 || r.X0 < 0 || r.Y1 > height || r.X1 > width || r.Y0 >= r.Y1 || r.X0 >= r.X1 {
		Panicf("ndimage.Patch: rectangle %+v out of bounds for spatial dims [%d, %d]", r, height, width)
	}
	outH, outW := r.Y1-r.Y0, r.X1-r.X0
	out := make([]T, outH*outW*channels)
	for y := 0; y < outH; y++ {
		src := ((r.Y0+y)*width + r.X0) * channels
		dst := y * outW * channels
		copy(out[dst:dst+outW*channels], data[src:src+outW*channels])
	}
	return out, withSpatial(dims, outH, outW)
}
