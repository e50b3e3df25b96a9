package ndimage

import (
	"math"

	. "github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// sampleAt reads the source value at the continuous coordinate (sy, sx) for
// one channel, interpolating per interp. Coordinates outside the array sample
// as zero.
func sampleAt[T float32 | float64](data []T, height, width, channels int, sy, sx float64, c int, interp Interpolation) T {
	at := func(y, x int) T {
		if y < 0 || y >= height || x < 0 || x >= width {
			return 0
		}
		return data[(y*width+x)*channels+c]
	}
	if interp == Nearest {
		return at(int(math.Round(sy)), int(math.Round(sx)))
	}
	y0, x0 := int(math.Floor(sy)), int(math.Floor(sx))
	fy, fx := T(sy-float64(y0)), T(sx-float64(x0))
	top := at(y0, x0)*(1-fx) + at(y0, x0+1)*fx
	bottom := at(y0+1, x0)*(1-fx) + at(y0+1, x0+1)*fx
	return top*(1-fy) + bottom*fy
}

// Rotate rotates t counter-clockwise by degrees about the array center with
// zero fill, keeping the shape.
func Rotate(t *tensors.Tensor, degrees float64, interp Interpolation) *tensors.Tensor {
	return apply(t, "Rotate",
		func(data []float32, dims []int) ([]float32, []int) { return rotate(data, dims, degrees, interp) },
		func(data []float64, dims []int) ([]float64, []int) { return rotate(data, dims, degrees, interp) })
}

func rotate[T float32 | float64](data []T, dims []int, degrees float64, interp Interpolation) ([]T, []int) {
	height, width, channels := spatialDims("Rotate", dims)
	radians := degrees * math.Pi / 180
	sin, cos := math.Sincos(radians)
	cy, cx := float64(height-1)/2, float64(width-1)/2
	out := make([]T, len(data))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			// Inverse mapping: rotate the output coordinate back into the source.
			ry, rx := float64(y)-cy, float64(x)-cx
			sy := cy + cos*ry + sin*rx
			sx := cx - sin*ry + cos*rx
			dst := (y*width + x) * channels
			for c := 0; c < channels; c++ {
				out[dst+c] = sampleAt(data, height, width, channels, sy, sx, c, interp)
			}
		}
	}
	return out, dims
}

// Zoom resamples t by the factors (zy, zx) per spatial axis. The output dims
// are the input dims scaled and rounded; factors must yield at least one
// pixel per axis.
func Zoom(t *tensors.Tensor, zy, zx float64, interp Interpolation) *tensors.Tensor {
	return apply(t, "Zoom",
		func(data []float32, dims []int) ([]float32, []int) { return zoom(data, dims, zy, zx, interp) },
		func(data []float64, dims []int) ([]float64, []int) { return zoom(data, dims, zy, zx, interp) })
}

func zoom[T float32 | float64](data []T, dims []int, zy, zx float64, interp Interpolation) ([]T, []int) {
	height, width, channels := spatialDims("Zoom", dims)
	outH := int(math.Round(float64(height) * zy))
	outW := int(math.Round(float64(width) * zx))
	if outH < 1 || outW < 1 {
		Panicf("ndimage.Zoom: factors (%g, %g) yield empty output for spatial dims [%d, %d]", zy, zx, height, width)
	}
	out := make([]T, outH*outW*channels)
	scaleY := float64(height) / float64(outH)
	scaleX := float64(width) / float64(outW)
	for y := 0; y < outH; y++ {
		sy := (float64(y)+0.5)*scaleY - 0.5
		for x := 0; x < outW; x++ {
			sx := (float64(x)+0.5)*scaleX - 0.5
			dst := (y*outW + x) * channels
			for c := 0; c < channels; c++ {
				out[dst+c] = sampleAt(data, height, width, channels, sy, sx, c, interp)
			}
		}
	}
	return out, withSpatial(dims, outH, outW)
}

// MapCoordinates warps t by a displacement field: output pixel (y, x) samples
// the source at (y + dy[y*w+x], x + dx[y*w+x]), zero outside. dy and dx must
// have one entry per spatial position.
func MapCoordinates(t *tensors.Tensor, dy, dx []float64, interp Interpolation) *tensors.Tensor {
	return apply(t, "MapCoordinates",
		func(data []float32, dims []int) ([]float32, []int) { return mapCoordinates(data, dims, dy, dx, interp) },
		func(data []float64, dims []int) ([]float64, []int) { return mapCoordinates(data, dims, dy, dx, interp) })
}

func mapCoordinates[T float32 | float64](data []T, dims []int, dy, dx []float64, interp Interpolation) ([]T, []int) {
	height, width, channels := spatialDims("MapCoordinates", dims)
	if len(dy) != height*width || len(dx) != height*width {
		Panicf("ndimage.MapCoordinates: displacement fields sized %d and %d, want %d (=%dx%d)",
			len(dy), len(dx), height*width, height, width)
	}
	out := make([]T, len(data))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			pos := y*width + x
			sy := float64(y) + dy[pos]
			sx := float64(x) + dx[pos]
			dst := pos * channels
			for c := 0; c < channels; c++ {
				out[dst+c] = sampleAt(data, height, width, channels, sy, sx, c, interp)
			}
		}
	}
	return out, dims
}

// ResizeField bilinearly up-samples a coarse (fieldH x fieldW) scalar grid to
// (height x width), corners aligned so the grid border maps to the image
// border.
func ResizeField(field []float64, fieldH, fieldW, height, width int) []float64 {
	if fieldH < 2 || fieldW < 2 {
		Panicf("ndimage.ResizeField: grid must be at least 2x2, got %dx%d", fieldH, fieldW)
	}
	if len(field) != fieldH*fieldW {
		Panicf("ndimage.ResizeField: field sized %d, want %d (=%dx%d)", len(field), fieldH*fieldW, fieldH, fieldW)
	}
	out := make([]float64, height*width)
	scaleY, scaleX := 0.0, 0.0
	if height > 1 {
		scaleY = float64(fieldH-1) / float64(height-1)
	}
	if width > 1 {
		scaleX = float64(fieldW-1) / float64(width-1)
	}
	for y := 0; y < height; y++ {
		sy := float64(y) * scaleY
		y0 := min(int(sy), fieldH-2)
		fy := sy - float64(y0)
		for x := 0; x < width; x++ {
			sx := float64(x) * scaleX
			x0 := min(int(sx), fieldW-2)
			fx := sx - float64(x0)
			top := field[y0*fieldW+x0]*(1-fx) + field[y0*fieldW+x0+1]*fx
			bottom := field[(y0+1)*fieldW+x0]*(1-fx) + field[(y0+1)*fieldW+x0+1]*fx
			out[y*width+x] = top*(1-fy) + bottom*fy
		}
	}
	return out
}
