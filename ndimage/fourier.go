package ndimage

import (
	"math/cmplx"

	. "github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"gonum.org/v1/gonum/dsp/fourier"
)

// FrequencyFilter transforms each channel of t to the frequency domain, zeros
// the coefficients whose keep entry is false and returns the magnitude of the
// inverse transform. keep is laid out over the centered spectrum (zero
// frequency in the middle), one entry per spatial position, shared by all
// channels.
func FrequencyFilter(t *tensors.Tensor, keep []bool) *tensors.Tensor {
	return apply(t, "FrequencyFilter",
		func(data []float32, dims []int) ([]float32, []int) { return frequencyFilter(data, dims, keep) },
		func(data []float64, dims []int) ([]float64, []int) { return frequencyFilter(data, dims, keep) })
}

func frequencyFilter[T float32 | float64](data []T, dims []int, keep []bool) ([]T, []int) {
	height, width, channels := spatialDims("FrequencyFilter", dims)
	if len(keep) != height*width {
		Panicf("ndimage.FrequencyFilter: keep mask sized %d, want %d (=%dx%d)", len(keep), height*width, height, width)
	}
	rowFFT := fourier.NewCmplxFFT(width)
	colFFT := fourier.NewCmplxFFT(height)
	grid := make([]complex128, height*width)
	row := make([]complex128, width)
	col := make([]complex128, height)
	colOut := make([]complex128, height)
	out := make([]T, len(data))
	norm := float64(height * width)
	for c := 0; c < channels; c++ {
		for pos := range grid {
			grid[pos] = complex(float64(data[pos*channels+c]), 0)
		}
		fft2(grid, height, width, rowFFT, colFFT, row, col, colOut, false)
		// The mask is centered; index it at the shifted position so the
		// multiply is equivalent to fftshift, mask, inverse shift.
		for y := 0; y < height; y++ {
			sy := (y + height/2) % height
			for x := 0; x < width; x++ {
				if !keep[sy*width+(x+width/2)%width] {
					grid[y*width+x] = 0
				}
			}
		}
		fft2(grid, height, width, rowFFT, colFFT, row, col, colOut, true)
		for pos, v := range grid {
			out[pos*channels+c] = T(cmplx.Abs(v) / norm)
		}
	}
	return out, dims
}

// fft2 runs an in-place 2D transform of grid, rows then columns. The inverse
// is unnormalized, as gonum's Sequence is.
func fft2(grid []complex128, height, width int, rowFFT, colFFT *fourier.CmplxFFT, row, col, colOut []complex128, inverse bool) {
	for y := 0; y < height; y++ {
		src := grid[y*width : (y+1)*width]
		if inverse {
			rowFFT.Sequence(row, src)
		} else {
			rowFFT.Coefficients(row, src)
		}
		copy(src, row)
	}
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			col[y] = grid[y*width+x]
		}
		if inverse {
			colFFT.Sequence(colOut, col)
		} else {
			colFFT.Coefficients(colOut, col)
		}
		for y := 0; y < height; y++ {
			grid[y*width+x] = colOut[y]
		}
	}
}
