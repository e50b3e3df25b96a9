package ndimage

import (
	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// CopyPasteRegion computes matching source and destination rectangles for
// copying a region of the given spatial size centered at srcCenter in an array
// shaped srcDims into a region centered at dstCenter in an array shaped
// dstDims. The size is clipped symmetrically so both rectangles stay within
// bounds; they always have equal extents.
func CopyPasteRegion(srcDims, dstDims, srcCenter, dstCenter, size [2]int) (srcRect, dstRect Rect) {
	var d1, d2 [2]int
	for axis := 0; axis < 2; axis++ {
		half1 := size[axis] / 2
		half2 := size[axis] - half1
		d1[axis] = clipInt(half1, 0, min(srcCenter[axis], dstCenter[axis]))
		d2[axis] = clipInt(half2, 0, min(srcDims[axis]-srcCenter[axis], dstDims[axis]-dstCenter[axis]))
	}
	srcRect = Rect{
		Y0: srcCenter[0] - d1[0], X0: srcCenter[1] - d1[1],
		Y1: srcCenter[0] + d2[0], X1: srcCenter[1] + d2[1],
	}
	dstRect = Rect{
		Y0: dstCenter[0] - d1[0], X0: dstCenter[1] - d1[1],
		Y1: dstCenter[0] + d2[0], X1: dstCenter[1] + d2[1],
	}
	return
}

func clipInt(v, lowest, highest int) int {
	if highest < lowest {
		return lowest
	}
	return min(max(v, lowest), highest)
}

// pasteRegion copies the srcRect region of src (spatial dims srcW wide) into
// the dstRect region of dst. Rectangles must have equal extents; empty
// rectangles copy nothing.
func pasteRegion[T float32 | float64](dst []T, dstW int, dstRect Rect, src []T, srcW int, srcRect Rect, channels int) {
	rows, cols := srcRect.Y1-srcRect.Y0, srcRect.X1-srcRect.X0
	if rows <= 0 || cols <= 0 {
		return
	}
	for y := 0; y < rows; y++ {
		srcAt := ((srcRect.Y0+y)*srcW + srcRect.X0) * channels
		dstAt := ((dstRect.Y0+y)*dstW + dstRect.X0) * channels
		copy(dst[dstAt:dstAt+cols*channels], src[srcAt:srcAt+cols*channels])
	}
}

// ResizeCenter returns t center-cropped or zero-padded to the given spatial
// size, the original center kept at the new center.
func ResizeCenter(t *tensors.Tensor, height, width int) *tensors.Tensor {
	return apply(t, "ResizeCenter",
		func(data []float32, dims []int) ([]float32, []int) { return resizeCenter(data, dims, height, width) },
		func(data []float64, dims []int) ([]float64, []int) { return resizeCenter(data, dims, height, width) })
}

func resizeCenter[T float32 | float64](data []T, dims []int, height, width int) ([]T, []int) {
	srcH, srcW, channels := spatialDims("ResizeCenter", dims)
	out := make([]T, height*width*channels)
	srcRect, dstRect := CopyPasteRegion(
		[2]int{srcH, srcW}, [2]int{height, width},
		[2]int{srcH / 2, srcW / 2}, [2]int{height / 2, width / 2},
		[2]int{min(srcH, height), min(srcW, width)})
	pasteRegion(out, width, dstRect, data, srcW, srcRect, channels)
	return out, withSpatial(dims, height, width)
}

// Shift translates t by (dy, dx) pixels with zero fill, keeping its shape.
func Shift(t *tensors.Tensor, dy, dx int) *tensors.Tensor {
	return apply(t, "Shift",
		func(data []float32, dims []int) ([]float32, []int) { return shift(data, dims, dy, dx) },
		func(data []float64, dims []int) ([]float64, []int) { return shift(data, dims, dy, dx) })
}

func shift[T float32 | float64](data []T, dims []int, dy, dx int) ([]T, []int) {
	height, width, channels := spatialDims("Shift", dims)
	out := make([]T, len(data))
	dstY0, dstX0 := max(dy, 0), max(dx, 0)
	srcY0, srcX0 := max(-dy, 0), max(-dx, 0)
	rows, cols := height-abs(dy), width-abs(dx)
	if rows > 0 && cols > 0 {
		pasteRegion(out, width,
			Rect{Y0: dstY0, X0: dstX0, Y1: dstY0 + rows, X1: dstX0 + cols},
			data, width,
			Rect{Y0: srcY0, X0: srcX0, Y1: srcY0 + rows, X1: srcX0 + cols},
			channels)
	}
	return out, dims
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
