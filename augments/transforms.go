package augments

import (
	"math"
	"math/rand"

	. "github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/tensors"

	"github.com/segkit/segkit/ndimage"
)

// spatial returns the height and width the sampler draws geometry for, taken
// from the first array.
func spatial(arrs []*tensors.Tensor) (height, width int) {
	dims := arrs[0].Shape().Dimensions
	return dims[0], dims[1]
}

// randRange draws an integer uniformly from [-maxAbs, maxAbs].
func randRange(rng *rand.Rand, maxAbs int) int {
	if maxAbs <= 0 {
		return 0
	}
	return rng.Intn(2*maxAbs+1) - maxAbs
}

// Transpose swaps the spatial axes.
func Transpose() *Augmenter {
	return New("transpose", func(rng *rand.Rand, arrs []*tensors.Tensor) Transform {
		return ndimage.Transpose
	})
}

// Flip mirrors along a randomly chosen spatial axis.
func Flip() *Augmenter {
	return New("flip", func(rng *rand.Rand, arrs []*tensors.Tensor) Transform {
		if rng.Intn(2) == 0 {
			return ndimage.FlipLR
		}
		return ndimage.FlipUD
	})
}

// Rot90 rotates by a random 1 or 2 quarter-turns.
func Rot90() *Augmenter {
	return New("rot90", func(rng *rand.Rand, arrs []*tensors.Tensor) Transform {
		k := 1 + rng.Intn(2)
		return func(t *tensors.Tensor) *tensors.Tensor {
			return ndimage.Rot90(t, k)
		}
	})
}

// Normalize rescales values to [0, 1]. It applies always unless WithProb
// lowers it.
func Normalize() *Augmenter {
	return New("normalize", func(rng *rand.Rand, arrs []*tensors.Tensor) Transform {
		return ndimage.Rescale
	}).WithProb(1)
}

// Rotate spins about the array center by a uniform random angle in [0, 360)
// degrees, bilinearly resampled with zero fill, keeping the shape.
func Rotate() *Augmenter {
	return New("rotate", func(rng *rand.Rand, arrs []*tensors.Tensor) Transform {
		degrees := rng.Float64() * 360
		return func(t *tensors.Tensor) *tensors.Tensor {
			return ndimage.Rotate(t, degrees, ndimage.Bilinear)
		}
	})
}

// ShiftConfig configures a random-translation Augmenter. Call Done to build.
type ShiftConfig struct {
	dimFraction int
}

// Shift translates by a random offset of up to ±dim/dimFraction pixels per
// spatial axis, zero filled.
func Shift() *ShiftConfig {
	return &ShiftConfig{dimFraction: 2}
}

// DimFraction bounds the offset per axis to ±dim/fraction. Default 2.
func (c *ShiftConfig) DimFraction(fraction int) *ShiftConfig {
	if fraction < 1 {
		Panicf("augments.Shift: dim fraction must be >= 1, got %d", fraction)
	}
	c.dimFraction = fraction
	return c
}

// Done builds the Augmenter.
func (c *ShiftConfig) Done() *Augmenter {
	fraction := c.dimFraction
	return New("shift", func(rng *rand.Rand, arrs []*tensors.Tensor) Transform {
		height, width := spatial(arrs)
		dy := randRange(rng, height/fraction)
		dx := randRange(rng, width/fraction)
		return func(t *tensors.Tensor) *tensors.Tensor {
			return ndimage.Shift(t, dy, dx)
		}
	})
}

// ZoomConfig configures a random-zoom Augmenter. Call Done to build.
type ZoomConfig struct {
	zoomRange float64
}

// Zoom resamples by random anisotropic factors around 1±range and
// center-crops or zero-pads the result back to the input shape.
func Zoom() *ZoomConfig {
	return &ZoomConfig{zoomRange: 0.2}
}

// Range sets the zoom factor spread. Default 0.2.
func (c *ZoomConfig) Range(zoomRange float64) *ZoomConfig {
	if zoomRange <= 0 || zoomRange >= 1 {
		Panicf("augments.Zoom: range must be in (0, 1), got %g", zoomRange)
	}
	c.zoomRange = zoomRange
	return c
}

// Done builds the Augmenter.
func (c *ZoomConfig) Done() *Augmenter {
	zoomRange := c.zoomRange
	return New("zoom", func(rng *rand.Rand, arrs []*tensors.Tensor) Transform {
		base := zoomRange - rng.Float64()*2*zoomRange
		zy := base + 1 + 0.25*zoomRange - rng.Float64()*0.5*zoomRange
		zx := base + 1 + 0.25*zoomRange - rng.Float64()*0.5*zoomRange
		return func(t *tensors.Tensor) *tensors.Tensor {
			dims := t.Shape().Dimensions
			zoomed := ndimage.Zoom(t, zy, zx, ndimage.Bilinear)
			return ndimage.ResizeCenter(zoomed, dims[0], dims[1])
		}
	})
}

// RotateZoomConfig configures a combined rotation and scaling Augmenter.
// Call Done to build.
type RotateZoomConfig struct {
	dimFraction int
	interp      ndimage.Interpolation
}

// RotateZoom rotates by a random angle and scales each spatial axis by up to
// ±dim/dimFraction pixels, in one resampling pass back to the input shape.
func RotateZoom() *RotateZoomConfig {
	return &RotateZoomConfig{dimFraction: 4, interp: ndimage.Bilinear}
}

// DimFraction bounds the per-axis size change to ±dim/fraction pixels.
// Default 4.
func (c *RotateZoomConfig) DimFraction(fraction int) *RotateZoomConfig {
	if fraction < 1 {
		Panicf("augments.RotateZoom: dim fraction must be >= 1, got %d", fraction)
	}
	c.dimFraction = fraction
	return c
}

// Interp selects the resampling mode. Default Bilinear.
func (c *RotateZoomConfig) Interp(interp ndimage.Interpolation) *RotateZoomConfig {
	c.interp = interp
	return c
}

// Done builds the Augmenter.
func (c *RotateZoomConfig) Done() *Augmenter {
	fraction, interp := c.dimFraction, c.interp
	return New("rotateZoom", func(rng *rand.Rand, arrs []*tensors.Tensor) Transform {
		height, width := spatial(arrs)
		degrees := rng.Float64() * 360
		zy := float64(height+randRange(rng, height/fraction)) / float64(height)
		zx := float64(width+randRange(rng, width/fraction)) / float64(width)
		return func(t *tensors.Tensor) *tensors.Tensor {
			dims := t.Shape().Dimensions
			out := ndimage.Rotate(t, degrees, interp)
			out = ndimage.Zoom(out, zy, zx, interp)
			return ndimage.ResizeCenter(out, dims[0], dims[1])
		}
	})
}

// DeformConfig configures an elastic-deformation Augmenter. Call Done to
// build.
type DeformConfig struct {
	defRange   int
	controls   int
	gridMargin int
	interp     ndimage.Interpolation
}

// Deform warps through a coarse grid of random control-point displacements,
// zero at the grid border, bilinearly up-sampled to a dense displacement
// field.
func Deform() *DeformConfig {
	return &DeformConfig{defRange: 25, controls: 3, gridMargin: 2, interp: ndimage.Bilinear}
}

// Range bounds each control displacement to ±pixels. Default 25.
func (c *DeformConfig) Range(pixels int) *DeformConfig {
	if pixels < 1 {
		Panicf("augments.Deform: range must be >= 1, got %d", pixels)
	}
	c.defRange = pixels
	return c
}

// Controls sets the number of free control points per axis. Default 3.
func (c *DeformConfig) Controls(controls int) *DeformConfig {
	if controls < 1 {
		Panicf("augments.Deform: controls must be >= 1, got %d", controls)
	}
	c.controls = controls
	return c
}

// GridMargin sets the width of the fixed zero border of the control grid.
// Default 2.
func (c *DeformConfig) GridMargin(margin int) *DeformConfig {
	if margin < 1 {
		Panicf("augments.Deform: grid margin must be >= 1, got %d", margin)
	}
	c.gridMargin = margin
	return c
}

// Interp selects the resampling mode. Default Bilinear.
func (c *DeformConfig) Interp(interp ndimage.Interpolation) *DeformConfig {
	c.interp = interp
	return c
}

// Done builds the Augmenter.
func (c *DeformConfig) Done() *Augmenter {
	defRange, controls, gridMargin, interp := c.defRange, c.controls, c.gridMargin, c.interp
	return New("deform", func(rng *rand.Rand, arrs []*tensors.Tensor) Transform {
		height, width := spatial(arrs)
		grid := controls + 2*gridMargin
		dyGrid := make([]float64, grid*grid)
		dxGrid := make([]float64, grid*grid)
		for y := gridMargin; y < gridMargin+controls; y++ {
			for x := gridMargin; x < gridMargin+controls; x++ {
				dyGrid[y*grid+x] = float64(randRange(rng, defRange))
				dxGrid[y*grid+x] = float64(randRange(rng, defRange))
			}
		}
		dy := ndimage.ResizeField(dyGrid, grid, grid, height, width)
		dx := ndimage.ResizeField(dxGrid, grid, grid, height, width)
		return func(t *tensors.Tensor) *tensors.Tensor {
			return ndimage.MapCoordinates(t, dy, dx, interp)
		}
	})
}

// FFTDistortConfig configures a frequency-dropout Augmenter. Call Done to
// build.
type FFTDistortConfig struct {
	minDist float64
	maxDist float64
}

// FFTDistort drops random frequency coefficients: each position of the
// centered spectrum is kept when a uniform draw in [minDist, maxDist) exceeds
// its normalized distance from the spectrum center, so low frequencies mostly
// survive and high ones mostly vanish. One mask is shared by all channels;
// the result is the magnitude of the inverse transform.
func FFTDistort() *FFTDistortConfig {
	return &FFTDistortConfig{minDist: 0.1, maxDist: 1.0}
}

// Distances sets the draw interval for the keep threshold. Defaults 0.1, 1.0.
func (c *FFTDistortConfig) Distances(minDist, maxDist float64) *FFTDistortConfig {
	if minDist < 0 || maxDist <= minDist {
		Panicf("augments.FFTDistort: want 0 <= minDist < maxDist, got %g, %g", minDist, maxDist)
	}
	c.minDist = minDist
	c.maxDist = maxDist
	return c
}

// Done builds the Augmenter.
func (c *FFTDistortConfig) Done() *Augmenter {
	minDist, maxDist := c.minDist, c.maxDist
	return New("fftDistort", func(rng *rand.Rand, arrs []*tensors.Tensor) Transform {
		height, width := spatial(arrs)
		keep := make([]bool, height*width)
		for y := 0; y < height; y++ {
			yv := centered(y, height)
			for x := 0; x < width; x++ {
				dist := math.Hypot(centered(x, width), yv)
				threshold := minDist + rng.Float64()*(maxDist-minDist)
				keep[y*width+x] = threshold > dist
			}
		}
		return func(t *tensors.Tensor) *tensors.Tensor {
			return ndimage.FrequencyFilter(t, keep)
		}
	})
}

// centered maps index i of an n-wide axis onto [-1, 1].
func centered(i, n int) float64 {
	if n <= 1 {
		return 0
	}
	return -1 + 2*float64(i)/float64(n-1)
}

// RandPatchConfig configures a random-crop Augmenter. Call Done to build.
type RandPatchConfig struct {
	height, width int
	maskIndex     int
	maxTries      int
}

// RandPatch crops a random height x width patch, the same region from every
// selected array. It applies always unless WithProb lowers it.
func RandPatch(height, width int) *RandPatchConfig {
	if height < 1 || width < 1 {
		Panicf("augments.RandPatch: patch size must be positive, got %dx%d", height, width)
	}
	return &RandPatchConfig{height: height, width: width, maskIndex: negativeOff, maxTries: 10}
}

// Nonzero re-samples the patch position until the patch of the mask at
// maskIndex contains positive foreground, falling back to the top-left patch.
func (c *RandPatchConfig) Nonzero(maskIndex int) *RandPatchConfig {
	c.maskIndex = maskIndex
	return c
}

// MaxTries bounds the Nonzero re-sampling. Default 10.
func (c *RandPatchConfig) MaxTries(tries int) *RandPatchConfig {
	if tries < 1 {
		Panicf("augments.RandPatch: max tries must be >= 1, got %d", tries)
	}
	c.maxTries = tries
	return c
}

// Done builds the Augmenter.
func (c *RandPatchConfig) Done() *Augmenter {
	patchH, patchW := c.height, c.width
	maskIndex, maxTries := c.maskIndex, c.maxTries
	return New("randPatch", func(rng *rand.Rand, arrs []*tensors.Tensor) Transform {
		height, width := spatial(arrs)
		if patchH > height || patchW > width {
			Panicf("augments.randPatch: patch %dx%d larger than arrays %dx%d", patchH, patchW, height, width)
		}
		sampleRect := func() ndimage.Rect {
			y := rng.Intn(height - patchH + 1)
			x := rng.Intn(width - patchW + 1)
			return ndimage.Rect{Y0: y, X0: x, Y1: y + patchH, X1: x + patchW}
		}
		rect := sampleRect()
		if maskIndex != negativeOff {
			mask := arrs[resolveIndex("randPatch", maskIndex, len(arrs))]
			for try := 0; try < maxTries && ndimage.MaxValue(ndimage.Patch(mask, rect)) <= 0; try++ {
				rect = sampleRect()
			}
			if ndimage.MaxValue(ndimage.Patch(mask, rect)) <= 0 {
				rect = ndimage.Rect{Y0: 0, X0: 0, Y1: patchH, X1: patchW}
			}
		}
		return func(t *tensors.Tensor) *tensors.Tensor {
			return ndimage.Patch(t, rect)
		}
	}).WithProb(1)
}
