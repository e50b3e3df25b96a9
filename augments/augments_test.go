package augments

import (
	"math/rand"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segkit/segkit/ndimage"
)

func flat32(t *testing.T, tensor *tensors.Tensor) []float32 {
	t.Helper()
	var out []float32
	tensor.MustConstFlatData(func(flat any) {
		out = append(out, flat.([]float32)...)
	})
	return out
}

// gradient returns a [height, width] tensor with distinct values per pixel.
func gradient(height, width int) *tensors.Tensor {
	out := tensors.FromShape(shapes.Make(dtypes.Float32, height, width))
	out.MustMutableFlatData(func(flat any) {
		data := flat.([]float32)
		for ii := range data {
			data[ii] = float32(ii)
		}
	})
	return out
}

// dot returns a [height, width] mask with a single foreground pixel.
func dot(height, width, y, x int) *tensors.Tensor {
	out := tensors.FromShape(shapes.Make(dtypes.Float32, height, width))
	out.MustMutableFlatData(func(flat any) {
		flat.([]float32)[y*width+x] = 1
	})
	return out
}

func TestProbability(t *testing.T) {
	calls := 0
	counting := New("counting", func(rng *rand.Rand, arrs []*tensors.Tensor) Transform {
		calls++
		return ndimage.Transpose
	})
	in := gradient(2, 3)

	rng := rand.New(rand.NewSource(42))
	out := counting.WithProb(0).Apply(rng, in)
	require.Len(t, out, 1)
	assert.Same(t, in, out[0])
	assert.Zero(t, calls)

	out = counting.WithProb(1).Apply(rng, in)
	assert.Equal(t, []int{3, 2}, out[0].Shape().Dimensions)
	assert.Equal(t, 1, calls)

	// Input never mutated.
	assert.Equal(t, []int{2, 3}, in.Shape().Dimensions)
}

func TestConsistentTransformAcrossArrays(t *testing.T) {
	image := gradient(8, 8)
	mask := dot(8, 8, 2, 5)
	flip := Flip().WithProb(1)
	for seed := int64(0); seed < 10; seed++ {
		rng := rand.New(rand.NewSource(seed))
		out := flip.Apply(rng, image, mask)
		// Whatever axis was drawn, both arrays got the same one.
		wantLR := flat32(t, ndimage.FlipLR(image))
		if assert.ObjectsAreEqual(wantLR, flat32(t, out[0])) {
			assert.Equal(t, flat32(t, ndimage.FlipLR(mask)), flat32(t, out[1]))
		} else {
			assert.Equal(t, flat32(t, ndimage.FlipUD(image)), flat32(t, out[0]))
			assert.Equal(t, flat32(t, ndimage.FlipUD(mask)), flat32(t, out[1]))
		}
	}
}

func TestApplyTo(t *testing.T) {
	image := gradient(4, 4)
	mask := dot(4, 4, 1, 1)
	rng := rand.New(rand.NewSource(1))

	out := Normalize().ApplyTo(0).Apply(rng, image, mask)
	assert.NotSame(t, image, out[0])
	assert.Same(t, mask, out[1])

	// Negative positions count from the end.
	out = Normalize().ApplyTo(-1).Apply(rng, image, mask)
	assert.Same(t, image, out[0])
	assert.NotSame(t, mask, out[1])

	assert.Panics(t, func() {
		Normalize().ApplyTo(2).Apply(rng, image, mask)
	})
}

func TestShapeMismatchPanics(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	assert.Panics(t, func() {
		Flip().Apply(rng, gradient(4, 4), gradient(4, 5))
	})
	// A pass-through array may have any shape.
	assert.NotPanics(t, func() {
		Flip().ApplyTo(0).Apply(rng, gradient(4, 4), gradient(4, 5))
	})
}

func TestSegmentMarginFallsBackToIdentity(t *testing.T) {
	// Every sampled shift pushes the dot into the border, so the margin
	// check must exhaust its tries and fall back to the identity.
	calls := 0
	toBorder := New("toBorder", func(rng *rand.Rand, arrs []*tensors.Tensor) Transform {
		calls++
		return func(x *tensors.Tensor) *tensors.Tensor {
			return ndimage.Shift(x, 0, 4)
		}
	}).WithProb(1).WithSegmentMargin(-1, 3, 4)

	image := gradient(10, 10)
	mask := dot(10, 10, 5, 5)
	rng := rand.New(rand.NewSource(1))
	out := toBorder.Apply(rng, image, mask)

	assert.Equal(t, 4, calls)
	assert.Same(t, image, out[0])
	assert.Same(t, mask, out[1])
}

func TestSegmentMarginAcceptsSafeTransform(t *testing.T) {
	// Shifting one pixel keeps the centered dot clear of a margin of 3.
	safe := New("safe", func(rng *rand.Rand, arrs []*tensors.Tensor) Transform {
		return func(x *tensors.Tensor) *tensors.Tensor {
			return ndimage.Shift(x, 1, 0)
		}
	}).WithProb(1).WithSegmentMargin(1, 3, 5)

	image := gradient(10, 10)
	mask := dot(10, 10, 5, 5)
	rng := rand.New(rand.NewSource(1))
	out := safe.Apply(rng, image, mask)

	assert.Equal(t, flat32(t, ndimage.Shift(mask, 1, 0)), flat32(t, out[1]))
	assert.Equal(t, flat32(t, ndimage.Shift(image, 1, 0)), flat32(t, out[0]))
}

func TestPipelineOrder(t *testing.T) {
	pipeline := Pipeline{
		Normalize(),
		Transpose().WithProb(1),
	}
	in := gradient(2, 4)
	in.MustMutableFlatData(func(flat any) {
		flat.([]float32)[7] = 14 // max 14 so normalize divides by 14
	})
	rng := rand.New(rand.NewSource(1))
	out := pipeline.Apply(rng, in)
	require.Len(t, out, 1)
	require.Equal(t, []int{4, 2}, out[0].Shape().Dimensions)
	got := flat32(t, out[0])
	assert.InDelta(t, 0, got[0], 1e-6)
	assert.InDelta(t, 1, got[len(got)-1], 1e-6)
}

func TestRot90SamplesOneOrTwoTurns(t *testing.T) {
	in := gradient(3, 3)
	k1 := flat32(t, ndimage.Rot90(in, 1))
	k2 := flat32(t, ndimage.Rot90(in, 2))
	augmenter := Rot90().WithProb(1)
	for seed := int64(0); seed < 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		got := flat32(t, augmenter.Apply(rng, in)[0])
		if !assert.ObjectsAreEqual(k1, got) {
			assert.Equal(t, k2, got, "seed %d produced neither 1 nor 2 quarter-turns", seed)
		}
	}
}

func TestRandPatchNonzero(t *testing.T) {
	image := gradient(16, 16)
	mask := dot(16, 16, 10, 12)
	augmenter := RandPatch(4, 4).Nonzero(-1).Done()
	for seed := int64(0); seed < 10; seed++ {
		rng := rand.New(rand.NewSource(seed))
		out := augmenter.Apply(rng, image, mask)
		require.Equal(t, []int{4, 4}, out[0].Shape().Dimensions)
		require.Equal(t, []int{4, 4}, out[1].Shape().Dimensions)
		// Either the patch holds the foreground pixel or it is the
		// top-left fallback, which here is all background.
		if ndimage.IsZero(out[1]) {
			assert.Equal(t, flat32(t, ndimage.Patch(image, ndimage.Rect{Y1: 4, X1: 4})), flat32(t, out[0]))
		}
	}
}

func TestRandPatchNegativeMaskIsBackground(t *testing.T) {
	// Only positive mask values count as foreground: an all-negative mask
	// always falls back to the top-left patch.
	image := gradient(16, 16)
	negative := make([]float32, 16*16)
	for ii := range negative {
		negative[ii] = -1
	}
	mask := tensors.FromFlatDataAndDimensions(negative, 16, 16)
	augmenter := RandPatch(4, 4).Nonzero(-1).MaxTries(3).Done()
	for seed := int64(0); seed < 10; seed++ {
		rng := rand.New(rand.NewSource(seed))
		out := augmenter.Apply(rng, image, mask)
		assert.Equal(t, flat32(t, ndimage.Patch(image, ndimage.Rect{Y1: 4, X1: 4})), flat32(t, out[0]))
	}
}

func TestShiftKeepsShape(t *testing.T) {
	in := gradient(6, 8)
	rng := rand.New(rand.NewSource(3))
	out := Shift().Done().WithProb(1).Apply(rng, in)
	assert.Equal(t, []int{6, 8}, out[0].Shape().Dimensions)
}

func TestZoomKeepsShape(t *testing.T) {
	in := gradient(9, 7)
	augmenter := Zoom().Range(0.3).Done().WithProb(1)
	for seed := int64(0); seed < 5; seed++ {
		rng := rand.New(rand.NewSource(seed))
		out := augmenter.Apply(rng, in)
		assert.Equal(t, []int{9, 7}, out[0].Shape().Dimensions)
	}
}

func TestRotateZoomKeepsShape(t *testing.T) {
	in := gradient(8, 8)
	rng := rand.New(rand.NewSource(7))
	out := RotateZoom().Interp(ndimage.Nearest).Done().WithProb(1).Apply(rng, in)
	assert.Equal(t, []int{8, 8}, out[0].Shape().Dimensions)
}

func TestDeformKeepsShapeAndDeterminism(t *testing.T) {
	in := gradient(12, 12)
	augmenter := Deform().Range(3).Done().WithProb(1)

	first := flat32(t, augmenter.Apply(rand.New(rand.NewSource(11)), in)[0])
	second := flat32(t, augmenter.Apply(rand.New(rand.NewSource(11)), in)[0])
	assert.Equal(t, first, second)
	assert.Len(t, first, 12*12)
}

func TestFFTDistortKeepsShape(t *testing.T) {
	in := gradient(8, 8)
	rng := rand.New(rand.NewSource(5))
	out := FFTDistort().Done().WithProb(1).Apply(rng, in)
	assert.Equal(t, []int{8, 8}, out[0].Shape().Dimensions)
}

func TestSplitMergeSegmentation(t *testing.T) {
	image := gradient(2, 2)
	mask := tensors.FromValue([][]float32{{0, 1}, {2, 1}})

	split := SplitSegmentation([]*tensors.Tensor{image, mask}, 3, -1)
	assert.Same(t, image, split[0])
	require.Equal(t, []int{2, 2, 3}, split[1].Shape().Dimensions)

	merged := MergeSegmentation(split, 1)
	assert.Equal(t, flat32(t, mask), flat32(t, merged[1]))
}
