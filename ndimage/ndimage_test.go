package ndimage

import (
	"testing"

	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zeros(dims ...int) *tensors.Tensor {
	return tensors.FromShape(shapes.Make(dtypes.Float32, dims...))
}

func flat32(t *testing.T, tensor *tensors.Tensor) []float32 {
	t.Helper()
	var out []float32
	tensor.MustConstFlatData(func(flat any) {
		out = append(out, flat.([]float32)...)
	})
	return out
}

func TestRescale(t *testing.T) {
	in := tensors.FromValue([][]float32{{2, 4}, {6, 10}})
	got := Rescale(in)
	assert.Equal(t, []float32{0, 0.25, 0.5, 1}, flat32(t, got))

	got = RescaleTo(in, -1, 1)
	assert.Equal(t, []float32{-1, -0.5, 0, 1}, flat32(t, got))

	// Constant input rescales to the lower bound.
	constant := tensors.FromValue([][]float32{{3, 3}, {3, 3}})
	assert.Equal(t, []float32{0, 0, 0, 0}, flat32(t, Rescale(constant)))

	// Input untouched.
	assert.Equal(t, []float32{2, 4, 6, 10}, flat32(t, in))
}

func TestOneHotArgMaxRoundtrip(t *testing.T) {
	labels := tensors.FromValue([][]float32{{0, 1}, {2, 0}})
	oneHot := OneHot(labels, 3)
	require.Equal(t, []int{2, 2, 3}, oneHot.Shape().Dimensions)
	assert.Equal(t, []float32{
		1, 0, 0, 0, 1, 0,
		0, 0, 1, 1, 0, 0,
	}, flat32(t, oneHot))

	merged := ArgMaxAxis(oneHot)
	require.Equal(t, []int{2, 2}, merged.Shape().Dimensions)
	assert.Equal(t, flat32(t, labels), flat32(t, merged))
}

func TestOneHotWrapsNegativeLabels(t *testing.T) {
	// -1 conventionally marks the last class.
	labels := tensors.FromValue([]float32{-1, 3})
	oneHot := OneHot(labels, 3)
	assert.Equal(t, []float32{0, 0, 1, 1, 0, 0}, flat32(t, oneHot))
}

func TestZeroMargins(t *testing.T) {
	mask := zeros(5, 5)
	mask.MustMutableFlatData(func(flat any) {
		flat.([]float32)[2*5+2] = 1
	})
	assert.True(t, ZeroMargins(mask, 1))
	assert.True(t, ZeroMargins(mask, 2))
	// Margin so wide no interior remains.
	assert.False(t, ZeroMargins(mask, 3))

	border := zeros(5, 5)
	border.MustMutableFlatData(func(flat any) {
		flat.([]float32)[1*5+1] = 1
	})
	assert.True(t, ZeroMargins(border, 1))
	assert.False(t, ZeroMargins(border, 2))
}

func TestTransposeFlips(t *testing.T) {
	in := tensors.FromValue([][]float32{{1, 2, 3}, {4, 5, 6}})

	transposed := Transpose(in)
	require.Equal(t, []int{3, 2}, transposed.Shape().Dimensions)
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, flat32(t, transposed))

	assert.Equal(t, []float32{3, 2, 1, 6, 5, 4}, flat32(t, FlipLR(in)))
	assert.Equal(t, []float32{4, 5, 6, 1, 2, 3}, flat32(t, FlipUD(in)))
}

func TestRot90(t *testing.T) {
	in := tensors.FromValue([][]float32{{1, 2, 3}, {4, 5, 6}})

	k1 := Rot90(in, 1)
	require.Equal(t, []int{3, 2}, k1.Shape().Dimensions)
	assert.Equal(t, []float32{3, 6, 2, 5, 1, 4}, flat32(t, k1))

	k2 := Rot90(in, 2)
	require.Equal(t, []int{2, 3}, k2.Shape().Dimensions)
	assert.Equal(t, []float32{6, 5, 4, 3, 2, 1}, flat32(t, k2))

	// Four quarter-turns are the identity, negative turns wrap.
	assert.Equal(t, flat32(t, in), flat32(t, Rot90(in, 4)))
	assert.Equal(t, flat32(t, k1), flat32(t, Rot90(in, -3)))
}

func TestRot90KeepsChannelsTogether(t *testing.T) {
	in := tensors.FromValue([][][]float32{
		{{1, 10}, {2, 20}},
		{{3, 30}, {4, 40}},
	})
	got := Rot90(in, 1)
	require.Equal(t, []int{2, 2, 2}, got.Shape().Dimensions)
	assert.Equal(t, []float32{2, 20, 4, 40, 1, 10, 3, 30}, flat32(t, got))
}

func TestPatch(t *testing.T) {
	in := tensors.FromValue([][]float32{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}})
	got := Patch(in, Rect{Y0: 1, X0: 0, Y1: 3, X1: 2})
	require.Equal(t, []int{2, 2}, got.Shape().Dimensions)
	assert.Equal(t, []float32{4, 5, 7, 8}, flat32(t, got))

	assert.Panics(t, func() { Patch(in, Rect{Y0: 0, X0: 0, Y1: 4, X1: 2}) })
}

func TestShift(t *testing.T) {
	in := tensors.FromValue([][]float32{{1, 2}, {3, 4}})
	assert.Equal(t, []float32{0, 0, 0, 1}, flat32(t, Shift(in, 1, 1)))
	assert.Equal(t, []float32{2, 0, 4, 0}, flat32(t, Shift(in, 0, -1)))
	assert.Equal(t, []float32{0, 0, 0, 0}, flat32(t, Shift(in, 2, 0)))
	assert.Equal(t, []float32{1, 2, 3, 4}, flat32(t, Shift(in, 0, 0)))
}

func TestCopyPasteRegion(t *testing.T) {
	srcRect, dstRect := CopyPasteRegion(
		[2]int{4, 4}, [2]int{6, 6},
		[2]int{2, 2}, [2]int{3, 3},
		[2]int{4, 4})
	assert.Equal(t, Rect{Y0: 0, X0: 0, Y1: 4, X1: 4}, srcRect)
	assert.Equal(t, Rect{Y0: 1, X0: 1, Y1: 5, X1: 5}, dstRect)

	// A region larger than the source is clipped on both arrays alike.
	srcRect, dstRect = CopyPasteRegion(
		[2]int{2, 2}, [2]int{4, 4},
		[2]int{1, 1}, [2]int{2, 2},
		[2]int{10, 10})
	assert.Equal(t, srcRect.Y1-srcRect.Y0, dstRect.Y1-dstRect.Y0)
	assert.Equal(t, Rect{Y0: 0, X0: 0, Y1: 2, X1: 2}, srcRect)
}

func TestResizeCenter(t *testing.T) {
	in := tensors.FromValue([][]float32{{1, 2}, {3, 4}})

	padded := ResizeCenter(in, 4, 4)
	require.Equal(t, []int{4, 4}, padded.Shape().Dimensions)
	assert.Equal(t, []float32{
		0, 0, 0, 0,
		0, 1, 2, 0,
		0, 3, 4, 0,
		0, 0, 0, 0,
	}, flat32(t, padded))

	cropped := ResizeCenter(padded, 2, 2)
	assert.Equal(t, flat32(t, in), flat32(t, cropped))
}

func TestRotateQuarterTurnMatchesRot90(t *testing.T) {
	in := tensors.FromValue([][]float32{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}})
	want := flat32(t, Rot90(in, 1))
	got := flat32(t, Rotate(in, 90, Bilinear))
	require.Len(t, got, len(want))
	for ii := range want {
		assert.InDelta(t, want[ii], got[ii], 1e-4)
	}
}

func TestRotateZeroIsIdentity(t *testing.T) {
	in := tensors.FromValue([][]float32{{1, 2}, {3, 4}})
	assert.Equal(t, flat32(t, in), flat32(t, Rotate(in, 0, Nearest)))
}

func TestZoom(t *testing.T) {
	in := tensors.FromValue([][]float32{{1, 2}, {3, 4}})
	got := Zoom(in, 2, 2, Nearest)
	require.Equal(t, []int{4, 4}, got.Shape().Dimensions)
	assert.Equal(t, []float32{
		1, 1, 2, 2,
		1, 1, 2, 2,
		3, 3, 4, 4,
		3, 3, 4, 4,
	}, flat32(t, got))

	down := Zoom(got, 0.5, 0.5, Bilinear)
	require.Equal(t, []int{2, 2}, down.Shape().Dimensions)
	assert.Equal(t, flat32(t, in), flat32(t, down))
}

func TestMapCoordinates(t *testing.T) {
	in := tensors.FromValue([][]float32{{1, 2}, {3, 4}})
	dy := []float64{1, 1, 1, 1}
	dx := []float64{0, 0, 0, 0}
	got := MapCoordinates(in, dy, dx, Nearest)
	assert.Equal(t, []float32{3, 4, 0, 0}, flat32(t, got))

	// Zero field is the identity.
	zero := make([]float64, 4)
	assert.Equal(t, flat32(t, in), flat32(t, MapCoordinates(in, zero, zero, Bilinear)))
}

func TestResizeField(t *testing.T) {
	field := []float64{0, 1, 2, 3}
	got := ResizeField(field, 2, 2, 3, 3)
	want := []float64{0, 0.5, 1, 1, 1.5, 2, 2, 2.5, 3}
	require.Len(t, got, len(want))
	for ii := range want {
		assert.InDelta(t, want[ii], got[ii], 1e-9)
	}
}

func TestFrequencyFilter(t *testing.T) {
	in := tensors.FromValue([][]float32{{1, 2, 3, 4}, {5, 6, 7, 8}, {9, 10, 11, 12}, {13, 14, 15, 16}})

	keepAll := make([]bool, 16)
	for ii := range keepAll {
		keepAll[ii] = true
	}
	got := flat32(t, FrequencyFilter(in, keepAll))
	want := flat32(t, in)
	for ii := range want {
		assert.InDelta(t, want[ii], got[ii], 1e-4)
	}

	keepNone := make([]bool, 16)
	for _, v := range flat32(t, FrequencyFilter(in, keepNone)) {
		assert.Zero(t, v)
	}
}

func TestMaxValue(t *testing.T) {
	mixed := tensors.FromFlatDataAndDimensions([]float32{-3, -1, 2, 0}, 2, 2)
	assert.Equal(t, 2.0, MaxValue(mixed))

	// All-negative stays negative: MaxValue is signed, unlike MaxAbs.
	negative := tensors.FromFlatDataAndDimensions([]float32{-3, -1, -2, -5}, 2, 2)
	assert.Equal(t, -1.0, MaxValue(negative))
	assert.Equal(t, 3.0, MaxAbs(negative))
	assert.False(t, IsZero(negative))
}

func TestStack(t *testing.T) {
	a := tensors.FromValue([][]float32{{1, 2}, {3, 4}})
	b := tensors.FromValue([][]float32{{5, 6}, {7, 8}})
	got := Stack([]*tensors.Tensor{a, b})
	require.Equal(t, []int{2, 2, 2}, got.Shape().Dimensions)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6, 7, 8}, flat32(t, got))

	mismatched := tensors.FromValue([]float32{1, 2})
	assert.Panics(t, func() { Stack([]*tensors.Tensor{a, mismatched}) })
}

func TestUnsupportedDTypePanics(t *testing.T) {
	ints := tensors.FromValue([][]int32{{1, 2}, {3, 4}})
	assert.Panics(t, func() { Transpose(ints) })
	assert.Panics(t, func() { ZeroMargins(ints, 1) })
}
