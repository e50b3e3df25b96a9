package models

import (
	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
)

// unitFn builds one residual stage; it abstracts over ResidualUnit and
// ResidualBranchUnit so the two U-Net variants share their wiring.
type unitFn func(ctx *context.Context, x *Node, channels, strides int) *Node

func checkLevels(name string, channels, strides []int) {
	if len(channels) == 0 {
		Panicf("models.%s: at least one level of channels required", name)
	}
	if len(channels) != len(strides) {
		Panicf("models.%s: %d channels levels but %d strides", name, len(channels), len(strides))
	}
	for _, s := range strides {
		if s != 1 && s != 2 {
			Panicf("models.%s: strides must be 1 or 2, got %v", name, strides)
		}
	}
}

// unetGraph wires the symmetric encoder/decoder with skip connections.
func unetGraph(ctx *context.Context, x *Node, numClasses int, channels, strides []int, unit unitFn) (logits, preds *Node) {
	x.AssertRank(4)
	layerNum := 0
	nextCtx := func(format string, args ...any) *context.Context {
		scopedCtx := ctx.Inf("%03d-"+format, append([]any{layerNum}, args...)...)
		layerNum++
		return scopedCtx
	}

	// Encoder, remembering the input of each level for the skip connections.
	skips := make([]*Node, 0, len(channels))
	for level := range channels {
		skips = append(skips, x)
		x = unit(nextCtx("encode_%d", level), x, channels[level], strides[level])
	}

	// Decoder, mirrored.
	for level := len(channels) - 1; level >= 0; level-- {
		skip := skips[level]
		decodeCtx := nextCtx("decode_%d", level)
		outChannels := channels[max(level-1, 0)]
		if strides[level] == 2 {
			x = UpSampleConcat(decodeCtx.In("up"), x, skip, outChannels)
		} else {
			x = Concatenate([]*Node{x, skip}, -1)
		}
		x = unit(decodeCtx, x, outChannels, 1)
	}

	logits = layers.Convolution(nextCtx("readout"), x).
		Channels(numClasses).KernelSize(1).PadSame().Done()
	return logits, PredsFromLogits(logits)
}

// PredsFromLogits collapses channels-last logits to a `[batch, height,
// width]` class map: argmax over classes, or a sign threshold when there is
// only one class.
func PredsFromLogits(logits *Node) *Node {
	if logits.Shape().Dim(-1) == 1 {
		zero := ScalarZero(logits.Graph(), logits.DType())
		return ConvertDType(Squeeze(GreaterOrEqual(logits, zero), -1), dtypes.Int32)
	}
	return ArgMax(logits, -1, dtypes.Int32)
}

// UNetGraph builds a U-Net of ResidualUnits: an encoder of strided residual
// stages and a mirrored decoder whose stages up-sample and concatenate the
// matching encoder input. channels and strides configure one level each.
//
// It returns the per-pixel class logits `[batch, height, width, numClasses]`
// and the hard predictions from PredsFromLogits.
func UNetGraph(ctx *context.Context, x *Node, numClasses int, channels, strides []int) (logits, preds *Node) {
	checkLevels("UNetGraph", channels, strides)
	return unetGraph(ctx, x, numClasses, channels, strides, ResidualUnit)
}

// BranchUNetGraph is UNetGraph with ResidualBranchUnit stages: every stage
// runs the given kernel-size branches in parallel.
func BranchUNetGraph(ctx *context.Context, x *Node, numClasses int, channels, strides []int, branches [][]int) (logits, preds *Node) {
	checkLevels("BranchUNetGraph", channels, strides)
	return unetGraph(ctx, x, numClasses, channels, strides,
		func(ctx *context.Context, x *Node, channels, strides int) *Node {
			return ResidualBranchUnit(ctx, x, channels, strides, branches)
		})
}
