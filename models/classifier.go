package models

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
)

func classifierGraph(ctx *context.Context, x *Node, numClasses int, channels, strides []int, unit unitFn) *Node {
	x.AssertRank(4)
	layerNum := 0
	nextCtx := func(format string, args ...any) *context.Context {
		scopedCtx := ctx.Inf("%03d-"+format, append([]any{layerNum}, args...)...)
		layerNum++
		return scopedCtx
	}
	for level := range channels {
		x = unit(nextCtx("encode_%d", level), x, channels[level], strides[level])
	}
	flat := Reshape(x, x.Shape().Dim(0), -1)
	return layers.Dense(nextCtx("readout"), flat, true, numClasses)
}

// ResidualClassifierGraph builds an image classifier: a stack of strided
// ResidualUnits flattened into a dense readout. It returns `[batch,
// numClasses]` logits.
func ResidualClassifierGraph(ctx *context.Context, x *Node, numClasses int, channels, strides []int) *Node {
	checkLevels("ResidualClassifierGraph", channels, strides)
	return classifierGraph(ctx, x, numClasses, channels, strides, ResidualUnit)
}

// BranchClassifierGraph is ResidualClassifierGraph with ResidualBranchUnit
// stages running the given kernel-size branches in parallel.
func BranchClassifierGraph(ctx *context.Context, x *Node, numClasses int, channels, strides []int, branches [][]int) *Node {
	checkLevels("BranchClassifierGraph", channels, strides)
	return classifierGraph(ctx, x, numClasses, channels, strides,
		func(ctx *context.Context, x *Node, channels, strides int) *Node {
			return ResidualBranchUnit(ctx, x, channels, strides, branches)
		})
}
