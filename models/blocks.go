// Package models implements graph-building functions for segmentation and
// reconstruction networks: residual convolution blocks, U-Nets,
// (variational) autoencoders and classifiers.
//
// All functions take channels-last rank-4 inputs `[batch, height, width,
// channels]` and read their hyperparameters from the context, so a model's
// behavior is configured with `ctx.In(...)` scopes and
// `ctx.WithParams`-style settings rather than long argument lists.
package models

import (
	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/gomlx/gomlx/pkg/ml/layers/batchnorm"
)

const (
	// ParamNorm selects the normalization inside conv blocks: "instance"
	// (layer normalization over the spatial axes), "batch" or "none".
	ParamNorm = "conv_norm"

	// ParamDropoutRate is the dropout rate inside conv blocks. 0 disables.
	ParamDropoutRate = "conv_dropout_rate"

	// ParamSubUnits is the number of conv blocks per residual unit.
	ParamSubUnits = "residual_sub_units"

	// ParamKernelSize is the convolution kernel size of conv blocks.
	ParamKernelSize = "conv_kernel_size"
)

// PReLU applies a parametric ReLU with one trainable slope shared by the
// whole layer, initialized to 0.25.
func PReLU(ctx *context.Context, x *Node) *Node {
	g := x.Graph()
	slopeVar := ctx.VariableWithValue("prelu_slope", shapes.CastAsDType(0.25, x.DType()))
	slope := slopeVar.ValueGraph(g)
	return Add(Max(x, ZerosLike(x)), Mul(slope, Min(x, ZerosLike(x))))
}

// normalize applies the ParamNorm normalization for rank-4 images.
func normalize(ctx *context.Context, x *Node) *Node {
	norm := context.GetParamOr(ctx, ParamNorm, "instance")
	switch norm {
	case "instance":
		return layers.LayerNormalization(ctx, x, 1, 2).Done()
	case "batch":
		return batchnorm.New(ctx, x, -1).Done()
	case "none", "":
		return x
	default:
		Panicf("invalid %q setting %q: valid values are instance, batch or none", ParamNorm, norm)
	}
	return x
}

// activate applies PReLU, or the activation configured in the context when
// activations.ParamActivation is set to something else.
func activate(ctx *context.Context, x *Node) *Node {
	if context.GetParamOr(ctx, activations.ParamActivation, "prelu") == "prelu" {
		return PReLU(ctx.In("prelu"), x)
	}
	return activations.ApplyFromContext(ctx, x)
}

// ConvBlock is the basic unit of every model here: a same-padded convolution
// followed by normalization, dropout and activation.
func ConvBlock(ctx *context.Context, x *Node, channels, strides int) *Node {
	x.AssertRank(4)
	kernelSize := context.GetParamOr(ctx, ParamKernelSize, 3)
	x = layers.Convolution(ctx.In("conv"), x).
		Channels(channels).KernelSize(kernelSize).Strides(strides).PadSame().Done()
	x = normalize(ctx.In("norm"), x)
	dropoutRate := context.GetParamOr(ctx, ParamDropoutRate, 0.0)
	if dropoutRate > 0 {
		x = layers.Dropout(ctx.In("dropout"), x, Scalar(x.Graph(), x.DType(), dropoutRate))
	}
	return activate(ctx, x)
}

// convBlockWithKernel is ConvBlock with an explicit kernel size, used by the
// branch units whose branches differ only in their kernels.
func convBlockWithKernel(ctx *context.Context, x *Node, channels, strides, kernelSize int) *Node {
	x = layers.Convolution(ctx.In("conv"), x).
		Channels(channels).KernelSize(kernelSize).Strides(strides).PadSame().Done()
	x = normalize(ctx.In("norm"), x)
	dropoutRate := context.GetParamOr(ctx, ParamDropoutRate, 0.0)
	if dropoutRate > 0 {
		x = layers.Dropout(ctx.In("dropout"), x, Scalar(x.Graph(), x.DType(), dropoutRate))
	}
	return activate(ctx, x)
}

// residualProjection matches the residual path to the output shape: identity
// when shapes already agree, otherwise a 1x1 (strided) convolution.
func residualProjection(ctx *context.Context, residual, x *Node, strides int) *Node {
	if residual.Shape().Equal(x.Shape()) {
		return residual
	}
	return layers.Convolution(ctx.In("projection"), residual).
		Channels(x.Shape().Dim(-1)).KernelSize(1).Strides(strides).PadSame().Done()
}

// ResidualUnit stacks ParamSubUnits conv blocks, the first one strided, and
// adds a projected residual connection around them.
func ResidualUnit(ctx *context.Context, x *Node, channels, strides int) *Node {
	x.AssertRank(4)
	residual := x
	subUnits := context.GetParamOr(ctx, ParamSubUnits, 2)
	for ii := 0; ii < subUnits; ii++ {
		subStrides := 1
		if ii == 0 {
			subStrides = strides
		}
		x = ConvBlock(ctx.Inf("%03d-block", ii), x, channels, subStrides)
	}
	return Add(x, residualProjection(ctx, residual, x, strides))
}

// ResidualBranchUnit runs parallel branches of conv blocks over the same
// input, one block per kernel size listed for the branch, concatenates the
// branch outputs and projects them back to channels with a 1x1 convolution,
// plus a projected residual connection.
func ResidualBranchUnit(ctx *context.Context, x *Node, channels, strides int, branches [][]int) *Node {
	x.AssertRank(4)
	if len(branches) == 0 {
		Panicf("models.ResidualBranchUnit: at least one branch required")
	}
	residual := x
	outputs := make([]*Node, 0, len(branches))
	for branchIdx, kernels := range branches {
		if len(kernels) == 0 {
			Panicf("models.ResidualBranchUnit: branch %d has no kernel sizes", branchIdx)
		}
		branch := x
		branchCtx := ctx.Inf("%03d-branch", branchIdx)
		for ii, kernelSize := range kernels {
			subStrides := 1
			if ii == 0 {
				subStrides = strides
			}
			branch = convBlockWithKernel(branchCtx.Inf("%03d-block", ii), branch, channels, subStrides, kernelSize)
		}
		outputs = append(outputs, branch)
	}
	x = Concatenate(outputs, -1)
	x = layers.Convolution(ctx.In("resize"), x).Channels(channels).KernelSize(1).PadSame().Done()
	return Add(x, residualProjection(ctx, residual, x, strides))
}

// upSample2x doubles the spatial dimensions by duplicating pixels.
func upSample2x(x *Node) *Node {
	dims := x.Shape().Dimensions
	batchSize, height, width, channels := dims[0], dims[1], dims[2], dims[3]
	up := Concatenate([]*Node{x, x}, 3)
	up = Reshape(up, batchSize, height, 2*width, channels)
	up = Concatenate([]*Node{up, up}, 2)
	return Reshape(up, batchSize, 2*height, 2*width, channels)
}

// UpSampleConcat doubles the spatial size of x with a nearest up-sample
// followed by a same-padded convolution, then concatenates the skip tensor on
// the channels axis. The up-sampled x must match the skip's spatial dims.
func UpSampleConcat(ctx *context.Context, x, skip *Node, channels int) *Node {
	x.AssertRank(4)
	skip.AssertRank(4)
	x = upSample2x(x)
	kernelSize := context.GetParamOr(ctx, ParamKernelSize, 3)
	x = layers.Convolution(ctx.In("conv"), x).Channels(channels).KernelSize(kernelSize).PadSame().Done()
	if x.Shape().Dim(1) != skip.Shape().Dim(1) || x.Shape().Dim(2) != skip.Shape().Dim(2) {
		Panicf("models.UpSampleConcat: up-sampled x shaped %s does not match skip %s", x.Shape(), skip.Shape())
	}
	return Concatenate([]*Node{x, skip}, -1)
}
