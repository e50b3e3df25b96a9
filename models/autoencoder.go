package models

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
)

// decodeStage reverses one encoder level: a 2x up-sample and convolution when
// the encoder level was strided, then a residual unit.
func decodeStage(ctx *context.Context, x *Node, channels, strides int, unit unitFn) *Node {
	if strides == 2 {
		x = upSample2x(x)
		kernelSize := context.GetParamOr(ctx, ParamKernelSize, 3)
		x = layers.Convolution(ctx.In("up"), x).Channels(channels).KernelSize(kernelSize).PadSame().Done()
	}
	return unit(ctx, x, channels, 1)
}

// AutoEncoderGraph builds a convolutional autoencoder: an encoder of strided
// ResidualUnits and a mirrored decoder of up-sampling stages, without skip
// connections, ending in a linear 1x1 readout with outChannels channels.
func AutoEncoderGraph(ctx *context.Context, x *Node, outChannels int, channels, strides []int) *Node {
	checkLevels("AutoEncoderGraph", channels, strides)
	x.AssertRank(4)
	layerNum := 0
	nextCtx := func(format string, args ...any) *context.Context {
		scopedCtx := ctx.Inf("%03d-"+format, append([]any{layerNum}, args...)...)
		layerNum++
		return scopedCtx
	}

	for level := range channels {
		x = ResidualUnit(nextCtx("encode_%d", level), x, channels[level], strides[level])
	}
	for level := len(channels) - 1; level >= 0; level-- {
		x = decodeStage(nextCtx("decode_%d", level), x, channels[max(level-1, 0)], strides[level], ResidualUnit)
	}
	return layers.Convolution(nextCtx("readout"), x).
		Channels(outChannels).KernelSize(1).PadSame().Done()
}

// VarAutoEncoderGraph builds a variational autoencoder. The encoder of
// strided ResidualUnits is flattened into dense mu and logVar heads of
// latentSize; the latent is sampled with the reparameterization trick while
// training (and is just mu for inference), decoded back through up-sampling
// stages and squashed with a sigmoid.
//
// It returns the reconstruction (same shape as x, values in [0, 1]), mu,
// logVar and the sampled latent z, in the order losses.VAE expects.
func VarAutoEncoderGraph(ctx *context.Context, x *Node, latentSize int, channels, strides []int) (recon, mu, logVar, z *Node) {
	checkLevels("VarAutoEncoderGraph", channels, strides)
	x.AssertRank(4)
	g := x.Graph()
	inputChannels := x.Shape().Dim(-1)
	layerNum := 0
	nextCtx := func(format string, args ...any) *context.Context {
		scopedCtx := ctx.Inf("%03d-"+format, append([]any{layerNum}, args...)...)
		layerNum++
		return scopedCtx
	}

	for level := range channels {
		x = ResidualUnit(nextCtx("encode_%d", level), x, channels[level], strides[level])
	}
	encodedDims := x.Shape().Dimensions
	batchSize := encodedDims[0]
	flatSize := encodedDims[1] * encodedDims[2] * encodedDims[3]
	flat := Reshape(x, batchSize, flatSize)

	mu = layers.Dense(nextCtx("mu"), flat, true, latentSize)
	logVar = layers.Dense(nextCtx("log_var"), flat, true, latentSize)

	if ctx.IsTraining(g) {
		noise := ctx.RandomNormal(g, mu.Shape())
		z = Add(mu, Mul(Exp(MulScalar(logVar, 0.5)), noise))
	} else {
		z = mu
	}

	y := layers.Dense(nextCtx("project"), z, true, flatSize)
	y = activate(nextCtx("project_activation"), y)
	y = Reshape(y, batchSize, encodedDims[1], encodedDims[2], encodedDims[3])
	for level := len(channels) - 1; level >= 0; level-- {
		y = decodeStage(nextCtx("decode_%d", level), y, channels[max(level-1, 0)], strides[level], ResidualUnit)
	}
	y = layers.Convolution(nextCtx("readout"), y).
		Channels(inputChannels).KernelSize(1).PadSame().Done()
	recon = Sigmoid(y)
	return recon, mu, logVar, z
}
