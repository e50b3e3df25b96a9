// Package losses implements loss functions for segmentation and
// variational-autoencoder training, with the train.LossFn signature so they
// plug directly into a Trainer.
package losses

import (
	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/dtypes"

	gomlxlosses "github.com/gomlx/gomlx/pkg/ml/train/losses"
)

var (
	_ gomlxlosses.LossFn = Dice
	_ gomlxlosses.LossFn = VAE
)

// DefaultSmooth is the smoothing constant added to the Dice numerator and
// denominator, keeping the gradient finite on empty masks.
const DefaultSmooth = 1e-5

// Dice is MakeDiceLoss(DefaultSmooth).
func Dice(labels, predictions []*Node) *Node {
	return MakeDiceLoss(DefaultSmooth)(labels, predictions)
}

// MakeDiceLoss returns a soft Dice loss function.
//
// predictions[0] are logits shaped `[batch, ..., numClasses]` (channels
// last); labels[0] is an integer class map shaped `[batch, ..., 1]`. With one
// class the logits go through a sigmoid and labels are used as a binary mask;
// with more classes a softmax is taken and labels are one-hot expanded.
//
// The Dice coefficient is computed per example over all spatial positions
// and classes jointly, and the returned scalar loss is one minus its mean.
func MakeDiceLoss(smooth float64) gomlxlosses.LossFn {
	return func(labels, predictions []*Node) *Node {
		logits := predictions[0]
		labels0 := labels[0]
		if logits.Rank() < 3 {
			Panicf("losses.Dice: predictions must be shaped [batch, ..., numClasses], got %s", logits.Shape())
		}
		if labels0.Rank() != logits.Rank() || labels0.Shape().Dim(-1) != 1 {
			Panicf("losses.Dice: labels must be a class map shaped [batch, ..., 1], got %s for predictions %s",
				labels0.Shape(), logits.Shape())
		}
		g := logits.Graph()
		dtype := logits.DType()
		numClasses := logits.Shape().Dim(-1)

		var probs, target *Node
		if numClasses == 1 {
			probs = Sigmoid(logits)
			target = ConvertDType(labels0, dtype)
		} else {
			if !labels0.DType().IsInt() {
				Panicf("losses.Dice: multiclass labels must be integer, got %s", labels0.DType())
			}
			probs = Softmax(logits)
			target = OneHot(Squeeze(labels0, -1), numClasses, dtype)
		}

		// Per-example reduction over spatial positions and classes.
		perExampleAxes := make([]int, logits.Rank()-1)
		for ii := range perExampleAxes {
			perExampleAxes[ii] = ii + 1
		}
		intersection := ReduceSum(Mul(probs, target), perExampleAxes...)
		sums := Add(ReduceSum(probs, perExampleAxes...), ReduceSum(target, perExampleAxes...))

		smoothC := Const(g, shapes.CastAsDType(smooth, dtype))
		dice := Div(MulScalar(Add(intersection, smoothC), 2), Add(sums, smoothC))
		return OneMinus(ReduceAllMean(dice))
	}
}

// ReconstructionFn scores a decoded output against the encoder input. The
// returned Node must be a scalar.
type ReconstructionFn func(target, reconstruction *Node) *Node

// VAE is MakeVAELoss(SummedBinaryCrossentropy).
func VAE(labels, predictions []*Node) *Node {
	return MakeVAELoss(SummedBinaryCrossentropy)(labels, predictions)
}

// MakeVAELoss returns a variational-autoencoder loss: the given
// reconstruction term plus the KL divergence of the approximate posterior
// from the unit Gaussian.
//
// predictions must start with [reconstruction, mu, logVar] (further entries,
// like the sampled latent, are ignored); labels[0] is the reconstruction
// target, usually the model input with values in [0, 1].
func MakeVAELoss(reconstruction ReconstructionFn) gomlxlosses.LossFn {
	return func(labels, predictions []*Node) *Node {
		if len(predictions) < 3 {
			Panicf("losses.VAE: predictions must be [reconstruction, mu, logVar, ...], got %d nodes", len(predictions))
		}
		recon, mu, logVar := predictions[0], predictions[1], predictions[2]
		target := labels[0]
		if !target.Shape().Equal(recon.Shape()) {
			Panicf("losses.VAE: target shaped %s, reconstruction shaped %s", target.Shape(), recon.Shape())
		}
		if !mu.Shape().Equal(logVar.Shape()) {
			Panicf("losses.VAE: mu shaped %s, logVar shaped %s", mu.Shape(), logVar.Shape())
		}
		kld := Add(OnesLike(logVar), logVar)
		kld = Sub(kld, Mul(mu, mu))
		kld = Sub(kld, Exp(logVar))
		return Add(reconstruction(target, recon), MulScalar(ReduceAllSum(kld), -0.5))
	}
}

// SummedBinaryCrossentropy is the usual VAE reconstruction term: binary
// cross-entropy of the (sigmoid-activated) reconstruction against the
// target, summed over the whole batch.
func SummedBinaryCrossentropy(target, reconstruction *Node) *Node {
	g := reconstruction.Graph()
	epsilon := epsilonForDType(g, reconstruction.DType())
	clipped := Clip(reconstruction, epsilon, OneMinus(epsilon))
	bce := Add(
		Mul(target, Log(clipped)),
		Mul(OneMinus(target), Log(OneMinus(clipped))))
	return Neg(ReduceAllSum(bce))
}

func epsilonForDType(g *Graph, dtype dtypes.DType) *Node {
	var epsilon float64
	switch dtype {
	case dtypes.Float64:
		epsilon = 1e-8
	case dtypes.Float32:
		epsilon = 1e-7
	case dtypes.Float16:
		epsilon = 1e-4
	default:
		Panicf("losses: no epsilon for dtype %s", dtype)
	}
	return Const(g, shapes.CastAsDType(epsilon, dtype))
}
