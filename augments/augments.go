// Package augments implements randomized data augmentation for image and
// segmentation-mask tensors, composed from small transform samplers.
//
// An Augmenter wraps a Sampler, which draws one concrete Transform per
// application. The same Transform is applied to every selected input array,
// so an image and its mask always receive the same geometry. Augmenters apply
// with a configurable probability, to a configurable subset of the inputs,
// and optionally re-sample until a transformed segmentation mask keeps its
// foreground clear of the array borders.
//
// Arrays are CPU-resident `*tensors.Tensor` values of dtype Float32 or
// Float64, shaped `[height, width]` or `[height, width, channels...]`. Inputs
// are never mutated.
package augments

import (
	"math/rand"

	. "github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/tensors"

	"github.com/segkit/segkit/ndimage"
)

// Transform is one concrete sampled modification, applied to any number of
// arrays. Implementations must be pure: same input, same output, input left
// untouched.
type Transform func(*tensors.Tensor) *tensors.Tensor

// Sampler draws a random Transform for the given input set. The inputs are
// only consulted for their shapes.
type Sampler func(rng *rand.Rand, arrs []*tensors.Tensor) Transform

// Identity returns its input unchanged. It is what a margin-checked Augmenter
// falls back to when no acceptable Transform is found.
func Identity(t *tensors.Tensor) *tensors.Tensor { return t }

const (
	// DefaultProb is the probability an Augmenter applies at all.
	DefaultProb = 0.5
	// DefaultMargin is the border width a segment-margin check requires to
	// stay zero.
	DefaultMargin = 5
	// DefaultMarginTries bounds the re-sampling of a margin-checked
	// Augmenter before it falls back to the identity.
	DefaultMarginTries = 5
)

// Augmenter applies a randomly sampled Transform to a set of arrays.
// Configure it with the With* methods, which return the Augmenter for
// chaining, then call Apply.
type Augmenter struct {
	name    string
	sampler Sampler
	prob    float64

	// applyIndices selects which inputs get transformed; nil means all.
	applyIndices []int

	// Segment-margin check, disabled while maskIndex stays negativeOff.
	maskIndex int
	margin    int
	maxTries  int
}

const negativeOff = -1 << 30

// New creates an Augmenter from a Sampler. It applies with probability
// DefaultProb to all inputs and performs no margin check.
func New(name string, sampler Sampler) *Augmenter {
	return &Augmenter{
		name:      name,
		sampler:   sampler,
		prob:      DefaultProb,
		maskIndex: negativeOff,
	}
}

// Name returns the Augmenter's name, used in pipeline configuration and logs.
func (a *Augmenter) Name() string { return a.name }

// WithProb sets the probability, in [0, 1], that Apply transforms at all.
func (a *Augmenter) WithProb(prob float64) *Augmenter {
	if prob < 0 || prob > 1 {
		Panicf("augments.%s: probability must be in [0, 1], got %g", a.name, prob)
	}
	a.prob = prob
	return a
}

// ApplyTo restricts the transform to the inputs at the given positions; the
// remaining inputs pass through untouched. Negative positions count from the
// end.
func (a *Augmenter) ApplyTo(indices ...int) *Augmenter {
	a.applyIndices = indices
	return a
}

// WithSegmentMargin enables re-sampling against the segmentation mask at
// maskIndex (negative counts from the end): the sampled Transform is accepted
// only if the transformed mask keeps a zero border of the given margin, and
// after maxTries rejections Apply falls back to the identity. Values below 1
// are raised to 1.
func (a *Augmenter) WithSegmentMargin(maskIndex, margin, maxTries int) *Augmenter {
	a.maskIndex = maskIndex
	a.margin = max(margin, 1)
	a.maxTries = max(maxTries, 1)
	return a
}

// resolveIndex maps a possibly negative position onto [0, n).
func resolveIndex(name string, index, n int) int {
	resolved := index
	if resolved < 0 {
		resolved += n
	}
	if resolved < 0 || resolved >= n {
		Panicf("augments.%s: index %d out of range for %d arrays", name, index, n)
	}
	return resolved
}

// Apply draws one Transform and applies it to the selected arrays, returning
// a new slice. Unselected arrays are passed through as-is; inputs are never
// mutated. With probability 1-prob no transform happens and all arrays pass
// through.
func (a *Augmenter) Apply(rng *rand.Rand, arrs ...*tensors.Tensor) []*tensors.Tensor {
	if len(arrs) == 0 {
		Panicf("augments.%s: no arrays to augment", a.name)
	}
	selected := a.selectedIndices(len(arrs))
	a.checkShapes(arrs, selected)

	out := make([]*tensors.Tensor, len(arrs))
	copy(out, arrs)
	if rng.Float64() > a.prob {
		return out
	}

	transform := a.sample(rng, arrs)
	for _, index := range selected {
		out[index] = transform(arrs[index])
	}
	return out
}

// sample draws a Transform, re-sampling under the segment-margin check.
func (a *Augmenter) sample(rng *rand.Rand, arrs []*tensors.Tensor) Transform {
	if a.maskIndex == negativeOff {
		return a.sampler(rng, arrs)
	}
	mask := arrs[resolveIndex(a.name, a.maskIndex, len(arrs))]
	for try := 0; try < a.maxTries; try++ {
		transform := a.sampler(rng, arrs)
		if ndimage.ZeroMargins(transform(mask), a.margin) {
			return transform
		}
	}
	return Identity
}

func (a *Augmenter) selectedIndices(n int) []int {
	if a.applyIndices == nil {
		selected := make([]int, n)
		for ii := range selected {
			selected[ii] = ii
		}
		return selected
	}
	selected := make([]int, len(a.applyIndices))
	for ii, index := range a.applyIndices {
		selected[ii] = resolveIndex(a.name, index, n)
	}
	return selected
}

// checkShapes panics unless all selected arrays share their spatial dims, so
// one sampled geometry fits them all.
func (a *Augmenter) checkShapes(arrs []*tensors.Tensor, selected []int) {
	if len(selected) == 0 {
		return
	}
	first := arrs[selected[0]].Shape().Dimensions
	if len(first) < 2 {
		Panicf("augments.%s: arrays must have rank >= 2, got shape %s", a.name, arrs[selected[0]].Shape())
	}
	for _, index := range selected[1:] {
		dims := arrs[index].Shape().Dimensions
		if len(dims) < 2 || dims[0] != first[0] || dims[1] != first[1] {
			Panicf("augments.%s: array %d shaped %s, want spatial dims [%d, %d]",
				a.name, index, arrs[index].Shape(), first[0], first[1])
		}
	}
}

// Pipeline applies augmenters in order, each receiving the previous outputs.
type Pipeline []*Augmenter

// Apply runs the pipeline over the arrays.
func (p Pipeline) Apply(rng *rand.Rand, arrs ...*tensors.Tensor) []*tensors.Tensor {
	out := arrs
	for _, augmenter := range p {
		out = augmenter.Apply(rng, out...)
	}
	return out
}
