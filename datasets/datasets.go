// Package datasets feeds (image, segmentation-mask) pairs into training
// loops: an in-memory train.Dataset that runs an augmentation pipeline per
// example, image-directory loading, and pre-generation of augmented epochs
// into a flat binary file that streams back as a train.Dataset.
package datasets

import (
	"io"
	"math/rand"
	"sync"

	. "github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/train"

	"github.com/segkit/segkit/augments"
	"github.com/segkit/segkit/ndimage"
)

// Dataset is an in-memory train.Dataset of (image, mask) tensor pairs.
// Images are shaped `[height, width, channels]` and masks `[height, width]`
// with float class values, all pairs alike.
type Dataset struct {
	name          string
	images, masks []*tensors.Tensor
	batchSize     int
	infinite      bool
	shuffle       bool
	rng           *rand.Rand
	pipeline      augments.Pipeline
	numClasses    int

	mu        sync.Mutex
	selection []int
	next      int
}

// Assert Dataset implements train.Dataset.
var _ train.Dataset = &Dataset{}

// New creates a Dataset over the given pairs. rng drives both shuffling and
// the augmentation pipeline; it may be nil when neither is configured.
//
// By default the dataset yields each pair once per epoch, in order, with no
// augmentation. Configure with the With* methods.
func New(name string, images, masks []*tensors.Tensor, batchSize int, rng *rand.Rand) *Dataset {
	if len(images) == 0 || len(images) != len(masks) {
		Panicf("datasets.New: %d images and %d masks, want equal and non-zero", len(images), len(masks))
	}
	if batchSize < 1 || batchSize > len(images) {
		Panicf("datasets.New: batch size %d invalid for %d examples", batchSize, len(images))
	}
	ds := &Dataset{
		name:      name,
		images:    images,
		masks:     masks,
		batchSize: batchSize,
		rng:       rng,
	}
	ds.Reset()
	return ds
}

// Name implements train.Dataset.
func (ds *Dataset) Name() string { return ds.name }

// WithInfinite makes Yield loop forever instead of returning io.EOF at the
// end of an epoch.
func (ds *Dataset) WithInfinite(infinite bool) *Dataset {
	ds.infinite = infinite
	return ds
}

// WithShuffle reshuffles the example order on every Reset.
func (ds *Dataset) WithShuffle() *Dataset {
	if ds.rng == nil {
		Panicf("datasets: WithShuffle requires a non-nil rng in New")
	}
	ds.shuffle = true
	ds.Reset()
	return ds
}

// WithPipeline augments every yielded pair with the pipeline, image and mask
// together so they receive the same geometry.
func (ds *Dataset) WithPipeline(pipeline augments.Pipeline) *Dataset {
	if ds.rng == nil {
		Panicf("datasets: WithPipeline requires a non-nil rng in New")
	}
	ds.pipeline = pipeline
	return ds
}

// WithOneHotMasks one-hot expands the yielded masks into numClasses channels
// (after augmentation), for losses that want per-class mask planes. Save
// always writes the plain label maps.
func (ds *Dataset) WithOneHotMasks(numClasses int) *Dataset {
	if numClasses < 1 {
		Panicf("datasets: WithOneHotMasks needs numClasses >= 1, got %d", numClasses)
	}
	ds.numClasses = numClasses
	return ds
}

// nextIndices picks the next batch of example positions, or io.EOF when the
// epoch is exhausted on a finite dataset. It also seeds a child rng for the
// batch: Yield runs concurrently under gomlx's parallel dataset wrapper, and
// the shared rng must only be touched under the lock.
func (ds *Dataset) nextIndices() ([]int, *rand.Rand, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	indices := make([]int, 0, ds.batchSize)
	for len(indices) < ds.batchSize {
		if ds.next >= len(ds.selection) {
			if !ds.infinite {
				return nil, nil, io.EOF
			}
			ds.resetLocked()
		}
		indices = append(indices, ds.selection[ds.next])
		ds.next++
	}
	var rng *rand.Rand
	if ds.rng != nil {
		rng = rand.New(rand.NewSource(ds.rng.Int63()))
	}
	return indices, rng, nil
}

// exampleWith augments one pair with the given rng. Yield and Save both run
// it from several goroutines, each with its own child rng.
func (ds *Dataset) exampleWith(rng *rand.Rand, index int) (image, mask *tensors.Tensor) {
	arrs := []*tensors.Tensor{ds.images[index], ds.masks[index]}
	if ds.pipeline != nil {
		arrs = ds.pipeline.Apply(rng, arrs...)
	}
	return arrs[0], arrs[1]
}

// Yield implements train.Dataset. It returns the batched images as the one
// input tensor and the batched masks as the one label tensor. Safe for
// concurrent use.
func (ds *Dataset) Yield() (spec any, inputs, labels []*tensors.Tensor, err error) {
	indices, rng, err := ds.nextIndices()
	if err != nil {
		return nil, nil, nil, err
	}
	images := make([]*tensors.Tensor, 0, len(indices))
	masks := make([]*tensors.Tensor, 0, len(indices))
	for _, index := range indices {
		image, mask := ds.exampleWith(rng, index)
		if ds.numClasses > 0 {
			mask = ndimage.OneHot(mask, ds.numClasses)
		}
		images = append(images, image)
		masks = append(masks, mask)
	}
	spec = ds
	inputs = []*tensors.Tensor{ndimage.Stack(images)}
	labels = []*tensors.Tensor{ndimage.Stack(masks)}
	return
}

// Reset implements train.Dataset, restarting (and reshuffling) the epoch.
func (ds *Dataset) Reset() {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.resetLocked()
}

func (ds *Dataset) resetLocked() {
	if ds.selection == nil {
		ds.selection = make([]int, len(ds.images))
		for ii := range ds.selection {
			ds.selection[ii] = ii
		}
	}
	if ds.shuffle {
		ds.rng.Shuffle(len(ds.selection), func(i, j int) {
			ds.selection[i], ds.selection[j] = ds.selection[j], ds.selection[i]
		})
	}
	ds.next = 0
}

// NumExamples returns the number of pairs in the dataset.
func (ds *Dataset) NumExamples() int { return len(ds.images) }
