package datasets

import (
	"io"
	"math"
	"math/rand"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// Pre-generated files hold fixed-size entries with no header: per example,
// height*width*channels image bytes (channel values scaled to 0..255)
// followed by height*width mask bytes (class indices). Augmentation runs at
// generation time, so reading an epoch back is pure I/O.

// Save runs the dataset for numEpochs epochs, augmenting each pair, and
// writes the entries to writer. Generation is parallelized; entry order
// within an epoch is not deterministic. The dataset must be finite.
func (ds *Dataset) Save(numEpochs int, verbose bool, writer io.Writer) error {
	if ds.infinite {
		return errors.Errorf("dataset %q is configured infinite, cannot save it for %d epochs", ds.name, numEpochs)
	}
	if numEpochs < 1 {
		return errors.Errorf("cannot save dataset %q for %d epochs", ds.name, numEpochs)
	}
	numExamples := numEpochs * ds.NumExamples()

	var pBar *progressbar.ProgressBar
	if verbose {
		pBar = progressbar.NewOptions(numExamples,
			progressbar.OptionSetDescription("Pre-generating"),
			progressbar.OptionUseANSICodes(true),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("pairs"),
			progressbar.OptionSetTheme(progressbar.ThemeUnicode),
		)
	}

	var muWrite sync.Mutex
	written := 0
	lastUpdate := time.Now()
	group := &errgroup.Group{}
	group.SetLimit(runtime.NumCPU() + 1)
	for epoch := 0; epoch < numEpochs; epoch++ {
		ds.Reset()
		order := make([]int, len(ds.selection))
		copy(order, ds.selection)
		for _, index := range order {
			var seed int64
			if ds.rng != nil {
				seed = ds.rng.Int63()
			}
			group.Go(func() error {
				var rng *rand.Rand
				if ds.rng != nil {
					rng = rand.New(rand.NewSource(seed))
				}
				image, mask := ds.exampleWith(rng, index)
				entry := appendEntry(make([]byte, 0, entryBytes(image.Shape().Dimensions)), image, mask)

				muWrite.Lock()
				defer muWrite.Unlock()
				if _, err := writer.Write(entry); err != nil {
					return errors.Wrapf(err, "failed to write entry of dataset %q", ds.name)
				}
				written++
				if pBar != nil && (time.Since(lastUpdate) > 250*time.Millisecond || written == numExamples) {
					lastUpdate = time.Now()
					if err := pBar.Set(written); err != nil {
						return errors.Wrapf(err, "progress bar failed")
					}
				}
				return nil
			})
		}
	}
	if err := group.Wait(); err != nil {
		return err
	}
	if pBar != nil {
		_ = pBar.Close()
	}
	imageDims := ds.images[0].Shape().Dimensions
	klog.V(1).Infof("saved %d pairs of dataset %q, %s",
		numExamples, ds.name, humanize.Bytes(uint64(numExamples*entryBytes(imageDims))))
	return nil
}

// entryBytes is the serialized size of one (image, mask) pair, for image
// dimensions `[height, width, channels]`.
func entryBytes(imageDims []int) int {
	size := 1
	for _, dim := range imageDims {
		size *= dim
	}
	return size + imageDims[0]*imageDims[1]
}

func appendEntry(entry []byte, image, mask *tensors.Tensor) []byte {
	quantize := func(t *tensors.Tensor, scale float64) {
		appendValue := func(v float64) {
			entry = append(entry, byte(min(max(math.Round(v*scale), 0), 255)))
		}
		switch t.Shape().DType {
		case dtypes.Float32:
			t.MustConstFlatData(func(flat any) {
				for _, v := range flat.([]float32) {
					appendValue(float64(v))
				}
			})
		case dtypes.Float64:
			t.MustConstFlatData(func(flat any) {
				for _, v := range flat.([]float64) {
					appendValue(v)
				}
			})
		}
	}
	quantize(image, 255) // Image channels in [0, 1] scale to full bytes.
	quantize(mask, 1)    // Mask values are already class indices.
	return entry
}

// PreGenerated is a train.Dataset that streams (image, mask) batches from a
// file written by Dataset.Save.
type PreGenerated struct {
	name                    string
	path                    string
	batchSize               int
	height, width, channels int
	dtype                   dtypes.DType
	infinite                bool
	maxSteps, steps         int

	mu     sync.Mutex
	file   *os.File
	buffer []byte
	err    error
}

var _ train.Dataset = &PreGenerated{}

// NewPreGenerated opens a file written by Dataset.Save. The geometry and
// dtype are not recorded in the file and must match the saved dataset; dtype
// must be Float32 or Float64.
func NewPreGenerated(name, path string, batchSize, height, width, channels int, dtype dtypes.DType) (*PreGenerated, error) {
	if dtype != dtypes.Float32 && dtype != dtypes.Float64 {
		return nil, errors.Errorf("pre-generated dataset %q: dtype must be Float32 or Float64, got %s", name, dtype)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open pre-generated dataset %q", path)
	}
	entrySize := entryBytes([]int{height, width, channels})
	pds := &PreGenerated{
		name:      name,
		path:      path,
		batchSize: batchSize,
		height:    height,
		width:     width,
		channels:  channels,
		dtype:     dtype,
		file:      file,
		buffer:    make([]byte, batchSize*entrySize),
	}
	return pds, nil
}

// Name implements train.Dataset.
func (pds *PreGenerated) Name() string { return pds.name }

// WithInfinite makes the dataset loop back to the start of the file instead
// of ending the epoch.
func (pds *PreGenerated) WithInfinite(infinite bool) *PreGenerated {
	pds.infinite = infinite
	return pds
}

// WithMaxSteps caps an infinite dataset at n Yield calls.
func (pds *PreGenerated) WithMaxSteps(n int) *PreGenerated {
	pds.maxSteps = n
	return pds
}

// Yield implements train.Dataset: one input tensor with the batched images
// `[batch, height, width, channels]` and one label tensor with the batched
// masks `[batch, height, width]`, both of the configured dtype.
func (pds *PreGenerated) Yield() (spec any, inputs, labels []*tensors.Tensor, err error) {
	pds.mu.Lock()
	defer pds.mu.Unlock()
	if pds.err != nil {
		return nil, nil, nil, pds.err
	}
	if pds.maxSteps > 0 {
		pds.steps++
		if pds.steps > pds.maxSteps {
			pds.err = errors.Errorf("dataset %q already yielded its limit of %d steps", pds.name, pds.maxSteps)
			return nil, nil, nil, pds.err
		}
	}

	retries := 0
	for {
		_, err = io.ReadFull(pds.file, pds.buffer)
		if err == nil {
			break
		}
		if err != io.EOF && err != io.ErrUnexpectedEOF {
			pds.err = errors.Wrapf(err, "failed to read from pre-generated dataset %q", pds.path)
			return nil, nil, nil, pds.err
		}
		// A partial trailing batch is dropped.
		if !pds.infinite {
			return nil, nil, nil, io.EOF
		}
		if retries > 0 {
			pds.err = errors.Errorf("pre-generated dataset %q has fewer than %d entries, cannot fill a batch", pds.path, pds.batchSize)
			return nil, nil, nil, pds.err
		}
		retries++
		if err = pds.resetLocked(); err != nil {
			return nil, nil, nil, err
		}
	}

	var images, masks *tensors.Tensor
	switch pds.dtype {
	case dtypes.Float32:
		images, masks = bytesToPairs[float32](pds.buffer, pds.batchSize, pds.height, pds.width, pds.channels)
	case dtypes.Float64:
		images, masks = bytesToPairs[float64](pds.buffer, pds.batchSize, pds.height, pds.width, pds.channels)
	}
	return pds, []*tensors.Tensor{images}, []*tensors.Tensor{masks}, nil
}

// Reset implements train.Dataset, rewinding to the start of the file.
func (pds *PreGenerated) Reset() {
	pds.mu.Lock()
	defer pds.mu.Unlock()
	if err := pds.resetLocked(); err != nil {
		klog.Errorf("failed to reset pre-generated dataset %q: %+v", pds.name, err)
	}
}

func (pds *PreGenerated) resetLocked() error {
	if _, err := pds.file.Seek(0, io.SeekStart); err != nil {
		pds.err = errors.Wrapf(err, "failed to rewind pre-generated dataset %q", pds.path)
		return pds.err
	}
	return nil
}

// Close releases the underlying file. Yield fails afterwards.
func (pds *PreGenerated) Close() error {
	pds.mu.Lock()
	defer pds.mu.Unlock()
	if pds.err == nil {
		pds.err = errors.Errorf("pre-generated dataset %q is closed", pds.name)
	}
	return pds.file.Close()
}

// bytesToPairs decodes a buffer of Save entries back into batched image and
// mask tensors, undoing the byte quantization of the image channels.
func bytesToPairs[T float32 | float64](buffer []byte, batchSize, height, width, channels int) (images, masks *tensors.Tensor) {
	dtype := dtypes.FromGenericsType[T]()
	images = tensors.FromShape(shapes.Make(dtype, batchSize, height, width, channels))
	masks = tensors.FromShape(shapes.Make(dtype, batchSize, height, width))
	imageSize := height * width * channels
	maskSize := height * width
	entrySize := imageSize + maskSize
	images.MustMutableFlatData(func(flatAny any) {
		flat := flatAny.([]T)
		for b := 0; b < batchSize; b++ {
			entry := buffer[b*entrySize:]
			for ii := 0; ii < imageSize; ii++ {
				flat[b*imageSize+ii] = T(entry[ii]) / T(255)
			}
		}
	})
	masks.MustMutableFlatData(func(flatAny any) {
		flat := flatAny.([]T)
		for b := 0; b < batchSize; b++ {
			entry := buffer[b*entrySize+imageSize:]
			for ii := 0; ii < maskSize; ii++ {
				flat[b*maskSize+ii] = T(entry[ii])
			}
		}
	})
	return
}
