package datasets

import (
	"image"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	timage "github.com/gomlx/gomlx/pkg/core/tensors/images"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var imageExtensions = map[string]bool{
	".bmp": true, ".gif": true, ".jpeg": true, ".jpg": true,
	".png": true, ".tif": true, ".tiff": true,
}

// listImages returns the sorted paths of the image files directly under dir.
func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list images in %q", dir)
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// ResizeWithPadding resizes img to fit (width, height) preserving its aspect
// ratio, and pastes it centered on a black background of exactly that size.
func ResizeWithPadding(img image.Image, width, height int, filter imaging.ResampleFilter) image.Image {
	size := img.Bounds().Size()
	ratio := math.Min(float64(width)/float64(size.X), float64(height)/float64(size.Y))
	resized := imaging.Resize(img,
		int(math.Round(float64(size.X)*ratio)), int(math.Round(float64(size.Y)*ratio)), filter)
	background := image.NewNRGBA(image.Rect(0, 0, width, height))
	return imaging.PasteCenter(background, resized)
}

// LoadImageDir decodes every image file directly under dir into a Float32
// tensor shaped `[height, width, 3]` with channel values in [0, 1], resized
// with ResizeWithPadding. Files come back in lexical order so they pair up
// with a matching mask directory.
func LoadImageDir(dir string, height, width int) ([]*tensors.Tensor, error) {
	paths, err := listImages(dir)
	if err != nil {
		return nil, err
	}
	loaded := make([]*tensors.Tensor, 0, len(paths))
	for _, path := range paths {
		img, err := imaging.Open(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to decode image %q", path)
		}
		img = ResizeWithPadding(img, width, height, imaging.Lanczos)
		loaded = append(loaded, timage.ToTensor(dtypes.Float32).Single(img))
	}
	klog.V(1).Infof("loaded %d images from %q", len(loaded), dir)
	return loaded, nil
}

// LoadMaskDir decodes every image file directly under dir into a Float32
// label map shaped `[height, width]`: the pixel's red channel is taken as the
// class index. Masks resize with nearest-neighbor so no new class values are
// invented, padded the same way as LoadImageDir.
func LoadMaskDir(dir string, height, width int) ([]*tensors.Tensor, error) {
	paths, err := listImages(dir)
	if err != nil {
		return nil, err
	}
	loaded := make([]*tensors.Tensor, 0, len(paths))
	for _, path := range paths {
		img, err := imaging.Open(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to decode mask %q", path)
		}
		img = ResizeWithPadding(img, width, height, imaging.NearestNeighbor)
		flat := make([]float32, height*width)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				r, _, _, _ := img.At(x, y).RGBA()
				// color.RGBA() returns 16 bits values packaged in uint32.
				flat[y*width+x] = float32(r >> 8)
			}
		}
		loaded = append(loaded, tensors.FromFlatDataAndDimensions(flat, height, width))
	}
	klog.V(1).Infof("loaded %d masks from %q", len(loaded), dir)
	return loaded, nil
}

// LoadSegmentationDirs loads a paired dataset from an image directory and a
// mask directory, matching files by their lexical order.
func LoadSegmentationDirs(imagesDir, masksDir string, height, width int) (images, masks []*tensors.Tensor, err error) {
	images, err = LoadImageDir(imagesDir, height, width)
	if err != nil {
		return nil, nil, err
	}
	masks, err = LoadMaskDir(masksDir, height, width)
	if err != nil {
		return nil, nil, err
	}
	if len(images) != len(masks) {
		return nil, nil, errors.Errorf("%d images in %q but %d masks in %q",
			len(images), imagesDir, len(masks), masksDir)
	}
	return images, masks, nil
}
