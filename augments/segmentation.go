package augments

import (
	"github.com/gomlx/gomlx/pkg/core/tensors"

	"github.com/segkit/segkit/ndimage"
)

// SplitSegmentation returns arrs with the label mask at segIndex (negative
// counts from the end) one-hot expanded into a trailing class axis of
// numLabels entries. The other arrays are carried over as-is.
func SplitSegmentation(arrs []*tensors.Tensor, numLabels, segIndex int) []*tensors.Tensor {
	index := resolveIndex("splitSegmentation", segIndex, len(arrs))
	out := make([]*tensors.Tensor, len(arrs))
	copy(out, arrs)
	out[index] = ndimage.OneHot(arrs[index], numLabels)
	return out
}

// MergeSegmentation is the inverse of SplitSegmentation: the one-hot (or
// per-class score) mask at segIndex collapses back to a label map by argmax
// over its trailing axis.
func MergeSegmentation(arrs []*tensors.Tensor, segIndex int) []*tensors.Tensor {
	index := resolveIndex("mergeSegmentation", segIndex, len(arrs))
	out := make([]*tensors.Tensor, len(arrs))
	copy(out, arrs)
	out[index] = ndimage.ArgMaxAxis(arrs[index])
	return out
}
