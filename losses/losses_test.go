package losses

import (
	"testing"

	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/graph/graphtest"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func diceOf(t *testing.T, labels, logits *tensors.Tensor) float64 {
	t.Helper()
	backend := graphtest.BuildTestBackend()
	loss := CallOnce(backend, func(labels, logits *Node) *Node {
		return Dice([]*Node{labels}, []*Node{logits})
	}, labels, logits)
	return float64(loss.Value().(float32))
}

func TestDiceBinary(t *testing.T) {
	labels := tensors.FromValue([][][][]int32{{
		{{1}, {0}},
		{{0}, {1}},
	}})
	// Saturated logits matching the labels: near perfect overlap.
	match := tensors.FromValue([][][][]float32{{
		{{10}, {-10}},
		{{-10}, {10}},
	}})
	assert.InDelta(t, 0, diceOf(t, labels, match), 1e-3)

	// All-background predictions against an all-foreground mask.
	ones := tensors.FromValue([][][][]int32{{
		{{1}, {1}},
		{{1}, {1}},
	}})
	background := tensors.FromValue([][][][]float32{{
		{{-10}, {-10}},
		{{-10}, {-10}},
	}})
	assert.InDelta(t, 1, diceOf(t, ones, background), 1e-3)
}

func TestDiceMulticlass(t *testing.T) {
	labels := tensors.FromValue([][][][]int32{{
		{{0}, {1}},
		{{2}, {1}},
	}})
	logits := tensors.FromValue([][][][]float32{{
		{{10, -10, -10}, {-10, 10, -10}},
		{{-10, -10, 10}, {-10, 10, -10}},
	}})
	assert.InDelta(t, 0, diceOf(t, labels, logits), 1e-3)

	// Predicting the wrong class everywhere.
	wrong := tensors.FromValue([][][][]float32{{
		{{-10, 10, -10}, {10, -10, -10}},
		{{10, -10, -10}, {10, -10, -10}},
	}})
	assert.InDelta(t, 1, diceOf(t, labels, wrong), 1e-3)
}

func TestDiceShapeChecks(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	labels := tensors.FromValue([][][][]int32{{{{0}, {1}}}})
	badRank := tensors.FromValue([][]float32{{1, 2}})
	require.Panics(t, func() {
		CallOnce(backend, func(labels, logits *Node) *Node {
			return Dice([]*Node{labels}, []*Node{logits})
		}, labels, badRank)
	})
}

func vaeOf(t *testing.T, target, recon, mu, logVar *tensors.Tensor) float64 {
	t.Helper()
	backend := graphtest.BuildTestBackend()
	loss := CallOnce(backend, func(target, recon, mu, logVar *Node) *Node {
		return VAE([]*Node{target}, []*Node{recon, mu, logVar})
	}, target, recon, mu, logVar)
	return float64(loss.Value().(float32))
}

func TestVAELoss(t *testing.T) {
	target := tensors.FromValue([][]float32{{1, 0, 1, 0}})
	perfect := tensors.FromValue([][]float32{{1, 0, 1, 0}})

	// Perfect reconstruction and a unit-Gaussian posterior: zero loss.
	zero2 := tensors.FromValue([][]float32{{0, 0}})
	assert.InDelta(t, 0, vaeOf(t, target, perfect, zero2, zero2), 1e-3)

	// Shifting mu to 1 adds 0.5 per latent dimension of KL divergence.
	ones2 := tensors.FromValue([][]float32{{1, 1}})
	assert.InDelta(t, 1, vaeOf(t, target, perfect, ones2, zero2), 1e-3)

	// A worse reconstruction only increases the loss.
	half := tensors.FromValue([][]float32{{0.5, 0.5, 0.5, 0.5}})
	assert.Greater(t, vaeOf(t, target, half, zero2, zero2), 1.0)
}

func TestVAEChecks(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	target := tensors.FromValue([][]float32{{1, 0}})
	mu := tensors.FromValue([][]float32{{0}})
	require.Panics(t, func() {
		CallOnce(backend, func(target, recon, mu *Node) *Node {
			return VAE([]*Node{target}, []*Node{recon, mu})
		}, target, target, mu)
	})
}
