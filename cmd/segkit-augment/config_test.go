package main

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoadConfigAndBuildPipeline(t *testing.T) {
	path := writeConfig(t, `
stages:
  - name: flip
    prob: 0.8
  - name: zoom
    range: 0.3
    margin: 3
  - name: deform
    pixels: 10
    controls: 4
    apply_to: [0, -1]
  - name: fft_distort
    min_dist: 0.2
    max_dist: 0.9
  - name: rand_patch
    height: 32
    width: 32
    mask_index: -1
  - name: normalize
`)
	cfg, err := loadConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Stages, 6)
	require.NotNil(t, cfg.Stages[0].Prob)
	assert.Equal(t, 0.8, *cfg.Stages[0].Prob)
	assert.Nil(t, cfg.Stages[1].Prob)
	assert.Equal(t, []int{0, -1}, cfg.Stages[2].ApplyTo)
	require.NotNil(t, cfg.Stages[4].MaskIndex)
	assert.Equal(t, -1, *cfg.Stages[4].MaskIndex)

	pipeline, err := buildPipeline(cfg)
	require.NoError(t, err)
	require.Len(t, pipeline, 6)
	assert.Equal(t, "flip", pipeline[0].Name())
	assert.Equal(t, "zoom", pipeline[1].Name())
	assert.Equal(t, "randPatch", pipeline[4].Name())
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)

	path := writeConfig(t, "stages: []\n")
	_, err = loadConfig(path)
	require.Error(t, err)
}

func TestStageProbZeroDisables(t *testing.T) {
	path := writeConfig(t, `
stages:
  - name: transpose
    prob: 0
`)
	cfg, err := loadConfig(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Stages[0].Prob)
	assert.Equal(t, 0.0, *cfg.Stages[0].Prob)

	augmenter, err := buildStage(cfg.Stages[0])
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(1))
	in := tensors.FromFlatDataAndDimensions(make([]float32, 6), 2, 3)
	for try := 0; try < 10; try++ {
		out := augmenter.Apply(rng, in)
		assert.Same(t, in, out[0])
	}
}

func TestBuildPipelineErrors(t *testing.T) {
	_, err := buildPipeline(Config{Stages: []StageConfig{{Name: "warp_speed"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "warp_speed")

	_, err = buildPipeline(Config{Stages: []StageConfig{{Name: "rand_patch"}}})
	require.Error(t, err)
}
