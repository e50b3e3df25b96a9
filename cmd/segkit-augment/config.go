package main

import (
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"

	"github.com/segkit/segkit/augments"
)

// StageConfig describes one pipeline stage of the YAML config. Name selects
// the transform; the remaining fields are per-transform options, zero values
// meaning the transform's default.
type StageConfig struct {
	Name string `koanf:"name"`
	// Prob overrides the transform's default application probability; nil
	// keeps the default, 0 disables the stage.
	Prob    *float64 `koanf:"prob"`
	ApplyTo []int    `koanf:"apply_to"`

	// Segment-margin guard: re-sample the stage while the mask foreground
	// touches the border band.
	Margin    int  `koanf:"margin"`
	MaskIndex *int `koanf:"mask_index"`
	Tries     int  `koanf:"tries"`

	Range       float64 `koanf:"range"`        // zoom
	Pixels      int     `koanf:"pixels"`       // deform
	Controls    int     `koanf:"controls"`     // deform
	GridMargin  int     `koanf:"grid_margin"`  // deform
	DimFraction int     `koanf:"dim_fraction"` // shift, rotate_zoom
	MinDist     float64 `koanf:"min_dist"`     // fft_distort
	MaxDist     float64 `koanf:"max_dist"`     // fft_distort
	Height      int     `koanf:"height"`       // rand_patch
	Width       int     `koanf:"width"`        // rand_patch
	MaxTries    int     `koanf:"max_tries"`    // rand_patch
}

// Config is the YAML pipeline description.
type Config struct {
	Stages []StageConfig `koanf:"stages"`
}

func loadConfig(path string) (Config, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return Config{}, errors.Wrapf(err, "failed to load pipeline config %q", path)
	}
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "failed to parse pipeline config %q", path)
	}
	if len(cfg.Stages) == 0 {
		return Config{}, errors.Errorf("pipeline config %q has no stages", path)
	}
	return cfg, nil
}

// buildStage maps one StageConfig to its Augmenter.
func buildStage(stage StageConfig) (*augments.Augmenter, error) {
	var augmenter *augments.Augmenter
	switch stage.Name {
	case "transpose":
		augmenter = augments.Transpose()
	case "flip":
		augmenter = augments.Flip()
	case "rot90":
		augmenter = augments.Rot90()
	case "normalize":
		augmenter = augments.Normalize()
	case "rotate":
		augmenter = augments.Rotate()
	case "shift":
		shift := augments.Shift()
		if stage.DimFraction > 0 {
			shift.DimFraction(stage.DimFraction)
		}
		augmenter = shift.Done()
	case "zoom":
		zoom := augments.Zoom()
		if stage.Range > 0 {
			zoom.Range(stage.Range)
		}
		augmenter = zoom.Done()
	case "rotate_zoom":
		rotateZoom := augments.RotateZoom()
		if stage.DimFraction > 0 {
			rotateZoom.DimFraction(stage.DimFraction)
		}
		augmenter = rotateZoom.Done()
	case "deform":
		deform := augments.Deform()
		if stage.Pixels > 0 {
			deform.Range(stage.Pixels)
		}
		if stage.Controls > 0 {
			deform.Controls(stage.Controls)
		}
		if stage.GridMargin > 0 {
			deform.GridMargin(stage.GridMargin)
		}
		augmenter = deform.Done()
	case "fft_distort":
		distort := augments.FFTDistort()
		if stage.MaxDist > 0 {
			distort.Distances(stage.MinDist, stage.MaxDist)
		}
		augmenter = distort.Done()
	case "rand_patch":
		if stage.Height < 1 || stage.Width < 1 {
			return nil, errors.Errorf("rand_patch stage needs positive height and width, got %dx%d", stage.Height, stage.Width)
		}
		patch := augments.RandPatch(stage.Height, stage.Width)
		if stage.MaskIndex != nil {
			patch.Nonzero(*stage.MaskIndex)
		}
		if stage.MaxTries > 0 {
			patch.MaxTries(stage.MaxTries)
		}
		augmenter = patch.Done()
	default:
		return nil, errors.Errorf("unknown pipeline stage %q", stage.Name)
	}

	if stage.Prob != nil {
		augmenter.WithProb(*stage.Prob)
	}
	if len(stage.ApplyTo) > 0 {
		augmenter.ApplyTo(stage.ApplyTo...)
	}
	if stage.Margin > 0 && stage.Name != "rand_patch" {
		maskIndex := -1
		if stage.MaskIndex != nil {
			maskIndex = *stage.MaskIndex
		}
		tries := stage.Tries
		if tries == 0 {
			tries = augments.DefaultMarginTries
		}
		augmenter.WithSegmentMargin(maskIndex, stage.Margin, tries)
	}
	return augmenter, nil
}

// buildPipeline maps the config stages, in order, to an augments.Pipeline.
func buildPipeline(cfg Config) (augments.Pipeline, error) {
	pipeline := make(augments.Pipeline, 0, len(cfg.Stages))
	for ii, stage := range cfg.Stages {
		augmenter, err := buildStage(stage)
		if err != nil {
			return nil, errors.Wrapf(err, "pipeline stage #%d", ii)
		}
		pipeline = append(pipeline, augmenter)
	}
	return pipeline, nil
}
