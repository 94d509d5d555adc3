package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbegin/beatmapgen-go/internal/errs"
)

const sample = `
audio_path: song.mp3
model_path: models/onset.yaml
bpm: 174
offset: 320
title: Test Song
beatmap_id: 12
difficulty: 5.5
diffusion:
  model_path: models/denoiser.yaml
  refine_model_path: models/refiner.yaml
  num_sampling_steps: 50
  cfg_scale: 2.5
  num_classes: 8
  style_id: 3
data:
  src_seq_len: 512
  tgt_seq_len: 384
  sequence_stride: 0.5
  center_pad_decoder: true
  max_time_shift: 512
generate:
  workers: 2
`

func TestReadOverlaysDefaults(t *testing.T) {
	cfg, err := Read(strings.NewReader(sample))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 174.0, cfg.BPM)
	assert.Equal(t, "Test Song", cfg.Title)
	assert.Equal(t, "Unknown", cfg.Artist)
	assert.Equal(t, 8, cfg.Diffusion.NumClasses)
	assert.True(t, cfg.Diffusion.Enabled)
	assert.Equal(t, 512, cfg.Data.MaxTimeShift)
	assert.Equal(t, 640, cfg.Data.MaxDistance)
	assert.Equal(t, 0.5, cfg.Window().SequenceStride)
	assert.True(t, cfg.Window().CenterPadDecoder)
	assert.Equal(t, 2, cfg.GenerateOptions().Workers)
	assert.Equal(t, 10.0, cfg.Stitch().Epsilon)
}

func TestReadRejectsUnknownKeys(t *testing.T) {
	_, err := Read(strings.NewReader("bpm: 120\ntempo: 3\n"))
	var ce *errs.ConfigurationError
	assert.ErrorAs(t, err, &ce)
}

func TestEmptyDocumentIsDefaults(t *testing.T) {
	cfg, err := Read(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	var fnf *errs.FileNotFoundError
	assert.ErrorAs(t, err, &fnf)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "song.mp3", cfg.AudioPath)
}

func TestValidateNamesField(t *testing.T) {
	cases := []struct {
		field string
		edit  func(*Config)
	}{
		{"bpm", func(c *Config) { c.BPM = 0 }},
		{"data.src_seq_len", func(c *Config) { c.Data.SrcSeqLen = 0 }},
		{"data.tgt_seq_len", func(c *Config) { c.Data.TgtSeqLen = -1 }},
		{"data.sequence_stride", func(c *Config) { c.Data.SequenceStride = 0 }},
		{"data.special_token_len", func(c *Config) { c.Data.SpecialTokenLen = 300 }},
		{"data.num_classes", func(c *Config) { c.Data.NumClasses = 0 }},
		{"diffusion.num_classes", func(c *Config) { c.Diffusion.NumClasses = 0 }},
		{"diffusion.num_sampling_steps", func(c *Config) { c.Diffusion.NumSamplingSteps = 1001 }},
		{"diffusion.refine_model_path", func(c *Config) { c.Diffusion.RefineModelPath = "" }},
		{"model_path", func(c *Config) { c.ModelPath = "" }},
		{"beatmap_path", func(c *Config) { c.Data.AddGDContext = true }},
		{"generate.top_p", func(c *Config) { c.Generate.TopP = 2 }},
	}
	for _, tc := range cases {
		t.Run(tc.field, func(t *testing.T) {
			cfg, err := Read(strings.NewReader(sample))
			require.NoError(t, err)
			tc.edit(&cfg)
			var ce *errs.ConfigurationError
			require.ErrorAs(t, cfg.Validate(), &ce)
			assert.Equal(t, tc.field, ce.Field)
		})
	}
}

func TestDisabledDiffusionSkipsItsChecks(t *testing.T) {
	cfg, err := Read(strings.NewReader(sample))
	require.NoError(t, err)
	cfg.Diffusion.Enabled = false
	cfg.Diffusion.ModelPath = ""
	cfg.Diffusion.NumClasses = 0
	assert.NoError(t, cfg.Validate())
}
