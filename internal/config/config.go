// Package config loads the YAML run configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/cbegin/beatmapgen-go/internal/diffusion"
	"github.com/cbegin/beatmapgen-go/internal/errs"
	"github.com/cbegin/beatmapgen-go/internal/generate"
	"github.com/cbegin/beatmapgen-go/internal/spectrogram"
	"github.com/cbegin/beatmapgen-go/internal/stitch"
	"github.com/cbegin/beatmapgen-go/internal/tokenizer"
	"github.com/cbegin/beatmapgen-go/internal/window"
)

type Config struct {
	AudioPath   string `yaml:"audio_path"`
	OutputPath  string `yaml:"output_path"`
	ModelPath   string `yaml:"model_path"`
	BeatmapPath string `yaml:"beatmap_path"`

	BPM              float64 `yaml:"bpm"`
	Offset           float64 `yaml:"offset"`
	SliderMultiplier float64 `yaml:"slider_multiplier"`

	Title   string `yaml:"title"`
	Artist  string `yaml:"artist"`
	Creator string `yaml:"creator"`
	Version string `yaml:"version"`

	BeatmapID  int     `yaml:"beatmap_id"`
	Difficulty float64 `yaml:"difficulty"`

	Diffusion Diffusion `yaml:"diffusion"`
	Data      Data      `yaml:"data"`
	Generate  Generate  `yaml:"generate"`
}

type Diffusion struct {
	Enabled          bool    `yaml:"enabled"`
	ModelPath        string  `yaml:"model_path"`
	RefineModelPath  string  `yaml:"refine_model_path"`
	NumSamplingSteps int     `yaml:"num_sampling_steps"`
	CFGScale         float64 `yaml:"cfg_scale"`
	NumClasses       int     `yaml:"num_classes"`
	StyleID          int     `yaml:"style_id"`
	UseAMP           bool    `yaml:"use_amp"`
	RefineIters      int     `yaml:"refine_iters"`
	Seed             uint64  `yaml:"seed"`
}

type Data struct {
	SampleRate int `yaml:"sample_rate"`
	HopLength  int `yaml:"hop_length"`
	NFFT       int `yaml:"n_fft"`
	NMels      int `yaml:"n_mels"`

	SrcSeqLen        int     `yaml:"src_seq_len"`
	TgtSeqLen        int     `yaml:"tgt_seq_len"`
	SequenceStride   float64 `yaml:"sequence_stride"`
	CenterPadDecoder bool    `yaml:"center_pad_decoder"`

	SpecialTokenLen     int  `yaml:"special_token_len"`
	StyleTokenIndex     int  `yaml:"style_token_index"`
	DiffTokenIndex      int  `yaml:"diff_token_index"`
	DiffusionTokenIndex int  `yaml:"diffusion_token_index"`
	AddPreTokens        bool `yaml:"add_pre_tokens"`
	MaxPreTokenLen      int  `yaml:"max_pre_token_len"`
	AddGDContext        bool `yaml:"add_gd_context"`

	tokenizer.Spec `yaml:",inline"`
}

type Generate struct {
	Temperature     float64 `yaml:"temperature"`
	TopP            float64 `yaml:"top_p"`
	Seed            uint64  `yaml:"seed"`
	Workers         int     `yaml:"workers"`
	StitchEpsilonMs float64 `yaml:"stitch_epsilon_ms"`
	MinOnsetDeltaMs float64 `yaml:"min_onset_delta_ms"`
}

func Default() Config {
	gen := generate.DefaultOptions()
	st := stitch.DefaultOptions()
	spec := spectrogram.DefaultOptions()
	return Config{
		BPM:              120,
		SliderMultiplier: 1.4,
		Title:            "Untitled",
		Artist:           "Unknown",
		Creator:          "beatmapgen",
		Version:          "Generated",
		BeatmapID:        -1,
		Difficulty:       -1,
		Diffusion: Diffusion{
			Enabled:          true,
			NumSamplingSteps: 100,
			CFGScale:         1,
			NumClasses:       52670,
			StyleID:          0,
			RefineIters:      10,
		},
		Data: Data{
			SampleRate:          16000,
			HopLength:           128,
			NFFT:                spec.NFFT,
			NMels:               spec.NMels,
			SrcSeqLen:           1024,
			TgtSeqLen:           2048,
			SequenceStride:      1,
			SpecialTokenLen:     gen.SpecialTokenLen,
			StyleTokenIndex:     gen.StyleTokenIndex,
			DiffTokenIndex:      gen.DiffTokenIndex,
			DiffusionTokenIndex: gen.DiffusionTokenIndex,
			MaxPreTokenLen:      gen.MaxPreTokenLen,
			Spec:                tokenizer.DefaultSpec(),
		},
		Generate: Generate{
			Temperature:     gen.Temperature,
			TopP:            gen.TopP,
			Workers:         runtime.GOMAXPROCS(0),
			StitchEpsilonMs: st.Epsilon,
			MinOnsetDeltaMs: st.MinOnsetDelta,
		},
	}
}

// Load reads path over the defaults. Keys absent from the file keep their
// default values; unknown keys are rejected.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Config{}, &errs.FileNotFoundError{Path: path, Err: err}
		}
		return Config{}, err
	}
	defer f.Close()
	return Read(f)
}

// Read decodes a configuration document over the defaults.
func Read(r io.Reader) (Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, &errs.ConfigurationError{Field: "file", Reason: err.Error()}
	}
	return cfg, nil
}

// Validate checks every field that would otherwise fail mid-run.
func (c Config) Validate() error {
	switch {
	case !(c.BPM > 0) || math.IsInf(c.BPM, 0):
		return errs.Configf("bpm", "must be positive, got %v", c.BPM)
	case math.IsNaN(c.Offset):
		return errs.Configf("offset", "must be a number")
	case !(c.SliderMultiplier > 0):
		return errs.Configf("slider_multiplier", "must be positive, got %v", c.SliderMultiplier)
	case c.Data.SampleRate <= 0:
		return errs.Configf("data.sample_rate", "must be positive, got %d", c.Data.SampleRate)
	case c.Data.HopLength <= 0:
		return errs.Configf("data.hop_length", "must be positive, got %d", c.Data.HopLength)
	case c.Data.NFFT <= 1:
		return errs.Configf("data.n_fft", "must be greater than 1, got %d", c.Data.NFFT)
	case c.Data.NMels <= 0:
		return errs.Configf("data.n_mels", "must be positive, got %d", c.Data.NMels)
	case c.Generate.Workers < 0:
		return errs.Configf("generate.workers", "must not be negative, got %d", c.Generate.Workers)
	case c.Generate.StitchEpsilonMs < 0:
		return errs.Configf("generate.stitch_epsilon_ms", "must not be negative, got %v", c.Generate.StitchEpsilonMs)
	case c.Generate.MinOnsetDeltaMs < 0:
		return errs.Configf("generate.min_onset_delta_ms", "must not be negative, got %v", c.Generate.MinOnsetDeltaMs)
	}
	if err := c.Window().Validate(); err != nil {
		return err
	}
	if err := c.GenerateOptions().Validate(c.Data.TgtSeqLen); err != nil {
		return err
	}
	if _, err := tokenizer.New(c.Data.Spec); err != nil {
		return err
	}
	if c.Diffusion.Enabled {
		d := c.Diffusion
		switch {
		case d.NumSamplingSteps < 0:
			return errs.Configf("diffusion.num_sampling_steps", "must not be negative, got %d", d.NumSamplingSteps)
		case d.NumSamplingSteps > diffusion.TrainSteps:
			return errs.Configf("diffusion.num_sampling_steps", "must be at most %d, got %d", diffusion.TrainSteps, d.NumSamplingSteps)
		case d.NumClasses <= 0:
			return errs.Configf("diffusion.num_classes", "must be positive, got %d", d.NumClasses)
		case d.RefineIters < 0:
			return errs.Configf("diffusion.refine_iters", "must not be negative, got %d", d.RefineIters)
		case math.IsNaN(d.CFGScale) || math.IsInf(d.CFGScale, 0):
			return errs.Configf("diffusion.cfg_scale", "must be finite, got %v", d.CFGScale)
		case d.ModelPath == "":
			return errs.Configf("diffusion.model_path", "required when diffusion is enabled")
		case d.RefineIters > 0 && d.RefineModelPath == "":
			return errs.Configf("diffusion.refine_model_path", "required when refine_iters > 0")
		}
	}
	if c.ModelPath == "" {
		return errs.Configf("model_path", "required")
	}
	if c.Data.AddGDContext && c.BeatmapPath == "" {
		return errs.Configf("beatmap_path", "required when data.add_gd_context is set")
	}
	return nil
}

func (c Config) Window() window.Params {
	return window.Params{
		SrcSeqLen:        c.Data.SrcSeqLen,
		TgtSeqLen:        c.Data.TgtSeqLen,
		SequenceStride:   c.Data.SequenceStride,
		CenterPadDecoder: c.Data.CenterPadDecoder,
	}
}

func (c Config) Spectrogram() spectrogram.Options {
	return spectrogram.Options{NFFT: c.Data.NFFT, NMels: c.Data.NMels}
}

// GenerateOptions returns the generator options without a logger.
func (c Config) GenerateOptions() generate.Options {
	return generate.Options{
		SpecialTokenLen:     c.Data.SpecialTokenLen,
		StyleTokenIndex:     c.Data.StyleTokenIndex,
		DiffTokenIndex:      c.Data.DiffTokenIndex,
		DiffusionTokenIndex: c.Data.DiffusionTokenIndex,
		AddPreTokens:        c.Data.AddPreTokens,
		MaxPreTokenLen:      c.Data.MaxPreTokenLen,
		AddGDContext:        c.Data.AddGDContext,
		Temperature:         c.Generate.Temperature,
		TopP:                c.Generate.TopP,
		Seed:                c.Generate.Seed,
		Workers:             c.Generate.Workers,
	}
}

func (c Config) Stitch() stitch.Options {
	return stitch.Options{Epsilon: c.Generate.StitchEpsilonMs, MinOnsetDelta: c.Generate.MinOnsetDeltaMs}
}

func (c Config) String() string {
	out, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("config(%v)", err)
	}
	return string(out)
}
