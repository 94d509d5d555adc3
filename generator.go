// Package beatmapgen turns songs into playable beatmaps.
//
// A Generator is built from a Config. It loads the sequence model, the
// optional position models and the reference beatmap once, then runs the
// pipeline for every song it is given.
package beatmapgen

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/cbegin/beatmapgen-go/internal/audio"
	"github.com/cbegin/beatmapgen-go/internal/checkpoint"
	"github.com/cbegin/beatmapgen-go/internal/config"
	"github.com/cbegin/beatmapgen-go/internal/errs"
	"github.com/cbegin/beatmapgen-go/internal/model"
	"github.com/cbegin/beatmapgen-go/internal/osu"
	"github.com/cbegin/beatmapgen-go/internal/pipeline"
	"github.com/cbegin/beatmapgen-go/internal/tokenizer"
)

type (
	Config   = config.Config
	Waveform = audio.Waveform
	Result   = pipeline.Output
)

// DefaultConfig returns the built-in configuration. ModelPath and the
// diffusion model paths still need to be set.
func DefaultConfig() Config { return config.Default() }

// LoadConfig reads a YAML configuration over the defaults.
func LoadConfig(path string) (Config, error) { return config.Load(path) }

// DecodeAudio reads an mp3, ogg or wav file as mono at sampleRate.
func DecodeAudio(path string, sampleRate int) (*Waveform, error) {
	return audio.Decode(path, sampleRate)
}

type Option func(*generatorConfig)

type generatorConfig struct {
	logger    *slog.Logger
	workers   int
	diffusion *bool
	seed      *uint64
}

func WithLogger(l *slog.Logger) Option {
	return func(cfg *generatorConfig) {
		cfg.logger = l
	}
}

// WithWorkers bounds how many windows are decoded at once.
func WithWorkers(n int) Option {
	return func(cfg *generatorConfig) {
		cfg.workers = n
	}
}

// WithDiffusion overrides diffusion.enabled from the configuration.
func WithDiffusion(enabled bool) Option {
	return func(cfg *generatorConfig) {
		cfg.diffusion = &enabled
	}
}

// WithSeed seeds both token sampling and the diffusion noise.
func WithSeed(seed uint64) Option {
	return func(cfg *generatorConfig) {
		cfg.seed = &seed
	}
}

type Generator struct {
	cfg   Config
	pipe  *pipeline.Pipeline
	style model.StyleContext
	log   *slog.Logger
}

// New validates cfg and loads every model it names. Nothing is generated
// until Generate is called.
func New(cfg Config, opts ...Option) (*Generator, error) {
	var gc generatorConfig
	for _, opt := range opts {
		opt(&gc)
	}
	if gc.logger == nil {
		gc.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if gc.workers > 0 {
		cfg.Generate.Workers = gc.workers
	}
	if gc.diffusion != nil {
		cfg.Diffusion.Enabled = *gc.diffusion
	}
	if gc.seed != nil {
		cfg.Generate.Seed = *gc.seed
		cfg.Diffusion.Seed = *gc.seed
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tok, err := tokenizer.New(cfg.Data.Spec)
	if err != nil {
		return nil, err
	}
	var models pipeline.Models
	if models.Decoder, err = checkpoint.LoadDecoder(cfg.ModelPath, tok); err != nil {
		return nil, err
	}
	if cfg.Diffusion.Enabled {
		if models.Denoiser, err = checkpoint.LoadDenoiser(cfg.Diffusion.ModelPath, cfg.Diffusion.NumClasses); err != nil {
			return nil, err
		}
		if cfg.Diffusion.RefineIters > 0 {
			if models.Refiner, err = checkpoint.LoadRefiner(cfg.Diffusion.RefineModelPath); err != nil {
				return nil, err
			}
		}
	}

	style := model.StyleContext{
		BeatmapID:  cfg.BeatmapID,
		Difficulty: cfg.Difficulty,
		StyleID:    cfg.Diffusion.StyleID,
		Diffusion:  cfg.Diffusion.Enabled,
	}
	if cfg.Data.AddGDContext {
		if style.Reference, err = readReference(cfg.BeatmapPath); err != nil {
			return nil, err
		}
		gc.logger.Info("reference beatmap loaded", "path", cfg.BeatmapPath, "events", len(style.Reference.Events))
	}

	pipe, err := pipeline.New(cfg, models, gc.logger)
	if err != nil {
		return nil, err
	}
	return &Generator{cfg: cfg, pipe: pipe, style: style, log: gc.logger}, nil
}

func readReference(path string) (*model.Reference, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &errs.FileNotFoundError{Path: path, Err: err}
		}
		return nil, err
	}
	defer f.Close()
	ref, err := osu.ReadReference(f)
	if err != nil {
		return nil, &errs.DecodeError{Path: path, Err: err}
	}
	return ref, nil
}

// Config returns the effective configuration after options were applied.
func (g *Generator) Config() Config { return g.cfg }

// Generate runs the pipeline on an already decoded song.
func (g *Generator) Generate(ctx context.Context, w *Waveform) (*Result, error) {
	return g.pipe.Run(ctx, w, g.style, g.cfg.Diffusion.Enabled)
}

// GenerateFile decodes audio_path, generates, and writes the beatmap to
// output_path.
func (g *Generator) GenerateFile(ctx context.Context) (*Result, error) {
	if g.cfg.AudioPath == "" {
		return nil, errs.Configf("audio_path", "required")
	}
	if g.cfg.OutputPath == "" {
		return nil, errs.Configf("output_path", "required")
	}
	w, err := audio.Decode(g.cfg.AudioPath, g.cfg.Data.SampleRate)
	if err != nil {
		return nil, err
	}
	g.log.Info("audio decoded", "path", g.cfg.AudioPath, "duration", w.Duration())

	res, err := g.Generate(ctx, w)
	if err != nil {
		return nil, err
	}
	if err := g.WriteFile(g.cfg.OutputPath, res); err != nil {
		return nil, err
	}
	g.log.Info("beatmap written", "path", g.cfg.OutputPath, "events", len(res.Sequence.Events))
	return res, nil
}
