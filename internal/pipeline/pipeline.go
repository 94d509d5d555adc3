// Package pipeline drives a full generation run: features, windows,
// per-window decoding, stitching and the optional position stages.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cbegin/beatmapgen-go/internal/audio"
	"github.com/cbegin/beatmapgen-go/internal/config"
	"github.com/cbegin/beatmapgen-go/internal/diffusion"
	"github.com/cbegin/beatmapgen-go/internal/errs"
	"github.com/cbegin/beatmapgen-go/internal/events"
	"github.com/cbegin/beatmapgen-go/internal/generate"
	"github.com/cbegin/beatmapgen-go/internal/layout"
	"github.com/cbegin/beatmapgen-go/internal/model"
	"github.com/cbegin/beatmapgen-go/internal/refine"
	"github.com/cbegin/beatmapgen-go/internal/spectrogram"
	"github.com/cbegin/beatmapgen-go/internal/stitch"
	"github.com/cbegin/beatmapgen-go/internal/tokenizer"
	"github.com/cbegin/beatmapgen-go/internal/window"
)

// Models are the loaded inference models. Denoiser and Refiner are only
// needed when diffusion runs.
type Models struct {
	Decoder  model.Decoder
	Denoiser model.Denoiser
	Refiner  model.Refiner
}

// Output is the result of one run.
type Output struct {
	Sequence *events.Sequence
	// Positions is nil when diffusion was skipped.
	Positions *layout.PositionField
	Windows   int
}

// Gaps returns the stitch warnings recorded on the sequence.
func (o *Output) Gaps() []errs.StitchGapWarning {
	if o == nil || o.Sequence == nil {
		return nil
	}
	return o.Sequence.Gaps
}

type Pipeline struct {
	cfg    config.Config
	tok    *tokenizer.Tokenizer
	models Models
	log    *slog.Logger
}

// New binds cfg to models. The configuration is checked when Run starts, so
// New only rejects what it needs to build itself.
func New(cfg config.Config, models Models, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	tok, err := tokenizer.New(cfg.Data.Spec)
	if err != nil {
		return nil, err
	}
	if models.Decoder == nil {
		return nil, errs.Configf("model_path", "no sequence model loaded")
	}
	return &Pipeline{cfg: cfg, tok: tok, models: models, log: logger}, nil
}

// Run generates a beatmap for w. style is shared read-only by every stage;
// its Diffusion flag is set from diffusionEnabled. The first failing stage
// aborts the run.
func (p *Pipeline) Run(ctx context.Context, w *audio.Waveform, style model.StyleContext, diffusionEnabled bool) (*Output, error) {
	cfg := p.cfg
	cfg.Diffusion.Enabled = diffusionEnabled
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if diffusionEnabled && p.models.Denoiser == nil {
		return nil, errs.Configf("diffusion.model_path", "no diffusion model loaded")
	}
	if diffusionEnabled && cfg.Diffusion.RefineIters > 0 && p.models.Refiner == nil {
		return nil, errs.Configf("diffusion.refine_model_path", "no refinement model loaded")
	}
	if diffusionEnabled && (style.StyleID < 0 || style.StyleID >= cfg.Diffusion.NumClasses) {
		return nil, &errs.InvalidClassError{StyleID: style.StyleID, NumClasses: cfg.Diffusion.NumClasses}
	}
	if w == nil || len(w.Samples) == 0 {
		return nil, &errs.InvalidAudioError{Reason: "empty waveform"}
	}
	if w.SampleRate <= 0 {
		return nil, &errs.InvalidAudioError{Reason: fmt.Sprintf("unknown sample rate %d", w.SampleRate)}
	}
	if w.SampleRate != cfg.Data.SampleRate {
		p.log.Debug("resampling", "from", w.SampleRate, "to", cfg.Data.SampleRate)
		var err error
		if w, err = audio.Resample(w, cfg.Data.SampleRate); err != nil {
			return nil, err
		}
	}
	style.Diffusion = diffusionEnabled
	runStart := time.Now()

	start := time.Now()
	features, err := spectrogram.Extract(w.Samples, cfg.Data.SampleRate, cfg.Data.HopLength, cfg.Spectrogram())
	if err != nil {
		return nil, err
	}
	plan, err := window.New(features, cfg.Window())
	if err != nil {
		return nil, err
	}
	p.log.Info("features extracted", "frames", features.FrameCount(), "windows", len(plan.Windows), "elapsed", time.Since(start))

	start = time.Now()
	opts := cfg.GenerateOptions()
	opts.Logger = p.log
	gen, err := generate.New(p.tok, p.models.Decoder, opts)
	if err != nil {
		return nil, err
	}
	results, err := gen.GenerateAll(ctx, plan, features, style)
	if err != nil {
		return nil, err
	}
	p.log.Info("windows generated", "windows", len(results), "sequential", gen.Sequential(), "elapsed", time.Since(start))

	seq := stitch.Stitch(Segments(results), cfg.Stitch())
	for _, gap := range seq.Gaps {
		p.log.Warn("stitch gap", "window", gap.Window, "from_ms", gap.From, "to_ms", gap.To)
	}
	out := &Output{Sequence: seq, Windows: len(plan.Windows)}
	p.log.Info("sequence stitched", "events", len(seq.Events), "gaps", len(seq.Gaps))

	if !diffusionEnabled {
		p.log.Info("run finished", "diffusion", false, "elapsed", time.Since(runStart))
		return out, nil
	}

	start = time.Now()
	d := cfg.Diffusion
	field, err := diffusion.NewSampler(p.models.Denoiser, p.log).Sample(ctx, seq, style, diffusion.Params{
		Steps:      d.NumSamplingSteps,
		CFGScale:   d.CFGScale,
		NumClasses: d.NumClasses,
		UseAMP:     d.UseAMP,
		Seed:       d.Seed,
	})
	if err != nil {
		return nil, err
	}
	p.log.Info("positions sampled", "objects", field.Len(), "steps", d.NumSamplingSteps, "elapsed", time.Since(start))

	if d.RefineIters > 0 {
		start = time.Now()
		field, err = refine.New(p.models.Refiner, p.log).Refine(ctx, field, seq, d.RefineIters)
		if err != nil {
			return nil, err
		}
		p.log.Info("positions refined", "iters", d.RefineIters, "elapsed", time.Since(start))
	}
	out.Positions = field
	p.log.Info("run finished", "diffusion", true, "elapsed", time.Since(runStart))
	return out, nil
}

// Segments converts window results into stitch input.
func Segments(results []generate.Result) []stitch.Segment {
	segs := make([]stitch.Segment, len(results))
	for i, r := range results {
		segs[i] = stitch.Segment{
			Index:  r.Window.Index,
			Start:  r.StartMillis,
			End:    r.EndMillis,
			Events: r.Events,
		}
	}
	return segs
}
