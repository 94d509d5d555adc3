// Package diffusion samples playfield positions for a stitched event
// sequence with a DDPM denoising loop and classifier-free guidance.
package diffusion

import (
	"context"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"

	"github.com/cbegin/beatmapgen-go/internal/errs"
	"github.com/cbegin/beatmapgen-go/internal/events"
	"github.com/cbegin/beatmapgen-go/internal/layout"
	"github.com/cbegin/beatmapgen-go/internal/model"
)

// clipDenoised bounds the predicted clean sample in normalized space.
const clipDenoised = 1.0

type Params struct {
	Steps      int
	CFGScale   float64
	NumClasses int
	// UseAMP rounds model inputs and estimates to float32.
	UseAMP bool
	Seed   uint64
	// Noise is the initial state. When nil it is drawn from Seed.
	Noise []float64
}

func (p Params) validate() error {
	if p.Steps < 0 {
		return errs.Configf("diffusion.num_sampling_steps", "must not be negative, got %d", p.Steps)
	}
	if p.Steps > TrainSteps {
		return errs.Configf("diffusion.num_sampling_steps", "must be at most %d, got %d", TrainSteps, p.Steps)
	}
	if p.NumClasses <= 0 {
		return errs.Configf("diffusion.num_classes", "must be positive, got %d", p.NumClasses)
	}
	if math.IsNaN(p.CFGScale) || math.IsInf(p.CFGScale, 0) {
		return errs.Configf("diffusion.cfg_scale", "must be finite, got %v", p.CFGScale)
	}
	return nil
}

type Sampler struct {
	model model.Denoiser
	log   *slog.Logger
}

func NewSampler(m model.Denoiser, logger *slog.Logger) *Sampler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Sampler{model: m, log: logger}
}

// Guide combines conditional and unconditional estimates:
// uncond + scale*(cond - uncond).
func Guide(cond, uncond []float64, scale float64) []float64 {
	out := make([]float64, len(cond))
	floats.SubTo(out, cond, uncond)
	floats.Scale(scale, out)
	floats.Add(out, uncond)
	return out
}

// Sample runs Steps denoising steps over the placeable objects of seq and
// returns their positions. The class id is checked before any model call.
func (s *Sampler) Sample(ctx context.Context, seq *events.Sequence, style model.StyleContext, p Params) (*layout.PositionField, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if style.StyleID < 0 || style.StyleID >= p.NumClasses {
		return nil, &errs.InvalidClassError{StyleID: style.StyleID, NumClasses: p.NumClasses}
	}
	if n := s.model.NumClasses(); n != p.NumClasses {
		return nil, errs.Configf("diffusion.num_classes", "%d does not match the denoiser's %d classes", p.NumClasses, n)
	}

	cond := model.NewConditioning(seq)
	dim := 2 * len(cond.Objects)
	x := make([]float64, dim)
	switch {
	case p.Noise != nil && len(p.Noise) != dim:
		return nil, errs.Configf("diffusion.noise", "initial state has %d values, %d objects need %d", len(p.Noise), len(cond.Objects), dim)
	case p.Noise != nil:
		copy(x, p.Noise)
	default:
		rng := rand.New(rand.NewPCG(p.Seed, 0))
		for i := range x {
			x[i] = rng.NormFloat64()
		}
	}
	if dim == 0 || p.Steps == 0 {
		return layout.NewField(cond.Objects, x), nil
	}

	sched := NewSchedule(p.Steps)
	rng := rand.New(rand.NewPCG(p.Seed, 1))
	for i, t := range sched.Timesteps {
		if err := ctx.Err(); err != nil {
			return nil, &errs.StepError{Stage: "diffusion", Step: i, Err: err}
		}
		eps, err := s.estimate(ctx, x, t, cond, style.StyleID, p)
		if err != nil {
			return nil, &errs.StepError{Stage: "diffusion", Step: i, Err: err}
		}
		var noise []float64
		if i+1 < len(sched.Timesteps) {
			noise = make([]float64, dim)
			for j := range noise {
				noise[j] = rng.NormFloat64()
			}
		}
		x = sched.step(i, x, eps, noise)
	}
	s.log.Debug("diffusion sampled", "objects", len(cond.Objects), "steps", p.Steps, "cfg_scale", p.CFGScale)
	return layout.NewField(cond.Objects, x), nil
}

// estimate evaluates the conditional and unconditional noise predictions
// and guides them. With a scale of 1 the unconditional pass is skipped.
func (s *Sampler) estimate(ctx context.Context, x []float64, t int, cond model.Conditioning, classID int, p Params) ([]float64, error) {
	in := x
	if p.UseAMP {
		in = half(x)
	}
	c, err := s.model.PredictNoise(ctx, in, t, cond, classID)
	if err != nil {
		return nil, err
	}
	if len(c) != len(x) {
		return nil, errs.Configf("diffusion.model_path", "denoiser returned %d values for %d", len(c), len(x))
	}
	if p.UseAMP {
		c = half(c)
	}
	if p.CFGScale == 1 {
		return c, nil
	}
	u, err := s.model.PredictNoise(ctx, in, t, cond, p.NumClasses)
	if err != nil {
		return nil, err
	}
	if len(u) != len(x) {
		return nil, errs.Configf("diffusion.model_path", "denoiser returned %d values for %d", len(u), len(x))
	}
	if p.UseAMP {
		u = half(u)
	}
	return Guide(c, u, p.CFGScale), nil
}

func half(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(float32(f))
	}
	return out
}

// step applies the posterior update of sampling step i. noise is nil on
// the final step.
func (s Schedule) step(i int, x, eps, noise []float64) []float64 {
	ab := s.AlphaBar[i]
	abPrev := s.prevAlphaBar(i)
	beta := s.Beta[i]

	x0 := make([]float64, len(x))
	floats.AddScaledTo(x0, x, -math.Sqrt(1-ab), eps)
	floats.Scale(1/math.Sqrt(ab), x0)
	for j, v := range x0 {
		x0[j] = math.Max(-clipDenoised, math.Min(clipDenoised, v))
	}

	c0 := beta * math.Sqrt(abPrev) / (1 - ab)
	ct := (1 - abPrev) * math.Sqrt(1-beta) / (1 - ab)
	out := make([]float64, len(x))
	floats.AddScaledTo(out, out, c0, x0)
	floats.AddScaled(out, ct, x)
	if noise != nil {
		variance := beta * (1 - abPrev) / (1 - ab)
		floats.AddScaled(out, math.Sqrt(variance), noise)
	}
	return out
}
