package checkpoint

import (
	"github.com/cbegin/beatmapgen-go/internal/errs"
	"github.com/cbegin/beatmapgen-go/internal/layout"
	"github.com/cbegin/beatmapgen-go/internal/model/reference"
)

const (
	KindOnsetReference   = "onset-reference"
	KindAnalyticDenoiser = "analytic-denoiser"
	KindAnalyticRefiner  = "analytic-refiner"
)

func init() {
	Register(KindOnsetReference, buildOnset)
	Register(KindAnalyticDenoiser, buildDenoiser)
	Register(KindAnalyticRefiner, buildRefiner)
}

func buildOnset(m *Manifest, env Env) (any, error) {
	if m.Tokenizer == nil {
		return nil, &errs.CheckpointError{Reason: "sequence model manifest has no tokenizer block"}
	}
	if env.Tokenizer == nil || *m.Tokenizer != env.Tokenizer.Spec() {
		return nil, &errs.CheckpointError{Reason: "tokenizer shape does not match configuration"}
	}
	params := reference.DefaultOnsetParams()
	if err := m.DecodeParams(&params); err != nil {
		return nil, err
	}
	return reference.NewOnsetDecoder(env.Tokenizer, params), nil
}

type walkParams struct {
	TurnRadians    float64 `yaml:"turn"`
	PixelsPerMilli float64 `yaml:"pixels_per_ms"`
	MinSpacing     float64 `yaml:"min_spacing"`
	MaxSpacing     float64 `yaml:"max_spacing"`
	AnchorSpacing  float64 `yaml:"anchor_spacing"`
}

func buildDenoiser(m *Manifest, env Env) (any, error) {
	if m.NumClasses <= 0 {
		return nil, &errs.CheckpointError{Reason: "diffusion manifest has no num_classes"}
	}
	def := layout.DefaultWalkOptions()
	p := walkParams{
		TurnRadians:    def.Turn,
		PixelsPerMilli: def.PixelsPerMilli,
		MinSpacing:     def.MinSpacing,
		MaxSpacing:     def.MaxSpacing,
		AnchorSpacing:  def.AnchorSpacing,
	}
	if err := m.DecodeParams(&p); err != nil {
		return nil, err
	}
	return reference.NewWalkDenoiser(m.NumClasses, layout.WalkOptions{
		Turn:           p.TurnRadians,
		PixelsPerMilli: p.PixelsPerMilli,
		MinSpacing:     p.MinSpacing,
		MaxSpacing:     p.MaxSpacing,
		AnchorSpacing:  p.AnchorSpacing,
	}), nil
}

func buildRefiner(m *Manifest, env Env) (any, error) {
	r := &reference.SpacingRefiner{Rate: 0.5}
	if err := m.DecodeParams(r); err != nil {
		return nil, err
	}
	return r, nil
}
