// Package reference provides deterministic stand-ins for the trained
// networks: a spectral-flux onset decoder and analytic position models.
// They satisfy the model interfaces so the pipeline runs without weights.
package reference

import (
	"context"
	"errors"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/cbegin/beatmapgen-go/internal/events"
	"github.com/cbegin/beatmapgen-go/internal/model"
	"github.com/cbegin/beatmapgen-go/internal/tokenizer"
)

// OnsetParams tunes onset picking and object choice.
type OnsetParams struct {
	// Threshold is the number of standard deviations above the mean flux
	// a peak must reach.
	Threshold    float64 `yaml:"threshold"`
	MinGapMillis float64 `yaml:"min_gap_ms"`
	// SliderGapMillis is the gap to the next onset from which a slider is
	// placed instead of a circle.
	SliderGapMillis float64 `yaml:"slider_gap_ms"`
	ComboEvery      int     `yaml:"combo_every"`
	PixelsPerMilli  float64 `yaml:"pixels_per_ms"`
}

func DefaultOnsetParams() OnsetParams {
	return OnsetParams{
		Threshold:       0.5,
		MinGapMillis:    100,
		SliderGapMillis: 450,
		ComboEvery:      4,
		PixelsPerMilli:  0.35,
	}
}

// OnsetDecoder emits one object per spectral-flux peak of the window.
type OnsetDecoder struct {
	tok    *tokenizer.Tokenizer
	params OnsetParams
}

func NewOnsetDecoder(tok *tokenizer.Tokenizer, params OnsetParams) *OnsetDecoder {
	return &OnsetDecoder{tok: tok, params: params}
}

func (d *OnsetDecoder) Spec() tokenizer.Spec { return d.tok.Spec() }

func (d *OnsetDecoder) Start(ctx context.Context, in model.WindowInput) (model.Session, error) {
	if in.Frames == nil {
		return nil, errors.New("onset decoder: window has no frames")
	}
	onsets := d.pick(in)
	plan, err := d.plan(onsets)
	if err != nil {
		return nil, err
	}
	return &onsetSession{vocab: d.tok.VocabSize(), plan: plan}, nil
}

// Flux returns the half-wave rectified spectral flux of the first n rows.
func Flux(frames *mat.Dense, n int) []float64 {
	out := make([]float64, n)
	for r := 1; r < n; r++ {
		cur, prev := frames.RawRowView(r), frames.RawRowView(r-1)
		var sum float64
		for j := range cur {
			if d := cur[j] - prev[j]; d > 0 {
				sum += d
			}
		}
		out[r] = sum
	}
	return out
}

// pick returns onset times in ms relative to the window start.
func (d *OnsetDecoder) pick(in model.WindowInput) []float64 {
	flux := Flux(in.Frames, in.ValidFrames)
	if len(flux) < 3 {
		return nil
	}
	mean, std := stat.MeanStdDev(flux, nil)
	limit := mean + d.params.Threshold*std
	var out []float64
	last := math.Inf(-1)
	for r := 1; r+1 < len(flux); r++ {
		f := flux[r]
		if f <= limit || f < flux[r-1] || f < flux[r+1] {
			continue
		}
		t := float64(r) * in.FrameMillis
		if t-last < d.params.MinGapMillis {
			continue
		}
		out = append(out, t)
		last = t
	}
	return out
}

func (d *OnsetDecoder) plan(onsets []float64) ([]int, error) {
	maxShift := d.tok.Spec().MaxTimeShift
	var evs []events.TimedEvent
	add := func(t float64, typ events.EventType, v int) {
		evs = append(evs, events.TimedEvent{Time: t, Event: events.Event{Type: typ, Value: v}})
	}
	for i, t := range onsets {
		if tokenizer.TimeSteps(t) > maxShift {
			break
		}
		gap := 0.0
		if i+1 < len(onsets) {
			gap = onsets[i+1] - t
		}
		if d.params.ComboEvery > 0 && i%d.params.ComboEvery == 0 {
			add(t, events.NewCombo, 0)
		}
		if i > 0 {
			dist := (t - onsets[i-1]) * d.params.PixelsPerMilli
			add(t, events.Distance, int(math.Round(math.Min(dist, float64(d.tok.Spec().MaxDistance)))))
		}
		end := t + gap/2
		if gap >= d.params.SliderGapMillis && tokenizer.TimeSteps(end) <= maxShift {
			add(t, events.SliderHead, 0)
			add(t, events.BezierAnchor, 0)
			add(end, events.LastAnchor, 0)
			add(end, events.SliderEnd, 0)
			continue
		}
		add(t, events.Circle, 0)
	}
	return d.tok.EncodeTimed(evs, 0)
}

type onsetSession struct {
	vocab int
	plan  []int
}

func (s *onsetSession) NextLogits(ctx context.Context, tokens []int) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sos := slices.Index(tokens, tokenizer.SOSID)
	if sos < 0 {
		return nil, errors.New("onset decoder: target slot has no SOS")
	}
	next := tokenizer.EOSID
	if k := len(tokens) - sos - 1; k < len(s.plan) {
		next = s.plan[k]
	}
	logits := make([]float64, s.vocab)
	for i := range logits {
		logits[i] = math.Inf(-1)
	}
	logits[next] = 0
	return logits, nil
}

func (s *onsetSession) Close() error { return nil }
