// Package model declares the inference contracts the pipeline drives. The
// network internals behind them are opaque to the pipeline.
package model

import (
	"context"

	"gonum.org/v1/gonum/mat"

	"github.com/cbegin/beatmapgen-go/internal/events"
	"github.com/cbegin/beatmapgen-go/internal/tokenizer"
)

// Decoder is an audio-conditioned token model. Start encodes one source
// window; the returned Session then scores next tokens for that window.
// Implementations must be safe for concurrent Start calls.
type Decoder interface {
	Start(ctx context.Context, in WindowInput) (Session, error)
	Spec() tokenizer.Spec
}

// WindowInput is the read-only source side of one window.
type WindowInput struct {
	Index int
	// Frames is SrcSeqLen x bins, zero-padded.
	Frames *mat.Dense
	// ValidFrames is the number of real rows in Frames.
	ValidFrames int
	FrameMillis float64
	// StyleID is the beatmap class id, or -1 when unknown.
	StyleID int
}

// Session scores the next token given the full target slot so far:
// prefix, SOS and everything generated after it. The returned slice has
// one logit per vocabulary id.
type Session interface {
	NextLogits(ctx context.Context, tokens []int) ([]float64, error)
	Close() error
}

// Denoiser predicts the noise component of x at training timestep t.
// x is a flat normalized vector of (x, y) pairs, one pair per object.
// ClassID equal to the number of classes requests the unconditional estimate.
type Denoiser interface {
	PredictNoise(ctx context.Context, x []float64, t int, cond Conditioning, classID int) ([]float64, error)
	NumClasses() int
}

// Refiner predicts a correction to already-sampled normalized positions.
type Refiner interface {
	PredictDelta(ctx context.Context, x []float64, cond Conditioning) ([]float64, error)
}

// Conditioning is the event-sequence context the position models see.
type Conditioning struct {
	Objects []events.Placeable
}

// NewConditioning collects the placeable objects of seq.
func NewConditioning(seq *events.Sequence) Conditioning {
	return Conditioning{Objects: events.Placeables(seq)}
}

// StyleContext identifies the conditioning of a run. It is set once from
// configuration and shared read-only by every stage.
type StyleContext struct {
	// BeatmapID is the decoder style class, -1 when unknown.
	BeatmapID int
	// Difficulty is the target star rating; negative means unknown.
	Difficulty float64
	// StyleID is the diffusion class id.
	StyleID int
	// Diffusion tells the decoder whether positions come from diffusion.
	Diffusion bool
	// Reference is an optional other beatmap of the same song used as
	// guided-difficulty context.
	Reference *Reference
}

// Reference is a parsed reference beatmap with absolute event times.
type Reference struct {
	Events     []events.TimedEvent
	BeatmapID  int
	Difficulty float64
}
