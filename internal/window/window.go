// Package window slices feature frames into the overlapping fixed-length
// source windows the sequence model runs on.
package window

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/cbegin/beatmapgen-go/internal/errs"
	"github.com/cbegin/beatmapgen-go/internal/spectrogram"
)

type Params struct {
	SrcSeqLen int
	TgtSeqLen int
	// SequenceStride is the advance between windows as a fraction of
	// SrcSeqLen, in (0, 1]. Values below 1 overlap consecutive windows.
	SequenceStride   float64
	CenterPadDecoder bool
}

func (p Params) Validate() error {
	switch {
	case p.SrcSeqLen <= 0:
		return errs.Configf("data.src_seq_len", "must be positive, got %d", p.SrcSeqLen)
	case p.TgtSeqLen <= 0:
		return errs.Configf("data.tgt_seq_len", "must be positive, got %d", p.TgtSeqLen)
	case !(p.SequenceStride > 0):
		return errs.Configf("data.sequence_stride", "must be positive, got %v", p.SequenceStride)
	case p.SequenceStride > 1:
		return errs.Configf("data.sequence_stride", "must be at most 1 to avoid gaps, got %v", p.SequenceStride)
	}
	return nil
}

// Window is a contiguous frame range [Start, Start+Len) of the features.
// Len is the number of real frames; Padded windows are zero-filled up to
// the plan's SrcSeqLen.
type Window struct {
	Index  int
	Start  int
	Len    int
	Padded bool
}

// End returns the exclusive end frame of the real content.
func (w Window) End() int { return w.Start + w.Len }

// Plan is the ordered window schedule for one feature matrix.
type Plan struct {
	Params
	Stride      int
	FrameCount  int
	FrameMillis float64
	Windows     []Window
}

// StrideFrames returns the frame advance between windows.
func StrideFrames(srcSeqLen int, stride float64) int {
	return max(1, int(math.Floor(float64(srcSeqLen)*stride)))
}

// New schedules windows over features. Windows advance by
// floor(src_seq_len * sequence_stride) frames until one reaches the last
// frame; the final window is zero-padded when it runs past frame_count.
func New(features *spectrogram.Features, p Params) (*Plan, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if features == nil || features.FrameCount() == 0 {
		return nil, &errs.InvalidAudioError{Reason: "no feature frames to schedule"}
	}
	n := features.FrameCount()
	plan := &Plan{
		Params:      p,
		Stride:      StrideFrames(p.SrcSeqLen, p.SequenceStride),
		FrameCount:  n,
		FrameMillis: features.FrameMillis(),
	}
	for start := 0; ; start += plan.Stride {
		w := Window{Index: len(plan.Windows), Start: start, Len: min(p.SrcSeqLen, n-start)}
		w.Padded = w.Len < p.SrcSeqLen
		plan.Windows = append(plan.Windows, w)
		if start+p.SrcSeqLen >= n {
			break
		}
	}
	return plan, nil
}

// StartMillis returns the time of the first frame of w.
func (p *Plan) StartMillis(w Window) float64 {
	return float64(w.Start) * p.FrameMillis
}

// EndMillis returns the time just past the last real frame of w.
func (p *Plan) EndMillis(w Window) float64 {
	return float64(w.End()) * p.FrameMillis
}

// SpanMillis returns the duration of a full window.
func (p *Plan) SpanMillis() float64 {
	return float64(p.SrcSeqLen) * p.FrameMillis
}

// PreTokenLen is the length of the target-slot prefix when the decoder is
// center padded.
func (p *Plan) PreTokenLen() int {
	return p.TgtSeqLen / 2
}

// Frames returns the SrcSeqLen x bins source matrix of w, zero-padded past
// the end of the features.
func (p *Plan) Frames(features *spectrogram.Features, w Window) *mat.Dense {
	bins := features.Bins()
	out := mat.NewDense(p.SrcSeqLen, bins, nil)
	for i := 0; i < w.Len; i++ {
		copy(out.RawRowView(i), features.Data.RawRowView(w.Start+i))
	}
	return out
}
