package window

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/cbegin/beatmapgen-go/internal/errs"
	"github.com/cbegin/beatmapgen-go/internal/spectrogram"
)

func fakeFeatures(frames, bins, sampleRate, hop int) *spectrogram.Features {
	data := mat.NewDense(frames, bins, nil)
	for i := 0; i < frames; i++ {
		for j := 0; j < bins; j++ {
			data.Set(i, j, float64(i+1))
		}
	}
	return &spectrogram.Features{SampleRate: sampleRate, HopLength: hop, Samples: frames * hop, Data: data}
}

func TestTenSecondClipScenario(t *testing.T) {
	frames := spectrogram.FrameCount(10*22050, 512)
	f := fakeFeatures(frames, 4, 22050, 512)
	plan, err := New(f, Params{SrcSeqLen: 512, TgtSeqLen: 384, SequenceStride: 1})
	require.NoError(t, err)

	want := int(math.Ceil(float64(frames) / 512))
	require.Len(t, plan.Windows, want)
	last := plan.Windows[len(plan.Windows)-1]
	assert.True(t, last.Padded)
	assert.Equal(t, frames, last.End())
}

func TestStrideOneMatchesCeilForLongInputs(t *testing.T) {
	for _, frames := range []int{1, 511, 512, 513, 1024, 1500, 5000} {
		plan, err := New(fakeFeatures(frames, 1, 22050, 512), Params{SrcSeqLen: 512, TgtSeqLen: 384, SequenceStride: 1})
		require.NoError(t, err)
		assert.Len(t, plan.Windows, (frames+511)/512, "frames=%d", frames)
	}
}

func TestWindowsCoverWithoutGaps(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for trial := 0; trial < 200; trial++ {
		frames := 1 + rng.IntN(4000)
		src := 1 + rng.IntN(600)
		stride := 0.05 + 0.95*rng.Float64()
		plan, err := New(fakeFeatures(frames, 1, 16000, 128), Params{SrcSeqLen: src, TgtSeqLen: 8, SequenceStride: stride})
		require.NoError(t, err)

		ws := plan.Windows
		require.NotEmpty(t, ws)
		assert.Equal(t, 0, ws[0].Start)
		assert.Equal(t, frames, ws[len(ws)-1].End(), "last window reaches frame_count")
		for i := 1; i < len(ws); i++ {
			overlap := ws[i-1].End() - ws[i].Start
			assert.GreaterOrEqual(t, overlap, 0, "gap before window %d", i)
			assert.Greater(t, ws[i].Start, ws[i-1].Start)
			assert.Equal(t, i, ws[i].Index)
		}
		for _, w := range ws[:len(ws)-1] {
			assert.False(t, w.Padded)
		}
	}
}

func TestFramesZeroPadsTail(t *testing.T) {
	f := fakeFeatures(700, 3, 16000, 128)
	plan, err := New(f, Params{SrcSeqLen: 512, TgtSeqLen: 64, SequenceStride: 0.5})
	require.NoError(t, err)
	require.Len(t, plan.Windows, 2)
	assert.Equal(t, 256, plan.Windows[1].Start)

	m := plan.Frames(f, plan.Windows[1])
	r, c := m.Dims()
	assert.Equal(t, 512, r)
	assert.Equal(t, 3, c)
	assert.Equal(t, 257.0, m.At(0, 0))
	assert.Equal(t, 700.0, m.At(443, 2))
	assert.Equal(t, 0.0, m.At(444, 0))
	assert.InDelta(t, 256*8.0, plan.StartMillis(plan.Windows[1]), 1e-9)
}

func TestParamsValidation(t *testing.T) {
	f := fakeFeatures(10, 1, 16000, 128)
	cases := []struct {
		name  string
		p     Params
		field string
	}{
		{"src", Params{SrcSeqLen: 0, TgtSeqLen: 1, SequenceStride: 1}, "data.src_seq_len"},
		{"tgt", Params{SrcSeqLen: 1, TgtSeqLen: -1, SequenceStride: 1}, "data.tgt_seq_len"},
		{"stride zero", Params{SrcSeqLen: 1, TgtSeqLen: 1, SequenceStride: 0}, "data.sequence_stride"},
		{"stride nan", Params{SrcSeqLen: 1, TgtSeqLen: 1, SequenceStride: math.NaN()}, "data.sequence_stride"},
		{"stride gap", Params{SrcSeqLen: 1, TgtSeqLen: 1, SequenceStride: 1.5}, "data.sequence_stride"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(f, tc.p)
			var ce *errs.ConfigurationError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tc.field, ce.Field)
		})
	}
}
