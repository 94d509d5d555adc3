package reference

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/cbegin/beatmapgen-go/internal/diffusion"
	"github.com/cbegin/beatmapgen-go/internal/events"
	"github.com/cbegin/beatmapgen-go/internal/layout"
	"github.com/cbegin/beatmapgen-go/internal/model"
	"github.com/cbegin/beatmapgen-go/internal/tokenizer"
)

func bursts(rows int, at ...int) *mat.Dense {
	m := mat.NewDense(rows, 4, nil)
	for _, r := range at {
		for j := 0; j < 4; j++ {
			m.Set(r, j, 1)
		}
	}
	return m
}

func drain(t *testing.T, s model.Session, tok *tokenizer.Tokenizer) []events.TimedEvent {
	t.Helper()
	slot := []int{tokenizer.PadID, tokenizer.SOSID}
	for i := 0; i < 100; i++ {
		logits, err := s.NextLogits(context.Background(), slot)
		require.NoError(t, err)
		best := 0
		for id, l := range logits {
			if l > logits[best] {
				best = id
			}
		}
		if best == tokenizer.EOSID {
			return tok.DecodeTimed(slot[2:], 0)
		}
		slot = append(slot, best)
	}
	t.Fatalf("session never emitted EOS")
	return nil
}

func onsetTypes(evs []events.TimedEvent) map[float64]events.EventType {
	out := map[float64]events.EventType{}
	for _, ev := range evs {
		if ev.Type.IsOnset() {
			out[ev.Time] = ev.Type
		}
	}
	return out
}

func TestOnsetDecoderPlacesCircles(t *testing.T) {
	tok, err := tokenizer.New(tokenizer.DefaultSpec())
	require.NoError(t, err)
	d := NewOnsetDecoder(tok, DefaultOnsetParams())
	s, err := d.Start(context.Background(), model.WindowInput{Frames: bursts(100, 10, 40, 70), ValidFrames: 100, FrameMillis: 10})
	require.NoError(t, err)
	defer s.Close()

	evs := drain(t, s, tok)
	assert.Equal(t, map[float64]events.EventType{
		100: events.Circle,
		400: events.Circle,
		700: events.Circle,
	}, onsetTypes(evs))
	assert.Equal(t, events.NewCombo, evs[0].Type)
}

func TestOnsetDecoderPlacesSlidersOnLongGaps(t *testing.T) {
	tok, err := tokenizer.New(tokenizer.DefaultSpec())
	require.NoError(t, err)
	d := NewOnsetDecoder(tok, DefaultOnsetParams())
	s, err := d.Start(context.Background(), model.WindowInput{Frames: bursts(100, 10, 70), ValidFrames: 100, FrameMillis: 10})
	require.NoError(t, err)

	evs := drain(t, s, tok)
	assert.Equal(t, map[float64]events.EventType{100: events.SliderHead, 700: events.Circle}, onsetTypes(evs))
	var end float64
	for _, ev := range evs {
		if ev.Type == events.SliderEnd {
			end = ev.Time
		}
	}
	assert.Equal(t, 400.0, end)
}

func TestOnsetDecoderIgnoresPaddedFrames(t *testing.T) {
	tok, err := tokenizer.New(tokenizer.DefaultSpec())
	require.NoError(t, err)
	d := NewOnsetDecoder(tok, DefaultOnsetParams())
	s, err := d.Start(context.Background(), model.WindowInput{Frames: bursts(100, 10, 80), ValidFrames: 50, FrameMillis: 10})
	require.NoError(t, err)
	assert.Len(t, onsetTypes(drain(t, s, tok)), 1)
}

func placeables(n int) model.Conditioning {
	var cond model.Conditioning
	for i := 0; i < n; i++ {
		cond.Objects = append(cond.Objects, events.Placeable{Index: i, Time: float64(i * 250), Type: events.Circle, Distance: -1})
	}
	return cond
}

func TestWalkDenoiserRecoversNoise(t *testing.T) {
	d := NewWalkDenoiser(3, layout.DefaultWalkOptions())
	cond := placeables(4)
	for _, class := range []int{0, 2, 3} {
		target := d.Target(cond, class)
		eps := []float64{0.3, -0.1, 1.2, 0.4, -0.8, 0, 0.5, -2}
		ab := diffusion.AlphaBar(500)
		x := make([]float64, len(eps))
		for i := range x {
			x[i] = math.Sqrt(ab)*target[i] + math.Sqrt(1-ab)*eps[i]
		}
		got, err := d.PredictNoise(context.Background(), x, 500, cond, class)
		require.NoError(t, err)
		assert.InDeltaSlice(t, eps, got, 1e-9)
	}
	assert.NotEqual(t, d.Target(cond, 0), d.Target(cond, 3))
}

func TestSpacingRefinerMatchesDistance(t *testing.T) {
	cond := placeables(2)
	cond.Objects[1].Distance = 200
	x := make([]float64, 4)
	x[0], x[1] = layout.Normalize(layout.Point{X: 100, Y: 192})
	x[2], x[3] = layout.Normalize(layout.Point{X: 200, Y: 192})

	delta, err := (&SpacingRefiner{Rate: 1}).PredictDelta(context.Background(), x, cond)
	require.NoError(t, err)
	got := layout.Denormalize(x[2]+delta[2], x[3]+delta[3])
	assert.InDelta(t, 300, got.X, 1e-9)
	assert.InDelta(t, 192, got.Y, 1e-9)
	assert.InDelta(t, 0, delta[0], 1e-12)
}
