package refine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbegin/beatmapgen-go/internal/errs"
	"github.com/cbegin/beatmapgen-go/internal/events"
	"github.com/cbegin/beatmapgen-go/internal/layout"
	"github.com/cbegin/beatmapgen-go/internal/model"
)

// halfway moves every coordinate half the way to the origin.
type halfway struct{ calls int }

func (h *halfway) PredictDelta(_ context.Context, x []float64, _ model.Conditioning) ([]float64, error) {
	h.calls++
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = -v / 2
	}
	return out, nil
}

func twoCircles() (*events.Sequence, *layout.PositionField) {
	seq := &events.Sequence{Events: []events.TimedEvent{
		{Time: 0, Event: events.Event{Type: events.Circle}},
		{Time: 100, Event: events.Event{Type: events.Circle}},
	}}
	field := &layout.PositionField{
		Indices: []int{0, 1},
		Points:  []layout.Point{{X: 512, Y: 384}, {X: 0, Y: 192}},
	}
	return seq, field
}

func TestZeroItersReturnsInputUnchanged(t *testing.T) {
	seq, field := twoCircles()
	before := field.Clone()
	h := &halfway{}
	out, err := New(h, nil).Refine(context.Background(), field, seq, 0)
	require.NoError(t, err)
	assert.Same(t, field, out)
	assert.Equal(t, before, out)
	assert.Zero(t, h.calls)
}

func TestRefineAppliesDeltasInPlace(t *testing.T) {
	seq, field := twoCircles()
	h := &halfway{}
	out, err := New(h, nil).Refine(context.Background(), field, seq, 2)
	require.NoError(t, err)
	assert.Same(t, field, out)
	assert.Equal(t, 2, h.calls)
	// (256, 192) is the origin of model space; two halvings leave a quarter.
	assert.InDelta(t, 256+64, out.Points[0].X, 1e-9)
	assert.InDelta(t, 192+48, out.Points[0].Y, 1e-9)
	assert.InDelta(t, 256-64, out.Points[1].X, 1e-9)
}

func TestRefineRejectsMismatchedField(t *testing.T) {
	seq, field := twoCircles()
	seq.Events = seq.Events[:1]
	_, err := New(&halfway{}, nil).Refine(context.Background(), field, seq, 1)
	assert.Error(t, err)
}

func TestRefineHonorsCancellation(t *testing.T) {
	seq, field := twoCircles()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(&halfway{}, nil).Refine(ctx, field, seq, 3)
	var se *errs.StepError
	require.ErrorAs(t, err, &se)
	assert.Zero(t, se.Step)
	assert.ErrorIs(t, err, context.Canceled)
}
