package diffusion

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbegin/beatmapgen-go/internal/errs"
	"github.com/cbegin/beatmapgen-go/internal/events"
	"github.com/cbegin/beatmapgen-go/internal/layout"
	"github.com/cbegin/beatmapgen-go/internal/model"
)

// countingDenoiser predicts x itself as noise, pulling samples to the center.
type countingDenoiser struct {
	classes int
	calls   atomic.Int64
	classed []int
	failAt  int64
}

func (d *countingDenoiser) NumClasses() int { return d.classes }

func (d *countingDenoiser) PredictNoise(_ context.Context, x []float64, _ int, _ model.Conditioning, classID int) ([]float64, error) {
	n := d.calls.Add(1)
	if d.failAt > 0 && n == d.failAt {
		return nil, errors.New("device lost")
	}
	d.classed = append(d.classed, classID)
	return append([]float64(nil), x...), nil
}

func threeCircles() *events.Sequence {
	return &events.Sequence{Events: []events.TimedEvent{
		{Time: 0, Event: events.Event{Type: events.Circle}},
		{Time: 300, Event: events.Event{Type: events.Circle}},
		{Time: 600, Event: events.Event{Type: events.Spinner}},
		{Time: 900, Event: events.Event{Type: events.SpinnerEnd}},
		{Time: 1200, Event: events.Event{Type: events.Circle}},
	}}
}

func TestZeroStepsReturnsInitialNoise(t *testing.T) {
	d := &countingDenoiser{classes: 4}
	noise := []float64{0.1, -0.2, 0.3, 0.05, -0.7, 0.6}
	field, err := NewSampler(d, nil).Sample(context.Background(), threeCircles(), model.StyleContext{StyleID: 1},
		Params{Steps: 0, CFGScale: 3, NumClasses: 4, Noise: noise})
	require.NoError(t, err)
	assert.InDeltaSlice(t, noise, field.Vector(), 1e-12)
	assert.Equal(t, []int{0, 1, 4}, field.Indices)
	assert.Zero(t, d.calls.Load())
}

func TestOutOfRangeClassFailsBeforeAnyStep(t *testing.T) {
	for _, id := range []int{4, 5, -1} {
		d := &countingDenoiser{classes: 4}
		_, err := NewSampler(d, nil).Sample(context.Background(), threeCircles(), model.StyleContext{StyleID: id},
			Params{Steps: 10, CFGScale: 2, NumClasses: 4})
		var ice *errs.InvalidClassError
		require.ErrorAs(t, err, &ice)
		assert.Equal(t, id, ice.StyleID)
		assert.Zero(t, d.calls.Load())
	}
}

func TestStepsAboveTrainingScheduleAreRejected(t *testing.T) {
	d := &countingDenoiser{classes: 4}
	_, err := NewSampler(d, nil).Sample(context.Background(), threeCircles(), model.StyleContext{StyleID: 1},
		Params{Steps: TrainSteps + 500, CFGScale: 2, NumClasses: 4})
	var ce *errs.ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "diffusion.num_sampling_steps", ce.Field)
	assert.Zero(t, d.calls.Load())
}

func TestGuideCombinesEstimates(t *testing.T) {
	cond := []float64{1, 2, -1}
	uncond := []float64{0.5, 2, 1}
	assert.InDeltaSlice(t, []float64{2, 2, -5}, Guide(cond, uncond, 3), 1e-12)
	assert.InDeltaSlice(t, uncond, Guide(cond, uncond, 0), 1e-12)
	assert.InDeltaSlice(t, cond, Guide(cond, uncond, 1), 1e-12)
}

func TestSampleUsesUnconditionalClass(t *testing.T) {
	d := &countingDenoiser{classes: 4}
	_, err := NewSampler(d, nil).Sample(context.Background(), threeCircles(), model.StyleContext{StyleID: 2},
		Params{Steps: 5, CFGScale: 2, NumClasses: 4, Seed: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 10, d.calls.Load())
	for i := 0; i < len(d.classed); i += 2 {
		assert.Equal(t, 2, d.classed[i])
		assert.Equal(t, 4, d.classed[i+1])
	}
}

func TestSampleIsDeterministicAndInPlayfield(t *testing.T) {
	run := func() *layout.PositionField {
		f, err := NewSampler(&countingDenoiser{classes: 4}, nil).Sample(context.Background(), threeCircles(),
			model.StyleContext{StyleID: 0}, Params{Steps: 20, CFGScale: 1, NumClasses: 4, Seed: 9, UseAMP: true})
		require.NoError(t, err)
		return f
	}
	a, b := run(), run()
	assert.Equal(t, a, b)
	for _, p := range a.Points {
		assert.InDelta(t, layout.PlayfieldWidth/2, p.X, layout.PlayfieldWidth)
	}
}

func TestStepFailureCarriesStepIndex(t *testing.T) {
	d := &countingDenoiser{classes: 4, failAt: 5}
	_, err := NewSampler(d, nil).Sample(context.Background(), threeCircles(), model.StyleContext{},
		Params{Steps: 10, CFGScale: 2, NumClasses: 4})
	var se *errs.StepError
	require.ErrorAs(t, err, &se)
	// Two calls per step: the fifth call is the conditional pass of step 2.
	assert.Equal(t, 2, se.Step)
}

func TestSampleHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSampler(&countingDenoiser{classes: 4}, nil).Sample(ctx, threeCircles(), model.StyleContext{},
		Params{Steps: 10, CFGScale: 2, NumClasses: 4})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNoiseLengthMismatch(t *testing.T) {
	_, err := NewSampler(&countingDenoiser{classes: 4}, nil).Sample(context.Background(), threeCircles(), model.StyleContext{},
		Params{Steps: 1, NumClasses: 4, Noise: []float64{1}})
	var ce *errs.ConfigurationError
	assert.ErrorAs(t, err, &ce)
}

func TestRespace(t *testing.T) {
	assert.Equal(t, []int{0}, Respace(1000, 1))
	assert.Equal(t, []int{999, 500, 0}, Respace(1000, 3))
	assert.Len(t, Respace(10, 50), 10)
	assert.Nil(t, Respace(1000, 0))

	s := NewSchedule(50)
	for i := 1; i < len(s.AlphaBar); i++ {
		assert.Less(t, s.AlphaBar[i-1], s.AlphaBar[i])
		assert.Greater(t, s.Beta[i], 0.0)
	}
}
