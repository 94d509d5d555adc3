package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbegin/beatmapgen-go/internal/events"
)

func TestNormalizeRoundTrip(t *testing.T) {
	for _, p := range []Point{{0, 0}, {256, 192}, {512, 384}, {13.5, 300.25}} {
		x, y := Normalize(p)
		got := Denormalize(x, y)
		assert.InDelta(t, p.X, got.X, 1e-9)
		assert.InDelta(t, p.Y, got.Y, 1e-9)
	}
	x, y := Normalize(Center())
	assert.Zero(t, x)
	assert.Zero(t, y)
}

func TestFieldVectorAndLookup(t *testing.T) {
	objs := []events.Placeable{{Index: 2}, {Index: 5}, {Index: 9}}
	vec := []float64{0, 0, 0.5, -0.25, -1, 0.5}
	f := NewField(objs, vec)
	require.Equal(t, 3, f.Len())

	p, ok := f.At(5)
	require.True(t, ok)
	assert.Equal(t, Point{X: 384, Y: 128}, p)
	_, ok = f.At(3)
	assert.False(t, ok)

	assert.InDeltaSlice(t, vec, f.Vector(), 1e-12)

	c := f.Clone()
	c.SetVector(make([]float64, 6))
	assert.Equal(t, Center(), c.Points[2])
	assert.NotEqual(t, Center(), f.Points[2], "clone must not alias")
}

func TestWalkStaysInsidePlayfield(t *testing.T) {
	var objs []events.Placeable
	for i := 0; i < 200; i++ {
		objs = append(objs, events.Placeable{Index: i, Time: float64(i) * 150, Type: events.Circle, Distance: -1, NewCombo: i%8 == 0})
	}
	objs[10].Distance = 400
	pts := Walk(objs, DefaultWalkOptions())
	require.Len(t, pts, 200)
	assert.Equal(t, Center(), pts[0])
	for i, p := range pts {
		assert.Equal(t, p, p.Clamp(), "object %d escaped the playfield", i)
	}
	assert.InDelta(t, 60, pts[1].Dist(pts[0]), 1e-9, "150ms gap at 0.4px/ms")
}

func TestFallbackCoversPlaceables(t *testing.T) {
	seq := &events.Sequence{Events: []events.TimedEvent{
		{Time: 0, Event: events.Event{Type: events.Circle}},
		{Time: 300, Event: events.Event{Type: events.Spinner}},
		{Time: 900, Event: events.Event{Type: events.SpinnerEnd}},
		{Time: 1200, Event: events.Event{Type: events.SliderHead}},
		{Time: 1200, Event: events.Event{Type: events.PerfectAnchor}},
		{Time: 1500, Event: events.Event{Type: events.LastAnchor}},
		{Time: 1500, Event: events.Event{Type: events.SliderEnd}},
	}}
	f := Fallback(seq)
	assert.Equal(t, []int{0, 3, 4, 5}, f.Indices)
	_, ok := f.At(1)
	assert.False(t, ok, "spinners are not placed")
}
