package layout

import (
	"math"

	"github.com/cbegin/beatmapgen-go/internal/events"
)

const margin = 16.0

// WalkOptions parameterizes the deterministic placement walk.
type WalkOptions struct {
	// Turn is the heading change per object in radians. New combos flip it.
	Turn float64
	// PixelsPerMilli converts the time gap to a spacing when an object
	// carries no distance.
	PixelsPerMilli float64
	MinSpacing     float64
	MaxSpacing     float64
	// AnchorSpacing is the step between consecutive slider control points
	// when no distance is given.
	AnchorSpacing float64
}

func DefaultWalkOptions() WalkOptions {
	return WalkOptions{
		Turn:           math.Pi / 3,
		PixelsPerMilli: 0.4,
		MinSpacing:     40,
		MaxSpacing:     220,
		AnchorSpacing:  60,
	}
}

// Walk places objects one after another, spacing them by their distance
// tokens (or by time gap) and turning the heading a fixed amount each step.
// Headings reflect off the playfield edges.
func Walk(objects []events.Placeable, opts WalkOptions) []Point {
	out := make([]Point, len(objects))
	pos := Center()
	heading := 0.0
	turn := opts.Turn
	prevTime := math.NaN()
	for i, o := range objects {
		if i == 0 {
			out[i] = pos
			prevTime = o.Time
			continue
		}
		if o.NewCombo {
			turn = -turn
		}
		var step float64
		switch {
		case o.Distance >= 0:
			step = float64(o.Distance)
		case o.Type.IsAnchor() || o.Type == events.LastAnchor:
			step = opts.AnchorSpacing
		default:
			step = (o.Time - prevTime) * opts.PixelsPerMilli
			step = math.Max(opts.MinSpacing, math.Min(opts.MaxSpacing, step))
		}
		if !o.Type.IsAnchor() {
			heading += turn
		}
		next := Point{X: pos.X + step*math.Cos(heading), Y: pos.Y + step*math.Sin(heading)}
		if next.X < margin || next.X > PlayfieldWidth-margin {
			heading = math.Pi - heading
		}
		if next.Y < margin || next.Y > PlayfieldHeight-margin {
			heading = -heading
		}
		next = Point{X: pos.X + step*math.Cos(heading), Y: pos.Y + step*math.Sin(heading)}.Clamp()
		out[i] = next
		pos = next
		prevTime = o.Time
	}
	return out
}

// Fallback is the placement policy used when the diffusion stage is
// disabled: a default walk over the placeable events of seq.
func Fallback(seq *events.Sequence) *PositionField {
	objects := events.Placeables(seq)
	pts := Walk(objects, DefaultWalkOptions())
	f := &PositionField{Indices: make([]int, len(objects)), Points: pts}
	for i, o := range objects {
		f.Indices[i] = o.Index
	}
	return f
}
