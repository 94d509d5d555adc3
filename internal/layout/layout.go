// Package layout holds playfield geometry and the position field produced
// by the diffusion stage.
package layout

import (
	"math"

	"github.com/cbegin/beatmapgen-go/internal/events"
)

const (
	PlayfieldWidth  = 512
	PlayfieldHeight = 384

	centerX = PlayfieldWidth / 2
	centerY = PlayfieldHeight / 2
	// scale maps the playfield into roughly [-1, 1] on the x axis.
	scale = PlayfieldWidth / 2
)

type Point struct {
	X, Y float64
}

func (p Point) Dist(q Point) float64 { return math.Hypot(p.X-q.X, p.Y-q.Y) }

// Clamp keeps p inside the playfield.
func (p Point) Clamp() Point {
	return Point{
		X: math.Max(0, math.Min(PlayfieldWidth, p.X)),
		Y: math.Max(0, math.Min(PlayfieldHeight, p.Y)),
	}
}

// Normalize maps playfield pixels to model space.
func Normalize(p Point) (float64, float64) {
	return (p.X - centerX) / scale, (p.Y - centerY) / scale
}

// Denormalize maps model space back to playfield pixels.
func Denormalize(x, y float64) Point {
	return Point{X: x*scale + centerX, Y: y*scale + centerY}
}

// Center is the middle of the playfield, where spinners live.
func Center() Point { return Point{X: centerX, Y: centerY} }

// PositionField maps sequence event indices to playfield positions.
// Indices is ascending.
type PositionField struct {
	Indices []int
	Points  []Point
}

// NewField builds a field from a flat normalized vector of (x, y) pairs,
// one pair per object.
func NewField(objects []events.Placeable, vec []float64) *PositionField {
	f := &PositionField{
		Indices: make([]int, len(objects)),
		Points:  make([]Point, len(objects)),
	}
	for i, o := range objects {
		f.Indices[i] = o.Index
		f.Points[i] = Denormalize(vec[2*i], vec[2*i+1])
	}
	return f
}

func (f *PositionField) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Points)
}

// Vector returns the field as a flat normalized vector.
func (f *PositionField) Vector() []float64 {
	out := make([]float64, 2*len(f.Points))
	for i, p := range f.Points {
		out[2*i], out[2*i+1] = Normalize(p)
	}
	return out
}

// SetVector overwrites the positions in place from a normalized vector.
func (f *PositionField) SetVector(vec []float64) {
	for i := range f.Points {
		f.Points[i] = Denormalize(vec[2*i], vec[2*i+1])
	}
}

// At returns the position of sequence event idx.
func (f *PositionField) At(idx int) (Point, bool) {
	if f == nil {
		return Point{}, false
	}
	lo, hi := 0, len(f.Indices)
	for lo < hi {
		mid := (lo + hi) / 2
		if f.Indices[mid] < idx {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(f.Indices) && f.Indices[lo] == idx {
		return f.Points[lo], true
	}
	return Point{}, false
}

// Clone returns a deep copy of f.
func (f *PositionField) Clone() *PositionField {
	return &PositionField{
		Indices: append([]int(nil), f.Indices...),
		Points:  append([]Point(nil), f.Points...),
	}
}
