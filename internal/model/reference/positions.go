package reference

import (
	"context"
	"fmt"
	"math"

	"github.com/cbegin/beatmapgen-go/internal/diffusion"
	"github.com/cbegin/beatmapgen-go/internal/layout"
	"github.com/cbegin/beatmapgen-go/internal/model"
)

// WalkDenoiser predicts the noise that separates x from a placement walk.
// Each class walks with its own turn angle; the unconditional class uses
// the default walk.
type WalkDenoiser struct {
	classes int
	walk    layout.WalkOptions
}

func NewWalkDenoiser(numClasses int, walk layout.WalkOptions) *WalkDenoiser {
	return &WalkDenoiser{classes: numClasses, walk: walk}
}

func (d *WalkDenoiser) NumClasses() int { return d.classes }

// Target returns the normalized clean positions for class.
func (d *WalkDenoiser) Target(cond model.Conditioning, class int) []float64 {
	opts := d.walk
	if class >= 0 && class < d.classes {
		opts.Turn = d.walk.Turn * (0.5 + float64(class%8)/8)
	}
	pts := layout.Walk(cond.Objects, opts)
	out := make([]float64, 2*len(pts))
	for i, p := range pts {
		out[2*i], out[2*i+1] = layout.Normalize(p)
	}
	return out
}

func (d *WalkDenoiser) PredictNoise(ctx context.Context, x []float64, t int, cond model.Conditioning, classID int) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(x) != 2*len(cond.Objects) {
		return nil, fmt.Errorf("walk denoiser: %d values for %d objects", len(x), len(cond.Objects))
	}
	if classID < 0 || classID > d.classes {
		return nil, fmt.Errorf("walk denoiser: class %d outside [0, %d]", classID, d.classes)
	}
	ab := diffusion.AlphaBar(t)
	target := d.Target(cond, classID)
	eps := make([]float64, len(x))
	for i := range x {
		eps[i] = (x[i] - math.Sqrt(ab)*target[i]) / math.Sqrt(1-ab)
	}
	return eps, nil
}

// SpacingRefiner nudges each object so its distance to the previous one
// matches the sequence's distance token, and pulls stray objects back
// inside the playfield.
type SpacingRefiner struct {
	Rate float64 `yaml:"rate"`
}

func (r *SpacingRefiner) PredictDelta(ctx context.Context, x []float64, cond model.Conditioning) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(x) != 2*len(cond.Objects) {
		return nil, fmt.Errorf("spacing refiner: %d values for %d objects", len(x), len(cond.Objects))
	}
	delta := make([]float64, len(x))
	for i, o := range cond.Objects {
		p := layout.Denormalize(x[2*i], x[2*i+1])
		var move layout.Point
		if i > 0 && o.Distance > 0 {
			prev := layout.Denormalize(x[2*i-2], x[2*i-1])
			if d := p.Dist(prev); d > 0 {
				k := (float64(o.Distance) - d) / d
				move.X += k * (p.X - prev.X)
				move.Y += k * (p.Y - prev.Y)
			}
		}
		in := p.Clamp()
		move.X += in.X - p.X
		move.Y += in.Y - p.Y

		dx, dy := layout.Normalize(layout.Point{X: layout.PlayfieldWidth/2 + move.X, Y: layout.PlayfieldHeight/2 + move.Y})
		delta[2*i] = r.Rate * dx
		delta[2*i+1] = r.Rate * dy
	}
	return delta, nil
}
