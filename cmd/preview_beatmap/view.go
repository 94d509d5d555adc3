package main

import (
	"fmt"
	"math"
	"sort"

	"github.com/cbegin/beatmapgen-go/internal/layout"
	"github.com/cbegin/beatmapgen-go/internal/osu"
)

// viewport maps playfield pixels onto the window.
type viewport struct {
	x, y, scale float64
}

// fit centers the playfield in a w x h window with a margin.
func fit(w, h int) viewport {
	const margin = 48
	sx := float64(w-2*margin) / layout.PlayfieldWidth
	sy := float64(h-2*margin-24) / layout.PlayfieldHeight
	s := math.Min(sx, sy)
	return viewport{
		x:     (float64(w) - layout.PlayfieldWidth*s) / 2,
		y:     (float64(h-24) - layout.PlayfieldHeight*s) / 2,
		scale: s,
	}
}

func (v viewport) point(p layout.Point) (float32, float32) {
	return float32(v.x + p.X*v.scale), float32(v.y + p.Y*v.scale)
}

// visible returns the indices of objects on screen at now: from approach
// ms before their start until fade ms after their end. objs is sorted by
// start time.
func visible(objs []osu.HitObject, now, approach, fade float64) []int {
	last := sort.Search(len(objs), func(i int) bool { return objs[i].Time > now+approach })
	var out []int
	for i := 0; i < last; i++ {
		if objs[i].EndTime+fade >= now {
			out = append(out, i)
		}
	}
	return out
}

// progress is how far through obj now is, in [0, 1].
func progress(obj osu.HitObject, now float64) float64 {
	span := obj.EndTime - obj.Time
	if span <= 0 {
		return 1
	}
	return math.Max(0, math.Min(1, (now-obj.Time)/span))
}

// along returns the point at fraction t of the polyline's length.
func along(path []layout.Point, t float64) layout.Point {
	if len(path) == 0 {
		return layout.Center()
	}
	var total float64
	for i := 1; i < len(path); i++ {
		total += path[i].Dist(path[i-1])
	}
	want := t * total
	for i := 1; i < len(path); i++ {
		seg := path[i].Dist(path[i-1])
		if want <= seg && seg > 0 {
			f := want / seg
			return layout.Point{
				X: path[i-1].X + f*(path[i].X-path[i-1].X),
				Y: path[i-1].Y + f*(path[i].Y-path[i-1].Y),
			}
		}
		want -= seg
	}
	return path[len(path)-1]
}

func clock(ms float64) string {
	s := int(ms / 1000)
	return fmt.Sprintf("%d:%02d.%03d", s/60, s%60, int(ms)%1000)
}
