// Package stitch merges per-window event outputs into one globally
// time-ordered sequence.
//
// Events are handled as hit objects (events.Group). Windows are visited in
// time order. With C the end of the last accepted object and T its onset, an
// object at t
//
//   - replaces the last accepted object when it came from an earlier window
//     and |t - T| <= Epsilon, so the later window wins ties,
//   - is discarded when t < C,
//   - is accepted otherwise.
//
// Inside one window objects are stably sorted and an object closer than
// MinOnsetDelta to the previous one is dropped.
package stitch

import (
	"math"
	"sort"

	"github.com/cbegin/beatmapgen-go/internal/errs"
	"github.com/cbegin/beatmapgen-go/internal/events"
)

// Segment is one window's output with its time range in milliseconds.
type Segment struct {
	Index  int
	Start  float64
	End    float64
	Events []events.TimedEvent
}

type Options struct {
	// Epsilon is the tie distance in ms between onsets.
	Epsilon float64
	// MinOnsetDelta is the minimum spacing in ms between two objects.
	MinOnsetDelta float64
}

// DefaultOptions uses one time-shift step for both tolerances.
func DefaultOptions() Options {
	return Options{Epsilon: 10, MinOnsetDelta: 10}
}

type accepted struct {
	events.Group
	end float64
	gap bool
	// seg is the position of the source segment in start order.
	seg int
}

// Stitch merges segs. The input is not modified.
func Stitch(segs []Segment, opts Options) *events.Sequence {
	order := make([]Segment, len(segs))
	copy(order, segs)
	sort.SliceStable(order, func(i, j int) bool { return order[i].Start < order[j].Start })

	seq := &events.Sequence{}
	var kept []accepted
	covered := math.Inf(-1)
	for n, seg := range order {
		contributed := false
		for _, g := range windowGroups(seg, opts) {
			k := len(kept)
			if k > 0 {
				last := kept[k-1]
				if !last.gap && last.seg < n && math.Abs(g.Time-last.Time) <= opts.Epsilon && g.Time >= endBefore(kept, k-1) {
					kept[k-1] = accepted{Group: g, end: g.End(), seg: n}
					contributed = true
					continue
				}
				if g.Time < last.end {
					continue
				}
			}
			kept = append(kept, accepted{Group: g, end: g.End(), seg: n})
			contributed = true
		}

		if n > 0 && !contributed {
			from := max(covered, seg.Start, endBefore(kept, len(kept)))
			if from < seg.End {
				gap := errs.StitchGapWarning{Window: seg.Index, From: from, To: seg.End}
				seq.Gaps = append(seq.Gaps, gap)
				marker := events.TimedEvent{Time: from, Event: events.Event{Type: events.Gap}}
				kept = append(kept, accepted{
					Group: events.Group{Time: from, Events: []events.TimedEvent{marker}},
					end:   from,
					gap:   true,
					seg:   n,
				})
			}
		}
		covered = max(covered, seg.End)
	}

	groups := make([]events.Group, len(kept))
	for i, a := range kept {
		groups[i] = a.Group
	}
	seq.Events = events.Flatten(groups)
	return seq
}

func endBefore(kept []accepted, k int) float64 {
	if k == 0 {
		return math.Inf(-1)
	}
	return kept[k-1].end
}

// windowGroups returns the objects of one segment in time order. Event times
// inside an object are made non-decreasing and objects crowding the previous
// one are dropped.
func windowGroups(seg Segment, opts Options) []events.Group {
	groups := events.GroupByObject(seg.Events)
	for i := range groups {
		groups[i] = monotone(groups[i])
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Time < groups[j].Time })

	out := groups[:0]
	last := math.Inf(-1)
	for _, g := range groups {
		if !isGap(g) && g.Time-last < opts.MinOnsetDelta {
			continue
		}
		out = append(out, g)
		if !isGap(g) {
			last = g.Time
		}
	}
	return out
}

func monotone(g events.Group) events.Group {
	evs := make([]events.TimedEvent, len(g.Events))
	copy(evs, g.Events)
	// Announcing tokens take the onset time of their object.
	if onset, ok := g.Onset(); ok {
		for i := range evs {
			if evs[i].Type.IsOnset() {
				break
			}
			evs[i].Time = onset.Time
		}
	}
	now := math.Inf(-1)
	for i := range evs {
		if evs[i].Time < now {
			evs[i].Time = now
		}
		now = evs[i].Time
	}
	return events.Group{Time: g.Time, Events: evs}
}

func isGap(g events.Group) bool {
	return len(g.Events) == 1 && g.Events[0].Type == events.Gap
}
