package events

import "github.com/cbegin/beatmapgen-go/internal/errs"

// Sequence is the stitched, globally time-ordered event stream of a run.
// TimeShift tokens are folded into Time and never appear in Events.
type Sequence struct {
	Events []TimedEvent
	Gaps   []errs.StitchGapWarning
}

// Len returns the number of events.
func (s *Sequence) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Events)
}

// Between returns the events with from <= Time < to. The result aliases s.
func (s *Sequence) Between(from, to float64) []TimedEvent {
	if s == nil {
		return nil
	}
	lo, hi := len(s.Events), len(s.Events)
	for i, ev := range s.Events {
		if ev.Time >= from {
			lo = i
			break
		}
	}
	for i := lo; i < len(s.Events); i++ {
		if s.Events[i].Time >= to {
			hi = i
			break
		}
	}
	return s.Events[lo:hi]
}

// Group is one hit object: the distance and combo tokens announcing it,
// its onset, and the anchors and end markers that close it. Timing points
// and gap markers form groups of their own.
type Group struct {
	// Time is the onset time, or the first event's time when the group
	// has no onset.
	Time   float64
	Events []TimedEvent
}

// Onset returns the first onset event of g, if any.
func (g Group) Onset() (TimedEvent, bool) {
	for _, ev := range g.Events {
		if ev.Type.IsOnset() {
			return ev, true
		}
	}
	return TimedEvent{}, false
}

// End returns the latest event time in g.
func (g Group) End() float64 {
	end := g.Time
	for _, ev := range g.Events {
		end = max(end, ev.Time)
	}
	return end
}

func closes(t EventType) bool {
	return t.IsAnchor() || t == LastAnchor || t == SliderEnd || t == SpinnerEnd
}

func announces(t EventType) bool {
	return t == Distance || t == NewCombo
}

// GroupByObject splits evs into hit objects in input order.
func GroupByObject(evs []TimedEvent) []Group {
	var groups []Group
	prelude := false // last group holds only announcing tokens so far
	for _, ev := range evs {
		n := len(groups)
		switch {
		case n > 0 && closes(ev.Type):
			groups[n-1].Events = append(groups[n-1].Events, ev)
			continue
		case n > 0 && prelude && announces(ev.Type):
			groups[n-1].Events = append(groups[n-1].Events, ev)
			continue
		case n > 0 && prelude && ev.Type.IsOnset():
			groups[n-1].Time = ev.Time
			groups[n-1].Events = append(groups[n-1].Events, ev)
			prelude = false
			continue
		}
		groups = append(groups, Group{Time: ev.Time, Events: []TimedEvent{ev}})
		prelude = announces(ev.Type)
	}
	return groups
}

// Flatten concatenates the events of groups.
func Flatten(groups []Group) []TimedEvent {
	n := 0
	for _, g := range groups {
		n += len(g.Events)
	}
	out := make([]TimedEvent, 0, n)
	for _, g := range groups {
		out = append(out, g.Events...)
	}
	return out
}
