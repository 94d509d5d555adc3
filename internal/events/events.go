package events

import "fmt"

type EventType int

const (
	TimeShift EventType = iota + 1
	Distance
	NewCombo
	Circle
	Spinner
	SpinnerEnd
	SliderHead
	BezierAnchor
	PerfectAnchor
	CatmullAnchor
	RedAnchor
	LastAnchor
	SliderEnd
	TimingPoint
	Gap
)

var typeNames = map[EventType]string{
	TimeShift:     "time_shift",
	Distance:      "distance",
	NewCombo:      "new_combo",
	Circle:        "circle",
	Spinner:       "spinner",
	SpinnerEnd:    "spinner_end",
	SliderHead:    "slider_head",
	BezierAnchor:  "bezier_anchor",
	PerfectAnchor: "perfect_anchor",
	CatmullAnchor: "catmull_anchor",
	RedAnchor:     "red_anchor",
	LastAnchor:    "last_anchor",
	SliderEnd:     "slider_end",
	TimingPoint:   "timing_point",
	Gap:           "gap",
}

func (t EventType) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("event(%d)", int(t))
}

// IsAnchor reports whether t is a slider control point.
func (t EventType) IsAnchor() bool {
	switch t {
	case BezierAnchor, PerfectAnchor, CatmullAnchor, RedAnchor:
		return true
	}
	return false
}

// IsOnset reports whether t starts a hit object.
func (t EventType) IsOnset() bool {
	return t == Circle || t == SliderHead || t == Spinner
}

// IsPlaceable reports whether events of type t receive a playfield position.
func (t EventType) IsPlaceable() bool {
	return t == Circle || t == SliderHead || t == LastAnchor || t.IsAnchor()
}

// Event is one decoded token. Value carries the payload of ranged types
// (time shift steps, distance in pixels) and is zero otherwise.
type Event struct {
	Type  EventType
	Value int
}

func (e Event) String() string {
	switch e.Type {
	case TimeShift, Distance:
		return fmt.Sprintf("%s:%d", e.Type, e.Value)
	}
	return e.Type.String()
}

// TimedEvent is an Event pinned to an absolute time in milliseconds.
type TimedEvent struct {
	Time float64
	Event
}
