// Package tokenizer maps beatmap events and conditioning values to the
// integer vocabulary the sequence models read and write.
//
// Vocabulary layout, in id order:
//
//	PAD SOS EOS GAP | style[0..N) style_unk | diff[0..D) diff_unk |
//	diffusion_off diffusion_on | time_shift[-T..T] | distance[0..M] | single-valued events
package tokenizer

import (
	"fmt"
	"math"

	"github.com/cbegin/beatmapgen-go/internal/errs"
	"github.com/cbegin/beatmapgen-go/internal/events"
)

const (
	PadID = 0
	SOSID = 1
	EOSID = 2
	GapID = 3

	// StepsPerMillisecond is the time-shift resolution: one step is 10 ms.
	StepsPerMillisecond = 0.1
	// MillisPerStep is the inverse of StepsPerMillisecond.
	MillisPerStep = 1 / StepsPerMillisecond

	specialCount = 4
)

// Spec fixes the shape of the vocabulary. Checkpoints record the Spec they
// were trained with and are rejected when it differs from the configured one.
type Spec struct {
	NumClasses     int `yaml:"num_classes"`
	NumDiffClasses int `yaml:"num_diff_classes"`
	MaxTimeShift   int `yaml:"max_time_shift"`
	MaxDistance    int `yaml:"max_distance"`
}

func DefaultSpec() Spec {
	return Spec{
		NumClasses:     1024,
		NumDiffClasses: 100,
		MaxTimeShift:   1024,
		MaxDistance:    640,
	}
}

type eventRange struct {
	typ      events.EventType
	min, max int
	start    int
}

var singleTypes = []events.EventType{
	events.NewCombo,
	events.Circle,
	events.Spinner,
	events.SpinnerEnd,
	events.SliderHead,
	events.BezierAnchor,
	events.PerfectAnchor,
	events.CatmullAnchor,
	events.RedAnchor,
	events.LastAnchor,
	events.SliderEnd,
	events.TimingPoint,
}

type Tokenizer struct {
	spec       Spec
	styleStart int
	diffStart  int
	hintStart  int
	ranges     []eventRange
	byType     map[events.EventType]int
	vocabSize  int
}

func New(spec Spec) (*Tokenizer, error) {
	switch {
	case spec.NumClasses <= 0:
		return nil, errs.Configf("data.num_classes", "must be positive, got %d", spec.NumClasses)
	case spec.NumDiffClasses <= 0:
		return nil, errs.Configf("data.num_diff_classes", "must be positive, got %d", spec.NumDiffClasses)
	case spec.MaxTimeShift <= 0:
		return nil, errs.Configf("data.max_time_shift", "must be positive, got %d", spec.MaxTimeShift)
	case spec.MaxDistance <= 0:
		return nil, errs.Configf("data.max_distance", "must be positive, got %d", spec.MaxDistance)
	}
	t := &Tokenizer{spec: spec, byType: make(map[events.EventType]int)}
	next := specialCount
	t.styleStart = next
	next += spec.NumClasses + 1
	t.diffStart = next
	next += spec.NumDiffClasses + 1
	t.hintStart = next
	next += 2

	add := func(typ events.EventType, lo, hi int) {
		t.byType[typ] = len(t.ranges)
		t.ranges = append(t.ranges, eventRange{typ: typ, min: lo, max: hi, start: next})
		next += hi - lo + 1
	}
	add(events.TimeShift, -spec.MaxTimeShift, spec.MaxTimeShift)
	add(events.Distance, 0, spec.MaxDistance)
	for _, typ := range singleTypes {
		add(typ, 0, 0)
	}
	t.vocabSize = next
	return t, nil
}

func (t *Tokenizer) Spec() Spec     { return t.spec }
func (t *Tokenizer) VocabSize() int { return t.vocabSize }

// Encode returns the token id of ev. Ranged values outside their range are an error.
func (t *Tokenizer) Encode(ev events.Event) (int, error) {
	i, ok := t.byType[ev.Type]
	if !ok {
		return 0, fmt.Errorf("tokenizer: %s has no token", ev.Type)
	}
	r := t.ranges[i]
	if ev.Value < r.min || ev.Value > r.max {
		return 0, fmt.Errorf("tokenizer: %s value %d outside [%d, %d]", ev.Type, ev.Value, r.min, r.max)
	}
	return r.start + ev.Value - r.min, nil
}

// Decode returns the event for an event token id.
func (t *Tokenizer) Decode(id int) (events.Event, error) {
	for _, r := range t.ranges {
		if id >= r.start && id <= r.start+r.max-r.min {
			return events.Event{Type: r.typ, Value: id - r.start + r.min}, nil
		}
	}
	return events.Event{}, fmt.Errorf("tokenizer: id %d is not an event token", id)
}

// IsEvent reports whether id decodes to an event.
func (t *Tokenizer) IsEvent(id int) bool {
	return id >= t.hintStart+2 && id < t.vocabSize
}

// Range returns the first and last id of typ.
func (t *Tokenizer) Range(typ events.EventType) (int, int) {
	r := t.ranges[t.byType[typ]]
	return r.start, r.start + r.max - r.min
}

// EncodeStyle maps a beatmap style index to its token; negative or
// out-of-range indices map to the unknown style token.
func (t *Tokenizer) EncodeStyle(idx int) int {
	if idx < 0 || idx >= t.spec.NumClasses {
		return t.StyleUnk()
	}
	return t.styleStart + idx
}

func (t *Tokenizer) StyleUnk() int { return t.styleStart + t.spec.NumClasses }

// EncodeDifficulty maps a star rating to a difficulty token at 0.1 star
// resolution, clamped to the class range. NaN or negative ratings map to the
// unknown difficulty token.
func (t *Tokenizer) EncodeDifficulty(stars float64) int {
	if math.IsNaN(stars) || stars < 0 {
		return t.DiffUnk()
	}
	c := int(math.Round(stars * 10))
	if c >= t.spec.NumDiffClasses {
		c = t.spec.NumDiffClasses - 1
	}
	return t.diffStart + c
}

func (t *Tokenizer) DiffUnk() int { return t.diffStart + t.spec.NumDiffClasses }

// DiffusionHint returns the token telling the decoder whether positions will
// be produced by the diffusion stage.
func (t *Tokenizer) DiffusionHint(enabled bool) int {
	if enabled {
		return t.hintStart + 1
	}
	return t.hintStart
}

// TimeSteps converts a millisecond offset into time-shift steps.
func TimeSteps(deltaMillis float64) int {
	return int(math.Round(deltaMillis * StepsPerMillisecond))
}

// EncodeTimed encodes evs with time shifts relative to origin. A time shift
// is emitted whenever the time changes, except before anchors, which inherit
// the time of their slider head. Offsets are clamped to the time-shift range.
func (t *Tokenizer) EncodeTimed(evs []events.TimedEvent, origin float64) ([]int, error) {
	out := make([]int, 0, len(evs)*2)
	last := math.Inf(-1)
	for _, ev := range evs {
		if ev.Type == events.TimeShift || ev.Type == events.Gap {
			continue
		}
		if ev.Time != last && !ev.Type.IsAnchor() {
			steps := TimeSteps(ev.Time - origin)
			steps = max(-t.spec.MaxTimeShift, min(t.spec.MaxTimeShift, steps))
			id, err := t.Encode(events.Event{Type: events.TimeShift, Value: steps})
			if err != nil {
				return nil, err
			}
			out = append(out, id)
			last = ev.Time
		}
		val := ev.Value
		if ev.Type == events.Distance {
			val = max(0, min(t.spec.MaxDistance, val))
		}
		id, err := t.Encode(events.Event{Type: ev.Type, Value: val})
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// DecodeTimed turns generated ids into timed events relative to origin.
// Decoding stops at EOS; special and conditioning tokens are skipped.
// Events before the first time shift are placed at origin.
func (t *Tokenizer) DecodeTimed(ids []int, origin float64) []events.TimedEvent {
	var out []events.TimedEvent
	now := origin
	for _, id := range ids {
		if id == EOSID {
			break
		}
		if !t.IsEvent(id) {
			continue
		}
		ev, err := t.Decode(id)
		if err != nil {
			continue
		}
		if ev.Type == events.TimeShift {
			now = origin + float64(ev.Value)*MillisPerStep
			continue
		}
		out = append(out, events.TimedEvent{Time: now, Event: ev})
	}
	return out
}
