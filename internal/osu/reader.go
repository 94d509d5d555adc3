package osu

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/cbegin/beatmapgen-go/internal/events"
	"github.com/cbegin/beatmapgen-go/internal/layout"
	"github.com/cbegin/beatmapgen-go/internal/model"
)

type ObjectKind int

const (
	KindCircle ObjectKind = iota
	KindSlider
	KindSpinner
)

// HitObject is one parsed [HitObjects] line. EndTime equals Time for
// circles.
type HitObject struct {
	Kind     ObjectKind
	Pos      layout.Point
	Time     float64
	EndTime  float64
	NewCombo bool
	// Curve and Points describe a slider path after the head. Red anchors
	// appear as repeated points.
	Curve  byte
	Points []layout.Point
	Slides int
	Length float64
}

type Beatmap struct {
	AudioFilename    string
	BeatmapID        int
	SliderMultiplier float64
	Objects          []HitObject
}

// Read parses the parts of a beatmap the preview and the reference context
// need.
func Read(r io.Reader) (*Beatmap, error) {
	bm := &Beatmap{BeatmapID: -1, SliderMultiplier: 1.4}
	var points []timingPoint
	var lines []string

	section := ""
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = line[1 : len(line)-1]
			continue
		}
		switch section {
		case "General":
			if k, v, ok := strings.Cut(line, ":"); ok && strings.TrimSpace(k) == "AudioFilename" {
				bm.AudioFilename = strings.TrimSpace(v)
			}
		case "Metadata":
			if k, v, ok := strings.Cut(line, ":"); ok && strings.TrimSpace(k) == "BeatmapID" {
				if id, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
					bm.BeatmapID = id
				}
			}
		case "Difficulty":
			if k, v, ok := strings.Cut(line, ":"); ok && strings.TrimSpace(k) == "SliderMultiplier" {
				f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
				if err != nil {
					return nil, fmt.Errorf("line %d: SliderMultiplier: %w", lineNo, err)
				}
				bm.SliderMultiplier = f
			}
		case "TimingPoints":
			tp, err := parseTimingPoint(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			points = append(points, tp)
		case "HitObjects":
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].time < points[j].time })

	for k, line := range lines {
		obj, err := parseHitObject(line)
		if err != nil {
			return nil, fmt.Errorf("hit object %d: %w", k, err)
		}
		if obj.Kind == KindSlider {
			beat, sv := timingAt(points, obj.Time)
			obj.EndTime = obj.Time + obj.Length/(bm.SliderMultiplier*100*sv)*beat*float64(max(1, obj.Slides))
		}
		bm.Objects = append(bm.Objects, obj)
	}
	return bm, nil
}

// ReadReference parses a beatmap into timed events for guided-difficulty
// context. Difficulty is left unknown (-1); the caller knows the star rating
// if anyone does.
func ReadReference(r io.Reader) (*model.Reference, error) {
	bm, err := Read(r)
	if err != nil {
		return nil, err
	}
	return &model.Reference{Events: bm.Events(), BeatmapID: bm.BeatmapID, Difficulty: -1}, nil
}

// Events converts the hit objects back into the event vocabulary.
func (bm *Beatmap) Events() []events.TimedEvent {
	var out []events.TimedEvent
	add := func(at float64, et events.EventType, v int) {
		out = append(out, events.TimedEvent{Time: at, Event: events.Event{Type: et, Value: v}})
	}
	for k, obj := range bm.Objects {
		if obj.NewCombo {
			add(obj.Time, events.NewCombo, 0)
		}
		if k > 0 && obj.Kind != KindSpinner {
			add(obj.Time, events.Distance, int(math.Round(obj.Pos.Dist(bm.Objects[k-1].Pos))))
		}
		switch obj.Kind {
		case KindCircle:
			add(obj.Time, events.Circle, 0)
		case KindSpinner:
			add(obj.Time, events.Spinner, 0)
			add(obj.EndTime, events.SpinnerEnd, 0)
		case KindSlider:
			add(obj.Time, events.SliderHead, 0)
			for _, a := range anchorTypes(obj.Curve, obj.Points) {
				add(obj.Time, a, 0)
			}
			add(obj.EndTime, events.LastAnchor, 0)
			add(obj.EndTime, events.SliderEnd, 0)
		}
	}
	return out
}

func parseTimingPoint(line string) (timingPoint, error) {
	f := strings.Split(line, ",")
	if len(f) < 2 {
		return timingPoint{}, fmt.Errorf("timing point %q has %d fields", line, len(f))
	}
	t, err := strconv.ParseFloat(f[0], 64)
	if err != nil {
		return timingPoint{}, err
	}
	bl, err := strconv.ParseFloat(f[1], 64)
	if err != nil {
		return timingPoint{}, err
	}
	inherited := bl < 0
	if len(f) >= 7 {
		inherited = strings.TrimSpace(f[6]) == "0"
	}
	return timingPoint{time: t, beatLength: bl, inherited: inherited}, nil
}

// timingAt returns the beat length and slider velocity in effect at t.
func timingAt(points []timingPoint, t float64) (beat, sv float64) {
	beat, sv = 500, 1
	for _, tp := range points {
		if tp.time > t {
			break
		}
		if tp.inherited {
			if tp.beatLength < 0 {
				sv = math.Max(minSliderVelocity, math.Min(maxSliderVelocity, -100/tp.beatLength))
			}
			continue
		}
		beat, sv = tp.beatLength, 1
	}
	return beat, sv
}

func parseHitObject(line string) (HitObject, error) {
	f := strings.Split(line, ",")
	if len(f) < 4 {
		return HitObject{}, fmt.Errorf("%q has %d fields", line, len(f))
	}
	x, errX := strconv.ParseFloat(f[0], 64)
	y, errY := strconv.ParseFloat(f[1], 64)
	t, errT := strconv.ParseFloat(f[2], 64)
	typ, errTyp := strconv.Atoi(f[3])
	for _, err := range []error{errX, errY, errT, errTyp} {
		if err != nil {
			return HitObject{}, err
		}
	}
	obj := HitObject{Pos: layout.Point{X: x, Y: y}, Time: t, EndTime: t, NewCombo: typ&typeNewCombo != 0}

	switch {
	case typ&typeCircle != 0:
		obj.Kind = KindCircle
	case typ&typeSpinner != 0:
		if len(f) < 6 {
			return obj, fmt.Errorf("spinner %q has no end time", line)
		}
		end, err := strconv.ParseFloat(f[5], 64)
		if err != nil {
			return obj, err
		}
		obj.Kind, obj.EndTime = KindSpinner, end
	case typ&typeSlider != 0:
		if len(f) < 8 {
			return obj, fmt.Errorf("slider %q is truncated", line)
		}
		slides, err := strconv.Atoi(f[6])
		if err != nil {
			return obj, err
		}
		length, err := strconv.ParseFloat(f[7], 64)
		if err != nil {
			return obj, err
		}
		curve, pts, err := parseCurve(f[5])
		if err != nil {
			return obj, err
		}
		obj.Kind, obj.Curve, obj.Points, obj.Slides, obj.Length = KindSlider, curve, pts, slides, length
	default:
		return obj, fmt.Errorf("unknown object type %d", typ)
	}
	return obj, nil
}

// parseCurve splits "B|x:y|x:y" into its curve letter and points.
func parseCurve(field string) (byte, []layout.Point, error) {
	parts := strings.Split(field, "|")
	if len(parts) < 2 || len(parts[0]) != 1 {
		return 0, nil, fmt.Errorf("curve %q has no points", field)
	}
	pts := make([]layout.Point, 0, len(parts)-1)
	for _, p := range parts[1:] {
		xs, ys, ok := strings.Cut(p, ":")
		if !ok {
			return 0, nil, fmt.Errorf("curve point %q", p)
		}
		x, err := strconv.ParseFloat(xs, 64)
		if err != nil {
			return 0, nil, err
		}
		y, err := strconv.ParseFloat(ys, 64)
		if err != nil {
			return 0, nil, err
		}
		pts = append(pts, layout.Point{X: x, Y: y})
	}
	return parts[0][0], pts, nil
}

// anchorTypes maps the control points before the last one to anchor
// events. A repeated point in a bezier curve is one red anchor.
func anchorTypes(curve byte, pts []layout.Point) []events.EventType {
	kind := events.BezierAnchor
	switch curve {
	case 'P':
		kind = events.PerfectAnchor
	case 'C':
		kind = events.CatmullAnchor
	}
	var out []events.EventType
	for i := 0; i < len(pts)-1; i++ {
		if kind == events.BezierAnchor && i+1 < len(pts)-1 && pts[i] == pts[i+1] {
			out = append(out, events.RedAnchor)
			i++
			continue
		}
		out = append(out, kind)
	}
	return out
}
