// Package osu writes generated sequences as .osu beatmap files (format v14)
// and reads reference beatmaps back into timed events.
package osu

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/cbegin/beatmapgen-go/internal/events"
	"github.com/cbegin/beatmapgen-go/internal/layout"
)

const (
	typeCircle   = 1
	typeSlider   = 2
	typeNewCombo = 4
	typeSpinner  = 8

	minSliderVelocity = 0.1
	maxSliderVelocity = 10
)

// Metadata is everything the file needs besides the hit objects.
type Metadata struct {
	AudioFilename    string
	Title            string
	Artist           string
	Creator          string
	Version          string
	BeatmapID        int
	BPM              float64
	Offset           float64
	SliderMultiplier float64

	HPDrainRate       float64
	CircleSize        float64
	OverallDifficulty float64
	ApproachRate      float64
}

// withDefaults fills the settings the generator does not predict.
func (m Metadata) withDefaults() Metadata {
	if m.HPDrainRate == 0 {
		m.HPDrainRate = 5
	}
	if m.CircleSize == 0 {
		m.CircleSize = 4
	}
	if m.OverallDifficulty == 0 {
		m.OverallDifficulty = 8
	}
	if m.ApproachRate == 0 {
		m.ApproachRate = 9
	}
	if m.SliderMultiplier <= 0 {
		m.SliderMultiplier = 1.4
	}
	if m.BPM <= 0 {
		m.BPM = 120
	}
	return m
}

// BeatLength is the duration of one beat in ms.
func (m Metadata) BeatLength() float64 { return 60000 / m.BPM }

type timingPoint struct {
	time       float64
	beatLength float64
	inherited  bool
}

// Write renders seq as a beatmap. positions may be nil, in which case the
// fallback walk places every object.
func Write(w io.Writer, seq *events.Sequence, positions *layout.PositionField, meta Metadata) error {
	meta = meta.withDefaults()
	fallback := layout.Fallback(seq)
	pos := func(idx int) layout.Point {
		if p, ok := positions.At(idx); ok {
			return p.Clamp()
		}
		p, _ := fallback.At(idx)
		return p
	}

	objects, points := buildObjects(seq, pos, meta)
	sort.SliceStable(points, func(i, j int) bool { return points[i].time < points[j].time })

	bw := bufio.NewWriter(w)
	fmt.Fprint(bw, "osu file format v14\n\n")
	fmt.Fprint(bw, "[General]\n")
	fmt.Fprintf(bw, "AudioFilename: %s\n", meta.AudioFilename)
	fmt.Fprint(bw, "AudioLeadIn: 0\nPreviewTime: -1\nCountdown: 0\nSampleSet: Soft\nStackLeniency: 0.7\nMode: 0\nLetterboxInBreaks: 0\nWidescreenStoryboard: 0\n\n")
	fmt.Fprint(bw, "[Editor]\nDistanceSpacing: 1\nBeatDivisor: 4\nGridSize: 8\nTimelineZoom: 1\n\n")
	fmt.Fprint(bw, "[Metadata]\n")
	fmt.Fprintf(bw, "Title:%s\nTitleUnicode:%s\nArtist:%s\nArtistUnicode:%s\n", meta.Title, meta.Title, meta.Artist, meta.Artist)
	fmt.Fprintf(bw, "Creator:%s\nVersion:%s\nSource:\nTags:\nBeatmapID:%d\nBeatmapSetID:-1\n\n", meta.Creator, meta.Version, max(0, meta.BeatmapID))
	fmt.Fprint(bw, "[Difficulty]\n")
	fmt.Fprintf(bw, "HPDrainRate:%s\nCircleSize:%s\nOverallDifficulty:%s\nApproachRate:%s\n",
		num(meta.HPDrainRate), num(meta.CircleSize), num(meta.OverallDifficulty), num(meta.ApproachRate))
	fmt.Fprintf(bw, "SliderMultiplier:%s\nSliderTickRate:1\n\n", num(meta.SliderMultiplier))
	fmt.Fprint(bw, "[Events]\n//Background and Video events\n//Break Periods\n\n")

	fmt.Fprint(bw, "[TimingPoints]\n")
	for _, tp := range points {
		uninherited := 1
		if tp.inherited {
			uninherited = 0
		}
		fmt.Fprintf(bw, "%d,%s,4,2,0,100,%d,0\n", ms(tp.time), num(tp.beatLength), uninherited)
	}
	fmt.Fprint(bw, "\n\n[HitObjects]\n")
	for _, line := range objects {
		fmt.Fprintln(bw, line)
	}
	return bw.Flush()
}

// buildObjects walks seq once and returns hit object lines and timing points.
func buildObjects(seq *events.Sequence, pos func(int) layout.Point, meta Metadata) ([]string, []timingPoint) {
	points := []timingPoint{{time: meta.Offset, beatLength: meta.BeatLength()}}
	var lines []string
	newCombo := false
	evs := seq.Events
	for i := 0; i < len(evs); i++ {
		ev := evs[i]
		switch ev.Type {
		case events.NewCombo:
			newCombo = true
		case events.Circle:
			p := pos(i)
			lines = append(lines, fmt.Sprintf("%d,%d,%d,%d,0,0:0:0:0:", px(p.X), px(p.Y), ms(ev.Time), typeCircle|comboBit(&newCombo)))
		case events.Spinner:
			end := ev.Time
			for j := i + 1; j < len(evs); j++ {
				if evs[j].Type == events.SpinnerEnd {
					end = evs[j].Time
					i = j
					break
				}
				if evs[j].Type.IsOnset() {
					break
				}
			}
			c := layout.Center()
			lines = append(lines, fmt.Sprintf("%d,%d,%d,%d,0,%d,0:0:0:0:", px(c.X), px(c.Y), ms(ev.Time), typeSpinner|comboBit(&newCombo), ms(math.Max(end, ev.Time+1))))
		case events.SliderHead:
			s, next := readSlider(evs, i, pos)
			i = next
			line, tp := s.render(meta, typeSlider|comboBit(&newCombo))
			points = append(points, tp)
			lines = append(lines, line)
		}
	}
	return lines, points
}

func comboBit(pending *bool) int {
	if *pending {
		*pending = false
		return typeNewCombo
	}
	return 0
}

type slider struct {
	start, end float64
	curve      byte
	points     []layout.Point // head first
}

// readSlider collects the slider starting at evs[i]. It returns the index
// of the last event that belongs to it.
func readSlider(evs []events.TimedEvent, i int, pos func(int) layout.Point) (slider, int) {
	s := slider{start: evs[i].Time, end: evs[i].Time, points: []layout.Point{pos(i)}}
	last := i
	for j := i + 1; j < len(evs); j++ {
		ev := evs[j]
		if ev.Type.IsOnset() || ev.Type == events.NewCombo || ev.Type == events.Distance {
			break
		}
		last = j
		switch ev.Type {
		case events.BezierAnchor, events.PerfectAnchor, events.CatmullAnchor, events.RedAnchor:
			if s.curve == 0 {
				s.curve = curveLetter(ev.Type)
			}
			p := pos(j)
			s.points = append(s.points, p)
			if ev.Type == events.RedAnchor {
				s.points = append(s.points, p)
			}
		case events.LastAnchor:
			s.points = append(s.points, pos(j))
			s.end = ev.Time
		case events.SliderEnd:
			s.end = ev.Time
			return s, last
		}
	}
	return s, last
}

func curveLetter(t events.EventType) byte {
	switch t {
	case events.PerfectAnchor:
		return 'P'
	case events.CatmullAnchor:
		return 'C'
	}
	return 'B'
}

func (s slider) render(meta Metadata, typ int) (string, timingPoint) {
	pts := s.points
	if len(pts) == 1 {
		// A slider needs a tail; extend it to the right.
		pts = append(pts, layout.Point{X: pts[0].X + 1, Y: pts[0].Y}.Clamp())
	}
	curve := s.curve
	switch {
	case curve == 0 && len(pts) == 2:
		curve = 'L'
	case curve == 0:
		curve = 'B'
	case curve == 'P' && len(pts) != 3:
		curve = 'B'
	}

	var length float64
	for k := 1; k < len(pts); k++ {
		length += pts[k].Dist(pts[k-1])
	}
	length = math.Max(length, 1)
	duration := math.Max(s.end-s.start, 1)

	// Pick the velocity that makes the slider last exactly duration.
	beat := meta.BeatLength()
	sv := length * beat / (duration * meta.SliderMultiplier * 100)
	if sv < minSliderVelocity || sv > maxSliderVelocity {
		sv = math.Max(minSliderVelocity, math.Min(maxSliderVelocity, sv))
		length = sv * meta.SliderMultiplier * 100 * duration / beat
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d,%d,%d,%d,0,%c", px(pts[0].X), px(pts[0].Y), ms(s.start), typ, curve)
	for _, p := range pts[1:] {
		fmt.Fprintf(&b, "|%d:%d", px(p.X), px(p.Y))
	}
	fmt.Fprintf(&b, ",1,%s,0|0,0:0|0:0,0:0:0:0:", num(length))
	return b.String(), timingPoint{time: s.start, beatLength: -100 / sv, inherited: true}
}

func px(v float64) int { return int(math.Round(v)) }
func ms(v float64) int { return int(math.Round(v)) }

func num(v float64) string {
	s := fmt.Sprintf("%.6f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
