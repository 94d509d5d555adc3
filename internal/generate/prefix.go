package generate

import (
	"github.com/cbegin/beatmapgen-go/internal/events"
	"github.com/cbegin/beatmapgen-go/internal/model"
	"github.com/cbegin/beatmapgen-go/internal/tokenizer"
	"github.com/cbegin/beatmapgen-go/internal/window"
)

// Layout records where each block of a window's target slot sits.
//
//	[pad][reference block][special tokens][pre tokens][SOS][generated...]
type Layout struct {
	Pad       int
	Reference int // reference tokens including their special block
	Special   int
	Pre       int
	// Capacity is the number of slots left for SOS and generated tokens.
	Capacity int
}

// PrefixLen is the number of tokens before SOS.
func (l Layout) PrefixLen() int { return l.Pad + l.Reference + l.Special + l.Pre }

// PriorTail is the explicit cross-window context: events already generated
// before the current window. Values are never mutated after construction.
type PriorTail struct {
	Events []events.TimedEvent
}

// Advance returns the tail for a window starting at nextStart, built from
// the previous window's events and the older tail, limited to span ms.
func (t PriorTail) Advance(prev []events.TimedEvent, prevStart, nextStart, span float64) PriorTail {
	var out []events.TimedEvent
	from := nextStart - span
	for _, ev := range t.Events {
		if ev.Time >= from && ev.Time < prevStart {
			out = append(out, ev)
		}
	}
	for _, ev := range prev {
		if ev.Time >= from && ev.Time < nextStart {
			out = append(out, ev)
		}
	}
	return PriorTail{Events: out}
}

// specialBlock fills a SpecialTokenLen block with the role tokens.
func specialBlock(tok *tokenizer.Tokenizer, o Options, style, diff, hint int) []int {
	block := make([]int, o.SpecialTokenLen)
	for i := range block {
		block[i] = tokenizer.PadID
	}
	if o.StyleTokenIndex >= 0 {
		block[o.StyleTokenIndex] = style
	}
	if o.DiffTokenIndex >= 0 {
		block[o.DiffTokenIndex] = diff
	}
	if o.DiffusionTokenIndex >= 0 {
		block[o.DiffusionTokenIndex] = hint
	}
	return block
}

// objectSuffix shrinks a suffix of at most n tokens so that it opens with the
// time shift of a whole hit object.
func objectSuffix(tok *tokenizer.Tokenizer, pre []int, n int) int {
	lo, hi := tok.Range(events.TimeShift)
	for i := len(pre) - min(n, len(pre)); i < len(pre); i++ {
		if pre[i] < lo || pre[i] > hi {
			continue
		}
		if i+1 < len(pre) {
			if ev, err := tok.Decode(pre[i+1]); err == nil && closesObject(ev.Type) {
				continue
			}
		}
		return len(pre) - i
	}
	return 0
}

// closesObject reports whether t belongs to the tail of a slider or spinner.
func closesObject(t events.EventType) bool {
	return t == events.LastAnchor || t == events.SliderEnd || t == events.SpinnerEnd
}

// buildPrefix lays out the target slot before SOS. With a center-padded
// decoder the prefix is left-padded to tgt_seq_len/2; otherwise it starts at
// slot 0 and at least half of the slot stays free for generation. Pre tokens
// keep their most recent end, reference tokens keep their earliest start.
func buildPrefix(tok *tokenizer.Tokenizer, o Options, plan *window.Plan, w window.Window, style model.StyleContext, tail PriorTail) ([]int, Layout, error) {
	start := plan.StartMillis(w)
	stl := o.SpecialTokenLen
	tgt := plan.TgtSeqLen

	var pre []int
	if o.AddPreTokens {
		var err error
		pre, err = tok.EncodeTimed(tail.Events, start)
		if err != nil {
			return nil, Layout{}, err
		}
		if o.MaxPreTokenLen > 0 && len(pre) > o.MaxPreTokenLen {
			pre = pre[len(pre)-objectSuffix(tok, pre, o.MaxPreTokenLen):]
		}
	}

	var ref []int
	numRef := 0
	if o.AddGDContext && style.Reference != nil {
		var evs []events.TimedEvent
		for _, ev := range style.Reference.Events {
			if ev.Time >= start && ev.Time < plan.EndMillis(w) {
				evs = append(evs, ev)
			}
		}
		body, err := tok.EncodeTimed(evs, start)
		if err != nil {
			return nil, Layout{}, err
		}
		ref = append(specialBlock(tok, o,
			tok.EncodeStyle(style.Reference.BeatmapID),
			tok.EncodeDifficulty(style.Reference.Difficulty),
			tokenizer.PadID), body...)
		numRef = len(ref)
	}

	var l Layout
	l.Special = stl
	if plan.CenterPadDecoder {
		preLen := plan.PreTokenLen()
		l.Pre = objectSuffix(tok, pre, max(0, min(preLen-stl, len(pre))))
		l.Reference = max(0, min(preLen-l.Pre-stl, numRef))
		l.Pad = preLen - l.Pre - stl - l.Reference
		l.Capacity = tgt - preLen
	} else {
		budget := max(0, tgt-stl-max(1, tgt/2))
		l.Pre = objectSuffix(tok, pre, min(budget, len(pre)))
		l.Reference = min(budget-l.Pre, numRef)
		l.Capacity = tgt - l.Reference - stl - l.Pre
	}
	if l.Reference > 0 && l.Reference <= stl {
		// A reference block without any reference tokens carries nothing.
		if plan.CenterPadDecoder {
			l.Pad += l.Reference
		} else {
			l.Capacity += l.Reference
		}
		l.Reference = 0
	}

	prefix := make([]int, 0, l.PrefixLen()+1)
	for i := 0; i < l.Pad; i++ {
		prefix = append(prefix, tokenizer.PadID)
	}
	prefix = append(prefix, ref[:l.Reference]...)
	prefix = append(prefix, specialBlock(tok, o,
		tok.EncodeStyle(style.BeatmapID),
		tok.EncodeDifficulty(style.Difficulty),
		tok.DiffusionHint(style.Diffusion))...)
	prefix = append(prefix, pre[len(pre)-l.Pre:]...)
	return prefix, l, nil
}
