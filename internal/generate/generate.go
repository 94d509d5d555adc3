// Package generate runs the audio-conditioned decoder over scheduled
// windows and decodes each window's tokens into timed events.
package generate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/cbegin/beatmapgen-go/internal/errs"
	"github.com/cbegin/beatmapgen-go/internal/events"
	"github.com/cbegin/beatmapgen-go/internal/model"
	"github.com/cbegin/beatmapgen-go/internal/spectrogram"
	"github.com/cbegin/beatmapgen-go/internal/tokenizer"
	"github.com/cbegin/beatmapgen-go/internal/window"
)

// Result is the output of one window.
type Result struct {
	Window      window.Window
	StartMillis float64
	EndMillis   float64
	Layout      Layout
	// Tokens are the generated ids after SOS, excluding EOS.
	Tokens []int
	// Events are Tokens decoded to absolute times and clipped to the window.
	Events []events.TimedEvent
	// Ended reports whether the decoder emitted EOS before the slot filled.
	Ended bool
}

type Generator struct {
	tok     *tokenizer.Tokenizer
	decoder model.Decoder
	opts    Options
	log     *slog.Logger
}

func New(tok *tokenizer.Tokenizer, decoder model.Decoder, opts Options) (*Generator, error) {
	if decoder.Spec() != tok.Spec() {
		return nil, errs.Configf("model_path", "decoder vocabulary %+v does not match configured %+v", decoder.Spec(), tok.Spec())
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Generator{tok: tok, decoder: decoder, opts: opts, log: logger}, nil
}

// Sequential reports whether windows must run in order because each one
// reads the previous window's output.
func (g *Generator) Sequential() bool { return g.opts.AddPreTokens }

// Generate produces the tokens of window w. It reads only its arguments and
// may run concurrently with other windows.
func (g *Generator) Generate(ctx context.Context, plan *window.Plan, features *spectrogram.Features, w window.Window, style model.StyleContext, tail PriorTail) (Result, error) {
	if err := g.opts.Validate(plan.TgtSeqLen); err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	prefix, layout, err := buildPrefix(g.tok, g.opts, plan, w, style, tail)
	if err != nil {
		return Result{}, fmt.Errorf("build prefix: %w", err)
	}

	sess, err := g.decoder.Start(ctx, model.WindowInput{
		Index:       w.Index,
		Frames:      plan.Frames(features, w),
		ValidFrames: w.Len,
		FrameMillis: plan.FrameMillis,
		StyleID:     style.BeatmapID,
	})
	if err != nil {
		return Result{}, fmt.Errorf("start decoder: %w", err)
	}
	defer sess.Close()

	tokens := make([]int, 0, plan.TgtSeqLen)
	tokens = append(tokens, prefix...)
	tokens = append(tokens, tokenizer.SOSID)
	genStart := len(tokens)

	smp := newSampler(g.tok, g.opts, w.Index)
	ended := false
	for len(tokens) < plan.TgtSeqLen {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		logits, err := sess.NextLogits(ctx, tokens)
		if err != nil {
			return Result{}, fmt.Errorf("token %d: %w", len(tokens)-genStart, err)
		}
		id, err := smp.pick(logits)
		if err != nil {
			return Result{}, fmt.Errorf("token %d: %w", len(tokens)-genStart, err)
		}
		if id == tokenizer.EOSID {
			ended = true
			break
		}
		tokens = append(tokens, id)
	}

	res := Result{
		Window:      w,
		StartMillis: plan.StartMillis(w),
		EndMillis:   plan.EndMillis(w),
		Layout:      layout,
		Tokens:      append([]int(nil), tokens[genStart:]...),
		Ended:       ended,
	}
	res.Events = clip(g.tok.DecodeTimed(res.Tokens, res.StartMillis), res.StartMillis, res.EndMillis)
	g.log.Debug("window generated",
		"window", w.Index,
		"start_ms", res.StartMillis,
		"prefix", layout.PrefixLen(),
		"tokens", len(res.Tokens),
		"events", len(res.Events),
		"eos", ended)
	return res, nil
}

// clip drops events outside [start, end). Slider and spinner continuations
// may extend past end so objects started inside the window stay whole.
func clip(evs []events.TimedEvent, start, end float64) []events.TimedEvent {
	out := evs[:0]
	for _, ev := range evs {
		if ev.Time < start {
			continue
		}
		if ev.Time >= end && !continuation(ev.Type) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

func continuation(t events.EventType) bool {
	return t.IsAnchor() || t == events.LastAnchor || t == events.SliderEnd || t == events.SpinnerEnd
}

// GenerateAll runs every window of plan and returns the results in window
// order. Independent windows fan out over a bounded worker pool; with pre
// tokens enabled each window waits for its predecessor's tail. Any failure
// cancels the remaining windows and is reported with its window index.
func (g *Generator) GenerateAll(ctx context.Context, plan *window.Plan, features *spectrogram.Features, style model.StyleContext) ([]Result, error) {
	if err := g.opts.Validate(plan.TgtSeqLen); err != nil {
		return nil, err
	}
	results := make([]Result, len(plan.Windows))
	if g.Sequential() {
		var tail PriorTail
		for i, w := range plan.Windows {
			res, err := g.Generate(ctx, plan, features, w, style, tail)
			if err != nil {
				return nil, windowError(w.Index, err)
			}
			results[i] = res
			if i+1 < len(plan.Windows) {
				next := plan.Windows[i+1]
				tail = tail.Advance(res.Events, res.StartMillis, plan.StartMillis(next), plan.SpanMillis())
			}
		}
		return results, nil
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.opts.Workers)
	for i, w := range plan.Windows {
		eg.Go(func() error {
			res, err := g.Generate(egCtx, plan, features, w, style, PriorTail{})
			if err != nil {
				return windowError(w.Index, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func windowError(index int, err error) error {
	var ce *errs.ConfigurationError
	if errors.As(err, &ce) {
		return err
	}
	return &errs.WindowError{Index: index, Err: err}
}
