package generate

import (
	"log/slog"
	"runtime"

	"github.com/cbegin/beatmapgen-go/internal/errs"
)

// Options configures prefix construction, sampling and dispatch.
type Options struct {
	// SpecialTokenLen is the size of the conditioning block. The role
	// indices below address slots inside it; -1 disables a role.
	SpecialTokenLen     int
	StyleTokenIndex     int
	DiffTokenIndex      int
	DiffusionTokenIndex int

	// AddPreTokens prefixes each window with the tail of the previous
	// windows' output. It chains windows, so they run sequentially.
	AddPreTokens   bool
	MaxPreTokenLen int
	// AddGDContext injects the reference beatmap's tokens for the window.
	AddGDContext bool

	// Temperature 0 decodes greedily.
	Temperature float64
	TopP        float64
	Seed        uint64
	Workers     int

	Logger *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		SpecialTokenLen:     2,
		StyleTokenIndex:     0,
		DiffTokenIndex:      1,
		DiffusionTokenIndex: -1,
		AddPreTokens:        false,
		MaxPreTokenLen:      256,
		Temperature:         1,
		TopP:                0.95,
		Seed:                0,
		Workers:             runtime.GOMAXPROCS(0),
	}
}

// Validate checks the options against the target sequence length.
func (o Options) Validate(tgtSeqLen int) error {
	if o.SpecialTokenLen < 0 {
		return errs.Configf("data.special_token_len", "must not be negative, got %d", o.SpecialTokenLen)
	}
	if o.SpecialTokenLen > tgtSeqLen/2 {
		return errs.Configf("data.special_token_len", "%d does not fit the %d-token prefix half of tgt_seq_len", o.SpecialTokenLen, tgtSeqLen/2)
	}
	used := map[int]string{}
	for _, role := range []struct {
		field string
		idx   int
	}{
		{"data.style_token_index", o.StyleTokenIndex},
		{"data.diff_token_index", o.DiffTokenIndex},
		{"data.diffusion_token_index", o.DiffusionTokenIndex},
	} {
		if role.idx < 0 {
			continue
		}
		if role.idx >= o.SpecialTokenLen {
			return errs.Configf(role.field, "index %d outside special_token_len %d", role.idx, o.SpecialTokenLen)
		}
		if other, ok := used[role.idx]; ok {
			return errs.Configf(role.field, "slot %d already used by %s", role.idx, other)
		}
		used[role.idx] = role.field
	}
	if o.MaxPreTokenLen < 0 {
		return errs.Configf("data.max_pre_token_len", "must not be negative, got %d", o.MaxPreTokenLen)
	}
	if o.Temperature < 0 {
		return errs.Configf("generate.temperature", "must not be negative, got %v", o.Temperature)
	}
	if o.TopP <= 0 || o.TopP > 1 {
		return errs.Configf("generate.top_p", "must be in (0, 1], got %v", o.TopP)
	}
	return nil
}
