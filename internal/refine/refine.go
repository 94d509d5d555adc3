// Package refine applies a fixed number of correction passes to sampled
// positions.
package refine

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"gonum.org/v1/gonum/floats"

	"github.com/cbegin/beatmapgen-go/internal/errs"
	"github.com/cbegin/beatmapgen-go/internal/events"
	"github.com/cbegin/beatmapgen-go/internal/layout"
	"github.com/cbegin/beatmapgen-go/internal/model"
)

type Refiner struct {
	model model.Refiner
	log   *slog.Logger
}

func New(m model.Refiner, logger *slog.Logger) *Refiner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Refiner{model: m, log: logger}
}

// Refine runs iters passes over field, adding the model's delta to every
// position. field is updated in place and returned; with iters == 0 it is
// returned untouched. There is no convergence check.
func (r *Refiner) Refine(ctx context.Context, field *layout.PositionField, seq *events.Sequence, iters int) (*layout.PositionField, error) {
	if iters < 0 {
		return nil, errs.Configf("diffusion.refine_iters", "must not be negative, got %d", iters)
	}
	if iters == 0 || field.Len() == 0 {
		return field, nil
	}
	cond := model.NewConditioning(seq)
	if len(cond.Objects) != field.Len() {
		return nil, fmt.Errorf("refine: field has %d positions, sequence has %d placeable objects", field.Len(), len(cond.Objects))
	}

	x := field.Vector()
	for i := 0; i < iters; i++ {
		if err := ctx.Err(); err != nil {
			return nil, &errs.StepError{Stage: "refine", Step: i, Err: err}
		}
		delta, err := r.model.PredictDelta(ctx, x, cond)
		if err != nil {
			return nil, &errs.StepError{Stage: "refine", Step: i, Err: err}
		}
		if len(delta) != len(x) {
			return nil, &errs.StepError{Stage: "refine", Step: i, Err: fmt.Errorf("delta has %d values, want %d", len(delta), len(x))}
		}
		floats.Add(x, delta)
	}
	field.SetVector(x)
	r.log.Debug("positions refined", "objects", field.Len(), "iters", iters)
	return field, nil
}
