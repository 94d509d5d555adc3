package diffusion

import "math"

const (
	// TrainSteps is the length of the training noise schedule.
	TrainSteps = 1000
	betaStart  = 1e-4
	betaEnd    = 0.02
)

// Schedule is a noise schedule respaced to the sampling steps. Index i is
// the i-th sampling step; Timesteps run from noisiest to cleanest.
type Schedule struct {
	Timesteps []int
	// AlphaBar is the cumulative signal fraction at each sampled timestep.
	AlphaBar []float64
	// Beta is the respaced per-step noise variance.
	Beta []float64
}

var trainAlphaBar = linearAlphaBar(TrainSteps)

// AlphaBar returns the cumulative signal fraction of training timestep t.
func AlphaBar(t int) float64 {
	return trainAlphaBar[max(0, min(TrainSteps-1, t))]
}

// linearAlphaBar returns the cumulative products of 1-beta for a linear beta
// schedule over n training steps.
func linearAlphaBar(n int) []float64 {
	out := make([]float64, n)
	prod := 1.0
	for i := range out {
		beta := betaStart
		if n > 1 {
			beta += (betaEnd - betaStart) * float64(i) / float64(n-1)
		}
		prod *= 1 - beta
		out[i] = prod
	}
	return out
}

// Respace picks steps evenly spaced training timesteps, returned in
// sampling (descending) order. The last one is always timestep 0.
func Respace(trainSteps, steps int) []int {
	if steps <= 0 {
		return nil
	}
	steps = min(steps, trainSteps)
	out := make([]int, steps)
	stride := float64(trainSteps-1) / float64(max(1, steps-1))
	for i := range out {
		out[steps-1-i] = int(math.Round(float64(i) * stride))
	}
	return out
}

// NewSchedule builds the respaced schedule for the given number of sampling
// steps over TrainSteps.
func NewSchedule(steps int) Schedule {
	ts := Respace(TrainSteps, steps)
	s := Schedule{
		Timesteps: ts,
		AlphaBar:  make([]float64, len(ts)),
		Beta:      make([]float64, len(ts)),
	}
	for i, t := range ts {
		s.AlphaBar[i] = AlphaBar(t)
	}
	for i := range ts {
		s.Beta[i] = 1 - s.AlphaBar[i]/s.prevAlphaBar(i)
	}
	return s
}

// prevAlphaBar is the alpha bar of the step after i, 1 past the last step.
func (s Schedule) prevAlphaBar(i int) float64 {
	if i+1 < len(s.AlphaBar) {
		return s.AlphaBar[i+1]
	}
	return 1
}
