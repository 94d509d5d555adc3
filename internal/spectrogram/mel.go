package spectrogram

import "math"

// filter is one triangular mel band restricted to its non-zero FFT bins.
type filter struct {
	lo, hi  int
	weights []float64
}

func hzToMel(hz float64) float64 { return 2595 * math.Log10(1+hz/700) }
func melToHz(mel float64) float64 { return 700 * (math.Pow(10, mel/2595) - 1) }

func melFilterbank(sampleRate int, opts Options) []filter {
	nyquist := float64(sampleRate) / 2
	fmax := opts.FMax
	if fmax <= 0 || fmax > nyquist {
		fmax = nyquist
	}
	fmin := math.Max(0, opts.FMin)
	bins := opts.NFFT/2 + 1
	binHz := float64(sampleRate) / float64(opts.NFFT)

	lo, hi := hzToMel(fmin), hzToMel(fmax)
	edges := make([]float64, opts.NMels+2)
	for i := range edges {
		edges[i] = melToHz(lo + (hi-lo)*float64(i)/float64(opts.NMels+1))
	}

	bank := make([]filter, opts.NMels)
	for m := range bank {
		left, center, right := edges[m], edges[m+1], edges[m+2]
		f := filter{lo: bins, hi: 0}
		var w []float64
		for j := 0; j < bins; j++ {
			hz := float64(j) * binHz
			var v float64
			switch {
			case hz > left && hz <= center && center > left:
				v = (hz - left) / (center - left)
			case hz > center && hz < right && right > center:
				v = (right - hz) / (right - center)
			}
			if v <= 0 {
				continue
			}
			if j < f.lo {
				f.lo = j
			}
			f.hi = j + 1
			w = append(w, v)
		}
		if f.hi <= f.lo {
			// Band narrower than one bin: take the nearest bin whole.
			j := min(bins-1, int(math.Round(center/binHz)))
			f.lo, f.hi, w = j, j+1, []float64{1}
		}
		f.weights = w
		bank[m] = f
	}
	return bank
}
