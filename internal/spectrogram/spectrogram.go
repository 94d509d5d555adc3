// Package spectrogram turns a mono waveform into log-mel feature frames.
package spectrogram

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/mat"

	"github.com/cbegin/beatmapgen-go/internal/errs"
)

const logFloor = 1e-10

// Options selects the transform size and mel resolution.
type Options struct {
	NFFT  int
	NMels int
	// FMin and FMax bound the mel filterbank in Hz. FMax <= 0 means Nyquist.
	FMin float64
	FMax float64
}

func DefaultOptions() Options {
	return Options{NFFT: 1024, NMels: 388}
}

// Features is an immutable frame-major feature matrix: one row per hop.
type Features struct {
	SampleRate int
	HopLength  int
	Samples    int
	Data       *mat.Dense
}

// FrameCount returns the number of frames, ceil(samples / hop_length).
func (f *Features) FrameCount() int {
	r, _ := f.Data.Dims()
	return r
}

// Bins returns the feature width of every frame.
func (f *Features) Bins() int {
	_, c := f.Data.Dims()
	return c
}

// FrameMillis returns the duration of one frame in milliseconds.
func (f *Features) FrameMillis() float64 {
	return float64(f.HopLength) * 1000 / float64(f.SampleRate)
}

// FrameCount applies the fixed rounding policy relating samples to frames.
func FrameCount(samples, hopLength int) int {
	return (samples + hopLength - 1) / hopLength
}

// Extract computes log-mel features. Frame i is centered on sample i*hop,
// with zeros outside the waveform.
func Extract(waveform []float32, sampleRate, hopLength int, opts Options) (*Features, error) {
	if len(waveform) == 0 {
		return nil, &errs.InvalidAudioError{Reason: "empty waveform"}
	}
	if sampleRate <= 0 {
		return nil, &errs.InvalidAudioError{Reason: "sample rate must be positive"}
	}
	if hopLength <= 0 {
		return nil, errs.Configf("data.hop_length", "must be positive, got %d", hopLength)
	}
	if opts.NFFT <= 1 {
		return nil, errs.Configf("data.n_fft", "must be greater than 1, got %d", opts.NFFT)
	}
	if opts.NMels <= 0 {
		return nil, errs.Configf("data.n_mels", "must be positive, got %d", opts.NMels)
	}

	frames := FrameCount(len(waveform), hopLength)
	bank := melFilterbank(sampleRate, opts)
	window := hannWindow(opts.NFFT)
	fft := fourier.NewFFT(opts.NFFT)

	out := mat.NewDense(frames, opts.NMels, nil)
	buf := make([]float64, opts.NFFT)
	coeffs := make([]complex128, opts.NFFT/2+1)
	power := make([]float64, opts.NFFT/2+1)
	half := opts.NFFT / 2
	for i := 0; i < frames; i++ {
		start := i*hopLength - half
		for j := range buf {
			k := start + j
			if k < 0 || k >= len(waveform) {
				buf[j] = 0
				continue
			}
			buf[j] = float64(waveform[k]) * window[j]
		}
		coeffs = fft.Coefficients(coeffs, buf)
		for j, c := range coeffs {
			re, im := real(c), imag(c)
			power[j] = re*re + im*im
		}
		row := out.RawRowView(i)
		for m, filt := range bank {
			var e float64
			for j := filt.lo; j < filt.hi; j++ {
				e += power[j] * filt.weights[j-filt.lo]
			}
			row[m] = math.Log(math.Max(e, logFloor))
		}
	}
	return &Features{
		SampleRate: sampleRate,
		HopLength:  hopLength,
		Samples:    len(waveform),
		Data:       out,
	}, nil
}

func hannWindow(size int) []float64 {
	w := make([]float64, size)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(size)))
	}
	return w
}
