package spectrogram

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/cbegin/beatmapgen-go/internal/errs"
)

func tone(sampleRate int, seconds, hz float64) []float32 {
	n := int(float64(sampleRate) * seconds)
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*hz*float64(i)/float64(sampleRate)))
	}
	return out
}

func TestExtractRejectsInvalidInput(t *testing.T) {
	var ia *errs.InvalidAudioError
	_, err := Extract(nil, 22050, 512, DefaultOptions())
	assert.ErrorAs(t, err, &ia)
	_, err = Extract([]float32{0}, 0, 512, DefaultOptions())
	assert.ErrorAs(t, err, &ia)

	var ce *errs.ConfigurationError
	_, err = Extract([]float32{0}, 22050, 0, DefaultOptions())
	assert.ErrorAs(t, err, &ce)
	_, err = Extract([]float32{0}, 22050, 512, Options{NFFT: 1024})
	assert.ErrorAs(t, err, &ce)
}

func TestFrameCountUsesCeil(t *testing.T) {
	assert.Equal(t, 431, FrameCount(220500, 512))
	assert.Equal(t, 2, FrameCount(1024, 512))
	assert.Equal(t, 1, FrameCount(1, 512))
}

func TestExtractShapeAndDeterminism(t *testing.T) {
	wave := tone(22050, 10, 440)
	opts := Options{NFFT: 1024, NMels: 40}
	a, err := Extract(wave, 22050, 512, opts)
	require.NoError(t, err)
	b, err := Extract(wave, 22050, 512, opts)
	require.NoError(t, err)

	assert.Equal(t, 431, a.FrameCount())
	assert.Equal(t, 40, a.Bins())
	assert.InDelta(t, 23.22, a.FrameMillis(), 0.01)
	assert.True(t, mat.Equal(a.Data, b.Data))
}

func TestToneEnergyLandsInMatchingBand(t *testing.T) {
	opts := Options{NFFT: 1024, NMels: 32}
	low, err := Extract(tone(16000, 1, 200), 16000, 160, opts)
	require.NoError(t, err)
	high, err := Extract(tone(16000, 1, 5000), 16000, 160, opts)
	require.NoError(t, err)

	argmax := func(row []float64) int {
		best := 0
		for i, v := range row {
			if v > row[best] {
				best = i
			}
		}
		return best
	}
	mid := low.FrameCount() / 2
	assert.Less(t, argmax(low.Data.RawRowView(mid)), argmax(high.Data.RawRowView(mid)))
}

func TestSilenceHitsLogFloor(t *testing.T) {
	f, err := Extract(make([]float32, 2048), 16000, 512, Options{NFFT: 256, NMels: 8})
	require.NoError(t, err)
	assert.Equal(t, math.Log(logFloor), f.Data.At(1, 3))
}
