package audio

import (
	"encoding/binary"
	"errors"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbegin/beatmapgen-go/internal/errs"
)

func writeWAV(t *testing.T, sampleRate, chans int, data []int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	enc := wav.NewEncoder(f, sampleRate, 16, chans, 1)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: chans, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
	return path
}

func TestDecodeWAVDownmixesStereo(t *testing.T) {
	data := []int{16384, 0, -16384, -16384, 0, 32767}
	w, err := Decode(writeWAV(t, 8000, 2, data), 8000)
	require.NoError(t, err)
	require.Len(t, w.Samples, 3)
	assert.InDelta(t, 0.25, w.Samples[0], 1e-4)
	assert.InDelta(t, -0.5, w.Samples[1], 1e-4)
	assert.InDelta(t, 0.5, w.Samples[2], 1e-4)
}

func TestDecodeWAVResamples(t *testing.T) {
	data := make([]int, 8000)
	for i := range data {
		data[i] = int(10000 * math.Sin(float64(i)/20))
	}
	w, err := Decode(writeWAV(t, 8000, 1, data), 16000)
	require.NoError(t, err)
	assert.Equal(t, 16000, w.SampleRate)
	assert.Len(t, w.Samples, 16000)
	assert.InDelta(t, 1.0, w.Duration().Seconds(), 1e-9)
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode(filepath.Join(t.TempDir(), "missing.mp3"), 16000)
	var fnf *errs.FileNotFoundError
	require.ErrorAs(t, err, &fnf)
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	junk := filepath.Join(t.TempDir(), "junk.wav")
	require.NoError(t, os.WriteFile(junk, []byte("not a riff file"), 0o644))
	_, err = Decode(junk, 16000)
	var de *errs.DecodeError
	assert.ErrorAs(t, err, &de)

	txt := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("x"), 0o644))
	_, err = Decode(txt, 16000)
	assert.ErrorAs(t, err, &de)
}

func TestResampleLinear(t *testing.T) {
	w := &Waveform{Samples: []float32{0, 1, 0, -1}, SampleRate: 4}
	up, err := Resample(w, 8)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0.5, 1, 0.5, 0, -0.5, -1, -1}, up.Samples)
	down, err := Resample(w, 2)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0}, down.Samples)
	same, err := Resample(w, 4)
	require.NoError(t, err)
	assert.Same(t, &w.Samples[0], &same.Samples[0])
}

func TestResampleNeedsKnownRates(t *testing.T) {
	var ae *errs.InvalidAudioError
	_, err := Resample(&Waveform{Samples: []float32{0, 1}}, 8)
	assert.ErrorAs(t, err, &ae)
	_, err = Resample(&Waveform{Samples: []float32{0, 1}, SampleRate: -4}, 8)
	assert.ErrorAs(t, err, &ae)
	_, err = Resample(&Waveform{Samples: []float32{0, 1}, SampleRate: 4}, 0)
	assert.ErrorAs(t, err, &ae)
}

func TestClipStreamsStereoFloats(t *testing.T) {
	c := NewClip(&Waveform{Samples: []float32{0.5, -0.25, 1}, SampleRate: 10})
	buf := make([]byte, 16)
	n, err := c.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 16, n)
	assert.Equal(t, float32(0.5), math.Float32frombits(binary.LittleEndian.Uint32(buf[0:])))
	assert.Equal(t, float32(0.5), math.Float32frombits(binary.LittleEndian.Uint32(buf[4:])))
	assert.Equal(t, float32(-0.25), math.Float32frombits(binary.LittleEndian.Uint32(buf[12:])))

	n, err = c.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	_, err = c.Read(buf)
	assert.ErrorIs(t, err, io.EOF)

	pos, err := c.Seek(8, io.SeekStart)
	require.NoError(t, err)
	assert.EqualValues(t, 8, pos)
	pos, err = c.Seek(0, io.SeekEnd)
	require.NoError(t, err)
	assert.EqualValues(t, 24, pos)
}
