// Package audio decodes song files into mono waveforms and plays them back
// for previews.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/ebiten/v2/audio/mp3"
	"github.com/hajimehoshi/ebiten/v2/audio/vorbis"

	"github.com/cbegin/beatmapgen-go/internal/errs"
)

// Waveform is mono float samples in [-1, 1].
type Waveform struct {
	Samples    []float32
	SampleRate int
}

func (w *Waveform) Duration() time.Duration {
	if w == nil || w.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(w.Samples)) * time.Second / time.Duration(w.SampleRate)
}

// Decode reads an mp3, ogg or wav file and returns it as mono at sampleRate.
func Decode(path string, sampleRate int) (*Waveform, error) {
	if sampleRate <= 0 {
		return nil, errs.Configf("data.sample_rate", "must be positive, got %d", sampleRate)
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &errs.FileNotFoundError{Path: path, Err: err}
		}
		return nil, &errs.DecodeError{Path: path, Err: err}
	}
	defer f.Close()

	var w *Waveform
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".mp3":
		s, derr := mp3.DecodeWithSampleRate(sampleRate, f)
		if derr != nil {
			return nil, &errs.DecodeError{Path: path, Err: derr}
		}
		w, err = fromStereo16(s, sampleRate)
	case ".ogg":
		s, derr := vorbis.DecodeWithSampleRate(sampleRate, f)
		if derr != nil {
			return nil, &errs.DecodeError{Path: path, Err: derr}
		}
		w, err = fromStereo16(s, sampleRate)
	case ".wav":
		w, err = decodeWAV(f)
		if err == nil {
			w, err = Resample(w, sampleRate)
		}
	default:
		err = fmt.Errorf("unsupported audio format %q", ext)
	}
	if err != nil {
		return nil, &errs.DecodeError{Path: path, Err: err}
	}
	if len(w.Samples) == 0 {
		return nil, &errs.InvalidAudioError{Reason: path + " contains no samples"}
	}
	return w, nil
}

// fromStereo16 downmixes ebiten's 16-bit little-endian stereo stream.
func fromStereo16(r io.Reader, sampleRate int) (*Waveform, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	frames := len(data) / 4
	out := make([]float32, frames)
	for i := range out {
		l := int16(binary.LittleEndian.Uint16(data[4*i:]))
		r := int16(binary.LittleEndian.Uint16(data[4*i+2:]))
		out[i] = (float32(l) + float32(r)) / (2 * 32768)
	}
	return &Waveform{Samples: out, SampleRate: sampleRate}, nil
}

func decodeWAV(r io.ReadSeeker) (*Waveform, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, errors.New("invalid wav file")
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	return fromIntBuffer(buf, int(d.BitDepth))
}

func fromIntBuffer(buf *goaudio.IntBuffer, bitDepth int) (*Waveform, error) {
	if buf == nil || buf.Format == nil {
		return nil, errors.New("wav has no format")
	}
	chans := buf.Format.NumChannels
	if chans <= 0 {
		return nil, fmt.Errorf("wav has %d channels", chans)
	}
	switch bitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("unsupported bit depth: %d", bitDepth)
	}
	full := float32(int64(1) << (bitDepth - 1))
	frames := len(buf.Data) / chans
	out := make([]float32, frames)
	for i := range out {
		var sum float32
		for c := 0; c < chans; c++ {
			v := buf.Data[i*chans+c]
			if bitDepth == 8 {
				v -= 128 // unsigned
			}
			sum += float32(v)
		}
		out[i] = sum / float32(chans) / full
	}
	return &Waveform{Samples: out, SampleRate: buf.Format.SampleRate}, nil
}

// Resample converts w to sampleRate with linear interpolation. Both rates
// must be known.
func Resample(w *Waveform, sampleRate int) (*Waveform, error) {
	if w.SampleRate <= 0 || sampleRate <= 0 {
		return nil, &errs.InvalidAudioError{Reason: fmt.Sprintf("cannot resample from %d Hz to %d Hz", w.SampleRate, sampleRate)}
	}
	if w.SampleRate == sampleRate || len(w.Samples) == 0 {
		return &Waveform{Samples: w.Samples, SampleRate: sampleRate}, nil
	}
	ratio := float64(w.SampleRate) / float64(sampleRate)
	n := int(math.Ceil(float64(len(w.Samples)) / ratio))
	out := make([]float32, n)
	last := len(w.Samples) - 1
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= last {
			out[i] = w.Samples[last]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = w.Samples[j]*(1-frac) + w.Samples[j+1]*frac
	}
	return &Waveform{Samples: out, SampleRate: sampleRate}, nil
}
