package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
)

// Clip streams a waveform as interleaved stereo float32 frames.
type Clip struct {
	mu     sync.Mutex
	w      *Waveform
	cursor int
}

func NewClip(w *Waveform) *Clip {
	return &Clip{w: w}
}

// Read implements io.Reader for ebiten's float32 player: 8 bytes per frame.
func (c *Clip) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	frames := len(p) / 8
	if frames == 0 {
		return 0, nil
	}
	remaining := len(c.w.Samples) - c.cursor
	if remaining <= 0 {
		return 0, io.EOF
	}
	frames = min(frames, remaining)
	for i := 0; i < frames; i++ {
		bits := math.Float32bits(c.w.Samples[c.cursor+i])
		binary.LittleEndian.PutUint32(p[i*8:], bits)
		binary.LittleEndian.PutUint32(p[i*8+4:], bits)
	}
	c.cursor += frames
	return frames * 8, nil
}

// Seek implements io.Seeker over the byte stream so the player can jump.
func (c *Clip) Seek(offset int64, whence int) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := int64(len(c.w.Samples)) * 8
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(c.cursor)*8 + offset
	case io.SeekEnd:
		abs = size + offset
	default:
		return 0, fmt.Errorf("clip: invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("clip: negative position %d", abs)
	}
	c.cursor = int(min(abs, size) / 8)
	return int64(c.cursor) * 8, nil
}

var (
	audioContextOnce sync.Once
	audioContext     *ebitaudio.Context
	audioSampleRate  int
)

func sharedAudioContext(sampleRate int) (*ebitaudio.Context, error) {
	audioContextOnce.Do(func() {
		audioSampleRate = sampleRate
		audioContext = ebitaudio.NewContext(sampleRate)
	})
	if audioSampleRate != sampleRate {
		return nil, fmt.Errorf("audio context already initialized at %d Hz (requested %d Hz)", audioSampleRate, sampleRate)
	}
	return audioContext, nil
}

// Player plays a decoded song through the shared ebiten audio context.
type Player struct {
	player *ebitaudio.Player
	clip   *Clip
}

func NewPlayer(w *Waveform) (*Player, error) {
	ctx, err := sharedAudioContext(w.SampleRate)
	if err != nil {
		return nil, err
	}
	clip := NewClip(w)
	pl, err := ctx.NewPlayerF32(clip)
	if err != nil {
		return nil, err
	}
	return &Player{player: pl, clip: clip}, nil
}

func (p *Player) Play()           { p.player.Play() }
func (p *Player) Pause()          { p.player.Pause() }
func (p *Player) IsPlaying() bool { return p.player.IsPlaying() }

// Toggle switches between playing and paused.
func (p *Player) Toggle() {
	if p.player.IsPlaying() {
		p.player.Pause()
		return
	}
	p.player.Play()
}

// Position returns what the listener currently hears.
func (p *Player) Position() time.Duration {
	return p.player.Position()
}

func (p *Player) SetPosition(d time.Duration) error {
	return p.player.SetPosition(max(0, d))
}

func (p *Player) SetVolume(v float64) { p.player.SetVolume(v) }

func (p *Player) Close() error {
	p.player.Pause()
	return p.player.Close()
}
