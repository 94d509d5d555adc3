package beatmapgen

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cbegin/beatmapgen-go/internal/osu"
)

// Metadata is the beatmap header derived from the configuration.
func (g *Generator) Metadata() osu.Metadata {
	c := g.cfg
	return osu.Metadata{
		AudioFilename:    filepath.Base(c.AudioPath),
		Title:            c.Title,
		Artist:           c.Artist,
		Creator:          c.Creator,
		Version:          c.Version,
		BeatmapID:        c.BeatmapID,
		BPM:              c.BPM,
		Offset:           c.Offset,
		SliderMultiplier: c.SliderMultiplier,
	}
}

// WriteBeatmap renders res as an .osu file. Without sampled positions the
// objects are placed by the fallback walk.
func (g *Generator) WriteBeatmap(w io.Writer, res *Result) error {
	if res == nil || res.Sequence == nil {
		return fmt.Errorf("write beatmap: no sequence")
	}
	return osu.Write(w, res.Sequence, res.Positions, g.Metadata())
}

// WriteFile writes the beatmap to path, creating parent directories.
func (g *Generator) WriteFile(path string, res *Result) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	if err := g.WriteBeatmap(bw, res); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
