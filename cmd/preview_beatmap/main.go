package main

import (
	"errors"
	"flag"
	"fmt"
	"image/color"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"github.com/cbegin/beatmapgen-go/internal/audio"
	"github.com/cbegin/beatmapgen-go/internal/layout"
	"github.com/cbegin/beatmapgen-go/internal/osu"
)

const (
	windowW        = 1024
	windowH        = 768
	previewRate    = 44100
	approachMillis = 600
	fadeMillis     = 150
	circleRadius   = 28
	seekStep       = 5 * time.Second
)

var (
	bgColor        = color.RGBA{24, 24, 32, 255}
	fieldColor     = color.RGBA{36, 36, 48, 255}
	circleColor    = color.RGBA{80, 200, 255, 230}
	comboColor     = color.RGBA{255, 170, 60, 230}
	sliderColor    = color.RGBA{80, 200, 255, 120}
	spinnerColor   = color.RGBA{200, 120, 255, 200}
	approachColor  = color.RGBA{255, 255, 255, 180}
	statusBarColor = color.RGBA{0, 0, 0, 160}
)

type game struct {
	player  *audio.Player
	beatmap *osu.Beatmap
	name    string
	status  string
	view    viewport
}

func newGame(bm *osu.Beatmap, w *audio.Waveform, name string) (*game, error) {
	pl, err := audio.NewPlayer(w)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(bm.Objects, func(i, j int) bool { return bm.Objects[i].Time < bm.Objects[j].Time })
	return &game{player: pl, beatmap: bm, name: name, status: "Space: play/pause  Left/Right: seek", view: fit(windowW, windowH)}, nil
}

func (g *game) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		g.player.Toggle()
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyRight) {
		g.seek(seekStep)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyLeft) {
		g.seek(-seekStep)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}
	return nil
}

func (g *game) seek(d time.Duration) {
	if err := g.player.SetPosition(g.player.Position() + d); err != nil {
		g.status = err.Error()
	}
}

func (g *game) Draw(screen *ebiten.Image) {
	screen.Fill(bgColor)
	v := g.view
	vector.DrawFilledRect(screen, float32(v.x), float32(v.y), float32(layout.PlayfieldWidth*v.scale), float32(layout.PlayfieldHeight*v.scale), fieldColor, false)

	now := float64(g.player.Position().Milliseconds())
	objs := g.beatmap.Objects
	idx := visible(objs, now, approachMillis, fadeMillis)
	// Later objects go underneath earlier ones.
	for k := len(idx) - 1; k >= 0; k-- {
		g.drawObject(screen, objs[idx[k]], now)
	}

	ebitenutil.DrawRect(screen, 0, float64(windowH-24), windowW, 24, statusBarColor)
	state := "paused"
	if g.player.IsPlaying() {
		state = "playing"
	}
	ebitenutil.DebugPrintAt(screen, fmt.Sprintf("%s  %s  %s  objects %d  %s", g.name, clock(now), state, len(objs), g.status), 8, windowH-20)
}

func (g *game) drawObject(screen *ebiten.Image, obj osu.HitObject, now float64) {
	v := g.view
	r := float32(circleRadius * v.scale)
	fill := circleColor
	if obj.NewCombo {
		fill = comboColor
	}
	switch obj.Kind {
	case osu.KindSpinner:
		cx, cy := v.point(layout.Center())
		left := 1 - progress(obj, now)
		vector.StrokeCircle(screen, cx, cy, float32(170*v.scale)*float32(max(0.1, left)), 4, spinnerColor, true)
		return
	case osu.KindSlider:
		path := append([]layout.Point{obj.Pos}, obj.Points...)
		for i := 1; i < len(path); i++ {
			x0, y0 := v.point(path[i-1])
			x1, y1 := v.point(path[i])
			vector.StrokeLine(screen, x0, y0, x1, y1, 2*r, sliderColor, true)
		}
		if now >= obj.Time {
			bx, by := v.point(along(path, progress(obj, now)))
			vector.StrokeCircle(screen, bx, by, r, 3, approachColor, true)
		}
	}
	cx, cy := v.point(obj.Pos)
	vector.DrawFilledCircle(screen, cx, cy, r, fill, true)
	if lead := obj.Time - now; lead > 0 {
		scale := 1 + 2*float32(lead/approachMillis)
		vector.StrokeCircle(screen, cx, cy, r*scale, 2, approachColor, true)
	}
}

func (g *game) Layout(outsideW, outsideH int) (int, int) {
	return windowW, windowH
}

func (g *game) Close() { _ = g.player.Close() }

func main() {
	var (
		mapPath   = flag.String("map", "", "beatmap to preview")
		audioPath = flag.String("audio", "", "song to play (default: the map's AudioFilename next to the map)")
	)
	flag.Parse()
	if *mapPath == "" && flag.NArg() > 0 {
		*mapPath = flag.Arg(0)
	}
	if *mapPath == "" {
		log.Fatal(errors.New("usage: preview_beatmap -map song.osu [-audio song.mp3]"))
	}

	f, err := os.Open(*mapPath)
	if err != nil {
		log.Fatal(err)
	}
	bm, err := osu.Read(f)
	f.Close()
	if err != nil {
		log.Fatalf("read %q: %v", *mapPath, err)
	}
	song := *audioPath
	if song == "" {
		song = filepath.Join(filepath.Dir(*mapPath), bm.AudioFilename)
	}
	w, err := audio.Decode(song, previewRate)
	if err != nil {
		log.Fatal(err)
	}

	g, err := newGame(bm, w, filepath.Base(*mapPath))
	if err != nil {
		log.Fatal(err)
	}
	defer g.Close()

	ebiten.SetWindowSize(windowW, windowH)
	ebiten.SetWindowTitle("beatmapgen preview: " + filepath.Base(*mapPath))
	if err := ebiten.RunGame(g); err != nil && !errors.Is(err, ebiten.Termination) {
		log.Fatal(err)
	}
}
