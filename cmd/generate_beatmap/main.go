package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/cbegin/beatmapgen-go"
	"github.com/cbegin/beatmapgen-go/internal/errs"
)

const (
	exitOther      = 1
	exitConfig     = 2
	exitAudio      = 3
	exitCheckpoint = 4
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to a YAML run configuration")
		audioPath   = flag.String("audio", "", "song to generate for (overrides audio_path)")
		outPath     = flag.String("out", "", "beatmap to write (overrides output_path)")
		noDiffusion = flag.Bool("no-diffusion", false, "skip position sampling and use the fallback walk")
		workers     = flag.Int("workers", 0, "windows decoded in parallel (0 = from config)")
		seed        = flag.Int64("seed", -1, "sampling seed (-1 = from config)")
		verbose     = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := loadConfig(*configPath)
	if err != nil {
		// A missing config file is a configuration problem, not an audio one.
		log.Print(err)
		os.Exit(exitConfig)
	}
	if strings.TrimSpace(*audioPath) != "" {
		cfg.AudioPath = *audioPath
	}
	if strings.TrimSpace(*outPath) != "" {
		cfg.OutputPath = *outPath
	}
	if cfg.OutputPath == "" && cfg.AudioPath != "" {
		cfg.OutputPath = strings.TrimSuffix(cfg.AudioPath, extOf(cfg.AudioPath)) + ".osu"
	}
	logger.Debug("configuration", "config", cfg.String())

	opts := []beatmapgen.Option{beatmapgen.WithLogger(logger), beatmapgen.WithWorkers(*workers)}
	if *noDiffusion {
		opts = append(opts, beatmapgen.WithDiffusion(false))
	}
	if *seed >= 0 {
		opts = append(opts, beatmapgen.WithSeed(uint64(*seed)))
	}
	g, err := beatmapgen.New(cfg, opts...)
	if err != nil {
		exit(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	res, err := g.GenerateFile(ctx)
	if err != nil {
		exit(err)
	}
	for _, gap := range res.Gaps() {
		fmt.Fprintf(os.Stderr, "warning: %v\n", gap)
	}
	fmt.Printf("wrote %s (%d events, %d windows)\n", g.Config().OutputPath, len(res.Sequence.Events), res.Windows)
}

func loadConfig(path string) (beatmapgen.Config, error) {
	if strings.TrimSpace(path) == "" {
		return beatmapgen.DefaultConfig(), nil
	}
	return beatmapgen.LoadConfig(path)
}

func extOf(path string) string {
	if i := strings.LastIndexByte(path, '.'); i > strings.LastIndexByte(path, '/') {
		return path[i:]
	}
	return ""
}

// exitCode maps the error taxonomy onto process exit codes.
func exitCode(err error) int {
	var (
		cfgErr   *errs.ConfigurationError
		classErr *errs.InvalidClassError
		audioErr *errs.InvalidAudioError
		decErr   *errs.DecodeError
		ckptErr  *errs.CheckpointError
		nfErr    *errs.FileNotFoundError
	)
	switch {
	case errors.As(err, &ckptErr):
		return exitCheckpoint
	case errors.As(err, &cfgErr), errors.As(err, &classErr):
		return exitConfig
	case errors.As(err, &audioErr), errors.As(err, &decErr), errors.As(err, &nfErr):
		return exitAudio
	}
	return exitOther
}

func exit(err error) {
	log.Print(err)
	os.Exit(exitCode(err))
}
