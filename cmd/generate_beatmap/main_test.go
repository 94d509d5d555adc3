package main

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cbegin/beatmapgen-go/internal/errs"
)

func TestExitCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"configuration", errs.Configf("bpm", "must be positive"), exitConfig},
		{"class", &errs.InvalidClassError{StyleID: 9, NumClasses: 9}, exitConfig},
		{"audio", &errs.InvalidAudioError{Reason: "empty"}, exitAudio},
		{"decode", &errs.DecodeError{Path: "a.mp3", Err: errors.New("bad frame")}, exitAudio},
		{"missing audio", &errs.FileNotFoundError{Path: "a.mp3", Err: fs.ErrNotExist}, exitAudio},
		{"checkpoint", &errs.CheckpointError{Path: "m.yaml", Reason: "unknown kind"}, exitCheckpoint},
		{"missing checkpoint", &errs.CheckpointError{Path: "m.yaml", Reason: "missing", Err: &errs.FileNotFoundError{Path: "m.yaml"}}, exitCheckpoint},
		{"wrapped window", fmt.Errorf("run: %w", &errs.WindowError{Index: 2, Err: errors.New("boom")}), exitOther},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, exitCode(tc.err))
		})
	}
}

func TestExtOf(t *testing.T) {
	assert.Equal(t, ".mp3", extOf("songs/a.mp3"))
	assert.Equal(t, "", extOf("songs.d/a"))
}
