// Package errs holds the typed failures shared by every pipeline stage.
// Callers match them with errors.As.
package errs

import (
	"fmt"
	"io/fs"
)

// ConfigurationError rejects invalid lengths, strides, indices or class ids
// before any computation starts.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
}

// Configf builds a ConfigurationError for field.
func Configf(field string, format string, args ...any) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// InvalidAudioError reports malformed or empty audio input.
type InvalidAudioError struct {
	Reason string
}

func (e *InvalidAudioError) Error() string { return "invalid audio: " + e.Reason }

// FileNotFoundError is returned by collaborators reading from disk.
type FileNotFoundError struct {
	Path string
	Err  error
}

func (e *FileNotFoundError) Error() string { return fmt.Sprintf("file not found: %s", e.Path) }
func (e *FileNotFoundError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, fs.ErrNotExist) succeed.
func (e *FileNotFoundError) Is(target error) bool { return target == fs.ErrNotExist }

// DecodeError wraps a codec failure for an audio file.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode %s: %v", e.Path, e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

// CheckpointError reports a model that could not be loaded: missing file,
// unsupported format version, unknown kind or incompatible vocabulary shape.
type CheckpointError struct {
	Path   string
	Reason string
	Err    error
}

func (e *CheckpointError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("checkpoint %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("checkpoint %s: %s", e.Path, e.Reason)
}

func (e *CheckpointError) Unwrap() error { return e.Err }

// InvalidClassError is raised when a style id is outside [0, NumClasses).
type InvalidClassError struct {
	StyleID    int
	NumClasses int
}

func (e *InvalidClassError) Error() string {
	return fmt.Sprintf("invalid style class %d (num_classes=%d)", e.StyleID, e.NumClasses)
}

// StitchGapWarning marks a window that contributed nothing past the overlap
// boundary. It is recorded on the stitched sequence and never aborts a run.
// From and To are in milliseconds.
type StitchGapWarning struct {
	Window int
	From   float64
	To     float64
}

func (w StitchGapWarning) Error() string {
	return fmt.Sprintf("stitch gap after window %d: %.0fms..%.0fms left empty", w.Window, w.From, w.To)
}

// WindowError carries the index of the window whose generation failed.
type WindowError struct {
	Index int
	Err   error
}

func (e *WindowError) Error() string { return fmt.Sprintf("window %d: %v", e.Index, e.Err) }
func (e *WindowError) Unwrap() error { return e.Err }

// StepError carries the stage name and step index of a failed iterative loop.
type StepError struct {
	Stage string
	Step  int
	Err   error
}

func (e *StepError) Error() string { return fmt.Sprintf("%s step %d: %v", e.Stage, e.Step, e.Err) }
func (e *StepError) Unwrap() error { return e.Err }
