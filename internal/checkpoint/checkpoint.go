// Package checkpoint loads model manifests and builds the models they name.
//
// A checkpoint is a YAML manifest:
//
//	format_version: 1
//	kind: onset-reference
//	tokenizer: {num_classes: 1024, num_diff_classes: 100, max_time_shift: 1024, max_distance: 640}
//	params: {...}
//
// Kinds are registered factories. Built-in kinds are the reference models.
package checkpoint

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/cbegin/beatmapgen-go/internal/errs"
	"github.com/cbegin/beatmapgen-go/internal/model"
	"github.com/cbegin/beatmapgen-go/internal/tokenizer"
)

// FormatVersion is the only manifest version this build reads.
const FormatVersion = 1

type Manifest struct {
	FormatVersion int             `yaml:"format_version"`
	Kind          string          `yaml:"kind"`
	Tokenizer     *tokenizer.Spec `yaml:"tokenizer,omitempty"`
	NumClasses    int             `yaml:"num_classes,omitempty"`
	Params        yaml.Node       `yaml:"params,omitempty"`
}

// DecodeParams decodes the params block into v. A missing block leaves v
// untouched.
func (m *Manifest) DecodeParams(v any) error {
	if m.Params.Kind == 0 {
		return nil
	}
	return m.Params.Decode(v)
}

// Env is what the caller expects the checkpoint to match.
type Env struct {
	Tokenizer  *tokenizer.Tokenizer
	NumClasses int
}

// Factory builds a model from a manifest.
type Factory func(m *Manifest, env Env) (any, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a kind loadable. Registering a kind twice panics.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := factories[kind]; dup {
		panic("checkpoint: kind registered twice: " + kind)
	}
	factories[kind] = f
}

// Kinds lists the registered kinds in order.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ReadManifest reads and checks the manifest at path.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &errs.CheckpointError{Path: path, Reason: "missing", Err: &errs.FileNotFoundError{Path: path, Err: err}}
		}
		return nil, &errs.CheckpointError{Path: path, Reason: "unreadable", Err: err}
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, &errs.CheckpointError{Path: path, Reason: "malformed manifest", Err: err}
	}
	if m.FormatVersion != FormatVersion {
		return nil, &errs.CheckpointError{Path: path, Reason: fmt.Sprintf("unsupported format version %d", m.FormatVersion)}
	}
	if m.Kind == "" {
		return nil, &errs.CheckpointError{Path: path, Reason: "manifest names no kind"}
	}
	return &m, nil
}

func load(path string, env Env) (any, error) {
	m, err := ReadManifest(path)
	if err != nil {
		return nil, err
	}
	mu.RLock()
	f, ok := factories[m.Kind]
	mu.RUnlock()
	if !ok {
		return nil, &errs.CheckpointError{Path: path, Reason: fmt.Sprintf("unknown kind %q", m.Kind)}
	}
	v, err := f(m, env)
	if err != nil {
		var ce *errs.CheckpointError
		if errors.As(err, &ce) {
			ce.Path = path
			return nil, ce
		}
		return nil, &errs.CheckpointError{Path: path, Reason: "build " + m.Kind, Err: err}
	}
	return v, nil
}

// LoadDecoder loads a sequence model. Its vocabulary must match tok.
func LoadDecoder(path string, tok *tokenizer.Tokenizer) (model.Decoder, error) {
	v, err := load(path, Env{Tokenizer: tok})
	if err != nil {
		return nil, err
	}
	d, ok := v.(model.Decoder)
	if !ok {
		return nil, &errs.CheckpointError{Path: path, Reason: "not a sequence model"}
	}
	if d.Spec() != tok.Spec() {
		return nil, &errs.CheckpointError{Path: path, Reason: fmt.Sprintf("vocabulary %+v does not match configured %+v", d.Spec(), tok.Spec())}
	}
	return d, nil
}

// LoadDenoiser loads a diffusion model trained on numClasses style classes.
func LoadDenoiser(path string, numClasses int) (model.Denoiser, error) {
	v, err := load(path, Env{NumClasses: numClasses})
	if err != nil {
		return nil, err
	}
	d, ok := v.(model.Denoiser)
	if !ok {
		return nil, &errs.CheckpointError{Path: path, Reason: "not a diffusion model"}
	}
	if d.NumClasses() != numClasses {
		return nil, &errs.CheckpointError{Path: path, Reason: fmt.Sprintf("trained on %d classes, configured %d", d.NumClasses(), numClasses)}
	}
	return d, nil
}

// LoadRefiner loads a position refinement model.
func LoadRefiner(path string) (model.Refiner, error) {
	v, err := load(path, Env{})
	if err != nil {
		return nil, err
	}
	r, ok := v.(model.Refiner)
	if !ok {
		return nil, &errs.CheckpointError{Path: path, Reason: "not a refinement model"}
	}
	return r, nil
}
