// Package experiment runs configured FMU simulations and records them.
package experiment

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/san-kum/fmusim/internal/fmu"
	"github.com/san-kum/fmusim/internal/fmu/fmutest"
	"github.com/san-kum/fmusim/internal/modeldesc"
)

// Source opens instances of one model.
type Source interface {
	Model() string
	GUID() string
	Description() *modeldesc.ModelDescription
	Open(tag string, opts ...fmu.Option) (*fmu.Subsystem, error)
}

type fileSource struct {
	path string
	md   *modeldesc.ModelDescription
}

// FromFile is a source backed by an .fmu archive. Every Open extracts and
// loads its own copy of the binary.
func FromFile(path string) (Source, error) {
	md, err := modeldesc.Read(path)
	if err != nil {
		return nil, err
	}
	return &fileSource{path: path, md: md}, nil
}

func (f *fileSource) Model() string                            { return f.md.ModelName }
func (f *fileSource) GUID() string                             { return f.md.GUID }
func (f *fileSource) Description() *modeldesc.ModelDescription { return f.md }

func (f *fileSource) Open(tag string, opts ...fmu.Option) (*fmu.Subsystem, error) {
	return fmu.Open(f.path, tag, opts...)
}

type builtinSource struct {
	model *fmutest.Model
}

// Builtin is the in-process BouncingBall model. It needs no shared
// library and runs on every platform.
func Builtin(opts fmutest.Options) Source {
	return &builtinSource{model: fmutest.New(opts)}
}

func (b *builtinSource) Model() string                            { return fmutest.ModelIdentifier }
func (b *builtinSource) GUID() string                             { return fmutest.GUID }
func (b *builtinSource) Description() *modeldesc.ModelDescription { return fmutest.Description() }

func (b *builtinSource) Open(tag string, opts ...fmu.Option) (*fmu.Subsystem, error) {
	bin, err := b.model.Binding()
	if err != nil {
		return nil, err
	}
	return fmu.New(tag, fmutest.Description(), bin, opts...)
}

// Registry resolves model names to sources.
type Registry struct {
	builtins map[string]func() Source
}

func NewRegistry() *Registry {
	r := &Registry{builtins: make(map[string]func() Source)}
	r.builtins["bouncing_ball"] = func() Source { return Builtin(fmutest.Options{}) }
	return r
}

// Source returns the built-in model called name, or else the FMU archive
// at that path.
func (r *Registry) Source(name string) (Source, error) {
	if fn, ok := r.builtins[name]; ok {
		return fn(), nil
	}
	if !strings.HasSuffix(name, ".fmu") {
		return nil, fmt.Errorf("unknown model: %s (built-in: %v, or a path to an .fmu)", name, r.ListModels())
	}
	if _, err := os.Stat(name); err != nil {
		return nil, err
	}
	return FromFile(name)
}

func (r *Registry) ListModels() []string {
	names := make([]string, 0, len(r.builtins))
	for name := range r.builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
