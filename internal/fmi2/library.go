//go:build darwin || linux

package fmi2

import (
	"fmt"
	"reflect"

	"github.com/ebitengine/purego"
	"go.uber.org/zap"
)

// Library is an opened FMU shared library.
type Library struct {
	path   string
	handle uintptr
	prefix string
}

// OpenLibrary dlopens the FMU binary. modelIdentifier is used as the
// symbol prefix fallback for FMUs compiled with FMI2_FUNCTION_PREFIX.
func OpenLibrary(path, modelIdentifier string) (*Library, error) {
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return nil, fmt.Errorf("fmi2: open %s: %w", path, err)
	}
	return &Library{path: path, handle: handle, prefix: modelIdentifier + "_"}, nil
}

// Lookup resolves an exported symbol, trying the plain FMI2 name first.
func (l *Library) Lookup(symbol string) (uintptr, error) {
	addr, err := purego.Dlsym(l.handle, symbol)
	if err == nil && addr != 0 {
		return addr, nil
	}
	if addr, perr := purego.Dlsym(l.handle, l.prefix+symbol); perr == nil && addr != 0 {
		return addr, nil
	}
	return 0, &SymbolError{Symbol: symbol, Err: ErrMissingSymbol}
}

func (l *Library) Close() error {
	if l.handle == 0 {
		return nil
	}
	err := purego.Dlclose(l.handle)
	l.handle = 0
	return err
}

// Bind resolves every entry point of the call table from lib. A missing
// required symbol is fatal; missing optional symbols leave the field nil.
func Bind(lib *Library) (ct *CallTable, err error) {
	ct = &CallTable{}
	v := reflect.ValueOf(ct).Elem()
	for _, e := range entries {
		f := v.Field(e.field)
		if serr := checkSignature(f.Type()); serr != nil {
			return nil, &SymbolError{Symbol: e.symbol, Err: serr}
		}
		addr, lerr := lib.Lookup(e.symbol)
		if lerr != nil {
			if e.required {
				return nil, lerr
			}
			continue
		}
		if rerr := register(f.Addr().Interface(), addr); rerr != nil {
			return nil, &SymbolError{Symbol: e.symbol, Err: rerr}
		}
	}
	return ct, ct.Validate()
}

// register wraps purego.RegisterFunc, which panics on signatures it cannot
// marshal.
func register(fptr any, addr uintptr) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrSignature, r)
		}
	}()
	purego.RegisterFunc(fptr, addr)
	return nil
}

// Load opens the binary at path, binds its call table and prepares a
// callback table whose logger routes FMU messages to log.
func Load(path, modelIdentifier string, log *zap.Logger) (*Binding, error) {
	lib, err := OpenLibrary(path, modelIdentifier)
	if err != nil {
		return nil, err
	}
	calls, err := Bind(lib)
	if err != nil {
		lib.Close()
		return nil, err
	}
	b, err := NewBinding(calls, lib.Close)
	if err != nil {
		lib.Close()
		return nil, err
	}
	if err := installCallbacks(b, log); err != nil {
		b.Close()
		return nil, err
	}
	Logger().Debug("fmu library loaded",
		zap.String("path", path),
		zap.String("model", modelIdentifier),
	)
	return b, nil
}
