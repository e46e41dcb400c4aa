package fmi2

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingSymbol indicates a required entry point is not exported.
	ErrMissingSymbol = errors.New("fmi2: required entry point not found")

	// ErrSignature indicates an entry point declaration purego cannot call.
	ErrSignature = errors.New("fmi2: entry point signature not callable")

	// ErrUnsupportedPlatform is returned where native libraries cannot be opened.
	ErrUnsupportedPlatform = errors.New("fmi2: native FMU loading not supported on this platform")
)

// SymbolError names the entry point a binding failure is about.
type SymbolError struct {
	Symbol string
	Err    error
}

func (e *SymbolError) Error() string {
	return fmt.Sprintf("%s: %v", e.Symbol, e.Err)
}

func (e *SymbolError) Unwrap() error {
	return e.Err
}
