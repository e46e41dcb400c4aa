package fmi2

import (
	"fmt"
	"reflect"
	"strings"
)

// Entry point signatures. size_t is uint64 and fmi2Boolean is int32, so a
// table has one meaning on every 64-bit platform.
type (
	GetTypesPlatformFunc        func() string
	GetVersionFunc              func() string
	SetDebugLoggingFunc         func(c Component, loggingOn Boolean, nCategories uint64, categories uintptr) Status
	InstantiateFunc             func(instanceName string, fmuType Type, guid string, resourceLocation string, functions *CallbackFunctions, visible Boolean, loggingOn Boolean) Component
	FreeInstanceFunc            func(c Component)
	SetupExperimentFunc         func(c Component, toleranceDefined Boolean, tolerance float64, startTime float64, stopTimeDefined Boolean, stopTime float64) Status
	ComponentFunc               func(c Component) Status
	RealAccessFunc              func(c Component, vr *ValueReference, nvr uint64, value *float64) Status
	SetTimeFunc                 func(c Component, time float64) Status
	NewDiscreteStatesFunc       func(c Component, info *EventInfo) Status
	CompletedIntegratorStepFunc func(c Component, noSetFMUStatePriorToCurrentPoint Boolean, enterEventMode *Boolean, terminateSimulation *Boolean) Status
	GetEventIndicatorsFunc      func(c Component, indicators *float64, ni uint64) Status
)

// CallTable holds the FMI2 Model-Exchange entry points. The `fmi` tag names
// the exported C symbol; entries tagged "required" must be present for the
// FMU to be usable.
type CallTable struct {
	GetTypesPlatform GetTypesPlatformFunc `fmi:"fmi2GetTypesPlatform"`
	GetVersion       GetVersionFunc       `fmi:"fmi2GetVersion"`
	SetDebugLogging  SetDebugLoggingFunc  `fmi:"fmi2SetDebugLogging"`

	Instantiate             InstantiateFunc     `fmi:"fmi2Instantiate,required"`
	FreeInstance            FreeInstanceFunc    `fmi:"fmi2FreeInstance,required"`
	SetupExperiment         SetupExperimentFunc `fmi:"fmi2SetupExperiment,required"`
	EnterInitializationMode ComponentFunc       `fmi:"fmi2EnterInitializationMode,required"`
	ExitInitializationMode  ComponentFunc       `fmi:"fmi2ExitInitializationMode,required"`
	Terminate               ComponentFunc       `fmi:"fmi2Terminate,required"`
	Reset                   ComponentFunc       `fmi:"fmi2Reset"`

	GetReal RealAccessFunc `fmi:"fmi2GetReal,required"`
	SetReal RealAccessFunc `fmi:"fmi2SetReal,required"`

	SetTime                 SetTimeFunc                 `fmi:"fmi2SetTime,required"`
	EnterEventMode          ComponentFunc               `fmi:"fmi2EnterEventMode,required"`
	NewDiscreteStates       NewDiscreteStatesFunc       `fmi:"fmi2NewDiscreteStates,required"`
	EnterContinuousTimeMode ComponentFunc               `fmi:"fmi2EnterContinuousTimeMode,required"`
	CompletedIntegratorStep CompletedIntegratorStepFunc `fmi:"fmi2CompletedIntegratorStep,required"`
	GetEventIndicators      GetEventIndicatorsFunc      `fmi:"fmi2GetEventIndicators,required"`
}

// entry describes one func field of CallTable.
type entry struct {
	field    int
	symbol   string
	required bool
}

var entries = tableEntries()

func tableEntries() []entry {
	t := reflect.TypeOf(CallTable{})
	out := make([]entry, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag, ok := f.Tag.Lookup("fmi")
		if !ok {
			continue
		}
		symbol, opt, _ := strings.Cut(tag, ",")
		out = append(out, entry{field: i, symbol: symbol, required: opt == "required"})
	}
	return out
}

// Symbols lists every entry point name, required ones first.
func Symbols() (required, optional []string) {
	for _, e := range entries {
		if e.required {
			required = append(required, e.symbol)
		} else {
			optional = append(optional, e.symbol)
		}
	}
	return required, optional
}

// Validate checks that every required entry point is set and that every
// declared signature uses only fixed-width argument and return types.
func (ct *CallTable) Validate() error {
	v := reflect.ValueOf(ct).Elem()
	for _, e := range entries {
		f := v.Field(e.field)
		if err := checkSignature(f.Type()); err != nil {
			return &SymbolError{Symbol: e.symbol, Err: err}
		}
		if e.required && f.IsNil() {
			return &SymbolError{Symbol: e.symbol, Err: ErrMissingSymbol}
		}
	}
	return nil
}

// Has reports whether the named entry point is bound.
func (ct *CallTable) Has(symbol string) bool {
	v := reflect.ValueOf(ct).Elem()
	for _, e := range entries {
		if e.symbol == symbol {
			return !v.Field(e.field).IsNil()
		}
	}
	return false
}

func checkSignature(t reflect.Type) error {
	for i := 0; i < t.NumIn(); i++ {
		if !fixedWidth(t.In(i)) {
			return fmt.Errorf("%w: argument %d has type %s", ErrSignature, i, t.In(i))
		}
	}
	if t.NumOut() > 1 {
		return fmt.Errorf("%w: %d return values", ErrSignature, t.NumOut())
	}
	if t.NumOut() == 1 && !fixedWidth(t.Out(0)) {
		return fmt.Errorf("%w: return type %s", ErrSignature, t.Out(0))
	}
	return nil
}

func fixedWidth(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Uintptr, reflect.Float32, reflect.Float64, reflect.String:
		return true
	case reflect.Ptr:
		return fixedWidth(t.Elem()) || t.Elem().Kind() == reflect.Struct
	default:
		return false
	}
}
