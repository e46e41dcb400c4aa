package fmi2

import "fmt"

// Status is fmi2Status.
type Status int32

const (
	StatusOK Status = iota
	StatusWarning
	StatusDiscard
	StatusError
	StatusFatal
	StatusPending
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "fmi2OK"
	case StatusWarning:
		return "fmi2Warning"
	case StatusDiscard:
		return "fmi2Discard"
	case StatusError:
		return "fmi2Error"
	case StatusFatal:
		return "fmi2Fatal"
	case StatusPending:
		return "fmi2Pending"
	default:
		return fmt.Sprintf("fmi2Status(%d)", int32(s))
	}
}

// Succeeded reports whether the call completed and its results are usable.
func (s Status) Succeeded() bool {
	return s == StatusOK || s == StatusWarning
}

// Type is fmi2Type.
type Type int32

const (
	ModelExchange Type = iota
	CoSimulation
)

// Boolean is fmi2Boolean (a C int).
type Boolean int32

const (
	False Boolean = 0
	True  Boolean = 1
)

func BoolOf(b bool) Boolean {
	if b {
		return True
	}
	return False
}

func (b Boolean) Bool() bool { return b != False }

// ValueReference is fmi2ValueReference (unsigned int).
type ValueReference uint32

// Component is the opaque fmi2Component handle. Zero means instantiation failed.
type Component uintptr

// EventInfo mirrors fmi2EventInfo. The layout matches the C struct on
// every 64-bit ABI purego supports: five 4-byte ints, 4 bytes of padding,
// then a double.
type EventInfo struct {
	NewDiscreteStatesNeeded           Boolean
	TerminateSimulation               Boolean
	NominalsOfContinuousStatesChanged Boolean
	ValuesOfContinuousStatesChanged   Boolean
	NextEventTimeDefined              Boolean
	NextEventTime                     float64
}

func (e *EventInfo) Reset() {
	*e = EventInfo{}
}

// CallbackFunctions mirrors fmi2CallbackFunctions. All members are C
// function pointers except ComponentEnvironment, which is passed back
// verbatim as the first logger argument.
type CallbackFunctions struct {
	Logger               uintptr
	AllocateMemory       uintptr
	FreeMemory           uintptr
	StepFinished         uintptr
	ComponentEnvironment uintptr
}
