package fmu

import "fmt"

// Mode is the FMI2 Model-Exchange mode of one instance.
type Mode int

const (
	Instantiated Mode = iota
	Initializing
	ContinuousTime
	EventMode
	Terminated
)

func (m Mode) String() string {
	switch m {
	case Instantiated:
		return "Instantiated"
	case Initializing:
		return "Initializing"
	case ContinuousTime:
		return "ContinuousTime"
	case EventMode:
		return "EventMode"
	case Terminated:
		return "Terminated"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Call names a guarded native entry point.
type Call string

const (
	CallSetupExperiment         Call = "fmi2SetupExperiment"
	CallEnterInitializationMode Call = "fmi2EnterInitializationMode"
	CallExitInitializationMode  Call = "fmi2ExitInitializationMode"
	CallSetTime                 Call = "fmi2SetTime"
	CallSetReal                 Call = "fmi2SetReal"
	CallGetReal                 Call = "fmi2GetReal"
	CallCompletedIntegratorStep Call = "fmi2CompletedIntegratorStep"
	CallGetEventIndicators      Call = "fmi2GetEventIndicators"
	CallEnterEventMode          Call = "fmi2EnterEventMode"
	CallNewDiscreteStates       Call = "fmi2NewDiscreteStates"
	CallEnterContinuousTimeMode Call = "fmi2EnterContinuousTimeMode"
	CallTerminate               Call = "fmi2Terminate"
	CallInstantiate             Call = "fmi2Instantiate"
	CallFreeInstance            Call = "fmi2FreeInstance"
)

var transitions = map[Mode][]Mode{
	Instantiated:   {Initializing},
	Initializing:   {ContinuousTime},
	ContinuousTime: {EventMode, Terminated},
	EventMode:      {ContinuousTime},
}

// legal lists the modes each call may be made in. fmi2ExitInitializationMode
// leaves the FMU in its initial event iteration, which is still reported
// as Initializing; see Machine.Allow for the calls that depend on it.
var legal = map[Call][]Mode{
	CallSetupExperiment:         {Instantiated},
	CallEnterInitializationMode: {Instantiated},
	CallExitInitializationMode:  {Initializing},
	CallSetReal:                 {Instantiated, Initializing, ContinuousTime, EventMode},
	CallGetReal:                 {Initializing, ContinuousTime, EventMode},
	CallSetTime:                 {ContinuousTime, EventMode},
	CallCompletedIntegratorStep: {ContinuousTime},
	CallGetEventIndicators:      {ContinuousTime},
	CallEnterEventMode:          {ContinuousTime},
	CallNewDiscreteStates:       {Initializing, EventMode},
	CallEnterContinuousTimeMode: {Initializing, EventMode},
	CallTerminate:               {ContinuousTime},
}

// CanTransition reports whether from → to is an edge of the mode graph.
func CanTransition(from, to Mode) bool {
	for _, m := range transitions[from] {
		if m == to {
			return true
		}
	}
	return false
}

// ValidPath reports whether a sequence of observed modes starts in
// Instantiated and only follows edges of the mode graph.
func ValidPath(path []Mode) bool {
	if len(path) == 0 || path[0] != Instantiated {
		return false
	}
	for i := 1; i < len(path); i++ {
		if !CanTransition(path[i-1], path[i]) {
			return false
		}
	}
	return true
}
