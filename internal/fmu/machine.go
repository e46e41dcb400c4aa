package fmu

import "fmt"

// Machine tracks the mode of one FMU instance and rejects calls and
// transitions the FMI2 standard does not allow. It is not safe for
// concurrent use.
type Machine struct {
	mode     Mode
	exited   bool
	history  []Mode
	observer func(from, to Mode)
}

func NewMachine() *Machine {
	return &Machine{
		mode:    Instantiated,
		history: []Mode{Instantiated},
	}
}

func (m *Machine) Mode() Mode { return m.mode }

// History returns every mode the instance has been in, in order.
func (m *Machine) History() []Mode {
	out := make([]Mode, len(m.history))
	copy(out, m.history)
	return out
}

// OnTransition registers a hook called after every transition.
func (m *Machine) OnTransition(fn func(from, to Mode)) {
	m.observer = fn
}

// Allow checks that call may be made in the current mode.
func (m *Machine) Allow(call Call) error {
	if m.mode == Initializing {
		switch call {
		case CallNewDiscreteStates, CallEnterContinuousTimeMode:
			if !m.exited {
				return m.violation(call, "initialization mode not exited")
			}
			return nil
		case CallSetReal, CallExitInitializationMode:
			if m.exited {
				return m.violation(call, "initialization mode already exited")
			}
		}
	}
	for _, mode := range legal[call] {
		if mode == m.mode {
			return nil
		}
	}
	return m.violation(call, "")
}

// ExitedInitialization records a successful fmi2ExitInitializationMode.
func (m *Machine) ExitedInitialization() {
	m.exited = true
}

// Transition moves to the given mode along an edge of the mode graph.
func (m *Machine) Transition(to Mode) error {
	if !CanTransition(m.mode, to) {
		return &Error{
			Kind:   KindProtocolViolation,
			Mode:   m.mode,
			Step:   -1,
			Detail: fmt.Sprintf("no transition %s -> %s", m.mode, to),
		}
	}
	from := m.mode
	m.mode = to
	m.history = append(m.history, to)
	if m.observer != nil {
		m.observer(from, to)
	}
	return nil
}

func (m *Machine) violation(call Call, detail string) error {
	if detail == "" {
		detail = fmt.Sprintf("allowed in %v", legal[call])
	}
	return &Error{
		Kind:   KindProtocolViolation,
		Mode:   m.mode,
		Call:   call,
		Step:   -1,
		Detail: detail,
	}
}
