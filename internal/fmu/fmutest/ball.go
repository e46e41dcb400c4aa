// Package fmutest provides an in-process FMI 2.0 Model-Exchange
// BouncingBall. It fills the same fmi2.CallTable a native FMU would, so
// the fmu package can be exercised without a shared library.
package fmutest

import (
	"fmt"
	"strings"
	"sync"
	"unsafe"

	"go.uber.org/zap"

	"github.com/san-kum/fmusim/internal/fmi2"
	"github.com/san-kum/fmusim/internal/modeldesc"
)

const (
	GUID            = "{1AE5E10D-9521-4DE3-80B9-D0EAAA7D5AF1}"
	ModelIdentifier = "BouncingBall"
)

// Value references.
const (
	VRHeight fmi2.ValueReference = iota
	VRHeightDer
	VRVelocity
	VRVelocityDer
	VRGravity
	VRRestitution
	VRBounces
)

// MinVelocity is the rebound speed below which the ball comes to rest.
const MinVelocity = 0.1

const ModelDescriptionXML = `<?xml version="1.0" encoding="UTF-8"?>
<fmiModelDescription fmiVersion="2.0" modelName="BouncingBall"
  guid="{1AE5E10D-9521-4DE3-80B9-D0EAAA7D5AF1}" numberOfEventIndicators="1">
  <ModelExchange modelIdentifier="BouncingBall"/>
  <DefaultExperiment startTime="0" stopTime="3" tolerance="1e-6"/>
  <ModelVariables>
    <ScalarVariable name="h" valueReference="0" causality="output" variability="continuous" initial="exact">
      <Real start="1" unit="m"/>
    </ScalarVariable>
    <ScalarVariable name="der(h)" valueReference="1" causality="local" variability="continuous">
      <Real derivative="1"/>
    </ScalarVariable>
    <ScalarVariable name="v" valueReference="2" causality="output" variability="continuous" initial="exact">
      <Real start="0" unit="m/s"/>
    </ScalarVariable>
    <ScalarVariable name="der(v)" valueReference="3" causality="local" variability="continuous">
      <Real derivative="3"/>
    </ScalarVariable>
    <ScalarVariable name="g" valueReference="4" causality="parameter" variability="fixed" initial="exact">
      <Real start="-9.81" unit="m/s2"/>
    </ScalarVariable>
    <ScalarVariable name="e" valueReference="5" causality="parameter" variability="tunable" initial="exact">
      <Real start="0.7"/>
    </ScalarVariable>
    <ScalarVariable name="bounces" valueReference="6" causality="output" variability="discrete" initial="exact">
      <Integer start="0"/>
    </ScalarVariable>
  </ModelVariables>
</fmiModelDescription>
`

// Description parses ModelDescriptionXML.
func Description() *modeldesc.ModelDescription {
	md, err := modeldesc.Parse(strings.NewReader(ModelDescriptionXML))
	if err != nil {
		panic(err)
	}
	return md
}

// Options alter the model's event behaviour.
type Options struct {
	// ExtraPasses makes every event need this many additional
	// fmi2NewDiscreteStates calls before it settles.
	ExtraPasses int
	// NeverSettle makes fmi2NewDiscreteStates always report pending
	// updates once the model has entered event mode from continuous time.
	NeverSettle bool
	// TerminateAfter requests termination at the n-th bounce. Zero never
	// terminates.
	TerminateAfter int
	// StepEventAt requests event mode from fmi2CompletedIntegratorStep
	// once time reaches it. Zero disables step events.
	StepEventAt float64
	// NextEventAt is announced as the next time event by
	// fmi2NewDiscreteStates until an event at or after it is handled.
	// Zero disables time events.
	NextEventAt float64
	// FailCall makes the named entry point return fmi2Error.
	FailCall string
}

type mode int

const (
	modeInstantiated mode = iota
	modeInitialization
	modeEventMode
	modeContinuousTime
	modeTerminated
)

type ball struct {
	name    string
	mode    mode
	time    float64
	values  [6]float64
	bounces int
	resting bool
	pending int
	entered bool
	stepped bool
	timed   bool
}

// Model is a set of BouncingBall instances sharing one call table.
type Model struct {
	opts Options

	mu         sync.Mutex
	instances  map[fmi2.Component]*ball
	next       fmi2.Component
	calls      []string
	violations []string
	freed      int
	ctWrites   map[fmi2.ValueReference]int
}

func New(opts Options) *Model {
	return &Model{
		opts:      opts,
		instances: make(map[fmi2.Component]*ball),
		ctWrites:  make(map[fmi2.ValueReference]int),
	}
}

// ContinuousTimeWrites counts fmi2SetReal writes of vr made while an
// instance was in continuous-time mode.
func (m *Model) ContinuousTimeWrites(vr fmi2.ValueReference) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ctWrites[vr]
}

// Calls returns the entry points called so far, as "<instance>:<symbol>".
func (m *Model) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Violations lists calls made in a mode the FMI2 standard forbids.
func (m *Model) Violations() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.violations...)
}

// Freed counts fmi2FreeInstance calls.
func (m *Model) Freed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.freed
}

// Live counts instances not yet freed.
func (m *Model) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.instances)
}

// Binding returns a binding over a fresh call table.
func (m *Model) Binding() (*fmi2.Binding, error) {
	return fmi2.NewBinding(m.Table())
}

// Loader has the shape of fmu.Loader and ignores the binary path.
func (m *Model) Loader() func(path, modelIdentifier string, log *zap.Logger) (*fmi2.Binding, error) {
	return func(path, modelIdentifier string, log *zap.Logger) (*fmi2.Binding, error) {
		if modelIdentifier != ModelIdentifier {
			return nil, fmt.Errorf("fmutest: no model %q", modelIdentifier)
		}
		return m.Binding()
	}
}

// enter looks up c, logs the call and checks that the instance is in one
// of the allowed modes.
func (m *Model) enter(c fmi2.Component, symbol string, allowed ...mode) (*ball, fmi2.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.instances[c]
	if !ok {
		m.violations = append(m.violations, "<unknown>:"+symbol)
		return nil, fmi2.StatusFatal
	}
	m.calls = append(m.calls, b.name+":"+symbol)
	if m.opts.FailCall == symbol {
		return nil, fmi2.StatusError
	}
	for _, a := range allowed {
		if a == b.mode {
			return b, fmi2.StatusOK
		}
	}
	m.violations = append(m.violations, fmt.Sprintf("%s:%s in mode %d", b.name, symbol, b.mode))
	return nil, fmi2.StatusError
}

func (m *Model) violate(b *ball, format string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.violations = append(m.violations, b.name+":"+fmt.Sprintf(format, args...))
}

// Table fills a call table with the model's entry points.
func (m *Model) Table() *fmi2.CallTable {
	return &fmi2.CallTable{
		GetTypesPlatform: func() string { return "default" },
		GetVersion:       func() string { return "2.0" },
		Instantiate:      m.instantiate,
		FreeInstance:     m.freeInstance,
		SetupExperiment: func(c fmi2.Component, _ fmi2.Boolean, _ float64, start float64, _ fmi2.Boolean, _ float64) fmi2.Status {
			b, st := m.enter(c, "fmi2SetupExperiment", modeInstantiated)
			if b != nil {
				b.time = start
			}
			return st
		},
		EnterInitializationMode: func(c fmi2.Component) fmi2.Status {
			b, st := m.enter(c, "fmi2EnterInitializationMode", modeInstantiated)
			if b != nil {
				b.mode = modeInitialization
			}
			return st
		},
		ExitInitializationMode: func(c fmi2.Component) fmi2.Status {
			b, st := m.enter(c, "fmi2ExitInitializationMode", modeInitialization)
			if b != nil {
				b.mode = modeEventMode
			}
			return st
		},
		Terminate: func(c fmi2.Component) fmi2.Status {
			b, st := m.enter(c, "fmi2Terminate", modeContinuousTime, modeEventMode)
			if b != nil {
				b.mode = modeTerminated
			}
			return st
		},
		GetReal: m.getReal,
		SetReal: m.setReal,
		SetTime: func(c fmi2.Component, t float64) fmi2.Status {
			b, st := m.enter(c, "fmi2SetTime", modeEventMode, modeContinuousTime)
			if b != nil {
				b.time = t
			}
			return st
		},
		EnterEventMode: func(c fmi2.Component) fmi2.Status {
			b, st := m.enter(c, "fmi2EnterEventMode", modeContinuousTime)
			if b != nil {
				b.mode = modeEventMode
				b.entered = true
				b.pending = m.opts.ExtraPasses
			}
			return st
		},
		NewDiscreteStates:       m.newDiscreteStates,
		EnterContinuousTimeMode: m.enterContinuousTimeMode,
		CompletedIntegratorStep: m.completedIntegratorStep,
		GetEventIndicators:      m.getEventIndicators,
	}
}

func (m *Model) instantiate(name string, typ fmi2.Type, guid, _ string, _ *fmi2.CallbackFunctions, _, _ fmi2.Boolean) fmi2.Component {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, name+":fmi2Instantiate")
	if typ != fmi2.ModelExchange || guid != GUID {
		return 0
	}
	m.next++
	b := &ball{name: name, mode: modeInstantiated}
	b.values[VRHeight] = 1
	b.values[VRGravity] = -9.81
	b.values[VRRestitution] = 0.7
	m.instances[m.next] = b
	return m.next
}

func (m *Model) freeInstance(c fmi2.Component) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.instances[c]; ok {
		m.calls = append(m.calls, b.name+":fmi2FreeInstance")
		delete(m.instances, c)
		m.freed++
	}
}

func (b *ball) derivatives() {
	if b.resting {
		b.values[VRHeightDer] = 0
		b.values[VRVelocityDer] = 0
		return
	}
	b.values[VRHeightDer] = b.values[VRVelocity]
	b.values[VRVelocityDer] = b.values[VRGravity]
}

func (b *ball) get(vr fmi2.ValueReference) (float64, bool) {
	if vr == VRBounces {
		return float64(b.bounces), true
	}
	if int(vr) >= len(b.values) {
		return 0, false
	}
	if vr == VRHeightDer || vr == VRVelocityDer {
		b.derivatives()
	}
	return b.values[vr], true
}

func (m *Model) getReal(c fmi2.Component, vr *fmi2.ValueReference, n uint64, value *float64) fmi2.Status {
	b, st := m.enter(c, "fmi2GetReal", modeInitialization, modeEventMode, modeContinuousTime, modeTerminated)
	if b == nil {
		return st
	}
	refs := unsafe.Slice(vr, n)
	out := unsafe.Slice(value, n)
	for i, r := range refs {
		v, ok := b.get(r)
		if !ok {
			return fmi2.StatusError
		}
		out[i] = v
	}
	return fmi2.StatusOK
}

func (m *Model) setReal(c fmi2.Component, vr *fmi2.ValueReference, n uint64, value *float64) fmi2.Status {
	b, st := m.enter(c, "fmi2SetReal", modeInstantiated, modeInitialization, modeEventMode, modeContinuousTime)
	if b == nil {
		return st
	}
	refs := unsafe.Slice(vr, n)
	in := unsafe.Slice(value, n)
	for i, r := range refs {
		switch r {
		case VRHeight, VRVelocity, VRRestitution:
		case VRGravity:
			// g is fixed: settable only before initialization ends.
			if b.mode != modeInstantiated && b.mode != modeInitialization {
				m.violate(b, "fmi2SetReal of fixed g in mode %d", b.mode)
				return fmi2.StatusError
			}
		default:
			return fmi2.StatusError
		}
		b.values[r] = in[i]
		if b.mode == modeContinuousTime {
			m.mu.Lock()
			m.ctWrites[r]++
			m.mu.Unlock()
		}
	}
	return fmi2.StatusOK
}

func (m *Model) newDiscreteStates(c fmi2.Component, info *fmi2.EventInfo) fmi2.Status {
	b, st := m.enter(c, "fmi2NewDiscreteStates", modeEventMode)
	if b == nil {
		return st
	}
	info.Reset()
	if b.values[VRHeight] <= 0 && b.values[VRVelocity] < 0 {
		b.values[VRHeight] = 0
		b.values[VRVelocity] = -b.values[VRRestitution] * b.values[VRVelocity]
		b.bounces++
		if b.values[VRVelocity] < MinVelocity {
			b.values[VRVelocity] = 0
			b.resting = true
		}
		info.ValuesOfContinuousStatesChanged = fmi2.True
		if m.opts.TerminateAfter > 0 && b.bounces >= m.opts.TerminateAfter {
			info.TerminateSimulation = fmi2.True
		}
	}
	if at := m.opts.NextEventAt; at > 0 && !b.timed {
		if b.entered && b.time >= at {
			b.timed = true
		} else {
			info.NextEventTimeDefined = fmi2.True
			info.NextEventTime = at
		}
	}
	switch {
	case m.opts.NeverSettle && b.entered:
		info.NewDiscreteStatesNeeded = fmi2.True
	case b.pending > 0:
		b.pending--
		info.NewDiscreteStatesNeeded = fmi2.True
	}
	return fmi2.StatusOK
}

func (m *Model) enterContinuousTimeMode(c fmi2.Component) fmi2.Status {
	b, st := m.enter(c, "fmi2EnterContinuousTimeMode", modeEventMode)
	if b != nil {
		b.mode = modeContinuousTime
	}
	return st
}

func (m *Model) completedIntegratorStep(c fmi2.Component, _ fmi2.Boolean, enter, terminate *fmi2.Boolean) fmi2.Status {
	b, st := m.enter(c, "fmi2CompletedIntegratorStep", modeContinuousTime)
	if b == nil {
		return st
	}
	*enter, *terminate = fmi2.False, fmi2.False
	if at := m.opts.StepEventAt; at > 0 && !b.stepped && b.time >= at {
		b.stepped = true
		*enter = fmi2.True
	}
	return fmi2.StatusOK
}

func (m *Model) getEventIndicators(c fmi2.Component, z *float64, n uint64) fmi2.Status {
	b, st := m.enter(c, "fmi2GetEventIndicators", modeContinuousTime)
	if b == nil {
		return st
	}
	if n != 1 {
		return fmi2.StatusError
	}
	unsafe.Slice(z, n)[0] = b.values[VRHeight]
	return fmi2.StatusOK
}
