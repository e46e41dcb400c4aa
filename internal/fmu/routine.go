package fmu

import (
	"fmt"
	"strings"
)

// RoutineKind distinguishes the three evaluation routines of an instance.
type RoutineKind int

const (
	DerivativeRoutine RoutineKind = iota
	IndicatorRoutine
	ActionRoutine
)

func (k RoutineKind) String() string {
	switch k {
	case DerivativeRoutine:
		return "derivative"
	case IndicatorRoutine:
		return "indicator"
	case ActionRoutine:
		return "action"
	default:
		return fmt.Sprintf("RoutineKind(%d)", int(k))
	}
}

// Routine is an evaluation routine specialized to one instance: its value
// references, buffers and output order are resolved when it is built, so
// a call does no name lookup. The arity never changes after construction.
type Routine struct {
	kind    RoutineKind
	name    string
	inputs  []string
	outputs []string
	fn      func(t float64, in, out []float64) error
}

func newRoutine(kind RoutineKind, name string, inputs, outputs []string, fn func(t float64, in, out []float64) error) *Routine {
	return &Routine{
		kind:    kind,
		name:    name,
		inputs:  append([]string(nil), inputs...),
		outputs: append([]string(nil), outputs...),
		fn:      fn,
	}
}

func (r *Routine) Kind() RoutineKind { return r.kind }

func (r *Routine) Name() string { return r.name }

// Inputs returns the host names of the positional inputs.
func (r *Routine) Inputs() []string { return append([]string(nil), r.inputs...) }

// Outputs returns the host names of the positional outputs.
func (r *Routine) Outputs() []string { return append([]string(nil), r.outputs...) }

func (r *Routine) NumIn() int { return len(r.inputs) }

func (r *Routine) NumOut() int { return len(r.outputs) }

// Call evaluates the routine at time t, reading in and writing out
// positionally.
func (r *Routine) Call(t float64, in, out []float64) error {
	if len(in) != len(r.inputs) || len(out) != len(r.outputs) {
		return bindingError(
			fmt.Sprintf("%s routine %s called with %d inputs and %d outputs, want %d and %d",
				r.kind, r.name, len(in), len(out), len(r.inputs), len(r.outputs)),
			nil,
		)
	}
	return r.fn(t, in, out)
}

// Eval is Call with a freshly allocated output slice.
func (r *Routine) Eval(t float64, in []float64) ([]float64, error) {
	out := make([]float64, len(r.outputs))
	if err := r.Call(t, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Synthesizer builds the evaluation routines of one instance. Names are
// either variable names from the model description or host names of the
// form "<tag>.<variable>"; "<state>_dot" names the derivative of a state.
type Synthesizer struct {
	inst    *Instance
	maxIter int
}

func NewSynthesizer(inst *Instance, maxEventIterations int) *Synthesizer {
	if maxEventIterations < 1 {
		maxEventIterations = DefaultMaxEventIterations
	}
	return &Synthesizer{inst: inst, maxIter: maxEventIterations}
}

// DefaultMaxEventIterations bounds the fmi2NewDiscreteStates loop.
const DefaultMaxEventIterations = 100

func (s *Synthesizer) resolve(name string) (*Slot, error) {
	pool := s.inst.pool
	local := strings.TrimPrefix(name, s.inst.tag+".")
	if slot, ok := pool.Lookup(local); ok {
		return slot, nil
	}
	if state, ok := strings.CutSuffix(local, "_dot"); ok {
		if slot, ok := pool.Lookup(state); ok && slot.Derivative >= 0 {
			return pool.Slot(slot.Derivative), nil
		}
	}
	return nil, s.bindErr(fmt.Sprintf("no variable %q", name))
}

func (s *Synthesizer) bindErr(detail string) *Error {
	return &Error{Kind: KindBinding, Instance: s.inst.tag, Mode: s.inst.Mode(), Step: -1, Detail: detail}
}

// resolveAll resolves names to distinct slots. Routine inputs must be
// states. Constants and parameters are only written during start-up and by
// SetParam, never in ContinuousTime.
func (s *Synthesizer) resolveAll(names []string, inputs bool) ([]*Slot, error) {
	slots := make([]*Slot, len(names))
	seen := make(map[*Slot]bool, len(names))
	for i, n := range names {
		slot, err := s.resolve(n)
		if err != nil {
			return nil, err
		}
		if inputs && slot.Role != RoleState {
			return nil, s.bindErr(fmt.Sprintf("%q is a %s variable and cannot be a routine input", n, slot.Role))
		}
		if seen[slot] {
			return nil, s.bindErr(fmt.Sprintf("%q is bound twice", n))
		}
		seen[slot] = true
		slots[i] = slot
	}
	return slots, nil
}

// writer returns a function that stores in into the state slots and
// pushes them to the FMU at time t.
func (s *Synthesizer) writer(inputs []string) (func(t float64, in []float64) error, error) {
	slots, err := s.resolveAll(inputs, true)
	if err != nil {
		return nil, err
	}
	inst := s.inst
	refs := inst.pool.Refs(slots)
	buf := inst.pool.Scratch(len(slots))
	return func(t float64, in []float64) error {
		for i, v := range in {
			buf[i] = v
			slots[i].Set(v)
		}
		if err := inst.setTime(t); err != nil {
			return err
		}
		return inst.setReal(refs, buf)
	}, nil
}

// Derivative builds the routine that sets inputs, reports the step as
// completed and reads the named derivative outputs.
func (s *Synthesizer) Derivative(inputs, outputs []string) (*Routine, error) {
	write, err := s.writer(inputs)
	if err != nil {
		return nil, err
	}
	outSlots, err := s.resolveAll(outputs, false)
	if err != nil {
		return nil, err
	}
	inst := s.inst
	outRefs := inst.pool.Refs(outSlots)
	outBuf := inst.pool.Scratch(len(outSlots))
	fn := func(t float64, in, out []float64) error {
		if err := write(t, in); err != nil {
			return err
		}
		if err := inst.completedIntegratorStep(t); err != nil {
			return err
		}
		if err := inst.getReal(outRefs, outBuf); err != nil {
			return err
		}
		for i, v := range outBuf {
			out[i] = v
			outSlots[i].Set(v)
		}
		return nil
	}
	return newRoutine(DerivativeRoutine, inst.tag+".derivatives", inputs, outputs, fn), nil
}

// Indicator builds the routine that sets inputs and returns the event
// indicators of the model.
func (s *Synthesizer) Indicator(inputs []string) (*Routine, error) {
	write, err := s.writer(inputs)
	if err != nil {
		return nil, err
	}
	inst := s.inst
	outputs := make([]string, len(inst.pool.Indicators()))
	for i := range outputs {
		outputs[i] = fmt.Sprintf("%s.z[%d]", inst.tag, i)
	}
	fn := func(t float64, in, out []float64) error {
		if err := write(t, in); err != nil {
			return err
		}
		z, err := inst.getEventIndicators()
		if err != nil {
			return err
		}
		copy(out, z)
		return nil
	}
	return newRoutine(IndicatorRoutine, inst.tag+".indicators", inputs, outputs, fn), nil
}

// Action builds the routine that runs the event protocol at (t, inputs)
// and returns the post-event value of every Real variable in document
// order. It always returns with the instance in ContinuousTime or with an
// error.
func (s *Synthesizer) Action(inputs []string) (*Routine, error) {
	write, err := s.writer(inputs)
	if err != nil {
		return nil, err
	}
	inst := s.inst
	pool := inst.pool
	all := make([]*Slot, pool.Len())
	outputs := make([]string, pool.Len())
	for i := range all {
		all[i] = pool.Slot(i)
		outputs[i] = inst.tag + "." + all[i].Name
	}
	refs := pool.Refs(all)
	buf := pool.Scratch(len(all))
	maxIter := s.maxIter
	fn := func(t float64, in, out []float64) error {
		if err := write(t, in); err != nil {
			return err
		}
		if err := inst.enterEventMode(); err != nil {
			return err
		}
		if err := inst.iterateDiscreteStates(maxIter); err != nil {
			return err
		}
		if err := inst.enterContinuousTimeMode(); err != nil {
			return err
		}
		if err := inst.getReal(refs, buf); err != nil {
			return err
		}
		for i, v := range buf {
			out[i] = v
			all[i].Set(v)
		}
		return nil
	}
	return newRoutine(ActionRoutine, inst.tag+".action", inputs, outputs, fn), nil
}

// readAll refreshes every slot from the FMU.
func (s *Synthesizer) readAll() error {
	pool := s.inst.pool
	all := make([]*Slot, pool.Len())
	for i := range all {
		all[i] = pool.Slot(i)
	}
	buf := pool.Scratch(len(all))
	if err := s.inst.getReal(pool.Refs(all), buf); err != nil {
		return err
	}
	for i, v := range buf {
		all[i].Set(v)
	}
	return nil
}
