package fmu

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/san-kum/fmusim/internal/dynamo"
	"github.com/san-kum/fmusim/internal/fmi2"
	"github.com/san-kum/fmusim/internal/modeldesc"
)

// HostVariable is the binding the host namespace needs for one variable.
// Addr stays valid until the subsystem is closed.
type HostVariable struct {
	Name string
	Role Role
	Addr *float64
}

// Subsystem is one FMU instance bound into the host as a dynamo.System
// with its own event.
type Subsystem struct {
	tag  string
	md   *modeldesc.ModelDescription
	pkg  *modeldesc.Package
	inst *Instance
	opts options

	bound  []*Slot // constants, states and parameters in document order
	states []*Slot
	params []*Slot

	derivative *Routine
	indicator  *Routine
	action     *Routine
	bridge     *Bridge

	out []float64

	paramRef []fmi2.ValueReference
	paramVal []float64

	closeOnce sync.Once
	closeErr  error
}

var (
	_ dynamo.System       = (*Subsystem)(nil)
	_ dynamo.Configurable = (*Subsystem)(nil)
	_ dynamo.Named        = (*Subsystem)(nil)
	_ dynamo.StateNames   = (*Subsystem)(nil)
	_ dynamo.EventSource  = (*Subsystem)(nil)
)

// Open extracts the FMU at path, loads its binary for the current
// platform and initializes one instance named tag. Every acquired
// resource is released if any step fails.
func Open(path, tag string, opts ...Option) (s *Subsystem, err error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	log := o.logger()

	pkg, err := modeldesc.Open(path)
	if err != nil {
		return nil, bindingError("open package", err)
	}
	defer func() {
		if err != nil {
			pkg.Close()
		}
	}()

	bin, err := loadBinary(pkg, o, log)
	if err != nil {
		return nil, err
	}
	opts = append(opts, WithResourceURI(pkg.ResourceURI()))
	s, err = New(tag, pkg.Description, bin, opts...)
	if err != nil {
		return nil, err
	}
	s.pkg = pkg
	return s, nil
}

func loadBinary(pkg *modeldesc.Package, o options, log *zap.Logger) (*fmi2.Binding, error) {
	path, err := pkg.BinaryPath()
	if err != nil {
		return nil, bindingError("resolve binary", err)
	}
	bin, err := o.loader(path, pkg.Description.ModelExchange.ModelIdentifier, log)
	if err != nil {
		return nil, bindingError("load "+path, err)
	}
	return bin, nil
}

func (o *options) logger() *zap.Logger {
	if o.log != nil {
		return o.log
	}
	return Logger()
}

// New initializes an instance of md on an already loaded binding. The
// subsystem takes ownership of bin and closes it on failure.
func New(tag string, md *modeldesc.ModelDescription, bin *fmi2.Binding, opts ...Option) (s *Subsystem, err error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if tag == "" || strings.ContainsAny(tag, ". ") {
		bin.Close()
		return nil, bindingError(fmt.Sprintf("invalid instance tag %q", tag), nil)
	}
	if err := md.Validate(); err != nil {
		bin.Close()
		return nil, bindingError("model description", err)
	}

	inst := newInstance(tag, md, bin, o.logger())
	s = &Subsystem{tag: tag, md: md, inst: inst, opts: o}
	defer func() {
		if err != nil {
			inst.Close()
			s = nil
		}
	}()

	if err := s.bind(); err != nil {
		return nil, err
	}
	if err := s.initialize(); err != nil {
		return nil, err
	}
	inst.log.Info("fmu instance ready",
		zap.String("model", md.ModelName),
		zap.Int("states", len(s.states)),
		zap.Int("parameters", len(s.params)),
		zap.Int("indicators", md.NumberOfEventIndicators),
	)
	return s, nil
}

// bind classifies the bound variables and synthesizes the routines. The
// routines take the states only; constants and parameters stay in their
// buffers and reach the FMU through applyStartValues and SetParam.
func (s *Subsystem) bind() error {
	pool := s.inst.pool
	s.bound = pool.Bound()
	var stateNames, derivNames []string
	for _, slot := range s.bound {
		switch slot.Role {
		case RoleState:
			s.states = append(s.states, slot)
			stateNames = append(stateNames, s.hostName(slot.Name))
			derivNames = append(derivNames, s.hostName(slot.Name+"_dot"))
		case RoleParameter, RoleConstant:
			s.params = append(s.params, slot)
		}
	}

	syn := NewSynthesizer(s.inst, s.opts.maxIterations)
	var err error
	if s.derivative, err = syn.Derivative(stateNames, derivNames); err != nil {
		return err
	}
	if s.indicator, err = syn.Indicator(stateNames); err != nil {
		return err
	}
	if s.action, err = syn.Action(stateNames); err != nil {
		return err
	}
	name := s.opts.eventName
	if name == "" {
		name = s.tag + ".event"
	}
	if s.bridge, err = NewBridge(name, s.opts.direction, s.inst, s.indicator, s.action, stateNames); err != nil {
		return err
	}
	s.out = make([]float64, len(s.states))
	s.paramRef = pool.RefScratch(1)
	s.paramVal = pool.Scratch(1)
	return nil
}

// initialize runs the FMI2 initialization sequence up to ContinuousTime.
func (s *Subsystem) initialize() error {
	inst := s.inst
	o := s.opts
	if err := inst.instantiate(o.resourceURI, false, o.loggingOn); err != nil {
		return err
	}
	start, stop := s.md.StartTime(), s.md.StopTime()
	stopDefined := s.md.DefaultExperiment != nil && s.md.DefaultExperiment.StopTime != nil
	if o.experimentSet {
		start = o.startTime
		stop = o.stopTime
		stopDefined = stop > start
	}
	if err := inst.setupExperiment(o.tolerance, start, stop, stopDefined); err != nil {
		return err
	}
	if err := s.applyStartValues(); err != nil {
		return err
	}
	if err := inst.enterInitializationMode(); err != nil {
		return err
	}
	if err := inst.exitInitializationMode(); err != nil {
		return err
	}
	if err := inst.iterateDiscreteStates(o.maxIterations); err != nil {
		return err
	}
	if err := inst.enterContinuousTimeMode(); err != nil {
		return err
	}
	syn := NewSynthesizer(inst, o.maxIterations)
	return syn.readAll()
}

// applyStartValues pushes the start value of every bound variable, with
// overrides applied, while the instance is still Instantiated.
func (s *Subsystem) applyStartValues() error {
	pool := s.inst.pool
	names := make([]string, 0, len(s.opts.startValues))
	for n := range s.opts.startValues {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		slot, ok := pool.Lookup(strings.TrimPrefix(n, s.tag+"."))
		if !ok || !slot.Role.Bound() {
			return &Error{Kind: KindBinding, Instance: s.tag, Step: -1,
				Detail: fmt.Sprintf("start value for %q: not a constant, state or parameter", n)}
		}
		slot.Set(s.opts.startValues[n])
	}

	var slots []*Slot
	for _, slot := range s.bound {
		if slot.HasStart || s.overridden(slot.Name) {
			slots = append(slots, slot)
		}
	}
	if len(slots) == 0 {
		return nil
	}
	values := pool.Scratch(len(slots))
	for i, slot := range slots {
		values[i] = slot.Value()
	}
	return s.inst.setReal(pool.Refs(slots), values)
}

func (s *Subsystem) overridden(name string) bool {
	if _, ok := s.opts.startValues[name]; ok {
		return true
	}
	_, ok := s.opts.startValues[s.hostName(name)]
	return ok
}

func (s *Subsystem) hostName(name string) string { return s.tag + "." + name }

func (s *Subsystem) Name() string { return s.tag }

// Instance exposes the guarded instance, mainly for mode inspection.
func (s *Subsystem) Instance() *Instance { return s.inst }

func (s *Subsystem) Mode() Mode { return s.inst.Mode() }

// History returns every mode the instance has passed through.
func (s *Subsystem) History() []Mode { return s.inst.machine.History() }

// Variables lists the host-visible variables with their buffer addresses.
func (s *Subsystem) Variables() []HostVariable {
	out := make([]HostVariable, len(s.bound))
	for i, slot := range s.bound {
		out[i] = HostVariable{Name: s.hostName(slot.Name), Role: slot.Role, Addr: slot.Addr()}
	}
	return out
}

func (s *Subsystem) StateNames() []string {
	names := make([]string, len(s.states))
	for i, slot := range s.states {
		names[i] = s.hostName(slot.Name)
	}
	return names
}

// InitialState is the state vector after initialization.
func (s *Subsystem) InitialState() dynamo.State {
	x := make(dynamo.State, len(s.states))
	for i, slot := range s.states {
		x[i] = slot.Value()
	}
	return x
}

func (s *Subsystem) StateDim() int { return len(s.states) }

func (s *Subsystem) ControlDim() int { return 0 }

// Routines returns the derivative, indicator and action routines.
func (s *Subsystem) Routines() (derivative, indicator, action *Routine) {
	return s.derivative, s.indicator, s.action
}

// Derive evaluates the state derivatives at (x, t). Parameters and
// constants already sit in the FMU and are not written again.
func (s *Subsystem) Derive(x dynamo.State, u dynamo.Control, t float64) (dynamo.State, error) {
	if len(x) != len(s.states) {
		return nil, fmt.Errorf("%w: %s has %d states, got %d", dynamo.ErrDimensionMismatch, s.tag, len(s.states), len(x))
	}
	if err := s.derivative.Call(t, x, s.out); err != nil {
		return nil, err
	}
	dx := make(dynamo.State, len(s.out))
	copy(dx, s.out)
	return dx, nil
}

// Events returns the instance's single event. It is registered even when
// the model has no event indicators, since step and time events requested
// by the FMU are raised through the same bridge.
func (s *Subsystem) Events() []dynamo.Event {
	return []dynamo.Event{s.bridge.Event()}
}

// Bridge returns the event bridge.
func (s *Subsystem) Bridge() *Bridge { return s.bridge }

// GetParams returns constants and parameters by variable name.
func (s *Subsystem) GetParams() map[string]float64 {
	out := make(map[string]float64, len(s.params))
	for _, slot := range s.params {
		out[slot.Name] = slot.Value()
	}
	return out
}

// SetParam changes a tunable parameter in the FMU and in its buffer.
func (s *Subsystem) SetParam(name string, value float64) error {
	slot, ok := s.inst.pool.Lookup(strings.TrimPrefix(name, s.tag+"."))
	if !ok || !slot.Role.Bound() || slot.Role == RoleState {
		return fmt.Errorf("%w: %s has no parameter %q", dynamo.ErrUnknownParam, s.tag, name)
	}
	if slot.Role == RoleConstant {
		return fmt.Errorf("%w: %s.%s is a constant", dynamo.ErrUnknownParam, s.tag, slot.Name)
	}
	s.paramRef[0], s.paramVal[0] = slot.Ref, value
	if err := s.inst.setReal(s.paramRef, s.paramVal); err != nil {
		return err
	}
	slot.Set(value)
	return nil
}

// BeginStep tags subsequent errors and log lines with the host step.
func (s *Subsystem) BeginStep(step int) { s.inst.SetStep(step) }

// Terminate ends the run. Close terminates implicitly.
func (s *Subsystem) Terminate() error { return s.inst.Terminate() }

// Close frees the instance, unloads the binary and removes the extracted
// package. Only the first call has an effect.
func (s *Subsystem) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.inst.Close()
		if s.pkg != nil {
			s.closeErr = multierr.Append(s.closeErr, s.pkg.Close())
		}
	})
	return s.closeErr
}
