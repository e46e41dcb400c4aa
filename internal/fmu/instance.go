package fmu

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/san-kum/fmusim/internal/fmi2"
	"github.com/san-kum/fmusim/internal/modeldesc"
)

// Instance owns one model handle and the mode machine guarding it. Every
// native call goes through a method here that checks the mode first and
// maps the returned status to an *Error.
type Instance struct {
	tag     string
	md      *modeldesc.ModelDescription
	bin     *fmi2.Binding
	calls   *fmi2.CallTable
	comp    fmi2.Component
	machine *Machine
	pool    *Pool
	log     *zap.Logger

	step          int
	stepEvent     bool
	stepEventTime float64
	timeEvent     bool
	timeEventTime float64
	fatal         bool
	closed        bool
}

func newInstance(tag string, md *modeldesc.ModelDescription, bin *fmi2.Binding, log *zap.Logger) *Instance {
	in := &Instance{
		tag:     tag,
		md:      md,
		bin:     bin,
		calls:   bin.Calls,
		machine: NewMachine(),
		pool:    NewPool(md),
		log:     log.With(zap.String("instance", tag)),
		step:    -1,
	}
	in.machine.OnTransition(func(from, to Mode) {
		in.log.Debug("mode transition",
			zap.Stringer("from", from),
			zap.Stringer("to", to),
			zap.Int("step", in.step),
		)
	})
	return in
}

func (in *Instance) Tag() string { return in.tag }

func (in *Instance) Mode() Mode { return in.machine.Mode() }

func (in *Instance) Machine() *Machine { return in.machine }

func (in *Instance) Pool() *Pool { return in.pool }

// SetStep records the host step index reported in errors.
func (in *Instance) SetStep(step int) { in.step = step }

// annotate fills the instance context into errors raised below it.
func (in *Instance) annotate(err error) error {
	var e *Error
	if errors.As(err, &e) {
		if e.Instance == "" {
			e.Instance = in.tag
		}
		if e.Step < 0 {
			e.Step = in.step
		}
	}
	return err
}

// guard rejects calls on a closed instance and calls not legal in the
// current mode.
func (in *Instance) guard(call Call) error {
	if in.closed || in.fatal {
		detail := "instance released"
		if in.fatal {
			detail = "instance failed with fmi2Fatal"
		}
		return &Error{Kind: KindClosed, Instance: in.tag, Mode: in.Mode(), Call: call, Step: in.step, Detail: detail}
	}
	if err := in.machine.Allow(call); err != nil {
		in.log.Error("protocol violation", zap.Error(err))
		return in.annotate(err)
	}
	return nil
}

// check maps a native status to an error.
func (in *Instance) check(call Call, st fmi2.Status) error {
	if st.Succeeded() {
		if st == fmi2.StatusWarning {
			in.log.Warn("native call returned warning", zap.String("call", string(call)))
		}
		return nil
	}
	if st == fmi2.StatusFatal {
		in.fatal = true
	}
	err := &Error{
		Kind:     KindNativeCall,
		Instance: in.tag,
		Mode:     in.Mode(),
		Call:     call,
		Status:   st,
		Step:     in.step,
	}
	in.log.Error("native call failed", zap.Error(err))
	return err
}

func (in *Instance) transition(to Mode) error {
	return in.annotate(in.machine.Transition(to))
}

func (in *Instance) instantiate(resourceURI string, visible, loggingOn bool) error {
	if in.comp != 0 {
		return &Error{Kind: KindProtocolViolation, Instance: in.tag, Call: CallInstantiate, Step: -1, Detail: "already instantiated"}
	}
	comp := in.calls.Instantiate(in.tag, fmi2.ModelExchange, in.md.GUID, resourceURI,
		in.bin.Callbacks, fmi2.BoolOf(visible), fmi2.BoolOf(loggingOn))
	if comp == 0 {
		return &Error{
			Kind:     KindNativeCall,
			Instance: in.tag,
			Call:     CallInstantiate,
			Status:   fmi2.StatusError,
			Step:     -1,
			Detail:   "fmi2Instantiate returned NULL",
		}
	}
	in.comp = comp
	in.log.Debug("instantiated", zap.String("guid", in.md.GUID), zap.String("resources", resourceURI))
	return nil
}

func (in *Instance) setupExperiment(tolerance float64, start, stop float64, stopDefined bool) error {
	if err := in.guard(CallSetupExperiment); err != nil {
		return err
	}
	st := in.calls.SetupExperiment(in.comp, fmi2.BoolOf(tolerance > 0), tolerance, start, fmi2.BoolOf(stopDefined), stop)
	return in.check(CallSetupExperiment, st)
}

func (in *Instance) enterInitializationMode() error {
	if err := in.guard(CallEnterInitializationMode); err != nil {
		return err
	}
	if err := in.check(CallEnterInitializationMode, in.calls.EnterInitializationMode(in.comp)); err != nil {
		return err
	}
	return in.transition(Initializing)
}

func (in *Instance) exitInitializationMode() error {
	if err := in.guard(CallExitInitializationMode); err != nil {
		return err
	}
	if err := in.check(CallExitInitializationMode, in.calls.ExitInitializationMode(in.comp)); err != nil {
		return err
	}
	in.machine.ExitedInitialization()
	return nil
}

func (in *Instance) setTime(t float64) error {
	if err := in.guard(CallSetTime); err != nil {
		return err
	}
	return in.check(CallSetTime, in.calls.SetTime(in.comp, t))
}

func (in *Instance) setReal(refs []fmi2.ValueReference, values []float64) error {
	if err := in.guard(CallSetReal); err != nil {
		return err
	}
	if len(refs) == 0 {
		return nil
	}
	return in.check(CallSetReal, in.calls.SetReal(in.comp, &refs[0], uint64(len(refs)), &values[0]))
}

func (in *Instance) getReal(refs []fmi2.ValueReference, values []float64) error {
	if err := in.guard(CallGetReal); err != nil {
		return err
	}
	if len(refs) == 0 {
		return nil
	}
	return in.check(CallGetReal, in.calls.GetReal(in.comp, &refs[0], uint64(len(refs)), &values[0]))
}

// completedIntegratorStep reports the step at t as completed. A requested
// step event is remembered, with the earliest time it was requested at,
// until clearStepEvent.
func (in *Instance) completedIntegratorStep(t float64) error {
	if err := in.guard(CallCompletedIntegratorStep); err != nil {
		return err
	}
	enter, term := in.pool.StepFlags()
	*enter, *term = fmi2.False, fmi2.False
	if err := in.check(CallCompletedIntegratorStep, in.calls.CompletedIntegratorStep(in.comp, fmi2.True, enter, term)); err != nil {
		return err
	}
	if term.Bool() {
		return in.terminateRequested(CallCompletedIntegratorStep)
	}
	if enter.Bool() && (!in.stepEvent || t < in.stepEventTime) {
		in.stepEvent = true
		in.stepEventTime = t
	}
	return nil
}

func (in *Instance) getEventIndicators() ([]float64, error) {
	if err := in.guard(CallGetEventIndicators); err != nil {
		return nil, err
	}
	buf := in.pool.Indicators()
	if len(buf) == 0 {
		return buf, nil
	}
	if err := in.check(CallGetEventIndicators, in.calls.GetEventIndicators(in.comp, &buf[0], uint64(len(buf)))); err != nil {
		return nil, err
	}
	return buf, nil
}

func (in *Instance) enterEventMode() error {
	if err := in.guard(CallEnterEventMode); err != nil {
		return err
	}
	if err := in.check(CallEnterEventMode, in.calls.EnterEventMode(in.comp)); err != nil {
		return err
	}
	return in.transition(EventMode)
}

// iterateDiscreteStates calls fmi2NewDiscreteStates until the FMU reports
// no further update is needed, at most maxIter times. The next time event
// announced by the settled pass replaces any earlier one.
func (in *Instance) iterateDiscreteStates(maxIter int) error {
	info := in.pool.EventInfo()
	info.Reset()
	info.NewDiscreteStatesNeeded = fmi2.True
	for i := 0; i < maxIter; i++ {
		if err := in.guard(CallNewDiscreteStates); err != nil {
			return err
		}
		info.Reset()
		if err := in.check(CallNewDiscreteStates, in.calls.NewDiscreteStates(in.comp, info)); err != nil {
			return err
		}
		if info.TerminateSimulation.Bool() {
			return in.terminateRequested(CallNewDiscreteStates)
		}
		if !info.NewDiscreteStatesNeeded.Bool() {
			in.timeEvent = info.NextEventTimeDefined.Bool()
			in.timeEventTime = info.NextEventTime
			in.log.Debug("discrete states settled",
				zap.Int("iterations", i+1),
				zap.Int("step", in.step),
				zap.Bool("next_event_time_defined", in.timeEvent),
				zap.Float64("next_event_time", info.NextEventTime),
			)
			return nil
		}
	}
	return &Error{
		Kind:     KindEventLoopOverrun,
		Instance: in.tag,
		Mode:     in.Mode(),
		Call:     CallNewDiscreteStates,
		Step:     in.step,
		Detail:   fmt.Sprintf("still pending after %d iterations", maxIter),
	}
}

func (in *Instance) enterContinuousTimeMode() error {
	if err := in.guard(CallEnterContinuousTimeMode); err != nil {
		return err
	}
	if err := in.check(CallEnterContinuousTimeMode, in.calls.EnterContinuousTimeMode(in.comp)); err != nil {
		return err
	}
	return in.transition(ContinuousTime)
}

func (in *Instance) terminateRequested(call Call) error {
	in.log.Info("model requested termination", zap.String("call", string(call)), zap.Int("step", in.step))
	return &Error{Kind: KindTerminate, Instance: in.tag, Mode: in.Mode(), Call: call, Step: in.step}
}

// pendingEvent reports whether the FMU asked for event mode at or before
// t, either from fmi2CompletedIntegratorStep or as a time event.
func (in *Instance) pendingEvent(t float64) bool {
	if in.timeEvent && t >= in.timeEventTime {
		return true
	}
	return in.stepEvent && t >= in.stepEventTime
}

// NextTimeEvent returns the time event announced by the last event
// iteration, if any.
func (in *Instance) NextTimeEvent() (float64, bool) {
	return in.timeEventTime, in.timeEvent
}

func (in *Instance) clearStepEvent() {
	in.stepEvent = false
}

// Terminate ends the simulation run. It is only legal in ContinuousTime.
func (in *Instance) Terminate() error {
	if err := in.guard(CallTerminate); err != nil {
		return err
	}
	if err := in.check(CallTerminate, in.calls.Terminate(in.comp)); err != nil {
		return err
	}
	return in.transition(Terminated)
}

// Close releases the model handle, the native library and the buffer
// pool. A run still in ContinuousTime is terminated first. Only the first
// call has an effect; release happens on every path, including failed
// initialization.
func (in *Instance) Close() error {
	if in.closed {
		return nil
	}
	var err error
	if in.comp != 0 && !in.fatal && in.Mode() == ContinuousTime {
		err = multierr.Append(err, in.Terminate())
	}
	if in.comp != 0 && !in.fatal {
		in.calls.FreeInstance(in.comp)
		in.log.Debug("instance freed", zap.Stringer("mode", in.Mode()))
	}
	in.comp = 0
	in.closed = true
	err = multierr.Append(err, in.bin.Close())
	in.pool.Release()
	return err
}
