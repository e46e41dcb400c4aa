package sim

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/san-kum/fmusim/internal/dynamo"
)

// Observer sees every accepted state, including post-event states.
type Observer interface {
	OnStep(x dynamo.State, t float64)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(x dynamo.State, t float64)

func (f ObserverFunc) OnStep(x dynamo.State, t float64) { f(x, t) }

// stepper is implemented by systems that tag errors with the host step.
type stepper interface {
	BeginStep(step int)
}

const maxBisections = 100

type Simulator struct {
	dyn        dynamo.System
	integrator dynamo.Integrator
	events     []dynamo.Event
	observers  []Observer
}

// New builds a simulator. Events of systems implementing
// dynamo.EventSource are registered automatically.
func New(dyn dynamo.System, integrator dynamo.Integrator) *Simulator {
	s := &Simulator{dyn: dyn, integrator: integrator}
	if src, ok := dyn.(dynamo.EventSource); ok {
		s.events = append(s.events, src.Events()...)
	}
	return s
}

func (s *Simulator) AddEvent(e dynamo.Event) { s.events = append(s.events, e) }
func (s *Simulator) AddObserver(o Observer)  { s.observers = append(s.observers, o) }
func (s *Simulator) Events() []dynamo.Event  { return s.events }
func (s *Simulator) System() dynamo.System   { return s.dyn }

func (s *Simulator) name() string {
	if n, ok := s.dyn.(dynamo.Named); ok {
		return n.Name()
	}
	return ""
}

// Run integrates from x0 over cfg.Duration. After every step each event
// condition is checked; the earliest crossing is localized by bisection to
// cfg.EventTolerance, its action is applied and integration resumes from
// the post-event state. The first failure stops the run; the partial
// result is returned with a *dynamo.SimulationError.
func (s *Simulator) Run(ctx context.Context, x0 dynamo.State, cfg dynamo.Config) (*dynamo.Result, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if len(x0) != s.dyn.StateDim() {
		return nil, fmt.Errorf("%w: system has %d states, x0 has %d", dynamo.ErrDimensionMismatch, s.dyn.StateDim(), len(x0))
	}

	log := Logger().With(zap.String("system", s.name()))
	steps := int(math.Ceil(cfg.Duration/cfg.Dt - 1e-9))
	res := &dynamo.Result{
		System: s.name(),
		States: make([]dynamo.State, 0, steps+1),
		Times:  make([]float64, 0, steps+1),
	}
	if sn, ok := s.dyn.(dynamo.StateNames); ok {
		res.Names = sn.StateNames()
	}

	x := x0.Clone()
	t := cfg.StartTime
	end := cfg.StartTime + cfg.Duration
	u := make(dynamo.Control, s.dyn.ControlDim())
	fail := func(step int, err error) (*dynamo.Result, error) {
		log.Error("simulation stopped", zap.Int("step", step), zap.Float64("t", t), zap.Error(err))
		return res, &dynamo.SimulationError{System: s.name(), Step: step, Time: t, State: x.Clone(), Wrapped: err}
	}

	if err := s.accept(t, x); err != nil {
		return fail(0, err)
	}
	s.record(res, t, x)

	dt := cfg.Dt
	for step := 1; t < end-1e-12; step++ {
		select {
		case <-ctx.Done():
			return fail(step, fmt.Errorf("%w: %v", dynamo.ErrContextCanceled, ctx.Err()))
		default:
		}
		if st, ok := s.dyn.(stepper); ok {
			st.BeginStep(step)
		}

		next, h, suggested, err := s.advance(x, u, t, math.Min(dt, end-t), cfg)
		if err != nil {
			return fail(step, err)
		}
		if cfg.ValidateState && !next.IsValid() {
			return fail(step, dynamo.ErrInvalidState)
		}
		if cfg.Adaptive {
			dt = suggested
		}

		hit, err := s.firstTriggered(t+h, next)
		if err != nil {
			return fail(step, err)
		}
		if hit >= 0 {
			tc, xc, err := s.localize(x, u, t, h, cfg.EventTolerance)
			if err != nil {
				return fail(step, err)
			}
			t, x = tc, xc
			after, err := s.fire(res, step, t, x)
			if err != nil {
				return fail(step, err)
			}
			x = after
		} else {
			t, x = t+h, next
		}

		if err := s.accept(t, x); err != nil {
			return fail(step, err)
		}
		s.record(res, t, x)
		res.StepsTaken = step
	}
	log.Debug("simulation finished",
		zap.Int("steps", res.StepsTaken),
		zap.Int("events", len(res.Events)),
		zap.Float64("t", t),
	)
	return res, nil
}

// advance takes one step from (t, x). Adaptive steps are retried with the
// suggested smaller size until accepted; it returns the state, the step
// actually taken and the suggested next step.
func (s *Simulator) advance(x dynamo.State, u dynamo.Control, t, h float64, cfg dynamo.Config) (dynamo.State, float64, float64, error) {
	ai, ok := s.integrator.(dynamo.AdaptiveIntegrator)
	if !cfg.Adaptive || !ok {
		next, err := s.integrator.Step(s.dyn, x, u, t, h)
		return next, h, h, err
	}
	for {
		next, suggested, err := ai.StepAdaptive(s.dyn, x, u, t, h, cfg.Tolerance)
		if err != nil {
			return nil, 0, 0, err
		}
		if suggested >= h {
			return next, h, math.Min(suggested, cfg.MaxDt), nil
		}
		if suggested < cfg.MinDt {
			return nil, 0, 0, dynamo.ErrStepTooSmall
		}
		if 0.9*h <= suggested {
			return next, h, suggested, nil
		}
		h = suggested
	}
}

// firstTriggered returns the index of the first event whose condition
// holds at (t, x), or -1.
func (s *Simulator) firstTriggered(t float64, x dynamo.State) (int, error) {
	for i, e := range s.events {
		if e.Condition == nil {
			continue
		}
		ok, err := e.Condition(t, x)
		if err != nil {
			return -1, fmt.Errorf("event %s: %w", e.Name, err)
		}
		if ok {
			return i, nil
		}
	}
	return -1, nil
}

// localize bisects [t, t+h] for the earliest time any event condition
// holds and returns that time with the state integrated from (t, x). The
// returned state always satisfies a condition.
func (s *Simulator) localize(x dynamo.State, u dynamo.Control, t, h, tol float64) (float64, dynamo.State, error) {
	lo, hi := 0.0, h
	xHi, err := s.integrator.Step(s.dyn, x, u, t, hi)
	if err != nil {
		return 0, nil, err
	}
	for i := 0; i < maxBisections && hi-lo > tol; i++ {
		mid := 0.5 * (lo + hi)
		xMid, err := s.integrator.Step(s.dyn, x, u, t, mid)
		if err != nil {
			return 0, nil, err
		}
		idx, err := s.firstTriggered(t+mid, xMid)
		if err != nil {
			return 0, nil, err
		}
		if idx >= 0 {
			hi, xHi = mid, xMid
		} else {
			lo = mid
		}
	}
	return t + hi, xHi, nil
}

// fire runs the action of every event whose condition holds at (t, x),
// in registration order, records each one and returns the final state.
func (s *Simulator) fire(res *dynamo.Result, step int, t float64, x dynamo.State) (dynamo.State, error) {
	for _, e := range s.events {
		if e.Condition == nil || e.Action == nil {
			continue
		}
		ok, err := e.Condition(t, x)
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", e.Name, err)
		}
		if !ok {
			continue
		}
		after, err := e.Action(t, x)
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", e.Name, err)
		}
		if len(after) != len(x) {
			return nil, fmt.Errorf("event %s: %w: action returned %d states", e.Name, dynamo.ErrDimensionMismatch, len(after))
		}
		res.Events = append(res.Events, dynamo.EventRecord{
			Name:   e.Name,
			Time:   t,
			Step:   step,
			Before: x.Clone(),
			After:  after.Clone(),
		})
		Logger().Debug("event",
			zap.String("event", e.Name),
			zap.Int("step", step),
			zap.Float64("t", t),
		)
		x = after.Clone()
	}
	return x, nil
}

func (s *Simulator) accept(t float64, x dynamo.State) error {
	for _, e := range s.events {
		if e.Accept == nil {
			continue
		}
		if err := e.Accept(t, x); err != nil {
			return fmt.Errorf("event %s: %w", e.Name, err)
		}
	}
	return nil
}

func (s *Simulator) record(res *dynamo.Result, t float64, x dynamo.State) {
	res.States = append(res.States, x.Clone())
	res.Times = append(res.Times, t)
	for _, o := range s.observers {
		o.OnStep(x, t)
	}
}

// ValidateConfig rejects configurations the loop cannot run.
func ValidateConfig(cfg dynamo.Config) error {
	if cfg.Dt <= 0 {
		return fmt.Errorf("dt must be positive, got %f", cfg.Dt)
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %f", cfg.Duration)
	}
	if cfg.EventTolerance <= 0 {
		return fmt.Errorf("event tolerance must be positive, got %g", cfg.EventTolerance)
	}
	if cfg.Adaptive && cfg.Tolerance <= 0 {
		return fmt.Errorf("tolerance must be positive for adaptive stepping")
	}
	return nil
}
