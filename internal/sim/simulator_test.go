package sim

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"github.com/san-kum/fmusim/internal/dynamo"
	"github.com/san-kum/fmusim/internal/integrators"
)

type testDynamics struct{}

func (t *testDynamics) Derive(x dynamo.State, u dynamo.Control, time float64) (dynamo.State, error) {
	return dynamo.State{-x[0]}, nil
}

func (t *testDynamics) StateDim() int   { return 1 }
func (t *testDynamics) ControlDim() int { return 0 }

type testIntegrator struct{}

func (t *testIntegrator) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, time float64, dt float64) (dynamo.State, error) {
	dx, err := dyn.Derive(x, u, time)
	if err != nil {
		return nil, err
	}
	return dynamo.State{x[0] + dt*dx[0]}, nil
}

func testConfig(dt, duration float64) dynamo.Config {
	cfg := dynamo.DefaultConfig()
	cfg.Dt = dt
	cfg.Duration = duration
	return cfg
}

func TestSimulatorRun(t *testing.T) {
	sim := New(&testDynamics{}, &testIntegrator{})

	result, err := sim.Run(context.Background(), dynamo.State{1.0}, testConfig(0.1, 1.0))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(result.States) != 11 {
		t.Errorf("expected 11 states, got %d", len(result.States))
	}
	if len(result.Times) != 11 {
		t.Errorf("expected 11 times, got %d", len(result.Times))
	}
	if result.StepsTaken != 10 {
		t.Errorf("expected 10 steps, got %d", result.StepsTaken)
	}
	if last := result.Times[len(result.Times)-1]; math.Abs(last-1.0) > 1e-9 {
		t.Errorf("expected to stop at t=1, got %v", last)
	}

	finalState := result.States[len(result.States)-1][0]
	expected := 1.0 * math.Exp(-1.0)
	if math.Abs(finalState-expected) > 0.2 {
		t.Errorf("expected final state ~%.4f, got %.4f", expected, finalState)
	}
}

func TestSimulatorInvalidConfig(t *testing.T) {
	sim := New(&testDynamics{}, &testIntegrator{})

	tests := []struct {
		name string
		cfg  dynamo.Config
	}{
		{"zero dt", dynamo.Config{Dt: 0, Duration: 1.0, EventTolerance: 1e-9}},
		{"negative dt", dynamo.Config{Dt: -0.1, Duration: 1.0, EventTolerance: 1e-9}},
		{"zero duration", dynamo.Config{Dt: 0.1, Duration: 0, EventTolerance: 1e-9}},
		{"negative duration", dynamo.Config{Dt: 0.1, Duration: -1.0, EventTolerance: 1e-9}},
		{"zero event tolerance", dynamo.Config{Dt: 0.1, Duration: 1.0}},
		{"adaptive without tolerance", dynamo.Config{Dt: 0.1, Duration: 1.0, EventTolerance: 1e-9, Adaptive: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sim.Run(context.Background(), dynamo.State{1.0}, tt.cfg)
			if err == nil {
				t.Error("expected error, got nil")
			}
		})
	}

	if _, err := sim.Run(context.Background(), dynamo.State{1, 2}, testConfig(0.1, 1)); !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Errorf("expected dimension mismatch, got %v", err)
	}
}

// fallingBall bounces with restitution e whenever h crosses zero downward.
type fallingBall struct {
	e     float64
	prevH float64
}

func (b *fallingBall) Derive(x dynamo.State, u dynamo.Control, t float64) (dynamo.State, error) {
	return dynamo.State{x[1], -9.81}, nil
}

func (b *fallingBall) StateDim() int   { return 2 }
func (b *fallingBall) ControlDim() int { return 0 }
func (b *fallingBall) Name() string    { return "ball" }

func (b *fallingBall) Events() []dynamo.Event {
	return []dynamo.Event{{
		Name:      "bounce",
		Direction: dynamo.Falling,
		Condition: func(t float64, x dynamo.State) (bool, error) {
			return dynamo.Falling.Crossed(b.prevH, x[0]) && x[1] < 0, nil
		},
		Action: func(t float64, x dynamo.State) (dynamo.State, error) {
			return dynamo.State{0, -b.e * x[1]}, nil
		},
		Accept: func(t float64, x dynamo.State) error {
			b.prevH = x[0]
			return nil
		},
	}}
}

func TestSimulatorLocalizesEvents(t *testing.T) {
	ball := &fallingBall{e: 0.7}
	sim := New(ball, integrators.NewRK4())

	result, err := sim.Run(context.Background(), dynamo.State{1, 0}, testConfig(0.01, 1.0))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.System != "ball" {
		t.Errorf("expected system name ball, got %q", result.System)
	}
	if len(result.Events) != 1 {
		t.Fatalf("expected 1 bounce, got %d", len(result.Events))
	}

	ev := result.Events[0]
	want := math.Sqrt(2 / 9.81)
	if math.Abs(ev.Time-want) > 1e-6 {
		t.Errorf("bounce at %.9f, want %.9f", ev.Time, want)
	}
	if ev.Before[0] > 0 || ev.Before[0] < -1e-6 {
		t.Errorf("localized height %g should be just below zero", ev.Before[0])
	}
	if math.Abs(ev.After[1]+0.7*ev.Before[1]) > 1e-12 {
		t.Errorf("post-event velocity %g, want %g", ev.After[1], -0.7*ev.Before[1])
	}

	// the post-event state is recorded at the event time
	found := false
	for i, tm := range result.Times {
		if tm == ev.Time {
			found = true
			if result.States[i][1] != ev.After[1] {
				t.Errorf("recorded state %v, want post-event %v", result.States[i], ev.After)
			}
		}
	}
	if !found {
		t.Error("event time not recorded")
	}
}

type failingDynamics struct {
	after float64
}

var errBoom = errors.New("boom")

func (f *failingDynamics) Derive(x dynamo.State, u dynamo.Control, t float64) (dynamo.State, error) {
	if t > f.after {
		return nil, errBoom
	}
	return dynamo.State{1}, nil
}

func (f *failingDynamics) StateDim() int   { return 1 }
func (f *failingDynamics) ControlDim() int { return 0 }

func TestSimulatorStopsOnError(t *testing.T) {
	sim := New(&failingDynamics{after: 0.55}, integrators.NewEuler())

	result, err := sim.Run(context.Background(), dynamo.State{0}, testConfig(0.1, 1.0))
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected errBoom, got %v", err)
	}
	var se *dynamo.SimulationError
	if !errors.As(err, &se) {
		t.Fatalf("expected *dynamo.SimulationError, got %T", err)
	}
	if se.Step != 7 {
		t.Errorf("expected failure at step 7, got %d", se.Step)
	}
	if len(result.States) != 7 {
		t.Errorf("expected 7 recorded states before the failure, got %d", len(result.States))
	}
}

func TestSimulatorCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(&testDynamics{}, &testIntegrator{}).Run(ctx, dynamo.State{1}, testConfig(0.1, 1))
	if !errors.Is(err, dynamo.ErrContextCanceled) {
		t.Errorf("expected ErrContextCanceled, got %v", err)
	}
}

func TestSimulatorObservers(t *testing.T) {
	sim := New(&testDynamics{}, &testIntegrator{})
	count := 0
	sim.AddObserver(ObserverFunc(func(x dynamo.State, t float64) { count++ }))

	if _, err := sim.Run(context.Background(), dynamo.State{1}, testConfig(0.1, 1)); err != nil {
		t.Fatal(err)
	}
	if count != 11 {
		t.Errorf("expected 11 observations, got %d", count)
	}
}

func TestSimulatorAdaptive(t *testing.T) {
	cfg := testConfig(0.1, 2.0)
	cfg.Adaptive = true
	cfg.Tolerance = 1e-8

	result, err := New(&testDynamics{}, integrators.NewRK45()).Run(context.Background(), dynamo.State{1}, cfg)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	final := result.States[len(result.States)-1][0]
	if math.Abs(final-math.Exp(-2)) > 1e-6 {
		t.Errorf("expected %.8f, got %.8f", math.Exp(-2), final)
	}
	if last := result.Times[len(result.Times)-1]; math.Abs(last-2) > 1e-9 {
		t.Errorf("expected to stop at t=2, got %v", last)
	}
}

func TestEnsemble(t *testing.T) {
	members := make([]Member, 4)
	for i := range members {
		members[i] = Member{System: &fallingBall{e: 0.7}, Integrator: integrators.NewRK4(), X0: dynamo.State{1, 0}}
	}
	ens := NewEnsemble(members...)
	ens.SetLimit(2)

	results, err := ens.Run(context.Background(), testConfig(0.01, 2))
	if err != nil {
		t.Fatalf("ensemble failed: %v", err)
	}
	if len(results) != ens.Len() {
		t.Fatalf("expected %d results, got %d", ens.Len(), len(results))
	}
	for i := 1; i < len(results); i++ {
		if len(results[i].States) != len(results[0].States) {
			t.Fatalf("member %d has %d states, member 0 has %d", i, len(results[i].States), len(results[0].States))
		}
		for k := range results[0].States {
			if results[i].States[k][0] != results[0].States[k][0] {
				t.Fatalf("member %d diverges at sample %d", i, k)
			}
		}
	}
}

type countingDynamics struct {
	calls *atomic.Int64
}

func (c countingDynamics) Derive(x dynamo.State, u dynamo.Control, t float64) (dynamo.State, error) {
	c.calls.Add(1)
	return dynamo.State{0}, nil
}

func (c countingDynamics) StateDim() int   { return 1 }
func (c countingDynamics) ControlDim() int { return 0 }

func TestEnsembleFailure(t *testing.T) {
	var calls atomic.Int64
	ens := NewEnsemble(
		Member{System: countingDynamics{&calls}, Integrator: integrators.NewEuler(), X0: dynamo.State{0}},
		Member{System: &failingDynamics{after: 0.2}, Integrator: integrators.NewEuler(), X0: dynamo.State{0}},
	)
	results, err := ens.Run(context.Background(), testConfig(0.1, 1))
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected errBoom, got %v", err)
	}
	if len(results) != 2 || results[1] == nil {
		t.Fatalf("expected partial results for every member, got %v", results)
	}

	_, err = NewEnsemble(Member{}).Run(context.Background(), testConfig(0.1, 1))
	if err == nil {
		t.Error("expected error for incomplete member")
	}
}
