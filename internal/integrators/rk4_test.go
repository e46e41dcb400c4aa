package integrators

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/fmusim/internal/dynamo"
)

type simpleDynamics struct{}

func (s *simpleDynamics) Derive(x dynamo.State, u dynamo.Control, t float64) (dynamo.State, error) {
	return dynamo.State{x[1], -x[0]}, nil
}

func (s *simpleDynamics) StateDim() int   { return 2 }
func (s *simpleDynamics) ControlDim() int { return 0 }

type failingDynamics struct {
	calls   int
	failAt  int
	failure error
}

func (f *failingDynamics) Derive(x dynamo.State, u dynamo.Control, t float64) (dynamo.State, error) {
	f.calls++
	if f.calls == f.failAt {
		return nil, f.failure
	}
	return dynamo.State{x[1], -x[0]}, nil
}

func (f *failingDynamics) StateDim() int   { return 2 }
func (f *failingDynamics) ControlDim() int { return 0 }

func TestRK4Accuracy(t *testing.T) {
	dyn := &simpleDynamics{}
	integ := NewRK4()

	x0 := dynamo.State{1.0, 0.0}
	u := dynamo.Control{}
	dt := 0.01
	steps := 100

	x := x0
	for i := 0; i < steps; i++ {
		var err error
		x, err = integ.Step(dyn, x, u, float64(i)*dt, dt)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	expectedX := math.Cos(float64(steps) * dt)
	expectedV := -math.Sin(float64(steps) * dt)

	if math.Abs(x[0]-expectedX) > 1e-4 {
		t.Errorf("position error too large: got %.6f, expected %.6f", x[0], expectedX)
	}

	if math.Abs(x[1]-expectedV) > 1e-4 {
		t.Errorf("velocity error too large: got %.6f, expected %.6f", x[1], expectedV)
	}
}

func TestStepPropagatesDeriveError(t *testing.T) {
	boom := errors.New("native call failed")

	tests := []struct {
		name  string
		integ dynamo.Integrator
	}{
		{"euler", NewEuler()},
		{"rk4", NewRK4()},
		{"rk45", NewRK45()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dyn := &failingDynamics{failAt: 1, failure: boom}
			x, err := tt.integ.Step(dyn, dynamo.State{1, 0}, nil, 0, 0.01)
			if !errors.Is(err, boom) {
				t.Fatalf("expected derive error, got %v", err)
			}
			if x != nil {
				t.Errorf("expected nil state on failure, got %v", x)
			}
			if dyn.calls != 1 {
				t.Errorf("integrator kept evaluating after failure: %d calls", dyn.calls)
			}
		})
	}
}

func TestRK4StopsAtFailingStage(t *testing.T) {
	boom := errors.New("stage 3")
	dyn := &failingDynamics{failAt: 3, failure: boom}

	if _, err := NewRK4().Step(dyn, dynamo.State{1, 0}, nil, 0, 0.1); !errors.Is(err, boom) {
		t.Fatalf("expected stage error, got %v", err)
	}
	if dyn.calls != 3 {
		t.Errorf("expected 3 derive calls, got %d", dyn.calls)
	}
}

func TestNew(t *testing.T) {
	for _, name := range Names() {
		if _, err := New(name); err != nil {
			t.Errorf("New(%q): %v", name, err)
		}
	}
	if _, err := New("verlet"); err == nil {
		t.Error("expected error for unknown integrator")
	}
}
