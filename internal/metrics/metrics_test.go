package metrics

import (
	"math"
	"testing"

	"github.com/san-kum/fmusim/internal/dynamo"
)

func TestExtremum(t *testing.T) {
	hi := NewMax("max(h)", 0)
	lo := NewMin("min(h)", 0)

	if !math.IsNaN(hi.Value()) {
		t.Errorf("expected NaN before any sample, got %f", hi.Value())
	}

	for i, h := range []float64{1, 3, -2, 0.5} {
		x := dynamo.State{h, 0}
		hi.OnStep(x, float64(i))
		lo.OnStep(x, float64(i))
	}

	if hi.Value() != 3 {
		t.Errorf("expected max 3, got %f", hi.Value())
	}
	if lo.Value() != -2 {
		t.Errorf("expected min -2, got %f", lo.Value())
	}

	hi.Reset()
	if !math.IsNaN(hi.Value()) {
		t.Error("expected NaN after reset")
	}
}

func TestExtremumIgnoresShortStates(t *testing.T) {
	m := NewMax("max(v)", 3)
	m.OnStep(dynamo.State{1, 2}, 0)
	if !math.IsNaN(m.Value()) {
		t.Errorf("expected no sample, got %f", m.Value())
	}
}

func TestFloor(t *testing.T) {
	f := NewFloor("below(h)", 0, -1e-6)
	for _, h := range []float64{1, 0, -1e-9, -0.1, -0.2, 0.3} {
		f.OnStep(dynamo.State{h}, 0)
	}
	if f.Value() != 2 {
		t.Errorf("expected 2 violations, got %f", f.Value())
	}
	f.Reset()
	if f.Value() != 0 {
		t.Error("expected zero after reset")
	}
}

func TestDefault(t *testing.T) {
	ms := Default([]string{"ball.h", "ball.v"})
	if len(ms) != 4 {
		t.Fatalf("expected 4 metrics, got %d", len(ms))
	}
	for _, m := range ms {
		m.OnStep(dynamo.State{2, -1}, 0)
	}
	vals := Values(ms)
	if vals["max(ball.h)"] != 2 || vals["min(ball.v)"] != -1 {
		t.Errorf("unexpected values %v", vals)
	}
}
