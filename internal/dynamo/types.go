package dynamo

import (
	"math"
)

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum)
}

func (s State) Sub(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] - other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

type Control []float64

// System is a set of first-order ODEs. Derive must not retain x.
type System interface {
	Derive(x State, u Control, t float64) (State, error)
	StateDim() int
	ControlDim() int
}

type Integrator interface {
	Step(dyn System, x State, u Control, t float64, dt float64) (State, error)
}

type AdaptiveIntegrator interface {
	Integrator
	StepAdaptive(dyn System, x State, u Control, t, dt, tol float64) (State, float64, error)
}

type Configurable interface {
	GetParams() map[string]float64
	SetParam(name string, value float64) error
}

// Named systems report a stable tag used in results and errors.
type Named interface {
	Name() string
}

// StateNames lets a system label its state vector for storage and plotting.
type StateNames interface {
	StateNames() []string
}

type Config struct {
	Dt             float64
	Duration       float64
	StartTime      float64
	Tolerance      float64
	EventTolerance float64
	MaxDt          float64
	MinDt          float64
	Adaptive       bool
	ValidateState  bool
}

func DefaultConfig() Config {
	return Config{
		Dt:             0.01,
		Duration:       10.0,
		Tolerance:      1e-6,
		EventTolerance: 1e-10,
		MaxDt:          0.1,
		MinDt:          1e-8,
		Adaptive:       false,
		ValidateState:  true,
	}
}

type Result struct {
	System     string
	Names      []string
	States     []State
	Times      []float64
	Events     []EventRecord
	StepsTaken int
}

// EventRecord is one executed event action.
type EventRecord struct {
	Name   string
	Time   float64
	Step   int
	Before State
	After  State
}
