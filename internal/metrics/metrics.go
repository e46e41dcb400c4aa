// Package metrics summarizes trajectories while a simulation runs.
package metrics

import (
	"fmt"
	"math"

	"github.com/san-kum/fmusim/internal/dynamo"
)

// Metric observes accepted states and reduces them to one number.
type Metric interface {
	Name() string
	OnStep(x dynamo.State, t float64)
	Value() float64
	Reset()
}

// Extremum tracks the largest (or smallest) value of one state.
type Extremum struct {
	name    string
	index   int
	max     bool
	value   float64
	samples int
}

func NewMax(name string, index int) *Extremum {
	return &Extremum{name: name, index: index, max: true}
}

func NewMin(name string, index int) *Extremum {
	return &Extremum{name: name, index: index}
}

func (e *Extremum) Name() string { return e.name }

func (e *Extremum) OnStep(x dynamo.State, t float64) {
	if e.index >= len(x) {
		return
	}
	v := x[e.index]
	if e.samples == 0 || (e.max && v > e.value) || (!e.max && v < e.value) {
		e.value = v
	}
	e.samples++
}

func (e *Extremum) Value() float64 {
	if e.samples == 0 {
		return math.NaN()
	}
	return e.value
}

func (e *Extremum) Reset() {
	e.value = 0
	e.samples = 0
}

// Floor counts samples where a state drops below a bound. A bouncing ball
// that tunnels through the floor shows up here.
type Floor struct {
	name       string
	index      int
	bound      float64
	violations int
}

func NewFloor(name string, index int, bound float64) *Floor {
	return &Floor{name: name, index: index, bound: bound}
}

func (f *Floor) Name() string { return f.name }

func (f *Floor) OnStep(x dynamo.State, t float64) {
	if f.index < len(x) && x[f.index] < f.bound {
		f.violations++
	}
}

func (f *Floor) Value() float64 { return float64(f.violations) }

func (f *Floor) Reset() { f.violations = 0 }

// Default returns the per-state metrics recorded for every run: the min
// and max of each named state.
func Default(names []string) []Metric {
	out := make([]Metric, 0, 2*len(names))
	for i, n := range names {
		out = append(out, NewMin(fmt.Sprintf("min(%s)", n), i), NewMax(fmt.Sprintf("max(%s)", n), i))
	}
	return out
}

// Values collects the current value of every metric by name.
func Values(ms []Metric) map[string]float64 {
	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		out[m.Name()] = m.Value()
	}
	return out
}
