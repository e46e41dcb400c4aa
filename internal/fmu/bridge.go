package fmu

import (
	"fmt"

	"github.com/san-kum/fmusim/internal/dynamo"
)

// Bridge exposes an instance's indicator and action routines as a host
// event. It records the indicator values of the last accepted step and
// reports a crossing when a candidate state changes the sign of any of
// them. Localizing the crossing is left to the host.
type Bridge struct {
	name      string
	direction dynamo.Direction
	inst      *Instance
	indicator *Routine
	action    *Routine
	states    []int // position in the action output of each state

	prev []float64
	cur  []float64
	post []float64
	have bool
}

// NewBridge wires indicator and action to the host state vector. states
// names the host state variables in state order; each must be an output
// of action.
func NewBridge(name string, dir dynamo.Direction, inst *Instance, indicator, action *Routine, states []string) (*Bridge, error) {
	if indicator.Kind() != IndicatorRoutine || action.Kind() != ActionRoutine {
		return nil, &Error{Kind: KindBinding, Instance: inst.tag, Step: -1,
			Detail: fmt.Sprintf("bridge %s needs an indicator and an action routine", name)}
	}
	if indicator.NumIn() != len(states) || action.NumIn() != len(states) {
		return nil, &Error{Kind: KindBinding, Instance: inst.tag, Step: -1,
			Detail: fmt.Sprintf("bridge %s: routines take %d and %d inputs for %d states",
				name, indicator.NumIn(), action.NumIn(), len(states))}
	}
	pos := make(map[string]int, action.NumOut())
	for i, n := range action.outputs {
		pos[n] = i
	}
	idx := make([]int, len(states))
	for i, s := range states {
		j, ok := pos[s]
		if !ok {
			return nil, &Error{Kind: KindBinding, Instance: inst.tag, Step: -1,
				Detail: fmt.Sprintf("bridge %s: action does not produce %q", name, s)}
		}
		idx[i] = j
	}
	return &Bridge{
		name:      name,
		direction: dir,
		inst:      inst,
		indicator: indicator,
		action:    action,
		states:    idx,
		prev:      make([]float64, indicator.NumOut()),
		cur:       make([]float64, indicator.NumOut()),
		post:      make([]float64, action.NumOut()),
	}, nil
}

func (b *Bridge) Name() string { return b.name }

// Accept records the indicators at an accepted step.
func (b *Bridge) Accept(t float64, x dynamo.State) error {
	if err := b.indicator.Call(t, x, b.prev); err != nil {
		return err
	}
	b.have = true
	b.inst.clearStepEvent()
	return nil
}

// Condition reports whether (t, x) lies past a crossing of any indicator
// since the last accepted step, or past a step or time event the model
// requested. The recorded sample is not changed.
func (b *Bridge) Condition(t float64, x dynamo.State) (bool, error) {
	if b.inst.pendingEvent(t) {
		return true, nil
	}
	if !b.have || len(b.prev) == 0 {
		return false, nil
	}
	if err := b.indicator.Call(t, x, b.cur); err != nil {
		return false, err
	}
	return Crossing(b.direction, b.prev, b.cur), nil
}

// Action runs the event protocol at (t, x) and returns the post-event
// state.
func (b *Bridge) Action(t float64, x dynamo.State) (dynamo.State, error) {
	if err := b.action.Call(t, x, b.post); err != nil {
		return nil, err
	}
	b.inst.clearStepEvent()
	next := make(dynamo.State, len(b.states))
	for i, j := range b.states {
		next[i] = b.post[j]
	}
	return next, nil
}

// Event returns the host event backed by this bridge.
func (b *Bridge) Event() dynamo.Event {
	return dynamo.Event{
		Name:      b.name,
		Direction: b.direction,
		Condition: b.Condition,
		Action:    b.Action,
		Accept:    b.Accept,
	}
}

// Crossing reports whether any indicator crossed zero between prev and cur.
func Crossing(dir dynamo.Direction, prev, cur []float64) bool {
	for i := range prev {
		if dir.Crossed(prev[i], cur[i]) {
			return true
		}
	}
	return false
}
