package fmu

import (
	"runtime"

	"github.com/san-kum/fmusim/internal/fmi2"
	"github.com/san-kum/fmusim/internal/modeldesc"
)

// Role is the part a variable plays in the host's variable system.
type Role int

const (
	// RoleLocal variables have a buffer but are not bound into the host.
	RoleLocal Role = iota
	RoleConstant
	RoleState
	RoleParameter
	// RoleOutput variables are readable outputs that are not bound.
	RoleOutput
)

func (r Role) String() string {
	switch r {
	case RoleConstant:
		return "constant"
	case RoleState:
		return "state"
	case RoleParameter:
		return "parameter"
	case RoleOutput:
		return "output"
	default:
		return "local"
	}
}

// Bound reports whether variables of this role are visible to the host.
func (r Role) Bound() bool {
	return r == RoleConstant || r == RoleState || r == RoleParameter
}

// Classify assigns a role from model metadata. Only variables whose
// effective initial is "exact" are bound: fixed ones become constants,
// continuous ones states and tunable ones parameters.
func Classify(v *modeldesc.Variable) Role {
	if v.EffectiveInitial() == "exact" {
		switch v.EffectiveVariability() {
		case "fixed":
			return RoleConstant
		case "continuous":
			return RoleState
		case "tunable":
			return RoleParameter
		}
	}
	if v.EffectiveCausality() == "output" {
		return RoleOutput
	}
	return RoleLocal
}

// Slot is the buffer of one Real variable.
type Slot struct {
	Name       string
	Ref        fmi2.ValueReference
	Role       Role
	Start      float64
	HasStart   bool
	Derivative int // index of the slot holding this slot's derivative, or -1

	index int
	value *float64
}

func (s *Slot) Index() int { return s.index }

// Addr is stable for the lifetime of the pool.
func (s *Slot) Addr() *float64 { return s.value }

func (s *Slot) Value() float64 { return *s.value }

func (s *Slot) Set(v float64) { *s.value = v }

// Pool holds one pinned float64 per Real variable of the model plus the
// scratch the native calls write into. Buffers are allocated once and
// never resized, so their addresses stay valid until Release.
type Pool struct {
	slots  []Slot
	byName map[string]int
	values []float64

	indicators []float64
	eventInfo  *fmi2.EventInfo
	enterEvent *fmi2.Boolean
	terminate  *fmi2.Boolean

	pinner   runtime.Pinner
	released bool
}

// NewPool allocates buffers for every Real variable of md, in document
// order, and scratch for its event indicators.
func NewPool(md *modeldesc.ModelDescription) *Pool {
	n := 0
	for i := range md.Variables {
		if md.Variables[i].IsReal() {
			n++
		}
	}

	p := &Pool{
		slots:      make([]Slot, 0, n),
		byName:     make(map[string]int, n),
		values:     make([]float64, n),
		indicators: make([]float64, md.NumberOfEventIndicators),
		eventInfo:  &fmi2.EventInfo{},
		enterEvent: new(fmi2.Boolean),
		terminate:  new(fmi2.Boolean),
	}

	docIndex := make(map[int]int, n)
	for i := range md.Variables {
		v := &md.Variables[i]
		if !v.IsReal() {
			continue
		}
		idx := len(p.slots)
		docIndex[i] = idx
		start, ok := v.Start()
		p.values[idx] = start
		p.slots = append(p.slots, Slot{
			Name:       v.Name,
			Ref:        fmi2.ValueReference(v.ValueReference),
			Role:       Classify(v),
			Start:      start,
			HasStart:   ok,
			Derivative: -1,
			index:      idx,
			value:      &p.values[idx],
		})
		p.byName[v.Name] = idx
	}
	for i := range md.Variables {
		if idx, ok := docIndex[i]; ok {
			if d, ok := docIndex[md.DerivativeOf(i)]; ok {
				p.slots[idx].Derivative = d
			}
		}
	}

	if n > 0 {
		p.pinner.Pin(&p.values[0])
	}
	if len(p.indicators) > 0 {
		p.pinner.Pin(&p.indicators[0])
	}
	p.pinner.Pin(p.eventInfo)
	p.pinner.Pin(p.enterEvent)
	p.pinner.Pin(p.terminate)
	return p
}

func (p *Pool) Len() int { return len(p.slots) }

func (p *Pool) Slot(i int) *Slot { return &p.slots[i] }

func (p *Pool) Lookup(name string) (*Slot, bool) {
	i, ok := p.byName[name]
	if !ok {
		return nil, false
	}
	return &p.slots[i], true
}

// ByRole returns the slots of the given role in document order.
func (p *Pool) ByRole(role Role) []*Slot {
	var out []*Slot
	for i := range p.slots {
		if p.slots[i].Role == role {
			out = append(out, &p.slots[i])
		}
	}
	return out
}

// Bound returns constants, states and parameters in document order.
func (p *Pool) Bound() []*Slot {
	var out []*Slot
	for i := range p.slots {
		if p.slots[i].Role.Bound() {
			out = append(out, &p.slots[i])
		}
	}
	return out
}

func (p *Pool) Indicators() []float64 { return p.indicators }

func (p *Pool) EventInfo() *fmi2.EventInfo { return p.eventInfo }

// StepFlags are the out-parameters of fmi2CompletedIntegratorStep.
func (p *Pool) StepFlags() (enterEventMode, terminateSimulation *fmi2.Boolean) {
	return p.enterEvent, p.terminate
}

// Refs returns a pinned array of the value references of slots.
func (p *Pool) Refs(slots []*Slot) []fmi2.ValueReference {
	refs := p.RefScratch(len(slots))
	for i, s := range slots {
		refs[i] = s.Ref
	}
	return refs
}

// RefScratch returns a pinned value reference array of length n.
func (p *Pool) RefScratch(n int) []fmi2.ValueReference {
	refs := make([]fmi2.ValueReference, n)
	if n > 0 {
		p.pinner.Pin(&refs[0])
	}
	return refs
}

// Scratch returns a pinned float64 array of length n owned by the pool.
func (p *Pool) Scratch(n int) []float64 {
	buf := make([]float64, n)
	if n > 0 {
		p.pinner.Pin(&buf[0])
	}
	return buf
}

// Release unpins every buffer. Addresses handed out before must not be
// used by native code afterwards.
func (p *Pool) Release() {
	if p.released {
		return
	}
	p.released = true
	p.pinner.Unpin()
}
