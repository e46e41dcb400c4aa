package dynamo

// Direction restricts which zero crossings trigger an event.
type Direction int

const (
	// Any triggers on a sign change in either direction.
	Any Direction = iota
	// Falling triggers when the indicator goes from positive to non-positive.
	Falling
	// Rising triggers when the indicator goes from negative to non-negative.
	Rising
)

func (d Direction) String() string {
	switch d {
	case Falling:
		return "falling"
	case Rising:
		return "rising"
	default:
		return "any"
	}
}

// Crossed reports whether moving from prev to cur is a zero crossing in
// direction d. A sample sitting exactly on zero is treated as the end of a
// crossing, never the start of one.
func (d Direction) Crossed(prev, cur float64) bool {
	falling := prev > 0 && cur <= 0
	rising := prev < 0 && cur >= 0
	switch d {
	case Falling:
		return falling
	case Rising:
		return rising
	default:
		return falling || rising
	}
}

// Event pairs a named condition with an action. The host owns scheduling:
// Condition is evaluated on candidate states and must not change what it
// compares against, Accept is called after every accepted step, and Action
// runs once per localized crossing and returns the post-event state.
type Event struct {
	Name      string
	Direction Direction
	Condition func(t float64, x State) (bool, error)
	Action    func(t float64, x State) (State, error)
	Accept    func(t float64, x State) error
}

// EventSource is implemented by systems that carry their own events.
type EventSource interface {
	Events() []Event
}
