package storage

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/san-kum/fmusim/internal/dynamo"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	if encMode, err = encOpts.EncMode(); err != nil {
		panic(fmt.Sprintf("storage: cbor encoder mode: %v", err))
	}
	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthAllowed,
	}
	if decMode, err = decOpts.DecMode(); err != nil {
		panic(fmt.Sprintf("storage: cbor decoder mode: %v", err))
	}
}

// Trajectory is the archived result of one instance.
type Trajectory struct {
	Instance string      `cbor:"1,keyasint"`
	Names    []string    `cbor:"2,keyasint"`
	Times    []float64   `cbor:"3,keyasint"`
	States   [][]float64 `cbor:"4,keyasint"`
	Events   []Event     `cbor:"5,keyasint,omitempty"`
	Steps    int         `cbor:"6,keyasint"`
}

// Event is one executed event action.
type Event struct {
	Name   string    `cbor:"1,keyasint" json:"name"`
	Time   float64   `cbor:"2,keyasint" json:"time"`
	Step   int       `cbor:"3,keyasint" json:"step"`
	Before []float64 `cbor:"4,keyasint" json:"before"`
	After  []float64 `cbor:"5,keyasint" json:"after"`
}

// Archive is the content of trajectory.cbor.
type Archive struct {
	RunID        string       `cbor:"1,keyasint"`
	Trajectories []Trajectory `cbor:"2,keyasint"`
}

func trajectoryOf(res *dynamo.Result) Trajectory {
	tr := Trajectory{
		Instance: res.System,
		Names:    res.Names,
		Times:    res.Times,
		States:   make([][]float64, len(res.States)),
		Steps:    res.StepsTaken,
	}
	for i, s := range res.States {
		tr.States[i] = s
	}
	for _, e := range res.Events {
		tr.Events = append(tr.Events, Event{Name: e.Name, Time: e.Time, Step: e.Step, Before: e.Before, After: e.After})
	}
	return tr
}

// Result converts the trajectory back to a host result.
func (tr Trajectory) Result() *dynamo.Result {
	res := &dynamo.Result{
		System:     tr.Instance,
		Names:      tr.Names,
		Times:      tr.Times,
		States:     make([]dynamo.State, len(tr.States)),
		StepsTaken: tr.Steps,
	}
	for i, s := range tr.States {
		res.States[i] = s
	}
	for _, e := range tr.Events {
		res.Events = append(res.Events, dynamo.EventRecord{Name: e.Name, Time: e.Time, Step: e.Step, Before: e.Before, After: e.After})
	}
	return res
}

func encodeArchive(a Archive) ([]byte, error) {
	return encMode.Marshal(a)
}

func decodeArchive(data []byte) (Archive, error) {
	var a Archive
	if err := decMode.Unmarshal(data, &a); err != nil {
		return Archive{}, err
	}
	return a, nil
}
