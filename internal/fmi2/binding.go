package fmi2

import (
	"runtime"
	"sync"

	"go.uber.org/multierr"
)

// Binding is one loaded FMU binary together with the callback table handed
// to fmi2Instantiate. The callback table is pinned until Close, since the
// FMU may keep the pointer for the lifetime of its component.
type Binding struct {
	Calls     *CallTable
	Callbacks *CallbackFunctions

	pinner  runtime.Pinner
	release []func() error
	once    sync.Once
	err     error
}

// NewBinding wraps a call table filled in by Go code. release hooks run in
// reverse order on Close.
func NewBinding(calls *CallTable, release ...func() error) (*Binding, error) {
	if err := calls.Validate(); err != nil {
		return nil, err
	}
	b := &Binding{
		Calls:     calls,
		Callbacks: &CallbackFunctions{},
		release:   release,
	}
	b.pinner.Pin(b.Callbacks)
	return b, nil
}

// OnClose registers a release hook.
func (b *Binding) OnClose(fn func() error) {
	b.release = append(b.release, fn)
}

// Close unpins the callback table and runs the release hooks. Only the
// first call has an effect.
func (b *Binding) Close() error {
	b.once.Do(func() {
		for i := len(b.release) - 1; i >= 0; i-- {
			b.err = multierr.Append(b.err, b.release[i]())
		}
		b.pinner.Unpin()
	})
	return b.err
}
