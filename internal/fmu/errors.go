package fmu

import (
	"errors"
	"strconv"
	"strings"

	"github.com/san-kum/fmusim/internal/fmi2"
)

// Kind categorizes a failure of the integration layer.
type Kind string

const (
	KindBinding           Kind = "binding"
	KindProtocolViolation Kind = "protocol_violation"
	KindEventLoopOverrun  Kind = "event_loop_overrun"
	KindNativeCall        Kind = "native_call"
	KindTerminate         Kind = "terminate_requested"
	KindClosed            Kind = "closed"
)

// Sentinels for errors.Is. Every *Error matches the sentinel of its Kind.
var (
	ErrBinding            = errors.New("fmu: binding error")
	ErrProtocolViolation  = errors.New("fmu: call not allowed in current mode")
	ErrEventLoopOverrun   = errors.New("fmu: event iteration did not converge")
	ErrNativeCall         = errors.New("fmu: native call failed")
	ErrTerminateRequested = errors.New("fmu: model requested termination")
	ErrClosed             = errors.New("fmu: instance closed")
)

var sentinels = map[Kind]error{
	KindBinding:           ErrBinding,
	KindProtocolViolation: ErrProtocolViolation,
	KindEventLoopOverrun:  ErrEventLoopOverrun,
	KindNativeCall:        ErrNativeCall,
	KindTerminate:         ErrTerminateRequested,
	KindClosed:            ErrClosed,
}

// Error carries the context needed to diagnose a failed instance.
type Error struct {
	Kind     Kind
	Instance string
	Mode     Mode
	Call     Call
	Status   fmi2.Status
	Step     int
	Detail   string
	Cause    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("fmu")
	if e.Instance != "" {
		b.WriteString(" ")
		b.WriteString(e.Instance)
	}
	b.WriteString(": ")
	b.WriteString(string(e.Kind))
	if e.Call != "" {
		b.WriteString(" in ")
		b.WriteString(string(e.Call))
	}
	b.WriteString(" (mode ")
	b.WriteString(e.Mode.String())
	if e.Step >= 0 {
		b.WriteString(", step ")
		b.WriteString(strconv.Itoa(e.Step))
	}
	b.WriteString(")")
	if e.Kind == KindNativeCall {
		b.WriteString(": ")
		b.WriteString(e.Status.String())
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches the Kind sentinel, or another *Error of the same Kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return sentinels[e.Kind] == target
}

func bindingError(detail string, cause error) *Error {
	return &Error{Kind: KindBinding, Step: -1, Detail: detail, Cause: cause}
}
