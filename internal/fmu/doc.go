// Package fmu drives an FMI 2.0 Model-Exchange unit as a native equation
// block of the dynamo simulation host.
//
// A [Subsystem] owns one FMU instance end to end:
//
//   - a [Pool] of pinned scalar buffers, one per Real variable, plus the
//     event indicator and event info scratch the native calls write into
//   - a [Machine] enforcing the FMI2 mode sequence
//     (Instantiated → Initializing → ContinuousTime ⇄ EventMode → Terminated)
//   - three [Routine]s built once by a [Synthesizer]: derivative,
//     event indicator and event action
//   - a [Bridge] exposing the indicator and action routines to the host as
//     a [dynamo.Event]
//
// Every native call is checked against the current mode before it is
// made; a call in the wrong mode is a [ErrProtocolViolation] and is never
// retried. Native failures surface as [ErrNativeCall] with the instance
// tag, mode and host step attached.
//
// # Concurrency
//
// One Subsystem must be driven by one goroutine. Separate Subsystems share
// no mutable state and may run in parallel.
package fmu
