// Package dynamo provides core simulation primitives for dynamical systems.
//
// The package defines the host-side contract that simulated components
// plug into:
//
//   - [State]: vector representing system state
//   - [System]: interface for ODE systems (dX/dt = f(X, u, t))
//   - [Integrator]: numerical integrator interface
//   - [Event]: named zero-crossing condition paired with an action
//   - [Configurable]: runtime parameter access by name
//
// Derivative evaluation is fallible. A System backed by an external
// component (an FMU, for instance) reports native failures through the
// error return, and integrators propagate the first error they see
// without retrying.
//
// # Thread Safety
//
// Systems are NOT assumed thread-safe. Independent systems may be advanced
// on separate goroutines, one goroutine per system.
package dynamo
