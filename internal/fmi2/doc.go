// Package fmi2 binds the FMI 2.0 Model-Exchange C interface.
//
// The package owns no simulation state. It defines the fixed-width Go
// counterparts of the FMI2 C types ([Status], [Boolean], [ValueReference],
// [EventInfo], [CallbackFunctions]), the [CallTable] of entry points, and
// the resolution of those entry points from a shared library through
// purego. A [Binding] couples a resolved call table with the per-instance
// callback table handed to fmi2Instantiate and releases both exactly once.
//
// Call tables can also be filled in directly by Go code implementing the
// FMI2 semantics in-process; every consumer goes through the same func
// fields, so the two are interchangeable.
package fmi2
