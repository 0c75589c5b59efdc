// Package cp reserves the bridge to a constraint-programming backend for
// the handful of constraints spec.md §4 leaves to one (nonlinear integer
// relations outside the weighted-sum/product forms internal/fd covers).
// No such backend is wired up here; NotConfigured is the error reserved
// for an operation that would need one. No code path returns it yet.
//
// Grounded on original_source/solvers/CPSolver.{hpp,C}, itself a thin,
// optional bridge in the original rather than a solver of its own.
package cp

import "errors"

// NotConfigured is returned by any operation that would need a CP backend.
var NotConfigured = errors.New("cp: no constraint-programming backend configured")
