// Package milp describes mixed-integer linear programs and the contract a
// solver backend fulfils. The scheduler builds a Problem, hands it to a
// Solver and reads back a Result; branch-and-bound internals live in the
// backend packages.
package milp
