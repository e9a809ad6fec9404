package optimizer

import (
	"errors"
	"fmt"

	"github.com/kilianp07/agriwater/core/milp"
)

// Failure kinds. A *Failure unwraps to exactly one of them.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrInfeasible   = errors.New("infeasible")
	ErrUnbounded    = errors.New("unbounded")
	ErrTimeLimited  = errors.New("time limited")
	ErrSolver       = errors.New("solver error")
)

var kindCodes = map[error]string{
	ErrInvalidInput: "invalid_input",
	ErrInfeasible:   "infeasible",
	ErrUnbounded:    "unbounded",
	ErrTimeLimited:  "time_limited",
	ErrSolver:       "solver_error",
}

// Failure is returned by Run when no schedule is produced.
type Failure struct {
	RunID  string
	Kind   error
	Status milp.Status
	Reason string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("run %s: %v: %s", f.RunID, f.Kind, f.Reason)
}

func (f *Failure) Unwrap() error { return f.Kind }

// Code is a stable identifier of the failure kind.
func (f *Failure) Code() string {
	if c, ok := kindCodes[f.Kind]; ok {
		return c
	}
	return "unknown"
}

// AsFailure extracts a *Failure from err.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	ok := errors.As(err, &f)
	return f, ok
}
