package milp

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Status is the outcome of a solve.
type Status int

const (
	StatusError Status = iota
	StatusOptimal
	// StatusFeasible is a usable incumbent whose optimality was not proven,
	// typically because the time limit elapsed.
	StatusFeasible
	StatusInfeasible
	StatusUnbounded
)

var statusNames = map[Status]string{
	StatusError:      "Error",
	StatusOptimal:    "Optimal",
	StatusFeasible:   "Feasible",
	StatusInfeasible: "Infeasible",
	StatusUnbounded:  "Unbounded",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// HasSolution reports whether Values carries a usable assignment.
func (s Status) HasSolution() bool {
	return s == StatusOptimal || s == StatusFeasible
}

// MarshalText encodes the status name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name, case-insensitively.
func (s *Status) UnmarshalText(b []byte) error {
	for k, v := range statusNames {
		if strings.EqualFold(v, string(b)) {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", string(b))
}

// Result is what a solver returns.
type Result struct {
	Status    Status
	Objective float64
	// Values holds one entry per problem variable when Status.HasSolution.
	Values    []float64
	// Bound is the best proven lower bound on the objective. It equals
	// Objective when the result is optimal.
	Bound     float64
	Nodes     int
	SolveTime time.Duration
	Message   string
}

// Gap is the relative distance between Objective and Bound, +Inf without a
// solution or a finite bound.
func (r Result) Gap() float64 {
	if !r.Status.HasSolution() || math.IsInf(r.Bound, 0) || math.IsNaN(r.Bound) {
		return math.Inf(1)
	}
	return math.Max(0, r.Objective-r.Bound) / math.Max(1, math.Abs(r.Objective))
}

// Value returns the assignment of variable v, or 0 without a solution.
func (r Result) Value(v int) float64 {
	if v < 0 || v >= len(r.Values) {
		return 0
	}
	return r.Values[v]
}
