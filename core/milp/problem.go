package milp

import (
	"errors"
	"fmt"
	"math"
)

// VarKind is the domain of a decision variable.
type VarKind int

const (
	Continuous VarKind = iota
	Binary
	Integer
)

func (k VarKind) String() string {
	switch k {
	case Continuous:
		return "continuous"
	case Binary:
		return "binary"
	case Integer:
		return "integer"
	default:
		return fmt.Sprintf("VarKind(%d)", int(k))
	}
}

// IsInteger reports whether values of this kind must be integral.
func (k VarKind) IsInteger() bool { return k == Binary || k == Integer }

// Variable is one column of the program. Upper may be +Inf.
type Variable struct {
	Name  string
	Kind  VarKind
	Lower float64
	Upper float64
}

// Term is coef*x[Var].
type Term struct {
	Var  int
	Coef float64
}

// Sense is the relation of a constraint row.
type Sense int

const (
	LessEq Sense = iota
	GreaterEq
	Equal
)

func (s Sense) String() string {
	switch s {
	case LessEq:
		return "<="
	case GreaterEq:
		return ">="
	case Equal:
		return "="
	default:
		return "?"
	}
}

// Constraint is the row sum(Terms) Sense RHS.
type Constraint struct {
	Name  string
	Terms []Term
	Sense Sense
	RHS   float64
}

// Problem is a minimization MILP.
type Problem struct {
	Name        string
	Vars        []Variable
	Constraints []Constraint
	Objective   []Term
	// Hint is an optional full assignment used as a starting incumbent.
	Hint []float64
}

// ErrMalformed is returned for structurally invalid problems.
var ErrMalformed = errors.New("milp: malformed problem")

// NewProblem returns an empty problem.
func NewProblem(name string) *Problem {
	return &Problem{Name: name}
}

// AddVar appends a variable and returns its index.
func (p *Problem) AddVar(name string, kind VarKind, lower, upper float64) int {
	p.Vars = append(p.Vars, Variable{Name: name, Kind: kind, Lower: lower, Upper: upper})
	return len(p.Vars) - 1
}

// AddBinary appends a {0,1} variable.
func (p *Problem) AddBinary(name string) int {
	return p.AddVar(name, Binary, 0, 1)
}

// AddContinuous appends a continuous variable with the given bounds.
func (p *Problem) AddContinuous(name string, lower, upper float64) int {
	return p.AddVar(name, Continuous, lower, upper)
}

// AddConstraint appends a row and returns its index.
func (p *Problem) AddConstraint(name string, sense Sense, rhs float64, terms ...Term) int {
	p.Constraints = append(p.Constraints, Constraint{Name: name, Terms: terms, Sense: sense, RHS: rhs})
	return len(p.Constraints) - 1
}

// AddObjective adds terms to the minimized objective.
func (p *Problem) AddObjective(terms ...Term) {
	p.Objective = append(p.Objective, terms...)
}

// Validate checks indices, bounds and coefficients.
func (p *Problem) Validate() error {
	if len(p.Vars) == 0 {
		return fmt.Errorf("%w: no variables", ErrMalformed)
	}
	for i, v := range p.Vars {
		if math.IsNaN(v.Lower) || math.IsNaN(v.Upper) || math.IsInf(v.Lower, 0) {
			return fmt.Errorf("%w: variable %s has invalid bounds", ErrMalformed, v.Name)
		}
		if v.Upper < v.Lower {
			return fmt.Errorf("%w: variable %d (%s) upper bound below lower bound", ErrMalformed, i, v.Name)
		}
	}
	check := func(where string, terms []Term) error {
		for _, t := range terms {
			if t.Var < 0 || t.Var >= len(p.Vars) {
				return fmt.Errorf("%w: %s references unknown variable %d", ErrMalformed, where, t.Var)
			}
			if math.IsNaN(t.Coef) || math.IsInf(t.Coef, 0) {
				return fmt.Errorf("%w: %s has a non-finite coefficient", ErrMalformed, where)
			}
		}
		return nil
	}
	if err := check("objective", p.Objective); err != nil {
		return err
	}
	for _, c := range p.Constraints {
		if math.IsNaN(c.RHS) || math.IsInf(c.RHS, 0) {
			return fmt.Errorf("%w: constraint %s has a non-finite rhs", ErrMalformed, c.Name)
		}
		if err := check("constraint "+c.Name, c.Terms); err != nil {
			return err
		}
	}
	if p.Hint != nil && len(p.Hint) != len(p.Vars) {
		return fmt.Errorf("%w: hint has %d values for %d variables", ErrMalformed, len(p.Hint), len(p.Vars))
	}
	return nil
}

// ObjectiveValue evaluates the objective at x.
func (p *Problem) ObjectiveValue(x []float64) float64 {
	return dot(p.Objective, x)
}

// CheckFeasible reports the first bound, integrality or row violation of x
// beyond tol. Row tolerances scale with the magnitude of the row.
func (p *Problem) CheckFeasible(x []float64, tol float64) error {
	if len(x) != len(p.Vars) {
		return fmt.Errorf("assignment has %d values for %d variables", len(x), len(p.Vars))
	}
	for i, v := range p.Vars {
		if x[i] < v.Lower-tol || x[i] > v.Upper+tol {
			return fmt.Errorf("variable %s=%g outside [%g,%g]", v.Name, x[i], v.Lower, v.Upper)
		}
		if v.Kind.IsInteger() && math.Abs(x[i]-math.Round(x[i])) > tol {
			return fmt.Errorf("variable %s=%g is not integral", v.Name, x[i])
		}
	}
	for _, c := range p.Constraints {
		lhs := dot(c.Terms, x)
		scale := math.Max(1, math.Abs(c.RHS))
		for _, t := range c.Terms {
			scale = math.Max(scale, math.Abs(t.Coef*x[t.Var]))
		}
		slack := tol * scale
		var ok bool
		switch c.Sense {
		case LessEq:
			ok = lhs <= c.RHS+slack
		case GreaterEq:
			ok = lhs >= c.RHS-slack
		case Equal:
			ok = math.Abs(lhs-c.RHS) <= slack
		}
		if !ok {
			return fmt.Errorf("constraint %s violated: %g %s %g", c.Name, lhs, c.Sense, c.RHS)
		}
	}
	return nil
}

// IntegerVars returns the indices of binary and integer variables.
func (p *Problem) IntegerVars() []int {
	var idx []int
	for i, v := range p.Vars {
		if v.Kind.IsInteger() {
			idx = append(idx, i)
		}
	}
	return idx
}

func dot(terms []Term, x []float64) float64 {
	var s float64
	for _, t := range terms {
		s += t.Coef * x[t.Var]
	}
	return s
}
