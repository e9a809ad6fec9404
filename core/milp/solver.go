package milp

import (
	"context"
	"time"

	"github.com/kilianp07/agriwater/core/factory"
)

// DefaultTimeLimit bounds a solve when Options.TimeLimit is zero.
const DefaultTimeLimit = 60 * time.Second

// Options tune a single solve.
type Options struct {
	TimeLimit time.Duration
}

// Limit returns the effective time limit.
func (o Options) Limit() time.Duration {
	if o.TimeLimit <= 0 {
		return DefaultTimeLimit
	}
	return o.TimeLimit
}

// Solver solves minimization MILPs. Implementations must return within the
// time limit with the best incumbent found. The error is reserved for
// malformed problems; solver outcomes are reported through Result.Status.
type Solver interface {
	Solve(ctx context.Context, p *Problem, opts Options) (Result, error)
}

// SolverFunc adapts a function to the Solver interface.
type SolverFunc func(ctx context.Context, p *Problem, opts Options) (Result, error)

func (f SolverFunc) Solve(ctx context.Context, p *Problem, opts Options) (Result, error) {
	return f(ctx, p, opts)
}

var solverRegistry = factory.NewRegistry[Solver]()

// RegisterSolver makes a solver backend available by name.
func RegisterSolver(name string, f factory.Factory[Solver]) error {
	return solverRegistry.Register(name, f)
}

// NewSolver creates the solver selected by cfg.
func NewSolver(cfg factory.ModuleConfig) (Solver, error) {
	return solverRegistry.Create(cfg)
}

// SolverNames lists registered backends.
func SolverNames() []string { return solverRegistry.Names() }
