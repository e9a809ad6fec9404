//go:build highs

package highs

import (
	"context"
	"fmt"
	"math"
	"time"

	gohighs "github.com/ohowland/highs"

	"github.com/kilianp07/agriwater/core/factory"
	"github.com/kilianp07/agriwater/core/milp"
	"github.com/kilianp07/agriwater/infra/logger"
)

// Name is the registry key of the HiGHS backend.
const Name = "highs"

// Config holds HiGHS options. The binding exposes no numeric options, so the
// time limit is enforced by the caller's context.
type Config struct {
	Presolve bool `json:"presolve"`
	Parallel bool `json:"parallel"`
	Output   bool `json:"output"`
	// FeasibilityTolerance is used to accept an incumbent returned after a
	// limit was hit.
	FeasibilityTolerance float64 `json:"feasibility_tolerance"`
}

func (c *Config) SetDefaults() {
	if c.FeasibilityTolerance <= 0 {
		c.FeasibilityTolerance = 1e-6
	}
}

func init() {
	_ = milp.RegisterSolver(Name, func(m map[string]any) (milp.Solver, error) {
		cfg := Config{Presolve: true}
		if err := factory.Decode(m, &cfg); err != nil {
			return nil, err
		}
		return New(cfg), nil
	})
}

// Solver runs HiGHS on a milp.Problem.
type Solver struct {
	cfg Config
	log logger.Logger
}

// New returns a HiGHS backend.
func New(cfg Config) *Solver {
	cfg.SetDefaults()
	return &Solver{cfg: cfg, log: logger.New("highs")}
}

type model struct {
	costs       []float64
	bounds      [][2]float64
	rows        [][]float64
	integrality []int
}

// build lays p out the way the binding expects: dense rows of the form
// [lower, coefficients..., upper]. HiGHS needs at least one row, so a free
// row is added to programs without constraints.
func build(p *milp.Problem) model {
	n := len(p.Vars)
	m := model{costs: make([]float64, n), bounds: make([][2]float64, n)}
	for _, t := range p.Objective {
		m.costs[t.Var] += t.Coef
	}
	integer := false
	for i, v := range p.Vars {
		m.bounds[i] = [2]float64{v.Lower, v.Upper}
		integer = integer || v.Kind.IsInteger()
	}
	if integer {
		m.integrality = make([]int, n)
		for i, v := range p.Vars {
			if v.Kind.IsInteger() {
				m.integrality[i] = int(gohighs.Integer)
			}
		}
	}
	for _, c := range p.Constraints {
		r := make([]float64, n+2)
		for _, t := range c.Terms {
			r[1+t.Var] += t.Coef
		}
		lo, hi := math.Inf(-1), math.Inf(1)
		switch c.Sense {
		case milp.LessEq:
			hi = c.RHS
		case milp.GreaterEq:
			lo = c.RHS
		case milp.Equal:
			lo, hi = c.RHS, c.RHS
		}
		r[0], r[n+1] = lo, hi
		m.rows = append(m.rows, r)
	}
	if len(m.rows) == 0 {
		r := make([]float64, n+2)
		r[0], r[n+1] = math.Inf(-1), math.Inf(1)
		m.rows = append(m.rows, r)
	}
	return m
}

type outcome struct {
	status gohighs.ModelStatus
	x      []float64
	err    error
}

// Solve implements milp.Solver. A solve that outlives the time limit is
// abandoned; the binding cannot interrupt HiGHS, so its goroutine runs on
// until the library returns.
func (s *Solver) Solve(ctx context.Context, p *milp.Problem, opts milp.Options) (milp.Result, error) {
	start := time.Now()
	if err := p.Validate(); err != nil {
		return milp.Result{Status: milp.StatusError, Message: err.Error()}, err
	}
	ctx, cancel := context.WithTimeout(ctx, opts.Limit())
	defer cancel()

	m := build(p)
	ch := make(chan outcome, 1)
	go func() {
		ch <- s.run(m)
	}()

	var res milp.Result
	select {
	case out := <-ch:
		res = s.result(p, out)
	case <-ctx.Done():
		res = s.fromHint(p, "time limit reached")
	}
	res.SolveTime = time.Since(start)
	s.log.Debugw("highs: solve finished", map[string]any{
		"problem": p.Name,
		"status":  res.Status.String(),
		"elapsed": res.SolveTime.String(),
	})
	return res, nil
}

func (s *Solver) run(m model) (out outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			out = outcome{status: gohighs.ModelError, err: fmt.Errorf("highs panic: %v", rec)}
		}
	}()
	h, err := gohighs.New(m.costs, m.bounds, m.rows, m.integrality)
	if err != nil {
		return outcome{status: gohighs.ModelLoadError, err: err}
	}
	h.SetObjectiveSense(gohighs.Minimize)
	h.SetBoolOptionValue("output_flag", s.cfg.Output)
	h.SetStringOptionValue("presolve", onOff(s.cfg.Presolve))
	h.SetStringOptionValue("parallel", onOff(s.cfg.Parallel))
	// RunSolver reports every non-optimal model status as an error; the
	// status itself is read back below.
	_, err = h.RunSolver()
	status := h.GetModelStatus()
	out = outcome{status: status, err: err}
	switch status {
	case gohighs.ModelOptimal, gohighs.ModelTimeLimit, gohighs.ModelIterationLimit, gohighs.ModelObjectiveBound:
		out.x = h.PrimalColumnSolution()
	}
	return out
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func (s *Solver) result(p *milp.Problem, out outcome) milp.Result {
	switch out.status {
	case gohighs.ModelOptimal:
		x := s.round(p, out.x)
		if err := p.CheckFeasible(x, s.cfg.FeasibilityTolerance); err != nil {
			return milp.Result{Status: milp.StatusError, Message: "highs optimum fails verification: " + err.Error()}
		}
		obj := p.ObjectiveValue(x)
		return milp.Result{Status: milp.StatusOptimal, Objective: obj, Bound: obj, Values: x}
	case gohighs.ModelInfeasible:
		return milp.Result{Status: milp.StatusInfeasible, Message: "no integer feasible solution exists"}
	case gohighs.ModelUnbounded:
		return milp.Result{Status: milp.StatusUnbounded, Message: "relaxation is unbounded"}
	case gohighs.ModelTimeLimit, gohighs.ModelIterationLimit, gohighs.ModelObjectiveBound:
		if len(out.x) == len(p.Vars) {
			x := s.round(p, out.x)
			if p.CheckFeasible(x, s.cfg.FeasibilityTolerance) == nil {
				return milp.Result{Status: milp.StatusFeasible, Objective: p.ObjectiveValue(x), Bound: math.Inf(-1), Values: x, Message: out.status.String()}
			}
		}
		return s.fromHint(p, out.status.String())
	default:
		msg := out.status.String()
		if out.err != nil {
			msg = out.err.Error()
		}
		return milp.Result{Status: milp.StatusError, Message: msg}
	}
}

// fromHint falls back to the starting assignment when HiGHS returned no
// usable incumbent.
func (s *Solver) fromHint(p *milp.Problem, reason string) milp.Result {
	if len(p.Hint) == len(p.Vars) {
		x := s.round(p, p.Hint)
		if p.CheckFeasible(x, s.cfg.FeasibilityTolerance) == nil {
			return milp.Result{Status: milp.StatusFeasible, Objective: p.ObjectiveValue(x), Bound: math.Inf(-1), Values: x, Message: reason}
		}
	}
	return milp.Result{Status: milp.StatusError, Message: reason + " before a feasible solution was found"}
}

func (s *Solver) round(p *milp.Problem, x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range p.Vars {
		val := x[i]
		if v.Kind.IsInteger() {
			val = math.Round(val)
		}
		out[i] = math.Min(math.Max(val, v.Lower), v.Upper)
	}
	return out
}
