package solver

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/kilianp07/agriwater/core/factory"
	"github.com/kilianp07/agriwater/core/logger"
	"github.com/kilianp07/agriwater/core/milp"
)

// Name is the registry key of the branch-and-bound backend.
const Name = "bnb"

// Relaxation engines.
const (
	// EngineDual presolves the root and solves node relaxations with a
	// warm-started bounded dual simplex.
	EngineDual = "dual"
	// EngineSimplex converts every node to standard form and solves it
	// with the gonum simplex.
	EngineSimplex = "simplex"
)

// Config tunes the branch-and-bound search.
type Config struct {
	// Engine selects the relaxation solver, EngineDual by default.
	Engine string `json:"engine"`
	// Tolerance is the primal feasibility tolerance of the LP engine.
	Tolerance float64 `json:"tolerance"`
	// IntegralityTolerance is the distance from an integer under which a
	// relaxed value counts as integral.
	IntegralityTolerance float64 `json:"integrality_tolerance"`
	// Gap is the relative optimality gap used for pruning.
	Gap float64 `json:"gap"`
	// MaxNodes caps explored nodes. Zero means no cap.
	MaxNodes int `json:"max_nodes"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Engine == "" {
		c.Engine = EngineDual
	}
	if c.Tolerance <= 0 {
		c.Tolerance = 1e-7
	}
	if c.IntegralityTolerance <= 0 {
		c.IntegralityTolerance = 1e-6
	}
	if c.Gap <= 0 {
		c.Gap = 1e-6
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Engine != EngineDual && c.Engine != EngineSimplex {
		return fmt.Errorf("unknown engine %q", c.Engine)
	}
	if c.MaxNodes < 0 {
		return fmt.Errorf("max_nodes must be >= 0")
	}
	if c.Gap >= 1 {
		return fmt.Errorf("gap must be < 1")
	}
	return nil
}

func init() {
	_ = milp.RegisterSolver(Name, func(m map[string]any) (milp.Solver, error) {
		var cfg Config
		if err := factory.Decode(m, &cfg); err != nil {
			return nil, err
		}
		return New(cfg)
	})
}

// BranchAndBound solves MILPs by best-first branch-and-bound over LP
// relaxations. After branching it dives into the child nearest to the
// relaxed value and queues the other one.
type BranchAndBound struct {
	cfg Config
	log logger.Logger
}

// Option customises a BranchAndBound.
type Option func(*BranchAndBound)

// WithLogger sets the logger used for search diagnostics.
func WithLogger(l logger.Logger) Option {
	return func(b *BranchAndBound) { b.log = logger.OrNop(l) }
}

// New returns a solver using cfg.
func New(cfg Config, opts ...Option) (*BranchAndBound, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := &BranchAndBound{cfg: cfg, log: logger.NopLogger{}}
	for _, o := range opts {
		o(b)
	}
	return b, nil
}

type node struct {
	lo, hi []float64
	bound  float64
	basis  *lpBasis
	seq    int
}

func (n *node) child() *node {
	return &node{
		lo:    append([]float64(nil), n.lo...),
		hi:    append([]float64(nil), n.hi...),
		basis: n.basis,
	}
}

// queue orders open nodes by bound, then by creation order.
type queue []*node

func (q queue) Len() int { return len(q) }
func (q queue) Less(i, j int) bool {
	if q[i].bound != q[j].bound {
		return q[i].bound < q[j].bound
	}
	return q[i].seq < q[j].seq
}
func (q queue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *queue) Push(x any)   { *q = append(*q, x.(*node)) }
func (q *queue) Pop() any {
	old := *q
	n := old[len(old)-1]
	*q = old[:len(old)-1]
	return n
}

// relaxer solves the LP relaxation of one node.
type relaxer interface {
	relax(ctx context.Context, n *node) (relaxOut, error)
}

type search struct {
	p       *milp.Problem
	cfg     Config
	log     logger.Logger
	eng     relaxer
	open    queue
	seq     int
	inc     []float64
	incObj  float64
	nodes   int
	fixed   int
	failed  int
	limited string
	lastErr error
}

// Solve implements milp.Solver.
func (b *BranchAndBound) Solve(ctx context.Context, p *milp.Problem, opts milp.Options) (milp.Result, error) {
	start := time.Now()
	if err := p.Validate(); err != nil {
		return milp.Result{Status: milp.StatusError, Message: err.Error()}, err
	}
	ctx, cancel := context.WithTimeout(ctx, opts.Limit())
	defer cancel()

	s := &search{p: p, cfg: b.cfg, log: b.log, incObj: math.Inf(1)}
	if s.tryHint() {
		b.log.Debugf("bnb: starting incumbent accepted objective=%.4f", s.incObj)
	}
	res := s.run(ctx)
	res.SolveTime = time.Since(start)
	b.log.Debugw("bnb: solve finished", map[string]any{
		"problem":   p.Name,
		"engine":    b.cfg.Engine,
		"status":    res.Status.String(),
		"objective": res.Objective,
		"bound":     res.Bound,
		"nodes":     res.Nodes,
		"fixed":     s.fixed,
		"failed":    s.failed,
		"elapsed":   res.SolveTime.String(),
	})
	return res, nil
}

func (s *search) tryHint() bool {
	if len(s.p.Hint) != len(s.p.Vars) {
		return false
	}
	x := s.round(s.p.Hint)
	if s.p.CheckFeasible(x, s.cfg.IntegralityTolerance) != nil {
		return false
	}
	s.inc, s.incObj = x, s.p.ObjectiveValue(x)
	return true
}

// cutoff is the objective a node must beat to be explored.
func (s *search) cutoff() float64 {
	if s.inc == nil {
		return math.Inf(1)
	}
	return s.incObj - math.Max(1e-9, s.cfg.Gap*math.Abs(s.incObj))
}

func (s *search) prune(bound float64) bool {
	return s.inc != nil && bound >= s.cutoff()
}

func (s *search) push(n *node) {
	s.seq++
	n.seq = s.seq
	heap.Push(&s.open, n)
}

// next pops the best open node that can still improve the incumbent.
func (s *search) next() *node {
	for s.open.Len() > 0 {
		n := heap.Pop(&s.open).(*node)
		if !s.prune(n.bound) {
			return n
		}
	}
	return nil
}

// root builds the root box. With the dual engine the box is presolved and
// the LP is assembled once over the rows that can still bind.
func (s *search) root() (*node, bool) {
	n := &node{
		lo:    make([]float64, len(s.p.Vars)),
		hi:    make([]float64, len(s.p.Vars)),
		bound: math.Inf(-1),
	}
	for i, v := range s.p.Vars {
		n.lo[i], n.hi[i] = v.Lower, v.Upper
		if v.Kind.IsInteger() {
			n.lo[i] = math.Ceil(v.Lower - s.cfg.IntegralityTolerance)
			n.hi[i] = math.Floor(v.Upper + s.cfg.IntegralityTolerance)
		}
	}
	simplex := &simplexEngine{p: s.p, cfg: s.cfg}
	if s.cfg.Engine == EngineSimplex {
		s.eng = simplex
		return n, true
	}

	rows := make([]row, len(s.p.Constraints))
	for i, c := range s.p.Constraints {
		rows[i] = aggregate(c)
	}
	if !presolve(s.p, rows, n.lo, n.hi, s.cfg.IntegralityTolerance) {
		return nil, false
	}
	rows = binding(rows, n.lo, n.hi)
	cost := make([]float64, len(s.p.Vars))
	for _, t := range s.p.Objective {
		cost[t.Var] += t.Coef
	}
	art := make([]bool, len(s.p.Vars))
	for i := range n.hi {
		if math.IsInf(n.hi[i], 1) {
			n.hi[i] = n.lo[i] + bigBound
			art[i] = true
		}
	}
	s.eng = &dualEngine{lp: newDualLP(len(s.p.Vars), rows, cost, s.cfg.Tolerance), art: art, fallback: simplex, log: s.log}
	s.log.Debugf("bnb: presolved %s to %d of %d rows", s.p.Name, len(rows), len(s.p.Constraints))
	return n, true
}

func (s *search) run(ctx context.Context) milp.Result {
	cur, ok := s.root()
	if !ok {
		return s.result()
	}
	for {
		if cur == nil {
			if cur = s.next(); cur == nil {
				break
			}
		}
		if ctx.Err() != nil {
			s.limited = "time limit reached"
			s.push(cur)
			break
		}
		if s.cfg.MaxNodes > 0 && s.nodes >= s.cfg.MaxNodes {
			s.limited = "node limit reached"
			s.push(cur)
			break
		}
		n := cur
		cur = nil
		s.nodes++
		isRoot := s.nodes == 1

		out, err := s.eng.relax(ctx, n)
		switch {
		case err == nil:
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			s.limited = "time limit reached"
			s.push(n)
			return s.result()
		case errors.Is(err, errNodeInfeasible):
			continue
		case errors.Is(err, errNodeUnbounded) && isRoot:
			return milp.Result{Status: milp.StatusUnbounded, Nodes: s.nodes, Message: "relaxation is unbounded"}
		default:
			s.failed++
			s.lastErr = err
			continue
		}
		if s.prune(out.obj) {
			continue
		}

		j := s.branchVar(out.x)
		if j < 0 {
			x := s.round(out.x)
			if obj := s.p.ObjectiveValue(x); obj < s.incObj {
				s.inc, s.incObj = x, obj
				s.log.Debugf("bnb: incumbent objective=%.4f after %d nodes", obj, s.nodes)
			}
			continue
		}
		s.fixReducedCosts(n, out)
		v := out.x[j]
		down, up := n.child(), n.child()
		down.hi[j], up.lo[j] = math.Floor(v), math.Ceil(v)
		down.bound, up.bound = out.obj, out.obj
		down.basis, up.basis = out.basis, out.basis
		if v-math.Floor(v) < 0.5 {
			s.push(up)
			cur = down
		} else {
			s.push(down)
			cur = up
		}
	}
	return s.result()
}

// fixReducedCosts tightens the bounds of nonbasic integer columns whose
// reduced cost shows that moving them cannot beat the incumbent. The
// tightened box is inherited by both children.
func (s *search) fixReducedCosts(n *node, out relaxOut) {
	if s.inc == nil || out.d == nil {
		return
	}
	slack := s.cutoff() - out.obj
	if slack <= 0 {
		return
	}
	tol := s.cfg.IntegralityTolerance
	for j, d := range out.d {
		if !s.p.Vars[j].Kind.IsInteger() || n.hi[j]-n.lo[j] < 1-tol || math.Abs(d) <= dualTol {
			continue
		}
		steps := math.Floor(slack/math.Abs(d) + tol)
		switch {
		case d > 0 && math.Abs(out.x[j]-n.lo[j]) <= tol && n.lo[j]+steps < n.hi[j]:
			n.hi[j] = n.lo[j] + steps
			s.fixed++
		case d < 0 && math.Abs(out.x[j]-n.hi[j]) <= tol && n.hi[j]-steps > n.lo[j]:
			n.lo[j] = n.hi[j] - steps
			s.fixed++
		}
	}
}

// bestBound is the lowest bound among open nodes.
func (s *search) bestBound() float64 {
	b := s.incObj
	for _, n := range s.open {
		b = math.Min(b, n.bound)
	}
	return b
}

func (s *search) result() milp.Result {
	res := milp.Result{Nodes: s.nodes}
	if s.inc != nil {
		res.Values, res.Objective, res.Bound = s.inc, s.incObj, s.incObj
	}
	switch {
	case s.inc != nil && s.limited == "" && s.failed == 0:
		res.Status = milp.StatusOptimal
	case s.inc != nil && s.limited != "":
		res.Status = milp.StatusFeasible
		res.Bound = s.bestBound()
		res.Message = s.limited
		if gap := res.Gap(); !math.IsInf(gap, 0) {
			res.Message = fmt.Sprintf("%s, gap %.4f%%", s.limited, 100*gap)
		}
	case s.inc != nil:
		res.Status = milp.StatusFeasible
		res.Bound = math.Inf(-1)
		res.Message = fmt.Sprintf("%d relaxations failed: %v", s.failed, s.lastErr)
	case s.limited != "":
		res.Status = milp.StatusError
		res.Message = s.limited + " before a feasible solution was found"
	case s.failed > 0:
		res.Status = milp.StatusError
		res.Message = fmt.Sprintf("%d relaxations failed: %v", s.failed, s.lastErr)
	default:
		res.Status = milp.StatusInfeasible
		res.Message = "no integer feasible solution exists"
	}
	return res
}

// branchVar returns the most fractional integer variable, or -1 when x is
// integral.
func (s *search) branchVar(x []float64) int {
	best, bestFrac := -1, s.cfg.IntegralityTolerance
	for i, v := range s.p.Vars {
		if !v.Kind.IsInteger() {
			continue
		}
		if f := math.Abs(x[i] - math.Round(x[i])); f > bestFrac {
			best, bestFrac = i, f
		}
	}
	return best
}

func (s *search) round(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range s.p.Vars {
		val := x[i]
		if v.Kind.IsInteger() {
			val = math.Round(val)
		}
		out[i] = math.Min(math.Max(val, v.Lower), v.Upper)
	}
	return out
}

// dualEngine solves nodes with the dual simplex, warm-started from the
// parent basis. Nodes it cannot finish are handed to the gonum simplex.
type dualEngine struct {
	lp       *dualLP
	art      []bool
	fallback *simplexEngine
	log      logger.Logger
}

func (e *dualEngine) relax(ctx context.Context, n *node) (out relaxOut, err error) {
	res, err := e.solve(ctx, n)
	switch {
	case err == nil:
		out = relaxOut{obj: res.obj, x: res.x, d: res.d, basis: res.basis}
	case errors.Is(err, errIterationLimit), errors.Is(err, errSingularBasis), errors.Is(err, errDualInfeasible):
		e.log.Debugf("bnb: dual simplex gave up (%v), retrying node with gonum simplex", err)
		if out, err = e.fallback.relax(ctx, n); err != nil {
			return relaxOut{}, err
		}
	default:
		return relaxOut{}, err
	}
	for j, a := range e.art {
		if a && out.x[j]-n.lo[j] > bigBound/2 {
			return relaxOut{}, errNodeUnbounded
		}
	}
	return out, nil
}

func (e *dualEngine) solve(ctx context.Context, n *node) (out dualOut, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("dual simplex panic: %v: %w", rec, errSingularBasis)
		}
	}()
	return e.lp.solve(ctx, n.lo, n.hi, n.basis)
}

// simplexEngine builds a standard-form LP per node and runs the gonum
// simplex in its own goroutine, so the deadline is honoured even inside a
// long simplex run. lp.Simplex takes no context: an abandoned run keeps its
// goroutine until the simplex returns on its own.
type simplexEngine struct {
	p   *milp.Problem
	cfg Config
}

func (e *simplexEngine) relax(ctx context.Context, n *node) (relaxOut, error) {
	rel, err := buildRelaxation(e.p, n.lo, n.hi, e.cfg.IntegralityTolerance)
	if err != nil {
		return relaxOut{}, err
	}
	type answer struct {
		out relaxOut
		err error
	}
	ch := make(chan answer, 1)
	go func() {
		out, err := rel.solve(e.cfg.Tolerance)
		ch <- answer{out, err}
	}()
	select {
	case a := <-ch:
		return a.out, a.err
	case <-ctx.Done():
		return relaxOut{}, ctx.Err()
	}
}
