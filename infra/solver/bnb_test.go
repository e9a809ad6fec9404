package solver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/kilianp07/agriwater/core/factory"
	"github.com/kilianp07/agriwater/core/milp"
)

func newSolver(t *testing.T, cfg Config) *BranchAndBound {
	t.Helper()
	s, err := New(cfg)
	require.NoError(t, err)
	return s
}

func coverProblem() *milp.Problem {
	p := milp.NewProblem("cover")
	a := p.AddBinary("a")
	b := p.AddBinary("b")
	y := p.AddContinuous("y", 0, math.Inf(1))
	p.AddConstraint("cover", milp.GreaterEq, 5, milp.Term{Var: a, Coef: 3}, milp.Term{Var: b, Coef: 4})
	p.AddConstraint("link", milp.Equal, 0, milp.Term{Var: y, Coef: 1}, milp.Term{Var: a, Coef: -2}, milp.Term{Var: b, Coef: -3})
	p.AddObjective(milp.Term{Var: y, Coef: 1})
	return p
}

func withSimplex(t *testing.T, f func([]float64, mat.Matrix, []float64, float64, []int) (float64, []float64, error)) {
	t.Helper()
	orig := lpSimplex
	lpSimplex = f
	t.Cleanup(func() { lpSimplex = orig })
}

func TestSolveCover(t *testing.T) {
	res, err := newSolver(t, Config{}).Solve(context.Background(), coverProblem(), milp.Options{})
	require.NoError(t, err)
	require.Equal(t, milp.StatusOptimal, res.Status)
	assert.InDelta(t, 5, res.Objective, 1e-6)
	assert.InDelta(t, 1, res.Value(0), 1e-9)
	assert.InDelta(t, 1, res.Value(1), 1e-9)
	assert.InDelta(t, 5, res.Value(2), 1e-6)
	assert.Positive(t, res.Nodes)
}

// integerProgram is max 5x+4y st 6x+4y<=24, x+2y<=6 over integers. The
// relaxation optimum (3, 1.5) is fractional.
func integerProgram() *milp.Problem {
	p := milp.NewProblem("ip")
	x := p.AddVar("x", milp.Integer, 0, 10)
	y := p.AddVar("y", milp.Integer, 0, 10)
	p.AddConstraint("c1", milp.LessEq, 24, milp.Term{Var: x, Coef: 6}, milp.Term{Var: y, Coef: 4})
	p.AddConstraint("c2", milp.LessEq, 6, milp.Term{Var: x, Coef: 1}, milp.Term{Var: y, Coef: 2})
	p.AddObjective(milp.Term{Var: x, Coef: -5}, milp.Term{Var: y, Coef: -4})
	return p
}

func TestSolveIntegerProgram(t *testing.T) {
	for _, engine := range []string{EngineDual, EngineSimplex} {
		t.Run(engine, func(t *testing.T) {
			res, err := newSolver(t, Config{Engine: engine}).Solve(context.Background(), integerProgram(), milp.Options{})
			require.NoError(t, err)
			require.Equal(t, milp.StatusOptimal, res.Status)
			assert.InDelta(t, -20, res.Objective, 1e-6)
			assert.InDelta(t, -20, res.Bound, 1e-6)
			assert.InDelta(t, 4, res.Value(0), 1e-9)
			assert.InDelta(t, 0, res.Value(1), 1e-9)
		})
	}
}

func TestSolveInfeasible(t *testing.T) {
	p := milp.NewProblem("infeasible")
	a := p.AddBinary("a")
	b := p.AddBinary("b")
	p.AddConstraint("too_much", milp.GreaterEq, 3, milp.Term{Var: a, Coef: 1}, milp.Term{Var: b, Coef: 1})
	p.AddObjective(milp.Term{Var: a, Coef: 1})

	res, err := newSolver(t, Config{}).Solve(context.Background(), p, milp.Options{})
	require.NoError(t, err)
	assert.Equal(t, milp.StatusInfeasible, res.Status)
	assert.Nil(t, res.Values)
}

func TestSolveIntegerInfeasible(t *testing.T) {
	// 2a = 1 has a relaxed solution but no binary one.
	p := milp.NewProblem("parity")
	a := p.AddBinary("a")
	p.AddConstraint("half", milp.Equal, 1, milp.Term{Var: a, Coef: 2})
	p.AddObjective(milp.Term{Var: a, Coef: 1})

	res, err := newSolver(t, Config{}).Solve(context.Background(), p, milp.Options{})
	require.NoError(t, err)
	assert.Equal(t, milp.StatusInfeasible, res.Status)
}

func TestSolveUnbounded(t *testing.T) {
	p := milp.NewProblem("unbounded")
	z := p.AddBinary("z")
	y := p.AddContinuous("y", 0, math.Inf(1))
	p.AddConstraint("floor", milp.GreaterEq, 0, milp.Term{Var: y, Coef: 1}, milp.Term{Var: z, Coef: -1})
	p.AddObjective(milp.Term{Var: y, Coef: -1})

	res, err := newSolver(t, Config{}).Solve(context.Background(), p, milp.Options{})
	require.NoError(t, err)
	assert.Equal(t, milp.StatusUnbounded, res.Status)

	q := milp.NewProblem("free")
	w := q.AddContinuous("w", 0, math.Inf(1))
	q.AddObjective(milp.Term{Var: w, Coef: -1})
	res, err = newSolver(t, Config{}).Solve(context.Background(), q, milp.Options{})
	require.NoError(t, err)
	assert.Equal(t, milp.StatusUnbounded, res.Status)
}

func TestSolveMalformed(t *testing.T) {
	p := milp.NewProblem("empty")
	res, err := newSolver(t, Config{}).Solve(context.Background(), p, milp.Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, milp.ErrMalformed))
	assert.Equal(t, milp.StatusError, res.Status)
}

func TestSolveUsesHint(t *testing.T) {
	p := coverProblem()
	p.Hint = []float64{1, 1, 5}
	res, err := newSolver(t, Config{}).Solve(context.Background(), p, milp.Options{})
	require.NoError(t, err)
	assert.Equal(t, milp.StatusOptimal, res.Status)
	assert.InDelta(t, 5, res.Objective, 1e-6)
}

func TestSolveIgnoresInfeasibleHint(t *testing.T) {
	p := coverProblem()
	p.Hint = []float64{1, 0, 2}
	res, err := newSolver(t, Config{}).Solve(context.Background(), p, milp.Options{})
	require.NoError(t, err)
	assert.Equal(t, milp.StatusOptimal, res.Status)
	assert.InDelta(t, 5, res.Objective, 1e-6)
}

func TestSolveTimeLimit(t *testing.T) {
	withSimplex(t, func(c []float64, a mat.Matrix, b []float64, tol float64, basic []int) (float64, []float64, error) {
		time.Sleep(200 * time.Millisecond)
		return lp.Simplex(c, a, b, tol, basic)
	})
	s := newSolver(t, Config{Engine: EngineSimplex})

	res, err := s.Solve(context.Background(), coverProblem(), milp.Options{TimeLimit: 20 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, milp.StatusError, res.Status)
	assert.Contains(t, res.Message, "time limit")

	p := coverProblem()
	p.Hint = []float64{1, 1, 5}
	res, err = s.Solve(context.Background(), p, milp.Options{TimeLimit: 20 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, milp.StatusFeasible, res.Status)
	assert.Equal(t, []float64{1, 1, 5}, res.Values)
	assert.Less(t, res.SolveTime, 150*time.Millisecond)
}

func TestSolveNodeLimit(t *testing.T) {
	p := coverProblem()
	p.Hint = []float64{1, 1, 5}
	res, err := newSolver(t, Config{Engine: EngineSimplex, MaxNodes: 1}).Solve(context.Background(), p, milp.Options{})
	require.NoError(t, err)
	assert.Equal(t, milp.StatusFeasible, res.Status)
	assert.Contains(t, res.Message, "node limit reached")

	q := integerProgram()
	q.Hint = []float64{0, 0}
	res, err = newSolver(t, Config{MaxNodes: 1}).Solve(context.Background(), q, milp.Options{})
	require.NoError(t, err)
	assert.Equal(t, milp.StatusFeasible, res.Status)
	assert.Contains(t, res.Message, "node limit reached, gap")
	assert.InDelta(t, -21, res.Bound, 1e-6)
	assert.Greater(t, res.Gap(), 0.0)
}

func TestSolveCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := newSolver(t, Config{}).Solve(ctx, integerProgram(), milp.Options{})
	require.NoError(t, err)
	assert.Equal(t, milp.StatusError, res.Status)
	assert.Contains(t, res.Message, "time limit reached before")
}

func TestSolveRelaxationFailures(t *testing.T) {
	withSimplex(t, func([]float64, mat.Matrix, []float64, float64, []int) (float64, []float64, error) {
		return 0, nil, errors.New("singular basis")
	})
	s := newSolver(t, Config{Engine: EngineSimplex})

	res, err := s.Solve(context.Background(), coverProblem(), milp.Options{})
	require.NoError(t, err)
	assert.Equal(t, milp.StatusError, res.Status)
	assert.Contains(t, res.Message, "singular basis")

	p := coverProblem()
	p.Hint = []float64{1, 1, 5}
	res, err = s.Solve(context.Background(), p, milp.Options{})
	require.NoError(t, err)
	assert.Equal(t, milp.StatusFeasible, res.Status)
}

func TestSolveRecoversSimplexPanic(t *testing.T) {
	withSimplex(t, func([]float64, mat.Matrix, []float64, float64, []int) (float64, []float64, error) {
		panic("dimension mismatch")
	})
	res, err := newSolver(t, Config{Engine: EngineSimplex}).Solve(context.Background(), coverProblem(), milp.Options{})
	require.NoError(t, err)
	assert.Equal(t, milp.StatusError, res.Status)
	assert.Contains(t, res.Message, "dimension mismatch")
}

func TestSolveDeterministic(t *testing.T) {
	s := newSolver(t, Config{})
	first, err := s.Solve(context.Background(), coverProblem(), milp.Options{})
	require.NoError(t, err)
	second, err := s.Solve(context.Background(), coverProblem(), milp.Options{})
	require.NoError(t, err)
	assert.Equal(t, first.Values, second.Values)
	assert.Equal(t, first.Nodes, second.Nodes)
}

func TestRegistry(t *testing.T) {
	assert.Contains(t, milp.SolverNames(), Name)
	s, err := milp.NewSolver(factory.ModuleConfig{Type: Name, Conf: map[string]any{"max_nodes": "50", "gap": 0.001}})
	require.NoError(t, err)
	b, ok := s.(*BranchAndBound)
	require.True(t, ok)
	assert.Equal(t, 50, b.cfg.MaxNodes)
	assert.Equal(t, 0.001, b.cfg.Gap)
	assert.Equal(t, EngineDual, b.cfg.Engine)

	s, err = milp.NewSolver(factory.ModuleConfig{Type: Name, Conf: map[string]any{"engine": "simplex"}})
	require.NoError(t, err)
	assert.Equal(t, EngineSimplex, s.(*BranchAndBound).cfg.Engine)

	_, err = milp.NewSolver(factory.ModuleConfig{Type: Name, Conf: map[string]any{"max_nodes": -1}})
	assert.Error(t, err)
	_, err = milp.NewSolver(factory.ModuleConfig{Type: Name, Conf: map[string]any{"engine": "interior"}})
	assert.Error(t, err)
}

// randomCover builds a weighted set cover with a continuous cost column
// linked to the selection, the shape of the pump schedule rows.
func randomCover(rng *rand.Rand, sets, items int) *milp.Problem {
	p := milp.NewProblem("random-cover")
	xs := make([]int, sets)
	for i := range xs {
		xs[i] = p.AddBinary(fmt.Sprintf("x%d", i))
	}
	total := p.AddContinuous("total", 0, math.Inf(1))
	link := []milp.Term{{Var: total, Coef: 1}}
	for _, x := range xs {
		link = append(link, milp.Term{Var: x, Coef: -float64(1 + rng.IntN(9))})
		p.AddObjective(milp.Term{Var: x, Coef: float64(rng.IntN(4))})
	}
	p.AddConstraint("link", milp.Equal, 0, link...)
	p.AddObjective(milp.Term{Var: total, Coef: 1})
	for k := 0; k < items; k++ {
		var terms []milp.Term
		for _, x := range xs {
			if rng.IntN(3) == 0 {
				terms = append(terms, milp.Term{Var: x, Coef: float64(1 + rng.IntN(5))})
			}
		}
		if len(terms) == 0 {
			terms = append(terms, milp.Term{Var: xs[0], Coef: 1})
		}
		p.AddConstraint(fmt.Sprintf("item%d", k), milp.GreaterEq, float64(1+rng.IntN(4)), terms...)
	}
	return p
}

func TestEnginesAgree(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	dual, simplex := newSolver(t, Config{}), newSolver(t, Config{Engine: EngineSimplex})
	for i := 0; i < 20; i++ {
		p := randomCover(rng, 8, 6)
		a, err := dual.Solve(context.Background(), p, milp.Options{})
		require.NoError(t, err)
		b, err := simplex.Solve(context.Background(), p, milp.Options{})
		require.NoError(t, err)
		require.Equal(t, b.Status, a.Status, "problem %d", i)
		if a.Status == milp.StatusOptimal {
			assert.InDelta(t, b.Objective, a.Objective, 1e-6, "problem %d", i)
			assert.NoError(t, p.CheckFeasible(a.Values, 1e-6), "problem %d", i)
		}
	}
}

func TestBuildRelaxationPresolve(t *testing.T) {
	p := coverProblem()
	lo := []float64{0, 0, 0}
	hi := []float64{0, 1, math.Inf(1)}
	_, err := buildRelaxation(p, lo, hi, 1e-6)
	assert.ErrorIs(t, err, errNodeInfeasible)

	hi = []float64{1, 1, math.Inf(1)}
	lo = []float64{1, 1, 0}
	rel, err := buildRelaxation(p, lo, hi, 1e-6)
	require.NoError(t, err)
	out, err := rel.solve(1e-7)
	require.NoError(t, err)
	assert.InDelta(t, 5, out.obj, 1e-9)
	assert.InDelta(t, 5, out.x[2], 1e-9)
}
