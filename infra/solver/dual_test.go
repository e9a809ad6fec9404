package solver

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/agriwater/core/logger"
	"github.com/kilianp07/agriwater/core/milp"
)

// twoRowLP is min x+y st x+2y >= 4, 3x+y >= 6 with optimum (1.6, 1.2).
func twoRowLP() *dualLP {
	rows := []row{
		{cols: []int{0, 1}, coefs: []float64{1, 2}, sense: milp.GreaterEq, rhs: 4},
		{cols: []int{0, 1}, coefs: []float64{3, 1}, sense: milp.GreaterEq, rhs: 6},
	}
	return newDualLP(2, rows, []float64{1, 1}, 1e-9)
}

func TestDualLPSolve(t *testing.T) {
	lp := twoRowLP()
	out, err := lp.solve(context.Background(), []float64{0, 0}, []float64{10, 10}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 2.8, out.obj, 1e-9)
	assert.InDelta(t, 1.6, out.x[0], 1e-9)
	assert.InDelta(t, 1.2, out.x[1], 1e-9)
	require.NotNil(t, out.basis)

	// Tightening x from the optimal basis moves the optimum to (1, 3).
	warm, err := lp.solve(context.Background(), []float64{0, 0}, []float64{1, 10}, out.basis)
	require.NoError(t, err)
	cold, err := lp.solve(context.Background(), []float64{0, 0}, []float64{1, 10}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 4, warm.obj, 1e-9)
	assert.InDelta(t, cold.obj, warm.obj, 1e-9)
	assert.InDelta(t, 3, warm.x[1], 1e-9)
	// The warm basis is copied, not reused.
	assert.NotSame(t, out.basis, warm.basis)
}

func TestDualLPInfeasible(t *testing.T) {
	_, err := twoRowLP().solve(context.Background(), []float64{0, 0}, []float64{1, 1}, nil)
	assert.ErrorIs(t, err, errNodeInfeasible)
}

func TestDualLPEquality(t *testing.T) {
	// min x-y st x+y = 3 over [0,2]².
	rows := []row{{cols: []int{0, 1}, coefs: []float64{1, 1}, sense: milp.Equal, rhs: 3}}
	lp := newDualLP(2, rows, []float64{1, -1}, 1e-9)
	out, err := lp.solve(context.Background(), []float64{0, 0}, []float64{2, 2}, nil)
	require.NoError(t, err)
	assert.InDelta(t, -1, out.obj, 1e-9)
	assert.InDelta(t, 1, out.x[0], 1e-9)
	assert.InDelta(t, 2, out.x[1], 1e-9)
}

func TestDualLPWithoutRows(t *testing.T) {
	lp := newDualLP(2, nil, []float64{2, -1}, 1e-9)
	out, err := lp.solve(context.Background(), []float64{1, 0}, []float64{3, 4}, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 4}, out.x)
	assert.InDelta(t, -2, out.obj, 1e-12)
}

func TestDualLPHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := twoRowLP().solve(ctx, []float64{0, 0}, []float64{10, 10}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDualLPIterationLimit(t *testing.T) {
	lp := twoRowLP()
	lp.maxIter = 0
	_, err := lp.solve(context.Background(), []float64{0, 0}, []float64{10, 10}, nil)
	assert.ErrorIs(t, err, errIterationLimit)
}

func TestDualLPBlandRule(t *testing.T) {
	// min x+y st x+y >= 2, x >= 1, y >= 1 has three rows tight at (1, 1).
	degenerate := func() *dualLP {
		rows := []row{
			{cols: []int{0, 1}, coefs: []float64{1, 1}, sense: milp.GreaterEq, rhs: 2},
			{cols: []int{0}, coefs: []float64{1}, sense: milp.GreaterEq, rhs: 1},
			{cols: []int{1}, coefs: []float64{1}, sense: milp.GreaterEq, rhs: 1},
		}
		return newDualLP(2, rows, []float64{1, 1}, 1e-9)
	}
	tests := []struct {
		name string
		lp   func() *dualLP
		obj  float64
	}{
		{"two rows", twoRowLP, 2.8},
		{"degenerate vertex", degenerate, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lp := tt.lp()
			lp.stall = 0
			out, err := lp.solve(context.Background(), []float64{0, 0}, []float64{10, 10}, nil)
			require.NoError(t, err)
			ref, err := tt.lp().solve(context.Background(), []float64{0, 0}, []float64{10, 10}, nil)
			require.NoError(t, err)
			assert.InDelta(t, tt.obj, out.obj, 1e-9)
			assert.InDelta(t, ref.obj, out.obj, 1e-9)
		})
	}
}

func TestDualEngineFallsBackToSimplex(t *testing.T) {
	cfg := Config{}
	cfg.SetDefaults()
	s := &search{p: integerProgram(), cfg: cfg, log: logger.NopLogger{}, incObj: math.Inf(1)}
	n, ok := s.root()
	require.True(t, ok)
	eng, isDual := s.eng.(*dualEngine)
	require.True(t, isDual)
	eng.lp.maxIter = 0

	out, err := eng.relax(context.Background(), n)
	require.NoError(t, err)
	assert.InDelta(t, -21, out.obj, 1e-6)
	assert.Nil(t, out.basis)
}
