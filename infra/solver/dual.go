package solver

import (
	"context"
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/kilianp07/agriwater/core/milp"
)

const (
	// bigBound replaces infinite upper bounds in the dual LP. A node value
	// that gets within half of it is reported as unbounded.
	bigBound = 1e7
	// refactorEvery is the number of pivots between basis refactorizations.
	refactorEvery = 50
	// stallLimit is the number of consecutive degenerate pivots after which
	// a solve switches to Bland's rule, which cannot cycle.
	stallLimit = 100
	dualTol    = 1e-9
	pivotTol   = 1e-9
)

var (
	errIterationLimit = errors.New("dual simplex iteration limit reached")
	errSingularBasis  = errors.New("dual simplex basis is singular")
	errDualInfeasible = errors.New("starting basis is not dual feasible")
)

type entry struct {
	row int
	val float64
}

// dualLP is min c'x s.t. Ax + s = b with one logical s per row:
// s >= 0 for <=, s <= 0 for >= and s = 0 for =. Columns n..n+m-1 are the
// logicals. Structural bounds come with every solve.
type dualLP struct {
	n, m     int
	cols     [][]entry
	b        []float64
	c        []float64
	loS, hiS []float64
	ptol     float64
	maxIter  int
	stall    int
}

// lpBasis is a simplex basis: head[r] is the column basic in row r and
// atUpper marks nonbasic columns resting on their upper bound.
type lpBasis struct {
	head    []int
	atUpper []bool
}

func (b *lpBasis) clone() *lpBasis {
	if b == nil {
		return nil
	}
	return &lpBasis{head: append([]int(nil), b.head...), atUpper: append([]bool(nil), b.atUpper...)}
}

type dualOut struct {
	obj   float64
	x     []float64
	d     []float64
	basis *lpBasis
}

func newDualLP(nvars int, rows []row, cost []float64, ptol float64) *dualLP {
	lp := &dualLP{n: nvars, m: len(rows), cols: make([][]entry, nvars), ptol: ptol}
	lp.b = make([]float64, lp.m)
	lp.loS = make([]float64, lp.m)
	lp.hiS = make([]float64, lp.m)
	for i, r := range rows {
		for k, v := range r.cols {
			lp.cols[v] = append(lp.cols[v], entry{row: i, val: r.coefs[k]})
		}
		lp.b[i] = r.rhs
		switch r.sense {
		case milp.LessEq:
			lp.hiS[i] = math.Inf(1)
		case milp.GreaterEq:
			lp.loS[i] = math.Inf(-1)
		}
	}
	lp.c = make([]float64, nvars+lp.m)
	copy(lp.c, cost)
	lp.maxIter = 20*(nvars+lp.m) + 1000
	lp.stall = stallLimit
	return lp
}

func (lp *dualLP) column(j int) []entry {
	if j < lp.n {
		return lp.cols[j]
	}
	return []entry{{row: j - lp.n, val: 1}}
}

// dot returns v'a_j for column j.
func (lp *dualLP) dot(v []float64, j int) float64 {
	if j >= lp.n {
		return v[j-lp.n]
	}
	var s float64
	for _, e := range lp.cols[j] {
		s += v[e.row] * e.val
	}
	return s
}

func (lp *dualLP) slackBasis() *lpBasis {
	b := &lpBasis{head: make([]int, lp.m), atUpper: make([]bool, lp.n+lp.m)}
	for r := range b.head {
		b.head[r] = lp.n + r
	}
	return b
}

// solve runs the dual simplex under the structural bounds lo/hi, which must
// be finite. A warm basis that cannot be used is replaced by the slack
// basis. The context is checked before every pivot.
func (lp *dualLP) solve(ctx context.Context, lo, hi []float64, warm *lpBasis) (dualOut, error) {
	if warm != nil && len(warm.head) == lp.m && len(warm.atUpper) == lp.n+lp.m {
		out, err := lp.run(ctx, lo, hi, warm.clone())
		if !errors.Is(err, errDualInfeasible) && !errors.Is(err, errSingularBasis) {
			return out, err
		}
	}
	return lp.run(ctx, lo, hi, lp.slackBasis())
}

type dualState struct {
	lp     *dualLP
	lo, hi []float64
	bs     *lpBasis
	pos    []int
	binv   *mat.Dense
	xB     []float64
	d      []float64
	alpha  []float64
	colq   []float64
	// bland selects the smallest eligible index in both ratio tests.
	bland bool
}

func (lp *dualLP) run(ctx context.Context, lo, hi []float64, bs *lpBasis) (dualOut, error) {
	if lp.m == 0 {
		return lp.boxOnly(lo, hi), nil
	}
	st := &dualState{
		lp:    lp,
		lo:    append(append(make([]float64, 0, lp.n+lp.m), lo...), lp.loS...),
		hi:    append(append(make([]float64, 0, lp.n+lp.m), hi...), lp.hiS...),
		bs:    bs,
		pos:   make([]int, lp.n+lp.m),
		xB:    make([]float64, lp.m),
		d:     make([]float64, lp.n+lp.m),
		alpha: make([]float64, lp.n+lp.m),
		colq:  make([]float64, lp.m),
	}
	st.index()
	if !st.refactor() {
		return dualOut{}, errSingularBasis
	}
	st.pricing()
	for j := range st.d {
		if st.pos[j] >= 0 || st.lo[j] == st.hi[j] {
			continue
		}
		switch {
		case st.d[j] < -dualTol && !bs.atUpper[j]:
			bs.atUpper[j] = true
		case st.d[j] > dualTol && bs.atUpper[j]:
			bs.atUpper[j] = false
		}
		if math.IsInf(st.value(j), 0) {
			return dualOut{}, errDualInfeasible
		}
	}
	st.primal()

	degenerate := 0
	for it := 1; ; it++ {
		if err := ctx.Err(); err != nil {
			return dualOut{}, err
		}
		if it > lp.maxIter {
			return dualOut{}, errIterationLimit
		}
		if it%refactorEvery == 0 && st.refactor() {
			st.primal()
			st.pricing()
		}
		r := st.leaving()
		if r < 0 {
			break
		}
		q := st.entering(r)
		if q < 0 {
			return dualOut{}, errNodeInfeasible
		}
		if math.Abs(st.d[q]) <= dualTol {
			degenerate++
		} else {
			degenerate = 0
		}
		if degenerate >= lp.stall {
			st.bland = true
		}
		st.pivot(r, q)
	}
	return st.output(), nil
}

// boxOnly solves a program without rows: every column sits at the bound its
// cost prefers.
func (lp *dualLP) boxOnly(lo, hi []float64) dualOut {
	out := dualOut{x: make([]float64, lp.n), d: make([]float64, lp.n), basis: lp.slackBasis()}
	for j := 0; j < lp.n; j++ {
		out.x[j], out.d[j] = lo[j], lp.c[j]
		if lp.c[j] < 0 {
			out.x[j] = hi[j]
			out.basis.atUpper[j] = true
		}
		out.obj += lp.c[j] * out.x[j]
	}
	return out
}

func (st *dualState) index() {
	for j := range st.pos {
		st.pos[j] = -1
	}
	for r, j := range st.bs.head {
		st.pos[j] = r
	}
}

func (st *dualState) value(j int) float64 {
	if st.bs.atUpper[j] && st.lo[j] != st.hi[j] {
		return st.hi[j]
	}
	return st.lo[j]
}

// refactor rebuilds the explicit basis inverse. It keeps the previous
// inverse when the basis matrix is singular.
func (st *dualState) refactor() bool {
	m := st.lp.m
	basis := mat.NewDense(m, m, nil)
	for r, j := range st.bs.head {
		for _, e := range st.lp.column(j) {
			basis.Set(e.row, r, e.val)
		}
	}
	var inv mat.Dense
	if err := inv.Inverse(basis); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) || float64(cond) > 1e12 {
			return false
		}
	}
	st.binv = &inv
	return true
}

// primal recomputes the basic values from the nonbasic ones.
func (st *dualState) primal() {
	rhs := mat.NewVecDense(st.lp.m, append([]float64(nil), st.lp.b...))
	for j, p := range st.pos {
		if p >= 0 {
			continue
		}
		if v := st.value(j); v != 0 {
			for _, e := range st.lp.column(j) {
				rhs.SetVec(e.row, rhs.AtVec(e.row)-e.val*v)
			}
		}
	}
	xB := mat.NewVecDense(st.lp.m, st.xB)
	xB.MulVec(st.binv, rhs)
}

// pricing recomputes the reduced costs of the nonbasic columns.
func (st *dualState) pricing() {
	cB := mat.NewVecDense(st.lp.m, nil)
	for r, j := range st.bs.head {
		cB.SetVec(r, st.lp.c[j])
	}
	var y mat.VecDense
	y.MulVec(st.binv.T(), cB)
	for j := range st.d {
		st.d[j] = 0
		if st.pos[j] >= 0 {
			continue
		}
		st.d[j] = st.lp.c[j] - st.lp.dot(y.RawVector().Data, j)
	}
}

// leaving picks the basic row with the largest bound violation, or -1 when
// the basis is primal feasible. Under Bland's rule it picks the violated row
// whose basic column has the smallest index.
func (st *dualState) leaving() int {
	best, r := 0.0, -1
	for k, j := range st.bs.head {
		var v float64
		switch {
		case st.xB[k] < st.lo[j]-st.lp.ptol*math.Max(1, math.Abs(st.lo[j])):
			v = st.lo[j] - st.xB[k]
		case st.xB[k] > st.hi[j]+st.lp.ptol*math.Max(1, math.Abs(st.hi[j])):
			v = st.xB[k] - st.hi[j]
		default:
			continue
		}
		if st.bland {
			if r < 0 || j < st.bs.head[r] {
				r = k
			}
			continue
		}
		if v > best {
			best, r = v, k
		}
	}
	return r
}

// entering runs a two-pass Harris ratio test on row r of the tableau. It
// returns -1 when no column can restore the row, which proves the node
// infeasible.
func (st *dualState) entering(r int) int {
	jl := st.bs.head[r]
	below := st.xB[r] < st.lo[jl]
	rho := st.binv.RawRowView(r)

	type cand struct {
		j     int
		alpha float64
		dj    float64
	}
	var cands []cand
	for j := range st.alpha {
		st.alpha[j] = 0
		if st.pos[j] >= 0 {
			continue
		}
		a := st.lp.dot(rho, j)
		st.alpha[j] = a
		if st.lo[j] == st.hi[j] || math.Abs(a) < pivotTol {
			continue
		}
		up := st.bs.atUpper[j]
		ok := (!up && a < 0) || (up && a > 0)
		if !below {
			ok = (!up && a > 0) || (up && a < 0)
		}
		if !ok {
			continue
		}
		dj := st.d[j]
		if up {
			dj = -dj
		}
		cands = append(cands, cand{j: j, alpha: a, dj: math.Max(dj, 0)})
	}
	if len(cands) == 0 {
		return -1
	}
	if st.bland {
		ratio := math.Inf(1)
		for _, c := range cands {
			ratio = math.Min(ratio, c.dj/math.Abs(c.alpha))
		}
		q := -1
		for _, c := range cands {
			if c.dj/math.Abs(c.alpha) <= ratio+1e-12 && (q < 0 || c.j < q) {
				q = c.j
			}
		}
		return q
	}
	limit := math.Inf(1)
	for _, c := range cands {
		limit = math.Min(limit, (c.dj+dualTol)/math.Abs(c.alpha))
	}
	q, best := -1, 0.0
	for _, c := range cands {
		if c.dj/math.Abs(c.alpha) <= limit && math.Abs(c.alpha) > best {
			q, best = c.j, math.Abs(c.alpha)
		}
	}
	return q
}

func (st *dualState) pivot(r, q int) {
	m := st.lp.m
	jl := st.bs.head[r]
	below := st.xB[r] < st.lo[jl]

	for k := range st.colq {
		st.colq[k] = 0
	}
	for _, e := range st.lp.column(q) {
		for k := 0; k < m; k++ {
			st.colq[k] += st.binv.At(k, e.row) * e.val
		}
	}
	arq := st.colq[r]

	thetaD := st.d[q] / arq
	for j, a := range st.alpha {
		if a != 0 && j != q {
			st.d[j] -= thetaD * a
		}
	}
	st.d[q] = 0
	st.d[jl] = -thetaD

	bound := st.hi[jl]
	if below {
		bound = st.lo[jl]
	}
	thetaP := (st.xB[r] - bound) / arq
	xq := st.value(q)
	floats.AddScaled(st.xB, -thetaP, st.colq)
	st.xB[r] = xq + thetaP

	st.bs.atUpper[jl] = !below
	st.bs.atUpper[q] = false
	st.pos[jl], st.pos[q] = -1, r
	st.bs.head[r] = q

	pr := st.binv.RawRowView(r)
	floats.Scale(1/arq, pr)
	for k := 0; k < m; k++ {
		if k == r || st.colq[k] == 0 {
			continue
		}
		floats.AddScaled(st.binv.RawRowView(k), -st.colq[k], pr)
	}
}

func (st *dualState) output() dualOut {
	n := st.lp.n
	out := dualOut{x: make([]float64, n), d: make([]float64, n), basis: st.bs.clone()}
	for j := 0; j < n; j++ {
		if p := st.pos[j]; p >= 0 {
			out.x[j] = st.xB[p]
		} else {
			out.x[j] = st.value(j)
			out.d[j] = st.d[j]
		}
		out.obj += st.lp.c[j] * out.x[j]
	}
	return out
}
