package solver

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/kilianp07/agriwater/core/milp"
)

// lpSimplex points to the LP routine. Tests override it to simulate
// numerical failures.
var lpSimplex = lp.Simplex

var (
	errNodeInfeasible = errors.New("node infeasible")
	errNodeUnbounded  = errors.New("node unbounded")
)

type row struct {
	cols  []int
	coefs []float64
	sense milp.Sense
	rhs   float64
}

// relaxation is the LP of one node in standard form: min c'x s.t. Ax = b,
// x >= 0. Column j of the structural block is x[v]-lo[v] for the variable v
// with col[v] == j; fixed and unused variables sit at their lower bound.
type relaxation struct {
	lo     []float64
	col    []int
	c      []float64
	a      *mat.Dense
	b      []float64
	offset float64
	// simplex is captured at build time so the solving goroutine never
	// reads lpSimplex.
	simplex func([]float64, mat.Matrix, []float64, float64, []int) (float64, []float64, error)
}

type relaxOut struct {
	obj float64
	x   []float64
	// d and basis are only set by the dual engine.
	d     []float64
	basis *lpBasis
}

// buildRelaxation converts p under the node bounds lo/hi. It detects
// infeasibility that is visible from activity bounds alone and drops rows
// that cannot bind.
func buildRelaxation(p *milp.Problem, lo, hi []float64, eps float64) (*relaxation, error) {
	nv := len(p.Vars)
	free := make([]bool, nv)
	width := make([]float64, nv)
	for v := range p.Vars {
		if hi[v] < lo[v]-eps {
			return nil, errNodeInfeasible
		}
		width[v] = hi[v] - lo[v]
		free[v] = width[v] > eps
	}

	var rows []row
	used := make([]bool, nv)
	acc := make(map[int]float64)
	for _, c := range p.Constraints {
		clear(acc)
		rhs := c.RHS
		for _, t := range c.Terms {
			rhs -= t.Coef * lo[t.Var]
			if free[t.Var] {
				acc[t.Var] += t.Coef
			}
		}
		vars := make([]int, 0, len(acc))
		for v, coef := range acc {
			if coef != 0 {
				vars = append(vars, v)
			}
		}
		sort.Ints(vars)

		minAct, maxAct := 0.0, 0.0
		for _, v := range vars {
			a := acc[v]
			span := a * width[v]
			if math.IsInf(width[v], 1) {
				span = math.Copysign(math.Inf(1), a)
			}
			if span < 0 {
				minAct += span
			} else {
				maxAct += span
			}
		}
		tol := eps * math.Max(1, math.Abs(rhs))
		needLE := c.Sense == milp.LessEq || c.Sense == milp.Equal
		needGE := c.Sense == milp.GreaterEq || c.Sense == milp.Equal
		if needLE && minAct > rhs+tol || needGE && maxAct < rhs-tol {
			return nil, errNodeInfeasible
		}
		redundantLE := !needLE || maxAct <= rhs
		redundantGE := !needGE || minAct >= rhs
		if redundantLE && redundantGE {
			continue
		}
		r := row{sense: c.Sense, rhs: rhs}
		for _, v := range vars {
			r.cols = append(r.cols, v)
			r.coefs = append(r.coefs, acc[v])
			used[v] = true
		}
		rows = append(rows, r)
	}

	objCoef := make([]float64, nv)
	offset := 0.0
	for _, t := range p.Objective {
		objCoef[t.Var] += t.Coef
		offset += t.Coef * lo[t.Var]
	}

	col := make([]int, nv)
	ncols := 0
	for v := range p.Vars {
		col[v] = -1
		if !free[v] {
			continue
		}
		bounded := !math.IsInf(width[v], 1)
		if !used[v] && !bounded {
			if objCoef[v] < 0 {
				return nil, errNodeUnbounded
			}
			continue
		}
		if !used[v] && objCoef[v] >= 0 {
			// Nothing pulls the variable away from its lower bound.
			continue
		}
		col[v] = ncols
		ncols++
		if bounded {
			rows = append(rows, row{cols: []int{v}, coefs: []float64{1}, sense: milp.LessEq, rhs: width[v]})
		}
	}

	rel := &relaxation{lo: lo, col: col, offset: offset, simplex: lpSimplex}
	if len(rows) == 0 {
		return rel, nil
	}

	slacks := 0
	for _, r := range rows {
		if r.sense != milp.Equal {
			slacks++
		}
	}
	m, n := len(rows), ncols+slacks
	if m > n {
		return nil, fmt.Errorf("relaxation has %d rows for %d columns", m, n)
	}
	a := mat.NewDense(m, n, nil)
	b := make([]float64, m)
	next := ncols
	for i, r := range rows {
		sign := 1.0
		if r.rhs < 0 {
			sign = -1
		}
		for k, v := range r.cols {
			a.Set(i, col[v], sign*r.coefs[k])
		}
		switch r.sense {
		case milp.LessEq:
			a.Set(i, next, sign)
			next++
		case milp.GreaterEq:
			a.Set(i, next, -sign)
			next++
		}
		b[i] = sign * r.rhs
	}
	c := make([]float64, n)
	for v, j := range col {
		if j >= 0 {
			c[j] = objCoef[v]
		}
	}
	rel.a, rel.b, rel.c = a, b, c
	return rel, nil
}

// solve runs the simplex on the relaxation and maps the result back to the
// original variable space.
func (r *relaxation) solve(tol float64) (out relaxOut, err error) {
	x := make([]float64, len(r.lo))
	copy(x, r.lo)
	if r.a == nil {
		return relaxOut{obj: r.offset, x: x}, nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("simplex panic: %v", rec)
		}
	}()
	f, sol, err := r.simplex(r.c, r.a, r.b, tol, nil)
	switch {
	case errors.Is(err, lp.ErrInfeasible):
		return relaxOut{}, errNodeInfeasible
	case errors.Is(err, lp.ErrUnbounded):
		return relaxOut{}, errNodeUnbounded
	case err != nil:
		return relaxOut{}, err
	}
	for v, j := range r.col {
		if j >= 0 {
			x[v] = r.lo[v] + math.Max(0, sol[j])
		}
	}
	return relaxOut{obj: f + r.offset, x: x}, nil
}
