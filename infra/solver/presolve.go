package solver

import (
	"math"
	"sort"

	"github.com/kilianp07/agriwater/core/milp"
)

// presolvePasses bounds the number of propagation sweeps over the rows.
const presolvePasses = 10

// aggregate merges repeated variables of a row and drops zero coefficients.
func aggregate(c milp.Constraint) row {
	acc := make(map[int]float64, len(c.Terms))
	for _, t := range c.Terms {
		acc[t.Var] += t.Coef
	}
	r := row{sense: c.Sense, rhs: c.RHS}
	for v, a := range acc {
		if a != 0 {
			r.cols = append(r.cols, v)
		}
	}
	sort.Ints(r.cols)
	r.coefs = make([]float64, len(r.cols))
	for k, v := range r.cols {
		r.coefs[k] = acc[v]
	}
	return r
}

// activity holds the finite part of a row's minimum and maximum activity
// over the box, plus the number of terms that make each side infinite.
type activity struct {
	min, max       float64
	minInf, maxInf int
	cmin, cmax     []float64
}

func rowActivity(r row, lo, hi []float64) activity {
	act := activity{cmin: make([]float64, len(r.cols)), cmax: make([]float64, len(r.cols))}
	for k, v := range r.cols {
		a := r.coefs[k]
		atLo, atHi := a*lo[v], a*hi[v]
		if a < 0 {
			atLo, atHi = atHi, atLo
		}
		act.cmin[k], act.cmax[k] = atLo, atHi
		if math.IsInf(atLo, -1) {
			act.minInf++
		} else {
			act.min += atLo
		}
		if math.IsInf(atHi, 1) {
			act.maxInf++
		} else {
			act.max += atHi
		}
	}
	return act
}

func needs(s milp.Sense) (le, ge bool) {
	return s == milp.LessEq || s == milp.Equal, s == milp.GreaterEq || s == milp.Equal
}

// presolve tightens lo/hi in place by propagating row activity bounds and
// rounding integer bounds. It returns false when a row cannot be satisfied
// inside the box. Only points that violate some row are cut away.
func presolve(p *milp.Problem, rows []row, lo, hi []float64, intTol float64) bool {
	for pass := 0; pass < presolvePasses; pass++ {
		changed := false
		for _, r := range rows {
			act := rowActivity(r, lo, hi)
			tol := 1e-9 * math.Max(1, math.Abs(r.rhs))
			le, ge := needs(r.sense)
			if le && act.minInf == 0 && act.min > r.rhs+tol {
				return false
			}
			if ge && act.maxInf == 0 && act.max < r.rhs-tol {
				return false
			}
			for k, v := range r.cols {
				a := r.coefs[k]
				if math.Abs(a) < 1e-9 {
					continue
				}
				integer := p.Vars[v].Kind.IsInteger()
				if le {
					if rest, ok := others(act.min, act.minInf, act.cmin[k], -1); ok {
						bound := (r.rhs - rest) / a
						if a > 0 {
							changed = lowerHi(hi, v, bound, integer, intTol) || changed
						} else {
							changed = raiseLo(lo, v, bound, integer, intTol) || changed
						}
					}
				}
				if ge {
					if rest, ok := others(act.max, act.maxInf, act.cmax[k], 1); ok {
						bound := (r.rhs - rest) / a
						if a > 0 {
							changed = raiseLo(lo, v, bound, integer, intTol) || changed
						} else {
							changed = lowerHi(hi, v, bound, integer, intTol) || changed
						}
					}
				}
				if hi[v] < lo[v]-intTol {
					return false
				}
				if hi[v] < lo[v] {
					hi[v] = lo[v]
				}
			}
		}
		if !changed {
			break
		}
	}
	return true
}

// others returns the activity of a row without term k, or false when it is
// still infinite.
func others(total float64, infs int, own float64, sign float64) (float64, bool) {
	if math.IsInf(own, int(sign)) {
		return total, infs == 1
	}
	return total - own, infs == 0
}

func lowerHi(hi []float64, v int, bound float64, integer bool, intTol float64) bool {
	if integer {
		bound = math.Floor(bound + intTol)
	} else {
		bound += 1e-9 * math.Max(1, math.Abs(bound))
	}
	if bound < hi[v]-1e-7*math.Max(1, math.Abs(bound)) {
		hi[v] = bound
		return true
	}
	return false
}

func raiseLo(lo []float64, v int, bound float64, integer bool, intTol float64) bool {
	if integer {
		bound = math.Ceil(bound - intTol)
	} else {
		bound -= 1e-9 * math.Max(1, math.Abs(bound))
	}
	if bound > lo[v]+1e-7*math.Max(1, math.Abs(bound)) {
		lo[v] = bound
		return true
	}
	return false
}

// binding returns the rows that can still be violated inside the box.
func binding(rows []row, lo, hi []float64) []row {
	var out []row
	for _, r := range rows {
		act := rowActivity(r, lo, hi)
		le, ge := needs(r.sense)
		tol := 1e-9 * math.Max(1, math.Abs(r.rhs))
		redundantLE := !le || act.maxInf == 0 && act.max <= r.rhs+tol
		redundantGE := !ge || act.minInf == 0 && act.min >= r.rhs-tol
		if redundantLE && redundantGE {
			continue
		}
		out = append(out, r)
	}
	return out
}
