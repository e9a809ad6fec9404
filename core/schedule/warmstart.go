package schedule

import (
	"math"
	"sort"
)

// exhaustiveLimit is the largest fleet searched subset by subset.
const exhaustiveLimit = 12

// WarmStart computes a heuristic schedule and stores it as the problem hint.
// Hours are planned in order. Each hour takes the cheapest covering set the
// policy still allows, counting start costs, and keeps the previous hour's
// set on ties. A pump is never started beyond its budget and a pump that
// could not start again in the next hour keeps running. When that pass gets
// stuck a second pass never stops a running pump, which uses at most one
// start per pump. It returns false when neither pass covers every hour.
func WarmStart(f *Formulation) bool {
	for _, sticky := range []bool{false, true} {
		p := newPlanner(f, sticky)
		if p.plan() {
			f.setHint(p.active)
			return true
		}
	}
	return false
}

// planner builds one greedy schedule and tracks the starts it uses.
type planner struct {
	f      *Formulation
	sticky bool
	budget int
	active [][]bool
	// starts[i][t] is the number of counted starts of pump i before hour t.
	starts    [][]int
	lastStart []int
	// window[t] is the first hour of the earliest budget window holding t.
	window []int
}

func newPlanner(f *Formulation, sticky bool) *planner {
	n := len(f.Fleet)
	p := &planner{
		f:         f,
		sticky:    sticky,
		budget:    f.Policy.StartBudget(),
		active:    make([][]bool, f.Horizon),
		starts:    make([][]int, n),
		lastStart: make([]int, n),
		window:    make([]int, f.Horizon),
	}
	for i := range p.starts {
		p.starts[i] = make([]int, f.Horizon+1)
		p.lastStart[i] = -1
	}
	ws := f.Policy.budgetWindows(f.Horizon)
	for k := len(ws) - 1; k >= 0; k-- {
		for t := ws[k][0]; t < ws[k][1]; t++ {
			p.window[t] = ws[k][0]
		}
	}
	return p
}

func (p *planner) plan() bool {
	f := p.f
	prev := make([]bool, len(f.Fleet))
	for i, pump := range f.Fleet {
		prev[i] = f.Policy.InitialState[pump.ID]
	}
	for t := 0; t < f.Horizon; t++ {
		set, ok := p.choose(prev, t)
		if !ok {
			return false
		}
		p.active[t] = set
		for i := range set {
			p.starts[i][t+1] = p.starts[i][t]
			if f.started(p.active, i, t) {
				p.starts[i][t+1]++
				p.lastStart[i] = t
			}
		}
		prev = set
	}
	return true
}

// canStart reports whether pump i may be switched on at hour t.
func (p *planner) canStart(i, t int) bool {
	if t == 0 {
		if _, known := p.f.Policy.InitialState[p.f.Fleet[i].ID]; !known {
			return true
		}
	}
	return p.starts[i][t]-p.starts[i][p.window[t]] < p.budget
}

// canStop reports whether pump i, running in hour t-1, may be off at hour t.
func (p *planner) canStop(i, t int) bool {
	if p.sticky {
		return false
	}
	if l := p.f.Policy.MinRuntimeHours; l > 1 && p.lastStart[i] >= 0 && t < p.lastStart[i]+l {
		return false
	}
	if t+1 < p.f.Horizon && p.starts[i][t]-p.starts[i][p.window[t+1]] >= p.budget {
		return false
	}
	return true
}

func (p *planner) choose(prev []bool, t int) ([]bool, bool) {
	f := p.f
	n := len(f.Fleet)
	mayStart := make([]bool, n)
	mayStop := make([]bool, n)
	for i := range f.Fleet {
		if prev[i] {
			mayStop[i] = p.canStop(i, t)
		} else {
			mayStart[i] = p.canStart(i, t)
		}
	}
	allowed := func(set []bool) bool {
		count := 0
		for i, on := range set {
			if on {
				count++
			}
			if on && !prev[i] && !mayStart[i] || !on && prev[i] && !mayStop[i] {
				return false
			}
		}
		if k := f.Policy.MaxSimultaneousPumps; k > 0 && count > k {
			return false
		}
		return f.covers(set, t)
	}

	var best []bool
	bestCost := math.Inf(1)
	if allowed(prev) {
		best, bestCost = append([]bool(nil), prev...), f.hourCost(prev, t)
	}
	consider := func(set []bool) {
		if !allowed(set) {
			return
		}
		if c := f.hourCost(set, t) + f.startCost(prev, set, t); c < bestCost {
			best, bestCost = append([]bool(nil), set...), c
		}
	}
	if n > exhaustiveLimit {
		consider(p.greedyCover(prev, t, mayStart, mayStop))
		return best, best != nil
	}
	set := make([]bool, n)
	for mask := 0; mask < 1<<n; mask++ {
		for i := range set {
			set[i] = mask&(1<<i) != 0
		}
		consider(set)
	}
	return best, best != nil
}

// greedyCover keeps the pumps that may not stop, then adds pumps that may
// run in order of power per unit of flow until demand is met.
func (p *planner) greedyCover(prev []bool, t int, mayStart, mayStop []bool) []bool {
	f := p.f
	set := make([]bool, len(f.Fleet))
	for i := range set {
		set[i] = prev[i] && !mayStop[i]
	}
	for _, i := range f.efficiencyOrder() {
		if f.covers(set, t) {
			break
		}
		if prev[i] || mayStart[i] {
			set[i] = true
		}
	}
	return set
}

func (f *Formulation) setHint(active [][]bool) {
	x := make([]float64, len(f.Problem.Vars))
	for t := 0; t < f.Horizon; t++ {
		var power float64
		for i, pump := range f.Fleet {
			if !active[t][i] {
				continue
			}
			x[f.Active[i][t]] = 1
			power += pump.PowerDraw
			if f.started(active, i, t) {
				x[f.Startup[i][t]] = 1
			}
		}
		x[f.Power[t]] = power
		x[f.Penalty[t]] = f.Tariff.Penalty(power)
	}
	f.Problem.Hint = x
}

func (f *Formulation) started(active [][]bool, i, t int) bool {
	if !active[t][i] {
		return false
	}
	if t == 0 {
		on, known := f.Policy.InitialState[f.Fleet[i].ID]
		return known && !on
	}
	return !active[t-1][i]
}

func (f *Formulation) covers(set []bool, t int) bool {
	var c float64
	for i, on := range set {
		if on {
			c += f.Fleet[i].Capacity
		}
	}
	return c >= f.Demand[t]
}

func (f *Formulation) hourCost(set []bool, t int) float64 {
	var power float64
	for i, on := range set {
		if on {
			power += f.Fleet[i].PowerDraw
		}
	}
	rate, _ := f.Tariff.Rate(f.HourOfDay(t))
	return power*rate + f.Tariff.Penalty(power)
}

// startCost is the cost of the pumps in next that are off in prev. At hour 0
// only pumps with a known initial state are charged.
func (f *Formulation) startCost(prev, next []bool, t int) float64 {
	var c float64
	for i, on := range next {
		if !on || prev[i] {
			continue
		}
		if t == 0 {
			if _, known := f.Policy.InitialState[f.Fleet[i].ID]; !known {
				continue
			}
		}
		c += f.Fleet[i].StartCost(f.Tariff)
	}
	return c
}

// efficiencyOrder lists pumps by power per unit of flow.
func (f *Formulation) efficiencyOrder() []int {
	order := make([]int, len(f.Fleet))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		pa, pb := f.Fleet[order[a]], f.Fleet[order[b]]
		return pa.PowerDraw/pa.Capacity < pb.PowerDraw/pb.Capacity
	})
	return order
}
