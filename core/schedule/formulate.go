package schedule

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/kilianp07/agriwater/core/logger"
	"github.com/kilianp07/agriwater/core/milp"
	"github.com/kilianp07/agriwater/core/model"
)

// Input is everything needed to build one scheduling problem.
type Input struct {
	Fleet  model.Fleet
	Tariff model.TariffSchedule
	Demand model.DemandForecast
	// Horizon is the requested number of hours. It shrinks to the demand
	// length when the forecast is shorter.
	Horizon int
	// StartHour is the hour of day of horizon hour 0.
	StartHour int
	Policy    Policy
}

// Formulation is a built problem together with the dense pump×hour index
// tables needed to read a solution back.
type Formulation struct {
	Problem   *milp.Problem
	Fleet     model.Fleet
	Tariff    model.TariffSchedule
	Demand    model.DemandForecast
	Horizon   int
	StartHour int
	Policy    Policy

	Active  [][]int // [pump][hour]
	Startup [][]int // [pump][hour]
	Power   []int
	Penalty []int

	Optional []string
	Warnings []string
}

// HourOfDay maps a horizon hour to the hour of day.
func (f *Formulation) HourOfDay(t int) int {
	return (f.StartHour + t) % 24
}

func (in Input) validate() error {
	if err := in.Fleet.Validate(); err != nil {
		return err
	}
	if err := in.Tariff.Validate(); err != nil {
		return err
	}
	if in.Horizon <= 0 {
		return fmt.Errorf("%w: horizon must be positive, got %d", model.ErrInvalid, in.Horizon)
	}
	if in.StartHour < 0 || in.StartHour > 23 {
		return fmt.Errorf("%w: start hour must be within [0,23], got %d", model.ErrInvalid, in.StartHour)
	}
	if len(in.Demand) == 0 {
		return fmt.Errorf("%w: demand forecast is empty", model.ErrInvalid)
	}
	if err := in.Demand.Validate(); err != nil {
		return err
	}
	return in.Policy.Validate(in.Fleet)
}

// Formulate builds the scheduling MILP for in. A forecast shorter than the
// requested horizon truncates the horizon and is reported in Warnings.
func Formulate(in Input, log logger.Logger) (*Formulation, error) {
	log = logger.OrNop(log)
	in.Policy.SetDefaults()
	if err := in.validate(); err != nil {
		return nil, err
	}

	f := &Formulation{
		Fleet:     in.Fleet,
		Tariff:    in.Tariff,
		StartHour: in.StartHour,
		Policy:    in.Policy,
		Optional:  in.Policy.ActiveOptional(),
	}
	h, truncated := in.Demand.Truncate(in.Horizon)
	if truncated {
		w := fmt.Sprintf("demand covers %d of %d requested hours, horizon truncated", h, in.Horizon)
		f.Warnings = append(f.Warnings, w)
		log.Warnf("formulate: %s", w)
	}
	f.Horizon = h
	f.Demand = in.Demand[:h]

	n := len(in.Fleet)
	p := milp.NewProblem(fmt.Sprintf("pump-schedule-%dh", h))
	f.Problem = p
	f.Active = make([][]int, n)
	f.Startup = make([][]int, n)
	for i, pump := range in.Fleet {
		f.Active[i] = make([]int, h)
		f.Startup[i] = make([]int, h)
		for t := 0; t < h; t++ {
			f.Active[i][t] = p.AddBinary(fmt.Sprintf("active[%s,%d]", pump.ID, t))
			f.Startup[i][t] = p.AddBinary(fmt.Sprintf("startup[%s,%d]", pump.ID, t))
		}
	}
	f.Power = make([]int, h)
	f.Penalty = make([]int, h)
	for t := 0; t < h; t++ {
		f.Power[t] = p.AddContinuous(fmt.Sprintf("total_power[%d]", t), 0, math.Inf(1))
		f.Penalty[t] = p.AddContinuous(fmt.Sprintf("penalty[%d]", t), 0, math.Inf(1))
	}

	f.addObjective()
	f.addHourRows()
	f.addCoverRows()
	f.addMinPumpRows()
	f.addStartupRows()
	f.addBudgetRows()
	f.addOptionalRows()

	if len(f.Optional) > 0 {
		log.Infof("formulate: optional constraints enabled: %s", strings.Join(f.Optional, ", "))
	}
	if len(f.Optional) > 1 {
		log.Warnf("formulate: %d optional constraints enabled together, the model may become infeasible", len(f.Optional))
	}
	if peak := f.Demand.Peak(h); peak > in.Fleet.TotalCapacity() {
		log.Warnf("formulate: peak demand %.2f m³/h exceeds fleet capacity %.2f m³/h", peak, in.Fleet.TotalCapacity())
	}
	log.Infow("formulate: problem built", map[string]any{
		"horizon":     h,
		"pumps":       n,
		"variables":   len(p.Vars),
		"constraints": len(p.Constraints),
		"start_hour":  in.StartHour,
	})
	return f, nil
}

func (f *Formulation) addObjective() {
	p := f.Problem
	for t := 0; t < f.Horizon; t++ {
		rate, _ := f.Tariff.Rate(f.HourOfDay(t))
		p.AddObjective(
			milp.Term{Var: f.Power[t], Coef: rate},
			milp.Term{Var: f.Penalty[t], Coef: 1},
		)
		for i, pump := range f.Fleet {
			if c := pump.StartCost(f.Tariff); c != 0 {
				p.AddObjective(milp.Term{Var: f.Startup[i][t], Coef: c})
			}
		}
	}
}

// addHourRows adds demand coverage, power accounting and penalty accounting.
func (f *Formulation) addHourRows() {
	p := f.Problem
	n := len(f.Fleet)
	for t := 0; t < f.Horizon; t++ {
		cover := make([]milp.Term, 0, n)
		power := make([]milp.Term, 0, n+1)
		power = append(power, milp.Term{Var: f.Power[t], Coef: 1})
		for i, pump := range f.Fleet {
			cover = append(cover, milp.Term{Var: f.Active[i][t], Coef: pump.Capacity})
			power = append(power, milp.Term{Var: f.Active[i][t], Coef: -pump.PowerDraw})
		}
		p.AddConstraint(fmt.Sprintf("demand[%d]", t), milp.GreaterEq, f.Demand[t], cover...)
		p.AddConstraint(fmt.Sprintf("power[%d]", t), milp.Equal, 0, power...)
		if f.Tariff.PenaltyRate > 0 {
			p.AddConstraint(fmt.Sprintf("penalty[%d]", t), milp.GreaterEq, -f.Tariff.PenaltyRate*f.Tariff.SubscribedPower,
				milp.Term{Var: f.Penalty[t], Coef: 1},
				milp.Term{Var: f.Power[t], Coef: -f.Tariff.PenaltyRate},
			)
		}
	}
}

// coverFleetLimit is the largest fleet for which pump subsets are
// enumerated to derive cover rows.
const coverFleetLimit = 12

// addCoverRows adds, for every hour, one row per maximal pump subset whose
// capacity falls short of demand: at least one pump outside the subset must
// run. The rows only restate the demand row for binary schedules but cut
// off most fractional relaxations.
func (f *Formulation) addCoverRows() {
	n := len(f.Fleet)
	if n > coverFleetLimit {
		return
	}
	total := f.Fleet.TotalCapacity()
	for t := 0; t < f.Horizon; t++ {
		d := f.Demand[t]
		if d <= 0 || d > total {
			continue
		}
		k := 0
		for mask := 0; mask < 1<<n; mask++ {
			if !f.maximalShortfall(mask, d) {
				continue
			}
			terms := make([]milp.Term, 0, n)
			for i := 0; i < n; i++ {
				if mask&(1<<i) == 0 {
					terms = append(terms, milp.Term{Var: f.Active[i][t], Coef: 1})
				}
			}
			f.Problem.AddConstraint(fmt.Sprintf("cover[%d,%d]", t, k), milp.GreaterEq, 1, terms...)
			k++
		}
	}
}

// addMinPumpRows adds, for every hour that needs at least two pumps, a row
// asking for as many running pumps as the largest pumps need to meet demand.
func (f *Formulation) addMinPumpRows() {
	caps := make([]float64, len(f.Fleet))
	for i, pump := range f.Fleet {
		caps[i] = pump.Capacity
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(caps)))
	total := f.Fleet.TotalCapacity()
	for t := 0; t < f.Horizon; t++ {
		d := f.Demand[t]
		if d <= 0 || d > total {
			continue
		}
		k, capacity := 0, 0.0
		for capacity < d {
			capacity += caps[k]
			k++
		}
		if k < 2 {
			continue
		}
		terms := make([]milp.Term, len(f.Fleet))
		for i := range f.Fleet {
			terms[i] = milp.Term{Var: f.Active[i][t], Coef: 1}
		}
		f.Problem.AddConstraint(fmt.Sprintf("min_pumps[%d]", t), milp.GreaterEq, float64(k), terms...)
	}
}

// maximalShortfall reports whether the pumps in mask cannot meet d while
// adding any other single pump can.
func (f *Formulation) maximalShortfall(mask int, d float64) bool {
	capacity := 0.0
	for i, pump := range f.Fleet {
		if mask&(1<<i) != 0 {
			capacity += pump.Capacity
		}
	}
	if capacity >= d {
		return false
	}
	for i, pump := range f.Fleet {
		if mask&(1<<i) == 0 && capacity+pump.Capacity < d {
			return false
		}
	}
	return true
}

// addStartupRows forces startup[p,t] up on every OFF→ON transition. Hour 0
// is only constrained for pumps with a known initial state.
func (f *Formulation) addStartupRows() {
	p := f.Problem
	for i, pump := range f.Fleet {
		if on, ok := f.Policy.InitialState[pump.ID]; ok {
			prev := 0.0
			if on {
				prev = 1
			}
			p.AddConstraint(fmt.Sprintf("startup[%s,0]", pump.ID), milp.GreaterEq, -prev,
				milp.Term{Var: f.Startup[i][0], Coef: 1},
				milp.Term{Var: f.Active[i][0], Coef: -1},
			)
		}
		for t := 1; t < f.Horizon; t++ {
			p.AddConstraint(fmt.Sprintf("startup[%s,%d]", pump.ID, t), milp.GreaterEq, 0,
				milp.Term{Var: f.Startup[i][t], Coef: 1},
				milp.Term{Var: f.Active[i][t], Coef: -1},
				milp.Term{Var: f.Active[i][t-1], Coef: 1},
			)
		}
	}
}

func (f *Formulation) addBudgetRows() {
	p := f.Problem
	limit := float64(f.Policy.StartBudget())
	for i, pump := range f.Fleet {
		for _, w := range f.Policy.budgetWindows(f.Horizon) {
			terms := make([]milp.Term, 0, w[1]-w[0])
			for t := w[0]; t < w[1]; t++ {
				terms = append(terms, milp.Term{Var: f.Startup[i][t], Coef: 1})
			}
			p.AddConstraint(fmt.Sprintf("budget[%s,%d:%d]", pump.ID, w[0], w[1]), milp.LessEq, limit, terms...)
		}
	}
}

func (f *Formulation) addOptionalRows() {
	p := f.Problem
	if l := f.Policy.MinRuntimeHours; l > 1 {
		for i, pump := range f.Fleet {
			for t := 0; t < f.Horizon; t++ {
				end := min(t+l, f.Horizon)
				terms := make([]milp.Term, 0, end-t+1)
				for k := t; k < end; k++ {
					terms = append(terms, milp.Term{Var: f.Active[i][k], Coef: 1})
				}
				terms = append(terms, milp.Term{Var: f.Startup[i][t], Coef: -float64(end - t)})
				p.AddConstraint(fmt.Sprintf("min_runtime[%s,%d]", pump.ID, t), milp.GreaterEq, 0, terms...)
			}
		}
	}
	if k := f.Policy.MaxSimultaneousPumps; k > 0 {
		for t := 0; t < f.Horizon; t++ {
			terms := make([]milp.Term, 0, len(f.Fleet))
			for i := range f.Fleet {
				terms = append(terms, milp.Term{Var: f.Active[i][t], Coef: 1})
			}
			p.AddConstraint(fmt.Sprintf("max_pumps[%d]", t), milp.LessEq, float64(k), terms...)
		}
	}
}
