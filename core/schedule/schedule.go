package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/agriwater/core/milp"
)

// activeThreshold separates on from off in relaxed solver values.
const activeThreshold = 0.5

// ErrNoSolution is returned by Extract when the solver produced no usable
// assignment.
var ErrNoSolution = errors.New("schedule: no solution to extract")

// HourPlan is the operating plan of one hour.
type HourPlan struct {
	Hour        int      `json:"hour"`
	HourOfDay   int      `json:"hour_of_day"`
	Demand      float64  `json:"demand_m3h"`
	ActivePumps []string `json:"active_pumps"`
	Capacity    float64  `json:"capacity_m3h"`
	TotalPower  float64  `json:"total_power_kw"`
	Tariff      float64  `json:"tariff"`
	Peak        bool     `json:"peak"`
	EnergyCost  float64  `json:"energy_cost"`
	Penalty     float64  `json:"penalty"`
	// TotalCost is energy cost plus penalty; start costs are reported apart.
	TotalCost   float64  `json:"total_cost"`
	Startups    []string `json:"startups,omitempty"`
	StartupCost float64  `json:"startup_cost"`
}

// Totals aggregates a schedule over its horizon.
type Totals struct {
	TotalCost    float64 `json:"total_cost"`
	EnergyCost   float64 `json:"energy_cost"`
	TotalEnergy  float64 `json:"total_energy_kwh"`
	TotalPenalty float64 `json:"total_penalty"`
	StartupCost  float64 `json:"startup_cost"`
	Startups     int     `json:"startups"`
}

// Schedule is the extracted hourly plan of one solve.
type Schedule struct {
	Hours     []HourPlan    `json:"hours"`
	Totals    Totals        `json:"totals"`
	Status    milp.Status   `json:"status"`
	Objective float64       `json:"objective"`
	SolveTime time.Duration `json:"solve_time"`
}

// Horizon is the number of scheduled hours.
func (s *Schedule) Horizon() int { return len(s.Hours) }

// StartupsByPump counts start events per pump.
func (s *Schedule) StartupsByPump() map[string]int {
	out := make(map[string]int)
	for _, h := range s.Hours {
		for _, id := range h.Startups {
			out[id]++
		}
	}
	return out
}

// Extract turns a solver result into a Schedule. Power and penalty are
// recomputed from the active pump sets, which matches the solver variables
// at any optimum.
func Extract(f *Formulation, res milp.Result) (*Schedule, error) {
	if !res.Status.HasSolution() {
		return nil, fmt.Errorf("%w: solver status %s", ErrNoSolution, res.Status)
	}
	if len(res.Values) != len(f.Problem.Vars) {
		return nil, fmt.Errorf("%w: %d values for %d variables", ErrNoSolution, len(res.Values), len(f.Problem.Vars))
	}

	s := &Schedule{
		Hours:     make([]HourPlan, f.Horizon),
		Status:    res.Status,
		Objective: res.Objective,
		SolveTime: res.SolveTime,
	}
	on := func(i, t int) bool { return res.Value(f.Active[i][t]) > activeThreshold }
	for t := 0; t < f.Horizon; t++ {
		hp := HourPlan{
			Hour:        t,
			HourOfDay:   f.HourOfDay(t),
			Demand:      f.Demand[t],
			ActivePumps: []string{},
		}
		hp.Tariff, hp.Peak = f.Tariff.Rate(hp.HourOfDay)
		for i, pump := range f.Fleet {
			if !on(i, t) {
				continue
			}
			hp.ActivePumps = append(hp.ActivePumps, pump.ID)
			hp.Capacity += pump.Capacity
			hp.TotalPower += pump.PowerDraw
			if f.startedAt(on, i, t) {
				hp.Startups = append(hp.Startups, pump.ID)
				hp.StartupCost += pump.StartCost(f.Tariff)
			}
		}
		hp.EnergyCost = hp.TotalPower * hp.Tariff
		hp.Penalty = f.Tariff.Penalty(hp.TotalPower)
		hp.TotalCost = hp.EnergyCost + hp.Penalty

		s.Totals.TotalCost += hp.TotalCost
		s.Totals.EnergyCost += hp.EnergyCost
		s.Totals.TotalEnergy += hp.TotalPower
		s.Totals.TotalPenalty += hp.Penalty
		s.Totals.StartupCost += hp.StartupCost
		s.Totals.Startups += len(hp.Startups)
		s.Hours[t] = hp
	}
	return s, nil
}

func (f *Formulation) startedAt(on func(i, t int) bool, i, t int) bool {
	if t > 0 {
		return !on(i, t-1)
	}
	was, known := f.Policy.InitialState[f.Fleet[i].ID]
	return known && !was
}
