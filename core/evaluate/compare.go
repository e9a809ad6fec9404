// Package evaluate compares an optimized schedule with the baseline pumping
// record it replaces.
package evaluate

import (
	"errors"
	"fmt"

	"github.com/kilianp07/agriwater/core/model"
	"github.com/kilianp07/agriwater/core/schedule"
)

const (
	// HoursPerMonth is the month length used by the linear projection.
	HoursPerMonth = 720
	MonthsPerYear = 12
)

// ErrNoBaseline is returned when there is nothing to compare against.
var ErrNoBaseline = errors.New("evaluate: baseline is empty")

// Totals are cost, energy and penalty summed over the compared window.
type Totals struct {
	Cost    float64 `json:"cost"`
	Energy  float64 `json:"energy_kwh"`
	Penalty float64 `json:"penalty"`
}

// Savings is baseline minus optimized, in absolute and percentage terms.
type Savings struct {
	Cost       float64 `json:"cost"`
	CostPct    float64 `json:"cost_pct"`
	Energy     float64 `json:"energy_kwh"`
	EnergyPct  float64 `json:"energy_pct"`
	Penalty    float64 `json:"penalty"`
	PenaltyPct float64 `json:"penalty_pct"`
}

// Comparison is the evaluation of one schedule. The projections extrapolate
// the window linearly with no seasonal adjustment.
type Comparison struct {
	Window            int      `json:"window_hours"`
	Baseline          Totals   `json:"baseline"`
	Optimized         Totals   `json:"optimized"`
	Savings           Savings  `json:"savings"`
	MonthlyProjection float64  `json:"monthly_projection"`
	AnnualProjection  float64  `json:"annual_projection"`
	Warnings          []string `json:"warnings,omitempty"`
}

// Compare evaluates s against baseline over the schedule horizon. A longer
// baseline is truncated to the horizon; a shorter one shrinks the window and
// adds a warning.
func Compare(s *schedule.Schedule, baseline []model.BaselineHour) (*Comparison, error) {
	if len(baseline) == 0 {
		return nil, ErrNoBaseline
	}
	if s == nil || s.Horizon() == 0 {
		return nil, fmt.Errorf("%w: empty schedule", model.ErrInvalid)
	}
	c := &Comparison{Window: s.Horizon()}
	if len(baseline) < c.Window {
		c.Warnings = append(c.Warnings, fmt.Sprintf(
			"baseline covers %d of %d scheduled hours, comparison window truncated", len(baseline), c.Window))
		c.Window = len(baseline)
	}

	for _, b := range baseline[:c.Window] {
		c.Baseline.Cost += b.Cost
		c.Baseline.Energy += b.Energy
		c.Baseline.Penalty += b.Penalty
	}
	for _, h := range s.Hours[:c.Window] {
		c.Optimized.Cost += h.TotalCost
		c.Optimized.Energy += h.TotalPower
		c.Optimized.Penalty += h.Penalty
	}

	c.Savings = Savings{
		Cost:    c.Baseline.Cost - c.Optimized.Cost,
		Energy:  c.Baseline.Energy - c.Optimized.Energy,
		Penalty: c.Baseline.Penalty - c.Optimized.Penalty,
	}
	c.Savings.CostPct = percent(c.Savings.Cost, c.Baseline.Cost)
	c.Savings.EnergyPct = percent(c.Savings.Energy, c.Baseline.Energy)
	c.Savings.PenaltyPct = percent(c.Savings.Penalty, c.Baseline.Penalty)

	c.MonthlyProjection = c.Savings.Cost / float64(c.Window) * HoursPerMonth
	c.AnnualProjection = c.MonthlyProjection * MonthsPerYear
	return c, nil
}

func percent(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	return part / whole * 100
}
