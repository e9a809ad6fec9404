// Package export writes optimization outcomes to files and message payloads.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/kilianp07/agriwater/core/evaluate"
	"github.com/kilianp07/agriwater/core/optimizer"
	"github.com/kilianp07/agriwater/core/schedule"
)

// ScheduleHeader lists the schedule CSV columns.
var ScheduleHeader = []string{
	"hour", "hour_of_day", "demand_m3h", "pumps_active", "capacity_m3h",
	"total_power_kw", "tariff_fcfa_kwh", "tariff_type", "energy_cost_fcfa",
	"penalty_fcfa", "total_cost_fcfa", "startups", "startup_cost_fcfa",
}

// WriteScheduleCSV writes one line per scheduled hour. Pump lists are joined
// with spaces.
func WriteScheduleCSV(w io.Writer, s *schedule.Schedule) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ScheduleHeader); err != nil {
		return err
	}
	for _, h := range s.Hours {
		tariffType := "offpeak"
		if h.Peak {
			tariffType = "peak"
		}
		rec := []string{
			strconv.Itoa(h.Hour),
			strconv.Itoa(h.HourOfDay),
			formatFloat(h.Demand),
			strings.Join(h.ActivePumps, " "),
			formatFloat(h.Capacity),
			formatFloat(h.TotalPower),
			formatFloat(h.Tariff),
			tariffType,
			formatFloat(h.EnergyCost),
			formatFloat(h.Penalty),
			formatFloat(h.TotalCost),
			strings.Join(h.Startups, " "),
			formatFloat(h.StartupCost),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteScheduleJSON writes the schedule in JSON format.
func WriteScheduleJSON(w io.Writer, s *schedule.Schedule) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// Metrics is the headline figures of a run.
type Metrics struct {
	BaselineCost      float64 `json:"baseline_cost_fcfa"`
	OptimizedCost     float64 `json:"optimized_cost_fcfa"`
	Savings           float64 `json:"savings_fcfa"`
	SavingsPercent    float64 `json:"savings_percent"`
	MonthlyProjection float64 `json:"monthly_projection_fcfa"`
	AnnualProjection  float64 `json:"annual_projection_fcfa"`
	SolveTimeSeconds  float64 `json:"solve_time_seconds"`
}

// NewMetrics builds the metrics record of a comparison. A nil comparison
// only carries the optimized cost and solve time.
func NewMetrics(s *schedule.Schedule, c *evaluate.Comparison) Metrics {
	m := Metrics{
		OptimizedCost:    s.Totals.TotalCost,
		SolveTimeSeconds: s.SolveTime.Seconds(),
	}
	if c != nil {
		m.BaselineCost = c.Baseline.Cost
		m.OptimizedCost = c.Optimized.Cost
		m.Savings = c.Savings.Cost
		m.SavingsPercent = c.Savings.CostPct
		m.MonthlyProjection = c.MonthlyProjection
		m.AnnualProjection = c.AnnualProjection
	}
	return m
}

// WriteMetricsJSON writes m in JSON format.
func WriteMetricsJSON(w io.Writer, m Metrics) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}

// Outcome is the message published for a completed run.
type Outcome struct {
	RunID      string               `json:"run_id"`
	Status     string               `json:"status"`
	StartedAt  time.Time            `json:"started_at"`
	Metrics    Metrics              `json:"metrics"`
	Schedule   *schedule.Schedule   `json:"schedule"`
	Comparison *evaluate.Comparison `json:"comparison,omitempty"`
	Warnings   []string             `json:"warnings,omitempty"`
}

// NewOutcome converts a pipeline result.
func NewOutcome(r *optimizer.Result) Outcome {
	return Outcome{
		RunID:      r.RunID,
		Status:     r.Schedule.Status.String(),
		StartedAt:  r.StartedAt,
		Metrics:    NewMetrics(r.Schedule, r.Comparison),
		Schedule:   r.Schedule,
		Comparison: r.Comparison,
		Warnings:   r.Warnings,
	}
}

// MarshalOutcome encodes the outcome of r as a compact JSON payload.
func MarshalOutcome(r *optimizer.Result) ([]byte, error) {
	return json.Marshal(NewOutcome(r))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
