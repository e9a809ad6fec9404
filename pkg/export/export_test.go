package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/agriwater/core/evaluate"
	"github.com/kilianp07/agriwater/core/milp"
	"github.com/kilianp07/agriwater/core/optimizer"
	"github.com/kilianp07/agriwater/core/schedule"
)

func sampleResult() *optimizer.Result {
	s := &schedule.Schedule{
		Hours: []schedule.HourPlan{
			{Hour: 0, HourOfDay: 6, Demand: 40, ActivePumps: []string{"P1"}, Capacity: 60, TotalPower: 45,
				Tariff: 75, EnergyCost: 3375, TotalCost: 3375, Startups: []string{"P1"}, StartupCost: 5000},
			{Hour: 1, HourOfDay: 7, Demand: 120, ActivePumps: []string{"P1", "P3"}, Capacity: 115, TotalPower: 87,
				Tariff: 110, Peak: true, EnergyCost: 9570, TotalCost: 9570, Startups: []string{"P3"}, StartupCost: 5000},
		},
		Totals:    schedule.Totals{TotalCost: 12945, EnergyCost: 12945, TotalEnergy: 132, StartupCost: 10000, Startups: 2},
		Status:    milp.StatusOptimal,
		Objective: 22945,
		SolveTime: 1500 * time.Millisecond,
	}
	c := &evaluate.Comparison{
		Window:            2,
		Baseline:          evaluate.Totals{Cost: 20000, Energy: 180, Penalty: 1000},
		Optimized:         evaluate.Totals{Cost: 12945, Energy: 132},
		Savings:           evaluate.Savings{Cost: 7055, CostPct: 35.28, Energy: 48, EnergyPct: 26.67, Penalty: 1000, PenaltyPct: 100},
		MonthlyProjection: 2539800,
		AnnualProjection:  30477600,
	}
	return &optimizer.Result{RunID: "run-1", Schedule: s, Comparison: c, Warnings: []string{"demand truncated"}}
}

func TestWriteScheduleCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteScheduleCSV(&buf, sampleResult().Schedule))

	recs, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, ScheduleHeader, recs[0])
	assert.Equal(t, []string{"1", "7", "120", "P1 P3", "115", "87", "110", "peak", "9570", "0", "9570", "P3", "5000"}, recs[2])
	assert.Equal(t, "offpeak", recs[1][7])
}

func TestWriteScheduleJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteScheduleJSON(&buf, sampleResult().Schedule))
	var out struct {
		Hours  []map[string]any `json:"hours"`
		Status string           `json:"status"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Len(t, out.Hours, 2)
	assert.Equal(t, "Optimal", out.Status)
}

func TestMetrics(t *testing.T) {
	r := sampleResult()
	m := NewMetrics(r.Schedule, r.Comparison)
	assert.Equal(t, 20000.0, m.BaselineCost)
	assert.Equal(t, 7055.0, m.Savings)
	assert.Equal(t, 1.5, m.SolveTimeSeconds)

	var buf bytes.Buffer
	require.NoError(t, WriteMetricsJSON(&buf, m))
	for _, key := range []string{"baseline_cost_fcfa", "optimized_cost_fcfa", "savings_fcfa", "savings_percent",
		"monthly_projection_fcfa", "annual_projection_fcfa", "solve_time_seconds"} {
		assert.Contains(t, buf.String(), `"`+key+`"`)
	}

	bare := NewMetrics(r.Schedule, nil)
	assert.Equal(t, 12945.0, bare.OptimizedCost)
	assert.Zero(t, bare.BaselineCost)
}

func TestMarshalOutcome(t *testing.T) {
	data, err := MarshalOutcome(sampleResult())
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "run-1", out["run_id"])
	assert.Equal(t, "Optimal", out["status"])
	assert.Contains(t, out, "comparison")
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, sampleResult()))
	report := buf.String()
	assert.Contains(t, report, "run run-1")
	assert.Contains(t, report, "12,945")
	assert.Contains(t, report, "30,477,600")
	assert.Contains(t, report, "35.28 %")
	assert.Contains(t, report, "P3 starts:")
	assert.Contains(t, report, "- demand truncated")

	r := sampleResult()
	r.Comparison = nil
	r.Warnings = nil
	buf.Reset()
	require.NoError(t, WriteSummary(&buf, r))
	assert.NotContains(t, buf.String(), "PROJECTIONS")
	assert.True(t, strings.HasSuffix(buf.String(), strings.Repeat("=", rule)+"\n"))
}

func TestMoney(t *testing.T) {
	assert.Equal(t, "0", money(0))
	assert.Equal(t, "999", money(999))
	assert.Equal(t, "1,000", money(1000))
	assert.Equal(t, "-1,234,568", money(-1234567.8))
	assert.Equal(t, "0", money(-0.2))
}
