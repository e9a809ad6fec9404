package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/kilianp07/agriwater/core/metrics"
)

func TestPromSinkRecordRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, sink.RecordRun(coremetrics.RunEvent{
		RunID:     "r1",
		Status:    "Optimal",
		TotalCost: 9375,
		Savings:   1200,
		Startups:  3,
		SolveTime: 250 * time.Millisecond,
	}))
	require.NoError(t, sink.RecordRun(coremetrics.RunEvent{RunID: "r2", Status: "Infeasible", Failure: "infeasible"}))

	expected := `
# HELP agriwater_runs_total Optimization runs by outcome status
# TYPE agriwater_runs_total counter
agriwater_runs_total{status="Infeasible"} 1
agriwater_runs_total{status="Optimal"} 1
`
	assert.NoError(t, testutil.CollectAndCompare(sink.runs, strings.NewReader(expected)))
	assert.Equal(t, 9375.0, testutil.ToFloat64(sink.cost))
	assert.Equal(t, 1200.0, testutil.ToFloat64(sink.savings))
	assert.Equal(t, 3.0, testutil.ToFloat64(sink.startups))
	assert.Equal(t, 1, testutil.CollectAndCount(sink.solve))
}

func TestPromSinkStages(t *testing.T) {
	sink, err := NewPromSinkWithRegistry(prometheus.NewRegistry())
	require.NoError(t, err)
	require.NoError(t, sink.RecordStage(coremetrics.StageEvent{Stage: "solved", Elapsed: time.Second}))
	require.NoError(t, sink.RecordStage(coremetrics.StageEvent{Stage: "formulated", Elapsed: time.Millisecond}))
	assert.Equal(t, 2, testutil.CollectAndCount(sink.stages))
}

func TestPromSinkReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	second, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, first.RecordRun(coremetrics.RunEvent{Status: "Optimal"}))
	require.NoError(t, second.RecordRun(coremetrics.RunEvent{Status: "Optimal"}))
	assert.Equal(t, 2.0, testutil.ToFloat64(first.runs.WithLabelValues("Optimal")))
}
