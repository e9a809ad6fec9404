package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/agriwater/core/factory"
	coremetrics "github.com/kilianp07/agriwater/core/metrics"
)

type capture struct {
	mu     sync.Mutex
	bodies []string
}

func (c *capture) server(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.bodies = append(c.bodies, string(data))
		c.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestInfluxSinkRecordRun(t *testing.T) {
	var c capture
	srv := c.server(t)
	sink := NewInfluxSink(InfluxConfig{URL: srv.URL + "/api/v2/write", Token: "tok", Org: "org", Bucket: "b"})
	defer sink.Close()

	now := time.Unix(1700000000, 0)
	err := sink.RecordRun(coremetrics.RunEvent{
		RunID:     "run-1",
		Status:    "Optimal",
		Horizon:   24,
		Pumps:     3,
		TotalCost: 1234.56789,
		Startups:  4,
		SolveTime: 1500 * time.Millisecond,
		Time:      now,
	})
	require.NoError(t, err)
	require.Len(t, c.bodies, 1)
	line := c.bodies[0]
	assert.True(t, strings.HasPrefix(line, "optimization_run,run_id=run-1,status=Optimal "), line)
	assert.Contains(t, line, "total_cost=1234.568")
	assert.Contains(t, line, "startups=4i")
	assert.Contains(t, line, "solve_ms=1500i")
	assert.Contains(t, line, "1700000000000000000")
}

func TestInfluxSinkRecordSchedule(t *testing.T) {
	var c capture
	srv := c.server(t)
	sink := NewInfluxSink(InfluxConfig{URL: srv.URL, Token: "tok", Org: "org", Bucket: "b"})
	defer sink.Close()

	require.NoError(t, sink.RecordSchedule(nil))
	assert.Empty(t, c.bodies)

	hours := []coremetrics.ScheduleHour{
		{RunID: "r", Hour: 0, PowerKW: 45, ActivePumps: 1, Time: time.Unix(1, 0)},
		{RunID: "r", Hour: 1, PowerKW: 0, Peak: true, Time: time.Unix(2, 0)},
	}
	require.NoError(t, sink.RecordSchedule(hours))
	require.Len(t, c.bodies, 1)
	lines := strings.Split(strings.TrimSpace(c.bodies[0]), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "schedule_hour,hour=1,peak=true,run_id=r "), lines[1])
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(InfluxConfig{URL: srv.URL, Token: "tok", Org: "org", Bucket: "b"})
	assert.True(t, called)
	assert.IsType(t, coremetrics.NopSink{}, sink)
}

func TestFactoryBuiltins(t *testing.T) {
	s, err := coremetrics.NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}})
	require.NoError(t, err)
	assert.NotNil(t, s)

	_, err = coremetrics.NewMetricsSink([]factory.ModuleConfig{{Type: "missing"}})
	assert.Error(t, err)

	s, err = coremetrics.NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}, {Type: "prometheus"}})
	require.NoError(t, err)
	m, ok := s.(*coremetrics.MultiSink)
	require.True(t, ok)
	assert.Len(t, m.Sinks, 2)
}
