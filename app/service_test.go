package app

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/agriwater/config"
	"github.com/kilianp07/agriwater/core/model"
	coremqtt "github.com/kilianp07/agriwater/core/mqtt"
	"github.com/kilianp07/agriwater/core/optimizer"
	"github.com/kilianp07/agriwater/core/runlog"
	"github.com/kilianp07/agriwater/infra/feed"
	"github.com/kilianp07/agriwater/infra/mqtt"
	"github.com/kilianp07/agriwater/simulator"
)

type fakePublisher struct {
	mu       sync.Mutex
	runs     []string
	payloads [][]byte
	acked    bool
	closed   bool
}

func (p *fakePublisher) PublishSchedule(runID string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.runs = append(p.runs, runID)
	p.payloads = append(p.payloads, payload)
	return nil
}

func (p *fakePublisher) WaitForAck(string, time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.acked = true
	return true, nil
}

func (p *fakePublisher) Disconnect() { p.closed = true }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg, err := config.Load("")
	require.NoError(t, err)

	gen := simulator.DefaultConfig()
	gen.Start = time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)
	gen.Days = 3
	gen.Noise = 0
	g, err := simulator.New(gen)
	require.NoError(t, err)
	path := filepath.Join(dir, "feed.csv")
	require.NoError(t, feed.WriteFile(path, g.Generate().Rows))

	cfg.Input.Path = path
	cfg.Output.Dir = filepath.Join(dir, "results")
	cfg.Optimizer.Horizon = 6
	cfg.RunLog = runlog.Config{Backend: "jsonl", Path: filepath.Join(dir, "runs.jsonl")}
	return cfg
}

func TestProfileDemand(t *testing.T) {
	profile := make(model.DemandForecast, 24)
	for i := range profile {
		profile[i] = float64(i)
	}
	assert.Equal(t, model.DemandForecast{22, 23, 0, 1}, profileDemand(profile, 22, 4))
	assert.Len(t, profileDemand(profile, 0, 48), 48)

	partial := model.DemandForecast{1, 2}
	assert.Equal(t, partial, profileDemand(partial, 5, 24))
}

func TestLoadInputModes(t *testing.T) {
	cfg := testConfig(t)
	svc, err := New(cfg)
	require.NoError(t, err)
	defer svc.Close()

	demand, baseline, err := svc.LoadInput()
	require.NoError(t, err)
	assert.Len(t, demand, 6)
	assert.Len(t, baseline, 72)

	cfg.Input.DemandMode = config.DemandSeries
	cfg.Optimizer.StartHour = 5
	demand, baseline, err = svc.LoadInput()
	require.NoError(t, err)
	assert.Len(t, demand, 67)
	assert.Len(t, baseline, 67)
	assert.InDelta(t, simulator.BaseDemand(time.Date(2026, 1, 3, 5, 0, 0, 0, time.UTC)), demand[0], 1e-9)

	cfg.Input.Path = filepath.Join(t.TempDir(), "missing.csv")
	_, _, err = svc.LoadInput()
	assert.Error(t, err)
}

func TestOptimizeEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	cfg.MQTT = mqtt.Config{Enabled: true, Broker: "tcp://localhost:1883", AckTopic: "agriwater/ack"}
	pub := &fakePublisher{}
	newPublisher = func(mqtt.Config) (coremqtt.Publisher, error) { return pub, nil }
	defer func() {
		newPublisher = func(c mqtt.Config) (coremqtt.Publisher, error) { return mqtt.NewPahoPublisher(c) }
	}()

	svc, err := New(cfg)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)

	res, err := svc.Optimize(ctx)
	require.NoError(t, err)
	require.NotNil(t, res.Comparison)
	assert.Equal(t, 6, res.Schedule.Horizon())
	for _, h := range res.Schedule.Hours {
		assert.GreaterOrEqual(t, h.Capacity+1e-6, h.Demand, "hour %d", h.Hour)
	}

	for _, name := range []string{ScheduleCSVFile, ScheduleJSONFile, MetricsFile, SummaryFile} {
		info, err := os.Stat(filepath.Join(cfg.Output.Dir, name))
		require.NoError(t, err, name)
		assert.NotZero(t, info.Size(), name)
	}

	require.Len(t, pub.runs, 1)
	assert.Equal(t, res.RunID, pub.runs[0])
	assert.True(t, pub.acked)
	var msg map[string]any
	require.NoError(t, json.Unmarshal(pub.payloads[0], &msg))
	assert.Equal(t, res.RunID, msg["run_id"])

	recs, err := svc.Runs(ctx, runlog.Query{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, res.RunID, recs[0].RunID)

	require.NoError(t, svc.Close())
	assert.True(t, pub.closed)
}

func TestRunRecordsFailure(t *testing.T) {
	cfg := testConfig(t)
	svc, err := New(cfg)
	require.NoError(t, err)
	defer svc.Close()

	req := svc.Request(model.DemandForecast{500, 500}, nil)
	req.Horizon = 2
	_, err = svc.Run(context.Background(), req)
	require.ErrorIs(t, err, optimizer.ErrInfeasible)

	recs, err := svc.Runs(context.Background(), runlog.Query{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "infeasible", recs[0].Failure)
	assert.Equal(t, 2, recs[0].Horizon)

	_, err = os.Stat(filepath.Join(cfg.Output.Dir, SummaryFile))
	assert.True(t, os.IsNotExist(err))
}

func TestRunsDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.RunLog = runlog.Config{}
	svc, err := New(cfg)
	require.NoError(t, err)
	defer svc.Close()
	_, err = svc.Runs(context.Background(), runlog.Query{})
	assert.Error(t, err)
}
