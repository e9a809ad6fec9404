package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/agriwater/core/metrics"
	"github.com/kilianp07/agriwater/infra/logger"
)

// InfluxConfig locates the InfluxDB bucket.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// InfluxSink writes run summaries and schedule points to InfluxDB.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a sink for the given endpoint. A URL ending with the
// write path is accepted.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the instance and returns a NopSink when
// the health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the client.
func (s *InfluxSink) Close() { s.client.Close() }

// RecordRun writes one optimization_run point.
func (s *InfluxSink) RecordRun(ev coremetrics.RunEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("optimization_run").
		AddTag("run_id", ev.RunID).
		AddTag("status", ev.Status)
	if ev.Failure != "" {
		p = p.AddTag("failure", ev.Failure)
	}
	p = p.AddField("horizon", ev.Horizon).
		AddField("pumps", ev.Pumps).
		AddField("objective", round3(ev.Objective)).
		AddField("total_cost", round3(ev.TotalCost)).
		AddField("energy_kwh", round3(ev.EnergyKWh)).
		AddField("penalty", round3(ev.Penalty)).
		AddField("startup_cost", round3(ev.StartupCost)).
		AddField("startups", ev.Startups).
		AddField("savings", round3(ev.Savings)).
		AddField("savings_pct", round3(ev.SavingsPct)).
		AddField("solve_ms", ev.SolveTime.Milliseconds()).
		AddField("nodes", ev.Nodes).
		SetTime(ev.Time).
		SortTags()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordSchedule writes one schedule_hour point per hour in a single request.
func (s *InfluxSink) RecordSchedule(hours []coremetrics.ScheduleHour) error {
	if len(hours) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	points := make([]*write.Point, 0, len(hours))
	for _, h := range hours {
		points = append(points, write.NewPointWithMeasurement("schedule_hour").
			AddTag("run_id", h.RunID).
			AddTag("hour", strconv.Itoa(h.Hour)).
			AddTag("peak", strconv.FormatBool(h.Peak)).
			AddField("hour_of_day", h.HourOfDay).
			AddField("demand_m3h", round3(h.Demand)).
			AddField("capacity_m3h", round3(h.Capacity)).
			AddField("power_kw", round3(h.PowerKW)).
			AddField("cost", round3(h.Cost)).
			AddField("penalty", round3(h.Penalty)).
			AddField("active_pumps", h.ActivePumps).
			SetTime(h.Time).
			SortTags())
	}
	return s.writeAPI.WritePoint(ctx, points...)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
