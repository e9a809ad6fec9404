// Package app wires configuration, the optimization pipeline and its
// reporting outputs together.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kilianp07/agriwater/config"
	coremetrics "github.com/kilianp07/agriwater/core/metrics"
	"github.com/kilianp07/agriwater/core/milp"
	"github.com/kilianp07/agriwater/core/model"
	coremqtt "github.com/kilianp07/agriwater/core/mqtt"
	"github.com/kilianp07/agriwater/core/optimizer"
	"github.com/kilianp07/agriwater/core/runlog"
	"github.com/kilianp07/agriwater/infra/feed"
	"github.com/kilianp07/agriwater/infra/logger"
	"github.com/kilianp07/agriwater/infra/metrics"
	"github.com/kilianp07/agriwater/infra/mqtt"
	"github.com/kilianp07/agriwater/internal/eventbus"
	"github.com/kilianp07/agriwater/pkg/export"
)

// Output file names written to the output directory.
const (
	ScheduleCSVFile  = "optimized_schedule.csv"
	ScheduleJSONFile = "optimized_schedule.json"
	MetricsFile      = "optimization_metrics.json"
	SummaryFile      = "summary_report.txt"
)

var newPublisher = func(cfg mqtt.Config) (coremqtt.Publisher, error) {
	return mqtt.NewPahoPublisher(cfg)
}

// Service runs optimizations for one configuration.
type Service struct {
	cfg       *config.Config
	opt       *optimizer.Optimizer
	bus       *eventbus.Bus[optimizer.Event]
	sink      coremetrics.MetricsSink
	store     runlog.Store
	publisher coremqtt.Publisher
	log       logger.Logger

	outputMu sync.Mutex
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")
	solver, err := milp.NewSolver(cfg.Optimizer.Solver)
	if err != nil {
		return nil, fmt.Errorf("solver: %w", err)
	}
	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	store, err := runlog.Open(cfg.RunLog)
	if err != nil {
		return nil, err
	}
	svc := &Service{cfg: cfg, sink: sink, store: store, log: logg}
	if cfg.MQTT.Enabled {
		pub, err := newPublisher(cfg.MQTT)
		if err != nil {
			_ = svc.Close()
			return nil, fmt.Errorf("mqtt publisher: %w", err)
		}
		svc.publisher = pub
	}
	svc.bus = eventbus.New[optimizer.Event]()
	svc.opt = optimizer.New(solver, sink, svc.bus, logger.New("optimizer"))
	return svc, nil
}

// Start launches the metrics collector and the Prometheus endpoint. They
// stop with ctx.
func (s *Service) Start(ctx context.Context) {
	metrics.StartEventCollector(ctx, s.bus, s.sink, logger.New("event-collector"))
	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, addr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
}

// LoadInput reads the configured feed and derives the demand forecast and
// the baseline of the planning window.
func (s *Service) LoadInput() (model.DemandForecast, []model.BaselineHour, error) {
	f, err := feed.ReadFile(s.cfg.Input.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("read feed %s: %w", s.cfg.Input.Path, err)
	}
	window := f.From(s.cfg.Optimizer.StartHour)
	baseline := window.Baseline()
	if s.cfg.Input.DemandMode == config.DemandSeries {
		return window.Demand(), baseline, nil
	}
	return profileDemand(f.DemandProfile(), s.cfg.Optimizer.StartHour, s.cfg.Optimizer.Horizon), baseline, nil
}

// profileDemand lays a per-hour-of-day profile over the horizon. Partial
// profiles are used as they are.
func profileDemand(profile model.DemandForecast, startHour, horizon int) model.DemandForecast {
	if len(profile) != 24 {
		return profile
	}
	out := make(model.DemandForecast, horizon)
	for t := range out {
		out[t] = profile[(startHour+t)%24]
	}
	return out
}

// Request builds the optimizer request of the configuration.
func (s *Service) Request(demand model.DemandForecast, baseline []model.BaselineHour) optimizer.Request {
	o := s.cfg.Optimizer
	return optimizer.Request{
		Fleet:          s.cfg.Fleet,
		Tariff:         s.cfg.Tariff,
		Demand:         demand,
		Baseline:       baseline,
		Horizon:        o.Horizon,
		StartHour:      o.StartHour,
		Policy:         o.Policy,
		TimeLimit:      o.TimeLimit(),
		RequireOptimal: o.RequireOptimal,
		SkipWarmStart:  o.SkipWarmStart,
	}
}

// Optimize runs the pipeline on the configured input, then records,
// exports and publishes the outcome.
func (s *Service) Optimize(ctx context.Context) (*optimizer.Result, error) {
	demand, baseline, err := s.LoadInput()
	if err != nil {
		return nil, err
	}
	return s.Run(ctx, s.Request(demand, baseline))
}

// Run executes req and handles its outcome.
func (s *Service) Run(ctx context.Context, req optimizer.Request) (*optimizer.Result, error) {
	res, err := s.opt.Run(ctx, req)
	if err != nil {
		if f, ok := optimizer.AsFailure(err); ok {
			s.appendRecord(ctx, runlog.FromFailure(f, req.Horizon, time.Now().UTC()))
		}
		return nil, err
	}
	s.appendRecord(ctx, runlog.FromResult(res))
	if err := s.WriteOutputs(res); err != nil {
		return res, fmt.Errorf("write outputs: %w", err)
	}
	s.publish(res)
	return res, nil
}

func (s *Service) appendRecord(ctx context.Context, rec runlog.Record) {
	if s.store == nil {
		return
	}
	if err := s.store.Append(ctx, rec); err != nil {
		s.log.Errorf("run log append: %v", err)
	}
}

func (s *Service) publish(res *optimizer.Result) {
	if s.publisher == nil {
		return
	}
	payload, err := export.MarshalOutcome(res)
	if err != nil {
		s.log.Errorf("encode outcome: %v", err)
		return
	}
	if err := s.publisher.PublishSchedule(res.RunID, payload); err != nil {
		s.log.Errorf("publish run %s: %v", res.RunID, err)
		return
	}
	if s.cfg.MQTT.AckTopic == "" {
		return
	}
	timeout := time.Duration(s.cfg.MQTT.AckTimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ok, err := s.publisher.WaitForAck(res.RunID, timeout)
	switch {
	case errors.Is(err, coremqtt.ErrAckTimeout):
		s.log.Warnf("run %s was not acknowledged within %s", res.RunID, timeout)
	case err != nil:
		s.log.Errorf("wait for ack of run %s: %v", res.RunID, err)
	case ok:
		s.log.Infof("run %s acknowledged", res.RunID)
	}
}

// WriteOutputs writes the schedule, metrics and report files, replacing
// those of the previous run.
func (s *Service) WriteOutputs(res *optimizer.Result) error {
	s.outputMu.Lock()
	defer s.outputMu.Unlock()
	dir := s.cfg.Output.Dir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	writers := []struct {
		name  string
		write func(f *os.File) error
	}{
		{ScheduleCSVFile, func(f *os.File) error { return export.WriteScheduleCSV(f, res.Schedule) }},
		{ScheduleJSONFile, func(f *os.File) error { return export.WriteScheduleJSON(f, res.Schedule) }},
		{MetricsFile, func(f *os.File) error {
			return export.WriteMetricsJSON(f, export.NewMetrics(res.Schedule, res.Comparison))
		}},
		{SummaryFile, func(f *os.File) error { return export.WriteSummary(f, res) }},
	}
	for _, w := range writers {
		path := filepath.Join(dir, w.name)
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := w.write(f); err != nil {
			f.Close()
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return err
		}
		s.log.Debugf("wrote %s", path)
	}
	return nil
}

// Runs queries the run log.
func (s *Service) Runs(ctx context.Context, q runlog.Query) ([]runlog.Record, error) {
	if s.store == nil {
		return nil, errors.New("run log is disabled")
	}
	return s.store.Query(ctx, q)
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	if s.bus != nil {
		s.bus.Close()
	}
	if s.publisher != nil {
		s.publisher.Disconnect()
	}
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}
