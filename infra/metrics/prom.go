package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/agriwater/core/metrics"
)

// PromSink exposes run outcomes as Prometheus metrics.
type PromSink struct {
	runs     *prometheus.CounterVec
	solve    prometheus.Histogram
	stages   *prometheus.HistogramVec
	cost     prometheus.Gauge
	savings  prometheus.Gauge
	startups prometheus.Gauge
}

// NewPromSink registers the metrics on the default Prometheus registerer.
// The HTTP endpoint is started separately with StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on reg. A nil registerer
// defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{}
	var err error
	if s.runs, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agriwater_runs_total",
		Help: "Optimization runs by outcome status",
	}, []string{"status"})); err != nil {
		return nil, err
	}
	if s.solve, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "agriwater_solve_seconds",
		Help:    "Wall-clock time spent in the MILP solver",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	})); err != nil {
		return nil, err
	}
	if s.stages, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agriwater_stage_seconds",
		Help:    "Time spent in each pipeline stage",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})); err != nil {
		return nil, err
	}
	if s.cost, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "agriwater_last_total_cost",
		Help: "Energy plus penalty cost of the last successful schedule",
	})); err != nil {
		return nil, err
	}
	if s.savings, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "agriwater_last_savings",
		Help: "Savings against the baseline of the last successful schedule",
	})); err != nil {
		return nil, err
	}
	if s.startups, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "agriwater_last_startups",
		Help: "Pump starts in the last successful schedule",
	})); err != nil {
		return nil, err
	}
	return s, nil
}

// register adds c to reg, reusing an identical collector registered earlier.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordRun counts the run and updates the last-run gauges on success.
func (s *PromSink) RecordRun(ev coremetrics.RunEvent) error {
	s.runs.WithLabelValues(ev.Status).Inc()
	if ev.SolveTime > 0 {
		s.solve.Observe(ev.SolveTime.Seconds())
	}
	if ev.Failure == "" {
		s.cost.Set(ev.TotalCost)
		s.savings.Set(ev.Savings)
		s.startups.Set(float64(ev.Startups))
	}
	return nil
}

// RecordStage observes a stage duration.
func (s *PromSink) RecordStage(ev coremetrics.StageEvent) error {
	s.stages.WithLabelValues(ev.Stage).Observe(ev.Elapsed.Seconds())
	return nil
}
