// Package metrics defines the sinks recording optimization runs. A sink must
// implement MetricsSink; the optional recorder interfaces add per-hour
// schedule points and pipeline stage timings. NewMetricsSink builds sinks
// from configuration and wraps several of them in a MultiSink.
package metrics
