package metrics

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/agriwater/core/factory"
)

type recordSink struct {
	runs   int
	hours  int
	stages int
	err    error
}

func (r *recordSink) RecordRun(RunEvent) error {
	r.runs++
	return r.err
}

func (r *recordSink) RecordSchedule(h []ScheduleHour) error {
	r.hours += len(h)
	return nil
}

func (r *recordSink) RecordStage(StageEvent) error {
	r.stages++
	return nil
}

type runOnly struct{ runs int }

func (r *runOnly) RecordRun(RunEvent) error {
	r.runs++
	return nil
}

func TestMultiSinkForwards(t *testing.T) {
	full := &recordSink{}
	basic := &runOnly{}
	m := NewMultiSink(full, basic)

	assert.NoError(t, m.RecordRun(RunEvent{RunID: "r"}))
	assert.NoError(t, m.RecordSchedule(make([]ScheduleHour, 3)))
	assert.NoError(t, m.RecordStage(StageEvent{Stage: "solved"}))

	assert.Equal(t, 1, full.runs)
	assert.Equal(t, 3, full.hours)
	assert.Equal(t, 1, full.stages)
	assert.Equal(t, 1, basic.runs)
}

func TestMultiSinkContinuesAfterError(t *testing.T) {
	boom := errors.New("boom")
	failing := &recordSink{err: boom}
	ok := &recordSink{}
	err := NewMultiSink(failing, ok).RecordRun(RunEvent{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, ok.runs)
}

func TestNewMetricsSinkDefaultsToNop(t *testing.T) {
	s, err := NewMetricsSink(nil)
	assert.NoError(t, err)
	assert.IsType(t, NopSink{}, s)
}

func TestNewMetricsSinkNamesFailingEntry(t *testing.T) {
	boom := errors.New("bucket missing")
	require.NoError(t, RegisterMetricsSink("broken-run-log", func(map[string]any) (MetricsSink, error) {
		return nil, boom
	}))
	require.NoError(t, RegisterMetricsSink("memory-run-log", func(map[string]any) (MetricsSink, error) {
		return &recordSink{}, nil
	}))

	_, err := NewMetricsSink([]factory.ModuleConfig{{Type: "memory-run-log"}, {Type: "broken-run-log"}})
	require.ErrorIs(t, err, boom)
	assert.EqualError(t, err, "metrics sink 1 (broken-run-log): bucket missing")

	_, err = NewMetricsSink([]factory.ModuleConfig{{Type: "unregistered"}})
	assert.ErrorContains(t, err, "metrics sink 0 (unregistered): unknown module type")

	s, err := NewMetricsSink([]factory.ModuleConfig{{Type: "memory-run-log"}})
	require.NoError(t, err)
	assert.IsType(t, &recordSink{}, s)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Config{}.Validate())
	assert.Error(t, Config{Sinks: []factory.ModuleConfig{{Type: ""}}}.Validate())
}
