package metrics

import "time"

// RunEvent summarises one optimization run.
type RunEvent struct {
	RunID     string
	Status    string
	Failure   string
	Horizon   int
	Pumps     int
	Objective float64
	TotalCost float64
	EnergyKWh float64
	Penalty   float64
	// StartupCost is the wear cost of the scheduled starts, not included in
	// TotalCost.
	StartupCost float64
	Startups    int
	Savings     float64
	SavingsPct  float64
	SolveTime   time.Duration
	Nodes       int
	Time        time.Time
}

// MetricsSink records run summaries.
type MetricsSink interface {
	RecordRun(ev RunEvent) error
}

// ScheduleHour is one hour of an extracted schedule.
type ScheduleHour struct {
	RunID       string
	Hour        int
	HourOfDay   int
	Demand      float64
	Capacity    float64
	PowerKW     float64
	Cost        float64
	Penalty     float64
	ActivePumps int
	Peak        bool
	Time        time.Time
}

// ScheduleRecorder is implemented by sinks storing hourly schedule points.
type ScheduleRecorder interface {
	RecordSchedule(hours []ScheduleHour) error
}

// StageEvent is the time spent in one pipeline stage.
type StageEvent struct {
	RunID   string
	Stage   string
	Elapsed time.Duration
	Time    time.Time
}

// StageRecorder is implemented by sinks timing pipeline stages.
type StageRecorder interface {
	RecordStage(ev StageEvent) error
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) RecordRun(RunEvent) error            { return nil }
func (NopSink) RecordSchedule([]ScheduleHour) error { return nil }
func (NopSink) RecordStage(StageEvent) error        { return nil }
