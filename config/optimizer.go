package config

import (
	"fmt"
	"time"

	"github.com/kilianp07/agriwater/core/factory"
	"github.com/kilianp07/agriwater/core/milp"
	"github.com/kilianp07/agriwater/core/model"
	"github.com/kilianp07/agriwater/core/schedule"
	"github.com/kilianp07/agriwater/infra/solver"
)

// DefaultHorizon is the planning horizon in hours.
const DefaultHorizon = 24

// OptimizerConfig drives one optimization run.
type OptimizerConfig struct {
	Horizon          int     `json:"horizon"`
	StartHour        int     `json:"start_hour"`
	TimeLimitSeconds float64 `json:"time_limit_seconds"`
	// RequireOptimal fails runs whose incumbent was not proven optimal.
	RequireOptimal bool                 `json:"require_optimal"`
	SkipWarmStart  bool                 `json:"skip_warm_start"`
	Solver         factory.ModuleConfig `json:"solver"`
	Policy         schedule.Policy      `json:"policy"`
}

func (c *OptimizerConfig) SetDefaults() {
	if c.Horizon == 0 {
		c.Horizon = DefaultHorizon
	}
	if c.TimeLimitSeconds == 0 {
		c.TimeLimitSeconds = milp.DefaultTimeLimit.Seconds()
	}
	if c.Solver.Type == "" {
		c.Solver.Type = solver.Name
	}
	c.Policy.SetDefaults()
}

func (c OptimizerConfig) Validate(fleet model.Fleet) error {
	if c.Horizon <= 0 {
		return fmt.Errorf("horizon must be positive")
	}
	if c.StartHour < 0 || c.StartHour > 23 {
		return fmt.Errorf("start_hour must be within 0..23")
	}
	if c.TimeLimitSeconds < 0 {
		return fmt.Errorf("time_limit_seconds must not be negative")
	}
	return c.Policy.Validate(fleet)
}

// TimeLimit is the solver wall-clock budget.
func (c OptimizerConfig) TimeLimit() time.Duration {
	return time.Duration(c.TimeLimitSeconds * float64(time.Second))
}

// Demand modes of the input section.
const (
	DemandProfile = "profile" // mean demand per hour of day
	DemandSeries  = "series"  // the feed hours in order
)

// InputConfig locates the historical pumping feed.
type InputConfig struct {
	Path       string `json:"path"`
	DemandMode string `json:"demand_mode"`
}

func (c *InputConfig) SetDefaults() {
	if c.Path == "" {
		c.Path = "data/irrigation_data.csv"
	}
	if c.DemandMode == "" {
		c.DemandMode = DemandProfile
	}
}

func (c InputConfig) Validate() error {
	if c.DemandMode != DemandProfile && c.DemandMode != DemandSeries {
		return fmt.Errorf("unknown demand_mode %s", c.DemandMode)
	}
	return nil
}

// OutputConfig is where run artefacts are written.
type OutputConfig struct {
	Dir string `json:"dir"`
}

func (c *OutputConfig) SetDefaults() {
	if c.Dir == "" {
		c.Dir = "results"
	}
}

func (c OutputConfig) Validate() error { return nil }

// GeneratorConfig parameterises the synthetic feed.
type GeneratorConfig struct {
	Start    string   `json:"start"` // YYYY-MM-DD
	Days     int      `json:"days"`
	Seed     uint64   `json:"seed"`
	LeakRate *float64 `json:"leak_rate"`
	Noise    *float64 `json:"noise"`
}

func (c *GeneratorConfig) SetDefaults() {
	if c.Start == "" {
		c.Start = "2026-01-01"
	}
	if c.Days == 0 {
		c.Days = 30
	}
	if c.Seed == 0 {
		c.Seed = 42
	}
}

func (c GeneratorConfig) Validate() error {
	if _, err := c.StartTime(); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	if c.Days <= 0 {
		return fmt.Errorf("days must be positive")
	}
	return nil
}

// StartTime parses Start as a UTC date.
func (c GeneratorConfig) StartTime() (time.Time, error) {
	return time.Parse(time.DateOnly, c.Start)
}
