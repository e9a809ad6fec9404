// Package simulator produces synthetic pumping feeds and plays the role of a
// downstream schedule consumer.
package simulator

import (
	"fmt"
	"time"

	"github.com/kilianp07/agriwater/core/model"
)

// Config holds parameters for feed generation.
type Config struct {
	Start    time.Time            `json:"start"`
	Days     int                  `json:"days"`
	Seed     uint64               `json:"seed"`
	LeakRate float64              `json:"leak_rate"`
	Noise    float64              `json:"noise"` // relative standard deviation of demand
	Fleet    model.Fleet          `json:"-"`
	Tariff   model.TariffSchedule `json:"-"`
}

// DefaultConfig is thirty days of the demo farm starting on 2026-01-01.
func DefaultConfig() Config {
	return Config{
		Start:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Days:     30,
		Seed:     42,
		LeakRate: 0.10,
		Noise:    0.12,
		Fleet:    model.DefaultFleet(),
		Tariff:   model.DefaultTariff(),
	}
}

// Validate checks the generation parameters.
func (c Config) Validate() error {
	if c.Days <= 0 {
		return fmt.Errorf("days must be positive")
	}
	if c.LeakRate < 0 || c.LeakRate > 1 {
		return fmt.Errorf("leak_rate must be within [0,1]")
	}
	if c.Noise < 0 {
		return fmt.Errorf("noise must not be negative")
	}
	if err := c.Fleet.Validate(); err != nil {
		return err
	}
	for _, p := range c.Fleet {
		if p.Efficiency <= 0 || p.Efficiency > 1 {
			return fmt.Errorf("pump %s: efficiency must be within (0,1]", p.ID)
		}
	}
	return c.Tariff.Validate()
}
