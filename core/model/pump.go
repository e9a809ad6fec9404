package model

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalid is wrapped by every validation error of the model package.
var ErrInvalid = errors.New("invalid model")

// Pump describes one irrigation pump of the farm.
type Pump struct {
	ID        string  `json:"id"`
	Capacity  float64 `json:"capacity_m3h"` // deliverable flow in m³/h
	PowerDraw float64 `json:"power_kw"`     // electrical draw in kW when running

	// Efficiency and AgeYears feed the baseline simulator; the optimizer
	// does not use them.
	Efficiency float64 `json:"efficiency,omitempty"`
	AgeYears   float64 `json:"age_years,omitempty"`

	// StartupCost overrides the tariff start-up cost for this pump.
	StartupCost *float64 `json:"startup_cost,omitempty"`
}

// Validate checks that the pump can take part in an optimization run.
func (p Pump) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: pump id is required", ErrInvalid)
	}
	if !(p.Capacity > 0) || math.IsInf(p.Capacity, 0) {
		return fmt.Errorf("%w: pump %s: capacity must be positive", ErrInvalid, p.ID)
	}
	if !(p.PowerDraw > 0) || math.IsInf(p.PowerDraw, 0) {
		return fmt.Errorf("%w: pump %s: power draw must be positive", ErrInvalid, p.ID)
	}
	if p.StartupCost != nil && (*p.StartupCost < 0 || math.IsNaN(*p.StartupCost)) {
		return fmt.Errorf("%w: pump %s: startup cost must not be negative", ErrInvalid, p.ID)
	}
	return nil
}

// StartCost returns the cost of one start of p under tariff t.
func (p Pump) StartCost(t TariffSchedule) float64 {
	if p.StartupCost != nil {
		return *p.StartupCost
	}
	return t.StartupCost
}

// Fleet is the ordered list of pumps available to the scheduler.
type Fleet []Pump

// Validate rejects empty fleets, duplicate identifiers and invalid pumps.
func (f Fleet) Validate() error {
	if len(f) == 0 {
		return fmt.Errorf("%w: fleet has no pumps", ErrInvalid)
	}
	seen := make(map[string]struct{}, len(f))
	for _, p := range f {
		if err := p.Validate(); err != nil {
			return err
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("%w: duplicate pump id %s", ErrInvalid, p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	return nil
}

// TotalCapacity is the flow delivered with every pump running.
func (f Fleet) TotalCapacity() float64 {
	var sum float64
	for _, p := range f {
		sum += p.Capacity
	}
	return sum
}

// TotalPower is the draw with every pump running.
func (f Fleet) TotalPower() float64 {
	var sum float64
	for _, p := range f {
		sum += p.PowerDraw
	}
	return sum
}

// Index returns the position of the pump with the given id or -1.
func (f Fleet) Index(id string) int {
	for i, p := range f {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// IDs returns the pump identifiers in fleet order.
func (f Fleet) IDs() []string {
	ids := make([]string, len(f))
	for i, p := range f {
		ids[i] = p.ID
	}
	return ids
}

// DefaultFleet returns the three-pump farm used by the demo configuration.
func DefaultFleet() Fleet {
	return Fleet{
		{ID: "P1", Capacity: 60, PowerDraw: 45, Efficiency: 0.75, AgeYears: 5},
		{ID: "P2", Capacity: 50, PowerDraw: 38, Efficiency: 0.72, AgeYears: 8},
		{ID: "P3", Capacity: 55, PowerDraw: 42, Efficiency: 0.73, AgeYears: 3},
	}
}
