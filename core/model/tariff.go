package model

import (
	"fmt"
	"math"
)

// HourWindow is an inclusive range of hours of the day. Start may be
// greater than End for windows wrapping midnight.
type HourWindow struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Contains reports whether hour (0-23) falls inside the window.
func (w HourWindow) Contains(hour int) bool {
	if w.Start <= w.End {
		return hour >= w.Start && hour <= w.End
	}
	return hour >= w.Start || hour <= w.End
}

// DefaultPeakWindow is used when a tariff does not define one.
var DefaultPeakWindow = HourWindow{Start: 7, End: 22}

// TariffSchedule holds the electricity contract of the farm.
type TariffSchedule struct {
	PeakRate        float64 `json:"peak_rate"`        // currency per kWh
	OffPeakRate     float64 `json:"offpeak_rate"`     // currency per kWh
	SubscribedPower float64 `json:"subscribed_power"` // kW
	PenaltyRate     float64 `json:"penalty_rate"`     // currency per kW above contract
	StartupCost     float64 `json:"startup_cost"`     // currency per start event

	PeakWindow *HourWindow `json:"peak_window,omitempty"`
}

// DefaultTariff returns the contract of the reference farm.
func DefaultTariff() TariffSchedule {
	return TariffSchedule{
		PeakRate:        110,
		OffPeakRate:     75,
		SubscribedPower: 150,
		PenaltyRate:     200,
		StartupCost:     5000,
	}
}

// Validate checks rates and window bounds.
func (t TariffSchedule) Validate() error {
	checks := []struct {
		name     string
		v        float64
		positive bool
	}{
		{"peak_rate", t.PeakRate, true},
		{"offpeak_rate", t.OffPeakRate, true},
		{"subscribed_power", t.SubscribedPower, true},
		{"penalty_rate", t.PenaltyRate, false},
		{"startup_cost", t.StartupCost, false},
	}
	for _, c := range checks {
		if math.IsNaN(c.v) || math.IsInf(c.v, 0) {
			return fmt.Errorf("%w: tariff %s must be finite", ErrInvalid, c.name)
		}
		if c.positive && c.v <= 0 {
			return fmt.Errorf("%w: tariff %s must be positive", ErrInvalid, c.name)
		}
		if c.v < 0 {
			return fmt.Errorf("%w: tariff %s must not be negative", ErrInvalid, c.name)
		}
	}
	if w := t.PeakWindow; w != nil {
		if w.Start < 0 || w.Start > 23 || w.End < 0 || w.End > 23 {
			return fmt.Errorf("%w: peak window hours must be within 0-23", ErrInvalid)
		}
	}
	return nil
}

// IsPeak reports whether the hour of day is billed at the peak rate.
func (t TariffSchedule) IsPeak(hourOfDay int) bool {
	w := DefaultPeakWindow
	if t.PeakWindow != nil {
		w = *t.PeakWindow
	}
	return w.Contains(((hourOfDay % 24) + 24) % 24)
}

// Rate returns the energy price applying at hourOfDay.
func (t TariffSchedule) Rate(hourOfDay int) (rate float64, peak bool) {
	if t.IsPeak(hourOfDay) {
		return t.PeakRate, true
	}
	return t.OffPeakRate, false
}

// Penalty is the overage charge for drawing powerKW during one hour.
func (t TariffSchedule) Penalty(powerKW float64) float64 {
	over := powerKW - t.SubscribedPower
	if over <= 0 {
		return 0
	}
	return t.PenaltyRate * over
}
