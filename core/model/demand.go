package model

import (
	"fmt"
	"math"
)

// DemandForecast is the hourly water demand in m³/h, one value per hour of
// the planning horizon.
type DemandForecast []float64

// Validate rejects negative or non-finite values.
func (d DemandForecast) Validate() error {
	for i, v := range d {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: demand at hour %d is not finite", ErrInvalid, i)
		}
		if v < 0 {
			return fmt.Errorf("%w: demand at hour %d is negative", ErrInvalid, i)
		}
	}
	return nil
}

// Truncate returns the usable horizon for a requested horizon. When the
// forecast is shorter the horizon shrinks to its length and truncated is
// true.
func (d DemandForecast) Truncate(horizon int) (effective int, truncated bool) {
	if len(d) < horizon {
		return len(d), true
	}
	return horizon, false
}

// Peak returns the highest hourly demand over the first n hours.
func (d DemandForecast) Peak(n int) float64 {
	if n > len(d) {
		n = len(d)
	}
	var peak float64
	for _, v := range d[:n] {
		if v > peak {
			peak = v
		}
	}
	return peak
}

// BaselineHour is the aggregated non-optimized pumping record of one hour.
type BaselineHour struct {
	Hour    int     `json:"hour"`
	Demand  float64 `json:"demand_m3h"`
	Energy  float64 `json:"energy_kwh"`
	Penalty float64 `json:"penalty"`
	Cost    float64 `json:"total_cost"`
}
