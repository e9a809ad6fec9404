package simulator

import (
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/kilianp07/agriwater/core/model"
	"github.com/kilianp07/agriwater/infra/feed"
)

// MinDemand is the floor of every generated hourly demand in m³/h.
const MinDemand = 15

// Generator draws demand and the naive baseline operation from a seeded source.
type Generator struct {
	cfg Config
	src rand.Source
}

// New returns a generator. The same seed yields the same feed.
func New(cfg Config) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Generator{cfg: cfg, src: rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)}, nil
}

// BaseDemand is the noise-free irrigation demand at t: morning and evening
// sessions, a midday dip, a reduced Sunday, the season and crop-cycle peaks.
func BaseDemand(t time.Time) float64 {
	h := t.Hour()
	base := 50.0
	switch {
	case h >= 5 && h <= 8:
		base = 120
	case h >= 18 && h <= 21:
		base = 100
	case h >= 11 && h <= 15:
		base = 30
	case h >= 22 || h <= 4:
		base = 20
	}
	if t.Weekday() == time.Sunday {
		base *= 0.70
	}
	switch t.Month() {
	case time.November, time.December, time.January, time.February, time.March, time.April:
		base *= 1.35
	case time.June, time.July, time.August, time.September:
		base *= 0.60
	case time.May, time.October:
		base *= 0.85
	}
	if d := t.Day() % 7; d == 1 || d == 2 {
		base *= 1.20
	}
	return base
}

// Demand returns the hourly timestamps and demand of the configured period.
func (g *Generator) Demand() ([]time.Time, model.DemandForecast) {
	n := g.cfg.Days * 24
	ts := make([]time.Time, n)
	demand := make(model.DemandForecast, n)
	for i := range n {
		t := g.cfg.Start.Add(time.Duration(i) * time.Hour)
		base := BaseDemand(t)
		v := base
		if g.cfg.Noise > 0 {
			v += distuv.Normal{Mu: 0, Sigma: base * g.cfg.Noise, Src: g.src}.Rand()
		}
		ts[i] = t
		demand[i] = math.Max(MinDemand, v)
	}
	return ts, demand
}

// PumpPower is the draw of p delivering flow, degraded by efficiency and age.
// variance scales the result to model operating noise.
func PumpPower(flow float64, p model.Pump, variance float64) float64 {
	theoretical := flow / p.Capacity * p.PowerDraw
	age := 1 + p.AgeYears*0.02
	return theoretical / p.Efficiency * age * variance
}

// Baseline simulates the naive operation: pumps are switched on in fleet
// order until demand is met. One row is emitted per pump and hour.
func (g *Generator) Baseline(ts []time.Time, demand model.DemandForecast) []feed.Row {
	fleet, tariff := g.cfg.Fleet, g.cfg.Tariff
	variance := distuv.Uniform{Min: 0.95, Max: 1.05, Src: g.src}
	leakFactor := distuv.Uniform{Min: 1.08, Max: 1.20, Src: g.src}
	leakDraw := distuv.Uniform{Min: 0, Max: 1, Src: g.src}

	rows := make([]feed.Row, 0, len(ts)*len(fleet))
	for i, t := range ts {
		rate, peak := tariff.Rate(t.Hour())
		hourRows := make([]feed.Row, len(fleet))
		remaining := demand[i]
		var totalPower float64
		active := 0
		for j, p := range fleet {
			r := feed.Row{PumpID: p.ID}
			if remaining > 0 {
				r.On = true
				r.Flow = math.Min(p.Capacity, remaining)
				r.Power = PumpPower(r.Flow, p, variance.Rand())
				if leakDraw.Rand() < g.cfg.LeakRate {
					r.LeakDetected = true
					r.Power *= leakFactor.Rand()
				}
				remaining -= r.Flow
				totalPower += r.Power
				active++
			}
			hourRows[j] = r
		}
		penalty := tariff.Penalty(totalPower)
		for _, r := range hourRows {
			r.Timestamp = t
			r.Hour = t.Hour()
			r.DayOfWeek = (int(t.Weekday()) + 6) % 7
			r.Demand = demand[i]
			r.Tariff = rate
			r.Peak = peak
			r.EnergyCost = r.Power * rate
			if r.On && penalty > 0 {
				r.Penalty = penalty / float64(active)
			}
			r.TotalCost = r.EnergyCost + r.Penalty
			r.TotalPower = totalPower
			r.SubscribedPower = tariff.SubscribedPower
			r.PowerExceeded = totalPower > tariff.SubscribedPower
			rows = append(rows, r)
		}
	}
	return rows
}

// Generate produces a complete feed.
func (g *Generator) Generate() *feed.Feed {
	ts, demand := g.Demand()
	return &feed.Feed{Rows: g.Baseline(ts, demand)}
}
