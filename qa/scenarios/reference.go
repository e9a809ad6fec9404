package scenarios

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/kilianp07/agriwater/core/model"
	"github.com/kilianp07/agriwater/core/schedule"
)

// ReferenceCost is the optimal objective of the scheduling problem found by
// dynamic programming over pump subsets and per-pump start counts. It
// handles one start budget window spanning the horizon and the
// simultaneous-pump cap; other policies are rejected. ok is false when no
// schedule exists.
func ReferenceCost(fleet model.Fleet, tariff model.TariffSchedule, demand model.DemandForecast, startHour int, pol schedule.Policy) (cost float64, ok bool, err error) {
	pol.SetDefaults()
	n := len(fleet)
	if n == 0 || n > 6 {
		return 0, false, fmt.Errorf("reference supports 1 to 6 pumps, got %d", n)
	}
	if pol.MinRuntimeHours > 1 {
		return 0, false, fmt.Errorf("reference does not model min runtime")
	}
	if pol.StartupWindowHours < len(demand) {
		return 0, false, fmt.Errorf("reference needs a start window of at least %d hours", len(demand))
	}

	budget := pol.StartBudget()
	base := budget + 1
	masks := 1 << n
	capacity := make([]float64, masks)
	power := make([]float64, masks)
	for m := 0; m < masks; m++ {
		for i, p := range fleet {
			if m&(1<<i) != 0 {
				capacity[m] += p.Capacity
				power[m] += p.PowerDraw
			}
		}
	}
	allowed := func(m, t int) bool {
		if pol.MaxSimultaneousPumps > 0 && bits.OnesCount(uint(m)) > pol.MaxSimultaneousPumps {
			return false
		}
		return capacity[m] >= demand[t]-1e-9
	}
	hourCost := func(m, t int) float64 {
		rate, _ := tariff.Rate((startHour + t) % 24)
		return rate*power[m] + tariff.Penalty(power[m])
	}

	// Pumps with an unknown initial state start for free in hour 0.
	known, initial := 0, 0
	for i, p := range fleet {
		if on, found := pol.InitialState[p.ID]; found {
			known |= 1 << i
			if on {
				initial |= 1 << i
			}
		}
	}

	type state struct{ mask, counts int }
	// step adds the starts of moving from prev to m to counts. It reports
	// false when a pump exceeds its budget.
	step := func(prev, m, counts, charged int) (int, float64, bool) {
		extra := 0.0
		started := m &^ prev & charged
		for i := 0; i < n; i++ {
			if started&(1<<i) == 0 {
				continue
			}
			digit := counts / pow(base, i) % base
			if digit == budget {
				return 0, 0, false
			}
			counts += pow(base, i)
			extra += fleet[i].StartCost(tariff)
		}
		return counts, extra, true
	}

	best := map[state]float64{}
	for m := 0; m < masks; m++ {
		if !allowed(m, 0) {
			continue
		}
		counts, extra, fits := step(initial, m, 0, known)
		if !fits {
			continue
		}
		relax(best, state{m, counts}, extra+hourCost(m, 0))
	}
	for t := 1; t < len(demand); t++ {
		next := map[state]float64{}
		for s, c := range best {
			for m := 0; m < masks; m++ {
				if !allowed(m, t) {
					continue
				}
				counts, extra, fits := step(s.mask, m, s.counts, masks-1)
				if !fits {
					continue
				}
				relax(next, state{m, counts}, c+extra+hourCost(m, t))
			}
		}
		best = next
	}
	if len(best) == 0 {
		return 0, false, nil
	}
	cost = math.Inf(1)
	for _, c := range best {
		cost = math.Min(cost, c)
	}
	return cost, true, nil
}

func relax[K comparable](m map[K]float64, k K, v float64) {
	if old, ok := m[k]; !ok || v < old {
		m[k] = v
	}
}

func pow(b, e int) int {
	r := 1
	for ; e > 0; e-- {
		r *= b
	}
	return r
}
