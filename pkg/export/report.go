package export

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/kilianp07/agriwater/core/optimizer"
)

const rule = 70

// WriteSummary writes a plain-text report of a run.
func WriteSummary(w io.Writer, r *optimizer.Result) error {
	s := r.Schedule
	var b strings.Builder
	line := func(format string, args ...any) { fmt.Fprintf(&b, format+"\n", args...) }
	sep := func(c string) { b.WriteString(strings.Repeat(c, rule) + "\n") }

	sep("=")
	line("%s", center("IRRIGATION OPTIMIZATION REPORT"))
	line("%s", center("run "+r.RunID))
	sep("=")
	line("")
	line("SCHEDULE")
	sep("-")
	line("%-36s%15s", "Status:", s.Status)
	line("%-36s%15d h", "Horizon:", s.Horizon())
	line("%-36s%15s", "Total cost:", money(s.Totals.TotalCost))
	line("%-36s%15s", "Energy cost:", money(s.Totals.EnergyCost))
	line("%-36s%15s", "Penalties:", money(s.Totals.TotalPenalty))
	line("%-36s%15.1f kWh", "Energy:", s.Totals.TotalEnergy)
	line("%-36s%15d", "Pump starts:", s.Totals.Startups)
	line("%-36s%15s", "Start-up cost:", money(s.Totals.StartupCost))
	line("%-36s%15.2f s", "Solve time:", s.SolveTime.Seconds())

	starts := s.StartupsByPump()
	if len(starts) > 0 {
		ids := make([]string, 0, len(starts))
		for id := range starts {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			line("  %-34s%15d", id+" starts:", starts[id])
		}
	}

	if c := r.Comparison; c != nil {
		line("")
		line("FINANCIAL RESULTS (%d h window)", c.Window)
		sep("-")
		line("%-36s%15s", "Baseline cost:", money(c.Baseline.Cost))
		line("%-36s%15s", "Optimized cost:", money(c.Optimized.Cost))
		line("%-36s%15s", "", strings.Repeat("-", 15))
		line("%-36s%15s", "Savings:", money(c.Savings.Cost))
		line("%-36s%15.2f %%", "Reduction:", c.Savings.CostPct)
		line("%-36s%15.2f %%", "Energy reduction:", c.Savings.EnergyPct)
		line("%-36s%15.2f %%", "Penalty reduction:", c.Savings.PenaltyPct)
		line("")
		line("PROJECTIONS")
		sep("-")
		line("%-36s%15s", "Monthly savings:", money(c.MonthlyProjection))
		line("%-36s%15s", "Annual savings:", money(c.AnnualProjection))
	}

	if len(r.Warnings) > 0 {
		line("")
		line("WARNINGS")
		sep("-")
		for _, w := range r.Warnings {
			line("- %s", w)
		}
	}
	sep("=")
	_, err := io.WriteString(w, b.String())
	return err
}

func center(s string) string {
	if len(s) >= rule {
		return s
	}
	return strings.Repeat(" ", (rule-len(s))/2) + s
}

// money formats v with thousands separators and no decimals.
func money(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	digits := fmt.Sprintf("%.0f", v)
	var out []byte
	for i := range len(digits) {
		if i > 0 && (len(digits)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, digits[i])
	}
	if neg && digits != "0" {
		return "-" + string(out)
	}
	return string(out)
}
