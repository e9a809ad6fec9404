package schedule

import (
	"fmt"

	"github.com/kilianp07/agriwater/core/model"
)

const (
	// DefaultMaxStartups is the per-pump start budget of one window.
	DefaultMaxStartups = 8
	// DefaultStartupWindow is the length in hours of a start budget window.
	DefaultStartupWindow = 24
)

// Names of the optional constraints reported by Policy.ActiveOptional.
const (
	OptionalMinRuntime      = "min_runtime"
	OptionalMaxSimultaneous = "max_simultaneous_pumps"
)

// Policy selects the operational constraints added to the model. The start
// budget is always enforced; MinRuntimeHours and MaxSimultaneousPumps are
// optional and disabled at zero.
type Policy struct {
	// MaxStartupsPerDay is the per-pump start budget of one window. Nil takes
	// DefaultMaxStartups; zero forbids every counted start.
	MaxStartupsPerDay  *int `json:"max_startups_per_day,omitempty"`
	StartupWindowHours int  `json:"startup_window_hours"`
	// MinRuntimeHours keeps a started pump running for at least that many
	// hours, clipped at the end of the horizon.
	MinRuntimeHours int `json:"min_runtime_hours"`
	// MaxSimultaneousPumps caps the pumps running in any hour.
	MaxSimultaneousPumps int `json:"max_simultaneous_pumps"`
	// InitialState is the on/off state of pumps in the hour preceding the
	// horizon. Pumps absent from the map have an unconstrained first hour.
	InitialState map[string]bool `json:"initial_state,omitempty"`
}

// DefaultPolicy returns the start budget alone.
func DefaultPolicy() Policy {
	p := Policy{}
	p.SetDefaults()
	return p
}

// SetDefaults fills the start budget fields.
func (p *Policy) SetDefaults() {
	if p.MaxStartupsPerDay == nil {
		n := DefaultMaxStartups
		p.MaxStartupsPerDay = &n
	}
	if p.StartupWindowHours == 0 {
		p.StartupWindowHours = DefaultStartupWindow
	}
}

// Validate checks the policy against the fleet it will be applied to.
func (p Policy) Validate(fleet model.Fleet) error {
	if p.StartBudget() < 0 {
		return fmt.Errorf("%w: max_startups_per_day must be >= 0", model.ErrInvalid)
	}
	if p.StartupWindowHours < 0 {
		return fmt.Errorf("%w: startup_window_hours must be >= 0", model.ErrInvalid)
	}
	if p.MinRuntimeHours < 0 {
		return fmt.Errorf("%w: min_runtime_hours must be >= 0", model.ErrInvalid)
	}
	if p.MaxSimultaneousPumps < 0 || p.MaxSimultaneousPumps > len(fleet) {
		return fmt.Errorf("%w: max_simultaneous_pumps must be within [0,%d]", model.ErrInvalid, len(fleet))
	}
	for id := range p.InitialState {
		if fleet.Index(id) < 0 {
			return fmt.Errorf("%w: initial state for unknown pump %s", model.ErrInvalid, id)
		}
	}
	return nil
}

// StartBudget is the per-pump start budget of one window.
func (p Policy) StartBudget() int {
	if p.MaxStartupsPerDay == nil {
		return DefaultMaxStartups
	}
	return *p.MaxStartupsPerDay
}

// ActiveOptional lists the enabled optional constraints.
func (p Policy) ActiveOptional() []string {
	var names []string
	if p.MinRuntimeHours > 1 {
		names = append(names, OptionalMinRuntime)
	}
	if p.MaxSimultaneousPumps > 0 {
		names = append(names, OptionalMaxSimultaneous)
	}
	return names
}

// budgetWindows returns the [start,end) hour ranges of the start budget rows.
func (p Policy) budgetWindows(horizon int) [][2]int {
	w := p.StartupWindowHours
	if w <= 0 || w >= horizon {
		return [][2]int{{0, horizon}}
	}
	out := make([][2]int, 0, horizon-w+1)
	for s := 0; s+w <= horizon; s++ {
		out = append(out, [2]int{s, s + w})
	}
	return out
}
