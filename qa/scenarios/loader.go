package scenarios

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/agriwater/core/model"
	"github.com/kilianp07/agriwater/core/schedule"
)

type PumpDef struct {
	ID          string   `yaml:"id"`
	Capacity    float64  `yaml:"capacity_m3h"`
	PowerDraw   float64  `yaml:"power_kw"`
	StartupCost *float64 `yaml:"startup_cost,omitempty"`
}

func (p PumpDef) ToModel() model.Pump {
	return model.Pump{
		ID:          p.ID,
		Capacity:    p.Capacity,
		PowerDraw:   p.PowerDraw,
		StartupCost: p.StartupCost,
	}
}

type PolicyDef struct {
	MaxStartups     *int            `yaml:"max_startups_per_day,omitempty"`
	WindowHours     int             `yaml:"startup_window_hours"`
	MinRuntime      int             `yaml:"min_runtime_hours"`
	MaxSimultaneous int             `yaml:"max_simultaneous_pumps"`
	InitialState    map[string]bool `yaml:"initial_state,omitempty"`
}

func (p PolicyDef) ToModel() schedule.Policy {
	pol := schedule.Policy{
		MaxStartupsPerDay:    p.MaxStartups,
		StartupWindowHours:   p.WindowHours,
		MinRuntimeHours:      p.MinRuntime,
		MaxSimultaneousPumps: p.MaxSimultaneous,
		InitialState:         p.InitialState,
	}
	pol.SetDefaults()
	return pol
}

// Expected describes the outcome checked by RunScenario. Failure is a
// failure code such as "infeasible"; an empty Failure expects a schedule.
// MatchReference compares the objective with ReferenceCost.
type Expected struct {
	Failure        string   `yaml:"failure,omitempty"`
	Status         string   `yaml:"status,omitempty"`
	MaxTotalCost   *float64 `yaml:"max_total_cost,omitempty"`
	MaxActive      int      `yaml:"max_active,omitempty"`
	Startups       *int     `yaml:"startups,omitempty"`
	MatchReference bool     `yaml:"match_reference,omitempty"`
}

type Scenario struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description,omitempty"`
	Pumps       []PumpDef `yaml:"pumps,omitempty"`
	Demand      []float64 `yaml:"demand"`
	Horizon     int       `yaml:"horizon,omitempty"`
	StartHour   int       `yaml:"start_hour,omitempty"`
	Policy      PolicyDef `yaml:"policy"`
	Expected    Expected  `yaml:"expected"`
}

// Fleet returns the scenario pumps, or the default farm when none are listed.
func (s *Scenario) Fleet() model.Fleet {
	if len(s.Pumps) == 0 {
		return model.DefaultFleet()
	}
	fleet := make(model.Fleet, len(s.Pumps))
	for i, p := range s.Pumps {
		fleet[i] = p.ToModel()
	}
	return fleet
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	if sc.Horizon == 0 {
		sc.Horizon = len(sc.Demand)
	}
	return &sc, nil
}
