package scenarios

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/kilianp07/agriwater/core/model"
	"github.com/kilianp07/agriwater/core/schedule"
	"github.com/kilianp07/agriwater/simulator"
)

func TestScenario(t *testing.T) {
	files, err := filepath.Glob("*.yaml")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("no scenarios found")
	}
	for _, f := range files {
		sc, err := Load(f)
		if err != nil {
			t.Fatalf("load %s: %v", f, err)
		}
		t.Run(sc.Name, func(t *testing.T) {
			RunScenario(t, sc)
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sc.yaml")
	data := []byte("name: x\ndemand: [1, 2, 3]\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	sc, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if sc.Horizon != 3 {
		t.Errorf("expected horizon 3, got %d", sc.Horizon)
	}
	if len(sc.Fleet()) != 3 {
		t.Errorf("expected default fleet, got %d pumps", len(sc.Fleet()))
	}
	pol := sc.Policy.ToModel()
	if pol.MaxStartupsPerDay == nil || pol.StartupWindowHours == 0 {
		t.Errorf("policy defaults not applied: %+v", pol)
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestReferenceCost(t *testing.T) {
	fleet, tariff := model.DefaultFleet(), model.DefaultTariff()
	pol := schedule.DefaultPolicy()

	cost, ok, err := ReferenceCost(fleet, tariff, model.DemandForecast{0, 0, 0, 0, 0, 120}, 0, pol)
	if err != nil || !ok {
		t.Fatalf("reference: ok=%v err=%v", ok, err)
	}
	if math.Abs(cost-(125*75+3*5000)) > epsilon {
		t.Errorf("expected 24375, got %.2f", cost)
	}

	pol.InitialState = map[string]bool{"P1": true, "P2": true, "P3": true}
	cost, _, _ = ReferenceCost(fleet, tariff, model.DemandForecast{120}, 0, pol)
	if math.Abs(cost-125*75) > epsilon {
		t.Errorf("running pumps restart for free: got %.2f", cost)
	}

	pol.InitialState = nil
	pol.MaxSimultaneousPumps = 1
	if _, ok, _ := ReferenceCost(fleet, tariff, model.DemandForecast{100}, 0, pol); ok {
		t.Error("one pump cannot serve 100 m³/h")
	}

	pol = schedule.DefaultPolicy()
	pol.MinRuntimeHours = 3
	if _, _, err := ReferenceCost(fleet, tariff, model.DemandForecast{10}, 0, pol); err == nil {
		t.Error("expected min runtime to be rejected")
	}
}

// Generated days follow the demo feed: noisy demand, clipped to what the
// farm can pump.
func TestGeneratedDaysMatchReference(t *testing.T) {
	cfg := simulator.DefaultConfig()
	cfg.Days = 3
	gen, err := simulator.New(cfg)
	if err != nil {
		t.Fatalf("generator: %v", err)
	}
	_, demand := gen.Demand()
	capacity := model.DefaultFleet().TotalCapacity()
	for day := 0; day < cfg.Days; day++ {
		d := make([]float64, 24)
		for h := range d {
			d[h] = math.Min(demand[day*24+h], capacity)
		}
		sc := &Scenario{
			Name:     fmt.Sprintf("generated_day_%d", day),
			Demand:   d,
			Horizon:  24,
			Expected: Expected{Status: "Optimal", MatchReference: true},
		}
		t.Run(sc.Name, func(t *testing.T) {
			RunScenario(t, sc)
		})
	}
}
