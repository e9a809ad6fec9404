package scenarios

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/agriwater/core/model"
	"github.com/kilianp07/agriwater/core/optimizer"
	"github.com/kilianp07/agriwater/infra/logger"
	"github.com/kilianp07/agriwater/infra/metrics"
	"github.com/kilianp07/agriwater/infra/solver"
	"github.com/kilianp07/agriwater/internal/eventbus"
)

const (
	epsilon   = 1e-6
	timeLimit = 20 * time.Second
)

// RunScenario solves sc with the default tariff and checks sc.Expected.
func RunScenario(t *testing.T, sc *Scenario) {
	reg := prometheus.NewRegistry()
	sink, err := metrics.NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("prom sink: %v", err)
	}
	s, err := solver.New(solver.Config{})
	if err != nil {
		t.Fatalf("solver: %v", err)
	}
	bus := eventbus.New[optimizer.Event](eventbus.WithBuffer(16))
	defer bus.Close()

	opt := optimizer.New(s, sink, bus, logger.NewZerologLogger("scenarios"))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	res, err := opt.Run(ctx, optimizer.Request{
		RunID:     sc.Name,
		Fleet:     sc.Fleet(),
		Tariff:    model.DefaultTariff(),
		Demand:    sc.Demand,
		Horizon:   sc.Horizon,
		StartHour: sc.StartHour,
		Policy:    sc.Policy.ToModel(),
		TimeLimit: timeLimit,
	})

	exp := sc.Expected
	if exp.Failure != "" {
		fail, ok := optimizer.AsFailure(err)
		if !ok {
			t.Fatalf("expected %s failure, got result %v err %v", exp.Failure, res, err)
		}
		if fail.Code() != exp.Failure {
			t.Fatalf("expected %s failure, got %s: %v", exp.Failure, fail.Code(), fail)
		}
		return
	}
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	sched := res.Schedule
	if exp.Status != "" && sched.Status.String() != exp.Status {
		t.Errorf("expected status %s, got %s", exp.Status, sched.Status)
	}
	if exp.MaxTotalCost != nil && sched.Totals.TotalCost > *exp.MaxTotalCost+epsilon {
		t.Errorf("total cost %.2f above %.2f", sched.Totals.TotalCost, *exp.MaxTotalCost)
	}
	if exp.Startups != nil && sched.Totals.Startups != *exp.Startups {
		t.Errorf("expected %d startups, got %d", *exp.Startups, sched.Totals.Startups)
	}
	if sched.SolveTime >= timeLimit {
		t.Errorf("solve took %s, limit %s", sched.SolveTime, timeLimit)
	}
	if exp.MatchReference {
		want, ok, err := ReferenceCost(sc.Fleet(), model.DefaultTariff(), sc.Demand[:sched.Horizon()], sc.StartHour, sc.Policy.ToModel())
		if err != nil || !ok {
			t.Fatalf("reference: ok=%v err=%v", ok, err)
		}
		if math.Abs(sched.Objective-want) > epsilon*math.Max(1, want) {
			t.Errorf("objective %.4f, reference %.4f", sched.Objective, want)
		}
	}
	for i, h := range sched.Hours {
		if h.Capacity+epsilon < sc.Demand[i] {
			t.Errorf("hour %d: capacity %.2f below demand %.2f", h.Hour, h.Capacity, sc.Demand[i])
		}
		if exp.MaxActive > 0 && len(h.ActivePumps) > exp.MaxActive {
			t.Errorf("hour %d: %d pumps active, want at most %d", h.Hour, len(h.ActivePumps), exp.MaxActive)
		}
	}
}
