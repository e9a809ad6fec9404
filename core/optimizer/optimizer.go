// Package optimizer runs the scheduling pipeline: formulate, solve, extract
// and compare against the baseline.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/agriwater/core/evaluate"
	"github.com/kilianp07/agriwater/core/logger"
	"github.com/kilianp07/agriwater/core/metrics"
	"github.com/kilianp07/agriwater/core/milp"
	"github.com/kilianp07/agriwater/core/model"
	"github.com/kilianp07/agriwater/core/schedule"
	"github.com/kilianp07/agriwater/internal/eventbus"
)

// Request is one optimization job. Inputs are not modified.
type Request struct {
	// RunID identifies the run; a UUID is generated when empty.
	RunID     string
	Fleet     model.Fleet
	Tariff    model.TariffSchedule
	Demand    model.DemandForecast
	Baseline  []model.BaselineHour
	Horizon   int
	StartHour int
	Policy    schedule.Policy
	TimeLimit time.Duration
	// RequireOptimal turns an incumbent that was not proven optimal into an
	// ErrTimeLimited failure. By default it is returned with a warning.
	RequireOptimal bool
	// SkipWarmStart solves without a heuristic starting incumbent.
	SkipWarmStart bool
}

// Result is a successful run. Comparison is nil without a baseline.
type Result struct {
	RunID      string               `json:"run_id"`
	Schedule   *schedule.Schedule   `json:"schedule"`
	Comparison *evaluate.Comparison `json:"comparison,omitempty"`
	Warnings   []string             `json:"warnings,omitempty"`
	Nodes      int                  `json:"nodes"`
	StartedAt  time.Time            `json:"started_at"`
}

// Optimizer holds no per-run state; Run may be called concurrently.
type Optimizer struct {
	solver milp.Solver
	sink   metrics.MetricsSink
	bus    eventbus.Publisher[Event]
	log    logger.Logger
	now    func() time.Time
}

// New wires an optimizer. sink, bus and log may be nil.
func New(solver milp.Solver, sink metrics.MetricsSink, bus eventbus.Publisher[Event], log logger.Logger) *Optimizer {
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Optimizer{solver: solver, sink: sink, bus: bus, log: logger.OrNop(log), now: time.Now}
}

// Run executes the pipeline. On failure the error is a *Failure and the
// result is nil.
func (o *Optimizer) Run(ctx context.Context, req Request) (*Result, error) {
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	started := o.now()
	res, fail := o.run(ctx, req, started)
	if fail != nil {
		o.publish(Event{RunID: req.RunID, Stage: StageFailed, Status: fail.Status, Message: fail.Error()})
		o.recordFailure(req, fail, started)
		return nil, fail
	}
	o.recordSuccess(req, res)
	return res, nil
}

func (o *Optimizer) run(ctx context.Context, req Request, started time.Time) (*Result, *Failure) {
	fail := func(kind error, status milp.Status, format string, args ...any) *Failure {
		return &Failure{RunID: req.RunID, Kind: kind, Status: status, Reason: fmt.Sprintf(format, args...)}
	}
	if o.solver == nil {
		return nil, fail(ErrSolver, milp.StatusError, "no solver configured")
	}

	stage := o.now()
	f, err := schedule.Formulate(schedule.Input{
		Fleet:     req.Fleet,
		Tariff:    req.Tariff,
		Demand:    req.Demand,
		Horizon:   req.Horizon,
		StartHour: req.StartHour,
		Policy:    req.Policy,
	}, o.log)
	if err != nil {
		return nil, fail(ErrInvalidInput, milp.StatusError, "%v", err)
	}
	if !req.SkipWarmStart && !schedule.WarmStart(f) {
		o.log.Debugf("run %s: no covering warm start", req.RunID)
	}
	o.publish(Event{RunID: req.RunID, Stage: StageFormulated, Elapsed: o.since(stage),
		Message: fmt.Sprintf("%d variables, %d constraints", len(f.Problem.Vars), len(f.Problem.Constraints))})

	stage = o.now()
	opts := milp.Options{TimeLimit: req.TimeLimit}
	sol, err := o.solver.Solve(ctx, f.Problem, opts)
	if err != nil {
		o.log.Errorf("run %s: solver rejected the problem: %v", req.RunID, err)
		return nil, fail(ErrSolver, milp.StatusError, "%v", err)
	}
	o.publish(Event{RunID: req.RunID, Stage: StageSolved, Elapsed: o.since(stage), Status: sol.Status, Message: sol.Message})
	o.log.Infow("solve finished", map[string]any{
		"run_id":    req.RunID,
		"status":    sol.Status.String(),
		"objective": sol.Objective,
		"bound":     sol.Bound,
		"nodes":     sol.Nodes,
		"elapsed":   sol.SolveTime.String(),
	})

	warnings := append([]string(nil), f.Warnings...)
	switch sol.Status {
	case milp.StatusOptimal:
	case milp.StatusFeasible:
		if req.RequireOptimal {
			return nil, fail(ErrTimeLimited, sol.Status, "solution not proven optimal (%s)", sol.Message)
		}
		warnings = append(warnings, feasibleWarning(sol))
	case milp.StatusInfeasible:
		return nil, fail(ErrInfeasible, sol.Status, "%s", infeasibleReason(f))
	case milp.StatusUnbounded:
		o.log.Errorf("run %s: unbounded model indicates a formulation defect", req.RunID)
		return nil, fail(ErrUnbounded, sol.Status, "model is unbounded: %s", sol.Message)
	default:
		if sol.SolveTime >= opts.Limit() || strings.Contains(sol.Message, "time limit") {
			return nil, fail(ErrTimeLimited, sol.Status, "%s", sol.Message)
		}
		return nil, fail(ErrSolver, sol.Status, "%s", sol.Message)
	}

	stage = o.now()
	sched, err := schedule.Extract(f, sol)
	if err != nil {
		return nil, fail(ErrSolver, sol.Status, "%v", err)
	}
	o.publish(Event{RunID: req.RunID, Stage: StageExtracted, Elapsed: o.since(stage), Status: sol.Status})

	out := &Result{RunID: req.RunID, Schedule: sched, Nodes: sol.Nodes, StartedAt: started}
	if len(req.Baseline) > 0 {
		stage = o.now()
		cmp, err := evaluate.Compare(sched, req.Baseline)
		if err != nil {
			return nil, fail(ErrInvalidInput, sol.Status, "%v", err)
		}
		out.Comparison = cmp
		warnings = append(warnings, cmp.Warnings...)
		o.publish(Event{RunID: req.RunID, Stage: StageCompared, Elapsed: o.since(stage), Status: sol.Status})
	}
	for _, w := range warnings {
		o.log.Warnf("run %s: %s", req.RunID, w)
	}
	out.Warnings = warnings
	return out, nil
}

func feasibleWarning(sol milp.Result) string {
	msg := "schedule is feasible but not proven optimal"
	if sol.Message != "" {
		msg += ": " + sol.Message
	}
	if gap := sol.Gap(); !math.IsInf(gap, 1) && !strings.Contains(sol.Message, "gap") {
		msg += fmt.Sprintf(" (gap %.4f%%)", 100*gap)
	}
	return msg
}

func infeasibleReason(f *schedule.Formulation) string {
	var reasons []string
	if peak, capacity := f.Demand.Peak(f.Horizon), f.Fleet.TotalCapacity(); peak > capacity {
		reasons = append(reasons, fmt.Sprintf("peak demand %.2f m³/h exceeds fleet capacity %.2f m³/h", peak, capacity))
	}
	if len(f.Optional) > 0 {
		reasons = append(reasons, "optional constraints enabled: "+strings.Join(f.Optional, ", "))
	}
	if len(reasons) == 0 {
		return "no schedule satisfies the constraints"
	}
	return strings.Join(reasons, "; ")
}

func (o *Optimizer) since(t time.Time) time.Duration { return o.now().Sub(t) }

func (o *Optimizer) publish(ev Event) {
	if o.bus == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = o.now()
	}
	o.bus.Publish(ev)
}

func (o *Optimizer) recordSuccess(req Request, res *Result) {
	s := res.Schedule
	ev := metrics.RunEvent{
		RunID:       res.RunID,
		Status:      s.Status.String(),
		Horizon:     s.Horizon(),
		Pumps:       len(req.Fleet),
		Objective:   s.Objective,
		TotalCost:   s.Totals.TotalCost,
		EnergyKWh:   s.Totals.TotalEnergy,
		Penalty:     s.Totals.TotalPenalty,
		StartupCost: s.Totals.StartupCost,
		Startups:    s.Totals.Startups,
		SolveTime:   s.SolveTime,
		Nodes:       res.Nodes,
		Time:        res.StartedAt,
	}
	if c := res.Comparison; c != nil {
		ev.Savings = c.Savings.Cost
		ev.SavingsPct = c.Savings.CostPct
	}
	if err := o.sink.RecordRun(ev); err != nil {
		o.log.Warnf("run %s: record metrics: %v", res.RunID, err)
	}
	rec, ok := o.sink.(metrics.ScheduleRecorder)
	if !ok {
		return
	}
	hours := make([]metrics.ScheduleHour, len(s.Hours))
	for i, h := range s.Hours {
		hours[i] = metrics.ScheduleHour{
			RunID:       res.RunID,
			Hour:        h.Hour,
			HourOfDay:   h.HourOfDay,
			Demand:      h.Demand,
			Capacity:    h.Capacity,
			PowerKW:     h.TotalPower,
			Cost:        h.TotalCost,
			Penalty:     h.Penalty,
			ActivePumps: len(h.ActivePumps),
			Peak:        h.Peak,
			Time:        res.StartedAt.Add(time.Duration(h.Hour) * time.Hour),
		}
	}
	if err := rec.RecordSchedule(hours); err != nil {
		o.log.Warnf("run %s: record schedule: %v", res.RunID, err)
	}
}

func (o *Optimizer) recordFailure(req Request, f *Failure, started time.Time) {
	ev := metrics.RunEvent{
		RunID:   f.RunID,
		Status:  f.Status.String(),
		Failure: f.Code(),
		Horizon: req.Horizon,
		Pumps:   len(req.Fleet),
		Time:    started,
	}
	if err := o.sink.RecordRun(ev); err != nil {
		o.log.Warnf("run %s: record metrics: %v", f.RunID, err)
	}
	if errors.Is(f, ErrUnbounded) {
		o.log.Errorf("%v", f)
		return
	}
	o.log.Warnf("%v", f)
}
