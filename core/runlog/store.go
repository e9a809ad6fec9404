// Package runlog keeps the history of optimization runs.
package runlog

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/agriwater/core/evaluate"
	"github.com/kilianp07/agriwater/core/optimizer"
	"github.com/kilianp07/agriwater/core/schedule"
)

// Record is one run, successful or not.
type Record struct {
	RunID      string               `json:"run_id"`
	Timestamp  time.Time            `json:"timestamp"`
	Status     string               `json:"status"`
	Failure    string               `json:"failure,omitempty"`
	Reason     string               `json:"reason,omitempty"`
	Horizon    int                  `json:"horizon"`
	Objective  float64              `json:"objective"`
	TotalCost  float64              `json:"total_cost"`
	Savings    float64              `json:"savings"`
	Warnings   []string             `json:"warnings,omitempty"`
	Schedule   *schedule.Schedule   `json:"schedule,omitempty"`
	Comparison *evaluate.Comparison `json:"comparison,omitempty"`
}

// FromResult builds the record of a successful run.
func FromResult(res *optimizer.Result) Record {
	r := Record{
		RunID:      res.RunID,
		Timestamp:  res.StartedAt,
		Status:     res.Schedule.Status.String(),
		Horizon:    res.Schedule.Horizon(),
		Objective:  res.Schedule.Objective,
		TotalCost:  res.Schedule.Totals.TotalCost,
		Warnings:   res.Warnings,
		Schedule:   res.Schedule,
		Comparison: res.Comparison,
	}
	if res.Comparison != nil {
		r.Savings = res.Comparison.Savings.Cost
	}
	return r
}

// FromFailure builds the record of a failed run.
func FromFailure(f *optimizer.Failure, horizon int, at time.Time) Record {
	return Record{
		RunID:     f.RunID,
		Timestamp: at,
		Status:    f.Status.String(),
		Failure:   f.Code(),
		Reason:    f.Reason,
		Horizon:   horizon,
	}
}

// Query filters records. Zero fields match everything. Limit keeps the most
// recent matches.
type Query struct {
	Start  time.Time
	End    time.Time
	Status string
	RunID  string
	Limit  int
}

func (q Query) match(r Record) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.Status != "" && r.Status != q.Status {
		return false
	}
	return q.RunID == "" || r.RunID == q.RunID
}

// Store persists records.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// Config selects the backend. An empty backend disables the run log.
type Config struct {
	Backend string `json:"backend"`
	Path    string `json:"path"`
}

// Validate checks the backend name and path.
func (c Config) Validate() error {
	switch c.Backend {
	case "":
		return nil
	case "jsonl", "sqlite":
		if c.Path == "" {
			return fmt.Errorf("run_log.path is required for backend %s", c.Backend)
		}
		return nil
	default:
		return fmt.Errorf("unknown run_log backend %q", c.Backend)
	}
}

// Open creates the configured store. It returns a nil Store when the run log
// is disabled.
func Open(c Config) (Store, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	var (
		st  Store
		err error
	)
	switch c.Backend {
	case "jsonl":
		st, err = NewJSONLStore(c.Path)
	case "sqlite":
		st, err = NewSQLiteStore(c.Path)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s run log: %w", c.Backend, err)
	}
	return st, nil
}

func keepLast(recs []Record, limit int) []Record {
	if limit > 0 && len(recs) > limit {
		return recs[len(recs)-limit:]
	}
	return recs
}
