package optimizer

import (
	"time"

	"github.com/kilianp07/agriwater/core/milp"
)

// Stage names a pipeline step.
type Stage string

const (
	StageFormulated Stage = "formulated"
	StageSolved     Stage = "solved"
	StageExtracted  Stage = "extracted"
	StageCompared   Stage = "compared"
	StageFailed     Stage = "failed"
)

// Event reports progress of a run. Elapsed is the time spent in the stage.
type Event struct {
	RunID   string
	Stage   Stage
	Time    time.Time
	Elapsed time.Duration
	Status  milp.Status
	Message string
}
