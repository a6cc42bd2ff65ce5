package runstore

import "time"

// Run states as persisted. The orchestrator owns the lifecycle; the store
// just records it.
const (
	StateRunning            = "running"
	StateCompleted          = "completed"
	StateAborted            = "aborted"
	StatePartiallyCompleted = "partially_completed"
)

// Run is one pipeline execution.
type Run struct {
	ID           string
	Pipeline     string
	State        string
	ErrorMessage string
	StartedAt    time.Time
	FinishedAt   *time.Time
}

// StageResult is one stage execution within a run.
type StageResult struct {
	ID           int64
	RunID        string
	Stage        string
	Status       string
	Detail       string
	ErrorMessage string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Duration returns the wall time the stage took.
func (r StageResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
