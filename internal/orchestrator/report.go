package orchestrator

import (
	"time"

	"dima/internal/pipeline"
)

// State is the terminal state of a run.
type State string

const (
	// StateCompleted means every stage succeeded or skipped.
	StateCompleted State = "completed"
	// StateAborted means a stage failure stopped the run early.
	StateAborted State = "aborted"
	// StatePartiallyCompleted means failures occurred but the run reached
	// the end of the stage list.
	StatePartiallyCompleted State = "partially_completed"
)

// Exit codes for the run command.
const (
	ExitOK         = 0
	ExitAborted    = 1
	ExitDefinition = 2
	ExitPartial    = 3
)

// StageOutcome records one stage execution within a run.
type StageOutcome struct {
	Stage    string
	Status   pipeline.Status
	Detail   string
	Err      error
	Duration time.Duration
	// Outputs holds what the stage produced. For failed stages these are
	// partial artifacts surfaced for reporting only, never merged into
	// the run context.
	Outputs map[string]any
}

// Report summarizes a finished run.
type Report struct {
	RunID    string
	Pipeline string
	State    State
	Outcomes []StageOutcome
	Duration time.Duration
}

// FailedStages lists the stages that failed, in execution order.
func (r *Report) FailedStages() []string {
	var failed []string
	for _, outcome := range r.Outcomes {
		if outcome.Status == pipeline.StatusFailed {
			failed = append(failed, outcome.Stage)
		}
	}
	return failed
}

// ExitCode maps the run state to the process exit code.
func (r *Report) ExitCode() int {
	switch r.State {
	case StateCompleted:
		return ExitOK
	case StatePartiallyCompleted:
		return ExitPartial
	default:
		return ExitAborted
	}
}
