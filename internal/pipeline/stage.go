package pipeline

import "context"

// Status is the terminal state of one stage execution.
type Status string

const (
	// StatusSucceeded means the stage ran and produced its outputs.
	StatusSucceeded Status = "succeeded"
	// StatusFailed means the stage ran and reported an error.
	StatusFailed Status = "failed"
	// StatusSkipped means the stage found its outputs already present and
	// did no work.
	StatusSkipped Status = "skipped"
)

// Request carries everything a stage needs for one execution.
type Request struct {
	// RunID identifies the pipeline run the stage belongs to.
	RunID string
	// Params holds stage-specific settings from the pipeline definition.
	Params map[string]any
	// Context is the shared run context. Stages read upstream artifacts
	// from it; outputs are returned in Result and merged by the
	// orchestrator, never written directly.
	Context *Context
}

// Result reports the outcome of one stage execution.
type Result struct {
	Status Status
	// Detail is a short human-readable note, shown in the run summary.
	Detail string
	// Outputs are the namespaced artifacts the stage produced. On success
	// or skip the orchestrator merges them into the run context; on
	// failure they are surfaced in the report only.
	Outputs map[string]any
}

// Stage is the contract every pipeline stage implements.
type Stage interface {
	// Name returns the registry name of the stage.
	Name() string
	// Validate checks preconditions without side effects and returns a
	// human-readable problem per unmet precondition. An empty slice means
	// the stage is ready to run.
	Validate(ctx context.Context, req Request) []string
	// Run executes the stage. A non-nil error implies Result.Status is
	// StatusFailed; partial outputs may still be returned for reporting.
	Run(ctx context.Context, req Request) (Result, error)
}

// Resolver maps stage names from a pipeline definition to implementations.
// The component registry satisfies it.
type Resolver interface {
	Stage(name string) (Stage, error)
}
