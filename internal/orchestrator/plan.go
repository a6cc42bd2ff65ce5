package orchestrator

import (
	"context"
	"time"

	"dima/internal/config"
	"dima/internal/pipeline"
)

// PlannedStage describes one entry of the execution plan.
type PlannedStage struct {
	Name            string
	Enabled         bool
	ContinueOnError bool
	Timeout         time.Duration
	Params          map[string]any
}

// Plan resolves the definition without executing anything. Disabled stages
// appear in the plan for visibility; unresolvable enabled stages make the
// whole plan fail.
func (o *Orchestrator) Plan(def *config.Pipeline) ([]PlannedStage, error) {
	if _, err := o.resolveAll(def); err != nil {
		return nil, err
	}
	plan := make([]PlannedStage, 0, len(def.Stages))
	for _, ref := range def.Stages {
		plan = append(plan, PlannedStage{
			Name:            ref.Name,
			Enabled:         ref.StageEnabled(),
			ContinueOnError: def.StageContinueOnError(ref),
			Timeout:         time.Duration(ref.TimeoutSeconds) * time.Second,
			Params:          ref.Params,
		})
	}
	return plan, nil
}

// ValidationIssue is one unmet stage precondition found during a dry run.
type ValidationIssue struct {
	Stage   string
	Problem string
}

// DryRun resolves the definition and validates every enabled stage against
// the given context without executing anything. The definition error return
// mirrors Run; precondition problems come back as issues.
func (o *Orchestrator) DryRun(ctx context.Context, def *config.Pipeline, runCtx *pipeline.Context) ([]ValidationIssue, error) {
	resolved, err := o.resolveAll(def)
	if err != nil {
		return nil, err
	}
	if runCtx == nil {
		runCtx = pipeline.NewContext()
	}

	var issues []ValidationIssue
	for _, entry := range resolved {
		req := pipeline.Request{Params: entry.ref.Params, Context: runCtx}
		for _, problem := range entry.stage.Validate(ctx, req) {
			issues = append(issues, ValidationIssue{Stage: entry.ref.Name, Problem: problem})
		}
	}
	return issues, nil
}
