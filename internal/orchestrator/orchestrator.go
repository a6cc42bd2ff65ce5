package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"dima/internal/config"
	"dima/internal/logging"
	"dima/internal/notifications"
	"dima/internal/pipeline"
	"dima/internal/runstore"
	"dima/internal/services"
)

// Options wires the orchestrator's collaborators. Resolver is required;
// Store and Notifier are optional.
type Options struct {
	Config   *config.Config
	Logger   *slog.Logger
	Resolver pipeline.Resolver
	Store    *runstore.Store
	Notifier notifications.Service
}

// Orchestrator executes pipeline definitions stage by stage.
type Orchestrator struct {
	cfg      *config.Config
	logger   *slog.Logger
	resolver pipeline.Resolver
	store    *runstore.Store
	notifier notifications.Service
}

// New constructs an orchestrator.
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notifications.NewService(opts.Config)
	}
	return &Orchestrator{
		cfg:      opts.Config,
		logger:   logger.With(logging.String(logging.FieldComponent, "orchestrator")),
		resolver: opts.Resolver,
		store:    opts.Store,
		notifier: notifier,
	}
}

// resolvedStage pairs a definition entry with its implementation.
type resolvedStage struct {
	ref   config.StageRef
	stage pipeline.Stage
}

// resolveAll maps every enabled stage entry to its implementation. Any
// unresolvable entry is a definition error; nothing executes in that case.
func (o *Orchestrator) resolveAll(def *config.Pipeline) ([]resolvedStage, error) {
	var (
		resolved []resolvedStage
		missing  []string
	)
	for _, ref := range def.Stages {
		if !ref.StageEnabled() {
			continue
		}
		stage, err := o.resolver.Stage(ref.Name)
		if err != nil {
			missing = append(missing, ref.Name)
			continue
		}
		resolved = append(resolved, resolvedStage{ref: ref, stage: stage})
	}
	if len(missing) > 0 {
		return nil, services.Wrap(services.ErrOrchestration, "", "resolve",
			fmt.Sprintf("unknown stages: %s", strings.Join(missing, ", ")), nil)
	}
	if len(resolved) == 0 {
		return nil, services.Wrap(services.ErrOrchestration, "", "resolve", "pipeline has no enabled stages", nil)
	}
	return resolved, nil
}

// Run executes the definition against the given run context. The returned
// error is non-nil only for definition problems detected before any stage
// executed; execution failures are reported through the Report.
func (o *Orchestrator) Run(ctx context.Context, def *config.Pipeline, runCtx *pipeline.Context) (*Report, error) {
	resolved, err := o.resolveAll(def)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	runLogger := logging.WithContext(services.WithRunID(ctx, runID), o.logger)
	report := &Report{RunID: runID, Pipeline: pipelineLabel(def)}
	started := time.Now()

	if o.store != nil {
		if err := o.store.CreateRun(ctx, &runstore.Run{ID: runID, Pipeline: report.Pipeline}); err != nil {
			return nil, services.Wrap(services.ErrOrchestration, "", "persist", "create run record", err)
		}
	}
	if err := o.notifier.NotifyRunStarted(ctx, runID, report.Pipeline, len(resolved)); err != nil {
		runLogger.Debug("run start notification failed", logging.Error(err))
	}
	runLogger.Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.Int("stages", len(resolved)),
	)

	aborted := false
	for _, entry := range resolved {
		if ctx.Err() != nil {
			runLogger.Warn("run cancelled", logging.Error(ctx.Err()))
			aborted = true
			break
		}

		outcome := o.executeStage(ctx, runID, entry, runCtx, runLogger)
		report.Outcomes = append(report.Outcomes, outcome)
		o.recordOutcome(ctx, runID, outcome, runLogger)

		if outcome.Status == pipeline.StatusFailed && !def.StageContinueOnError(entry.ref) {
			aborted = true
			break
		}
	}

	report.Duration = time.Since(started)
	report.State = terminalState(report.Outcomes, aborted)

	if o.store != nil {
		message := ""
		if failed := report.FailedStages(); len(failed) > 0 {
			message = fmt.Sprintf("failed stages: %s", strings.Join(failed, ", "))
		}
		if err := o.store.FinishRun(ctx, runID, string(report.State), message); err != nil {
			runLogger.Error("failed to persist run state", logging.Error(err))
		}
	}
	if err := o.notifier.NotifyRunCompleted(ctx, runID, string(report.State), report.Duration); err != nil {
		runLogger.Debug("run completion notification failed", logging.Error(err))
	}
	runLogger.Info("run finished",
		logging.String(logging.FieldEventType, "run_finish"),
		logging.String("state", string(report.State)),
		logging.Duration("duration", report.Duration),
	)
	return report, nil
}

func (o *Orchestrator) executeStage(ctx context.Context, runID string, entry resolvedStage, runCtx *pipeline.Context, runLogger *slog.Logger) StageOutcome {
	name := entry.ref.Name
	stageLogger := runLogger.With(logging.String(logging.FieldStage, name))
	stageCtx := services.WithStage(ctx, name)
	if entry.ref.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(stageCtx, time.Duration(entry.ref.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	req := pipeline.Request{RunID: runID, Params: entry.ref.Params, Context: runCtx}
	started := time.Now()
	stageLogger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))

	if problems := entry.stage.Validate(stageCtx, req); len(problems) > 0 {
		err := services.Wrap(services.ErrValidation, name, "validate", strings.Join(problems, "; "), nil)
		stageLogger.Error("stage preconditions unmet",
			logging.String(logging.FieldEventType, "stage_failure"),
			logging.Error(err),
		)
		return StageOutcome{Stage: name, Status: pipeline.StatusFailed, Err: err, Duration: time.Since(started)}
	}

	// A failing stage must leave no trace in the shared context.
	snapshot := runCtx.Snapshot()

	result, err := entry.stage.Run(stageCtx, req)
	duration := time.Since(started)
	if err != nil {
		runCtx.Restore(snapshot)
		stageLogger.Error("stage failed",
			logging.String(logging.FieldEventType, "stage_failure"),
			logging.Duration("duration", duration),
			logging.Error(err),
		)
		return StageOutcome{
			Stage:    name,
			Status:   pipeline.StatusFailed,
			Detail:   result.Detail,
			Err:      err,
			Duration: duration,
			Outputs:  result.Outputs,
		}
	}

	if result.Status == "" {
		result.Status = pipeline.StatusSucceeded
	}
	if len(result.Outputs) > 0 {
		if mergeErr := mergeOutputs(runCtx, name, result.Outputs); mergeErr != nil {
			runCtx.Restore(snapshot)
			err := services.Wrap(services.ErrExecution, name, "merge outputs", "", mergeErr)
			return StageOutcome{Stage: name, Status: pipeline.StatusFailed, Err: err, Duration: duration}
		}
	}
	o.checkpoint(ctx, runID, name, runCtx, stageLogger)

	stageLogger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("status", string(result.Status)),
		logging.Duration("duration", duration),
	)
	return StageOutcome{
		Stage:    name,
		Status:   result.Status,
		Detail:   result.Detail,
		Duration: duration,
		Outputs:  result.Outputs,
	}
}

// mergeOutputs publishes a stage's outputs into the run context. A stage may
// overwrite only keys inside its own "<stage>." namespace, which is what
// skip republication and resumed runs need; writing over another stage's key
// fails the merge so nothing is clobbered silently.
func mergeOutputs(runCtx *pipeline.Context, stage string, outputs map[string]any) error {
	prefix := stage + "."
	for key := range outputs {
		if strings.HasPrefix(key, prefix) {
			continue
		}
		if _, exists := runCtx.Lookup(key); exists {
			return fmt.Errorf("%w: %s (owned by another stage)", pipeline.ErrKeyExists, key)
		}
	}
	return runCtx.Merge(outputs, true)
}

// checkpoint persists the merged context both to the workspace and the run
// store. Checkpoint trouble never fails the run.
func (o *Orchestrator) checkpoint(ctx context.Context, runID, stage string, runCtx *pipeline.Context, logger *slog.Logger) {
	if o.cfg != nil && o.cfg.Paths.CheckpointsDir != "" {
		path := o.contextCheckpointPath(runID)
		if err := runCtx.SaveFile(path); err != nil {
			logger.Warn("context checkpoint write failed", logging.Error(err))
		}
	}
	if o.store != nil {
		payload, err := contextPayload(runCtx)
		if err != nil {
			logger.Warn("context checkpoint encode failed", logging.Error(err))
			return
		}
		if err := o.store.SaveCheckpoint(ctx, runID, stage, payload); err != nil {
			logger.Warn("context checkpoint persist failed", logging.Error(err))
		}
	}
}

func (o *Orchestrator) contextCheckpointPath(runID string) string {
	return filepath.Join(o.cfg.Paths.CheckpointsDir, fmt.Sprintf("context_%s.json", runID))
}

func (o *Orchestrator) recordOutcome(ctx context.Context, runID string, outcome StageOutcome, logger *slog.Logger) {
	if o.store != nil {
		errMessage := ""
		if outcome.Err != nil {
			errMessage = outcome.Err.Error()
		}
		finished := time.Now().UTC()
		record := &runstore.StageResult{
			RunID:        runID,
			Stage:        outcome.Stage,
			Status:       string(outcome.Status),
			Detail:       outcome.Detail,
			ErrorMessage: errMessage,
			StartedAt:    finished.Add(-outcome.Duration),
			FinishedAt:   finished,
		}
		if err := o.store.RecordStageResult(ctx, record); err != nil {
			logger.Error("failed to persist stage result", logging.Error(err))
		}
	}

	switch outcome.Status {
	case pipeline.StatusFailed:
		if err := o.notifier.NotifyStageFailed(ctx, runID, outcome.Stage, outcome.Err); err != nil {
			logger.Debug("stage failure notification failed", logging.Error(err))
		}
	case pipeline.StatusSucceeded:
		if err := o.notifier.NotifyStageCompleted(ctx, runID, outcome.Stage, outcome.Detail); err != nil {
			logger.Debug("stage completion notification failed", logging.Error(err))
		}
	}
}

func terminalState(outcomes []StageOutcome, aborted bool) State {
	anyFailed := false
	for _, outcome := range outcomes {
		if outcome.Status == pipeline.StatusFailed {
			anyFailed = true
		}
	}
	switch {
	case aborted:
		return StateAborted
	case anyFailed:
		return StatePartiallyCompleted
	default:
		return StateCompleted
	}
}

func pipelineLabel(def *config.Pipeline) string {
	names := make([]string, 0, len(def.Stages))
	for _, ref := range def.Stages {
		if ref.StageEnabled() {
			names = append(names, ref.Name)
		}
	}
	return strings.Join(names, ",")
}

func contextPayload(runCtx *pipeline.Context) ([]byte, error) {
	return runCtx.MarshalJSON()
}
