package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"dima/internal/config"
	"dima/internal/pipeline"
	"dima/internal/runstore"
	"dima/internal/services"
)

// scriptedStage is a configurable fake pipeline stage.
type scriptedStage struct {
	name     string
	problems []string
	result   pipeline.Result
	err      error
	runs     *[]string
	runFunc  func(req pipeline.Request) (pipeline.Result, error)
}

func (s *scriptedStage) Name() string { return s.name }

func (s *scriptedStage) Validate(_ context.Context, _ pipeline.Request) []string {
	return s.problems
}

func (s *scriptedStage) Run(_ context.Context, req pipeline.Request) (pipeline.Result, error) {
	if s.runs != nil {
		*s.runs = append(*s.runs, s.name)
	}
	if s.runFunc != nil {
		return s.runFunc(req)
	}
	return s.result, s.err
}

// mapResolver resolves stages from a plain map.
type mapResolver map[string]pipeline.Stage

func (m mapResolver) Stage(name string) (pipeline.Stage, error) {
	stage, ok := m[name]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "", "resolve", name, nil)
	}
	return stage, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	dir := t.TempDir()
	cfg.Paths.WorkspaceDir = dir
	cfg.Paths.CheckpointsDir = filepath.Join(dir, "checkpoints")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	return &cfg
}

func stageRefs(names ...string) []config.StageRef {
	refs := make([]config.StageRef, 0, len(names))
	for _, name := range names {
		refs = append(refs, config.StageRef{Name: name})
	}
	return refs
}

func okStage(name string, runs *[]string, outputs map[string]any) *scriptedStage {
	return &scriptedStage{
		name:   name,
		runs:   runs,
		result: pipeline.Result{Status: pipeline.StatusSucceeded, Outputs: outputs},
	}
}

func failingStage(name string, runs *[]string, outputs map[string]any) *scriptedStage {
	return &scriptedStage{
		name:   name,
		runs:   runs,
		result: pipeline.Result{Status: pipeline.StatusFailed, Outputs: outputs},
		err:    services.Wrap(services.ErrExecution, name, "run", "boom", nil),
	}
}

func TestRunExecutesInDefinitionOrder(t *testing.T) {
	var runs []string
	resolver := mapResolver{
		"a": okStage("a", &runs, map[string]any{"a.out": 1}),
		"b": okStage("b", &runs, map[string]any{"b.out": 2}),
		"c": okStage("c", &runs, nil),
	}
	orch := New(Options{Config: testConfig(t), Resolver: resolver})

	runCtx := pipeline.NewContext()
	// Definition order deliberately differs from alphabetical.
	def := &config.Pipeline{Stages: stageRefs("b", "c", "a")}
	report, err := orch.Run(context.Background(), def, runCtx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.State != StateCompleted {
		t.Fatalf("state = %s", report.State)
	}
	if report.ExitCode() != ExitOK {
		t.Fatalf("exit = %d", report.ExitCode())
	}
	if len(runs) != 3 || runs[0] != "b" || runs[1] != "c" || runs[2] != "a" {
		t.Fatalf("execution order = %v", runs)
	}
	if runCtx.Get("a.out", nil) != 1 || runCtx.Get("b.out", nil) != 2 {
		t.Fatalf("outputs not merged: %v", runCtx.Keys())
	}
	if report.RunID == "" {
		t.Fatal("run id missing")
	}
}

func TestRunResolvesAllStagesBeforeExecuting(t *testing.T) {
	var runs []string
	resolver := mapResolver{"a": okStage("a", &runs, nil)}
	orch := New(Options{Config: testConfig(t), Resolver: resolver})

	def := &config.Pipeline{Stages: stageRefs("a", "ghost", "phantom")}
	_, err := orch.Run(context.Background(), def, pipeline.NewContext())
	if !errors.Is(err, services.ErrOrchestration) {
		t.Fatalf("expected ErrOrchestration, got %v", err)
	}
	if !services.IsDefinitionError(err) {
		t.Fatal("expected a definition error")
	}
	for _, name := range []string{"ghost", "phantom"} {
		if !errorContains(err, name) {
			t.Fatalf("error does not name %s: %v", name, err)
		}
	}
	if len(runs) != 0 {
		t.Fatalf("stages ran despite resolution failure: %v", runs)
	}
}

func TestRunAbortsOnFailureByDefault(t *testing.T) {
	var runs []string
	resolver := mapResolver{
		"a": okStage("a", &runs, nil),
		"b": failingStage("b", &runs, nil),
		"c": okStage("c", &runs, nil),
	}
	orch := New(Options{Config: testConfig(t), Resolver: resolver})

	def := &config.Pipeline{Stages: stageRefs("a", "b", "c")}
	report, err := orch.Run(context.Background(), def, pipeline.NewContext())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.State != StateAborted {
		t.Fatalf("state = %s", report.State)
	}
	if report.ExitCode() != ExitAborted {
		t.Fatalf("exit = %d", report.ExitCode())
	}
	if len(runs) != 2 {
		t.Fatalf("stages run = %v", runs)
	}
	if got := report.FailedStages(); len(got) != 1 || got[0] != "b" {
		t.Fatalf("failed stages = %v", got)
	}
	// Outcomes only cover stages that actually started.
	if len(report.Outcomes) != 2 {
		t.Fatalf("outcomes = %d", len(report.Outcomes))
	}
}

func TestRunContinueOnErrorYieldsPartialCompletion(t *testing.T) {
	var runs []string
	continueOn := true
	resolver := mapResolver{
		"a": failingStage("a", &runs, nil),
		"b": okStage("b", &runs, nil),
	}
	orch := New(Options{Config: testConfig(t), Resolver: resolver})

	def := &config.Pipeline{Stages: []config.StageRef{
		{Name: "a", ContinueOnError: &continueOn},
		{Name: "b"},
	}}
	report, err := orch.Run(context.Background(), def, pipeline.NewContext())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.State != StatePartiallyCompleted {
		t.Fatalf("state = %s", report.State)
	}
	if report.ExitCode() != ExitPartial {
		t.Fatalf("exit = %d", report.ExitCode())
	}
	if len(runs) != 2 {
		t.Fatalf("stages run = %v", runs)
	}
}

func TestRunPipelineDefaultContinueOnError(t *testing.T) {
	var runs []string
	resolver := mapResolver{
		"a": failingStage("a", &runs, nil),
		"b": okStage("b", &runs, nil),
	}
	orch := New(Options{Config: testConfig(t), Resolver: resolver})

	def := &config.Pipeline{ContinueOnError: true, Stages: stageRefs("a", "b")}
	report, err := orch.Run(context.Background(), def, pipeline.NewContext())
	if err != nil {
		t.Fatal(err)
	}
	if report.State != StatePartiallyCompleted || len(runs) != 2 {
		t.Fatalf("state = %s, runs = %v", report.State, runs)
	}

	// Per-stage false overrides the pipeline default.
	runs = nil
	noContinue := false
	def = &config.Pipeline{ContinueOnError: true, Stages: []config.StageRef{
		{Name: "a", ContinueOnError: &noContinue},
		{Name: "b"},
	}}
	report, err = orch.Run(context.Background(), def, pipeline.NewContext())
	if err != nil {
		t.Fatal(err)
	}
	if report.State != StateAborted || len(runs) != 1 {
		t.Fatalf("state = %s, runs = %v", report.State, runs)
	}
}

func TestFailedStageLeavesNoContextTrace(t *testing.T) {
	resolver := mapResolver{
		"a": okStage("a", nil, map[string]any{"a.out": "kept"}),
		"b": &scriptedStage{
			name: "b",
			runFunc: func(req pipeline.Request) (pipeline.Result, error) {
				// A buggy stage writing directly before failing must be
				// rolled back along with its outputs.
				_ = req.Context.Set("b.leak", true, true)
				result := pipeline.Result{
					Status:  pipeline.StatusFailed,
					Outputs: map[string]any{"b.partial": "artifact"},
				}
				return result, services.Wrap(services.ErrExecution, "b", "run", "boom", nil)
			},
		},
	}
	orch := New(Options{Config: testConfig(t), Resolver: resolver})

	runCtx := pipeline.NewContext()
	continueOn := true
	def := &config.Pipeline{Stages: []config.StageRef{
		{Name: "a"},
		{Name: "b", ContinueOnError: &continueOn},
	}}
	report, err := orch.Run(context.Background(), def, runCtx)
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := runCtx.Lookup("b.leak"); ok {
		t.Fatal("failed stage's direct write survived")
	}
	if _, ok := runCtx.Lookup("b.partial"); ok {
		t.Fatal("failed stage's outputs were merged")
	}
	if runCtx.GetString("a.out") != "kept" {
		t.Fatal("rollback clobbered earlier outputs")
	}
	// Partial outputs still surface in the report.
	if report.Outcomes[1].Outputs["b.partial"] != "artifact" {
		t.Fatalf("outcome outputs = %v", report.Outcomes[1].Outputs)
	}
}

func TestStageCannotOverwriteForeignKey(t *testing.T) {
	resolver := mapResolver{
		"a": okStage("a", nil, map[string]any{"a.artifact": "from-a"}),
		"b": okStage("b", nil, map[string]any{"a.artifact": "from-b"}),
	}
	orch := New(Options{Config: testConfig(t), Resolver: resolver})

	runCtx := pipeline.NewContext()
	def := &config.Pipeline{Stages: stageRefs("a", "b")}
	report, err := orch.Run(context.Background(), def, runCtx)
	if err != nil {
		t.Fatal(err)
	}
	if report.State != StateAborted {
		t.Fatalf("state = %s", report.State)
	}
	if got := runCtx.GetString("a.artifact"); got != "from-a" {
		t.Fatalf("a.artifact = %q, another stage's write went through", got)
	}
	outcome := report.Outcomes[1]
	if outcome.Status != pipeline.StatusFailed {
		t.Fatalf("outcome status = %s", outcome.Status)
	}
	if !errors.Is(outcome.Err, pipeline.ErrKeyExists) {
		t.Fatalf("outcome err = %v", outcome.Err)
	}
}

func TestStageMayRepublishOwnKeys(t *testing.T) {
	resolver := mapResolver{
		"a": okStage("a", nil, map[string]any{"a.out": "fresh"}),
	}
	orch := New(Options{Config: testConfig(t), Resolver: resolver})

	// A resumed context already carries the stage's own key.
	runCtx := pipeline.NewContext()
	if err := runCtx.Set("a.out", "stale", false); err != nil {
		t.Fatal(err)
	}
	def := &config.Pipeline{Stages: stageRefs("a")}
	report, err := orch.Run(context.Background(), def, runCtx)
	if err != nil {
		t.Fatal(err)
	}
	if report.State != StateCompleted {
		t.Fatalf("state = %s", report.State)
	}
	if got := runCtx.GetString("a.out"); got != "fresh" {
		t.Fatalf("a.out = %q", got)
	}
}

func TestNewWithoutConfig(t *testing.T) {
	resolver := mapResolver{"a": okStage("a", nil, map[string]any{"a.out": 1})}
	orch := New(Options{Resolver: resolver})

	def := &config.Pipeline{Stages: stageRefs("a")}
	report, err := orch.Run(context.Background(), def, pipeline.NewContext())
	if err != nil {
		t.Fatal(err)
	}
	if report.State != StateCompleted {
		t.Fatalf("state = %s", report.State)
	}
}

func TestSkippedStageCountsAsSuccess(t *testing.T) {
	resolver := mapResolver{
		"a": &scriptedStage{name: "a", result: pipeline.Result{
			Status:  pipeline.StatusSkipped,
			Outputs: map[string]any{"a.out": "cached"},
		}},
		"b": okStage("b", nil, nil),
	}
	orch := New(Options{Config: testConfig(t), Resolver: resolver})

	runCtx := pipeline.NewContext()
	def := &config.Pipeline{Stages: stageRefs("a", "b")}
	report, err := orch.Run(context.Background(), def, runCtx)
	if err != nil {
		t.Fatal(err)
	}
	if report.State != StateCompleted {
		t.Fatalf("state = %s", report.State)
	}
	if runCtx.GetString("a.out") != "cached" {
		t.Fatal("skipped stage outputs not merged")
	}
}

func TestRunSkipsDisabledStages(t *testing.T) {
	var runs []string
	disabled := false
	resolver := mapResolver{
		"a": okStage("a", &runs, nil),
		"b": okStage("b", &runs, nil),
	}
	orch := New(Options{Config: testConfig(t), Resolver: resolver})

	def := &config.Pipeline{Stages: []config.StageRef{
		{Name: "a"},
		{Name: "b", Enabled: &disabled},
	}}
	report, err := orch.Run(context.Background(), def, pipeline.NewContext())
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0] != "a" {
		t.Fatalf("runs = %v", runs)
	}
	if len(report.Outcomes) != 1 {
		t.Fatalf("outcomes = %d", len(report.Outcomes))
	}
}

func TestRunAllStagesDisabledIsDefinitionError(t *testing.T) {
	disabled := false
	resolver := mapResolver{"a": okStage("a", nil, nil)}
	orch := New(Options{Config: testConfig(t), Resolver: resolver})

	def := &config.Pipeline{Stages: []config.StageRef{{Name: "a", Enabled: &disabled}}}
	_, err := orch.Run(context.Background(), def, pipeline.NewContext())
	if !errors.Is(err, services.ErrOrchestration) {
		t.Fatalf("expected ErrOrchestration, got %v", err)
	}
}

func TestRunValidationFailureFailsStage(t *testing.T) {
	var runs []string
	resolver := mapResolver{
		"a": &scriptedStage{name: "a", runs: &runs, problems: []string{"dataset missing"}},
	}
	orch := New(Options{Config: testConfig(t), Resolver: resolver})

	def := &config.Pipeline{Stages: stageRefs("a")}
	report, err := orch.Run(context.Background(), def, pipeline.NewContext())
	if err != nil {
		t.Fatal(err)
	}
	if report.State != StateAborted {
		t.Fatalf("state = %s", report.State)
	}
	if len(runs) != 0 {
		t.Fatal("stage ran despite failed validation")
	}
	if !errors.Is(report.Outcomes[0].Err, services.ErrValidation) {
		t.Fatalf("outcome err = %v", report.Outcomes[0].Err)
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	var runs []string
	ctx, cancel := context.WithCancel(context.Background())
	resolver := mapResolver{
		"a": &scriptedStage{name: "a", runs: &runs, runFunc: func(pipeline.Request) (pipeline.Result, error) {
			cancel()
			return pipeline.Result{Status: pipeline.StatusSucceeded}, nil
		}},
		"b": okStage("b", &runs, nil),
	}
	orch := New(Options{Config: testConfig(t), Resolver: resolver})

	def := &config.Pipeline{Stages: stageRefs("a", "b")}
	report, err := orch.Run(ctx, def, pipeline.NewContext())
	if err != nil {
		t.Fatal(err)
	}
	if report.State != StateAborted {
		t.Fatalf("state = %s", report.State)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %v", runs)
	}
}

func TestRunPersistsHistory(t *testing.T) {
	cfg := testConfig(t)
	store, err := runstore.OpenPath(filepath.Join(cfg.Paths.WorkspaceDir, "runs.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	continueOn := true
	resolver := mapResolver{
		"a": okStage("a", nil, map[string]any{"a.out": 1}),
		"b": failingStage("b", nil, nil),
	}
	orch := New(Options{Config: cfg, Resolver: resolver, Store: store})

	def := &config.Pipeline{Stages: []config.StageRef{
		{Name: "a"},
		{Name: "b", ContinueOnError: &continueOn},
	}}
	report, err := orch.Run(context.Background(), def, pipeline.NewContext())
	if err != nil {
		t.Fatal(err)
	}

	run, err := store.GetRun(context.Background(), report.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.State != string(StatePartiallyCompleted) {
		t.Fatalf("persisted state = %q", run.State)
	}
	if run.FinishedAt == nil {
		t.Fatal("finished_at not set")
	}

	results, err := store.StageResults(context.Background(), report.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || results[0].Stage != "a" || results[1].Status != "failed" {
		t.Fatalf("stage results = %+v", results)
	}

	payload, stage, err := store.LatestCheckpoint(context.Background(), report.RunID)
	if err != nil {
		t.Fatalf("LatestCheckpoint: %v", err)
	}
	if stage != "a" {
		t.Fatalf("checkpoint after %q", stage)
	}
	if !strings.Contains(string(payload), "a.out") {
		t.Fatalf("checkpoint payload = %s", payload)
	}
}

func TestPlanListsStages(t *testing.T) {
	disabled := false
	resolver := mapResolver{"a": okStage("a", nil, nil), "b": okStage("b", nil, nil)}
	orch := New(Options{Config: testConfig(t), Resolver: resolver})

	def := &config.Pipeline{ContinueOnError: true, Stages: []config.StageRef{
		{Name: "a", TimeoutSeconds: 60},
		{Name: "b", Enabled: &disabled},
	}}
	plan, err := orch.Plan(def)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan) != 2 {
		t.Fatalf("plan = %+v", plan)
	}
	if !plan[0].Enabled || plan[0].Timeout.Seconds() != 60 || !plan[0].ContinueOnError {
		t.Fatalf("plan[0] = %+v", plan[0])
	}
	if plan[1].Enabled {
		t.Fatal("disabled stage reported as enabled")
	}
}

func TestDryRunReportsIssuesWithoutExecuting(t *testing.T) {
	var runs []string
	resolver := mapResolver{
		"a": &scriptedStage{name: "a", runs: &runs, problems: []string{"dataset missing", "statistics missing"}},
		"b": okStage("b", &runs, nil),
	}
	orch := New(Options{Config: testConfig(t), Resolver: resolver})

	def := &config.Pipeline{Stages: stageRefs("a", "b")}
	issues, err := orch.DryRun(context.Background(), def, nil)
	if err != nil {
		t.Fatalf("DryRun: %v", err)
	}
	if len(issues) != 2 || issues[0].Stage != "a" {
		t.Fatalf("issues = %+v", issues)
	}
	if len(runs) != 0 {
		t.Fatal("dry run executed a stage")
	}

	_, err = orch.DryRun(context.Background(), &config.Pipeline{Stages: stageRefs("ghost")}, nil)
	if !errors.Is(err, services.ErrOrchestration) {
		t.Fatalf("expected ErrOrchestration, got %v", err)
	}
}

func errorContains(err error, substr string) bool {
	return err != nil && strings.Contains(err.Error(), substr)
}
