package stages

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"dima/internal/pipeline"
	"dima/internal/services"
)

func TestDataSetupRunsTool(t *testing.T) {
	env := newTestEnv(t)
	stage := NewDataSetup(env.deps())

	if problems := stage.Validate(context.Background(), env.request()); len(problems) != 0 {
		t.Fatalf("Validate problems: %v", problems)
	}

	result, err := stage.Run(context.Background(), env.request())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != pipeline.StatusSucceeded {
		t.Fatalf("status = %s", result.Status)
	}
	wantDir := filepath.Join(env.cfg.Paths.DataDir, "afdb")
	if result.Outputs[pipeline.KeyDatasetDir] != wantDir {
		t.Fatalf("outputs = %v", result.Outputs)
	}
	if len(env.runner.calls) != 1 {
		t.Fatalf("tool calls = %d", len(env.runner.calls))
	}
	cmd := env.runner.calls[0]
	if cmd.Binary != "dima-dataprep" {
		t.Fatalf("binary = %q", cmd.Binary)
	}
	if got := argValue(t, cmd, "--dataset"); got != "afdb" {
		t.Fatalf("--dataset = %q", got)
	}
	if got := argValue(t, cmd, "--min-len"); got != "64" {
		t.Fatalf("--min-len = %q", got)
	}
}

func TestDataSetupPassesHubTokenEnv(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Dataset.HubToken = "hf_secret"
	stage := NewDataSetup(env.deps())

	if _, err := stage.Run(context.Background(), env.request()); err != nil {
		t.Fatal(err)
	}
	cmd := env.runner.calls[0]
	if len(cmd.Env) != 1 || cmd.Env[0] != "HF_TOKEN=hf_secret" {
		t.Fatalf("env = %v", cmd.Env)
	}
}

func TestDataSetupSkipsWhenPopulated(t *testing.T) {
	env := newTestEnv(t)
	dir := filepath.Join(env.cfg.Paths.DataDir, "afdb")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "train.jsonl"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	stage := NewDataSetup(env.deps())
	result, err := stage.Run(context.Background(), env.request())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != pipeline.StatusSkipped {
		t.Fatalf("status = %s", result.Status)
	}
	if result.Outputs[pipeline.KeyDatasetDir] != dir {
		t.Fatal("skip still publishes the dataset dir")
	}
	if len(env.runner.calls) != 0 {
		t.Fatal("skip invoked the tool")
	}
}

func TestDataSetupToolFailure(t *testing.T) {
	env := newTestEnv(t)
	env.runner.err = services.Wrap(services.ErrExternalTool, "", "data_setup", "download failed", errors.New("403"))

	stage := NewDataSetup(env.deps())
	result, err := stage.Run(context.Background(), env.request())
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool, got %v", err)
	}
	if result.Status != pipeline.StatusFailed {
		t.Fatalf("status = %s", result.Status)
	}
}

func TestDataSetupValidateProblems(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Dataset.Name = ""
	env.cfg.Dataset.Hub = ""
	stage := NewDataSetup(env.deps())
	problems := stage.Validate(context.Background(), env.request())
	if len(problems) != 2 {
		t.Fatalf("problems = %v", problems)
	}
}
