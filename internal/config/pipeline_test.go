package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"dima/internal/services"
)

func writePipelineFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadPipelineTOML(t *testing.T) {
	path := writePipelineFile(t, "pipeline.toml", `
continue_on_error = false

[[plugins]]
package = "structure_metrics"

[[stages]]
name = "data_setup"

[[stages]]
name = "inference"
continue_on_error = true
timeout_seconds = 600

[stages.params]
num_samples = 128
`)

	def, err := LoadPipeline(path)
	if err != nil {
		t.Fatalf("LoadPipeline: %v", err)
	}
	if len(def.Plugins) != 1 || def.Plugins[0].Package != "structure_metrics" {
		t.Fatalf("plugins = %+v", def.Plugins)
	}
	if len(def.Stages) != 2 {
		t.Fatalf("expected 2 stages, got %d", len(def.Stages))
	}
	inference := def.Stages[1]
	if inference.Name != "inference" || inference.TimeoutSeconds != 600 {
		t.Fatalf("inference stage = %+v", inference)
	}
	if !def.StageContinueOnError(inference) {
		t.Fatal("expected per-stage continue_on_error=true to win")
	}
	if def.StageContinueOnError(def.Stages[0]) {
		t.Fatal("expected pipeline default continue_on_error=false")
	}
	if got, ok := inference.Params["num_samples"]; !ok || got != int64(128) {
		t.Fatalf("params = %+v", inference.Params)
	}
}

func TestLoadPipelineYAML(t *testing.T) {
	path := writePipelineFile(t, "pipeline.yaml", `
continue_on_error: true
plugins:
  - path: ./plugins/extra.so
stages:
  - name: statistics
  - name: metrics_evaluation
    enabled: false
`)

	def, err := LoadPipeline(path)
	if err != nil {
		t.Fatalf("LoadPipeline: %v", err)
	}
	if len(def.Plugins) != 1 || def.Plugins[0].Path != "./plugins/extra.so" {
		t.Fatalf("plugins = %+v", def.Plugins)
	}
	if !def.Stages[0].StageEnabled() {
		t.Fatal("stages default to enabled")
	}
	if def.Stages[1].StageEnabled() {
		t.Fatal("expected metrics_evaluation to be disabled")
	}
	if !def.StageContinueOnError(def.Stages[0]) {
		t.Fatal("expected pipeline default continue_on_error=true")
	}
}

func TestLoadPipelineRejectsBadDefinitions(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name:    "unknown extension",
			file:    "pipeline.ini",
			content: "stages=1",
		},
		{
			name:    "no stages",
			file:    "pipeline.toml",
			content: "continue_on_error = true\n",
		},
		{
			name:    "plugin with both path and package",
			file:    "pipeline.toml",
			content: "[[plugins]]\npath = \"a.so\"\npackage = \"b\"\n\n[[stages]]\nname = \"inference\"\n",
		},
		{
			name:    "plugin with neither",
			file:    "pipeline.yaml",
			content: "plugins:\n  - {}\nstages:\n  - name: inference\n",
		},
		{
			name:    "duplicate stage",
			file:    "pipeline.toml",
			content: "[[stages]]\nname = \"inference\"\n\n[[stages]]\nname = \"inference\"\n",
		},
		{
			name:    "empty stage name",
			file:    "pipeline.yaml",
			content: "stages:\n  - name: \"\"\n",
		},
		{
			name:    "malformed toml",
			file:    "pipeline.toml",
			content: "[[stages\nname = x",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writePipelineFile(t, tc.file, tc.content)
			_, err := LoadPipeline(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, services.ErrConfiguration) {
				t.Fatalf("expected ErrConfiguration, got %v", err)
			}
		})
	}
}

func TestLoadPipelineMissingFile(t *testing.T) {
	_, err := LoadPipeline(filepath.Join(t.TempDir(), "absent.toml"))
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestDefaultPipelineOrder(t *testing.T) {
	def := DefaultPipeline()
	want := []string{
		"data_setup", "model_setup", "statistics", "decoder_training",
		"diffusion_training", "inference", "metrics_evaluation",
	}
	if len(def.Stages) != len(want) {
		t.Fatalf("expected %d stages, got %d", len(want), len(def.Stages))
	}
	for i, name := range want {
		if def.Stages[i].Name != name {
			t.Fatalf("stage %d = %q, want %q", i, def.Stages[i].Name, name)
		}
	}
	if err := def.validate(); err != nil {
		t.Fatalf("default pipeline failed validation: %v", err)
	}
}
