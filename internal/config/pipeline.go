package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"dima/internal/services"
)

// PluginRef identifies one plugin to load before the run starts. Exactly one
// of Path or Package must be set: Path points at a compiled .so plugin on
// disk, Package names an entry in the compiled-in plugin catalog.
type PluginRef struct {
	Path    string `toml:"path" yaml:"path"`
	Package string `toml:"package" yaml:"package"`
}

// StageRef is one entry in the pipeline's stage list. Order in the file is
// execution order.
type StageRef struct {
	Name            string         `toml:"name" yaml:"name"`
	Enabled         *bool          `toml:"enabled" yaml:"enabled"`
	Params          map[string]any `toml:"params" yaml:"params"`
	ContinueOnError *bool          `toml:"continue_on_error" yaml:"continue_on_error"`
	TimeoutSeconds  int            `toml:"timeout_seconds" yaml:"timeout_seconds"`
}

// Pipeline is a declarative run definition: which plugins to load and which
// stages to execute, in order.
type Pipeline struct {
	Plugins         []PluginRef `toml:"plugins" yaml:"plugins"`
	FailFastPlugins bool        `toml:"fail_fast_plugins" yaml:"fail_fast_plugins"`
	ContinueOnError bool        `toml:"continue_on_error" yaml:"continue_on_error"`
	Stages          []StageRef  `toml:"stages" yaml:"stages"`
}

// StageEnabled reports whether the stage entry participates in the run.
// Stages are enabled unless explicitly disabled.
func (s StageRef) StageEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// StageContinueOnError resolves the per-stage continue flag against the
// pipeline default.
func (p *Pipeline) StageContinueOnError(s StageRef) bool {
	if s.ContinueOnError != nil {
		return *s.ContinueOnError
	}
	return p.ContinueOnError
}

// LoadPipeline parses a pipeline definition file. The format is chosen by
// extension: .toml, .yaml, or .yml.
func LoadPipeline(path string) (*Pipeline, error) {
	expanded, err := expandPath(path)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "pipeline", "resolve pipeline path", err)
	}

	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "pipeline", fmt.Sprintf("read pipeline definition %q", expanded), err)
	}

	var def Pipeline
	switch strings.ToLower(filepath.Ext(expanded)) {
	case ".toml":
		if err := toml.Unmarshal(data, &def); err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "", "pipeline", fmt.Sprintf("parse pipeline definition %q", expanded), err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &def); err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "", "pipeline", fmt.Sprintf("parse pipeline definition %q", expanded), err)
		}
	default:
		return nil, services.Wrap(services.ErrConfiguration, "", "pipeline",
			fmt.Sprintf("unsupported pipeline definition format %q (expected .toml, .yaml, or .yml)", filepath.Ext(expanded)), nil)
	}

	if err := def.validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

func (p *Pipeline) validate() error {
	for i, ref := range p.Plugins {
		hasPath := strings.TrimSpace(ref.Path) != ""
		hasPackage := strings.TrimSpace(ref.Package) != ""
		if hasPath == hasPackage {
			return services.Wrap(services.ErrConfiguration, "", "pipeline",
				fmt.Sprintf("plugin entry %d must set exactly one of path or package", i+1), nil)
		}
	}
	if len(p.Stages) == 0 {
		return services.Wrap(services.ErrConfiguration, "", "pipeline", "at least one stage entry is required", nil)
	}
	seen := make(map[string]struct{}, len(p.Stages))
	for i, ref := range p.Stages {
		name := strings.TrimSpace(ref.Name)
		if name == "" {
			return services.Wrap(services.ErrConfiguration, "", "pipeline",
				fmt.Sprintf("stage entry %d has an empty name", i+1), nil)
		}
		if _, dup := seen[name]; dup {
			return services.Wrap(services.ErrConfiguration, "", "pipeline",
				fmt.Sprintf("stage %q appears more than once", name), nil)
		}
		seen[name] = struct{}{}
		if ref.TimeoutSeconds < 0 {
			return services.Wrap(services.ErrConfiguration, "", "pipeline",
				fmt.Sprintf("stage %q has a negative timeout", name), nil)
		}
	}
	return nil
}

// DefaultPipeline returns the built-in full pipeline: every stage in its
// canonical order, no plugins.
func DefaultPipeline() *Pipeline {
	return &Pipeline{
		Stages: []StageRef{
			{Name: "data_setup"},
			{Name: "model_setup"},
			{Name: "statistics"},
			{Name: "decoder_training"},
			{Name: "diffusion_training"},
			{Name: "inference"},
			{Name: "metrics_evaluation"},
		},
	}
}
