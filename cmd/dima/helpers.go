package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"dima/internal/components"
	"dima/internal/config"
	"dima/internal/plugin"
	"dima/internal/registry"
	"dima/internal/services/toolrunner"
	"dima/internal/stages"
)

// buildRegistry assembles the component registry a command works against:
// built-in components, built-in stages, and any plugins the definition names.
func buildRegistry(cfg *config.Config, logger *slog.Logger, def *config.Pipeline) (*registry.Registry, error) {
	reg := registry.New()
	runner := toolrunner.New(logger)
	if err := components.RegisterBuiltins(reg, runner, cfg); err != nil {
		return nil, err
	}
	deps := stages.Deps{Config: cfg, Logger: logger, Runner: runner, Registry: reg}
	if err := stages.Register(reg, deps); err != nil {
		return nil, err
	}
	if def != nil && len(def.Plugins) > 0 {
		loader := plugin.NewLoader(reg, logger)
		if err := loader.Load(def.Plugins, def.FailFastPlugins); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// loadPipelineDefinition reads the definition file, or falls back to the
// canonical stage list when no file was given.
func loadPipelineDefinition(path string) (*config.Pipeline, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return config.DefaultPipeline(), nil
	}
	return config.LoadPipeline(path)
}

var titleCaser = cases.Title(language.English)

// stageLabel turns a snake_case stage name into a human heading.
func stageLabel(name string) string {
	return titleCaser.String(strings.ReplaceAll(name, "_", " "))
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func truncateText(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 3 || len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

func countLabel(n int, singular string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", singular)
	}
	return fmt.Sprintf("%d %ss", n, singular)
}
