package components

import (
	"context"
	"os"

	"dima/internal/component"
	"dima/internal/services"
	"dima/internal/services/toolrunner"
)

// toolMetric scores sequences through the metrics collaborator.
type toolMetric struct {
	name         string
	requiresRefs bool
	runner       ToolRunner
	tools        Tools
}

// NewFID returns the Fréchet distance metric over encoder latents. It
// compares the generated distribution against reference sequences.
func NewFID(runner ToolRunner, tools Tools) component.Metric {
	return &toolMetric{name: "fid", requiresRefs: true, runner: runner, tools: tools}
}

// NewMMD returns the maximum mean discrepancy metric. Like FID it needs a
// reference set.
func NewMMD(runner ToolRunner, tools Tools) component.Metric {
	return &toolMetric{name: "mmd", requiresRefs: true, runner: runner, tools: tools}
}

// NewESMPseudoPerplexity returns the ESM pseudo-perplexity metric. It scores
// generated sequences on their own, no references needed.
func NewESMPseudoPerplexity(runner ToolRunner, tools Tools) component.Metric {
	return &toolMetric{name: "esm_pppl", runner: runner, tools: tools}
}

// NewPLDDT returns the pLDDT foldability metric, computed by folding each
// generated sequence.
func NewPLDDT(runner ToolRunner, tools Tools) component.Metric {
	return &toolMetric{name: "plddt", runner: runner, tools: tools}
}

func (m *toolMetric) Name() string             { return m.name }
func (m *toolMetric) RequiresReferences() bool { return m.requiresRefs }

func (m *toolMetric) Compute(ctx context.Context, predictions, references []string, params map[string]any) (float64, error) {
	if len(predictions) == 0 {
		return 0, services.Wrap(services.ErrValidation, "", m.name, "no predictions to score", nil)
	}
	if m.requiresRefs && len(references) == 0 {
		return 0, services.Wrap(services.ErrValidation, "", m.name, "metric requires reference sequences", nil)
	}
	if m.runner == nil {
		return 0, services.Wrap(services.ErrExecution, "", m.name, "metric has no tool runner", nil)
	}

	payload := map[string]any{"predictions": predictions}
	if len(references) > 0 {
		payload["references"] = references
	}
	if len(params) > 0 {
		payload["params"] = params
	}
	input, err := writeInputFile("dima-metric-*.json", payload)
	if err != nil {
		return 0, services.Wrap(services.ErrExecution, "", m.name, "stage metric input", err)
	}
	defer os.Remove(input)

	stdout, err := m.runner.Run(ctx, toolrunner.Command{
		Name:    "metrics",
		Binary:  m.tools.Metrics,
		Args:    []string{"--metric", m.name, "--input", input},
		Timeout: m.tools.Timeout,
	})
	if err != nil {
		return 0, err
	}

	var result struct {
		Value *float64 `json:"value"`
	}
	if err := decodeToolOutput(m.name, stdout, &result); err != nil {
		return 0, err
	}
	if result.Value == nil {
		return 0, services.Wrap(services.ErrExternalTool, "", m.name, "tool output carries no value", nil)
	}
	return *result.Value, nil
}
