package components

import (
	"context"
	"fmt"
	"os"
	"strings"

	"dima/internal/component"
	"dima/internal/services"
	"dima/internal/services/toolrunner"
)

// toolEncoder is an encoder whose embedding work runs in the encode
// collaborator. The Go side carries the metadata the pipeline needs for
// dimensionality checks and tool argument composition.
type toolEncoder struct {
	name   string
	model  string
	dim    int
	runner ToolRunner
	tools  Tools
}

// NewESM2 returns the ESM-2 650M encoder. The model identifier can be
// overridden from configuration to select a different ESM-2 size.
func NewESM2(runner ToolRunner, tools Tools, model string) component.Encoder {
	if strings.TrimSpace(model) == "" {
		model = "facebook/esm2_t33_650M_UR50D"
	}
	return &toolEncoder{name: "esm2", model: model, dim: 1280, runner: runner, tools: tools}
}

// NewSaProt returns the structure-aware SaProt encoder.
func NewSaProt(runner ToolRunner, tools Tools) component.Encoder {
	return &toolEncoder{name: "saprot", model: "westlake-repl/SaProt_650M_AF2", dim: 1280, runner: runner, tools: tools}
}

// NewCHEAP returns the CHEAP compressed-latent encoder. CHEAP ships with an
// intrinsic decoder; see NewCHEAPDecoder.
func NewCHEAP(runner ToolRunner, tools Tools) component.Encoder {
	return &toolEncoder{name: "cheap", model: "amyxlu/cheap-proteins", dim: 1024, runner: runner, tools: tools}
}

func (e *toolEncoder) Name() string   { return e.name }
func (e *toolEncoder) OutputDim() int { return e.dim }

type embeddingsPayload struct {
	Dim     int         `json:"dim"`
	Vectors [][]float64 `json:"vectors"`
}

func (e *toolEncoder) Encode(ctx context.Context, sequences []string) (*component.Embeddings, error) {
	if len(sequences) == 0 {
		return &component.Embeddings{Dim: e.dim}, nil
	}
	if e.runner == nil {
		return nil, services.Wrap(services.ErrExecution, "", e.name, "encoder has no tool runner", nil)
	}

	input, err := writeInputFile("dima-encode-*.json", map[string]any{"sequences": sequences})
	if err != nil {
		return nil, services.Wrap(services.ErrExecution, "", e.name, "stage encode input", err)
	}
	defer os.Remove(input)

	stdout, err := e.runner.Run(ctx, toolrunner.Command{
		Name:    "encode",
		Binary:  e.tools.Encode,
		Args:    []string{"--encoder", e.name, "--model", e.model, "--input", input},
		Timeout: e.tools.Timeout,
	})
	if err != nil {
		return nil, err
	}

	var payload embeddingsPayload
	if err := decodeToolOutput(e.name, stdout, &payload); err != nil {
		return nil, err
	}
	if payload.Dim == 0 {
		payload.Dim = e.dim
	}
	if payload.Dim != e.dim {
		return nil, services.Wrap(services.ErrExecution, "", e.name,
			fmt.Sprintf("collaborator produced dim %d, expected %d", payload.Dim, e.dim), nil)
	}
	if len(payload.Vectors) != len(sequences) {
		return nil, services.Wrap(services.ErrExecution, "", e.name,
			fmt.Sprintf("collaborator produced %d vectors for %d sequences", len(payload.Vectors), len(sequences)), nil)
	}
	return &component.Embeddings{Dim: payload.Dim, Vectors: payload.Vectors}, nil
}
