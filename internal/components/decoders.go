package components

import (
	"context"
	"fmt"
	"os"

	"dima/internal/component"
	"dima/internal/services"
	"dima/internal/services/toolrunner"
)

// toolDecoder reconstructs sequences through the decode collaborator.
type toolDecoder struct {
	name      string
	inputDim  int
	intrinsic bool
	runner    ToolRunner
	tools     Tools
}

// NewLMHead returns the default linear LM-head decoder. It adapts to any
// encoder dimensionality and is trained by the decoder training stage.
func NewLMHead(runner ToolRunner, tools Tools) component.Decoder {
	return &toolDecoder{name: "lm_head", runner: runner, tools: tools}
}

// NewTransformer returns the transformer decoder, a heavier alternative to
// the LM head for encoders whose latents are not linearly separable.
func NewTransformer(runner ToolRunner, tools Tools) component.Decoder {
	return &toolDecoder{name: "transformer", runner: runner, tools: tools}
}

// NewCHEAPDecoder returns CHEAP's intrinsic decoder. It requires no
// training; the decoder training stage skips when the run resolves it.
func NewCHEAPDecoder(runner ToolRunner, tools Tools) component.Decoder {
	return &toolDecoder{name: "cheap", inputDim: 1024, intrinsic: true, runner: runner, tools: tools}
}

func (d *toolDecoder) Name() string    { return d.name }
func (d *toolDecoder) InputDim() int   { return d.inputDim }
func (d *toolDecoder) Intrinsic() bool { return d.intrinsic }

func (d *toolDecoder) Decode(ctx context.Context, embeddings *component.Embeddings) ([]string, error) {
	if embeddings.Len() == 0 {
		return nil, nil
	}
	if d.inputDim != 0 && embeddings.Dim != d.inputDim {
		return nil, services.Wrap(services.ErrExecution, "", d.name,
			fmt.Sprintf("embeddings have dim %d, decoder expects %d", embeddings.Dim, d.inputDim), nil)
	}
	if d.runner == nil {
		return nil, services.Wrap(services.ErrExecution, "", d.name, "decoder has no tool runner", nil)
	}

	input, err := writeInputFile("dima-decode-*.json", embeddingsPayload{Dim: embeddings.Dim, Vectors: embeddings.Vectors})
	if err != nil {
		return nil, services.Wrap(services.ErrExecution, "", d.name, "stage decode input", err)
	}
	defer os.Remove(input)

	stdout, err := d.runner.Run(ctx, toolrunner.Command{
		Name:    "decode",
		Binary:  d.tools.Decode,
		Args:    []string{"--decoder", d.name, "--input", input},
		Timeout: d.tools.Timeout,
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Sequences []string `json:"sequences"`
	}
	if err := decodeToolOutput(d.name, stdout, &payload); err != nil {
		return nil, err
	}
	if len(payload.Sequences) != embeddings.Len() {
		return nil, services.Wrap(services.ErrExecution, "", d.name,
			fmt.Sprintf("collaborator produced %d sequences for %d embeddings", len(payload.Sequences), embeddings.Len()), nil)
	}
	return payload.Sequences, nil
}
