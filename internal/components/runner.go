package components

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"dima/internal/services"
	"dima/internal/services/toolrunner"
)

// ToolRunner is the slice of the tool runner the built-ins need.
// *toolrunner.Runner satisfies it.
type ToolRunner interface {
	Run(ctx context.Context, cmd toolrunner.Command) ([]byte, error)
}

// Tools names the collaborator binaries the built-ins invoke.
type Tools struct {
	Encode  string
	Decode  string
	Metrics string
	// Timeout bounds each invocation. Zero disables the bound.
	Timeout time.Duration
}

// writeInputFile stages a batch payload in a temp file for a collaborator
// invocation. The caller removes the file when the invocation finishes.
func writeInputFile(pattern string, payload any) (string, error) {
	file, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", fmt.Errorf("stage tool input: %w", err)
	}
	enc := json.NewEncoder(file)
	if err := enc.Encode(payload); err != nil {
		file.Close()
		os.Remove(file.Name())
		return "", fmt.Errorf("encode tool input: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(file.Name())
		return "", fmt.Errorf("close tool input: %w", err)
	}
	return file.Name(), nil
}

func decodeToolOutput(name string, raw []byte, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return services.Wrap(services.ErrExternalTool, "", name,
			fmt.Sprintf("malformed tool output: %s", previewOutput(raw)), err)
	}
	return nil
}

func previewOutput(raw []byte) string {
	const limit = 256
	s := string(raw)
	if len(s) > limit {
		s = s[:limit] + "..."
	}
	return s
}
