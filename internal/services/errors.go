package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRegistration marks duplicate component names registered without
	// override, or implementations missing a capability their kind requires.
	ErrRegistration = errors.New("registration error")
	// ErrNotFound marks lookups of component names never registered.
	ErrNotFound = errors.New("not found")
	// ErrPluginLoad marks plugin descriptors that could not be resolved,
	// lacked the registration entry point, or failed while registering.
	ErrPluginLoad = errors.New("plugin load error")
	// ErrValidation marks unmet stage preconditions detected before run.
	ErrValidation = errors.New("validation error")
	// ErrExecution marks stage run failures.
	ErrExecution = errors.New("execution error")
	// ErrOrchestration marks pipeline-definition problems detected before any
	// stage executes.
	ErrOrchestration = errors.New("orchestration error")
	// ErrExternalTool marks failures reported by external ML collaborators.
	ErrExternalTool = errors.New("external tool error")
	// ErrConfiguration marks invalid or missing configuration values.
	ErrConfiguration = errors.New("configuration error")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrExecution
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsDefinitionError reports whether err stems from a bad pipeline definition
// rather than bad runtime behaviour. Definition errors are fatal before any
// stage runs.
func IsDefinitionError(err error) bool {
	return errors.Is(err, ErrOrchestration) || errors.Is(err, ErrConfiguration)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
