package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"dima/internal/orchestrator"
	"dima/internal/services"
)

func main() {
	cmd := newRootCommand()
	err := cmd.Execute()
	if err == nil {
		return
	}

	var exitErr *exitCodeError
	if errors.As(err, &exitErr) {
		if exitErr.message != "" {
			fmt.Fprintln(os.Stderr, exitErr.message)
		}
		os.Exit(exitErr.code)
	}
	if !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
	}
	if services.IsDefinitionError(err) {
		os.Exit(orchestrator.ExitDefinition)
	}
	os.Exit(orchestrator.ExitAborted)
}

// exitCodeError carries a specific process exit code out of a command. The
// message, when set, is printed to stderr without the usual error prefix.
type exitCodeError struct {
	code    int
	message string
}

func (e *exitCodeError) Error() string {
	if e.message != "" {
		return e.message
	}
	return fmt.Sprintf("exit code %d", e.code)
}
