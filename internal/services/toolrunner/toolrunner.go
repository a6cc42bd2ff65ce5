// Package toolrunner executes the external ML collaborator commands the
// pipeline stages delegate to. It owns timeout handling, output capture, and
// error classification so the stages only describe what to run.
package toolrunner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"dima/internal/logging"
	"dima/internal/services"
)

// Command describes one external collaborator invocation.
type Command struct {
	// Name is the logical label used in logs and error messages, for
	// example "train_diffusion".
	Name   string
	Binary string
	Args   []string
	// Dir is the working directory; empty inherits the process directory.
	Dir string
	// Env entries are appended to the inherited environment.
	Env []string
	// Timeout bounds the invocation. Zero disables the bound.
	Timeout time.Duration
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, cmd Command) (stdout []byte, stderr []byte, err error)
}

// Option configures the runner.
type Option func(*Runner)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(r *Runner) {
		if exec != nil {
			r.exec = exec
		}
	}
}

// Runner invokes external collaborator commands.
type Runner struct {
	logger *slog.Logger
	exec   Executor
}

// New constructs a runner. A nil logger disables logging.
func New(logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	runner := &Runner{
		logger: logger.With(logging.String(logging.FieldComponent, "toolrunner")),
		exec:   commandExecutor{},
	}
	for _, opt := range opts {
		opt(runner)
	}
	return runner
}

// Run executes the command and returns its stdout. Failures are tagged with
// services.ErrExternalTool and carry the tail of stderr.
func (r *Runner) Run(ctx context.Context, cmd Command) ([]byte, error) {
	if strings.TrimSpace(cmd.Binary) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "", cmd.Name, "tool binary is not configured", nil)
	}

	runCtx := ctx
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	started := time.Now()
	r.logger.Info(
		"tool started",
		logging.String(logging.FieldEventType, "tool_start"),
		logging.String("tool", cmd.Name),
		logging.String("binary", cmd.Binary),
		logging.String("args", strings.Join(cmd.Args, " ")),
	)

	stdout, stderr, err := r.exec.Run(runCtx, cmd)
	elapsed := time.Since(started)
	if err != nil {
		if runCtx.Err() != nil && ctx.Err() == nil {
			return stdout, services.Wrap(services.ErrExternalTool, "", cmd.Name,
				fmt.Sprintf("timed out after %s", cmd.Timeout), runCtx.Err())
		}
		detail := fmt.Sprintf("%s failed", cmd.Binary)
		if tail := outputTail(stderr); tail != "" {
			detail = fmt.Sprintf("%s: %s", detail, tail)
		}
		r.logger.Error(
			"tool failed",
			logging.String(logging.FieldEventType, "tool_failure"),
			logging.String("tool", cmd.Name),
			logging.Duration("elapsed", elapsed),
			logging.Error(err),
		)
		return stdout, services.Wrap(services.ErrExternalTool, "", cmd.Name, detail, err)
	}

	r.logger.Info(
		"tool completed",
		logging.String(logging.FieldEventType, "tool_complete"),
		logging.String("tool", cmd.Name),
		logging.Duration("elapsed", elapsed),
	)
	return stdout, nil
}

// ExitCode extracts the process exit code from a runner error, or -1 when
// the error carries none.
func ExitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

const tailLimit = 2048

func outputTail(output []byte) string {
	trimmed := strings.TrimSpace(string(output))
	if len(trimmed) > tailLimit {
		trimmed = "..." + trimmed[len(trimmed)-tailLimit:]
	}
	return trimmed
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, cmd Command) ([]byte, []byte, error) {
	proc := exec.CommandContext(ctx, cmd.Binary, cmd.Args...) //nolint:gosec
	proc.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		proc.Env = append(os.Environ(), cmd.Env...)
	}
	var stdout, stderr bytes.Buffer
	proc.Stdout = &stdout
	proc.Stderr = &stderr
	err := proc.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}
