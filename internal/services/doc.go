// Package services defines shared utilities consumed by the pipeline stages
// and external collaborators.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, stage names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that classify failures
//     into the pipeline error taxonomy (registration, plugin load,
//     validation, execution, orchestration).
//   - Thin abstractions that make command execution against external ML
//     tooling testable.
//
// Use these helpers when wiring new stage logic so operational behaviour
// (error handling, observability, exit codes) stays uniform across the
// pipeline.
package services
