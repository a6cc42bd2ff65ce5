// Package orchestrator executes pipeline definitions.
//
// A run resolves every enabled stage up front, so a misspelled stage name
// fails before any work starts. Stages then execute strictly in definition
// order: validate, run, merge outputs into the shared context, checkpoint.
// A failing stage rolls the context back to its pre-stage snapshot; whether
// the run continues is governed by the stage's continue_on_error setting.
//
// Terminal states: Completed when every stage succeeded or skipped, Aborted
// when a failure stopped the run early, PartiallyCompleted when failures
// occurred but the run reached the end.
package orchestrator
