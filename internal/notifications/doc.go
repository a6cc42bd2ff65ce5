// Package notifications delivers run milestones via ntfy push messages.
//
// The default implementation publishes to the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. Long training runs are the whole point: a push when diffusion
// training finishes or a stage fails saves polling a terminal for days.
//
// All orchestration code depends only on the small Service interface.
package notifications
