// Package pipeline defines the stage contract and the shared run context.
//
// A Stage validates its preconditions against the context and then runs,
// returning outputs for the orchestrator to merge. The Context is a
// concurrency-safe namespaced key/value store: keys take the form
// "stage.artifact" (for example "inference.samples_path") so every stage can
// find upstream artifacts without knowing which stage produced them. The
// context can be snapshotted, restored, and checkpointed to disk as JSON so
// interrupted runs resume where they left off.
package pipeline
