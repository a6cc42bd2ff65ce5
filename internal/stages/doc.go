// Package stages implements the built-in pipeline stages.
//
// The canonical order is data_setup, model_setup, statistics,
// decoder_training, diffusion_training, inference, metrics_evaluation. Each
// stage validates its preconditions against the run context, delegates heavy
// numerical work to the external collaborator tools, and returns namespaced
// outputs for the orchestrator to merge. Stages that find their artifact
// already on disk skip instead of recomputing, so interrupted runs resume
// cheaply.
package stages
