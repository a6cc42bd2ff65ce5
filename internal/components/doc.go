// Package components provides the built-in encoders, decoders, and metrics.
//
// The built-ins mirror the standard protein diffusion setup: ESM-2, SaProt,
// and CHEAP encoders; an LM-head and a transformer decoder; FID, MMD,
// ESM pseudo-perplexity, and pLDDT metrics. Heavy numerical work lives in
// the external collaborator tools — each built-in knows its metadata (latent
// dimensionality, model identifier, reference requirements) and how to
// invoke the collaborator for its operation.
//
// RegisterBuiltins installs the full set into a registry; plugins can
// replace any of them by re-registering the same name with override.
package components
