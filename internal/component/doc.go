// Package component defines the contracts shared by every pluggable pipeline
// component: encoders that map sequences into latent space, decoders that map
// latents back to sequences, and metrics that score generated samples.
//
// The package is a leaf: it carries only types and interfaces so that the
// registry, built-in components, and external plugins can all depend on it
// without cycles.
package component
