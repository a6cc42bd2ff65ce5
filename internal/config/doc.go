// Package config loads, normalizes, and validates pipeline configuration
// data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// HF_TOKEN. The Config type centralizes every knob the orchestrator and CLI
// need, allowing workspace directories, encoder selection, and external tool
// commands to be discovered in one pass.
//
// The package also owns the pipeline definition format: an ordered list of
// plugin descriptors and stage descriptors read from a TOML or YAML file,
// where order is the execution order.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
