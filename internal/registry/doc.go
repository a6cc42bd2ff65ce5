// Package registry is the central catalog of pluggable components. Built-in
// encoders, decoders, metrics, and stages register here at startup; plugins
// register through the same API when they are loaded.
//
// Names are unique per kind. Re-registering a name fails unless override is
// requested, in which case the replacement keeps the original's position in
// listing order. Every registration is capability-checked: an implementation
// that does not satisfy its kind's interface is rejected up front rather than
// failing at resolution time.
package registry
