// Package plugin loads external components into the registry before a run.
//
// Two descriptor forms exist. A path descriptor names a compiled Go plugin
// (.so) on disk; its exported Register function receives the registry and
// installs whatever components it provides. A package descriptor names an
// entry in the compiled-in catalog, for component packages linked into the
// binary itself.
//
// Loading happens before stage resolution so that a pipeline definition can
// reference plugin-provided stages and components by name.
package plugin
