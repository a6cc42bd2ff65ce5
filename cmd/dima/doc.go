// Command dima is the CLI for the protein diffusion pipeline. It executes
// pipeline definitions, inspects run history, lists registered components,
// and manages configuration.
package main
