// Package app wires a loaded pipeline declaration to the handler registry,
// the source backends, the output cache, and the engine, and drives runs.
// It is decoupled from any specific entrypoint like the CLI.
package app
