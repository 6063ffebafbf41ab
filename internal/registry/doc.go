// Package registry describes a pipeline in memory: its routes, sources,
// artifacts, and fallback, plus the named Go handlers routes are built from.
//
// The Registry is the "glue" between declarations and code. A pipeline file
// refers to parsers, transforms, and resolvers by name (e.g. "semicolon");
// modules register the Go functions behind those names, and ValidateModel
// checks that every name a declaration uses is actually registered before
// anything runs.
//
// The declaration types (Route, Fallback, Pipeline) are pure data. They are
// built once per pipeline definition and consumed by the dag builder and the
// engine.
package registry
