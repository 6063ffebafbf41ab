// Package engine runs a pipeline: for every version it resolves the input
// files, walks the route graph layer by layer, and runs the
// parse -> transform -> resolve chain for every (route, file) pair a route's
// filter selects.
//
// # Execution Model
//
// Versions run one after another. Within a version, the routes of one
// execution layer run concurrently on a bounded worker pool, and a layer
// only starts once every task of the previous layer has finished. That
// barrier is what makes artifacts safe to share: a route can only read an
// artifact emitted by a route in an earlier layer.
//
// Every route whose filter accepts a file runs against it; there is no
// "first match wins". Files matched by no route go to the fallback handler,
// become file errors in strict mode, or are reported as skipped.
//
// # Failures
//
// Run never returns an error. Failures are converted to result.RunError
// values scoped to the smallest unit that failed (version, file, route,
// artifact) and processing continues with everything else. Only an invalid
// pipeline declaration, reported by New, is a hard failure.
package engine
