// Package result holds the value a pipeline run hands back to its caller:
// outputs, scoped errors, summary counters, and the provenance graph.
package result

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vk/ucdpipe/internal/model"
	"github.com/vk/ucdpipe/internal/provenance"
)

// Scope says how much of a run a RunError affected.
type Scope string

const (
	ScopePipeline Scope = "pipeline"
	ScopeVersion  Scope = "version"
	ScopeFile     Scope = "file"
	ScopeRoute    Scope = "route"
	ScopeArtifact Scope = "artifact"
)

// RunError is a failure isolated to one scope of a run.
type RunError struct {
	Scope      Scope               `json:"scope"`
	Message    string              `json:"message"`
	Cause      error               `json:"-"`
	File       *model.FileIdentity `json:"file,omitempty"`
	RouteID    string              `json:"routeId,omitempty"`
	ArtifactID string              `json:"artifactId,omitempty"`
	Version    string              `json:"version,omitempty"`
}

// Error implements the error interface.
func (e *RunError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", e.Scope)
	if e.Version != "" {
		fmt.Fprintf(&b, " version=%s", e.Version)
	}
	if e.RouteID != "" {
		fmt.Fprintf(&b, " route=%s", e.RouteID)
	}
	if e.File != nil {
		fmt.Fprintf(&b, " file=%s", e.File.Path)
	}
	if e.ArtifactID != "" {
		fmt.Fprintf(&b, " artifact=%s", e.ArtifactID)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	return b.String()
}

// Unwrap exposes the underlying cause to errors.Is and errors.As.
func (e *RunError) Unwrap() error { return e.Cause }

// Output is one value produced by a resolver.
type Output struct {
	Version string             `json:"version"`
	RouteID string             `json:"routeId,omitempty"`
	File    model.FileIdentity `json:"file"`
	// Fallback is set when the value came from the fallback handler.
	Fallback bool `json:"fallback,omitempty"`
	Cached   bool `json:"cached,omitempty"`
	Value    any  `json:"value"`
}

// Summary counts what happened during a run.
type Summary struct {
	RunID         string        `json:"runId"`
	Versions      int           `json:"versions"`
	TotalFiles    int           `json:"totalFiles"`
	MatchedFiles  int           `json:"matchedFiles"`
	FallbackFiles int           `json:"fallbackFiles"`
	SkippedFiles  int           `json:"skippedFiles"`
	FilteredFiles int           `json:"filteredFiles"`
	RouteTasks    int           `json:"routeTasks"`
	TotalOutputs  int           `json:"totalOutputs"`
	CacheHits     int           `json:"cacheHits"`
	CacheMisses   int           `json:"cacheMisses"`
	ErrorCount    int           `json:"errorCount"`
	Duration      time.Duration `json:"durationNs"`
}

// RunResult is owned by the caller of one run.
type RunResult struct {
	Outputs    []Output
	Provenance *provenance.Graph
	Errors     []*RunError
	Summary    Summary
}

// ErrorsOfScope returns the errors of one scope in collection order.
func (r *RunResult) ErrorsOfScope(scope Scope) []*RunError {
	var out []*RunError
	for _, e := range r.Errors {
		if e.Scope == scope {
			out = append(out, e)
		}
	}
	return out
}

// OutputsOfRoute returns the outputs one route produced in collection order.
func (r *RunResult) OutputsOfRoute(routeID string) []Output {
	var out []Output
	for _, o := range r.Outputs {
		if o.RouteID == routeID && !o.Fallback {
			out = append(out, o)
		}
	}
	return out
}

// Aggregator collects results from concurrent route tasks.
type Aggregator struct {
	mu      sync.Mutex
	outputs []Output
	errors  []*RunError
	summary Summary
	graph   *provenance.Graph
}

// NewAggregator creates an aggregator for the run identified by runID.
func NewAggregator(runID string, graph *provenance.Graph) *Aggregator {
	return &Aggregator{
		summary: Summary{RunID: runID},
		graph:   graph,
	}
}

// AddOutput appends an output and returns its sequence number within the run.
func (a *Aggregator) AddOutput(o Output) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.outputs = append(a.outputs, o)
	return len(a.outputs) - 1
}

// AddError appends a scoped error.
func (a *Aggregator) AddError(e *RunError) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errors = append(a.errors, e)
}

// Count applies fn to the summary under the aggregator's lock.
func (a *Aggregator) Count(fn func(s *Summary)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(&a.summary)
}

// Result finalizes the run result. The aggregator must not be used afterwards.
func (a *Aggregator) Result(duration time.Duration) *RunResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.summary
	s.TotalOutputs = len(a.outputs)
	s.ErrorCount = len(a.errors)
	s.Duration = duration
	return &RunResult{
		Outputs:    a.outputs,
		Provenance: a.graph,
		Errors:     a.errors,
		Summary:    s,
	}
}
