// Package event implements the pipeline's synchronous lifecycle event stream.
//
// Every lifecycle transition of a run is emitted through a single Emitter.
// Emission is serialized: observers see one total order per run, and the
// emitting task does not proceed until every observer has returned. Slow
// observers therefore slow the run down, which is the price of a linear
// trace.
package event

import (
	"time"

	"github.com/vk/ucdpipe/internal/model"
	"github.com/vk/ucdpipe/internal/result"
)

// Type names one lifecycle transition.
type Type string

const (
	PipelineStart Type = "pipeline:start"
	PipelineEnd   Type = "pipeline:end"
	VersionStart  Type = "version:start"
	VersionEnd    Type = "version:end"
	FileMatched   Type = "file:matched"
	FileFallback  Type = "file:fallback"
	FileSkipped   Type = "file:skipped"
	RouteStart    Type = "route:start"
	RouteEnd      Type = "route:end"
	ArtifactEmit  Type = "artifact:emit"
	ParseStart    Type = "parse:start"
	ParseEnd      Type = "parse:end"
	ResolveStart  Type = "resolve:start"
	ResolveEnd    Type = "resolve:end"
	CacheHit      Type = "cache:hit"
	CacheMiss     Type = "cache:miss"
	CacheStore    Type = "cache:store"
	Error         Type = "error"
)

// Skip reasons carried by FileSkipped events.
const (
	ReasonNoMatch  = "no-match"
	ReasonFiltered = "filtered"
)

// Event is one entry of the run's event stream. Fields that do not apply to
// a given Type are left zero.
type Event struct {
	Type      Type      `json:"type"`
	RunID     string    `json:"runId"`
	Seq       int       `json:"seq"`
	Timestamp time.Time `json:"timestamp"`

	PipelineID  string              `json:"pipelineId,omitempty"`
	Versions    []string            `json:"versions,omitempty"`
	Version     string              `json:"version,omitempty"`
	File        *model.FileIdentity `json:"file,omitempty"`
	RouteID     string              `json:"routeId,omitempty"`
	ArtifactKey string              `json:"artifactKey,omitempty"`
	Reason      string              `json:"reason,omitempty"`
	Records     int                 `json:"records,omitempty"`
	Outputs     int                 `json:"outputs,omitempty"`
	Duration    time.Duration       `json:"durationNs,omitempty"`
	Err         *result.RunError    `json:"error,omitempty"`
}
