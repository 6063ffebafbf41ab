package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vk/ucdpipe/internal/cache"
	"github.com/vk/ucdpipe/internal/ctxlog"
	"github.com/vk/ucdpipe/internal/dag"
	"github.com/vk/ucdpipe/internal/event"
	"github.com/vk/ucdpipe/internal/provenance"
	"github.com/vk/ucdpipe/internal/registry"
	"github.com/vk/ucdpipe/internal/result"
)

// isoLayout renders instants the way resolvers expect them: UTC with
// millisecond precision.
const isoLayout = "2006-01-02T15:04:05.000Z"

// Engine executes one pipeline declaration. It is safe to call Run
// repeatedly; each call owns its own result.
type Engine struct {
	pipeline *registry.Pipeline
	graph    *dag.Graph
	routes   map[string]*registry.Route
	cache    cache.Store
	now      func() time.Time
	newRunID func() string
}

// Option customizes an Engine.
type Option func(*Engine)

// WithCache enables the output cache.
func WithCache(store cache.Store) Option {
	return func(e *Engine) { e.cache = store }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRunID replaces the random run id generator.
func WithRunID(fn func() string) Option {
	return func(e *Engine) { e.newRunID = fn }
}

// New validates p and builds its route graph. Any problem is a hard failure
// of pipeline construction; the returned error wraps a *dag.BuildError when
// the graph is invalid.
func New(ctx context.Context, p *registry.Pipeline, opts ...Option) (*Engine, error) {
	logger := ctxlog.FromContext(ctx).With("pipeline", p.ID)

	if err := p.Validate(); err != nil {
		return nil, err
	}

	g, err := dag.Build(ctx, dag.FromRoutes(p.Routes))
	if err != nil {
		return nil, fmt.Errorf("pipeline '%s': %w", p.ID, err)
	}

	e := &Engine{
		pipeline: p,
		graph:    g,
		routes:   make(map[string]*registry.Route, len(p.Routes)),
		now:      time.Now,
		newRunID: uuid.NewString,
	}
	for _, r := range p.Routes {
		e.routes[r.ID] = r
	}
	for _, opt := range opts {
		opt(e)
	}

	logger.Debug("Engine ready.", "routes", g.Len(), "layers", len(g.Layers()), "cache", e.cache != nil)
	return e, nil
}

// Graph returns the validated route graph.
func (e *Engine) Graph() *dag.Graph { return e.graph }

// Pipeline returns the declaration the engine runs.
func (e *Engine) Pipeline() *registry.Pipeline { return e.pipeline }

// Cache returns the configured cache store, if any.
func (e *Engine) Cache() cache.Store { return e.cache }

// RunOptions tune a single run.
type RunOptions struct {
	// NoCache disables every cache read and write for this run.
	NoCache bool
	// Versions overrides the pipeline's version list.
	Versions []string
	// Observers receive events in addition to the pipeline's observers.
	Observers []event.Observer
}

// Run executes the pipeline and returns its result. Per-item failures are
// reported in the result's Errors.
func (e *Engine) Run(ctx context.Context, opts RunOptions) *result.RunResult {
	runID := e.newRunID()
	ctx = ctxlog.With(ctx, "run_id", runID, "pipeline", e.pipeline.ID)
	logger := ctxlog.FromContext(ctx)

	versions := e.pipeline.Versions
	if len(opts.Versions) > 0 {
		versions = opts.Versions
	}

	observers := append(append([]event.Observer(nil), e.pipeline.Observers...), opts.Observers...)
	r := &run{
		engine:   e,
		emitter:  event.NewEmitter(runID, e.now, observers...),
		prov:     provenance.New(),
		global:   newArtifactTable(),
		useCache: e.cache != nil && !opts.NoCache,
	}
	r.agg = result.NewAggregator(runID, r.prov)

	start := e.now()
	logger.Info("Pipeline run started.", "versions", versions, "cache", r.useCache)
	r.emit(ctx, event.Event{Type: event.PipelineStart, PipelineID: e.pipeline.ID, Versions: versions})

	for _, version := range versions {
		if err := ctx.Err(); err != nil {
			r.fail(ctx, &result.RunError{Scope: result.ScopePipeline, Message: "run abandoned", Cause: err})
			break
		}
		r.runVersion(ctx, version)
	}

	elapsed := e.now().Sub(start)
	r.emit(ctx, event.Event{Type: event.PipelineEnd, PipelineID: e.pipeline.ID, Duration: elapsed})

	res := r.agg.Result(elapsed)
	logger.Info("Pipeline run finished.",
		"outputs", res.Summary.TotalOutputs,
		"errors", res.Summary.ErrorCount,
		"duration", elapsed,
	)
	return res
}

// run is the state of one Run call shared by all versions.
type run struct {
	engine   *Engine
	emitter  *event.Emitter
	prov     *provenance.Graph
	agg      *result.Aggregator
	global   *artifactTable
	useCache bool
}

func (r *run) emit(ctx context.Context, ev event.Event) {
	r.emitter.Emit(ctx, ev)
}

// link adds a provenance edge. Both endpoints are expected to exist; a
// missing one is logged and the edge is dropped.
func (r *run) link(ctx context.Context, from, to string, kind provenance.EdgeKind) {
	if err := r.prov.AddEdge(from, to, kind); err != nil {
		ctxlog.FromContext(ctx).Debug("Provenance edge dropped.", "from", from, "to", to, "kind", kind, "error", err)
	}
}

// fail records a scoped error and emits the matching error event.
func (r *run) fail(ctx context.Context, err *result.RunError) {
	r.agg.AddError(err)
	r.emit(ctx, event.Event{
		Type:        event.Error,
		Version:     err.Version,
		File:        err.File,
		RouteID:     err.RouteID,
		ArtifactKey: err.ArtifactID,
		Err:         err,
	})
}
