package engine

import (
	"context"
	"fmt"

	"github.com/vk/ucdpipe/internal/cache"
	"github.com/vk/ucdpipe/internal/ctxlog"
	"github.com/vk/ucdpipe/internal/dag"
	"github.com/vk/ucdpipe/internal/event"
	"github.com/vk/ucdpipe/internal/model"
	"github.com/vk/ucdpipe/internal/provenance"
	"github.com/vk/ucdpipe/internal/registry"
	"github.com/vk/ucdpipe/internal/result"
	"github.com/vk/ucdpipe/internal/source"
	"github.com/vk/ucdpipe/internal/stream"
)

// runRoute processes every file route selected. Failures are isolated per
// file.
func (v *versionRun) runRoute(ctx context.Context, route *registry.Route, node *dag.RouteNode, files []source.File) {
	ctx = ctxlog.With(ctx, "route", route.ID)
	logger := ctxlog.FromContext(ctx)

	v.prov.AddNode(provenance.Node{ID: provenance.RouteID(route.ID), Kind: provenance.NodeRoute, Label: route.ID})
	v.agg.Count(func(s *result.Summary) { s.RouteTasks++ })

	start := v.engine.now()
	v.emit(ctx, event.Event{Type: event.RouteStart, Version: v.version, RouteID: route.ID})

	outputs := 0
	for _, f := range files {
		n, err := v.processFileSafely(ctx, route, node, f)
		outputs += n
		if err != nil {
			identity := f.FileIdentity
			v.fail(ctx, &result.RunError{
				Scope:   result.ScopeRoute,
				Message: err.Error(),
				Cause:   err,
				File:    &identity,
				RouteID: route.ID,
				Version: v.version,
			})
		}
	}

	elapsed := v.engine.now().Sub(start)
	v.emit(ctx, event.Event{Type: event.RouteEnd, Version: v.version, RouteID: route.ID, Outputs: outputs, Duration: elapsed})
	logger.Debug("Route finished.", "files", len(files), "outputs", outputs, "duration", elapsed)
}

func (v *versionRun) processFileSafely(ctx context.Context, route *registry.Route, node *dag.RouteNode, f source.File) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			ctxlog.FromContext(ctx).Error("Route panicked.", "file", f.Path, "panic", r)
			err = fmt.Errorf("panic while processing %s: %v", f.Path, r)
		}
	}()
	return v.processFile(ctx, route, node, f)
}

// processFile runs the cache check and the parse -> transform -> resolve
// chain for one file, returning the number of outputs recorded.
func (v *versionRun) processFile(ctx context.Context, route *registry.Route, node *dag.RouteNode, f source.File) (int, error) {
	logger := ctxlog.FromContext(ctx)
	identity := f.FileIdentity
	v.link(ctx, provenance.FileID(f.Version, f.Path), provenance.RouteID(route.ID), provenance.EdgeMatched)

	cacheable := v.useCache && !route.NoCache
	var key cache.Key
	if cacheable {
		key = v.cacheKey(ctx, route, f)
		entry, hit, err := v.engine.cache.Get(ctx, key)
		if err != nil {
			logger.Warn("Cache read failed; processing file.", "file", f.Path, "error", err)
		}
		if hit {
			v.emit(ctx, event.Event{Type: event.CacheHit, Version: v.version, File: &identity, RouteID: route.ID})
			v.agg.Count(func(s *result.Summary) { s.CacheHits++ })
			for _, a := range entry.Artifacts {
				decl, ok := route.Artifact(a.Name)
				if !ok {
					continue
				}
				v.publish(ctx, route, node, decl, a.Value)
			}
			return v.record(ctx, route, identity, entry.Outputs, true), nil
		}
		v.emit(ctx, event.Event{Type: event.CacheMiss, Version: v.version, File: &identity, RouteID: route.ID})
		v.agg.Count(func(s *result.Summary) { s.CacheMisses++ })
	}

	v.emit(ctx, event.Event{Type: event.FileMatched, Version: v.version, File: &identity, RouteID: route.ID})

	rc := &resolveContext{ctx: ctx, v: v, route: route, node: node, file: identity, options: route.Options}
	outputs, err := v.execute(ctx, f, route.ID, route.Parser, route.Transforms, route.Resolver, rc)
	if err != nil {
		return 0, err
	}

	if cacheable {
		if err := v.engine.cache.Put(ctx, key, cache.Entry{Outputs: outputs, Artifacts: rc.emitted}); err != nil {
			logger.Warn("Cache write failed.", "file", f.Path, "error", err)
		} else {
			v.emit(ctx, event.Event{Type: event.CacheStore, Version: v.version, File: &identity, RouteID: route.ID})
		}
	}
	return v.record(ctx, route, identity, outputs, false), nil
}

// execute opens the file and runs the handler chain, emitting the parse and
// resolve timing events.
func (v *versionRun) execute(
	ctx context.Context,
	f source.File,
	routeID string,
	parser registry.ParserFunc,
	transforms []registry.TransformFunc,
	resolver registry.ResolverFunc,
	rc *resolveContext,
) ([]any, error) {
	identity := f.FileIdentity

	reader, err := f.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.Path, err)
	}
	defer reader.Close()

	parseStart := v.engine.now()
	v.emit(ctx, event.Event{Type: event.ParseStart, Version: v.version, File: &identity, RouteID: routeID})

	parsed := &tap{}
	seq := parsed.wrap(parser(ctx, registry.ParseInput{File: identity, Reader: reader, Options: rc.options}))
	for _, t := range transforms {
		seq = t(ctx, seq, rc.options)
	}
	final := &tap{}
	seq = final.wrap(seq)

	resolveStart := v.engine.now()
	v.emit(ctx, event.Event{Type: event.ResolveStart, Version: v.version, File: &identity, RouteID: routeID})
	value, err := resolver(ctx, rc, seq)
	if err == nil {
		// A transform may swallow an upstream error; the parser's still counts.
		switch {
		case final.err != nil:
			err = final.err
		case parsed.err != nil:
			err = parsed.err
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to process %s: %w", f.Path, err)
	}
	outputs := registry.NormalizeOutputs(value)

	end := v.engine.now()
	v.emit(ctx, event.Event{Type: event.ParseEnd, Version: v.version, File: &identity, RouteID: routeID, Records: parsed.records, Duration: end.Sub(parseStart)})
	v.emit(ctx, event.Event{Type: event.ResolveEnd, Version: v.version, File: &identity, RouteID: routeID, Outputs: len(outputs), Duration: end.Sub(resolveStart)})
	return outputs, nil
}

// record appends outputs to the result and links them in the provenance
// graph.
func (v *versionRun) record(ctx context.Context, route *registry.Route, file model.FileIdentity, outputs []any, cached bool) int {
	for _, o := range outputs {
		seq := v.agg.AddOutput(result.Output{Version: v.version, RouteID: route.ID, File: file, Cached: cached, Value: o})
		id := provenance.OutputID(seq)
		v.prov.AddNode(provenance.Node{ID: id, Kind: provenance.NodeOutput, Label: route.ID})
		v.link(ctx, provenance.RouteID(route.ID), id, provenance.EdgeResolved)
	}
	return len(outputs)
}

// runFallback processes a file no route matched with the fallback handler.
func (v *versionRun) runFallback(ctx context.Context, f source.File) {
	fb := v.engine.pipeline.Fallback
	identity := f.FileIdentity
	logger := ctxlog.FromContext(ctx).With("file", f.Path)

	v.emit(ctx, event.Event{Type: event.FileFallback, Version: v.version, File: &identity})
	v.agg.Count(func(s *result.Summary) { s.FallbackFiles++ })

	outputs, err := func() (out []any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Fallback panicked.", "panic", r)
				err = fmt.Errorf("panic while processing %s: %v", f.Path, r)
			}
		}()
		rc := &resolveContext{ctx: ctx, v: v, file: identity, options: fb.Options}
		return v.execute(ctx, f, "", fb.Parser, nil, fb.Resolver, rc)
	}()
	if err != nil {
		v.fail(ctx, &result.RunError{
			Scope:   result.ScopeFile,
			Message: err.Error(),
			Cause:   err,
			File:    &identity,
			Version: v.version,
		})
		return
	}

	fileID := provenance.FileID(f.Version, f.Path)
	for _, o := range outputs {
		seq := v.agg.AddOutput(result.Output{Version: v.version, File: identity, Fallback: true, Value: o})
		id := provenance.OutputID(seq)
		v.prov.AddNode(provenance.Node{ID: id, Kind: provenance.NodeOutput, Label: "fallback"})
		v.link(ctx, fileID, id, provenance.EdgeResolved)
	}
}

// cacheKey builds the cache key, folding in the content hash when the
// backend can provide one.
func (v *versionRun) cacheKey(ctx context.Context, route *registry.Route, f source.File) cache.Key {
	hash := ""
	if md, ok, err := f.Metadata(ctx); err != nil {
		ctxlog.FromContext(ctx).Debug("Metadata unavailable; cache key ignores content.", "file", f.Path, "error", err)
	} else if ok {
		hash = md.Hash
	}
	return cache.NewKey(route.ID, f.FileIdentity, hash)
}

// tap counts the records flowing through a sequence and remembers the first
// error.
type tap struct {
	records int
	err     error
}

func (t *tap) wrap(seq stream.Seq) stream.Seq {
	return func(yield func(model.Record, error) bool) {
		for rec, err := range seq {
			if err != nil {
				if t.err == nil {
					t.err = err
				}
				yield(rec, err)
				return
			}
			t.records++
			if !yield(rec, nil) {
				return
			}
		}
	}
}
