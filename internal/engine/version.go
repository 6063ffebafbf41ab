package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/ucdpipe/internal/ctxlog"
	"github.com/vk/ucdpipe/internal/event"
	"github.com/vk/ucdpipe/internal/model"
	"github.com/vk/ucdpipe/internal/provenance"
	"github.com/vk/ucdpipe/internal/result"
	"github.com/vk/ucdpipe/internal/source"
	"github.com/vk/ucdpipe/internal/workpool"
)

const fallbackTaskPrefix = "fallback:"

// versionRun is the state of one version of a run.
type versionRun struct {
	*run
	version   string
	artifacts *artifactTable
	pool      *workpool.Pool

	// prior holds the global artifacts published by earlier versions.
	prior *artifactTable
}

func (r *run) runVersion(ctx context.Context, version string) {
	ctx = ctxlog.With(ctx, "version", version)
	logger := ctxlog.FromContext(ctx)
	p := r.engine.pipeline

	start := r.engine.now()
	r.emit(ctx, event.Event{Type: event.VersionStart, Version: version})
	r.agg.Count(func(s *result.Summary) { s.Versions++ })
	defer func() {
		r.emit(ctx, event.Event{Type: event.VersionEnd, Version: version, Duration: r.engine.now().Sub(start)})
	}()

	files, err := source.Resolve(ctx, p.Sources, version)
	if err != nil {
		r.fail(ctx, &result.RunError{
			Scope:   result.ScopeVersion,
			Message: fmt.Sprintf("failed to resolve files: %v", err),
			Cause:   err,
			Version: version,
		})
		return
	}

	v := &versionRun{run: r, version: version, artifacts: newArtifactTable(), prior: r.global.snapshot()}
	v.pool = workpool.New(ctx, p.EffectiveConcurrency(), v.onTaskError)

	files = v.applyInclude(ctx, files)
	r.agg.Count(func(s *result.Summary) { s.TotalFiles += len(files) })

	selected, matched := v.match(files)
	r.agg.Count(func(s *result.Summary) { s.MatchedFiles += len(matched) })
	logger.Debug("Files resolved.", "files", len(files), "matched", len(matched))

	for k, layer := range r.engine.graph.Layers() {
		logger.Debug("Running layer.", "layer", k, "routes", len(layer))
		for _, node := range layer {
			route := r.engine.routes[node.ID]
			routeFiles := selected[node.ID]
			v.pool.Submit(node.ID, func(ctx context.Context) error {
				v.runRoute(ctx, route, node, routeFiles)
				return nil
			})
		}
		v.pool.Drain()
	}

	v.sweep(ctx, files, matched)
}

// applyInclude records every file in the provenance graph and drops files
// the pipeline-wide include filter rejects.
func (v *versionRun) applyInclude(ctx context.Context, files []source.File) []source.File {
	include := v.engine.pipeline.Include
	kept := files[:0:0]
	for _, f := range files {
		v.prov.AddNode(provenance.Node{ID: provenance.SourceID(f.SourceID), Kind: provenance.NodeSource, Label: f.SourceID})
		v.prov.AddNode(provenance.Node{
			ID:    provenance.FileID(f.Version, f.Path),
			Kind:  provenance.NodeFile,
			Label: f.Path,
			Attrs: map[string]string{"version": f.Version, "category": f.DirectoryCategory},
		})
		v.link(ctx, provenance.SourceID(f.SourceID), provenance.FileID(f.Version, f.Path), provenance.EdgeProvides)

		if include != nil && !include(f.FileIdentity, nil) {
			identity := f.FileIdentity
			v.emit(ctx, event.Event{Type: event.FileSkipped, Version: v.version, File: &identity, Reason: event.ReasonFiltered})
			v.agg.Count(func(s *result.Summary) { s.FilteredFiles++ })
			continue
		}
		kept = append(kept, f)
	}
	return kept
}

// match evaluates every route filter against every file. Filters are pure
// predicates, so this happens before any route runs.
func (v *versionRun) match(files []source.File) (map[string][]source.File, map[string]bool) {
	selected := make(map[string][]source.File)
	matched := make(map[string]bool)
	for _, id := range v.engine.graph.IDs() {
		route := v.engine.routes[id]
		for _, f := range files {
			if route.Filter == nil || route.Filter(f.FileIdentity, nil) {
				selected[id] = append(selected[id], f)
				matched[f.Path] = true
			}
		}
	}
	return selected, matched
}

// onTaskError turns a failure that escaped a task into a route error, or a
// file error for fallback tasks.
func (v *versionRun) onTaskError(name string, err error) {
	runErr := &result.RunError{
		Scope:   result.ScopeRoute,
		Message: err.Error(),
		Cause:   err,
		RouteID: name,
		Version: v.version,
	}
	if path, ok := strings.CutPrefix(name, fallbackTaskPrefix); ok {
		identity := model.NewFileIdentity(v.version, path)
		runErr.Scope = result.ScopeFile
		runErr.RouteID = ""
		runErr.File = &identity
	}
	v.fail(v.pool.Context(), runErr)
}

// sweep handles files no route matched.
func (v *versionRun) sweep(ctx context.Context, files []source.File, matched map[string]bool) {
	p := v.engine.pipeline
	var fallback []source.File

	for _, f := range files {
		if matched[f.Path] {
			continue
		}
		identity := f.FileIdentity
		switch {
		case p.Fallback != nil && (p.Fallback.Filter == nil || p.Fallback.Filter(identity, nil)):
			fallback = append(fallback, f)
		case p.Strict:
			v.fail(ctx, &result.RunError{
				Scope:   result.ScopeFile,
				Message: fmt.Sprintf("no matching route for file %s", f.Path),
				File:    &identity,
				Version: v.version,
			})
		default:
			v.emit(ctx, event.Event{Type: event.FileSkipped, Version: v.version, File: &identity, Reason: event.ReasonNoMatch})
			v.agg.Count(func(s *result.Summary) { s.SkippedFiles++ })
		}
	}

	if len(fallback) == 0 {
		return
	}
	for _, f := range fallback {
		v.pool.Submit(fallbackTaskPrefix+f.Path, func(ctx context.Context) error {
			v.runFallback(ctx, f)
			return nil
		})
	}
	v.pool.Drain()
}
