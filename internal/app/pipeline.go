package app

import (
	"context"
	"fmt"
	"time"

	"github.com/vk/ucdpipe/internal/config"
	"github.com/vk/ucdpipe/internal/ctxlog"
	"github.com/vk/ucdpipe/internal/filter"
	"github.com/vk/ucdpipe/internal/registry"
	"github.com/vk/ucdpipe/internal/source"
)

// buildPipeline binds the names in a validated model to registered handlers
// and constructs the source backends. The returned closers release backend
// resources.
func buildPipeline(ctx context.Context, m *config.Model, reg *registry.Registry, workers int) (*registry.Pipeline, []func() error, error) {
	logger := ctxlog.FromContext(ctx)
	var closers []func() error

	p := &registry.Pipeline{
		ID:          m.Pipeline.ID,
		Versions:    m.Pipeline.Versions,
		Strict:      m.Pipeline.Strict,
		Concurrency: m.Pipeline.Concurrency,
		Include:     filter.FromGlobs(m.Pipeline.Include),
	}
	if workers > 0 {
		p.Concurrency = workers
	}

	for _, s := range m.Sources {
		backend, closer, err := newBackend(s)
		if err != nil {
			return nil, closers, err
		}
		if closer != nil {
			closers = append(closers, closer)
		}
		p.Sources = append(p.Sources, source.Source{
			ID:      s.ID,
			Backend: backend,
			Include: filter.FromGlobs(s.Include),
			Exclude: filter.FromGlobs(s.Exclude),
		})
		logger.Debug("Source configured.", "source", s.ID, "backend", s.Backend)
	}

	for _, r := range m.Routes {
		route, err := bindRoute(r, reg)
		if err != nil {
			return nil, closers, err
		}
		p.Routes = append(p.Routes, route)
	}

	if fb := m.Fallback; fb != nil {
		parser, _ := reg.Parser(fb.Parser)
		resolver, _ := reg.Resolver(fb.Resolver)
		p.Fallback = &registry.Fallback{
			Filter:   filter.FromGlobs(fb.Match),
			Parser:   parser,
			Resolver: resolver,
			Options:  fb.Options,
		}
	}

	logger.Debug("Pipeline assembled.", "sources", len(p.Sources), "routes", len(p.Routes), "fallback", p.Fallback != nil)
	return p, closers, nil
}

func bindRoute(r *config.Route, reg *registry.Registry) (*registry.Route, error) {
	parser, ok := reg.Parser(r.Parser)
	if !ok {
		return nil, fmt.Errorf("route '%s': parser '%s' is not registered", r.ID, r.Parser)
	}
	resolver, ok := reg.Resolver(r.Resolver)
	if !ok {
		return nil, fmt.Errorf("route '%s': resolver '%s' is not registered", r.ID, r.Resolver)
	}

	route := &registry.Route{
		ID:        r.ID,
		Filter:    filter.FromGlobs(r.Match),
		DependsOn: r.DependsOn,
		Parser:    parser,
		Resolver:  resolver,
		NoCache:   !r.CacheEnabled(),
		Options:   r.Options,
	}
	for _, name := range r.Transforms {
		t, ok := reg.Transform(name)
		if !ok {
			return nil, fmt.Errorf("route '%s': transform '%s' is not registered", r.ID, name)
		}
		route.Transforms = append(route.Transforms, t)
	}
	for _, a := range r.Artifacts {
		route.Emits = append(route.Emits, registry.ArtifactDecl{
			Name:   a.Name,
			Scope:  registry.ArtifactScope(a.Scope),
			Schema: a.Type,
		})
	}
	return route, nil
}

// newBackend constructs the backend a source block names.
func newBackend(s *config.Source) (source.Backend, func() error, error) {
	switch s.Backend {
	case config.BackendLocal:
		return source.NewLocal(s.Path), nil, nil
	case config.BackendHTTP:
		var timeout time.Duration
		if s.Timeout != "" {
			d, err := time.ParseDuration(s.Timeout)
			if err != nil {
				return nil, nil, fmt.Errorf("source '%s': invalid timeout %q: %w", s.ID, s.Timeout, err)
			}
			timeout = d
		}
		h := source.NewHTTP(source.HTTPConfig{BaseURL: s.Path, Timeout: timeout, RetryCount: s.RetryCount})
		return h, h.Close, nil
	case config.BackendMemory:
		return source.NewMemory(s.Files), nil, nil
	default:
		return nil, nil, fmt.Errorf("source '%s': unknown backend '%s'", s.ID, s.Backend)
	}
}
