// This file translates the decoded HCL blocks into the format-agnostic
// configuration model defined in the config package.

package hcl_adapter

import (
	"context"
	"fmt"

	"github.com/vk/ucdpipe/internal/config"
	"github.com/vk/ucdpipe/internal/ctxlog"
)

func translatePipeline(p *PipelineBlock) *config.Pipeline {
	return &config.Pipeline{
		ID:          p.ID,
		Versions:    p.Versions,
		Strict:      p.Strict,
		Concurrency: p.Concurrency,
		Include:     p.Include,
	}
}

func translateSource(ctx context.Context, s *SourceBlock) (*config.Source, error) {
	logger := ctxlog.FromContext(ctx).With("source", s.ID)
	logger.Debug("Translating HCL source to internal config model.", "backend", s.Backend)

	src := &config.Source{
		ID:         s.ID,
		Backend:    s.Backend,
		Path:       s.Path,
		Include:    s.Include,
		Exclude:    s.Exclude,
		Timeout:    s.Timeout,
		RetryCount: s.RetryCount,
	}
	if isExprDefined(ctx, s.Files, "files") {
		files, err := decodeFiles(s.Files)
		if err != nil {
			return nil, fmt.Errorf("source '%s': %w", s.ID, err)
		}
		src.Files = files
	}
	return src, nil
}

func translateRoute(ctx context.Context, r *RouteBlock) (*config.Route, error) {
	ctx = ctxlog.With(ctx, "route", r.ID)
	ctxlog.FromContext(ctx).Debug("Translating HCL route to internal config model.")

	route := &config.Route{
		ID:         r.ID,
		Match:      r.Match,
		Parser:     r.Parser,
		Transforms: r.Transforms,
		Resolver:   r.Resolver,
		DependsOn:  r.DependsOn,
		Cache:      r.Cache,
	}

	if isExprDefined(ctx, r.Options, "options") {
		opts, err := decodeOptions(r.Options)
		if err != nil {
			return nil, fmt.Errorf("route '%s': %w", r.ID, err)
		}
		route.Options = opts
	}

	for _, a := range r.Artifacts {
		typeExpr := a.Type
		if !isExprDefined(ctx, typeExpr, "type") {
			typeExpr = nil
		}
		artifactType, err := typeExprToCtyType(ctx, typeExpr)
		if err != nil {
			return nil, fmt.Errorf("in route '%s', artifact '%s': %w", r.ID, a.Name, err)
		}
		scope := a.Scope
		if scope == "" {
			scope = config.ScopeVersion
		}
		route.Artifacts = append(route.Artifacts, &config.Artifact{
			Name:  a.Name,
			Scope: scope,
			Type:  artifactType,
		})
	}
	return route, nil
}

func translateFallback(ctx context.Context, f *FallbackBlock) (*config.Fallback, error) {
	fb := &config.Fallback{
		Match:    f.Match,
		Parser:   f.Parser,
		Resolver: f.Resolver,
	}
	if isExprDefined(ctx, f.Options, "options") {
		opts, err := decodeOptions(f.Options)
		if err != nil {
			return nil, fmt.Errorf("fallback: %w", err)
		}
		fb.Options = opts
	}
	return fb, nil
}
