package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/ucdpipe/internal/config"
	"github.com/vk/ucdpipe/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
)

// ValidateModel checks that every handler name m refers to is registered and
// that enumerated settings hold known values. All problems are reported
// together.
func (r *Registry) ValidateModel(ctx context.Context, m *config.Model) error {
	var errs []string
	logger := ctxlog.FromContext(ctx)

	if m.Pipeline == nil {
		errs = append(errs, "no pipeline block declared")
	} else if len(m.Pipeline.Versions) == 0 {
		errs = append(errs, fmt.Sprintf("pipeline '%s': no versions declared", m.Pipeline.ID))
	}
	if len(m.Sources) == 0 {
		errs = append(errs, "no source blocks declared")
	}

	for _, src := range m.Sources {
		switch src.Backend {
		case config.BackendLocal, config.BackendHTTP:
			if src.Path == "" {
				errs = append(errs, fmt.Sprintf("source '%s': backend '%s' requires 'path'", src.ID, src.Backend))
			}
		case config.BackendMemory:
		default:
			errs = append(errs, fmt.Sprintf("source '%s': unknown backend '%s'", src.ID, src.Backend))
		}
	}

	for _, route := range m.Routes {
		if _, ok := r.parsers[route.Parser]; !ok {
			errs = append(errs, fmt.Sprintf("route '%s': parser '%s' is not registered", route.ID, route.Parser))
		}
		for _, t := range route.Transforms {
			if _, ok := r.transforms[t]; !ok {
				errs = append(errs, fmt.Sprintf("route '%s': transform '%s' is not registered", route.ID, t))
			}
		}
		if _, ok := r.resolvers[route.Resolver]; !ok {
			errs = append(errs, fmt.Sprintf("route '%s': resolver '%s' is not registered", route.ID, route.Resolver))
		}
		for _, a := range route.Artifacts {
			if a.Scope != config.ScopeVersion && a.Scope != config.ScopeGlobal {
				errs = append(errs, fmt.Sprintf("route '%s', artifact '%s': unknown scope '%s'", route.ID, a.Name, a.Scope))
			}
			if a.Type == cty.NilType || a.Type.Equals(cty.DynamicPseudoType) {
				logger.Debug("Artifact has no type constraint; emitted values are not checked.", "route", route.ID, "artifact", a.Name)
			}
		}
	}

	if fb := m.Fallback; fb != nil {
		if _, ok := r.parsers[fb.Parser]; !ok {
			errs = append(errs, fmt.Sprintf("fallback: parser '%s' is not registered", fb.Parser))
		}
		if _, ok := r.resolvers[fb.Resolver]; !ok {
			errs = append(errs, fmt.Sprintf("fallback: resolver '%s' is not registered", fb.Resolver))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// Validate checks the parts of a pipeline declaration that do not involve
// the dependency graph. Graph problems are reported by the dag builder.
func (p *Pipeline) Validate() error {
	var errs []string

	if len(p.Versions) == 0 {
		errs = append(errs, "no versions declared")
	}
	for i, src := range p.Sources {
		if src.Backend == nil {
			errs = append(errs, fmt.Sprintf("source #%d '%s': no backend", i, src.ID))
		}
	}
	for i, r := range p.Routes {
		if r == nil {
			errs = append(errs, fmt.Sprintf("route #%d: nil declaration", i))
			continue
		}
		if r.ID == "" {
			errs = append(errs, fmt.Sprintf("route #%d: empty id", i))
		}
		if r.Parser == nil {
			errs = append(errs, fmt.Sprintf("route '%s': no parser", r.ID))
		}
		if r.Resolver == nil {
			errs = append(errs, fmt.Sprintf("route '%s': no resolver", r.ID))
		}
		seen := make(map[string]struct{}, len(r.Emits))
		for _, a := range r.Emits {
			if a.Name == "" || strings.Contains(a.Name, ":") {
				errs = append(errs, fmt.Sprintf("route '%s': invalid artifact name '%s'", r.ID, a.Name))
			}
			if _, dup := seen[a.Name]; dup {
				errs = append(errs, fmt.Sprintf("route '%s': artifact '%s' declared twice", r.ID, a.Name))
			}
			seen[a.Name] = struct{}{}
			if a.Scope != "" && a.Scope != ScopeVersion && a.Scope != ScopeGlobal {
				errs = append(errs, fmt.Sprintf("route '%s': artifact '%s' has unknown scope '%s'", r.ID, a.Name, a.Scope))
			}
		}
	}
	if fb := p.Fallback; fb != nil {
		if fb.Parser == nil {
			errs = append(errs, "fallback: no parser")
		}
		if fb.Resolver == nil {
			errs = append(errs, "fallback: no resolver")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("pipeline '%s' is invalid:\n- %s", p.ID, strings.Join(errs, "\n- "))
	}
	return nil
}
