package registry

import (
	"fmt"

	"github.com/vk/ucdpipe/internal/depref"
	"github.com/vk/ucdpipe/internal/event"
	"github.com/vk/ucdpipe/internal/filter"
	"github.com/vk/ucdpipe/internal/source"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// DefaultConcurrency is the worker limit used when a pipeline sets none.
const DefaultConcurrency = 4

// ArtifactScope controls how long an artifact stays visible.
type ArtifactScope string

const (
	// ScopeVersion artifacts are visible within the version that emitted them.
	ScopeVersion ArtifactScope = "version"
	// ScopeGlobal artifacts stay visible to later versions of the same run.
	ScopeGlobal ArtifactScope = "global"
)

// ArtifactDecl declares an artifact a route emits.
type ArtifactDecl struct {
	Name  string
	Scope ArtifactScope
	// Schema constrains emitted values. cty.NilType and
	// cty.DynamicPseudoType accept anything.
	Schema cty.Type
}

// Validate checks value against the declared schema.
func (a ArtifactDecl) Validate(value any) error {
	if a.Schema == cty.NilType || a.Schema.Equals(cty.DynamicPseudoType) {
		return nil
	}
	if _, err := gocty.ToCtyValue(value, a.Schema); err != nil {
		return fmt.Errorf("artifact '%s' does not match type %s: %w", a.Name, a.Schema.FriendlyName(), err)
	}
	return nil
}

// Route is one processing rule.
type Route struct {
	ID string
	// Filter selects the files the route processes. Nil selects every file.
	Filter filter.Predicate
	// DependsOn holds dependency tokens, see package depref.
	DependsOn  []string
	Emits      []ArtifactDecl
	Parser     ParserFunc
	Transforms []TransformFunc
	Resolver   ResolverFunc
	// NoCache opts the route out of the output cache.
	NoCache bool
	Options map[string]any
}

// Artifact returns the declaration of an emitted artifact.
func (r *Route) Artifact(name string) (ArtifactDecl, bool) {
	for _, a := range r.Emits {
		if a.Name == name {
			return a, true
		}
	}
	return ArtifactDecl{}, false
}

// ArtifactKeys returns the "<routeId>:<name>" keys the route emits.
func (r *Route) ArtifactKeys() []string {
	keys := make([]string, len(r.Emits))
	for i, a := range r.Emits {
		keys[i] = depref.ArtifactKey(r.ID, a.Name)
	}
	return keys
}

// Fallback handles files matched by no route.
type Fallback struct {
	// Filter restricts the fallback. Nil accepts every unmatched file.
	Filter   filter.Predicate
	Parser   ParserFunc
	Resolver ResolverFunc
	Options  map[string]any
}

// Observer receives the pipeline's events.
type Observer = event.Observer

// Pipeline is a complete pipeline declaration.
type Pipeline struct {
	ID       string
	Versions []string
	Sources  []source.Source
	Routes   []*Route
	Fallback *Fallback
	// Include is applied to every resolved file before matching.
	Include filter.Predicate
	// Strict turns unmatched files without a fallback into file errors.
	Strict      bool
	Concurrency int
	Observers   []Observer
}

// EffectiveConcurrency returns Concurrency or the default.
func (p *Pipeline) EffectiveConcurrency() int {
	if p.Concurrency <= 0 {
		return DefaultConcurrency
	}
	return p.Concurrency
}
