package config

import "github.com/zclconf/go-cty/cty"

// Source backend names.
const (
	BackendLocal  = "local"
	BackendHTTP   = "http"
	BackendMemory = "memory"
)

// Artifact scopes.
const (
	ScopeVersion = "version"
	ScopeGlobal  = "global"
)

// Model is the format-agnostic representation of one pipeline declaration.
type Model struct {
	Pipeline *Pipeline
	Sources  []*Source
	Routes   []*Route
	Fallback *Fallback
}

// Pipeline holds the run-wide settings of a `pipeline` block.
type Pipeline struct {
	ID          string
	Versions    []string
	Strict      bool
	Concurrency int
	// Include is a list of glob patterns applied to every resolved file.
	Include []string
}

// Source is the representation of a `source` block.
type Source struct {
	ID      string
	Backend string
	// Path is the mirror root for local sources and the base URL for http.
	Path       string
	Include    []string
	Exclude    []string
	Timeout    string
	RetryCount int
	// Files holds inline content for memory sources: version -> path -> text.
	Files map[string]map[string]string
}

// Route is the representation of a `route` block.
type Route struct {
	ID         string
	Match      []string
	Parser     string
	Transforms []string
	Resolver   string
	DependsOn  []string
	// Cache is nil when the attribute was omitted.
	Cache     *bool
	Options   map[string]any
	Artifacts []*Artifact
}

// CacheEnabled reports whether the route may use the output cache.
func (r *Route) CacheEnabled() bool {
	return r.Cache == nil || *r.Cache
}

// Artifact is the representation of an `artifact` block inside a route.
type Artifact struct {
	Name  string
	Scope string
	// Type is cty.DynamicPseudoType when no constraint was declared.
	Type cty.Type
}

// Fallback is the representation of the `fallback` block.
type Fallback struct {
	Match    []string
	Parser   string
	Resolver string
	Options  map[string]any
}
