package hcl_adapter

import "github.com/hashicorp/hcl/v2"

// fileRoot decodes all possible top-level blocks from any file. Unknown
// blocks are rejected.
type fileRoot struct {
	Pipelines []*PipelineBlock `hcl:"pipeline,block"`
	Sources   []*SourceBlock   `hcl:"source,block"`
	Routes    []*RouteBlock    `hcl:"route,block"`
	Fallbacks []*FallbackBlock `hcl:"fallback,block"`
}

// PipelineBlock maps to `pipeline "<id>" { ... }`.
type PipelineBlock struct {
	ID          string   `hcl:"id,label"`
	Versions    []string `hcl:"versions"`
	Strict      bool     `hcl:"strict,optional"`
	Concurrency int      `hcl:"concurrency,optional"`
	Include     []string `hcl:"include,optional"`
}

// SourceBlock maps to `source "<id>" { ... }`.
type SourceBlock struct {
	ID         string         `hcl:"id,label"`
	Backend    string         `hcl:"backend"`
	Path       string         `hcl:"path,optional"`
	Include    []string       `hcl:"include,optional"`
	Exclude    []string       `hcl:"exclude,optional"`
	Timeout    string         `hcl:"timeout,optional"`
	RetryCount int            `hcl:"retry_count,optional"`
	Files      hcl.Expression `hcl:"files,optional"`
}

// RouteBlock maps to `route "<id>" { ... }`.
type RouteBlock struct {
	ID         string           `hcl:"id,label"`
	Match      []string         `hcl:"match,optional"`
	Parser     string           `hcl:"parser"`
	Transforms []string         `hcl:"transforms,optional"`
	Resolver   string           `hcl:"resolver"`
	DependsOn  []string         `hcl:"depends_on,optional"`
	Cache      *bool            `hcl:"cache,optional"`
	Options    hcl.Expression   `hcl:"options,optional"`
	Artifacts  []*ArtifactBlock `hcl:"artifact,block"`
}

// ArtifactBlock maps to `artifact "<name>" { ... }` inside a route.
type ArtifactBlock struct {
	Name  string         `hcl:"name,label"`
	Scope string         `hcl:"scope,optional"`
	Type  hcl.Expression `hcl:"type,optional"`
}

// FallbackBlock maps to the unlabeled `fallback { ... }` block.
type FallbackBlock struct {
	Match    []string       `hcl:"match,optional"`
	Parser   string         `hcl:"parser"`
	Resolver string         `hcl:"resolver"`
	Options  hcl.Expression `hcl:"options,optional"`
}
