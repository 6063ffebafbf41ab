// Package ucd provides the handlers for Unicode Character Database text
// files: a semicolon-separated row parser, record transforms, and resolvers
// that turn records into output entries.
package ucd

import "github.com/vk/ucdpipe/internal/registry"

// Handler names as referenced from pipeline declarations.
const (
	ParserSemicolon = "semicolon"

	TransformDropEmpty     = "drop-empty"
	TransformSortCodePoint = "sort-codepoint"
	TransformDedupe        = "dedupe"

	ResolverRaw            = "raw"
	ResolverPropertyRanges = "property-ranges"
	ResolverAliases        = "aliases"
	ResolverAliasEnrich    = "alias-enrich"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the handlers with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterParser(ParserSemicolon, ParseSemicolon)

	r.RegisterTransform(TransformDropEmpty, DropEmpty)
	r.RegisterTransform(TransformSortCodePoint, SortCodePoint)
	r.RegisterTransform(TransformDedupe, Dedupe)

	r.RegisterResolver(ResolverRaw, ResolveRaw)
	r.RegisterResolver(ResolverPropertyRanges, ResolvePropertyRanges)
	r.RegisterResolver(ResolverAliases, ResolveAliases)
	r.RegisterResolver(ResolverAliasEnrich, ResolveAliasEnrich)
}
