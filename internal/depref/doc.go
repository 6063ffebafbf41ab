// internal/depref/doc.go

/*
Package depref provides the structured representation of a route dependency
token.

Two canonical forms exist:

	route:<routeId>
	artifact:<routeId>:<artifactName>

Both segments of an artifact reference must be non-empty. This package owns
all formatting and parsing of dependency tokens so the rest of the system can
work with typed references.
*/
package depref
