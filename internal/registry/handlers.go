package registry

import (
	"context"
	"io"

	"github.com/vk/ucdpipe/internal/model"
	"github.com/vk/ucdpipe/internal/stream"
)

// ParseInput is what a parser reads from.
type ParseInput struct {
	File    model.FileIdentity
	Reader  io.Reader
	Options map[string]any
}

// ParserFunc turns file content into a lazy record sequence. The reader is
// only valid while the returned sequence is being consumed.
type ParserFunc func(ctx context.Context, in ParseInput) stream.Seq

// TransformFunc consumes one record sequence and lazily produces another.
type TransformFunc func(ctx context.Context, records stream.Seq, opts map[string]any) stream.Seq

// ResolveContext is what a resolver sees of the run.
type ResolveContext interface {
	Version() string
	File() model.FileIdentity
	RouteID() string
	Options() map[string]any
	// GetArtifact returns the value emitted under "<routeId>:<name>" by a
	// route scheduled in an earlier layer. Absent values report false.
	GetArtifact(key string) (any, bool)
	// EmitArtifact publishes a value under "<thisRoute>:<name>". The name
	// must be declared by the route and the value must fit its schema.
	EmitArtifact(name string, value any) error
	NormalizeEntries(entries []model.Entry) []model.Entry
	// Now returns the current instant as an ISO-8601 string.
	Now() string
}

// ResolverFunc turns a record sequence into output. Returning Outputs yields
// several values, nil yields none, anything else yields exactly one.
type ResolverFunc func(ctx context.Context, rc ResolveContext, records stream.Seq) (any, error)

// Outputs is returned by a resolver that produces several values.
type Outputs []any

// NormalizeOutputs turns a resolver's return value into a sequence.
func NormalizeOutputs(v any) []any {
	switch o := v.(type) {
	case nil:
		return nil
	case Outputs:
		return []any(o)
	default:
		return []any{v}
	}
}

// GetArtifact fetches an artifact and asserts its type. A present value of
// another type reports false.
func GetArtifact[T any](rc ResolveContext, key string) (T, bool) {
	var zero T
	v, ok := rc.GetArtifact(key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}
