package dag

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDuplicateRoute    = errors.New("duplicate route id")
	ErrMissingRoute      = errors.New("missing route reference")
	ErrMissingArtifact   = errors.New("missing artifact reference")
	ErrCycle             = errors.New("dependency cycle")
	ErrInvalidDependency = errors.New("invalid dependency")
	ErrLayeringInvariant = errors.New("layering made no progress")
)

// ValidationError is one problem found while building the graph. Which
// fields are set depends on Kind.
type ValidationError struct {
	Kind    error
	RouteID string
	// Indices holds the first and the duplicate declaration index.
	Indices []int
	Token   string
	// Cycle is the path from the revisited route back to itself.
	Cycle []string
	Cause error
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case ErrDuplicateRoute:
		return fmt.Sprintf("%s '%s' declared at indices %d and %d", e.Kind, e.RouteID, e.Indices[0], e.Indices[1])
	case ErrCycle:
		return fmt.Sprintf("%s: %s", e.Kind, strings.Join(e.Cycle, " -> "))
	case ErrInvalidDependency:
		return fmt.Sprintf("route '%s': %s '%s': %v", e.RouteID, e.Kind, e.Token, e.Cause)
	default:
		return fmt.Sprintf("route '%s': %s '%s'", e.RouteID, e.Kind, e.Token)
	}
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *ValidationError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

// BuildError aggregates every validation problem found by Build.
type BuildError struct {
	Errors []*ValidationError
}

func (e *BuildError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, v := range e.Errors {
		msgs[i] = v.Error()
	}
	return fmt.Sprintf("dependency graph validation failed:\n- %s", strings.Join(msgs, "\n- "))
}

// Unwrap lets errors.Is find any of the collected kinds.
func (e *BuildError) Unwrap() []error {
	out := make([]error, len(e.Errors))
	for i, v := range e.Errors {
		out[i] = v
	}
	return out
}

// OfKind returns the collected errors of one kind.
func (e *BuildError) OfKind(kind error) []*ValidationError {
	var out []*ValidationError
	for _, v := range e.Errors {
		if v.Kind == kind {
			out = append(out, v)
		}
	}
	return out
}
