// internal/depref/parser.go
package depref

import (
	"fmt"
	"strings"
)

const (
	routePrefix    = "route:"
	artifactPrefix = "artifact:"
)

// Parse converts a dependency token into a Reference.
func Parse(token string) (Reference, error) {
	switch {
	case strings.HasPrefix(token, routePrefix):
		id := strings.TrimPrefix(token, routePrefix)
		if id == "" {
			return Reference{}, fmt.Errorf("%w: %q has an empty route id", ErrInvalidDependencyFormat, token)
		}
		if strings.Contains(id, ":") {
			return Reference{}, fmt.Errorf("%w: %q route id must not contain ':'", ErrInvalidDependencyFormat, token)
		}
		return Route(id), nil

	case strings.HasPrefix(token, artifactPrefix):
		rest := strings.TrimPrefix(token, artifactPrefix)
		routeID, name, ok := strings.Cut(rest, ":")
		if !ok {
			return Reference{}, fmt.Errorf("%w: %q must be artifact:<routeId>:<artifactName>", ErrInvalidDependencyFormat, token)
		}
		if routeID == "" {
			return Reference{}, fmt.Errorf("%w: %q has an empty route id", ErrInvalidDependencyFormat, token)
		}
		if name == "" {
			return Reference{}, fmt.Errorf("%w: %q has an empty artifact name", ErrInvalidDependencyFormat, token)
		}
		if strings.Contains(name, ":") {
			return Reference{}, fmt.Errorf("%w: %q artifact name must not contain ':'", ErrInvalidDependencyFormat, token)
		}
		return Artifact(routeID, name), nil
	}

	return Reference{}, fmt.Errorf("%w: %q must start with %q or %q", ErrInvalidDependencyFormat, token, routePrefix, artifactPrefix)
}

// MustParse is Parse for statically known tokens. It panics on error.
func MustParse(token string) Reference {
	ref, err := Parse(token)
	if err != nil {
		panic(err)
	}
	return ref
}

// String serializes the Reference into its canonical token.
func (r Reference) String() string {
	switch r.Kind {
	case KindRoute:
		return routePrefix + r.RouteID
	case KindArtifact:
		return artifactPrefix + r.RouteID + ":" + r.ArtifactName
	}
	return ""
}
