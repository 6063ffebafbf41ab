// internal/depref/types.go
package depref

import "errors"

// ErrInvalidDependencyFormat is returned for any token that is neither a
// well-formed route reference nor a well-formed artifact reference.
var ErrInvalidDependencyFormat = errors.New("invalid dependency format")

// Kind discriminates the two reference forms.
type Kind string

const (
	KindRoute    Kind = "route"
	KindArtifact Kind = "artifact"
)

// Reference is the parsed form of a dependency token. ArtifactName is only
// set for KindArtifact.
type Reference struct {
	Kind         Kind
	RouteID      string
	ArtifactName string
}

// Route builds a route reference.
func Route(routeID string) Reference {
	return Reference{Kind: KindRoute, RouteID: routeID}
}

// Artifact builds an artifact reference.
func Artifact(routeID, artifactName string) Reference {
	return Reference{Kind: KindArtifact, RouteID: routeID, ArtifactName: artifactName}
}

// IsArtifact reports whether the reference points at an emitted artifact.
func (r Reference) IsArtifact() bool {
	return r.Kind == KindArtifact
}

// ArtifactKey returns the "<routeId>:<artifactName>" key used by the artifact
// table. It is empty for route references.
func (r Reference) ArtifactKey() string {
	if r.Kind != KindArtifact {
		return ""
	}
	return ArtifactKey(r.RouteID, r.ArtifactName)
}

// ArtifactKey joins a producer route id and artifact name.
func ArtifactKey(routeID, artifactName string) string {
	return routeID + ":" + artifactName
}
