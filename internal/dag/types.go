package dag

import (
	"github.com/vk/ucdpipe/internal/depref"
	"github.com/vk/ucdpipe/internal/registry"
)

// Decl is the part of a route declaration the graph is built from.
type Decl struct {
	ID        string
	DependsOn []string
	// Emits lists artifact names, not keys.
	Emits []string
}

// FromRoutes extracts the graph declarations of routes.
func FromRoutes(routes []*registry.Route) []Decl {
	decls := make([]Decl, len(routes))
	for i, r := range routes {
		emits := make([]string, len(r.Emits))
		for j, a := range r.Emits {
			emits[j] = a.Name
		}
		decls[i] = Decl{ID: r.ID, DependsOn: r.DependsOn, Emits: emits}
	}
	return decls
}

// RouteNode is one route in the graph. The id slices have set semantics and
// keep declaration order.
type RouteNode struct {
	ID string
	// Index is the position of the route in the declaration list.
	Index            int
	Dependencies     []string
	Dependents       []string
	EmittedArtifacts []string
	// Layer is the index of the execution layer holding the route.
	Layer int
}

// DependsOn reports whether id is a direct dependency of n.
func (n *RouteNode) DependsOn(id string) bool {
	for _, d := range n.Dependencies {
		if d == id {
			return true
		}
	}
	return false
}

// Emits reports whether n declares the artifact key.
func (n *RouteNode) Emits(key string) bool {
	for _, k := range n.EmittedArtifacts {
		if k == key {
			return true
		}
	}
	return false
}

// Graph is a validated, acyclic route dependency graph.
type Graph struct {
	nodes  map[string]*RouteNode
	ids    []string
	order  []string
	layers [][]*RouteNode
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*RouteNode, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Len returns the number of routes.
func (g *Graph) Len() int { return len(g.ids) }

// IDs returns route ids in declaration order.
func (g *Graph) IDs() []string { return append([]string(nil), g.ids...) }

// Order returns the total topological order: every dependency precedes its
// dependents.
func (g *Graph) Order() []string { return append([]string(nil), g.order...) }

// Layers returns the execution layers. Within a layer routes keep
// declaration order.
func (g *Graph) Layers() [][]*RouteNode {
	out := make([][]*RouteNode, len(g.layers))
	for i, l := range g.layers {
		out[i] = append([]*RouteNode(nil), l...)
	}
	return out
}

// LayerIDs returns the execution layers as route ids.
func (g *Graph) LayerIDs() [][]string {
	out := make([][]string, len(g.layers))
	for i, l := range g.layers {
		ids := make([]string, len(l))
		for j, n := range l {
			ids[j] = n.ID
		}
		out[i] = ids
	}
	return out
}

// ArtifactProducer returns the route that emits key.
func (g *Graph) ArtifactProducer(key string) (*RouteNode, bool) {
	ref, err := depref.Parse("artifact:" + key)
	if err != nil {
		return nil, false
	}
	n, ok := g.nodes[ref.RouteID]
	if !ok || !n.Emits(key) {
		return nil, false
	}
	return n, true
}
