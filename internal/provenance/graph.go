// Package provenance records which sources, files, routes, artifacts, and
// outputs a run touched and how they connect.
//
// Insertion is idempotent: adding a node id twice, or the same
// (from, to, kind) edge twice, is a no-op. Route nodes are touched once per
// matching file, so this is relied on by the engine. The graph is safe for
// concurrent use.
package provenance

import (
	"fmt"
	"sync"
)

// NodeKind classifies a provenance node.
type NodeKind string

const (
	NodeSource   NodeKind = "source"
	NodeFile     NodeKind = "file"
	NodeRoute    NodeKind = "route"
	NodeArtifact NodeKind = "artifact"
	NodeOutput   NodeKind = "output"
)

// EdgeKind classifies a provenance edge.
type EdgeKind string

const (
	// EdgeProvides links a source to a file it listed.
	EdgeProvides EdgeKind = "provides"
	// EdgeMatched links a file to a route that selected it.
	EdgeMatched EdgeKind = "matched"
	// EdgeResolved links a route (or a file, for fallback) to an artifact or output.
	EdgeResolved EdgeKind = "resolved"
)

// Node is a vertex of the provenance graph.
type Node struct {
	ID    string            `json:"id"`
	Kind  NodeKind          `json:"kind"`
	Label string            `json:"label"`
	Attrs map[string]string `json:"attrs,omitempty"`
}

// Edge is a directed, typed connection between two nodes.
type Edge struct {
	From string   `json:"from"`
	To   string   `json:"to"`
	Kind EdgeKind `json:"kind"`
}

// Graph is an append-only, insertion-ordered provenance graph.
type Graph struct {
	mu        sync.RWMutex
	nodes     []Node
	nodeIndex map[string]int
	edges     []Edge
	edgeIndex map[Edge]struct{}
}

// New creates an empty provenance graph.
func New() *Graph {
	return &Graph{
		nodeIndex: make(map[string]int),
		edgeIndex: make(map[Edge]struct{}),
	}
}

// AddNode inserts n unless a node with the same id already exists.
func (g *Graph) AddNode(n Node) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodeIndex[n.ID]; ok {
		return
	}
	g.nodeIndex[n.ID] = len(g.nodes)
	g.nodes = append(g.nodes, n)
}

// AddEdge inserts the edge unless it already exists. Both endpoints must have
// been added first.
func (g *Graph) AddEdge(from, to string, kind EdgeKind) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodeIndex[from]; !ok {
		return fmt.Errorf("source node not found: %s", from)
	}
	if _, ok := g.nodeIndex[to]; !ok {
		return fmt.Errorf("destination node not found: %s", to)
	}

	e := Edge{From: from, To: to, Kind: kind}
	if _, ok := g.edgeIndex[e]; ok {
		return nil
	}
	g.edgeIndex[e] = struct{}{}
	g.edges = append(g.edges, e)
	return nil
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	i, ok := g.nodeIndex[id]
	if !ok {
		return Node{}, false
	}
	return g.nodes[i], true
}

// Nodes returns a snapshot of all nodes in insertion order.
func (g *Graph) Nodes() []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Node(nil), g.nodes...)
}

// Edges returns a snapshot of all edges in insertion order.
func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Edge(nil), g.edges...)
}

// NodesOfKind returns the nodes of one kind in insertion order.
func (g *Graph) NodesOfKind(kind NodeKind) []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []Node
	for _, n := range g.nodes {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// EdgesFrom returns the outgoing edges of a node.
func (g *Graph) EdgesFrom(id string) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []Edge
	for _, e := range g.edges {
		if e.From == id {
			out = append(out, e)
		}
	}
	return out
}

// Node id helpers. Ids are namespaced by kind so different kinds never clash.

func SourceID(sourceID string) string { return "source:" + sourceID }

func FileID(version, path string) string { return "file:" + version + "/" + path }

func RouteID(routeID string) string { return "route:" + routeID }

func ArtifactID(version, key string) string { return "artifact:" + version + ":" + key }

func OutputID(seq int) string { return fmt.Sprintf("output:%d", seq) }
