package dag

import (
	"context"
	"fmt"

	"github.com/vk/ucdpipe/internal/ctxlog"
	"github.com/vk/ucdpipe/internal/depref"
)

// Build validates decls and constructs the graph. It returns either a graph
// or a *BuildError, never both.
//
// Duplicate ids stop construction immediately. Otherwise every reference
// problem is collected, and the first cycle found is added to them.
func Build(ctx context.Context, decls []Decl) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Build: Starting graph construction.", "routes", len(decls))

	if dups := findDuplicates(decls); len(dups) > 0 {
		return nil, &BuildError{Errors: dups}
	}

	g := &Graph{nodes: make(map[string]*RouteNode, len(decls))}
	for i, d := range decls {
		n := &RouteNode{ID: d.ID, Index: i}
		for _, name := range d.Emits {
			n.EmittedArtifacts = append(n.EmittedArtifacts, depref.ArtifactKey(d.ID, name))
		}
		g.nodes[d.ID] = n
		g.ids = append(g.ids, d.ID)
	}

	errs := g.link(decls)
	logger.Debug("Build: Node linking complete.", "errors", len(errs))

	if cycle := g.findCycle(); cycle != nil {
		errs = append(errs, &ValidationError{Kind: ErrCycle, RouteID: cycle[0], Cycle: cycle})
	}
	if len(errs) > 0 {
		return nil, &BuildError{Errors: errs}
	}

	g.order = g.topologicalOrder()
	layers, err := g.computeLayers()
	if err != nil {
		return nil, err
	}
	g.layers = layers

	logger.Debug("Build: Graph construction successful.", "layers", len(layers))
	return g, nil
}

func findDuplicates(decls []Decl) []*ValidationError {
	first := make(map[string]int, len(decls))
	var errs []*ValidationError
	for i, d := range decls {
		if j, ok := first[d.ID]; ok {
			errs = append(errs, &ValidationError{Kind: ErrDuplicateRoute, RouteID: d.ID, Indices: []int{j, i}})
			continue
		}
		first[d.ID] = i
	}
	return errs
}

// link resolves dependency tokens into edges.
func (g *Graph) link(decls []Decl) []*ValidationError {
	var errs []*ValidationError
	for _, d := range decls {
		n := g.nodes[d.ID]
		for _, token := range d.DependsOn {
			ref, err := depref.Parse(token)
			if err != nil {
				errs = append(errs, &ValidationError{Kind: ErrInvalidDependency, RouteID: d.ID, Token: token, Cause: err})
				continue
			}
			target, ok := g.nodes[ref.RouteID]
			if !ok {
				errs = append(errs, &ValidationError{Kind: ErrMissingRoute, RouteID: d.ID, Token: token})
				continue
			}
			if ref.IsArtifact() && !target.Emits(ref.ArtifactKey()) {
				errs = append(errs, &ValidationError{Kind: ErrMissingArtifact, RouteID: d.ID, Token: token})
				continue
			}
			addEdge(target, n)
		}
	}
	return errs
}

func addEdge(from, to *RouteNode) {
	if to.DependsOn(from.ID) {
		return
	}
	to.Dependencies = append(to.Dependencies, from.ID)
	from.Dependents = append(from.Dependents, to.ID)
}

// findCycle runs a depth-first search over dependency edges in declaration
// order with an explicit stack. On reaching a route that is still on the
// stack it returns the path from that route back to itself.
func (g *Graph) findCycle() []string {
	const (
		unvisited = iota
		onStack
		done
	)
	state := make(map[string]int, len(g.ids))

	type frame struct {
		id   string
		next int
	}

	for _, root := range g.ids {
		if state[root] != unvisited {
			continue
		}
		stack := []frame{{id: root}}
		state[root] = onStack

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			deps := g.nodes[top.id].Dependencies
			if top.next == len(deps) {
				state[top.id] = done
				stack = stack[:len(stack)-1]
				continue
			}
			dep := deps[top.next]
			top.next++

			switch state[dep] {
			case onStack:
				var cycle []string
				for i := range stack {
					if stack[i].id == dep {
						for _, f := range stack[i:] {
							cycle = append(cycle, f.id)
						}
						break
					}
				}
				return append(cycle, dep)
			case unvisited:
				state[dep] = onStack
				stack = append(stack, frame{id: dep})
			}
		}
	}
	return nil
}

// topologicalOrder appends routes in depth-first postorder over their
// dependencies, visiting roots in declaration order.
func (g *Graph) topologicalOrder() []string {
	visited := make(map[string]bool, len(g.ids))
	order := make([]string, 0, len(g.ids))

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, dep := range g.nodes[id].Dependencies {
			visit(dep)
		}
		order = append(order, id)
	}
	for _, id := range g.ids {
		visit(id)
	}
	return order
}

// computeLayers repeatedly schedules every route whose dependencies are all
// scheduled.
func (g *Graph) computeLayers() ([][]*RouteNode, error) {
	scheduled := make(map[string]bool, len(g.ids))
	var layers [][]*RouteNode

	for len(scheduled) < len(g.ids) {
		var layer []*RouteNode
		for _, id := range g.ids {
			if scheduled[id] {
				continue
			}
			n := g.nodes[id]
			ready := true
			for _, dep := range n.Dependencies {
				if !scheduled[dep] {
					ready = false
					break
				}
			}
			if ready {
				layer = append(layer, n)
			}
		}
		if len(layer) == 0 {
			return nil, fmt.Errorf("%w: %d of %d routes scheduled", ErrLayeringInvariant, len(scheduled), len(g.ids))
		}
		for _, n := range layer {
			n.Layer = len(layers)
			scheduled[n.ID] = true
		}
		layers = append(layers, layer)
	}
	return layers, nil
}
