// Package dag turns a flat list of route declarations into a validated
// dependency graph.
//
// Build checks the declarations (duplicate ids, unknown routes, undeclared
// artifacts, cycles), then derives two orderings from the graph:
//
//   - Order: a total topological order (depth-first postorder, stable with
//     respect to declaration order).
//   - Layers: the parallel execution plan. Layer k holds exactly the routes
//     whose dependencies all sit in layers 0..k-1, so the routes of one layer
//     have no dependency relationship among themselves.
//
// The graph is immutable once built.
package dag
