// Copyright (C) 2025 Code Atlas AI (oss@codeatlas.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package graph builds and orders the component dependency graph.
//
// The graph uses natural dependency direction: an edge A -> B means
// "A depends on B". Root nodes are components nothing depends on; leaf-ward
// traversal therefore emits dependencies before their dependents.
//
// All ordering operations are deterministic: node and successor iteration is
// sorted, so the same input always produces the same output.
package graph

import (
	"sort"

	"github.com/CodeAtlasAI/codeatlas/services/atlas/analyzer"
)

// Graph is a directed dependency graph over component ids.
//
// Not safe for concurrent mutation; build it once, then share read-only.
type Graph struct {
	adj map[string]map[string]struct{}
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{adj: make(map[string]map[string]struct{})}
}

// Build constructs a graph from a frozen registry and the raw edge list.
//
// Every registered component becomes a node. An edge is kept only when both
// endpoints are registered components; unresolved references to external
// libraries or builtins drop out here. Self-edges are skipped.
func Build(reg *analyzer.Registry, edges []analyzer.DependencyEdge) *Graph {
	g := New()
	for _, id := range reg.IDs() {
		g.AddNode(id)
	}
	for _, e := range edges {
		if e.CallerID == e.CalleeID {
			continue
		}
		if reg.Has(e.CallerID) && reg.Has(e.CalleeID) {
			g.AddEdge(e.CallerID, e.CalleeID)
		}
	}
	return g
}

// AddNode inserts a node with no edges. Idempotent.
func (g *Graph) AddNode(id string) {
	if _, ok := g.adj[id]; !ok {
		g.adj[id] = make(map[string]struct{})
	}
}

// AddEdge inserts a dependency edge from caller to callee, adding either
// endpoint as a node if needed.
func (g *Graph) AddEdge(caller, callee string) {
	g.AddNode(caller)
	g.AddNode(callee)
	g.adj[caller][callee] = struct{}{}
}

// RemoveEdge deletes the edge from caller to callee if present.
func (g *Graph) RemoveEdge(caller, callee string) {
	if deps, ok := g.adj[caller]; ok {
		delete(deps, callee)
	}
}

// HasNode reports whether the node exists.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.adj[id]
	return ok
}

// HasEdge reports whether caller depends on callee.
func (g *Graph) HasEdge(caller, callee string) bool {
	deps, ok := g.adj[caller]
	if !ok {
		return false
	}
	_, ok = deps[callee]
	return ok
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.adj) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, deps := range g.adj {
		n += len(deps)
	}
	return n
}

// Nodes returns all node ids in sorted order.
func (g *Graph) Nodes() []string {
	out := make([]string, 0, len(g.adj))
	for id := range g.adj {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Dependencies returns the node's direct dependencies in sorted order.
func (g *Graph) Dependencies(id string) []string {
	deps, ok := g.adj[id]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(deps))
	for d := range deps {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// DependentCount returns how many nodes depend on id.
func (g *Graph) DependentCount(id string) int {
	n := 0
	for _, deps := range g.adj {
		if _, ok := deps[id]; ok {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of the graph.
func (g *Graph) Clone() *Graph {
	out := &Graph{adj: make(map[string]map[string]struct{}, len(g.adj))}
	for id, deps := range g.adj {
		copied := make(map[string]struct{}, len(deps))
		for d := range deps {
			copied[d] = struct{}{}
		}
		out.adj[id] = copied
	}
	return out
}

// Subgraph returns the induced subgraph over the given node ids. Edges with
// an endpoint outside the set are dropped.
func (g *Graph) Subgraph(ids []string) *Graph {
	keep := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if g.HasNode(id) {
			keep[id] = struct{}{}
		}
	}
	out := New()
	for id := range keep {
		out.AddNode(id)
		for dep := range g.adj[id] {
			if _, ok := keep[dep]; ok {
				out.AddEdge(id, dep)
			}
		}
	}
	return out
}
