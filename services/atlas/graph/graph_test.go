// Copyright (C) 2025 Code Atlas AI (oss@codeatlas.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeAtlasAI/codeatlas/services/atlas/analyzer"
)

func registryWith(t *testing.T, ids ...string) *analyzer.Registry {
	t.Helper()
	r := analyzer.NewRegistry()
	for _, id := range ids {
		require.NoError(t, r.Add(&analyzer.Component{
			ID:           id,
			Name:         id,
			Kind:         analyzer.KindClass,
			RelativePath: id + ".py",
			StartLine:    1,
			EndLine:      5,
		}))
	}
	r.Freeze()
	return r
}

func edge(caller, callee string) analyzer.DependencyEdge {
	return analyzer.DependencyEdge{CallerID: caller, CalleeID: callee, Line: 1}
}

// indexOf returns the position of id in order, failing the test when absent.
func indexOf(t *testing.T, order []string, id string) int {
	t.Helper()
	for i, v := range order {
		if v == id {
			return i
		}
	}
	t.Fatalf("%q not in order %v", id, order)
	return -1
}

func TestBuild_FiltersUnknownEndpoints(t *testing.T) {
	reg := registryWith(t, "a", "b")
	g := Build(reg, []analyzer.DependencyEdge{
		edge("a", "b"),
		edge("a", "external.lib"), // callee not registered
		edge("ghost", "b"),        // caller not registered
		edge("a", "a"),            // self edge
	})

	assert.Equal(t, 2, g.Len())
	assert.Equal(t, 1, g.EdgeCount())
	assert.True(t, g.HasEdge("a", "b"))
}

func TestDetectCycles_FindsOnlyRealCycles(t *testing.T) {
	g := New()
	g.AddEdge("a", "b")
	g.AddEdge("b", "a")
	g.AddEdge("c", "a") // not part of the cycle

	cycles := g.DetectCycles()
	require.Len(t, cycles, 1)
	assert.ElementsMatch(t, []string{"a", "b"}, cycles[0])
}

func TestDetectCycles_AcyclicGraph(t *testing.T) {
	g := New()
	g.AddEdge("a", "b")
	g.AddEdge("b", "c")
	g.AddEdge("a", "c")

	assert.Empty(t, g.DetectCycles())
}

func TestResolveCycles_BreaksTwoNodeCycle(t *testing.T) {
	g := New()
	g.AddEdge("a", "b")
	g.AddEdge("b", "a")

	resolved := g.ResolveCycles()
	assert.Empty(t, resolved.DetectCycles())

	// Exactly one edge removed; the original graph is untouched.
	assert.Equal(t, 1, resolved.EdgeCount())
	assert.Equal(t, 2, g.EdgeCount())
}

func TestResolveCycles_NoCyclesReturnsSameGraph(t *testing.T) {
	g := New()
	g.AddEdge("a", "b")

	resolved := g.ResolveCycles()
	assert.Same(t, g, resolved)
}

func TestTopologicalSort_DependenciesFirst(t *testing.T) {
	// a -> b -> d, a -> c -> d
	g := New()
	g.AddEdge("a", "b")
	g.AddEdge("a", "c")
	g.AddEdge("b", "d")
	g.AddEdge("c", "d")

	order := g.TopologicalSort()
	require.Len(t, order, 4)

	assert.Less(t, indexOf(t, order, "d"), indexOf(t, order, "b"))
	assert.Less(t, indexOf(t, order, "d"), indexOf(t, order, "c"))
	assert.Less(t, indexOf(t, order, "b"), indexOf(t, order, "a"))
	assert.Less(t, indexOf(t, order, "c"), indexOf(t, order, "a"))
}

func TestTopologicalSort_CycleIsBrokenAndOrdered(t *testing.T) {
	// c depends on the a<->b cycle.
	g := New()
	g.AddEdge("a", "b")
	g.AddEdge("b", "a")
	g.AddEdge("c", "a")

	order := g.TopologicalSort()
	require.Len(t, order, 3)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, "c", order[2])
}

func TestTopologicalSort_DegradedOrderOnResidualCycle(t *testing.T) {
	// Two overlapping cycles share node b; a single-pass break can leave a
	// residual cycle, which degrades to the raw sorted node list.
	g := New()
	g.AddEdge("a", "b")
	g.AddEdge("b", "a")
	g.AddEdge("b", "c")
	g.AddEdge("c", "b")

	order := g.TopologicalSort()
	require.Len(t, order, 3)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, order)
}

func TestDependencyFirstOrder_PostOrderFromRoots(t *testing.T) {
	// a -> b -> c, plus isolated d.
	g := New()
	g.AddEdge("a", "b")
	g.AddEdge("b", "c")
	g.AddNode("d")

	order := g.DependencyFirstOrder()
	require.Equal(t, []string{"c", "b", "a", "d"}, order)
}

func TestDependencyFirstOrder_SweepsUnreachableNodes(t *testing.T) {
	// x<->y has no root; the sweep still emits every node exactly once.
	g := New()
	g.AddEdge("x", "y")
	g.AddEdge("y", "x")
	g.AddEdge("a", "b")

	order := g.DependencyFirstOrder()
	require.Len(t, order, 4)
	assert.ElementsMatch(t, []string{"a", "b", "x", "y"}, order)
}

func TestDependencyFirstOrder_Deterministic(t *testing.T) {
	build := func() *Graph {
		g := New()
		g.AddEdge("m", "a")
		g.AddEdge("m", "b")
		g.AddEdge("n", "b")
		g.AddEdge("n", "c")
		return g
	}

	first := build().DependencyFirstOrder()
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, build().DependencyFirstOrder())
	}
}

func TestSubgraph(t *testing.T) {
	g := New()
	g.AddEdge("a", "b")
	g.AddEdge("b", "c")
	g.AddEdge("a", "c")

	sub := g.Subgraph([]string{"a", "b", "missing"})
	assert.Equal(t, 2, sub.Len())
	assert.True(t, sub.HasEdge("a", "b"))
	assert.False(t, sub.HasNode("c"))
}

func TestDependentCount(t *testing.T) {
	g := New()
	g.AddEdge("a", "c")
	g.AddEdge("b", "c")
	g.AddNode("d")

	assert.Equal(t, 2, g.DependentCount("c"))
	assert.Equal(t, 0, g.DependentCount("a"))
	assert.Equal(t, 0, g.DependentCount("d"))
}
