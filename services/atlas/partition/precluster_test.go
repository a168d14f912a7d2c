// Copyright (C) 2025 Code Atlas AI (oss@codeatlas.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package partition

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeAtlasAI/codeatlas/services/atlas/analyzer"
	"github.com/CodeAtlasAI/codeatlas/services/atlas/graph"
)

func regWithPaths(t *testing.T, idToPath map[string]string) *analyzer.Registry {
	t.Helper()
	reg := analyzer.NewRegistry()
	for id, relPath := range idToPath {
		require.NoError(t, reg.Add(&analyzer.Component{
			ID:           id,
			Name:         id,
			Kind:         analyzer.KindClass,
			RelativePath: relPath,
			StartLine:    1,
			EndLine:      5,
			SourceCode:   "class X:\n    pass",
		}))
	}
	reg.Freeze()
	return reg
}

func TestClusterByDirectory(t *testing.T) {
	reg := regWithPaths(t, map[string]string{
		"a.X":    "src/core/a.py",
		"a.Y":    "src/core/a.py",
		"b.Z":    "src/util/b.py",
		"flat.F": "flat.py",
	})

	clusters := clusterByDirectory([]string{"a.X", "a.Y", "b.Z", "flat.F", "ghost"}, reg)
	assert.Len(t, clusters, 3)
	assert.ElementsMatch(t, []string{"a.X", "a.Y"}, clusters["src/core"])
	assert.Equal(t, []string{"b.Z"}, clusters["src/util"])
	assert.Equal(t, []string{"flat.F"}, clusters["root"])
}

func TestDependencyDensity(t *testing.T) {
	g := graph.New()
	g.AddEdge("a", "b")
	g.AddEdge("b", "a")
	g.AddNode("c")

	// 2 internal edges out of 3*2 possible.
	assert.InDelta(t, 2.0/6.0, dependencyDensity([]string{"a", "b", "c"}, g), 1e-9)

	// Fully connected pair.
	assert.InDelta(t, 1.0, dependencyDensity([]string{"a", "b"}, g), 1e-9)

	// Single member is trivially dense.
	assert.InDelta(t, 1.0, dependencyDensity([]string{"c"}, g), 1e-9)
}

func TestMergeSmallClusters(t *testing.T) {
	clusters := map[string][]string{
		"src":        {"s1", "s2", "s3"},
		"src/deep":   {"d1"},
		"orphan/dir": {"o1"},
	}

	merged := mergeSmallClusters(clusters, 2)

	// Small child merges into its existing ancestor.
	assert.ElementsMatch(t, []string{"s1", "s2", "s3", "d1"}, merged["src"])

	// No ancestor cluster exists; stays as-is.
	assert.Equal(t, []string{"o1"}, merged["orphan/dir"])
	assert.NotContains(t, merged, "src/deep")
}

func TestSuggestStructure_Deterministic(t *testing.T) {
	reg := regWithPaths(t, map[string]string{
		"a.X": "src/core/a.py",
		"a.Y": "src/core/a.py",
		"b.Z": "src/util/b.py",
		"b.W": "src/util/b.py",
	})
	g := graph.New()
	for _, id := range reg.IDs() {
		g.AddNode(id)
	}
	g.AddEdge("a.X", "a.Y")

	ids := []string{"a.X", "a.Y", "b.Z", "b.W"}
	first := SuggestStructure(ids, reg, g, 2, 8)
	require.Len(t, first, 2)

	assert.Equal(t, "src_core", first[0].Name)
	assert.Equal(t, "src/core", first[0].Path)
	assert.Equal(t, []string{"a.X", "a.Y"}, first[0].Components)
	assert.InDelta(t, 0.5, first[0].Density, 1e-9)

	assert.Equal(t, "src_util", first[1].Name)
	assert.InDelta(t, 0.0, first[1].Density, 1e-9)

	for i := 0; i < 5; i++ {
		assert.Equal(t, first, SuggestStructure(ids, reg, g, 2, 8))
	}
}

func TestSuggestStructure_MergesDownToCap(t *testing.T) {
	idToPath := make(map[string]string)
	var ids []string
	for i := 0; i < 6; i++ {
		for j := 0; j < 2; j++ {
			id := fmt.Sprintf("p%d.C%d", i, j)
			idToPath[id] = fmt.Sprintf("src/pkg%d/m.py", i)
			ids = append(ids, id)
		}
	}
	reg := regWithPaths(t, idToPath)
	g := graph.New()
	for _, id := range reg.IDs() {
		g.AddNode(id)
	}

	suggestions := SuggestStructure(ids, reg, g, 2, 3)
	assert.LessOrEqual(t, len(suggestions), 3)

	total := 0
	for _, s := range suggestions {
		total += len(s.Components)
	}
	assert.Equal(t, 12, total)
}
