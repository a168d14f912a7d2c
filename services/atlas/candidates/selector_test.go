// Copyright (C) 2025 Code Atlas AI (oss@codeatlas.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package candidates

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeAtlasAI/codeatlas/services/atlas/analyzer"
	"github.com/CodeAtlasAI/codeatlas/services/atlas/graph"
)

func addComponent(t *testing.T, reg *analyzer.Registry, id string, kind analyzer.ComponentKind, opts ...func(*analyzer.Component)) {
	t.Helper()
	name := id
	if idx := strings.LastIndex(id, "."); idx >= 0 {
		name = id[idx+1:]
	}
	c := &analyzer.Component{
		ID:           id,
		Name:         name,
		Kind:         kind,
		RelativePath: strings.ReplaceAll(id, ".", "/") + ".py",
		StartLine:    1,
		EndLine:      5,
	}
	for _, opt := range opts {
		opt(c)
	}
	require.NoError(t, reg.Add(c))
}

func withDoc() func(*analyzer.Component) {
	return func(c *analyzer.Component) {
		c.HasDoc = true
		c.Doc = "documented"
	}
}

func withSource(lines int) func(*analyzer.Component) {
	return func(c *analyzer.Component) {
		c.SourceCode = strings.Repeat("x\n", lines-1) + "x"
		c.EndLine = c.StartLine + lines - 1
	}
}

func TestAnalyzeDistribution(t *testing.T) {
	reg := analyzer.NewRegistry()
	addComponent(t, reg, "m.A", analyzer.KindClass)
	addComponent(t, reg, "m.B", analyzer.KindInterface)
	addComponent(t, reg, "m.f", analyzer.KindFunction)
	addComponent(t, reg, "m.g", analyzer.KindFunction)
	reg.Freeze()

	d := AnalyzeDistribution(reg)
	assert.Equal(t, 4, d.Total)
	assert.Equal(t, 2, d.OOPCount)
	assert.Equal(t, 2, d.FuncCount)
	assert.InDelta(t, 0.5, d.OOPRatio, 1e-9)
}

func TestValidKinds_OOPOnlyByDefault(t *testing.T) {
	reg := analyzer.NewRegistry()
	for i := 0; i < 10; i++ {
		addComponent(t, reg, fmt.Sprintf("m.Class%d", i), analyzer.KindClass)
	}
	addComponent(t, reg, "m.helper", analyzer.KindFunction)
	reg.Freeze()

	valid := DefaultPolicy().ValidKinds(AnalyzeDistribution(reg))
	assert.True(t, valid[analyzer.KindClass])
	assert.True(t, valid[analyzer.KindStruct])
	assert.False(t, valid[analyzer.KindFunction])
	assert.False(t, valid[analyzer.KindMethod])
}

func TestValidKinds_FunctionsWhenNoOOP(t *testing.T) {
	reg := analyzer.NewRegistry()
	addComponent(t, reg, "m.f", analyzer.KindFunction)
	addComponent(t, reg, "m.g", analyzer.KindAsyncFunction)
	reg.Freeze()

	valid := DefaultPolicy().ValidKinds(AnalyzeDistribution(reg))
	assert.True(t, valid[analyzer.KindFunction])
	assert.True(t, valid[analyzer.KindAsyncFunction])
	// Methods stay out even in function-dominated codebases.
	assert.False(t, valid[analyzer.KindMethod])
}

func TestValidKinds_FunctionsOnLowOOPRatio(t *testing.T) {
	reg := analyzer.NewRegistry()
	addComponent(t, reg, "m.Only", analyzer.KindClass)
	for i := 0; i < 25; i++ {
		addComponent(t, reg, fmt.Sprintf("m.f%02d", i), analyzer.KindFunction)
	}
	reg.Freeze()

	// 1 OOP / 26 total is below the 10% threshold with >20 functions.
	valid := DefaultPolicy().ValidKinds(AnalyzeDistribution(reg))
	assert.True(t, valid[analyzer.KindFunction])
}

func TestImportance_Scoring(t *testing.T) {
	reg := analyzer.NewRegistry()
	addComponent(t, reg, "m.Core", analyzer.KindClass, withDoc(), withSource(50))
	addComponent(t, reg, "m.main", analyzer.KindFunction)
	addComponent(t, reg, "m._private", analyzer.KindFunction)
	addComponent(t, reg, "m.u1", analyzer.KindClass)
	addComponent(t, reg, "m.u2", analyzer.KindClass)
	reg.Freeze()

	g := graph.New()
	for _, id := range reg.IDs() {
		g.AddNode(id)
	}
	g.AddEdge("m.u1", "m.Core")
	g.AddEdge("m.u2", "m.Core")

	// Core: 2 dependents (10) + public (10) + doc (15) + 50 lines (10) + class (10).
	assert.Equal(t, 55, Importance(reg.Get("m.Core"), g))

	// main: entry point (20), no other bonuses.
	assert.Equal(t, 20, Importance(reg.Get("m.main"), g))

	// _private: nothing.
	assert.Equal(t, 0, Importance(reg.Get("m._private"), g))
}

func TestImportance_DependentBonusCapped(t *testing.T) {
	reg := analyzer.NewRegistry()
	addComponent(t, reg, "m.Hub", analyzer.KindClass)
	reg.Freeze()

	g := graph.New()
	g.AddNode("m.Hub")
	for i := 0; i < 10; i++ {
		g.AddEdge(fmt.Sprintf("m.user%d", i), "m.Hub")
	}

	// 10 dependents would be 50; capped at 30. Plus public 10 + class 10.
	assert.Equal(t, 50, Importance(reg.Get("m.Hub"), g))
}

func TestSelect_OrdersByImportance(t *testing.T) {
	reg := analyzer.NewRegistry()
	addComponent(t, reg, "m.Popular", analyzer.KindClass, withDoc())
	addComponent(t, reg, "m.Plain", analyzer.KindClass)
	addComponent(t, reg, "m.u1", analyzer.KindClass)
	reg.Freeze()

	g := graph.New()
	for _, id := range reg.IDs() {
		g.AddNode(id)
	}
	g.AddEdge("m.u1", "m.Popular")

	selected := DefaultPolicy().Select(reg, g)
	require.NotEmpty(t, selected)
	assert.Equal(t, "m.Popular", selected[0])
}

func TestSelect_FiltersErrorNames(t *testing.T) {
	reg := analyzer.NewRegistry()
	addComponent(t, reg, "m.Service", analyzer.KindClass)
	addComponent(t, reg, "m.ErrorHandler", analyzer.KindClass)
	addComponent(t, reg, "m.invalid_input", analyzer.KindClass)
	addComponent(t, reg, "m.CustomException", analyzer.KindClass)
	addComponent(t, reg, "m.exception_util", analyzer.KindFunction)
	reg.Freeze()

	g := graph.New()
	for _, id := range reg.IDs() {
		g.AddNode(id)
	}

	selected := DefaultPolicy().Select(reg, g)
	assert.Contains(t, selected, "m.Service")
	assert.NotContains(t, selected, "m.ErrorHandler")
	assert.NotContains(t, selected, "m.invalid_input")

	// Custom exception classes survive the name filter.
	assert.Contains(t, selected, "m.CustomException")
	assert.NotContains(t, selected, "m.exception_util")
}

func TestSelect_FoldsConstructorAlias(t *testing.T) {
	reg := analyzer.NewRegistry()
	addComponent(t, reg, "m.Widget", analyzer.KindClass)
	reg.Freeze()

	g := graph.New()
	g.AddNode("m.Widget")
	g.AddNode("m.Widget.__init__")

	selected := DefaultPolicy().Select(reg, g)
	assert.Equal(t, []string{"m.Widget"}, selected)
}

func TestSelect_PruningAtCap(t *testing.T) {
	reg := analyzer.NewRegistry()
	g := graph.New()

	// 30 hub classes that depend on 20 shared base classes; cap at 30 so
	// pruning drops the depended-upon bases first.
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("m.Base%02d", i)
		addComponent(t, reg, id, analyzer.KindClass)
		g.AddNode(id)
	}
	for i := 0; i < 30; i++ {
		id := fmt.Sprintf("m.Hub%02d", i)
		addComponent(t, reg, id, analyzer.KindClass)
		g.AddNode(id)
		g.AddEdge(id, fmt.Sprintf("m.Base%02d", i%20))
	}
	reg.Freeze()

	policy := DefaultPolicy()
	policy.MaxCandidates = 30

	selected := policy.Select(reg, g)
	require.Len(t, selected, 30)
	for _, id := range selected {
		assert.True(t, strings.HasPrefix(id, "m.Hub"), id)
	}
}

func TestSelect_EmptyRegistry(t *testing.T) {
	reg := analyzer.NewRegistry()
	reg.Freeze()

	assert.Empty(t, DefaultPolicy().Select(reg, graph.New()))
}
