// Copyright (C) 2025 Code Atlas AI (oss@codeatlas.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package partition

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeAtlasAI/codeatlas/services/atlas/analyzer"
	"github.com/CodeAtlasAI/codeatlas/services/atlas/graph"
	"github.com/CodeAtlasAI/codeatlas/services/atlas/oracle"
)

// charCounter counts one token per character, making budgets easy to reason
// about in tests.
type charCounter struct{}

func (charCounter) Count(text string) int { return len(text) }

// scriptedOracle replays a fixed sequence of grouping results.
type scriptedOracle struct {
	responses []func() (oracle.Grouping, error)
	calls     int
	prompts   []string
}

func (s *scriptedOracle) GroupComponents(_ context.Context, prompt string) (oracle.Grouping, error) {
	s.prompts = append(s.prompts, prompt)
	if s.calls >= len(s.responses) {
		return nil, errors.New("unexpected oracle call")
	}
	resp := s.responses[s.calls]
	s.calls++
	return resp()
}

func groupingOf(groups map[string][]string) func() (oracle.Grouping, error) {
	return func() (oracle.Grouping, error) {
		g := make(oracle.Grouping, len(groups))
		for name, members := range groups {
			g[name] = oracle.ModuleGroup{Path: "some/dir", Components: members}
		}
		return g, nil
	}
}

func failure(msg string) func() (oracle.Grouping, error) {
	return func() (oracle.Grouping, error) { return nil, errors.New(msg) }
}

// partitionFixture builds a registry of components whose source length
// drives the token budget decisions.
func partitionFixture(t *testing.T, sourceLen int, ids ...string) (*analyzer.Registry, *graph.Graph) {
	t.Helper()
	reg := analyzer.NewRegistry()
	for _, id := range ids {
		require.NoError(t, reg.Add(&analyzer.Component{
			ID:           id,
			Name:         id,
			Kind:         analyzer.KindClass,
			RelativePath: strings.ReplaceAll(id, ".", "/") + ".py",
			StartLine:    1,
			EndLine:      5,
			SourceCode:   strings.Repeat("x", sourceLen),
		}))
	}
	reg.Freeze()

	g := graph.New()
	for _, id := range reg.IDs() {
		g.AddNode(id)
	}
	return reg, g
}

func TestPartition_FitsBudgetNoSplit(t *testing.T) {
	reg, g := partitionFixture(t, 10, "m.A", "m.B")
	orc := &scriptedOracle{}

	p := New(orc, reg, g, WithCounter(charCounter{}), WithTokenBudget(100000))
	tree, err := p.Partition(context.Background(), []string{"m.A", "m.B"})
	require.NoError(t, err)

	assert.True(t, tree.Empty())
	assert.Zero(t, orc.calls)
}

func TestPartition_SplitsThenChildrenFit(t *testing.T) {
	reg, g := partitionFixture(t, 300, "m.A", "m.B", "m.C", "m.D")
	orc := &scriptedOracle{responses: []func() (oracle.Grouping, error){
		groupingOf(map[string][]string{
			"left":  {"m.A", "m.B"},
			"right": {"m.C", "m.D"},
		}),
	}}

	// 4 components * 300 chars exceeds 1000; each half (600) fits.
	p := New(orc, reg, g, WithCounter(charCounter{}), WithTokenBudget(1000))
	tree, err := p.Partition(context.Background(), []string{"m.A", "m.B", "m.C", "m.D"})
	require.NoError(t, err)

	assert.Equal(t, 1, orc.calls)
	assert.Equal(t, 2, tree.ModuleCount())

	left, ok := tree.At([]string{"left"})
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"m.A", "m.B"}, left.Components)
	assert.Empty(t, left.Children)
}

func TestPartition_RecursesIntoLargeChild(t *testing.T) {
	reg, g := partitionFixture(t, 600, "m.A", "m.B", "m.C")
	orc := &scriptedOracle{responses: []func() (oracle.Grouping, error){
		groupingOf(map[string][]string{
			"big":   {"m.A", "m.B"},
			"small": {"m.C"},
		}),
		groupingOf(map[string][]string{
			"one": {"m.A"},
			"two": {"m.B"},
		}),
	}}

	// Top: 1800 chars > 1000. big: 1200 > 1000 splits again. small: 600 fits.
	p := New(orc, reg, g, WithCounter(charCounter{}), WithTokenBudget(1000))
	tree, err := p.Partition(context.Background(), []string{"m.A", "m.B", "m.C"})
	require.NoError(t, err)

	assert.Equal(t, 2, orc.calls)
	assert.Equal(t, 4, tree.ModuleCount())

	one, ok := tree.At([]string{"big", "one"})
	require.True(t, ok)
	assert.Equal(t, []string{"m.A"}, one.Components)

	// The second prompt carries the current tree as context.
	assert.Contains(t, orc.prompts[1], "<MODULE_TREE>")
	assert.Contains(t, orc.prompts[1], "big (current module)")
}

func TestPartition_RetriesThenSucceeds(t *testing.T) {
	reg, g := partitionFixture(t, 600, "m.A", "m.B")
	orc := &scriptedOracle{responses: []func() (oracle.Grouping, error){
		failure("transport blip"),
		groupingOf(map[string][]string{
			"one": {"m.A"},
			"two": {"m.B"},
		}),
	}}

	p := New(orc, reg, g, WithCounter(charCounter{}), WithTokenBudget(1000))
	tree, err := p.Partition(context.Background(), []string{"m.A", "m.B"})
	require.NoError(t, err)

	assert.Equal(t, 2, orc.calls)
	assert.Equal(t, 2, tree.ModuleCount())
}

func TestPartition_AllAttemptsFailKeepsUnsplit(t *testing.T) {
	reg, g := partitionFixture(t, 600, "m.A", "m.B")
	orc := &scriptedOracle{responses: []func() (oracle.Grouping, error){
		failure("one"),
		failure("two"),
		failure("three"),
	}}

	p := New(orc, reg, g, WithCounter(charCounter{}), WithTokenBudget(1000), WithMaxRetries(2))
	tree, err := p.Partition(context.Background(), []string{"m.A", "m.B"})
	require.NoError(t, err)

	assert.Equal(t, 3, orc.calls)
	assert.True(t, tree.Empty())
}

func TestPartition_SingleGroupNoSplit(t *testing.T) {
	reg, g := partitionFixture(t, 600, "m.A", "m.B")
	orc := &scriptedOracle{responses: []func() (oracle.Grouping, error){
		groupingOf(map[string][]string{
			"everything": {"m.A", "m.B"},
		}),
	}}

	p := New(orc, reg, g, WithCounter(charCounter{}), WithTokenBudget(1000))
	tree, err := p.Partition(context.Background(), []string{"m.A", "m.B"})
	require.NoError(t, err)

	assert.True(t, tree.Empty())
}

func TestPartition_UnknownIDsDropped(t *testing.T) {
	reg, g := partitionFixture(t, 600, "m.A", "m.B")
	orc := &scriptedOracle{responses: []func() (oracle.Grouping, error){
		groupingOf(map[string][]string{
			"real":  {"m.A", "ghost.Z"},
			"other": {"m.B"},
			"empty": {"ghost.Q"},
		}),
	}}

	p := New(orc, reg, g, WithCounter(charCounter{}), WithTokenBudget(1000))
	tree, err := p.Partition(context.Background(), []string{"m.A", "m.B"})
	require.NoError(t, err)

	assert.Equal(t, 2, tree.ModuleCount())
	real, ok := tree.At([]string{"real"})
	require.True(t, ok)
	assert.Equal(t, []string{"m.A"}, real.Components)

	_, ok = tree.At([]string{"empty"})
	assert.False(t, ok)
}

func TestPartition_DepthCap(t *testing.T) {
	reg, g := partitionFixture(t, 2000, "m.A", "m.B")
	orc := &scriptedOracle{responses: []func() (oracle.Grouping, error){
		groupingOf(map[string][]string{
			"one": {"m.A"},
			"two": {"m.B"},
		}),
	}}

	// Children still exceed the budget, but depth 1 is the cap.
	p := New(orc, reg, g, WithCounter(charCounter{}), WithTokenBudget(1000), WithMaxDepth(1))
	tree, err := p.Partition(context.Background(), []string{"m.A", "m.B"})
	require.NoError(t, err)

	assert.Equal(t, 1, orc.calls)
	assert.Equal(t, 2, tree.ModuleCount())
}

func TestPartition_Canceled(t *testing.T) {
	reg, g := partitionFixture(t, 600, "m.A", "m.B")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(&scriptedOracle{}, reg, g, WithCounter(charCounter{}))
	_, err := p.Partition(ctx, []string{"m.A", "m.B"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestPartition_PromptIncludesSuggestions(t *testing.T) {
	reg, g := partitionFixture(t, 600, "pkg.A", "pkg.B")
	orc := &scriptedOracle{responses: []func() (oracle.Grouping, error){
		groupingOf(map[string][]string{
			"one": {"pkg.A"},
			"two": {"pkg.B"},
		}),
	}}

	p := New(orc, reg, g, WithCounter(charCounter{}), WithTokenBudget(1000))
	_, err := p.Partition(context.Background(), []string{"pkg.A", "pkg.B"})
	require.NoError(t, err)

	require.Len(t, orc.prompts, 1)
	assert.Contains(t, orc.prompts[0], "<POTENTIAL_CORE_COMPONENTS>")
	assert.Contains(t, orc.prompts[0], "<GROUPED_COMPONENTS>")
	assert.Contains(t, orc.prompts[0], "<PRE_CLUSTERING_SUGGESTION>")
}
