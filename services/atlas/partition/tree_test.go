// Copyright (C) 2025 Code Atlas AI (oss@codeatlas.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package partition

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTree_AttachAtRoot(t *testing.T) {
	tree := NewTree()
	require.NoError(t, tree.AttachChildren(nil, map[string]*Node{
		"core": NewNode([]string{"a.X"}),
		"util": NewNode([]string{"b.Y"}),
	}))

	assert.False(t, tree.Empty())
	assert.Equal(t, 2, tree.ModuleCount())

	core, ok := tree.At([]string{"core"})
	require.True(t, ok)
	assert.Equal(t, []string{"a.X"}, core.Components)
}

func TestTree_AttachNested(t *testing.T) {
	tree := NewTree()
	require.NoError(t, tree.AttachChildren(nil, map[string]*Node{
		"core": NewNode([]string{"a.X", "a.Y"}),
	}))
	require.NoError(t, tree.AttachChildren([]string{"core"}, map[string]*Node{
		"inner": NewNode([]string{"a.X"}),
	}))

	inner, ok := tree.At([]string{"core", "inner"})
	require.True(t, ok)
	assert.Equal(t, []string{"a.X"}, inner.Components)
	assert.Equal(t, 2, tree.ModuleCount())
}

func TestTree_AttachMissingPath(t *testing.T) {
	tree := NewTree()
	err := tree.AttachChildren([]string{"ghost"}, map[string]*Node{
		"x": NewNode(nil),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in tree")
}

func TestTree_AttachNameCollision(t *testing.T) {
	tree := NewTree()
	require.NoError(t, tree.AttachChildren(nil, map[string]*Node{
		"core": NewNode(nil),
	}))

	err := tree.AttachChildren(nil, map[string]*Node{
		"core": NewNode(nil),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestTree_WalkSortedDepthFirst(t *testing.T) {
	tree := NewTree()
	require.NoError(t, tree.AttachChildren(nil, map[string]*Node{
		"beta":  NewNode([]string{"b"}),
		"alpha": NewNode([]string{"a"}),
	}))
	require.NoError(t, tree.AttachChildren([]string{"beta"}, map[string]*Node{
		"inner": NewNode([]string{"bi"}),
	}))

	var paths []string
	tree.Walk(func(path []string, node *Node) {
		paths = append(paths, joinPath(path))
	})
	assert.Equal(t, []string{"alpha", "beta", "beta/inner"}, paths)
}

func joinPath(path []string) string {
	out := ""
	for i, p := range path {
		if i > 0 {
			out += "/"
		}
		out += p
	}
	return out
}

func TestTree_MarshalJSON(t *testing.T) {
	tree := NewTree()
	require.NoError(t, tree.AttachChildren(nil, map[string]*Node{
		"core": NewNode([]string{"a.X"}),
	}))

	data, err := json.Marshal(tree)
	require.NoError(t, err)

	var decoded map[string]struct {
		Components []string                   `json:"components"`
		Children   map[string]json.RawMessage `json:"children"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, []string{"a.X"}, decoded["core"].Components)
	assert.Empty(t, decoded["core"].Children)
}

func TestTree_AtEmptyPath(t *testing.T) {
	tree := NewTree()
	_, ok := tree.At(nil)
	assert.False(t, ok)
}
