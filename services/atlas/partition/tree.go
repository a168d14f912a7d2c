// Copyright (C) 2025 Code Atlas AI (oss@codeatlas.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package partition recursively splits candidate components into a module
// tree, delegating grouping decisions to an external oracle.
//
// The tree is owned by this package: all mutation goes through
// Tree.AttachChildren, which validates the target path. Oracle path hints
// are advisory and never stored in the tree.
package partition

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Node is one module in the tree: its member component ids and sub-modules.
type Node struct {
	// Components lists the member component ids.
	Components []string `json:"components"`

	// Children maps sub-module name to node. Empty for leaf modules.
	Children map[string]*Node `json:"children"`
}

// NewNode creates a leaf node over the given components.
func NewNode(components []string) *Node {
	return &Node{
		Components: components,
		Children:   make(map[string]*Node),
	}
}

// Tree is the module hierarchy produced by partitioning.
//
// Not safe for concurrent mutation.
type Tree struct {
	roots map[string]*Node
}

// NewTree creates an empty tree.
func NewTree() *Tree {
	return &Tree{roots: make(map[string]*Node)}
}

// Roots returns the top-level modules.
func (t *Tree) Roots() map[string]*Node { return t.roots }

// Empty reports whether the tree has no modules.
func (t *Tree) Empty() bool { return len(t.roots) == 0 }

// At returns the node at the given path of module names.
func (t *Tree) At(path []string) (*Node, bool) {
	if len(path) == 0 {
		return nil, false
	}
	current, ok := t.roots[path[0]]
	if !ok {
		return nil, false
	}
	for _, name := range path[1:] {
		current, ok = current.Children[name]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// AttachChildren inserts child modules under the node at path. An empty path
// attaches at the root.
//
// Returns an error when the path does not exist or a child name collides
// with an existing module at that level.
func (t *Tree) AttachChildren(path []string, children map[string]*Node) error {
	target := t.roots
	if len(path) > 0 {
		node, ok := t.At(path)
		if !ok {
			return fmt.Errorf("attach children: path %q not in tree", strings.Join(path, "/"))
		}
		target = node.Children
	}
	for name := range children {
		if _, exists := target[name]; exists {
			return fmt.Errorf("attach children: module %q already exists at %q", name, strings.Join(path, "/"))
		}
	}
	for name, child := range children {
		target[name] = child
	}
	return nil
}

// ModuleCount returns the total number of modules in the tree.
func (t *Tree) ModuleCount() int {
	var count func(nodes map[string]*Node) int
	count = func(nodes map[string]*Node) int {
		n := len(nodes)
		for _, node := range nodes {
			n += count(node.Children)
		}
		return n
	}
	return count(t.roots)
}

// Walk visits every module depth-first in sorted name order, calling fn with
// the module's path and node.
func (t *Tree) Walk(fn func(path []string, node *Node)) {
	var visit func(prefix []string, nodes map[string]*Node)
	visit = func(prefix []string, nodes map[string]*Node) {
		names := make([]string, 0, len(nodes))
		for name := range nodes {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			path := append(append([]string{}, prefix...), name)
			fn(path, nodes[name])
			visit(path, nodes[name].Children)
		}
	}
	visit(nil, t.roots)
}

// MarshalJSON serializes the tree as a nested name -> node mapping.
func (t *Tree) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.roots)
}
