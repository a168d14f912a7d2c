// Copyright (C) 2025 Code Atlas AI (oss@codeatlas.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"log/slog"
	"sort"
)

// TopologicalSort returns the graph's nodes with dependencies before their
// dependents.
//
// Cycles are resolved first. If residual cycles still prevent a complete
// Kahn ordering, the sorted node list is returned as a degraded order; this
// function never fails.
func (g *Graph) TopologicalSort() []string {
	acyclic := g.ResolveCycles()

	// dependents[n] counts unprocessed nodes that depend on n. A node is
	// ready once every node depending on it has been emitted; the pass
	// therefore emits dependents first and reverses at the end.
	dependents := make(map[string]int, acyclic.Len())
	for _, node := range acyclic.Nodes() {
		dependents[node] = 0
	}
	for _, node := range acyclic.Nodes() {
		for _, dep := range acyclic.Dependencies(node) {
			dependents[dep]++
		}
	}

	var queue []string
	for _, node := range acyclic.Nodes() {
		if dependents[node] == 0 {
			queue = append(queue, node)
		}
	}

	result := make([]string, 0, acyclic.Len())
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		result = append(result, node)

		for _, dep := range acyclic.Dependencies(node) {
			dependents[dep]--
			if dependents[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(result) != acyclic.Len() {
		slog.Warn("topological sort incomplete, returning degraded order",
			slog.Int("sorted", len(result)),
			slog.Int("total", acyclic.Len()))
		return acyclic.Nodes()
	}

	// Kahn emits dependents first here; reverse for dependencies-first.
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result
}

// DependencyFirstOrder returns the nodes in depth-first post-order starting
// from root nodes (nodes nothing depends on), so every node appears after
// all of its dependencies.
//
// Roots and successors are visited in sorted order. Nodes unreachable from
// any root (isolated residual cycles) are swept afterwards in sorted order.
// This function never fails.
func (g *Graph) DependencyFirstOrder() []string {
	acyclic := g.ResolveCycles()

	hasIncoming := make(map[string]bool, acyclic.Len())
	for _, node := range acyclic.Nodes() {
		for _, dep := range acyclic.Dependencies(node) {
			hasIncoming[dep] = true
		}
	}

	var roots []string
	for _, node := range acyclic.Nodes() {
		if !hasIncoming[node] {
			roots = append(roots, node)
		}
	}
	if len(roots) == 0 && acyclic.Len() > 0 {
		slog.Warn("no root nodes found, starting traversal from first node")
		roots = acyclic.Nodes()[:1]
	}
	sort.Strings(roots)

	visited := make(map[string]bool, acyclic.Len())
	result := make([]string, 0, acyclic.Len())

	var visit func(node string)
	visit = func(node string) {
		if visited[node] {
			return
		}
		visited[node] = true
		for _, dep := range acyclic.Dependencies(node) {
			visit(dep)
		}
		result = append(result, node)
	}

	for _, root := range roots {
		visit(root)
	}

	if len(result) != acyclic.Len() {
		for _, node := range acyclic.Nodes() {
			if !visited[node] {
				visit(node)
			}
		}
	}
	return result
}
