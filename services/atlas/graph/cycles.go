// Copyright (C) 2025 Code Atlas AI (oss@codeatlas.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import "log/slog"

// DetectCycles finds dependency cycles using Tarjan's strongly connected
// components algorithm.
//
// Only SCCs with two or more members are returned; a node with no self-loop
// forms a trivial SCC and is not a cycle. Nodes and successors are visited in
// sorted order, so the output is deterministic for a given graph.
func (g *Graph) DetectCycles() [][]string {
	var (
		counter int
		index   = make(map[string]int, len(g.adj))
		lowlink = make(map[string]int, len(g.adj))
		onStack = make(map[string]bool, len(g.adj))
		stack   []string
		cycles  [][]string
	)

	var strongConnect func(node string)
	strongConnect = func(node string) {
		index[node] = counter
		lowlink[node] = counter
		counter++
		stack = append(stack, node)
		onStack[node] = true

		for _, succ := range g.Dependencies(node) {
			if _, visited := index[succ]; !visited {
				strongConnect(succ)
				if lowlink[succ] < lowlink[node] {
					lowlink[node] = lowlink[succ]
				}
			} else if onStack[succ] {
				if index[succ] < lowlink[node] {
					lowlink[node] = index[succ]
				}
			}
		}

		if lowlink[node] == index[node] {
			var scc []string
			for {
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[top] = false
				scc = append(scc, top)
				if top == node {
					break
				}
			}
			if len(scc) > 1 {
				cycles = append(cycles, scc)
			}
		}
	}

	for _, node := range g.Nodes() {
		if _, visited := index[node]; !visited {
			strongConnect(node)
		}
	}
	return cycles
}

// ResolveCycles returns a copy of the graph with detected cycles broken.
//
// For each detected cycle, the first edge between consecutive cycle members
// that is still present is removed. One removal per cycle; overlapping SCCs
// may leave residual cycles, which the ordering functions tolerate with a
// degraded-order fallback. The receiver is never mutated when no cycles
// exist.
func (g *Graph) ResolveCycles() *Graph {
	cycles := g.DetectCycles()
	if len(cycles) == 0 {
		return g
	}

	slog.Debug("breaking dependency cycles", slog.Int("cycle_count", len(cycles)))
	out := g.Clone()
	for _, cycle := range cycles {
		for i := 0; i < len(cycle)-1; i++ {
			if out.HasEdge(cycle[i], cycle[i+1]) {
				slog.Debug("removing cycle edge",
					slog.String("caller", cycle[i]),
					slog.String("callee", cycle[i+1]))
				out.RemoveEdge(cycle[i], cycle[i+1])
				break
			}
		}
	}
	return out
}
