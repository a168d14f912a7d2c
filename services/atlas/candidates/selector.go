// Copyright (C) 2025 Code Atlas AI (oss@codeatlas.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package candidates selects the components worth presenting to the module
// partitioner, scored by importance.
//
// Selection adapts to the codebase's shape: object-oriented kinds are always
// eligible, and standalone functions join when the codebase is
// function-dominated. Error and exception helpers are filtered out, with an
// exemption for custom exception classes.
package candidates

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/CodeAtlasAI/codeatlas/services/atlas/analyzer"
	"github.com/CodeAtlasAI/codeatlas/services/atlas/graph"
)

// entryPointNames receive an importance bonus.
var entryPointNames = map[string]bool{
	"main": true, "__main__": true, "run": true, "start": true, "execute": true,
}

// errorNameMarkers identify error-handling helpers excluded from selection.
var errorNameMarkers = []string{"error", "exception", "failed", "invalid"}

// Policy holds the tunable thresholds for candidate selection.
type Policy struct {
	// MaxCandidates caps the selection size; pruning kicks in at this count.
	MaxCandidates int

	// FuncOOPRatio is the OOP share below which functions become eligible
	// (when the function count also exceeds FuncMinCount).
	FuncOOPRatio float64

	// FuncMinCount is the function count required by the ratio rule.
	FuncMinCount int

	// FewOOPCount and ManyFuncCount trigger function eligibility for
	// codebases with almost no OOP components but many functions.
	FewOOPCount   int
	ManyFuncCount int
}

// DefaultPolicy returns the standard selection thresholds.
func DefaultPolicy() Policy {
	return Policy{
		MaxCandidates: 400,
		FuncOOPRatio:  0.1,
		FuncMinCount:  20,
		FewOOPCount:   5,
		ManyFuncCount: 50,
	}
}

// Distribution summarizes the component kind mix of a codebase.
type Distribution struct {
	// KindCounts maps each kind to its component count.
	KindCounts map[analyzer.ComponentKind]int

	// OOPCount is the total across object-oriented kinds.
	OOPCount int

	// FuncCount is the total across function-like kinds.
	FuncCount int

	// Total is the overall component count.
	Total int

	// OOPRatio is OOPCount / Total (0 when Total is 0).
	OOPRatio float64

	// FuncRatio is FuncCount / Total (0 when Total is 0).
	FuncRatio float64
}

// AnalyzeDistribution computes the kind distribution of a registry.
func AnalyzeDistribution(reg *analyzer.Registry) Distribution {
	d := Distribution{KindCounts: make(map[analyzer.ComponentKind]int)}
	for _, c := range reg.All() {
		d.KindCounts[c.Kind]++
		if c.Kind.IsObjectOriented() {
			d.OOPCount++
		}
		if c.Kind.IsFunctionLike() {
			d.FuncCount++
		}
		d.Total++
	}
	if d.Total > 0 {
		d.OOPRatio = float64(d.OOPCount) / float64(d.Total)
		d.FuncRatio = float64(d.FuncCount) / float64(d.Total)
	}
	return d
}

// ValidKinds returns the component kinds eligible for selection given the
// codebase's distribution.
//
// Object-oriented kinds are always eligible. Standalone functions (but not
// methods) join when the codebase has no OOP components at all, when the OOP
// share is below FuncOOPRatio with enough functions, or when OOP components
// are very few against many functions.
func (p Policy) ValidKinds(d Distribution) map[analyzer.ComponentKind]bool {
	valid := map[analyzer.ComponentKind]bool{
		analyzer.KindClass:         true,
		analyzer.KindAbstractClass: true,
		analyzer.KindInterface:     true,
		analyzer.KindEnum:          true,
		analyzer.KindRecord:        true,
		analyzer.KindAnnotation:    true,
		analyzer.KindStruct:        true,
	}

	includeFuncs := false
	switch {
	case d.OOPCount == 0:
		slog.Debug("no OOP components found, including functions")
		includeFuncs = true
	case d.OOPRatio < p.FuncOOPRatio && d.FuncCount > p.FuncMinCount:
		slog.Debug("low OOP ratio, including functions",
			slog.Float64("oop_ratio", d.OOPRatio))
		includeFuncs = true
	case d.OOPCount < p.FewOOPCount && d.FuncCount > p.ManyFuncCount:
		slog.Debug("very few OOP components, including functions",
			slog.Int("oop_count", d.OOPCount))
		includeFuncs = true
	}
	if includeFuncs {
		valid[analyzer.KindFunction] = true
		valid[analyzer.KindAsyncFunction] = true
	}
	return valid
}

// Importance scores a component from 0 to 100.
//
// The score rewards being depended upon (up to 30), entry-point or public
// naming (20 or 10), documentation (15), a moderate code size (10 or 5), and
// an OOP kind (10 or 5).
func Importance(c *analyzer.Component, g *graph.Graph) int {
	score := 0

	usedBy := g.DependentCount(c.ID)
	if bonus := usedBy * 5; bonus > 30 {
		score += 30
	} else {
		score += bonus
	}

	name := c.Name
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		name = name[idx+1:]
	}
	if entryPointNames[name] {
		score += 20
	} else if !strings.HasPrefix(name, "_") {
		score += 10
	}

	if c.HasDoc {
		score += 15
	}

	lines := c.LineCount()
	switch {
	case lines >= 10 && lines <= 200:
		score += 10
	case lines >= 5 && lines < 10:
		score += 5
	}

	switch c.Kind {
	case analyzer.KindClass, analyzer.KindInterface:
		score += 10
	case analyzer.KindStruct, analyzer.KindEnum:
		score += 5
	}

	if score > 100 {
		return 100
	}
	return score
}

type scoredNode struct {
	id    string
	score int
}

// Select returns the candidate component ids ordered by importance
// (descending, id ascending on ties).
//
// Cycles are resolved before scoring so dependent counts come from the
// acyclic graph. Constructor components ("X.__init__") are folded into
// their class. When the candidate count reaches MaxCandidates, pruning first
// drops every node that something else depends on, then takes the top
// MaxCandidates by importance.
func (p Policy) Select(reg *analyzer.Registry, g *graph.Graph) []string {
	acyclic := g.ResolveCycles()

	valid := p.ValidKinds(AnalyzeDistribution(reg))

	nodeSet := make(map[string]bool, acyclic.Len())
	for _, id := range acyclic.Nodes() {
		nodeSet[id] = true
	}

	scored := p.filterAndScore(nodeSet, reg, acyclic, valid)

	if len(scored) >= p.MaxCandidates {
		slog.Info("too many candidates, applying importance-based pruning",
			slog.Int("count", len(scored)))

		// Keep only nodes nothing depends on.
		for _, node := range acyclic.Nodes() {
			for _, dep := range acyclic.Dependencies(node) {
				delete(nodeSet, dep)
			}
		}
		scored = p.filterAndScore(nodeSet, reg, acyclic, valid)

		if len(scored) >= p.MaxCandidates {
			slog.Info("still too many candidates, taking top by importance",
				slog.Int("count", len(scored)),
				slog.Int("limit", p.MaxCandidates))
			sortScored(scored)
			scored = scored[:p.MaxCandidates]
		}
	}

	if len(scored) == 0 {
		slog.Warn("no valid candidate components found")
		return nil
	}

	sortScored(scored)
	out := make([]string, len(scored))
	for i, s := range scored {
		out[i] = s.id
	}
	slog.Debug("selected candidates", slog.Int("count", len(out)))
	return out
}

// filterAndScore applies kind and naming filters and scores the survivors.
func (p Policy) filterAndScore(nodeSet map[string]bool, reg *analyzer.Registry, g *graph.Graph, valid map[analyzer.ComponentKind]bool) []scoredNode {
	ids := make([]string, 0, len(nodeSet))
	for id := range nodeSet {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	seen := make(map[string]bool, len(ids))
	var scored []scoredNode
	for _, id := range ids {
		displayID := strings.TrimSuffix(id, ".__init__")
		if strings.TrimSpace(displayID) == "" {
			continue
		}
		if excludedByName(id, reg) {
			continue
		}

		lookup := id
		if !reg.Has(lookup) {
			lookup = displayID
			if !reg.Has(lookup) {
				continue
			}
		}
		comp := reg.Get(lookup)
		if !valid[comp.Kind] || seen[displayID] {
			continue
		}
		seen[displayID] = true
		scored = append(scored, scoredNode{id: displayID, score: Importance(comp, g)})
	}
	return scored
}

// excludedByName reports whether a component id looks like error-handling
// machinery. Custom exception classes are kept.
func excludedByName(id string, reg *analyzer.Registry) bool {
	lower := strings.ToLower(id)
	for _, marker := range errorNameMarkers {
		if !strings.Contains(lower, marker) {
			continue
		}
		if strings.Contains(lower, "exception") {
			if c := reg.Get(id); c != nil && c.Kind == analyzer.KindClass {
				return false
			}
		}
		return true
	}
	return false
}

// sortScored orders by score descending, id ascending on ties.
func sortScored(scored []scoredNode) {
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].id < scored[j].id
	})
}
