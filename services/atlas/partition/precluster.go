// Copyright (C) 2025 Code Atlas AI (oss@codeatlas.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package partition

import (
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/CodeAtlasAI/codeatlas/services/atlas/analyzer"
	"github.com/CodeAtlasAI/codeatlas/services/atlas/graph"
)

// Suggestion is one directory-derived module proposal included in the
// oracle prompt as advisory context.
type Suggestion struct {
	// Name is the module name derived from the directory path.
	Name string

	// Path is the source directory backing the suggestion.
	Path string

	// Components lists the member component ids.
	Components []string

	// Density is the internal dependency density of the cluster, 0 to 1.
	Density float64
}

// clusterByDirectory groups component ids by the directory of their source
// file. Components whose file sits at the repository root fall under "root".
func clusterByDirectory(ids []string, reg *analyzer.Registry) map[string][]string {
	clusters := make(map[string][]string)
	for _, id := range ids {
		comp := reg.Get(id)
		if comp == nil {
			continue
		}
		dir := path.Dir(strings.ReplaceAll(comp.RelativePath, "\\", "/"))
		if dir == "." || dir == "" {
			dir = "root"
		}
		clusters[dir] = append(clusters[dir], id)
	}
	return clusters
}

// dependencyDensity measures how interconnected a cluster is: internal
// edges divided by the maximum possible (n * (n-1)). Single-member clusters
// count as fully dense.
func dependencyDensity(cluster []string, g *graph.Graph) float64 {
	if len(cluster) <= 1 {
		return 1.0
	}
	member := make(map[string]bool, len(cluster))
	for _, id := range cluster {
		member[id] = true
	}

	internal := 0
	for _, id := range cluster {
		for _, dep := range g.Dependencies(id) {
			if member[dep] {
				internal++
			}
		}
	}
	return float64(internal) / float64(len(cluster)*(len(cluster)-1))
}

// mergeSmallClusters folds clusters below minSize into their nearest
// ancestor directory cluster when one exists; otherwise they stay as-is.
func mergeSmallClusters(clusters map[string][]string, minSize int) map[string][]string {
	result := make(map[string][]string)
	small := make(map[string][]string)

	for name, members := range clusters {
		if len(members) >= minSize {
			result[name] = members
		} else {
			small[name] = members
		}
	}

	names := make([]string, 0, len(small))
	for name := range small {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		members := small[name]
		merged := false
		parts := strings.Split(name, "/")
		for i := len(parts) - 1; i > 0; i-- {
			parent := strings.Join(parts[:i], "/")
			if _, ok := result[parent]; ok {
				result[parent] = append(result[parent], members...)
				slog.Debug("merged small cluster into parent",
					slog.String("cluster", name),
					slog.String("parent", parent))
				merged = true
				break
			}
		}
		if !merged {
			result[name] = append(result[name], members...)
		}
	}
	return result
}

// SuggestStructure proposes an initial module split from directory layout
// and dependency density.
//
// Clusters are formed per directory, those below minSize merged upward, and
// the two smallest clusters merged repeatedly until at most maxModules
// remain. Output order is deterministic (sorted by path).
func SuggestStructure(ids []string, reg *analyzer.Registry, g *graph.Graph, minSize, maxModules int) []Suggestion {
	if minSize < 1 {
		minSize = 1
	}
	clusters := mergeSmallClusters(clusterByDirectory(ids, reg), minSize)

	for len(clusters) > maxModules && len(clusters) >= 2 {
		// Merge the two smallest clusters, preferring their common path
		// prefix as the merged name.
		type sized struct {
			name string
			n    int
		}
		order := make([]sized, 0, len(clusters))
		for name, members := range clusters {
			order = append(order, sized{name: name, n: len(members)})
		}
		sort.Slice(order, func(i, j int) bool {
			if order[i].n != order[j].n {
				return order[i].n < order[j].n
			}
			return order[i].name < order[j].name
		})

		first, second := order[0].name, order[1].name
		merged := append(append([]string{}, clusters[first]...), clusters[second]...)
		name := commonPathPrefix(first, second)
		if name == "" {
			name = first + "_and_" + second
		}
		delete(clusters, first)
		delete(clusters, second)
		clusters[name] = append(clusters[name], merged...)
	}

	dirs := make([]string, 0, len(clusters))
	for dir := range clusters {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	out := make([]Suggestion, 0, len(dirs))
	for _, dir := range dirs {
		members := append([]string{}, clusters[dir]...)
		sort.Strings(members)

		name := strings.NewReplacer("/", "_", ".", "_").Replace(dir)
		name = strings.TrimPrefix(name, "_")
		if name == "" {
			name = "core"
		}
		out = append(out, Suggestion{
			Name:       name,
			Path:       dir,
			Components: members,
			Density:    dependencyDensity(members, g),
		})
	}
	return out
}

// commonPathPrefix returns the shared leading path segments of two
// slash-separated paths, or "".
func commonPathPrefix(a, b string) string {
	pa := strings.Split(a, "/")
	pb := strings.Split(b, "/")
	var common []string
	for i := 0; i < len(pa) && i < len(pb); i++ {
		if pa[i] != pb[i] {
			break
		}
		common = append(common, pa[i])
	}
	return strings.Join(common, "/")
}
