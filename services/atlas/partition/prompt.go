// Copyright (C) 2025 Code Atlas AI (oss@codeatlas.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package partition

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/CodeAtlasAI/codeatlas/services/atlas/analyzer"
)

const groupingFormat = `<GROUPED_COMPONENTS>
{
    "module_name_1": {
        "path": <path_to_the_module_1>,
        "components": [
            <component_name_1>,
            <component_name_2>,
            ...
        ]
    },
    "module_name_2": {
        "path": <path_to_the_module_2>,
        "components": [
            ...
        ]
    },
    ...
}
</GROUPED_COMPONENTS>`

// RenderComponents formats component ids grouped by source file, sorted by
// file path.
//
// Two renderings are returned: a listing of ids per file (used in the oracle
// prompt) and the same listing with each component's source appended (used
// for token-budget sizing). Ids missing from the registry are skipped with a
// warning.
func RenderComponents(ids []string, reg *analyzer.Registry) (listing, withSource string) {
	byFile := make(map[string][]string)
	for _, id := range ids {
		comp := reg.Get(id)
		if comp == nil {
			slog.Warn("skipping unknown component id", slog.String("id", id))
			continue
		}
		byFile[comp.RelativePath] = append(byFile[comp.RelativePath], id)
	}

	files := make([]string, 0, len(byFile))
	for file := range byFile {
		files = append(files, file)
	}
	sort.Strings(files)

	var plain, withSrc strings.Builder
	for _, file := range files {
		fmt.Fprintf(&plain, "# %s\n", file)
		fmt.Fprintf(&withSrc, "# %s\n", file)
		for _, id := range byFile[file] {
			fmt.Fprintf(&plain, "\t%s\n", id)
			fmt.Fprintf(&withSrc, "\t%s\n", id)
			fmt.Fprintf(&withSrc, "%s\n", reg.Get(id).SourceCode)
		}
	}
	return plain.String(), withSrc.String()
}

// formatTreeContext renders the current module tree as indented text, with
// the module being split marked.
func formatTreeContext(tree *Tree, currentModule string) string {
	var lines []string
	var visit func(nodes map[string]*Node, indent int)
	visit = func(nodes map[string]*Node, indent int) {
		names := make([]string, 0, len(nodes))
		for name := range nodes {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			node := nodes[name]
			pad := strings.Repeat("  ", indent)
			if name == currentModule {
				lines = append(lines, fmt.Sprintf("%s%s (current module)", pad, name))
			} else {
				lines = append(lines, pad+name)
			}
			lines = append(lines, fmt.Sprintf("%s Core components: %s",
				strings.Repeat("  ", indent+1), strings.Join(node.Components, ", ")))
			if len(node.Children) > 0 {
				lines = append(lines, strings.Repeat("  ", indent+1)+" Children:")
				visit(node.Children, indent+2)
			}
		}
	}
	visit(tree.Roots(), 0)
	return strings.Join(lines, "\n")
}

// formatSuggestions renders the directory pre-clustering block appended to
// the prompt. Returns "" when there are no suggestions.
func formatSuggestions(suggestions []Suggestion) string {
	if len(suggestions) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n\n<PRE_CLUSTERING_SUGGESTION>\n")
	b.WriteString("Based on directory structure analysis, here's a suggested grouping:\n")
	for _, s := range suggestions {
		shown := s.Components
		remaining := 0
		if len(shown) > 5 {
			remaining = len(shown) - 5
			shown = shown[:5]
		}
		fmt.Fprintf(&b, "- %s (%s):\n", s.Name, s.Path)
		fmt.Fprintf(&b, "    Components: %s", strings.Join(shown, ", "))
		if remaining > 0 {
			fmt.Fprintf(&b, " ... and %d more", remaining)
		}
		fmt.Fprintf(&b, "\n    Density: %.3f\n", s.Density)
	}
	b.WriteString("\nNote: This is just a suggestion based on file structure. ")
	b.WriteString("Use your judgment to create a more meaningful grouping based on functionality.\n")
	b.WriteString("</PRE_CLUSTERING_SUGGESTION>\n")
	return b.String()
}

// BuildPrompt assembles the grouping request for one partitioning round.
//
// At the repository root (empty moduleName) the prompt asks for a whole-repo
// grouping; deeper rounds include the current tree as context and scope the
// request to the module being split. Directory suggestions are appended when
// available.
func BuildPrompt(listing string, tree *Tree, moduleName string, suggestions []Suggestion) string {
	var b strings.Builder

	if moduleName == "" || tree.Empty() {
		b.WriteString("Here is list of all potential core components of the repository (It's normal that some components are not essential to the repository):\n")
		b.WriteString("<POTENTIAL_CORE_COMPONENTS>\n")
		b.WriteString(listing)
		b.WriteString("</POTENTIAL_CORE_COMPONENTS>\n\n")
		b.WriteString("Please group the components into groups such that each group is a set of components that are closely related to each other and together they form a module. DO NOT include components that are not essential to the repository.\n")
		b.WriteString("Firstly reason about the components and then group them and return the result in the following format:\n")
	} else {
		b.WriteString("Here is the module tree of a repository:\n\n")
		b.WriteString("<MODULE_TREE>\n")
		b.WriteString(formatTreeContext(tree, moduleName))
		b.WriteString("\n</MODULE_TREE>\n\n")
		fmt.Fprintf(&b, "Here is list of all potential core components of the module %s (It's normal that some components are not essential to the module):\n", moduleName)
		b.WriteString("<POTENTIAL_CORE_COMPONENTS>\n")
		b.WriteString(listing)
		b.WriteString("</POTENTIAL_CORE_COMPONENTS>\n\n")
		b.WriteString("Please group the components into groups such that each group is a set of components that are closely related to each other and together they form a smaller module. DO NOT include components that are not essential to the module.\n\n")
		b.WriteString("Firstly reason based on given context and then group them and return the result in the following format:\n")
	}
	b.WriteString(groupingFormat)
	b.WriteString(formatSuggestions(suggestions))
	return b.String()
}
