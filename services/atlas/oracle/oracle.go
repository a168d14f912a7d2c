// Copyright (C) 2025 Code Atlas AI (oss@codeatlas.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package oracle defines the grouping oracle used by the module partitioner
// and its LLM-backed implementation.
//
// The oracle receives a formatted component listing and answers with a
// proposed grouping: module name -> advisory path + member component ids.
// All response-format tolerance (tag extraction, repair of almost-JSON
// payloads) lives in this package; callers see either a well-formed Grouping
// or an error.
package oracle

import (
	"context"
	"sort"
)

// ModuleGroup is one proposed module: an advisory directory path and the
// component ids assigned to it.
type ModuleGroup struct {
	// Path is the oracle's directory hint for the module. Advisory only;
	// it is stripped before the grouping is attached to the module tree.
	Path string `json:"path"`

	// Components lists the member component ids.
	Components []string `json:"components"`
}

// Grouping maps module name to its proposed group.
type Grouping map[string]ModuleGroup

// Names returns the module names in sorted order.
func (g Grouping) Names() []string {
	out := make([]string, 0, len(g))
	for name := range g {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Oracle proposes a grouping of components into modules.
//
// Implementations must be safe for concurrent use. A transport failure and
// an unparseable response are equivalent to callers: both surface as an
// error and are retried the same way.
type Oracle interface {
	// GroupComponents sends the prompt and returns the parsed grouping.
	GroupComponents(ctx context.Context, prompt string) (Grouping, error)
}
