// Copyright (C) 2025 Code Atlas AI (oss@codeatlas.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/CodeAtlasAI/codeatlas/services/atlas/analyzer"
	"github.com/CodeAtlasAI/codeatlas/services/atlas/partition"
)

// Export is the serialized form of one run: the component registry, the
// validated edge list, the selected candidates, and the module tree.
type Export struct {
	// RunID identifies the run that produced this export.
	RunID string `json:"run_id"`

	// GeneratedAt is the export timestamp, UTC.
	GeneratedAt time.Time `json:"generated_at"`

	// Components lists every extracted component, sorted by id.
	Components []*analyzer.Component `json:"components"`

	// Edges lists dependency edges whose caller is a known component.
	// Unresolved callees are kept with Resolved false.
	Edges []analyzer.DependencyEdge `json:"edges"`

	// Candidates lists the selected component ids in importance order.
	Candidates []string `json:"candidates"`

	// Modules is the nested module tree keyed by module name.
	Modules *partition.Tree `json:"modules"`
}

// Export builds the serializable view of a run result.
func (r *Result) Export() *Export {
	components := r.Registry.All()

	// Drop edges from callers that never made it into the registry; they
	// cannot be attributed to any exported component.
	edges := make([]analyzer.DependencyEdge, 0, len(r.Edges))
	for _, e := range r.Edges {
		if r.Registry.Has(e.CallerID) {
			edges = append(edges, e)
		}
	}

	return &Export{
		RunID:       r.RunID,
		GeneratedAt: time.Now().UTC(),
		Components:  components,
		Edges:       edges,
		Candidates:  r.Candidates,
		Modules:     r.Tree,
	}
}

// WriteJSON writes the export as indented JSON.
func (e *Export) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(e); err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	return nil
}
