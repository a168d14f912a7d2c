// Copyright (C) 2025 Code Atlas AI (oss@codeatlas.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analyzer

import (
	"encoding/json"
	"sort"
	"sync"
)

// Registry is the process-wide mapping of component id to component record.
//
// A Registry is built once per analysis run by a single writer, then frozen.
// After Freeze all writes fail and the registry is safe for unsynchronized
// concurrent reads for the remainder of the pipeline.
type Registry struct {
	mu         sync.RWMutex
	components map[string]*Component
	frozen     bool
}

// NewRegistry creates an empty, unfrozen Registry.
func NewRegistry() *Registry {
	return &Registry{
		components: make(map[string]*Component),
	}
}

// Add inserts a component into the registry.
//
// Returns ErrRegistryFrozen after Freeze, ErrDuplicateComponent when a
// component with the same id already exists, or the component's validation
// error. Two components in the same run never share an id.
func (r *Registry) Add(c *Component) error {
	if err := c.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrRegistryFrozen
	}
	if _, exists := r.components[c.ID]; exists {
		return ErrDuplicateComponent
	}
	r.components[c.ID] = c
	return nil
}

// Freeze marks the registry read-only. Idempotent.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Frozen reports whether the registry has been frozen.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Get returns the component with the given id, or nil when absent.
func (r *Registry) Get(id string) *Component {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.components[id]
}

// Has reports whether a component with the given id exists.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.components[id]
	return ok
}

// Len returns the number of registered components.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.components)
}

// IDs returns all component ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.components))
	for id := range r.components {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// All returns the registered components ordered by id.
func (r *Registry) All() []*Component {
	ids := r.IDs()

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Component, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.components[id])
	}
	return out
}

// MarshalJSON serializes the registry as a list of component records ordered
// by id, matching the engine's external output contract.
func (r *Registry) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.All())
}
