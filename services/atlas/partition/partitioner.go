// Copyright (C) 2025 Code Atlas AI (oss@codeatlas.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package partition

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/CodeAtlasAI/codeatlas/pkg/tokenizer"
	"github.com/CodeAtlasAI/codeatlas/services/atlas/analyzer"
	"github.com/CodeAtlasAI/codeatlas/services/atlas/graph"
	"github.com/CodeAtlasAI/codeatlas/services/atlas/oracle"
)

// Defaults for the partitioner.
const (
	// DefaultTokenBudget is the with-source rendering size below which a
	// component set is small enough to stay one module.
	DefaultTokenBudget = 40000

	// DefaultMaxRetries is the number of additional oracle attempts after
	// the first failure.
	DefaultMaxRetries = 2

	// DefaultMaxDepth bounds the recursion.
	DefaultMaxDepth = 5

	// DefaultMinClusterSize is the pre-clustering merge threshold.
	DefaultMinClusterSize = 2

	// DefaultSuggestionModules caps the directory pre-clustering proposals
	// included in the prompt.
	DefaultSuggestionModules = 8
)

// Option configures a Partitioner.
type Option func(*Partitioner)

// WithTokenBudget overrides the per-module token budget.
func WithTokenBudget(budget int) Option {
	return func(p *Partitioner) {
		if budget > 0 {
			p.tokenBudget = budget
		}
	}
}

// WithMaxRetries overrides the oracle retry count.
func WithMaxRetries(retries int) Option {
	return func(p *Partitioner) {
		if retries >= 0 {
			p.maxRetries = retries
		}
	}
}

// WithMaxDepth overrides the recursion depth bound.
func WithMaxDepth(depth int) Option {
	return func(p *Partitioner) {
		if depth > 0 {
			p.maxDepth = depth
		}
	}
}

// WithCounter overrides the token counter.
func WithCounter(c tokenizer.Counter) Option {
	return func(p *Partitioner) {
		if c != nil {
			p.counter = c
		}
	}
}

// WithMinClusterSize overrides the pre-clustering merge threshold.
func WithMinClusterSize(n int) Option {
	return func(p *Partitioner) {
		if n > 0 {
			p.minClusterSize = n
		}
	}
}

// WithSuggestionModules overrides the pre-clustering proposal cap.
func WithSuggestionModules(n int) Option {
	return func(p *Partitioner) {
		if n > 0 {
			p.suggestModules = n
		}
	}
}

// Partitioner recursively splits candidate components into a module tree.
//
// Splitting stops when a component set fits the token budget, when the
// oracle cannot produce a usable grouping, when it proposes a single group,
// or when the depth bound is reached. Oracle failures never abort the run;
// the affected module simply stays unsplit.
type Partitioner struct {
	orc            oracle.Oracle
	reg            *analyzer.Registry
	g              *graph.Graph
	counter        tokenizer.Counter
	tokenBudget    int
	maxRetries     int
	maxDepth       int
	minClusterSize int
	suggestModules int
}

// New creates a Partitioner over a frozen registry and its dependency graph.
func New(orc oracle.Oracle, reg *analyzer.Registry, g *graph.Graph, opts ...Option) *Partitioner {
	p := &Partitioner{
		orc:            orc,
		reg:            reg,
		g:              g,
		counter:        tokenizer.New(""),
		tokenBudget:    DefaultTokenBudget,
		maxRetries:     DefaultMaxRetries,
		maxDepth:       DefaultMaxDepth,
		minClusterSize: DefaultMinClusterSize,
		suggestModules: DefaultSuggestionModules,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Partition builds the module tree for the given candidate component ids.
//
// The returned tree is empty when the candidates already fit the token
// budget. The only returned error is context cancellation; grouping
// failures degrade to unsplit modules.
func (p *Partitioner) Partition(ctx context.Context, candidates []string) (*Tree, error) {
	tree := NewTree()
	if err := p.split(ctx, tree, candidates, nil, 0); err != nil {
		return nil, err
	}
	return tree, nil
}

// split runs one partitioning round for the component set at path, attaching
// any resulting sub-modules to the tree and recursing into them.
func (p *Partitioner) split(ctx context.Context, tree *Tree, ids []string, path []string, depth int) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("partition canceled: %w", err)
	}

	moduleName := ""
	if len(path) > 0 {
		moduleName = path[len(path)-1]
	}

	listing, withSource := RenderComponents(ids, p.reg)
	tokens := p.counter.Count(withSource)
	if tokens <= p.tokenBudget {
		slog.Debug("component set fits token budget, not splitting",
			slog.String("module", moduleName),
			slog.Int("tokens", tokens),
			slog.Int("budget", p.tokenBudget))
		return nil
	}
	if depth >= p.maxDepth {
		slog.Warn("max partition depth reached, not splitting",
			slog.String("module", moduleName),
			slog.Int("depth", depth))
		return nil
	}

	ctx, span := startSplitSpan(ctx, moduleName, len(ids), depth)
	defer span.End()

	suggestions := SuggestStructure(ids, p.reg, p.g, p.minClusterSize, p.suggestModules)
	prompt := BuildPrompt(listing, tree, moduleName, suggestions)

	grouping := p.askOracle(ctx, prompt, moduleName)
	if grouping == nil {
		return ctx.Err()
	}

	validated := p.validate(grouping)
	if len(validated) <= 1 {
		slog.Debug("grouping proposes no real split, keeping module whole",
			slog.String("module", moduleName),
			slog.Int("groups", len(validated)))
		return nil
	}

	children := make(map[string]*Node, len(validated))
	for name, members := range validated {
		children[name] = NewNode(members)
	}
	if err := tree.AttachChildren(path, children); err != nil {
		slog.Error("failed to attach grouping to module tree",
			slog.String("module", moduleName),
			slog.String("error", err.Error()))
		return nil
	}
	recordSplit(ctx, depth, len(validated))

	// Recurse into each sub-module, checking cancellation between siblings.
	names := make([]string, 0, len(children))
	for name := range children {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("partition canceled: %w", err)
		}
		childPath := append(append([]string{}, path...), name)
		if err := p.split(ctx, tree, children[name].Components, childPath, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// askOracle runs the bounded retry loop for one grouping request. Transport
// failures and parse failures count the same. Returns nil when every
// attempt fails.
func (p *Partitioner) askOracle(ctx context.Context, prompt, moduleName string) oracle.Grouping {
	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil
		}

		start := time.Now()
		grouping, err := p.orc.GroupComponents(ctx, prompt)
		if err != nil {
			lastErr = err
			slog.Warn("oracle grouping attempt failed",
				slog.String("module", moduleName),
				slog.Int("attempt", attempt+1),
				slog.Duration("elapsed", time.Since(start)),
				slog.String("error", err.Error()))
			recordOracleRetry(ctx)
			continue
		}
		if len(grouping) == 0 {
			lastErr = fmt.Errorf("oracle returned empty grouping")
			slog.Warn("oracle returned empty grouping",
				slog.String("module", moduleName),
				slog.Int("attempt", attempt+1))
			recordOracleRetry(ctx)
			continue
		}
		return grouping
	}

	slog.Error("all oracle attempts failed, keeping module unsplit",
		slog.String("module", moduleName),
		slog.Int("attempts", p.maxRetries+1),
		slog.String("last_error", fmt.Sprint(lastErr)))
	return nil
}

// validate filters a grouping against the registry: unknown component ids
// are dropped, and groups left empty are removed entirely.
func (p *Partitioner) validate(grouping oracle.Grouping) map[string][]string {
	out := make(map[string][]string, len(grouping))
	for _, name := range grouping.Names() {
		group := grouping[name]
		var members []string
		for _, id := range group.Components {
			if p.reg.Has(id) {
				members = append(members, id)
			} else {
				slog.Warn("dropping unknown component from grouping",
					slog.String("module", name),
					slog.String("id", id))
			}
		}
		if len(members) == 0 {
			slog.Warn("dropping module with no valid components",
				slog.String("module", name))
			continue
		}
		out[name] = members
	}
	return out
}
