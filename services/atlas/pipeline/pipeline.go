// Copyright (C) 2025 Code Atlas AI (oss@codeatlas.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package pipeline orchestrates one ingestion run: per-file extraction,
// registry assembly, graph construction, candidate selection, and module
// partitioning.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/CodeAtlasAI/codeatlas/pkg/tokenizer"
	"github.com/CodeAtlasAI/codeatlas/services/atlas/analyzer"
	"github.com/CodeAtlasAI/codeatlas/services/atlas/candidates"
	"github.com/CodeAtlasAI/codeatlas/services/atlas/config"
	"github.com/CodeAtlasAI/codeatlas/services/atlas/graph"
	"github.com/CodeAtlasAI/codeatlas/services/atlas/oracle"
	"github.com/CodeAtlasAI/codeatlas/services/atlas/partition"
)

// ErrNoInput is returned when a run is started with no files.
var ErrNoInput = errors.New("no input files")

// DefaultWorkers bounds concurrent file parses when not configured.
const DefaultWorkers = 8

// Phase identifies one stage of a run.
type Phase int

const (
	// PhaseAnalyze is per-file component extraction.
	PhaseAnalyze Phase = iota

	// PhaseGraph is dependency graph construction.
	PhaseGraph

	// PhaseCandidates is importance scoring and selection.
	PhaseCandidates

	// PhasePartition is recursive module tree construction.
	PhasePartition
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseAnalyze:
		return "analyze"
	case PhaseGraph:
		return "graph"
	case PhaseCandidates:
		return "candidates"
	case PhasePartition:
		return "partition"
	default:
		return "unknown"
	}
}

// Progress is one progress update delivered to the callback.
type Progress struct {
	// Phase is the stage currently running.
	Phase Phase

	// Done counts completed units within the phase.
	Done int

	// Total counts units in the phase. Zero when the phase has no
	// meaningful unit count.
	Total int
}

// ProgressFunc receives progress updates. Calls may come from multiple
// goroutines during the analyze phase.
type ProgressFunc func(Progress)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithWorkers bounds concurrent file parses.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithPolicy overrides the candidate selection policy.
func WithPolicy(policy candidates.Policy) Option {
	return func(p *Pipeline) { p.policy = policy }
}

// WithCache attaches a parse cache. The pipeline does not close it.
func WithCache(c *ParseCache) Option {
	return func(p *Pipeline) { p.cache = c }
}

// WithProgress attaches a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(p *Pipeline) { p.progress = fn }
}

// WithPartitionOptions forwards options to the partitioner.
func WithPartitionOptions(opts ...partition.Option) Option {
	return func(p *Pipeline) { p.partOpts = append(p.partOpts, opts...) }
}

// Pipeline runs the full ingestion sequence against one set of files.
type Pipeline struct {
	orc      oracle.Oracle
	workers  int
	policy   candidates.Policy
	cache    *ParseCache
	progress ProgressFunc
	partOpts []partition.Option
}

// New creates a Pipeline around a grouping oracle.
func New(orc oracle.Oracle, opts ...Option) *Pipeline {
	p := &Pipeline{
		orc:     orc,
		workers: DefaultWorkers,
		policy:  candidates.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FromConfig creates a Pipeline wired from a resolved configuration. The
// caller still owns the oracle and cache lifecycles.
func FromConfig(cfg config.Config, orc oracle.Oracle, cache *ParseCache, opts ...Option) *Pipeline {
	base := []Option{
		WithWorkers(cfg.Analyzer.Workers),
		WithPolicy(candidates.Policy{
			MaxCandidates: cfg.Candidates.MaxCandidates,
			FuncOOPRatio:  cfg.Candidates.FuncOOPRatio,
			FuncMinCount:  cfg.Candidates.FuncMinCount,
			FewOOPCount:   cfg.Candidates.FewOOPCount,
			ManyFuncCount: cfg.Candidates.ManyFuncCount,
		}),
		WithPartitionOptions(
			partition.WithTokenBudget(cfg.Partition.TokenBudget),
			partition.WithMaxRetries(cfg.Partition.MaxRetries),
			partition.WithMaxDepth(cfg.Partition.MaxDepth),
			partition.WithMinClusterSize(cfg.Partition.MinClusterSize),
			partition.WithSuggestionModules(cfg.Partition.MaxSuggestedModules),
			partition.WithCounter(tokenizer.New(cfg.Partition.Encoding)),
		),
	}
	if cache != nil {
		base = append(base, WithCache(cache))
	}
	return New(orc, append(base, opts...)...)
}

// Result holds everything one run produced.
type Result struct {
	// RunID uniquely identifies the run.
	RunID string

	// Registry holds every extracted component, frozen.
	Registry *analyzer.Registry

	// Edges is the raw dependency edge list, including unresolved callees.
	Edges []analyzer.DependencyEdge

	// Graph is the registry-filtered adjacency graph.
	Graph *graph.Graph

	// Candidates is the selected component ids in importance order.
	Candidates []string

	// Tree is the module tree. Empty when the candidates fit one module.
	Tree *partition.Tree

	// Failures lists files that could not be analyzed. The run continues
	// past them.
	Failures []*analyzer.FileError
}

// fileOutput is one file's extraction, kept in input order so registry
// assembly stays deterministic.
type fileOutput struct {
	components []*analyzer.Component
	edges      []analyzer.DependencyEdge
	failure    *analyzer.FileError
}

// Run executes the full sequence. Per-file analysis failures are collected
// in Result.Failures; only cancellation and empty input abort the run.
func (p *Pipeline) Run(ctx context.Context, repoRoot string, files []analyzer.FileInput) (*Result, error) {
	if len(files) == 0 {
		return nil, ErrNoInput
	}

	runID := uuid.NewString()
	ctx, span := startRunSpan(ctx, runID, len(files))
	defer span.End()

	log := slog.With(slog.String("run_id", runID))
	log.Info("ingestion run started",
		slog.String("repo_root", repoRoot),
		slog.Int("files", len(files)))

	outputs, err := p.analyzeAll(ctx, repoRoot, files)
	if err != nil {
		return nil, err
	}

	result := &Result{RunID: runID, Registry: analyzer.NewRegistry()}

	// Registry assembly stays single-threaded and in input order.
	for _, out := range outputs {
		if out.failure != nil {
			result.Failures = append(result.Failures, out.failure)
			continue
		}
		for _, comp := range out.components {
			if err := result.Registry.Add(comp); err != nil {
				log.Warn("skipping component",
					slog.String("id", comp.ID),
					slog.String("error", err.Error()))
			}
		}
		result.Edges = append(result.Edges, out.edges...)
	}
	result.Registry.Freeze()
	log.Info("extraction finished",
		slog.Int("components", result.Registry.Len()),
		slog.Int("edges", len(result.Edges)),
		slog.Int("failed_files", len(result.Failures)))

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run canceled: %w", err)
	}
	p.report(Progress{Phase: PhaseGraph})
	phaseStart := time.Now()
	result.Graph = graph.Build(result.Registry, result.Edges)
	recordPhase(ctx, PhaseGraph, time.Since(phaseStart))

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run canceled: %w", err)
	}
	p.report(Progress{Phase: PhaseCandidates})
	phaseStart = time.Now()
	result.Candidates = p.policy.Select(result.Registry, result.Graph)
	recordPhase(ctx, PhaseCandidates, time.Since(phaseStart))
	log.Info("candidates selected", slog.Int("count", len(result.Candidates)))

	p.report(Progress{Phase: PhasePartition})
	phaseStart = time.Now()
	partitioner := partition.New(p.orc, result.Registry, result.Graph, p.partOpts...)
	tree, err := partitioner.Partition(ctx, result.Candidates)
	if err != nil {
		return nil, err
	}
	result.Tree = tree
	recordPhase(ctx, PhasePartition, time.Since(phaseStart))
	log.Info("ingestion run finished", slog.Int("modules", tree.ModuleCount()))

	return result, nil
}

// analyzeAll extracts every file with a bounded worker pool, consulting the
// parse cache when one is attached.
func (p *Pipeline) analyzeAll(ctx context.Context, repoRoot string, files []analyzer.FileInput) ([]fileOutput, error) {
	outputs := make([]fileOutput, len(files))
	start := time.Now()

	var mu sync.Mutex
	done := 0

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(p.workers)
	for i := range files {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			outputs[i] = p.analyzeOne(ctx, repoRoot, files[i])

			mu.Lock()
			done++
			n := done
			mu.Unlock()
			p.report(Progress{Phase: PhaseAnalyze, Done: n, Total: len(files)})
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("run canceled: %w", err)
	}
	recordPhase(ctx, PhaseAnalyze, time.Since(start))
	return outputs, nil
}

func (p *Pipeline) analyzeOne(ctx context.Context, repoRoot string, in analyzer.FileInput) fileOutput {
	if p.cache != nil {
		key := p.cache.Key(in)
		components, edges, hit, err := p.cache.Get(ctx, key)
		if err != nil {
			slog.Warn("parse cache read failed",
				slog.String("path", in.Path),
				slog.String("error", err.Error()))
		}
		if hit {
			recordCacheLookup(ctx, true)
			return fileOutput{components: components, edges: edges}
		}
		recordCacheLookup(ctx, false)
	}

	components, edges, err := analyzer.Run(ctx, in, repoRoot)
	if err != nil {
		var ferr *analyzer.FileError
		if !errors.As(err, &ferr) {
			ferr = &analyzer.FileError{Path: in.Path, Err: err}
		}
		slog.Warn("file analysis failed",
			slog.String("path", in.Path),
			slog.String("error", err.Error()))
		return fileOutput{failure: ferr}
	}

	if p.cache != nil {
		if err := p.cache.Put(ctx, p.cache.Key(in), components, edges); err != nil {
			slog.Warn("parse cache write failed",
				slog.String("path", in.Path),
				slog.String("error", err.Error()))
		}
	}
	return fileOutput{components: components, edges: edges}
}

func (p *Pipeline) report(progress Progress) {
	if p.progress != nil {
		p.progress(progress)
	}
}
