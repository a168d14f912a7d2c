// Copyright (C) 2025 Code Atlas AI (oss@codeatlas.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeAtlasAI/codeatlas/services/atlas/analyzer"
	"github.com/CodeAtlasAI/codeatlas/services/atlas/config"
	"github.com/CodeAtlasAI/codeatlas/services/atlas/oracle"
)

// noCallOracle fails the test if the partitioner ever consults it.
type noCallOracle struct {
	t *testing.T
}

func (o *noCallOracle) GroupComponents(context.Context, string) (oracle.Grouping, error) {
	o.t.Fatal("oracle should not be called")
	return nil, nil
}

var testFiles = []analyzer.FileInput{
	{
		Path: "src/server.py",
		Content: []byte(`class Server:
    """Accepts connections."""

    def start(self):
        return self.bind()

    def bind(self):
        return 0
`),
	},
	{
		Path: "src/client.py",
		Content: []byte(`from src.server import Server


class Client:
    """Talks to a Server."""

    def connect(self):
        return Server()
`),
	},
}

func TestRun_EndToEnd(t *testing.T) {
	p := New(&noCallOracle{t: t}, WithWorkers(2))

	result, err := p.Run(context.Background(), "", testFiles)
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	assert.Empty(t, result.Failures)
	assert.Equal(t, 2, result.Registry.Len())
	assert.True(t, result.Registry.Has("src.server.Server"))
	assert.True(t, result.Registry.Has("src.client.Client"))

	// Client constructs Server, so the graph keeps that edge.
	assert.True(t, result.Graph.HasEdge("src.client.Client", "src.server.Server"))

	assert.ElementsMatch(t,
		[]string{"src.server.Server", "src.client.Client"}, result.Candidates)

	// Two small files fit the default token budget in one module.
	assert.True(t, result.Tree.Empty())
}

func TestRun_FileFailureIsolated(t *testing.T) {
	files := append([]analyzer.FileInput{}, testFiles...)
	files = append(files, analyzer.FileInput{
		Path:    "src/broken.py",
		Content: []byte{0xff, 0xfe, 0x00},
	})

	p := New(&noCallOracle{t: t})
	result, err := p.Run(context.Background(), "", files)
	require.NoError(t, err)

	require.Len(t, result.Failures, 1)
	assert.Equal(t, "src/broken.py", result.Failures[0].Path)
	assert.Equal(t, 2, result.Registry.Len())
}

func TestRun_NoInput(t *testing.T) {
	p := New(&noCallOracle{t: t})
	_, err := p.Run(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrNoInput)
}

func TestRun_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(&noCallOracle{t: t})
	_, err := p.Run(ctx, "", testFiles)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRun_WithCache(t *testing.T) {
	cache := openTestCache(t)
	p := New(&noCallOracle{t: t}, WithCache(cache))

	first, err := p.Run(context.Background(), "", testFiles)
	require.NoError(t, err)

	// Second run over identical inputs is served from the cache and must
	// produce the same registry.
	second, err := p.Run(context.Background(), "", testFiles)
	require.NoError(t, err)
	assert.Equal(t, first.Registry.IDs(), second.Registry.IDs())

	for _, in := range testFiles {
		_, _, hit, err := cache.Get(context.Background(), cache.Key(in))
		require.NoError(t, err)
		assert.True(t, hit, in.Path)
	}
}

func TestRun_ProgressCallback(t *testing.T) {
	var mu sync.Mutex
	var phases []Phase
	analyzed := 0

	p := New(&noCallOracle{t: t}, WithProgress(func(pr Progress) {
		mu.Lock()
		defer mu.Unlock()
		phases = append(phases, pr.Phase)
		if pr.Phase == PhaseAnalyze {
			analyzed++
		}
	}))

	_, err := p.Run(context.Background(), "", testFiles)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, len(testFiles), analyzed)
	assert.Contains(t, phases, PhaseGraph)
	assert.Contains(t, phases, PhaseCandidates)
	assert.Contains(t, phases, PhasePartition)
}

func TestFromConfig_AppliesPolicy(t *testing.T) {
	cfg := config.Default()
	cfg.Candidates.MaxCandidates = 7
	cfg.Analyzer.Workers = 3

	p := FromConfig(cfg, &noCallOracle{t: t}, nil)
	assert.Equal(t, 3, p.workers)
	assert.Equal(t, 7, p.policy.MaxCandidates)
	assert.Nil(t, p.cache)
}

func TestExport_Shape(t *testing.T) {
	p := New(&noCallOracle{t: t})
	result, err := p.Run(context.Background(), "", testFiles)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, result.Export().WriteJSON(&buf))

	var decoded struct {
		RunID      string            `json:"run_id"`
		Components []json.RawMessage `json:"components"`
		Edges      []struct {
			CallerID string `json:"caller_id"`
		} `json:"edges"`
		Candidates []string                   `json:"candidates"`
		Modules    map[string]json.RawMessage `json:"modules"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))

	assert.Equal(t, result.RunID, decoded.RunID)
	assert.Len(t, decoded.Components, 2)
	assert.NotEmpty(t, decoded.Candidates)

	// Every exported edge is attributed to a known component.
	for _, e := range decoded.Edges {
		assert.True(t, result.Registry.Has(e.CallerID), e.CallerID)
	}
}
