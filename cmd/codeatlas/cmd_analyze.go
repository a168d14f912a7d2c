// Copyright (C) 2025 Code Atlas AI (oss@codeatlas.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/CodeAtlasAI/codeatlas/pkg/logging"
	"github.com/CodeAtlasAI/codeatlas/pkg/telemetry"
	"github.com/CodeAtlasAI/codeatlas/services/atlas/analyzer"
	"github.com/CodeAtlasAI/codeatlas/services/atlas/config"
	"github.com/CodeAtlasAI/codeatlas/services/atlas/oracle"
	"github.com/CodeAtlasAI/codeatlas/services/atlas/pipeline"
)

var (
	analyzeCmd = &cobra.Command{
		Use:   "analyze [repository path]",
		Short: "Analyze a repository and emit its module tree",
		Long: `Walks the repository, extracts components from every supported source
file, builds the dependency graph, selects the important components, and
partitions them into modules. The result is written as JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: runAnalyze,
	}

	flagConfig  string
	flagOut     string
	flagBudget  int
	flagDepth   int
	flagModel   string
	flagNoCache bool
	flagQuiet   bool
)

func init() {
	analyzeCmd.Flags().StringVarP(&flagConfig, "config", "c", "", "path to the config file")
	analyzeCmd.Flags().StringVarP(&flagOut, "out", "o", "", "output file (default stdout)")
	analyzeCmd.Flags().IntVar(&flagBudget, "token-budget", 0, "override the per-module token budget")
	analyzeCmd.Flags().IntVar(&flagDepth, "max-depth", 0, "override the partition depth bound")
	analyzeCmd.Flags().StringVar(&flagModel, "model", "", "override the grouping model")
	analyzeCmd.Flags().BoolVar(&flagNoCache, "no-cache", false, "disable the parse cache")
	analyzeCmd.Flags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress progress logging")
}

// skipDirs are directory names never descended into while collecting files.
var skipDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
	"target":       true,
	"build":        true,
	"dist":         true,
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	repoRoot, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolve repository path: %w", err)
	}
	if info, err := os.Stat(repoRoot); err != nil || !info.IsDir() {
		return fmt.Errorf("not a directory: %s", repoRoot)
	}

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	applyFlags(&cfg)

	logger := setupLogging(cfg)
	defer logger.Close()
	logger.SetDefault()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Init(ctx, telemetryConfig(cfg))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer shutdown(context.Background())

	files, err := collectFiles(repoRoot, cfg.Analyzer.MaxFileBytes)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no supported source files under %s", repoRoot)
	}

	apiKey := cfg.Oracle.APIKey()
	if apiKey == "" {
		logger.Warn("no oracle API key set, large modules will stay unsplit",
			"env", cfg.Oracle.APIKeyEnv)
	}
	orc := oracle.NewLLMOracle(apiKey,
		oracle.WithModel(cfg.Oracle.Model),
		oracle.WithBaseURL(cfg.Oracle.BaseURL),
		oracle.WithTemperature(float32(cfg.Oracle.Temperature)),
		oracle.WithTimeout(cfg.Oracle.Timeout.Std()),
		oracle.WithRequestsPerMinute(cfg.Oracle.RequestsPerMinute),
	)

	var cache *pipeline.ParseCache
	if cfg.Cache.Enabled {
		cache, err = pipeline.OpenCache(cfg.Cache.Dir, logger.Slog())
		if err != nil {
			logger.Warn("parse cache unavailable, continuing without it",
				"error", err.Error())
		} else {
			defer cache.Close()
		}
	}

	opts := []pipeline.Option{}
	if !flagQuiet {
		opts = append(opts, pipeline.WithProgress(printProgress))
	}
	p := pipeline.FromConfig(cfg, orc, cache, opts...)

	result, err := p.Run(ctx, repoRoot, files)
	if err != nil {
		return err
	}

	out := os.Stdout
	if flagOut != "" {
		out, err = os.Create(flagOut)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer out.Close()
	}
	return result.Export().WriteJSON(out)
}

// applyFlags overlays command-line overrides on the resolved config.
func applyFlags(cfg *config.Config) {
	if flagBudget > 0 {
		cfg.Partition.TokenBudget = flagBudget
	}
	if flagDepth > 0 {
		cfg.Partition.MaxDepth = flagDepth
	}
	if flagModel != "" {
		cfg.Oracle.Model = flagModel
	}
	if flagNoCache {
		cfg.Cache.Enabled = false
	}
}

// setupLogging builds the process logger. Text on a terminal, JSON when
// piped, unless the config forces JSON.
func setupLogging(cfg config.Config) *logging.Logger {
	useJSON := cfg.Logging.JSON
	if !useJSON && !isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		useJSON = true
	}
	return logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		LogDir:  cfg.Logging.Dir,
		Service: "codeatlas",
		JSON:    useJSON,
	})
}

func telemetryConfig(cfg config.Config) telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.ServiceName = cfg.Telemetry.ServiceName
	tc.ServiceVersion = version
	switch cfg.Telemetry.Exporter {
	case "prometheus":
		tc.TraceExporter = "none"
		tc.MetricExporter = "prometheus"
	case "stdout":
		tc.TraceExporter = "stdout"
		tc.MetricExporter = "stdout"
	case "otlp":
		tc.TraceExporter = "otlp"
		tc.MetricExporter = "otlp"
		tc.OTLPEndpoint = cfg.Telemetry.Endpoint
	default:
		tc.TraceExporter = "none"
		tc.MetricExporter = "none"
	}
	return tc
}

// collectFiles walks the repository and reads every supported source file.
func collectFiles(repoRoot string, maxBytes int) ([]analyzer.FileInput, error) {
	var files []analyzer.FileInput
	err := filepath.WalkDir(repoRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != repoRoot && (skipDirs[name] || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if _, err := analyzer.ForPath(path); err != nil {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if maxBytes > 0 && info.Size() > int64(maxBytes) {
			fmt.Fprintf(os.Stderr, "skipping oversized file %s (%d bytes)\n", path, info.Size())
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		files = append(files, analyzer.FileInput{Path: path, Content: content})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk repository: %w", err)
	}
	return files, nil
}

func printProgress(pr pipeline.Progress) {
	switch pr.Phase {
	case pipeline.PhaseAnalyze:
		if pr.Done == pr.Total || pr.Done%50 == 0 {
			fmt.Fprintf(os.Stderr, "\ranalyzing files %d/%d", pr.Done, pr.Total)
			if pr.Done == pr.Total {
				fmt.Fprintln(os.Stderr)
			}
		}
	default:
		fmt.Fprintf(os.Stderr, "phase: %s\n", pr.Phase)
	}
}
