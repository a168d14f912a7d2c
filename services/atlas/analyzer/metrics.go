// Copyright (C) 2025 Code Atlas AI (oss@codeatlas.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analyzer

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for component extraction.
var (
	tracer = otel.Tracer("codeatlas.analyzer")
	meter  = otel.Meter("codeatlas.analyzer")
)

// Metrics for analyzer operations.
var (
	analyzeLatency      metric.Float64Histogram
	analyzeTotal        metric.Int64Counter
	componentsExtracted metric.Int64Histogram
	analyzeErrors       metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		analyzeLatency, err = meter.Float64Histogram(
			"analyzer_duration_seconds",
			metric.WithDescription("Duration of component extraction per file"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		analyzeTotal, err = meter.Int64Counter(
			"analyzer_files_total",
			metric.WithDescription("Total number of analyzed files"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		componentsExtracted, err = meter.Int64Histogram(
			"analyzer_components_extracted",
			metric.WithDescription("Number of components extracted per file"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		analyzeErrors, err = meter.Int64Counter(
			"analyzer_errors_total",
			metric.WithDescription("Total number of files that failed to parse"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordAnalyzeMetrics records metrics for one file analysis.
func recordAnalyzeMetrics(ctx context.Context, language string, duration time.Duration, componentCount int, success bool) {
	if err := initMetrics(); err != nil {
		return // Silently skip if metrics init failed
	}

	attrs := metric.WithAttributes(
		attribute.String("language", language),
		attribute.Bool("success", success),
	)

	analyzeLatency.Record(ctx, duration.Seconds(), attrs)
	analyzeTotal.Add(ctx, 1, attrs)

	if success {
		componentsExtracted.Record(ctx, int64(componentCount),
			metric.WithAttributes(attribute.String("language", language)),
		)
	} else {
		analyzeErrors.Add(ctx, 1,
			metric.WithAttributes(attribute.String("language", language)),
		)
	}
}

// startAnalyzeSpan creates a span for one file analysis.
func startAnalyzeSpan(ctx context.Context, language, filePath string, contentSize int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Analyzer.Analyze",
		trace.WithAttributes(
			attribute.String("analyzer.language", language),
			attribute.String("analyzer.file", filePath),
			attribute.Int("analyzer.content_size", contentSize),
		),
	)
}

// setAnalyzeSpanResult sets the result attributes on an analyze span.
func setAnalyzeSpanResult(span trace.Span, componentCount, edgeCount int) {
	span.SetAttributes(
		attribute.Int("analyzer.component_count", componentCount),
		attribute.Int("analyzer.edge_count", edgeCount),
	)
}
