// Copyright (C) 2025 Code Atlas AI (oss@codeatlas.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("codeatlas.pipeline")
	meter  = otel.Meter("codeatlas.pipeline")
)

var (
	phaseLatency metric.Float64Histogram
	cacheLookups metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		phaseLatency, err = meter.Float64Histogram(
			"pipeline_phase_duration_seconds",
			metric.WithDescription("Duration of each pipeline phase"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheLookups, err = meter.Int64Counter(
			"pipeline_cache_lookups_total",
			metric.WithDescription("Parse cache lookups by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordPhase records one completed phase.
func recordPhase(ctx context.Context, phase Phase, elapsed time.Duration) {
	if err := initMetrics(); err != nil {
		return // Silently skip if metrics init failed
	}
	phaseLatency.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(attribute.String("phase", phase.String())))
}

// recordCacheLookup records one parse cache lookup.
func recordCacheLookup(ctx context.Context, hit bool) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheLookups.Add(ctx, 1,
		metric.WithAttributes(attribute.Bool("hit", hit)))
}

// startRunSpan creates the root span for one ingestion run.
func startRunSpan(ctx context.Context, runID string, fileCount int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Pipeline.Run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.Int("run.file_count", fileCount),
		),
	)
}
