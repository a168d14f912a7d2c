// Copyright (C) 2025 Code Atlas AI (oss@codeatlas.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package partition

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("codeatlas.partition")
	meter  = otel.Meter("codeatlas.partition")
)

var (
	splitTotal    metric.Int64Counter
	splitFanout   metric.Int64Histogram
	oracleRetries metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		splitTotal, err = meter.Int64Counter(
			"partition_splits_total",
			metric.WithDescription("Total number of module splits performed"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		splitFanout, err = meter.Int64Histogram(
			"partition_split_fanout",
			metric.WithDescription("Number of sub-modules produced per split"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		oracleRetries, err = meter.Int64Counter(
			"partition_oracle_retries_total",
			metric.WithDescription("Total number of failed oracle attempts"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordSplit records one successful split.
func recordSplit(ctx context.Context, depth, fanout int) {
	if err := initMetrics(); err != nil {
		return // Silently skip if metrics init failed
	}
	attrs := metric.WithAttributes(attribute.Int("depth", depth))
	splitTotal.Add(ctx, 1, attrs)
	splitFanout.Record(ctx, int64(fanout), attrs)
}

// recordOracleRetry records one failed oracle attempt.
func recordOracleRetry(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	oracleRetries.Add(ctx, 1)
}

// startSplitSpan creates a span for one partitioning round.
func startSplitSpan(ctx context.Context, moduleName string, componentCount, depth int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Partitioner.split",
		trace.WithAttributes(
			attribute.String("partition.module", moduleName),
			attribute.Int("partition.component_count", componentCount),
			attribute.Int("partition.depth", depth),
		),
	)
}
