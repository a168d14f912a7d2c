// Copyright (C) 2025 Code Atlas AI (oss@codeatlas.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package oracle

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
	tracer = otel.Tracer("codeatlas.oracle")
	meter  = otel.Meter("codeatlas.oracle")
)

var (
	groupLatency metric.Float64Histogram
	groupTotal   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		groupLatency, err = meter.Float64Histogram(
			"oracle_group_duration_seconds",
			metric.WithDescription("Duration of grouping oracle calls"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		groupTotal, err = meter.Int64Counter(
			"oracle_group_requests_total",
			metric.WithDescription("Total number of grouping oracle calls"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordGroupMetrics records metrics for one oracle call.
func recordGroupMetrics(ctx context.Context, model string, duration time.Duration, success bool) {
	if err := initMetrics(); err != nil {
		return // Silently skip if metrics init failed
	}

	attrs := metric.WithAttributes(
		attribute.String("model", model),
		attribute.Bool("success", success),
	)
	groupLatency.Record(ctx, duration.Seconds(), attrs)
	groupTotal.Add(ctx, 1, attrs)
}

// startGroupSpan creates a span for one oracle call.
func startGroupSpan(ctx context.Context, model string, promptSize int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Oracle.GroupComponents",
		trace.WithAttributes(
			attribute.String("oracle.model", model),
			attribute.Int("oracle.prompt_size", promptSize),
		),
	)
}

// setGroupSpanResult sets result attributes on a grouping span.
func setGroupSpanResult(span trace.Span, moduleCount int) {
	span.SetAttributes(attribute.Int("oracle.module_count", moduleCount))
}
