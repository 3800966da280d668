// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pytools

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
	tracer = otel.Tracer("testsynth.pytools")
	meter  = otel.Meter("testsynth.pytools")
)

var (
	toolLatency metric.Float64Histogram
	toolTotal   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		toolLatency, err = meter.Float64Histogram(
			"pytools_duration_seconds",
			metric.WithDescription("Duration of Python tool invocations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		toolTotal, err = meter.Int64Counter(
			"pytools_runs_total",
			metric.WithDescription("Total number of Python tool invocations"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func startToolSpan(ctx context.Context, tool, path string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "pytools."+tool,
		trace.WithAttributes(
			attribute.String("pytools.tool", tool),
			attribute.String("pytools.path", path),
		),
	)
}

// recordToolMetrics records one invocation. outcome is pass, fail,
// timeout, fallback or error.
func recordToolMetrics(ctx context.Context, tool, outcome string, duration time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("outcome", outcome),
	)
	toolLatency.Record(ctx, duration.Seconds(), attrs)
	toolTotal.Add(ctx, 1, attrs)
}

func outcomeLabel(o *Outcome, err error) string {
	switch {
	case err != nil:
		return "error"
	case o == nil:
		return "error"
	case o.TimedOut:
		return "timeout"
	case o.Fallback:
		return "fallback"
	case o.Passed:
		return "pass"
	default:
		return "fail"
	}
}
