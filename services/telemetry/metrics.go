// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/testsynth/services/stats"
)

// Metrics records run progress as OpenTelemetry instruments.
//
// Description:
//
//	Metrics follows the engine as a progress observer (phase durations and
//	functions processed) and as a run summary publisher (final case and
//	coverage gauges). All instruments use the "testsynth_" prefix.
//
// Thread Safety: Safe for concurrent use after creation.
type Metrics struct {
	// PhaseDuration records the wall time of each phase in seconds.
	PhaseDuration metric.Float64Histogram

	// FunctionsProcessed counts generation attempts finished across rounds.
	FunctionsProcessed metric.Int64Counter

	// Cases holds the cumulative check outcomes of the run by outcome.
	Cases metric.Int64Gauge

	// CoverageLines holds the line coverage of the last round by state.
	CoverageLines metric.Int64Gauge

	// CoverageBranches holds the branch coverage of the last round by state.
	CoverageBranches metric.Int64Gauge

	mu      sync.Mutex
	started map[string]time.Time
}

// NewMetrics registers the instruments with meter.
//
// Example:
//
//	m, err := telemetry.NewMetrics(otel.Meter("testsynth"))
//	if err != nil {
//	    return fmt.Errorf("create metrics: %w", err)
//	}
//	eng, err := engine.New(cfg, asker, tools, engine.WithObserver(m), engine.WithPublishers(m))
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{started: make(map[string]time.Time)}
	var err error

	m.PhaseDuration, err = meter.Float64Histogram(
		"testsynth_phase_duration_seconds",
		metric.WithDescription("Wall time of each run phase"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 1, 5, 15, 60, 300, 900, 1800, 3600),
	)
	if err != nil {
		return nil, fmt.Errorf("create phase_duration: %w", err)
	}

	m.FunctionsProcessed, err = meter.Int64Counter(
		"testsynth_functions_processed_total",
		metric.WithDescription("Generation attempts finished"),
		metric.WithUnit("{function}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create functions_processed: %w", err)
	}

	m.Cases, err = meter.Int64Gauge(
		"testsynth_cases",
		metric.WithDescription("Cumulative test case check outcomes"),
		metric.WithUnit("{case}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create cases: %w", err)
	}

	m.CoverageLines, err = meter.Int64Gauge(
		"testsynth_coverage_lines",
		metric.WithDescription("Covered and uncovered lines after the last round"),
		metric.WithUnit("{line}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create coverage_lines: %w", err)
	}

	m.CoverageBranches, err = meter.Int64Gauge(
		"testsynth_coverage_branches",
		metric.WithDescription("Covered and uncovered branches after the last round"),
		metric.WithUnit("{branch}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create coverage_branches: %w", err)
	}

	return m, nil
}

// PhaseStarted notes the start time of name.
func (m *Metrics) PhaseStarted(name string) {
	m.mu.Lock()
	m.started[name] = time.Now()
	m.mu.Unlock()
}

// Progress counts one finished attempt.
func (m *Metrics) Progress(int, int) {
	m.FunctionsProcessed.Add(context.Background(), 1)
}

// PhaseFinished records the duration of name. Unknown phases are ignored.
func (m *Metrics) PhaseFinished(name string) {
	m.mu.Lock()
	start, ok := m.started[name]
	delete(m.started, name)
	m.mu.Unlock()
	if !ok {
		return
	}
	m.PhaseDuration.Record(context.Background(), time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("phase", name)))
}

// Publish sets the gauges from the finished run.
func (m *Metrics) Publish(ctx context.Context, s *stats.RunSummary) error {
	outcomes := []struct {
		name  string
		value int
	}{
		{"syntax_pass", s.Total.SyntaxPass},
		{"syntax_error", s.Total.SyntaxError},
		{"syntax_fix_success", s.Total.SyntaxFixSuccess},
		{"assertion_pass", s.Total.AssertionPass},
		{"assertion_error", s.Total.AssertionError},
		{"assertion_fix_success", s.Total.AssertionFixSuccess},
	}
	for _, o := range outcomes {
		m.Cases.Record(ctx, int64(o.value), metric.WithAttributes(attribute.String("outcome", o.name)))
	}

	if len(s.Rounds) == 0 {
		return nil
	}
	last := s.Rounds[len(s.Rounds)-1]
	covered := metric.WithAttributes(attribute.String("state", "covered"))
	uncovered := metric.WithAttributes(attribute.String("state", "uncovered"))
	m.CoverageLines.Record(ctx, int64(last.CoveredLines), covered)
	m.CoverageLines.Record(ctx, int64(last.UncoveredLines), uncovered)
	m.CoverageBranches.Record(ctx, int64(last.CoveredBranches), covered)
	m.CoverageBranches.Record(ctx, int64(last.UncoveredBranches), uncovered)
	return nil
}

// Close implements stats.Publisher.
func (m *Metrics) Close() error {
	return nil
}
