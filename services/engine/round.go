// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/testsynth/services/coverage"
	"github.com/AleutianAI/testsynth/services/stats"
)

// round generates for every function, joins, then re-measures coverage.
func (e *Engine) round(ctx context.Context, s *session, i int) error {
	name := fmt.Sprintf("run_%d", i)
	ctx, span := tracer.Start(ctx, "engine.round")
	defer span.End()
	span.SetAttributes(attribute.Int("round", i+1))

	stop := e.stats.StartPhase(name)
	defer stop()
	e.setPhase(name)
	e.update(func(st *Status) { st.Round = i + 1 })
	e.observer.PhaseStarted(name)
	defer e.observer.PhaseFinished(name)

	records := s.manager.Records()
	var generated, done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for _, rec := range records {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			out, err := s.generator.Generate(gctx, rec)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				e.logger.Warn("generation failed", "function", rec.Function.FullName, "error", err)
			}
			if out.Generated() {
				generated.Add(1)
			}
			e.observer.Progress(int(done.Add(1)), len(records))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	e.measure(ctx, s)
	if err := ctx.Err(); err != nil {
		return err
	}

	totals := s.manager.Totals()
	rt := stats.RoundTotals{
		Round:             i + 1,
		Generated:         int(generated.Load()),
		Accepted:          s.manager.Accepted(),
		CoveredLines:      totals.CoveredLines,
		UncoveredLines:    totals.UncoveredLines,
		CoveredBranches:   totals.CoveredBranches,
		UncoveredBranches: totals.UncoveredBranches,
	}
	e.stats.AddRound(rt)
	e.stats.EndFirstRound()
	e.update(func(st *Status) {
		st.Generated += rt.Generated
		st.Accepted = rt.Accepted
		st.Coverage = rt
	})
	e.logger.Info("round finished",
		"round", rt.Round,
		"generated", rt.Generated,
		"accepted", rt.Accepted,
		"covered_lines", rt.CoveredLines,
		"uncovered_lines", rt.UncoveredLines)
	return nil
}

// measure runs coverage over the test tree and applies it to the records.
// A failed measurement leaves the previous coverage in place.
func (e *Engine) measure(ctx context.Context, s *session) {
	report, err := e.tools.Coverage(ctx, e.cfg.SourceDir, e.cfg.TestDir)
	if err != nil {
		e.logger.Warn("coverage measurement failed", "error", err)
		return
	}
	byModule, err := report.Functions()
	if err != nil {
		if !errors.Is(err, coverage.ErrNoFunctions) {
			e.logger.Warn("coverage report unusable", "error", err)
			return
		}
		e.logger.Warn("coverage report has no per-function data; coverage.py 7.5 or newer is required")
	}
	n := s.manager.ApplyCoverage(byModule)
	e.logger.Debug("coverage applied", "functions", n)
	if e.cfg.BenchmarkModules != nil {
		e.stats.AddCoverage(report.Snapshot(e.cfg.BenchmarkModules))
	}
}
