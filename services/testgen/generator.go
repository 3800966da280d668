// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package testgen

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/testsynth/services/coverage"
	"github.com/AleutianAI/testsynth/services/graph"
	"github.com/AleutianAI/testsynth/services/oracle"
	"github.com/AleutianAI/testsynth/services/verify"
)

var tracer = otel.Tracer("testsynth.testgen")

// Judge prepares example calls for a function's parameters.
type Judge interface {
	JudgeParams(ctx context.Context, f *graph.Function)
}

// Checker verifies and repairs a generated case.
type Checker interface {
	Check(ctx context.Context, c *verify.Case, subject verify.Subject) (verify.Verdict, error)
}

// Outcome reports one generation attempt.
type Outcome struct {
	Strategy Strategy
	Verdict  verify.Verdict

	// Path is the case file, empty when nothing was written.
	Path string

	// Declined is set when the oracle produced no test case.
	Declined bool
}

// Generated reports whether an attempt was made.
func (o Outcome) Generated() bool {
	return o.Strategy != StrategyDone
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithJudge enables parameter judgement before each attempt.
func WithJudge(j Judge) GeneratorOption {
	return func(g *Generator) { g.judge = j }
}

// WithFinder enables retrieval context for evolution and repair.
func WithFinder(f *Finder) GeneratorOption {
	return func(g *Generator) { g.finder = f }
}

// WithGeneratorLogger sets the logger.
func WithGeneratorLogger(l *slog.Logger) GeneratorOption {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// Generator runs one generation attempt for a Record.
//
// Thread Safety: Safe for concurrent use on distinct Records.
type Generator struct {
	asker   oracle.Asker
	checker Checker
	judge   Judge
	finder  *Finder
	logger  *slog.Logger
}

// NewGenerator creates a Generator that asks asker and verifies with checker.
func NewGenerator(asker oracle.Asker, checker Checker, opts ...GeneratorOption) *Generator {
	g := &Generator{
		asker:   asker,
		checker: checker,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate runs one round for rec.
//
// Description:
//
//	A fully covered record is left alone. Otherwise the parameters are
//	judged, a case is generated with the record's strategy and written to
//	rec.NextPath(), and the verify pipeline decides its fate. Kept cases
//	append to rec; the others are deleted. Every attempt counts toward
//	rec.Attempts, including one the oracle declined.
//
// Inputs:
//
//	ctx - Cancellation.
//	rec - The function's record.
//
// Outputs:
//
//	Outcome - What was attempted and the verdict.
//	error - A file write failure or ctx.Err().
//
// Thread Safety: Safe for concurrent use on distinct Records.
func (g *Generator) Generate(ctx context.Context, rec *Record) (Outcome, error) {
	strategy := rec.Strategy()
	out := Outcome{Strategy: strategy}
	if strategy == StrategyDone {
		return out, nil
	}

	ctx, span := tracer.Start(ctx, "testgen.Generate")
	defer span.End()
	fn := rec.Function
	span.SetAttributes(
		attribute.String("function", fn.FullName),
		attribute.String("strategy", strategy.String()),
	)

	if g.judge != nil {
		g.judge.JudgeParams(ctx, fn)
	}

	code, ok := g.compose(ctx, rec, strategy)
	if !ok {
		rec.finish(nil)
		out.Declined = true
		return out, ctx.Err()
	}

	path := rec.NextPath()
	c, err := verify.NewCase(path, code)
	if err != nil {
		rec.finish(nil)
		span.RecordError(err)
		return out, fmt.Errorf("write case for %s: %w", fn.FullName, err)
	}
	out.Path = path

	var finder verify.ContextFinder
	if g.finder != nil {
		finder = g.finder
	}
	v, err := g.checker.Check(ctx, c, verify.Subject{
		Name:   fn.FullName,
		Source: fn.SourceContext(),
		Finder: finder,
	})
	out.Verdict = v
	span.SetAttributes(attribute.String("verdict", v.String()))
	if err != nil || !v.Kept() {
		if derr := c.Delete(); derr != nil {
			g.logger.Warn("could not delete rejected case", "path", path, "error", derr)
		}
		rec.finish(nil)
		return out, err
	}
	rec.finish(c)
	return out, nil
}

// compose asks the oracle for a case with the given strategy. It returns
// false when the oracle declined.
func (g *Generator) compose(ctx context.Context, rec *Record, strategy Strategy) (string, bool) {
	fn := rec.Function
	module := fn.File.Module

	var res oracle.Result
	switch strategy {
	case StrategyEvolve:
		cov := rec.Coverage()
		var other string
		if g.finder != nil {
			other = g.finder.CoverageContext(ctx, rec)
		}
		prompt := evolvePrompt(module,
			coverage.Annotate(fn.Code, fn.StartLine, cov.MissingLines),
			cov.FormatMissing(),
			rec.FirstTest(),
			other)
		res = g.asker.Ask(ctx, evolveSystem, prompt)
		if !res.Answered() {
			break
		}
		return oracle.StripFences(res.Text()), true
	case StrategyEasy:
		res = g.asker.Ask(ctx, easySystem, generatePrompt(module, fn.SourceContext()))
	default:
		res = g.asker.Ask(ctx, normalSystem, generatePrompt(module, fn.SourceContext()))
	}
	if !res.Answered() {
		g.logger.Warn("test generation declined",
			"function", fn.FullName,
			"strategy", strategy.String(),
			"reason", res.Reason())
		return "", false
	}
	return moduleHeader(module) + oracle.StripFences(res.Text()), true
}
