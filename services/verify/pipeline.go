// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package verify

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/testsynth/services/oracle"
	"github.com/AleutianAI/testsynth/services/pytools"
)

var tracer = otel.Tracer("testsynth.verify")

// Tools runs the linter and the test runner on one file.
type Tools interface {
	Pylint(ctx context.Context, path string) (*pytools.Outcome, error)
	Pytest(ctx context.Context, path string) (*pytools.Outcome, error)
}

// Recorder receives check statistics.
type Recorder interface {
	AddSyntaxPass()
	AddSyntaxError()
	AddSyntaxFixSuccess()
	AddAssertionPass()
	AddAssertionError()
	AddAssertionFixSuccess()
	AddAssertionErrorType(kind string)
}

// ContextFinder supplies retrieval context for a failure transcript.
type ContextFinder interface {
	RepairContext(ctx context.Context, failure string) string
}

// Subject is the function a Case tests.
type Subject struct {
	// Name identifies the function in logs.
	Name string

	// Source is the function as rendered for prompts.
	Source string

	// Finder supplies context for the second repair. May be nil.
	Finder ContextFinder
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// Pipeline checks and repairs test cases.
//
// Thread Safety: Safe for concurrent use on distinct Cases.
type Pipeline struct {
	tools  Tools
	asker  oracle.Asker
	stats  Recorder
	logger *slog.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(tools Tools, asker oracle.Asker, stats Recorder, opts ...Option) *Pipeline {
	p := &Pipeline{
		tools:  tools,
		asker:  asker,
		stats:  stats,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Check drives c through the syntax and assertion checks, repairing or
// truncating it when they fail.
//
// Description:
//
//	A syntax failure gets one repair; failing again discards the case. An
//	assertion failure gets a repair from the failure transcript, then a
//	second repair with retrieval context from subject.Finder; each repair
//	is syntax-checked again. If both fail the minimizer keeps the longest
//	passing assertion prefix, probing exponentially when the last failure
//	was a timeout. Only the first syntax check and the first assertion
//	check update the pass/error counters; error types are recorded at the
//	first assertion failure only.
//
// Inputs:
//
//	ctx - Cancellation for tool runs and oracle requests.
//	c - The case; its file is rewritten by repairs and truncation.
//	subject - The function under test.
//
// Outputs:
//
//	Verdict - Discarded means the caller should delete the file.
//	error - File I/O failure or ctx.Err().
func (p *Pipeline) Check(ctx context.Context, c *Case, subject Subject) (Verdict, error) {
	ctx, span := tracer.Start(ctx, "verify.Check")
	defer span.End()
	span.SetAttributes(attribute.String("function", subject.Name))

	v, err := p.check(ctx, c, subject)
	span.SetAttributes(attribute.String("verdict", v.String()))
	if err != nil {
		span.RecordError(err)
		return Discarded, err
	}
	p.logger.Debug("test case checked", "function", subject.Name, "path", c.Path, "verdict", v.String())
	return v, nil
}

func (p *Pipeline) check(ctx context.Context, c *Case, subject Subject) (Verdict, error) {
	ok, err := p.syntaxCheck(ctx, c, true)
	if err != nil || !ok {
		return Discarded, err
	}

	if !p.findAssertError(ctx, c, true) {
		p.stats.AddAssertionPass()
		if c.repairs > 0 {
			return Repaired, nil
		}
		return Accepted, nil
	}
	p.stats.AddAssertionError()

	if err := p.repairAssert(ctx, c, subject, nil); err != nil {
		return Discarded, err
	}
	if v, done, err := p.recheck(ctx, c); done || err != nil {
		return v, err
	}

	var found string
	if subject.Finder != nil {
		found = subject.Finder.RepairContext(ctx, failureTranscript(subject.Source, c.Code(), c.errorMessage))
	}
	if err := p.repairAssert(ctx, c, subject, &found); err != nil {
		return Discarded, err
	}
	if v, done, err := p.recheck(ctx, c); done || err != nil {
		return v, err
	}

	if err := ctx.Err(); err != nil {
		return Discarded, err
	}
	kept, err := p.minimize(ctx, c)
	if err != nil || !kept {
		return Discarded, err
	}
	return Truncated, nil
}

// recheck runs the checks after a repair. done is true when the case
// reached a final verdict.
func (p *Pipeline) recheck(ctx context.Context, c *Case) (Verdict, bool, error) {
	ok, err := p.syntaxCheck(ctx, c, false)
	if err != nil {
		return Discarded, true, err
	}
	if !ok {
		return Discarded, true, nil
	}
	if !p.findAssertError(ctx, c, false) {
		p.stats.AddAssertionFixSuccess()
		return Repaired, true, nil
	}
	return Discarded, false, ctx.Err()
}

// syntaxCheck lints c, repairing once on failure.
func (p *Pipeline) syntaxCheck(ctx context.Context, c *Case, count bool) (bool, error) {
	if !p.findSyntaxError(ctx, c) {
		if count {
			p.stats.AddSyntaxPass()
		}
		return true, nil
	}
	if count {
		p.stats.AddSyntaxError()
	}
	if err := p.repairSyntax(ctx, c); err != nil {
		return false, err
	}
	if p.findSyntaxError(ctx, c) {
		return false, ctx.Err()
	}
	if count {
		p.stats.AddSyntaxFixSuccess()
	}
	return true, nil
}

// findSyntaxError reports whether c fails the linter. A linter that cannot
// run counts as a failure.
func (p *Pipeline) findSyntaxError(ctx context.Context, c *Case) bool {
	out, err := p.tools.Pylint(ctx, c.Path)
	if err != nil {
		p.logger.Warn("lint check could not run", "tool", pytools.ToolPylint, "path", c.Path, "error", err)
		c.errorMessage = err.Error()
		return true
	}
	if out.Passed {
		return false
	}
	c.errorMessage = out.Output
	return true
}

// findAssertError reports whether c's tests fail. With record set, the
// failure's error types are added to the statistics once per case.
func (p *Pipeline) findAssertError(ctx context.Context, c *Case, record bool) bool {
	out, err := p.tools.Pytest(ctx, c.Path)
	if err != nil {
		p.logger.Warn("test run could not run", "tool", pytools.ToolPytest, "path", c.Path, "error", err)
		c.errorMessage = err.Error()
		c.timedOut = false
		return true
	}
	c.timedOut = out.TimedOut
	if out.Passed {
		return false
	}
	c.errorMessage = out.Output
	if record && !c.typesSeen {
		c.typesSeen = true
		seen := make(map[string]bool, len(out.ErrorTypes))
		for _, kind := range out.ErrorTypes {
			if !seen[kind] {
				seen[kind] = true
				p.stats.AddAssertionErrorType(kind)
			}
		}
	}
	return true
}

// repairSyntax asks for a lint fix. A declined request leaves the file as
// it is.
func (p *Pipeline) repairSyntax(ctx context.Context, c *Case) error {
	res := p.asker.Ask(ctx, syntaxRepairSystem, syntaxRepairPrompt(c.Code(), c.errorMessage))
	if !res.Answered() {
		p.logger.Warn("syntax repair declined", "path", c.Path, "reason", res.Reason())
		return nil
	}
	c.repairs++
	return c.SetCode(oracle.StripFences(res.Text()))
}

// repairAssert asks for an assertion fix, with found appended as retrieval
// context when non-nil.
func (p *Pipeline) repairAssert(ctx context.Context, c *Case, subject Subject, found *string) error {
	prompt := assertRepairPrompt(failureTranscript(subject.Source, c.Code(), c.errorMessage))
	if found != nil {
		prompt = withFoundMessages(prompt, *found)
	}
	res := p.asker.Ask(ctx, assertRepairSystem, prompt)
	if !res.Answered() {
		p.logger.Warn("assertion repair declined", "path", c.Path, "reason", res.Reason())
		return nil
	}
	c.repairs++
	return c.SetCode(oracle.StripFences(res.Text()))
}
