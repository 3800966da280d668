// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine runs a complete test-synthesis session over one project.
//
// A session bootstraps the project model and its summaries, indexes the
// summarized functions for retrieval, then runs a fixed number of rounds.
// Each round generates one case per function with a bounded worker pool,
// joins, measures coverage and feeds it back into the function records.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/testsynth/services/coverage"
	"github.com/AleutianAI/testsynth/services/embedding"
	"github.com/AleutianAI/testsynth/services/oracle"
	"github.com/AleutianAI/testsynth/services/retrieval"
	"github.com/AleutianAI/testsynth/services/stats"
	"github.com/AleutianAI/testsynth/services/testgen"
	"github.com/AleutianAI/testsynth/services/verify"
)

var tracer = otel.Tracer("testsynth.engine")

// Engine defaults.
const (
	DefaultRounds     = 3
	DefaultWorkers    = 16
	DefaultResultsDir = "run_results"
)

// ErrInvalidConfig is returned for a Config missing a required field.
var ErrInvalidConfig = errors.New("invalid engine config")

// Config describes one session.
type Config struct {
	// Root is the project root.
	Root string

	// SourceDir is the directory under test, relative to Root.
	SourceDir string

	// TestDir is the generated test directory under Root.
	TestDir string

	// ProjectName names the run summary. Default: base name of Root.
	ProjectName string

	Rounds  int
	Workers int

	// ReadmeChars bounds README text per summary request.
	ReadmeChars int

	// BenchmarkModules enables per-round coverage snapshots of these
	// modules. Nil disables snapshots.
	BenchmarkModules []string

	// IncludeTypes adds extracted parameter types to the run summary.
	IncludeTypes bool

	// ResultsDir receives the run summary file.
	ResultsDir string

	// TopK and ContextChars bound retrieval context. Zero keeps the
	// testgen defaults.
	TopK         int
	ContextChars int
}

func (c Config) withDefaults() Config {
	if c.TestDir == "" {
		c.TestDir = testgen.DefaultTestDir
	}
	if c.ProjectName == "" {
		c.ProjectName = filepath.Base(filepath.Clean(c.Root))
	}
	if c.Rounds <= 0 {
		c.Rounds = DefaultRounds
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.ResultsDir == "" {
		c.ResultsDir = DefaultResultsDir
	}
	return c
}

// Tools runs the Python tooling for a session.
type Tools interface {
	verify.Tools
	Coverage(ctx context.Context, sourceDir, testDir string) (*coverage.Report, error)
}

// Observer follows session progress.
type Observer interface {
	PhaseStarted(name string)
	Progress(done, total int)
	PhaseFinished(name string)
}

type nopObserver struct{}

func (nopObserver) PhaseStarted(string)  {}
func (nopObserver) Progress(int, int)    {}
func (nopObserver) PhaseFinished(string) {}

// Option configures an Engine.
type Option func(*Engine)

// WithRetrieval enables retrieval context backed by embedder and index.
func WithRetrieval(embedder embedding.Embedder, index retrieval.Index) Option {
	return func(e *Engine) {
		e.embedder = embedder
		e.index = index
	}
}

type multiObserver []Observer

func (m multiObserver) PhaseStarted(name string) {
	for _, o := range m {
		o.PhaseStarted(name)
	}
}

func (m multiObserver) Progress(done, total int) {
	for _, o := range m {
		o.Progress(done, total)
	}
}

func (m multiObserver) PhaseFinished(name string) {
	for _, o := range m {
		o.PhaseFinished(name)
	}
}

// WithObserver adds a progress observer. Observers are called in the order
// they were added.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o == nil {
			return
		}
		switch cur := e.observer.(type) {
		case nopObserver:
			e.observer = o
		case multiObserver:
			e.observer = append(cur, o)
		default:
			e.observer = multiObserver{cur, o}
		}
	}
}

// WithPublishers adds run summary sinks.
func WithPublishers(p ...stats.Publisher) Option {
	return func(e *Engine) { e.publishers = append(e.publishers, p...) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// Engine runs one session.
//
// Thread Safety: Run may be called once. Status and Stats are safe to call
// from other goroutines while Run is in progress.
type Engine struct {
	cfg        Config
	asker      oracle.Asker
	tools      Tools
	embedder   embedding.Embedder
	index      retrieval.Index
	observer   Observer
	publishers []stats.Publisher
	logger     *slog.Logger
	stats      *stats.Accumulator
	runID      string

	mu     sync.RWMutex
	status Status
}

// New creates an Engine.
//
// Inputs:
//
//	cfg - Session settings. Root and SourceDir are required.
//	asker - The oracle gateway.
//	tools - The Python tool runner.
//	opts - Optional retrieval, observer, sinks and logger.
//
// Outputs:
//
//	*Engine - Ready to Run.
//	error - ErrInvalidConfig when a required field is missing.
func New(cfg Config, asker oracle.Asker, tools Tools, opts ...Option) (*Engine, error) {
	if cfg.Root == "" || cfg.SourceDir == "" {
		return nil, fmt.Errorf("%w: root and source dir are required", ErrInvalidConfig)
	}
	if asker == nil || tools == nil {
		return nil, fmt.Errorf("%w: oracle and tools are required", ErrInvalidConfig)
	}
	cfg = cfg.withDefaults()
	e := &Engine{
		cfg:      cfg,
		asker:    asker,
		tools:    tools,
		observer: nopObserver{},
		logger:   slog.Default(),
		stats:    stats.NewAccumulator(),
		runID:    uuid.NewString(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.status = Status{RunID: e.runID, Project: cfg.ProjectName, Rounds: cfg.Rounds}
	return e, nil
}

// RunID returns the session identifier.
func (e *Engine) RunID() string {
	return e.runID
}

// Stats returns the session accumulator.
func (e *Engine) Stats() *stats.Accumulator {
	return e.stats
}

// Result is the outcome of a completed session.
type Result struct {
	Summary *stats.RunSummary

	// Path is the written run summary file.
	Path string
}

// Run executes the session.
//
// Description:
//
//	Bootstraps the project, runs cfg.Rounds rounds, then writes the run
//	summary under cfg.ResultsDir and hands it to every publisher. Only an
//	unreadable source tree, an unwritable test directory or cancellation
//	end the session early; every other failure is logged and absorbed.
//	Publisher failures are logged.
//
// Inputs:
//
//	ctx - Cancellation for the whole session.
//
// Outputs:
//
//	*Result - The run summary and its path.
//	error - Bootstrap failure, summary write failure or ctx.Err().
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	ctx, span := tracer.Start(ctx, "engine.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("run_id", e.runID),
		attribute.String("project", e.cfg.ProjectName),
		attribute.Int("rounds", e.cfg.Rounds),
	)
	e.logger.Info("session started",
		"run_id", e.runID,
		"project", e.cfg.ProjectName,
		"root", e.cfg.Root,
		"source_dir", e.cfg.SourceDir,
		"rounds", e.cfg.Rounds)

	s, err := e.bootstrap(ctx)
	if err != nil {
		span.RecordError(err)
		e.setPhase("failed")
		return nil, err
	}
	for i := 0; i < e.cfg.Rounds; i++ {
		if err := e.round(ctx, s, i); err != nil {
			span.RecordError(err)
			e.setPhase("failed")
			return nil, err
		}
	}

	summary := e.summarize(s)
	path, err := stats.WriteFile(e.cfg.ResultsDir, summary)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	e.publish(ctx, summary)
	e.setPhase("done")
	e.logger.Info("session finished",
		"run_id", e.runID,
		"summary", path,
		"accepted", s.manager.Accepted(),
		"seconds", summary.Time)
	return &Result{Summary: summary, Path: path}, nil
}

func (e *Engine) summarize(s *session) *stats.RunSummary {
	if e.cfg.IncludeTypes {
		for name, types := range s.manager.ParamTypes() {
			e.stats.SetParamTypes(name, types)
		}
	}
	return e.stats.Summary(e.runID, e.cfg.ProjectName, e.cfg.IncludeTypes)
}

func (e *Engine) publish(ctx context.Context, summary *stats.RunSummary) {
	for _, p := range e.publishers {
		if err := p.Publish(ctx, summary); err != nil {
			e.logger.Warn("run summary publish failed", "sink", fmt.Sprintf("%T", p), "error", err)
		}
		if err := p.Close(); err != nil {
			e.logger.Warn("run summary sink close failed", "sink", fmt.Sprintf("%T", p), "error", err)
		}
	}
}
