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
	"fmt"

	"github.com/AleutianAI/testsynth/services/graph"
	"github.com/AleutianAI/testsynth/services/retrieval"
	"github.com/AleutianAI/testsynth/services/testgen"
	"github.com/AleutianAI/testsynth/services/verify"
)

// Phase names recorded in the run summary.
const (
	PhaseCollect  = "collect_message"
	PhaseBuild    = "build_graph"
	PhaseReadme   = "readme_summary"
	PhaseBehavior = "behavior_summary"
	PhaseIntent   = "intent_summary"
	PhaseMerge    = "merge_summary"
	PhaseClasses  = "class_summary"
	PhaseEmbed    = "class_embedding"
	PhaseIndex    = "function_index"
)

// session is the state a bootstrap hands to the rounds.
type session struct {
	project   *graph.Project
	manager   *testgen.Manager
	generator *testgen.Generator
}

// phase times fn under name and reports it to the observer.
func (e *Engine) phase(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := tracer.Start(ctx, "engine."+name)
	defer span.End()
	e.setPhase(name)
	e.observer.PhaseStarted(name)
	stop := e.stats.StartPhase(name)
	err := fn(ctx)
	stop()
	e.observer.PhaseFinished(name)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("%s: %w", name, err)
	}
	e.logger.Debug("phase finished", "phase", name)
	return nil
}

// bootstrap builds the project model, summarizes it, prepares retrieval
// and lays out the test tree.
func (e *Engine) bootstrap(ctx context.Context) (*session, error) {
	stop := e.stats.StartPhase(PhaseCollect)
	defer stop()

	s := &session{}
	err := e.phase(ctx, PhaseBuild, func(ctx context.Context) error {
		p, err := graph.Build(ctx, graph.BuildOptions{
			Root:      e.cfg.Root,
			SourceDir: e.cfg.SourceDir,
			Exclude:   []string{e.cfg.TestDir},
			Logger:    e.logger,
		})
		s.project = p
		return err
	})
	if err != nil {
		return nil, err
	}
	functions := len(s.project.Functions())
	e.logger.Info("project analyzed",
		"files", len(s.project.Files),
		"functions", functions,
		"classes", len(s.project.Classes()))
	e.update(func(st *Status) { st.Functions = functions })

	opts := []graph.SummarizerOption{
		graph.WithWorkers(e.cfg.Workers),
		graph.WithReadmeLimit(e.cfg.ReadmeChars),
		graph.WithSummarizerLogger(e.logger),
	}
	if e.embedder != nil {
		opts = append(opts, graph.WithEmbedder(e.embedder))
	}
	summarizer := graph.NewSummarizer(e.asker, opts...)

	steps := []struct {
		name string
		run  func(context.Context, *graph.Project) error
	}{
		{PhaseReadme, summarizer.SummarizeReadmes},
		{PhaseBehavior, summarizer.SummarizeAllBehavior},
		{PhaseIntent, summarizer.SummarizeAllIntent},
		{PhaseMerge, summarizer.MergeAll},
		{PhaseClasses, summarizer.SummarizeClasses},
		{PhaseEmbed, summarizer.EmbedClasses},
	}
	for _, step := range steps {
		err := e.phase(ctx, step.name, func(ctx context.Context) error {
			return step.run(ctx, s.project)
		})
		if err != nil {
			return nil, err
		}
	}

	s.manager, err = testgen.NewManager(s.project, e.cfg.TestDir)
	if err != nil {
		return nil, err
	}

	var searcher testgen.Searcher
	err = e.phase(ctx, PhaseIndex, func(ctx context.Context) error {
		searcher = e.indexFunctions(ctx, s.manager)
		return ctx.Err()
	})
	if err != nil {
		return nil, err
	}

	if err := s.manager.Init(); err != nil {
		return nil, err
	}

	finder := testgen.NewFinder(e.asker, searcher, s.manager,
		testgen.WithTopK(e.cfg.TopK),
		testgen.WithContextLimit(e.cfg.ContextChars),
		testgen.WithFinderLogger(e.logger))
	pipeline := verify.NewPipeline(e.tools, e.asker, e.stats, verify.WithLogger(e.logger))
	s.generator = testgen.NewGenerator(e.asker, pipeline,
		testgen.WithJudge(summarizer),
		testgen.WithFinder(finder),
		testgen.WithGeneratorLogger(e.logger))
	return s, nil
}

// indexFunctions loads the summarized functions into the retrieval index.
// It returns nil when retrieval is disabled or the index is unusable.
func (e *Engine) indexFunctions(ctx context.Context, m *testgen.Manager) testgen.Searcher {
	if e.embedder == nil || e.index == nil {
		e.logger.Info("retrieval disabled")
		return nil
	}
	searcher := retrieval.NewSearcher(e.embedder, e.index, e.logger)
	if err := searcher.Reset(ctx); err != nil {
		e.logger.Warn("retrieval index reset failed, retrieval disabled", "error", err)
		return nil
	}
	ids, texts := m.Documents()
	n, err := searcher.IndexAll(ctx, ids, texts, int64(e.cfg.Workers))
	if err != nil {
		e.logger.Warn("function indexing incomplete", "indexed", n, "documents", len(ids), "error", err)
	}
	if n == 0 {
		return nil
	}
	e.logger.Info("functions indexed", "indexed", n)
	return searcher
}
