// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/textsplitter"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/testsynth/services/embedding"
	"github.com/AleutianAI/testsynth/services/oracle"
)

// Summarizer defaults.
const (
	// DefaultWorkers bounds concurrent nodes per phase.
	DefaultWorkers = 16

	// DefaultReadmeChars bounds the README text sent to the oracle.
	DefaultReadmeChars = 12000

	readmeChunkSize    = 2000
	readmeChunkOverlap = 0
)

var markdownSeparators = []string{
	"\n# ", "\n## ", "\n### ", "\n#### ", "\n##### ", "\n###### ",
	"\n\n", "\n", " ", "",
}

// SummarizerOption configures a Summarizer.
type SummarizerOption func(*Summarizer)

// WithEmbedder enables class embeddings and nearest-class parameter typing.
func WithEmbedder(e embedding.Embedder) SummarizerOption {
	return func(s *Summarizer) { s.embedder = e }
}

// WithWorkers sets the per-phase concurrency limit.
func WithWorkers(n int) SummarizerOption {
	return func(s *Summarizer) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithReadmeLimit sets the README character budget.
func WithReadmeLimit(chars int) SummarizerOption {
	return func(s *Summarizer) {
		if chars > 0 {
			s.readmeChars = chars
		}
	}
}

// WithSummarizerLogger sets the logger.
func WithSummarizerLogger(l *slog.Logger) SummarizerOption {
	return func(s *Summarizer) {
		if l != nil {
			s.logger = l
		}
	}
}

// Summarizer produces the natural-language summaries of a Project.
//
// Thread Safety: Safe for concurrent use. Each node's behavior summary is
// requested from the oracle at most once, even when traversals race.
type Summarizer struct {
	asker       oracle.Asker
	embedder    embedding.Embedder
	logger      *slog.Logger
	workers     int
	readmeChars int
	flights     singleflight.Group
}

// NewSummarizer creates a Summarizer that asks asker.
func NewSummarizer(asker oracle.Asker, opts ...SummarizerOption) *Summarizer {
	s := &Summarizer{
		asker:       asker,
		logger:      slog.Default(),
		workers:     DefaultWorkers,
		readmeChars: DefaultReadmeChars,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Summarizer) ask(ctx context.Context, op, system, user string) oracle.Result {
	res := s.asker.Ask(ctx, system, user)
	if !res.Answered() {
		s.logger.Warn("oracle declined", "op", op, "reason", res.Reason())
	}
	return res
}

// forEach runs fn over items with at most limit in flight and joins before
// returning.
func forEach[T any](ctx context.Context, limit int, items []T, fn func(context.Context, T)) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, item := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			fn(gctx, item)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// =============================================================================
// README summaries
// =============================================================================

// SummarizeReadmes summarizes every README in the project tree once.
func (s *Summarizer) SummarizeReadmes(ctx context.Context, p *Project) error {
	var dirs []*Dir
	for _, d := range p.Dirs() {
		if d.HasReadme() {
			dirs = append(dirs, d)
		}
	}
	return forEach(ctx, s.workers, dirs, func(ctx context.Context, d *Dir) {
		if _, done := d.ReadmeSummary(); done {
			return
		}
		res := s.ask(ctx, "readme", readmeSystem, readmeUser(s.clipReadme(d.ReadmeText())))
		if res.Answered() {
			d.setSummary(res.Text())
		}
	})
}

// clipReadme keeps whole markdown chunks up to the character budget.
func (s *Summarizer) clipReadme(text string) string {
	if len(text) <= s.readmeChars {
		return text
	}
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(min(readmeChunkSize, s.readmeChars)),
		textsplitter.WithChunkOverlap(readmeChunkOverlap),
		textsplitter.WithSeparators(markdownSeparators),
	)
	chunks, err := splitter.SplitText(text)
	if err != nil || len(chunks) == 0 {
		return text[:s.readmeChars]
	}
	var b strings.Builder
	for _, c := range chunks {
		if b.Len()+len(c)+1 > s.readmeChars {
			break
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(c)
	}
	if b.Len() == 0 {
		return text[:s.readmeChars]
	}
	return b.String()
}

// =============================================================================
// Behavior (bottom-up)
// =============================================================================

// SummarizeBehavior returns what f does, summarizing its callees first.
//
// Description:
//
//	Memoized per node. Within one traversal a node already in progress
//	reads as "" so cycles and self-calls terminate. Callee summaries that
//	are non-empty are passed as context. The oracle request for a node is
//	deduplicated across concurrent traversals, and a declined request is
//	memoized as "".
//
// Inputs:
//
//	ctx - Cancellation. A cancelled traversal memoizes nothing.
//	f - The function to summarize.
//
// Outputs:
//
//	string - The summary, "" when unavailable.
//
// Thread Safety: Safe for concurrent use.
func (s *Summarizer) SummarizeBehavior(ctx context.Context, f *Function) string {
	return s.behavior(ctx, f, make(map[*Function]bool))
}

func (s *Summarizer) behavior(ctx context.Context, f *Function, inProgress map[*Function]bool) string {
	if v, ok := f.Behavior(); ok {
		return v
	}
	if inProgress[f] || ctx.Err() != nil {
		return ""
	}
	inProgress[f] = true

	var callees strings.Builder
	for _, e := range f.Uses {
		if d := s.behavior(ctx, e.Callee, inProgress); d != "" {
			callees.WriteString(calleeEntry(e.Callee.Name, d))
		}
	}
	if ctx.Err() != nil {
		return ""
	}

	v, _, _ := s.flights.Do(f.FullName, func() (interface{}, error) {
		if v, ok := f.Behavior(); ok {
			return v, nil
		}
		system, user := behaviorPrompt(f.SourceContext(), callees.String())
		res := s.ask(ctx, "behavior", system, user)
		if ctx.Err() != nil {
			return "", nil
		}
		return f.setOnce(&f.behavior, res.Text()), nil
	})
	return v.(string)
}

// SummarizeAllBehavior summarizes every function in the project.
func (s *Summarizer) SummarizeAllBehavior(ctx context.Context, p *Project) error {
	return forEach(ctx, s.workers, p.Functions(), func(ctx context.Context, f *Function) {
		s.SummarizeBehavior(ctx, f)
	})
}

// =============================================================================
// Intent (top-down)
// =============================================================================

// SummarizeIntent records what f is meant to do and pushes that down to
// its callees.
//
// Description:
//
//	With isJudge set, text is taken as f's intent verbatim. Otherwise text
//	is the project README summary ("" when none) and the oracle refines it
//	into a docstring for f. Each callee without an intent is then described
//	from its call site and visited recursively with isJudge set. A callee
//	is claimed before the oracle is asked, so concurrent traversals never
//	describe the same callee twice.
func (s *Summarizer) SummarizeIntent(ctx context.Context, f *Function, text string, isJudge bool) {
	s.intent(ctx, f, text, isJudge, make(map[*Function]bool))
}

func (s *Summarizer) intent(ctx context.Context, f *Function, text string, isJudge bool, visited map[*Function]bool) {
	if visited[f] || ctx.Err() != nil {
		return
	}
	visited[f] = true

	if !isJudge {
		system, user := intentSeedPrompt(text, text != "", f.Docstring, f.Code)
		text = s.ask(ctx, "intent", system, user).Text()
	}
	f.setIntent(text)

	for _, e := range f.Uses {
		callee := e.Callee
		if visited[callee] || !callee.claimIntent() {
			continue
		}
		user := callSitePrompt(callee.Name, text, f.Code, e.Line, e.CallCode)
		described := s.ask(ctx, "call_site", callSiteSystem, user).Text()
		s.intent(ctx, callee, described, true, visited)
	}
}

// SummarizeAllIntent seeds intent traversals at every function nothing in
// the project calls, using the nearest README summary as context.
func (s *Summarizer) SummarizeAllIntent(ctx context.Context, p *Project) error {
	var seeds []*Function
	for _, f := range p.Functions() {
		if len(f.Used) == 0 {
			seeds = append(seeds, f)
		}
	}
	return forEach(ctx, s.workers, seeds, func(ctx context.Context, f *Function) {
		readme, _ := f.File.Readme()
		s.SummarizeIntent(ctx, f, readme, false)
	})
}

func (f *Function) setIntent(v string) {
	f.mu.Lock()
	f.intent = &v
	f.mu.Unlock()
}

// claimIntent marks f as having an intent pending and reports whether the
// caller won the claim.
func (f *Function) claimIntent() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.intent != nil {
		return false
	}
	pending := ""
	f.intent = &pending
	return true
}

// =============================================================================
// Merged summaries
// =============================================================================

// Merge combines f's behavior and intent into its summary.
func (s *Summarizer) Merge(ctx context.Context, f *Function) {
	if _, ok := f.Summary(); ok {
		return
	}
	behavior, _ := f.Behavior()
	intent, _ := f.Intent()
	res := s.ask(ctx, "merge", mergeSystem, mergePrompt(f.SourceContext(), behavior, intent))
	if res.Answered() {
		f.setOnce(&f.summary, res.Text())
	}
}

// MergeAll merges every function's summaries.
func (s *Summarizer) MergeAll(ctx context.Context, p *Project) error {
	return forEach(ctx, s.workers, p.Functions(), s.Merge)
}

// =============================================================================
// Classes
// =============================================================================

// SummarizeClasses writes each class's summary and usage guide. The two
// requests per class run independently.
func (s *Summarizer) SummarizeClasses(ctx context.Context, p *Project) error {
	type task struct {
		class    *Class
		howToUse bool
	}
	var tasks []task
	for _, c := range p.Classes() {
		tasks = append(tasks, task{class: c}, task{class: c, howToUse: true})
	}
	return forEach(ctx, s.workers, tasks, func(ctx context.Context, t task) {
		code := t.class.CodeWithSummary()
		if t.howToUse {
			if res := s.ask(ctx, "class_usage", howToUseSystem, howToUsePrompt(code)); res.Answered() {
				t.class.set(&t.class.howToUse, res.Text())
			}
			return
		}
		if res := s.ask(ctx, "class_summary", classSummarySystem, classSummaryPrompt(code)); res.Answered() {
			t.class.set(&t.class.summary, res.Text())
		}
	})
}

// EmbedClasses embeds every class summary. Classes without a summary keep a
// nil vector. It is a no-op without an embedder.
func (s *Summarizer) EmbedClasses(ctx context.Context, p *Project) error {
	if s.embedder == nil {
		return nil
	}
	var classes []*Class
	var texts []string
	for _, c := range p.Classes() {
		if sum, ok := c.Summary(); ok && sum != "" {
			classes = append(classes, c)
			texts = append(texts, sum)
		}
	}
	if len(texts) == 0 {
		return nil
	}
	start := time.Now()
	vecs, failed, err := embedding.EmbedAll(ctx, s.embedder, texts, int64(s.workers))
	if err != nil {
		return err
	}
	for i, c := range classes {
		if vecs[i] != nil {
			c.setVector(vecs[i])
		}
	}
	s.logger.Info("class summaries embedded",
		"classes", len(classes),
		"failed", failed,
		"duration", time.Since(start))
	return nil
}
