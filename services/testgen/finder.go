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
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/AleutianAI/testsynth/services/coverage"
	"github.com/AleutianAI/testsynth/services/oracle"
)

// Retrieval defaults.
const (
	// DefaultTopK is the number of documents fetched per query.
	DefaultTopK = 3

	// DefaultContextChars bounds the retrieved text sent for distillation.
	DefaultContextChars = 24000

	contextChunkSize = 1500
)

var codeSeparators = []string{"\ndef ", "\nclass ", "\n\n", "\n", " ", ""}

// Searcher returns the ids of the documents nearest to a query.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]string, error)
}

// Documents renders a retrieval document by id.
type Documents interface {
	Document(id string) string
}

// FinderOption configures a Finder.
type FinderOption func(*Finder)

// WithTopK sets the number of documents fetched per query.
func WithTopK(k int) FinderOption {
	return func(f *Finder) {
		if k > 0 {
			f.k = k
		}
	}
}

// WithContextLimit sets the character budget of retrieved text.
func WithContextLimit(chars int) FinderOption {
	return func(f *Finder) {
		if chars > 0 {
			f.maxChars = chars
		}
	}
}

// WithFinderLogger sets the logger.
func WithFinderLogger(l *slog.Logger) FinderOption {
	return func(f *Finder) {
		if l != nil {
			f.logger = l
		}
	}
}

// Finder assembles retrieval context for generation and repair prompts.
//
// Description:
//
//	The oracle writes a search query, the Searcher returns the nearest
//	function documents, and the oracle distills them against the query.
//	Each step degrades to "" when the oracle declines or the search fails.
//
// Thread Safety: Safe for concurrent use when its collaborators are.
type Finder struct {
	asker    oracle.Asker
	searcher Searcher
	docs     Documents
	k        int
	maxChars int
	logger   *slog.Logger
}

// NewFinder creates a Finder.
func NewFinder(asker oracle.Asker, searcher Searcher, docs Documents, opts ...FinderOption) *Finder {
	f := &Finder{
		asker:    asker,
		searcher: searcher,
		docs:     docs,
		k:        DefaultTopK,
		maxChars: DefaultContextChars,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CoverageContext finds context for covering the missing lines of rec.
func (f *Finder) CoverageContext(ctx context.Context, rec *Record) string {
	cov := rec.Coverage()
	if cov == nil {
		return ""
	}
	fn := rec.Function
	annotated := coverage.Annotate(fn.Code, fn.StartLine, cov.MissingLines)
	return f.find(ctx, "coverage", querySystem, queryPrompt(annotated, cov.FormatMissing()))
}

// RepairContext finds context for repairing the failure transcript.
func (f *Finder) RepairContext(ctx context.Context, failure string) string {
	return f.find(ctx, "repair", repairQuerySystem, repairQueryPrompt(failure))
}

func (f *Finder) find(ctx context.Context, task, system, user string) string {
	if f.searcher == nil {
		return ""
	}
	res := f.asker.Ask(ctx, system, user)
	if !res.Answered() {
		f.logger.Warn("retrieval query declined", "task", task, "reason", res.Reason())
		return ""
	}
	query := res.Text()

	ids, err := f.searcher.Search(ctx, query, f.k)
	if err != nil {
		f.logger.Warn("retrieval search failed", "task", task, "error", err)
		return ""
	}
	var b strings.Builder
	for _, id := range ids {
		b.WriteString(f.docs.Document(id))
	}
	found := f.clip(b.String())
	if found == "" {
		return ""
	}

	res = f.asker.Ask(ctx, distillSystem, distillPrompt(query, found))
	if !res.Answered() {
		f.logger.Warn("retrieval distillation declined", "task", task, "reason", res.Reason())
		return ""
	}
	f.logger.Debug("retrieval context found", "task", task, "documents", len(ids), "chars", len(found))
	return res.Text()
}

// clip keeps whole chunks of text up to the character budget.
func (f *Finder) clip(text string) string {
	if len(text) <= f.maxChars {
		return text
	}
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(min(contextChunkSize, f.maxChars)),
		textsplitter.WithChunkOverlap(0),
		textsplitter.WithSeparators(codeSeparators),
	)
	chunks, err := splitter.SplitText(text)
	if err != nil || len(chunks) == 0 {
		return text[:f.maxChars]
	}
	var b strings.Builder
	for _, c := range chunks {
		if b.Len()+len(c)+1 > f.maxChars {
			break
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(c)
	}
	if b.Len() == 0 {
		return text[:f.maxChars]
	}
	return b.String()
}
