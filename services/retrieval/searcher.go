// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/testsynth/services/embedding"
)

// Searcher embeds documents and queries and delegates to an Index.
//
// Thread Safety: Safe for concurrent use when the Index and Embedder are.
type Searcher struct {
	embedder embedding.Embedder
	index    Index
	logger   *slog.Logger
}

// NewSearcher creates a searcher over index.
func NewSearcher(embedder embedding.Embedder, index Index, logger *slog.Logger) *Searcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Searcher{embedder: embedder, index: index, logger: logger}
}

// IndexAll embeds texts[i] and stores it under ids[i], at most limit
// embeddings in flight.
//
// Outputs:
//
//	int - Number of documents indexed.
//	error - Cancellation, or the first index write failure.
func (s *Searcher) IndexAll(ctx context.Context, ids, texts []string, limit int64) (int, error) {
	if len(ids) != len(texts) {
		return 0, fmt.Errorf("ids and texts differ in length: %d != %d", len(ids), len(texts))
	}
	vecs, failed, err := embedding.EmbedAll(ctx, s.embedder, texts, limit)
	if err != nil {
		return 0, err
	}
	if failed > 0 {
		s.logger.Warn("Some documents could not be embedded", slog.Int("failed", failed))
	}
	n := 0
	for i, vec := range vecs {
		if vec == nil {
			continue
		}
		if err := s.index.Add(ctx, ids[i], vec); err != nil {
			return n, fmt.Errorf("index %s: %w", ids[i], err)
		}
		n++
	}
	return n, nil
}

// Search returns the ids of the k documents nearest to query.
func (s *Searcher) Search(ctx context.Context, query string, k int) ([]string, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return s.index.Query(ctx, vec, k)
}

// Reset clears the underlying index.
func (s *Searcher) Reset(ctx context.Context) error {
	return s.index.Reset(ctx)
}

// Embed exposes the searcher's embedder.
func (s *Searcher) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.embedder.Embed(ctx, text)
}

// Nearest ranks candidate vectors against query in a throwaway index and
// returns up to k candidate ids. Candidates without a vector are skipped.
func Nearest(ctx context.Context, query []float32, candidates map[string][]float32, order []string, k int) ([]string, error) {
	idx := NewMemoryIndex()
	for _, id := range order {
		vec := candidates[id]
		if len(vec) == 0 {
			continue
		}
		if err := idx.Add(ctx, id, vec); err != nil {
			return nil, err
		}
	}
	return idx.Query(ctx, query, k)
}
