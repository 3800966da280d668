// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package retrieval finds the indexed documents nearest to a query
// vector. It backs the retrieval-augmented context of test generation.
package retrieval

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/AleutianAI/testsynth/services/embedding"
)

// ErrEmptyVector is returned when an empty vector is added or queried.
var ErrEmptyVector = errors.New("vector is empty")

// Index stores vectors by document id and answers nearest-neighbour
// queries.
type Index interface {
	// Add stores vec under id, replacing any earlier vector.
	Add(ctx context.Context, id string, vec []float32) error

	// Query returns up to k ids ordered by decreasing similarity.
	Query(ctx context.Context, vec []float32, k int) ([]string, error)

	// Reset drops every stored vector.
	Reset(ctx context.Context) error
}

// MemoryIndex is an exhaustive cosine-similarity index.
//
// Thread Safety: Safe for concurrent use.
type MemoryIndex struct {
	mu   sync.RWMutex
	ids  []string
	vecs [][]float32
	byID map[string]int
}

// NewMemoryIndex creates an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{byID: make(map[string]int)}
}

// Add implements Index.
func (m *MemoryIndex) Add(_ context.Context, id string, vec []float32) error {
	if len(vec) == 0 {
		return ErrEmptyVector
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if i, ok := m.byID[id]; ok {
		m.vecs[i] = vec
		return nil
	}
	m.byID[id] = len(m.ids)
	m.ids = append(m.ids, id)
	m.vecs = append(m.vecs, vec)
	return nil
}

// Query implements Index. Ties keep insertion order.
func (m *MemoryIndex) Query(ctx context.Context, vec []float32, k int) ([]string, error) {
	if len(vec) == 0 {
		return nil, ErrEmptyVector
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	type scored struct {
		idx   int
		score float64
	}
	hits := make([]scored, len(m.ids))
	for i, v := range m.vecs {
		hits[i] = scored{idx: i, score: embedding.Cosine(vec, v)}
	}
	ids := m.ids
	m.mu.RUnlock()

	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].score > hits[b].score
	})
	if k > len(hits) {
		k = len(hits)
	}
	out := make([]string, 0, k)
	for _, h := range hits[:k] {
		out = append(out, ids[h.idx])
	}
	return out, nil
}

// Reset implements Index.
func (m *MemoryIndex) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = nil
	m.vecs = nil
	m.byID = make(map[string]int)
	return nil
}

// Len returns the number of stored vectors.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids)
}
