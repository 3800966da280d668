// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package embedding

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/AleutianAI/testsynth/services/storage/badger"
)

const cacheKeyPrefix = "emb:"

// CachedEmbedder persists vectors in BadgerDB keyed by model and text.
//
// Description:
//
//	Lookups never fail the caller: a cache read or write error is logged
//	and the inner embedder is used. Vectors are stored unit-normalized.
//
// Thread Safety: Safe for concurrent use.
type CachedEmbedder struct {
	inner  Embedder
	db     *badger.DB
	model  string
	ttl    time.Duration
	logger *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachedEmbedder wraps inner. model scopes the cache keys so switching
// models never returns stale vectors. A zero ttl keeps entries forever.
func NewCachedEmbedder(inner Embedder, db *badger.DB, model string, ttl time.Duration, logger *slog.Logger) *CachedEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedEmbedder{inner: inner, db: db, model: model, ttl: ttl, logger: logger}
}

// Embed returns the cached vector for text or computes and stores it.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)
	if raw, err := c.db.Get(ctx, key); err == nil {
		var vec []float32
		if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&vec); err == nil {
			c.hits.Add(1)
			return vec, nil
		}
		c.logger.Warn("embedding cache: corrupt entry, recomputing")
	} else if !errors.Is(err, badger.ErrNotFound) {
		c.logger.Warn("embedding cache: read failed", slog.String("error", err.Error()))
	}

	c.misses.Add(1)
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	vec = Normalize(vec)

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(vec); err != nil {
		return vec, nil
	}
	if err := c.db.Put(ctx, key, buf.Bytes(), c.ttl); err != nil {
		c.logger.Warn("embedding cache: write failed", slog.String("error", err.Error()))
	}
	return vec, nil
}

// Stats returns cache hit and miss counts.
func (c *CachedEmbedder) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *CachedEmbedder) key(text string) []byte {
	sum := sha256.Sum256([]byte(c.model + "\x00" + text))
	return []byte(cacheKeyPrefix + hex.EncodeToString(sum[:]))
}

// EmbedAll embeds texts with at most limit requests in flight.
//
// Description:
//
//	Individual failures leave a nil vector at that index and are counted
//	in the returned failure total; only cancellation aborts the batch.
//
// Outputs:
//
//	[][]float32 - Vectors in input order (nil where embedding failed).
//	int - Number of failed texts.
//	error - Context error if ctx was cancelled.
func EmbedAll(ctx context.Context, e Embedder, texts []string, limit int64) ([][]float32, int, error) {
	if limit <= 0 {
		limit = 1
	}
	out := make([][]float32, len(texts))
	var failed atomic.Int64
	sem := semaphore.NewWeighted(limit)
	g, gctx := errgroup.WithContext(ctx)

	for i, text := range texts {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			vec, err := e.Embed(gctx, text)
			if err != nil {
				failed.Add(1)
				return nil
			}
			out[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, int(failed.Load()), err
	}
	if err := ctx.Err(); err != nil {
		return out, int(failed.Load()), fmt.Errorf("embed batch: %w", err)
	}
	return out, int(failed.Load()), nil
}
