// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package embedding turns summaries and queries into vectors for the
// retrieval index.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Defaults for the Ollama embedding endpoint.
const (
	DefaultURL     = "http://localhost:11434/api/embed"
	DefaultModel   = "nomic-embed-text"
	DefaultTimeout = 30 * time.Second
)

// ErrEmptyText is returned for blank input.
var ErrEmptyText = errors.New("text is empty")

// ErrNoVector is returned when the service answers without a vector.
var ErrNoVector = errors.New("embedding service returned no vectors")

// Embedder converts text to a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type ollamaEmbedReq struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResp struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// OllamaClient calls an Ollama-compatible /api/embed endpoint.
//
// Thread Safety: Safe for concurrent use.
type OllamaClient struct {
	url    string
	model  string
	client *http.Client
	logger *slog.Logger
}

// NewOllamaClient creates a client for url (the full /api/embed endpoint)
// and model. Empty values fall back to DefaultURL and DefaultModel.
func NewOllamaClient(url, model string, logger *slog.Logger) *OllamaClient {
	if url == "" {
		url = DefaultURL
	}
	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OllamaClient{
		url:    url,
		model:  model,
		client: &http.Client{Timeout: DefaultTimeout},
		logger: logger,
	}
}

// Model returns the embedding model name.
func (c *OllamaClient) Model() string {
	return c.model
}

// Embed returns the vector for text. Newlines are flattened to spaces
// before embedding.
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.BatchEmbed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// BatchEmbed embeds texts in one request, preserving order.
func (c *OllamaClient) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyText
	}
	input := make([]string, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("%w: input %d", ErrEmptyText, i)
		}
		input[i] = strings.ReplaceAll(t, "\n", " ")
	}

	body, err := json.Marshal(ollamaEmbedReq{Model: c.model, Input: input})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("embedding service returned status %d: %s", resp.StatusCode, string(msg))
	}

	var out ollamaEmbedResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d for %d inputs", ErrNoVector, len(out.Embeddings), len(texts))
	}
	for i, v := range out.Embeddings {
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: input %d", ErrNoVector, i)
		}
	}
	return out.Embeddings, nil
}
