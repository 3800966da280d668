// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/AleutianAI/testsynth/pkg/logging"
	"github.com/AleutianAI/testsynth/services/config"
	"github.com/AleutianAI/testsynth/services/coverage"
	"github.com/AleutianAI/testsynth/services/embedding"
	"github.com/AleutianAI/testsynth/services/engine"
	"github.com/AleutianAI/testsynth/services/oracle"
	"github.com/AleutianAI/testsynth/services/retrieval"
	"github.com/AleutianAI/testsynth/services/stats"
	badgerstore "github.com/AleutianAI/testsynth/services/storage/badger"
)

// applyFlags overlays the run command flags on cfg.
func applyFlags(cfg *config.Config, f runFlags) error {
	if f.projectPath != "" {
		root, err := filepath.Abs(f.projectPath)
		if err != nil {
			return fmt.Errorf("resolve project path: %w", err)
		}
		cfg.Project.Root = root
	}
	if f.sourcePath != "" {
		src := f.sourcePath
		if filepath.IsAbs(src) {
			rel, err := filepath.Rel(cfg.Project.Root, src)
			if err != nil {
				return fmt.Errorf("source path %s is not under %s: %w", src, cfg.Project.Root, err)
			}
			src = rel
		}
		cfg.Project.SourceDir = filepath.Clean(src)
	}
	if f.rounds > 0 {
		cfg.Project.Rounds = f.rounds
	}
	if f.workers > 0 {
		cfg.Project.Workers = f.workers
	}
	if f.runBenchmark {
		cfg.Project.RunBenchmark = true
	}
	if f.includeTypes {
		cfg.Project.IncludeTypes = true
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
	if f.statusAddr != "" {
		cfg.Status.Enabled = true
		cfg.Status.Addr = f.statusAddr
	}
	return nil
}

// engineConfig maps the loaded configuration onto an engine session.
func engineConfig(cfg config.Config, benchmark []string) engine.Config {
	return engine.Config{
		Root:             cfg.Project.Root,
		SourceDir:        cfg.Project.SourceDir,
		TestDir:          cfg.Project.TestDir,
		Rounds:           cfg.Project.Rounds,
		Workers:          cfg.Project.Workers,
		ReadmeChars:      cfg.Project.ReadmeChars,
		BenchmarkModules: benchmark,
		IncludeTypes:     cfg.Project.IncludeTypes,
		ResultsDir:       cfg.Project.ResultsDir,
		TopK:             cfg.Retrieval.TopK,
		ContextChars:     cfg.Retrieval.ContextChars,
	}
}

// benchmarkModules returns the modules snapshotted each round, or nil when
// snapshots are off. An unreadable benchmark list or a project missing from
// it disables snapshots with a warning.
func benchmarkModules(cfg config.Config, logger *slog.Logger) []string {
	if !cfg.Project.RunBenchmark {
		return nil
	}
	b, err := coverage.LoadBenchmark(cfg.Project.BenchmarkFile)
	if err != nil {
		logger.Warn("benchmark list unavailable, coverage snapshots disabled",
			"file", cfg.Project.BenchmarkFile, "error", err)
		return nil
	}
	project := filepath.Base(cfg.Project.Root)
	mods, err := b.Modules(project)
	if err != nil {
		logger.Warn("project not in benchmark list, coverage snapshots disabled",
			"project", project, "error", err)
		return nil
	}
	if mods == nil {
		mods = []string{}
	}
	return mods
}

// newOracle builds the rate-limited gateway over the OpenAI backend. The
// returned closer releases the transcript.
func newOracle(cfg config.Config, logger *slog.Logger) (*oracle.Gateway, io.Closer, error) {
	client, err := oracle.NewOpenAIClient(oracle.OpenAIConfig{
		APIKey:      cfg.Oracle.APIKey,
		SecretPath:  cfg.Oracle.SecretPath,
		BaseURL:     cfg.Oracle.BaseURL,
		Model:       cfg.Oracle.Model,
		Temperature: cfg.Oracle.Temperature,
	})
	if err != nil {
		return nil, nil, err
	}

	opts := []oracle.GatewayOption{
		oracle.WithRateLimit(cfg.Oracle.MaxRequests, cfg.Oracle.Window),
		oracle.WithLogger(logger),
		oracle.WithModelName(client.Model()),
	}
	var closer io.Closer = nopCloser{}
	if cfg.Oracle.Transcript && cfg.Logging.Dir != "" {
		t, err := logging.OpenTranscript(logging.ExpandPath(cfg.Logging.Dir))
		if err != nil {
			logger.Warn("oracle transcript disabled", "error", err)
		} else {
			opts = append(opts, oracle.WithTranscript(t))
			closer = t
		}
	}
	return oracle.NewGateway(client, opts...), closer, nil
}

// retrievalStack is the embedder and index pair. Both are nil when
// retrieval is off.
type retrievalStack struct {
	embedder embedding.Embedder
	index    retrieval.Index
	cache    *badgerstore.DB
}

func (r *retrievalStack) Close() error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Close()
}

// newRetrieval builds the embedder and vector index. Failures degrade to
// a run without retrieval context, or to the in-memory index.
func newRetrieval(ctx context.Context, cfg config.Config, logger *slog.Logger) *retrievalStack {
	r := &retrievalStack{}
	if !cfg.Embedding.Enabled {
		logger.Info("embedding disabled, generating without retrieval context")
		return r
	}

	ollama := embedding.NewOllamaClient(cfg.Embedding.URL, cfg.Embedding.Model, logger)
	r.embedder = ollama
	if cfg.Embedding.CacheDir != "" {
		storeCfg := badgerstore.DefaultConfig(logging.ExpandPath(cfg.Embedding.CacheDir))
		storeCfg.Logger = logger
		db, err := badgerstore.Open(storeCfg)
		if err != nil {
			logger.Warn("embedding cache unavailable", "error", err)
		} else {
			r.cache = db
			r.embedder = embedding.NewCachedEmbedder(ollama, db, ollama.Model(), cfg.Embedding.CacheTTL, logger)
		}
	}

	switch cfg.Retrieval.Backend {
	case "weaviate":
		idx, err := retrieval.NewWeaviateIndex(ctx, retrieval.WeaviateConfig{
			Host:   cfg.Retrieval.WeaviateHost,
			Scheme: cfg.Retrieval.WeaviateScheme,
			Logger: logger,
		})
		if err == nil {
			r.index = idx
			return r
		}
		logger.Warn("weaviate unavailable, using in-memory index", "host", cfg.Retrieval.WeaviateHost, "error", err)
	}
	r.index = retrieval.NewMemoryIndex()
	return r
}

// newSinks builds the configured run summary publishers.
func newSinks(ctx context.Context, cfg config.Config, logger *slog.Logger) []stats.Publisher {
	var sinks []stats.Publisher
	if gcs := cfg.Sinks.GCS; gcs.Bucket != "" {
		sink, err := stats.NewGCSSink(ctx, gcs.Bucket, gcs.Prefix, gcs.CredentialsFile)
		if err != nil {
			logger.Warn("gcs sink disabled", "bucket", gcs.Bucket, "error", err)
		} else {
			sinks = append(sinks, sink)
		}
	}
	if in := cfg.Sinks.Influx; in.URL != "" {
		sinks = append(sinks, stats.NewInfluxSink(in.URL, in.Token, in.Org, in.Bucket))
	}
	return sinks
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// closeAll closes every closer and joins the errors.
func closeAll(closers ...io.Closer) error {
	var errs []error
	for _, c := range closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
