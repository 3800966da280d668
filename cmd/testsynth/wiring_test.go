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
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/testsynth/services/config"
	"github.com/AleutianAI/testsynth/services/embedding"
	"github.com/AleutianAI/testsynth/services/retrieval"
)

func TestApplyFlags(t *testing.T) {
	root := t.TempDir()
	cfg := config.Default()
	cfg.Project.IncludeTypes = true

	err := applyFlags(&cfg, runFlags{
		projectPath:  root,
		sourcePath:   filepath.Join(root, "pkg", "sub"),
		rounds:       5,
		runBenchmark: true,
		logLevel:     "debug",
		statusAddr:   "127.0.0.1:9000",
	})
	require.NoError(t, err)

	assert.Equal(t, root, cfg.Project.Root)
	assert.Equal(t, filepath.Join("pkg", "sub"), cfg.Project.SourceDir)
	assert.Equal(t, 5, cfg.Project.Rounds)
	assert.Equal(t, 16, cfg.Project.Workers)
	assert.True(t, cfg.Project.RunBenchmark)
	assert.True(t, cfg.Project.IncludeTypes, "an unset flag keeps the config value")
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Status.Enabled)
	assert.Equal(t, "127.0.0.1:9000", cfg.Status.Addr)
}

func TestApplyFlags_RelativeSource(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, applyFlags(&cfg, runFlags{projectPath: ".", sourcePath: "pkg/"}))
	assert.True(t, filepath.IsAbs(cfg.Project.Root))
	assert.Equal(t, "pkg", cfg.Project.SourceDir)
}

func TestEngineConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Project.Root = "/work/calcproj"
	cfg.Project.SourceDir = "pkg"
	cfg.Retrieval.TopK = 5

	ec := engineConfig(cfg, []string{"pkg.calc"})
	assert.Equal(t, "/work/calcproj", ec.Root)
	assert.Equal(t, "testsynth_tests", ec.TestDir)
	assert.Equal(t, 3, ec.Rounds)
	assert.Equal(t, 5, ec.TopK)
	assert.Equal(t, 24000, ec.ContextChars)
	assert.Equal(t, []string{"pkg.calc"}, ec.BenchmarkModules)
}

func TestBenchmarkModules(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "projects.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"calcproj": ["pkg.calc"], "empty": []}`), 0o644))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name    string
		root    string
		file    string
		enabled bool
		want    []string
	}{
		{"disabled", "/w/calcproj", file, false, nil},
		{"listed", "/w/calcproj", file, true, []string{"pkg.calc"}},
		{"listed empty", "/w/empty", file, true, []string{}},
		{"project not listed", "/w/other", file, true, nil},
		{"list file missing", "/w/calcproj", filepath.Join(dir, "absent.json"), true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Project.Root = tt.root
			cfg.Project.RunBenchmark = tt.enabled
			cfg.Project.BenchmarkFile = tt.file

			assert.Equal(t, tt.want, benchmarkModules(cfg, logger))
		})
	}
}

func TestBenchmarkModules_MissingFileWarns(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	cfg := config.Default()
	cfg.Project.Root = "/w/calcproj"
	cfg.Project.RunBenchmark = true
	cfg.Project.BenchmarkFile = filepath.Join(t.TempDir(), "projects.json")

	assert.Nil(t, benchmarkModules(cfg, logger))
	assert.Contains(t, buf.String(), "coverage snapshots disabled")

	ec := engineConfig(cfg, benchmarkModules(cfg, logger))
	assert.Nil(t, ec.BenchmarkModules)
}

func TestNewRetrieval(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	t.Run("disabled", func(t *testing.T) {
		cfg := config.Default()
		cfg.Embedding.Enabled = false
		r := newRetrieval(context.Background(), cfg, logger)
		assert.Nil(t, r.embedder)
		assert.Nil(t, r.index)
		assert.NoError(t, r.Close())
	})

	t.Run("memory with cache", func(t *testing.T) {
		cfg := config.Default()
		cfg.Embedding.CacheDir = t.TempDir()
		r := newRetrieval(context.Background(), cfg, logger)
		require.NotNil(t, r.embedder)
		assert.IsType(t, &retrieval.MemoryIndex{}, r.index)
		assert.NotNil(t, r.cache)
		assert.NoError(t, r.Close())
	})

	t.Run("cached embedder serves repeats from the store", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			_, _ = w.Write([]byte(`{"embeddings": [[0.6, 0.8]]}`))
		}))
		defer srv.Close()

		cfg := config.Default()
		cfg.Embedding.URL = srv.URL
		cfg.Embedding.CacheDir = t.TempDir()
		r := newRetrieval(context.Background(), cfg, logger)
		defer r.Close()
		require.IsType(t, &embedding.CachedEmbedder{}, r.embedder)

		first, err := r.embedder.Embed(context.Background(), "def add(a, b)")
		require.NoError(t, err)
		second, err := r.embedder.Embed(context.Background(), "def add(a, b)")
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestNewSinks_NoneConfigured(t *testing.T) {
	sinks := newSinks(context.Background(), config.Default(), slog.Default())
	assert.Empty(t, sinks)
}

func TestNewSinks_Influx(t *testing.T) {
	cfg := config.Default()
	cfg.Sinks.Influx = config.InfluxConfig{URL: "http://localhost:8086", Token: "t", Org: "o", Bucket: "b"}
	sinks := newSinks(context.Background(), cfg, slog.Default())
	require.Len(t, sinks, 1)
	assert.NoError(t, sinks[0].Close())
}

type failingCloser struct{ err error }

func (f failingCloser) Close() error { return f.err }

func TestCloseAll(t *testing.T) {
	boom := errors.New("boom")
	err := closeAll(nopCloser{}, nil, failingCloser{boom})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, closeAll(nopCloser{}))
}

func TestRunCommand_Flags(t *testing.T) {
	for _, name := range []string{"config", "project-path", "source-path", "num", "run-benchmark", "type", "workers", "log-level", "status-addr"} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), name)
	}
}
