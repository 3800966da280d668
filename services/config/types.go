// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the testsynth configuration.
//
// Values come from Default(), then the optional YAML file, then the
// environment. Command-line flags are applied by the caller last. The
// result is checked with validator struct tags.
package config

import (
	"time"
)

// DefaultFile is the configuration file looked up in the working directory.
const DefaultFile = "testsynth.yaml"

// Config is the complete testsynth configuration.
type Config struct {
	Project   ProjectConfig   `yaml:"project"`
	Oracle    OracleConfig    `yaml:"oracle"`
	Python    PythonConfig    `yaml:"python"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Status    StatusConfig    `yaml:"status"`
	Sinks     SinksConfig     `yaml:"sinks"`
}

// ProjectConfig selects the project under test and the run shape.
type ProjectConfig struct {
	Root      string `yaml:"root"`
	SourceDir string `yaml:"source_dir"`
	TestDir   string `yaml:"test_dir" validate:"required,excludesall=/"`
	Rounds    int    `yaml:"rounds" validate:"min=1,max=100"`
	Workers   int    `yaml:"workers" validate:"min=1,max=256"`

	// IncludeTypes writes extracted parameter types to the run summary.
	IncludeTypes bool `yaml:"include_types"`

	// RunBenchmark records per-round coverage of the modules listed for the
	// project in BenchmarkFile.
	RunBenchmark  bool   `yaml:"run_benchmark"`
	BenchmarkFile string `yaml:"benchmark_file" validate:"required_if=RunBenchmark true"`

	ResultsDir  string `yaml:"results_dir" validate:"required"`
	ReadmeChars int    `yaml:"readme_chars" validate:"min=0"`
}

// OracleConfig configures the text-generation backend and its limiter.
type OracleConfig struct {
	BaseURL     string  `yaml:"base_url" validate:"omitempty,url"`
	Model       string  `yaml:"model" validate:"required"`
	APIKey      string  `yaml:"api_key"`
	SecretPath  string  `yaml:"secret_path"`
	Temperature float32 `yaml:"temperature" validate:"min=0,max=2"`

	// MaxRequests are admitted per Window.
	MaxRequests int           `yaml:"max_requests" validate:"min=1"`
	Window      time.Duration `yaml:"window" validate:"min=1ms"`

	// Transcript records every exchange under Logging.Dir.
	Transcript bool `yaml:"transcript"`
}

// PythonConfig locates the interpreter and bounds tool runs.
type PythonConfig struct {
	Interpreter     string        `yaml:"interpreter" validate:"required"`
	TestTimeout     time.Duration `yaml:"test_timeout" validate:"min=1s"`
	LintTimeout     time.Duration `yaml:"lint_timeout" validate:"min=1s"`
	CoverageTimeout time.Duration `yaml:"coverage_timeout" validate:"min=1s"`
}

// EmbeddingConfig configures the embedding service and its cache.
type EmbeddingConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url" validate:"required_if=Enabled true,omitempty,url"`
	Model   string `yaml:"model" validate:"required_if=Enabled true"`

	// CacheDir holds the persistent vector cache; empty disables it.
	CacheDir string        `yaml:"cache_dir"`
	CacheTTL time.Duration `yaml:"cache_ttl" validate:"min=0"`
}

// RetrievalConfig selects the vector index.
type RetrievalConfig struct {
	Backend        string `yaml:"backend" validate:"oneof=memory weaviate"`
	WeaviateHost   string `yaml:"weaviate_host" validate:"required_if=Backend weaviate"`
	WeaviateScheme string `yaml:"weaviate_scheme" validate:"oneof=http https"`
	TopK           int    `yaml:"top_k" validate:"min=1,max=50"`
	ContextChars   int    `yaml:"context_chars" validate:"min=0"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn warning error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

// TelemetryConfig selects trace and metric exporters.
type TelemetryConfig struct {
	Traces       string `yaml:"traces" validate:"oneof=otlp stdout none"`
	Metrics      string `yaml:"metrics" validate:"oneof=prometheus stdout none"`
	OTLPEndpoint string `yaml:"otlp_endpoint" validate:"required_if=Traces otlp"`
}

// StatusConfig enables the HTTP status server.
type StatusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr" validate:"required_if=Enabled true,omitempty,hostname_port"`
}

// SinksConfig configures optional run summary destinations.
type SinksConfig struct {
	GCS    GCSConfig    `yaml:"gcs"`
	Influx InfluxConfig `yaml:"influx"`
}

// GCSConfig uploads the run summary to a bucket when Bucket is set.
type GCSConfig struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	CredentialsFile string `yaml:"credentials_file"`
}

// InfluxConfig writes round points to InfluxDB when URL is set.
type InfluxConfig struct {
	URL    string `yaml:"url" validate:"omitempty,url"`
	Token  string `yaml:"token" validate:"required_with=URL"`
	Org    string `yaml:"org" validate:"required_with=URL"`
	Bucket string `yaml:"bucket" validate:"required_with=URL"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Project: ProjectConfig{
			TestDir:       "testsynth_tests",
			Rounds:        3,
			Workers:       16,
			RunBenchmark:  false,
			BenchmarkFile: "projects.json",
			ResultsDir:    "run_results",
			ReadmeChars:   12000,
		},
		Oracle: OracleConfig{
			Model:       "gpt-4o",
			Temperature: 0,
			MaxRequests: 300,
			Window:      20 * time.Second,
			Transcript:  true,
		},
		Python: PythonConfig{
			Interpreter:     "python3",
			TestTimeout:     10 * time.Second,
			LintTimeout:     60 * time.Second,
			CoverageTimeout: 30 * time.Minute,
		},
		Embedding: EmbeddingConfig{
			Enabled:  true,
			URL:      "http://localhost:11434/api/embed",
			Model:    "nomic-embed-text",
			CacheDir: "~/.testsynth/embeddings",
			CacheTTL: 7 * 24 * time.Hour,
		},
		Retrieval: RetrievalConfig{
			Backend:        "memory",
			WeaviateScheme: "http",
			TopK:           3,
			ContextChars:   24000,
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   "~/.testsynth/logs",
		},
		Telemetry: TelemetryConfig{
			Traces:  "none",
			Metrics: "prometheus",
		},
		Status: StatusConfig{
			Addr: "127.0.0.1:8089",
		},
	}
}
