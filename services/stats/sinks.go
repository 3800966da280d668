// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stats

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"time"

	"cloud.google.com/go/storage"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"google.golang.org/api/option"
)

// Publisher ships a finished run summary somewhere outside the process.
type Publisher interface {
	Publish(ctx context.Context, s *RunSummary) error
	Close() error
}

// =============================================================================
// GCS
// =============================================================================

// GCSSink uploads run summaries to a Cloud Storage bucket.
//
// Thread Safety: Safe for concurrent use.
type GCSSink struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSSink creates a sink for bucket. An empty credentialsFile uses
// Application Default Credentials.
func NewGCSSink(ctx context.Context, bucket, prefix, credentialsFile string) (*GCSSink, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs bucket must not be empty")
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		if _, err := os.Stat(credentialsFile); err != nil {
			return nil, fmt.Errorf("service account key not found at path %s: %w", credentialsFile, err)
		}
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create GCS storage client: %w", err)
	}
	return &GCSSink{client: client, bucket: bucket, prefix: prefix}, nil
}

// ObjectName returns the object path for a summary.
func (g *GCSSink) ObjectName(s *RunSummary) string {
	return path.Join(g.prefix, s.Project, s.RunID+".json")
}

// Publish implements Publisher.
func (g *GCSSink) Publish(ctx context.Context, s *RunSummary) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode run summary: %w", err)
	}
	name := g.ObjectName(s)
	w := g.client.Bucket(g.bucket).Object(name).NewWriter(ctx)
	w.ContentType = "application/json"
	w.CacheControl = "no-cache, no-store, must-revalidate"
	if _, err := io.Copy(w, bytes.NewReader(raw)); err != nil {
		_ = w.Close()
		return fmt.Errorf("upload gs://%s/%s: %w", g.bucket, name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close GCS writer for %s: %w", name, err)
	}
	return nil
}

// Close releases the storage client.
func (g *GCSSink) Close() error {
	return g.client.Close()
}

// =============================================================================
// INFLUXDB
// =============================================================================

// Measurement names written by InfluxSink.
const (
	MeasurementRound = "testsynth_rounds"
	MeasurementRun   = "testsynth_runs"
)

// InfluxSink writes per-round coverage and run counters as points.
//
// Thread Safety: Safe for concurrent use.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	now      func() time.Time
}

// NewInfluxSink creates a sink writing to org/bucket at url.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	client := influxdb2.NewClient(url, token)
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		now:      time.Now,
	}
}

// Publish implements Publisher.
func (s *InfluxSink) Publish(ctx context.Context, sum *RunSummary) error {
	ts := s.now()
	for _, r := range sum.Rounds {
		p := influxdb2.NewPointWithMeasurement(MeasurementRound).
			AddTag("project", sum.Project).
			AddTag("run_id", sum.RunID).
			AddTag("round", strconv.Itoa(r.Round)).
			AddField("generated", r.Generated).
			AddField("accepted", r.Accepted).
			AddField("covered_lines", r.CoveredLines).
			AddField("uncovered_lines", r.UncoveredLines).
			AddField("covered_branches", r.CoveredBranches).
			AddField("uncovered_branches", r.UncoveredBranches).
			SetTime(ts)
		if err := s.writeAPI.WritePoint(ctx, p); err != nil {
			return fmt.Errorf("write round %d: %w", r.Round, err)
		}
	}

	c := sum.Total
	p := influxdb2.NewPointWithMeasurement(MeasurementRun).
		AddTag("project", sum.Project).
		AddTag("run_id", sum.RunID).
		AddField("duration_seconds", sum.Time).
		AddField("syntax_pass", c.SyntaxPass).
		AddField("syntax_error", c.SyntaxError).
		AddField("syntax_fix_success", c.SyntaxFixSuccess).
		AddField("assertion_pass", c.AssertionPass).
		AddField("assertion_error", c.AssertionError).
		AddField("assertion_fix_success", c.AssertionFixSuccess).
		SetTime(ts)
	if err := s.writeAPI.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("write run point: %w", err)
	}
	return nil
}

// Close releases the client.
func (s *InfluxSink) Close() error {
	s.client.Close()
	return nil
}
