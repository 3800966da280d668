// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package oracle is the single gateway to the text-generation service.
//
// Every summary, test, repair and retrieval query in a run goes through
// Gateway.Ask. The gateway admits requests through one token-bucket limiter
// (N requests per window), never drops a request, converts every backend
// failure into a NoAnswer result, and records each exchange in the oracle
// transcript.
package oracle

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/testsynth/pkg/logging"
)

// Asker is the contract the engine depends on.
type Asker interface {
	Ask(ctx context.Context, system, user string) Result
}

// Default admission budget: 300 requests per 20 seconds.
const (
	DefaultMaxRequests = 300
	DefaultWindow      = 20 * time.Second
)

// Gateway rate-limits and observes oracle traffic.
//
// Thread Safety: Safe for unbounded concurrent use. The limiter serializes
// admission only; admitted calls run concurrently.
type Gateway struct {
	client     ChatClient
	limiter    *rate.Limiter
	transcript *logging.Transcript
	logger     *slog.Logger
	model      string

	answered atomic.Int64
	declined atomic.Int64
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithRateLimit admits at most maxRequests per window, with a burst of
// maxRequests. Non-positive values keep the default.
func WithRateLimit(maxRequests int, window time.Duration) GatewayOption {
	return func(g *Gateway) {
		if maxRequests <= 0 || window <= 0 {
			return
		}
		perSecond := float64(maxRequests) / window.Seconds()
		g.limiter = rate.NewLimiter(rate.Limit(perSecond), maxRequests)
	}
}

// WithTranscript records every exchange.
func WithTranscript(t *logging.Transcript) GatewayOption {
	return func(g *Gateway) { g.transcript = t }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) GatewayOption {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithModelName labels transcript entries and spans.
func WithModelName(model string) GatewayOption {
	return func(g *Gateway) { g.model = model }
}

// NewGateway wraps a backend client.
func NewGateway(client ChatClient, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(float64(DefaultMaxRequests)/DefaultWindow.Seconds()), DefaultMaxRequests),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Ask sends one system+user exchange.
//
// Description:
//
//	Blocks until the limiter admits the request, then calls the backend.
//	Failures of any kind, including cancellation while waiting for
//	admission, yield NoAnswer. The exchange is logged to the transcript
//	whatever the outcome.
//
// Inputs:
//
//	ctx - Cancellation for admission and the backend call.
//	system - System prompt.
//	user - User prompt.
//
// Outputs:
//
//	Result - Answer or NoAnswer. Never panics, never returns an error.
func (g *Gateway) Ask(ctx context.Context, system, user string) Result {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "oracle.Ask",
		trace.WithAttributes(attribute.String("model", g.model)),
	)
	defer span.End()

	waitStart := time.Now()
	if err := g.limiter.Wait(ctx); err != nil {
		g.declined.Add(1)
		span.SetStatus(codes.Error, "admission")
		g.logger.Warn("oracle admission failed", "error", err)
		res := NoAnswer("admission: " + err.Error())
		g.record(ctx, system, user, res, 0)
		return res
	}
	wait := time.Since(waitStart)

	start := time.Now()
	text, err := g.client.Chat(ctx, system, user)
	duration := time.Since(start)
	recordMetrics(wait, duration, err)

	span.SetAttributes(
		attribute.Int64("wait_ms", wait.Milliseconds()),
		attribute.Int64("duration_ms", duration.Milliseconds()),
	)

	var res Result
	if err != nil {
		g.declined.Add(1)
		span.RecordError(err)
		span.SetStatus(codes.Error, classifyError(err))
		g.logger.Warn("oracle declined", "error", err, "error_type", classifyError(err))
		res = NoAnswer(err.Error())
	} else {
		g.answered.Add(1)
		res = Answer(text)
	}
	g.record(ctx, system, user, res, duration)
	return res
}

// Counts returns the number of answered and declined requests so far.
func (g *Gateway) Counts() (answered, declined int64) {
	return g.answered.Load(), g.declined.Load()
}

func (g *Gateway) record(ctx context.Context, system, user string, res Result, d time.Duration) {
	outcome := "answer"
	if !res.Answered() {
		outcome = "no_answer"
	}
	g.transcript.Record(ctx, logging.TranscriptEntry{
		System:   system,
		User:     user,
		Response: res.Text(),
		Outcome:  outcome,
		Reason:   res.Reason(),
		Model:    g.model,
		Duration: d,
	})
}
