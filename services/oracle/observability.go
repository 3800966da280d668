// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package oracle

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sashabaranov/go-openai"
)

const tracerName = "testsynth.oracle"

var (
	// oracleCallDuration measures backend call latency, excluding admission wait.
	oracleCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "testsynth",
			Subsystem: "oracle",
			Name:      "call_duration_seconds",
			Help:      "Duration of oracle backend calls in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"outcome"},
	)

	// oracleAdmissionWait measures time spent blocked on the rate limiter.
	oracleAdmissionWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "testsynth",
			Subsystem: "oracle",
			Name:      "admission_wait_seconds",
			Help:      "Time requests spent waiting for rate limiter admission.",
			Buckets:   []float64{0, 0.01, 0.1, 0.5, 1, 5, 10, 20},
		},
	)

	// oracleCallsTotal counts requests by outcome ("answer" or "no_answer").
	oracleCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "testsynth",
			Subsystem: "oracle",
			Name:      "calls_total",
			Help:      "Total oracle requests by outcome.",
		},
		[]string{"outcome"},
	)

	// oracleDeclinesTotal counts NoAnswer results by reason class.
	oracleDeclinesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "testsynth",
			Subsystem: "oracle",
			Name:      "declines_total",
			Help:      "Total oracle NoAnswer results by error type.",
		},
		[]string{"error_type"},
	)
)

// classifyError maps an error to a label-safe type.
//
// Outputs:
//
//	string - One of "timeout", "cancelled", "auth", "rate_limit", "server",
//	"empty", "unknown". Empty for a nil error.
func classifyError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}
	if errors.Is(err, ErrNoChoices) {
		return "empty"
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(reqErr.HTTPStatusCode)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests"):
		return "rate_limit"
	case strings.Contains(msg, "unauthorized") || strings.Contains(msg, "api key"):
		return "auth"
	default:
		return "unknown"
	}
}

func classifyStatus(code int) string {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return "auth"
	case code == http.StatusTooManyRequests:
		return "rate_limit"
	case code >= 500:
		return "server"
	default:
		return "unknown"
	}
}

// recordMetrics records one completed backend call.
func recordMetrics(wait, duration time.Duration, err error) {
	outcome := "answer"
	if err != nil {
		outcome = "no_answer"
		oracleDeclinesTotal.WithLabelValues(classifyError(err)).Inc()
	}
	oracleAdmissionWait.Observe(wait.Seconds())
	oracleCallDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	oracleCallsTotal.WithLabelValues(outcome).Inc()
}
