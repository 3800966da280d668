// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package status

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/testsynth/services/engine"
	"github.com/AleutianAI/testsynth/services/stats"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixedSource struct {
	st engine.Status
}

func (f fixedSource) Status() engine.Status {
	return f.st
}

func sampleStatus() engine.Status {
	return engine.Status{
		RunID:     "run-1",
		Project:   "calcproj",
		Phase:     "run_2",
		Round:     2,
		Rounds:    3,
		Functions: 6,
		Generated: 4,
		Accepted:  3,
		Coverage:  stats.RoundTotals{Round: 1, CoveredLines: 5, UncoveredLines: 3},
		Counters:  stats.Counters{SyntaxPass: 4},
	}
}

func TestServer_Health(t *testing.T) {
	s := NewServer(fixedSource{}, nil, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestServer_Status(t *testing.T) {
	s := NewServer(fixedSource{st: sampleStatus()}, nil, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")

	var got engine.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, sampleStatus().RunID, got.RunID)
	assert.Equal(t, "run_2", got.Phase)
	assert.Equal(t, 5, got.Coverage.CoveredLines)
	assert.Equal(t, 4, got.Counters.SyntaxPass)
}

func TestServer_Metrics(t *testing.T) {
	tests := []struct {
		name     string
		metrics  http.Handler
		wantCode int
	}{
		{"registered", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "testsynth_cases 1\n")
		}), http.StatusOK},
		{"absent", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(fixedSource{}, tt.metrics, nil)
			w := httptest.NewRecorder()
			s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
			assert.Equal(t, tt.wantCode, w.Code)
		})
	}
}

func TestServer_StartShutdown(t *testing.T) {
	s := NewServer(fixedSource{st: sampleStatus()}, nil, nil)
	assert.Nil(t, s.Addr())
	assert.NoError(t, s.Shutdown(context.Background()))

	require.NoError(t, s.Start("127.0.0.1:0"))
	require.NotNil(t, s.Addr())

	resp, err := http.Get("http://" + s.Addr().String() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, s.Shutdown(context.Background()))
}

func TestServer_StartBadAddr(t *testing.T) {
	s := NewServer(fixedSource{}, nil, nil)
	assert.Error(t, s.Start("not-an-address"))
}
