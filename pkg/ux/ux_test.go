// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/testsynth/services/stats"
)

// withPersonality sets level for the duration of the test.
func withPersonality(t *testing.T, level PersonalityLevel) {
	t.Helper()
	prev := GetPersonality()
	SetPersonality(level)
	t.Cleanup(func() { SetPersonality(prev) })
}

func TestParsePersonalityLevel(t *testing.T) {
	tests := []struct {
		in   string
		want PersonalityLevel
	}{
		{"full", PersonalityFull},
		{"MIN", PersonalityMinimal},
		{" machine ", PersonalityMachine},
		{"plain", PersonalityMachine},
		{"", PersonalityFull},
		{"nautical", PersonalityFull},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParsePersonalityLevel(tt.in))
		})
	}
}

func TestInitPersonality_Env(t *testing.T) {
	withPersonality(t, PersonalityFull)
	InitPersonality(func(k string) string {
		if k == "TESTSYNTH_PERSONALITY" {
			return "minimal"
		}
		return ""
	})
	assert.Equal(t, PersonalityMinimal, GetPersonality())
}

func TestIsTerminal_NotAFile(t *testing.T) {
	assert.False(t, IsTerminal(&bytes.Buffer{}))
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0.0, Percent(0, 0))
	assert.Equal(t, 50.0, Percent(2, 2))
	assert.InDelta(t, 62.5, Percent(5, 3), 1e-9)
}

func sampleSummary() *stats.RunSummary {
	return &stats.RunSummary{
		RunID:      "run-1",
		Project:    "calcproj",
		Time:       12.5,
		Times:      map[string]float64{"build_graph": 0.5, "run_1": 12},
		PhaseOrder: []string{"build_graph", "run_1"},
		Total: stats.Counters{
			SyntaxPass:          3,
			SyntaxError:         1,
			AssertionPass:       2,
			AssertionError:      2,
			AssertionErrorTypes: map[string]int{"AssertionError": 2, "TypeError": 1},
		},
		Rounds: []stats.RoundTotals{{Round: 1, Generated: 2, Accepted: 2, CoveredLines: 5, UncoveredLines: 3}},
	}
}

func TestRunSummary_Machine(t *testing.T) {
	withPersonality(t, PersonalityMachine)
	var buf bytes.Buffer
	RunSummary(&buf, sampleSummary(), "/tmp/run-1.json")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "SUMMARY: run=run-1 project=calcproj time=12.5s rounds=1", lines[0])
	assert.Equal(t, "ROUND: 1 generated=2 accepted=2 covered_lines=5 uncovered_lines=3 covered_branches=0 uncovered_branches=0", lines[1])
	assert.Contains(t, lines[2], "syntax_pass=3 syntax_error=1")
	assert.Equal(t, "RESULTS: /tmp/run-1.json", lines[3])
}

func TestRunSummary_Full(t *testing.T) {
	withPersonality(t, PersonalityFull)
	var buf bytes.Buffer
	RunSummary(&buf, sampleSummary(), "/tmp/run-1.json")

	out := buf.String()
	for _, want := range []string{"run-1", "calcproj", "generated", "62.5", "AssertionError", "build_graph 0.5s", "/tmp/run-1.json"} {
		assert.Contains(t, out, want)
	}
	assert.Less(t, strings.Index(out, "AssertionError"), strings.Index(out, "TypeError"))
}

// lockedBuffer guards a bytes.Buffer for concurrent Progress calls.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func TestProgress_Plain(t *testing.T) {
	withPersonality(t, PersonalityFull)
	out := &lockedBuffer{}
	p := NewProgress(out)
	assert.False(t, p.interactive)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	calls := 0
	p.now = func() time.Time {
		calls++
		return base.Add(time.Duration(calls-1) * 1500 * time.Millisecond)
	}

	p.PhaseStarted("run_1")
	for i := 1; i <= 20; i++ {
		p.Progress(i, 20)
	}
	p.Progress(0, 0)
	p.PhaseFinished("run_1")

	got := out.buf.String()
	assert.True(t, strings.HasPrefix(got, "PHASE: run_1 started\n"))
	assert.Equal(t, 10, strings.Count(got, "PROGRESS: run_1 "))
	assert.Contains(t, got, "PROGRESS: run_1 20/20\n")
	assert.NotContains(t, got, "PROGRESS: run_1 1/20\n")
	assert.True(t, strings.HasSuffix(got, "PHASE: run_1 finished in 1.5s\n"))
}

func TestProgress_SmallRound(t *testing.T) {
	out := &lockedBuffer{}
	p := NewProgress(out)
	p.PhaseStarted("run_2")
	p.Progress(1, 3)
	p.Progress(2, 3)
	p.Progress(3, 3)
	assert.Equal(t, 3, strings.Count(out.buf.String(), "PROGRESS: run_2 "))
}

func TestNotices(t *testing.T) {
	tests := []struct {
		name  string
		level PersonalityLevel
		write func(w *bytes.Buffer)
		want  string
	}{
		{"machine warning", PersonalityMachine, func(w *bytes.Buffer) { Warning(w, "pylint missing") }, "WARN: pylint missing\n"},
		{"machine error", PersonalityMachine, func(w *bytes.Buffer) { Error(w, "bad config") }, "ERROR: bad config\n"},
		{"machine title", PersonalityMachine, func(w *bytes.Buffer) { Title(w, "testsynth run") }, ""},
		{"machine info", PersonalityMachine, func(w *bytes.Buffer) { Info(w, "3 rounds") }, "3 rounds\n"},
		{"minimal info", PersonalityMinimal, func(w *bytes.Buffer) { Info(w, "3 rounds") }, "3 rounds\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withPersonality(t, tt.level)
			var buf bytes.Buffer
			tt.write(&buf)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestNotices_IconsOutsideMachineMode(t *testing.T) {
	withPersonality(t, PersonalityMinimal)
	var buf bytes.Buffer
	Error(&buf, "bad config")
	Warning(&buf, "pylint missing")
	assert.Contains(t, buf.String(), string(IconError))
	assert.Contains(t, buf.String(), string(IconWarning))
	assert.Contains(t, buf.String(), "bad config")
}
