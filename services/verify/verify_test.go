// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package verify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/testsynth/services/oracle"
	"github.com/AleutianAI/testsynth/services/pytools"
	"github.com/AleutianAI/testsynth/services/stats"
)

// fakeTools lints and tests by markers in the file content:
// SYNTAXERR fails lint, "# bad" fails the test run, "# hang" times out.
type fakeTools struct {
	mu          sync.Mutex
	lintErr     error
	lintCalls   int
	testAsserts []int
}

func (f *fakeTools) Pylint(_ context.Context, path string) (*pytools.Outcome, error) {
	f.mu.Lock()
	f.lintCalls++
	f.mu.Unlock()
	if f.lintErr != nil {
		return nil, f.lintErr
	}
	raw, _ := os.ReadFile(path)
	if strings.Contains(string(raw), "SYNTAXERR") {
		return &pytools.Outcome{Output: path + ":1:0: E0001: syntax-error"}, nil
	}
	return &pytools.Outcome{Passed: true}, nil
}

func (f *fakeTools) Pytest(_ context.Context, path string) (*pytools.Outcome, error) {
	raw, _ := os.ReadFile(path)
	code := string(raw)
	f.mu.Lock()
	f.testAsserts = append(f.testAsserts, strings.Count(code, "assert "))
	f.mu.Unlock()
	switch {
	case strings.Contains(code, "# hang"):
		return &pytools.Outcome{
			Output:     pytools.TimeoutMessage,
			ErrorTypes: []string{pytools.TimeoutErrorType},
			TimedOut:   true,
		}, nil
	case strings.Contains(code, "# bad"):
		return &pytools.Outcome{
			Output:     "FAILED test_f - AssertionError",
			ErrorTypes: []string{"AssertionError", "AssertionError"},
		}, nil
	}
	return &pytools.Outcome{Passed: true, Output: "1 passed"}, nil
}

// scriptedAsker answers each system prompt from a queue; an empty queue
// declines.
type scriptedAsker struct {
	mu      sync.Mutex
	answers map[string][]string
	prompts map[string][]string
}

func newScriptedAsker() *scriptedAsker {
	return &scriptedAsker{answers: map[string][]string{}, prompts: map[string][]string{}}
}

func (a *scriptedAsker) queue(system string, answers ...string) {
	a.answers[system] = append(a.answers[system], answers...)
}

func (a *scriptedAsker) Ask(_ context.Context, system, user string) oracle.Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.prompts[system] = append(a.prompts[system], user)
	q := a.answers[system]
	if len(q) == 0 {
		return oracle.NoAnswer("no scripted answer")
	}
	a.answers[system] = q[1:]
	return oracle.Answer(q[0])
}

type fakeFinder struct {
	failures []string
	answer   string
}

func (f *fakeFinder) RepairContext(_ context.Context, failure string) string {
	f.failures = append(f.failures, failure)
	return f.answer
}

const passing = `from m import f


def test_f():
    assert f(0) == 0
`

const failing = `from m import f


def test_f():
    assert f(0) == 1  # bad
`

func newCase(t *testing.T, code string) *Case {
	t.Helper()
	c, err := NewCase(filepath.Join(t.TempDir(), "m_t", "test_f0.py"), code)
	require.NoError(t, err)
	return c
}

func subject(finder ContextFinder) Subject {
	return Subject{Name: "m.f", Source: "def f(x):\n    return x", Finder: finder}
}

func TestCheck_AcceptedUnchanged(t *testing.T) {
	tools := &fakeTools{}
	asker := newScriptedAsker()
	acc := stats.NewAccumulator()
	c := newCase(t, passing)

	v, err := NewPipeline(tools, asker, acc).Check(context.Background(), c, subject(nil))
	require.NoError(t, err)
	assert.Equal(t, Accepted, v)
	assert.Equal(t, passing, c.Code())
	assert.Empty(t, asker.prompts)

	total, first := acc.Totals()
	assert.Equal(t, 1, total.SyntaxPass)
	assert.Equal(t, 1, total.AssertionPass)
	assert.Equal(t, 0, total.SyntaxError+total.AssertionError)
	assert.Equal(t, total, first)
}

func TestCheck_SyntaxRepair(t *testing.T) {
	tools := &fakeTools{}
	asker := newScriptedAsker()
	asker.queue(syntaxRepairSystem, "Fixed:\n```python\n"+passing+"```\n")
	acc := stats.NewAccumulator()
	c := newCase(t, "SYNTAXERR\n"+passing)

	v, err := NewPipeline(tools, asker, acc).Check(context.Background(), c, subject(nil))
	require.NoError(t, err)
	assert.Equal(t, Repaired, v)
	assert.Equal(t, "\n"+passing, c.Code())
	require.Len(t, asker.prompts[syntaxRepairSystem], 1)
	assert.Contains(t, asker.prompts[syntaxRepairSystem][0], "E0001: syntax-error")

	total, _ := acc.Totals()
	assert.Equal(t, 0, total.SyntaxPass)
	assert.Equal(t, 1, total.SyntaxError)
	assert.Equal(t, 1, total.SyntaxFixSuccess)
	assert.Equal(t, 1, total.AssertionPass)
}

func TestCheck_SyntaxDiscarded(t *testing.T) {
	tools := &fakeTools{}
	asker := newScriptedAsker()
	asker.queue(syntaxRepairSystem, "```python\nSYNTAXERR still\n```")
	acc := stats.NewAccumulator()
	c := newCase(t, "SYNTAXERR\n")

	v, err := NewPipeline(tools, asker, acc).Check(context.Background(), c, subject(nil))
	require.NoError(t, err)
	assert.Equal(t, Discarded, v)
	assert.False(t, v.Kept())
	assert.Empty(t, tools.testAsserts)

	total, _ := acc.Totals()
	assert.Equal(t, 1, total.SyntaxError)
	assert.Equal(t, 0, total.SyntaxFixSuccess)
}

func TestCheck_LinterMissingCountsAsFailure(t *testing.T) {
	tools := &fakeTools{lintErr: pytools.NewToolError(pytools.ToolPylint, pytools.ErrToolNotFound)}
	acc := stats.NewAccumulator()
	c := newCase(t, passing)

	v, err := NewPipeline(tools, newScriptedAsker(), acc).Check(context.Background(), c, subject(nil))
	require.NoError(t, err)
	assert.Equal(t, Discarded, v)
	assert.Equal(t, 2, tools.lintCalls)
	assert.Contains(t, c.ErrorMessage(), "tool not found")
}

func TestCheck_FirstRepairFixesAssertion(t *testing.T) {
	tools := &fakeTools{}
	asker := newScriptedAsker()
	asker.queue(assertRepairSystem, "```python\n"+passing+"```")
	acc := stats.NewAccumulator()
	finder := &fakeFinder{}
	c := newCase(t, failing)

	v, err := NewPipeline(tools, asker, acc).Check(context.Background(), c, subject(finder))
	require.NoError(t, err)
	assert.Equal(t, Repaired, v)
	assert.Empty(t, finder.failures)

	prompt := asker.prompts[assertRepairSystem][0]
	assert.Contains(t, prompt, "# Function under test\ndef f(x):\n    return x")
	assert.Contains(t, prompt, "FAILED test_f - AssertionError")
	assert.NotContains(t, prompt, "found messages")

	total, _ := acc.Totals()
	assert.Equal(t, 1, total.SyntaxPass)
	assert.Equal(t, 1, total.AssertionError)
	assert.Equal(t, 1, total.AssertionFixSuccess)
	assert.Equal(t, map[string]int{"AssertionError": 1}, total.AssertionErrorTypes)
}

func TestCheck_SecondRepairUsesRetrievalContext(t *testing.T) {
	tools := &fakeTools{}
	asker := newScriptedAsker()
	asker.queue(assertRepairSystem, "```python\n"+failing+"```", "```python\n"+passing+"```")
	acc := stats.NewAccumulator()
	finder := &fakeFinder{answer: "f returns its input"}
	c := newCase(t, failing)

	v, err := NewPipeline(tools, asker, acc).Check(context.Background(), c, subject(finder))
	require.NoError(t, err)
	assert.Equal(t, Repaired, v)

	require.Len(t, finder.failures, 1)
	assert.Contains(t, finder.failures[0], "The test case was run using pytest")
	prompts := asker.prompts[assertRepairSystem]
	require.Len(t, prompts, 2)
	assert.True(t, strings.HasSuffix(prompts[1], "\nfound messages:\nf returns its input"))

	total, _ := acc.Totals()
	assert.Equal(t, 1, total.AssertionError)
	assert.Equal(t, 1, total.AssertionFixSuccess)
}

const fiveAsserts = `from m import f


def test_f():
    assert f(0) == 0
    assert f(1) == 1
    assert f(2) == 2
    assert f(3) == 0  # bad
    assert f(4) == 0  # bad
`

func TestCheck_BisectionTruncates(t *testing.T) {
	tools := &fakeTools{}
	acc := stats.NewAccumulator()
	c := newCase(t, fiveAsserts)

	v, err := NewPipeline(tools, newScriptedAsker(), acc).Check(context.Background(), c, subject(nil))
	require.NoError(t, err)
	assert.Equal(t, Truncated, v)

	lines := strings.Split(fiveAsserts, "\n")
	assert.Equal(t, strings.Join(lines[:7], "\n"), c.Code())

	// Three runs before minimizing, then the probes.
	probes := tools.testAsserts[3:]
	assert.LessOrEqual(t, len(probes), 4)
	assert.Equal(t, []int{2, 3, 4}, probes)

	total, _ := acc.Totals()
	assert.Equal(t, 1, total.AssertionError)
	assert.Equal(t, 0, total.AssertionFixSuccess)
	assert.Equal(t, map[string]int{"AssertionError": 1}, total.AssertionErrorTypes)
}

func TestCheck_TimeoutProbing(t *testing.T) {
	var b strings.Builder
	b.WriteString("from m import f\n\n\ndef test_f():\n")
	for i := 0; i < 10; i++ {
		if i == 4 {
			b.WriteString("    assert f(4) == 4  # hang\n")
			continue
		}
		b.WriteString("    assert f(1) == 1\n")
	}
	code := b.String()

	tools := &fakeTools{}
	acc := stats.NewAccumulator()
	c := newCase(t, code)

	v, err := NewPipeline(tools, newScriptedAsker(), acc).Check(context.Background(), c, subject(nil))
	require.NoError(t, err)
	assert.Equal(t, Truncated, v)
	assert.Equal(t, []int{10, 10, 10, 0, 1, 3, 7}, tools.testAsserts)
	assert.Equal(t, 3, strings.Count(c.Code(), "assert "))

	total, _ := acc.Totals()
	assert.Equal(t, 1, total.AssertionErrorTypes[pytools.TimeoutErrorType])
}

func TestCheck_NoAssertionsDiscarded(t *testing.T) {
	tools := &fakeTools{}
	c := newCase(t, "def test_f():\n    raise ValueError()  # bad\n")

	v, err := NewPipeline(tools, newScriptedAsker(), stats.NewAccumulator()).Check(context.Background(), c, subject(nil))
	require.NoError(t, err)
	assert.Equal(t, Discarded, v)
	assert.Len(t, tools.testAsserts, 3)
}

func TestCheck_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := newCase(t, fiveAsserts)

	v, err := NewPipeline(&fakeTools{}, newScriptedAsker(), stats.NewAccumulator()).Check(ctx, c, subject(nil))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, Discarded, v)
}

func TestBisect(t *testing.T) {
	tests := []struct {
		name      string
		n         int
		lastPass  int
		want      int
		accepted  bool
		maxProbes int
	}{
		{"five asserts, three pass", 5, 3, 3, true, 4},
		{"all pass", 8, 7, 7, true, 4},
		{"only empty prefix passes", 6, 0, 0, false, 3},
		{"nothing passes", 4, -1, 0, false, 3},
		{"single assert", 1, 0, 0, false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probes := 0
			got, ok := Bisect(tt.n, func(i int) bool {
				probes++
				return i <= tt.lastPass
			})
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.accepted, ok)
			assert.LessOrEqual(t, probes, tt.maxProbes)
		})
	}
}

func TestProbeExponential(t *testing.T) {
	tests := []struct {
		name     string
		n        int
		lastPass int
		want     int
		accepted bool
		probed   []int
	}{
		{"timeout at index four of ten", 10, 4, 3, true, []int{0, 1, 3, 7}},
		{"first probe fails", 5, -1, -1, false, []int{0}},
		{"all pass", 4, 3, 3, true, []int{0, 1, 3}},
		{"empty", 0, 0, -1, false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var probed []int
			got, ok := ProbeExponential(tt.n, func(i int) bool {
				probed = append(probed, i)
				return i <= tt.lastPass
			})
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.accepted, ok)
			assert.Equal(t, tt.probed, probed)
		})
	}
}

func TestCase_Lifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "test_x0.py")
	c, err := NewCase(path, "x = 1\n")
	require.NoError(t, err)
	assert.Equal(t, "x = 1\n", c.Code())

	require.NoError(t, c.SetCode("x = 2\n"))
	assert.Equal(t, "x = 2\n", c.Code())

	require.NoError(t, c.Delete())
	assert.Equal(t, "", c.Code())
	require.NoError(t, c.Delete())
}

func TestVerdict(t *testing.T) {
	assert.Equal(t, "accepted", Accepted.String())
	assert.Equal(t, "truncated", Truncated.String())
	assert.True(t, Repaired.Kept())
	assert.False(t, Discarded.Kept())
}
