// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/AleutianAI/testsynth/services/coverage"
	"github.com/AleutianAI/testsynth/services/oracle"
	"github.com/AleutianAI/testsynth/services/pytools"
	"github.com/AleutianAI/testsynth/services/retrieval"
	"github.com/AleutianAI/testsynth/services/stats"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const calcSource = `def add(a, b):
    return a + b


def mul(a, b):
    if a == 0:
        return 0
    return a * b
`

// projectAsker answers by prompt content.
type projectAsker struct {
	mu          sync.Mutex
	generations int
	evolutions  int
	retrievals  int
}

func (a *projectAsker) Ask(_ context.Context, _, user string) oracle.Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case strings.Contains(user, "Determine the classification"):
		return oracle.Answer("<1> builtin")
	case strings.Contains(user, "Existing test cases:"):
		a.evolutions++
		return oracle.Answer("```python\nfrom pkg.calc import mul\n\n\ndef test_zero():\n    assert mul(0, 5) == 0\n```")
	case strings.Contains(user, "Generate a pytest test case file"):
		a.generations++
		name := "add"
		if strings.Contains(user, "def mul") {
			name = "mul"
		}
		return oracle.Answer("```python\nfrom pkg.calc import " + name + "\n\n\ndef test_it():\n    assert " + name + "(2, 3) > 0\n```")
	case strings.Contains(user, "Retrieved Information"):
		a.retrievals++
		return oracle.Answer("distilled context")
	}
	return oracle.Answer("a short summary")
}

// projectTools passes every check and serves scripted coverage reports,
// one per round.
type projectTools struct {
	mu      sync.Mutex
	reports []*coverage.Report
	calls   int
	covErr  error
}

func (t *projectTools) Pylint(context.Context, string) (*pytools.Outcome, error) {
	return &pytools.Outcome{Passed: true}, nil
}

func (t *projectTools) Pytest(context.Context, string) (*pytools.Outcome, error) {
	return &pytools.Outcome{Passed: true}, nil
}

func (t *projectTools) Coverage(_ context.Context, sourceDir, testDir string) (*coverage.Report, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	if t.covErr != nil {
		return nil, t.covErr
	}
	i := min(t.calls-1, len(t.reports)-1)
	return t.reports[i], nil
}

func calcReport(mulMissing []int) *coverage.Report {
	mulSummary := coverage.Summary{CoveredLines: 4 - len(mulMissing), MissingLines: len(mulMissing), NumStatements: 4}
	return &coverage.Report{Files: map[string]coverage.File{
		"pkg/calc.py": {
			Region: coverage.Region{Summary: coverage.Summary{
				CoveredLines:  6 - len(mulMissing),
				NumStatements: 6,
			}},
			Functions: map[string]coverage.Region{
				"add": {Summary: coverage.Summary{CoveredLines: 2, NumStatements: 2}},
				"mul": {MissingLines: mulMissing, Summary: mulSummary},
			},
		},
	}}
}

type lengthEmbedder struct{}

func (lengthEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)%7) + 1, float32(strings.Count(text, " ")%5) + 1}, nil
}

type recordingPublisher struct {
	err       error
	published []*stats.RunSummary
	closed    bool
}

func (p *recordingPublisher) Publish(_ context.Context, s *stats.RunSummary) error {
	p.published = append(p.published, s)
	return p.err
}

func (p *recordingPublisher) Close() error {
	p.closed = true
	return nil
}

type phaseObserver struct {
	mu       sync.Mutex
	started  []string
	finished []string
	progress int
}

func (o *phaseObserver) PhaseStarted(name string) {
	o.mu.Lock()
	o.started = append(o.started, name)
	o.mu.Unlock()
}

func (o *phaseObserver) Progress(int, int) {
	o.mu.Lock()
	o.progress++
	o.mu.Unlock()
}

func (o *phaseObserver) PhaseFinished(name string) {
	o.mu.Lock()
	o.finished = append(o.finished, name)
	o.mu.Unlock()
}

func writeCalcProject(t *testing.T) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "calcproj")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pkg"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("# Calc\n\nArithmetic helpers.\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pkg", "__init__.py"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pkg", "calc.py"), []byte(calcSource), 0o644))
	return root
}

func TestRun_ThreeRounds(t *testing.T) {
	root := writeCalcProject(t)
	results := t.TempDir()
	asker := &projectAsker{}
	tools := &projectTools{reports: []*coverage.Report{calcReport([]int{6}), calcReport(nil)}}
	pub := &recordingPublisher{err: errors.New("sink down")}
	obs := &phaseObserver{}

	e, err := New(Config{
		Root:             root,
		SourceDir:        "pkg",
		Workers:          4,
		BenchmarkModules: []string{"pkg.calc"},
		IncludeTypes:     true,
		ResultsDir:       results,
	}, asker, tools,
		WithRetrieval(lengthEmbedder{}, retrieval.NewMemoryIndex()),
		WithPublishers(pub),
		WithObserver(obs))
	require.NoError(t, err)

	res, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []stats.RoundTotals{
		{Round: 1, Generated: 2, Accepted: 2, CoveredLines: 5, UncoveredLines: 1},
		{Round: 2, Generated: 1, Accepted: 3, CoveredLines: 6},
		{Round: 3, Generated: 0, Accepted: 3, CoveredLines: 6},
	}, res.Summary.Rounds)
	assert.Equal(t, 2, asker.generations)
	assert.Equal(t, 1, asker.evolutions)
	assert.Equal(t, 3, tools.calls)

	assert.Equal(t, 3, res.Summary.Total.SyntaxPass)
	assert.Equal(t, 3, res.Summary.Total.AssertionPass)
	assert.Equal(t, 2, res.Summary.First.AssertionPass)
	assert.Len(t, res.Summary.Coverage, 3)
	assert.Equal(t, "calcproj", res.Summary.Project)
	assert.Equal(t, e.RunID(), res.Summary.RunID)
	assert.Equal(t, map[string]string{"a": "builtin", "b": "builtin"}, res.Summary.ParamTypes["pkg.calc.add"])

	caseDir := filepath.Join(root, "testsynth_tests", "pkg_calc_t")
	for _, name := range []string{"test_add0.py", "test_mul0.py", "test_mul1.py", "__init__.py"} {
		assert.FileExists(t, filepath.Join(caseDir, name))
	}
	assert.FileExists(t, filepath.Join(root, "testsynth_tests", "conftest.py"))
	evolved, err := os.ReadFile(filepath.Join(caseDir, "test_mul1.py"))
	require.NoError(t, err)
	assert.Equal(t, "\nfrom pkg.calc import mul\n\n\ndef test_zero():\n    assert mul(0, 5) == 0\n", string(evolved))

	raw, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "calcproj", decoded["project"])
	assert.Contains(t, decoded, "times")

	for _, phase := range []string{PhaseCollect, PhaseBuild, PhaseBehavior, PhaseIndex, "run_0", "run_2"} {
		assert.Contains(t, res.Summary.Times, phase)
	}
	assert.Equal(t, obs.started, obs.finished)
	assert.Equal(t, 6, obs.progress)

	require.Len(t, pub.published, 1)
	assert.True(t, pub.closed)

	st := e.Status()
	assert.Equal(t, "done", st.Phase)
	assert.Equal(t, 3, st.Round)
	assert.Equal(t, 2, st.Functions)
	assert.Equal(t, 3, st.Accepted)
	assert.Equal(t, 3, st.Generated)
	assert.Equal(t, 3, st.Counters.AssertionPass)
}

func TestRun_CoverageFailureKeepsGoing(t *testing.T) {
	root := writeCalcProject(t)
	tools := &projectTools{covErr: pytools.NewToolError(pytools.ToolCoverage, pytools.ErrToolNotFound)}

	e, err := New(Config{Root: root, SourceDir: "pkg", Rounds: 2, ResultsDir: t.TempDir()}, &projectAsker{}, tools)
	require.NoError(t, err)
	res, err := e.Run(context.Background())
	require.NoError(t, err)

	// Without coverage every function stays open and counts its whole span.
	require.Len(t, res.Summary.Rounds, 2)
	assert.Equal(t, stats.RoundTotals{Round: 2, Generated: 2, Accepted: 4, UncoveredLines: 6}, res.Summary.Rounds[1])
	assert.Empty(t, res.Summary.Coverage)
	assert.Nil(t, res.Summary.ParamTypes)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e, err := New(Config{Root: writeCalcProject(t), SourceDir: "pkg", ResultsDir: t.TempDir()}, &projectAsker{}, &projectTools{})
	require.NoError(t, err)

	_, err = e.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "failed", e.Status().Phase)
}

func TestRun_MissingSourceIsFatal(t *testing.T) {
	e, err := New(Config{Root: t.TempDir(), SourceDir: "missing", ResultsDir: t.TempDir()}, &projectAsker{}, &projectTools{})
	require.NoError(t, err)
	_, err = e.Run(context.Background())
	assert.Error(t, err)
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no root", Config{SourceDir: "pkg"}},
		{"no source", Config{Root: "/p"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, &projectAsker{}, &projectTools{})
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
	_, err := New(Config{Root: "/p", SourceDir: "pkg"}, nil, &projectTools{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfig_Defaults(t *testing.T) {
	c := Config{Root: "/work/proj/", SourceDir: "src"}.withDefaults()
	assert.Equal(t, "proj", c.ProjectName)
	assert.Equal(t, DefaultRounds, c.Rounds)
	assert.Equal(t, DefaultWorkers, c.Workers)
	assert.Equal(t, "testsynth_tests", c.TestDir)
	assert.Equal(t, DefaultResultsDir, c.ResultsDir)
}

func TestWithObserver_FansOut(t *testing.T) {
	a, b := &phaseObserver{}, &phaseObserver{}
	e, err := New(Config{Root: "r", SourceDir: "s"}, &projectAsker{}, &projectTools{},
		WithObserver(a), WithObserver(nil), WithObserver(b))
	require.NoError(t, err)

	e.observer.PhaseStarted("x")
	e.observer.Progress(1, 2)
	e.observer.PhaseFinished("x")

	for _, o := range []*phaseObserver{a, b} {
		assert.Equal(t, []string{"x"}, o.started)
		assert.Equal(t, []string{"x"}, o.finished)
		assert.Equal(t, 1, o.progress)
	}
}
