// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package testgen drives per-function test generation across rounds.
//
// Each function owns a Record holding its accepted test cases, the number
// of generation attempts and its latest coverage. A round picks a Strategy
// from the Record state, asks the oracle for a test case, and hands it to
// the verify pipeline. Kept cases append to the Record; the others are
// deleted from disk.
package testgen

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/AleutianAI/testsynth/services/coverage"
	"github.com/AleutianAI/testsynth/services/graph"
	"github.com/AleutianAI/testsynth/services/verify"
)

// Strategy selects how the next test case is generated.
type Strategy int

const (
	// StrategyDone means the function is fully covered.
	StrategyDone Strategy = iota

	// StrategyNormal is the first attempt, and every attempt after coverage
	// is known while no test has been accepted.
	StrategyNormal

	// StrategyEasy asks for simpler tests after a failed first attempt.
	StrategyEasy

	// StrategyEvolve extends the first accepted test toward missing lines.
	StrategyEvolve
)

func (s Strategy) String() string {
	switch s {
	case StrategyNormal:
		return "normal"
	case StrategyEasy:
		return "easy"
	case StrategyEvolve:
		return "evolve"
	default:
		return "done"
	}
}

// Record is the test state of one function.
//
// Thread Safety: Safe for concurrent use. A round generates for a Record
// from one goroutine, while other goroutines may read its first test.
type Record struct {
	Function *graph.Function

	// Dir is the absolute directory holding the function's test files.
	Dir string

	mu       sync.RWMutex
	cases    []*verify.Case
	attempts int
	coverage *coverage.Result
}

func newRecord(f *graph.Function, dir string) *Record {
	return &Record{Function: f, Dir: dir}
}

// Strategy returns the strategy for the next round.
func (r *Record) Strategy() Strategy {
	r.mu.RLock()
	cov, attempts := r.coverage, r.attempts
	r.mu.RUnlock()

	switch {
	case cov != nil && cov.FullyCovered():
		return StrategyDone
	case cov != nil && r.FirstTest() != "":
		return StrategyEvolve
	case cov == nil && attempts > 0:
		return StrategyEasy
	default:
		return StrategyNormal
	}
}

// FirstTest returns the source of the first accepted case, or "".
func (r *Record) FirstTest() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.cases) == 0 {
		return ""
	}
	return r.cases[0].Code()
}

// Accepted returns the number of kept cases.
func (r *Record) Accepted() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cases)
}

// Attempts returns the number of generation attempts so far.
func (r *Record) Attempts() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.attempts
}

// Coverage returns the latest coverage result, or nil before measurement.
func (r *Record) Coverage() *coverage.Result {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.coverage
}

// SetCoverage replaces the coverage result.
func (r *Record) SetCoverage(c *coverage.Result) {
	r.mu.Lock()
	r.coverage = c
	r.mu.Unlock()
}

// NextPath returns the file the next case is written to.
func (r *Record) NextPath() string {
	return filepath.Join(r.Dir, CaseFile(r.Function.Name, r.Accepted()))
}

// finish counts an attempt and keeps c when it is non-nil.
func (r *Record) finish(c *verify.Case) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts++
	if c != nil {
		r.cases = append(r.cases, c)
	}
}

// =============================================================================
// Layout
// =============================================================================

// DefaultTestDir is the directory under the project root holding every
// generated test.
const DefaultTestDir = "testsynth_tests"

// CaseDir returns the directory for tests of functions in relPath.
//
// Example:
//
//	CaseDir("/p", "tests_gen", "pkg/util.py") == "/p/tests_gen/pkg_util_t"
func CaseDir(root, testDir, relPath string) string {
	stem := strings.TrimSuffix(filepath.ToSlash(relPath), ".py") + "_t"
	return filepath.Join(root, testDir, strings.ReplaceAll(stem, "/", "_"))
}

// CaseFile returns the file name of case index for a function named name.
func CaseFile(name string, index int) string {
	return "test_" + strings.ReplaceAll(name, ".", "_") + strconv.Itoa(index) + ".py"
}

func conftest(root string) string {
	return "import sys\n\ndef pytest_configure(config):\n    sys.path.append('" + root + "')"
}

// initPackageDir creates dir with an empty __init__.py when it does not
// exist yet. It reports whether dir was created.
func initPackageDir(dir string) (bool, error) {
	if _, err := os.Stat(dir); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, err
	}
	if err := os.WriteFile(filepath.Join(dir, "__init__.py"), nil, 0o644); err != nil {
		return false, err
	}
	return true, nil
}
