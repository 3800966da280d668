// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package coverage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleReport = `{
  "meta": {"format": 3, "version": "7.6.1", "branch_coverage": true},
  "files": {
    "pkg/cart.py": {
      "executed_lines": [1, 2, 3, 5],
      "missing_lines": [6, 7, 9],
      "summary": {"covered_lines": 4, "num_statements": 7, "num_branches": 4, "covered_branches": 1},
      "functions": {
        "Cart.add": {
          "executed_lines": [5],
          "missing_lines": [6, 7, 9],
          "summary": {"covered_lines": 1, "num_statements": 4, "missing_lines": 3}
        },
        "": {"executed_lines": [1, 2, 3], "missing_lines": [], "summary": {"covered_lines": 3}}
      }
    },
    "pkg/__init__.py": {
      "executed_lines": [],
      "missing_lines": [],
      "summary": {"covered_lines": 0, "num_statements": 0},
      "functions": {"helper": {"missing_lines": [], "summary": {"covered_lines": 2, "num_statements": 2}}}
    }
  },
  "totals": {"covered_lines": 4, "num_statements": 7, "percent_covered": 57.14}
}`

func TestParse_Functions(t *testing.T) {
	r, err := Parse([]byte(sampleReport))
	require.NoError(t, err)
	assert.Equal(t, 7, r.Totals.NumStatements)

	fns, err := r.Functions()
	require.NoError(t, err)

	add := fns["pkg.cart"]["Cart.add"]
	require.NotNil(t, add)
	assert.Equal(t, []int{6, 7, 9}, add.MissingLines)
	assert.False(t, add.FullyCovered())
	assert.Equal(t, "6-7, 9", add.FormatMissing())
	_, hasModuleLevel := fns["pkg.cart"][""]
	assert.False(t, hasModuleLevel)

	helper := fns["pkg"]["helper"]
	require.NotNil(t, helper)
	assert.True(t, helper.FullyCovered())
}

func TestFunctions_LegacyReport(t *testing.T) {
	r, err := Parse([]byte(`{"files": {"a.py": {"missing_lines": [1]}}}`))
	require.NoError(t, err)
	_, err = r.Functions()
	assert.ErrorIs(t, err, ErrNoFunctions)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("{"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coverage.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleReport), 0o644))
	r, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, r.Files, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestSnapshot(t *testing.T) {
	r, err := Parse([]byte(sampleReport))
	require.NoError(t, err)

	snap := r.Snapshot([]string{"pkg.cart", "pkg.other"})
	require.Len(t, snap, 1)
	assert.Equal(t, ModuleSnapshot{CoveredLines: 4, CoveredBranches: 1, NumStatements: 7, NumBranches: 4}, snap["pkg.cart"])
}

func TestSnapshot_PackageInitKeepsSuffix(t *testing.T) {
	r, err := Parse([]byte(sampleReport))
	require.NoError(t, err)

	snap := r.Snapshot([]string{"pkg.__init__"})
	require.Len(t, snap, 1)
	assert.Contains(t, snap, "pkg.__init__")

	assert.Empty(t, r.Snapshot([]string{"pkg"}))
}

func TestSnapshotKey(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"pkg/__init__.py", "pkg.__init__"},
		{"pkg/sub/mod.py", "pkg.sub.mod"},
		{"__init__.py", "__init__"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, SnapshotKey(tt.path))
		})
	}
}

func TestModuleName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"mod.py", "mod"},
		{"pkg/sub/mod.py", "pkg.sub.mod"},
		{"pkg/__init__.py", "pkg"},
		{"__init__.py", ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, ModuleName(tt.path))
		})
	}
}

func TestFormatMissingLines(t *testing.T) {
	tests := []struct {
		name  string
		lines []int
		want  string
	}{
		{"empty", nil, ""},
		{"single", []int{4}, "4"},
		{"ranges", []int{2, 3, 4, 9, 10, 15}, "2-4, 9-10, 15"},
		{"unsorted", []int{10, 9, 1}, "1, 9-10"},
		{"one run", []int{5, 6, 7}, "5-7"},
		{"duplicates", []int{2, 2, 3}, "2-3"},
		{"duplicate single", []int{8, 4, 8}, "4, 8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatMissingLines(tt.lines))
		})
	}
}

func TestAnnotate(t *testing.T) {
	code := "def f(x):\n    if x:\n        return 1\n    return 2"
	got := Annotate(code, 10, []int{12, 13, 40, 3})
	want := "def f(x):\n    if x:\n12:         return 1\n13:     return 2"
	assert.Equal(t, want, got)
}

func TestBenchmark(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projects.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"cart": ["pkg.cart"]}`), 0o644))

	b, err := LoadBenchmark(path)
	require.NoError(t, err)

	mods, err := b.Modules("cart")
	require.NoError(t, err)
	assert.Equal(t, []string{"pkg.cart"}, mods)

	_, err = b.Modules("other")
	assert.ErrorIs(t, err, ErrNotInBenchmark)
}
