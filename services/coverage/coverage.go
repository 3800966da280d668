// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package coverage reads coverage.py JSON reports and turns them into
// per-function results that drive coverage-guided test evolution.
package coverage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ErrNoFunctions indicates a report without per-function data (coverage.py
// older than 7.5 does not emit the "functions" section).
var ErrNoFunctions = errors.New("coverage report has no per-function data")

// Summary mirrors the "summary"/"totals" objects of a coverage.py report.
type Summary struct {
	CoveredLines       int     `json:"covered_lines"`
	NumStatements      int     `json:"num_statements"`
	PercentCovered     float64 `json:"percent_covered"`
	MissingLines       int     `json:"missing_lines"`
	ExcludedLines      int     `json:"excluded_lines"`
	NumBranches        int     `json:"num_branches"`
	NumPartialBranches int     `json:"num_partial_branches"`
	CoveredBranches    int     `json:"covered_branches"`
	MissingBranches    int     `json:"missing_branches"`
}

// Region is a file, function or class entry of the report.
type Region struct {
	ExecutedLines []int   `json:"executed_lines"`
	MissingLines  []int   `json:"missing_lines"`
	ExcludedLines []int   `json:"excluded_lines"`
	Summary       Summary `json:"summary"`
}

// File is one measured source file.
type File struct {
	Region
	Functions map[string]Region `json:"functions"`
	Classes   map[string]Region `json:"classes"`
}

// Report is a parsed coverage.json.
type Report struct {
	Files  map[string]File `json:"files"`
	Totals Summary         `json:"totals"`
}

// Load reads and parses a coverage.json file.
func Load(path string) (*Report, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read coverage report: %w", err)
	}
	return Parse(raw)
}

// Parse decodes a coverage.json document.
func Parse(raw []byte) (*Report, error) {
	var r Report
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode coverage report: %w", err)
	}
	if r.Files == nil {
		r.Files = map[string]File{}
	}
	return &r, nil
}

// Result is the coverage of one function after a measurement pass.
type Result struct {
	MissingLines []int
	Summary      Summary
}

// FullyCovered reports whether no line is missing.
func (r *Result) FullyCovered() bool {
	return len(r.MissingLines) == 0
}

// FormatMissing formats the missing lines with FormatMissingLines.
func (r *Result) FormatMissing() string {
	return FormatMissingLines(r.MissingLines)
}

// ByModule maps module name -> function qualified name -> Result.
type ByModule map[string]map[string]*Result

// Functions indexes the per-function entries of the report by module.
//
// Description:
//
//	File paths are converted to dotted module names (see ModuleName). The
//	anonymous module-level entry ("") is skipped.
//
// Outputs:
//
//	ByModule - Index of per-function results.
//	error - ErrNoFunctions when no file carries per-function data.
func (r *Report) Functions() (ByModule, error) {
	out := make(ByModule)
	seen := false
	for path, file := range r.Files {
		if file.Functions == nil {
			continue
		}
		seen = true
		mod := ModuleName(path)
		for name, region := range file.Functions {
			if name == "" {
				continue
			}
			if out[mod] == nil {
				out[mod] = make(map[string]*Result)
			}
			out[mod][name] = &Result{
				MissingLines: append([]int(nil), region.MissingLines...),
				Summary:      region.Summary,
			}
		}
	}
	if !seen && len(r.Files) > 0 {
		return out, ErrNoFunctions
	}
	return out, nil
}

// ModuleSnapshot is the per-module benchmark record.
type ModuleSnapshot struct {
	CoveredLines    int `json:"covered_lines"`
	CoveredBranches int `json:"covered_branches"`
	NumStatements   int `json:"num_statements"`
	NumBranches     int `json:"num_branches"`
}

// Snapshot returns the file summaries of the listed modules, keyed by
// SnapshotKey.
func (r *Report) Snapshot(modules []string) map[string]ModuleSnapshot {
	want := make(map[string]bool, len(modules))
	for _, m := range modules {
		want[m] = true
	}
	out := make(map[string]ModuleSnapshot)
	for path, file := range r.Files {
		mod := SnapshotKey(path)
		if !want[mod] {
			continue
		}
		out[mod] = ModuleSnapshot{
			CoveredLines:    file.Summary.CoveredLines,
			CoveredBranches: file.Summary.CoveredBranches,
			NumStatements:   file.Summary.NumStatements,
			NumBranches:     file.Summary.NumBranches,
		}
	}
	return out
}

// ModuleName converts a project-relative path to a dotted module name.
//
// Examples:
//
//	ModuleName("pkg/sub/mod.py") == "pkg.sub.mod"
//	ModuleName("pkg/__init__.py") == "pkg"
func ModuleName(relPath string) string {
	mod := strings.TrimSuffix(filepath.ToSlash(relPath), ".py")
	mod = strings.ReplaceAll(mod, "/", ".")
	if mod == "__init__" {
		return ""
	}
	return strings.TrimSuffix(mod, ".__init__")
}

// SnapshotKey converts a project-relative path to the module key used by
// benchmark lists. Unlike ModuleName it keeps a package's __init__ part.
//
// Examples:
//
//	SnapshotKey("pkg/__init__.py") == "pkg.__init__"
//	SnapshotKey("pkg/sub/mod.py") == "pkg.sub.mod"
func SnapshotKey(relPath string) string {
	mod := strings.TrimSuffix(filepath.ToSlash(relPath), ".py")
	return strings.ReplaceAll(mod, "/", ".")
}

// FormatMissingLines collapses line numbers into sorted ranges. Duplicates
// are ignored.
//
// Examples:
//
//	FormatMissingLines([]int{2, 3, 4, 9, 10, 15}) == "2-4, 9-10, 15"
//	FormatMissingLines([]int{3, 2, 2}) == "2-3"
//	FormatMissingLines(nil) == ""
func FormatMissingLines(lines []int) string {
	if len(lines) == 0 {
		return ""
	}
	sorted := append([]int(nil), lines...)
	sort.Ints(sorted)

	var ranges []string
	start, end := sorted[0], sorted[0]
	flush := func() {
		if start == end {
			ranges = append(ranges, strconv.Itoa(start))
		} else {
			ranges = append(ranges, strconv.Itoa(start)+"-"+strconv.Itoa(end))
		}
	}
	for _, n := range sorted[1:] {
		if n == end {
			continue
		}
		if n == end+1 {
			end = n
			continue
		}
		flush()
		start, end = n, n
	}
	flush()
	return strings.Join(ranges, ", ")
}

// Annotate prefixes each missing line of code with "N: ".
//
// Description:
//
//	code is a function's source whose first line is file line startLine.
//	Missing lines outside the span are ignored.
func Annotate(code string, startLine int, missing []int) string {
	lines := strings.Split(code, "\n")
	for _, n := range missing {
		i := n - startLine
		if i < 0 || i >= len(lines) {
			continue
		}
		lines[i] = strconv.Itoa(n) + ": " + lines[i]
	}
	return strings.Join(lines, "\n")
}
