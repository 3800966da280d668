// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package testgen

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/AleutianAI/testsynth/services/coverage"
	"github.com/AleutianAI/testsynth/services/graph"
)

// ErrNoTestDir is returned when the manager has no test directory name.
var ErrNoTestDir = errors.New("test directory name is empty")

// Totals is the project-wide line and branch coverage.
type Totals struct {
	CoveredLines      int
	UncoveredLines    int
	CoveredBranches   int
	UncoveredBranches int
}

// Manager owns the Records of every function in a project.
//
// Thread Safety: The record set is fixed at construction; Records are
// individually safe for concurrent use.
type Manager struct {
	project *graph.Project
	testDir string
	records []*Record
	byName  map[string]*Record
}

// NewManager creates one Record per project function, in file order.
func NewManager(p *graph.Project, testDir string) (*Manager, error) {
	if testDir == "" {
		return nil, ErrNoTestDir
	}
	m := &Manager{
		project: p,
		testDir: testDir,
		byName:  make(map[string]*Record),
	}
	for _, f := range p.Functions() {
		rec := newRecord(f, CaseDir(p.Root, testDir, f.File.RelPath))
		m.records = append(m.records, rec)
		m.byName[f.FullName] = rec
	}
	return m, nil
}

// TestDir returns the absolute test directory.
func (m *Manager) TestDir() string {
	return filepath.Join(m.project.Root, m.testDir)
}

// Records returns every record in file order.
func (m *Manager) Records() []*Record {
	return m.records
}

// Record returns the record of the function with the given full name.
func (m *Manager) Record(fullName string) *Record {
	return m.byName[fullName]
}

// Init lays out the test tree.
//
// Description:
//
//	A new test directory gets an __init__.py and a conftest.py that puts
//	the project root on sys.path. An existing test directory is left as
//	is. Every per-file directory that does not exist yet is created with
//	its own __init__.py.
func (m *Manager) Init() error {
	dir := m.TestDir()
	created, err := initPackageDir(dir)
	if err != nil {
		return fmt.Errorf("init test dir: %w", err)
	}
	if created {
		if err := os.WriteFile(filepath.Join(dir, "conftest.py"), []byte(conftest(m.project.Root)), 0o644); err != nil {
			return fmt.Errorf("write conftest: %w", err)
		}
	}
	seen := make(map[string]bool)
	for _, rec := range m.records {
		if seen[rec.Dir] {
			continue
		}
		seen[rec.Dir] = true
		if _, err := initPackageDir(rec.Dir); err != nil {
			return fmt.Errorf("init %s: %w", rec.Dir, err)
		}
	}
	return nil
}

// ApplyCoverage stores each measured function's result on its record and
// returns how many records were updated. Functions the report does not
// mention keep their previous result.
func (m *Manager) ApplyCoverage(byModule coverage.ByModule) int {
	n := 0
	for module, functions := range byModule {
		file := m.project.FileByModule(module)
		if file == nil {
			continue
		}
		for name, res := range functions {
			f := file.FunctionByName(name)
			if f == nil {
				continue
			}
			if rec := m.byName[f.FullName]; rec != nil {
				rec.SetCoverage(res)
				n++
			}
		}
	}
	return n
}

// Totals sums coverage over every record. A function never measured counts
// its whole span as uncovered.
func (m *Manager) Totals() Totals {
	var t Totals
	for _, rec := range m.records {
		cov := rec.Coverage()
		if cov == nil {
			t.UncoveredLines += rec.Function.EndLine - rec.Function.StartLine + 1
			continue
		}
		t.CoveredLines += cov.Summary.CoveredLines
		t.UncoveredLines += cov.Summary.MissingLines
		t.CoveredBranches += cov.Summary.CoveredBranches
		t.UncoveredBranches += cov.Summary.MissingBranches
	}
	return t
}

// Accepted returns the number of kept cases over every record.
func (m *Manager) Accepted() int {
	n := 0
	for _, rec := range m.records {
		n += rec.Accepted()
	}
	return n
}

// Documents returns the retrieval corpus: the merged summary of every
// summarized function, keyed by full name.
func (m *Manager) Documents() (ids, texts []string) {
	for _, rec := range m.records {
		s, ok := rec.Function.Summary()
		if !ok || s == "" {
			continue
		}
		ids = append(ids, rec.Function.FullName)
		texts = append(texts, s)
	}
	return ids, texts
}

// Document renders the function id for retrieval context, using its first
// accepted test when one exists.
func (m *Manager) Document(id string) string {
	rec := m.byName[id]
	if rec == nil {
		return ""
	}
	return rec.Function.Document(rec.FirstTest())
}

// ParamTypes returns the extracted parameter types of every function that
// has any, keyed by full name.
func (m *Manager) ParamTypes() map[string]map[string]string {
	out := make(map[string]map[string]string)
	for _, rec := range m.records {
		if types := rec.Function.ParamTypes(); len(types) > 0 {
			out[rec.Function.FullName] = types
		}
	}
	return out
}
