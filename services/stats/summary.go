// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/AleutianAI/testsynth/services/coverage"
)

// DefaultResultsDir is where run summaries are written.
const DefaultResultsDir = "run_results"

// RunSummary is the run-summary artifact.
//
// The JSON form is flat: cumulative counters at the top level, the
// first-round counters under "first_"-prefixed keys.
type RunSummary struct {
	RunID      string
	Project    string
	Time       float64
	Times      map[string]float64
	PhaseOrder []string
	Total      Counters
	First      Counters
	Coverage   []map[string]coverage.ModuleSnapshot
	Rounds     []RoundTotals
	ParamTypes map[string]map[string]string
}

// MarshalJSON implements json.Marshaler.
func (s *RunSummary) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{
		"run_id":   s.RunID,
		"project":  s.Project,
		"time":     s.Time,
		"times":    s.Times,
		"coverage": s.Coverage,
		"rounds":   s.Rounds,
	}
	addCounters(out, "", s.Total)
	addCounters(out, "first_", s.First)
	if s.ParamTypes != nil {
		out["param_types"] = s.ParamTypes
	}
	return json.Marshal(out)
}

func addCounters(out map[string]interface{}, prefix string, c Counters) {
	out[prefix+"syntax_pass"] = c.SyntaxPass
	out[prefix+"syntax_error"] = c.SyntaxError
	out[prefix+"syntax_fix_success"] = c.SyntaxFixSuccess
	out[prefix+"assertion_pass"] = c.AssertionPass
	out[prefix+"assertion_error"] = c.AssertionError
	out[prefix+"assertion_fix_success"] = c.AssertionFixSuccess
	types := c.AssertionErrorTypes
	if types == nil {
		types = map[string]int{}
	}
	out[prefix+"assertion_error_types"] = types
}

// WriteFile writes the summary to <dir>/<project>.json and returns the
// path.
func WriteFile(dir string, s *RunSummary) (string, error) {
	if dir == "" {
		dir = DefaultResultsDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create results dir: %w", err)
	}
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode run summary: %w", err)
	}
	path := filepath.Join(dir, s.Project+".json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", fmt.Errorf("write run summary: %w", err)
	}
	return path, nil
}
