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
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrNotInBenchmark is returned when the project has no benchmark entry.
var ErrNotInBenchmark = errors.New("project is not in the benchmark list")

// Benchmark maps a project name to the modules whose coverage is tracked.
type Benchmark map[string][]string

// LoadBenchmark reads a projects.json benchmark list.
func LoadBenchmark(path string) (Benchmark, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read benchmark list: %w", err)
	}
	var b Benchmark
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("decode benchmark list: %w", err)
	}
	return b, nil
}

// Modules returns the tracked modules of project.
func (b Benchmark) Modules(project string) ([]string, error) {
	mods, ok := b[project]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotInBenchmark, project)
	}
	return mods, nil
}
