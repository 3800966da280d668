// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pytools

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/AleutianAI/testsynth/services/coverage"
)

// Coverage measures the whole test tree with coverage.py.
//
// Description:
//
//	Runs "coverage run -m --branch --source=<sourceDir> pytest
//	--continue-on-collection-errors <testDir>" from the project root, then
//	exports "<testDir>/coverage.json" and parses it. Failing tests do not
//	fail the measurement.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	sourceDir - Directory measured, relative to the root or absolute.
//	testDir - Directory holding generated tests.
//
// Outputs:
//
//	*coverage.Report - The parsed report.
//	error - Timeout, missing tool, or an unreadable report.
//
// Thread Safety: Safe for concurrent use, but concurrent measurements of
// the same testDir overwrite each other's report.
func (r *Runner) Coverage(ctx context.Context, sourceDir, testDir string) (*coverage.Report, error) {
	ctx, span := startToolSpan(ctx, ToolCoverage, testDir)
	defer span.End()
	start := time.Now()

	report, err := r.measure(ctx, sourceDir, testDir)
	outcome := "pass"
	if err != nil {
		outcome = "error"
	}
	recordToolMetrics(ctx, ToolCoverage, outcome, time.Since(start))
	return report, err
}

func (r *Runner) measure(ctx context.Context, sourceDir, testDir string) (*coverage.Report, error) {
	_, err := r.run(ctx, ToolCoverage, r.cfg.CoverageTimeout, r.cfg.Root,
		"-m", ToolCoverage, "run", "-m", "--branch", "--source="+sourceDir,
		ToolPytest, "--continue-on-collection-errors", testDir)
	if err != nil {
		return nil, err
	}

	jsonPath := filepath.Join(testDir, "coverage.json")
	if !filepath.IsAbs(jsonPath) && r.cfg.Root != "" {
		jsonPath = filepath.Join(r.cfg.Root, jsonPath)
	}
	res, err := r.run(ctx, ToolCoverage, r.cfg.CoverageTimeout, r.cfg.Root,
		"-m", ToolCoverage, "json", "-i", "-o", jsonPath)
	if err != nil {
		return nil, err
	}
	if res.exitCode != 0 {
		return nil, NewToolError(ToolCoverage, fmt.Errorf("%w: json export exited %d", ErrToolFailed, res.exitCode)).
			WithOutput(string(res.stderr))
	}
	return coverage.Load(jsonPath)
}
