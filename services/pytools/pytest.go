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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// pytestReport is the subset of pytest-json-report output we read.
type pytestReport struct {
	Tests []struct {
		NodeID  string `json:"nodeid"`
		Outcome string `json:"outcome"`
		Call    *struct {
			Traceback []struct {
				Message string `json:"message"`
			} `json:"traceback"`
		} `json:"call"`
	} `json:"tests"`
}

// Pytest runs pytest on a single test file.
//
// Description:
//
//	Each call writes its JSON report to its own temporary file so that
//	concurrent runs never read each other's reports. A run that exceeds
//	the test timeout is a failed Outcome with Output TimeoutMessage and
//	the single error type TimeoutErrorType.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	path - Absolute path of the test file.
//
// Outputs:
//
//	*Outcome - Passed when pytest exits 0; otherwise pytest's stdout and
//	  the traceback messages of failing tests.
//	error - ErrToolNotFound, ErrToolFailed or ctx.Err().
//
// Thread Safety: Safe for concurrent use.
func (r *Runner) Pytest(ctx context.Context, path string) (*Outcome, error) {
	ctx, span := startToolSpan(ctx, ToolPytest, path)
	defer span.End()
	start := time.Now()

	out, err := r.pytest(ctx, path)
	recordToolMetrics(ctx, ToolPytest, outcomeLabel(out, err), time.Since(start))
	return out, err
}

func (r *Runner) pytest(ctx context.Context, path string) (*Outcome, error) {
	report, err := os.CreateTemp("", "pytest-report-*.json")
	if err != nil {
		return nil, NewToolError(ToolPytest, fmt.Errorf("%w: report file: %v", ErrToolFailed, err))
	}
	reportPath := report.Name()
	report.Close()
	defer os.Remove(reportPath)

	res, err := r.run(ctx, ToolPytest, r.cfg.TestTimeout, r.cfg.Root,
		"-m", ToolPytest, path, "--json-report", "--json-report-file="+reportPath)
	if err != nil {
		if errors.Is(err, ErrToolTimeout) {
			return &Outcome{
				Output:     TimeoutMessage,
				ErrorTypes: []string{TimeoutErrorType},
				TimedOut:   true,
			}, nil
		}
		return nil, err
	}
	if res.exitCode == 0 {
		return &Outcome{Passed: true}, nil
	}

	out := &Outcome{Output: string(res.stdout)}
	types, err := readErrorTypes(reportPath)
	if err != nil {
		r.logger.Debug("No usable pytest report",
			slog.String("file", path),
			slog.String("error", err.Error()),
		)
	}
	out.ErrorTypes = types
	return out, nil
}

// readErrorTypes collects tests[].call.traceback[].message.
func readErrorTypes(reportPath string) ([]string, error) {
	raw, err := os.ReadFile(reportPath)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, errors.New("empty report")
	}
	var rep pytestReport
	if err := json.Unmarshal(raw, &rep); err != nil {
		return nil, err
	}
	var types []string
	for _, t := range rep.Tests {
		if t.Call == nil {
			continue
		}
		for _, tb := range t.Call.Traceback {
			types = append(types, tb.Message)
		}
	}
	return types, nil
}
