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
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for tool execution.
var (
	// ErrToolTimeout indicates the tool exceeded its time budget.
	ErrToolTimeout = errors.New("tool timed out")

	// ErrToolNotFound indicates the interpreter or module is missing.
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolFailed indicates the tool could not produce a usable result.
	ErrToolFailed = errors.New("tool failed")
)

// ToolError wraps a tool failure with its captured output.
type ToolError struct {
	Tool   string
	Err    error
	Output string
}

// NewToolError creates a ToolError for tool.
func NewToolError(tool string, err error) *ToolError {
	return &ToolError{Tool: tool, Err: err}
}

// WithOutput attaches captured stderr/stdout.
func (e *ToolError) WithOutput(output string) *ToolError {
	e.Output = output
	return e
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Tool, e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		if len(out) > 500 {
			out = out[:500] + "..."
		}
		msg += ": " + out
	}
	return msg
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// TimeoutMessage is the failure output recorded for a test that exceeded
// its time budget.
const TimeoutMessage = "time exceeded"

// TimeoutErrorType is the error-type label recorded for a timed out test.
const TimeoutErrorType = "TimeoutExpired"

// Outcome is the verdict of one lint or test run.
//
// Thread Safety: Immutable after creation.
type Outcome struct {
	// Passed is true when the tool exited cleanly.
	Passed bool

	// Output is the tool's diagnostic text, fed back into repair prompts.
	Output string

	// ErrorTypes lists failure messages found in the pytest report.
	ErrorTypes []string

	// TimedOut is true when the run exceeded its budget.
	TimedOut bool

	// Fallback is true when the verdict came from the built-in syntax
	// checker because pylint is not installed.
	Fallback bool
}
