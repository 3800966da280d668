// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package verify checks generated test files and repairs or truncates the
// ones that fail.
//
// A Case moves through a fixed lifecycle:
//
//	created -> syntax-checked -> assertion-checked -> accepted
//	                                               -> repaired -> re-checked
//	                                               -> truncated
//	                                               -> discarded
//
// The Pipeline drives a Case through it, asking the oracle for repairs and
// handing unrepairable cases to the minimizer.
package verify

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Verdict is the final state of a checked Case.
type Verdict int

const (
	// Discarded cases failed every check; the caller removes the file.
	Discarded Verdict = iota

	// Accepted cases passed their first checks unchanged.
	Accepted

	// Repaired cases passed after at least one oracle repair.
	Repaired

	// Truncated cases pass once cut before a failing assertion.
	Truncated
)

// String returns the verdict name.
func (v Verdict) String() string {
	switch v {
	case Accepted:
		return "accepted"
	case Repaired:
		return "repaired"
	case Truncated:
		return "truncated"
	default:
		return "discarded"
	}
}

// Kept reports whether the case's file should be kept.
func (v Verdict) Kept() bool {
	return v != Discarded
}

// Case is one generated test file.
//
// Thread Safety: Not safe for concurrent use. A Case belongs to the
// goroutine generating for its function.
type Case struct {
	// Path is where the test source is persisted.
	Path string

	errorMessage string
	timedOut     bool
	typesSeen    bool
	repairs      int
}

// NewCase writes code to path and returns the Case.
func NewCase(path, code string) (*Case, error) {
	c := &Case{Path: path}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create test dir: %w", err)
	}
	if err := c.SetCode(code); err != nil {
		return nil, err
	}
	return c, nil
}

// Code reads the current source, "" when the file is gone.
func (c *Case) Code() string {
	raw, err := os.ReadFile(c.Path)
	if err != nil {
		return ""
	}
	return string(raw)
}

// SetCode overwrites the source.
func (c *Case) SetCode(code string) error {
	if err := os.WriteFile(c.Path, []byte(code), 0o644); err != nil {
		return fmt.Errorf("write test case %s: %w", c.Path, err)
	}
	return nil
}

// Delete removes the file. A missing file is not an error.
func (c *Case) Delete() error {
	if err := os.Remove(c.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete test case %s: %w", c.Path, err)
	}
	return nil
}

// ErrorMessage is the output of the most recent failed check.
func (c *Case) ErrorMessage() string {
	return c.errorMessage
}

// TimedOut reports whether the most recent assertion check timed out.
func (c *Case) TimedOut() bool {
	return c.timedOut
}
