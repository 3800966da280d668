// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package verify

import (
	"context"
	"fmt"
	"strings"

	"github.com/AleutianAI/testsynth/services/pyast"
)

// Bisect finds the largest index m in [0, n-1] whose probe passes, assuming
// probes pass up to some index and fail after it.
//
// Description:
//
//	Binary search: a passing probe moves the lower bound up, a failing one
//	moves the upper bound down. The result is accepted only when m > 0; a
//	prefix before the first assertion proves nothing.
//
// Outputs:
//
//	int - The largest passing index found, 0 when none.
//	bool - Whether the result is accepted.
func Bisect(n int, probe func(i int) bool) (int, bool) {
	reached := 0
	low, high := 0, n-1
	for low <= high {
		mid := (low + high) / 2
		if probe(mid) {
			reached = mid
			low = mid + 1
		} else {
			high = mid - 1
		}
	}
	return reached, reached > 0
}

// ProbeExponential probes indexes 0, 1, 3, 7, ... (k = 2k+1) until a probe
// fails or n is reached, and returns the last passing index.
//
// Used when a run timed out: each failing probe may cost a full timeout, so
// the number of failures is kept at one.
func ProbeExponential(n int, probe func(i int) bool) (int, bool) {
	last := -1
	for k := 0; k < n; k = 2*k + 1 {
		if !probe(k) {
			break
		}
		last = k
	}
	return last, last >= 0
}

// prefixBefore returns the lines preceding the given 1-indexed line.
func prefixBefore(lines []string, line int) string {
	end := line - 1
	if end > len(lines) {
		end = len(lines)
	}
	if end < 0 {
		end = 0
	}
	return strings.Join(lines[:end], "\n")
}

// minimize truncates c to its longest passing assertion prefix.
func (p *Pipeline) minimize(ctx context.Context, c *Case) (bool, error) {
	code := c.Code()
	asserts, err := pyast.AssertLines(ctx, []byte(code))
	if err != nil || len(asserts) == 0 {
		p.logger.Debug("nothing to minimize", "path", c.Path, "asserts", len(asserts), "error", err)
		return false, nil
	}
	lines := strings.Split(code, "\n")

	var writeErr error
	probe := func(i int) bool {
		if writeErr != nil || ctx.Err() != nil {
			return false
		}
		if writeErr = c.SetCode(prefixBefore(lines, asserts[i])); writeErr != nil {
			return false
		}
		return !p.findSyntaxError(ctx, c) && !p.findAssertError(ctx, c, false)
	}

	var m int
	var ok bool
	strategy := "bisect"
	if c.timedOut {
		strategy = "probe"
		m, ok = ProbeExponential(len(asserts), probe)
	} else {
		m, ok = Bisect(len(asserts), probe)
	}
	if writeErr != nil {
		return false, writeErr
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.logger.Debug("minimized test case",
		"path", c.Path,
		"strategy", strategy,
		"asserts", len(asserts),
		"kept", m,
		"accepted", ok)
	if !ok {
		return false, nil
	}
	if err := c.SetCode(prefixBefore(lines, asserts[m])); err != nil {
		return false, fmt.Errorf("write truncated case: %w", err)
	}
	return true, nil
}
