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
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/AleutianAI/testsynth/services/pyast"
)

// Pylint runs "pylint --errors-only" on a test file.
//
// Description:
//
//	The file passes when pylint exits 0. When pylint was detected as
//	missing, the tree-sitter syntax checker decides instead and the
//	outcome is flagged Fallback.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	path - Absolute path of the test file.
//
// Outputs:
//
//	*Outcome - Passed, plus pylint's report on failure.
//	error - ErrToolTimeout, ErrToolNotFound or ctx.Err().
//
// Thread Safety: Safe for concurrent use.
func (r *Runner) Pylint(ctx context.Context, path string) (*Outcome, error) {
	ctx, span := startToolSpan(ctx, ToolPylint, path)
	defer span.End()
	start := time.Now()

	var (
		out *Outcome
		err error
	)
	if r.IsAvailable(ToolPylint) {
		out, err = r.pylint(ctx, path)
	} else {
		out, err = syntaxFallback(ctx, path)
	}
	recordToolMetrics(ctx, ToolPylint, outcomeLabel(out, err), time.Since(start))
	if err != nil {
		return nil, err
	}
	if !out.Passed {
		r.logger.Debug("Lint failed",
			slog.String("file", path),
			slog.String("output", out.Output),
		)
	}
	return out, nil
}

func (r *Runner) pylint(ctx context.Context, path string) (*Outcome, error) {
	args := []string{"-m", ToolPylint, "--errors-only"}
	if r.cfg.Root != "" {
		args = append(args, fmt.Sprintf("--init-hook=import sys; sys.path.append('%s')", r.cfg.Root))
	}
	args = append(args, path)

	res, err := r.run(ctx, ToolPylint, r.cfg.LintTimeout, r.cfg.Root, args...)
	if err != nil {
		return nil, err
	}
	if res.exitCode == 0 {
		return &Outcome{Passed: true}, nil
	}
	output := string(res.stdout)
	if strings.TrimSpace(output) == "" {
		output = string(res.stderr)
	}
	return &Outcome{Output: output}, nil
}

// syntaxFallback reports syntax errors in pylint's line format.
func syntaxFallback(ctx context.Context, path string) (*Outcome, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, NewToolError(ToolPylint, fmt.Errorf("%w: %v", ErrToolFailed, err))
	}
	issues, err := pyast.CheckSyntax(ctx, src)
	if err != nil {
		return nil, NewToolError(ToolPylint, fmt.Errorf("%w: %v", ErrToolFailed, err))
	}
	if len(issues) == 0 {
		return &Outcome{Passed: true, Fallback: true}, nil
	}
	var b strings.Builder
	for _, issue := range issues {
		fmt.Fprintf(&b, "%s:%s\n", path, issue)
	}
	return &Outcome{Output: b.String(), Fallback: true}, nil
}
