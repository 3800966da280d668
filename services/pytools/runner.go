// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pytools runs the Python tooling (pylint, pytest, coverage.py)
// against generated test files.
//
// Every invocation goes through the user's interpreter as "python -m
// <tool>" with PYTHONPATH pointing at the project root, under a per-tool
// timeout. A non-zero exit is a verdict, not an error; errors are reserved
// for runs that could not produce a verdict at all.
package pytools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

// Default time budgets.
const (
	DefaultTestTimeout     = 10 * time.Second
	DefaultLintTimeout     = 60 * time.Second
	DefaultCoverageTimeout = 30 * time.Minute
)

// Tool module names, as passed to "python -m".
const (
	ToolPylint   = "pylint"
	ToolPytest   = "pytest"
	ToolCoverage = "coverage"
)

// Config holds the interpreter and project settings.
type Config struct {
	// Python is the interpreter path (USER_PYTHON_PATH).
	Python string

	// Root is the project root, added to PYTHONPATH.
	Root string

	TestTimeout     time.Duration
	LintTimeout     time.Duration
	CoverageTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Python == "" {
		c.Python = "python3"
	}
	if c.TestTimeout <= 0 {
		c.TestTimeout = DefaultTestTimeout
	}
	if c.LintTimeout <= 0 {
		c.LintTimeout = DefaultLintTimeout
	}
	if c.CoverageTimeout <= 0 {
		c.CoverageTimeout = DefaultCoverageTimeout
	}
	return c
}

// Runner executes Python tools.
//
// Description:
//
//	Call DetectTools once before use so that a missing pylint falls back to
//	the built-in syntax checker. Until DetectTools runs, every tool is
//	assumed installed.
//
// Thread Safety: Safe for concurrent use.
type Runner struct {
	cfg       Config
	logger    *slog.Logger
	missing   map[string]bool
	missingMu sync.RWMutex
}

// Option configures the Runner.
type Option func(*Runner)

// WithLogger sets the logger for tool diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a runner for cfg.
func NewRunner(cfg Config, opts ...Option) *Runner {
	r := &Runner{
		cfg:     cfg.withDefaults(),
		logger:  slog.Default(),
		missing: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Config returns the effective configuration.
func (r *Runner) Config() Config {
	return r.cfg
}

// DetectTools checks which tool modules the interpreter can run.
//
// Description:
//
//	Runs "python -m <tool> --version" for pylint, pytest and coverage.
//	The result maps tool name to availability.
//
// Thread Safety: Safe for concurrent use.
func (r *Runner) DetectTools(ctx context.Context) map[string]bool {
	result := make(map[string]bool, 3)
	for _, tool := range []string{ToolPylint, ToolPytest, ToolCoverage} {
		res, err := r.run(ctx, tool, 30*time.Second, "", "-m", tool, "--version")
		ok := err == nil && res.exitCode == 0
		result[tool] = ok

		r.missingMu.Lock()
		r.missing[tool] = !ok
		r.missingMu.Unlock()

		if ok {
			r.logger.Info("Python tool available", slog.String("tool", tool))
		} else {
			r.logger.Warn("Python tool not installed",
				slog.String("tool", tool),
				slog.String("python", r.cfg.Python),
			)
		}
	}
	return result
}

// IsAvailable reports whether tool was not detected as missing.
func (r *Runner) IsAvailable(tool string) bool {
	r.missingMu.RLock()
	defer r.missingMu.RUnlock()
	return !r.missing[tool]
}

type execResult struct {
	stdout   []byte
	stderr   []byte
	exitCode int
}

// run executes the interpreter with args under timeout.
//
// A non-zero exit returns a result, not an error. A deadline returns
// ErrToolTimeout; a missing interpreter returns ErrToolNotFound. A
// cancelled parent context returns ctx.Err().
func (r *Runner) run(ctx context.Context, tool string, timeout time.Duration, dir string, args ...string) (*execResult, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, r.cfg.Python, args...)
	cmd.WaitDelay = 2 * time.Second
	if dir != "" {
		cmd.Dir = dir
	}
	cmd.Env = os.Environ()
	if r.cfg.Root != "" {
		cmd.Env = append(cmd.Env, "PYTHONPATH="+r.cfg.Root)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if errors.Is(cmdCtx.Err(), context.DeadlineExceeded) {
		return nil, NewToolError(tool, ErrToolTimeout).WithOutput(stderr.String())
	}

	res := &execResult{stdout: stdout.Bytes(), stderr: stderr.Bytes()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.exitCode = exitErr.ExitCode()
			return res, nil
		}
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return nil, NewToolError(tool, fmt.Errorf("%w: %s", ErrToolNotFound, r.cfg.Python))
		}
		return nil, NewToolError(tool, fmt.Errorf("%w: %v", ErrToolFailed, err)).WithOutput(stderr.String())
	}
	return res, nil
}
