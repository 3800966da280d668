// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/testsynth/services/oracle"
)

const utilSource = `def helper(x):
    return x + 1


def recurse(n):
    if n <= 0:
        return 0
    return recurse(n - 1)


def ping(n):
    return pong(n)


def pong(n):
    return ping(n)
`

const shapesSource = `from pkg.util import helper
from . import util


class Base:
    kind = "base"

    def area(self):
        return 0


class Square(Base):
    def __init__(self, side):
        self.side = side

    def area(self):
        return helper(self.side) * self.side

    def describe(self):
        return util.helper(1) + self.area() + self.area()


def make(side: Square):
    sq = Square(side)
    return sq.area()
`

// writeProject lays out a small package under a temp root.
func writeProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"README.md":       "# Demo\n\nA demo project.\n",
		"pkg/__init__.py": "",
		"pkg/util.py":     utilSource,
		"pkg/shapes.py":   shapesSource,
	}
	files[filepath.Join("testsynth_tests", "test_x.py")] = "def test_x():\n    assert True\n"
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func buildProject(t *testing.T) *Project {
	t.Helper()
	p, err := Build(context.Background(), BuildOptions{Root: writeProject(t), SourceDir: "pkg"})
	require.NoError(t, err)
	return p
}

// fakeAsker answers through respond and records every request.
type fakeAsker struct {
	mu      sync.Mutex
	calls   []askCall
	respond func(system, user string) oracle.Result
}

type askCall struct {
	system string
	user   string
}

func (f *fakeAsker) Ask(_ context.Context, system, user string) oracle.Result {
	f.mu.Lock()
	f.calls = append(f.calls, askCall{system: system, user: user})
	respond := f.respond
	f.mu.Unlock()
	if respond == nil {
		return oracle.Answer("summary")
	}
	return respond(system, user)
}

func (f *fakeAsker) count(system string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.system == system {
			n++
		}
	}
	return n
}

func (f *fakeAsker) find(system, needle string) []askCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []askCall
	for _, c := range f.calls {
		if c.system == system && strings.Contains(c.user, needle) {
			out = append(out, c)
		}
	}
	return out
}
