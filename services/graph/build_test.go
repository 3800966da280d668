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
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func calleeNames(edges []*CallEdge) []string {
	var out []string
	for _, e := range edges {
		out = append(out, e.Callee.FullName)
	}
	return out
}

func TestBuild_Modules(t *testing.T) {
	p := buildProject(t)

	var modules []string
	for _, f := range p.Files {
		modules = append(modules, f.Module)
	}
	assert.Equal(t, []string{"pkg", "pkg.shapes", "pkg.util"}, modules)
	assert.Len(t, p.Functions(), 9)

	sq := p.Function("pkg.shapes.Square.area")
	require.NotNil(t, sq)
	assert.Equal(t, "Square.area", sq.Name)
	assert.Equal(t, "pkg.shapes.Square", sq.Class.FullName)
	assert.Equal(t, "    def area(self):\n        return helper(self.side) * self.side", sq.Code)
}

func TestBuild_Edges(t *testing.T) {
	p := buildProject(t)

	tests := []struct {
		caller string
		uses   []string
	}{
		{"pkg.util.recurse", []string{"pkg.util.recurse"}},
		{"pkg.util.ping", []string{"pkg.util.pong"}},
		{"pkg.util.pong", []string{"pkg.util.ping"}},
		{"pkg.shapes.Square.area", []string{"pkg.util.helper"}},
		{"pkg.shapes.Square.describe", []string{"pkg.util.helper", "pkg.shapes.Square.area"}},
		{"pkg.shapes.make", []string{"pkg.shapes.Square.__init__"}},
		{"pkg.util.helper", nil},
	}
	for _, tt := range tests {
		t.Run(tt.caller, func(t *testing.T) {
			fn := p.Function(tt.caller)
			require.NotNil(t, fn)
			assert.Equal(t, tt.uses, calleeNames(fn.Uses))
		})
	}

	// describe calls self.area() twice: one use, two incoming edges.
	area := p.Function("pkg.shapes.Square.area")
	var fromDescribe int
	for _, e := range area.Used {
		if e.Caller.Name == "Square.describe" {
			fromDescribe++
		}
	}
	assert.Equal(t, 2, fromDescribe)
	assert.Empty(t, p.Function("pkg.shapes.Base.area").Used)
}

func TestBuild_CallCode(t *testing.T) {
	p := buildProject(t)
	area := p.Function("pkg.shapes.Square.area")
	require.Len(t, area.Uses, 1)
	assert.Equal(t, "        return helper(self.side) * self.side", area.Uses[0].CallCode)

	helper := p.Function("pkg.util.helper")
	outside := addEdge(area, helper, area.EndLine+5)
	assert.Equal(t, NotFoundCallCode, outside.CallCode)
	assert.Len(t, area.Uses, 1, "second edge to the same callee is not a new use")
}

func TestBuild_Inheritance(t *testing.T) {
	p := buildProject(t)
	shapes := p.FileByModule("pkg.shapes")
	require.NotNil(t, shapes)
	square := shapes.ClassByName("Square")
	base := shapes.ClassByName("Base")
	require.NotNil(t, square)

	assert.Equal(t, []*Class{base}, square.Parents)
	assert.ElementsMatch(t, []string{"side", "area", "describe"}, square.Members)
	for _, m := range []string{"side", "area", "describe", "kind"} {
		assert.True(t, square.FullMembers[m], m)
	}
	assert.Equal(t, 2, square.SuitMembers([]string{"side", "kind", "missing"}))
	assert.Equal(t, "Square.__init__", square.Init.Name)
}

func TestClass_AncestorCycle(t *testing.T) {
	a := &Class{Name: "A", Members: []string{"a"}}
	b := &Class{Name: "B", Members: []string{"b"}}
	a.Parents = []*Class{b}
	b.Parents = []*Class{a}

	assert.Equal(t, []*Class{b}, a.Ancestors())
	a.resolveFullMembers()
	assert.Equal(t, map[string]bool{"a": true, "b": true}, a.FullMembers)
}

func TestBuild_Imports(t *testing.T) {
	p := buildProject(t)
	shapes := p.FileByModule("pkg.shapes")
	var imported []string
	for _, f := range shapes.Imports {
		imported = append(imported, f.Module)
	}
	assert.Equal(t, []string{"pkg.shapes", "pkg.util", "pkg"}, imported)
}

func TestAbsoluteModule(t *testing.T) {
	tests := []struct {
		name    string
		rel     string
		module  string
		imports string
		want    string
	}{
		{"absolute", "pkg/a.py", "pkg.a", "os.path", "os.path"},
		{"sibling", "pkg/a.py", "pkg.a", ".b", "pkg.b"},
		{"package", "pkg/a.py", "pkg.a", ".", "pkg"},
		{"parent", "pkg/sub/a.py", "pkg.sub.a", "..c", "pkg.c"},
		{"from init", "pkg/__init__.py", "pkg", ".b", "pkg.b"},
		{"too deep", "a.py", "a", "..x", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &File{RelPath: tt.rel, Module: tt.module}
			assert.Equal(t, tt.want, absoluteModule(f, tt.imports))
		})
	}
}

func TestBuild_Readmes(t *testing.T) {
	p := buildProject(t)
	var withReadme []string
	for _, d := range p.Dirs() {
		if d.HasReadme() {
			withReadme = append(withReadme, filepath.Base(d.Path))
		}
	}
	assert.Len(t, withReadme, 1)

	util := p.FileByModule("pkg.util")
	_, ok := util.Readme()
	assert.False(t, ok, "README not summarized yet")

	p.root.setSummary("demo summary")
	got, ok := util.Readme()
	assert.True(t, ok)
	assert.Equal(t, "demo summary", got)
}

func TestBuild_ExcludesTestDir(t *testing.T) {
	root := writeProject(t)
	p, err := Build(context.Background(), BuildOptions{Root: root, Exclude: []string{"testsynth_tests"}})
	require.NoError(t, err)
	for _, f := range p.Files {
		assert.NotContains(t, f.RelPath, "testsynth_tests")
	}

	p, err = Build(context.Background(), BuildOptions{Root: root})
	require.NoError(t, err)
	assert.NotNil(t, p.FileByModule("testsynth_tests.test_x"))
}

func TestBuild_Errors(t *testing.T) {
	_, err := Build(context.Background(), BuildOptions{Root: filepath.Join(t.TempDir(), "missing")})
	assert.True(t, errors.Is(err, ErrSourceUnreadable))

	empty := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(empty, "notes.txt"), []byte("x"), 0o644))
	_, err = Build(context.Background(), BuildOptions{Root: empty})
	assert.True(t, errors.Is(err, ErrNoSources))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Build(ctx, BuildOptions{Root: writeProject(t)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFunction_SourceContext(t *testing.T) {
	p := buildProject(t)
	area := p.Function("pkg.shapes.Square.area")
	init := p.Function("pkg.shapes.Square.__init__")

	got := area.SourceContext()
	assert.Contains(t, got, "class Square:\n")
	assert.Contains(t, got, init.Code+"\n\n")
	assert.NotContains(t, got, `"""`)

	init.setOnce(&init.summary, "builds a square")
	area.setOnce(&area.summary, "area of the square")
	area.setOnce(&area.judge, "area()")
	got = area.SourceContext()
	assert.Contains(t, got, "\"\"\"\nbuilds a square\n\"\"\"\n"+init.Code)
	assert.Contains(t, got, "\"\"\"\narea of the square\n\"\"\"\n\"\"\"\narea()\n\"\"\"\n"+area.Code)
}

func TestFunction_Document(t *testing.T) {
	p := buildProject(t)
	helper := p.Function("pkg.util.helper")
	assert.Equal(t, helper.SourceContext(), helper.Document(""))
	assert.Equal(t,
		"pkg.util.helper code:\n"+helper.Code+"\n\ntest case:\ndef test_h(): pass\n",
		helper.Document("def test_h(): pass"))
}
