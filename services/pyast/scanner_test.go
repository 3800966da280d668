// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pyast

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePy = `"""Inventory helpers."""
import os
import json as js
from .models import Item, Store as S
from pkg.util import *


def parse_qty(text):
    """Parse a quantity."""
    return int(text.strip())


class Base:
    kind = "base"

    def describe(self):
        return self.kind


class Cart(Base):
    """A shopping cart."""
    limit: int = 10

    def __init__(self, owner):
        self.owner = owner
        self.items = []

    @property
    def size(self):
        return len(self.items)

    def add(self, item: Item, qty="1", *extra, strict=False, **opts):
        n = parse_qty(qty)
        item.validate()
        if item.price > 0 and item.__class__:
            self.items.append((item, n))
        helper = lambda: os.path.join("a", "b")

        def inner():
            return js.dumps(item.name)
        return inner()
`

func scanSample(t *testing.T) *Module {
	t.Helper()
	mod, err := NewScanner().Scan(context.Background(), []byte(samplePy), "shop/cart.py")
	require.NoError(t, err)
	return mod
}

func findFunc(mod *Module, qual string) *Function {
	for i := range mod.Functions {
		if mod.Functions[i].QualName == qual {
			return &mod.Functions[i]
		}
	}
	return nil
}

func TestScan_Functions(t *testing.T) {
	mod := scanSample(t)
	assert.False(t, mod.HasErrors)
	assert.Equal(t, "Inventory helpers.", mod.Docstring)

	var names []string
	for _, f := range mod.Functions {
		names = append(names, f.QualName)
	}
	assert.ElementsMatch(t, []string{
		"parse_qty", "Base.describe", "Cart.__init__", "Cart.size", "Cart.add", "inner",
	}, names)

	pq := findFunc(mod, "parse_qty")
	require.NotNil(t, pq)
	assert.Equal(t, 8, pq.StartLine)
	assert.Equal(t, 10, pq.EndLine)
	assert.Equal(t, "Parse a quantity.", pq.Docstring)
	assert.Equal(t, "", pq.Class)

	size := findFunc(mod, "Cart.size")
	require.NotNil(t, size)
	assert.Equal(t, "Cart", size.Class)
}

func TestScan_Params(t *testing.T) {
	add := findFunc(scanSample(t), "Cart.add")
	require.NotNil(t, add)

	require.Len(t, add.Params, 6)
	assert.Equal(t, Param{Name: "self", Kind: "positional", Members: []string{"items"}}, add.Params[0])
	assert.Equal(t, "item", add.Params[1].Name)
	assert.Equal(t, "Item", add.Params[1].Annotation)
	assert.Equal(t, []string{"validate", "price", "name"}, add.Params[1].Members)
	assert.Equal(t, "qty", add.Params[2].Name)
	assert.Equal(t, "var_positional", add.Params[3].Kind)
	assert.Equal(t, "extra", add.Params[3].Name)
	assert.Equal(t, "keyword_only", add.Params[4].Kind)
	assert.Equal(t, "strict", add.Params[4].Name)
	assert.Equal(t, "var_keyword", add.Params[5].Kind)
	assert.Equal(t, "opts", add.Params[5].Name)
}

func TestScan_CallsExcludeNestedDefs(t *testing.T) {
	mod := scanSample(t)
	add := findFunc(mod, "Cart.add")
	require.NotNil(t, add)

	var callees []string
	for _, c := range add.Calls {
		callees = append(callees, c.Callee)
	}
	assert.Equal(t, []string{"parse_qty", "item.validate", "self.items.append", "os.path.join", "inner"}, callees)
	assert.Equal(t, 33, add.Calls[0].Line)

	inner := findFunc(mod, "inner")
	require.NotNil(t, inner)
	require.Len(t, inner.Calls, 1)
	assert.Equal(t, "js.dumps", inner.Calls[0].Callee)
}

func TestScan_Classes(t *testing.T) {
	mod := scanSample(t)
	require.Len(t, mod.Classes, 2)

	base := mod.Classes[0]
	assert.Equal(t, "Base", base.Name)
	assert.Equal(t, []string{"kind", "describe"}, base.Members)
	assert.Equal(t, "class Base:\n    kind = \"base\"", base.Stub)

	cart := mod.Classes[1]
	assert.Equal(t, "Cart", cart.Name)
	assert.Equal(t, []string{"Base"}, cart.Bases)
	assert.Equal(t, "A shopping cart.", cart.Docstring)
	assert.Equal(t, []string{"limit", "owner", "items", "size", "add"}, cart.Members)
	assert.Equal(t, []string{"__init__", "size", "add"}, cart.Methods)
	assert.Contains(t, cart.Stub, "limit: int = 10")
	assert.NotContains(t, cart.Stub, "def add")
}

func TestScan_Imports(t *testing.T) {
	mod := scanSample(t)
	bound := make(map[string]Import)
	for _, imp := range mod.Imports {
		bound[imp.Bound()] = imp
	}
	assert.Equal(t, "os", bound["os"].Module)
	assert.Equal(t, "json", bound["js"].Module)
	assert.Equal(t, ".models", bound["Item"].Module)
	assert.Equal(t, "Store", bound["S"].Name)
	assert.Equal(t, "pkg.util", bound["*"].Module)
}

func TestScan_RecoversFromErrors(t *testing.T) {
	mod, err := NewScanner().Scan(context.Background(), []byte("def ok():\n    return 1\n\ndef broken(:\n"), "x.py")
	require.NoError(t, err)
	assert.True(t, mod.HasErrors)
	assert.NotNil(t, findFunc(mod, "ok"))
}

func TestScan_Limits(t *testing.T) {
	_, err := NewScanner(WithMaxFileSize(4)).Scan(context.Background(), []byte("x = 12345"), "big.py")
	assert.ErrorIs(t, err, ErrFileTooLarge)

	_, err = NewScanner().Scan(context.Background(), []byte{0xff, 0xfe}, "bin.py")
	assert.Error(t, err)
}

func TestScanFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.py")
	require.NoError(t, os.WriteFile(path, []byte("def f():\n    pass\n"), 0o644))
	mod, src, err := NewScanner().ScanFile(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, mod.Functions, 1)
	assert.NotEmpty(t, src)

	_, _, err = NewScanner().ScanFile(context.Background(), filepath.Join(t.TempDir(), "absent.py"))
	assert.Error(t, err)
}

func TestAssertLines(t *testing.T) {
	src := `from m import f

def test_a():
    assert f(1) == 1
    with open("x") as fh:
        assert fh
    s = "assert not counted"
    # assert not counted either
    assert (
        f(2) == 2
    )
`
	lines, err := AssertLines(context.Background(), []byte(src))
	require.NoError(t, err)
	assert.Equal(t, []int{4, 6, 9}, lines)
}

func TestAssertLines_SyntaxError(t *testing.T) {
	_, err := AssertLines(context.Background(), []byte("def test(:\n    assert 1\n"))
	assert.ErrorIs(t, err, ErrSyntax)
}

func TestCheckSyntax(t *testing.T) {
	issues, err := CheckSyntax(context.Background(), []byte("def f():\n    return 1\n"))
	require.NoError(t, err)
	assert.Empty(t, issues)

	issues, err = CheckSyntax(context.Background(), []byte("def f(:\n    return 1\n"))
	require.NoError(t, err)
	require.NotEmpty(t, issues)
	assert.Equal(t, 1, issues[0].Line)
	assert.Contains(t, issues[0].String(), "syntax-error")
}
