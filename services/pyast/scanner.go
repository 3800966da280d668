// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pyast extracts the structure testsynth needs from Python sources:
// functions with their parameters and call sites, classes with members and
// bases, imports, and the positions of assert statements in generated tests.
//
// Parsing uses tree-sitter, so scanning never executes or imports user code.
package pyast

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// DefaultMaxFileSize bounds the files the scanner will parse (10 MiB).
const DefaultMaxFileSize = 10 * 1024 * 1024

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithMaxFileSize overrides DefaultMaxFileSize.
func WithMaxFileSize(bytes int64) ScannerOption {
	return func(s *Scanner) {
		if bytes > 0 {
			s.maxFileSize = bytes
		}
	}
}

// Scanner parses Python files.
//
// Thread Safety: Safe for concurrent use; a tree-sitter parser is created
// per call.
type Scanner struct {
	maxFileSize int64
}

// NewScanner creates a Scanner.
func NewScanner(opts ...ScannerOption) *Scanner {
	s := &Scanner{maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScanFile reads and scans one file.
func (s *Scanner) ScanFile(ctx context.Context, path string) (*Module, []byte, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}
	mod, err := s.Scan(ctx, content, path)
	if err != nil {
		return nil, nil, err
	}
	return mod, content, nil
}

// Scan extracts functions, classes and imports from content.
//
// Description:
//
//	Parses with tree-sitter and walks the tree. Sources with recoverable
//	syntax errors are still scanned and flagged with HasErrors.
//
// Inputs:
//
//	ctx - Cancellation.
//	content - Python source.
//	path - Recorded in Module.Path only.
//
// Outputs:
//
//	*Module - The scan result.
//	error - ErrFileTooLarge, invalid UTF-8, or parser failure.
func (s *Scanner) Scan(ctx context.Context, content []byte, path string) (*Module, error) {
	if int64(len(content)) > s.maxFileSize {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrFileTooLarge, path, len(content))
	}
	if !utf8.Valid(content) {
		return nil, fmt.Errorf("%s: content is not valid UTF-8", path)
	}

	tree, err := parse(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	mod := &Module{Path: path, HasErrors: root.HasError()}
	if mod.HasErrors {
		slog.Debug("scanning python file with syntax errors", "path", path)
	}
	mod.Docstring = docstring(root, content)

	walk(root, func(n *sitter.Node) bool {
		switch n.Type() {
		case "class_definition":
			mod.Classes = append(mod.Classes, scanClass(n, content))
		case "function_definition":
			mod.Functions = append(mod.Functions, scanFunction(n, content))
		case "import_statement":
			mod.Imports = append(mod.Imports, scanImport(n, content)...)
		case "import_from_statement":
			mod.Imports = append(mod.Imports, scanImportFrom(n, content)...)
		}
		return true
	})
	return mod, nil
}

func parse(ctx context.Context, content []byte) (*sitter.Tree, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())
	return parser.ParseCtx(ctx, nil, content)
}

// walk visits n and its descendants depth-first in source order. Returning
// false from visit skips the node's children.
func walk(n *sitter.Node, visit func(*sitter.Node) bool) {
	if n == nil || !visit(n) {
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		walk(n.NamedChild(i), visit)
	}
}

func line(n *sitter.Node) int {
	return int(n.StartPoint().Row) + 1
}

func endLine(n *sitter.Node) int {
	return int(n.EndPoint().Row) + 1
}

// =============================================================================
// Functions
// =============================================================================

func scanFunction(n *sitter.Node, src []byte) Function {
	fn := Function{
		StartLine: line(n),
		EndLine:   endLine(n),
	}
	if name := n.ChildByFieldName("name"); name != nil {
		fn.Name = name.Content(src)
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.Child(i).Type() == "async" {
			fn.Async = true
			break
		}
	}
	fn.QualName = fn.Name
	if cls := enclosingClass(n); cls != nil {
		if name := cls.ChildByFieldName("name"); name != nil {
			fn.Class = name.Content(src)
			fn.QualName = fn.Class + "." + fn.Name
		}
	}

	body := n.ChildByFieldName("body")
	fn.Docstring = docstring(body, src)
	fn.Params = scanParams(n.ChildByFieldName("parameters"), src)
	attachMembers(fn.Params, n, src)
	fn.Calls = scanCalls(body, src)
	return fn
}

// enclosingClass returns the class whose body directly holds the def, or nil.
func enclosingClass(def *sitter.Node) *sitter.Node {
	parent := def.Parent()
	if parent != nil && parent.Type() == "decorated_definition" {
		parent = parent.Parent()
	}
	if parent == nil || parent.Type() != "block" {
		return nil
	}
	if gp := parent.Parent(); gp != nil && gp.Type() == "class_definition" {
		return gp
	}
	return nil
}

func scanParams(params *sitter.Node, src []byte) []Param {
	if params == nil {
		return nil
	}
	var out []Param
	keywordOnly := false
	kind := func() string {
		if keywordOnly {
			return "keyword_only"
		}
		return "positional"
	}

	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		switch p.Type() {
		case "identifier":
			out = append(out, Param{Name: p.Content(src), Kind: kind()})
		case "default_parameter":
			if name := p.ChildByFieldName("name"); name != nil {
				out = append(out, Param{Name: name.Content(src), Kind: kind()})
			}
		case "typed_parameter", "typed_default_parameter":
			param := Param{Kind: kind()}
			if t := p.ChildByFieldName("type"); t != nil {
				param.Annotation = t.Content(src)
			}
			target := p.ChildByFieldName("name")
			if target == nil && p.NamedChildCount() > 0 {
				target = p.NamedChild(0)
			}
			if target == nil {
				continue
			}
			switch target.Type() {
			case "list_splat_pattern":
				param.Kind = "var_positional"
				keywordOnly = true
			case "dictionary_splat_pattern":
				param.Kind = "var_keyword"
			}
			param.Name = splatName(target, src)
			out = append(out, param)
		case "list_splat_pattern":
			out = append(out, Param{Name: splatName(p, src), Kind: "var_positional"})
			keywordOnly = true
		case "dictionary_splat_pattern":
			out = append(out, Param{Name: splatName(p, src), Kind: "var_keyword"})
		case "keyword_separator":
			keywordOnly = true
		}
	}
	return out
}

func splatName(n *sitter.Node, src []byte) string {
	if n.Type() == "identifier" {
		return n.Content(src)
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() == "identifier" {
			return c.Content(src)
		}
	}
	return strings.TrimLeft(n.Content(src), "*")
}

// attachMembers records attribute names accessed on each parameter.
func attachMembers(params []Param, fn *sitter.Node, src []byte) {
	if len(params) == 0 {
		return
	}
	index := make(map[string]int, len(params))
	for i, p := range params {
		index[p.Name] = i
	}
	seen := make(map[string]map[string]bool)

	walk(fn.ChildByFieldName("body"), func(n *sitter.Node) bool {
		if n.Type() != "attribute" {
			return true
		}
		obj := n.ChildByFieldName("object")
		attr := n.ChildByFieldName("attribute")
		if obj == nil || attr == nil || obj.Type() != "identifier" {
			return true
		}
		i, ok := index[obj.Content(src)]
		name := attr.Content(src)
		if !ok || objectMembers[name] {
			return true
		}
		p := params[i].Name
		if seen[p] == nil {
			seen[p] = make(map[string]bool)
		}
		if !seen[p][name] {
			seen[p][name] = true
			params[i].Members = append(params[i].Members, name)
		}
		return true
	})
}

// scanCalls collects calls in body, not descending into nested scopes.
func scanCalls(body *sitter.Node, src []byte) []Call {
	var calls []Call
	walk(body, func(n *sitter.Node) bool {
		switch n.Type() {
		case "function_definition", "class_definition":
			return false
		case "call":
			fn := n.ChildByFieldName("function")
			if fn != nil && (fn.Type() == "identifier" || fn.Type() == "attribute") {
				calls = append(calls, Call{Line: line(n), Callee: fn.Content(src)})
			}
		}
		return true
	})
	return calls
}

// =============================================================================
// Classes
// =============================================================================

func scanClass(n *sitter.Node, src []byte) Class {
	cls := Class{StartLine: line(n), EndLine: endLine(n)}
	if name := n.ChildByFieldName("name"); name != nil {
		cls.Name = name.Content(src)
	}
	if supers := n.ChildByFieldName("superclasses"); supers != nil {
		for i := 0; i < int(supers.NamedChildCount()); i++ {
			base := supers.NamedChild(i)
			if base.Type() == "keyword_argument" {
				continue
			}
			cls.Bases = append(cls.Bases, base.Content(src))
		}
	}

	body := n.ChildByFieldName("body")
	cls.Docstring = docstring(body, src)

	var stub strings.Builder
	stub.WriteString("class " + cls.Name + ":\n")
	var stubLines []string
	if body != nil {
		for i := 0; i < int(body.NamedChildCount()); i++ {
			stmt := body.NamedChild(i)
			def := stmt
			if stmt.Type() == "decorated_definition" {
				if d := stmt.ChildByFieldName("definition"); d != nil {
					def = d
				}
			}
			switch def.Type() {
			case "function_definition":
				name := ""
				if nm := def.ChildByFieldName("name"); nm != nil {
					name = nm.Content(src)
				}
				cls.Methods = append(cls.Methods, name)
				if name == "__init__" {
					cls.Members = append(cls.Members, selfAssignments(def, src)...)
				} else if name != "" {
					cls.Members = append(cls.Members, name)
				}
			case "expression_statement":
				cls.Members = append(cls.Members, assignedNames(def, src)...)
				stubLines = append(stubLines, "    "+stmt.Content(src))
			default:
				stubLines = append(stubLines, "    "+stmt.Content(src))
			}
		}
	}
	stub.WriteString(strings.Join(stubLines, "\n"))
	cls.Stub = stub.String()
	return cls
}

// selfAssignments returns x for each top-level "self.x = ..." in __init__.
func selfAssignments(init *sitter.Node, src []byte) []string {
	body := init.ChildByFieldName("body")
	if body == nil {
		return nil
	}
	var names []string
	for i := 0; i < int(body.NamedChildCount()); i++ {
		stmt := body.NamedChild(i)
		if stmt.Type() != "expression_statement" || stmt.NamedChildCount() == 0 {
			continue
		}
		assign := stmt.NamedChild(0)
		if assign.Type() != "assignment" {
			continue
		}
		left := assign.ChildByFieldName("left")
		if left == nil || left.Type() != "attribute" {
			continue
		}
		obj := left.ChildByFieldName("object")
		attr := left.ChildByFieldName("attribute")
		if obj != nil && attr != nil && obj.Content(src) == "self" {
			names = append(names, attr.Content(src))
		}
	}
	return names
}

// assignedNames returns plain identifier targets of a class-level assignment.
func assignedNames(stmt *sitter.Node, src []byte) []string {
	if stmt.NamedChildCount() == 0 {
		return nil
	}
	assign := stmt.NamedChild(0)
	if assign.Type() != "assignment" {
		return nil
	}
	left := assign.ChildByFieldName("left")
	if left == nil || left.Type() != "identifier" {
		return nil
	}
	return []string{left.Content(src)}
}

// =============================================================================
// Imports
// =============================================================================

func scanImport(n *sitter.Node, src []byte) []Import {
	var out []Import
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "dotted_name":
			out = append(out, Import{Module: c.Content(src), Line: line(n)})
		case "aliased_import":
			imp := Import{Line: line(n)}
			if name := c.ChildByFieldName("name"); name != nil {
				imp.Module = name.Content(src)
			}
			if alias := c.ChildByFieldName("alias"); alias != nil {
				imp.Alias = alias.Content(src)
			}
			out = append(out, imp)
		}
	}
	return out
}

func scanImportFrom(n *sitter.Node, src []byte) []Import {
	module := ""
	m := n.ChildByFieldName("module_name")
	if m != nil {
		module = m.Content(src)
	}
	var out []Import
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if m != nil && c.StartByte() == m.StartByte() && c.EndByte() == m.EndByte() {
			continue
		}
		switch c.Type() {
		case "dotted_name":
			out = append(out, Import{Module: module, Name: c.Content(src), Line: line(n)})
		case "aliased_import":
			imp := Import{Module: module, Line: line(n)}
			if name := c.ChildByFieldName("name"); name != nil {
				imp.Name = name.Content(src)
			}
			if alias := c.ChildByFieldName("alias"); alias != nil {
				imp.Alias = alias.Content(src)
			}
			out = append(out, imp)
		case "wildcard_import":
			out = append(out, Import{Module: module, Name: "*", Line: line(n)})
		}
	}
	return out
}

// =============================================================================
// Docstrings
// =============================================================================

// docstring returns the leading string statement of block, unquoted.
func docstring(block *sitter.Node, src []byte) string {
	if block == nil || block.NamedChildCount() == 0 {
		return ""
	}
	first := block.NamedChild(0)
	if first.Type() != "expression_statement" || first.NamedChildCount() == 0 {
		return ""
	}
	str := first.NamedChild(0)
	if str.Type() != "string" {
		return ""
	}
	raw := strings.TrimLeft(str.Content(src), "rRuUbB")
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(raw, q) && strings.HasSuffix(raw, q) && len(raw) >= 2*len(q) {
			return raw[len(q) : len(raw)-len(q)]
		}
	}
	return raw
}
