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
	"fmt"
	"sort"

	sitter "github.com/smacker/go-tree-sitter"
)

// AssertLines returns the 1-indexed start line of every assert statement,
// sorted ascending.
//
// Description:
//
//	Structural scan: asserts inside strings or comments are not counted,
//	and multi-line asserts report the line of the assert keyword.
//
// Outputs:
//
//	[]int - Assert lines, empty when there are none.
//	error - ErrSyntax when the source does not parse cleanly.
func AssertLines(ctx context.Context, src []byte) ([]int, error) {
	tree, err := parse(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, ErrSyntax
	}

	var lines []int
	walk(root, func(n *sitter.Node) bool {
		if n.Type() == "assert_statement" {
			lines = append(lines, line(n))
		}
		return true
	})
	sort.Ints(lines)
	return lines, nil
}

// SyntaxIssue is one parse error location.
type SyntaxIssue struct {
	Line    int
	Column  int
	Message string
}

// String renders the issue in pylint's "line:col: message" shape.
func (i SyntaxIssue) String() string {
	return fmt.Sprintf("%d:%d: %s", i.Line, i.Column, i.Message)
}

// CheckSyntax reports ERROR and MISSING nodes in src.
//
// Outputs:
//
//	[]SyntaxIssue - Empty when src parses cleanly.
//	error - Parser failure (not a syntax error).
func CheckSyntax(ctx context.Context, src []byte) ([]SyntaxIssue, error) {
	tree, err := parse(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if !root.HasError() {
		return nil, nil
	}

	var issues []SyntaxIssue
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		if n == nil {
			return
		}
		switch {
		case n.IsMissing():
			issues = append(issues, SyntaxIssue{
				Line:    line(n),
				Column:  int(n.StartPoint().Column) + 1,
				Message: "syntax-error: missing " + n.Type(),
			})
			return
		case n.Type() == "ERROR":
			issues = append(issues, SyntaxIssue{
				Line:    line(n),
				Column:  int(n.StartPoint().Column) + 1,
				Message: "syntax-error: invalid syntax",
			})
			return
		}
		if !n.HasError() {
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			visit(n.Child(i))
		}
	}
	visit(root)
	if len(issues) == 0 {
		issues = append(issues, SyntaxIssue{Line: 1, Column: 1, Message: "syntax-error: invalid syntax"})
	}
	return issues, nil
}
