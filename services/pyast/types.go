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

import "errors"

var (
	// ErrFileTooLarge indicates the file exceeds the scanner size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrSyntax indicates the source does not parse cleanly.
	ErrSyntax = errors.New("python syntax error")
)

// Module is the scan result for one Python source file.
type Module struct {
	// Path is the file path as given to the scanner.
	Path string

	// Docstring is the module docstring, if any.
	Docstring string

	Functions []Function
	Classes   []Class
	Imports   []Import

	// HasErrors is true when tree-sitter recovered from syntax errors.
	HasErrors bool
}

// Function is a def (or async def) found anywhere in the module.
type Function struct {
	// Name is the bare def name.
	Name string

	// QualName is "Class.name" for methods directly in a class body,
	// otherwise Name.
	QualName string

	// Class is the enclosing class name for methods, "" otherwise.
	Class string

	// StartLine and EndLine are 1-indexed and inclusive; decorators are
	// not part of the span.
	StartLine int
	EndLine   int

	Docstring string
	Async     bool
	Params    []Param

	// Calls are the call sites in this function's own body, excluding
	// nested defs and classes, in source order.
	Calls []Call
}

// Param is one declared parameter.
type Param struct {
	Name string

	// Annotation is the type annotation text, "" when absent.
	Annotation string

	// Kind is "positional", "keyword_only", "var_positional" or "var_keyword".
	Kind string

	// Members are attribute names accessed on the parameter in the body,
	// excluding attributes every Python object has.
	Members []string
}

// Call is a call site.
type Call struct {
	// Line is the 1-indexed line of the call.
	Line int

	// Callee is the callee expression text, e.g. "helper", "self.run",
	// "os.path.join".
	Callee string
}

// Class is a class definition.
type Class struct {
	Name      string
	StartLine int
	EndLine   int
	Docstring string

	// Bases are the superclass expressions as written.
	Bases []string

	// Members are declared members: method names except __init__, self.x
	// assignments inside __init__, and class-level (annotated) assignments.
	Members []string

	// Stub is "class Name:" followed by the class body without methods.
	Stub string

	// Methods are the bare names of methods defined directly in the body.
	Methods []string
}

// Import is one imported name.
type Import struct {
	// Module is the module path ("os.path", ".sibling", "..pkg").
	Module string

	// Name is the imported name for "from m import name", "" for "import m".
	Name string

	// Alias is the "as" name, "" when absent.
	Alias string

	Line int
}

// Bound returns the name the import binds in the importing module.
func (i Import) Bound() string {
	switch {
	case i.Alias != "":
		return i.Alias
	case i.Name != "":
		return i.Name
	default:
		return i.Module
	}
}

// objectMembers are attributes every Python object exposes (dir(object)).
var objectMembers = map[string]bool{
	"__class__": true, "__delattr__": true, "__dir__": true, "__doc__": true,
	"__eq__": true, "__format__": true, "__ge__": true, "__getattribute__": true,
	"__getstate__": true, "__gt__": true, "__hash__": true, "__init__": true,
	"__init_subclass__": true, "__le__": true, "__lt__": true, "__ne__": true,
	"__new__": true, "__reduce__": true, "__reduce_ex__": true, "__repr__": true,
	"__setattr__": true, "__sizeof__": true, "__str__": true, "__subclasshook__": true,
}
