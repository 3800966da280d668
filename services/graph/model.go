// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph models a Python project as files, classes and functions
// joined by call edges, and produces the natural-language summaries the test
// generator works from.
//
// # Lifecycle
//
//  1. Build scans the source tree and resolves calls and inheritance.
//  2. A Summarizer fills in README, behavior, intent, merged, class and
//     parameter summaries, phase by phase.
//  3. Readers (the generator, the retrieval index) read summaries through
//     the accessor methods.
//
// # Thread Safety
//
// The structure (files, classes, functions, edges) is immutable after Build.
// Summary fields are guarded per node and may be read and written from
// multiple goroutines.
package graph

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/AleutianAI/testsynth/services/pyast"
)

// Sentinel errors for graph operations.
var (
	// ErrNoSources is returned when the source directory holds no Python files.
	ErrNoSources = errors.New("no python source files found")

	// ErrSourceUnreadable is returned when the source tree cannot be walked.
	ErrSourceUnreadable = errors.New("source tree unreadable")
)

// NotFoundCallCode is the call-site text for an edge whose line lies
// outside the caller's span.
const NotFoundCallCode = "Not found"

// Project is the analyzed project.
type Project struct {
	// Root is the absolute project root; module names are relative to it.
	Root string

	// SourceDir is the scanned directory, relative to Root.
	SourceDir string

	// Files in lexical path order.
	Files []*File

	byModule  map[string]*File
	functions map[string]*Function
	root      *Dir
}

// File is one Python source file.
type File struct {
	// Path is the absolute file path.
	Path string

	// RelPath is Path relative to Project.Root, slash separated.
	RelPath string

	// Module is the dotted module name.
	Module string

	// Imports are the project files this file imports, the file itself first.
	Imports []*File

	Classes   []*Class
	Functions []*Function

	dir     *Dir
	imports []pyast.Import
	binds   map[string]binding
	stars   []*File
	project *Project
}

// Class is a class definition.
type Class struct {
	File      *File
	Name      string
	FullName  string
	Docstring string
	StartLine int
	EndLine   int

	// Stub is the class header plus its non-method body statements.
	Stub string

	// Members are declared members; FullMembers adds every ancestor's.
	Members     []string
	FullMembers map[string]bool

	// Parents are the resolved project base classes in declaration order.
	Parents []*Class

	Methods []*Function
	Init    *Function

	bases []string

	mu       sync.RWMutex
	summary  *string
	howToUse *string
	vector   []float32
}

// Function is a def found anywhere in a file.
type Function struct {
	File  *File
	Class *Class

	// Name is "Class.method" for methods, the bare name otherwise.
	Name string

	// FullName is "<module>.<Name>".
	FullName string

	StartLine int
	EndLine   int
	Code      string
	Docstring string
	Params    []*Param

	// Uses holds one edge per distinct callee in call-site order.
	Uses []*CallEdge

	// Used holds every edge that targets this function.
	Used []*CallEdge

	calls []pyast.Call

	mu       sync.RWMutex
	behavior *string
	intent   *string
	summary  *string
	judge    *string
}

// CallEdge is a resolved call from Caller to Callee.
type CallEdge struct {
	Caller *Function
	Callee *Function
	Line   int

	// CallCode is the literal source line of the call, or NotFoundCallCode.
	CallCode string
}

// Param is a declared parameter of a function.
type Param struct {
	Name       string
	Annotation string
	Kind       string

	// Members are attributes the body accesses on the parameter.
	Members []string

	mu        sync.Mutex
	typeKind  paramKind
	meaning   string
	extracted string
}

// =============================================================================
// Project lookups
// =============================================================================

// FileByModule returns the file with the given module name, or nil.
func (p *Project) FileByModule(module string) *File {
	return p.byModule[module]
}

// Function returns the function with the given full name, or nil.
func (p *Project) Function(fullName string) *Function {
	return p.functions[fullName]
}

// Functions returns every function in file order.
func (p *Project) Functions() []*Function {
	var out []*Function
	for _, f := range p.Files {
		out = append(out, f.Functions...)
	}
	return out
}

// Classes returns every class in file order.
func (p *Project) Classes() []*Class {
	var out []*Class
	for _, f := range p.Files {
		out = append(out, f.Classes...)
	}
	return out
}

// Dirs returns the directory tree in pre-order.
func (p *Project) Dirs() []*Dir {
	var out []*Dir
	var visit func(d *Dir)
	visit = func(d *Dir) {
		if d == nil {
			return
		}
		out = append(out, d)
		for _, c := range d.children {
			visit(c)
		}
	}
	visit(p.root)
	return out
}

// FunctionByName returns the function named name ("Class.method" or bare).
func (f *File) FunctionByName(name string) *Function {
	for _, fn := range f.Functions {
		if fn.Name == name {
			return fn
		}
	}
	return nil
}

// ClassByName returns the class declared in f with the given name, or nil.
func (f *File) ClassByName(name string) *Class {
	for _, c := range f.Classes {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Readme returns the summary of the nearest README at or above the file's
// directory.
func (f *File) Readme() (string, bool) {
	return f.dir.NearestReadme()
}

// =============================================================================
// Function summaries
// =============================================================================

// Behavior returns the memoized "what it does" summary.
func (f *Function) Behavior() (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return deref(f.behavior)
}

// Intent returns the "what it is meant to do" summary.
func (f *Function) Intent() (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return deref(f.intent)
}

// Summary returns the merged summary.
func (f *Function) Summary() (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return deref(f.summary)
}

// Judge returns the example-call judgement.
func (f *Function) Judge() (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return deref(f.judge)
}

func deref(p *string) (string, bool) {
	if p == nil {
		return "", false
	}
	return *p, true
}

// setOnce stores v into *dst unless already set and returns the stored value.
func (f *Function) setOnce(dst **string, v string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if *dst == nil {
		*dst = &v
	}
	return **dst
}

// ParamTypes returns the type label extracted for each parameter, keyed by
// name. Parameters not yet judged are omitted.
func (f *Function) ParamTypes() map[string]string {
	out := make(map[string]string, len(f.Params))
	for _, p := range f.Params {
		p.mu.Lock()
		if p.extracted != "" {
			out[p.Name] = p.extracted
		}
		p.mu.Unlock()
	}
	return out
}

// SourceContext renders the function for prompts: the class stub and
// __init__ (with its summary) for methods, then the function's own summary
// and judgement as docstrings, then its code.
func (f *Function) SourceContext() string {
	var b strings.Builder
	if f.Class != nil {
		b.WriteString(f.Class.Stub + "\n")
		if init := f.Class.Init; init != nil {
			if s, ok := init.Summary(); ok {
				b.WriteString(quoteDoc(s))
			}
			b.WriteString(init.Code + "\n\n")
		}
	}
	if s, ok := f.Summary(); ok {
		b.WriteString(quoteDoc(s))
	}
	if j, ok := f.Judge(); ok {
		b.WriteString(quoteDoc(j))
	}
	b.WriteString(f.Code)
	return b.String()
}

// CodeWithSummary renders the merged summary as a docstring above the code.
func (f *Function) CodeWithSummary() string {
	s, _ := f.Summary()
	return fmt.Sprintf("\n\"\"\"\n%s\n\"\"\"\n%s\n", s, f.Code)
}

// Document is the retrieval document for the function: its code and first
// accepted test when one exists, its source context otherwise.
func (f *Function) Document(firstTest string) string {
	if firstTest == "" {
		return f.SourceContext()
	}
	return fmt.Sprintf("%s code:\n%s\n\ntest case:\n%s\n", f.FullName, f.Code, firstTest)
}

func quoteDoc(s string) string {
	return "\"\"\"\n" + s + "\n\"\"\"\n"
}

// =============================================================================
// Class summaries
// =============================================================================

// Summary returns the class summary.
func (c *Class) Summary() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return deref(c.summary)
}

// HowToUse returns the usage guide.
func (c *Class) HowToUse() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return deref(c.howToUse)
}

// Vector returns the embedding of the class summary, nil until embedded.
func (c *Class) Vector() []float32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vector
}

func (c *Class) set(dst **string, v string) {
	c.mu.Lock()
	*dst = &v
	c.mu.Unlock()
}

func (c *Class) setVector(v []float32) {
	c.mu.Lock()
	c.vector = v
	c.mu.Unlock()
}

// CodeWithSummary renders the class stub followed by every method's summary
// and code.
func (c *Class) CodeWithSummary() string {
	var b strings.Builder
	b.WriteString("# mod: " + c.File.Module)
	b.WriteString(c.Stub)
	for _, m := range c.Methods {
		b.WriteString(m.CodeWithSummary() + "\n")
	}
	return b.String()
}

// SuitMembers counts how many of members the class has, inherited included.
func (c *Class) SuitMembers(members []string) int {
	n := 0
	for _, m := range members {
		if c.FullMembers[m] {
			n++
		}
	}
	return n
}

// Ancestors returns every transitive base class, nearest first. The class
// itself is never included, even through a cycle.
func (c *Class) Ancestors() []*Class {
	seen := map[*Class]bool{c: true}
	var out []*Class
	queue := append([]*Class(nil), c.Parents...)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if seen[next] {
			continue
		}
		seen[next] = true
		out = append(out, next)
		queue = append(queue, next.Parents...)
	}
	return out
}

// FindMethod looks a method up on the class, then its ancestors.
func (c *Class) FindMethod(name string) *Function {
	for _, cls := range append([]*Class{c}, c.Ancestors()...) {
		for _, m := range cls.Methods {
			if m.Name == cls.Name+"."+name {
				return m
			}
		}
	}
	return nil
}

func (c *Class) resolveFullMembers() {
	c.FullMembers = make(map[string]bool, len(c.Members))
	for _, m := range c.Members {
		c.FullMembers[m] = true
	}
	for _, a := range c.Ancestors() {
		for _, m := range a.Members {
			c.FullMembers[m] = true
		}
	}
}
