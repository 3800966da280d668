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
	"strings"
)

// binding is what a name resolves to in a file's scope. Exactly one field is
// set.
type binding struct {
	file  *File
	fn    *Function
	class *Class
}

func (b binding) empty() bool {
	return b.file == nil && b.fn == nil && b.class == nil
}

// resolveModule finds the project file for a dotted module name. Exact
// matches win; otherwise a unique suffix match is accepted so that imports
// written relative to a source root still resolve.
func (p *Project) resolveModule(name string) *File {
	if name == "" {
		return nil
	}
	if f, ok := p.byModule[name]; ok {
		return f
	}
	var found *File
	for mod, f := range p.byModule {
		if strings.HasSuffix(mod, "."+name) {
			if found != nil {
				return nil
			}
			found = f
		}
	}
	return found
}

// absoluteModule turns a possibly relative import module into a dotted name.
func absoluteModule(f *File, module string) string {
	level := len(module) - len(strings.TrimLeft(module, "."))
	if level == 0 {
		return module
	}
	var pkg []string
	if f.Module != "" {
		pkg = strings.Split(f.Module, ".")
	}
	if !strings.HasSuffix(f.RelPath, "__init__.py") && len(pkg) > 0 {
		pkg = pkg[:len(pkg)-1]
	}
	up := level - 1
	if up > len(pkg) {
		return ""
	}
	pkg = pkg[:len(pkg)-up]
	if rest := module[level:]; rest != "" {
		pkg = append(pkg, strings.Split(rest, ".")...)
	}
	return strings.Join(pkg, ".")
}

// topLevel looks up a module-scope function or class by name.
func (f *File) topLevel(name string) binding {
	for _, fn := range f.Functions {
		if fn.Class == nil && fn.Name == name {
			return binding{fn: fn}
		}
	}
	if c := f.ClassByName(name); c != nil {
		return binding{class: c}
	}
	return binding{}
}

func (p *Project) linkImports(f *File) {
	seen := map[*File]bool{f: true}
	addImport := func(target *File) {
		if target != nil && !seen[target] {
			seen[target] = true
			f.Imports = append(f.Imports, target)
		}
	}

	for _, imp := range f.imports {
		module := absoluteModule(f, imp.Module)
		switch {
		case imp.Name == "":
			target := p.resolveModule(module)
			if target == nil {
				continue
			}
			addImport(target)
			f.binds[imp.Bound()] = binding{file: target}
		case imp.Name == "*":
			if target := p.resolveModule(module); target != nil {
				addImport(target)
				f.stars = append(f.stars, target)
			}
		default:
			if target := p.resolveModule(module); target != nil {
				addImport(target)
				if b := target.topLevel(imp.Name); !b.empty() {
					f.binds[imp.Bound()] = b
					continue
				}
			}
			if sub := p.resolveModule(qualify(module, imp.Name)); sub != nil {
				addImport(sub)
				f.binds[imp.Bound()] = binding{file: sub}
			}
		}
	}
}

// lookup resolves a bare name in f's module scope.
func (f *File) lookup(name string) binding {
	if b := f.topLevel(name); !b.empty() {
		return b
	}
	if b, ok := f.binds[name]; ok {
		return b
	}
	for _, star := range f.stars {
		if b := star.topLevel(name); !b.empty() {
			return b
		}
	}
	return binding{}
}

// resolveDotted resolves an expression such as "mod.Class.method" from f.
// The longest bound prefix wins; the remainder is resolved as attributes.
func (f *File) resolveDotted(expr string) binding {
	parts := strings.Split(expr, ".")
	for i := len(parts); i >= 1; i-- {
		head := strings.Join(parts[:i], ".")
		var b binding
		if i == 1 {
			b = f.lookup(head)
		} else if bound, ok := f.binds[head]; ok {
			b = bound
		}
		if b.empty() {
			continue
		}
		if resolved := descend(b, parts[i:]); !resolved.empty() {
			return resolved
		}
	}
	return binding{}
}

// descend resolves attribute access rest on b.
func descend(b binding, rest []string) binding {
	for _, attr := range rest {
		switch {
		case b.file != nil:
			b = b.file.topLevel(attr)
		case b.class != nil:
			m := b.class.FindMethod(attr)
			if m == nil {
				return binding{}
			}
			b = binding{fn: m}
		default:
			return binding{}
		}
		if b.empty() {
			return b
		}
	}
	return b
}

func (p *Project) linkBases(c *Class) {
	for _, base := range c.bases {
		b := c.File.resolveDotted(base)
		if b.class == nil || b.class == c {
			continue
		}
		c.Parents = append(c.Parents, b.class)
	}
}

// resolveCall maps a callee expression in fn's body to a project function.
// Class calls resolve to the class's __init__.
func (p *Project) resolveCall(fn *Function, callee string) *Function {
	var b binding
	head, rest, dotted := strings.Cut(callee, ".")
	switch {
	case dotted && (head == "self" || head == "cls") && fn.Class != nil && !strings.Contains(rest, "."):
		if m := fn.Class.FindMethod(rest); m != nil {
			return m
		}
		return nil
	case dotted && head == "super()" && fn.Class != nil && !strings.Contains(rest, "."):
		for _, a := range fn.Class.Ancestors() {
			if m := a.FindMethod(rest); m != nil {
				return m
			}
		}
		return nil
	default:
		b = fn.File.resolveDotted(callee)
	}
	switch {
	case b.fn != nil:
		return b.fn
	case b.class != nil:
		return b.class.FindMethod("__init__")
	}
	return nil
}

// linkCalls resolves fn's call sites into edges and returns how many were
// added.
func (p *Project) linkCalls(fn *Function) int {
	n := 0
	for _, call := range fn.calls {
		callee := p.resolveCall(fn, call.Callee)
		if callee == nil {
			continue
		}
		addEdge(fn, callee, call.Line)
		n++
	}
	return n
}
