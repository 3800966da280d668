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
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/testsynth/services/coverage"
	"github.com/AleutianAI/testsynth/services/pyast"
)

// readmeName is the file whose contents describe a directory.
const readmeName = "README.md"

// skipDirs are directory names never descended into.
var skipDirs = map[string]bool{
	"__pycache__":   true,
	"node_modules":  true,
	"venv":          true,
	".venv":         true,
	"site-packages": true,
}

// BuildOptions configures Build.
type BuildOptions struct {
	// Root is the project root. Module names are computed relative to it.
	Root string

	// SourceDir is the directory to scan, relative to Root.
	SourceDir string

	// Exclude lists directory names skipped anywhere in the tree, typically
	// the generated test directory.
	Exclude []string

	// Scanner parses files. Default: pyast.NewScanner().
	Scanner *pyast.Scanner

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Build scans the source tree and links it into a Project.
//
// Description:
//
//	Walks Root for README files and SourceDir for Python files, scans each
//	file, then resolves imports, base classes, inherited members and call
//	edges. Files that fail to parse are skipped with a warning.
//
// Inputs:
//
//	ctx - Cancellation for the walk and the scans.
//	opts - Root and SourceDir are required.
//
// Outputs:
//
//	*Project - The linked project.
//	error - ErrSourceUnreadable when the tree cannot be walked, ErrNoSources
//	when it contains no Python files, or ctx.Err().
func Build(ctx context.Context, opts BuildOptions) (*Project, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	scanner := opts.Scanner
	if scanner == nil {
		scanner = pyast.NewScanner()
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnreadable, err)
	}
	srcDir := filepath.Join(root, opts.SourceDir)
	if info, err := os.Stat(srcDir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrSourceUnreadable, srcDir)
	}

	exclude := make(map[string]bool, len(opts.Exclude))
	for _, e := range opts.Exclude {
		exclude[e] = true
	}

	p := &Project{
		Root:      root,
		SourceDir: opts.SourceDir,
		byModule:  make(map[string]*File),
		functions: make(map[string]*Function),
	}
	dirs := make(map[string]*Dir)
	var paths []string

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			logger.Warn("skipping unreadable path", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || skipDirs[name] || exclude[name]) {
				return filepath.SkipDir
			}
			dir := &Dir{Path: path}
			if parent, ok := dirs[filepath.Dir(path)]; ok && path != root {
				dir.Parent = parent
				parent.children = append(parent.children, dir)
			}
			dirs[path] = dir
			return nil
		}
		switch {
		case d.Name() == readmeName:
			raw, err := os.ReadFile(path)
			if err != nil {
				logger.Warn("skipping unreadable README", "path", path, "error", err)
				return nil
			}
			dirs[filepath.Dir(path)].readme = string(raw)
		case strings.HasSuffix(path, ".py") && within(srcDir, path):
			paths = append(paths, path)
		}
		return nil
	})
	if walkErr != nil {
		if errors.Is(walkErr, context.Canceled) || errors.Is(walkErr, context.DeadlineExceeded) {
			return nil, walkErr
		}
		return nil, fmt.Errorf("%w: %v", ErrSourceUnreadable, walkErr)
	}
	p.root = dirs[root]

	for _, path := range paths {
		mod, content, err := scanner.ScanFile(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("skipping python file", "path", path, "error", err)
			continue
		}
		f := p.addFile(path, mod, content, logger)
		f.dir = dirs[filepath.Dir(path)]
	}
	if len(p.Files) == 0 {
		return nil, fmt.Errorf("%w under %s", ErrNoSources, srcDir)
	}

	for _, f := range p.Files {
		p.linkImports(f)
	}
	for _, c := range p.Classes() {
		p.linkBases(c)
	}
	for _, c := range p.Classes() {
		c.resolveFullMembers()
	}
	edges := 0
	for _, fn := range p.Functions() {
		edges += p.linkCalls(fn)
	}

	logger.Info("project graph built",
		"files", len(p.Files),
		"functions", len(p.functions),
		"classes", len(p.Classes()),
		"edges", edges)
	return p, nil
}

func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (p *Project) addFile(path string, mod *pyast.Module, content []byte, logger *slog.Logger) *File {
	rel, _ := filepath.Rel(p.Root, path)
	rel = filepath.ToSlash(rel)
	f := &File{
		Path:    path,
		RelPath: rel,
		Module:  coverage.ModuleName(rel),
		binds:   make(map[string]binding),
		project: p,
		imports: mod.Imports,
	}
	f.Imports = []*File{f}
	lines := strings.Split(strings.ReplaceAll(string(content), "\r\n", "\n"), "\n")

	for _, c := range mod.Classes {
		cls := &Class{
			File:      f,
			Name:      c.Name,
			FullName:  qualify(f.Module, c.Name),
			Docstring: c.Docstring,
			StartLine: c.StartLine,
			EndLine:   c.EndLine,
			Stub:      c.Stub,
			Members:   c.Members,
			bases:     c.Bases,
		}
		f.Classes = append(f.Classes, cls)
	}

	for _, fn := range mod.Functions {
		full := qualify(f.Module, fn.QualName)
		if _, dup := p.functions[full]; dup {
			logger.Debug("skipping duplicate function definition", "function", full, "line", fn.StartLine)
			continue
		}
		node := &Function{
			File:      f,
			Name:      fn.QualName,
			FullName:  full,
			StartLine: fn.StartLine,
			EndLine:   fn.EndLine,
			Code:      span(lines, fn.StartLine, fn.EndLine),
			Docstring: fn.Docstring,
			calls:     fn.Calls,
		}
		for _, prm := range fn.Params {
			node.Params = append(node.Params, &Param{
				Name:       prm.Name,
				Annotation: prm.Annotation,
				Kind:       prm.Kind,
				Members:    prm.Members,
			})
		}
		if fn.Class != "" {
			if cls := f.ClassByName(fn.Class); cls != nil {
				node.Class = cls
				cls.Methods = append(cls.Methods, node)
				if fn.Name == "__init__" {
					cls.Init = node
				}
			}
		}
		f.Functions = append(f.Functions, node)
		p.functions[full] = node
	}

	p.Files = append(p.Files, f)
	if _, taken := p.byModule[f.Module]; !taken {
		p.byModule[f.Module] = f
	}
	return f
}

func qualify(module, name string) string {
	if module == "" {
		return name
	}
	return module + "." + name
}

// span returns lines start..end (1-indexed, inclusive).
func span(lines []string, start, end int) string {
	if start < 1 {
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start > end {
		return ""
	}
	return strings.Join(lines[start-1:end], "\n")
}

// callCode returns the caller's source line at line, or NotFoundCallCode.
func callCode(caller *Function, line int) string {
	lines := strings.Split(caller.Code, "\n")
	idx := line - caller.StartLine
	if idx < 0 || idx >= len(lines) {
		return NotFoundCallCode
	}
	return lines[idx]
}

// addEdge records an edge: always in the callee's Used, in the caller's Uses
// only for the first edge to that callee.
func addEdge(caller, callee *Function, line int) *CallEdge {
	e := &CallEdge{Caller: caller, Callee: callee, Line: line, CallCode: callCode(caller, line)}
	callee.Used = append(callee.Used, e)
	for _, u := range caller.Uses {
		if u.Callee == callee {
			return e
		}
	}
	caller.Uses = append(caller.Uses, e)
	return e
}
