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
	"strings"

	"github.com/AleutianAI/testsynth/services/retrieval"
)

// Parameter type help texts for non-user types.
const (
	BuiltinTypeHelp    = "build-in type"
	ThirdPartyTypeHelp = "third-party type"
	UnknownTypeHelp    = "unknown type"
)

// nearestClasses is how many candidate classes a user-defined parameter is
// described with.
const nearestClasses = 3

type paramKind int

const (
	kindUnjudged paramKind = iota
	kindBuiltin
	kindThirdParty
	kindUserDefined
	kindUndetermined
)

func (k paramKind) label() string {
	switch k {
	case kindBuiltin:
		return "builtin"
	case kindThirdParty:
		return "third-party"
	case kindUserDefined:
		return "user-defined"
	default:
		return "unknown"
	}
}

// parseKind reads the oracle's classification tag.
func parseKind(answer string) paramKind {
	switch {
	case strings.Contains(answer, "<1>"):
		return kindBuiltin
	case strings.Contains(answer, "<2>"):
		return kindThirdParty
	default:
		return kindUserDefined
	}
}

// JudgeParams asks the oracle for example calls of f, given per-parameter
// type help, and stores the answer as f's judgement.
//
// Description:
//
//	Does nothing when f has no parameters or already has a judgement. A
//	declined request leaves the judgement unset so a later round retries;
//	per-parameter classifications are kept either way.
func (s *Summarizer) JudgeParams(ctx context.Context, f *Function) {
	if _, ok := f.Judge(); ok || len(f.Params) == 0 {
		return
	}
	var b strings.Builder
	b.WriteString(judgeParamsPrompt(f.SourceContext()))
	for _, p := range f.Params {
		b.WriteString(paramHelpEntry(p.Name, s.typeHelp(ctx, f, p)))
	}
	if res := s.ask(ctx, "judge_params", judgeParamsSystem, b.String()); res.Answered() {
		f.setOnce(&f.judge, res.Text())
	}
}

// typeHelp describes the type of p for the judge prompt.
func (s *Summarizer) typeHelp(ctx context.Context, f *Function, p *Param) string {
	if p.Annotation != "" {
		p.setExtracted(p.Annotation)
		for _, file := range f.File.Imports {
			for _, c := range file.Classes {
				if p.Annotation == c.Name || strings.Contains(p.Annotation, "["+c.Name+"]") {
					guide, _ := c.HowToUse()
					return guide
				}
			}
		}
		return p.Annotation
	}

	kind := s.judgeType(ctx, f, p)
	p.setExtracted(kind.label())
	switch kind {
	case kindBuiltin:
		return BuiltinTypeHelp
	case kindThirdParty:
		return ThirdPartyTypeHelp
	case kindUserDefined:
		return s.userTypeHelp(ctx, f, p)
	default:
		return UnknownTypeHelp
	}
}

func (s *Summarizer) judgeType(ctx context.Context, f *Function, p *Param) paramKind {
	p.mu.Lock()
	kind := p.typeKind
	p.mu.Unlock()
	if kind != kindUnjudged {
		return kind
	}
	summary, _ := f.Summary()
	res := s.ask(ctx, "judge_type", judgeTypeSystem, judgeTypePrompt(p.Name, summary, f.Code))
	if res.Answered() {
		kind = parseKind(res.Text())
	} else {
		kind = kindUndetermined
	}
	p.mu.Lock()
	p.typeKind = kind
	p.mu.Unlock()
	return kind
}

// userTypeHelp infers the role of p's class, then returns the usage guides
// of the nearest classes among those sharing the most members with p.
func (s *Summarizer) userTypeHelp(ctx context.Context, f *Function, p *Param) string {
	p.mu.Lock()
	meaning := p.meaning
	p.mu.Unlock()
	if meaning == "" {
		summary, _ := f.Summary()
		meaning = s.ask(ctx, "param_meaning", meaningSystem, meaningPrompt(p.Name, summary, f.Code)).Text()
		p.mu.Lock()
		p.meaning = meaning
		p.mu.Unlock()
	}

	candidates := filterByMembers(f.File.project.Classes(), p.Members)
	picked := s.rankClasses(ctx, meaning, candidates)

	var b strings.Builder
	var names []string
	for _, c := range picked {
		guide, _ := c.HowToUse()
		b.WriteString(c.File.Module + "\n" + guide + "\n")
		names = append(names, c.FullName)
	}
	if len(names) > 0 {
		p.setExtracted(kindUserDefined.label() + ": " + strings.Join(names, ", "))
	}
	return b.String()
}

// rankClasses orders candidates by similarity to meaning and keeps the top
// few. Without an embedder, or when embedding fails, declaration order is
// kept.
func (s *Summarizer) rankClasses(ctx context.Context, meaning string, candidates []*Class) []*Class {
	fallback := candidates
	if len(fallback) > nearestClasses {
		fallback = fallback[:nearestClasses]
	}
	if s.embedder == nil || meaning == "" || len(candidates) == 0 {
		return fallback
	}
	query, err := s.embedder.Embed(ctx, meaning)
	if err != nil {
		s.logger.Warn("embedding parameter meaning failed", "error", err)
		return fallback
	}
	byName := make(map[string]*Class, len(candidates))
	vectors := make(map[string][]float32, len(candidates))
	order := make([]string, 0, len(candidates))
	for _, c := range candidates {
		byName[c.FullName] = c
		vectors[c.FullName] = c.Vector()
		order = append(order, c.FullName)
	}
	ids, err := retrieval.Nearest(ctx, query, vectors, order, nearestClasses)
	if err != nil || len(ids) == 0 {
		return fallback
	}
	out := make([]*Class, 0, len(ids))
	for _, id := range ids {
		out = append(out, byName[id])
	}
	return out
}

// filterByMembers keeps the classes with the highest member overlap.
func filterByMembers(classes []*Class, members []string) []*Class {
	best := 0
	var out []*Class
	for _, c := range classes {
		score := c.SuitMembers(members)
		switch {
		case score > best:
			best = score
			out = []*Class{c}
		case score == best:
			out = append(out, c)
		}
	}
	return out
}

func (p *Param) setExtracted(v string) {
	p.mu.Lock()
	p.extracted = v
	p.mu.Unlock()
}
