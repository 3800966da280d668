// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/AleutianAI/testsynth/services/stats"
)

// Percent returns covered as a percentage of covered+uncovered, or 0.
func Percent(covered, uncovered int) float64 {
	total := covered + uncovered
	if total == 0 {
		return 0
	}
	return float64(covered) * 100 / float64(total)
}

// RunSummary writes the end-of-run report for s to w. path is where the
// summary file was written; empty omits the line.
func RunSummary(w io.Writer, s *stats.RunSummary, path string) {
	if GetPersonality() == PersonalityMachine {
		machineSummary(w, s, path)
		return
	}

	fmt.Fprintln(w, Styles.Title.Render(fmt.Sprintf("Run %s", s.RunID))+
		Styles.Muted.Render(fmt.Sprintf("  %s  %.1fs", s.Project, s.Time)))
	fmt.Fprintln(w, roundsTable(s.Rounds))
	fmt.Fprintln(w, Styles.Box.Render(countersView(s.Total)))
	if len(s.PhaseOrder) > 0 {
		fmt.Fprintln(w, phaseView(s))
	}
	if path != "" {
		fmt.Fprintf(w, "%s %s\n", IconArrow.Render(), Styles.Subtitle.Render(path))
	}
}

func roundsTable(rounds []stats.RoundTotals) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(Styles.TableBorder).
		Headers("round", "generated", "accepted", "lines", "missing", "branches", "missing", "line %").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return Styles.TableHeader
			}
			return Styles.TableCell
		})
	for _, r := range rounds {
		t.Row(
			strconv.Itoa(r.Round),
			strconv.Itoa(r.Generated),
			strconv.Itoa(r.Accepted),
			strconv.Itoa(r.CoveredLines),
			strconv.Itoa(r.UncoveredLines),
			strconv.Itoa(r.CoveredBranches),
			strconv.Itoa(r.UncoveredBranches),
			fmt.Sprintf("%.1f", Percent(r.CoveredLines, r.UncoveredLines)),
		)
	}
	return t.String()
}

func countersView(c stats.Counters) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  pass %d  error %d  fixed %d\n",
		Styles.Bold.Render("syntax   "), c.SyntaxPass, c.SyntaxError, c.SyntaxFixSuccess)
	fmt.Fprintf(&b, "%s  pass %d  error %d  fixed %d",
		Styles.Bold.Render("assertion"), c.AssertionPass, c.AssertionError, c.AssertionFixSuccess)
	for _, kv := range sortedTypes(c.AssertionErrorTypes) {
		fmt.Fprintf(&b, "\n  %s %s", Styles.Muted.Render(kv.name), strconv.Itoa(kv.count))
	}
	return b.String()
}

func phaseView(s *stats.RunSummary) string {
	parts := make([]string, 0, len(s.PhaseOrder))
	for _, name := range s.PhaseOrder {
		parts = append(parts, fmt.Sprintf("%s %.1fs", name, s.Times[name]))
	}
	return Styles.Muted.Render(strings.Join(parts, "  "))
}

type typeCount struct {
	name  string
	count int
}

// sortedTypes orders error types by count, then name.
func sortedTypes(m map[string]int) []typeCount {
	out := make([]typeCount, 0, len(m))
	for k, v := range m {
		out = append(out, typeCount{k, v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].name < out[j].name
	})
	return out
}

func machineSummary(w io.Writer, s *stats.RunSummary, path string) {
	fmt.Fprintf(w, "SUMMARY: run=%s project=%s time=%.1fs rounds=%d\n", s.RunID, s.Project, s.Time, len(s.Rounds))
	for _, r := range s.Rounds {
		fmt.Fprintf(w, "ROUND: %d generated=%d accepted=%d covered_lines=%d uncovered_lines=%d covered_branches=%d uncovered_branches=%d\n",
			r.Round, r.Generated, r.Accepted, r.CoveredLines, r.UncoveredLines, r.CoveredBranches, r.UncoveredBranches)
	}
	c := s.Total
	fmt.Fprintf(w, "CASES: syntax_pass=%d syntax_error=%d syntax_fix_success=%d assertion_pass=%d assertion_error=%d assertion_fix_success=%d\n",
		c.SyntaxPass, c.SyntaxError, c.SyntaxFixSuccess, c.AssertionPass, c.AssertionError, c.AssertionFixSuccess)
	if path != "" {
		fmt.Fprintf(w, "RESULTS: %s\n", path)
	}
}
