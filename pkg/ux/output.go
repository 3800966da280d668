// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


// Package ux renders terminal output for the testsynth CLI.
package ux

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorAccent = lipgloss.Color("#2CD7C7")
	colorPhase  = lipgloss.Color("#20B9B4")
	colorFrame  = lipgloss.Color("#16858E")
	colorRule   = lipgloss.Color("#157483")
	colorDim    = lipgloss.Color("#2C4A54")
	colorWarn   = lipgloss.Color("#F4D03F")
	colorFail   = lipgloss.Color("#E74C3C")
)

// Styles used by the run summary and progress output.
var Styles = struct {
	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Bold     lipgloss.Style
	Muted    lipgloss.Style
	Success  lipgloss.Style
	Warning  lipgloss.Style
	Error    lipgloss.Style

	// Box frames the counters block of the summary.
	Box lipgloss.Style

	TableHeader lipgloss.Style
	TableCell   lipgloss.Style
	TableBorder lipgloss.Style
}{
	Title:    lipgloss.NewStyle().Bold(true).Foreground(colorAccent),
	Subtitle: lipgloss.NewStyle().Foreground(colorPhase),
	Bold:     lipgloss.NewStyle().Bold(true),
	Muted:    lipgloss.NewStyle().Foreground(colorDim),
	Success:  lipgloss.NewStyle().Foreground(colorAccent),
	Warning:  lipgloss.NewStyle().Foreground(colorWarn),
	Error:    lipgloss.NewStyle().Foreground(colorFail),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorFrame).
		Padding(0, 1),

	TableHeader: lipgloss.NewStyle().Bold(true).Foreground(colorAccent).Padding(0, 1),
	TableCell:   lipgloss.NewStyle().Padding(0, 1),
	TableBorder: lipgloss.NewStyle().Foreground(colorRule),
}

// Icon is a status glyph.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconArrow   Icon = "→"
)

// Render colors the icon by status.
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	default:
		return string(i)
	}
}

// Title writes the run banner. Machine output has no banner.
func Title(w io.Writer, text string) {
	if GetPersonality() == PersonalityMachine {
		return
	}
	fmt.Fprintln(w, Styles.Title.Render(text))
}

// Info writes a plain line, ruled in the full personality.
func Info(w io.Writer, text string) {
	if GetPersonality() == PersonalityFull {
		fmt.Fprintf(w, "%s %s\n", Styles.Muted.Render("│"), text)
		return
	}
	fmt.Fprintln(w, text)
}

// Warning writes a non-fatal problem, such as a missing Python tool.
func Warning(w io.Writer, text string) {
	notice(w, "WARN", IconWarning, Styles.Warning, text)
}

// Error writes the reason a session stopped.
func Error(w io.Writer, text string) {
	notice(w, "ERROR", IconError, Styles.Error, text)
}

// notice writes a tagged line in machine mode, an icon line otherwise.
func notice(w io.Writer, tag string, icon Icon, style lipgloss.Style, text string) {
	switch GetPersonality() {
	case PersonalityMachine:
		fmt.Fprintf(w, "%s: %s\n", tag, text)
	case PersonalityMinimal:
		fmt.Fprintf(w, "%s %s\n", icon.Render(), text)
	default:
		fmt.Fprintf(w, "%s %s\n", icon.Render(), style.Render(text))
	}
}
