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
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
)

// Progress prints phase and per-function progress of a run.
//
// Description:
//
//	On a terminal at full or minimal personality it redraws a progress bar
//	in place while a round runs. Otherwise it writes one line per phase and
//	a progress line at every tenth of a round, so log collectors see steady
//	output.
//
// Thread Safety: Safe for concurrent use. Progress is called from worker
// goroutines.
type Progress struct {
	w           io.Writer
	interactive bool
	bar         progress.Model
	now         func() time.Time

	mu      sync.Mutex
	phase   string
	started map[string]time.Time
	drawn   bool
}

// NewProgress creates a Progress writing to w.
func NewProgress(w io.Writer) *Progress {
	return &Progress{
		w:           w,
		interactive: GetPersonality() != PersonalityMachine && IsTerminal(w),
		bar: progress.New(
			progress.WithScaledGradient(string(colorRule), string(colorAccent)),
			progress.WithWidth(40),
		),
		now:     time.Now,
		started: make(map[string]time.Time),
	}
}

// PhaseStarted announces a phase.
func (p *Progress) PhaseStarted(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.phase = name
	p.started[name] = p.now()
	if p.interactive {
		p.clearLine()
		fmt.Fprintf(p.w, "%s %s\n", IconArrow.Render(), Styles.Subtitle.Render(name))
		return
	}
	fmt.Fprintf(p.w, "PHASE: %s started\n", name)
}

// Progress reports done of total attempts in the current phase.
func (p *Progress) Progress(done, total int) {
	if total <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.interactive {
		fmt.Fprintf(p.w, "\r%s %d/%d", p.bar.ViewAs(float64(done)/float64(total)), done, total)
		p.drawn = true
		return
	}
	step := total / 10
	if step == 0 {
		step = 1
	}
	if done%step == 0 || done == total {
		fmt.Fprintf(p.w, "PROGRESS: %s %d/%d\n", p.phase, done, total)
	}
}

// PhaseFinished reports the phase duration.
func (p *Progress) PhaseFinished(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	elapsed := p.now().Sub(p.started[name]).Seconds()
	delete(p.started, name)
	if p.interactive {
		p.clearLine()
		fmt.Fprintf(p.w, "%s %s %s\n", IconSuccess.Render(), name, Styles.Muted.Render(fmt.Sprintf("%.1fs", elapsed)))
		return
	}
	fmt.Fprintf(p.w, "PHASE: %s finished in %.1fs\n", name, elapsed)
}

func (p *Progress) clearLine() {
	if p.drawn {
		fmt.Fprint(p.w, "\r\033[K")
		p.drawn = false
	}
}
