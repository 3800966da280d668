// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stats accumulates pass/fail/repair counters, phase timings and
// coverage snapshots over a run and publishes the run summary.
package stats

import (
	"sync"
	"time"

	"github.com/AleutianAI/testsynth/services/coverage"
)

// Counters is one tally of verification outcomes.
type Counters struct {
	SyntaxPass          int            `json:"syntax_pass"`
	SyntaxError         int            `json:"syntax_error"`
	SyntaxFixSuccess    int            `json:"syntax_fix_success"`
	AssertionPass       int            `json:"assertion_pass"`
	AssertionError      int            `json:"assertion_error"`
	AssertionFixSuccess int            `json:"assertion_fix_success"`
	AssertionErrorTypes map[string]int `json:"assertion_error_types"`
}

func newCounters() Counters {
	return Counters{AssertionErrorTypes: make(map[string]int)}
}

func (c Counters) clone() Counters {
	out := c
	out.AssertionErrorTypes = make(map[string]int, len(c.AssertionErrorTypes))
	for k, v := range c.AssertionErrorTypes {
		out.AssertionErrorTypes[k] = v
	}
	return out
}

// RoundTotals is the project-wide coverage after one round.
type RoundTotals struct {
	Round             int `json:"round"`
	Generated         int `json:"generated"`
	Accepted          int `json:"accepted"`
	CoveredLines      int `json:"covered_lines"`
	UncoveredLines    int `json:"uncovered_lines"`
	CoveredBranches   int `json:"covered_branches"`
	UncoveredBranches int `json:"uncovered_branches"`
}

// Accumulator collects run statistics. Every event is tallied in the
// cumulative counters and, until EndFirstRound, in the first-round
// counters too.
//
// Thread Safety: Safe for concurrent use.
type Accumulator struct {
	mu         sync.Mutex
	start      time.Time
	firstRound bool
	total      Counters
	first      Counters
	times      map[string]time.Duration
	phaseOrder []string
	coverage   []map[string]coverage.ModuleSnapshot
	rounds     []RoundTotals
	paramTypes map[string]map[string]string
	now        func() time.Time
}

// NewAccumulator starts the run clock.
func NewAccumulator() *Accumulator {
	return newAccumulatorAt(time.Now)
}

func newAccumulatorAt(now func() time.Time) *Accumulator {
	return &Accumulator{
		start:      now(),
		firstRound: true,
		total:      newCounters(),
		first:      newCounters(),
		times:      make(map[string]time.Duration),
		paramTypes: make(map[string]map[string]string),
		now:        now,
	}
}

func (a *Accumulator) bump(f func(c *Counters)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	f(&a.total)
	if a.firstRound {
		f(&a.first)
	}
}

func (a *Accumulator) AddSyntaxPass()       { a.bump(func(c *Counters) { c.SyntaxPass++ }) }
func (a *Accumulator) AddSyntaxError()      { a.bump(func(c *Counters) { c.SyntaxError++ }) }
func (a *Accumulator) AddSyntaxFixSuccess() { a.bump(func(c *Counters) { c.SyntaxFixSuccess++ }) }
func (a *Accumulator) AddAssertionPass()    { a.bump(func(c *Counters) { c.AssertionPass++ }) }
func (a *Accumulator) AddAssertionError()   { a.bump(func(c *Counters) { c.AssertionError++ }) }

func (a *Accumulator) AddAssertionFixSuccess() {
	a.bump(func(c *Counters) { c.AssertionFixSuccess++ })
}

// AddAssertionErrorType counts one occurrence of an exception message.
func (a *Accumulator) AddAssertionErrorType(kind string) {
	a.bump(func(c *Counters) { c.AssertionErrorTypes[kind]++ })
}

// EndFirstRound stops first-round tallies.
func (a *Accumulator) EndFirstRound() {
	a.mu.Lock()
	a.firstRound = false
	a.mu.Unlock()
}

// Totals returns copies of the cumulative and first-round counters.
func (a *Accumulator) Totals() (total, first Counters) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total.clone(), a.first.clone()
}

// StartPhase starts timing name and returns the function that stops it.
//
// Example:
//
//	stop := acc.StartPhase("collect_message")
//	defer stop()
func (a *Accumulator) StartPhase(name string) func() {
	begin := a.now()
	return func() {
		d := a.now().Sub(begin)
		a.mu.Lock()
		defer a.mu.Unlock()
		if _, seen := a.times[name]; !seen {
			a.phaseOrder = append(a.phaseOrder, name)
		}
		a.times[name] = d
	}
}

// AddCoverage appends a per-module benchmark snapshot.
func (a *Accumulator) AddCoverage(snap map[string]coverage.ModuleSnapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.coverage = append(a.coverage, snap)
}

// AddRound appends the project totals of a finished round.
func (a *Accumulator) AddRound(r RoundTotals) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rounds = append(a.rounds, r)
}

// SetParamTypes records the extracted parameter types of a function.
func (a *Accumulator) SetParamTypes(function string, types map[string]string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.paramTypes[function] = types
}

// Rounds returns a copy of the recorded round totals.
func (a *Accumulator) Rounds() []RoundTotals {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]RoundTotals(nil), a.rounds...)
}

// Summary freezes the accumulator into a RunSummary.
func (a *Accumulator) Summary(runID, project string, includeTypes bool) *RunSummary {
	a.mu.Lock()
	defer a.mu.Unlock()

	times := make(map[string]float64, len(a.times))
	for k, d := range a.times {
		times[k] = d.Seconds()
	}
	s := &RunSummary{
		RunID:      runID,
		Project:    project,
		Time:       a.now().Sub(a.start).Seconds(),
		Times:      times,
		PhaseOrder: append([]string(nil), a.phaseOrder...),
		Total:      a.total.clone(),
		First:      a.first.clone(),
		Coverage:   append([]map[string]coverage.ModuleSnapshot{}, a.coverage...),
		Rounds:     append([]RoundTotals{}, a.rounds...),
	}
	if includeTypes {
		s.ParamTypes = make(map[string]map[string]string, len(a.paramTypes))
		for name, types := range a.paramTypes {
			s.ParamTypes[name] = types
		}
	}
	return s
}
