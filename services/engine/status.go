// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"github.com/AleutianAI/testsynth/services/stats"
)

// Status is a point-in-time view of a running session.
type Status struct {
	RunID   string `json:"run_id"`
	Project string `json:"project"`
	Phase   string `json:"phase"`

	// Round is the 1-based round in progress, 0 during bootstrap.
	Round  int `json:"round"`
	Rounds int `json:"rounds"`

	Functions int `json:"functions"`
	Generated int `json:"generated"`
	Accepted  int `json:"accepted"`

	// Coverage is the totals of the last finished round.
	Coverage stats.RoundTotals `json:"coverage"`

	Counters stats.Counters `json:"counters"`
}

// Status returns the current session state.
func (e *Engine) Status() Status {
	e.mu.RLock()
	st := e.status
	e.mu.RUnlock()
	st.Counters, _ = e.stats.Totals()
	return st
}

func (e *Engine) setPhase(name string) {
	e.update(func(st *Status) { st.Phase = name })
}

func (e *Engine) update(fn func(st *Status)) {
	e.mu.Lock()
	fn(&e.status)
	e.mu.Unlock()
}
