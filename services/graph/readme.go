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
	"sync"
)

// Dir is a directory in the project tree. A directory with a README carries
// its summary once summarized.
type Dir struct {
	Path   string
	Parent *Dir

	children []*Dir
	readme   string

	mu      sync.RWMutex
	summary *string
}

// HasReadme reports whether the directory contains a README.
func (d *Dir) HasReadme() bool {
	return d.readme != ""
}

// ReadmeText returns the raw README contents.
func (d *Dir) ReadmeText() string {
	return d.readme
}

// ReadmeSummary returns this directory's README summary.
func (d *Dir) ReadmeSummary() (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return deref(d.summary)
}

func (d *Dir) setSummary(s string) {
	d.mu.Lock()
	d.summary = &s
	d.mu.Unlock()
}

// NearestReadme walks up from d and returns the first README summary found.
func (d *Dir) NearestReadme() (string, bool) {
	for cur := d; cur != nil; cur = cur.Parent {
		if s, ok := cur.ReadmeSummary(); ok {
			return s, true
		}
	}
	return "", false
}
