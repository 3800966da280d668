// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// TranscriptEntry is one prompt/response exchange with the oracle.
type TranscriptEntry struct {
	System   string
	User     string
	Response string
	// Outcome is "answer" or "no_answer".
	Outcome  string
	Reason   string
	Model    string
	Duration time.Duration
}

// Transcript records oracle exchanges as JSON lines.
//
// Thread Safety: Safe for concurrent use.
type Transcript struct {
	logger *slog.Logger
	closer io.Closer
	mu     sync.Mutex
}

// NewTranscript writes JSON lines to w. A nil w discards entries.
func NewTranscript(w io.Writer) *Transcript {
	if w == nil {
		w = io.Discard
	}
	t := &Transcript{logger: slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))}
	if c, ok := w.(io.Closer); ok && w != os.Stderr && w != os.Stdout {
		t.closer = c
	}
	return t
}

// OpenTranscript creates "{dir}/oracle_transcript_{date}.log".
//
// Outputs:
//
//	*Transcript - The transcript. On error a discarding transcript is
//	returned so callers may keep going.
//	error - Non-nil if the file could not be opened.
func OpenTranscript(dir string) (*Transcript, error) {
	file, err := openDated(dir, "oracle_transcript")
	if err != nil {
		return NewTranscript(nil), err
	}
	return NewTranscript(file), nil
}

// Record appends an entry. Write failures are swallowed by slog, so this
// never fails the caller.
func (t *Transcript) Record(ctx context.Context, e TranscriptEntry) {
	if t == nil {
		return
	}
	t.logger.LogAttrs(ctx, slog.LevelInfo, "oracle exchange",
		slog.String("outcome", e.Outcome),
		slog.String("reason", e.Reason),
		slog.String("model", e.Model),
		slog.Int64("duration_ms", e.Duration.Milliseconds()),
		slog.String("system", e.System),
		slog.String("user", e.User),
		slog.String("response", e.Response),
	)
}

// Close closes the underlying file, if the transcript owns one.
func (t *Transcript) Close() error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closer == nil {
		return nil
	}
	err := t.closer.Close()
	t.closer = nil
	return err
}
