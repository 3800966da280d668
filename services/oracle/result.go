// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package oracle

// Result is the outcome of one oracle request.
//
// Description:
//
//	A Result is either an Answer carrying the generated text, or a NoAnswer
//	carrying the reason the oracle could not respond (transport failure,
//	quota, malformed response, cancellation). An Answer may legitimately
//	carry empty text; use Answered to tell the two apart.
//
// Thread Safety: Immutable value type.
type Result struct {
	text     string
	reason   string
	answered bool
}

// Answer wraps generated text.
func Answer(text string) Result {
	return Result{text: text, answered: true}
}

// NoAnswer records why the oracle declined.
func NoAnswer(reason string) Result {
	return Result{reason: reason}
}

// Answered reports whether the oracle produced a response.
func (r Result) Answered() bool {
	return r.answered
}

// Text returns the generated text, or "" for a NoAnswer.
func (r Result) Text() string {
	return r.text
}

// Reason returns the decline reason, or "" for an Answer.
func (r Result) Reason() string {
	return r.reason
}

// TextOr returns the text when answered, otherwise fallback.
func (r Result) TextOr(fallback string) string {
	if r.answered {
		return r.text
	}
	return fallback
}

// String renders the result for logs.
func (r Result) String() string {
	if r.answered {
		return "Answer(" + truncate(r.text, 60) + ")"
	}
	return "NoAnswer(" + r.reason + ")"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
