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

import "strings"

const fence = "```"

// StripFences extracts code from a fenced response.
//
// Description:
//
//	Returns the content between the first and last ``` markers, with a
//	leading "python" language tag removed. Text with fewer than two
//	markers is returned unchanged. Inner fences are preserved.
//
// Examples:
//
//	StripFences("x\n```python\nassert f()\n```\ny") == "\nassert f()\n"
//	StripFences("plain") == "plain"
func StripFences(text string) string {
	parts := strings.Split(text, fence)
	if len(parts) < 3 {
		return text
	}
	inner := strings.Join(parts[1:len(parts)-1], fence)
	return strings.TrimPrefix(inner, "python")
}
