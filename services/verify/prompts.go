// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package verify

import (
	"fmt"
)

const syntaxRepairSystem = `You are an AI assistant that specializes in fixing syntax errors in Python test cases.
Given a test case written by the user and the corresponding pylint error messages,
your task is to correct the syntax errors while preserving the original logic and structure of the test case.

Your response should:

Fix all syntax errors reported by pylint.
Ensure the corrected code remains a valid test case.
Maintain the original coding style and structure as much as possible.
Not introduce any logic changes beyond necessary fixes.
**Do not re-implement the function.** Instead, import it correctly and write meaningful test cases.
If the provided pylint errors are ambiguous or incomplete, make reasonable assumptions to correct the syntax while preserving the intent.
`

func syntaxRepairPrompt(code, lint string) string {
	return fmt.Sprintf(`Here is a Python test case and the pylint errors it produces. Please correct the syntax errors accordingly.

Test Case:
%s

Pylint Errors:
%s
`, code, lint)
}

const assertRepairSystem = `You are an AI assistant specialized in analyzing and correcting test cases.
Your task is to modify a given test case based on its pytest execution result to ensure that the assertions are correct.
If an assertion fails, update it to match the actual output while maintaining the integrity of the test.
Simplify assertions where possible, but do not alter the overall intent of the test.
Preserve the structure and readability of the test case while making minimal necessary modifications.
`

// failureTranscript describes a failed run for repair and retrieval.
func failureTranscript(source, code, output string) string {
	return fmt.Sprintf(`# Function under test
%s

# Test case
%s

The test case was run using pytest, and the following output was produced:
%s
`, source, code, output)
}

func assertRepairPrompt(transcript string) string {
	return `Here is a Python test case and the function it tests:
Please correct the test case to ensure that the assertions are valid based on the pytest output.
**Do not re-implement the function.** Instead, import it correctly and write meaningful test cases.
If needed, simplify the assertions while keeping the test meaningful. Return only the modified test case.

` + transcript + "\n"
}

func withFoundMessages(prompt, found string) string {
	return prompt + "\nfound messages:\n" + found
}
