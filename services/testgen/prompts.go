// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package testgen

import (
	"fmt"
)

const fence = "```"

// =============================================================================
// Generation
// =============================================================================

const normalSystem = `You are an AI assistant that generates high-quality pytest test cases for Python functions.
Given a function definition and its module name, your task is to produce well-structured and correct test cases. Ensure the following:

Correct Import: Import the function using its provided module name.
Test Structure: Use pytest conventions, including function-based tests.
Assertions: Ensure that the assertions are meaningful and correctly validate the function's expected behavior.
Edge Cases: Consider different input scenarios, including edge cases and potential failure points.
No Redundant Information: Only generate the test file content.
Analyze the target function before writing the test cases.
`

const easySystem = `You are an AI assistant that generates pytest test cases for Python functions.
Given a function definition and its module name, your task is to generate simple and correct test cases. Follow these guidelines:

Correct Import: Import the function properly using the provided module name.
Simple Assertions: Ensure assertions are correct but avoid unnecessary complexity.
Basic Test Cases: Cover common and edge cases with straightforward inputs and expected outputs.
No Additional Explanations: Only output the test file content without extra comments or explanations.
`

// generatePrompt is shared by the normal and easy strategies.
func generatePrompt(module, source string) string {
	return fmt.Sprintf(`Here is a Python function and its module name.
Generate a pytest test case file ensuring proper assertions:

%s
**Do not re-implement the function.** Instead, import it correctly and write meaningful test cases.

Function Code:

%s
`, moduleHeader(module), source)
}

// moduleHeader is the first line of every normal or easy generation.
func moduleHeader(module string) string {
	return "# Module: " + module
}

const evolveSystem = "You are an expert in Python testing,\n" +
	"specifically in writing high-quality `pytest` test cases to maximize code coverage.\n" +
	"Your goal is to generate additional `pytest` test cases for a given function based on the provided function source code,\n" +
	"existing test cases, and uncovered lines. The generated tests should:\n\n" +
	"1. Focus on covering uncovered lines while maintaining correctness.\n" +
	"2. Ensure all assertions accurately reflect the expected behavior of the function.\n" +
	"3. Follow best practices for `pytest`, keeping tests readable and maintainable.\n" +
	"4. Avoid redundant test cases that overlap with existing ones.\n" +
	"5. Import the function properly using the provided module name.\n\n" +
	"If any uncovered lines indicate potential edge cases, ensure those are explicitly tested. " +
	"Do not modify the function itself, only generate new test cases.\n"

func evolvePrompt(module, annotated, missing, existing, other string) string {
	return "Here is the function source code, the existing test cases,\n" +
		"and a list of uncovered lines. Please generate additional `pytest` test cases to increase coverage,\n" +
		"ensuring that all assertions are correct.\n\n" +
		moduleHeader(module) + "\n\n" +
		"**Function source code:**\n" +
		fence + "python\n" + annotated + "\n" + fence + "\n\n" +
		"Uncovered lines:\n" + missing + "\n\n" +
		"Existing test cases:\n" +
		fence + "python\n" + existing + "\n" + fence + "\n\n" +
		"Other messages:\n" + other + "\n"
}

// =============================================================================
// Retrieval
// =============================================================================

const querySystem = `You are an AI assistant responsible for generating Python test cases with high coverage.
To enhance test quality, you can autonomously query a Retrieval-Augmented Generation (RAG) system that indexes function docstrings based on semantic similarity.
Your goal is to strategically retrieve the most relevant information to generate more comprehensive test cases.

You must actively analyze the target function and determine what additional context is necessary to improve coverage.
Consider querying for:
- Related functions that interact with the target function
- Edge cases specific to the function's logic
- Expected input variations or constraints
- Common failure scenarios based on similar functions

Only generate queries that are directly relevant to the target function. Output only the query.
`

func queryPrompt(annotated, missing string) string {
	return "Generate a concise and effective query to retrieve relevant function documentation from the RAG system.\n" +
		"Analyze the target function carefully and decide what additional information is necessary to improve test coverage.\n\n" +
		"**Function source code:**\n" +
		fence + "python\n" + annotated + "\n\n" +
		"Uncovered lines:\n" + missing + "\n\n" +
		"Then, construct a precise and minimal query to retrieve only the most relevant function documentation.\n" +
		"Your query should be specific, avoiding broad or generic wording.\n" +
		"Output only the query.\n"
}

const repairQuerySystem = `You are an AI test case generation assistant specializing in Python.
Your goal is to generate high-coverage test cases using pytest and iteratively refine them based on error messages.
You have access to a RAG system that retrieves function documentation based on semantic similarity.
When modifying test cases, you should autonomously determine what information is missing and generate concise,
effective queries to retrieve relevant function documentation.
Ensure that queries are specific and avoid generic language that could lead to irrelevant results.
`

func repairQueryPrompt(failure string) string {
	return fmt.Sprintf(`Based on the pytest error message, identify the missing information needed to fix the test case.
Formulate a precise query to retrieve the relevant function documentation from the RAG system. Output only the query.

%s
`, failure)
}

const distillSystem = `You are an AI assistant responsible for generating Python test cases with high coverage.
You have queried a Retrieval-Augmented Generation (RAG) system to retrieve relevant function documentation.
Now, you need to **process the retrieved information and answer your query**, summarizing the key insights that will help improve test case generation.

### **Your Responsibilities:**
1. **Analyze the retrieved documentation** and determine how it answers your query.
2. **Summarize key insights** in a structured and concise manner.
3. **Ensure that your summary highlights aspects that directly contribute to better test cases.**
`

func distillPrompt(query, found string) string {
	return "You previously generated the following query to retrieve additional function documentation:\n" +
		"**Query:** `" + query + "`\n\n" +
		"You have now retrieved the following related documentation:\n" +
		"**Retrieved Information:**\n" + found + "\n\n" +
		"### **Task:**\n" +
		"- **Summarize how the retrieved information answers your query.**\n" +
		"- **Extract key insights** that are directly useful for generating better test cases.\n\n" +
		"Your summary should be precise and focused on improving test case generation.\n"
}
