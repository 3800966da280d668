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
	"fmt"
)

const fence = "```"

// =============================================================================
// README
// =============================================================================

const readmeSystem = `You are tasked with analyzing the contents of a README.md file and providing a clear,
concise summary of what the project is about.
The goal is to highlight the primary objectives and core functionality of the project.
Avoid excessive details and aim for a brief summary that clearly conveys the project's purpose in one or two short paragraphs.
`

func readmeUser(readme string) string {
	return fmt.Sprintf(`Please analyze the following README.md file and provide a summary that describes what the project aims to do.
%s
`, readme)
}

// =============================================================================
// Behavior ("what it does")
// =============================================================================

const behaviorSystemWithCallees = "You are a helpful assistant designed to analyze Python functions. " +
	"Based on the provided source code of a function and the docstrings of the other functions it calls, " +
	"your task is to generate a clear and concise docstring for the given function. " +
	"The generated docstring should describe what the function does, what parameters it accepts, " +
	"highlighting the role of each parameter and how changes to their values affect the function's execution, " +
	"what it returns (if anything), and how to use the function effectively. " +
	"Let's think step by step, only output the docstring content. Do not include the source code or any extra explanations."

const behaviorSystemLeaf = "You are a helpful assistant designed to analyze Python functions. " +
	"Based on the provided source code of a function, " +
	"your task is to generate a clear and concise docstring for the given function. " +
	"The generated docstring should describe what the function does, what parameters it accepts, " +
	"highlighting the role of each parameter and how changes to their values affect the function's execution, " +
	"what it returns (if anything), and how to use the function effectively. " +
	"Let's think step by step, only output the docstring content. Do not include the source code or any extra explanations."

func behaviorPrompt(source, callees string) (system, user string) {
	if callees != "" {
		return behaviorSystemWithCallees, fmt.Sprintf("Here is the source code of a Python function and the docstrings of the functions it calls. "+
			"Please analyze this and generate an appropriate docstring for the provided function. "+
			"Be sure to explain what the function does and include examples or instructions on how to use it.\n\n"+
			"source code: \n%s\n\n functions it calls: \n%s", source, callees)
	}
	return behaviorSystemLeaf, fmt.Sprintf("Here is the source code of a Python function. "+
		"Please analyze this and generate an appropriate docstring for the provided function. "+
		"Be sure to explain what the function does and include examples or instructions on how to use it.\n\n"+
		"source code: \n%s\n", source)
}

// calleeEntry formats one callee summary for the behavior prompt.
func calleeEntry(name, summary string) string {
	return fmt.Sprintf("\n%s: \n%s\n", name, summary)
}

// =============================================================================
// Intent ("what it is meant to do")
// =============================================================================

const intentReadmeSystem = `You are an AI assistant specialized in analyzing Python code.
Your task is to examine the given function and generate a concise and clear docstring that describes its purpose and usage.
Consider the overall project objective to provide context, but focus on the function itself.
If the function interacts with other parts of the project, briefly mention relevant dependencies without excessive details.
Your output should be formatted as a Python docstring.
Let's think step by step, only output the docstring content. Do not include the source code or any extra explanations.
`

const intentPlainSystem = `You are an AI assistant that analyzes Python functions and provides a concise docstring
summarizing their purpose and usage. The docstring should follow standard Python conventions,
including a brief description, parameters, and return values if applicable.
Maintain clarity and precision while avoiding unnecessary details.
Let's think step by step, only output the docstring content. Do not include the source code or any extra explanations.
`

func intentSeedPrompt(readme string, hasReadme bool, docstring, code string) (system, user string) {
	body := fence + "python\n" + quoteDoc(docstring) + code + "\n"
	if hasReadme {
		return intentReadmeSystem, `Analyze the function and generate a docstring that clearly describes its purpose, parameters,
return values, and usage. Ensure the docstring is informative yet concise.

**Project Overview:**
` + readme + `

**Function Source Code:**
` + body
	}
	return intentPlainSystem, `Here is a Python function.
Please analyze its purpose and provide a docstring that describes what it does and how to use it.
Ensure the docstring follows proper formatting.

` + body
}

const callSiteSystem = `You are a Python code analysis assistant.
Your task is to analyze a function call in the provided source code and produce a precise docstring that describes:
The purpose of the called function.
The semantic roles and exact parameter types, inferred from the call context and callee behavior.
The types must be as specific as possible (e.g., List[User], Dict[str, int], Optional[Config]) rather than generic types like list or dict.
Infer parameter types based on their usage and data flow, not just their names.

Output only the docstring content. Do not include the source code or any extra explanations.
Think step by step before writing the final docstring.`

func callSitePrompt(calleeName, callerIntent, callerCode string, line int, callCode string) string {
	return fmt.Sprintf(`Identify the purpose of the called function %s and explain how to use it, formatted as a Python docstring.
Source Code:
%s%s

Function Call:
At line %d, the function call of function %s occurs:
%s
`, calleeName, quoteDoc(callerIntent), callerCode, line, calleeName, callCode)
}

// =============================================================================
// Merged summary
// =============================================================================

const mergeSystem = `You are an AI assistant skilled in analyzing and generating comprehensive function documentation.
Your task is to integrate two different perspectives of docstrings, one describing what the function does (implementation perspective)
and the other describing what the function is intended to do (requirement perspective), along with the function's source code to generate a final,
well-structured docstring.

Your output must:
1. Preserve and merge the key information from both docstrings.
2. Clearly describe how to use the function, including its purpose, parameters, and return values.
3. Provide insights into the function's significance within the broader context of the codebase.
4. Use clear, precise, and professional language.
5. Let's think step by step, only output the docstring content. Do not include the source code or any extra explanations.

Now, await the user's input containing:
- The function's source code.
- The "what it does" docstring.
- The "what it is intended to do" docstring.
Generate the final docstring accordingly.
`

func mergePrompt(source, behavior, intent string) string {
	return `Here is a function along with two docstrings from different perspectives:

### Function Source Code:
` + fence + `python
` + source + `
` + fence + `

### "What it does" Docstring:
` + behavior + `

### "What it is intended to do" Docstring:
` + intent + `
`
}

// =============================================================================
// Classes
// =============================================================================

const classSummarySystem = `You are an AI assistant skilled in analyzing Python code.
Your task is to determine the role and purpose of a given class by analyzing its structure, methods, and usage.
Focus on explaining what responsibilities this class has, how it interacts with other components,
and its overall contribution to the program. Provide a structured and concise summary of the inferred class functionality.
`

func classSummaryPrompt(code string) string {
	return `Please analyze the role and responsibilities of this class.
Explain its purpose, key functionalities, and how it might be used in the program.

Here is a Python class:

` + code + "\n"
}

const howToUseSystem = `You are an expert in analyzing Python code.
Your task is to examine the given class definition and provide a detailed explanation of how to initialize and use this class.
Your response should include:

1. **Class Initialization**: Explain how to properly instantiate the class, listing the required and optional parameters in the constructor (` + "`__init__`" + ` method).
2. **Key Methods and Attributes**: Summarize the main methods and attributes of the class, highlighting their usage.
3. **Example Usage**: Provide a Python code snippet demonstrating how to create an instance of the class and interact with its methods.

Always assume that the user wants a clear and concise explanation suitable for someone who understands Python but may not be familiar with the specific class.
`

func howToUsePrompt(code string) string {
	return `Please explain how to initialize and use this class.

Here is the Python class definition:

` + fence + `python
` + code + `
` + fence + "\n"
}

// =============================================================================
// Parameters
// =============================================================================

const judgeParamsSystem = `You are an AI assistant skilled in understanding and generating Python code.
Your task is to analyze a given function and determine how it should be called.
You will receive the function's source code and its parameter information.
Based on this, you must infer the appropriate way to call the function and generate example calls.

Provide clear and well-structured example calls that reflect typical usage of the function.
If necessary, infer reasonable argument values based on parameter names and types.
Ensure that your responses are concise and precise, avoiding redundant explanations.
`

func judgeParamsPrompt(source string) string {
	return `Here is a Python function along with its parameter information.
Please analyze how this function should be called and provide example calls.

Function source code:

` + source + `

params:
`
}

func paramHelpEntry(name, help string) string {
	return fmt.Sprintf("\n%s: \n\n%s\n", name, help)
}

const judgeTypeSystem = `You are an expert in Python type analysis.
Your task is to determine whether a given function parameter belongs to a built-in type,
a third-party library type, or a user-defined type.

Classification rules:
- If the parameter type is a built-in Python type (e.g., ` + "`int`, `str`, `list`" + `), output ` + "`<1>`" + `.
- If the parameter type is from a third-party library (e.g., ` + "`ast.FunctionCall`" + `), output ` + "`<2>`" + `.
- If the parameter type is a user-defined type (a custom class written by the user), output ` + "`<3>`" + `.

The user will provide a function definition and specify a parameter name.
Respond with only the corresponding classification tag (` + "`<1>`, `<2>`, or `<3>`" + `) without any additional text.
`

func judgeTypePrompt(param, summary, code string) string {
	return fmt.Sprintf("\nDetermine the classification of the parameter named %s based on its usage in the function body.\n\n%spython\n%s%s\n",
		param, fence, quoteDoc(summary), code)
}

const meaningSystem = `You are an AI assistant skilled in analyzing Python code.
Your task is to determine the role and purpose of a class based on how its instance is used as a parameter in a given function.
Focus on analyzing what responsibilities this class might have, how it contributes to the function's behavior,
and what role it likely plays in the overall program. Provide a structured and concise summary of the inferred class functionality.
`

func meaningPrompt(param, summary, code string) string {
	return fmt.Sprintf(`The parameter I want to analyze is %s.
Based on how this parameter is used in the function, infer the possible role and responsibilities of its class.

Here is a Python function:
%spython
%s%s
`, param, fence, quoteDoc(summary), code)
}
