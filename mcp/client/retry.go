package client

import "fmt"

// repairPromptTemplate is the canonical format for the repair prompt
// returned alongside a RetryableError. Keep it concise and deterministic:
// an LLM driving the call is expected to return only the corrected params
// JSON, which the caller then uses to retry the same tool call.
const repairPromptTemplate = `
Tool: %s
%sError: %s
Redo the tool call now with valid arguments.
Use only fields allowed by the tool's input schema and ensure required fields and types/enums are valid.
Example arguments: %s`

// RetryableError is returned by CallTool when the server rejects a
// tools/call with a validation error. Prompt is a repair prompt for the LLM
// driving the call; it includes the tool's schema when one is known.
type RetryableError struct {
	Prompt string
	Cause  error
}

func (e *RetryableError) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause == nil {
		return e.Prompt
	}
	return fmt.Sprintf("%s: %v", e.Prompt, e.Cause)
}

func (e *RetryableError) Unwrap() error { return e.Cause }

// BuildRepairPrompt constructs a deterministic, compact repair instruction
// for toolName. schema is an optional compact JSON Schema excerpt;
// exampleArgs is a minimal valid example of the tool's arguments object.
func BuildRepairPrompt(toolName, errMsg, exampleArgs, schema string) string {
	schemaPart := ""
	if schema != "" {
		schemaPart = "Schema: " + schema + "\n"
	}
	return fmt.Sprintf(repairPromptTemplate, toolName, schemaPart, errMsg, exampleArgs)
}
