package core

import (
	"strings"
)

// ToolCall is a model-requested function invocation, identified by a
// call-scoped ID. Arguments arrive as raw JSON fragments and are parsed
// only once the call is complete, by the dispatch sanitizer.
type ToolCall struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	input strings.Builder
}

// NewToolCall creates a call record for an announced invocation.
func NewToolCall(id, name string) *ToolCall {
	return &ToolCall{ID: id, Name: name}
}

// AppendInput buffers one raw argument fragment. Fragments concatenate in
// arrival order to form the complete argument JSON.
func (c *ToolCall) AppendInput(fragment string) {
	c.input.WriteString(fragment)
}

// RawInput returns the argument JSON accumulated so far. An empty buffer
// means the call takes no arguments and is treated as {}.
func (c *ToolCall) RawInput() string {
	if c.input.Len() == 0 {
		return "{}"
	}
	return c.input.String()
}

// ToolResult is the outcome of one tool call. Exactly one of Result or
// Error is meaningful: a failed call carries Error and an empty Result.
type ToolResult struct {
	ID     string `json:"id"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Failed reports whether the call ended in an error.
func (r ToolResult) Failed() bool { return r.Error != "" }

// SuccessResult builds a successful outcome for the given call ID.
func SuccessResult(id, value string) ToolResult {
	return ToolResult{ID: id, Result: value}
}

// FailureResult builds a failed outcome for the given call ID.
func FailureResult(id, message string) ToolResult {
	return ToolResult{ID: id, Error: message}
}
