package core

import (
	"encoding/json"
	"strings"
)

// Context bundle limits. Bundles over either cap are rejected during
// validation rather than truncated.
const (
	MaxContextChars = 64 * 1024
	MaxContextItems = 256
)

// Step bound defaults. MaxSteps counts model round-trips.
const (
	DefaultMaxSteps = 4
	MaxStepsCap     = 16
)

// FunctionInfo describes one interpreter-defined function offered to the
// model as a tool.
type FunctionInfo struct {
	Signature   string `json:"signature"`
	Description string `json:"description,omitempty"`
}

// UnmarshalJSON accepts either the structured form or a bare signature
// string, which older notebook clients send.
func (f *FunctionInfo) UnmarshalJSON(data []byte) error {
	var sig string
	if err := json.Unmarshal(data, &sig); err == nil {
		f.Signature = sig
		f.Description = ""
		return nil
	}
	type plain FunctionInfo
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*f = FunctionInfo(p)
	return nil
}

// ContextBundle is the interpreter-state snapshot attached to a prompt:
// recently executed code, variable reprs, and callable functions.
type ContextBundle struct {
	PrecedingCode string                  `json:"preceding_code,omitempty"`
	Variables     map[string]string       `json:"variables,omitempty"`
	Functions     map[string]FunctionInfo `json:"functions,omitempty"`
}

// Size returns the total character count of the bundle's payload.
func (b ContextBundle) Size() int {
	n := len(b.PrecedingCode)
	for name, repr := range b.Variables {
		n += len(name) + len(repr)
	}
	for name, fn := range b.Functions {
		n += len(name) + len(fn.Signature) + len(fn.Description)
	}
	return n
}

// Items returns the number of variable and function entries.
func (b ContextBundle) Items() int {
	return len(b.Variables) + len(b.Functions)
}

// PromptRequest is a validated prompt submission. MaxSteps is the effective
// bound after defaulting; a request carrying max_steps:0 forbids tool
// execution entirely.
type PromptRequest struct {
	Prompt    string        `json:"prompt"`
	Model     string        `json:"model,omitempty"`
	SessionID string        `json:"session_id,omitempty"`
	MaxSteps  int           `json:"max_steps"`
	Context   ContextBundle `json:"context,omitempty"`
}

// rawPromptRequest distinguishes an absent max_steps from an explicit zero.
type rawPromptRequest struct {
	Prompt    string        `json:"prompt"`
	Model     string        `json:"model"`
	SessionID string        `json:"session_id"`
	MaxSteps  *int          `json:"max_steps"`
	Context   ContextBundle `json:"context"`
}

// ParsePromptRequest decodes and validates a raw request body. All failures
// are *Error with CodeInvalidRequest naming the offending field.
func ParsePromptRequest(body []byte) (PromptRequest, error) {
	var raw rawPromptRequest
	dec := json.NewDecoder(strings.NewReader(string(body)))
	if err := dec.Decode(&raw); err != nil {
		return PromptRequest{}, NewError(CodeInvalidRequest, "malformed request body: %v", err)
	}

	req := PromptRequest{
		Prompt:    raw.Prompt,
		Model:     raw.Model,
		SessionID: raw.SessionID,
		MaxSteps:  DefaultMaxSteps,
		Context:   raw.Context,
	}
	if raw.MaxSteps != nil {
		req.MaxSteps = *raw.MaxSteps
	}
	if err := req.Validate(); err != nil {
		return PromptRequest{}, err
	}
	return req, nil
}

// Validate enforces field-level constraints on an already-decoded request.
func (r PromptRequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return NewFieldError("prompt", "prompt must not be empty")
	}
	if r.MaxSteps < 0 {
		return NewFieldError("max_steps", "max_steps must not be negative")
	}
	if r.MaxSteps > MaxStepsCap {
		return NewFieldError("max_steps", "max_steps exceeds cap of %d", MaxStepsCap)
	}
	if n := r.Context.Items(); n > MaxContextItems {
		return NewFieldError("context", "context bundle has %d entries, cap is %d", n, MaxContextItems)
	}
	if n := r.Context.Size(); n > MaxContextChars {
		return NewFieldError("context", "context bundle is %d chars, cap is %d", n, MaxContextChars)
	}
	return nil
}
