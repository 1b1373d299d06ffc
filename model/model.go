// Package model defines the provider-neutral streaming interface to chat
// models with tool calling. Provider adapters (anthropic, openai) translate
// their SDK's streaming events into a flat sequence of Delta values so the
// conversation loop never branches per vendor.
package model

import (
	"context"

	"github.com/AnswerDotAI/ai-jup/core"
)

// DeltaType enumerates the kinds of incremental output a model stream yields.
type DeltaType string

const (
	// DeltaText is an incremental chunk of assistant text.
	DeltaText DeltaType = "text"
	// DeltaToolCallStart announces a tool invocation (id + name known,
	// arguments still streaming).
	DeltaToolCallStart DeltaType = "tool_call_start"
	// DeltaToolInput is a raw fragment of an open call's argument JSON.
	DeltaToolInput DeltaType = "tool_input"
	// DeltaToolCallDone marks a call's arguments as complete.
	DeltaToolCallDone DeltaType = "tool_call_done"
	// DeltaDone ends the turn. StopReason carries the provider's reason.
	DeltaDone DeltaType = "done"
)

// Delta is one incremental output from a model stream.
type Delta struct {
	Type       DeltaType
	Text       string
	CallID     string
	Name       string
	Fragment   string
	StopReason string
}

// ToolDefinition declaratively exposes a callable function to the model.
// Parameters is a minimal JSON Schema object.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request captures the normalized model input for one turn.
type Request struct {
	Model     string
	System    string
	Contents  []core.Content
	Tools     []ToolDefinition
	MaxTokens int64
}

// Stream yields Delta values for one model turn. Recv blocks until the next
// delta is available and returns io.EOF once the turn is exhausted; any
// other error is a transport failure. Close cancels the upstream call and
// releases the worker; it is safe to call concurrently with Recv and more
// than once.
type Stream interface {
	Recv() (Delta, error)
	Close() error
}

// Model is the minimal interface the conversation loop drives.
type Model interface {
	Stream(ctx context.Context, req Request) (Stream, error)

	// Name identifies the configured model for logging.
	Name() string
}
