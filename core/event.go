package core

import (
	"encoding/json"
	"errors"

	"github.com/google/uuid"
)

// EventType enumerates the closed set of StreamEvent variants.
type EventType string

const (
	// EventText carries an incremental assistant text delta.
	EventText EventType = "text"
	// EventToolCall announces a model-requested tool invocation (id + name).
	EventToolCall EventType = "tool_call"
	// EventToolInput carries a raw JSON fragment of a tool call's arguments.
	EventToolInput EventType = "tool_input"
	// EventToolResult reports the outcome of a previously announced call.
	EventToolResult EventType = "tool_result"
	// EventError reports an in-band failure.
	EventError EventType = "error"
	// EventDone terminates the conversation stream.
	EventDone EventType = "done"
)

// DoneReasonMaxSteps distinguishes a step-bound termination from a model
// completing on its own.
const DoneReasonMaxSteps = "max_steps"

// ToolCallRef is the announcement payload of an EventToolCall.
type ToolCallRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ToolInputDelta is one streamed fragment of a call's raw argument JSON.
type ToolInputDelta struct {
	ID       string `json:"id"`
	Fragment string `json:"fragment"`
}

// StreamEvent is the tagged variant flowing from the conversation loop to
// the client. Exactly one payload field is set, selected by Type. Encoding
// and decoding are exhaustive over the variant set; decoders treat unknown
// shapes as ignorable, never fatal.
type StreamEvent struct {
	Type       EventType
	Text       string
	Call       *ToolCallRef
	Input      *ToolInputDelta
	Result     *ToolResult
	Err        *Error
	DoneReason string
}

// ErrUnknownEvent is returned by DecodeEvent for frames that are valid JSON
// objects but match no known variant. Consumers skip such frames.
var ErrUnknownEvent = errors.New("unknown stream event")

// TextEvent creates a text delta event.
func TextEvent(delta string) StreamEvent {
	return StreamEvent{Type: EventText, Text: delta}
}

// ToolCallEvent announces a tool call.
func ToolCallEvent(id, name string) StreamEvent {
	return StreamEvent{Type: EventToolCall, Call: &ToolCallRef{ID: id, Name: name}}
}

// ToolInputEvent carries an argument fragment for an open tool call.
func ToolInputEvent(id, fragment string) StreamEvent {
	return StreamEvent{Type: EventToolInput, Input: &ToolInputDelta{ID: id, Fragment: fragment}}
}

// ToolResultEvent reports a completed tool execution.
func ToolResultEvent(result ToolResult) StreamEvent {
	return StreamEvent{Type: EventToolResult, Result: &result}
}

// ErrorEvent reports an in-band failure.
func ErrorEvent(err *Error) StreamEvent {
	return StreamEvent{Type: EventError, Err: err}
}

// DoneEvent terminates the stream. reason is empty for normal completion or
// DoneReasonMaxSteps when the step bound forced termination.
func DoneEvent(reason string) StreamEvent {
	return StreamEvent{Type: EventDone, DoneReason: reason}
}

// MarshalJSON encodes the event as a single-key object per the wire
// contract: {"text":...}, {"tool_call":{...}}, {"tool_input":{...}},
// {"tool_result":{...}}, {"error":{...}}, {"done":true[,"reason":...]}.
func (e StreamEvent) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventText:
		return json.Marshal(map[string]string{"text": e.Text})
	case EventToolCall:
		return json.Marshal(map[string]*ToolCallRef{"tool_call": e.Call})
	case EventToolInput:
		return json.Marshal(map[string]*ToolInputDelta{"tool_input": e.Input})
	case EventToolResult:
		return json.Marshal(map[string]*ToolResult{"tool_result": e.Result})
	case EventError:
		return json.Marshal(map[string]*Error{"error": e.Err})
	case EventDone:
		if e.DoneReason != "" {
			return json.Marshal(map[string]any{"done": true, "reason": e.DoneReason})
		}
		return json.Marshal(map[string]bool{"done": true})
	}
	return nil, ErrUnknownEvent
}

// UnmarshalJSON decodes the single-key wire form. Unknown sibling keys are
// ignored for forward compatibility.
func (e *StreamEvent) UnmarshalJSON(data []byte) error {
	ev, err := DecodeEvent(data)
	if err != nil {
		return err
	}
	*e = ev
	return nil
}

// DecodeEvent parses one wire frame payload into a StreamEvent. Returns
// ErrUnknownEvent when no known variant key is present; returns a JSON
// error when the payload is not an object or a payload field is malformed.
func DecodeEvent(data []byte) (StreamEvent, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return StreamEvent{}, err
	}
	if v, ok := raw["text"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return StreamEvent{}, err
		}
		return TextEvent(s), nil
	}
	if v, ok := raw["tool_call"]; ok {
		var ref ToolCallRef
		if err := json.Unmarshal(v, &ref); err != nil {
			return StreamEvent{}, err
		}
		return StreamEvent{Type: EventToolCall, Call: &ref}, nil
	}
	if v, ok := raw["tool_input"]; ok {
		var delta ToolInputDelta
		if err := json.Unmarshal(v, &delta); err != nil {
			return StreamEvent{}, err
		}
		return StreamEvent{Type: EventToolInput, Input: &delta}, nil
	}
	if v, ok := raw["tool_result"]; ok {
		var res ToolResult
		if err := json.Unmarshal(v, &res); err != nil {
			return StreamEvent{}, err
		}
		return StreamEvent{Type: EventToolResult, Result: &res}, nil
	}
	if v, ok := raw["error"]; ok {
		perr, err := decodeErrorPayload(v)
		if err != nil {
			return StreamEvent{}, err
		}
		return StreamEvent{Type: EventError, Err: perr}, nil
	}
	if _, ok := raw["done"]; ok {
		reason := ""
		if v, ok := raw["reason"]; ok {
			_ = json.Unmarshal(v, &reason)
		}
		return DoneEvent(reason), nil
	}
	return StreamEvent{}, ErrUnknownEvent
}

// decodeErrorPayload accepts both the structured {"code","message"} form and
// a bare message string, which older emitters used.
func decodeErrorPayload(v json.RawMessage) (*Error, error) {
	var perr Error
	if err := json.Unmarshal(v, &perr); err == nil && (perr.Code != "" || perr.Message != "") {
		return &perr, nil
	}
	var msg string
	if err := json.Unmarshal(v, &msg); err != nil {
		return nil, err
	}
	return &Error{Code: CodeExecutionFailed, Message: msg}, nil
}

// NewID generates a unique identifier for runs and tool calls.
func NewID() string { return uuid.NewString() }
