package core

import (
	"encoding/json"
	"fmt"
)

// Conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Part is a polymorphic segment of role-based content. Concrete part types
// implement the unexported isPart marker enabling a closed set.
type Part interface{ isPart() }

// TextPart is a plain text content segment.
type TextPart struct {
	Text string `json:"text"`
}

func (TextPart) isPart() {}

// ToolCallPart records a completed tool invocation request in a transcript:
// the announced call with its full argument JSON.
type ToolCallPart struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
}

func (ToolCallPart) isPart() {}

// ToolResultPart records the outcome of a tool call in a transcript.
type ToolResultPart struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (ToolResultPart) isPart() {}

// Content holds role + ordered parts. One Content is one transcript turn.
type Content struct {
	Role  string
	Parts []Part
}

// UserText builds a single-part user turn.
func UserText(text string) Content {
	return Content{Role: RoleUser, Parts: []Part{TextPart{Text: text}}}
}

// AssistantText builds a single-part assistant turn.
func AssistantText(text string) Content {
	return Content{Role: RoleAssistant, Parts: []Part{TextPart{Text: text}}}
}

// Text concatenates the content's text parts.
func (c Content) Text() string {
	out := ""
	for _, p := range c.Parts {
		if tp, ok := p.(TextPart); ok {
			out += tp.Text
		}
	}
	return out
}

// taggedPart is the persisted form of a Part: a type tag plus the variant
// payload, so transcripts survive a round trip through external stores.
type taggedPart struct {
	Type       string          `json:"type"`
	Text       *TextPart       `json:"text,omitempty"`
	ToolCall   *ToolCallPart   `json:"tool_call,omitempty"`
	ToolResult *ToolResultPart `json:"tool_result,omitempty"`
}

type persistedContent struct {
	Role  string       `json:"role"`
	Parts []taggedPart `json:"parts"`
}

// MarshalJSON encodes the content with tagged parts.
func (c Content) MarshalJSON() ([]byte, error) {
	pc := persistedContent{Role: c.Role, Parts: make([]taggedPart, 0, len(c.Parts))}
	for _, p := range c.Parts {
		switch v := p.(type) {
		case TextPart:
			pc.Parts = append(pc.Parts, taggedPart{Type: "text", Text: &v})
		case ToolCallPart:
			pc.Parts = append(pc.Parts, taggedPart{Type: "tool_call", ToolCall: &v})
		case ToolResultPart:
			pc.Parts = append(pc.Parts, taggedPart{Type: "tool_result", ToolResult: &v})
		default:
			return nil, fmt.Errorf("content: unsupported part type %T", p)
		}
	}
	return json.Marshal(pc)
}

// UnmarshalJSON decodes tagged parts, skipping unrecognized tags.
func (c *Content) UnmarshalJSON(data []byte) error {
	var pc persistedContent
	if err := json.Unmarshal(data, &pc); err != nil {
		return err
	}
	c.Role = pc.Role
	c.Parts = c.Parts[:0]
	for _, tp := range pc.Parts {
		switch {
		case tp.Type == "text" && tp.Text != nil:
			c.Parts = append(c.Parts, *tp.Text)
		case tp.Type == "tool_call" && tp.ToolCall != nil:
			c.Parts = append(c.Parts, *tp.ToolCall)
		case tp.Type == "tool_result" && tp.ToolResult != nil:
			c.Parts = append(c.Parts, *tp.ToolResult)
		}
	}
	return nil
}
