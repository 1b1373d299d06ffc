// Package anthropic adapts the Anthropic Messages API (streaming, with tool
// use) to the generic model.Model interface. Tool argument JSON arrives as
// input_json_delta fragments which are forwarded verbatim so the caller can
// stream them onward before the call completes.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/AnswerDotAI/ai-jup/core"
	"github.com/AnswerDotAI/ai-jup/model"
)

// Options configures the Anthropic model adapter.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Model wraps the Anthropic Messages API behind the generic model.Model interface.
type Model struct {
	client *anthropic.Client
	opts   Options
}

// NewModel creates a new Anthropic model using the official client.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)
	return &Model{client: &client, opts: opts}
}

// NewModelFromClient creates a new Anthropic model from an existing client.
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
}

// Name implements model.Model.
func (m *Model) Name() string { return string(m.opts.Model) }

// Stream implements model.Model. The returned stream yields text deltas and
// tool-call deltas as they arrive; Close cancels the upstream request.
func (m *Model) Stream(ctx context.Context, req model.Request) (model.Stream, error) {
	params := anthropic.MessageNewParams{
		Model:       m.chooseModel(req.Model),
		Messages:    buildMessages(req.Contents),
		MaxTokens:   m.maxTokens(req.MaxTokens),
		Temperature: anthropic.Float(m.opts.Temperature),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}

	return model.NewStream(ctx, func(ctx context.Context, deltas chan<- Delta) error {
		return m.run(ctx, params, deltas)
	}), nil
}

// Delta aliases model.Delta for the producer closure signature.
type Delta = model.Delta

func (m *Model) run(ctx context.Context, params anthropic.MessageNewParams, deltas chan<- Delta) error {
	// Index of the currently open tool_use block, keyed by content block
	// index, so input fragments can be attributed to their call.
	openCalls := map[int64]string{}
	stopReason := ""

	stream := m.client.Messages.NewStreaming(ctx, params)
	for stream.Next() {
		event := stream.Current()
		switch variant := event.AsAny().(type) {
		case anthropic.ContentBlockStartEvent:
			if block, ok := variant.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
				openCalls[variant.Index] = block.ID
				if !send(ctx, deltas, Delta{Type: model.DeltaToolCallStart, CallID: block.ID, Name: block.Name}) {
					return ctx.Err()
				}
			}
		case anthropic.ContentBlockDeltaEvent:
			switch d := variant.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if d.Text != "" {
					if !send(ctx, deltas, Delta{Type: model.DeltaText, Text: d.Text}) {
						return ctx.Err()
					}
				}
			case anthropic.InputJSONDelta:
				id, ok := openCalls[variant.Index]
				if ok && d.PartialJSON != "" {
					if !send(ctx, deltas, Delta{Type: model.DeltaToolInput, CallID: id, Fragment: d.PartialJSON}) {
						return ctx.Err()
					}
				}
			}
		case anthropic.ContentBlockStopEvent:
			if id, ok := openCalls[variant.Index]; ok {
				delete(openCalls, variant.Index)
				if !send(ctx, deltas, Delta{Type: model.DeltaToolCallDone, CallID: id}) {
					return ctx.Err()
				}
			}
		case anthropic.MessageDeltaEvent:
			if variant.Delta.StopReason != "" {
				stopReason = string(variant.Delta.StopReason)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("anthropic streaming error: %w", err)
	}
	if !send(ctx, deltas, Delta{Type: model.DeltaDone, StopReason: stopReason}) {
		return ctx.Err()
	}
	return nil
}

func send(ctx context.Context, deltas chan<- Delta, d Delta) bool {
	select {
	case deltas <- d:
		return true
	case <-ctx.Done():
		return false
	}
}

func (m *Model) chooseModel(override string) anthropic.Model {
	if override != "" {
		return anthropic.Model(override)
	}
	return m.opts.Model
}

func (m *Model) maxTokens(override int64) int64 {
	if override > 0 {
		return override
	}
	return m.opts.MaxTokens
}

// buildMessages converts normalized contents to Anthropic message params.
// Tool results always travel in user-role messages per the Messages API.
func buildMessages(contents []core.Content) []anthropic.MessageParam {
	var messages []anthropic.MessageParam
	for _, c := range contents {
		switch c.Role {
		case core.RoleUser:
			if blocks := textBlocks(c.Parts); len(blocks) > 0 {
				messages = append(messages, anthropic.NewUserMessage(blocks...))
			}
		case core.RoleAssistant:
			if blocks := assistantBlocks(c.Parts); len(blocks) > 0 {
				messages = append(messages, anthropic.NewAssistantMessage(blocks...))
			}
		case core.RoleTool:
			if blocks := toolResultBlocks(c.Parts); len(blocks) > 0 {
				messages = append(messages, anthropic.NewUserMessage(blocks...))
			}
		}
	}
	return messages
}

func textBlocks(parts []core.Part) []anthropic.ContentBlockParamUnion {
	var blocks []anthropic.ContentBlockParamUnion
	for _, p := range parts {
		if tp, ok := p.(core.TextPart); ok && tp.Text != "" {
			blocks = append(blocks, anthropic.NewTextBlock(tp.Text))
		}
	}
	return blocks
}

func assistantBlocks(parts []core.Part) []anthropic.ContentBlockParamUnion {
	var blocks []anthropic.ContentBlockParamUnion
	for _, p := range parts {
		switch part := p.(type) {
		case core.TextPart:
			if part.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(part.Text))
			}
		case core.ToolCallPart:
			var input any
			if part.Arguments != "" {
				if err := json.Unmarshal([]byte(part.Arguments), &input); err != nil {
					input = part.Arguments
				}
			}
			blocks = append(blocks, anthropic.NewToolUseBlock(part.ID, input, part.Name))
		}
	}
	return blocks
}

func toolResultBlocks(parts []core.Part) []anthropic.ContentBlockParamUnion {
	var blocks []anthropic.ContentBlockParamUnion
	for _, p := range parts {
		if tr, ok := p.(core.ToolResultPart); ok {
			content := tr.Result
			isError := false
			if tr.Error != "" {
				content = tr.Error
				isError = true
			}
			blocks = append(blocks, anthropic.NewToolResultBlock(tr.ID, content, isError))
		}
	}
	return blocks
}

// buildTools converts tool definitions to the Anthropic tool format.
func buildTools(tools []model.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(tools))
	for i, tool := range tools {
		schema := anthropic.ToolInputSchemaParam{Type: constant.Object("object")}
		if tool.Parameters != nil {
			if properties, ok := tool.Parameters["properties"]; ok {
				schema.Properties = properties
			}
			if required, ok := tool.Parameters["required"]; ok {
				schema.Required = stringSlice(required)
			}
		}
		out[i] = anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if tool.Description != "" {
			out[i].OfTool.Description = anthropic.String(tool.Description)
		}
	}
	return out
}

func stringSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		var out []string
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
