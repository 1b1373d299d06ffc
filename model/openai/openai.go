// Package openai adapts the OpenAI Chat Completions API (streaming, with
// function calling) to the generic model.Model interface. Tool call deltas
// arrive indexed; the adapter aggregates id/name per index and forwards
// argument fragments as they stream.
package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/AnswerDotAI/ai-jup/core"
	"github.com/AnswerDotAI/ai-jup/model"
)

// aggCall tracks one indexed tool call while its deltas stream in.
type aggCall struct {
	id        string
	name      string
	announced bool
}

// Options configures the OpenAI model adapter.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	APIKey              string
}

// Model wraps the OpenAI Chat Completions API behind the generic model.Model interface.
type Model struct {
	client *openai.Client
	opts   Options
}

// NewModel creates a new OpenAI model using the official client.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := openai.NewClient(clientOpts...)
	return &Model{client: &client, opts: opts}
}

// NewModelFromClient creates a new OpenAI model from an existing client.
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
}

// Name implements model.Model.
func (m *Model) Name() string { return m.opts.Model }

// Stream implements model.Model.
func (m *Model) Stream(ctx context.Context, req model.Request) (model.Stream, error) {
	params := m.buildParams(req)
	return model.NewStream(ctx, func(ctx context.Context, deltas chan<- model.Delta) error {
		return m.run(ctx, params, deltas)
	}), nil
}

func (m *Model) run(ctx context.Context, params openai.ChatCompletionNewParams, deltas chan<- model.Delta) error {
	agg := map[int64]*aggCall{}
	stopReason := ""

	stream := m.client.Chat.Completions.NewStreaming(ctx, params)
	for stream.Next() {
		chunk := stream.Current()
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				if !send(ctx, deltas, model.Delta{Type: model.DeltaText, Text: choice.Delta.Content}) {
					return ctx.Err()
				}
			}
			for _, tc := range choice.Delta.ToolCalls {
				ac, ok := agg[tc.Index]
				if !ok {
					ac = &aggCall{}
					agg[tc.Index] = ac
				}
				if tc.ID != "" {
					ac.id = tc.ID
				}
				if tc.Function.Name != "" {
					ac.name = tc.Function.Name
				}
				if !ac.announced && ac.id != "" && ac.name != "" {
					ac.announced = true
					if !send(ctx, deltas, model.Delta{Type: model.DeltaToolCallStart, CallID: ac.id, Name: ac.name}) {
						return ctx.Err()
					}
				}
				if tc.Function.Arguments != "" && ac.announced {
					if !send(ctx, deltas, model.Delta{Type: model.DeltaToolInput, CallID: ac.id, Fragment: tc.Function.Arguments}) {
						return ctx.Err()
					}
				}
			}
			if choice.FinishReason != "" {
				stopReason = choice.FinishReason
				for _, ac := range agg {
					if !ac.announced {
						continue
					}
					if !send(ctx, deltas, model.Delta{Type: model.DeltaToolCallDone, CallID: ac.id}) {
						return ctx.Err()
					}
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("openai streaming error: %w", err)
	}
	if !send(ctx, deltas, model.Delta{Type: model.DeltaDone, StopReason: stopReason}) {
		return ctx.Err()
	}
	return nil
}

func send(ctx context.Context, deltas chan<- model.Delta, d model.Delta) bool {
	select {
	case deltas <- d:
		return true
	case <-ctx.Done():
		return false
	}
}

// buildParams assembles the request parameters, converting normalized
// contents into chat messages and tool definitions.
func (m *Model) buildParams(req model.Request) openai.ChatCompletionNewParams {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	for _, c := range req.Contents {
		switch c.Role {
		case core.RoleUser:
			if text := contentText(c); text != "" {
				messages = append(messages, openai.UserMessage(text))
			}
		case core.RoleAssistant:
			messages = append(messages, assistantMessage(c))
		case core.RoleTool:
			for _, p := range c.Parts {
				if tr, ok := p.(core.ToolResultPart); ok {
					content := tr.Result
					if tr.Error != "" {
						content = "Error: " + tr.Error
					}
					messages = append(messages, openai.ToolMessage(content, tr.ID))
				}
			}
		}
	}

	modelName := m.opts.Model
	if req.Model != "" {
		modelName = req.Model
	}
	maxTokens := m.opts.MaxCompletionTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	params := openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               modelName,
		Temperature:         openai.Float(m.opts.Temperature),
		MaxCompletionTokens: openai.Int(maxTokens),
	}
	if len(req.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
		for i, tdef := range req.Tools {
			tools[i] = openai.ChatCompletionToolParam{
				Type: "function",
				Function: openai.FunctionDefinitionParam{
					Name:        tdef.Name,
					Description: openai.String(tdef.Description),
					Parameters:  tdef.Parameters,
				},
			}
		}
		params.Tools = tools
	}
	return params
}

func contentText(c core.Content) string {
	var b strings.Builder
	for _, p := range c.Parts {
		if tp, ok := p.(core.TextPart); ok {
			b.WriteString(tp.Text)
		}
	}
	return b.String()
}

func assistantMessage(c core.Content) openai.ChatCompletionMessageParamUnion {
	var toolCalls []openai.ChatCompletionMessageToolCallParam
	for _, p := range c.Parts {
		if tc, ok := p.(core.ToolCallPart); ok {
			toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
				ID:   tc.ID,
				Type: "function",
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
	}
	text := contentText(c)
	if len(toolCalls) == 0 {
		return openai.AssistantMessage(text)
	}
	msg := &openai.ChatCompletionAssistantMessageParam{
		Role:      "assistant",
		ToolCalls: toolCalls,
	}
	if text != "" {
		msg.Content.OfString = openai.String(text)
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: msg}
}
