// Package engine drives one prompt through the model, executing requested
// tools between turns until the model answers without tool calls, the step
// bound is reached, or a fatal failure occurs. Events stream out as they
// happen; the loop owns the guarantee that every run ends with exactly one
// terminal event on a live connection.
package engine

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/AnswerDotAI/ai-jup/core"
	"github.com/AnswerDotAI/ai-jup/logging"
	"github.com/AnswerDotAI/ai-jup/model"
	"github.com/AnswerDotAI/ai-jup/session"
	"github.com/AnswerDotAI/ai-jup/tool"
)

// Loop orchestrates model turns and tool dispatch for prompt runs. A Loop
// is stateless across runs and safe for concurrent use; each Run owns its
// conversation.
type Loop struct {
	model       model.Model
	dispatcher  *tool.Dispatcher
	store       session.Store
	logger      logging.Logger
	turnTimeout time.Duration
	system      string
}

// Options configures a Loop.
type Options struct {
	// Store persists transcripts for requests carrying a session ID.
	Store session.Store
	// TurnTimeout bounds one model round-trip. Zero means no bound.
	TurnTimeout time.Duration
	// SystemPrompt is appended to the built-in system prompt.
	SystemPrompt string
	Logger       logging.Logger
}

// New creates a Loop. dispatcher may be nil when no execution backend is
// configured; tool-use requests then fail in-band.
func New(m model.Model, dispatcher *tool.Dispatcher, optFns ...func(o *Options)) *Loop {
	opts := Options{Logger: logging.NewNoOpLogger()}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Loop{
		model:       m,
		dispatcher:  dispatcher,
		store:       opts.Store,
		logger:      opts.Logger,
		turnTimeout: opts.TurnTimeout,
		system:      opts.SystemPrompt,
	}
}

// WithStore sets the transcript store.
func WithStore(s session.Store) func(o *Options) {
	return func(o *Options) { o.Store = s }
}

// WithTurnTimeout bounds each model round-trip.
func WithTurnTimeout(d time.Duration) func(o *Options) {
	return func(o *Options) { o.TurnTimeout = d }
}

// WithSystemPrompt appends deployment-specific instructions.
func WithSystemPrompt(s string) func(o *Options) {
	return func(o *Options) { o.SystemPrompt = s }
}

// WithLogger sets the loop logger.
func WithLogger(l logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = l }
}

// Run executes the conversation for a validated request. Events arrive on
// the returned channel in order; the channel closes after the terminal
// event, or without one only when ctx is cancelled first.
func (l *Loop) Run(ctx context.Context, req core.PromptRequest) <-chan core.StreamEvent {
	out := make(chan core.StreamEvent, 32)
	go func() {
		defer close(out)
		l.run(ctx, req, out)
	}()
	return out
}

// turnOutput is what one model round-trip produced: accumulated text plus
// the announced tool calls in announcement order.
type turnOutput struct {
	text  string
	calls []*core.ToolCall
}

func (l *Loop) run(ctx context.Context, req core.PromptRequest, out chan<- core.StreamEvent) {
	emit := func(ev core.StreamEvent) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	runID := core.NewID()
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = runID
	}
	logger := l.logger
	if rl, ok := logger.(*logging.RunLogger); ok {
		logger = rl.WithRun(req.SessionID, runID)
	}

	catalog := tool.NewCatalog(req.Context.Functions)
	prompt := SubstituteVars(req.Prompt, req.Context.Variables)
	system := buildSystemPrompt(l.system, req.Context)
	tools := toolDefinitions(catalog)

	var contents []core.Content
	if l.store != nil && req.SessionID != "" {
		hist, err := l.store.History(ctx, req.SessionID)
		if err != nil {
			logger.Warn("failed to load transcript, starting fresh", "error", err)
		} else {
			contents = hist
		}
	}
	userTurn := core.UserText(prompt)
	contents = append(contents, userTurn)
	l.persist(ctx, req.SessionID, logger, userTurn)

	// IDs announced so far in this conversation. A provider re-sending an
	// already-announced ID is ignored rather than forwarded twice.
	seen := map[string]bool{}
	steps := 0

	for {
		turn, err := l.runModelTurn(ctx, model.Request{
			Model:    req.Model,
			System:   system,
			Contents: contents,
			Tools:    tools,
		}, seen, emit, logger)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			emit(core.ErrorEvent(core.NewError(core.CodeUpstreamTransport, "model stream failed: %v", err)))
			return
		}

		assistantTurn := buildAssistantTurn(turn)
		contents = append(contents, assistantTurn)
		l.persist(ctx, req.SessionID, logger, assistantTurn)

		if len(turn.calls) == 0 {
			emit(core.DoneEvent(""))
			return
		}

		if steps >= req.MaxSteps {
			emit(core.DoneEvent(core.DoneReasonMaxSteps))
			return
		}

		if l.dispatcher == nil {
			emit(core.ErrorEvent(core.NewError(core.CodeBackendUnavailable, "tool calls requested but no execution backend is configured")))
			return
		}

		toolTurn := core.Content{Role: core.RoleTool}
		for _, call := range turn.calls {
			res, err := l.dispatcher.Dispatch(ctx, sessionID, catalog, call)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				var perr *core.Error
				if !errors.As(err, &perr) {
					perr = core.NewError(core.CodeOf(err), "tool dispatch failed: %v", err)
				}
				emit(core.ErrorEvent(perr))
				return
			}
			if !emit(core.ToolResultEvent(res)) {
				return
			}
			toolTurn.Parts = append(toolTurn.Parts, core.ToolResultPart{
				ID:     call.ID,
				Name:   call.Name,
				Result: res.Result,
				Error:  res.Error,
			})
		}
		contents = append(contents, toolTurn)
		l.persist(ctx, req.SessionID, logger, toolTurn)
		steps++
	}
}

// runModelTurn streams one model round-trip, forwarding deltas live and
// collecting the turn's text and tool calls.
func (l *Loop) runModelTurn(ctx context.Context, req model.Request, seen map[string]bool, emit func(core.StreamEvent) bool, logger logging.Logger) (*turnOutput, error) {
	turnCtx := ctx
	if l.turnTimeout > 0 {
		var cancel context.CancelFunc
		turnCtx, cancel = context.WithTimeout(ctx, l.turnTimeout)
		defer cancel()
	}

	start := time.Now()
	stream, err := l.model.Stream(turnCtx, req)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var text strings.Builder
	turn := &turnOutput{}
	byID := map[string]*core.ToolCall{}

	for {
		delta, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			if rl, ok := logger.(*logging.RunLogger); ok {
				rl.LogModelTurn(l.model.Name(), len(turn.calls), time.Since(start), err)
			}
			return nil, err
		}

		switch delta.Type {
		case model.DeltaText:
			text.WriteString(delta.Text)
			if !emit(core.TextEvent(delta.Text)) {
				return nil, ctx.Err()
			}
		case model.DeltaToolCallStart:
			id := delta.CallID
			if id == "" {
				id = core.NewID()
			}
			if seen[id] {
				logger.Warn("duplicate tool call id from provider, ignoring", "id", id)
				continue
			}
			seen[id] = true
			call := core.NewToolCall(id, delta.Name)
			byID[id] = call
			if delta.CallID != id {
				// Fragments for a minted ID still arrive under the
				// provider's original key.
				byID[delta.CallID] = call
			}
			turn.calls = append(turn.calls, call)
			if !emit(core.ToolCallEvent(id, delta.Name)) {
				return nil, ctx.Err()
			}
		case model.DeltaToolInput:
			call, ok := byID[delta.CallID]
			if !ok {
				continue
			}
			call.AppendInput(delta.Fragment)
			if !emit(core.ToolInputEvent(call.ID, delta.Fragment)) {
				return nil, ctx.Err()
			}
		case model.DeltaDone:
		}
	}

	if rl, ok := logger.(*logging.RunLogger); ok {
		rl.LogModelTurn(l.model.Name(), len(turn.calls), time.Since(start), nil)
	}
	turn.text = text.String()
	return turn, nil
}

func buildAssistantTurn(turn *turnOutput) core.Content {
	content := core.Content{Role: core.RoleAssistant}
	if turn.text != "" {
		content.Parts = append(content.Parts, core.TextPart{Text: turn.text})
	}
	for _, call := range turn.calls {
		content.Parts = append(content.Parts, core.ToolCallPart{
			ID:        call.ID,
			Name:      call.Name,
			Arguments: call.RawInput(),
		})
	}
	return content
}

func (l *Loop) persist(ctx context.Context, sessionID string, logger logging.Logger, turn core.Content) {
	if l.store == nil || sessionID == "" {
		return
	}
	if err := l.store.Append(ctx, sessionID, turn); err != nil {
		logger.Warn("failed to persist turn", "error", err)
	}
}
