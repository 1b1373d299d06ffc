// Package aijup provides a high-level façade over the conversation engine
// and its services (tool execution, session transcripts, logging) enabling
// quick embedding of the notebook prompt loop. Most applications interact
// with this package by:
//  1. Creating an AIJup via New() with a model adapter (optionally
//     overriding the default in-memory services)
//  2. Registering interpreter functions as tools (RegisterFunc)
//  3. Submitting prompts asynchronously (Prompt) or synchronously
//     (PromptSync), or mounting the HTTP surface (Handler)
//
// The façade delegates orchestration to engine.Loop while keeping setup
// ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply a Redis-backed session
// store and a structured logger.
package aijup

import (
	"context"
	"net/http"
	"time"

	"github.com/AnswerDotAI/ai-jup/core"
	"github.com/AnswerDotAI/ai-jup/engine"
	"github.com/AnswerDotAI/ai-jup/exec"
	"github.com/AnswerDotAI/ai-jup/logging"
	"github.com/AnswerDotAI/ai-jup/model"
	"github.com/AnswerDotAI/ai-jup/server"
	"github.com/AnswerDotAI/ai-jup/session"
	"github.com/AnswerDotAI/ai-jup/tool"
)

// Options configures the AIJup instance.
type Options struct {
	// Backend executes dispatched tool calls. Defaults to an in-process
	// backend; RegisterFunc only works with the default.
	Backend exec.Backend

	// Store persists conversation transcripts across requests carrying a
	// session identifier. Defaults to in-memory.
	Store session.Store

	// Authorizer gates prompt requests. Defaults to allowing everything.
	Authorizer server.Authorizer

	// Logger defaults to NoOp.
	Logger logging.Logger

	// TurnTimeout bounds a single model round-trip, DispatchTimeout a
	// single tool execution. Zero disables the respective bound.
	TurnTimeout     time.Duration
	DispatchTimeout time.Duration

	// SystemPrompt is appended to the built-in system instructions.
	SystemPrompt string
}

// AIJup is the high-level façade aggregating the conversation loop and its
// services.
type AIJup struct {
	opts    Options
	loop    *engine.Loop
	inproc  *exec.InProcessBackend
	handler http.Handler
}

// New creates a new AIJup instance around the given model adapter. Any
// unset service is initialized with an in-memory implementation.
func New(m model.Model, optFns ...func(o *Options)) *AIJup {
	inproc := exec.NewInProcessBackend()
	opts := Options{
		Backend:    inproc,
		Store:      session.NewInMemoryStore(),
		Authorizer: server.AllowAll{},
		Logger:     logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Backend != inproc {
		inproc = nil
	}

	dispatcher := tool.NewDispatcher(opts.Backend, exec.NewLockRegistry(),
		tool.WithTimeout(opts.DispatchTimeout),
		tool.WithLogger(opts.Logger),
	)
	loop := engine.New(m, dispatcher,
		engine.WithStore(opts.Store),
		engine.WithTurnTimeout(opts.TurnTimeout),
		engine.WithSystemPrompt(opts.SystemPrompt),
		engine.WithLogger(opts.Logger),
	)
	srv := server.New(loop,
		server.WithAuthorizer(opts.Authorizer),
		server.WithLogger(opts.Logger),
	)

	return &AIJup{opts: opts, loop: loop, inproc: inproc, handler: srv.Handler()}
}

// RegisterFunc exposes an interpreter function to the dispatcher. It returns
// an error when a custom Backend was supplied, since registration then
// belongs to that backend.
func (a *AIJup) RegisterFunc(name string, fn exec.Func) error {
	if a.inproc == nil {
		return core.NewError(core.CodeBackendUnavailable, "custom backend owns tool registration")
	}
	a.inproc.Register(name, fn)
	return nil
}

// Prompt starts an asynchronous conversation run, returning the event
// channel. The channel closes after the terminal event.
func (a *AIJup) Prompt(ctx context.Context, req core.PromptRequest) (<-chan core.StreamEvent, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return a.loop.Run(ctx, req), nil
}

// PromptSync is a synchronous helper that drains the event channel and
// returns the accumulated events.
func (a *AIJup) PromptSync(ctx context.Context, req core.PromptRequest) ([]core.StreamEvent, error) {
	events, err := a.Prompt(ctx, req)
	if err != nil {
		return nil, err
	}

	var collected []core.StreamEvent
	for {
		select {
		case <-ctx.Done():
			return collected, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return collected, nil
			}
			collected = append(collected, ev)
		}
	}
}

// Handler returns the HTTP surface serving the prompt API.
func (a *AIJup) Handler() http.Handler {
	return a.handler
}
