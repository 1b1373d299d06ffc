package tool

import (
	"context"
	"encoding/json"
	"time"

	"github.com/AnswerDotAI/ai-jup/core"
	"github.com/AnswerDotAI/ai-jup/exec"
	"github.com/AnswerDotAI/ai-jup/logging"
)

// Dispatcher routes completed tool calls to the execution backend. It owns
// the safety pipeline: resolve the name against the catalog, sanitize the
// arguments, serialize execution per session, and normalize the outcome
// into a core.ToolResult.
//
// A Dispatcher has no mutable state after construction and is safe for
// concurrent use; the lock registry provides the per-session ordering.
type Dispatcher struct {
	backend exec.Backend
	locks   *exec.LockRegistry
	timeout time.Duration
	logger  logging.Logger
}

// Options configures a Dispatcher.
type Options struct {
	// Timeout bounds a single backend execution, lock wait included.
	// Zero means no bound.
	Timeout time.Duration
	Logger  logging.Logger
}

// NewDispatcher creates a dispatcher over the given backend and lock
// registry.
func NewDispatcher(backend exec.Backend, locks *exec.LockRegistry, optFns ...func(o *Options)) *Dispatcher {
	opts := Options{Logger: logging.NewNoOpLogger()}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Dispatcher{backend: backend, locks: locks, timeout: opts.Timeout, logger: opts.Logger}
}

// WithTimeout sets the per-dispatch timeout.
func WithTimeout(d time.Duration) func(o *Options) {
	return func(o *Options) { o.Timeout = d }
}

// WithLogger sets the dispatcher logger.
func WithLogger(l logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = l }
}

// Dispatch executes one completed tool call against the session's
// interpreter. Recoverable failures (unknown tool, rejected arguments, a
// backend raise) come back as a failed ToolResult carrying the error
// message so the conversation can continue; the error return carries
// context cancellation and non-recoverable failures, which the caller
// treats as fatal to the run.
func (d *Dispatcher) Dispatch(ctx context.Context, sessionID string, catalog *Catalog, call *core.ToolCall) (core.ToolResult, error) {
	start := time.Now()
	result, err := d.dispatch(ctx, sessionID, catalog, call)
	if logged, ok := d.logger.(*logging.RunLogger); ok {
		logged.LogDispatch(call.Name, time.Since(start), err)
	} else if err != nil {
		d.logger.Error("tool dispatch failed", "tool", call.Name, "error", err)
	} else {
		d.logger.Debug("tool dispatch completed", "tool", call.Name, "duration", time.Since(start))
	}
	if err != nil {
		if ctx.Err() != nil {
			return core.ToolResult{}, ctx.Err()
		}
		if core.IsRecoverable(err) {
			return core.FailureResult(call.ID, err.Error()), nil
		}
		return core.ToolResult{}, err
	}
	return result, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, sessionID string, catalog *Catalog, call *core.ToolCall) (core.ToolResult, error) {
	if d.backend == nil {
		return core.ToolResult{}, core.NewError(core.CodeBackendUnavailable, "no execution backend configured for this session")
	}

	desc, err := catalog.Resolve(call.Name)
	if err != nil {
		return core.ToolResult{}, err
	}
	args, err := SanitizeArgs(json.RawMessage(call.RawInput()), desc.Params)
	if err != nil {
		return core.ToolResult{}, err
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	release, err := d.locks.Acquire(ctx, sessionID)
	if err != nil {
		return core.ToolResult{}, err
	}
	defer release()

	value, err := d.backend.Execute(ctx, sessionID, call.Name, args)
	if err != nil {
		return core.ToolResult{}, err
	}
	return core.SuccessResult(call.ID, value), nil
}
