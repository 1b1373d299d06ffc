// Package exec connects tool dispatch to the interpreter that actually runs
// notebook-defined functions. A Backend executes one named function with
// already-sanitized arguments inside a session's interpreter; the lock
// registry serializes execution per session, since the interpreter behind a
// session is single-threaded.
package exec

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/AnswerDotAI/ai-jup/core"
)

// Backend executes interpreter-defined functions. Execute returns the
// function's structured result serialized as a string; incidental stdout
// produced during execution is not part of the result.
type Backend interface {
	Execute(ctx context.Context, sessionID, name string, args map[string]any) (string, error)
}

// Func is the signature of an in-process handler.
type Func func(ctx context.Context, args map[string]any) (string, error)

// InProcessBackend runs functions registered as Go closures. It backs local
// deployments and tests; remote interpreters implement Backend directly.
type InProcessBackend struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewInProcessBackend creates an empty in-process backend.
func NewInProcessBackend() *InProcessBackend {
	return &InProcessBackend{funcs: map[string]Func{}}
}

// Register installs a handler under the given function name, replacing any
// previous handler.
func (b *InProcessBackend) Register(name string, fn Func) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.funcs[name] = fn
}

// Execute runs the named handler. A missing handler is an unknown_tool
// error; a handler error is wrapped as execution_failed.
func (b *InProcessBackend) Execute(ctx context.Context, sessionID, name string, args map[string]any) (string, error) {
	b.mu.RLock()
	fn, ok := b.funcs[name]
	b.mu.RUnlock()
	if !ok {
		return "", core.NewError(core.CodeUnknownTool, "no handler registered for %s", name)
	}
	out, err := fn(ctx, args)
	if err != nil {
		var perr *core.Error
		if errors.As(err, &perr) {
			return "", err
		}
		return "", core.NewError(core.CodeExecutionFailed, "%s: %v", name, err)
	}
	return out, nil
}

// LockRegistry hands out one mutex-like lock per session so that tool
// executions within a session never overlap. Acquisition is context-aware:
// a caller whose context expires while waiting gets the context error
// instead of blocking forever.
type LockRegistry struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewLockRegistry creates an empty registry.
func NewLockRegistry() *LockRegistry {
	return &LockRegistry{locks: map[string]chan struct{}{}}
}

func (r *LockRegistry) lock(sessionID string) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.locks[sessionID]
	if !ok {
		ch = make(chan struct{}, 1)
		r.locks[sessionID] = ch
	}
	return ch
}

// Acquire takes the session's lock, waiting until it is free or ctx is
// done. On success the caller must invoke the returned release function
// exactly once.
func (r *LockRegistry) Acquire(ctx context.Context, sessionID string) (release func(), err error) {
	ch := r.lock(sessionID)
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for session %s execution lock: %w", sessionID, ctx.Err())
	}
}
