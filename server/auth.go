package server

import (
	"net/http"
	"strings"
	"sync"

	"github.com/AnswerDotAI/ai-jup/core"
)

// Authorizer decides whether a bearer token may act on a session. An empty
// sessionID means the request is stateless and only the token is checked.
type Authorizer interface {
	Authorize(token, sessionID string) error
}

// AllowAll accepts every request. Intended for local single-user
// deployments where the notebook and server share a machine.
type AllowAll struct{}

// Authorize implements Authorizer.
func (AllowAll) Authorize(token, sessionID string) error { return nil }

// TokenAuthorizer authorizes callers against a fixed token set and binds
// each session to the token that first used it. A request naming another
// caller's session is rejected, never silently redirected.
type TokenAuthorizer struct {
	tokens map[string]bool

	mu     sync.Mutex
	owners map[string]string
}

// NewTokenAuthorizer creates an authorizer accepting the given tokens.
func NewTokenAuthorizer(tokens ...string) *TokenAuthorizer {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return &TokenAuthorizer{tokens: set, owners: map[string]string{}}
}

// Authorize implements Authorizer.
func (a *TokenAuthorizer) Authorize(token, sessionID string) error {
	if !a.tokens[token] {
		return core.NewError(core.CodeUnauthorized, "invalid or missing bearer token")
	}
	if sessionID == "" {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	owner, claimed := a.owners[sessionID]
	if !claimed {
		a.owners[sessionID] = token
		return nil
	}
	if owner != token {
		return core.NewError(core.CodeUnauthorized, "session %s belongs to another caller", sessionID)
	}
	return nil
}

// bearerToken extracts the token from an Authorization header.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}
