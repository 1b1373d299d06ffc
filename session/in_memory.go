package session

import (
	"context"
	"sync"

	"github.com/AnswerDotAI/ai-jup/core"
)

// InMemoryStore is a volatile Store keeping transcripts in a process local
// map. It is safe for concurrent access and best suited for tests or
// single-node deployments. History returns a copy to prevent external
// mutation of internal state.
type InMemoryStore struct {
	mu          sync.RWMutex
	transcripts map[string][]core.Content
}

// NewInMemoryStore constructs an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{transcripts: make(map[string][]core.Content)}
}

// Append implements Store.
func (s *InMemoryStore) Append(ctx context.Context, sessionID string, turns ...core.Content) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcripts[sessionID] = append(s.transcripts[sessionID], turns...)
	return nil
}

// History implements Store.
func (s *InMemoryStore) History(ctx context.Context, sessionID string) ([]core.Content, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.transcripts[sessionID]
	out := make([]core.Content, len(stored))
	copy(out, stored)
	return out, nil
}

// Clear implements Store.
func (s *InMemoryStore) Clear(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.transcripts, sessionID)
	return nil
}
