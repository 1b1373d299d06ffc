package model

import (
	"context"
	"sync"
)

// MockModel is a scripted in-memory Model for tests. Each call to Stream
// consumes the next scripted turn; requesting more turns than scripted
// yields a bare done turn.
type MockModel struct {
	mu       sync.Mutex
	turns    [][]Delta
	next     int
	err      error
	requests []Request
}

// NewMockModel constructs an empty mock. Add turns with AddTurn.
func NewMockModel() *MockModel {
	return &MockModel{}
}

// AddTurn appends one scripted turn. A trailing DeltaDone is added when the
// script omits it.
func (m *MockModel) AddTurn(deltas ...Delta) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(deltas) == 0 || deltas[len(deltas)-1].Type != DeltaDone {
		deltas = append(deltas, Delta{Type: DeltaDone, StopReason: "end_turn"})
	}
	m.turns = append(m.turns, deltas)
	return m
}

// FailWith makes every subsequent Stream call return err.
func (m *MockModel) FailWith(err error) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// Requests returns every Request passed to Stream, in order.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Stream implements Model.
func (m *MockModel) Stream(ctx context.Context, req Request) (Stream, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		err := m.err
		m.mu.Unlock()
		return nil, err
	}
	var turn []Delta
	if m.next < len(m.turns) {
		turn = m.turns[m.next]
		m.next++
	} else {
		turn = []Delta{{Type: DeltaDone, StopReason: "end_turn"}}
	}
	m.mu.Unlock()

	return NewStream(ctx, func(ctx context.Context, deltas chan<- Delta) error {
		for _, d := range turn {
			select {
			case deltas <- d:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	}), nil
}

// Name implements Model.
func (m *MockModel) Name() string { return "mock" }
