package model

import (
	"context"
	"io"
	"sync"
)

// eventStream adapts a blocking producer function into the non-blocking
// Stream interface. The producer runs in its own goroutine and sends deltas
// into a buffered channel; closing the channel after the producer returns
// publishes its final error to Recv.
type eventStream struct {
	cancel context.CancelFunc
	deltas chan Delta
	err    error

	closeOnce sync.Once
}

// NewStream runs the producer in a worker goroutine and returns a Stream
// over its output. The producer must send on the channel it is given and
// return when ctx is done; a nil return means the turn completed and Recv
// will report io.EOF after the buffered deltas drain.
func NewStream(ctx context.Context, run func(ctx context.Context, deltas chan<- Delta) error) Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &eventStream{cancel: cancel, deltas: make(chan Delta, 32)}
	go func() {
		s.err = run(ctx, s.deltas)
		close(s.deltas)
	}()
	return s
}

// Recv returns the next delta, io.EOF on normal exhaustion, or the
// producer's error.
func (s *eventStream) Recv() (Delta, error) {
	d, ok := <-s.deltas
	if !ok {
		if s.err != nil {
			return Delta{}, s.err
		}
		return Delta{}, io.EOF
	}
	return d, nil
}

// Close cancels the producer and drains any buffered deltas so the worker
// can exit even if the consumer stopped reading mid-turn.
func (s *eventStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		go func() {
			for range s.deltas {
			}
		}()
	})
	return nil
}
