// Package sink defines the downstream boundary that receives built message
// envelopes.
//
// Sinks serialize and transmit envelopes; they never build or validate
// messages themselves. Implementations live in subpackages (stream, redis,
// webhook, lode).
package sink

import (
	"context"
	"sync"

	"github.com/justapithecus/cukemsg/messages"
)

// Sink persists or forwards batches of envelopes.
//
// Methods are batch-oriented to support both strict (batch of 1) and buffered
// policies. Callers serialize calls; implementations need not be safe for
// concurrent Write.
type Sink interface {
	// Write delivers a batch of envelopes.
	// Must preserve ordering within the batch.
	// Must respect context cancellation and deadlines.
	// Returns error on failure; caller decides whether to retry or fail.
	Write(ctx context.Context, envelopes []*messages.Envelope) error

	// Close releases any resources held by the sink.
	Close() error
}

// StubSink is a test sink that accepts writes without persisting.
// Tracks write statistics for test assertions.
type StubSink struct {
	mu sync.Mutex

	// MessagesWritten is the total count of envelopes written.
	MessagesWritten int64
	// Batches is the number of Write calls that succeeded.
	Batches int64
	// Closed indicates whether Close was called.
	Closed bool

	// Written stores all written envelopes for inspection.
	Written []*messages.Envelope
	// BatchSizes records the size of each successful batch, in order.
	BatchSizes []int

	// ErrorOnWrite, if non-nil, is returned by Write.
	ErrorOnWrite error
}

var _ Sink = (*StubSink)(nil)

// NewStubSink creates a new stub sink for testing.
func NewStubSink() *StubSink {
	return &StubSink{
		Written:    make([]*messages.Envelope, 0),
		BatchSizes: make([]int, 0),
	}
}

// Write records the envelopes without persisting.
func (s *StubSink) Write(_ context.Context, envelopes []*messages.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ErrorOnWrite != nil {
		return s.ErrorOnWrite
	}

	s.Batches++
	s.MessagesWritten += int64(len(envelopes))
	s.Written = append(s.Written, envelopes...)
	s.BatchSizes = append(s.BatchSizes, len(envelopes))

	return nil
}

// SetError sets or clears the error returned by Write.
func (s *StubSink) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ErrorOnWrite = err
}

// Close marks the sink as closed.
func (s *StubSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Closed = true
	return nil
}

// Stats returns a snapshot of sink statistics.
func (s *StubSink) Stats() StubSinkStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return StubSinkStats{
		MessagesWritten: s.MessagesWritten,
		Batches:         s.Batches,
		Closed:          s.Closed,
	}
}

// Types returns the message type of every written envelope, in order.
func (s *StubSink) Types() []messages.MessageType {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]messages.MessageType, len(s.Written))
	for i, env := range s.Written {
		out[i] = env.Type()
	}
	return out
}

// StubSinkStats is a snapshot of StubSink statistics.
type StubSinkStats struct {
	MessagesWritten int64
	Batches         int64
	Closed          bool
}
