package policy

import (
	"context"

	"github.com/justapithecus/cukemsg/messages"
	"github.com/justapithecus/cukemsg/sink"
)

// StrictPolicy implements synchronous, unbuffered persistence.
//
//   - No buffering: each envelope is written immediately (batch of one)
//   - Backpressure: caller blocks on sink latency
//   - Sink errors are returned to the caller
type StrictPolicy struct {
	sink  sink.Sink
	stats *statsRecorder
}

// NewStrictPolicy creates a new strict policy writing to the given sink.
func NewStrictPolicy(s sink.Sink) *StrictPolicy {
	return &StrictPolicy{
		sink:  s,
		stats: newStatsRecorder(),
	}
}

// Ingest writes the envelope immediately to the sink.
func (p *StrictPolicy) Ingest(ctx context.Context, envelope *messages.Envelope) error {
	p.stats.ingest(envelope.Type())

	if err := p.sink.Write(ctx, []*messages.Envelope{envelope}); err != nil {
		p.stats.incErrors()
		return err
	}

	p.stats.incPersisted(1)
	return nil
}

// Flush is a no-op for strict policy (nothing is buffered).
func (p *StrictPolicy) Flush(_ context.Context) error {
	p.stats.incFlush()
	return nil
}

// Close closes the underlying sink.
func (p *StrictPolicy) Close() error {
	return p.sink.Close()
}

// Stats returns policy statistics.
func (p *StrictPolicy) Stats() Stats {
	return p.stats.snapshot()
}

var _ Policy = (*StrictPolicy)(nil)
