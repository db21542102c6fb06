package policy

import (
	"context"

	"github.com/justapithecus/cukemsg/messages"
)

// NoopPolicy accepts envelopes without persisting them.
// Used for dry runs, where messages are built and validated but not sent.
type NoopPolicy struct {
	stats *statsRecorder
}

// NewNoopPolicy creates a new no-op policy.
func NewNoopPolicy() *NoopPolicy {
	return &NoopPolicy{stats: newStatsRecorder()}
}

// Ingest counts the envelope and discards it.
func (p *NoopPolicy) Ingest(_ context.Context, envelope *messages.Envelope) error {
	p.stats.ingest(envelope.Type())
	return nil
}

// Flush records the flush and returns nil.
func (p *NoopPolicy) Flush(_ context.Context) error {
	p.stats.incFlush()
	return nil
}

// Close is a no-op.
func (p *NoopPolicy) Close() error {
	return nil
}

// Stats returns policy statistics.
// MessagesPersisted is always zero.
func (p *NoopPolicy) Stats() Stats {
	return p.stats.snapshot()
}

var _ Policy = (*NoopPolicy)(nil)
