package policy

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/justapithecus/cukemsg/log"
	"github.com/justapithecus/cukemsg/messages"
	"github.com/justapithecus/cukemsg/sink"
)

// DefaultBufferMessages is the buffer capacity used by DefaultBufferedConfig.
const DefaultBufferMessages = 100

// BufferedConfig configures a BufferedPolicy.
type BufferedConfig struct {
	// MaxBufferMessages is the number of envelopes that triggers a flush.
	// Must be positive.
	MaxBufferMessages int

	// Logger is an optional logger for policy observability.
	// If nil, no logging is emitted.
	Logger *log.Logger
}

// DefaultBufferedConfig returns sensible defaults for buffered policy.
func DefaultBufferedConfig() BufferedConfig {
	return BufferedConfig{MaxBufferMessages: DefaultBufferMessages}
}

// ErrBufferFull is returned when the buffer is at capacity and the flush
// needed to make room failed.
var ErrBufferFull = errors.New("buffer full")

// ErrInvalidConfig is returned when BufferedConfig is invalid.
var ErrInvalidConfig = errors.New("invalid config: MaxBufferMessages must be positive")

// BufferedPolicy batches envelopes and writes them in one sink call.
//
// A flush is triggered when:
//   - the buffer reaches MaxBufferMessages
//   - a terminal message (test_run_finished) is ingested
//   - Flush or Close is called
//
// A failed flush keeps the whole buffer; the next flush rewrites it. Sinks
// may therefore see a batch more than once, never a gap.
type BufferedPolicy struct {
	sink   sink.Sink
	config BufferedConfig
	logger *log.Logger

	// flushMu serializes sink writes so batches stay in ingest order.
	flushMu sync.Mutex

	mu     sync.Mutex // guards buffer and stats
	buffer []*messages.Envelope
	stats  *statsRecorder
}

// NewBufferedPolicy creates a new buffered policy.
// Returns error if config is invalid.
func NewBufferedPolicy(s sink.Sink, config BufferedConfig) (*BufferedPolicy, error) {
	if config.MaxBufferMessages <= 0 {
		return nil, ErrInvalidConfig
	}

	return &BufferedPolicy{
		sink:   s,
		config: config,
		logger: config.Logger,
		buffer: make([]*messages.Envelope, 0, config.MaxBufferMessages),
		stats:  newStatsRecorder(),
	}, nil
}

// Ingest buffers the envelope and flushes if a trigger fires.
//
// If the buffer is still full from an earlier failed flush, Ingest retries
// that flush first and rejects the envelope with ErrBufferFull if it fails.
// If a flush triggered by this envelope fails, the envelope stays buffered
// and the error wraps ErrFlushFailed.
func (p *BufferedPolicy) Ingest(ctx context.Context, envelope *messages.Envelope) error {
	p.mu.Lock()
	full := len(p.buffer) >= p.config.MaxBufferMessages
	p.mu.Unlock()

	if full {
		if err := p.Flush(ctx); err != nil {
			p.logBufferFull(envelope.Type())
			return fmt.Errorf("%w: %w", ErrBufferFull, err)
		}
	}

	p.mu.Lock()
	p.stats.ingestLocked(envelope.Type())
	p.buffer = append(p.buffer, envelope)
	trigger := len(p.buffer) >= p.config.MaxBufferMessages || envelope.Type().IsTerminal()
	p.mu.Unlock()

	if trigger {
		if err := p.Flush(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrFlushFailed, err)
		}
	}
	return nil
}

// Flush writes all buffered envelopes as one batch.
func (p *BufferedPolicy) Flush(ctx context.Context) error {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	p.mu.Lock()
	p.stats.incFlushLocked()
	batch := p.buffer
	p.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	if err := p.sink.Write(ctx, batch); err != nil {
		p.mu.Lock()
		p.stats.incErrorsLocked()
		p.mu.Unlock()
		p.logFlushFailure(len(batch), err)
		// Keep the buffer intact - prefer duplicates over loss
		return err
	}

	p.mu.Lock()
	p.stats.incPersistedLocked(int64(len(batch)))
	// Envelopes ingested during the write were appended after batch.
	p.buffer = append(make([]*messages.Envelope, 0, p.config.MaxBufferMessages), p.buffer[len(batch):]...)
	p.mu.Unlock()

	p.logFlush(len(batch))
	return nil
}

// Close flushes remaining data and closes the sink.
func (p *BufferedPolicy) Close() error {
	// Best-effort flush on close
	_ = p.Flush(context.Background())
	return p.sink.Close()
}

// Stats returns policy statistics.
// The buffer mutex is held while taking the snapshot, so MessagesBuffered
// agrees with the counters.
func (p *BufferedPolicy) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.stats.snapshotLocked(len(p.buffer))
}

// --- Logging helpers ---

func (p *BufferedPolicy) logFlush(n int) {
	if p.logger == nil {
		return
	}
	p.logger.Debug("buffer flushed", map[string]any{
		"messages": n,
		"policy":   string(NameBuffered),
	})
}

func (p *BufferedPolicy) logBufferFull(t messages.MessageType) {
	if p.logger == nil {
		return
	}
	p.logger.Error("buffer full", map[string]any{
		"message_type": string(t),
		"policy":       string(NameBuffered),
	})
}

func (p *BufferedPolicy) logFlushFailure(n int, err error) {
	if p.logger == nil {
		return
	}
	p.logger.Error("flush failed", map[string]any{
		"messages": n,
		"error":    err.Error(),
		"policy":   string(NameBuffered),
	})
}

var _ Policy = (*BufferedPolicy)(nil)
