package policy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/justapithecus/cukemsg/log"
	"github.com/justapithecus/cukemsg/messages"
	"github.com/justapithecus/cukemsg/sink"
)

// StreamingConfig configures a StreamingPolicy.
type StreamingConfig struct {
	// FlushCount triggers a flush after N envelopes accumulate.
	// Zero means count-based flush is disabled.
	FlushCount int

	// FlushInterval triggers a flush every interval.
	// Zero means interval-based flush is disabled.
	FlushInterval time.Duration

	// Logger is an optional logger for policy observability.
	Logger *log.Logger
}

// FlushTrigger identifies which trigger caused a flush.
type FlushTrigger string

const (
	// FlushTriggerCount indicates a count-threshold flush.
	FlushTriggerCount FlushTrigger = "count"
	// FlushTriggerInterval indicates an interval-based flush.
	FlushTriggerInterval FlushTrigger = "interval"
	// FlushTriggerTerminal indicates a flush caused by test_run_finished.
	FlushTriggerTerminal FlushTrigger = "terminal"
	// FlushTriggerExplicit indicates a Flush or Close call.
	FlushTriggerExplicit FlushTrigger = "explicit"
)

// ErrStreamingInvalidConfig is returned when StreamingConfig is invalid.
var ErrStreamingInvalidConfig = errors.New("invalid streaming config: at least one of FlushCount or FlushInterval must be set")

// StreamingPolicy persists continuously in batches.
//
// The buffer is unbounded; ingestion never blocks on the sink unless a
// count or terminal trigger fires. On flush failure the batch is restored
// ahead of anything ingested during the write and retried on the next
// trigger.
//
// Thread safety:
//   - mu guards buffer state and stats
//   - flushMu serializes flushes from the interval goroutine and Ingest
type StreamingPolicy struct {
	sink   sink.Sink
	config StreamingConfig
	logger *log.Logger

	mu     sync.Mutex
	buffer []*messages.Envelope
	stats  *statsRecorder

	flushMu sync.Mutex

	// Per-trigger flush counts. Guarded by mu.
	flushByTrigger map[FlushTrigger]int64

	stopCh  chan struct{}
	doneCh  chan struct{}
	stopped bool // guarded by mu
}

// NewStreamingPolicy creates a new streaming policy and starts its interval
// goroutine if FlushInterval is set. Close stops the goroutine.
func NewStreamingPolicy(s sink.Sink, config StreamingConfig) (*StreamingPolicy, error) {
	if config.FlushCount <= 0 && config.FlushInterval <= 0 {
		return nil, ErrStreamingInvalidConfig
	}

	p := &StreamingPolicy{
		sink:           s,
		config:         config,
		logger:         config.Logger,
		buffer:         make([]*messages.Envelope, 0, 128),
		stats:          newStatsRecorder(),
		flushByTrigger: make(map[FlushTrigger]int64),
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}

	if config.FlushInterval > 0 {
		go p.intervalLoop()
	} else {
		close(p.doneCh)
	}

	return p, nil
}

// Ingest appends the envelope and flushes on the count or terminal trigger.
// A failed triggered flush keeps the envelope and returns an error wrapping
// ErrFlushFailed.
func (p *StreamingPolicy) Ingest(ctx context.Context, envelope *messages.Envelope) error {
	p.mu.Lock()
	p.stats.ingestLocked(envelope.Type())
	p.buffer = append(p.buffer, envelope)
	byCount := p.config.FlushCount > 0 && len(p.buffer) >= p.config.FlushCount
	p.mu.Unlock()

	var err error
	switch {
	case envelope.Type().IsTerminal():
		err = p.triggerFlush(ctx, FlushTriggerTerminal)
	case byCount:
		err = p.triggerFlush(ctx, FlushTriggerCount)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFlushFailed, err)
	}
	return nil
}

// Flush writes everything buffered.
func (p *StreamingPolicy) Flush(ctx context.Context) error {
	return p.triggerFlush(ctx, FlushTriggerExplicit)
}

// triggerFlush swaps the buffer under mu, writes outside mu and restores
// the batch on failure, so Ingest keeps appending during a slow write.
func (p *StreamingPolicy) triggerFlush(ctx context.Context, trigger FlushTrigger) error {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	p.mu.Lock()
	p.flushByTrigger[trigger]++
	p.stats.incFlushLocked()
	batch := p.buffer
	if len(batch) == 0 {
		p.mu.Unlock()
		return nil
	}
	p.buffer = make([]*messages.Envelope, 0, 128)
	p.mu.Unlock()

	if err := p.sink.Write(ctx, batch); err != nil {
		p.mu.Lock()
		p.stats.incErrorsLocked()
		p.buffer = append(batch, p.buffer...)
		p.mu.Unlock()
		p.logFlushFailure(trigger, len(batch), err)
		return err
	}

	p.mu.Lock()
	p.stats.incPersistedLocked(int64(len(batch)))
	p.mu.Unlock()

	p.logFlush(trigger, len(batch))
	return nil
}

// Close stops the interval goroutine, flushes best-effort and closes the sink.
func (p *StreamingPolicy) Close() error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.stopCh)
	}
	p.mu.Unlock()
	<-p.doneCh

	_ = p.Flush(context.Background())
	return p.sink.Close()
}

// Stats returns policy statistics.
func (p *StreamingPolicy) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.stats.snapshotLocked(len(p.buffer))
}

// FlushTriggerStats returns per-trigger flush counts.
func (p *StreamingPolicy) FlushTriggerStats() map[FlushTrigger]int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[FlushTrigger]int64, len(p.flushByTrigger))
	for k, v := range p.flushByTrigger {
		out[k] = v
	}
	return out
}

func (p *StreamingPolicy) intervalLoop() {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.mu.Lock()
			hasData := len(p.buffer) > 0
			p.mu.Unlock()

			if hasData {
				// Errors are logged; the batch stays buffered for the next tick.
				_ = p.triggerFlush(context.Background(), FlushTriggerInterval)
			}
		case <-p.stopCh:
			return
		}
	}
}

// --- Logging helpers ---

func (p *StreamingPolicy) logFlush(trigger FlushTrigger, n int) {
	if p.logger == nil {
		return
	}
	p.logger.Debug("streaming flush", map[string]any{
		"trigger":  string(trigger),
		"messages": n,
		"policy":   string(NameStreaming),
	})
}

func (p *StreamingPolicy) logFlushFailure(trigger FlushTrigger, n int, err error) {
	if p.logger == nil {
		return
	}
	p.logger.Error("streaming flush failed", map[string]any{
		"trigger":  string(trigger),
		"messages": n,
		"error":    err.Error(),
		"policy":   string(NameStreaming),
	})
}

var _ Policy = (*StreamingPolicy)(nil)
