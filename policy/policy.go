// Package policy controls how built messages reach a sink: immediately, in
// bounded batches, or on a timer.
//
// No policy drops messages. Every message accepted by Ingest is either
// persisted or still buffered, and a failed write leaves the buffer intact
// so the next flush retries it (at-least-once).
package policy

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/justapithecus/cukemsg/messages"
)

// ErrFlushFailed marks an Ingest error where the envelope was accepted into
// the buffer but the flush it triggered failed. The envelope is persisted by
// a later Flush; callers must not ingest it again.
var ErrFlushFailed = errors.New("policy: accepted, flush failed")

// Policy defines the ingestion policy interface.
type Policy interface {
	// Ingest accepts one envelope. Returns an error only if the envelope
	// could not be accepted or a triggered flush failed; the latter wraps
	// ErrFlushFailed.
	Ingest(ctx context.Context, envelope *messages.Envelope) error

	// Flush writes any buffered envelopes.
	Flush(ctx context.Context) error

	// Close flushes best-effort and closes the sink.
	Close() error

	// Stats returns a consistent point-in-time snapshot.
	Stats() Stats
}

// Name identifies a policy implementation in configuration.
type Name string

// Policy names.
const (
	NameStrict    Name = "strict"
	NameBuffered  Name = "buffered"
	NameStreaming Name = "streaming"
	NameNoop      Name = "noop"
)

// ParseName validates a policy name. Empty selects strict.
func ParseName(s string) (Name, error) {
	switch n := Name(s); n {
	case "":
		return NameStrict, nil
	case NameStrict, NameBuffered, NameStreaming, NameNoop:
		return n, nil
	default:
		return "", fmt.Errorf("unknown policy %q (valid: strict, buffered, streaming, noop)", s)
	}
}

// Stats represents policy observability metrics.
type Stats struct {
	// TotalMessages is the number of envelopes accepted by Ingest.
	TotalMessages int64
	// MessagesPersisted is the number of envelopes written to the sink.
	MessagesPersisted int64
	// MessagesBuffered is the number of envelopes awaiting a flush.
	MessagesBuffered int64
	// ByType counts accepted envelopes per message type.
	ByType map[messages.MessageType]int64
	// FlushCount is the number of flush operations.
	FlushCount int64
	// Errors is the count of failed sink writes.
	Errors int64
}

// statsRecorder is an internal helper for thread-safe stats management.
//
// Lock discipline:
//   - StrictPolicy and NoopPolicy use the locking methods (ingest, snapshot, etc.)
//   - Buffered and streaming policies use the Locked methods only while
//     holding their own mu, keeping buffer state and counters atomic.
type statsRecorder struct {
	mu    sync.Mutex
	stats Stats
}

func newStatsRecorder() *statsRecorder {
	return &statsRecorder{
		stats: Stats{
			ByType: make(map[messages.MessageType]int64),
		},
	}
}

func (r *statsRecorder) ingest(t messages.MessageType) {
	r.mu.Lock()
	r.ingestLocked(t)
	r.mu.Unlock()
}

func (r *statsRecorder) incPersisted(n int64) {
	r.mu.Lock()
	r.stats.MessagesPersisted += n
	r.mu.Unlock()
}

func (r *statsRecorder) incErrors() {
	r.mu.Lock()
	r.stats.Errors++
	r.mu.Unlock()
}

func (r *statsRecorder) incFlush() {
	r.mu.Lock()
	r.stats.FlushCount++
	r.mu.Unlock()
}

func (r *statsRecorder) snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked(0)
}

// --- Locked methods ---
// Caller must hold the owning policy's mu.

func (r *statsRecorder) ingestLocked(t messages.MessageType) {
	r.stats.TotalMessages++
	r.stats.ByType[t]++
}

func (r *statsRecorder) incPersistedLocked(n int64) {
	r.stats.MessagesPersisted += n
}

func (r *statsRecorder) incErrorsLocked() {
	r.stats.Errors++
}

func (r *statsRecorder) incFlushLocked() {
	r.stats.FlushCount++
}

// snapshotLocked returns a copy of stats with the given buffered count.
func (r *statsRecorder) snapshotLocked(buffered int) Stats {
	s := r.stats
	s.MessagesBuffered = int64(buffered)
	s.ByType = make(map[messages.MessageType]int64, len(r.stats.ByType))
	for k, v := range r.stats.ByType {
		s.ByType[k] = v
	}
	return s
}
