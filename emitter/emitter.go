// Package emitter drives a test run's message stream: it builds each message
// with the factory, wraps it in an envelope and hands it to an ingestion
// policy.
//
// An Emitter is safe for concurrent use. Writes are serialized so the
// policy sees messages in call order.
package emitter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/justapithecus/cukemsg/factory"
	"github.com/justapithecus/cukemsg/log"
	"github.com/justapithecus/cukemsg/messages"
	"github.com/justapithecus/cukemsg/metrics"
	"github.com/justapithecus/cukemsg/policy"
)

var (
	// ErrRunFinished is returned for any message emitted after
	// test_run_finished was accepted.
	ErrRunFinished = errors.New("emitter: run already finished")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("emitter: closed")
)

// Config configures an Emitter.
type Config struct {
	// Policy receives every built envelope (required).
	Policy policy.Policy
	// Logger is optional; nil discards logs.
	Logger *log.Logger
	// Metrics is optional; nil disables counting.
	Metrics *metrics.Collector
}

// Emitter builds and delivers the messages of one test run.
type Emitter struct {
	factory factory.MessageFactory
	policy  policy.Policy
	logger  *log.Logger
	metrics *metrics.Collector

	mu       sync.Mutex
	finished bool
	closed   bool
	// pending holds an accepted test_run_finished whose flush has not
	// succeeded yet.
	pending *messages.TestRunFinished
}

// New creates an Emitter.
func New(cfg Config) (*Emitter, error) {
	if cfg.Policy == nil {
		return nil, errors.New("emitter: policy is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &Emitter{
		factory: factory.New(),
		policy:  cfg.Policy,
		logger:  logger,
		metrics: cfg.Metrics,
	}, nil
}

// RunStarted emits test_run_started.
func (e *Emitter) RunStarted(ctx context.Context, timestamp time.Time) (messages.TestRunStarted, error) {
	return Emit(ctx, e, e.factory.BuildTestRunStarted(timestamp))
}

// TestCaseStarted emits test_case_started.
func (e *Emitter) TestCaseStarted(ctx context.Context, pickleID uuid.UUID, timestamp time.Time) (messages.TestCaseStarted, error) {
	return Emit(ctx, e, e.factory.BuildTestCaseStarted(pickleID, timestamp))
}

// TestCaseFinished emits test_case_finished.
func (e *Emitter) TestCaseFinished(ctx context.Context, pickleID uuid.UUID, timestamp time.Time, result messages.TestResult) (messages.TestCaseFinished, error) {
	return Emit(ctx, e, e.factory.BuildTestCaseFinished(pickleID, timestamp, result))
}

// RunFinished emits test_run_finished and flushes the policy.
// Further emits fail with ErrRunFinished.
//
// If the message was accepted but a flush failed, the error wraps
// policy.ErrFlushFailed and the run still counts as finished. Calling
// RunFinished again retries the flush of the accepted message; success and
// timestamp are ignored on that call.
func (e *Emitter) RunFinished(ctx context.Context, success bool, timestamp time.Time) (messages.TestRunFinished, error) {
	e.mu.Lock()
	pending, closed := e.pending, e.closed
	e.mu.Unlock()
	if pending != nil && !closed {
		return *pending, e.flushFinished(ctx)
	}

	msg, err := Emit(ctx, e, e.factory.BuildTestRunFinished(success, timestamp))
	if err != nil {
		return msg, err
	}
	return msg, e.flushFinished(ctx)
}

func (e *Emitter) flushFinished(ctx context.Context) error {
	if err := e.policy.Flush(ctx); err != nil {
		e.sinkFailure("flush", messages.MessageTypeTestRunFinished, err)
		return fmt.Errorf("emitter: flush: %w: %w", policy.ErrFlushFailed, err)
	}
	e.mu.Lock()
	e.pending = nil
	e.mu.Unlock()
	return nil
}

// Emit delivers the message carried by a factory result.
//
// A failed result is returned unchanged as its *factory.Failure; nothing
// reaches the policy. Results whose message is not an envelope message
// (such as a TestResult) fail with factory.FailureInvalidMessage.
//
// When the policy accepted the message but the flush it triggered failed,
// Emit returns the message together with an error wrapping
// policy.ErrFlushFailed. The message must not be emitted again.
func Emit[T any](ctx context.Context, e *Emitter, r factory.Result[T]) (T, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var zero T
	if e.closed {
		return zero, ErrClosed
	}
	if e.finished {
		return zero, ErrRunFinished
	}

	msg, err := factory.Unwrap(r)
	if err != nil {
		e.buildFailure(err)
		return zero, err
	}
	env, err := factory.Unwrap(e.factory.BuildEnvelope(msg))
	if err != nil {
		e.buildFailure(err)
		return zero, err
	}

	t := env.Type()
	e.metrics.IncBuilt(string(t))

	err = e.policy.Ingest(ctx, &env)
	accepted := err == nil || errors.Is(err, policy.ErrFlushFailed)
	if accepted && t.IsTerminal() {
		e.finished = true
		e.pending = env.TestRunFinished
	}
	if err != nil {
		e.sinkFailure("ingest", t, err)
		if accepted {
			return msg, fmt.Errorf("emitter: %s: %w", t, err)
		}
		return zero, fmt.Errorf("emitter: %s: %w", t, err)
	}

	e.logger.Debug("message emitted", map[string]any{"message_type": string(t)})
	return msg, nil
}

// Finished reports whether test_run_finished has been emitted.
func (e *Emitter) Finished() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.finished
}

// Stats returns the policy's delivery statistics.
func (e *Emitter) Stats() policy.Stats {
	return e.policy.Stats()
}

// Close closes the policy, which flushes best-effort and closes the sink.
// Final policy stats are absorbed into the metrics collector.
func (e *Emitter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	err := e.policy.Close()
	s := e.policy.Stats()
	e.metrics.AbsorbPolicyStats(s.TotalMessages, s.MessagesPersisted, s.FlushCount)
	if err != nil {
		return fmt.Errorf("emitter: close: %w", err)
	}
	return nil
}

func (e *Emitter) buildFailure(err error) {
	var f *factory.Failure
	if !errors.As(err, &f) {
		return
	}
	e.metrics.IncBuildFailure(string(f.Kind))
	e.logger.Warn("message rejected", map[string]any{
		"kind":   string(f.Kind),
		"field":  f.Field,
		"reason": f.Reason,
	})
}

func (e *Emitter) sinkFailure(op string, t messages.MessageType, err error) {
	e.metrics.IncSinkWriteFailure()
	fields := map[string]any{"op": op, "error": err.Error()}
	if t != "" {
		fields["message_type"] = string(t)
	}
	e.logger.Error("delivery failed", fields)
}
