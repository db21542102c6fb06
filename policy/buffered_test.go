package policy_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/justapithecus/cukemsg/messages"
	"github.com/justapithecus/cukemsg/policy"
	"github.com/justapithecus/cukemsg/sink"
)

// helper to create policy or fail test
func mustNewBufferedPolicy(t *testing.T, s sink.Sink, capacity int) *policy.BufferedPolicy {
	t.Helper()
	pol, err := policy.NewBufferedPolicy(s, policy.BufferedConfig{MaxBufferMessages: capacity})
	if err != nil {
		t.Fatalf("NewBufferedPolicy failed: %v", err)
	}
	return pol
}

func TestNewBufferedPolicy_InvalidConfig(t *testing.T) {
	for _, n := range []int{0, -1} {
		_, err := policy.NewBufferedPolicy(sink.NewStubSink(), policy.BufferedConfig{MaxBufferMessages: n})
		if !errors.Is(err, policy.ErrInvalidConfig) {
			t.Errorf("MaxBufferMessages=%d: expected ErrInvalidConfig, got %v", n, err)
		}
	}
}

func TestDefaultBufferedConfig(t *testing.T) {
	cfg := policy.DefaultBufferedConfig()
	if cfg.MaxBufferMessages != policy.DefaultBufferMessages {
		t.Errorf("expected MaxBufferMessages=%d, got %d", policy.DefaultBufferMessages, cfg.MaxBufferMessages)
	}
}

func TestBufferedPolicy_BuffersMessages(t *testing.T) {
	s := sink.NewStubSink()
	pol := mustNewBufferedPolicy(t, s, 10)

	for range 3 {
		if err := pol.Ingest(t.Context(), caseStarted()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if s.Stats().MessagesWritten != 0 {
		t.Errorf("expected 0 messages written before flush, got %d", s.Stats().MessagesWritten)
	}
	stats := pol.Stats()
	if stats.TotalMessages != 3 {
		t.Errorf("expected TotalMessages=3, got %d", stats.TotalMessages)
	}
	if stats.MessagesBuffered != 3 {
		t.Errorf("expected MessagesBuffered=3, got %d", stats.MessagesBuffered)
	}
}

func TestBufferedPolicy_FlushWritesOneBatch(t *testing.T) {
	s := sink.NewStubSink()
	pol := mustNewBufferedPolicy(t, s, 10)

	for range 5 {
		_ = pol.Ingest(t.Context(), caseStarted())
	}
	if err := pol.Flush(t.Context()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sinkStats := s.Stats()
	if sinkStats.MessagesWritten != 5 {
		t.Errorf("expected 5 messages written, got %d", sinkStats.MessagesWritten)
	}
	if sinkStats.Batches != 1 {
		t.Errorf("expected 1 batch (not 5), got %d", sinkStats.Batches)
	}
	stats := pol.Stats()
	if stats.MessagesPersisted != 5 || stats.MessagesBuffered != 0 {
		t.Errorf("expected 5 persisted/0 buffered, got %d/%d", stats.MessagesPersisted, stats.MessagesBuffered)
	}
}

func TestBufferedPolicy_FlushesAtCapacity(t *testing.T) {
	s := sink.NewStubSink()
	pol := mustNewBufferedPolicy(t, s, 3)

	for range 7 {
		if err := pol.Ingest(t.Context(), caseStarted()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if got := s.BatchSizes; len(got) != 2 || got[0] != 3 || got[1] != 3 {
		t.Errorf("expected batches [3 3], got %v", got)
	}
	if got := pol.Stats().MessagesBuffered; got != 1 {
		t.Errorf("expected 1 buffered, got %d", got)
	}
}

func TestBufferedPolicy_FlushesOnTerminalMessage(t *testing.T) {
	s := sink.NewStubSink()
	pol := mustNewBufferedPolicy(t, s, 100)

	_ = pol.Ingest(t.Context(), runStarted())
	_ = pol.Ingest(t.Context(), caseStarted())
	if err := pol.Ingest(t.Context(), runFinished()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []messages.MessageType{
		messages.MessageTypeTestRunStarted,
		messages.MessageTypeTestCaseStarted,
		messages.MessageTypeTestRunFinished,
	}
	got := s.Types()
	if len(got) != len(want) {
		t.Fatalf("expected %d messages written, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] expected %s, got %s", i, want[i], got[i])
		}
	}
	if s.Stats().Batches != 1 {
		t.Errorf("expected 1 batch, got %d", s.Stats().Batches)
	}
}

func TestBufferedPolicy_FailedFlushKeepsBuffer(t *testing.T) {
	s := sink.NewStubSink()
	pol := mustNewBufferedPolicy(t, s, 10)

	_ = pol.Ingest(t.Context(), runStarted())
	_ = pol.Ingest(t.Context(), caseStarted())

	sinkErr := errors.New("sink down")
	s.SetError(sinkErr)
	if err := pol.Flush(t.Context()); !errors.Is(err, sinkErr) {
		t.Fatalf("expected sink error, got %v", err)
	}

	stats := pol.Stats()
	if stats.MessagesBuffered != 2 {
		t.Errorf("expected 2 buffered after failed flush, got %d", stats.MessagesBuffered)
	}
	if stats.Errors != 1 {
		t.Errorf("expected Errors=1, got %d", stats.Errors)
	}

	s.SetError(nil)
	if err := pol.Flush(t.Context()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Stats().MessagesWritten != 2 {
		t.Errorf("expected 2 messages written on retry, got %d", s.Stats().MessagesWritten)
	}
	if got := pol.Stats().MessagesBuffered; got != 0 {
		t.Errorf("expected 0 buffered, got %d", got)
	}
}

func TestBufferedPolicy_TerminalFlushFailureKeepsMessage(t *testing.T) {
	s := sink.NewStubSink()
	s.SetError(errors.New("sink down"))
	pol := mustNewBufferedPolicy(t, s, 10)

	if err := pol.Ingest(t.Context(), runFinished()); !errors.Is(err, policy.ErrFlushFailed) {
		t.Fatalf("expected ErrFlushFailed, got %v", err)
	}
	if got := pol.Stats().MessagesBuffered; got != 1 {
		t.Errorf("expected terminal message to stay buffered, got %d", got)
	}
}

func TestBufferedPolicy_BufferFull(t *testing.T) {
	s := sink.NewStubSink()
	pol := mustNewBufferedPolicy(t, s, 2)

	_ = pol.Ingest(t.Context(), caseStarted())
	s.SetError(errors.New("sink down"))

	// Capacity flush fails; both messages stay buffered.
	if err := pol.Ingest(t.Context(), caseStarted()); !errors.Is(err, policy.ErrFlushFailed) {
		t.Fatalf("expected ErrFlushFailed at capacity, got %v", err)
	}

	err := pol.Ingest(t.Context(), caseStarted())
	if !errors.Is(err, policy.ErrBufferFull) {
		t.Fatalf("expected ErrBufferFull, got %v", err)
	}
	if errors.Is(err, policy.ErrFlushFailed) {
		t.Error("rejected message must not report ErrFlushFailed")
	}
	stats := pol.Stats()
	if stats.TotalMessages != 2 {
		t.Errorf("rejected message should not be counted: TotalMessages=%d", stats.TotalMessages)
	}

	// Recovery: the pending batch is written before the new message is accepted.
	s.SetError(nil)
	if err := pol.Ingest(t.Context(), caseStarted()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Stats().MessagesWritten != 2 {
		t.Errorf("expected 2 messages written, got %d", s.Stats().MessagesWritten)
	}
	if got := pol.Stats().MessagesBuffered; got != 1 {
		t.Errorf("expected 1 buffered, got %d", got)
	}
}

func TestBufferedPolicy_CloseFlushesAndCloses(t *testing.T) {
	s := sink.NewStubSink()
	pol := mustNewBufferedPolicy(t, s, 10)

	_ = pol.Ingest(t.Context(), caseStarted())
	if err := pol.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if s.Stats().MessagesWritten != 1 {
		t.Errorf("expected Close to flush 1 message, got %d", s.Stats().MessagesWritten)
	}
	if !s.Stats().Closed {
		t.Error("expected sink to be closed")
	}
}

func TestBufferedPolicy_ConcurrentIngest(t *testing.T) {
	s := sink.NewStubSink()
	pol := mustNewBufferedPolicy(t, s, 7)

	const workers, perWorker = 8, 50
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				if err := pol.Ingest(t.Context(), caseStarted()); err != nil {
					t.Errorf("unexpected error: %v", err)
					return
				}
				_ = pol.Stats()
			}
		}()
	}
	wg.Wait()

	if err := pol.Flush(t.Context()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := s.Stats().MessagesWritten; got != workers*perWorker {
		t.Errorf("expected %d messages written, got %d", workers*perWorker, got)
	}
	stats := pol.Stats()
	if stats.TotalMessages != workers*perWorker || stats.MessagesPersisted != workers*perWorker {
		t.Errorf("expected %d total/persisted, got %d/%d", workers*perWorker, stats.TotalMessages, stats.MessagesPersisted)
	}
}
