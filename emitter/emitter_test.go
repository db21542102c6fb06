package emitter_test

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/justapithecus/cukemsg/emitter"
	"github.com/justapithecus/cukemsg/factory"
	"github.com/justapithecus/cukemsg/log"
	"github.com/justapithecus/cukemsg/messages"
	"github.com/justapithecus/cukemsg/metrics"
	"github.com/justapithecus/cukemsg/policy"
	"github.com/justapithecus/cukemsg/sink"
)

var at = time.Date(2019, 5, 9, 14, 27, 48, 0, time.UTC)

func newEmitter(t *testing.T, pol policy.Policy, m *metrics.Collector) *emitter.Emitter {
	t.Helper()
	e, err := emitter.New(emitter.Config{Policy: pol, Metrics: m})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return e
}

func TestNew_RequiresPolicy(t *testing.T) {
	if _, err := emitter.New(emitter.Config{}); err == nil {
		t.Error("expected error for missing policy")
	}
}

func TestEmitter_FullRun(t *testing.T) {
	s := sink.NewStubSink()
	m := metrics.NewCollector("strict", "stub", "run-1")
	e := newEmitter(t, policy.NewStrictPolicy(s), m)
	ctx := t.Context()
	id := uuid.New()

	started, err := e.RunStarted(ctx, at)
	if err != nil {
		t.Fatalf("RunStarted failed: %v", err)
	}
	if started.CucumberImplementation != "SpecFlow" {
		t.Errorf("CucumberImplementation = %q, want SpecFlow", started.CucumberImplementation)
	}
	if _, err := e.TestCaseStarted(ctx, id, at); err != nil {
		t.Fatalf("TestCaseStarted failed: %v", err)
	}
	result := messages.TestResult{Status: messages.StatusPassed, Duration: messages.Duration{Seconds: 1}}
	finished, err := e.TestCaseFinished(ctx, id, at.Add(time.Second), result)
	if err != nil {
		t.Fatalf("TestCaseFinished failed: %v", err)
	}
	if finished.PickleID != id.String() {
		t.Errorf("PickleID = %q, want %q", finished.PickleID, id.String())
	}
	if _, err := e.RunFinished(ctx, true, at.Add(2*time.Second)); err != nil {
		t.Fatalf("RunFinished failed: %v", err)
	}
	if !e.Finished() {
		t.Error("Finished() = false after RunFinished")
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	want := []messages.MessageType{
		messages.MessageTypeTestRunStarted,
		messages.MessageTypeTestCaseStarted,
		messages.MessageTypeTestCaseFinished,
		messages.MessageTypeTestRunFinished,
	}
	got := s.Types()
	if len(got) != len(want) {
		t.Fatalf("sink received %d messages, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	if got := s.Written[1].TestCaseStarted.Timestamp; got != (messages.Timestamp{Seconds: 1557412068}) {
		t.Errorf("test_case_started timestamp = %+v, want seconds 1557412068", got)
	}
	if !s.Stats().Closed {
		t.Error("sink not closed")
	}

	snap := m.Snapshot()
	if snap.MessagesBuilt != 4 {
		t.Errorf("MessagesBuilt = %d, want 4", snap.MessagesBuilt)
	}
	if snap.MessagesPersisted != 4 {
		t.Errorf("MessagesPersisted = %d, want 4", snap.MessagesPersisted)
	}
}

func TestEmitter_NonUTCTimestampNeverReachesSink(t *testing.T) {
	s := sink.NewStubSink()
	m := metrics.NewCollector("strict", "stub", "")
	e := newEmitter(t, policy.NewStrictPolicy(s), m)

	_, err := e.TestCaseStarted(t.Context(), uuid.New(), at.In(time.FixedZone("", 0)))
	if !errors.Is(err, factory.ErrNonUTCTimestamp) {
		t.Fatalf("error = %v, want ErrNonUTCTimestamp", err)
	}
	var f *factory.Failure
	if !errors.As(err, &f) || f.Kind != factory.FailureNonUTCTimestamp {
		t.Errorf("error %v is not a non_utc_timestamp *Failure", err)
	}

	if s.Stats().MessagesWritten != 0 {
		t.Errorf("sink received %d messages, want 0", s.Stats().MessagesWritten)
	}
	if got := m.Snapshot().FailuresByKind["non_utc_timestamp"]; got != 1 {
		t.Errorf("FailuresByKind[non_utc_timestamp] = %d, want 1", got)
	}
}

func TestEmitter_RejectsAfterRunFinished(t *testing.T) {
	s := sink.NewStubSink()
	e := newEmitter(t, policy.NewStrictPolicy(s), nil)

	if _, err := e.RunFinished(t.Context(), false, at); err != nil {
		t.Fatalf("RunFinished failed: %v", err)
	}
	if _, err := e.TestCaseStarted(t.Context(), uuid.New(), at); !errors.Is(err, emitter.ErrRunFinished) {
		t.Errorf("TestCaseStarted after finish error = %v, want ErrRunFinished", err)
	}
	if _, err := e.RunFinished(t.Context(), true, at); !errors.Is(err, emitter.ErrRunFinished) {
		t.Errorf("second RunFinished error = %v, want ErrRunFinished", err)
	}
	if s.Stats().MessagesWritten != 1 {
		t.Errorf("sink received %d messages, want 1", s.Stats().MessagesWritten)
	}
}

func TestEmitter_RejectsAfterClose(t *testing.T) {
	e := newEmitter(t, policy.NewNoopPolicy(), nil)
	if err := e.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if _, err := e.RunStarted(t.Context(), at); !errors.Is(err, emitter.ErrClosed) {
		t.Errorf("RunStarted after Close error = %v, want ErrClosed", err)
	}
}

func TestEmitter_SinkFailure(t *testing.T) {
	s := sink.NewStubSink()
	sinkErr := errors.New("sink down")
	s.SetError(sinkErr)
	m := metrics.NewCollector("strict", "stub", "")

	var buf bytes.Buffer
	logger, err := log.NewLogger(log.Config{Output: &buf})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	e, err := emitter.New(emitter.Config{Policy: policy.NewStrictPolicy(s), Logger: logger, Metrics: m})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	_, err = e.RunFinished(t.Context(), true, at)
	if !errors.Is(err, sinkErr) {
		t.Fatalf("error = %v, want sink error", err)
	}
	if e.Finished() {
		t.Error("Finished() = true after a failed delivery")
	}
	if got := m.Snapshot().SinkWriteFailures; got != 1 {
		t.Errorf("SinkWriteFailures = %d, want 1", got)
	}
	if !strings.Contains(buf.String(), `"delivery failed"`) {
		t.Errorf("log output missing delivery failure: %s", buf.String())
	}
}

func TestEmitter_BufferedFinishFlushFailure(t *testing.T) {
	s := sink.NewStubSink()
	pol, err := policy.NewBufferedPolicy(s, policy.BufferedConfig{MaxBufferMessages: 10})
	if err != nil {
		t.Fatalf("NewBufferedPolicy failed: %v", err)
	}
	m := metrics.NewCollector("buffered", "stub", "")
	e := newEmitter(t, pol, m)
	ctx := t.Context()

	if _, err := e.RunStarted(ctx, at); err != nil {
		t.Fatalf("RunStarted failed: %v", err)
	}
	s.SetError(errors.New("sink down"))
	msg, err := e.RunFinished(ctx, true, at.Add(time.Second))
	if !errors.Is(err, policy.ErrFlushFailed) {
		t.Fatalf("RunFinished error = %v, want ErrFlushFailed", err)
	}
	if !msg.Success {
		t.Error("accepted message should be returned with the error")
	}
	if !e.Finished() {
		t.Error("Finished() = false after test_run_finished was accepted")
	}

	s.SetError(nil)
	if _, err := e.TestCaseStarted(ctx, uuid.New(), at); !errors.Is(err, emitter.ErrRunFinished) {
		t.Errorf("TestCaseStarted after accepted finish error = %v, want ErrRunFinished", err)
	}

	retried, err := e.RunFinished(ctx, false, at.Add(time.Hour))
	if err != nil {
		t.Fatalf("retried RunFinished failed: %v", err)
	}
	if !retried.Success || retried.Timestamp != msg.Timestamp {
		t.Errorf("retried RunFinished = %+v, want the accepted message %+v", retried, msg)
	}
	if _, err := e.RunFinished(ctx, true, at); !errors.Is(err, emitter.ErrRunFinished) {
		t.Errorf("RunFinished after successful flush error = %v, want ErrRunFinished", err)
	}

	want := []messages.MessageType{
		messages.MessageTypeTestRunStarted,
		messages.MessageTypeTestRunFinished,
	}
	got := s.Types()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("sink types = %v, want %v", got, want)
	}
	if snap := m.Snapshot(); snap.MessagesBuilt != 2 {
		t.Errorf("MessagesBuilt = %d, want 2", snap.MessagesBuilt)
	}
}

func TestEmitter_BuiltCountedOnDeliveryFailure(t *testing.T) {
	s := sink.NewStubSink()
	s.SetError(errors.New("sink down"))
	m := metrics.NewCollector("strict", "stub", "")
	e := newEmitter(t, policy.NewStrictPolicy(s), m)

	if _, err := e.RunStarted(t.Context(), at); err == nil {
		t.Fatal("expected delivery error")
	}
	snap := m.Snapshot()
	if snap.BuiltByType["test_run_started"] != 1 {
		t.Errorf("BuiltByType[test_run_started] = %d, want 1", snap.BuiltByType["test_run_started"])
	}
	if snap.SinkWriteFailures != 1 {
		t.Errorf("SinkWriteFailures = %d, want 1", snap.SinkWriteFailures)
	}
}

func TestEmit_FailureResult(t *testing.T) {
	s := sink.NewStubSink()
	e := newEmitter(t, policy.NewStrictPolicy(s), nil)

	f := &factory.Failure{Kind: factory.FailureInvalidIdentifier, Field: "pickleId", Reason: "bad"}
	_, err := emitter.Emit(t.Context(), e, factory.Result[messages.TestCaseStarted](factory.Failed[messages.TestCaseStarted]{Failure: f}))
	if err != f {
		t.Errorf("Emit returned %v, want the same *Failure", err)
	}
	if s.Stats().MessagesWritten != 0 {
		t.Errorf("sink received %d messages, want 0", s.Stats().MessagesWritten)
	}
}

func TestEmit_NonEnvelopeMessage(t *testing.T) {
	e := newEmitter(t, policy.NewNoopPolicy(), nil)

	r := factory.New().BuildTestResult(messages.StatusPassed, time.Second, "")
	_, err := emitter.Emit(t.Context(), e, r)
	if !errors.Is(err, factory.ErrInvalidMessage) {
		t.Errorf("error = %v, want ErrInvalidMessage", err)
	}
}

func TestEmitter_BufferedRunFlushesOnFinish(t *testing.T) {
	s := sink.NewStubSink()
	pol, err := policy.NewBufferedPolicy(s, policy.BufferedConfig{MaxBufferMessages: 100})
	if err != nil {
		t.Fatalf("NewBufferedPolicy failed: %v", err)
	}
	e := newEmitter(t, pol, nil)

	_, _ = e.RunStarted(t.Context(), at)
	_, _ = e.TestCaseStarted(t.Context(), uuid.New(), at)
	if s.Stats().MessagesWritten != 0 {
		t.Fatalf("buffered policy wrote %d messages before finish", s.Stats().MessagesWritten)
	}
	if _, err := e.RunFinished(t.Context(), true, at); err != nil {
		t.Fatalf("RunFinished failed: %v", err)
	}
	if s.Stats().MessagesWritten != 3 || s.Stats().Batches != 1 {
		t.Errorf("sink stats = %+v, want 3 messages in 1 batch", s.Stats())
	}
}

func TestEmitter_ConcurrentCases(t *testing.T) {
	s := sink.NewStubSink()
	e := newEmitter(t, policy.NewStrictPolicy(s), nil)

	const n = 32
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := uuid.New()
			if _, err := e.TestCaseStarted(t.Context(), id, at); err != nil {
				t.Errorf("TestCaseStarted failed: %v", err)
			}
			result := messages.TestResult{Status: messages.StatusSkipped}
			if _, err := e.TestCaseFinished(t.Context(), id, at, result); err != nil {
				t.Errorf("TestCaseFinished failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := s.Stats().MessagesWritten; got != 2*n {
		t.Errorf("MessagesWritten = %d, want %d", got, 2*n)
	}
}
