package lode

import (
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/justapithecus/lode/lode"

	"github.com/justapithecus/cukemsg/messages"
)

func sharedFactory(store lode.Store) lode.StoreFactory {
	return func() (lode.Store, error) { return store, nil }
}

func testEnvelopes() []*messages.Envelope {
	ts := messages.Timestamp{Seconds: 1557412068}
	return []*messages.Envelope{
		{TestRunStarted: &messages.TestRunStarted{Timestamp: ts, CucumberImplementation: "SpecFlow"}},
		{TestCaseStarted: &messages.TestCaseStarted{PickleID: "6ba7b810-9dad-11d1-80b4-00c04fd430c8", Timestamp: ts}},
		{TestCaseFinished: &messages.TestCaseFinished{
			PickleID:   "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
			Timestamp:  messages.Timestamp{Seconds: 1557412069, Nanos: 42},
			TestResult: messages.TestResult{Status: messages.StatusPassed, Duration: messages.Duration{Seconds: 1}},
		}},
		{TestRunFinished: &messages.TestRunFinished{Success: true, Timestamp: messages.Timestamp{Seconds: 1557412070}}},
	}
}

func TestSink_WriteReadRoundTrip(t *testing.T) {
	store := lode.NewMemory()
	factory := sharedFactory(store)

	s, err := NewWithFactory(Config{RunID: "run-rt"}, factory)
	if err != nil {
		t.Fatalf("NewWithFactory failed: %v", err)
	}

	envs := testEnvelopes()
	if err := s.Write(t.Context(), envs[:2]); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := s.Write(t.Context(), envs[2:]); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	ds, err := NewDataset(DefaultDataset, factory)
	if err != nil {
		t.Fatalf("NewDataset failed: %v", err)
	}
	got, err := ReadMessages(t.Context(), ds, "run-rt")
	if err != nil {
		t.Fatalf("ReadMessages failed: %v", err)
	}

	if len(got) != len(envs) {
		t.Fatalf("ReadMessages returned %d envelopes, want %d", len(got), len(envs))
	}
	for i := range envs {
		if got[i].Type() != envs[i].Type() {
			t.Errorf("[%d] type = %q, want %q", i, got[i].Type(), envs[i].Type())
			continue
		}
		if got[i].Message() != envs[i].Message() {
			t.Errorf("[%d] message = %+v, want %+v", i, got[i].Message(), envs[i].Message())
		}
	}
}

func TestSink_RecordShape(t *testing.T) {
	store := lode.NewMemory()
	factory := sharedFactory(store)

	s, err := NewWithFactory(Config{Dataset: "msgs", RunID: "run-1"}, factory)
	if err != nil {
		t.Fatalf("NewWithFactory failed: %v", err)
	}
	if err := s.Write(t.Context(), testEnvelopes()[:1]); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	ds, err := NewDataset("msgs", factory)
	if err != nil {
		t.Fatalf("NewDataset failed: %v", err)
	}
	latest, err := ds.Latest(t.Context())
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	data, err := ds.Read(t.Context(), latest.ID)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(data) != 1 {
		t.Fatalf("Read returned %d items, want 1", len(data))
	}

	record, ok := data[0].(map[string]any)
	if !ok {
		t.Fatalf("record type = %T, want map[string]any", data[0])
	}
	want := map[string]string{
		"record_kind":  RecordKindMessage,
		"run_id":       "run-1",
		"message_type": "test_run_started",
		"day":          "2019-05-09",
	}
	for k, v := range want {
		if record[k] != v {
			t.Errorf("%s = %v, want %q", k, record[k], v)
		}
	}
	if seq, err := recordSeq(record); err != nil || seq != 0 {
		t.Errorf("seq = %d (%v), want 0", seq, err)
	}
}

func TestSink_DayOverride(t *testing.T) {
	rec := toMessageRecordMap(testEnvelopes()[0], Config{RunID: "r", Day: "2020-01-01"}, 0)
	if rec["day"] != "2020-01-01" {
		t.Errorf("day = %v, want 2020-01-01", rec["day"])
	}
}

func TestSink_ResumesSequenceAcrossSinks(t *testing.T) {
	store := lode.NewMemory()
	factory := sharedFactory(store)
	envs := testEnvelopes()

	// One sink per message, as separate emit invocations would open.
	for i, env := range envs {
		s, err := NewWithFactory(Config{RunID: "run-cli"}, factory)
		if err != nil {
			t.Fatalf("NewWithFactory failed: %v", err)
		}
		if err := s.Write(t.Context(), []*messages.Envelope{env}); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
	}

	ds, err := NewDataset(DefaultDataset, factory)
	if err != nil {
		t.Fatalf("NewDataset failed: %v", err)
	}
	next, err := nextSeq(t.Context(), ds, "run-cli")
	if err != nil {
		t.Fatalf("nextSeq failed: %v", err)
	}
	if next != int64(len(envs)) {
		t.Errorf("nextSeq = %d, want %d", next, len(envs))
	}

	got, err := ReadMessages(t.Context(), ds, "run-cli")
	if err != nil {
		t.Fatalf("ReadMessages failed: %v", err)
	}
	if len(got) != len(envs) {
		t.Fatalf("ReadMessages returned %d envelopes, want %d", len(got), len(envs))
	}
	for i := range envs {
		if got[i].Type() != envs[i].Type() {
			t.Errorf("[%d] type = %q, want %q", i, got[i].Type(), envs[i].Type())
		}
	}
}

func TestReadMessages_KeepsIdenticalMessages(t *testing.T) {
	store := lode.NewMemory()
	factory := sharedFactory(store)
	started := testEnvelopes()[1]

	s, err := NewWithFactory(Config{RunID: "run-dup"}, factory)
	if err != nil {
		t.Fatalf("NewWithFactory failed: %v", err)
	}
	if err := s.Write(t.Context(), []*messages.Envelope{started, started}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	ds, err := NewDataset(DefaultDataset, factory)
	if err != nil {
		t.Fatalf("NewDataset failed: %v", err)
	}
	got, err := ReadMessages(t.Context(), ds, "run-dup")
	if err != nil {
		t.Fatalf("ReadMessages failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("ReadMessages returned %d envelopes, want 2 identical ones", len(got))
	}
}

func TestReadMessages_CollapsesRewrittenBatch(t *testing.T) {
	store := lode.NewMemory()
	factory := sharedFactory(store)
	envs := testEnvelopes()
	cfg := Config{RunID: "run-retry"}

	ds, err := NewDataset(DefaultDataset, factory)
	if err != nil {
		t.Fatalf("NewDataset failed: %v", err)
	}
	batch := func(from int, envs ...*messages.Envelope) []any {
		records := make([]any, len(envs))
		for i, env := range envs {
			records[i] = toMessageRecordMap(env, cfg, int64(from+i))
		}
		return records
	}
	// The second snapshot rewrites seq 0-1 with one new message appended.
	if _, err := ds.Write(t.Context(), batch(0, envs[0], envs[1]), lode.Metadata{}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := ds.Write(t.Context(), batch(0, envs[0], envs[1], envs[2]), lode.Metadata{}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	got, err := ReadMessages(t.Context(), ds, "run-retry")
	if err != nil {
		t.Fatalf("ReadMessages failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("ReadMessages returned %d envelopes, want 3", len(got))
	}
	for i := range got {
		if got[i].Type() != envs[i].Type() {
			t.Errorf("[%d] type = %q, want %q", i, got[i].Type(), envs[i].Type())
		}
	}
}

func TestRecordSeq(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		want    int64
		wantErr bool
	}{
		{"int64", int64(7), 7, false},
		{"int", 3, 3, false},
		{"decoded float", float64(12), 12, false},
		{"json number", json.Number("5"), 5, false},
		{"fractional", 1.5, 0, true},
		{"negative", float64(-1), 0, true},
		{"missing", nil, 0, true},
		{"string", "1", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := recordSeq(map[string]any{"seq": tt.value})
			if (err != nil) != tt.wantErr {
				t.Fatalf("recordSeq error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("recordSeq = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestReadMessages_FiltersByRun(t *testing.T) {
	store := lode.NewMemory()
	factory := sharedFactory(store)
	envs := testEnvelopes()

	a, err := NewWithFactory(Config{RunID: "run-a"}, factory)
	if err != nil {
		t.Fatalf("NewWithFactory failed: %v", err)
	}
	b, err := NewWithFactory(Config{RunID: "run-b"}, factory)
	if err != nil {
		t.Fatalf("NewWithFactory failed: %v", err)
	}
	if err := a.Write(t.Context(), envs[:1]); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := b.Write(t.Context(), envs[3:]); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	ds, err := NewDataset(DefaultDataset, factory)
	if err != nil {
		t.Fatalf("NewDataset failed: %v", err)
	}
	got, err := ReadMessages(t.Context(), ds, "run-b")
	if err != nil {
		t.Fatalf("ReadMessages failed: %v", err)
	}
	if len(got) != 1 || got[0].Type() != messages.MessageTypeTestRunFinished {
		t.Errorf("ReadMessages(run-b) = %d envelopes, want one test_run_finished", len(got))
	}

	if _, err := ReadMessages(t.Context(), ds, "run-missing"); !errors.Is(err, ErrNoMessagesFound) {
		t.Errorf("ReadMessages(run-missing) error = %v, want ErrNoMessagesFound", err)
	}
}

func TestSink_WriteEmptyBatch(t *testing.T) {
	s, err := NewWithFactory(Config{RunID: "run-1"}, lode.NewMemoryFactory())
	if err != nil {
		t.Fatalf("NewWithFactory failed: %v", err)
	}
	if err := s.Write(t.Context(), nil); err != nil {
		t.Errorf("Write(nil) = %v, want nil", err)
	}
}

func TestSink_RejectsInvalidEnvelope(t *testing.T) {
	s, err := NewWithFactory(Config{RunID: "run-1"}, lode.NewMemoryFactory())
	if err != nil {
		t.Fatalf("NewWithFactory failed: %v", err)
	}
	if err := s.Write(t.Context(), []*messages.Envelope{{}}); !errors.Is(err, messages.ErrEmptyEnvelope) {
		t.Errorf("Write error = %v, want ErrEmptyEnvelope", err)
	}
}

func TestNewFS_WritesUnderRoot(t *testing.T) {
	root := t.TempDir()
	s, err := NewFS(Config{RunID: "run-fs"}, root)
	if err != nil {
		t.Fatalf("NewFS failed: %v", err)
	}
	if err := s.Write(t.Context(), testEnvelopes()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) == 0 {
		t.Error("no files written under root")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{RunID: "run-1"}, false},
		{"missing run id", Config{}, true},
		{"slash in run id", Config{RunID: "a/b"}, true},
		{"equals in run id", Config{RunID: "a=b"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestS3Config_Validate(t *testing.T) {
	cfg := S3Config{}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing bucket")
	}
	cfg.Bucket = "b"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestParseS3Path(t *testing.T) {
	tests := []struct {
		path, bucket, prefix string
	}{
		{"bucket", "bucket", ""},
		{"bucket/prefix", "bucket", "prefix"},
		{"bucket/a/b/c", "bucket", "a/b/c"},
	}

	for _, tt := range tests {
		bucket, prefix := ParseS3Path(tt.path)
		if bucket != tt.bucket || prefix != tt.prefix {
			t.Errorf("ParseS3Path(%q) = (%q, %q), want (%q, %q)", tt.path, bucket, prefix, tt.bucket, tt.prefix)
		}
	}
}
