package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("log line is not JSON: %q: %v", line, err)
		}
		out = append(out, entry)
	}
	return out
}

func TestLogger_ContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(Config{Output: &buf, RunID: "run-1"})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	logger.Info("message built", map[string]any{"type": "test_run_started"})

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e["message"] != "message built" {
		t.Errorf("message = %v, want %q", e["message"], "message built")
	}
	if e["level"] != "info" {
		t.Errorf("level = %v, want info", e["level"])
	}
	if e["run_id"] != "run-1" {
		t.Errorf("run_id = %v, want run-1", e["run_id"])
	}
	if e["implementation"] != "SpecFlow" {
		t.Errorf("implementation = %v, want SpecFlow", e["implementation"])
	}
	if _, ok := e["timestamp"]; !ok {
		t.Error("missing timestamp field")
	}
	fields, ok := e["fields"].(map[string]any)
	if !ok || fields["type"] != "test_run_started" {
		t.Errorf("fields = %v, want type=test_run_started", e["fields"])
	}
}

func TestLogger_OmitsEmptyRunID(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(Config{Output: &buf})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	logger.Warn("x", nil)

	entries := decodeLines(t, &buf)
	if _, ok := entries[0]["run_id"]; ok {
		t.Error("run_id present for empty RunID")
	}
}

func TestLogger_Level(t *testing.T) {
	tests := []struct {
		level string
		want  int
	}{
		{"", 3},
		{"debug", 4},
		{"info", 3},
		{"warn", 2},
		{"error", 1},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := NewLogger(Config{Level: tt.level, Output: &buf})
			if err != nil {
				t.Fatalf("NewLogger failed: %v", err)
			}
			logger.Debug("d", nil)
			logger.Info("i", nil)
			logger.Warn("w", nil)
			logger.Error("e", nil)

			if got := len(decodeLines(t, &buf)); got != tt.want {
				t.Errorf("entries = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	if _, err := NewLogger(Config{Level: "loud"}); err == nil {
		t.Error("expected error for invalid level")
	}
}

func TestLogger_SugarAndWith(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(Config{Output: &buf})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	logger.With("sink", "redis").Sugar().With("attempt", 2).Infof("wrote %d messages", 3)

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e["message"] != "wrote 3 messages" {
		t.Errorf("message = %v", e["message"])
	}
	if e["sink"] != "redis" {
		t.Errorf("sink = %v, want redis", e["sink"])
	}
	if e["attempt"] != float64(2) {
		t.Errorf("attempt = %v, want 2", e["attempt"])
	}
}

func TestNop(t *testing.T) {
	logger := Nop()
	logger.Error("discarded", map[string]any{"k": "v"})
	logger.Sugar().Errorf("discarded %d", 1)
}
