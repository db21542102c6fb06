// Package reader provides the read side of the cukemsg CLI: it loads stored
// message streams and turns them into the row and summary payloads that
// every output format (json, yaml, table, tui) renders.
package reader

import "github.com/justapithecus/cukemsg/messages"

// MessageRow is one decoded envelope flattened for display.
type MessageRow struct {
	Index     int    `json:"index" yaml:"index"`
	Type      string `json:"type" yaml:"type"`
	Timestamp string `json:"timestamp" yaml:"timestamp"`
	PickleID  string `json:"pickle_id,omitempty" yaml:"pickle_id,omitempty"`
	Status    string `json:"status,omitempty" yaml:"status,omitempty"`
	Duration  string `json:"duration,omitempty" yaml:"duration,omitempty"`
	Detail    string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// Summary aggregates a message stream.
type Summary struct {
	Total int `json:"total" yaml:"total"`
	// ByType counts envelopes per message type.
	ByType map[string]int `json:"by_type" yaml:"by_type"`
	// ByStatus counts test_case_finished results per status.
	ByStatus map[string]int `json:"by_status" yaml:"by_status"`
	// Implementation is the cucumberImplementation of test_run_started.
	Implementation string `json:"implementation,omitempty" yaml:"implementation,omitempty"`
	// Complete is true when the stream ends with test_run_finished.
	Complete bool `json:"complete" yaml:"complete"`
	// Success is the test_run_finished outcome; nil while incomplete.
	Success *bool `json:"success" yaml:"success"`
	// OpenCases lists pickle IDs started but never finished.
	OpenCases []string `json:"open_cases,omitempty" yaml:"open_cases,omitempty"`
}

// Report is the full decode payload: a summary and every row.
type Report struct {
	Summary  *Summary     `json:"summary" yaml:"summary"`
	Messages []MessageRow `json:"messages" yaml:"messages"`
}

// NewReport builds a Report from decoded envelopes.
func NewReport(envs []*messages.Envelope) *Report {
	return &Report{Summary: Summarize(envs), Messages: Rows(envs)}
}
