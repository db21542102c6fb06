package messages

import (
	"errors"
	"fmt"
)

// MessageType discriminates the message carried by an Envelope.
type MessageType string

// Message type constants.
const (
	MessageTypeTestRunStarted   MessageType = "test_run_started"
	MessageTypeTestCaseStarted  MessageType = "test_case_started"
	MessageTypeTestCaseFinished MessageType = "test_case_finished"
	MessageTypeTestRunFinished  MessageType = "test_run_finished"
)

// IsTerminal returns true if no further messages may follow this type in a run.
func (m MessageType) IsTerminal() bool {
	return m == MessageTypeTestRunFinished
}

// Envelope carries exactly one message. JSON output follows the protocol's
// NDJSON convention of one camelCase key naming the message.
type Envelope struct {
	TestRunStarted   *TestRunStarted   `json:"testRunStarted,omitempty" msgpack:"testRunStarted,omitempty"`
	TestCaseStarted  *TestCaseStarted  `json:"testCaseStarted,omitempty" msgpack:"testCaseStarted,omitempty"`
	TestCaseFinished *TestCaseFinished `json:"testCaseFinished,omitempty" msgpack:"testCaseFinished,omitempty"`
	TestRunFinished  *TestRunFinished  `json:"testRunFinished,omitempty" msgpack:"testRunFinished,omitempty"`
}

// Envelope validation errors.
var (
	ErrEmptyEnvelope     = errors.New("messages: envelope carries no message")
	ErrAmbiguousEnvelope = errors.New("messages: envelope carries more than one message")
)

// Type returns the type of the carried message, or "" if the envelope is
// empty or ambiguous.
func (e *Envelope) Type() MessageType {
	if e == nil || e.count() != 1 {
		return ""
	}
	switch {
	case e.TestRunStarted != nil:
		return MessageTypeTestRunStarted
	case e.TestCaseStarted != nil:
		return MessageTypeTestCaseStarted
	case e.TestCaseFinished != nil:
		return MessageTypeTestCaseFinished
	default:
		return MessageTypeTestRunFinished
	}
}

// Message returns the carried message as a value, or nil.
func (e *Envelope) Message() any {
	switch e.Type() {
	case MessageTypeTestRunStarted:
		return *e.TestRunStarted
	case MessageTypeTestCaseStarted:
		return *e.TestCaseStarted
	case MessageTypeTestCaseFinished:
		return *e.TestCaseFinished
	case MessageTypeTestRunFinished:
		return *e.TestRunFinished
	default:
		return nil
	}
}

// Timestamp returns the timestamp of the carried message, or the zero
// Timestamp if the envelope is empty.
func (e *Envelope) Timestamp() Timestamp {
	switch {
	case e == nil:
		return Timestamp{}
	case e.TestRunStarted != nil:
		return e.TestRunStarted.Timestamp
	case e.TestCaseStarted != nil:
		return e.TestCaseStarted.Timestamp
	case e.TestCaseFinished != nil:
		return e.TestCaseFinished.Timestamp
	case e.TestRunFinished != nil:
		return e.TestRunFinished.Timestamp
	default:
		return Timestamp{}
	}
}

// Validate checks the structural invariants of the envelope: exactly one
// message set and normalized timestamps and durations.
// It does not check identifier syntax or timestamp zones; those are
// enforced when messages are built.
func (e *Envelope) Validate() error {
	if e == nil {
		return ErrEmptyEnvelope
	}
	switch e.count() {
	case 0:
		return ErrEmptyEnvelope
	case 1:
	default:
		return ErrAmbiguousEnvelope
	}

	switch {
	case e.TestCaseStarted != nil:
		if e.TestCaseStarted.PickleID == "" {
			return errors.New("messages: test_case_started: missing pickleId")
		}
	case e.TestCaseFinished != nil:
		if e.TestCaseFinished.PickleID == "" {
			return errors.New("messages: test_case_finished: missing pickleId")
		}
		r := e.TestCaseFinished.TestResult
		if !r.Status.IsValid() {
			return fmt.Errorf("messages: test_case_finished: invalid status %q", r.Status)
		}
		if !r.Duration.Valid() {
			return fmt.Errorf("messages: test_case_finished: invalid duration %+v", r.Duration)
		}
	}
	if ts := e.Timestamp(); !ts.Valid() {
		return fmt.Errorf("messages: %s: invalid timestamp %+v", e.Type(), ts)
	}
	return nil
}

func (e *Envelope) count() int {
	n := 0
	if e.TestRunStarted != nil {
		n++
	}
	if e.TestCaseStarted != nil {
		n++
	}
	if e.TestCaseFinished != nil {
		n++
	}
	if e.TestRunFinished != nil {
		n++
	}
	return n
}
