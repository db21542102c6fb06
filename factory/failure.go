package factory

import (
	"errors"
	"fmt"
)

// FailureKind classifies why a build operation rejected its input.
type FailureKind string

// Failure kinds. Values are stable and used as log and metric labels.
const (
	// FailureNonUTCTimestamp means an instant was not expressed in UTC.
	FailureNonUTCTimestamp FailureKind = "non_utc_timestamp"
	// FailureInvalidIdentifier means an identifier could not be parsed.
	FailureInvalidIdentifier FailureKind = "invalid_identifier"
	// FailureInvalidTestResult means a test result had an unknown status or a
	// negative duration.
	FailureInvalidTestResult FailureKind = "invalid_test_result"
	// FailureInvalidMessage means a value was not a buildable message.
	FailureInvalidMessage FailureKind = "invalid_message"
)

// Sentinel errors, one per FailureKind. A *Failure matches the sentinel of
// its kind under errors.Is.
var (
	ErrNonUTCTimestamp   = errors.New("factory: timestamp is not UTC")
	ErrInvalidIdentifier = errors.New("factory: invalid identifier")
	ErrInvalidTestResult = errors.New("factory: invalid test result")
	ErrInvalidMessage    = errors.New("factory: invalid message")
)

// Failure describes a rejected build. Builders return it inside Failed; Unwrap
// hands it back as the error.
type Failure struct {
	// Kind is the failure category.
	Kind FailureKind
	// Field names the offending input, if any.
	Field string
	// Reason is a human-readable detail.
	Reason string
}

var _ error = (*Failure)(nil)

// Error implements the error interface.
func (f *Failure) Error() string {
	if f.Field != "" {
		return fmt.Sprintf("factory: %s: %s: %s", f.Kind, f.Field, f.Reason)
	}
	return fmt.Sprintf("factory: %s: %s", f.Kind, f.Reason)
}

// Is reports whether target is the sentinel for f's kind, or a *Failure of
// the same kind.
func (f *Failure) Is(target error) bool {
	if t, ok := target.(*Failure); ok {
		return t.Kind == f.Kind
	}
	return target == f.Kind.sentinel()
}

func (k FailureKind) sentinel() error {
	switch k {
	case FailureNonUTCTimestamp:
		return ErrNonUTCTimestamp
	case FailureInvalidIdentifier:
		return ErrInvalidIdentifier
	case FailureInvalidTestResult:
		return ErrInvalidTestResult
	case FailureInvalidMessage:
		return ErrInvalidMessage
	default:
		return nil
	}
}
