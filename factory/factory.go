// Package factory builds protocol messages from raw test-run facts.
//
// Every build operation validates its inputs before constructing anything and
// reports rejection as a *Failure value inside the returned Result; expected
// invalid input never panics and never yields a partially built message.
//
// Timestamps must carry the time.UTC location. The check compares the
// location itself, not the offset or the zone name: a time in time.Local is
// rejected even when the local offset happens to be zero, and so is any
// time.FixedZone, including FixedZone("UTC", 0). The same holds for
// time.LoadLocation("Etc/UTC"), which returns a distinct *time.Location read
// from the TZ database; LoadLocation("UTC") returns time.UTC and is accepted.
// Callers normalize with t.UTC() before building.
package factory

import (
	"time"

	"github.com/google/uuid"

	"github.com/justapithecus/cukemsg/messages"
	"github.com/justapithecus/cukemsg/types"
)

// MessageFactory builds protocol messages. The zero value is ready to use,
// holds no state and is safe for concurrent use.
type MessageFactory struct{}

// New returns a MessageFactory.
func New() MessageFactory {
	return MessageFactory{}
}

// BuildTestRunStarted builds the message announcing the start of a run.
func (MessageFactory) BuildTestRunStarted(timestamp time.Time) Result[messages.TestRunStarted] {
	ts, f := convertTimestamp(timestamp)
	if f != nil {
		return fail[messages.TestRunStarted](f)
	}
	return Success[messages.TestRunStarted]{Message: messages.TestRunStarted{
		Timestamp:              ts,
		CucumberImplementation: types.ImplementationName,
	}}
}

// BuildTestCaseStarted builds the message announcing that the pickle
// identified by pickleID started executing. The timestamp is validated before
// the identifier is rendered.
func (MessageFactory) BuildTestCaseStarted(pickleID uuid.UUID, timestamp time.Time) Result[messages.TestCaseStarted] {
	ts, f := convertTimestamp(timestamp)
	if f != nil {
		return fail[messages.TestCaseStarted](f)
	}
	return Success[messages.TestCaseStarted]{Message: messages.TestCaseStarted{
		PickleID:  FormatPickleID(pickleID),
		Timestamp: ts,
	}}
}

// BuildTestCaseFinished builds the message announcing that the pickle
// finished with the given result.
func (MessageFactory) BuildTestCaseFinished(pickleID uuid.UUID, timestamp time.Time, result messages.TestResult) Result[messages.TestCaseFinished] {
	ts, f := convertTimestamp(timestamp)
	if f != nil {
		return fail[messages.TestCaseFinished](f)
	}
	if f := validateTestResult(result); f != nil {
		return fail[messages.TestCaseFinished](f)
	}
	return Success[messages.TestCaseFinished]{Message: messages.TestCaseFinished{
		PickleID:   FormatPickleID(pickleID),
		Timestamp:  ts,
		TestResult: result,
	}}
}

// BuildTestResult builds a test result from a status, an elapsed duration and
// an optional message.
func (MessageFactory) BuildTestResult(status messages.Status, duration time.Duration, message string) Result[messages.TestResult] {
	result := messages.TestResult{
		Status:   status,
		Message:  message,
		Duration: messages.DurationFromStd(duration),
	}
	if f := validateTestResult(result); f != nil {
		return fail[messages.TestResult](f)
	}
	return Success[messages.TestResult]{Message: result}
}

// BuildTestRunFinished builds the message announcing the end of a run.
func (MessageFactory) BuildTestRunFinished(success bool, timestamp time.Time) Result[messages.TestRunFinished] {
	ts, f := convertTimestamp(timestamp)
	if f != nil {
		return fail[messages.TestRunFinished](f)
	}
	return Success[messages.TestRunFinished]{Message: messages.TestRunFinished{
		Success:   success,
		Timestamp: ts,
	}}
}

// BuildEnvelope wraps a built message, given by value or pointer, in an
// Envelope. Any other value yields FailureInvalidMessage.
func (MessageFactory) BuildEnvelope(message any) Result[messages.Envelope] {
	var env messages.Envelope
	switch m := message.(type) {
	case messages.TestRunStarted:
		env.TestRunStarted = &m
	case *messages.TestRunStarted:
		if m == nil {
			return fail[messages.Envelope](nilMessage())
		}
		c := *m
		env.TestRunStarted = &c
	case messages.TestCaseStarted:
		env.TestCaseStarted = &m
	case *messages.TestCaseStarted:
		if m == nil {
			return fail[messages.Envelope](nilMessage())
		}
		c := *m
		env.TestCaseStarted = &c
	case messages.TestCaseFinished:
		env.TestCaseFinished = &m
	case *messages.TestCaseFinished:
		if m == nil {
			return fail[messages.Envelope](nilMessage())
		}
		c := *m
		env.TestCaseFinished = &c
	case messages.TestRunFinished:
		env.TestRunFinished = &m
	case *messages.TestRunFinished:
		if m == nil {
			return fail[messages.Envelope](nilMessage())
		}
		c := *m
		env.TestRunFinished = &c
	default:
		return fail[messages.Envelope](&Failure{
			Kind:   FailureInvalidMessage,
			Field:  "message",
			Reason: "unsupported message type",
		})
	}
	if err := env.Validate(); err != nil {
		return fail[messages.Envelope](&Failure{Kind: FailureInvalidMessage, Field: "message", Reason: err.Error()})
	}
	return Success[messages.Envelope]{Message: env}
}

func nilMessage() *Failure {
	return &Failure{Kind: FailureInvalidMessage, Field: "message", Reason: "nil message"}
}

// IsUTC reports whether t carries the time.UTC location. Equivalent zones
// such as Etc/UTC are not UTC here.
func IsUTC(t time.Time) bool {
	return t.Location() == time.UTC
}

func convertTimestamp(t time.Time) (messages.Timestamp, *Failure) {
	if !IsUTC(t) {
		return messages.Timestamp{}, &Failure{
			Kind:   FailureNonUTCTimestamp,
			Field:  "timestamp",
			Reason: "location " + locationName(t) + " is not UTC",
		}
	}
	return messages.TimestampFromTime(t), nil
}

func locationName(t time.Time) string {
	name := t.Location().String()
	if name == "" {
		name, _ = t.Zone()
	}
	if name == "" {
		return `""`
	}
	return name
}

func validateTestResult(r messages.TestResult) *Failure {
	if !r.Status.IsValid() {
		return &Failure{
			Kind:   FailureInvalidTestResult,
			Field:  "status",
			Reason: "unknown status " + string(r.Status),
		}
	}
	if !r.Duration.Valid() {
		return &Failure{
			Kind:   FailureInvalidTestResult,
			Field:  "duration",
			Reason: "duration must be non-negative",
		}
	}
	return nil
}
