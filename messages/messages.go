// Package messages defines the protocol messages exchanged between the test
// framework and a message-consuming tool.
//
// The shapes here mirror an externally defined schema: field names, JSON keys
// and msgpack keys are part of that contract and must not be renamed. Values
// are plain records; producers build them through package factory, which
// guarantees the invariants documented on each field.
package messages

// TestRunStarted marks the beginning of a test run.
type TestRunStarted struct {
	// Timestamp is the UTC instant the run started.
	Timestamp Timestamp `json:"timestamp" msgpack:"timestamp"`
	// CucumberImplementation names the producing test framework.
	CucumberImplementation string `json:"cucumberImplementation" msgpack:"cucumberImplementation"`
}

// TestCaseStarted marks the beginning of one executable test case (pickle).
type TestCaseStarted struct {
	// PickleID is the canonical lowercase hyphenated UUID of the pickle.
	PickleID string `json:"pickleId" msgpack:"pickleId"`
	// Timestamp is the UTC instant the test case started.
	Timestamp Timestamp `json:"timestamp" msgpack:"timestamp"`
}

// TestCaseFinished marks the end of one test case along with its result.
type TestCaseFinished struct {
	// PickleID is the canonical lowercase hyphenated UUID of the pickle.
	PickleID string `json:"pickleId" msgpack:"pickleId"`
	// Timestamp is the UTC instant the test case finished.
	Timestamp Timestamp `json:"timestamp" msgpack:"timestamp"`
	// TestResult is the outcome of the test case.
	TestResult TestResult `json:"testResult" msgpack:"testResult"`
}

// TestRunFinished marks the end of a test run.
type TestRunFinished struct {
	// Success is true when every test case in the run passed.
	Success bool `json:"success" msgpack:"success"`
	// Timestamp is the UTC instant the run finished.
	Timestamp Timestamp `json:"timestamp" msgpack:"timestamp"`
}

// TestResult describes how a test case ended.
type TestResult struct {
	// Status is the result status.
	Status Status `json:"status" msgpack:"status"`
	// Message is an optional human-readable explanation (error text for failures).
	Message string `json:"message,omitempty" msgpack:"message,omitempty"`
	// Duration is the wall-clock execution time of the test case.
	Duration Duration `json:"duration" msgpack:"duration"`
}
