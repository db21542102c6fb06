package policy_test

import (
	"github.com/justapithecus/cukemsg/messages"
)

var ts = messages.Timestamp{Seconds: 1557412068}

func caseStarted() *messages.Envelope {
	return &messages.Envelope{TestCaseStarted: &messages.TestCaseStarted{
		PickleID:  "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
		Timestamp: ts,
	}}
}

func runStarted() *messages.Envelope {
	return &messages.Envelope{TestRunStarted: &messages.TestRunStarted{
		Timestamp:              ts,
		CucumberImplementation: "SpecFlow",
	}}
}

func runFinished() *messages.Envelope {
	return &messages.Envelope{TestRunFinished: &messages.TestRunFinished{
		Success:   true,
		Timestamp: ts,
	}}
}
