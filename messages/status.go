package messages

import (
	"fmt"
	"strings"
)

// Status is the outcome of a test case.
type Status string

// Status constants, in the order the protocol enumerates them.
const (
	StatusUnknown   Status = "UNKNOWN"
	StatusPassed    Status = "PASSED"
	StatusSkipped   Status = "SKIPPED"
	StatusPending   Status = "PENDING"
	StatusUndefined Status = "UNDEFINED"
	StatusAmbiguous Status = "AMBIGUOUS"
	StatusFailed    Status = "FAILED"
)

var allStatuses = []Status{
	StatusUnknown,
	StatusPassed,
	StatusSkipped,
	StatusPending,
	StatusUndefined,
	StatusAmbiguous,
	StatusFailed,
}

// Statuses returns every defined status.
func Statuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// IsValid returns true if s is one of the defined statuses.
func (s Status) IsValid() bool {
	for _, known := range allStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// ParseStatus parses a status name case-insensitively.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", fmt.Errorf("messages: unknown status %q", raw)
	}
	return s, nil
}
