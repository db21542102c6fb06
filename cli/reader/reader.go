package reader

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/justapithecus/cukemsg/iox"
	"github.com/justapithecus/cukemsg/messages"
	sinklode "github.com/justapithecus/cukemsg/sink/lode"
	"github.com/justapithecus/cukemsg/wire"
)

// Reader loads a stored message stream.
type Reader interface {
	Messages(ctx context.Context) ([]*messages.Envelope, error)
}

// FileReader reads a message file written by the file or stdout sink.
type FileReader struct {
	Path   string
	Format wire.Format
}

// Messages decodes every envelope in the file.
func (r FileReader) Messages(_ context.Context) ([]*messages.Envelope, error) {
	f, err := os.Open(r.Path)
	if err != nil {
		return nil, err
	}
	defer iox.DiscardClose(f)

	dec, err := wire.NewDecoder(f, r.Format)
	if err != nil {
		return nil, err
	}
	envs, err := wire.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.Path, err)
	}
	return envs, nil
}

// DatasetReader reads one run's messages from a Lode dataset.
type DatasetReader struct {
	Dataset lode.Dataset
	RunID   string
}

// Messages returns the run's envelopes in write order.
func (r DatasetReader) Messages(ctx context.Context) ([]*messages.Envelope, error) {
	return sinklode.ReadMessages(ctx, r.Dataset, r.RunID)
}

// Rows flattens envelopes for display. Index is 1-based.
func Rows(envs []*messages.Envelope) []MessageRow {
	rows := make([]MessageRow, 0, len(envs))
	for i, env := range envs {
		row := MessageRow{
			Index:     i + 1,
			Type:      string(env.Type()),
			Timestamp: env.Timestamp().Time().Format(time.RFC3339Nano),
		}
		switch {
		case env.TestRunStarted != nil:
			row.Detail = env.TestRunStarted.CucumberImplementation
		case env.TestCaseStarted != nil:
			row.PickleID = env.TestCaseStarted.PickleID
		case env.TestCaseFinished != nil:
			r := env.TestCaseFinished.TestResult
			row.PickleID = env.TestCaseFinished.PickleID
			row.Status = string(r.Status)
			row.Duration = r.Duration.Std().String()
			row.Detail = r.Message
		case env.TestRunFinished != nil:
			row.Detail = fmt.Sprintf("success=%t", env.TestRunFinished.Success)
		}
		rows = append(rows, row)
	}
	return rows
}

// Summarize aggregates envelopes into a Summary.
func Summarize(envs []*messages.Envelope) *Summary {
	s := &Summary{
		Total:    len(envs),
		ByType:   make(map[string]int),
		ByStatus: make(map[string]int),
	}

	open := make(map[string]bool)
	seen := make(map[string]bool)
	var order []string
	for _, env := range envs {
		s.ByType[string(env.Type())]++
		switch {
		case env.TestRunStarted != nil:
			s.Implementation = env.TestRunStarted.CucumberImplementation
		case env.TestCaseStarted != nil:
			id := env.TestCaseStarted.PickleID
			if !seen[id] {
				seen[id] = true
				order = append(order, id)
			}
			open[id] = true
		case env.TestCaseFinished != nil:
			open[env.TestCaseFinished.PickleID] = false
			s.ByStatus[string(env.TestCaseFinished.TestResult.Status)]++
		case env.TestRunFinished != nil:
			success := env.TestRunFinished.Success
			s.Success = &success
		}
	}

	for _, id := range order {
		if open[id] {
			s.OpenCases = append(s.OpenCases, id)
		}
	}
	if n := len(envs); n > 0 && envs[n-1].Type().IsTerminal() {
		s.Complete = true
	}
	return s
}
