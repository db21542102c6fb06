// Package stream implements a sink that encodes envelopes onto a byte stream:
// a file, stdout, or any io.WriteCloser.
package stream

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/justapithecus/cukemsg/iox"
	"github.com/justapithecus/cukemsg/messages"
	"github.com/justapithecus/cukemsg/sink"
	"github.com/justapithecus/cukemsg/wire"
)

// FileMode is the permission used when creating output files.
const FileMode = 0o644

// Sink writes envelopes to a stream in a fixed wire format.
type Sink struct {
	mu     sync.Mutex
	w      io.WriteCloser
	enc    wire.Encoder
	format wire.Format
	closed bool
}

// New creates a sink that encodes to w. The sink owns w and closes it on
// Close; wrap shared writers with iox.NopCloser.
func New(w io.WriteCloser, format wire.Format) (*Sink, error) {
	enc, err := wire.NewEncoder(w, format)
	if err != nil {
		return nil, err
	}
	return &Sink{w: w, enc: enc, format: format}, nil
}

// OpenFile creates a sink appending to path, creating it if missing.
func OpenFile(path string, format wire.Format) (*Sink, error) {
	if _, err := wire.NewEncoder(io.Discard, format); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, FileMode)
	if err != nil {
		return nil, fmt.Errorf("stream: open %s: %w", path, err)
	}
	return New(f, format)
}

// Stdout creates a sink writing to os.Stdout. Close leaves stdout open.
func Stdout(format wire.Format) (*Sink, error) {
	return New(iox.NopCloser(os.Stdout), format)
}

// Format returns the sink's wire format.
func (s *Sink) Format() wire.Format {
	return s.format
}

// Write encodes each envelope in order. A failure stops the batch; envelopes
// before the failing one have already been written.
func (s *Sink) Write(ctx context.Context, envelopes []*messages.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("stream: write after close")
	}
	for _, env := range envelopes {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("stream: %w", err)
		}
		if err := s.enc.Encode(env); err != nil {
			return fmt.Errorf("stream: encode %s: %w", env.Type(), err)
		}
	}
	if f, ok := s.w.(*os.File); ok {
		if err := f.Sync(); err != nil {
			return fmt.Errorf("stream: sync: %w", err)
		}
	}
	return nil
}

// Close closes the underlying writer. Subsequent calls are no-ops.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.w.Close()
}

// Verify Sink implements the sink interface.
var _ sink.Sink = (*Sink)(nil)
