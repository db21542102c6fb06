package wire

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/justapithecus/cukemsg/messages"
)

// NDJSONEncoder writes one JSON envelope per line.
type NDJSONEncoder struct {
	writer io.Writer
}

// NewNDJSONEncoder creates a new NDJSON encoder.
func NewNDJSONEncoder(w io.Writer) *NDJSONEncoder {
	return &NDJSONEncoder{writer: w}
}

// Encode writes env followed by a newline in a single Write call.
func (e *NDJSONEncoder) Encode(env *messages.Envelope) error {
	line, err := EncodeLine(env)
	if err != nil {
		return err
	}
	if _, err := e.writer.Write(line); err != nil {
		return fmt.Errorf("wire: write line: %w", err)
	}
	return nil
}

// EncodeLine returns env as a newline-terminated JSON document.
func EncodeLine(env *messages.Envelope) ([]byte, error) {
	if err := env.Validate(); err != nil {
		return nil, &FrameError{Kind: FrameErrorInvalid, Msg: "refusing to encode invalid envelope", Err: err}
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to encode envelope", Err: err}
	}
	return append(data, '\n'), nil
}

// NDJSONDecoder reads one JSON envelope per line. Blank lines are skipped.
type NDJSONDecoder struct {
	scanner *bufio.Scanner
}

// NewNDJSONDecoder creates a new NDJSON decoder. Lines longer than
// MaxFrameSize are rejected.
func NewNDJSONDecoder(r io.Reader) *NDJSONDecoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxFrameSize)
	return &NDJSONDecoder{scanner: scanner}
}

// Decode reads the next envelope. Returns io.EOF when the stream is exhausted.
func (d *NDJSONDecoder) Decode() (*messages.Envelope, error) {
	for d.scanner.Scan() {
		line := bytes.TrimSpace(d.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		return DecodeLine(line)
	}
	if err := d.scanner.Err(); err != nil {
		if err == bufio.ErrTooLong {
			return nil, &FrameError{Kind: FrameErrorTooLarge, Msg: "line exceeds maximum size", Err: err}
		}
		return nil, &FrameError{Kind: FrameErrorPartial, Msg: "failed to read line", Err: err}
	}
	return nil, io.EOF
}

// DecodeLine decodes and validates a single JSON envelope.
func DecodeLine(line []byte) (*messages.Envelope, error) {
	var envelope messages.Envelope
	if err := json.Unmarshal(line, &envelope); err != nil {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode envelope", Err: err}
	}
	if err := envelope.Validate(); err != nil {
		return nil, &FrameError{Kind: FrameErrorInvalid, Msg: "decoded envelope is invalid", Err: err}
	}
	return &envelope, nil
}
