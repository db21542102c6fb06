package wire

import (
	"fmt"
	"io"
	"strings"

	"github.com/justapithecus/cukemsg/messages"
)

// Format selects an envelope encoding.
type Format string

// Supported formats.
const (
	// FormatBinary is length-prefixed msgpack frames.
	FormatBinary Format = "binary"
	// FormatNDJSON is one JSON envelope per line.
	FormatNDJSON Format = "ndjson"
)

// ParseFormat parses a format name. The empty string selects FormatNDJSON.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ndjson", "json":
		return FormatNDJSON, nil
	case "binary", "msgpack":
		return FormatBinary, nil
	default:
		return "", fmt.Errorf("wire: unknown format %q (expected binary or ndjson)", s)
	}
}

// Encoder writes envelopes to a stream.
type Encoder interface {
	Encode(env *messages.Envelope) error
}

// Decoder reads envelopes from a stream. Decode returns io.EOF at a clean end.
type Decoder interface {
	Decode() (*messages.Envelope, error)
}

var (
	_ Encoder = (*FrameEncoder)(nil)
	_ Encoder = (*NDJSONEncoder)(nil)
	_ Decoder = (*FrameDecoder)(nil)
	_ Decoder = (*NDJSONDecoder)(nil)
)

// NewEncoder returns an encoder for format.
func NewEncoder(w io.Writer, format Format) (Encoder, error) {
	switch format {
	case FormatBinary:
		return NewFrameEncoder(w), nil
	case FormatNDJSON, "":
		return NewNDJSONEncoder(w), nil
	default:
		return nil, fmt.Errorf("wire: unknown format %q", format)
	}
}

// NewDecoder returns a decoder for format.
func NewDecoder(r io.Reader, format Format) (Decoder, error) {
	switch format {
	case FormatBinary:
		return NewFrameDecoder(r), nil
	case FormatNDJSON, "":
		return NewNDJSONDecoder(r), nil
	default:
		return nil, fmt.Errorf("wire: unknown format %q", format)
	}
}

// ReadAll decodes every envelope from dec until io.EOF.
func ReadAll(dec Decoder) ([]*messages.Envelope, error) {
	var out []*messages.Envelope
	for {
		env, err := dec.Decode()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, env)
	}
}
