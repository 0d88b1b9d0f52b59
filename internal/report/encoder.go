// Package report writes run results in the supported output formats.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// Encoder writes one value to w.
type Encoder interface {
	Encode(w io.Writer, v interface{}) error
	ContentType() string
}

// NewEncoder returns the encoder for format ("json" or "msgpack").
func NewEncoder(format string) (Encoder, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		return JSONEncoder{Indent: "  "}, nil
	case "msgpack":
		return MsgpackEncoder{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
}

// JSONEncoder writes indented JSON followed by a newline.
type JSONEncoder struct {
	Indent string
}

// Encode implements Encoder.
func (e JSONEncoder) Encode(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	if e.Indent != "" {
		enc.SetIndent("", e.Indent)
	}
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode json: %w", err)
	}
	return nil
}

// ContentType implements Encoder.
func (JSONEncoder) ContentType() string { return "application/json" }

// MsgpackEncoder writes MessagePack. Field names follow the json tags so
// both formats carry the same keys.
type MsgpackEncoder struct{}

// Encode implements Encoder.
func (MsgpackEncoder) Encode(w io.Writer, v interface{}) error {
	enc := msgpack.NewEncoder(w)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode msgpack: %w", err)
	}
	return nil
}

// ContentType implements Encoder.
func (MsgpackEncoder) ContentType() string { return "application/msgpack" }
