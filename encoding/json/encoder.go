package json

import (
	"bytes"
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// Encoder writes indented JSON
type Encoder struct {
	indent string
	strict bool
}

// NewEncoder returns an encoder indenting with two spaces
func NewEncoder() *Encoder {
	return &Encoder{indent: "  "}
}

// WithIndent sets the indentation; empty produces compact output
func (e *Encoder) WithIndent(indent string) *Encoder {
	e.indent = indent
	return e
}

// WithStrict rejects unknown fields on Unmarshal
func (e *Encoder) WithStrict(strict bool) *Encoder {
	e.strict = strict
	return e
}

func (e *Encoder) Marshal(v any) ([]byte, error) {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if e.indent != "" {
		enc.SetIndent("", e.indent)
	}
	if err := enc.Encode(v); err != nil {
		return nil, errors.WithStack(err)
	}
	return b.Bytes(), nil
}

func (e *Encoder) Unmarshal(bs []byte, ret any) error {
	dec := json.NewDecoder(bytes.NewReader(bs))
	if e.strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(ret); err != nil {
		return errors.Wrap(err, "invalid JSON")
	}
	return nil
}
