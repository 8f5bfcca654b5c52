// Package text writes values in their human readable form
package text

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// Stringer is implemented by values with a text form
type Stringer interface {
	String() string
}

// Unmarshaler is implemented by values that parse their text form
type Unmarshaler interface {
	UnmarshalText(bs []byte) error
}

type Encoder struct{}

func NewEncoder() *Encoder {
	return new(Encoder)
}

// Marshal returns the String form of v, or JSON for other values
func (e *Encoder) Marshal(v any) ([]byte, error) {
	switch s := v.(type) {
	case Stringer:
		return []byte(s.String()), nil
	case string:
		return []byte(s), nil
	case []byte:
		return s, nil
	case *string:
		return []byte(*s), nil
	}
	js, err := json.Marshal(v)
	return js, errors.WithStack(err)
}

func (e *Encoder) Unmarshal(bs []byte, ret any) error {
	switch s := ret.(type) {
	case Unmarshaler:
		return s.UnmarshalText(bs)
	case *string:
		*s = string(bs)
		return nil
	case *[]byte:
		*s = bs
		return nil
	}
	return errors.Errorf("text form cannot be decoded into %T", ret)
}
