package toml

import (
	"bytes"
	"reflect"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
)

type Encoder struct {
	indent string
}

func NewEncoder() *Encoder {
	return &Encoder{indent: "  "}
}

// WithIndent sets the indentation of nested tables
func (e *Encoder) WithIndent(indent string) *Encoder {
	e.indent = indent
	return e
}

func (e *Encoder) Marshal(v any) ([]byte, error) {
	var b bytes.Buffer
	enc := toml.NewEncoder(&b)
	enc.Indent = e.indent
	if err := enc.Encode(v); err != nil {
		return nil, errors.Wrap(err, "failed to encode TOML")
	}
	return b.Bytes(), nil
}

func (e *Encoder) Unmarshal(bs []byte, ret any) error {
	md, err := toml.Decode(string(bs), ret)
	if err != nil {
		return errors.Wrap(err, "invalid TOML")
	}
	for _, key := range md.Undecoded() {
		// nested keys of map and interface values are stored as is
		if !dynamic(reflect.TypeOf(ret), key) {
			return errors.Errorf("unknown TOML key %q", key.String())
		}
	}
	return nil
}

// dynamic reports whether the key lands inside a map or interface value of t
func dynamic(t reflect.Type, key toml.Key) bool {
	for _, name := range key {
		t = element(t)
		switch t.Kind() {
		case reflect.Map, reflect.Interface:
			return true
		case reflect.Struct:
			f, ok := field(t, name)
			if !ok {
				return false
			}
			t = f.Type
		default:
			return false
		}
	}
	return false
}

func element(t reflect.Type) reflect.Type {
	for {
		switch t.Kind() {
		case reflect.Pointer, reflect.Slice, reflect.Array:
			t = t.Elem()
		default:
			return t
		}
	}
}

func field(t reflect.Type, name string) (reflect.StructField, bool) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
		if tag == "-" {
			continue
		}
		if tag == "" && f.Anonymous {
			if et := element(f.Type); et.Kind() == reflect.Struct {
				if ef, ok := field(et, name); ok {
					return ef, true
				}
			}
			continue
		}
		if tag == "" {
			tag = f.Name
		}
		if strings.EqualFold(tag, name) {
			return f, true
		}
	}
	return reflect.StructField{}, false
}
