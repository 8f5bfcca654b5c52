package schema

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// ValidationError describes the first argument that does not satisfy the schema
type ValidationError struct {
	// Path is the offending parameter path, like `a` or `filter.tags[2]`.
	// It is empty when the arguments as a whole are malformed.
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return "invalid arguments: " + e.Reason
	}
	return fmt.Sprintf("invalid argument %q: %s", e.Path, e.Reason)
}

var null = []byte("null")

// ValidateArguments decodes the raw arguments object and validates it
// against the tool parameters.
// On success it returns the arguments keyed by name, ready for the thunk.
// Absent or null raw arguments are treated as an empty object.
func (t *Tool) ValidateArguments(raw json.RawMessage) (map[string]json.RawMessage, error) {
	args := map[string]json.RawMessage{}
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && !bytes.Equal(raw, null) {
		if raw[0] != '{' {
			return nil, &ValidationError{Reason: "arguments must be a JSON object"}
		}
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, &ValidationError{Reason: "arguments must be a JSON object"}
		}
	}

	for _, p := range t.Parameters {
		val, ok := args[p.Name]
		if !ok || bytes.Equal(bytes.TrimSpace(val), null) {
			if p.Required {
				return nil, &ValidationError{Path: p.Name, Reason: "required parameter is missing"}
			}
			continue
		}
		v, err := decodeValue(val)
		if err != nil {
			return nil, &ValidationError{Path: p.Name, Reason: "malformed value"}
		}
		if err := validateValue(p, v, p.Name, nil); err != nil {
			return nil, err
		}
	}
	return args, nil
}

// ValidateValue validates a decoded JSON value, as produced by
// json.Decoder with UseNumber, against the parameter schema.
func (p *Parameter) ValidateValue(v any) error {
	return validateValue(p, v, p.Name, nil)
}

// ValidateJSON validates a raw JSON value against the parameter schema
func (p *Parameter) ValidateJSON(raw json.RawMessage) error {
	v, err := decodeValue(raw)
	if err != nil {
		return &ValidationError{Path: p.Name, Reason: "malformed value"}
	}
	return validateValue(p, v, p.Name, nil)
}

func decodeValue(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func validateValue(p *Parameter, v any, path string, stack []*Parameter) error {
	if p.Ref != "" {
		target := resolveRef(p.Ref, stack)
		if target == nil {
			return &ValidationError{Path: path, Reason: fmt.Sprintf("unresolved schema reference %q", p.Ref)}
		}
		p = target
	}

	mismatch := func() error {
		return &ValidationError{Path: path, Reason: fmt.Sprintf("expected %s, got %s", p.Type, kindOf(v))}
	}

	switch p.Type {
	case TypeString:
		str, ok := v.(string)
		if !ok {
			return mismatch()
		}
		if reason := checkFormat(p.Format, str); reason != "" {
			return &ValidationError{Path: path, Reason: reason}
		}
	case TypeEnum:
		s, ok := v.(string)
		if !ok {
			return mismatch()
		}
		if !slices.Contains(p.Enum, s) {
			return &ValidationError{Path: path, Reason: fmt.Sprintf("value %q is not one of %v", s, p.Enum)}
		}
	case TypeBool:
		if _, ok := v.(bool); !ok {
			return mismatch()
		}
	case TypeInt:
		n, ok := v.(json.Number)
		if !ok {
			return mismatch()
		}
		i, err := n.Int64()
		if err != nil {
			return &ValidationError{Path: path, Reason: fmt.Sprintf("expected int, got %s", n.String())}
		}
		if lo, err := p.Minimum.Int64(); err == nil && i < lo {
			return &ValidationError{Path: path, Reason: fmt.Sprintf("value %d is less than the minimum %d", i, lo)}
		}
		if hi, err := p.Maximum.Int64(); err == nil && i > hi {
			return &ValidationError{Path: path, Reason: fmt.Sprintf("value %d is greater than the maximum %d", i, hi)}
		}
	case TypeFloat:
		n, ok := v.(json.Number)
		if !ok {
			return mismatch()
		}
		f, err := n.Float64()
		if err != nil {
			return &ValidationError{Path: path, Reason: fmt.Sprintf("expected float, got %s", n.String())}
		}
		if lo, err := p.Minimum.Float64(); err == nil && f < lo {
			return &ValidationError{Path: path, Reason: fmt.Sprintf("value %s is less than the minimum %s", n, p.Minimum)}
		}
		if hi, err := p.Maximum.Float64(); err == nil && f > hi {
			return &ValidationError{Path: path, Reason: fmt.Sprintf("value %s is greater than the maximum %s", n, p.Maximum)}
		}
	case TypeObject:
		m, ok := v.(map[string]any)
		if !ok {
			return mismatch()
		}
		if p.TypeName != "" {
			stack = append(stack, p)
		}
		for _, prop := range p.Properties {
			pv, ok := m[prop.Name]
			if !ok || pv == nil {
				if prop.Required {
					return &ValidationError{Path: joinPath(path, prop.Name), Reason: "required property is missing"}
				}
				continue
			}
			if err := validateValue(prop, pv, joinPath(path, prop.Name), stack); err != nil {
				return err
			}
		}
	case TypeArray:
		list, ok := v.([]any)
		if !ok {
			return mismatch()
		}
		if p.Items == nil {
			return nil
		}
		for i, item := range list {
			if err := validateValue(p.Items, item, indexPath(path, i), stack); err != nil {
				return err
			}
		}
	default:
		return &ValidationError{Path: path, Reason: fmt.Sprintf("unsupported schema type %q", p.Type)}
	}
	return nil
}

// checkFormat returns the reason s does not match the format
func checkFormat(format, s string) string {
	switch format {
	case FormatDateTime:
		if _, err := time.Parse(time.RFC3339, s); err != nil {
			return fmt.Sprintf("expected an RFC 3339 time, got %q", s)
		}
	case FormatByte:
		if _, err := base64.StdEncoding.DecodeString(s); err != nil {
			return "expected base64 encoded bytes"
		}
	}
	return ""
}

func resolveRef(ref string, stack []*Parameter) *Parameter {
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i].TypeName == ref {
			return stack[i]
		}
	}
	return nil
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "bool"
	case json.Number, float64:
		return "number"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}
