// Package schema defines the tool schema model: semantic type tags,
// parameter and tool schemas, and the schema-driven validation of call
// arguments.
//
// Schemas are created once, normally by generated code, and are treated as
// immutable afterwards.
package schema

import (
	"encoding/json"
	"regexp"
	"strconv"

	"github.com/cockroachdb/errors"
)

// Type is the semantic type tag of a parameter
type Type string

const (
	TypeString Type = "string"
	TypeInt    Type = "int"
	TypeFloat  Type = "float"
	TypeBool   Type = "bool"
	TypeObject Type = "object"
	TypeArray  Type = "array"
	TypeEnum   Type = "enum"
)

// IsValid reports whether t is a known type tag
func (t Type) IsValid() bool {
	switch t {
	case TypeString, TypeInt, TypeFloat, TypeBool, TypeObject, TypeArray, TypeEnum:
		return true
	}
	return false
}

// String formats
const (
	// FormatDateTime is an RFC 3339 time
	FormatDateTime = "date-time"
	// FormatByte is standard base64 encoded bytes
	FormatByte = "byte"
)

// JSONType returns the JSON Schema type name
func (t Type) JSONType() string {
	switch t {
	case TypeInt:
		return "integer"
	case TypeFloat:
		return "number"
	case TypeBool:
		return "boolean"
	case TypeEnum:
		return "string"
	default:
		return string(t)
	}
}

// Parameter describes one parameter, object property, array item or
// return value.
type Parameter struct {
	// Name is the parameter or property name; empty for array items and returns
	Name        string `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	Type        Type   `json:"type" yaml:"type" toml:"type"`
	Required    bool   `json:"required,omitempty" yaml:"required,omitempty" toml:"required,omitempty"`
	// Properties of an object, in declaration order
	Properties []*Parameter `json:"properties,omitempty" yaml:"properties,omitempty" toml:"properties,omitempty"`
	// Items is the element schema of an array
	Items *Parameter `json:"items,omitempty" yaml:"items,omitempty" toml:"items,omitempty"`
	// Enum lists the allowed values of an enum
	Enum []string `json:"enum,omitempty" yaml:"enum,omitempty" toml:"enum,omitempty"`
	// Format of a string value, FormatDateTime or FormatByte
	Format string `json:"format,omitempty" yaml:"format,omitempty" toml:"format,omitempty"`
	// Minimum and Maximum are the inclusive bounds of an int or float
	Minimum json.Number `json:"minimum,omitempty" yaml:"minimum,omitempty" toml:"minimum,omitempty"`
	Maximum json.Number `json:"maximum,omitempty" yaml:"maximum,omitempty" toml:"maximum,omitempty"`
	// TypeName is the name of a named object type, used as a target for Ref
	TypeName string `json:"typeName,omitempty" yaml:"typeName,omitempty" toml:"typeName,omitempty"`
	// Ref is the recursion marker: the TypeName of an enclosing object.
	// A Parameter with Ref has no other shape information.
	Ref string `json:"ref,omitempty" yaml:"ref,omitempty" toml:"ref,omitempty"`
}

// Tool describes a tool
type Tool struct {
	Name        string       `json:"name" yaml:"name" toml:"name"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	Parameters  []*Parameter `json:"parameters,omitempty" yaml:"parameters,omitempty" toml:"parameters,omitempty"`
	// Returns is the result schema, nil if the tool returns nothing
	Returns *Parameter `json:"returns,omitempty" yaml:"returns,omitempty" toml:"returns,omitempty"`
}

var toolNameRegex = regexp.MustCompile(`^[A-Za-z0-9_.\-]{1,64}$`)

// ValidToolName reports whether the name can be used as a tool name
func ValidToolName(name string) bool {
	return toolNameRegex.MatchString(name)
}

// Validate checks the tool schema structure
func (t *Tool) Validate() error {
	if t == nil {
		return errors.New("tool schema is nil")
	}
	if t.Name == "" {
		return errors.New("tool name must not be empty")
	}
	if !ValidToolName(t.Name) {
		return errors.Errorf("invalid tool name %q", t.Name)
	}
	if err := checkProperties(t.Parameters, "", nil); err != nil {
		return errors.WithMessagef(err, "tool %q", t.Name)
	}
	if t.Returns != nil {
		if err := t.Returns.check("returns", nil); err != nil {
			return errors.WithMessagef(err, "tool %q", t.Name)
		}
	}
	return nil
}

// Parameter returns the top level parameter by name
func (t *Tool) Parameter(name string) *Parameter {
	for _, p := range t.Parameters {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// RequiredParameters returns the names of required parameters
func (t *Tool) RequiredParameters() []string {
	var res []string
	for _, p := range t.Parameters {
		if p.Required {
			res = append(res, p.Name)
		}
	}
	return res
}

// Check validates the parameter structure, including that every Ref
// resolves to an enclosing object.
func (p *Parameter) Check() error {
	return p.check(p.Name, nil)
}

func checkProperties(props []*Parameter, path string, ancestors []string) error {
	seen := make(map[string]bool, len(props))
	for _, prop := range props {
		if prop == nil {
			return errors.Errorf("%s: nil property", pathOrRoot(path))
		}
		if prop.Name == "" {
			return errors.Errorf("%s: property name must not be empty", pathOrRoot(path))
		}
		if seen[prop.Name] {
			return errors.Errorf("%s: duplicate property %q", pathOrRoot(path), prop.Name)
		}
		seen[prop.Name] = true
		if err := prop.check(joinPath(path, prop.Name), ancestors); err != nil {
			return err
		}
	}
	return nil
}

func (p *Parameter) check(path string, ancestors []string) error {
	if p.Ref != "" {
		for _, a := range ancestors {
			if a == p.Ref {
				return nil
			}
		}
		return errors.Errorf("%s: reference %q does not resolve to an enclosing object", pathOrRoot(path), p.Ref)
	}
	if !p.Type.IsValid() {
		return errors.Errorf("%s: invalid type %q", pathOrRoot(path), p.Type)
	}
	if err := p.checkRefinements(path); err != nil {
		return err
	}
	switch p.Type {
	case TypeObject:
		if p.TypeName != "" {
			for _, a := range ancestors {
				if a == p.TypeName {
					return errors.Errorf("%s: type %s is recursive without a reference marker", pathOrRoot(path), p.TypeName)
				}
			}
			ancestors = append(ancestors, p.TypeName)
		}
		return checkProperties(p.Properties, path, ancestors)
	case TypeArray:
		if p.Items == nil {
			return errors.Errorf("%s: array has no items schema", pathOrRoot(path))
		}
		return p.Items.check(path+"[]", ancestors)
	case TypeEnum:
		if len(p.Enum) == 0 {
			return errors.Errorf("%s: enum has no values", pathOrRoot(path))
		}
	}
	return nil
}

func (p *Parameter) checkRefinements(path string) error {
	switch p.Format {
	case "":
	case FormatDateTime, FormatByte:
		if p.Type != TypeString {
			return errors.Errorf("%s: format %q requires a string", pathOrRoot(path), p.Format)
		}
	default:
		return errors.Errorf("%s: unknown format %q", pathOrRoot(path), p.Format)
	}

	for _, bound := range []json.Number{p.Minimum, p.Maximum} {
		if bound == "" {
			continue
		}
		var err error
		switch p.Type {
		case TypeInt:
			_, err = bound.Int64()
		case TypeFloat:
			_, err = bound.Float64()
		default:
			return errors.Errorf("%s: bounds require an int or float", pathOrRoot(path))
		}
		if err != nil {
			return errors.Errorf("%s: invalid bound %q", pathOrRoot(path), bound.String())
		}
	}
	return nil
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func indexPath(path string, i int) string {
	return path + "[" + strconv.Itoa(i) + "]"
}

func pathOrRoot(path string) string {
	if path == "" {
		return "arguments"
	}
	return path
}
