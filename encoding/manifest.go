package encoding

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/nanomcp/schema"
	"github.com/go-playground/validator/v10"
)

// Manifest describes a compiled tool table
type Manifest struct {
	Package     string          `json:"package" yaml:"package" toml:"package" comment:"Go package declaring the tools" validate:"required"`
	Table       string          `json:"table" yaml:"table" toml:"table" comment:"generated variable" validate:"required"`
	Fingerprint string          `json:"fingerprint" yaml:"fingerprint" toml:"fingerprint" comment:"hash of the tool schemas" validate:"required,hexadecimal"`
	Tools       []*ManifestTool `json:"tools" yaml:"tools" toml:"tools" validate:"dive"`
}

// ManifestTool is one tool of a Manifest
type ManifestTool struct {
	Name         string              `json:"name" yaml:"name" toml:"name" validate:"required,tool_name"`
	Description  string              `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	Parameters   []*schema.Parameter `json:"parameters,omitempty" yaml:"parameters,omitempty" toml:"parameters,omitempty"`
	Returns      *schema.Parameter   `json:"returns,omitempty" yaml:"returns,omitempty" toml:"returns,omitempty"`
	InputSchema  map[string]any      `json:"inputSchema" yaml:"inputSchema" toml:"inputSchema" comment:"JSON schema of the arguments" validate:"required"`
	OutputSchema map[string]any      `json:"outputSchema,omitempty" yaml:"outputSchema,omitempty" toml:"outputSchema,omitempty" comment:"JSON schema of the result"`
	Example      map[string]any      `json:"example,omitempty" yaml:"example,omitempty" toml:"example,omitempty" comment:"example arguments"`
}

// NewManifest describes the tools. When the faker is set, each tool gets
// random example arguments.
func NewManifest(pkg, table string, list []*schema.Tool, f *gofakeit.Faker) (*Manifest, error) {
	m := &Manifest{
		Package:     pkg,
		Table:       table,
		Fingerprint: schema.Fingerprint(list...),
	}
	for _, t := range list {
		mt := &ManifestTool{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
			Returns:     t.Returns,
		}
		var err error
		if mt.InputSchema, err = toMap(t.JSONSchema()); err != nil {
			return nil, errors.WithMessagef(err, "tool %s", t.Name)
		}
		if out := t.OutputSchema(); out != nil {
			if mt.OutputSchema, err = toMap(out); err != nil {
				return nil, errors.WithMessagef(err, "tool %s", t.Name)
			}
		}
		if f != nil {
			mt.Example = t.Example(f)
		}
		m.Tools = append(m.Tools, mt)
	}
	return m, nil
}

func toMap(v any) (map[string]any, error) {
	js, err := json.Marshal(v)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var res map[string]any
	if err = json.Unmarshal(js, &res); err != nil {
		return nil, errors.WithStack(err)
	}
	return res, nil
}

// Schemas returns the tool schemas described by the manifest
func (m *Manifest) Schemas() []*schema.Tool {
	res := make([]*schema.Tool, len(m.Tools))
	for i, t := range m.Tools {
		res[i] = &schema.Tool{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
			Returns:     t.Returns,
		}
	}
	return res
}

// Validate checks the manifest fields, the tool schemas and that the
// fingerprint matches them.
func (m *Manifest) Validate() error {
	if err := newValidator().Struct(m); err != nil {
		return errors.Wrap(err, "invalid manifest")
	}
	seen := map[string]bool{}
	list := m.Schemas()
	for _, t := range list {
		if seen[t.Name] {
			return errors.Errorf("invalid manifest: duplicate tool %q", t.Name)
		}
		seen[t.Name] = true
		if err := t.Validate(); err != nil {
			return errors.WithMessage(err, "invalid manifest")
		}
	}
	if fp := schema.Fingerprint(list...); fp != m.Fingerprint {
		return errors.Errorf("invalid manifest: fingerprint %s does not match the tools, expected %s", m.Fingerprint, fp)
	}
	return nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("tool_name", func(fl validator.FieldLevel) bool {
		return schema.ValidToolName(fl.Field().String())
	})
	return v
}

// Marshal encodes the manifest in the mode
func (m *Manifest) Marshal(mode Mode) ([]byte, error) {
	enc, err := NewEncoder(mode)
	if err != nil {
		return nil, err
	}
	return enc.Marshal(m)
}

// UnmarshalManifest decodes and validates a manifest
func UnmarshalManifest(data []byte, mode Mode) (*Manifest, error) {
	enc, err := NewEncoder(mode)
	if err != nil {
		return nil, err
	}
	m := new(Manifest)
	if err = enc.Unmarshal(data, m); err != nil {
		return nil, errors.WithMessage(err, "failed to decode manifest")
	}
	if err = m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// String returns the plain text listing of the tools
func (m *Manifest) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s.%s (%s)\n", m.Package, m.Table, m.Fingerprint)
	for _, t := range m.Tools {
		params := make([]string, len(t.Parameters))
		for i, p := range t.Parameters {
			params[i] = p.Name + " " + typeString(p)
			if !p.Required {
				params[i] += "?"
			}
		}
		fmt.Fprintf(&b, "  %s(%s)", t.Name, strings.Join(params, ", "))
		if t.Returns != nil {
			fmt.Fprintf(&b, " %s", typeString(t.Returns))
		}
		if t.Description != "" {
			fmt.Fprintf(&b, ": %s", firstLine(t.Description))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func typeString(p *schema.Parameter) string {
	switch {
	case p.Ref != "":
		return p.Ref
	case p.Type == schema.TypeArray && p.Items != nil:
		return "[]" + typeString(p.Items)
	case p.Type == schema.TypeObject && p.TypeName != "":
		return p.TypeName
	case p.Type == schema.TypeEnum:
		return "enum(" + strings.Join(p.Enum, "|") + ")"
	}
	return string(p.Type)
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
