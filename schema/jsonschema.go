package schema

import (
	"encoding/json"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const defsPrefix = "#/$defs/"

// JSONSchema returns the input schema of the tool, as advertised in tools/list
func (t *Tool) JSONSchema() *jsonschema.Schema {
	r := newRenderer()
	res := &jsonschema.Schema{
		Type:       "object",
		Properties: orderedmap.New[string, *jsonschema.Schema](),
	}
	for _, p := range t.Parameters {
		res.Properties.Set(p.Name, r.render(p))
		if p.Required {
			res.Required = append(res.Required, p.Name)
		}
	}
	r.attachDefinitions(res)
	return res
}

// OutputSchema returns the JSON schema of the tool result, or nil if
// the tool returns nothing.
func (t *Tool) OutputSchema() *jsonschema.Schema {
	if t.Returns == nil {
		return nil
	}
	return t.Returns.JSONSchema()
}

// JSONSchema returns the JSON schema of the parameter
func (p *Parameter) JSONSchema() *jsonschema.Schema {
	r := newRenderer()
	res := r.render(p)
	r.attachDefinitions(res)
	return res
}

type renderer struct {
	objects map[string]*jsonschema.Schema
	refs    map[string]bool
}

func newRenderer() *renderer {
	return &renderer{
		objects: map[string]*jsonschema.Schema{},
		refs:    map[string]bool{},
	}
}

func (r *renderer) render(p *Parameter) *jsonschema.Schema {
	if p.Ref != "" {
		r.refs[p.Ref] = true
		return &jsonschema.Schema{
			Ref:         defsPrefix + p.Ref,
			Description: p.Description,
		}
	}

	s := &jsonschema.Schema{
		Type:        p.Type.JSONType(),
		Description: p.Description,
		Format:      p.Format,
		Minimum:     p.Minimum,
		Maximum:     p.Maximum,
	}
	switch p.Type {
	case TypeEnum:
		for _, v := range p.Enum {
			s.Enum = append(s.Enum, v)
		}
	case TypeArray:
		if p.Items != nil {
			s.Items = r.render(p.Items)
		}
	case TypeObject:
		s.Properties = orderedmap.New[string, *jsonschema.Schema]()
		for _, prop := range p.Properties {
			s.Properties.Set(prop.Name, r.render(prop))
			if prop.Required {
				s.Required = append(s.Required, prop.Name)
			}
		}
		if p.TypeName != "" {
			r.objects[p.TypeName] = s
		}
	}
	return s
}

func (r *renderer) attachDefinitions(root *jsonschema.Schema) {
	for name := range r.refs {
		if def, ok := r.objects[name]; ok {
			if root.Definitions == nil {
				root.Definitions = jsonschema.Definitions{}
			}
			root.Definitions[name] = def
		}
	}
}

// Fingerprint returns a stable hash of the tool schemas, in order.
// It changes whenever a tool is added, removed or its schema changes.
func Fingerprint(tools ...*Tool) string {
	js, err := json.Marshal(tools)
	if err != nil {
		return ""
	}
	return strconv.FormatUint(xxhash.Sum64(js), 16)
}
