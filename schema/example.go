package schema

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/brianvoe/gofakeit/v7"
)

// exampleDepth bounds the nesting of recursive objects. Past it arrays are
// empty and optional properties are omitted.
const exampleDepth = 3

// Example returns random arguments that satisfy the tool parameters.
// Optional parameters are included at random.
func (t *Tool) Example(f *gofakeit.Faker) map[string]any {
	if f == nil {
		f = gofakeit.New(0)
	}
	res := map[string]any{}
	for _, p := range t.Parameters {
		if !p.Required && !f.Bool() {
			continue
		}
		res[p.Name] = example(f, p, nil, 0)
	}
	return res
}

// ExampleJSON returns Example in wire form
func (t *Tool) ExampleJSON(f *gofakeit.Faker) json.RawMessage {
	js, _ := json.Marshal(t.Example(f))
	return js
}

func example(f *gofakeit.Faker, p *Parameter, stack []*Parameter, depth int) any {
	if p.Ref != "" {
		target := resolveRef(p.Ref, stack)
		if target == nil {
			return nil
		}
		p = target
	}

	switch p.Type {
	case TypeString:
		switch p.Format {
		case FormatDateTime:
			return f.Date().UTC().Format(time.RFC3339)
		case FormatByte:
			return base64.StdEncoding.EncodeToString([]byte(f.Word()))
		}
		return f.Word()
	case TypeEnum:
		if len(p.Enum) == 0 {
			return ""
		}
		return f.RandomString(p.Enum)
	case TypeBool:
		return f.Bool()
	case TypeInt:
		lo, hi := int64(-100), int64(100)
		if n, err := p.Minimum.Int64(); err == nil {
			lo = max(lo, n)
		}
		if n, err := p.Maximum.Int64(); err == nil {
			hi = min(hi, n)
		}
		if lo > hi {
			return lo
		}
		return f.IntRange(int(lo), int(hi))
	case TypeFloat:
		lo, hi := -100.0, 100.0
		if n, err := p.Minimum.Float64(); err == nil {
			lo = max(lo, n)
		}
		if n, err := p.Maximum.Float64(); err == nil {
			hi = min(hi, n)
		}
		if lo > hi {
			return lo
		}
		return f.Float64Range(lo, hi)
	case TypeArray:
		list := []any{}
		if p.Items == nil || depth >= exampleDepth {
			return list
		}
		for range f.IntRange(0, 2) {
			list = append(list, example(f, p.Items, stack, depth+1))
		}
		return list
	case TypeObject:
		if p.TypeName != "" {
			stack = append(stack, p)
		}
		obj := map[string]any{}
		for _, prop := range p.Properties {
			if !prop.Required && (depth >= exampleDepth || !f.Bool()) {
				continue
			}
			obj[prop.Name] = example(f, prop, stack, depth+1)
		}
		return obj
	}
	return nil
}
