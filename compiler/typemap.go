package compiler

import (
	"encoding/json"
	"go/constant"
	"go/types"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/nanomcp/schema"
)

// RecursiveTag is the struct field tag marking a field that refers back to
// an enclosing type: `mcp:"recursive"`
const RecursiveTag = "recursive"

// typeMapper maps Go types to schema parameters
type typeMapper struct {
	// stack of named structs being expanded
	stack []*types.Named
}

// unmappedError names the parameter path of an unsupported type
type unmappedError struct {
	path string
	typ  types.Type
	hint string
}

func (e *unmappedError) Error() string {
	msg := "unmapped type " + e.typ.String() + " at " + e.path
	if e.hint != "" {
		msg += ": " + e.hint
	}
	return msg
}

// mapType returns the schema of t. The returned optional flag is set for
// pointers, which may be omitted by the caller.
func (m *typeMapper) mapType(t types.Type, path string, recursive bool) (p *schema.Parameter, optional bool, err error) {
	if isNamed(t, "time", "Time") {
		return &schema.Parameter{Type: schema.TypeString, Format: schema.FormatDateTime, Description: "RFC 3339 time"}, false, nil
	}
	if isNamed(t, "time", "Duration") {
		return &schema.Parameter{Type: schema.TypeInt, Description: "duration in nanoseconds"}, false, nil
	}

	switch tt := t.(type) {
	case *types.Alias:
		return m.mapType(types.Unalias(tt), path, recursive)
	case *types.Pointer:
		p, _, err := m.mapType(tt.Elem(), path, recursive)
		return p, true, err
	case *types.Named:
		return m.mapNamed(tt, path, recursive)
	case *types.Basic:
		p, err := mapBasic(tt, path)
		return p, false, err
	case *types.Slice:
		if isByte(tt.Elem()) {
			return &schema.Parameter{Type: schema.TypeString, Format: schema.FormatByte, Description: "base64 encoded bytes"}, false, nil
		}
		items, _, err := m.mapType(tt.Elem(), path+"[]", recursive)
		if err != nil {
			return nil, false, err
		}
		return &schema.Parameter{Type: schema.TypeArray, Items: items}, false, nil
	case *types.Array:
		items, _, err := m.mapType(tt.Elem(), path+"[]", recursive)
		if err != nil {
			return nil, false, err
		}
		return &schema.Parameter{Type: schema.TypeArray, Items: items}, false, nil
	case *types.Struct:
		p, err := m.mapStruct(tt, path)
		return p, false, err
	}
	return nil, false, &unmappedError{path: path, typ: t}
}

func (m *typeMapper) mapNamed(t *types.Named, path string, recursive bool) (*schema.Parameter, bool, error) {
	if t.TypeArgs().Len() > 0 {
		return nil, false, &unmappedError{path: path, typ: t, hint: "generic types are not supported"}
	}
	switch u := t.Underlying().(type) {
	case *types.Basic:
		if u.Info()&types.IsString != 0 {
			if values := enumValues(t); len(values) > 0 {
				return &schema.Parameter{Type: schema.TypeEnum, Enum: values}, false, nil
			}
		}
		p, err := mapBasic(u, path)
		if err != nil {
			return nil, false, &unmappedError{path: path, typ: t}
		}
		return p, false, nil
	case *types.Struct:
		for _, n := range m.stack {
			if types.Identical(n, t) {
				if recursive {
					return &schema.Parameter{Ref: t.Obj().Name()}, false, nil
				}
				return nil, false, &unmappedError{
					path: path,
					typ:  t,
					hint: `cyclic type requires the mcp:"recursive" field tag`,
				}
			}
		}
		m.stack = append(m.stack, t)
		defer func() { m.stack = m.stack[:len(m.stack)-1] }()

		p, err := m.mapStruct(u, path)
		if err != nil {
			return nil, false, err
		}
		p.TypeName = t.Obj().Name()
		return p, false, nil
	}
	p, optional, err := m.mapType(t.Underlying(), path, recursive)
	if uerr := new(unmappedError); errors.As(err, &uerr) && uerr.path == path {
		// report the declared type instead of its underlying type
		uerr.typ = t
	}
	return p, optional, err
}

func mapBasic(t *types.Basic, path string) (*schema.Parameter, error) {
	info := t.Info()
	switch {
	case info&types.IsBoolean != 0:
		return &schema.Parameter{Type: schema.TypeBool}, nil
	case info&types.IsString != 0:
		return &schema.Parameter{Type: schema.TypeString}, nil
	case info&types.IsInteger != 0 && t.Kind() != types.Uintptr:
		p := &schema.Parameter{Type: schema.TypeInt}
		if r, ok := intRanges[t.Kind()]; ok {
			p.Minimum = json.Number(strconv.FormatInt(r[0], 10))
			p.Maximum = json.Number(strconv.FormatInt(r[1], 10))
		}
		return p, nil
	case info&types.IsFloat != 0:
		p := &schema.Parameter{Type: schema.TypeFloat}
		if t.Kind() == types.Float32 {
			p.Minimum = json.Number(strconv.FormatFloat(-math.MaxFloat32, 'g', -1, 64))
			p.Maximum = json.Number(strconv.FormatFloat(math.MaxFloat32, 'g', -1, 64))
		}
		return p, nil
	}
	return nil, &unmappedError{path: path, typ: t}
}

// intRanges bound the integer kinds narrower than int64. Values of uint and
// uint64 are limited to the int64 range of the wire numbers.
var intRanges = map[types.BasicKind][2]int64{
	types.Int8:   {math.MinInt8, math.MaxInt8},
	types.Int16:  {math.MinInt16, math.MaxInt16},
	types.Int32:  {math.MinInt32, math.MaxInt32},
	types.Uint8:  {0, math.MaxUint8},
	types.Uint16: {0, math.MaxUint16},
	types.Uint32: {0, math.MaxUint32},
	types.Uint:   {0, math.MaxInt64},
	types.Uint64: {0, math.MaxInt64},
}

// mapStruct maps the exported fields the way encoding/json serializes them
func (m *typeMapper) mapStruct(st *types.Struct, path string) (*schema.Parameter, error) {
	res := &schema.Parameter{Type: schema.TypeObject}
	if err := m.addFields(res, st, path); err != nil {
		return nil, err
	}
	return res, nil
}

func (m *typeMapper) addFields(res *schema.Parameter, st *types.Struct, path string) error {
	for i := range st.NumFields() {
		field := st.Field(i)
		tag := reflect.StructTag(st.Tag(i))
		name, opts := parseJSONTag(tag.Get("json"))
		if name == "-" && opts == "" {
			continue
		}

		if field.Embedded() && name == "" {
			if inner, ok := embeddedStruct(field.Type()); ok {
				if err := m.embed(res, inner, field, path); err != nil {
					return err
				}
				continue
			}
		}
		if !field.Exported() {
			continue
		}
		if name == "" {
			name = field.Name()
		}

		fieldPath := joinPath(path, name)
		recursive := hasOption(tag.Get("mcp"), RecursiveTag)
		p, optional, err := m.mapType(field.Type(), fieldPath, recursive)
		if err != nil {
			return err
		}
		p.Name = name
		p.Required = !optional && !hasOption(opts, "omitempty")
		if err := applySchemaTag(p, tag.Get("jsonschema"), fieldPath); err != nil {
			return err
		}
		res.Properties = append(res.Properties, p)
	}
	return nil
}

// embed flattens the fields of an embedded struct into res
func (m *typeMapper) embed(res *schema.Parameter, inner *types.Struct, field *types.Var, path string) error {
	t := field.Type()
	if ptr, ok := t.(*types.Pointer); ok {
		t = ptr.Elem()
	}
	named, ok := types.Unalias(t).(*types.Named)
	if !ok {
		return m.addFields(res, inner, path)
	}
	for _, n := range m.stack {
		if types.Identical(n, named) {
			return &unmappedError{
				path: joinPath(path, field.Name()),
				typ:  named,
				hint: "embedded struct refers back to an enclosing type",
			}
		}
	}
	m.stack = append(m.stack, named)
	defer func() { m.stack = m.stack[:len(m.stack)-1] }()
	return m.addFields(res, inner, path)
}

// applySchemaTag honours `jsonschema:"required,description=...,enum=a,enum=b"`
func applySchemaTag(p *schema.Parameter, tag, path string) error {
	if tag == "" {
		return nil
	}
	var enum []string
	for _, part := range strings.Split(tag, ",") {
		key, value, _ := strings.Cut(part, "=")
		switch key {
		case "required":
			p.Required = true
		case "description":
			p.Description = value
		case "enum":
			enum = append(enum, value)
		}
	}
	if len(enum) > 0 {
		if p.Type != schema.TypeString && p.Type != schema.TypeEnum {
			return errors.Errorf("enum is only supported for string fields at %s", path)
		}
		p.Type = schema.TypeEnum
		p.Enum = enum
	}
	return nil
}

func embeddedStruct(t types.Type) (*types.Struct, bool) {
	if ptr, ok := t.(*types.Pointer); ok {
		t = ptr.Elem()
	}
	st, ok := types.Unalias(t).Underlying().(*types.Struct)
	return st, ok
}

// enumValues returns the string constants declared with the named type,
// in declaration order
func enumValues(t *types.Named) []string {
	pkg := t.Obj().Pkg()
	if pkg == nil {
		return nil
	}
	var consts []*types.Const
	scope := pkg.Scope()
	for _, name := range scope.Names() {
		if c, ok := scope.Lookup(name).(*types.Const); ok && types.Identical(c.Type(), t) {
			consts = append(consts, c)
		}
	}
	sort.Slice(consts, func(i, j int) bool { return consts[i].Pos() < consts[j].Pos() })

	values := make([]string, 0, len(consts))
	for _, c := range consts {
		if c.Val().Kind() == constant.String {
			values = append(values, constant.StringVal(c.Val()))
		}
	}
	return values
}

func parseJSONTag(tag string) (name, opts string) {
	name, opts, _ = strings.Cut(tag, ",")
	return name, opts
}

func hasOption(opts, option string) bool {
	for _, o := range strings.Split(opts, ",") {
		if strings.TrimSpace(o) == option {
			return true
		}
	}
	return false
}

func isNamed(t types.Type, pkgPath, name string) bool {
	n, ok := types.Unalias(t).(*types.Named)
	if !ok || n.Obj().Pkg() == nil {
		return false
	}
	return n.Obj().Pkg().Path() == pkgPath && n.Obj().Name() == name
}

func isByte(t types.Type) bool {
	b, ok := types.Unalias(t).(*types.Basic)
	return ok && b.Kind() == types.Byte
}

func isError(t types.Type) bool {
	return types.Identical(t, types.Universe.Lookup("error").Type())
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}
