package compiler

import (
	"bytes"
	"go/types"
	"strconv"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/nanomcp/schema"
	"golang.org/x/tools/imports"
)

// Defaults of the generated file
const (
	DefaultTable  = "Tools"
	DefaultOutput = "tools_gen.go"

	// GeneratedHeader marks generated files
	GeneratedHeader = "// Code generated by nanomcpgen. DO NOT EDIT."

	toolsPath  = "github.com/effective-security/nanomcp/tools"
	schemaPath = "github.com/effective-security/nanomcp/schema"
)

var fileTemplate = template.Must(template.New("tools").Funcs(sprig.TxtFuncMap()).Funcs(template.FuncMap{
	"goquote": strconv.Quote,
}).Parse(GeneratedHeader + `

package {{ .Package }}

import (
{{- range .Imports }}
	{{ if .Explicit }}{{ .Alias }} {{ end }}{{ .Path | goquote }}
{{- end }}
)

// {{ .Table }} lists the tools declared in package {{ .Package }}
var {{ .Table }} = []*{{ .Tools }}.Definition{
{{- range .Entries }}
	{
		Schema: {{ .Schema }},
		Invoke: {{ .Thunk }},
	},
{{- end }}
}
{{ range .Entries }}
// {{ .Thunk }} dispatches {{ .Name | quote }} to {{ .Func }}
func {{ .Thunk }}(ctx {{ $.Context }}.Context, args {{ $.Tools }}.Args) (any, error) {
{{- range .Args }}
	var {{ .Var }} {{ .Type }}
	if err := args.Decode({{ .Name | goquote }}, &{{ .Var }}); err != nil {
		return nil, err
	}
{{- end }}
{{- if eq .Results 0 }}
	{{ .Call }}
	return nil, nil
{{- else if eq .Results 1 }}
	return nil, {{ .Call }}
{{- else if eq .Results 2 }}
	return {{ .Call }}, nil
{{- else }}
	return {{ .Call }}
{{- end }}
}
{{ end -}}
`))

type fileData struct {
	Package string
	Table   string
	Imports []Import
	Context string
	Tools   string
	Entries []*entry
}

type entry struct {
	Name    string
	Func    string
	Thunk   string
	Schema  string
	Args    []*entryArg
	Call    string
	Results int
}

type entryArg struct {
	Name string
	Var  string
	Type string
}

// Generate returns the formatted source declaring the table of the
// package tools. The filename is used to format the output.
func Generate(pkg *Package, table, filename string) ([]byte, error) {
	if table == "" {
		table = DefaultTable
	}
	if filename == "" {
		filename = DefaultOutput
	}

	set := newImportSet(pkg.types)
	data := &fileData{
		Package: pkg.Name,
		Table:   table,
		Context: set.add("context", "context"),
		Tools:   set.add(toolsPath, "tools"),
	}
	schemaAlias := set.add(schemaPath, "schema")

	for _, t := range pkg.Tools {
		e := &entry{
			Name:    t.Schema.Name,
			Func:    t.Func,
			Thunk:   "mcpInvoke" + exportName(t.Func),
			Schema:  toolLiteral(t.Schema, schemaAlias),
			Results: int(t.Results),
		}
		var callArgs []string
		if t.Context {
			callArgs = append(callArgs, "ctx")
		}
		for i, arg := range t.Args {
			v := "arg" + strconv.Itoa(i)
			e.Args = append(e.Args, &entryArg{
				Name: arg.Name,
				Var:  v,
				Type: types.TypeString(arg.Type, set.qualifier),
			})
			callArgs = append(callArgs, v)
		}
		e.Call = t.Func + "(" + strings.Join(callArgs, ", ") + ")"
		data.Entries = append(data.Entries, e)
	}
	data.Imports = set.list()

	var buf bytes.Buffer
	if err := fileTemplate.Execute(&buf, data); err != nil {
		return nil, errors.Wrap(err, "failed to render tools table")
	}
	src, err := imports.Process(filename, buf.Bytes(), nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to format generated source:\n%s", buf.String())
	}
	return src, nil
}

func exportName(name string) string {
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

// toolLiteral returns the Go expression of the tool schema
func toolLiteral(t *schema.Tool, alias string) string {
	var b strings.Builder
	b.WriteString("&" + alias + ".Tool{\n")
	b.WriteString("Name: " + strconv.Quote(t.Name) + ",\n")
	if t.Description != "" {
		b.WriteString("Description: " + strconv.Quote(t.Description) + ",\n")
	}
	if len(t.Parameters) > 0 {
		b.WriteString("Parameters: []*" + alias + ".Parameter{\n")
		for _, p := range t.Parameters {
			b.WriteString(paramLiteral(p, alias) + ",\n")
		}
		b.WriteString("},\n")
	}
	if t.Returns != nil {
		b.WriteString("Returns: &" + alias + ".Parameter" + paramLiteral(t.Returns, alias) + ",\n")
	}
	b.WriteString("}")
	return b.String()
}

func paramLiteral(p *schema.Parameter, alias string) string {
	var b strings.Builder
	b.WriteString("{")
	field := func(name, value string) {
		b.WriteString(name + ": " + value + ", ")
	}
	if p.Name != "" {
		field("Name", strconv.Quote(p.Name))
	}
	if p.Description != "" {
		field("Description", strconv.Quote(p.Description))
	}
	if p.Ref != "" {
		field("Ref", strconv.Quote(p.Ref))
	} else {
		field("Type", alias+"."+typeConst(p.Type))
	}
	if p.Required {
		field("Required", "true")
	}
	if p.TypeName != "" {
		field("TypeName", strconv.Quote(p.TypeName))
	}
	if len(p.Enum) > 0 {
		quoted := make([]string, len(p.Enum))
		for i, v := range p.Enum {
			quoted[i] = strconv.Quote(v)
		}
		field("Enum", "[]string{"+strings.Join(quoted, ", ")+"}")
	}
	if p.Format != "" {
		field("Format", strconv.Quote(p.Format))
	}
	if p.Minimum != "" {
		field("Minimum", strconv.Quote(p.Minimum.String()))
	}
	if p.Maximum != "" {
		field("Maximum", strconv.Quote(p.Maximum.String()))
	}
	if p.Items != nil {
		field("Items", "&"+alias+".Parameter"+paramLiteral(p.Items, alias))
	}
	if len(p.Properties) > 0 {
		props := make([]string, len(p.Properties))
		for i, prop := range p.Properties {
			props[i] = paramLiteral(prop, alias)
		}
		field("Properties", "[]*"+alias+".Parameter{\n"+strings.Join(props, ",\n")+",\n}")
	}
	b.WriteString("}")
	return b.String()
}

func typeConst(t schema.Type) string {
	switch t {
	case schema.TypeString:
		return "TypeString"
	case schema.TypeInt:
		return "TypeInt"
	case schema.TypeFloat:
		return "TypeFloat"
	case schema.TypeBool:
		return "TypeBool"
	case schema.TypeObject:
		return "TypeObject"
	case schema.TypeArray:
		return "TypeArray"
	default:
		return "TypeEnum"
	}
}
