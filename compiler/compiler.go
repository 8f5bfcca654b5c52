package compiler

import (
	"go/ast"
	"go/token"
	"go/types"
	"strings"

	"github.com/effective-security/nanomcp/schema"
	"github.com/effective-security/xlog"
	"github.com/huandu/xstrings"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/nanomcp", "compiler")

// ResultKind describes the results of a tool declaration
type ResultKind int

// Result kinds
const (
	// ResultNone is func(...)
	ResultNone ResultKind = iota
	// ResultError is func(...) error
	ResultError
	// ResultValue is func(...) T
	ResultValue
	// ResultValueError is func(...) (T, error)
	ResultValueError
)

// Arg is one schema parameter of a tool declaration
type Arg struct {
	// Name is the parameter name in the schema
	Name string
	// Type is the declared Go type
	Type types.Type
}

// Tool is a compiled tool declaration
type Tool struct {
	Schema *schema.Tool
	// Func is the name of the declared function
	Func string
	Pos  token.Position
	// Context is set when the first parameter is context.Context
	Context bool
	Args    []*Arg
	Results ResultKind
}

// Package is the result of compiling one Go package
type Package struct {
	Name  string
	Path  string
	Dir   string
	Tools []*Tool

	types *types.Package
}

// Schemas returns the schemas of the compiled tools, in declaration order
func (p *Package) Schemas() []*schema.Tool {
	res := make([]*schema.Tool, len(p.Tools))
	for i, t := range p.Tools {
		res[i] = t.Schema
	}
	return res
}

// Analyze compiles the tool declarations of a type-checked package.
// The returned error is Diagnostics when any declaration is invalid.
func Analyze(fset *token.FileSet, files []*ast.File, pkg *types.Package) (*Package, error) {
	a := &analyzer{
		reporter: reporter{fset: fset},
		pkg:      pkg,
		byName:   map[string]*Tool{},
	}
	for _, f := range files {
		a.file(f)
	}
	if err := a.diags.Err(); err != nil {
		return nil, err
	}

	res := &Package{
		Name:  pkg.Name(),
		Path:  pkg.Path(),
		Tools: a.tools,
		types: pkg,
	}
	logger.KV(xlog.DEBUG, "package", res.Path, "tools", len(res.Tools))
	return res, nil
}

type analyzer struct {
	reporter
	pkg    *types.Package
	tools  []*Tool
	byName map[string]*Tool
}

func (a *analyzer) file(f *ast.File) {
	docs := map[*ast.CommentGroup]*ast.FuncDecl{}
	for _, decl := range f.Decls {
		if fd, ok := decl.(*ast.FuncDecl); ok && fd.Doc != nil {
			docs[fd.Doc] = fd
		}
	}

	for _, group := range f.Comments {
		markers := a.markers(group)
		if len(markers) == 0 {
			continue
		}
		fd, ok := docs[group]
		if !ok {
			for _, m := range markers {
				if m.kind == "tool" {
					a.errorf(m.pos, "%s must annotate a top-level function", ToolDirective)
				} else {
					a.errorf(m.pos, "%s without %s", ParamDirective, ToolDirective)
				}
			}
			continue
		}
		a.decl(fd, markers)
	}
}

// markers parses the directives of the comment group, malformed ones are
// reported and skipped
func (a *analyzer) markers(group *ast.CommentGroup) []*marker {
	var res []*marker
	for _, c := range group.List {
		if !isDirective(c) {
			continue
		}
		m, err := parseMarker(c)
		if err != nil {
			a.errorf(c.Slash, "%s", err.Error())
			continue
		}
		res = append(res, m)
	}
	return res
}

func (a *analyzer) decl(fd *ast.FuncDecl, markers []*marker) {
	var (
		toolMarker *marker
		params     []*marker
	)
	for _, m := range markers {
		switch m.kind {
		case "tool":
			if toolMarker != nil {
				a.errorf(m.pos, "duplicate %s marker on %s", ToolDirective, fd.Name.Name)
				continue
			}
			toolMarker = m
		case "param":
			params = append(params, m)
		}
	}
	if toolMarker == nil {
		for _, m := range params {
			a.errorf(m.pos, "%s without %s", ParamDirective, ToolDirective)
		}
		return
	}
	if fd.Recv != nil {
		a.errorf(toolMarker.pos, "%s cannot annotate method %s", ToolDirective, fd.Name.Name)
		return
	}

	fn, ok := a.pkg.Scope().Lookup(fd.Name.Name).(*types.Func)
	if !ok {
		a.errorf(fd.Pos(), "%s is not a function", fd.Name.Name)
		return
	}

	name, ok := toolMarker.get("name")
	if !ok {
		name = xstrings.ToSnakeCase(fd.Name.Name)
	}
	if !schema.ValidToolName(name) {
		a.errorf(toolMarker.pos, "invalid tool name %q", name)
		return
	}
	description, ok := toolMarker.get("description")
	if !ok {
		description = strings.TrimSpace(fd.Doc.Text())
	}

	tool := &Tool{
		Schema: &schema.Tool{Name: name, Description: description},
		Func:   fd.Name.Name,
		Pos:    a.fset.Position(fd.Pos()),
	}
	if !a.signature(tool, fn, fd) {
		return
	}
	if !a.annotate(tool, params, fd) {
		return
	}
	if err := tool.Schema.Validate(); err != nil {
		a.errorf(fd.Pos(), "%s", err.Error())
		return
	}

	if prev, dup := a.byName[name]; dup {
		a.errorf(fd.Pos(), "duplicate tool name %q, also declared by %s at %s", name, prev.Func, prev.Pos)
		return
	}
	a.byName[name] = tool
	a.tools = append(a.tools, tool)
}

// signature checks the declaration and maps its parameters and results
func (a *analyzer) signature(tool *Tool, fn *types.Func, fd *ast.FuncDecl) bool {
	sig := fn.Type().(*types.Signature)
	if sig.TypeParams().Len() > 0 {
		a.errorf(fd.Pos(), "tool %s: generic functions are not supported", fd.Name.Name)
		return false
	}
	if sig.Variadic() {
		a.errorf(fd.Pos(), "tool %s: variadic parameters are not supported", fd.Name.Name)
		return false
	}

	ok := true
	params := sig.Params()
	for i := range params.Len() {
		v := params.At(i)
		if isNamed(v.Type(), "context", "Context") {
			if i != 0 {
				a.errorf(v.Pos(), "tool %s: context.Context must be the first parameter", fd.Name.Name)
				ok = false
			}
			tool.Context = true
			continue
		}
		if v.Name() == "" || v.Name() == "_" {
			a.errorf(fd.Pos(), "tool %s: parameter %d must be named", fd.Name.Name, i)
			ok = false
			continue
		}

		m := &typeMapper{}
		p, optional, err := m.mapType(v.Type(), v.Name(), false)
		if err != nil {
			a.errorf(v.Pos(), "tool %s: parameter %s: %s", fd.Name.Name, v.Name(), err.Error())
			ok = false
			continue
		}
		p.Name = v.Name()
		p.Required = !optional
		tool.Schema.Parameters = append(tool.Schema.Parameters, p)
		tool.Args = append(tool.Args, &Arg{Name: v.Name(), Type: v.Type()})
	}

	results := sig.Results()
	switch {
	case results.Len() == 0:
		tool.Results = ResultNone
	case results.Len() == 1 && isError(results.At(0).Type()):
		tool.Results = ResultError
	case results.Len() == 1:
		tool.Results = ResultValue
	case results.Len() == 2 && isError(results.At(1).Type()) && !isError(results.At(0).Type()):
		tool.Results = ResultValueError
	default:
		a.errorf(fd.Pos(), "tool %s: results must be (), (error), (T) or (T, error)", fd.Name.Name)
		return false
	}

	if tool.Results == ResultValue || tool.Results == ResultValueError {
		m := &typeMapper{}
		p, _, err := m.mapType(results.At(0).Type(), "result", false)
		if err != nil {
			a.errorf(fd.Pos(), "tool %s: %s", fd.Name.Name, err.Error())
			ok = false
		} else {
			tool.Schema.Returns = p
		}
	}
	return ok
}

// annotate applies the param markers
func (a *analyzer) annotate(tool *Tool, markers []*marker, fd *ast.FuncDecl) bool {
	ok := true
	seen := map[string]bool{}
	for _, m := range markers {
		p := tool.Schema.Parameter(m.target)
		if p == nil {
			a.errorf(m.pos, "%s references unknown parameter %q of %s", ParamDirective, m.target, fd.Name.Name)
			ok = false
			continue
		}
		if seen[m.target] {
			a.errorf(m.pos, "duplicate %s marker for %q", ParamDirective, m.target)
			ok = false
			continue
		}
		seen[m.target] = true

		if v, found := m.get("description"); found {
			p.Description = v
		}
		if v, found := m.get("required"); found {
			switch v {
			case "true":
				p.Required = true
			case "false":
				p.Required = false
			default:
				a.errorf(m.pos, "required must be true or false, got %q", v)
				ok = false
			}
		}
		if v, found := m.get("enum"); found {
			if p.Type != schema.TypeString && p.Type != schema.TypeEnum {
				a.errorf(m.pos, "enum requires a string parameter, %q is %s", m.target, p.Type)
				ok = false
				continue
			}
			values := strings.Split(v, "|")
			for _, e := range values {
				if e == "" {
					a.errorf(m.pos, "enum of %q has an empty value", m.target)
					ok = false
				}
			}
			p.Type = schema.TypeEnum
			p.Enum = values
		}
	}
	return ok
}
