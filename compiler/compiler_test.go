package compiler_test

import (
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/nanomcp/compiler"
	"github.com/effective-security/nanomcp/schema"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func check(t *testing.T, src string) (*compiler.Package, error) {
	t.Helper()
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "tools.go", src, parser.ParseComments)
	require.NoError(t, err)
	conf := types.Config{Importer: importer.ForCompiler(fset, "source", nil)}
	pkg, err := conf.Check("example.com/calc", fset, []*ast.File{f}, nil)
	require.NoError(t, err)
	return compiler.Analyze(fset, []*ast.File{f}, pkg)
}

func diagnostics(t *testing.T, err error) compiler.Diagnostics {
	t.Helper()
	require.Error(t, err)
	var diags compiler.Diagnostics
	require.True(t, errors.As(err, &diags), "expected diagnostics, got %T", err)
	return diags
}

const calcSource = `package calc

import "context"

// Add returns the sum of two integers.
//
//mcp:tool name=add
//mcp:param a description="first addend"
//mcp:param b description="second addend"
func Add(ctx context.Context, a int, b int) (int, error) {
	return a + b, nil
}

// GetWeather reports the weather of a city.
//
//mcp:tool
//mcp:param unit enum="celsius|fahrenheit" required=false
func GetWeather(city string, unit string) string {
	return city + unit
}

//mcp:tool description="Resets the counters"
func Reset() {}

// Ping does nothing.
//mcp:tool name=ping.v1
func Ping(ctx context.Context) error { return nil }

// Helper is not a tool
func Helper() {}
`

func TestAnalyze(t *testing.T) {
	t.Parallel()

	pkg, err := check(t, calcSource)
	require.NoError(t, err)
	assert.Equal(t, "calc", pkg.Name)
	assert.Equal(t, "example.com/calc", pkg.Path)
	require.Len(t, pkg.Tools, 4)

	add := pkg.Tools[0]
	assert.Equal(t, "Add", add.Func)
	assert.True(t, add.Context)
	assert.Equal(t, compiler.ResultValueError, add.Results)
	assert.Equal(t, 10, add.Pos.Line)
	exp := &schema.Tool{
		Name:        "add",
		Description: "Add returns the sum of two integers.",
		Parameters: []*schema.Parameter{
			{Name: "a", Type: schema.TypeInt, Required: true, Description: "first addend"},
			{Name: "b", Type: schema.TypeInt, Required: true, Description: "second addend"},
		},
		Returns: &schema.Parameter{Type: schema.TypeInt},
	}
	assert.Empty(t, cmp.Diff(exp, add.Schema))
	// the context is not part of the schema
	assert.Len(t, add.Args, 2)

	weather := pkg.Tools[1]
	assert.False(t, weather.Context)
	assert.Equal(t, compiler.ResultValue, weather.Results)
	exp = &schema.Tool{
		Name:        "get_weather",
		Description: "GetWeather reports the weather of a city.",
		Parameters: []*schema.Parameter{
			{Name: "city", Type: schema.TypeString, Required: true},
			{Name: "unit", Type: schema.TypeEnum, Enum: []string{"celsius", "fahrenheit"}},
		},
		Returns: &schema.Parameter{Type: schema.TypeString},
	}
	assert.Empty(t, cmp.Diff(exp, weather.Schema))

	reset := pkg.Tools[2]
	assert.Equal(t, "reset", reset.Schema.Name)
	assert.Equal(t, "Resets the counters", reset.Schema.Description)
	assert.Equal(t, compiler.ResultNone, reset.Results)
	assert.Nil(t, reset.Schema.Returns)

	ping := pkg.Tools[3]
	assert.Equal(t, "ping.v1", ping.Schema.Name)
	assert.Equal(t, "Ping does nothing.", ping.Schema.Description)
	assert.Equal(t, compiler.ResultError, ping.Results)
	assert.Empty(t, ping.Schema.Parameters)

	names := make([]string, 0, len(pkg.Schemas()))
	for _, s := range pkg.Schemas() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"add", "get_weather", "reset", "ping.v1"}, names)
}

const typesSource = `package calc

import (
	"time"
)

type Kind string

const (
	KindWeb   Kind = "web"
	KindImage Kind = "image"
)

type Base struct {
	ID string ` + "`json:\"id\"`" + `
}

type Filter struct {
	Base
	Tags     []string  ` + "`json:\"tags\" jsonschema:\"description=Tags to match\"`" + `
	Limit    int       ` + "`json:\"limit,omitempty\"`" + `
	Score    *float64  ` + "`json:\"score\"`" + `
	Since    time.Time ` + "`json:\"since\"`" + `
	Mode     string    ` + "`json:\"mode\" jsonschema:\"enum=fast,enum=slow\"`" + `
	Hidden   string    ` + "`json:\"-\"`" + `
	Force    bool      ` + "`json:\"force,omitempty\" jsonschema:\"required\"`" + `
	private  int
	NoTag    bool
}

type Node struct {
	Label    string  ` + "`json:\"label\"`" + `
	Children []*Node ` + "`json:\"children,omitempty\" mcp:\"recursive\"`" + `
	Parent   *Node   ` + "`json:\"parent\" mcp:\"recursive\"`" + `
}

//mcp:tool
func Search(kind Kind, filter Filter, data []byte, timeout time.Duration, ids [2]int, note *string) ([]string, error) {
	return nil, nil
}

//mcp:tool
func Walk(root Node) int { return 0 }
`

func TestAnalyze_Types(t *testing.T) {
	t.Parallel()

	pkg, err := check(t, typesSource)
	require.NoError(t, err)
	require.Len(t, pkg.Tools, 2)

	exp := &schema.Tool{
		Name: "search",
		Parameters: []*schema.Parameter{
			{Name: "kind", Type: schema.TypeEnum, Required: true, Enum: []string{"web", "image"}},
			{
				Name:     "filter",
				Type:     schema.TypeObject,
				Required: true,
				TypeName: "Filter",
				Properties: []*schema.Parameter{
					{Name: "id", Type: schema.TypeString, Required: true},
					{Name: "tags", Type: schema.TypeArray, Required: true, Description: "Tags to match", Items: &schema.Parameter{Type: schema.TypeString}},
					{Name: "limit", Type: schema.TypeInt},
					{Name: "score", Type: schema.TypeFloat},
					{Name: "since", Type: schema.TypeString, Required: true, Format: schema.FormatDateTime, Description: "RFC 3339 time"},
					{Name: "mode", Type: schema.TypeEnum, Required: true, Enum: []string{"fast", "slow"}},
					{Name: "force", Type: schema.TypeBool, Required: true},
					{Name: "NoTag", Type: schema.TypeBool, Required: true},
				},
			},
			{Name: "data", Type: schema.TypeString, Required: true, Format: schema.FormatByte, Description: "base64 encoded bytes"},
			{Name: "timeout", Type: schema.TypeInt, Required: true, Description: "duration in nanoseconds"},
			{Name: "ids", Type: schema.TypeArray, Required: true, Items: &schema.Parameter{Type: schema.TypeInt}},
			{Name: "note", Type: schema.TypeString},
		},
		Returns: &schema.Parameter{Type: schema.TypeArray, Items: &schema.Parameter{Type: schema.TypeString}},
	}
	assert.Empty(t, cmp.Diff(exp, pkg.Tools[0].Schema))

	exp = &schema.Tool{
		Name: "walk",
		Parameters: []*schema.Parameter{
			{
				Name:     "root",
				Type:     schema.TypeObject,
				Required: true,
				TypeName: "Node",
				Properties: []*schema.Parameter{
					{Name: "label", Type: schema.TypeString, Required: true},
					{Name: "children", Type: schema.TypeArray, Items: &schema.Parameter{Ref: "Node"}},
					{Name: "parent", Ref: "Node"},
				},
			},
		},
		Returns: &schema.Parameter{Type: schema.TypeInt},
	}
	assert.Empty(t, cmp.Diff(exp, pkg.Tools[1].Schema))
	require.NoError(t, pkg.Tools[1].Schema.Validate())

	_, err = pkg.Tools[1].Schema.ValidateArguments([]byte(`{"root":{"label":"a","children":[{"label":"b","parent":{"label":"a"}}]}}`))
	assert.NoError(t, err)
}

const brokenSource = `package calc

import "context"

type T struct{}

type Loop struct {
	Next *Loop
}

//mcp:tool title=x
func A() {}

//mcp:tool name=
func B() {}

//mcp:tool name="bad name"
func C() {}

//mcp:tool
//mcp:param missing description="x"
func D(a int) {}

//mcp:tool
//mcp:tool
func E() {}

//mcp:tool
func (T) Method() {}

//mcp:tool
var V = 1

//mcp:param a description="x"
func F(a int) {}

//mcp:tool
func G(a ...int) {}

//mcp:tool
func H[X any](a X) {}

//mcp:tool
func I(m map[string]int) {}

//mcp:tool
func J() (int, int) { return 0, 0 }

//mcp:tool
func K(l Loop) {}

//mcp:tool name=dup
func L() {}

//mcp:tool name=dup
func M() {}

//mcp:tool
func N(a int, ctx context.Context) {}

//mcp:tool
//mcp:param a enum="x|y"
func O(a int) {}

//mcp:tool
func P(ch chan int) {}

//mcp:tool
func Q(int) {}

//mcp:tool
func R() any { return nil }
`

func TestAnalyze_Diagnostics(t *testing.T) {
	t.Parallel()

	pkg, err := check(t, brokenSource)
	assert.Nil(t, pkg)
	diags := diagnostics(t, err)

	expected := []string{
		`unknown attribute "title" of //mcp:tool`,
		"empty value for name",
		`invalid tool name "bad name"`,
		`//mcp:param references unknown parameter "missing" of D`,
		"duplicate //mcp:tool marker on E",
		"//mcp:tool cannot annotate method Method",
		"//mcp:tool must annotate a top-level function",
		"//mcp:param without //mcp:tool",
		"tool G: variadic parameters are not supported",
		"tool H: generic functions are not supported",
		"tool I: parameter m: unmapped type map[string]int at m",
		"tool J: results must be (), (error), (T) or (T, error)",
		`tool K: parameter l: unmapped type example.com/calc.Loop at l.Next: cyclic type requires the mcp:"recursive" field tag`,
		`duplicate tool name "dup", also declared by L at tools.go:`,
		"tool N: context.Context must be the first parameter",
		`enum requires a string parameter, "a" is int`,
		"tool P: parameter ch: unmapped type chan int at ch",
		"tool Q: parameter 0 must be named",
		"tool R: unmapped type ",
	}
	msg := diags.Error()
	for _, exp := range expected {
		assert.Contains(t, msg, exp)
	}
	assert.Len(t, diags, len(expected))

	// sorted by position
	for i := 1; i < len(diags); i++ {
		assert.LessOrEqual(t, diags[i-1].Pos.Line, diags[i].Pos.Line)
	}
	assert.True(t, strings.HasPrefix(diags[0].String(), "tools.go:"))
}

func TestAnalyze_EmbeddedCycle(t *testing.T) {
	t.Parallel()

	pkg, err := check(t, `package calc

type Node struct {
	*Node
	X int `+"`json:\"x\"`"+`
}

//mcp:tool
func Walk(n Node) int { return 0 }
`)
	assert.Nil(t, pkg)
	diags := diagnostics(t, err)
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].String(), "tool Walk: parameter n: unmapped type example.com/calc.Node at n.Node: embedded struct refers back to an enclosing type")
}

const boundsSource = `package calc

import "time"

//mcp:tool
func Inc(n uint8, d int16, r rune, u uint, i int64, f float32, g float64, at time.Time, data []byte) int {
	return 0
}
`

func TestAnalyze_Bounds(t *testing.T) {
	t.Parallel()

	pkg, err := check(t, boundsSource)
	require.NoError(t, err)
	require.Len(t, pkg.Tools, 1)
	tool := pkg.Tools[0].Schema

	bounds := map[string][2]string{}
	for _, p := range tool.Parameters {
		bounds[p.Name] = [2]string{p.Minimum.String(), p.Maximum.String()}
	}
	assert.Equal(t, map[string][2]string{
		"n":    {"0", "255"},
		"d":    {"-32768", "32767"},
		"r":    {"-2147483648", "2147483647"},
		"u":    {"0", "9223372036854775807"},
		"i":    {"", ""},
		"f":    {"-3.4028234663852886e+38", "3.4028234663852886e+38"},
		"g":    {"", ""},
		"at":   {"", ""},
		"data": {"", ""},
	}, bounds)
	assert.Equal(t, schema.FormatDateTime, tool.Parameter("at").Format)
	assert.Equal(t, schema.FormatByte, tool.Parameter("data").Format)
	require.NoError(t, tool.Validate())

	base := `"d":0,"r":0,"u":0,"i":0,"f":0,"g":0,"at":"2024-05-01T10:00:00Z","data":"aGk="`
	_, err = tool.ValidateArguments([]byte(`{"n":255,` + base + `}`))
	assert.NoError(t, err)
	for _, n := range []string{"300", "-1"} {
		_, err = tool.ValidateArguments([]byte(`{"n":` + n + `,` + base + `}`))
		var verr *schema.ValidationError
		require.ErrorAs(t, err, &verr, n)
		assert.Equal(t, "n", verr.Path)
	}

	src, err := compiler.Generate(pkg, "", "")
	require.NoError(t, err)
	assert.Contains(t, string(src), `Minimum: "0", Maximum: "255"`)
	assert.Contains(t, string(src), `Format: "date-time"`)
}

func TestGenerate(t *testing.T) {
	t.Parallel()

	pkg, err := check(t, calcSource)
	require.NoError(t, err)

	src, err := compiler.Generate(pkg, "", "")
	require.NoError(t, err)
	out := string(src)

	assert.True(t, strings.HasPrefix(out, compiler.GeneratedHeader))
	for _, exp := range []string{
		"package calc",
		`"github.com/effective-security/nanomcp/schema"`,
		`"github.com/effective-security/nanomcp/tools"`,
		"var Tools = []*tools.Definition{",
		"Invoke: mcpInvokeAdd,",
		"func mcpInvokeAdd(ctx context.Context, args tools.Args) (any, error) {",
		`if err := args.Decode("a", &arg0); err != nil {`,
		"return Add(ctx, arg0, arg1)",
		"return GetWeather(arg0, arg1), nil",
		"Reset()\n\treturn nil, nil",
		"return nil, Ping(ctx)",
		`Name: "unit", Type: schema.TypeEnum, Enum: []string{"celsius", "fahrenheit"}`,
		`Returns: &schema.Parameter{Type: schema.TypeInt}`,
	} {
		assert.Contains(t, out, exp)
	}

	fset := token.NewFileSet()
	_, err = parser.ParseFile(fset, compiler.DefaultOutput, src, parser.ParseComments)
	require.NoError(t, err)

	src, err = compiler.Generate(pkg, "CalcTools", "calc_gen.go")
	require.NoError(t, err)
	assert.Contains(t, string(src), "var CalcTools = []*tools.Definition{")
}

func TestGenerate_Recursive(t *testing.T) {
	t.Parallel()

	pkg, err := check(t, typesSource)
	require.NoError(t, err)

	src, err := compiler.Generate(pkg, "", "")
	require.NoError(t, err)
	out := string(src)
	for _, exp := range []string{
		"var arg0 Kind",
		"var arg1 Filter",
		"var arg2 []byte",
		"var arg3 time.Duration",
		"var arg4 [2]int",
		"var arg5 *string",
		`"time"`,
		`Items: &schema.Parameter{Ref: "Node"}`,
		`TypeName: "Node"`,
	} {
		assert.Contains(t, out, exp)
	}
	_, err = parser.ParseFile(token.NewFileSet(), "tools_gen.go", src, 0)
	require.NoError(t, err)
}

func TestGenerate_ImportCollision(t *testing.T) {
	t.Parallel()

	pkg, err := check(t, `package calc

import "context"

var tools = 1

//mcp:tool
func Echo(ctx context.Context, s string) (string, error) { return s, nil }
`)
	require.NoError(t, err)

	src, err := compiler.Generate(pkg, "", "")
	require.NoError(t, err)
	out := string(src)
	assert.Contains(t, out, `tools2 "github.com/effective-security/nanomcp/tools"`)
	assert.Contains(t, out, "var Tools = []*tools2.Definition{")
}

func TestDiagnostics(t *testing.T) {
	t.Parallel()

	var d compiler.Diagnostics
	assert.NoError(t, d.Err())

	d = compiler.Diagnostics{
		{Pos: token.Position{Filename: "b.go", Line: 1, Column: 1}, Msg: "third"},
		{Pos: token.Position{Filename: "a.go", Line: 7, Column: 2}, Msg: "second"},
		{Pos: token.Position{Filename: "a.go", Line: 7, Column: 1}, Msg: "first"},
		{Msg: "no position"},
	}
	err := d.Err()
	require.Error(t, err)
	assert.Equal(t, "no position\na.go:7:1: first\na.go:7:2: second\nb.go:1:1: third", err.Error())
}
