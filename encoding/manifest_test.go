package encoding_test

import (
	"encoding/json"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/effective-security/nanomcp/encoding"
	"github.com/effective-security/nanomcp/schema"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTools() []*schema.Tool {
	return []*schema.Tool{
		{
			Name:        "add",
			Description: "Add returns the sum.\nBoth values are required.",
			Parameters: []*schema.Parameter{
				{Name: "a", Type: schema.TypeInt, Required: true, Description: "first addend"},
				{Name: "b", Type: schema.TypeInt, Required: true},
			},
			Returns: &schema.Parameter{Type: schema.TypeInt},
		},
		{
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
					},
				},
				{Name: "order", Type: schema.TypeEnum, Enum: []string{"pre", "post"}},
			},
		},
		{Name: "reset"},
	}
}

func TestNewManifest(t *testing.T) {
	list := testTools()
	m, err := encoding.NewManifest("example.com/calc", "Tools", list, nil)
	require.NoError(t, err)
	require.NoError(t, m.Validate())

	assert.Equal(t, schema.Fingerprint(list...), m.Fingerprint)
	require.Len(t, m.Tools, 3)
	assert.Equal(t, "object", m.Tools[0].InputSchema["type"])
	assert.Equal(t, map[string]any{"type": "integer"}, m.Tools[0].OutputSchema)
	assert.Nil(t, m.Tools[1].OutputSchema)
	assert.Nil(t, m.Tools[0].Example)
	assert.Empty(t, cmp.Diff(list, m.Schemas()))
}

func TestNewManifest_Example(t *testing.T) {
	list := testTools()
	m, err := encoding.NewManifest("example.com/calc", "Tools", list, gofakeit.New(7))
	require.NoError(t, err)

	for i, mt := range m.Tools {
		require.NotNil(t, mt.Example, mt.Name)
		js, err := json.Marshal(mt.Example)
		require.NoError(t, err)
		_, err = list[i].ValidateArguments(js)
		assert.NoError(t, err, "%s: %s", mt.Name, js)
	}
}

func TestManifest_Marshal(t *testing.T) {
	list := testTools()
	m, err := encoding.NewManifest("example.com/calc", "Tools", list, nil)
	require.NoError(t, err)

	for _, mode := range []encoding.Mode{encoding.ModeJSON, encoding.ModeYAML, encoding.ModeTOML} {
		t.Run(mode, func(t *testing.T) {
			data, err := m.Marshal(mode)
			require.NoError(t, err)
			assert.Contains(t, string(data), m.Fingerprint)

			m2, err := encoding.UnmarshalManifest(data, mode)
			require.NoError(t, err, string(data))
			assert.Equal(t, m.Package, m2.Package)
			assert.Equal(t, m.Table, m2.Table)
			assert.Empty(t, cmp.Diff(list, m2.Schemas()))
		})
	}

	data, err := m.Marshal(encoding.ModeYAML)
	require.NoError(t, err)
	assert.Contains(t, string(data), "package: example.com/calc # Go package declaring the tools\n")

	data, err = m.Marshal(encoding.ModePlainText)
	require.NoError(t, err)
	exp := "example.com/calc.Tools (" + m.Fingerprint + ")\n" +
		"  add(a int, b int) int: Add returns the sum.\n" +
		"  walk(root Node, order enum(pre|post)?)\n" +
		"  reset()\n"
	assert.Equal(t, exp, string(data))
	assert.Equal(t, exp, m.String())

	_, err = encoding.UnmarshalManifest(data, encoding.ModePlainText)
	assert.EqualError(t, err, "failed to decode manifest: text form cannot be decoded into *encoding.Manifest")

	_, err = m.Marshal("xml")
	assert.EqualError(t, err, `unsupported encoding mode "xml"`)
	_, err = encoding.UnmarshalManifest(data, "xml")
	assert.EqualError(t, err, `unsupported encoding mode "xml"`)
}

func TestManifest_Validate(t *testing.T) {
	newManifest := func() *encoding.Manifest {
		m, err := encoding.NewManifest("example.com/calc", "Tools", testTools(), nil)
		require.NoError(t, err)
		return m
	}

	m := newManifest()
	m.Fingerprint = "abc"
	err := m.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fingerprint abc does not match the tools")

	m = newManifest()
	m.Fingerprint = "not hex"
	err = m.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "'hexadecimal' tag")

	m = newManifest()
	m.Package = ""
	err = m.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Manifest.Package")

	m = newManifest()
	m.Tools[0].Name = "bad name"
	err = m.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "'tool_name' tag")

	m = newManifest()
	m.Tools[1].Name = "add"
	err = m.Validate()
	assert.EqualError(t, err, `invalid manifest: duplicate tool "add"`)

	m = newManifest()
	m.Tools[1].Parameters[1].Enum = nil
	err = m.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid manifest: tool \"walk\"")

	_, err = encoding.UnmarshalManifest([]byte(`{"package":"x"}`), encoding.ModeJSON)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Manifest.Table")
}

func TestModeFromFilename(t *testing.T) {
	tcases := map[string]encoding.Mode{
		"tools.json":  encoding.ModeJSON,
		"tools.YAML":  encoding.ModeYAML,
		"tools.yml":   encoding.ModeYAML,
		"tools.toml":  encoding.ModeTOML,
		"tools.txt":   encoding.ModePlainText,
		"tools":       encoding.ModeDefault,
		"tools.proto": encoding.ModeDefault,
	}
	for name, exp := range tcases {
		assert.Equal(t, exp, encoding.ModeFromFilename(name), name)
	}

	for _, mode := range encoding.Modes {
		enc, err := encoding.NewEncoder(mode)
		require.NoError(t, err)
		assert.NotNil(t, enc)
	}
}
