// Package encoding writes and reads manifests of compiled tool tables in
// JSON, YAML, TOML or plain text.
package encoding

import (
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	jsonenc "github.com/effective-security/nanomcp/encoding/json"
	textenc "github.com/effective-security/nanomcp/encoding/text"
	tomlenc "github.com/effective-security/nanomcp/encoding/toml"
	yamlenc "github.com/effective-security/nanomcp/encoding/yaml"
)

// Encoder converts values to and from one format
type Encoder interface {
	Marshal(v any) ([]byte, error)
	Unmarshal([]byte, any) error
}

type Mode = string

const (
	ModeJSON      Mode = "json"
	ModeYAML      Mode = "yaml"
	ModeTOML      Mode = "toml"
	ModePlainText Mode = "plain_text"
)

// ModeDefault is the mode used for unknown file extensions.
// Allow to override in apps
var ModeDefault = ModeJSON

// Modes lists the supported modes
var Modes = []Mode{ModeJSON, ModeYAML, ModeTOML, ModePlainText}

// NewEncoder returns the encoder of the mode
func NewEncoder(mode Mode) (Encoder, error) {
	switch mode {
	case ModeJSON:
		return jsonenc.NewEncoder(), nil
	case ModeYAML:
		return yamlenc.NewEncoder().WithCommentStyle(yamlenc.LineComment), nil
	case ModeTOML:
		return tomlenc.NewEncoder(), nil
	case ModePlainText:
		return textenc.NewEncoder(), nil
	}
	return nil, errors.Errorf("unsupported encoding mode %q", mode)
}

// ModeFromFilename returns the mode matching the file extension
func ModeFromFilename(name string) Mode {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return ModeJSON
	case ".yaml", ".yml":
		return ModeYAML
	case ".toml":
		return ModeTOML
	case ".txt", ".text":
		return ModePlainText
	}
	return ModeDefault
}

var (
	_ Encoder = (*jsonenc.Encoder)(nil)
	_ Encoder = (*yamlenc.Encoder)(nil)
	_ Encoder = (*tomlenc.Encoder)(nil)
	_ Encoder = (*textenc.Encoder)(nil)
)
