package compiler

import (
	"go/ast"
	"go/token"
	"slices"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// Directive prefixes
const (
	DirectivePrefix = "//mcp:"
	ToolDirective   = "//mcp:tool"
	ParamDirective  = "//mcp:param"
)

// marker is one parsed directive line
type marker struct {
	pos  token.Pos
	kind string
	// target is the parameter name of a param marker
	target string
	attrs  []attr
}

type attr struct {
	key   string
	value string
}

func (m *marker) get(key string) (string, bool) {
	for _, a := range m.attrs {
		if a.key == key {
			return a.value, true
		}
	}
	return "", false
}

var allowedAttrs = map[string][]string{
	"tool":  {"name", "description"},
	"param": {"description", "required", "enum"},
}

// isDirective reports whether the comment is an mcp directive
func isDirective(c *ast.Comment) bool {
	return strings.HasPrefix(c.Text, DirectivePrefix)
}

// parseMarker parses `//mcp:<kind> [target] key=value key="quoted value"`
func parseMarker(c *ast.Comment) (*marker, error) {
	text := strings.TrimPrefix(c.Text, DirectivePrefix)
	kind, rest, _ := strings.Cut(text, " ")
	kind = strings.TrimSpace(kind)

	allowed, ok := allowedAttrs[kind]
	if !ok {
		return nil, errors.Errorf("unknown directive %s%s", DirectivePrefix, kind)
	}
	m := &marker{pos: c.Slash, kind: kind}

	tokens, err := splitAttrs(rest)
	if err != nil {
		return nil, err
	}
	if kind == "param" {
		if len(tokens) == 0 || strings.Contains(tokens[0], "=") {
			return nil, errors.Errorf("%s requires a parameter name", ParamDirective)
		}
		m.target = tokens[0]
		tokens = tokens[1:]
	}

	for _, tok := range tokens {
		key, raw, found := strings.Cut(tok, "=")
		if !found || key == "" {
			return nil, errors.Errorf("expected key=value, got %q", tok)
		}
		if !slices.Contains(allowed, key) {
			return nil, errors.Errorf("unknown attribute %q of %s%s", key, DirectivePrefix, kind)
		}
		if _, dup := m.get(key); dup {
			return nil, errors.Errorf("duplicate attribute %q", key)
		}
		value, err := unquote(raw)
		if err != nil {
			return nil, errors.Errorf("bad quoting in %s: %s", key, raw)
		}
		if value == "" {
			return nil, errors.Errorf("empty value for %s", key)
		}
		m.attrs = append(m.attrs, attr{key: key, value: value})
	}
	return m, nil
}

// splitAttrs splits on spaces outside of double quotes
func splitAttrs(s string) ([]string, error) {
	var (
		res     []string
		cur     strings.Builder
		quoted  bool
		escaped bool
	)
	for _, r := range s {
		switch {
		case escaped:
			escaped = false
		case quoted && r == '\\':
			escaped = true
		case r == '"':
			quoted = !quoted
		case !quoted && (r == ' ' || r == '\t'):
			if cur.Len() > 0 {
				res = append(res, cur.String())
				cur.Reset()
			}
			continue
		}
		cur.WriteRune(r)
	}
	if quoted {
		return nil, errors.New("bad quoting: unterminated string")
	}
	if cur.Len() > 0 {
		res = append(res, cur.String())
	}
	return res, nil
}

func unquote(raw string) (string, error) {
	if !strings.HasPrefix(raw, `"`) {
		if strings.Contains(raw, `"`) {
			return "", errors.New("unexpected quote")
		}
		return raw, nil
	}
	return strconv.Unquote(raw)
}
