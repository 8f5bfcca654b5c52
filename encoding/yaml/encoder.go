package yaml

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// CommentStyle places the `comment` tag of struct fields in the output
type CommentStyle int

const (
	NoComment CommentStyle = iota
	HeadComment
	LineComment
	FootComment
)

type Encoder struct {
	commentStyle CommentStyle
}

func NewEncoder() *Encoder {
	return &Encoder{commentStyle: NoComment}
}

func (e *Encoder) WithCommentStyle(style CommentStyle) *Encoder {
	e.commentStyle = style
	return e
}

func (e *Encoder) Marshal(v any) ([]byte, error) {
	if e.commentStyle == NoComment {
		bs, err := yaml.Marshal(v)
		return bs, errors.WithStack(err)
	}
	node, err := e.valueNode(reflect.ValueOf(v))
	if err != nil {
		return nil, err
	}
	bs, err := yaml.Marshal(node)
	return bs, errors.WithStack(err)
}

func (e *Encoder) Unmarshal(bs []byte, ret any) error {
	if err := yaml.Unmarshal(bs, ret); err != nil {
		return errors.Wrap(err, "invalid YAML")
	}
	return nil
}

func nullNode() *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Value: "null", Tag: "!!null"}
}

// structNode converts a struct to a mapping node, keyed by the yaml tags.
// Fields without a yaml tag are skipped.
func (e *Encoder) structNode(val reflect.Value) (*yaml.Node, error) {
	typ := val.Type()
	root := &yaml.Node{Kind: yaml.MappingNode}

	for i := range val.NumField() {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}
		key, opts, _ := strings.Cut(field.Tag.Get("yaml"), ",")
		if key == "" || key == "-" {
			continue
		}
		fv := val.Field(i)
		if strings.Contains(opts, "omitempty") && fv.IsZero() {
			continue
		}

		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Value: key}
		if comment := field.Tag.Get("comment"); comment != "" {
			switch e.commentStyle {
			case HeadComment:
				keyNode.HeadComment = comment
			case LineComment:
				keyNode.LineComment = comment
			case FootComment:
				keyNode.FootComment = comment
			}
		}

		valueNode, err := e.valueNode(fv)
		if err != nil {
			return nil, errors.WithMessagef(err, "field %s", field.Name)
		}
		root.Content = append(root.Content, keyNode, valueNode)
	}
	return root, nil
}

// valueNode converts a value recursively, following pointers and interfaces
func (e *Encoder) valueNode(v reflect.Value) (*yaml.Node, error) {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nullNode(), nil
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return nullNode(), nil
	}

	switch v.Kind() {
	case reflect.String:
		return &yaml.Node{Kind: yaml.ScalarNode, Value: v.String(), Tag: "!!str"}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return &yaml.Node{Kind: yaml.ScalarNode, Value: strconv.FormatInt(v.Int(), 10), Tag: "!!int"}, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &yaml.Node{Kind: yaml.ScalarNode, Value: strconv.FormatUint(v.Uint(), 10), Tag: "!!int"}, nil
	case reflect.Float32, reflect.Float64:
		s := strconv.FormatFloat(v.Float(), 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Value: s, Tag: "!!float"}, nil
	case reflect.Bool:
		return &yaml.Node{Kind: yaml.ScalarNode, Value: strconv.FormatBool(v.Bool()), Tag: "!!bool"}, nil
	case reflect.Map:
		return e.mapNode(v)
	case reflect.Struct:
		return e.structNode(v)
	case reflect.Slice, reflect.Array:
		return e.sliceNode(v)
	}
	return nil, errors.Errorf("unsupported kind %s", v.Kind())
}

// mapNode converts a map with keys sorted by their string form
func (e *Encoder) mapNode(v reflect.Value) (*yaml.Node, error) {
	keys := v.MapKeys()
	names := make([]string, len(keys))
	for i, key := range keys {
		names[i] = fmt.Sprint(key.Interface())
	}
	idx := make([]int, len(keys))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return names[idx[a]] < names[idx[b]] })

	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, i := range idx {
		valueNode, err := e.valueNode(v.MapIndex(keys[i]))
		if err != nil {
			return nil, errors.WithMessagef(err, "key %s", names[i])
		}
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Value: names[i]}
		node.Content = append(node.Content, keyNode, valueNode)
	}
	return node, nil
}

func (e *Encoder) sliceNode(v reflect.Value) (*yaml.Node, error) {
	node := &yaml.Node{Kind: yaml.SequenceNode}
	for i := range v.Len() {
		item, err := e.valueNode(v.Index(i))
		if err != nil {
			return nil, errors.WithMessagef(err, "index %d", i)
		}
		node.Content = append(node.Content, item)
	}
	return node, nil
}
