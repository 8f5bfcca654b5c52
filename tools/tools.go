package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/nanomcp/mcp/codes"
	"github.com/effective-security/nanomcp/schema"
)

// Thunk is the compiled binding from a validated argument bag to the
// native tool invocation. The returned value must be JSON serializable.
type Thunk func(ctx context.Context, args Args) (any, error)

// Definition is a tool schema bound to its invocation handle
type Definition struct {
	Schema *schema.Tool
	Invoke Thunk
}

// Name returns the tool name
func (d *Definition) Name() string {
	if d == nil || d.Schema == nil {
		return ""
	}
	return d.Schema.Name
}

// Validate checks that the definition is usable
func (d *Definition) Validate() error {
	if d == nil {
		return errors.New("tool definition is nil")
	}
	if err := d.Schema.Validate(); err != nil {
		return err
	}
	if d.Invoke == nil {
		return errors.Errorf("tool %q has no invocation handle", d.Schema.Name)
	}
	return nil
}

// Call validates the raw arguments against the schema, invokes the thunk
// and returns the result in wire form.
// Panics raised by the tool are returned as ToolExecutionError.
func (d *Definition) Call(ctx context.Context, raw json.RawMessage) (res json.RawMessage, err error) {
	args, err := d.Schema.ValidateArguments(raw)
	if err != nil {
		return nil, ValidationError(err)
	}

	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = codes.Newf(codes.ToolExecutionError, "tool %q panicked: %v", d.Schema.Name, r)
		}
	}()

	out, err := d.Invoke(ctx, args)
	if err != nil {
		return nil, ExecutionError(err)
	}

	res, err = json.Marshal(out)
	if err != nil {
		return nil, codes.Newf(codes.ToolExecutionError, "failed to encode result of %q: %s", d.Schema.Name, err.Error())
	}
	return res, nil
}

// Args is the argument bag of a tool call, keyed by parameter name
type Args map[string]json.RawMessage

// Has reports whether the argument is present and not null
func (a Args) Has(name string) bool {
	raw, ok := a[name]
	return ok && string(raw) != "null"
}

// Decode converts the named argument into v.
// A missing or null argument leaves v unchanged.
func (a Args) Decode(name string, v any) error {
	raw, ok := a[name]
	if !ok || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return ValidationError(&schema.ValidationError{
			Path:   name,
			Reason: fmt.Sprintf("cannot convert to %T: %s", v, err.Error()),
		})
	}
	return nil
}

// ValidationError converts a schema validation failure into a
// SchemaValidationError protocol error naming the offending parameter.
func ValidationError(err error) error {
	if err == nil {
		return nil
	}
	if e := codes.From(err); e != nil {
		return e
	}
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		return codes.New(codes.SchemaValidationError, verr.Error()).
			WithData(map[string]any{
				"parameter": verr.Path,
				"reason":    verr.Reason,
			})
	}
	return codes.New(codes.SchemaValidationError, err.Error())
}

// ExecutionError converts an error returned by a tool into a protocol error.
// Protocol errors are returned unchanged, so a tool may report for example
// Cancelled when it observed its context being cancelled.
func ExecutionError(err error) error {
	if err == nil {
		return nil
	}
	if e := codes.From(err); e != nil {
		return e
	}
	return codes.New(codes.ToolExecutionError, err.Error())
}

// Callback receives tool execution events
type Callback interface {
	OnToolStart(ctx context.Context, tool *schema.Tool, args json.RawMessage)
	OnToolEnd(ctx context.Context, tool *schema.Tool, args json.RawMessage, result json.RawMessage)
	OnToolError(ctx context.Context, tool *schema.Tool, args json.RawMessage, err error)
	OnToolNotFound(ctx context.Context, name string)
}
