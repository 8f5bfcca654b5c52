// Package codes defines the protocol error taxonomy shared by the engine,
// the transports and the tool thunks.
//
// Codes are symbolic strings on the wire and round-trip unchanged: a code
// that is not known to this package is preserved as-is when decoded.
package codes

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"
)

// Code is a stable protocol error code
type Code string

const (
	// HandshakeFailed is returned when the initialize exchange fails,
	// for example on a protocol version mismatch.
	HandshakeFailed Code = "HandshakeFailed"
	// ToolNotFound is returned when tools/call names an unregistered tool.
	ToolNotFound Code = "ToolNotFound"
	// SchemaValidationError is returned when call arguments do not match the tool schema.
	SchemaValidationError Code = "SchemaValidationError"
	// ToolExecutionError is returned when the tool itself failed.
	ToolExecutionError Code = "ToolExecutionError"
	// DuplicateRequestId is returned for a request whose id is already in flight.
	DuplicateRequestId Code = "DuplicateRequestId"
	// Timeout is returned when a call did not complete before its deadline.
	Timeout Code = "Timeout"
	// Cancelled is returned when a call was cancelled by the peer or by shutdown.
	Cancelled Code = "Cancelled"
	// TransportLost is returned for calls pending when the transport failed.
	TransportLost Code = "TransportLost"

	// ParseError is returned when a message could not be decoded.
	ParseError Code = "ParseError"
	// InvalidRequest is returned when the request params are malformed.
	InvalidRequest Code = "InvalidRequest"
	// MethodNotFound is returned for an unknown method.
	MethodNotFound Code = "MethodNotFound"
	// SessionNotReady is returned for requests outside of the Ready state.
	SessionNotReady Code = "SessionNotReady"
	// InternalError is returned for unexpected failures.
	InternalError Code = "InternalError"
)

var known = map[Code]bool{
	HandshakeFailed:       true,
	ToolNotFound:          true,
	SchemaValidationError: true,
	ToolExecutionError:    true,
	DuplicateRequestId:    true,
	Timeout:               true,
	Cancelled:             true,
	TransportLost:         true,
	ParseError:            true,
	InvalidRequest:        true,
	MethodNotFound:        true,
	SessionNotReady:       true,
	InternalError:         true,
}

// IsKnown reports whether the code is part of the taxonomy
func (c Code) IsKnown() bool {
	return known[c]
}

func (c Code) String() string {
	return string(c)
}

// IsSessionLevel reports whether the code terminates the session.
func (c Code) IsSessionLevel() bool {
	return c == HandshakeFailed || c == TransportLost
}

// Error is a protocol error carrying a Code, a human readable message
// and optional structured data.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// New returns a new protocol error
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Newf returns a new protocol error with formatted message
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithData returns a copy of the error with the data attached
func (e *Error) WithData(data any) *Error {
	c := *e
	c.Data = data
	return &c
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Message
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// DataMap decodes the Data into a map, which is what a peer receives
// after the error went over the wire.
func (e *Error) DataMap() map[string]any {
	if e.Data == nil {
		return nil
	}
	if m, ok := e.Data.(map[string]any); ok {
		return m
	}
	js, err := json.Marshal(e.Data)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err = json.Unmarshal(js, &m); err != nil {
		return nil
	}
	return m
}

// From extracts a protocol error from the chain, or returns nil
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// CodeOf returns the code of the protocol error in the chain,
// or InternalError for any other non-nil error.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	if e := From(err); e != nil {
		return e.Code
	}
	return InternalError
}

// Convert returns err as a protocol error; errors that are not
// protocol errors are mapped to the provided code.
func Convert(err error, code Code) *Error {
	if err == nil {
		return nil
	}
	if e := From(err); e != nil {
		return e
	}
	return New(code, err.Error())
}
