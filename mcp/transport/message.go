package transport

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/nanomcp/mcp/codes"
)

// Version is the JSON-RPC version tag set on every message
const Version = "2.0"

// RequestID correlates a request with its response
type RequestID int64

func (id RequestID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// MessageType is the kind of a message
type MessageType int

const (
	MessageTypeRequest MessageType = iota + 1
	MessageTypeNotification
	MessageTypeResponse
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeRequest:
		return "request"
	case MessageTypeNotification:
		return "notification"
	case MessageTypeResponse:
		return "response"
	default:
		return "unknown"
	}
}

// Request expects exactly one Response with the same ID
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      RequestID       `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Notification is a one-way message, it is never answered
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// ErrorObject is the error member of a Response
type ErrorObject struct {
	Code    codes.Code      `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Err returns the error object as a protocol error
func (e *ErrorObject) Err() *codes.Error {
	res := codes.New(e.Code, e.Message)
	if len(e.Data) > 0 {
		var data any
		if json.Unmarshal(e.Data, &data) == nil {
			res.Data = data
		}
	}
	return res
}

// NewErrorObject converts an error into its wire form.
// Errors that are not protocol errors are reported as InternalError.
func NewErrorObject(err error) *ErrorObject {
	perr := codes.Convert(err, codes.InternalError)
	obj := &ErrorObject{
		Code:    perr.Code,
		Message: perr.Message,
	}
	if perr.Data != nil {
		if js, jerr := json.Marshal(perr.Data); jerr == nil {
			obj.Data = js
		}
	}
	return obj
}

// Response carries either Result or Error
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      RequestID       `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

// Message is a tagged variant of Request, Notification and Response
type Message struct {
	Type         MessageType
	Request      *Request
	Notification *Notification
	Response     *Response
}

// NewRequest returns a request message
func NewRequest(id RequestID, method string, params json.RawMessage) *Message {
	return &Message{
		Type:    MessageTypeRequest,
		Request: &Request{JSONRPC: Version, ID: id, Method: method, Params: params},
	}
}

// NewNotification returns a notification message
func NewNotification(method string, params json.RawMessage) *Message {
	return &Message{
		Type:         MessageTypeNotification,
		Notification: &Notification{JSONRPC: Version, Method: method, Params: params},
	}
}

// NewResult returns a successful response message
func NewResult(id RequestID, result json.RawMessage) *Message {
	if len(result) == 0 {
		result = json.RawMessage("null")
	}
	return &Message{
		Type:     MessageTypeResponse,
		Response: &Response{JSONRPC: Version, ID: id, Result: result},
	}
}

// NewError returns an error response message
func NewError(id RequestID, err error) *Message {
	return &Message{
		Type:     MessageTypeResponse,
		Response: &Response{JSONRPC: Version, ID: id, Error: NewErrorObject(err)},
	}
}

// Method returns the method of a request or notification
func (m *Message) Method() string {
	switch m.Type {
	case MessageTypeRequest:
		return m.Request.Method
	case MessageTypeNotification:
		return m.Notification.Method
	}
	return ""
}

// MessageID returns the id of a request or response
func (m *Message) MessageID() RequestID {
	switch m.Type {
	case MessageTypeRequest:
		return m.Request.ID
	case MessageTypeResponse:
		return m.Response.ID
	}
	return 0
}

// MarshalJSON implements json.Marshaler
func (m *Message) MarshalJSON() ([]byte, error) {
	switch m.Type {
	case MessageTypeRequest:
		if m.Request == nil {
			break
		}
		return json.Marshal(m.Request)
	case MessageTypeNotification:
		if m.Notification == nil {
			break
		}
		return json.Marshal(m.Notification)
	case MessageTypeResponse:
		if m.Response == nil {
			break
		}
		r := *m.Response
		if r.Error == nil && len(r.Result) == 0 {
			r.Result = json.RawMessage("null")
		}
		return json.Marshal(&r)
	}
	return nil, errors.Errorf("invalid message type: %d", m.Type)
}

// probe is used to classify a message before decoding it
type probe struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  *string         `json:"method"`
	Result  json.RawMessage `json:"result"`
	Error   json.RawMessage `json:"error"`
	Params  json.RawMessage `json:"params"`
}

// UnmarshalJSON implements json.Unmarshaler
func (m *Message) UnmarshalJSON(data []byte) error {
	var p probe
	if err := json.Unmarshal(data, &p); err != nil {
		return errors.Wrap(err, "malformed message")
	}
	hasID := len(p.ID) > 0 && !bytes.Equal(p.ID, []byte("null"))

	var id RequestID
	if hasID {
		if err := json.Unmarshal(p.ID, &id); err != nil {
			return errors.Errorf("invalid message id: %s", string(p.ID))
		}
	}

	switch {
	case p.Method != nil && hasID:
		*m = Message{
			Type:    MessageTypeRequest,
			Request: &Request{JSONRPC: p.JSONRPC, ID: id, Method: *p.Method, Params: p.Params},
		}
	case p.Method != nil:
		*m = Message{
			Type:         MessageTypeNotification,
			Notification: &Notification{JSONRPC: p.JSONRPC, Method: *p.Method, Params: p.Params},
		}
	case len(p.Result) > 0 || len(p.Error) > 0:
		r := &Response{JSONRPC: p.JSONRPC, ID: id}
		if len(p.Error) > 0 && !bytes.Equal(p.Error, []byte("null")) {
			r.Error = new(ErrorObject)
			if err := json.Unmarshal(p.Error, r.Error); err != nil {
				return errors.Wrap(err, "malformed error object")
			}
		} else {
			r.Result = p.Result
		}
		*m = Message{Type: MessageTypeResponse, Response: r}
	default:
		return errors.New("message is neither a request, a notification nor a response")
	}
	return nil
}

// Decode parses a single message
func Decode(data []byte) (*Message, error) {
	m := new(Message)
	if err := json.Unmarshal(data, m); err != nil {
		return nil, err
	}
	return m, nil
}
