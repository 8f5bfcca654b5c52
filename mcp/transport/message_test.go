package transport_test

import (
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/nanomcp/mcp/codes"
	"github.com/effective-security/nanomcp/mcp/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	t.Parallel()

	m, err := transport.Decode([]byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"add"}}`))
	require.NoError(t, err)
	assert.Equal(t, transport.MessageTypeRequest, m.Type)
	assert.Equal(t, "tools/call", m.Method())
	assert.Equal(t, transport.RequestID(1), m.MessageID())
	assert.JSONEq(t, `{"name":"add"}`, string(m.Request.Params))

	m, err = transport.Decode([]byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	require.NoError(t, err)
	assert.Equal(t, transport.MessageTypeNotification, m.Type)
	assert.Equal(t, "notifications/initialized", m.Method())
	assert.Equal(t, transport.RequestID(0), m.MessageID())

	m, err = transport.Decode([]byte(`{"jsonrpc":"2.0","id":1,"result":5}`))
	require.NoError(t, err)
	assert.Equal(t, transport.MessageTypeResponse, m.Type)
	assert.Equal(t, "5", string(m.Response.Result))
	assert.Nil(t, m.Response.Error)
	assert.Empty(t, m.Method())

	m, err = transport.Decode([]byte(`{"jsonrpc":"2.0","id":2,"error":{"code":"SchemaValidationError","message":"bad","data":{"parameter":"a"}}}`))
	require.NoError(t, err)
	require.NotNil(t, m.Response.Error)
	perr := m.Response.Error.Err()
	assert.Equal(t, codes.SchemaValidationError, perr.Code)
	assert.Equal(t, "a", perr.DataMap()["parameter"])

	// unknown codes are preserved
	m, err = transport.Decode([]byte(`{"jsonrpc":"2.0","id":3,"error":{"code":"RateLimited","message":"slow down"}}`))
	require.NoError(t, err)
	assert.Equal(t, codes.Code("RateLimited"), m.Response.Error.Code)

	for _, bad := range []string{
		`not json`,
		`{"jsonrpc":"2.0"}`,
		`{"jsonrpc":"2.0","id":"abc","method":"x"}`,
		`{"jsonrpc":"2.0","id":1,"error":"oops"}`,
	} {
		_, err = transport.Decode([]byte(bad))
		assert.Error(t, err, bad)
	}
}

func TestMarshal(t *testing.T) {
	t.Parallel()

	js, err := json.Marshal(transport.NewRequest(1, "ping", nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"method":"ping"}`, string(js))

	js, err = json.Marshal(transport.NewNotification("notifications/cancelled", json.RawMessage(`{"requestId":1}`)))
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","method":"notifications/cancelled","params":{"requestId":1}}`, string(js))

	js, err = json.Marshal(transport.NewResult(1, json.RawMessage(`5`)))
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":5}`, string(js))

	js, err = json.Marshal(transport.NewResult(1, nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":null}`, string(js))

	js, err = json.Marshal(transport.NewError(4, codes.New(codes.ToolNotFound, "missing").WithData(map[string]any{"tool": "sub"})))
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":4,"error":{"code":"ToolNotFound","message":"missing","data":{"tool":"sub"}}}`, string(js))

	js, err = json.Marshal(transport.NewError(5, errors.New("unexpected")))
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":5,"error":{"code":"InternalError","message":"unexpected"}}`, string(js))

	_, err = json.Marshal(&transport.Message{})
	assert.Error(t, err)
}

func TestMessageType(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "request", transport.MessageTypeRequest.String())
	assert.Equal(t, "notification", transport.MessageTypeNotification.String())
	assert.Equal(t, "response", transport.MessageTypeResponse.String())
	assert.Equal(t, "unknown", transport.MessageType(0).String())
	assert.Equal(t, "42", transport.RequestID(42).String())
}
