package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/effective-security/nanomcp/mcp/codes"
	"github.com/effective-security/nanomcp/mcp/transport"
	"github.com/effective-security/nanomcp/schema"
	"github.com/effective-security/nanomcp/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleListTools(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	reg := testRegistry(t)
	s := NewServer(reg, WithPageSize(2))

	var names []string
	var cursor *string
	pages := 0
	for {
		params, err := json.Marshal(ListToolsParams{Cursor: cursor})
		require.NoError(t, err)
		res, err := s.handleListTools(ctx, &transport.Request{Method: MethodToolsList, Params: params})
		require.NoError(t, err)
		page := res.(ListToolsResult)
		assert.Equal(t, reg.Fingerprint(), page.Fingerprint)
		assert.LessOrEqual(t, len(page.Tools), 2)
		for _, tool := range page.Tools {
			names = append(names, tool.Name)
			assert.NotNil(t, tool.InputSchema)
		}
		pages++
		if page.NextCursor == nil {
			break
		}
		cursor = page.NextCursor
	}
	assert.Equal(t, 3, pages)
	assert.Equal(t, []string{"add", "block", "slow", "count", "fail"}, names)

	t.Run("NoPaging", func(t *testing.T) {
		s := NewServer(reg)
		res, err := s.handleListTools(ctx, &transport.Request{Method: MethodToolsList})
		require.NoError(t, err)
		page := res.(ListToolsResult)
		assert.Len(t, page.Tools, 5)
		assert.Nil(t, page.NextCursor)
		assert.NotNil(t, page.Tools[0].OutputSchema)
		assert.Nil(t, page.Tools[1].OutputSchema)
	})

	t.Run("InvalidCursor", func(t *testing.T) {
		for _, cursor := range []string{"!!!", base64.StdEncoding.EncodeToString([]byte("missing"))} {
			params, _ := json.Marshal(ListToolsParams{Cursor: &cursor})
			_, err := s.handleListTools(ctx, &transport.Request{Method: MethodToolsList, Params: params})
			require.Error(t, err)
			assert.Equal(t, codes.InvalidRequest, codes.CodeOf(err))
		}
	})

	t.Run("InvalidParams", func(t *testing.T) {
		_, err := s.handleListTools(ctx, &transport.Request{Method: MethodToolsList, Params: json.RawMessage(`[1]`)})
		assert.Equal(t, codes.InvalidRequest, codes.CodeOf(err))
	})
}

func TestHandleCallTool(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewServer(testRegistry(t))

	call := func(params string) (any, error) {
		return s.handleCallTool(ctx, &transport.Request{ID: 1, Method: MethodToolsCall, Params: json.RawMessage(params)})
	}

	res, err := call(`{"name":"add","arguments":{"a":2,"b":3}}`)
	require.NoError(t, err)
	assert.Equal(t, "5", string(res.(json.RawMessage)))

	_, err = call(`{"name":"add","arguments":{"a":"x","b":3}}`)
	perr := codes.From(err)
	require.NotNil(t, perr)
	assert.Equal(t, codes.SchemaValidationError, perr.Code)
	assert.Equal(t, "a", perr.DataMap()["parameter"])

	_, err = call(`{"name":"add","arguments":{"a":1}}`)
	assert.Equal(t, codes.SchemaValidationError, codes.CodeOf(err))

	_, err = call(`{"name":"sub","arguments":{}}`)
	perr = codes.From(err)
	require.NotNil(t, perr)
	assert.Equal(t, codes.ToolNotFound, perr.Code)
	assert.Equal(t, "sub", perr.DataMap()["tool"])

	_, err = call(`{"name":"fail"}`)
	assert.EqualError(t, err, "ToolExecutionError: disk is full")

	_, err = call(`{"arguments":{}}`)
	assert.Equal(t, codes.InvalidRequest, codes.CodeOf(err))

	_, err = call(`"add"`)
	assert.Equal(t, codes.InvalidRequest, codes.CodeOf(err))

	t.Run("Panic", func(t *testing.T) {
		reg := testRegistry(t)
		require.NoError(t, reg.Register(&tools.Definition{
			Schema: &schema.Tool{Name: "explode"},
			Invoke: func(ctx context.Context, args tools.Args) (any, error) {
				panic("kaboom")
			},
		}))
		s := NewServer(reg)
		_, err := s.handleCallTool(ctx, &transport.Request{ID: 2, Params: json.RawMessage(`{"name":"explode"}`)})
		require.Error(t, err)
		assert.Equal(t, codes.ToolExecutionError, codes.CodeOf(err))
		assert.Contains(t, err.Error(), "kaboom")
	})

	t.Run("Cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancelCause(ctx)
		cancel(codes.New(codes.Cancelled, "user"))
		_, err := s.handleCallTool(cctx, &transport.Request{ID: 3, Params: json.RawMessage(`{"name":"block"}`)})
		assert.Equal(t, codes.Cancelled, codes.CodeOf(err))
	})
}

func TestDeadline(t *testing.T) {
	t.Parallel()
	s := NewServer(nil, WithCallTimeout(5*time.Second))
	assert.Equal(t, 5*time.Second, s.deadline(&transport.Request{Method: MethodToolsCall, Params: json.RawMessage(`{}`)}))
	assert.Equal(t, 250*time.Millisecond, s.deadline(&transport.Request{Method: MethodToolsCall, Params: json.RawMessage(`{"_meta":{"timeoutMs":250}}`)}))
	assert.Zero(t, s.deadline(&transport.Request{Method: MethodToolsList}))
}

func TestState(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "handshaking", StateHandshaking.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "draining", StateDraining.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.True(t, StateReady.Accepting())
	assert.False(t, StateDraining.Accepting())
}

func TestOptions(t *testing.T) {
	t.Parallel()
	o := newOptions(nil)
	assert.Equal(t, "nanomcp", o.Name)
	assert.Equal(t, SupportedProtocolVersions, o.Versions)
	assert.Equal(t, DefaultHandshakeTimeout, o.HandshakeTimeout)
	assert.Equal(t, DefaultCallTimeout, o.CallTimeout)
	assert.Equal(t, DefaultDrainTimeout, o.DrainTimeout)
	assert.Equal(t, DefaultRequestTimeout, o.RequestTimeout)

	o = newOptions([]Option{
		WithName("calc", "1.2.3"),
		WithInstructions("use add"),
		WithVersions(ProtocolVersion20250326),
		WithPageSize(10),
		WithMaxConcurrentCalls(4),
	})
	assert.Equal(t, "calc", o.Name)
	assert.Equal(t, "1.2.3", o.Version)
	assert.Equal(t, "use add", o.Instructions)
	assert.Equal(t, []string{ProtocolVersion20250326}, o.Versions)
	assert.Equal(t, 10, o.PageSize)
	assert.Equal(t, int64(4), o.MaxConcurrentCalls)
}
