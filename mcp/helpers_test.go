package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/nanomcp/mcp/transport"
	"github.com/effective-security/nanomcp/mcp/transport/localtransport"
	"github.com/effective-security/nanomcp/registry"
	"github.com/effective-security/nanomcp/schema"
	"github.com/effective-security/nanomcp/tools"
	"github.com/stretchr/testify/require"
)

func intParam(name string) *schema.Parameter {
	return &schema.Parameter{Name: name, Type: schema.TypeInt, Required: true}
}

func testDefinitions() []*tools.Definition {
	return []*tools.Definition{
		{
			Schema: &schema.Tool{
				Name:        "add",
				Description: "Adds two integers",
				Parameters:  []*schema.Parameter{intParam("a"), intParam("b")},
				Returns:     &schema.Parameter{Type: schema.TypeInt},
			},
			Invoke: func(ctx context.Context, args tools.Args) (any, error) {
				var a, b int
				if err := args.Decode("a", &a); err != nil {
					return nil, err
				}
				if err := args.Decode("b", &b); err != nil {
					return nil, err
				}
				return a + b, nil
			},
		},
		{
			Schema: &schema.Tool{Name: "block", Description: "Waits until cancelled"},
			Invoke: func(ctx context.Context, args tools.Args) (any, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
		},
		{
			Schema: &schema.Tool{
				Name:       "slow",
				Parameters: []*schema.Parameter{intParam("ms")},
				Returns:    &schema.Parameter{Type: schema.TypeString},
			},
			Invoke: func(ctx context.Context, args tools.Args) (any, error) {
				var ms int
				if err := args.Decode("ms", &ms); err != nil {
					return nil, err
				}
				select {
				case <-time.After(time.Duration(ms) * time.Millisecond):
					return "done", nil
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			},
		},
		{
			Schema: &schema.Tool{
				Name:       "count",
				Parameters: []*schema.Parameter{intParam("n")},
				Returns:    &schema.Parameter{Type: schema.TypeInt},
			},
			Invoke: func(ctx context.Context, args tools.Args) (any, error) {
				var n int
				if err := args.Decode("n", &n); err != nil {
					return nil, err
				}
				for i := 1; i <= n; i++ {
					tools.ReportProgress(ctx, float64(i), float64(n), "")
				}
				return n, nil
			},
		},
		{
			Schema: &schema.Tool{Name: "fail"},
			Invoke: func(ctx context.Context, args tools.Args) (any, error) {
				return nil, errors.New("disk is full")
			},
		},
	}
}

func testRegistry(t *testing.T) *registry.Registry {
	reg, err := registry.NewWith(testDefinitions()...)
	require.NoError(t, err)
	return reg
}

// startServer serves the registry on one end of a local pair and returns
// the other end
func startServer(t *testing.T, reg *registry.Registry, opts ...Option) (*Server, *localtransport.Transport, <-chan error) {
	a, b := localtransport.NewPair()
	s := NewServer(reg, opts...)
	done := make(chan error, 1)
	go func() {
		done <- s.Serve(context.Background(), a)
	}()
	t.Cleanup(func() {
		_ = a.Close()
	})
	return s, b, done
}

func connect(t *testing.T, tr transport.Transport, reg *registry.Registry, opts ...Option) *Client {
	c := NewClient(reg, opts...)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx, tr))
	t.Cleanup(func() {
		_ = c.Close()
	})
	return c
}

func waitServed(t *testing.T, done <-chan error) error {
	select {
	case err := <-done:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
		return nil
	}
}

// wirePeer speaks raw messages to a server
type wirePeer struct {
	t  *testing.T
	tr *localtransport.Transport
}

func (p *wirePeer) request(id transport.RequestID, method string, params string) {
	var raw json.RawMessage
	if params != "" {
		raw = json.RawMessage(params)
	}
	require.NoError(p.t, p.tr.Send(context.Background(), transport.NewRequest(id, method, raw)))
}

func (p *wirePeer) notify(method string, params string) {
	var raw json.RawMessage
	if params != "" {
		raw = json.RawMessage(params)
	}
	require.NoError(p.t, p.tr.Send(context.Background(), transport.NewNotification(method, raw)))
}

func (p *wirePeer) recv() *transport.Message {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	m, err := p.tr.Receive(ctx)
	require.NoError(p.t, err)
	return m
}

// response skips notifications until a response arrives
func (p *wirePeer) response() *transport.Response {
	for {
		m := p.recv()
		if m.Type == transport.MessageTypeResponse {
			return m.Response
		}
	}
}

func (p *wirePeer) handshake() {
	p.request(100, MethodInitialize, `{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"wire","version":"1"}}`)
	res := p.response()
	require.Nil(p.t, res.Error)
	require.Equal(p.t, transport.RequestID(100), res.ID)
	p.notify(NotificationInitialized, "")
}
