package mcp

import (
	"context"
	"encoding/json"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/nanomcp/mcp/codes"
	"github.com/effective-security/nanomcp/mcp/internal/protocol"
	"github.com/effective-security/nanomcp/mcp/transport"
	"github.com/effective-security/nanomcp/pkg/metricskey"
	"github.com/effective-security/nanomcp/registry"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
)

// Client is the active side of a session
type Client struct {
	*session

	// OnToolsListChanged is called when the server announces a change of
	// its tool list. It must be set before Connect.
	OnToolsListChanged func()
}

// NewClient returns a client. The registry is optional: when set, the
// server may call its tools over the same session.
func NewClient(reg *registry.Registry, opts ...Option) *Client {
	return &Client{session: newSession("client", reg, opts)}
}

// Connect starts the transport and performs the handshake. On success the
// session is Ready; a version mismatch or a handshake failure closes it
// and returns an error carrying HandshakeFailed.
func (c *Client) Connect(ctx context.Context, tr transport.Transport) error {
	if !c.casState(StateUninitialized, StateHandshaking) {
		return errors.Errorf("client is %s", c.State())
	}
	c.newProtocol(tr, c.admit, nil)
	c.proto.SetNotificationHandler(NotificationToolsListChanged, func(ctx context.Context, n *transport.Notification) error {
		if c.OnToolsListChanged != nil {
			c.OnToolsListChanged()
		}
		return nil
	})

	if err := tr.Start(ctx); err != nil {
		lost := codes.Newf(codes.TransportLost, "failed to start transport: %s", err.Error())
		c.terminate(lost)
		return lost
	}
	metricskey.StatsSessionsOpened.IncrCounter(1, "ok")

	go c.run()

	caps := Capabilities{}
	if c.reg != nil {
		caps.Tools = &ToolsCapability{ListChanged: true}
	}
	raw, err := c.proto.Request(ctx, MethodInitialize, InitializeParams{
		ProtocolVersion: c.opts.Versions[0],
		Capabilities:    caps,
		ClientInfo:      Implementation{Name: c.opts.Name, Version: c.opts.Version},
	}, &protocol.RequestOptions{Timeout: c.opts.HandshakeTimeout})
	if err != nil {
		return c.handshakeFailed(err)
	}

	var res InitializeResult
	if err = json.Unmarshal(raw, &res); err != nil {
		return c.handshakeFailed(errors.Wrap(err, "invalid initialize result"))
	}
	if !slices.Contains(c.opts.Versions, res.ProtocolVersion) {
		return c.handshakeFailed(errors.Errorf("server chose unsupported protocol version %q", res.ProtocolVersion))
	}

	sessionID := ""
	if res.Meta != nil {
		sessionID = res.Meta.SessionID
	}
	c.mu.Lock()
	c.id = sessionID
	if c.id == "" {
		c.id = uuid.NewString()
	}
	c.version = res.ProtocolVersion
	c.peer = res.ServerInfo
	c.peerCaps = res.Capabilities
	c.mu.Unlock()
	c.initialized.Store(true)

	if err = c.proto.Notify(ctx, NotificationInitialized, nil); err != nil {
		lost := codes.Newf(codes.TransportLost, "failed to send initialized: %s", err.Error())
		c.terminate(lost)
		return lost
	}
	c.markReady()
	return nil
}

func (c *Client) handshakeFailed(err error) error {
	perr := codes.From(err)
	if perr == nil || perr.Code != codes.HandshakeFailed {
		perr = codes.Newf(codes.HandshakeFailed, "handshake failed: %s", err.Error())
	}
	logger.KV(xlog.WARNING, "reason", "handshake_failed", "err", perr.Error())
	c.terminate(perr)
	return perr
}

func (c *Client) run() {
	err := c.proto.Run(context.Background())
	switch {
	case c.closing.Load():
	case c.stopping.Load():
		// the server closes the transport after answering shutdown
		c.terminate(c.stopReason())
	case errors.Is(err, transport.ErrCloseSignal):
		logger.KV(xlog.INFO, "status", "peer_closed", "session", c.SessionID())
		_ = c.drain(context.Background())
		c.terminate(nil)
	default:
		c.terminate(err)
	}
}

func (c *Client) admit(req *transport.Request) error {
	if req.Method == MethodPing {
		return nil
	}
	if st := c.State(); st != StateReady {
		return codes.Newf(codes.SessionNotReady, "session is %s", st)
	}
	return nil
}

// ListTools returns all tools of the server, following pagination cursors
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	var list []ToolInfo
	var cursor *string
	for {
		page, err := c.ListToolsPage(ctx, cursor)
		if err != nil {
			return nil, err
		}
		list = append(list, page.Tools...)
		if page.NextCursor == nil || *page.NextCursor == "" {
			return list, nil
		}
		cursor = page.NextCursor
	}
}

// ListToolsPage returns one page of tools
func (c *Client) ListToolsPage(ctx context.Context, cursor *string) (*ListToolsResult, error) {
	if st := c.State(); st != StateReady {
		return nil, codes.Newf(codes.SessionNotReady, "session is %s", st)
	}
	raw, err := c.proto.Request(ctx, MethodToolsList, ListToolsParams{Cursor: cursor}, nil)
	if err != nil {
		return nil, err
	}
	var res ListToolsResult
	if err = json.Unmarshal(raw, &res); err != nil {
		return nil, errors.Wrap(err, "invalid tools/list result")
	}
	return &res, nil
}

// Shutdown asks the server to drain and close the session, then drains
// the calls served by this client and closes the transport.
func (c *Client) Shutdown(ctx context.Context) error {
	if c.State() == StateReady {
		c.stop(nil)
		if _, err := c.proto.Request(ctx, MethodShutdown, nil, &protocol.RequestOptions{Timeout: c.opts.DrainTimeout + c.opts.RequestTimeout}); err != nil {
			logger.KV(xlog.DEBUG, "reason", "shutdown_request", "err", err.Error())
		}
	}
	err := c.drain(ctx)
	c.terminate(nil)
	return err
}

// Close closes the session immediately. Pending calls fail with
// TransportLost.
func (c *Client) Close() error {
	c.terminate(nil)
	return nil
}
