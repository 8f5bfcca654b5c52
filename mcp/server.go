// Package mcp implements the session layer of the tool-calling protocol.
//
// A Server exposes the tools of a registry to one connected peer. A Client
// connects to a server, performs the handshake and calls its tools. A client
// bound to its own registry serves tool calls from the server as well.
//
// A session moves through Uninitialized, Handshaking, Ready, Draining and
// Closed. Requests are served only while Ready; everything else is answered
// with SessionNotReady.
package mcp

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/nanomcp/mcp/codes"
	"github.com/effective-security/nanomcp/mcp/transport"
	"github.com/effective-security/nanomcp/pkg/metricskey"
	"github.com/effective-security/nanomcp/registry"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
)

// Server serves the tools of a registry over a single session
type Server struct {
	*session
}

// NewServer returns a server for the registry
func NewServer(reg *registry.Registry, opts ...Option) *Server {
	if reg == nil {
		reg = registry.New()
	}
	s := &Server{session: newSession("server", reg, opts)}
	s.id = uuid.NewString()
	return s
}

// Registry returns the served registry
func (s *Server) Registry() *registry.Registry {
	return s.reg
}

// Serve starts the transport and serves the session until it is closed.
// It returns nil after an orderly shutdown, and an error carrying
// HandshakeFailed or TransportLost otherwise.
func (s *Server) Serve(ctx context.Context, tr transport.Transport) error {
	if !s.casState(StateUninitialized, StateHandshaking) {
		return errors.Errorf("server is %s", s.State())
	}
	s.newProtocol(tr, s.admit, s.onResponse)
	s.proto.SetRequestHandler(MethodInitialize, s.handleInitialize)
	s.proto.SetRequestHandler(MethodShutdown, s.handleShutdown)
	s.proto.SetNotificationHandler(NotificationInitialized, s.handleInitialized)

	if err := tr.Start(ctx); err != nil {
		lost := codes.Newf(codes.TransportLost, "failed to start transport: %s", err.Error())
		s.terminate(lost)
		return lost
	}

	metricskey.StatsSessionsOpened.IncrCounter(1, "ok")
	logger.KV(xlog.INFO, "status", "serving", "session", s.SessionID(), "tools", s.reg.Len())

	timer := time.AfterFunc(s.opts.HandshakeTimeout, func() {
		if s.State() == StateHandshaking && !s.initialized.Load() {
			s.terminate(codes.Newf(codes.HandshakeFailed, "no initialize request within %v", s.opts.HandshakeTimeout))
		}
	})
	defer timer.Stop()

	err := s.proto.Run(ctx)
	switch {
	case s.closing.Load():
		// closed by the session itself
	case s.stopping.Load():
		// the peer closed after the shutdown or handshake failure answer
		if s.stopErr.Load() == nil {
			_ = s.drain(context.Background())
		}
		s.terminate(s.stopReason())
	case errors.Is(err, transport.ErrCloseSignal), ctx.Err() != nil:
		logger.KV(xlog.INFO, "status", "peer_closed", "session", s.SessionID())
		_ = s.Shutdown(context.Background())
	default:
		s.terminate(err)
	}

	<-s.done
	return s.closeErr
}

// Shutdown drains the session and closes it. In-flight calls and outgoing
// calls still running after the drain timeout, or when ctx is done, are
// completed with Cancelled. It returns ctx's error when ctx ended the drain.
func (s *Server) Shutdown(ctx context.Context) error {
	switch s.State() {
	case StateUninitialized:
		s.terminate(nil)
		return nil
	case StateClosed:
		return nil
	}
	err := s.drain(ctx)
	s.terminate(nil)
	return err
}

func (s *Server) admit(req *transport.Request) error {
	metricskey.StatsProtocolRequests.IncrCounter(1, req.Method)

	st := s.State()
	switch req.Method {
	case MethodInitialize:
		if st != StateHandshaking || s.initialized.Load() {
			return codes.New(codes.InvalidRequest, "session is already initialized")
		}
		return nil
	case MethodPing:
		return nil
	}

	switch st {
	case StateReady:
		return nil
	case StateHandshaking:
		// the initialized notification may be overtaken by the first request
		if s.initialized.Load() && strings.HasPrefix(req.Method, "tools/") {
			s.markReady()
			return nil
		}
		return codes.New(codes.SessionNotReady, "session is not initialized")
	default:
		return codes.Newf(codes.SessionNotReady, "session is %s", st)
	}
}

func (s *Server) onResponse(req *transport.Request, err error) {
	switch req.Method {
	case MethodInitialize:
		if codes.CodeOf(err) == codes.HandshakeFailed {
			s.terminate(err)
		}
	case MethodShutdown:
		s.terminate(s.stopReason())
	}
}

func (s *Server) handleInitialize(ctx context.Context, req *transport.Request) (any, error) {
	var params InitializeParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		perr := codes.Newf(codes.HandshakeFailed, "invalid initialize params: %s", err.Error())
		s.stop(perr)
		return nil, perr
	}
	if !slices.Contains(s.opts.Versions, params.ProtocolVersion) {
		logger.KV(xlog.WARNING,
			"reason", "unsupported_version",
			"session", s.SessionID(),
			"requested", params.ProtocolVersion,
			"peer", params.ClientInfo.Name,
		)
		perr := codes.Newf(codes.HandshakeFailed, "unsupported protocol version %q", params.ProtocolVersion).
			WithData(map[string]any{
				"requested": params.ProtocolVersion,
				"supported": s.opts.Versions,
			})
		s.stop(perr)
		return nil, perr
	}

	s.mu.Lock()
	s.version = params.ProtocolVersion
	s.peer = params.ClientInfo
	s.peerCaps = params.Capabilities
	s.mu.Unlock()
	s.initialized.Store(true)

	logger.KV(xlog.DEBUG, "status", "initialize", "session", s.SessionID(), "version", params.ProtocolVersion, "peer", params.ClientInfo.Name)

	return InitializeResult{
		ProtocolVersion: params.ProtocolVersion,
		Capabilities: Capabilities{
			Tools: &ToolsCapability{ListChanged: true},
		},
		ServerInfo: Implementation{
			Name:    s.opts.Name,
			Version: s.opts.Version,
		},
		Instructions: s.opts.Instructions,
		Meta:         &InitializeMeta{SessionID: s.SessionID()},
	}, nil
}

func (s *Server) handleInitialized(ctx context.Context, n *transport.Notification) error {
	if !s.initialized.Load() {
		logger.KV(xlog.WARNING, "reason", "initialized_before_initialize", "session", s.SessionID())
		return nil
	}
	s.markReady()
	return nil
}

// handleShutdown answers after the other in-flight requests are drained
func (s *Server) handleShutdown(ctx context.Context, req *transport.Request) (any, error) {
	s.stop(nil)
	_ = s.drain(context.WithoutCancel(ctx), req.ID)
	return struct{}{}, nil
}
