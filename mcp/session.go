package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/nanomcp/callbacks"
	"github.com/effective-security/nanomcp/mcp/codes"
	"github.com/effective-security/nanomcp/mcp/internal/protocol"
	"github.com/effective-security/nanomcp/mcp/transport"
	"github.com/effective-security/nanomcp/pkg/metricskey"
	"github.com/effective-security/nanomcp/registry"
	"github.com/effective-security/nanomcp/schema"
	"github.com/effective-security/nanomcp/tools"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/nanomcp", "mcp")

// session is the state shared by both ends of a connection
type session struct {
	role string
	opts Options
	reg  *registry.Registry
	cb   tools.Callback

	state       atomic.Int32
	initialized atomic.Bool
	proto       *protocol.Protocol

	mu       sync.RWMutex
	id       string
	version  string
	peer     Implementation
	peerCaps Capabilities

	readyOnce sync.Once
	ready     chan struct{}

	drainOnce sync.Once
	drained   chan struct{}
	drainErr  error

	// stopping is set once the session has committed to close, stopErr is
	// the reason to report when the peer closes the transport first
	stopping atomic.Bool
	stopErr  atomic.Pointer[codes.Error]

	closeOnce sync.Once
	closing   atomic.Bool
	done      chan struct{}
	closeErr  error

	unwatch func()
}

func newSession(role string, reg *registry.Registry, opts []Option) *session {
	o := newOptions(opts)
	cb := o.Callback
	if cb == nil {
		cb = callbacks.NewNoop()
	}
	return &session{
		role:    role,
		opts:    o,
		reg:     reg,
		cb:      cb,
		ready:   make(chan struct{}),
		drained: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// State returns the lifecycle state of the session
func (s *session) State() State {
	return State(s.state.Load())
}

func (s *session) casState(from, to State) bool {
	if s.state.CompareAndSwap(int32(from), int32(to)) {
		logger.KV(xlog.DEBUG, "role", s.role, "session", s.SessionID(), "from", from, "to", to)
		return true
	}
	return false
}

// SessionID returns the session id
func (s *session) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// ProtocolVersion returns the negotiated protocol version
func (s *session) ProtocolVersion() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Peer returns the implementation info of the peer
func (s *session) Peer() Implementation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.peer
}

// PeerCapabilities returns the capabilities announced by the peer
func (s *session) PeerCapabilities() Capabilities {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.peerCaps
}

// Ready is closed when the session becomes Ready
func (s *session) Ready() <-chan struct{} {
	return s.ready
}

// Done is closed when the session is Closed
func (s *session) Done() <-chan struct{} {
	return s.done
}

// Err returns the error the session was closed with
func (s *session) Err() error {
	select {
	case <-s.done:
		return s.closeErr
	default:
		return nil
	}
}

func (s *session) markReady() {
	if s.casState(StateHandshaking, StateReady) {
		s.readyOnce.Do(func() { close(s.ready) })
		logger.KV(xlog.INFO,
			"role", s.role,
			"status", "ready",
			"session", s.SessionID(),
			"version", s.ProtocolVersion(),
			"peer", s.Peer().Name,
		)
	}
}

func (s *session) newProtocol(tr transport.Transport, admit func(req *transport.Request) error, onResponse func(req *transport.Request, err error)) {
	s.proto = protocol.New(tr, protocol.Options{
		Deadline:           s.deadline,
		Admit:              admit,
		OnResponse:         onResponse,
		RequestTimeout:     s.opts.RequestTimeout,
		MaxConcurrentCalls: s.opts.MaxConcurrentCalls,
	})
	s.proto.SetRequestHandler(MethodPing, s.handlePing)
	if s.reg != nil {
		s.proto.SetRequestHandler(MethodToolsList, s.handleListTools)
		s.proto.SetRequestHandler(MethodToolsCall, s.handleCallTool)
		s.unwatch = s.reg.Watch(s.toolsChanged)
	}
}

// deadline of an incoming request: tool calls take _meta.timeoutMs or the
// configured default, other methods are not limited.
func (s *session) deadline(req *transport.Request) time.Duration {
	if req.Method != MethodToolsCall {
		return 0
	}
	if d, ok := protocol.MetaTimeout(req.Params); ok {
		return d
	}
	return s.opts.CallTimeout
}

func (s *session) toolsChanged() {
	if s.State() != StateReady {
		return
	}
	// watchers run under the registry lock
	go func() {
		if err := s.proto.Notify(context.Background(), NotificationToolsListChanged, nil); err != nil {
			logger.KV(xlog.DEBUG, "reason", "list_changed_not_sent", "err", err.Error())
		}
	}()
}

func (s *session) handlePing(ctx context.Context, req *transport.Request) (any, error) {
	return struct{}{}, nil
}

func (s *session) handleListTools(ctx context.Context, req *transport.Request) (any, error) {
	var params ListToolsParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, codes.Newf(codes.InvalidRequest, "invalid tools/list params: %s", err.Error())
		}
	}

	list := s.reg.List()
	start := 0
	if params.Cursor != nil && *params.Cursor != "" {
		name, err := decodeCursor(*params.Cursor)
		if err != nil {
			return nil, codes.Newf(codes.InvalidRequest, "invalid cursor: %s", *params.Cursor)
		}
		idx := slices.IndexFunc(list, func(t *schema.Tool) bool { return t.Name == name })
		if idx < 0 {
			return nil, codes.Newf(codes.InvalidRequest, "invalid cursor: %s", *params.Cursor)
		}
		start = idx + 1
	}

	end := len(list)
	var next *string
	if size := s.opts.PageSize; size > 0 && start+size < len(list) {
		end = start + size
		cursor := encodeCursor(list[end-1].Name)
		next = &cursor
	}

	res := ListToolsResult{
		Tools:       make([]ToolInfo, 0, end-start),
		NextCursor:  next,
		Fingerprint: schema.Fingerprint(list...),
	}
	for _, t := range list[start:end] {
		res.Tools = append(res.Tools, NewToolInfo(t))
	}
	return res, nil
}

// NewToolInfo returns the tools/list entry of the schema
func NewToolInfo(t *schema.Tool) ToolInfo {
	return ToolInfo{
		Name:         t.Name,
		Description:  t.Description,
		InputSchema:  t.JSONSchema(),
		OutputSchema: t.OutputSchema(),
	}
}

func encodeCursor(name string) string {
	return base64.StdEncoding.EncodeToString([]byte(name))
}

func decodeCursor(cursor string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return "", errors.WithStack(err)
	}
	return string(b), nil
}

func (s *session) handleCallTool(ctx context.Context, req *transport.Request) (any, error) {
	var params CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, codes.Newf(codes.InvalidRequest, "invalid tools/call params: %s", err.Error())
	}
	name := params.Name
	if name == "" {
		return nil, codes.New(codes.InvalidRequest, "tool name is required")
	}

	ctx = tools.WithCallInfo(ctx, tools.CallInfo{
		SessionID: s.SessionID(),
		RequestID: int64(req.ID),
		Tool:      name,
	})

	def, err := s.reg.Resolve(name)
	if err != nil {
		metricskey.StatsToolCallsNotFound.IncrCounter(1, name)
		s.cb.OnToolNotFound(ctx, name)
		return nil, codes.Newf(codes.ToolNotFound, "tool %q is not registered", name).
			WithData(map[string]any{"tool": name})
	}

	started := time.Now()
	s.cb.OnToolStart(ctx, def.Schema, params.Arguments)

	res, err := def.Call(ctx, params.Arguments)
	metricskey.PerfToolCall.MeasureSince(started, name)
	if ctx.Err() != nil {
		res, err = nil, context.Cause(ctx)
	}
	if err != nil {
		countFailure(name, err)
		s.cb.OnToolError(ctx, def.Schema, params.Arguments, err)
		return nil, err
	}

	metricskey.StatsToolCallsSucceeded.IncrCounter(1, name)
	s.cb.OnToolEnd(ctx, def.Schema, params.Arguments, res)
	return res, nil
}

func countFailure(name string, err error) {
	switch codes.CodeOf(err) {
	case codes.SchemaValidationError:
		metricskey.StatsToolCallsInvalid.IncrCounter(1, name)
	case codes.Timeout:
		metricskey.StatsToolCallsTimeout.IncrCounter(1, name)
	case codes.Cancelled:
		metricskey.StatsToolCallsCancelled.IncrCounter(1, name)
	default:
		metricskey.StatsToolCallsFailed.IncrCounter(1, name)
	}
}

// CallTool invokes a tool of the peer and returns its result in wire form
func (s *session) CallTool(ctx context.Context, name string, args any, opts ...CallOption) (json.RawMessage, error) {
	if st := s.State(); st != StateReady {
		return nil, codes.Newf(codes.SessionNotReady, "session is %s", st)
	}

	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}

	params := CallToolParams{Name: name}
	if args != nil {
		raw, ok := args.(json.RawMessage)
		if !ok {
			js, err := json.Marshal(args)
			if err != nil {
				return nil, errors.Wrap(err, "failed to marshal arguments")
			}
			raw = js
		}
		params.Arguments = raw
	}
	if o.timeout > 0 {
		params.Meta = &RequestMeta{TimeoutMs: o.timeout.Milliseconds()}
	}

	return s.proto.Request(ctx, MethodToolsCall, params, &protocol.RequestOptions{
		Timeout:    o.timeout,
		OnProgress: o.onProgress,
	})
}

// Ping checks the peer is responsive
func (s *session) Ping(ctx context.Context) error {
	if s.proto == nil {
		return codes.New(codes.SessionNotReady, "session is not connected")
	}
	_, err := s.proto.Request(ctx, MethodPing, nil, nil)
	return err
}

// drain moves the session to Draining and waits for in-flight requests and
// outgoing calls. Only the first call drains, others wait for it. It fails
// only when ctx ends the drain.
func (s *session) drain(ctx context.Context, except ...transport.RequestID) error {
	s.drainOnce.Do(func() {
		defer close(s.drained)
		if !s.casState(StateReady, StateDraining) && !s.casState(StateHandshaking, StateDraining) {
			return
		}
		logger.KV(xlog.INFO, "role", s.role, "status", "draining", "session", s.SessionID(), "inflight", s.proto.InFlight())

		dctx, cancel := context.WithTimeout(ctx, s.opts.DrainTimeout)
		defer cancel()
		err := s.proto.Drain(dctx, except...)
		// the drain timeout forcing completion is an orderly close
		if err != nil && ctx.Err() != nil {
			s.drainErr = err
		}
	})

	select {
	case <-s.drained:
		return s.drainErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stop commits the session to close with the reason, nil for an orderly close
func (s *session) stop(reason *codes.Error) {
	if reason != nil {
		s.stopErr.CompareAndSwap(nil, reason)
	}
	s.stopping.Store(true)
}

// stopReason returns the committed close reason
func (s *session) stopReason() error {
	if perr := s.stopErr.Load(); perr != nil {
		return perr
	}
	return nil
}

// terminate closes the session. The first call wins, err is the reason
// reported by Err.
func (s *session) terminate(err error) {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		s.closeErr = err
		s.state.Store(int32(StateClosed))
		if s.unwatch != nil {
			s.unwatch()
		}
		if s.proto != nil {
			s.proto.Fail(codes.New(codes.TransportLost, "session closed"))
			if cerr := s.proto.Transport().Close(); cerr != nil {
				logger.KV(xlog.DEBUG, "reason", "close", "err", cerr.Error())
			}
		}

		status := "ok"
		if err != nil {
			status = string(codes.CodeOf(err))
		}
		metricskey.StatsSessionsClosed.IncrCounter(1, status)
		logger.KV(xlog.INFO, "role", s.role, "status", "closed", "session", s.SessionID(), "reason", status)
		close(s.done)
	})
}
