// Package protocol implements request correlation on top of a transport.
//
// It owns the two id-keyed tables of a session: the in-flight table of
// requests received from the peer, and the pending table of requests sent
// to the peer. Every entry reaches exactly one terminal outcome, be it a
// result, an error, a timeout, a cancellation or a forced close.
//
// Incoming requests are registered synchronously by the read loop, so a
// cancellation notification that follows a request on the wire always
// finds it. Each request is then served in its own goroutine. A handler
// that ignores its context keeps running, but its late result is dropped.
package protocol

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/nanomcp/mcp/codes"
	"github.com/effective-security/nanomcp/mcp/transport"
	"github.com/effective-security/nanomcp/tools"
	"github.com/effective-security/xlog"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"golang.org/x/sync/semaphore"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/nanomcp/mcp/internal", "protocol")

// Method names handled by the correlation layer itself
const (
	MethodCancelled = "notifications/cancelled"
	MethodProgress  = "notifications/progress"
)

// DefaultRequestTimeout is used for outgoing requests without a timeout
const DefaultRequestTimeout = 60 * time.Second

// drainGrace bounds the wait for force-completed calls to be answered
const drainGrace = time.Second

// RequestHandler serves an incoming request. The returned value is
// marshalled as the result, a json.RawMessage is sent as is.
type RequestHandler func(ctx context.Context, req *transport.Request) (any, error)

// NotificationHandler handles an incoming notification
type NotificationHandler func(ctx context.Context, n *transport.Notification) error

// ProgressCallback receives progress notifications for an outgoing request
type ProgressCallback func(progress tools.Progress)

// Options configures a Protocol
type Options struct {
	// Deadline returns the timeout of an incoming request, zero means none.
	// Defaults to MetaTimeout of the params.
	Deadline func(req *transport.Request) time.Duration
	// Admit is called by the read loop before an incoming request is
	// registered. A non-nil error is sent back as the response.
	Admit func(req *transport.Request) error
	// OnResponse is called after the response of a served request was sent
	OnResponse func(req *transport.Request, err error)
	// RequestTimeout is the default timeout of outgoing requests
	RequestTimeout time.Duration
	// MaxConcurrentCalls bounds the number of handlers running at once,
	// zero means unbounded.
	MaxConcurrentCalls int64
}

// RequestOptions are per call options of an outgoing request
type RequestOptions struct {
	// Timeout overrides the default request timeout
	Timeout time.Duration
	// OnProgress asks the peer for progress updates
	OnProgress ProgressCallback
}

type inflight struct {
	call   *PendingCall
	cancel context.CancelCauseFunc
}

// Protocol correlates requests and responses over a transport
type Protocol struct {
	transport transport.Transport
	opts      Options
	sem       *semaphore.Weighted

	nextID atomic.Int64

	mu                   sync.RWMutex
	requestHandlers      map[string]RequestHandler
	notificationHandlers map[string]NotificationHandler
	inflight             map[transport.RequestID]*inflight
	pending              map[transport.RequestID]*PendingCall
	progressHandlers     map[string]ProgressCallback
	changed              chan struct{}
	draining             bool
	closed               error

	// OnError is called for errors that cannot be reported to the peer
	OnError func(error)
}

// New returns a Protocol bound to the transport
func New(tr transport.Transport, opts Options) *Protocol {
	p := &Protocol{
		transport:            tr,
		opts:                 opts,
		requestHandlers:      make(map[string]RequestHandler),
		notificationHandlers: make(map[string]NotificationHandler),
		inflight:             make(map[transport.RequestID]*inflight),
		pending:              make(map[transport.RequestID]*PendingCall),
		progressHandlers:     make(map[string]ProgressCallback),
		changed:              make(chan struct{}),
	}
	if p.opts.RequestTimeout <= 0 {
		p.opts.RequestTimeout = DefaultRequestTimeout
	}
	if p.opts.Deadline == nil {
		p.opts.Deadline = func(req *transport.Request) time.Duration {
			d, _ := MetaTimeout(req.Params)
			return d
		}
	}
	if opts.MaxConcurrentCalls > 0 {
		p.sem = semaphore.NewWeighted(opts.MaxConcurrentCalls)
	}
	return p
}

// Transport returns the bound transport
func (p *Protocol) Transport() transport.Transport {
	return p.transport
}

// SetRequestHandler registers a handler for the method
func (p *Protocol) SetRequestHandler(method string, handler RequestHandler) {
	p.mu.Lock()
	p.requestHandlers[method] = handler
	p.mu.Unlock()
}

// SetNotificationHandler registers a handler for the method
func (p *Protocol) SetNotificationHandler(method string, handler NotificationHandler) {
	p.mu.Lock()
	p.notificationHandlers[method] = handler
	p.mu.Unlock()
}

// Run reads messages until the transport fails or signals a close, or ctx
// is done. On failure all calls are completed with TransportLost and the
// returned error carries that code. On a close signal
// transport.ErrCloseSignal is returned and the calls keep running.
func (p *Protocol) Run(ctx context.Context) error {
	for {
		msg, err := p.transport.Receive(ctx)
		if err != nil {
			switch {
			case errors.Is(err, transport.ErrMalformed):
				logger.KV(xlog.WARNING, "reason", "malformed", "err", err.Error())
				p.respondAsync(transport.NewError(0, codes.New(codes.ParseError, err.Error())))
				continue
			case errors.Is(err, transport.ErrCloseSignal):
				logger.KV(xlog.DEBUG, "status", "close_signal")
				// no response can arrive anymore
				p.failPending(codes.New(codes.TransportLost, "peer closed the transport"))
				return transport.ErrCloseSignal
			case ctx.Err() != nil:
				return ctx.Err()
			}
			lost := codes.Newf(codes.TransportLost, "transport lost: %s", err.Error())
			p.Fail(lost)
			return lost
		}
		p.handleMessage(ctx, msg)
	}
}

func (p *Protocol) handleMessage(ctx context.Context, msg *transport.Message) {
	switch msg.Type {
	case transport.MessageTypeRequest:
		p.handleRequest(ctx, msg.Request)
	case transport.MessageTypeNotification:
		p.handleNotification(ctx, msg.Notification)
	case transport.MessageTypeResponse:
		p.handleResponse(msg.Response)
	}
}

func (p *Protocol) handleRequest(ctx context.Context, req *transport.Request) {
	logger.KV(xlog.DEBUG, "method", req.Method, "id", req.ID)

	if req.JSONRPC != transport.Version {
		p.respondAsync(transport.NewError(req.ID, codes.Newf(codes.InvalidRequest, "unsupported jsonrpc version %q", req.JSONRPC)))
		return
	}

	p.mu.RLock()
	_, dup := p.inflight[req.ID]
	handler := p.requestHandlers[req.Method]
	draining := p.draining
	closed := p.closed
	p.mu.RUnlock()

	if dup {
		logger.KV(xlog.WARNING, "reason", "duplicate_id", "method", req.Method, "id", req.ID)
		p.respondAsync(transport.NewError(req.ID, codes.Newf(codes.DuplicateRequestId, "request %d is already in flight", req.ID)))
		return
	}
	if closed != nil {
		return
	}
	if draining {
		p.respondAsync(transport.NewError(req.ID, codes.New(codes.SessionNotReady, "session is draining")))
		return
	}
	if p.opts.Admit != nil {
		if err := p.opts.Admit(req); err != nil {
			p.respondAsync(transport.NewError(req.ID, err))
			return
		}
	}
	if handler == nil {
		p.respondAsync(transport.NewError(req.ID, codes.Newf(codes.MethodNotFound, "method not found: %s", req.Method)))
		return
	}

	cctx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	entry := &inflight{
		call:   NewPendingCall(req.ID, req.Method),
		cancel: cancel,
	}
	p.mu.Lock()
	p.inflight[req.ID] = entry
	p.mu.Unlock()

	go p.serve(cctx, req, entry, handler)
}

func (p *Protocol) serve(ctx context.Context, req *transport.Request, entry *inflight, handler RequestHandler) {
	call := entry.call
	defer p.removeInflight(req.ID, entry)

	if d := p.opts.Deadline(req); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, d,
			codes.Newf(codes.Timeout, "request %d timed out after %v", req.ID, d))
		defer cancel()
	}
	if token, ok := ProgressToken(req.Params); ok {
		ctx = tools.WithProgressReporter(ctx, func(pr tools.Progress) {
			p.sendProgress(token, pr)
		})
	}

	go func() {
		if p.sem != nil {
			if err := p.sem.Acquire(ctx, 1); err != nil {
				call.Complete(nil, causeOf(ctx))
				return
			}
			defer p.sem.Release(1)
		}

		result, err := invoke(ctx, req, handler)
		if ctx.Err() != nil {
			// the call is already timed out or cancelled
			result, err = nil, causeOf(ctx)
		}
		if !call.Complete(result, err) {
			logger.KV(xlog.DEBUG, "reason", "late_result", "method", req.Method, "id", req.ID)
		}
	}()

	select {
	case <-call.Done():
	case <-ctx.Done():
		call.Complete(nil, causeOf(ctx))
	}

	result, err := call.Result()
	var resp *transport.Message
	if err != nil {
		logger.KV(xlog.DEBUG, "method", req.Method, "id", req.ID, "err", err.Error())
		resp = transport.NewError(req.ID, err)
	} else {
		js, merr := json.Marshal(result)
		if merr != nil {
			resp = transport.NewError(req.ID, codes.Newf(codes.InternalError, "failed to marshal result: %s", merr.Error()))
		} else {
			resp = transport.NewResult(req.ID, js)
		}
	}
	p.send(resp)

	if p.opts.OnResponse != nil {
		p.opts.OnResponse(req, err)
	}
}

func invoke(ctx context.Context, req *transport.Request, handler RequestHandler) (res any, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.ContextKV(ctx, xlog.ERROR, "reason", "panic", "method", req.Method, "err", r)
			res, err = nil, codes.Newf(codes.InternalError, "handler panicked: %v", r)
		}
	}()
	return handler(ctx, req)
}

func causeOf(ctx context.Context) error {
	cause := context.Cause(ctx)
	if cause == nil {
		return nil
	}
	if codes.From(cause) != nil {
		return cause
	}
	if errors.Is(cause, context.DeadlineExceeded) {
		return codes.New(codes.Timeout, cause.Error())
	}
	return codes.New(codes.Cancelled, cause.Error())
}

func (p *Protocol) removeInflight(id transport.RequestID, entry *inflight) {
	entry.cancel(nil)
	p.mu.Lock()
	if cur, ok := p.inflight[id]; ok && cur == entry {
		delete(p.inflight, id)
	}
	p.signalLocked()
	p.mu.Unlock()
}

// signalLocked wakes up Drain. p.mu must be held.
func (p *Protocol) signalLocked() {
	close(p.changed)
	p.changed = make(chan struct{})
}

func (p *Protocol) handleNotification(ctx context.Context, n *transport.Notification) {
	logger.KV(xlog.DEBUG, "method", n.Method)

	var err error
	switch n.Method {
	case MethodCancelled:
		err = p.handleCancelled(n)
	case MethodProgress:
		err = p.handleProgress(n)
	default:
		p.mu.RLock()
		handler := p.notificationHandlers[n.Method]
		p.mu.RUnlock()
		if handler == nil {
			logger.KV(xlog.DEBUG, "reason", "unhandled", "method", n.Method)
			return
		}
		err = handler(ctx, n)
	}
	if err != nil {
		p.handleError(errors.WithMessagef(err, "notification %s", n.Method))
	}
}

func (p *Protocol) handleCancelled(n *transport.Notification) error {
	var params struct {
		RequestID transport.RequestID `json:"requestId"`
		Reason    string              `json:"reason"`
	}
	if err := json.Unmarshal(n.Params, &params); err != nil {
		return errors.Wrap(err, "failed to unmarshal cancelled params")
	}

	p.mu.RLock()
	entry := p.inflight[params.RequestID]
	p.mu.RUnlock()

	if entry == nil {
		logger.KV(xlog.DEBUG, "reason", "cancel_unknown", "id", params.RequestID)
		return nil
	}
	reason := params.Reason
	if reason == "" {
		reason = "request cancelled by peer"
	}
	entry.cancel(codes.New(codes.Cancelled, reason))
	return nil
}

func (p *Protocol) handleProgress(n *transport.Notification) error {
	token := gjson.GetBytes(n.Params, "progressToken")
	if !token.Exists() {
		return errors.New("progress notification without token")
	}
	var pr tools.Progress
	if err := json.Unmarshal(n.Params, &pr); err != nil {
		return errors.Wrap(err, "failed to unmarshal progress params")
	}

	p.mu.RLock()
	handler := p.progressHandlers[tokenKey(token)]
	p.mu.RUnlock()

	if handler != nil {
		handler(pr)
	}
	return nil
}

func (p *Protocol) handleResponse(resp *transport.Response) {
	p.mu.Lock()
	call := p.pending[resp.ID]
	delete(p.pending, resp.ID)
	p.signalLocked()
	p.mu.Unlock()

	if call == nil {
		logger.KV(xlog.WARNING, "reason", "unknown_response", "id", resp.ID)
		return
	}

	var completed bool
	if resp.Error != nil {
		completed = call.Complete(nil, resp.Error.Err())
	} else {
		completed = call.Complete(resp.Result, nil)
	}
	if !completed {
		logger.KV(xlog.WARNING, "reason", "late_response", "method", call.Method, "id", resp.ID)
	}
}

// Request sends a request and waits for its outcome. A timeout or ctx
// cancellation completes the call locally and notifies the peer.
func (p *Protocol) Request(ctx context.Context, method string, params any, opts *RequestOptions) (json.RawMessage, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = p.opts.RequestTimeout
	}

	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}

	id := transport.RequestID(p.nextID.Add(1))
	if opts.OnProgress != nil {
		if raw, err = sjson.SetBytes(raw, "_meta.progressToken", int64(id)); err != nil {
			return nil, errors.Wrap(err, "failed to set progress token")
		}
	}

	call := NewPendingCall(id, method)
	p.mu.Lock()
	if closed := p.closed; closed != nil {
		p.mu.Unlock()
		return nil, closed
	}
	p.pending[id] = call
	if opts.OnProgress != nil {
		p.progressHandlers[id.String()] = opts.OnProgress
	}
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.pending, id)
		delete(p.progressHandlers, id.String())
		p.signalLocked()
		p.mu.Unlock()
	}()

	logger.KV(xlog.DEBUG, "method", method, "id", id)
	if err := p.transport.Send(ctx, transport.NewRequest(id, method, raw)); err != nil {
		call.Complete(nil, err)
		return nil, errors.WithMessagef(err, "failed to send %s", method)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-call.Done():
	case <-ctx.Done():
		if call.Complete(nil, codes.New(codes.Cancelled, ctx.Err().Error())) {
			p.sendCancel(id, ctx.Err().Error())
		}
	case <-timer.C:
		reason := "request timed out after " + timeout.String()
		if call.Complete(nil, codes.New(codes.Timeout, reason)) {
			p.sendCancel(id, reason)
		}
	}

	res, err := call.Result()
	if err != nil {
		return nil, err
	}
	js, _ := res.(json.RawMessage)
	return js, nil
}

func marshalParams(params any) (json.RawMessage, error) {
	switch v := params.(type) {
	case nil:
		return json.RawMessage("{}"), nil
	case json.RawMessage:
		if len(v) == 0 {
			return json.RawMessage("{}"), nil
		}
		return v, nil
	}
	js, err := json.Marshal(params)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal params")
	}
	return js, nil
}

// Notify sends a notification
func (p *Protocol) Notify(ctx context.Context, method string, params any) error {
	raw, err := marshalParams(params)
	if err != nil {
		return err
	}
	return p.transport.Send(ctx, transport.NewNotification(method, raw))
}

func (p *Protocol) sendCancel(id transport.RequestID, reason string) {
	params := map[string]any{
		"requestId": id,
		"reason":    reason,
	}
	if err := p.Notify(context.Background(), MethodCancelled, params); err != nil {
		logger.KV(xlog.DEBUG, "reason", "cancel_not_sent", "id", id, "err", err.Error())
	}
}

func (p *Protocol) sendProgress(token gjson.Result, pr tools.Progress) {
	params := map[string]any{
		"progressToken": json.RawMessage(token.Raw),
		"progress":      pr.Progress,
	}
	if pr.Total > 0 {
		params["total"] = pr.Total
	}
	if pr.Message != "" {
		params["message"] = pr.Message
	}
	if err := p.Notify(context.Background(), MethodProgress, params); err != nil {
		logger.KV(xlog.DEBUG, "reason", "progress_not_sent", "err", err.Error())
	}
}

func (p *Protocol) send(msg *transport.Message) {
	if err := p.transport.Send(context.Background(), msg); err != nil {
		p.handleError(errors.WithMessagef(err, "failed to send response %d", msg.MessageID()))
	}
}

func (p *Protocol) respondAsync(msg *transport.Message) {
	go p.send(msg)
}

func (p *Protocol) handleError(err error) {
	logger.KV(xlog.ERROR, "err", err.Error())
	if p.OnError != nil {
		p.OnError(err)
	}
}

// InFlight returns the number of incoming requests not yet answered
func (p *Protocol) InFlight() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.inflight)
}

// Pending returns the number of outgoing requests awaiting a response
func (p *Protocol) Pending() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.pending)
}

// Drain stops accepting requests and waits until all in-flight requests,
// except the listed ones, are answered and all outgoing calls are
// completed. When ctx is done first the remaining requests and calls are
// completed with Cancelled, and ctx's error is returned.
func (p *Protocol) Drain(ctx context.Context, except ...transport.RequestID) error {
	p.mu.Lock()
	p.draining = true
	p.mu.Unlock()

	if p.waitIdle(ctx.Done(), except) {
		return nil
	}

	reason := codes.New(codes.Cancelled, "session is draining")
	var calls []*PendingCall
	n := 0
	p.mu.Lock()
	for id, entry := range p.inflight {
		if contains(except, id) {
			continue
		}
		entry.cancel(reason)
		n++
	}
	for id, call := range p.pending {
		delete(p.pending, id)
		calls = append(calls, call)
	}
	p.signalLocked()
	p.mu.Unlock()

	for _, call := range calls {
		if call.Complete(nil, reason) {
			p.sendCancel(call.ID, reason.Message)
		}
	}
	logger.KV(xlog.INFO, "status", "drain_forced", "cancelled", n, "pending", len(calls))

	gctx, gcancel := context.WithTimeout(context.Background(), drainGrace)
	defer gcancel()
	p.waitIdle(gctx.Done(), except)
	return errors.WithStack(ctx.Err())
}

func (p *Protocol) waitIdle(stop <-chan struct{}, except []transport.RequestID) bool {
	for {
		p.mu.RLock()
		n := len(p.pending)
		for id := range p.inflight {
			if !contains(except, id) {
				n++
			}
		}
		changed := p.changed
		p.mu.RUnlock()

		if n == 0 {
			return true
		}
		select {
		case <-changed:
		case <-stop:
			return false
		}
	}
}

// Fail completes every in-flight and pending call with the error, and
// rejects further requests. It is called when the transport is lost.
func (p *Protocol) Fail(err error) {
	p.mu.Lock()
	if p.closed == nil {
		p.closed = err
	}
	for _, entry := range p.inflight {
		entry.cancel(err)
	}
	for id, call := range p.pending {
		call.Complete(nil, err)
		delete(p.pending, id)
	}
	p.signalLocked()
	p.mu.Unlock()
}

func (p *Protocol) failPending(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, call := range p.pending {
		call.Complete(nil, err)
		delete(p.pending, id)
	}
	p.signalLocked()
}

// MetaTimeout returns params._meta.timeoutMs
func MetaTimeout(params json.RawMessage) (time.Duration, bool) {
	if len(params) == 0 {
		return 0, false
	}
	v := gjson.GetBytes(params, "_meta.timeoutMs")
	if !v.Exists() || v.Int() <= 0 {
		return 0, false
	}
	return time.Duration(v.Int()) * time.Millisecond, true
}

// ProgressToken returns params._meta.progressToken
func ProgressToken(params json.RawMessage) (gjson.Result, bool) {
	if len(params) == 0 {
		return gjson.Result{}, false
	}
	v := gjson.GetBytes(params, "_meta.progressToken")
	if !v.Exists() || v.Type == gjson.Null {
		return gjson.Result{}, false
	}
	return v, true
}

// tokenKey normalizes a token so that 7 and "7" address the same call
func tokenKey(token gjson.Result) string {
	return token.String()
}

func contains(ids []transport.RequestID, id transport.RequestID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
