// Package localtransport provides an in-process transport pair.
//
// Messages sent on one end are received on the other. Every message is
// encoded to JSON and decoded again on delivery, so both ends observe
// exactly what a wire transport would carry.
package localtransport

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/nanomcp/mcp/transport"
)

// DefaultQueueSize is the number of messages buffered per direction
const DefaultQueueSize = 64

// Transport is one end of an in-process connection
type Transport struct {
	name  string
	inbox chan *transport.Message
	peer  *Transport

	closeOnce  sync.Once
	closed     chan struct{}
	hangupOnce sync.Once
	hangup     chan struct{}

	mu      sync.RWMutex
	started bool
	sent    int
	recv    int
}

// NewPair returns two connected ends
func NewPair() (*Transport, *Transport) {
	return NewPairSize(DefaultQueueSize)
}

// NewPairSize returns two connected ends with the given queue size
func NewPairSize(size int) (*Transport, *Transport) {
	a := newEnd("a", size)
	b := newEnd("b", size)
	a.peer = b
	b.peer = a
	return a, b
}

func newEnd(name string, size int) *Transport {
	return &Transport{
		name:   name,
		inbox:  make(chan *transport.Message, size),
		closed: make(chan struct{}),
		hangup: make(chan struct{}),
	}
}

// Start implements Transport.Start
func (t *Transport) Start(ctx context.Context) error {
	select {
	case <-t.closed:
		return transport.ErrClosed
	default:
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.started = true
	return nil
}

// Started reports whether Start was called
func (t *Transport) Started() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.started
}

// Send implements Transport.Send
func (t *Transport) Send(ctx context.Context, message *transport.Message) error {
	select {
	case <-t.closed:
		return transport.ErrClosed
	case <-t.peer.closed:
		return transport.ErrClosed
	default:
	}

	// copy through the wire representation
	js, err := json.Marshal(message)
	if err != nil {
		return errors.Wrap(err, "failed to marshal message")
	}
	delivered, err := transport.Decode(js)
	if err != nil {
		return errors.Wrap(err, "failed to decode message")
	}

	select {
	case t.peer.inbox <- delivered:
		t.mu.Lock()
		t.sent++
		t.mu.Unlock()
		return nil
	case <-t.closed:
		return transport.ErrClosed
	case <-t.peer.closed:
		return transport.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive implements Transport.Receive.
// Queued messages are delivered before a close signal is reported.
func (t *Transport) Receive(ctx context.Context) (*transport.Message, error) {
	select {
	case m := <-t.inbox:
		t.countRecv()
		return m, nil
	default:
	}

	select {
	case m := <-t.inbox:
		t.countRecv()
		return m, nil
	case <-t.closed:
		return nil, transport.ErrClosed
	case <-t.peer.closed:
		if m, ok := t.pending(); ok {
			return m, nil
		}
		return nil, transport.ErrClosed
	case <-t.peer.hangup:
		if m, ok := t.pending(); ok {
			return m, nil
		}
		return nil, transport.ErrCloseSignal
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// pending returns a message that raced with a close or hangup of the peer
func (t *Transport) pending() (*transport.Message, bool) {
	select {
	case m := <-t.inbox:
		t.countRecv()
		return m, true
	default:
		return nil, false
	}
}

func (t *Transport) countRecv() {
	t.mu.Lock()
	t.recv++
	t.mu.Unlock()
}

// Hangup signals an orderly close to the peer: the peer's Receive returns
// ErrCloseSignal once its queue is drained, while both ends can still Send.
func (t *Transport) Hangup() {
	t.hangupOnce.Do(func() {
		close(t.hangup)
	})
}

// Close implements Transport.Close. Both ends observe ErrClosed afterwards.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closed)
	})
	return nil
}

// Peer returns the other end
func (t *Transport) Peer() *Transport {
	return t.peer
}

// Stats returns the number of messages sent and received by this end
func (t *Transport) Stats() (sent, received int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sent, t.recv
}

func (t *Transport) String() string {
	return "local:" + t.name
}
