// Package transport defines the wire message model and the minimal
// interface the protocol engine needs from a transport.
//
// The engine is agnostic to whether a transport is backed by a socket, a
// local pipe or an in-process queue.
package transport

import (
	"context"

	"github.com/cockroachdb/errors"
)

var (
	// ErrClosed is returned by Send and Receive after the transport was closed
	// or failed.
	ErrClosed = errors.New("transport closed")
	// ErrCloseSignal is returned by Receive when the peer asked for an orderly
	// close, for example end of input on stdio. The transport may still be
	// able to Send, which lets in-flight calls be answered while draining.
	ErrCloseSignal = errors.New("transport close signal")
	// ErrMalformed is returned by Receive when a frame could not be decoded.
	// The transport stays usable.
	ErrMalformed = errors.New("malformed message")
)

//go:generate mockgen -source=transport.go -destination=../../mocks/mocktransport/transport_mock.gen.go -package mocktransport

// Transport is a bidirectional message transport
type Transport interface {
	// Start connects the transport
	Start(ctx context.Context) error
	// Send sends a message. Implementations must be safe for concurrent use.
	Send(ctx context.Context, message *Message) error
	// Receive blocks until a message arrives, the transport closes, or ctx
	// is done.
	Receive(ctx context.Context) (*Message, error)
	// Close closes the transport, unblocking Receive
	Close() error
}
