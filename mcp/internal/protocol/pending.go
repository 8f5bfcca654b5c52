package protocol

import (
	"sync"
	"time"

	"github.com/effective-security/nanomcp/mcp/transport"
)

// PendingCall is a request awaiting its terminal outcome.
// The outcome is set exactly once: the first of response, timeout,
// cancellation or forced close wins.
type PendingCall struct {
	ID     transport.RequestID
	Method string
	Issued time.Time

	once   sync.Once
	done   chan struct{}
	result any
	err    error
}

// NewPendingCall returns a call issued now
func NewPendingCall(id transport.RequestID, method string) *PendingCall {
	return &PendingCall{
		ID:     id,
		Method: method,
		Issued: time.Now(),
		done:   make(chan struct{}),
	}
}

// Complete sets the outcome. It returns false if the call was already
// completed, in which case the arguments are discarded.
func (c *PendingCall) Complete(result any, err error) bool {
	completed := false
	c.once.Do(func() {
		c.result = result
		c.err = err
		completed = true
		close(c.done)
	})
	return completed
}

// Done is closed when the call is completed
func (c *PendingCall) Done() <-chan struct{} {
	return c.done
}

// Completed reports whether the outcome is set
func (c *PendingCall) Completed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Result blocks until the call is completed and returns its outcome
func (c *PendingCall) Result() (any, error) {
	<-c.done
	return c.result, c.err
}

// Elapsed returns the time since the call was issued
func (c *PendingCall) Elapsed() time.Duration {
	return time.Since(c.Issued)
}
