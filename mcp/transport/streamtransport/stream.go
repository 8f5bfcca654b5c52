// Package streamtransport carries newline-delimited JSON messages over a
// pair of byte streams, such as the stdin and stdout of a process.
package streamtransport

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/nanomcp/mcp/transport"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/nanomcp/mcp/transport", "streamtransport")

// MaxMessageSize is the default limit of a line
const MaxMessageSize = 16 * 1024 * 1024

type frame struct {
	msg *transport.Message
	err error
}

// Transport reads messages from r and writes them to w, one per line
type Transport struct {
	r io.Reader
	w io.Writer
	c io.Closer

	maxSize int

	wmu sync.Mutex

	startOnce sync.Once
	frames    chan frame

	closeOnce sync.Once
	closed    chan struct{}

	mu     sync.Mutex
	failed error
}

// New returns a transport over the streams. If closer is not nil, it is
// closed by Close.
func New(r io.Reader, w io.Writer, closer io.Closer) *Transport {
	return &Transport{
		r:       r,
		w:       w,
		c:       closer,
		maxSize: MaxMessageSize,
		frames:  make(chan frame, 16),
		closed:  make(chan struct{}),
	}
}

// WithMaxMessageSize sets the limit of a line, it must be called before Start.
// Longer lines are dropped and received as transport.ErrMalformed.
func (t *Transport) WithMaxMessageSize(n int) *Transport {
	if n > 0 {
		t.maxSize = n
	}
	return t
}

// NewStdio returns a transport over os.Stdin and os.Stdout
func NewStdio() *Transport {
	return New(os.Stdin, os.Stdout, nil)
}

// Start implements Transport.Start, it starts the reader
func (t *Transport) Start(ctx context.Context) error {
	select {
	case <-t.closed:
		return transport.ErrClosed
	default:
	}
	t.startOnce.Do(func() {
		go t.readLoop()
	})
	return nil
}

func (t *Transport) readLoop() {
	defer close(t.frames)

	reader := bufio.NewReaderSize(t.r, 64*1024)
	for {
		line, tooLarge, err := readLine(reader, t.maxSize)
		if tooLarge {
			logger.KV(xlog.WARNING, "reason", "message_too_large", "limit", t.maxSize)
			if !t.deliver(frame{err: errors.Wrapf(transport.ErrMalformed, "message exceeds %d bytes", t.maxSize)}) {
				return
			}
		} else if len(line) > 0 {
			var f frame
			f.msg, f.err = transport.Decode(line)
			if f.err != nil {
				f.msg = nil
				f.err = errors.Wrapf(transport.ErrMalformed, "%v", f.err)
			}
			if !t.deliver(f) {
				return
			}
		}
		if err != nil {
			if err == io.EOF {
				logger.KV(xlog.DEBUG, "status", "eof")
				t.deliver(frame{err: transport.ErrCloseSignal})
				return
			}
			t.setFailed(err)
			t.deliver(frame{err: errors.WithMessage(transport.ErrClosed, err.Error())})
			return
		}
	}
}

func (t *Transport) deliver(f frame) bool {
	select {
	case t.frames <- f:
		return true
	case <-t.closed:
		return false
	}
}

// readLine returns the next non-empty line without the line terminator.
// The rest of a line longer than limit is skipped and tooLarge is set.
func readLine(r *bufio.Reader, limit int) (line []byte, tooLarge bool, err error) {
	for {
		chunk, isPrefix, err := r.ReadLine()
		if !tooLarge {
			line = append(line, chunk...)
			if len(line) > limit {
				line, tooLarge = nil, true
			}
		}
		if err != nil {
			return line, tooLarge, err
		}
		if !isPrefix {
			if len(line) == 0 && !tooLarge {
				continue
			}
			return line, tooLarge, nil
		}
	}
}

func (t *Transport) setFailed(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failed == nil {
		t.failed = err
	}
}

// Send implements Transport.Send
func (t *Transport) Send(ctx context.Context, message *transport.Message) error {
	select {
	case <-t.closed:
		return transport.ErrClosed
	default:
	}

	js, err := json.Marshal(message)
	if err != nil {
		return errors.Wrap(err, "failed to marshal message")
	}
	js = append(js, '\n')

	t.wmu.Lock()
	defer t.wmu.Unlock()
	if _, err = t.w.Write(js); err != nil {
		t.setFailed(err)
		return errors.WithMessage(transport.ErrClosed, err.Error())
	}
	if f, ok := t.w.(interface{ Flush() error }); ok {
		if err = f.Flush(); err != nil {
			return errors.WithMessage(transport.ErrClosed, err.Error())
		}
	}
	return nil
}

// Receive implements Transport.Receive.
// End of input is reported as transport.ErrCloseSignal.
func (t *Transport) Receive(ctx context.Context) (*transport.Message, error) {
	select {
	case <-t.closed:
		return nil, transport.ErrClosed
	default:
	}

	select {
	case f, ok := <-t.frames:
		if !ok {
			return nil, t.endErr()
		}
		return f.msg, f.err
	case <-t.closed:
		return nil, transport.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *Transport) endErr() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failed != nil {
		return errors.WithMessage(transport.ErrClosed, t.failed.Error())
	}
	return transport.ErrCloseSignal
}

// Close implements Transport.Close
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		if t.c != nil {
			err = t.c.Close()
		}
	})
	return err
}
