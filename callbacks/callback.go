package callbacks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/effective-security/nanomcp/schema"
	"github.com/effective-security/nanomcp/tools"
	"github.com/effective-security/xlog"
)

// ensure that the callbacks implement the correct interfaces
var (
	_ tools.Callback = (*Noop)(nil)
	_ tools.Callback = (*Printer)(nil)
	_ tools.Callback = (*PackageLogger)(nil)
	_ tools.Callback = (*Fanout)(nil)
)

// Mode defines the mode for callback printing
type Mode int

const (
	// ModeDefault is the default mode for callback printing
	ModeDefault Mode = iota
	// ModeVerbose is the verbose mode for callback printing
	ModeVerbose
)

// Fanout is a callback handler that forwards the events to multiple callbacks.
type Fanout struct {
	callbacks []tools.Callback
}

func NewFanout(callbacks ...tools.Callback) *Fanout {
	return &Fanout{callbacks: callbacks}
}

func (l *Fanout) Add(callback tools.Callback) {
	l.callbacks = append(l.callbacks, callback)
}

func (l *Fanout) OnToolStart(ctx context.Context, tool *schema.Tool, args json.RawMessage) {
	for _, callback := range l.callbacks {
		callback.OnToolStart(ctx, tool, args)
	}
}

func (l *Fanout) OnToolEnd(ctx context.Context, tool *schema.Tool, args json.RawMessage, result json.RawMessage) {
	for _, callback := range l.callbacks {
		callback.OnToolEnd(ctx, tool, args, result)
	}
}

func (l *Fanout) OnToolError(ctx context.Context, tool *schema.Tool, args json.RawMessage, err error) {
	for _, callback := range l.callbacks {
		callback.OnToolError(ctx, tool, args, err)
	}
}

func (l *Fanout) OnToolNotFound(ctx context.Context, name string) {
	for _, callback := range l.callbacks {
		callback.OnToolNotFound(ctx, name)
	}
}

// Noop does nothing.
type Noop struct{}

func NewNoop() *Noop {
	return &Noop{}
}

func (l *Noop) OnToolStart(ctx context.Context, tool *schema.Tool, args json.RawMessage) {}
func (l *Noop) OnToolEnd(ctx context.Context, tool *schema.Tool, args json.RawMessage, result json.RawMessage) {
}
func (l *Noop) OnToolError(ctx context.Context, tool *schema.Tool, args json.RawMessage, err error) {
}
func (l *Noop) OnToolNotFound(ctx context.Context, name string) {}

// Printer is a callback handler that prints to the Writer.
type Printer struct {
	Out  io.Writer
	Mode Mode

	lock sync.Mutex
}

func NewPrinter(out io.Writer, mode Mode) *Printer {
	return &Printer{Out: out, Mode: mode}
}

func (l *Printer) OnToolStart(ctx context.Context, tool *schema.Tool, args json.RawMessage) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Start: %s%s\n", tool.Name, callSuffix(ctx))
	if l.Mode == ModeVerbose {
		fmt.Fprintf(l.Out, "Input: %s\n", string(args))
	}
}

func (l *Printer) OnToolEnd(ctx context.Context, tool *schema.Tool, args json.RawMessage, result json.RawMessage) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool End: %s%s\n", tool.Name, callSuffix(ctx))
	if l.Mode == ModeVerbose {
		fmt.Fprintf(l.Out, "Output: %s\n", string(result))
	}
}

func (l *Printer) OnToolError(ctx context.Context, tool *schema.Tool, args json.RawMessage, err error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Error: %s%s: %s\n", tool.Name, callSuffix(ctx), err.Error())
}

func (l *Printer) OnToolNotFound(ctx context.Context, name string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Not Found: %s%s\n", name, callSuffix(ctx))
}

func callSuffix(ctx context.Context) string {
	info, ok := tools.CallInfoFrom(ctx)
	if !ok {
		return ""
	}
	return fmt.Sprintf(" (%d)", info.RequestID)
}

// PackageLogger is a callback handler that prints to the logger.
type PackageLogger struct {
	logger *xlog.PackageLogger
}

func NewPackageLogger(logger *xlog.PackageLogger) *PackageLogger {
	return &PackageLogger{logger: logger}
}

func (l *PackageLogger) OnToolStart(ctx context.Context, tool *schema.Tool, args json.RawMessage) {
	info, _ := tools.CallInfoFrom(ctx)
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_start",
		"session", info.SessionID,
		"id", info.RequestID,
		"tool", tool.Name,
		"input", string(args),
	)
}

func (l *PackageLogger) OnToolEnd(ctx context.Context, tool *schema.Tool, args json.RawMessage, result json.RawMessage) {
	info, _ := tools.CallInfoFrom(ctx)
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_end",
		"session", info.SessionID,
		"id", info.RequestID,
		"tool", tool.Name,
		"output", string(result),
	)
}

func (l *PackageLogger) OnToolError(ctx context.Context, tool *schema.Tool, args json.RawMessage, err error) {
	info, _ := tools.CallInfoFrom(ctx)
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "tool_error",
		"session", info.SessionID,
		"id", info.RequestID,
		"tool", tool.Name,
		"err", err.Error(),
	)
}

func (l *PackageLogger) OnToolNotFound(ctx context.Context, name string) {
	info, _ := tools.CallInfoFrom(ctx)
	l.logger.ContextKV(ctx, xlog.WARNING,
		"event", "tool_not_found",
		"session", info.SessionID,
		"id", info.RequestID,
		"tool", name,
	)
}
