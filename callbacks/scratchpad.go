package callbacks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/effective-security/nanomcp/schema"
	"github.com/effective-security/nanomcp/tools"
)

// ensure Scratchpad implements tools.Callback
var _ tools.Callback = (*Scratchpad)(nil)

var TimeNowFn = time.Now

// RunStats is the tool activity of one session
type RunStats struct {
	SessionID string

	Duration            time.Duration
	ToolsCalls          uint32
	ToolsCallsSucceeded uint32
	ToolsCallsFailed    uint32
	ToolNotFound        uint32
}

// Scratchpad records a transcript and stats of tool activity per session.
// A run starts with StartRun, or implicitly with the first event of a session.
type Scratchpad struct {
	runs map[string]*run
	mode Mode
	lock sync.Mutex
}

func NewScratchpad(mode Mode) *Scratchpad {
	return &Scratchpad{
		runs: make(map[string]*run),
		mode: mode,
	}
}

// StartRun starts recording the session
func (l *Scratchpad) StartRun(sessionID string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.startLocked(sessionID)
}

func (l *Scratchpad) startLocked(sessionID string) *run {
	r := &run{
		stats:   RunStats{SessionID: sessionID},
		started: TimeNowFn(),
	}
	l.runs[sessionID] = r
	r.print("*** Run Started ***")
	return r
}

// EndRun stops recording the session and returns its stats and transcript
func (l *Scratchpad) EndRun(sessionID string) (*RunStats, []byte) {
	l.lock.Lock()
	run := l.runs[sessionID]
	delete(l.runs, sessionID)
	l.lock.Unlock()

	if run == nil {
		return nil, nil
	}

	stats := run.snapshot()
	stats.Duration = TimeNowFn().Sub(run.started)

	run.print(fmt.Sprintf("Tool calls: %d, Succeeded: %d, Failed: %d, Not Found: %d",
		stats.ToolsCalls,
		stats.ToolsCallsSucceeded,
		stats.ToolsCallsFailed,
		stats.ToolNotFound,
	))
	run.print(fmt.Sprintf("*** Run Ended. Duration: %s ***", stats.Duration))

	return &stats, run.bytes()
}

func (l *Scratchpad) getRun(ctx context.Context) (*run, tools.CallInfo) {
	info, ok := tools.CallInfoFrom(ctx)
	if !ok || info.SessionID == "" {
		return nil, info
	}

	l.lock.Lock()
	defer l.lock.Unlock()
	r := l.runs[info.SessionID]
	if r == nil {
		r = l.startLocked(info.SessionID)
	}
	return r, info
}

func (l *Scratchpad) OnToolStart(ctx context.Context, tool *schema.Tool, args json.RawMessage) {
	run, info := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.ToolsCalls, 1)
	id := strconv.FormatInt(info.RequestID, 10)
	run.print(id, tool.Name, "*** Tool Start ***")
	run.print(id, tool.Name, "Input:", string(args))
}

func (l *Scratchpad) OnToolEnd(ctx context.Context, tool *schema.Tool, args json.RawMessage, result json.RawMessage) {
	run, info := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.ToolsCallsSucceeded, 1)
	id := strconv.FormatInt(info.RequestID, 10)
	if l.mode == ModeVerbose {
		run.print(id, tool.Name, "Output:", string(result))
	}
	run.print(id, tool.Name, "*** Tool End ***")
}

func (l *Scratchpad) OnToolError(ctx context.Context, tool *schema.Tool, args json.RawMessage, err error) {
	run, info := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.ToolsCallsFailed, 1)
	run.print(strconv.FormatInt(info.RequestID, 10), tool.Name, "*** Tool Error ***", err.Error())
}

func (l *Scratchpad) OnToolNotFound(ctx context.Context, name string) {
	run, info := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.ToolNotFound, 1)
	run.print(strconv.FormatInt(info.RequestID, 10), "*** Tool Not Found ***", name)
}

type run struct {
	w       bytes.Buffer
	started time.Time
	lock    sync.Mutex
	stats   RunStats
}

func (r *run) snapshot() RunStats {
	return RunStats{
		SessionID:           r.stats.SessionID,
		ToolsCalls:          atomic.LoadUint32(&r.stats.ToolsCalls),
		ToolsCallsSucceeded: atomic.LoadUint32(&r.stats.ToolsCallsSucceeded),
		ToolsCallsFailed:    atomic.LoadUint32(&r.stats.ToolsCallsFailed),
		ToolNotFound:        atomic.LoadUint32(&r.stats.ToolNotFound),
	}
}

func (r *run) bytes() []byte {
	r.lock.Lock()
	defer r.lock.Unlock()
	return bytes.Clone(r.w.Bytes())
}

// print writes the entries to the run's output.
// The entries are written in the following format:
// [timestamp sessionID] entry entry\n
func (r *run) print(entries ...string) {
	r.lock.Lock()
	defer r.lock.Unlock()

	now := TimeNowFn()
	ts := now.Format("2006-01-02 15:04:05")

	_, _ = r.w.WriteString(ts)
	_, _ = r.w.WriteString(" ")
	_, _ = r.w.WriteString(r.stats.SessionID)
	_, _ = r.w.WriteString(" ")

	for i, entry := range entries {
		if i > 0 {
			_, _ = r.w.WriteString(" ")
		}
		_, _ = r.w.WriteString(entry)
	}
	_, _ = r.w.WriteString("\n")
}
