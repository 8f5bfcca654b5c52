package mcp

import (
	"time"

	"github.com/effective-security/nanomcp/tools"
)

// Protocol versions, newest first
const (
	ProtocolVersion20250618 = "2025-06-18"
	ProtocolVersion20250326 = "2025-03-26"
	ProtocolVersion20241105 = "2024-11-05"

	LatestProtocolVersion = ProtocolVersion20250618
)

// SupportedProtocolVersions is the default list of versions, newest first
var SupportedProtocolVersions = []string{
	ProtocolVersion20250618,
	ProtocolVersion20250326,
	ProtocolVersion20241105,
}

// Defaults
const (
	DefaultHandshakeTimeout = 30 * time.Second
	DefaultCallTimeout      = 60 * time.Second
	DefaultDrainTimeout     = 10 * time.Second
	DefaultRequestTimeout   = 60 * time.Second
)

// Options configures a Server or a Client
type Options struct {
	// Name and Version are announced to the peer
	Name    string
	Version string
	// Instructions are returned by the server in the initialize result
	Instructions string
	// Versions are the supported protocol versions, newest first
	Versions []string

	HandshakeTimeout time.Duration
	// CallTimeout is the default deadline of an incoming tool call
	CallTimeout time.Duration
	// DrainTimeout bounds the wait for in-flight calls on shutdown
	DrainTimeout time.Duration
	// RequestTimeout is the default timeout of outgoing requests
	RequestTimeout time.Duration

	// PageSize enables tools/list pagination when positive
	PageSize int
	// MaxConcurrentCalls bounds concurrent dispatches when positive
	MaxConcurrentCalls int64

	// Callback receives tool lifecycle events
	Callback tools.Callback
}

// Option is a functional option
type Option func(*Options)

// WithOptions replaces all options, zero values take defaults
func WithOptions(o Options) Option {
	return func(opts *Options) {
		*opts = o
	}
}

// WithName sets the implementation name and version
func WithName(name, version string) Option {
	return func(o *Options) {
		o.Name = name
		o.Version = version
	}
}

// WithInstructions sets the server instructions
func WithInstructions(instructions string) Option {
	return func(o *Options) {
		o.Instructions = instructions
	}
}

// WithVersions sets the supported protocol versions
func WithVersions(versions ...string) Option {
	return func(o *Options) {
		o.Versions = versions
	}
}

// WithHandshakeTimeout sets the handshake timeout
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.HandshakeTimeout = d
	}
}

// WithCallTimeout sets the default deadline of incoming tool calls
func WithCallTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.CallTimeout = d
	}
}

// WithDrainTimeout sets the drain timeout
func WithDrainTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.DrainTimeout = d
	}
}

// WithRequestTimeout sets the default timeout of outgoing requests
func WithRequestTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.RequestTimeout = d
	}
}

// WithPageSize enables tools/list pagination
func WithPageSize(n int) Option {
	return func(o *Options) {
		o.PageSize = n
	}
}

// WithMaxConcurrentCalls bounds concurrent dispatches
func WithMaxConcurrentCalls(n int64) Option {
	return func(o *Options) {
		o.MaxConcurrentCalls = n
	}
}

// WithCallback sets the tool lifecycle callback
func WithCallback(cb tools.Callback) Option {
	return func(o *Options) {
		o.Callback = cb
	}
}

func newOptions(opts []Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	if o.Name == "" {
		o.Name = "nanomcp"
	}
	if o.Version == "" {
		o.Version = "dev"
	}
	if len(o.Versions) == 0 {
		o.Versions = SupportedProtocolVersions
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = DefaultCallTimeout
	}
	if o.DrainTimeout <= 0 {
		o.DrainTimeout = DefaultDrainTimeout
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	return o
}

// CallOption is a per call option of CallTool
type CallOption func(*callOptions)

type callOptions struct {
	timeout    time.Duration
	onProgress func(tools.Progress)
}

// WithTimeout sets the deadline of the call. It is sent to the peer as
// _meta.timeoutMs and enforced locally.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) {
		o.timeout = d
	}
}

// WithProgress asks the peer for progress notifications
func WithProgress(fn func(tools.Progress)) CallOption {
	return func(o *callOptions) {
		o.onProgress = fn
	}
}
