package tools

import "context"

// CallInfo identifies the protocol call a tool runs for
type CallInfo struct {
	SessionID string
	RequestID int64
	Tool      string
}

type callInfoKey struct{}

// WithCallInfo returns a context carrying the call info
func WithCallInfo(ctx context.Context, info CallInfo) context.Context {
	return context.WithValue(ctx, callInfoKey{}, info)
}

// CallInfoFrom returns the call info of the context, if any
func CallInfoFrom(ctx context.Context) (CallInfo, bool) {
	info, ok := ctx.Value(callInfoKey{}).(CallInfo)
	return info, ok
}
