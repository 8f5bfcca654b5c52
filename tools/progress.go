package tools

import "context"

// Progress is a progress update of a long running tool call
type Progress struct {
	Progress float64 `json:"progress"`
	Total    float64 `json:"total,omitempty"`
	Message  string  `json:"message,omitempty"`
}

// ProgressReporter delivers progress updates to the caller of a tool
type ProgressReporter func(Progress)

type progressKey struct{}

// WithProgressReporter returns a context carrying the reporter
func WithProgressReporter(ctx context.Context, reporter ProgressReporter) context.Context {
	return context.WithValue(ctx, progressKey{}, reporter)
}

// ReportProgress sends a progress update for the current tool call.
// It returns false when the caller did not ask for progress.
func ReportProgress(ctx context.Context, progress, total float64, message string) bool {
	reporter, ok := ctx.Value(progressKey{}).(ProgressReporter)
	if !ok || reporter == nil {
		return false
	}
	reporter(Progress{Progress: progress, Total: total, Message: message})
	return true
}
