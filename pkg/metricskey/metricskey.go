package metricskey

import "github.com/effective-security/metrics"

// Stats
var (
	StatsToolCallsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_succeeded",
		Help:         "stats_tool_calls_succeeded provides total tool calls succeeded",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_failed",
		Help:         "stats_tool_calls_failed provides total tool calls failed",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsNotFound = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_not_found",
		Help:         "stats_tool_calls_not_found provides total tool calls not found",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsInvalid = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_invalid",
		Help:         "stats_tool_calls_invalid provides total tool calls rejected by schema validation",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsTimeout = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_timeout",
		Help:         "stats_tool_calls_timeout provides total tool calls timed out",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsCancelled = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_cancelled",
		Help:         "stats_tool_calls_cancelled provides total tool calls cancelled",
		RequiredTags: []string{"tool"},
	}

	StatsSessionsOpened = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_sessions_opened",
		Help:         "stats_sessions_opened provides total sessions opened",
		RequiredTags: []string{"status"},
	}

	StatsSessionsClosed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_sessions_closed",
		Help:         "stats_sessions_closed provides total sessions closed",
		RequiredTags: []string{"status"},
	}

	StatsProtocolRequests = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_protocol_requests",
		Help:         "stats_protocol_requests provides total protocol requests received",
		RequiredTags: []string{"method"},
	}
)

// Perf
var (
	PerfToolCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_tool_call",
		Help:         "perf_tool_call provides duration of tool call",
		RequiredTags: []string{"tool"},
	}
)

// Metrics returns slice of metrics from this repo
// keep sorted by name
var Metrics = []*metrics.Describe{
	&PerfToolCall,
	&StatsProtocolRequests,
	&StatsSessionsClosed,
	&StatsSessionsOpened,
	&StatsToolCallsCancelled,
	&StatsToolCallsFailed,
	&StatsToolCallsInvalid,
	&StatsToolCallsNotFound,
	&StatsToolCallsSucceeded,
	&StatsToolCallsTimeout,
}
