package mcp

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// Methods
const (
	MethodInitialize = "initialize"
	MethodPing       = "ping"
	MethodShutdown   = "shutdown"
	MethodToolsList  = "tools/list"
	MethodToolsCall  = "tools/call"

	NotificationInitialized      = "notifications/initialized"
	NotificationCancelled        = "notifications/cancelled"
	NotificationProgress         = "notifications/progress"
	NotificationToolsListChanged = "notifications/tools/list_changed"
)

// Implementation describes a peer
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ToolsCapability describes the tools support of a peer
type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// Capabilities are announced during the handshake
type Capabilities struct {
	Tools *ToolsCapability `json:"tools,omitempty"`
}

// InitializeParams are sent by the client
type InitializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    Capabilities   `json:"capabilities"`
	ClientInfo      Implementation `json:"clientInfo"`
}

// InitializeMeta carries session metadata
type InitializeMeta struct {
	SessionID string `json:"sessionId,omitempty"`
}

// InitializeResult is returned by the server
type InitializeResult struct {
	ProtocolVersion string          `json:"protocolVersion"`
	Capabilities    Capabilities    `json:"capabilities"`
	ServerInfo      Implementation  `json:"serverInfo"`
	Instructions    string          `json:"instructions,omitempty"`
	Meta            *InitializeMeta `json:"_meta,omitempty"`
}

// ListToolsParams are the params of tools/list
type ListToolsParams struct {
	Cursor *string `json:"cursor,omitempty"`
}

// ToolInfo is a tool as announced by tools/list
type ToolInfo struct {
	Name         string             `json:"name"`
	Description  string             `json:"description,omitempty"`
	InputSchema  *jsonschema.Schema `json:"inputSchema"`
	OutputSchema *jsonschema.Schema `json:"outputSchema,omitempty"`
}

// ListToolsResult is the result of tools/list
type ListToolsResult struct {
	Tools       []ToolInfo `json:"tools"`
	NextCursor  *string    `json:"nextCursor,omitempty"`
	Fingerprint string     `json:"fingerprint,omitempty"`
}

// RequestMeta is the _meta member of request params
type RequestMeta struct {
	ProgressToken json.RawMessage `json:"progressToken,omitempty"`
	TimeoutMs     int64           `json:"timeoutMs,omitempty"`
}

// CallToolParams are the params of tools/call
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Meta      *RequestMeta    `json:"_meta,omitempty"`
}

// CancelledParams are the params of notifications/cancelled
type CancelledParams struct {
	RequestID int64  `json:"requestId"`
	Reason    string `json:"reason,omitempty"`
}
