package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// protocolVersion is the MCP protocol revision this client speaks.
const protocolVersion = "2024-11-05"

var (
	// ErrProcessNotRunning indicates the server process has exited or was
	// never started. Pending calls fail with this error on teardown.
	ErrProcessNotRunning = errors.New("MCP server process is not running")

	// ErrCallTimeout indicates a request got no response within the
	// per-call deadline.
	ErrCallTimeout = errors.New("MCP call timed out")
)

// message is a single JSON-RPC 2.0 frame, used for both directions. Requests
// carry Method (and ID unless they are notifications); responses carry Result
// or Error plus the ID they answer.
type message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  any             `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

const (
	codeMethodNotFound = -32601
)

// implementation identifies a client or server to its peer.
type implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type initializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      implementation `json:"clientInfo"`
}

type initializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      implementation `json:"serverInfo"`
}

type listToolsParams struct {
	Cursor string `json:"cursor,omitempty"`
}

type listToolsResult struct {
	Tools      []toolDescriptor `json:"tools"`
	NextCursor string           `json:"nextCursor,omitempty"`
}

type toolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

type callToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

type callToolResult struct {
	Content []contentItem `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

type contentItem struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// flattenContent joins text content items; non-text items are carried as
// their JSON encoding so nothing the server said is silently dropped.
func flattenContent(items []contentItem) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		if item.Type == "text" {
			parts = append(parts, item.Text)
			continue
		}
		if data, err := json.Marshal(item); err == nil {
			parts = append(parts, string(data))
		}
	}
	return strings.Join(parts, "\n")
}
