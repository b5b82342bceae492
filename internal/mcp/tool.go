package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rbholmes/toolchat/internal/llm"
)

// Tool wraps an MCP server tool as an llm.Tool. Server tools run arbitrary
// code on the other side of the pipe, so they are always treated as
// destructive and go through the confirmation gate.
type Tool struct {
	manager *Manager
	server  string
	spec    ToolSpec
}

// NewTool creates an llm.Tool backed by a tool on the named server.
func NewTool(manager *Manager, server string, spec ToolSpec) *Tool {
	return &Tool{
		manager: manager,
		server:  server,
		spec:    spec,
	}
}

func (t *Tool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        t.spec.Name,
		Description: fmt.Sprintf("[%s] %s", t.server, t.spec.Description),
		Schema:      t.spec.Schema,
		Source:      t.server,
		Destructive: true,
	}
}

func (t *Tool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	return t.manager.CallTool(ctx, t.server, t.spec.Name, args)
}

func (t *Tool) Preview(args json.RawMessage) string {
	return fmt.Sprintf("%s on %s", t.spec.Name, t.server)
}
