package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rbholmes/toolchat/internal/debuglog"
)

// ToolSpec describes a tool available from an MCP server.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]any
}

// Client wraps an MCP server connection.
type Client struct {
	name   string
	config ServerConfig
	logger *debuglog.Logger

	mu      sync.RWMutex
	conn    *Conn
	tools   []ToolSpec
	running bool
}

// NewClient creates a new MCP client for the given server configuration.
func NewClient(name string, config ServerConfig) *Client {
	return &Client{
		name:   name,
		config: config,
		logger: debuglog.Discard(),
	}
}

// SetLogger sets the debug logger for this client.
func (c *Client) SetLogger(logger *debuglog.Logger) {
	if logger == nil {
		logger = debuglog.Discard()
	}
	c.logger = logger
}

// Name returns the server name.
func (c *Client) Name() string {
	return c.name
}

// Start connects to the MCP server and initializes the session.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	conn, err := dial(ctx, c.name, c.config, c.logger)
	if err != nil {
		return fmt.Errorf("connect to MCP server %s: %w", c.name, err)
	}
	c.conn = conn

	tools, err := conn.listTools(ctx)
	if err != nil {
		conn.Close()
		c.conn = nil
		return fmt.Errorf("list tools from %s: %w", c.name, err)
	}

	c.tools = make([]ToolSpec, 0, len(tools))
	for _, t := range tools {
		schema := t.InputSchema
		if schema == nil {
			schema = map[string]any{"type": "object"}
		}
		c.tools = append(c.tools, ToolSpec{
			Name:        t.Name,
			Description: t.Description,
			Schema:      schema,
		})
	}

	CacheTools(c.name, c.tools)
	c.running = true
	return nil
}

// Stop closes the MCP server connection.
func (c *Client) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}

	var err error
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}
	c.running = false
	c.tools = nil
	return err
}

// IsRunning returns whether the client is connected.
func (c *Client) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

// Tools returns the available tools from this server.
func (c *Client) Tools() []ToolSpec {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tools
}

// CallTool invokes a tool on the MCP server.
func (c *Client) CallTool(ctx context.Context, name string, args json.RawMessage) (string, error) {
	c.mu.RLock()
	conn := c.conn
	running := c.running
	c.mu.RUnlock()

	if !running || conn == nil {
		return "", fmt.Errorf("MCP server %s: %w", c.name, ErrProcessNotRunning)
	}

	var arguments map[string]any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &arguments); err != nil {
			return "", fmt.Errorf("invalid tool arguments: %w", err)
		}
	}

	return conn.callTool(ctx, name, arguments)
}
