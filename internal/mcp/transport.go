package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rbholmes/toolchat/internal/debuglog"
)

// callTimeout bounds every outstanding request. A stuck server fails the
// call; it never wedges the conversation.
const callTimeout = 30 * time.Second

// maxLineBytes is the scanner buffer cap for one server response. Tool
// results can be large (file dumps, query output).
const maxLineBytes = 16 * 1024 * 1024

// Conn is a JSON-RPC 2.0 connection to an MCP server subprocess over
// newline-delimited stdio. A single reader goroutine owns stdout and
// delivers responses to waiters registered in the pending map; the pending
// map has its own lock so teardown never contends with a blocked read.
type Conn struct {
	name  string
	cmd   *exec.Cmd
	stdin io.WriteCloser

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[int64]chan *message
	nextID    int64
	closed    bool

	serverInfo implementation
	logger     *debuglog.Logger
}

// dial spawns the server process and performs the MCP handshake:
// initialize, then the notifications/initialized notification. The returned
// connection is ready for tools/list and tools/call.
func dial(ctx context.Context, name string, cfg ServerConfig, logger *debuglog.Logger) (*Conn, error) {
	if logger == nil {
		logger = debuglog.Discard()
	}

	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Env = serverEnv(cfg.Env)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe for %s: %w", name, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe for %s: %w", name, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe for %s: %w", name, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start MCP server %s: %w", name, err)
	}

	conn := &Conn{
		name:    name,
		cmd:     cmd,
		stdin:   stdin,
		pending: make(map[int64]chan *message),
		logger:  logger,
	}

	go conn.drainStderr(stderr)
	go conn.readLoop(stdout)

	var initResult initializeResult
	err = conn.Call(ctx, "initialize", initializeParams{
		ProtocolVersion: protocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      implementation{Name: "toolchat", Version: "1.0.0"},
	}, &initResult)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize %s: %w", name, err)
	}
	conn.serverInfo = initResult.ServerInfo

	if err := conn.notify("notifications/initialized", nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialized notification to %s: %w", name, err)
	}

	logger.Printf("mcp %s: connected (server %s %s, protocol %s)",
		name, initResult.ServerInfo.Name, initResult.ServerInfo.Version, initResult.ProtocolVersion)
	return conn, nil
}

// serverEnv builds the child environment: the parent environment, PATH
// widened with directories where npx/uvx-installed servers usually live
// (GUI launches often miss them), then the per-server overrides on top.
func serverEnv(overrides map[string]string) []string {
	env := os.Environ()

	fallbacks := []string{"/usr/local/bin", "/opt/homebrew/bin"}
	if home, err := os.UserHomeDir(); err == nil {
		fallbacks = append(fallbacks,
			filepath.Join(home, ".local", "bin"),
			filepath.Join(home, ".npm-global", "bin"),
			filepath.Join(home, "node_modules", ".bin"),
		)
	}
	path := os.Getenv("PATH")
	for _, dir := range fallbacks {
		if !containsPathDir(path, dir) {
			path += string(os.PathListSeparator) + dir
		}
	}
	env = append(env, "PATH="+path)

	for k, v := range overrides {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}

func containsPathDir(path, dir string) bool {
	for _, entry := range strings.Split(path, string(os.PathListSeparator)) {
		if entry == dir {
			return true
		}
	}
	return false
}

// readLoop is the only reader of the server's stdout. It never takes
// writeMu and only holds pendingMu for map operations, so a slow or dead
// server cannot deadlock callers or teardown.
func (c *Conn) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg message
		if err := json.Unmarshal(line, &msg); err != nil {
			c.logger.Printf("mcp %s: unparseable frame: %v", c.name, err)
			continue
		}

		// Server-initiated request: we support none, answer method-not-found
		// so the server is not left waiting.
		if msg.Method != "" && msg.ID != nil {
			c.send(&message{
				JSONRPC: "2.0",
				ID:      msg.ID,
				Error:   &rpcError{Code: codeMethodNotFound, Message: fmt.Sprintf("method not supported: %s", msg.Method)},
			})
			continue
		}
		// Notification from the server; nothing to correlate.
		if msg.Method != "" {
			continue
		}
		if msg.ID == nil {
			continue
		}

		c.pendingMu.Lock()
		ch, ok := c.pending[*msg.ID]
		if ok {
			delete(c.pending, *msg.ID)
		}
		c.pendingMu.Unlock()

		if ok {
			ch <- &msg
		}
	}

	// Stdout closed: the process is gone. Every waiter fails now rather
	// than running out its timeout.
	c.failPending()
}

func (c *Conn) drainStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		c.logger.Printf("mcp %s stderr: %s", c.name, scanner.Text())
	}
}

// failPending marks the connection closed and unblocks every waiter.
func (c *Conn) failPending() {
	c.pendingMu.Lock()
	c.closed = true
	pending := c.pending
	c.pending = make(map[int64]chan *message)
	c.pendingMu.Unlock()

	for _, ch := range pending {
		ch <- nil
	}
}

// Call sends a request and blocks for its response, the per-call timeout,
// or ctx cancellation, whichever comes first. result may be nil when the
// caller does not need the payload.
func (c *Conn) Call(ctx context.Context, method string, params, result any) error {
	c.pendingMu.Lock()
	if c.closed {
		c.pendingMu.Unlock()
		return ErrProcessNotRunning
	}
	c.nextID++
	id := c.nextID
	ch := make(chan *message, 1)
	c.pending[id] = ch
	c.pendingMu.Unlock()

	err := c.send(&message{JSONRPC: "2.0", ID: &id, Method: method, Params: params})
	if err != nil {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return err
	}

	timer := time.NewTimer(callTimeout)
	defer timer.Stop()

	var resp *message
	select {
	case resp = <-ch:
	case <-timer.C:
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return fmt.Errorf("%s on %s: %w", method, c.name, ErrCallTimeout)
	case <-ctx.Done():
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return ctx.Err()
	}

	if resp == nil {
		return ErrProcessNotRunning
	}
	if resp.Error != nil {
		return fmt.Errorf("%s on %s: %w", method, c.name, resp.Error)
	}
	if result != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("decode %s result from %s: %w", method, c.name, err)
		}
	}
	return nil
}

// notify sends a request without an id; no response is expected.
func (c *Conn) notify(method string, params any) error {
	return c.send(&message{JSONRPC: "2.0", Method: method, Params: params})
}

func (c *Conn) send(msg *message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode frame for %s: %w", c.name, err)
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.stdin.Write(data); err != nil {
		return fmt.Errorf("write to %s: %w", c.name, ErrProcessNotRunning)
	}
	return nil
}

// listTools fetches the complete tool catalog, following pagination cursors.
func (c *Conn) listTools(ctx context.Context) ([]toolDescriptor, error) {
	var tools []toolDescriptor
	cursor := ""
	for {
		var result listToolsResult
		if err := c.Call(ctx, "tools/list", listToolsParams{Cursor: cursor}, &result); err != nil {
			return nil, err
		}
		tools = append(tools, result.Tools...)
		if result.NextCursor == "" {
			return tools, nil
		}
		cursor = result.NextCursor
	}
}

// callTool invokes one tool. A result flagged isError comes back as a Go
// error carrying the server's message.
func (c *Conn) callTool(ctx context.Context, name string, arguments map[string]any) (string, error) {
	var result callToolResult
	if err := c.Call(ctx, "tools/call", callToolParams{Name: name, Arguments: arguments}, &result); err != nil {
		return "", err
	}
	text := flattenContent(result.Content)
	if result.IsError {
		return "", fmt.Errorf("tool %s returned error: %s", name, text)
	}
	return text, nil
}

// Close tears the connection down: the process is killed first so the
// reader's scanner unblocks, then stdin is closed and every pending waiter
// fails with ErrProcessNotRunning.
func (c *Conn) Close() error {
	if c.cmd.Process != nil {
		c.cmd.Process.Kill()
	}
	c.stdin.Close()
	c.cmd.Wait()
	c.failPending()
	return nil
}
