package mcp

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

// writeServerScript writes an executable sh script that plays the server
// side of the stdio protocol with canned responses.
func writeServerScript(t *testing.T, body string) ServerConfig {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.sh")
	script := "#!/bin/sh\n" + body
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	return ServerConfig{Command: "/bin/sh", Args: []string{path}}
}

const initResponse = `{"jsonrpc":"2.0","id":1,"result":{"protocolVersion":"2024-11-05","capabilities":{},"serverInfo":{"name":"echo","version":"0.1"}}}`

func TestServerEnvWidensPathAndAppliesOverrides(t *testing.T) {
	t.Setenv("PATH", "/usr/bin:/bin")

	env := serverEnv(map[string]string{"API_KEY": "sekrit"})

	var path string
	sawKey := false
	// Later entries win, so scan the whole slice.
	for _, entry := range env {
		if v, ok := strings.CutPrefix(entry, "PATH="); ok {
			path = v
		}
		if entry == "API_KEY=sekrit" {
			sawKey = true
		}
	}
	if !sawKey {
		t.Error("per-server env override missing")
	}

	dirs := strings.Split(path, string(os.PathListSeparator))
	want := []string{"/usr/bin", "/bin", "/usr/local/bin"}
	home, err := os.UserHomeDir()
	if err == nil {
		want = append(want, filepath.Join(home, ".local", "bin"))
	}
	for _, dir := range want {
		if !slices.Contains(dirs, dir) {
			t.Errorf("PATH missing %s: %q", dir, path)
		}
	}

	// Already-present directories are not duplicated.
	t.Setenv("PATH", "/usr/bin:/usr/local/bin")
	env = serverEnv(nil)
	for _, entry := range env {
		if v, ok := strings.CutPrefix(entry, "PATH="); ok {
			path = v
		}
	}
	if strings.Count(path, "/usr/local/bin") != 1 {
		t.Errorf("duplicated fallback dir: %q", path)
	}
}

func TestDialHandshakeAndListTools(t *testing.T) {
	cfg := writeServerScript(t, `
read line
printf '%s\n' '`+initResponse+`'
read line
read line
printf '%s\n' '{"jsonrpc":"2.0","id":2,"result":{"tools":[{"name":"noop","description":"does nothing","inputSchema":{"type":"object"}}]}}'
read line
`)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := dial(ctx, "echo", cfg, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if conn.serverInfo.Name != "echo" {
		t.Errorf("serverInfo.Name = %q, want echo", conn.serverInfo.Name)
	}

	tools, err := conn.listTools(ctx)
	if err != nil {
		t.Fatalf("listTools: %v", err)
	}
	if len(tools) != 1 || tools[0].Name != "noop" {
		t.Fatalf("tools = %+v, want one tool named noop", tools)
	}
}

func TestCallToolResult(t *testing.T) {
	cfg := writeServerScript(t, `
read line
printf '%s\n' '`+initResponse+`'
read line
read line
printf '%s\n' '{"jsonrpc":"2.0","id":2,"result":{"content":[{"type":"text","text":"hello"},{"type":"text","text":"world"}],"isError":false}}'
read line
`)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := dial(ctx, "echo", cfg, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	out, err := conn.callTool(ctx, "noop", map[string]any{"x": 1})
	if err != nil {
		t.Fatalf("callTool: %v", err)
	}
	if out != "hello\nworld" {
		t.Errorf("callTool output = %q", out)
	}
}

func TestCallToolErrorFlag(t *testing.T) {
	cfg := writeServerScript(t, `
read line
printf '%s\n' '`+initResponse+`'
read line
read line
printf '%s\n' '{"jsonrpc":"2.0","id":2,"result":{"content":[{"type":"text","text":"boom"}],"isError":true}}'
read line
`)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := dial(ctx, "echo", cfg, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_, err = conn.callTool(ctx, "noop", nil)
	if err == nil {
		t.Fatal("expected error for isError result")
	}
}

func TestDialProcessExitsImmediately(t *testing.T) {
	cfg := writeServerScript(t, "exit 0\n")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := dial(ctx, "dead", cfg, nil)
	if err == nil {
		t.Fatal("expected dial to fail against a dead process")
	}
	if !errors.Is(err, ErrProcessNotRunning) {
		t.Errorf("err = %v, want ErrProcessNotRunning", err)
	}
}

func TestCallAfterClose(t *testing.T) {
	cfg := writeServerScript(t, `
read line
printf '%s\n' '`+initResponse+`'
read line
sleep 60
`)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := dial(ctx, "echo", cfg, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.Close()

	err = conn.Call(ctx, "tools/list", listToolsParams{}, nil)
	if !errors.Is(err, ErrProcessNotRunning) {
		t.Errorf("Call after Close = %v, want ErrProcessNotRunning", err)
	}
}

func TestCloseFailsPendingWaiters(t *testing.T) {
	// Server completes the handshake, then goes silent. A call is left
	// pending, and Close must resolve it with ErrProcessNotRunning rather
	// than leaving it to the 30s timeout.
	cfg := writeServerScript(t, `
read line
printf '%s\n' '`+initResponse+`'
read line
sleep 60
`)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := dial(ctx, "silent", cfg, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- conn.Call(ctx, "tools/list", listToolsParams{}, nil)
	}()

	time.Sleep(100 * time.Millisecond)
	conn.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrProcessNotRunning) {
			t.Errorf("pending call resolved with %v, want ErrProcessNotRunning", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pending call not resolved by Close")
	}
}

func TestOutOfOrderResponses(t *testing.T) {
	// The server answers the second request before the first; responses
	// must be correlated by id, not arrival order.
	cfg := writeServerScript(t, `
read line
printf '%s\n' '`+initResponse+`'
read line
read a
read b
printf '%s\n' '{"jsonrpc":"2.0","id":3,"result":{"value":"second"}}'
printf '%s\n' '{"jsonrpc":"2.0","id":2,"result":{"value":"first"}}'
`)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := dial(ctx, "swap", cfg, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	type valueResult struct {
		Value string `json:"value"`
	}

	first := make(chan valueResult, 1)
	go func() {
		var r valueResult
		if err := conn.Call(ctx, "first", nil, &r); err != nil {
			t.Errorf("first call: %v", err)
		}
		first <- r
	}()

	// Make sure the first call grabs id 2 before the second starts.
	time.Sleep(100 * time.Millisecond)

	var second valueResult
	if err := conn.Call(ctx, "second", nil, &second); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if second.Value != "second" {
		t.Errorf("second call got %q", second.Value)
	}

	select {
	case r := <-first:
		if r.Value != "first" {
			t.Errorf("first call got %q", r.Value)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("first call never resolved")
	}
}

func TestClientStartListsTools(t *testing.T) {
	cfg := writeServerScript(t, `
read line
printf '%s\n' '`+initResponse+`'
read line
read line
printf '%s\n' '{"jsonrpc":"2.0","id":2,"result":{"tools":[{"name":"noop","description":"does nothing"}]}}'
read line
`)

	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := NewClient("echo", cfg)
	if err := client.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer client.Stop()

	if !client.IsRunning() {
		t.Error("client not running after Start")
	}
	tools := client.Tools()
	if len(tools) != 1 || tools[0].Name != "noop" {
		t.Fatalf("tools = %+v", tools)
	}
	// A missing inputSchema defaults to an empty object schema.
	if tools[0].Schema["type"] != "object" {
		t.Errorf("default schema = %v", tools[0].Schema)
	}
}
