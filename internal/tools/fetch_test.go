package tools

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
)

func fetchURL(t *testing.T, tool *FetchURLTool, rawURL string) (string, error) {
	t.Helper()
	args, err := json.Marshal(FetchURLArgs{URL: rawURL})
	if err != nil {
		t.Fatal(err)
	}
	return tool.Execute(context.Background(), args)
}

func TestFetchRejectsNonHTTPSchemes(t *testing.T) {
	tool := NewFetchURLTool(DefaultOutputLimits())

	for _, rawURL := range []string{
		"file:///etc/passwd",
		"ftp://example.com/file",
		"gopher://example.com",
	} {
		_, err := fetchURL(t, tool, rawURL)
		var te *ToolError
		if !errors.As(err, &te) || te.Type != ErrBlockedURL {
			t.Errorf("fetch(%q) = %v, want BLOCKED_URL", rawURL, err)
		}
	}
}

func TestFetchRejectsLoopback(t *testing.T) {
	tool := NewFetchURLTool(DefaultOutputLimits())

	for _, rawURL := range []string{
		"http://127.0.0.1/secret",
		"http://localhost:8080/admin",
		"http://[::1]/",
	} {
		_, err := fetchURL(t, tool, rawURL)
		var te *ToolError
		if !errors.As(err, &te) || te.Type != ErrBlockedURL {
			t.Errorf("fetch(%q) = %v, want BLOCKED_URL", rawURL, err)
		}
	}
}

// Internal-sounding hostnames must be rejected before any DNS lookup or
// connection attempt, so these run without network access.
func TestFetchRejectsInternalHostnames(t *testing.T) {
	tool := NewFetchURLTool(DefaultOutputLimits())

	for _, rawURL := range []string{
		"http://metadata.google.internal/computeMetadata/v1/",
		"http://169.254.169.254/latest/meta-data/",
		"https://secrets.internal/keys",
		"https://printer.local/",
		"http://intranet.corp.example.com/wiki",
	} {
		_, err := fetchURL(t, tool, rawURL)
		var te *ToolError
		if !errors.As(err, &te) || te.Type != ErrBlockedURL {
			t.Errorf("fetch(%q) = %v, want BLOCKED_URL", rawURL, err)
		}
	}
}

func TestBlockedHostname(t *testing.T) {
	cases := []struct {
		host    string
		blocked bool
	}{
		{"localhost", true},
		{"LOCALHOST", true},
		{"db.local", true},
		{"api.internal.", true},
		{"example.com", false},
		{"internal-docs.example.com", false},
		{"localremote.example.com", false},
	}
	for _, tc := range cases {
		if got := blockedHostname(tc.host); got != tc.blocked {
			t.Errorf("blockedHostname(%q) = %v, want %v", tc.host, got, tc.blocked)
		}
	}
}

func TestFetchMissingURL(t *testing.T) {
	tool := NewFetchURLTool(DefaultOutputLimits())

	_, err := fetchURL(t, tool, "")
	var te *ToolError
	if !errors.As(err, &te) || te.Type != ErrInvalidParams {
		t.Errorf("err = %v, want INVALID_PARAMS", err)
	}
}

func TestBlockedIP(t *testing.T) {
	cases := []struct {
		ip      string
		blocked bool
	}{
		{"127.0.0.1", true},
		{"::1", true},
		{"10.0.0.5", true},
		{"172.16.1.1", true},
		{"192.168.1.1", true},
		{"169.254.1.1", true},
		{"0.0.0.0", true},
		{"8.8.8.8", false},
		{"1.1.1.1", false},
		{"2606:4700:4700::1111", false},
	}
	for _, tc := range cases {
		ip := net.ParseIP(tc.ip)
		if ip == nil {
			t.Fatalf("bad test ip %q", tc.ip)
		}
		if got := blockedIP(ip); got != tc.blocked {
			t.Errorf("blockedIP(%s) = %v, want %v", tc.ip, got, tc.blocked)
		}
	}
}
