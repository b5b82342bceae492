package tools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rbholmes/toolchat/internal/llm"
)

const fetchTimeout = 30 * time.Second

// FetchURLTool implements the fetch_url tool. Only http and https are
// allowed. Internal-sounding hostnames are rejected before any request, and
// hosts that resolve to loopback, link-local, or private addresses are
// rejected at dial time, so the model cannot probe the local network.
type FetchURLTool struct {
	limits OutputLimits
	client *http.Client
}

// NewFetchURLTool creates a new FetchURLTool.
func NewFetchURLTool(limits OutputLimits) *FetchURLTool {
	t := &FetchURLTool{limits: limits}
	t.client = &http.Client{
		Timeout: fetchTimeout,
		Transport: &http.Transport{
			DialContext: t.guardedDial,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects")
			}
			// Redirects go through the guarded dialer too, but reject
			// non-http schemes before a request is even built.
			if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
				return fmt.Errorf("redirect to unsupported scheme %q", req.URL.Scheme)
			}
			return nil
		},
	}
	return t
}

// FetchURLArgs are the arguments for fetch_url.
type FetchURLArgs struct {
	URL string `json:"url"`
}

func (t *FetchURLTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        FetchURLToolName,
		Description: "Fetch a URL over HTTP or HTTPS and return the response body. Binary responses are returned base64-encoded.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"url": map[string]interface{}{
					"type":        "string",
					"description": "The http:// or https:// URL to fetch",
				},
			},
			"required":             []string{"url"},
			"additionalProperties": false,
		},
	}
}

func (t *FetchURLTool) Preview(args json.RawMessage) string {
	var a FetchURLArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return ""
	}
	return a.URL
}

func (t *FetchURLTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a FetchURLArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", NewToolError(ErrInvalidParams, err.Error())
	}
	if a.URL == "" {
		return "", NewToolError(ErrInvalidParams, "url is required")
	}

	parsed, err := url.Parse(a.URL)
	if err != nil {
		return "", NewToolErrorf(ErrInvalidParams, "invalid url: %v", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", NewToolErrorf(ErrBlockedURL, "unsupported scheme %q; only http and https are allowed", parsed.Scheme)
	}
	host := parsed.Hostname()
	if host == "" {
		return "", NewToolError(ErrInvalidParams, "url has no host")
	}
	if blockedHostname(host) {
		return "", NewToolErrorf(ErrBlockedURL, "host %s matches a blocked internal hostname", host)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL, nil)
	if err != nil {
		return "", NewToolErrorf(ErrInvalidParams, "invalid request: %v", err)
	}
	req.Header.Set("User-Agent", "toolchat/1.0")

	resp, err := t.client.Do(req)
	if err != nil {
		// Surface the blocked-address check as a ToolError rather than a
		// wrapped transport error.
		var te *ToolError
		if errors.As(err, &te) {
			return "", te
		}
		return "", NewToolErrorf(ErrExecutionFailed, "fetch failed: %v", err)
	}
	defer resp.Body.Close()

	// Read one byte past the cap to detect truncation.
	body, err := io.ReadAll(io.LimitReader(resp.Body, t.limits.MaxBytes+1))
	if err != nil {
		return "", NewToolErrorf(ErrExecutionFailed, "read failed: %v", err)
	}
	truncated := int64(len(body)) > t.limits.MaxBytes
	if truncated {
		body = body[:t.limits.MaxBytes]
	}

	contentType := resp.Header.Get("Content-Type")
	var sb strings.Builder
	fmt.Fprintf(&sb, "status: %d\n", resp.StatusCode)
	if contentType != "" {
		fmt.Fprintf(&sb, "content-type: %s\n", contentType)
	}
	sb.WriteString("\n")

	if looksBinary(body) {
		sb.WriteString("[binary content, base64-encoded]\n")
		sb.WriteString(base64.StdEncoding.EncodeToString(body))
	} else {
		sb.Write(body)
	}

	if truncated {
		sb.WriteString("\n\n[Response truncated due to size limit]")
	}

	return sb.String(), nil
}

// guardedDial resolves the host and refuses to connect to any address that
// is not publicly routable. Checking the resolved addresses (not the
// hostname) closes the DNS-rebinding style tricks where a public name
// resolves to 127.0.0.1.
func (t *FetchURLTool) guardedDial(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}

	var dialer net.Dialer
	for _, ip := range ips {
		if blockedIP(ip.IP) {
			return nil, NewToolErrorf(ErrBlockedURL, "%s resolves to blocked address %s", host, ip.IP)
		}
	}
	for _, ip := range ips {
		conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip.IP.String(), port))
		if err == nil {
			return conn, nil
		}
	}
	return nil, fmt.Errorf("could not connect to %s", addr)
}

// blockedHostTokens match names that only make sense on an internal
// network, plus the cloud metadata endpoints. The check runs before any
// DNS lookup, so an obviously internal name never produces traffic at all.
var blockedHostTokens = []string{
	"localhost",
	".internal",
	".local",
	"intranet",
	"metadata.google",
	"169.254.169.254",
}

func blockedHostname(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for _, token := range blockedHostTokens {
		if strings.Contains(host, token) {
			return true
		}
	}
	return false
}

// blockedIP reports whether an address must not be fetched: loopback,
// link-local, RFC 1918 private ranges, and the unspecified address.
func blockedIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsPrivate() ||
		ip.IsUnspecified()
}
