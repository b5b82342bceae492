package llm

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"testing"
)

type specOnlyTool struct {
	spec ToolSpec
}

func (t *specOnlyTool) Spec() ToolSpec { return t.spec }
func (t *specOnlyTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	return "", nil
}
func (t *specOnlyTool) Preview(args json.RawMessage) string { return "" }

func TestRegistryQualifiedNames(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register(&specOnlyTool{spec: ToolSpec{Name: "read_file"}})
	registry.Register(&specOnlyTool{spec: ToolSpec{Name: "search", Source: "github"}})
	registry.Register(&specOnlyTool{spec: ToolSpec{Name: "search", Source: "jira"}})

	if registry.Len() != 3 {
		t.Fatalf("Len = %d, want 3", registry.Len())
	}

	// Built-ins resolve by bare name.
	if _, ok := registry.Get("read_file"); !ok {
		t.Error("bare built-in lookup failed")
	}
	// External tools resolve by published name or qualified id; the bare
	// name is ambiguous.
	if _, ok := registry.Get("github__search"); !ok {
		t.Error("published lookup failed")
	}
	if _, ok := registry.Get("github::search"); !ok {
		t.Error("qualified lookup failed")
	}
	if _, ok := registry.Get("search"); ok {
		t.Error("bare lookup of external tool should fail")
	}
}

func TestRegistryAllSpecsPublishesExternal(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register(&specOnlyTool{spec: ToolSpec{Name: "read_file"}})
	registry.Register(&specOnlyTool{spec: ToolSpec{Name: "create_issue", Source: "github"}})

	var names []string
	for _, spec := range registry.AllSpecs() {
		names = append(names, spec.Name)
	}
	if len(names) != 2 {
		t.Fatalf("specs = %v", names)
	}
	// Sorted by qualified id: github::create_issue before local::read_file.
	if names[0] != "github__create_issue" || names[1] != "read_file" {
		t.Errorf("names = %v", names)
	}
}

// Provider APIs reject tool names outside [a-zA-Z0-9_-], so nothing the
// registry publishes may carry the internal "::" qualifier or characters
// from a server's display name.
func TestRegistryPublishedNamesAreProviderSafe(t *testing.T) {
	pattern := regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

	registry := NewToolRegistry()
	registry.Register(&specOnlyTool{spec: ToolSpec{Name: "read_file"}})
	registry.Register(&specOnlyTool{spec: ToolSpec{Name: "create_issue", Source: "github"}})
	registry.Register(&specOnlyTool{spec: ToolSpec{Name: "query/v1", Source: "my.server"}})
	registry.Register(&specOnlyTool{spec: ToolSpec{
		Name:   strings.Repeat("long_name_", 10),
		Source: "srv",
	}})

	for _, spec := range registry.AllSpecs() {
		if !pattern.MatchString(spec.Name) {
			t.Errorf("published name %q not provider-safe", spec.Name)
		}
		// The published name must route back to the registered tool.
		if _, ok := registry.Get(spec.Name); !ok {
			t.Errorf("published name %q does not resolve", spec.Name)
		}
	}
}

func TestRegistryUnregisterSource(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register(&specOnlyTool{spec: ToolSpec{Name: "read_file"}})
	registry.Register(&specOnlyTool{spec: ToolSpec{Name: "a", Source: "srv"}})
	registry.Register(&specOnlyTool{spec: ToolSpec{Name: "b", Source: "srv"}})

	registry.UnregisterSource("srv")

	if registry.Len() != 1 {
		t.Errorf("Len = %d after UnregisterSource, want 1", registry.Len())
	}
	if _, ok := registry.Get("read_file"); !ok {
		t.Error("built-in removed by UnregisterSource")
	}
}

func TestSplitToolName(t *testing.T) {
	cases := []struct {
		in     string
		source string
		name   string
	}{
		{"github::create_issue", "github", "create_issue"},
		{"read_file", LocalSource, "read_file"},
		{"a::b::c", "a", "b::c"},
	}
	for _, tc := range cases {
		source, name := SplitToolName(tc.in)
		if source != tc.source || name != tc.name {
			t.Errorf("SplitToolName(%q) = (%q, %q), want (%q, %q)", tc.in, source, name, tc.source, tc.name)
		}
	}
}
