package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// SourceSeparator joins a tool's source id and name into its fully
// qualified id, e.g. "local::read_file" or "github::create_issue".
const SourceSeparator = "::"

// QualifiedToolName builds the fully qualified id for a tool.
func QualifiedToolName(source, name string) string {
	return source + SourceSeparator + name
}

// SplitToolName recovers (source, name) from a fully qualified id. Tools
// registered without a source qualifier resolve to LocalSource.
func SplitToolName(qualified string) (source, name string) {
	if idx := strings.Index(qualified, SourceSeparator); idx >= 0 {
		return qualified[:idx], qualified[idx+len(SourceSeparator):]
	}
	return LocalSource, qualified
}

// publishedSeparator joins source and name in the model-facing tool name.
// Provider APIs restrict tool names to [a-zA-Z0-9_-], so the internal "::"
// qualifier never leaves the registry.
const publishedSeparator = "__"

// publishedNameMaxLen matches the tightest provider limit (OpenAI: 64).
const publishedNameMaxLen = 64

// PublishedToolName returns the name a tool is exposed to the model under.
// Built-ins keep their bare name; external tools get "server__tool" with any
// character outside [a-zA-Z0-9_-] replaced by an underscore.
func PublishedToolName(source, name string) string {
	if source == "" || source == LocalSource {
		return sanitizeToolName(name)
	}
	return sanitizeToolName(source + publishedSeparator + name)
}

func sanitizeToolName(name string) string {
	sanitized := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return '_'
	}, name)
	if len(sanitized) > publishedNameMaxLen {
		sanitized = sanitized[:publishedNameMaxLen]
	}
	return sanitized
}

// Tool describes a callable external tool.
type Tool interface {
	Spec() ToolSpec
	Execute(ctx context.Context, args json.RawMessage) (string, error)
	// Preview returns a human-readable description of what the tool will do,
	// shown to the user before execution starts (e.g., "cat main.go").
	// Returns empty string if no preview is available.
	Preview(args json.RawMessage) string
}

// ToolRegistry stores tools keyed by (source, name). Uniqueness is enforced
// on the composite key, not on the bare name, so two servers may both expose
// a tool called "search".
type ToolRegistry struct {
	mu        sync.RWMutex
	tools     map[string]Tool   // qualified id -> tool
	published map[string]string // model-facing name -> qualified id
}

func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools:     make(map[string]Tool),
		published: make(map[string]string),
	}
}

// Register adds a tool under its spec's (source, name). A tool with an empty
// source is treated as a built-in. Registering the same composite key twice
// replaces the earlier tool.
func (r *ToolRegistry) Register(tool Tool) {
	spec := tool.Spec()
	source := spec.Source
	if source == "" {
		source = LocalSource
	}
	key := QualifiedToolName(source, spec.Name)
	r.mu.Lock()
	r.tools[key] = tool
	r.published[PublishedToolName(source, spec.Name)] = key
	r.mu.Unlock()
}

// Get resolves a tool by the name the model used (the published name), by
// qualified id, or by bare built-in name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if key, ok := r.published[name]; ok {
		if tool, ok := r.tools[key]; ok {
			return tool, true
		}
	}
	if tool, ok := r.tools[name]; ok {
		return tool, true
	}
	tool, ok := r.tools[QualifiedToolName(LocalSource, name)]
	return tool, ok
}

// Unregister removes a tool by qualified id or bare built-in name.
func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := name
	if _, ok := r.tools[key]; !ok {
		key = QualifiedToolName(LocalSource, name)
	}
	delete(r.tools, key)
	for pub, target := range r.published {
		if target == key {
			delete(r.published, pub)
		}
	}
}

// UnregisterSource removes every tool owned by the given source. Used when
// an external server disconnects.
func (r *ToolRegistry) UnregisterSource(source string) {
	prefix := source + SourceSeparator
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.tools {
		if strings.HasPrefix(key, prefix) {
			delete(r.tools, key)
		}
	}
	for pub, target := range r.published {
		if strings.HasPrefix(target, prefix) {
			delete(r.published, pub)
		}
	}
}

// AllSpecs returns the specs for all registered tools, sorted by qualified
// id for deterministic ordering. Every spec carries its published name, so
// the list can go straight into a provider request; external calls route
// back to the owning server via Get.
func (r *ToolRegistry) AllSpecs() []ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.tools))
	for key := range r.tools {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	specs := make([]ToolSpec, 0, len(keys))
	for _, key := range keys {
		spec := r.tools[key].Spec()
		spec.Name = PublishedToolName(spec.Source, spec.Name)
		specs = append(specs, spec)
	}
	return specs
}

// Len returns the number of registered tools.
func (r *ToolRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// formatToolArgs renders a compact single-line preview of tool arguments.
func formatToolArgs(args map[string]any, maxLen, maxParams int) string {
	if len(args) == 0 {
		return ""
	}

	type argPair struct {
		key string
		val string
	}
	var pairs []argPair

	for k, v := range args {
		var valStr string
		switch val := v.(type) {
		case string:
			if val == "" {
				continue
			}
			valStr = val
		case float64:
			if val == float64(int(val)) {
				valStr = fmt.Sprintf("%d", int(val))
			} else {
				valStr = fmt.Sprintf("%g", val)
			}
		case bool:
			valStr = fmt.Sprintf("%v", val)
		default:
			continue
		}

		if len(valStr) > 200 {
			valStr = valStr[:197] + "..."
		}
		pairs = append(pairs, argPair{key: k, val: valStr})
	}

	if len(pairs) == 0 {
		return ""
	}

	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].key < pairs[j].key
	})

	var result string
	if len(pairs) == 1 {
		result = "(" + pairs[0].val + ")"
	} else {
		var parts []string
		for i, p := range pairs {
			if i >= maxParams {
				parts = append(parts, "...")
				break
			}
			parts = append(parts, p.key+":"+p.val)
		}
		result = "(" + strings.Join(parts, ", ") + ")"
	}

	if len(result) > maxLen {
		result = result[:maxLen-4] + "...)"
	}

	return result
}

// ExtractToolInfo extracts a preview string from tool call arguments.
func ExtractToolInfo(call ToolCall) string {
	if len(call.Arguments) == 0 {
		return ""
	}

	var args map[string]any
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return ""
	}

	return formatToolArgs(args, 500, 5)
}
