package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rbholmes/toolchat/internal/llm"
)

// ListDirTool implements the list_dir tool.
type ListDirTool struct {
	sandbox *Sandbox
	limits  OutputLimits
}

// NewListDirTool creates a new ListDirTool.
func NewListDirTool(sandbox *Sandbox, limits OutputLimits) *ListDirTool {
	return &ListDirTool{
		sandbox: sandbox,
		limits:  limits,
	}
}

// ListDirArgs are the arguments for list_dir.
type ListDirArgs struct {
	Path string `json:"path,omitempty"`
}

func (t *ListDirTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        ListDirToolName,
		Description: "List directory contents with file sizes and modification times. Directories are listed first.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Directory to list, relative to the workspace (defaults to the workspace root)",
				},
			},
			"additionalProperties": false,
		},
	}
}

func (t *ListDirTool) Preview(args json.RawMessage) string {
	var a ListDirArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return ""
	}
	if a.Path == "" {
		return "."
	}
	return a.Path
}

func (t *ListDirTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a ListDirArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", NewToolError(ErrInvalidParams, err.Error())
	}
	if a.Path == "" {
		a.Path = "."
	}

	absPath, err := t.sandbox.Resolve(a.Path)
	if err != nil {
		return "", err
	}

	entries, err := os.ReadDir(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", NewToolError(ErrFileNotFound, a.Path)
		}
		return "", NewToolErrorf(ErrExecutionFailed, "list error: %v", err)
	}

	if len(entries) == 0 {
		return "Directory is empty.", nil
	}

	// Directories first, then files, each alphabetical (ReadDir sorts by name)
	var dirs, files []os.DirEntry
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e)
		} else {
			files = append(files, e)
		}
	}
	ordered := append(dirs, files...)

	truncated := false
	if len(ordered) > t.limits.MaxResults {
		ordered = ordered[:t.limits.MaxResults]
		truncated = true
	}

	var sb strings.Builder
	for _, e := range ordered {
		info, err := e.Info()
		if err != nil {
			continue
		}
		typeIndicator := "f"
		name := e.Name()
		if e.IsDir() {
			typeIndicator = "d"
			name += "/"
		}
		sb.WriteString(fmt.Sprintf("[%s] %s  %s  %s\n",
			typeIndicator, formatSize(info.Size()), info.ModTime().Format("2006-01-02 15:04"), name))
	}

	if truncated {
		sb.WriteString(fmt.Sprintf("\n[Results truncated at %d entries]", t.limits.MaxResults))
	}

	return strings.TrimSuffix(sb.String(), "\n"), nil
}
