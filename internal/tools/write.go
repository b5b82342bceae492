package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rbholmes/toolchat/internal/llm"
)

// WriteFileTool creates or replaces a file inside the workspace.
type WriteFileTool struct {
	sandbox *Sandbox
}

func NewWriteFileTool(sandbox *Sandbox) *WriteFileTool {
	return &WriteFileTool{sandbox: sandbox}
}

// WriteFileArgs are the arguments for write_file.
type WriteFileArgs struct {
	FilePath string `json:"file_path"`
	Content  string `json:"content"`
}

func (t *WriteFileTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        WriteFileToolName,
		Description: "Create or overwrite a file with the specified content. Creates parent directories if needed.",
		Destructive: true,
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"file_path": map[string]interface{}{
					"type":        "string",
					"description": "Path to the file, relative to the workspace",
				},
				"content": map[string]interface{}{
					"type":        "string",
					"description": "Full file content to write",
				},
			},
			"required":             []string{"file_path", "content"},
			"additionalProperties": false,
		},
	}
}

func (t *WriteFileTool) Preview(args json.RawMessage) string {
	var a WriteFileArgs
	if err := json.Unmarshal(args, &a); err != nil || a.FilePath == "" {
		return ""
	}
	return a.FilePath
}

func (t *WriteFileTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a WriteFileArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", NewToolError(ErrInvalidParams, err.Error())
	}
	if a.FilePath == "" {
		return "", NewToolError(ErrInvalidParams, "file_path is required")
	}

	absPath, err := t.sandbox.Resolve(a.FilePath)
	if err != nil {
		return "", err
	}

	// An existing file keeps its permissions; new files get 0644. The prior
	// content only feeds the line-count summary.
	mode := os.FileMode(0644)
	prior := ""
	existed := false
	if info, statErr := os.Stat(absPath); statErr == nil {
		mode = info.Mode()
		if data, readErr := os.ReadFile(absPath); readErr == nil {
			prior = string(data)
			existed = true
		}
	}

	if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
		return "", NewToolErrorf(ErrExecutionFailed, "failed to create directory: %v", err)
	}
	if err := atomicWrite(absPath, []byte(a.Content), mode); err != nil {
		return "", NewToolErrorf(ErrExecutionFailed, "%v", err)
	}

	if !existed {
		return fmt.Sprintf("Created new file: %s (%d lines).", a.FilePath, countLines(a.Content)), nil
	}
	return fmt.Sprintf("Updated %s: %d lines -> %d lines.", a.FilePath, countLines(prior), countLines(a.Content)), nil
}

// atomicWrite replaces path through a same-directory temp file and rename,
// so no reader ever observes a half-written file. CreateTemp gives each
// concurrent writer its own temp name; the last rename wins.
func atomicWrite(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tf, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tf.Name()
	fail := func(step string, err error) error {
		tf.Close()
		os.Remove(tempPath)
		return fmt.Errorf("%s: %w", step, err)
	}

	if _, err := tf.Write(data); err != nil {
		return fail("write temp file", err)
	}
	if err := tf.Sync(); err != nil {
		return fail("sync temp file", err)
	}
	if err := tf.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	// CreateTemp's 0600 is too tight for source files.
	if err := os.Chmod(tempPath, mode); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("set permissions: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// countLines treats a trailing newline as terminating the last line, not
// starting a new one.
func countLines(s string) int {
	if s == "" {
		return 0
	}
	count := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		count++
	}
	return count
}
