package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/rbholmes/toolchat/internal/llm"
)

// editLocks serializes read-modify-write cycles per path within this
// process. The engine runs tool calls concurrently, and two edits racing on
// one file would base their replacements on the same snapshot.
var editLocks = struct {
	mu    sync.Mutex
	paths map[string]*sync.Mutex
}{paths: make(map[string]*sync.Mutex)}

func lockEditPath(path string) *sync.Mutex {
	editLocks.mu.Lock()
	lock := editLocks.paths[path]
	if lock == nil {
		lock = &sync.Mutex{}
		editLocks.paths[path] = lock
	}
	editLocks.mu.Unlock()
	lock.Lock()
	return lock
}

// EditFileTool implements the edit_file tool: a deterministic string
// replacement where old_text must occur exactly once. Anything else leaves
// the file untouched and tells the model why.
type EditFileTool struct {
	sandbox *Sandbox
}

// NewEditFileTool creates a new EditFileTool.
func NewEditFileTool(sandbox *Sandbox) *EditFileTool {
	return &EditFileTool{
		sandbox: sandbox,
	}
}

// EditFileArgs are the arguments for edit_file.
type EditFileArgs struct {
	FilePath string `json:"file_path"`
	OldText  string `json:"old_text"`
	NewText  string `json:"new_text"`
}

func (t *EditFileTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name: EditFileToolName,
		Description: "Edit a file by exact string replacement. old_text must match exactly one location " +
			"in the file; include enough surrounding context to make it unique.",
		Destructive: true,
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"file_path": map[string]interface{}{
					"type":        "string",
					"description": "Path to the file, relative to the workspace",
				},
				"old_text": map[string]interface{}{
					"type":        "string",
					"description": "Exact text to find and replace. Must be unique within the file.",
				},
				"new_text": map[string]interface{}{
					"type":        "string",
					"description": "Text to replace old_text with",
				},
			},
			"required":             []string{"file_path", "old_text", "new_text"},
			"additionalProperties": false,
		},
	}
}

func (t *EditFileTool) Preview(args json.RawMessage) string {
	var a EditFileArgs
	if err := json.Unmarshal(args, &a); err != nil || a.FilePath == "" {
		return ""
	}
	return a.FilePath
}

func (t *EditFileTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a EditFileArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", NewToolError(ErrInvalidParams, err.Error())
	}
	if a.FilePath == "" {
		return "", NewToolError(ErrInvalidParams, "file_path is required")
	}
	if a.OldText == "" {
		return "", NewToolError(ErrInvalidParams, "old_text is required")
	}
	if a.OldText == a.NewText {
		return "", NewToolError(ErrInvalidParams, "old_text and new_text are identical")
	}

	absPath, err := t.sandbox.Resolve(a.FilePath)
	if err != nil {
		return "", err
	}

	defer lockEditPath(absPath).Unlock()

	data, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", NewToolError(ErrFileNotFound, a.FilePath)
		}
		return "", NewToolErrorf(ErrExecutionFailed, "read error: %v", err)
	}
	content := string(data)

	switch count := strings.Count(content, a.OldText); count {
	case 1:
		// Unique match, proceed.
	case 0:
		return "", NewToolErrorf(ErrExecutionFailed,
			"old_text not found in %s. File starts with:\n%s", a.FilePath, contentPreview(content))
	default:
		return "", NewToolErrorf(ErrExecutionFailed,
			"old_text matches %d locations in %s; add surrounding context to make it unique", count, a.FilePath)
	}

	newContent := strings.Replace(content, a.OldText, a.NewText, 1)

	mode := os.FileMode(0644)
	if info, statErr := os.Stat(absPath); statErr == nil {
		mode = info.Mode()
	}
	if err := atomicWrite(absPath, []byte(newContent), mode); err != nil {
		return "", NewToolErrorf(ErrExecutionFailed, "%v", err)
	}

	startLine := strings.Count(content[:strings.Index(content, a.OldText)], "\n") + 1
	return fmt.Sprintf("Edited %s at line %d: replaced %d lines with %d lines.",
		a.FilePath, startLine, countLines(a.OldText), countLines(a.NewText)), nil
}

// contentPreview returns the first few lines of a file for not-found errors,
// so the model can recalibrate without another read.
func contentPreview(content string) string {
	lines := strings.Split(content, "\n")
	if len(lines) > 10 {
		lines = lines[:10]
	}
	preview := strings.Join(lines, "\n")
	if len(preview) > 500 {
		preview = preview[:500]
	}
	return preview
}
