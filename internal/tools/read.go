package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/rbholmes/toolchat/internal/llm"
)

// ReadFileTool returns file contents with line numbers, paginated through
// start_line/end_line so the model can work through large files.
type ReadFileTool struct {
	sandbox *Sandbox
	limits  OutputLimits
}

func NewReadFileTool(sandbox *Sandbox, limits OutputLimits) *ReadFileTool {
	return &ReadFileTool{sandbox: sandbox, limits: limits}
}

// ReadFileArgs are the arguments for read_file.
type ReadFileArgs struct {
	FilePath  string `json:"file_path"`
	StartLine int    `json:"start_line,omitempty"`
	EndLine   int    `json:"end_line,omitempty"`
}

func (t *ReadFileTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        ReadFileToolName,
		Description: "Read file contents. Returns line-numbered output. Use start_line/end_line for pagination.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"file_path": map[string]interface{}{
					"type":        "string",
					"description": "Path to the file, relative to the workspace",
				},
				"start_line": map[string]interface{}{
					"type":        "integer",
					"description": "1-indexed start line (default: 1)",
				},
				"end_line": map[string]interface{}{
					"type":        "integer",
					"description": "1-indexed end line (default: EOF)",
				},
			},
			"required":             []string{"file_path"},
			"additionalProperties": false,
		},
	}
}

func (t *ReadFileTool) Preview(args json.RawMessage) string {
	var a ReadFileArgs
	if err := json.Unmarshal(args, &a); err != nil || a.FilePath == "" {
		return ""
	}
	switch {
	case a.StartLine > 0 && a.EndLine > 0:
		return fmt.Sprintf("%s:%d-%d", a.FilePath, a.StartLine, a.EndLine)
	case a.StartLine > 0:
		return fmt.Sprintf("%s:%d-", a.FilePath, a.StartLine)
	case a.EndLine > 0:
		return fmt.Sprintf("%s:1-%d", a.FilePath, a.EndLine)
	}
	return a.FilePath
}

func (t *ReadFileTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a ReadFileArgs
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

	data, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", NewToolError(ErrFileNotFound, a.FilePath)
		}
		return "", NewToolErrorf(ErrExecutionFailed, "read error: %v", err)
	}
	if looksBinary(data) {
		return "", NewToolErrorf(ErrBinaryFile, "%s appears to be a binary file", a.FilePath)
	}

	lines := strings.Split(string(data), "\n")
	total := len(lines)

	start := 0
	if a.StartLine > 0 {
		start = a.StartLine - 1
	}
	if start >= total {
		return "", NewToolErrorf(ErrInvalidParams, "start_line %d exceeds file length %d", a.StartLine, total)
	}
	end := total
	if a.EndLine > 0 && a.EndLine < total {
		end = a.EndLine
	}
	if start >= end {
		return "No content in requested range.", nil
	}

	selected := lines[start:end]
	truncated := len(selected) > t.limits.MaxLines
	if truncated {
		selected = selected[:t.limits.MaxLines]
	}

	var sb strings.Builder
	for i, line := range selected {
		sb.WriteString(strconv.Itoa(start + i + 1))
		sb.WriteString(": ")
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	output := strings.TrimSuffix(sb.String(), "\n")
	if int64(len(output)) > t.limits.MaxBytes {
		output = output[:t.limits.MaxBytes]
		truncated = true
	}

	if truncated {
		output += fmt.Sprintf("\n\n[Output truncated. Total lines: %d. Use start_line/end_line for pagination.]", total)
	}
	return output, nil
}

// looksBinary sniffs the first 512 bytes. Content-type detection catches
// most formats; a NUL byte catches the rest. JSON and XML sniff as
// application/* but are text.
func looksBinary(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	sample := data
	if len(sample) > 512 {
		sample = sample[:512]
	}

	contentType := http.DetectContentType(sample)
	if strings.HasPrefix(contentType, "text/") ||
		strings.Contains(contentType, "json") ||
		strings.Contains(contentType, "xml") {
		return false
	}
	for _, b := range sample {
		if b == 0 {
			return true
		}
	}
	return false
}
