// Package tools provides the workspace-sandboxed local tool system for toolchat.
package tools

import (
	"fmt"
)

// ToolErrorType provides structured errors for agent retry logic.
type ToolErrorType string

const (
	ErrFileNotFound       ToolErrorType = "FILE_NOT_FOUND"
	ErrInvalidParams      ToolErrorType = "INVALID_PARAMS"
	ErrPathNotInWorkspace ToolErrorType = "PATH_NOT_IN_WORKSPACE"
	ErrExecutionFailed    ToolErrorType = "EXECUTION_FAILED"
	ErrPermissionDenied   ToolErrorType = "PERMISSION_DENIED"
	ErrBinaryFile         ToolErrorType = "BINARY_FILE"
	ErrFileTooLarge       ToolErrorType = "FILE_TOO_LARGE"
	ErrTimeout            ToolErrorType = "TIMEOUT"
	ErrSymlinkEscape      ToolErrorType = "SYMLINK_ESCAPE"
	ErrBlockedURL         ToolErrorType = "BLOCKED_URL"
)

// ToolError provides structured error information for retry logic.
type ToolError struct {
	Type    ToolErrorType `json:"type"`
	Message string        `json:"message"`
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// NewToolError creates a new ToolError.
func NewToolError(errType ToolErrorType, message string) *ToolError {
	return &ToolError{Type: errType, Message: message}
}

// NewToolErrorf creates a new ToolError with formatted message.
func NewToolErrorf(errType ToolErrorType, format string, args ...interface{}) *ToolError {
	return &ToolError{Type: errType, Message: fmt.Sprintf(format, args...)}
}

// Tool specification names
const (
	ReadFileToolName    = "read_file"
	WriteFileToolName   = "write_file"
	EditFileToolName    = "edit_file"
	ListDirToolName     = "list_dir"
	SearchFilesToolName = "search_files"
	RunCommandToolName  = "run_command"
	FetchURLToolName    = "fetch_url"
)

// AllToolNames returns all valid tool spec names.
func AllToolNames() []string {
	return []string{
		ReadFileToolName,
		WriteFileToolName,
		EditFileToolName,
		ListDirToolName,
		SearchFilesToolName,
		RunCommandToolName,
		FetchURLToolName,
	}
}

// OutputLimits defines limits for tool output.
type OutputLimits struct {
	MaxLines   int   // Max lines for read_file (default 2000)
	MaxBytes   int64 // Max bytes per tool output (default 50KB)
	MaxResults int   // Max results for list_dir/search_files (default 100)
}

// DefaultOutputLimits returns the default output limits.
func DefaultOutputLimits() OutputLimits {
	return OutputLimits{
		MaxLines:   2000,
		MaxBytes:   50 * 1024, // 50KB
		MaxResults: 100,
	}
}
