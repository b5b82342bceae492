package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rbholmes/toolchat/internal/llm"
)

// SearchFilesTool implements the search_files tool.
type SearchFilesTool struct {
	sandbox *Sandbox
	limits  OutputLimits
}

// NewSearchFilesTool creates a new SearchFilesTool.
func NewSearchFilesTool(sandbox *Sandbox, limits OutputLimits) *SearchFilesTool {
	return &SearchFilesTool{
		sandbox: sandbox,
		limits:  limits,
	}
}

// SearchFilesArgs are the arguments for search_files.
type SearchFilesArgs struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path,omitempty"`
}

// FileEntry represents a file in search results.
type FileEntry struct {
	FilePath  string    `json:"file_path"`
	IsDir     bool      `json:"is_dir"`
	SizeBytes int64     `json:"size_bytes"`
	ModTime   time.Time `json:"mod_time"`
}

func (t *SearchFilesTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        SearchFilesToolName,
		Description: "Find files by glob pattern (supports ** for recursive matching). Returns file metadata sorted by modification time.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"pattern": map[string]interface{}{
					"type":        "string",
					"description": "Glob pattern supporting ** for recursive matching, e.g., '**/*.go' or 'src/**/*.ts'",
				},
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Base directory for the search, relative to the workspace (defaults to the workspace root)",
				},
			},
			"required":             []string{"pattern"},
			"additionalProperties": false,
		},
	}
}

func (t *SearchFilesTool) Preview(args json.RawMessage) string {
	var a SearchFilesArgs
	if err := json.Unmarshal(args, &a); err != nil || a.Pattern == "" {
		return ""
	}
	if a.Path != "" {
		return fmt.Sprintf("%s in %s", a.Pattern, a.Path)
	}
	return a.Pattern
}

func (t *SearchFilesTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	var a SearchFilesArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", NewToolError(ErrInvalidParams, err.Error())
	}
	if a.Pattern == "" {
		return "", NewToolError(ErrInvalidParams, "pattern is required")
	}
	if a.Path == "" {
		a.Path = "."
	}

	absBasePath, err := t.sandbox.Resolve(a.Path)
	if err != nil {
		return "", err
	}

	// Find matching files by walking the directory
	var entries []FileEntry
	pattern := a.Pattern

	err = filepath.WalkDir(absBasePath, func(path string, d os.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			return nil // Skip errors
		}

		// Skip hidden directories
		if d.IsDir() && strings.HasPrefix(d.Name(), ".") && path != absBasePath {
			return filepath.SkipDir
		}

		// Skip hidden files
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}

		// Get relative path for matching
		relPath, err := filepath.Rel(absBasePath, path)
		if err != nil {
			return nil
		}

		matched, err := doublestar.Match(pattern, relPath)
		if err != nil {
			return nil
		}
		if !matched {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		entries = append(entries, FileEntry{
			FilePath:  relPath,
			IsDir:     d.IsDir(),
			SizeBytes: info.Size(),
			ModTime:   info.ModTime(),
		})

		if len(entries) >= t.limits.MaxResults {
			return filepath.SkipAll
		}

		return nil
	})

	if err != nil {
		return "", NewToolErrorf(ErrExecutionFailed, "walk error: %v", err)
	}

	// Sort by modification time (newest first)
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ModTime.After(entries[j].ModTime)
	})

	if len(entries) == 0 {
		return "No files matched the pattern.", nil
	}

	return t.formatResults(entries, len(entries) >= t.limits.MaxResults), nil
}

// formatResults formats search results for the LLM.
func (t *SearchFilesTool) formatResults(entries []FileEntry, truncated bool) string {
	var sb strings.Builder

	for _, e := range entries {
		typeIndicator := "f"
		if e.IsDir {
			typeIndicator = "d"
		}
		sb.WriteString(fmt.Sprintf("[%s] %s  %s  %s\n",
			typeIndicator, formatSize(e.SizeBytes), e.ModTime.Format("2006-01-02 15:04"), e.FilePath))
	}

	if truncated {
		sb.WriteString(fmt.Sprintf("\n[Results truncated at %d files]", t.limits.MaxResults))
	}

	return strings.TrimSuffix(sb.String(), "\n")
}

// formatSize formats a byte count as human-readable.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%4dB", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%4.0f%c", float64(bytes)/float64(div), "KMGTPE"[exp])
}
