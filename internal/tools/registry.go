package tools

import (
	"github.com/rbholmes/toolchat/internal/llm"
)

// All returns the built-in tool set, every tool confined to the sandbox.
func All(sandbox *Sandbox, limits OutputLimits) []llm.Tool {
	return []llm.Tool{
		NewReadFileTool(sandbox, limits),
		NewWriteFileTool(sandbox),
		NewEditFileTool(sandbox),
		NewListDirTool(sandbox, limits),
		NewSearchFilesTool(sandbox, limits),
		NewRunCommandTool(sandbox, limits),
		NewFetchURLTool(limits),
	}
}
