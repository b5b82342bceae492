package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rbholmes/toolchat/internal/llm"
)

// commandTimeout is the hard wall-clock limit for run_command. There is no
// parameter to raise it; a runaway command is killed, never waited out.
const commandTimeout = 30 * time.Second

// RunCommandTool implements the run_command tool.
type RunCommandTool struct {
	sandbox *Sandbox
	limits  OutputLimits

	// Timeout overrides the default wall-clock limit. Zero means
	// commandTimeout.
	Timeout time.Duration
}

// NewRunCommandTool creates a new RunCommandTool.
func NewRunCommandTool(sandbox *Sandbox, limits OutputLimits) *RunCommandTool {
	return &RunCommandTool{
		sandbox: sandbox,
		limits:  limits,
	}
}

func (t *RunCommandTool) timeout() time.Duration {
	if t.Timeout > 0 {
		return t.Timeout
	}
	return commandTimeout
}

// RunCommandArgs are the arguments for the run_command tool.
type RunCommandArgs struct {
	Command    string `json:"command"`
	WorkingDir string `json:"working_dir,omitempty"`
}

// ShellResult contains the result of a shell command.
type ShellResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
	TimedOut bool   `json:"timed_out,omitempty"`
}

func (t *RunCommandTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        RunCommandToolName,
		Description: "Execute a shell command in the workspace. Returns stdout, stderr, and exit code. Commands are killed after 30 seconds.",
		Destructive: true,
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"command": map[string]interface{}{
					"type":        "string",
					"description": "Shell command to execute",
				},
				"working_dir": map[string]interface{}{
					"type":        "string",
					"description": "Working directory relative to the workspace (defaults to the workspace root)",
				},
			},
			"required":             []string{"command"},
			"additionalProperties": false,
		},
	}
}

func (t *RunCommandTool) Preview(args json.RawMessage) string {
	var a RunCommandArgs
	if err := json.Unmarshal(args, &a); err != nil || a.Command == "" {
		return ""
	}
	return truncateCommand(a.Command)
}

func (t *RunCommandTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a RunCommandArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", NewToolError(ErrInvalidParams, err.Error())
	}
	if a.Command == "" {
		return "", NewToolError(ErrInvalidParams, "command is required")
	}

	workDir := t.sandbox.Root()
	if a.WorkingDir != "" {
		resolved, err := t.sandbox.Resolve(a.WorkingDir)
		if err != nil {
			return "", err
		}
		workDir = resolved
	}

	shell := detectShell()

	execCtx, cancel := context.WithTimeout(ctx, t.timeout())
	defer cancel()

	cmd := exec.CommandContext(execCtx, shell, "-c", a.Command)
	cmd.Dir = workDir
	// Killing the shell can orphan a grandchild that keeps the output pipes
	// open; WaitDelay stops Run from blocking on it.
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	result := ShellResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: 0,
	}

	// A timed-out command is reported as a result, not an error; partial
	// output is often still useful to the model.
	if execCtx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
		return formatShellResult(result, t.limits), nil
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			return "", NewToolErrorf(ErrExecutionFailed, "command error: %v", err)
		}
	}

	return formatShellResult(result, t.limits), nil
}

// formatShellResult formats the shell result for the LLM.
func formatShellResult(result ShellResult, limits OutputLimits) string {
	var sb strings.Builder

	// Truncate output if needed
	stdout := result.Stdout
	stderr := result.Stderr
	truncated := false

	if int64(len(stdout)) > limits.MaxBytes {
		stdout = stdout[:limits.MaxBytes]
		truncated = true
	}
	if int64(len(stderr)) > limits.MaxBytes {
		stderr = stderr[:limits.MaxBytes]
		truncated = true
	}

	if result.TimedOut {
		sb.WriteString("[Command timed out]\n\n")
	}

	if stdout != "" {
		sb.WriteString("stdout:\n")
		sb.WriteString(stdout)
		if !strings.HasSuffix(stdout, "\n") {
			sb.WriteString("\n")
		}
	}

	if stderr != "" {
		if stdout != "" {
			sb.WriteString("\n")
		}
		sb.WriteString("stderr:\n")
		sb.WriteString(stderr)
		if !strings.HasSuffix(stderr, "\n") {
			sb.WriteString("\n")
		}
	}

	sb.WriteString(fmt.Sprintf("\nexit_code: %d", result.ExitCode))

	if truncated {
		sb.WriteString("\n\n[Output truncated due to size limit]")
	}

	return sb.String()
}

// detectShell returns the user's shell.
func detectShell() string {
	shell := os.Getenv("SHELL")
	if shell == "" {
		return "bash"
	}
	// Use full path for execution
	return shell
}

// truncateCommand truncates a command for error messages.
func truncateCommand(cmd string) string {
	if len(cmd) > 50 {
		return cmd[:47] + "..."
	}
	return cmd
}
