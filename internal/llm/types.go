package llm

import (
	"context"
	"encoding/json"
)

// Provider streams model output events for a request.
type Provider interface {
	Name() string
	Capabilities() Capabilities
	Stream(ctx context.Context, req Request) (Stream, error)
}

// Capabilities describe optional provider features.
type Capabilities struct {
	ToolCalls bool
}

// Stream yields events until io.EOF.
type Stream interface {
	Recv() (Event, error)
	Close() error
}

// Request represents a single model turn.
type Request struct {
	Model             string
	Messages          []Message
	Tools             []ToolSpec
	ToolChoice        ToolChoice
	ParallelToolCalls bool
	MaxOutputTokens   int
	Temperature       float32
	TopP              float32
	MaxTurns          int // Max agentic turns for tool execution (0 = use default)
	Debug             bool
}

// Role identifies a message role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartType identifies a message content part.
type PartType string

const (
	PartText       PartType = "text"
	PartToolCall   PartType = "tool_call"
	PartToolResult PartType = "tool_result"
)

// Message holds a role with structured parts.
type Message struct {
	Role  Role
	Parts []Part
}

// Part represents a single content part.
type Part struct {
	Type       PartType
	Text       string
	ToolCall   *ToolCall
	ToolResult *ToolResult
}

// LocalSource is the source id for built-in tools. External servers use
// their configured name. Fully qualified tool ids are "source::name".
const LocalSource = "local"

// ToolSpec describes a callable tool.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]interface{}
	Source      string // owning backend; LocalSource for built-ins
	Destructive bool   // requires user confirmation before execution
}

// ToolChoiceMode controls tool selection behavior.
type ToolChoiceMode string

const (
	ToolChoiceAuto     ToolChoiceMode = "auto"
	ToolChoiceNone     ToolChoiceMode = "none"
	ToolChoiceRequired ToolChoiceMode = "required"
	ToolChoiceName     ToolChoiceMode = "name"
)

// ToolChoice configures which tool the model should call.
type ToolChoice struct {
	Mode ToolChoiceMode
	Name string
}

// ToolCall is a model-requested tool invocation. Arguments is assembled
// incrementally from argument deltas and is only guaranteed parseable once
// the call's content block has closed.
type ToolCall struct {
	ID         string
	Name       string
	Arguments  json.RawMessage
	ThoughtSig []byte // Gemini 3 thought signature (must be passed back in result)
}

// ToolResult is the output from executing a tool call.
type ToolResult struct {
	ID         string
	Name       string
	Content    string
	IsError    bool // True if this result represents a tool execution error
	ThoughtSig []byte
}

// EventType describes streaming events.
type EventType string

const (
	EventTextDelta     EventType = "text_delta"
	EventToolCallStart EventType = "tool_call_start" // New tool-use block opened
	EventToolCallDelta EventType = "tool_call_delta" // Argument fragment for an open block
	EventToolCall      EventType = "tool_call"       // Block closed, arguments complete
	EventServerToolUse EventType = "server_tool_use" // Provider-executed tool, informational only
	EventToolExecStart EventType = "tool_exec_start" // Emitted when tool execution begins
	EventToolExecEnd   EventType = "tool_exec_end"   // Emitted when tool execution completes
	EventConfirmation  EventType = "confirmation"    // A destructive tool awaits user approval
	EventUsage         EventType = "usage"
	EventDone          EventType = "done"
	EventError         EventType = "error"
	EventRetry         EventType = "retry" // Emitted when retrying after a transient failure
)

// Event represents a streamed output update.
type Event struct {
	Type         EventType
	Text         string
	Index        int64     // For EventToolCallStart/Delta: content-block index
	Tool         *ToolCall // For EventToolCall/EventServerToolUse
	ToolCallID   string    // For EventToolCallStart and EventToolExecStart/End
	ToolName     string    // For EventToolCallStart and EventToolExecStart/End
	ToolInfo     string    // For EventToolExecStart/End: short argument preview
	ToolSuccess  bool      // For EventToolExecEnd
	ToolOutput   string    // For EventToolExecEnd
	Confirmation *PendingConfirmation
	Use          *Usage
	Err          error
	// Retry fields (for EventRetry)
	RetryAttempt     int
	RetryMaxAttempts int
	RetryWaitSecs    float64
}

// Usage captures token usage if available.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// StreamResult is the aggregate of one completed stream.
type StreamResult struct {
	Text      string
	ToolCalls []ToolCall
	Usage     *Usage
}

func SystemText(text string) Message {
	return Message{
		Role:  RoleSystem,
		Parts: []Part{{Type: PartText, Text: text}},
	}
}

func UserText(text string) Message {
	return Message{
		Role:  RoleUser,
		Parts: []Part{{Type: PartText, Text: text}},
	}
}

func AssistantText(text string) Message {
	return Message{
		Role:  RoleAssistant,
		Parts: []Part{{Type: PartText, Text: text}},
	}
}

func ToolResultMessage(id, name, content string, thoughtSig []byte) Message {
	return Message{
		Role: RoleTool,
		Parts: []Part{{
			Type: PartToolResult,
			ToolResult: &ToolResult{
				ID:         id,
				Name:       name,
				Content:    content,
				ThoughtSig: thoughtSig,
			},
		}},
	}
}

// ToolErrorMessage creates a tool result message that indicates an error.
// The error is passed to the LLM so it can respond gracefully instead of
// failing the stream.
func ToolErrorMessage(id, name, errorText string, thoughtSig []byte) Message {
	return Message{
		Role: RoleTool,
		Parts: []Part{{
			Type: PartToolResult,
			ToolResult: &ToolResult{
				ID:         id,
				Name:       name,
				Content:    errorText,
				IsError:    true,
				ThoughtSig: thoughtSig,
			},
		}},
	}
}
