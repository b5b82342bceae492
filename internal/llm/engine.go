package llm

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rbholmes/toolchat/internal/debuglog"
)

const (
	defaultMaxTurns = 20
	lastTurnHint    = "IMPORTANT: Do not call any tools. Use the information already gathered and answer directly."
)

func getMaxTurns(req Request) int {
	if req.MaxTurns > 0 {
		return req.MaxTurns
	}
	return defaultMaxTurns
}

// Engine orchestrates provider streaming and tool execution. One Engine
// drives one conversation; turns never overlap within a conversation, but
// independent engines run concurrently.
type Engine struct {
	provider Provider
	tools    *ToolRegistry
	logger   *debuglog.Logger

	// confirm is consulted before every destructive tool call unless
	// autoApprove is set. Protected by confirmMu so the UI can swap it
	// while a stream is in flight.
	confirm     ConfirmFunc
	autoApprove bool
	confirmMu   sync.RWMutex
}

func NewEngine(provider Provider, tools *ToolRegistry) *Engine {
	if tools == nil {
		tools = NewToolRegistry()
	}
	return &Engine{
		provider: provider,
		tools:    tools,
		logger:   debuglog.Discard(),
	}
}

// RegisterTool adds a tool to the engine's registry.
func (e *Engine) RegisterTool(tool Tool) {
	e.tools.Register(tool)
}

// Tools returns the engine's tool registry.
func (e *Engine) Tools() *ToolRegistry {
	return e.tools
}

// SetLogger sets the debug logger for this engine.
func (e *Engine) SetLogger(logger *debuglog.Logger) {
	if logger == nil {
		logger = debuglog.Discard()
	}
	e.logger = logger
}

// SetConfirmFunc installs the handler that resolves destructive-tool
// confirmations. Thread-safe.
func (e *Engine) SetConfirmFunc(fn ConfirmFunc) {
	e.confirmMu.Lock()
	e.confirm = fn
	e.confirmMu.Unlock()
}

// SetAutoApprove bypasses the confirmation gate for this engine. Dangerous;
// intended for explicit opt-in only.
func (e *Engine) SetAutoApprove(v bool) {
	e.confirmMu.Lock()
	e.autoApprove = v
	e.confirmMu.Unlock()
}

func (e *Engine) confirmState() (ConfirmFunc, bool) {
	e.confirmMu.RLock()
	defer e.confirmMu.RUnlock()
	return e.confirm, e.autoApprove
}

// Stream returns a stream for one conversational exchange. When the request
// carries tools and the provider supports tool calls, the stream runs the
// full agentic loop; otherwise it passes the provider stream through.
func (e *Engine) Stream(ctx context.Context, req Request) (Stream, error) {
	useLoop := len(req.Tools) > 0 && e.provider.Capabilities().ToolCalls
	if useLoop {
		return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
			return e.runLoop(ctx, req, events)
		}), nil
	}
	return e.provider.Stream(ctx, req)
}

func (e *Engine) runLoop(ctx context.Context, req Request, events chan<- Event) error {
	maxTurns := getMaxTurns(req)

	for attempt := 0; attempt < maxTurns; attempt++ {
		if attempt == maxTurns-1 {
			req.Messages = append(req.Messages, SystemText(lastTurnHint))
			req.ToolChoice = ToolChoice{Mode: ToolChoiceNone}
		} else if attempt > 0 {
			req.ToolChoice = ToolChoice{Mode: ToolChoiceAuto}
		}

		e.logger.Printf("turn %d: provider=%s model=%s messages=%d tools=%d",
			attempt, e.provider.Name(), req.Model, len(req.Messages), len(req.Tools))

		stream, err := e.provider.Stream(ctx, req)
		if err != nil {
			return err
		}

		var toolCalls []ToolCall
		var textBuilder strings.Builder
		for {
			event, err := stream.Recv()
			if err == io.EOF {
				break
			}
			if err != nil {
				stream.Close()
				return err
			}
			if event.Type == EventError && event.Err != nil {
				stream.Close()
				return event.Err
			}
			if event.Type == EventTextDelta && event.Text != "" {
				textBuilder.WriteString(event.Text)
			}
			if event.Type == EventToolCall && event.Tool != nil {
				toolCalls = append(toolCalls, *event.Tool)
				continue
			}
			if event.Type == EventDone {
				continue
			}
			events <- event
		}
		stream.Close()

		if len(toolCalls) == 0 {
			events <- Event{Type: EventDone}
			return nil
		}
		if attempt == maxTurns-1 {
			return fmt.Errorf("agentic loop exceeded max turns (%d)", maxTurns)
		}

		toolCalls = ensureToolCallIDs(toolCalls)
		toolCalls = dedupeToolCalls(toolCalls)

		toolResults, err := e.gateAndExecute(ctx, toolCalls, events)
		if err != nil {
			return err
		}

		req.Messages = append(req.Messages, buildAssistantMessage(textBuilder.String(), toolCalls))
		req.Messages = append(req.Messages, toolResults...)
	}

	return fmt.Errorf("agentic loop ended unexpectedly")
}

// gateAndExecute walks tool calls in the order the model emitted them,
// resolving confirmations for destructive calls one at a time, then runs
// the approved calls. Every call yields exactly one result message in the
// original order; rejections and failures become error-flagged results so
// the model can react.
func (e *Engine) gateAndExecute(ctx context.Context, calls []ToolCall, events chan<- Event) ([]Message, error) {
	confirm, autoApprove := e.confirmState()

	results := make([]Message, len(calls))
	var approved []int

	for i, call := range calls {
		tool, ok := e.tools.Get(call.Name)
		if !ok || !tool.Spec().Destructive || autoApprove {
			approved = append(approved, i)
			continue
		}

		pending := NewPendingConfirmation(call, e.getToolPreview(call))
		events <- Event{Type: EventConfirmation, ToolCallID: call.ID, ToolName: call.Name, Confirmation: pending}
		if confirm != nil {
			confirm(ctx, pending)
		} else {
			pending.Reject()
		}

		ok, err := pending.Decision(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			msg := fmt.Sprintf("Error: user declined to run %s", call.Name)
			e.logger.Printf("tool %s (%s): rejected by user", call.Name, call.ID)
			results[i] = ToolErrorMessage(call.ID, call.Name, msg, call.ThoughtSig)
			continue
		}
		approved = append(approved, i)
	}

	if err := e.executeToolCalls(ctx, calls, approved, results, events); err != nil {
		return nil, err
	}
	return results, nil
}

// executeToolCalls runs the approved calls, in parallel when there is more
// than one. EventToolExecStart/End may arrive out of order from concurrent
// goroutines; consumers correlate by ToolCallID.
func (e *Engine) executeToolCalls(ctx context.Context, calls []ToolCall, approved []int, results []Message, events chan<- Event) error {
	if len(approved) == 0 {
		return nil
	}

	for _, idx := range approved {
		call := calls[idx]
		events <- Event{Type: EventToolExecStart, ToolCallID: call.ID, ToolName: call.Name, ToolInfo: e.getToolPreview(call)}
	}

	if len(approved) == 1 {
		idx := approved[0]
		results[idx] = e.executeSingleToolCall(ctx, calls[idx], events)
		return nil
	}

	var wg sync.WaitGroup
	for _, idx := range approved {
		wg.Add(1)
		go func(i int, c ToolCall) {
			defer wg.Done()
			results[i] = e.executeSingleToolCall(ctx, c, events)
		}(idx, calls[idx])
	}
	wg.Wait()
	return nil
}

// executeSingleToolCall runs one tool call and returns its result message.
// Execution failures never abort the loop; they are converted to
// error-flagged results so the model sees its own mistakes.
func (e *Engine) executeSingleToolCall(ctx context.Context, call ToolCall, events chan<- Event) Message {
	info := e.getToolPreview(call)

	tool, ok := e.tools.Get(call.Name)
	if !ok {
		errMsg := fmt.Sprintf("Error: tool not registered: %s", call.Name)
		e.logger.Printf("tool %s (%s): %s", call.Name, call.ID, errMsg)
		events <- Event{Type: EventToolExecEnd, ToolCallID: call.ID, ToolName: call.Name, ToolInfo: info, ToolSuccess: false}
		return ToolErrorMessage(call.ID, call.Name, errMsg, call.ThoughtSig)
	}

	output, err := tool.Execute(ctx, call.Arguments)
	if err != nil {
		errMsg := fmt.Sprintf("Error: %v", err)
		e.logger.Printf("tool %s (%s): %s", call.Name, call.ID, errMsg)
		events <- Event{Type: EventToolExecEnd, ToolCallID: call.ID, ToolName: call.Name, ToolInfo: info, ToolSuccess: false}
		return ToolErrorMessage(call.ID, call.Name, errMsg, call.ThoughtSig)
	}

	e.logger.Printf("tool %s (%s): %d bytes", call.Name, call.ID, len(output))
	events <- Event{Type: EventToolExecEnd, ToolCallID: call.ID, ToolName: call.Name, ToolInfo: info, ToolSuccess: true, ToolOutput: output}
	return ToolResultMessage(call.ID, call.Name, output, call.ThoughtSig)
}

// buildAssistantMessage creates an assistant message with text and tool calls.
func buildAssistantMessage(text string, toolCalls []ToolCall) Message {
	var parts []Part
	if text != "" {
		parts = append(parts, Part{Type: PartText, Text: text})
	}
	for i := range toolCalls {
		call := toolCalls[i]
		parts = append(parts, Part{Type: PartToolCall, ToolCall: &call})
	}
	return Message{Role: RoleAssistant, Parts: parts}
}

func ensureToolCallIDs(calls []ToolCall) []ToolCall {
	for i := range calls {
		if strings.TrimSpace(calls[i].ID) == "" {
			calls[i].ID = fmt.Sprintf("toolcall-%d", i+1)
		}
	}
	return calls
}

func dedupeToolCalls(calls []ToolCall) []ToolCall {
	if len(calls) < 2 {
		return calls
	}
	seen := make(map[string]struct{}, len(calls))
	out := make([]ToolCall, 0, len(calls))
	for _, call := range calls {
		id := strings.TrimSpace(call.ID)
		if id == "" {
			out = append(out, call)
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, call)
	}
	return out
}

// getToolPreview returns a preview string for a tool call.
func (e *Engine) getToolPreview(call ToolCall) string {
	if tool, ok := e.tools.Get(call.Name); ok {
		if preview := tool.Preview(call.Arguments); preview != "" {
			if !strings.HasPrefix(preview, "(") {
				return "(" + preview + ")"
			}
			return preview
		}
	}
	return ExtractToolInfo(call)
}
