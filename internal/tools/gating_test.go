package tools

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rbholmes/toolchat/internal/llm"
)

// sliceStream plays back a fixed event sequence.
type sliceStream struct {
	events []llm.Event
	pos    int
}

func (s *sliceStream) Recv() (llm.Event, error) {
	if s.pos >= len(s.events) {
		return llm.Event{}, io.EOF
	}
	e := s.events[s.pos]
	s.pos++
	return e, nil
}

func (s *sliceStream) Close() error { return nil }

// scriptProvider returns one scripted event sequence per Stream call and
// records every request it sees.
type scriptProvider struct {
	turns    [][]llm.Event
	call     int
	requests []llm.Request
}

func (p *scriptProvider) Name() string                   { return "script" }
func (p *scriptProvider) Capabilities() llm.Capabilities { return llm.Capabilities{ToolCalls: true} }
func (p *scriptProvider) Stream(ctx context.Context, req llm.Request) (llm.Stream, error) {
	p.requests = append(p.requests, req)
	events := p.turns[p.call]
	if p.call < len(p.turns)-1 {
		p.call++
	}
	return &sliceStream{events: events}, nil
}

func writeCallTurn(t *testing.T, path, content string) []llm.Event {
	t.Helper()
	args, err := json.Marshal(WriteFileArgs{FilePath: path, Content: content})
	if err != nil {
		t.Fatal(err)
	}
	return []llm.Event{
		{Type: llm.EventToolCall, Tool: &llm.ToolCall{ID: "call-1", Name: WriteFileToolName, Arguments: args}},
		{Type: llm.EventDone},
	}
}

func drain(t *testing.T, stream llm.Stream) {
	t.Helper()
	defer stream.Close()
	for {
		event, err := stream.Recv()
		if err == io.EOF {
			return
		}
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if event.Type == llm.EventError && event.Err != nil {
			t.Fatalf("stream error: %v", event.Err)
		}
	}
}

func gatingEngine(t *testing.T, sb *Sandbox, provider llm.Provider) *llm.Engine {
	t.Helper()
	registry := llm.NewToolRegistry()
	registry.Register(NewWriteFileTool(sb))
	return llm.NewEngine(provider, registry)
}

func TestRejectedWriteLeavesNoFile(t *testing.T) {
	sb := mustSandbox(t, t.TempDir())
	provider := &scriptProvider{turns: [][]llm.Event{
		writeCallTurn(t, "out.txt", "payload"),
		{{Type: llm.EventTextDelta, Text: "understood"}, {Type: llm.EventDone}},
	}}

	engine := gatingEngine(t, sb, provider)
	engine.SetConfirmFunc(func(ctx context.Context, pending *llm.PendingConfirmation) {
		pending.Reject()
	})

	stream, err := engine.Stream(context.Background(), llm.Request{
		Messages: []llm.Message{llm.UserText("write the file")},
		Tools:    engine.Tools().AllSpecs(),
	})
	if err != nil {
		t.Fatal(err)
	}
	drain(t, stream)

	if _, err := os.Stat(filepath.Join(sb.Root(), "out.txt")); !os.IsNotExist(err) {
		t.Error("rejected write_file created the file anyway")
	}

	// The model receives an error-flagged result explaining the rejection.
	if len(provider.requests) != 2 {
		t.Fatalf("provider called %d times, want 2", len(provider.requests))
	}
	var result *llm.ToolResult
	for _, msg := range provider.requests[1].Messages {
		for _, part := range msg.Parts {
			if part.Type == llm.PartToolResult {
				result = part.ToolResult
			}
		}
	}
	if result == nil {
		t.Fatal("no tool result fed back to the model")
	}
	if !result.IsError || !strings.Contains(result.Content, "declined") {
		t.Errorf("result = %+v, want error mentioning the declined call", result)
	}
}

func TestApprovedWriteCreatesFile(t *testing.T) {
	sb := mustSandbox(t, t.TempDir())
	provider := &scriptProvider{turns: [][]llm.Event{
		writeCallTurn(t, "out.txt", "payload"),
		{{Type: llm.EventTextDelta, Text: "done"}, {Type: llm.EventDone}},
	}}

	engine := gatingEngine(t, sb, provider)
	engine.SetConfirmFunc(func(ctx context.Context, pending *llm.PendingConfirmation) {
		pending.Approve()
	})

	stream, err := engine.Stream(context.Background(), llm.Request{
		Messages: []llm.Message{llm.UserText("write the file")},
		Tools:    engine.Tools().AllSpecs(),
	})
	if err != nil {
		t.Fatal(err)
	}
	drain(t, stream)

	data, err := os.ReadFile(filepath.Join(sb.Root(), "out.txt"))
	if err != nil {
		t.Fatalf("approved write_file did not create the file: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("content = %q", data)
	}
}
