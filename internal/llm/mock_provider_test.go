package llm

import (
	"context"
	"encoding/json"
	"sync"
)

// fakeProvider plays back scripted event sequences, one per Stream call,
// and records every request it sees.
type fakeProvider struct {
	mu       sync.Mutex
	turns    [][]Event
	call     int
	requests []Request
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Capabilities() Capabilities { return Capabilities{ToolCalls: true} }

func (p *fakeProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	var events []Event
	if p.call < len(p.turns) {
		events = p.turns[p.call]
	}
	p.call++
	p.mu.Unlock()

	return newEventStream(ctx, func(ctx context.Context, ch chan<- Event) error {
		for _, e := range events {
			select {
			case ch <- e:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	}), nil
}

func (p *fakeProvider) recorded() []Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Request, len(p.requests))
	copy(out, p.requests)
	return out
}

// fakeTool is a scriptable Tool for engine tests.
type fakeTool struct {
	spec    ToolSpec
	mu      sync.Mutex
	calls   []json.RawMessage
	output  string
	execErr error
}

func (t *fakeTool) Spec() ToolSpec { return t.spec }

func (t *fakeTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	t.mu.Lock()
	t.calls = append(t.calls, args)
	t.mu.Unlock()
	if t.execErr != nil {
		return "", t.execErr
	}
	return t.output, nil
}

func (t *fakeTool) Preview(args json.RawMessage) string { return "" }

func (t *fakeTool) callCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

func toolCallEvent(id, name, args string) Event {
	return Event{Type: EventToolCall, Tool: &ToolCall{ID: id, Name: name, Arguments: json.RawMessage(args)}}
}
