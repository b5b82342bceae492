package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
)

// ErrMissingResponseText is returned when a stream completes without emitting
// any text or tool calls. Silence is always an error, never an empty success.
var ErrMissingResponseText = errors.New("model returned no text and no tool calls")

// eventStream adapts a producer function into a Stream. The producer runs in
// its own goroutine and writes to the events channel; a non-nil return error
// is delivered as a final EventError before the stream terminates.
type eventStream struct {
	events <-chan Event
	cancel context.CancelFunc

	mu   sync.Mutex
	done bool
}

// newEventStream runs producer in a goroutine and exposes its events as a
// Stream. Closing the stream cancels the producer's context; the producer is
// expected to return promptly once its context is cancelled.
func newEventStream(ctx context.Context, producer func(ctx context.Context, events chan<- Event) error) Stream {
	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan Event, 16)

	go func() {
		defer close(ch)
		if err := producer(ctx, ch); err != nil {
			select {
			case ch <- Event{Type: EventError, Err: err}:
			case <-ctx.Done():
			}
		}
	}()

	return &eventStream{events: ch, cancel: cancel}
}

func (s *eventStream) Recv() (Event, error) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return Event{}, io.EOF
	}
	s.mu.Unlock()

	event, ok := <-s.events
	if !ok {
		s.mu.Lock()
		s.done = true
		s.mu.Unlock()
		return Event{}, io.EOF
	}
	return event, nil
}

func (s *eventStream) Close() error {
	s.cancel()
	return nil
}

// contentTracker records whether a provider stream produced any model output
// and owns the closing event sequence. Every adapter ends its producer with
// Finish: silence becomes ErrMissingResponseText, otherwise usage (when
// captured) and the terminal done event are emitted in order.
type contentTracker struct {
	events chan<- Event
	saw    bool
	usage  *Usage
}

func newContentTracker(events chan<- Event) *contentTracker {
	return &contentTracker{events: events}
}

// MarkContent notes that the stream produced text or a complete tool call.
func (t *contentTracker) MarkContent() {
	t.saw = true
}

// SetUsage records the most recent usage report; later reports replace
// earlier ones.
func (t *contentTracker) SetUsage(usage *Usage) {
	if usage != nil {
		t.usage = usage
	}
}

// Finish closes out the stream. A stream that saw no content fails with
// ErrMissingResponseText and emits nothing.
func (t *contentTracker) Finish() error {
	if !t.saw {
		return ErrMissingResponseText
	}
	if t.usage != nil {
		t.events <- Event{Type: EventUsage, Use: t.usage}
	}
	t.events <- Event{Type: EventDone}
	return nil
}

// toolCallAccumulator assembles streamed tool calls keyed by content-block
// index. Start announces the block (emitting EventToolCallStart), Append
// concatenates argument fragments in arrival order (emitting
// EventToolCallDelta), and Finish yields the completed call once the block
// closes. Providers that deliver complete arguments up front pass them to
// Start; they are used as a fallback when no deltas arrive.
type toolCallAccumulator struct {
	events   chan<- Event
	calls    map[int64]ToolCall
	fallback map[int64]json.RawMessage
	partial  map[int64]*strings.Builder
}

func newToolCallAccumulator(events chan<- Event) *toolCallAccumulator {
	return &toolCallAccumulator{
		events:   events,
		calls:    make(map[int64]ToolCall),
		fallback: make(map[int64]json.RawMessage),
		partial:  make(map[int64]*strings.Builder),
	}
}

func (a *toolCallAccumulator) Start(index int64, call ToolCall) {
	if len(call.Arguments) > 0 {
		a.fallback[index] = call.Arguments
	}
	call.Arguments = nil
	a.calls[index] = call
	if a.events != nil {
		a.events <- Event{Type: EventToolCallStart, Index: index, ToolCallID: call.ID, ToolName: call.Name}
	}
}

func (a *toolCallAccumulator) Append(index int64, partial string) {
	if partial == "" {
		return
	}
	builder := a.partial[index]
	if builder == nil {
		builder = &strings.Builder{}
		a.partial[index] = builder
	}
	builder.WriteString(partial)
	if a.events != nil {
		a.events <- Event{Type: EventToolCallDelta, Index: index, Text: partial}
	}
}

func (a *toolCallAccumulator) Finish(index int64) (ToolCall, bool) {
	call, ok := a.calls[index]
	if !ok {
		return ToolCall{}, false
	}
	if builder := a.partial[index]; builder != nil && builder.Len() > 0 {
		call.Arguments = json.RawMessage(builder.String())
	} else if fallback, ok := a.fallback[index]; ok {
		call.Arguments = fallback
	}
	delete(a.calls, index)
	delete(a.partial, index)
	delete(a.fallback, index)
	return call, true
}

// CollectStream drains a stream into a StreamResult. The stream is closed
// before returning. A mid-stream EventError aborts collection with that error.
func CollectStream(stream Stream) (*StreamResult, error) {
	defer stream.Close()

	result := &StreamResult{}
	var text strings.Builder
	for {
		event, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch event.Type {
		case EventTextDelta:
			text.WriteString(event.Text)
		case EventToolCall:
			if event.Tool != nil {
				result.ToolCalls = append(result.ToolCalls, *event.Tool)
			}
		case EventUsage:
			if event.Use != nil {
				if result.Usage == nil {
					result.Usage = &Usage{}
				}
				result.Usage.InputTokens += event.Use.InputTokens
				result.Usage.OutputTokens += event.Use.OutputTokens
			}
		case EventError:
			if event.Err != nil {
				return nil, event.Err
			}
		}
	}
	result.Text = text.String()
	return result, nil
}

func chooseModel(requested, fallback string) string {
	if requested != "" {
		return requested
	}
	return fallback
}

func maxTokens(requested, fallback int) int64 {
	if requested > 0 {
		return int64(requested)
	}
	return int64(fallback)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func schemaRequired(schema map[string]interface{}) []string {
	if required, ok := schema["required"].([]string); ok {
		return required
	}
	if required, ok := schema["required"].([]interface{}); ok {
		out := make([]string, 0, len(required))
		for _, r := range required {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
