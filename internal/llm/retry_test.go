package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// failNTimesProvider fails the first n Stream calls with err, then streams
// a single text event.
type failNTimesProvider struct {
	mu    sync.Mutex
	n     int
	err   error
	calls int
}

func (p *failNTimesProvider) Name() string                 { return "flaky" }
func (p *failNTimesProvider) Capabilities() Capabilities   { return Capabilities{ToolCalls: true} }
func (p *failNTimesProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	p.mu.Lock()
	p.calls++
	fail := p.calls <= p.n
	p.mu.Unlock()

	if fail {
		return nil, p.err
	}
	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		events <- Event{Type: EventTextDelta, Text: "recovered"}
		events <- Event{Type: EventDone}
		return nil
	}), nil
}

func fastRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func TestRetryRecoversFromRateLimit(t *testing.T) {
	inner := &failNTimesProvider{n: 2, err: errors.New("429 too many requests")}
	provider := WrapWithRetry(inner, fastRetryConfig())

	stream, err := provider.Stream(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	result, err := CollectStream(stream)
	if err != nil {
		t.Fatalf("CollectStream: %v", err)
	}
	if result.Text != "recovered" {
		t.Errorf("Text = %q", result.Text)
	}
	if inner.calls != 3 {
		t.Errorf("inner called %d times, want 3", inner.calls)
	}
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	inner := &failNTimesProvider{n: 100, err: errors.New("503 service unavailable")}
	provider := WrapWithRetry(inner, fastRetryConfig())

	stream, err := provider.Stream(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if _, err := CollectStream(stream); err == nil {
		t.Fatal("expected failure after max attempts")
	}
	if inner.calls != 3 {
		t.Errorf("inner called %d times, want 3", inner.calls)
	}
}

func TestRetryDoesNotRetryPermanentErrors(t *testing.T) {
	inner := &failNTimesProvider{n: 100, err: errors.New("401 unauthorized")}
	provider := WrapWithRetry(inner, fastRetryConfig())

	stream, err := provider.Stream(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if _, err := CollectStream(stream); err == nil {
		t.Fatal("expected error")
	}
	if inner.calls != 1 {
		t.Errorf("inner called %d times, want 1", inner.calls)
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{ErrMissingResponseText, true},
		{errors.New("429 Too Many Requests"), true},
		{errors.New("rate limit exceeded"), true},
		{errors.New("connection reset by peer"), true},
		{errors.New("model is overloaded"), true},
		{errors.New("invalid api key"), false},
		{errors.New("400 bad request"), false},
	}
	for _, tc := range cases {
		if got := isRetryable(tc.err); got != tc.want {
			t.Errorf("isRetryable(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestCalculateBackoffHonorsRetryAfter(t *testing.T) {
	r := &RetryProvider{config: RetryConfig{BaseBackoff: time.Second, MaxBackoff: 30 * time.Second}}

	wait := r.calculateBackoff(1, fmt.Errorf("429: retry-after: 7"))
	if wait != 7*time.Second {
		t.Errorf("wait = %v, want 7s", wait)
	}

	// Retry-After above the cap is clamped.
	wait = r.calculateBackoff(1, fmt.Errorf("retry after 999"))
	if wait != 30*time.Second {
		t.Errorf("wait = %v, want 30s cap", wait)
	}
}
