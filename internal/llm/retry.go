package llm

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// RetryConfig controls how many attempts a wrapped provider gets and how
// long to wait between them.
type RetryConfig struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 5,
		BaseBackoff: 1 * time.Second,
		MaxBackoff:  30 * time.Second,
	}
}

// RetryProvider retries transient failures (rate limits, gateway errors,
// dropped connections, silent responses) with exponential backoff. Permanent
// errors pass through on the first attempt.
type RetryProvider struct {
	inner  Provider
	config RetryConfig
}

func WrapWithRetry(p Provider, config RetryConfig) Provider {
	return &RetryProvider{inner: p, config: config}
}

func (r *RetryProvider) Name() string { return r.inner.Name() }

func (r *RetryProvider) Capabilities() Capabilities { return r.inner.Capabilities() }

func (r *RetryProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		var lastErr error
		for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
			lastErr = r.attempt(ctx, req, events)
			if lastErr == nil {
				return nil
			}
			if !isRetryable(lastErr) || ctx.Err() != nil {
				return lastErr
			}
			if attempt == r.config.MaxAttempts {
				break
			}

			wait := r.calculateBackoff(attempt, lastErr)
			events <- Event{
				Type:             EventRetry,
				RetryAttempt:     attempt,
				RetryMaxAttempts: r.config.MaxAttempts,
				RetryWaitSecs:    wait.Seconds(),
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		return lastErr
	}), nil
}

// attempt opens one inner stream and relays its events. Any failure, at open
// or mid-stream, is returned for the retry decision; events already relayed
// stay relayed (the consumer sees a retry event, not a rewind).
func (r *RetryProvider) attempt(ctx context.Context, req Request, events chan<- Event) error {
	stream, err := r.inner.Stream(ctx, req)
	if err != nil {
		return err
	}
	defer stream.Close()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		event, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if event.Type == EventError && event.Err != nil {
			// Mid-stream failures (a 429 can arrive after headers).
			return event.Err
		}
		select {
		case events <- event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// transientMarkers are substrings of error text that indicate a failure
// worth retrying. Providers render status codes into their error strings,
// so matching on text covers all three SDKs.
var transientMarkers = []string{
	"429", "rate limit", "too many requests",
	"502", "bad gateway",
	"503", "service unavailable",
	"overloaded",
	"connection refused", "connection reset",
	"timeout", "deadline exceeded",
	"temporary failure", "no such host",
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrMissingResponseText) {
		return true
	}
	text := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

var retryAfterRegex = regexp.MustCompile(`(?i)retry[- ]?after[:\s]+(\d+)`)

// calculateBackoff prefers a Retry-After value embedded in the error text;
// otherwise exponential backoff with +/-25% jitter. Both are clamped to
// MaxBackoff.
func (r *RetryProvider) calculateBackoff(attempt int, err error) time.Duration {
	if err != nil {
		if m := retryAfterRegex.FindStringSubmatch(err.Error()); len(m) > 1 {
			if secs, parseErr := strconv.Atoi(m[1]); parseErr == nil && secs > 0 {
				return min(time.Duration(secs)*time.Second, r.config.MaxBackoff)
			}
		}
	}

	backoff := float64(r.config.BaseBackoff) * math.Pow(2, float64(attempt-1))
	backoff += (rand.Float64() - 0.5) * 0.5 * backoff
	return min(time.Duration(backoff), r.config.MaxBackoff)
}
