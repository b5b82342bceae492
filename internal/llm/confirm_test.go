package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestConfirmationFirstDecisionWins(t *testing.T) {
	pending := NewPendingConfirmation(ToolCall{ID: "1", Name: "write_file"}, "write main.go")

	pending.Approve()
	pending.Reject() // no-op; already resolved

	ok, err := pending.Decision(context.Background())
	if err != nil {
		t.Fatalf("Decision: %v", err)
	}
	if !ok {
		t.Error("first decision was Approve, Decision returned false")
	}
	if !pending.Resolved() {
		t.Error("Resolved() = false after decision")
	}
}

func TestConfirmationConcurrentResolvers(t *testing.T) {
	pending := NewPendingConfirmation(ToolCall{ID: "1", Name: "x"}, "")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(approve bool) {
			defer wg.Done()
			if approve {
				pending.Approve()
			} else {
				pending.Reject()
			}
		}(i%2 == 0)
	}
	wg.Wait()

	// Whichever won, Decision must return without hanging.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := pending.Decision(ctx); err != nil {
		t.Fatalf("Decision: %v", err)
	}
}

func TestConfirmationAbandonedOnCancel(t *testing.T) {
	pending := NewPendingConfirmation(ToolCall{ID: "1", Name: "x"}, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pending.Decision(ctx)
	if !errors.Is(err, ErrConfirmationAbandoned) {
		t.Errorf("err = %v, want ErrConfirmationAbandoned", err)
	}
	if pending.Resolved() {
		t.Error("cancellation must not count as a decision")
	}
}
