package llm

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// ErrConfirmationAbandoned is returned from Decision when the turn is
// cancelled before the user answered. Cancellation never counts as a
// decision on the user's behalf.
var ErrConfirmationAbandoned = errors.New("confirmation abandoned before resolution")

// PendingConfirmation represents a destructive tool call awaiting user
// approval. It resolves exactly once: the first Approve or Reject wins,
// later calls are no-ops. The executor never resolves it, only the UI does.
type PendingConfirmation struct {
	ToolCallID string
	ToolName   string
	Arguments  json.RawMessage
	Summary    string // human-readable description of what the tool will do

	once     sync.Once
	done     chan struct{}
	approved bool
}

// NewPendingConfirmation creates an unresolved confirmation for a tool call.
func NewPendingConfirmation(call ToolCall, summary string) *PendingConfirmation {
	return &PendingConfirmation{
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Arguments:  call.Arguments,
		Summary:    summary,
		done:       make(chan struct{}),
	}
}

// Approve resolves the confirmation in favor of execution.
func (p *PendingConfirmation) Approve() { p.resolve(true) }

// Reject resolves the confirmation against execution.
func (p *PendingConfirmation) Reject() { p.resolve(false) }

func (p *PendingConfirmation) resolve(approved bool) {
	p.once.Do(func() {
		p.approved = approved
		close(p.done)
	})
}

// Decision blocks until the confirmation is resolved or ctx is cancelled.
// On cancellation it returns ErrConfirmationAbandoned without fabricating
// an answer.
func (p *PendingConfirmation) Decision(ctx context.Context) (bool, error) {
	select {
	case <-p.done:
		return p.approved, nil
	case <-ctx.Done():
		return false, ErrConfirmationAbandoned
	}
}

// Resolved reports whether a decision has been made, without blocking.
func (p *PendingConfirmation) Resolved() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// ConfirmFunc is invoked by the engine when a destructive tool call needs
// approval. Implementations prompt the user (or consult policy) and resolve
// the confirmation; the engine waits on Decision with the turn's context.
type ConfirmFunc func(ctx context.Context, pending *PendingConfirmation)
