// Package session records chat transcripts and their metrics.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/rbholmes/toolchat/internal/llm"
)

// SessionStatus represents the current state of a session.
type SessionStatus string

const (
	StatusActive      SessionStatus = "active"
	StatusComplete    SessionStatus = "complete"
	StatusError       SessionStatus = "error"
	StatusInterrupted SessionStatus = "interrupted"
)

// Session is one conversation with a provider.
type Session struct {
	ID        string        `json:"id"`
	Summary   string        `json:"summary,omitempty"` // First user message
	Provider  string        `json:"provider"`
	Model     string        `json:"model"`
	CWD       string        `json:"cwd,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	Status    SessionStatus `json:"status,omitempty"`

	// Metrics
	UserTurns    int `json:"user_turns,omitempty"`
	LLMTurns     int `json:"llm_turns,omitempty"`
	ToolCalls    int `json:"tool_calls,omitempty"`
	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`
}

// Message is a stored conversation message. Parts keeps the full
// llm.Message parts so tool calls and results survive a round trip.
type Message struct {
	ID        int64      `json:"id"`
	SessionID string     `json:"session_id"`
	Role      llm.Role   `json:"role"`
	Parts     []llm.Part `json:"parts"`
	CreatedAt time.Time  `json:"created_at"`
	Sequence  int        `json:"sequence"`
}

// SessionSummary is a lightweight view of a session for listing.
type SessionSummary struct {
	ID           string        `json:"id"`
	Summary      string        `json:"summary,omitempty"`
	Provider     string        `json:"provider"`
	Model        string        `json:"model"`
	MessageCount int           `json:"message_count"`
	Status       SessionStatus `json:"status,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// ListOptions configures session listing.
type ListOptions struct {
	Limit  int
	Offset int
}

// NewID returns a random 16-hex-char session id.
func NewID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return hex.EncodeToString([]byte(time.Now().Format("150405.000")))[:16]
	}
	return hex.EncodeToString(b)
}
