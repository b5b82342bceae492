package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory. The chat command uses it
// to track the current conversation; nothing survives a restart.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	messages map[string][]Message
	nextMsg  int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		messages: make(map[string][]Message),
	}
}

func (s *MemoryStore) Create(ctx context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.ID == "" {
		sess.ID = NewID()
	}
	if _, exists := s.sessions[sess.ID]; exists {
		return fmt.Errorf("session %s already exists", sess.ID)
	}
	now := time.Now()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	sess.UpdatedAt = now
	if sess.Status == "" {
		sess.Status = StatusActive
	}
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s not found", id)
	}
	cp := *sess
	return &cp, nil
}

func (s *MemoryStore) Update(ctx context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sess.ID]; !ok {
		return fmt.Errorf("session %s not found", sess.ID)
	}
	sess.UpdatedAt = time.Now()
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	delete(s.messages, id)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, opts ListOptions) ([]SessionSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	summaries := make([]SessionSummary, 0, len(s.sessions))
	for id, sess := range s.sessions {
		summaries = append(summaries, SessionSummary{
			ID:           id,
			Summary:      sess.Summary,
			Provider:     sess.Provider,
			Model:        sess.Model,
			MessageCount: len(s.messages[id]),
			Status:       sess.Status,
			CreatedAt:    sess.CreatedAt,
			UpdatedAt:    sess.UpdatedAt,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(summaries) {
			return nil, nil
		}
		summaries = summaries[opts.Offset:]
	}
	if opts.Limit > 0 && len(summaries) > opts.Limit {
		summaries = summaries[:opts.Limit]
	}
	return summaries, nil
}

func (s *MemoryStore) AddMessage(ctx context.Context, sessionID string, msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return fmt.Errorf("session %s not found", sessionID)
	}
	s.nextMsg++
	msg.ID = s.nextMsg
	msg.SessionID = sessionID
	msg.Sequence = len(s.messages[sessionID])
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	s.messages[sessionID] = append(s.messages[sessionID], *msg)
	s.sessions[sessionID].UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) GetMessages(ctx context.Context, sessionID string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.messages[sessionID]
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *MemoryStore) UpdateMetrics(ctx context.Context, id string, llmTurns, toolCalls, inputTokens, outputTokens int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("session %s not found", id)
	}
	sess.LLMTurns += llmTurns
	sess.ToolCalls += toolCalls
	sess.InputTokens += inputTokens
	sess.OutputTokens += outputTokens
	sess.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, status SessionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("session %s not found", id)
	}
	sess.Status = status
	sess.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) IncrementUserTurns(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("session %s not found", id)
	}
	sess.UserTurns++
	sess.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) Close() error { return nil }
