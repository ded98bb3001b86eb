// Package history stores per-session conversation logs.
package history

import (
	"context"
	"fmt"
	"sync"

	"github.com/ZanzyTHEbar/agrisage-genkit/internal/llm"
)

// session is one conversation guarded by its own lock.
type session struct {
	mu       sync.Mutex
	messages []llm.Message
}

// MemoryStore keeps histories for the life of the process. Each session has
// its own lock, so appends to one session never block another.
type MemoryStore struct {
	sessions sync.Map // string -> *session
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) session(id string) *session {
	v, _ := s.sessions.LoadOrStore(id, &session{})
	return v.(*session)
}

// Get returns a copy of the session history, creating it on first use.
func (s *MemoryStore) Get(ctx context.Context, sessionID string) ([]llm.Message, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}
	sess := s.session(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	out := make([]llm.Message, len(sess.messages))
	copy(out, sess.messages)
	return out, nil
}

// Append adds messages to the end of the history as one unit.
func (s *MemoryStore) Append(ctx context.Context, sessionID string, messages ...llm.Message) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if err := validate(messages); err != nil {
		return err
	}
	sess := s.session(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.messages = append(sess.messages, messages...)
	return nil
}

// Sessions returns the number of known sessions.
func (s *MemoryStore) Sessions() int {
	n := 0
	s.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func validate(messages []llm.Message) error {
	for _, m := range messages {
		if m.Role != llm.RoleUser && m.Role != llm.RoleAssistant {
			return fmt.Errorf("history only stores user and assistant messages, got %q", m.Role)
		}
	}
	return nil
}
