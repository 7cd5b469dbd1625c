// Package history keeps a bounded in-memory view of session transcripts.
// The gateway owns persistence; this is only the client-side display cache,
// refreshed from chat.history whenever the stream layer flags it stale.
package history

import (
	"context"
	"sync"
	"time"
)

// DefaultLimit is the per-session message cap. Oldest entries are evicted
// first.
const DefaultLimit = 500

// Message is one transcript entry.
type Message struct {
	Role      string
	Content   string
	Timestamp time.Time
}

// Store is the transcript view consumed by the UI layer.
type Store interface {
	Append(ctx context.Context, sessionKey string, msg Message) error
	Replace(ctx context.Context, sessionKey string, msgs []Message) error
	List(ctx context.Context, sessionKey string) ([]Message, error)
	Clear(ctx context.Context, sessionKey string) error
}

// MemoryStore provides in-memory transcript storage.
type MemoryStore struct {
	mu       sync.RWMutex
	limit    int
	sessions map[string][]Message
}

// Ensure MemoryStore implements Store interface
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a store capping each session at limit messages.
// A non-positive limit uses DefaultLimit.
func NewMemoryStore(limit int) *MemoryStore {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &MemoryStore{
		limit:    limit,
		sessions: make(map[string][]Message),
	}
}

// Append adds a message to a session transcript, evicting the oldest entry
// when the cap is reached.
func (s *MemoryStore) Append(ctx context.Context, sessionKey string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	msgs := append(s.sessions[sessionKey], msg)
	if len(msgs) > s.limit {
		msgs = msgs[len(msgs)-s.limit:]
	}
	s.sessions[sessionKey] = msgs
	return nil
}

// Replace swaps a session transcript wholesale, used after a history
// refresh from the gateway.
func (s *MemoryStore) Replace(ctx context.Context, sessionKey string, msgs []Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(msgs) > s.limit {
		msgs = msgs[len(msgs)-s.limit:]
	}
	copied := make([]Message, len(msgs))
	copy(copied, msgs)
	s.sessions[sessionKey] = copied
	return nil
}

// List returns a session transcript in chronological order.
func (s *MemoryStore) List(ctx context.Context, sessionKey string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.sessions[sessionKey]
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// Clear drops a session transcript.
func (s *MemoryStore) Clear(ctx context.Context, sessionKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionKey)
	return nil
}
