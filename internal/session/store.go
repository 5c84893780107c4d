package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store keeps the conversations of the running process in memory, keyed by
// a random id. Nothing survives a restart, and idle conversations are
// dropped by Expire or Sweep.
type Store struct {
	defaults Settings
	logger   *slog.Logger

	mu            sync.Mutex
	conversations map[string]*Conversation
}

// NewStore creates an empty store whose conversations start from defaults.
func NewStore(defaults Settings, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if err := defaults.Validate(); err != nil {
		return nil, err
	}
	return &Store{
		defaults:      defaults,
		logger:        logger,
		conversations: make(map[string]*Conversation),
	}, nil
}

// Defaults returns the settings new conversations start with.
func (s *Store) Defaults() Settings {
	return s.defaults
}

// Create starts a new conversation with a fresh id.
func (s *Store) Create() *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.create()
}

func (s *Store) create() *Conversation {
	id := uuid.NewString()
	// defaults were validated in NewStore.
	c, _ := NewConversation(id, s.defaults, s.logger)
	s.conversations[id] = c
	s.logger.Debug("conversation created", "conversation", id)
	return c
}

// Get returns the conversation with id.
func (s *Store) Get(id string) (*Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if ok {
		c.touch(time.Now())
	}
	return c, ok
}

// GetOrCreate returns the conversation with id, or a new one when id is
// unknown. Callers must use the returned conversation's ID from then on.
func (s *Store) GetOrCreate(id string) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conversations[id]; ok {
		c.touch(time.Now())
		return c
	}
	return s.create()
}

// Delete drops the conversation with id.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.conversations, id)
	s.mu.Unlock()
}

// Len returns the number of live conversations.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}

// Expire drops every conversation last used before cutoff. Conversations
// with a running turn are kept. It returns the number dropped.
func (s *Store) Expire(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, c := range s.conversations {
		if c.Busy() || !c.LastUsed().Before(cutoff) {
			continue
		}
		delete(s.conversations, id)
		n++
	}
	if n > 0 {
		s.logger.Debug("expired idle conversations", "count", n, "remaining", len(s.conversations))
	}
	return n
}

// Sweep expires conversations idle for longer than maxIdle until ctx is
// done. A non-positive maxIdle disables expiry.
func (s *Store) Sweep(ctx context.Context, maxIdle time.Duration) {
	if maxIdle <= 0 {
		return
	}

	interval := max(maxIdle/4, time.Second)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Expire(now.Add(-maxIdle))
		}
	}
}
