package idempotency

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/serene/internal/clock"
)

type entry struct {
	token     string
	completed bool
	failed    bool
	detail    string
	expiresAt time.Time
}

// MemoryStore is a single-process claim ledger. It backs the guard
// when redis is unreachable and carries the full test suite.
type MemoryStore struct {
	clock clock.Clock

	mu      sync.Mutex
	entries map[string]entry
}

func NewMemoryStore(clk clock.Clock) *MemoryStore {
	return &MemoryStore{
		clock:   clk,
		entries: make(map[string]entry),
	}
}

func (s *MemoryStore) TryClaim(_ context.Context, eventID string, ttl time.Duration) (string, bool, error) {
	if eventID == "" {
		return "", false, errors.New("event id is empty")
	}
	if ttl <= 0 {
		return "", false, errors.New("claim ttl must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	s.purgeLocked(now)

	// Failure records keep the error detail around for diagnostics but
	// never deny a claim.
	if current, ok := s.entries[eventID]; ok && !current.failed {
		return "", false, nil
	}

	token := uuid.NewString()
	s.entries[eventID] = entry{token: token, expiresAt: now.Add(ttl)}
	return token, true, nil
}

func (s *MemoryStore) Complete(_ context.Context, eventID, token string, tombstoneTTL time.Duration) error {
	if eventID == "" || token == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.entries[eventID]
	if !ok || current.completed || current.failed || current.token != token {
		return nil
	}
	s.entries[eventID] = entry{
		token:     token,
		completed: true,
		expiresAt: s.clock.Now().Add(tombstoneTTL),
	}
	return nil
}

func (s *MemoryStore) Release(_ context.Context, eventID, token string) error {
	if eventID == "" || token == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.entries[eventID]
	if !ok || current.completed || current.failed || current.token != token {
		return nil
	}
	delete(s.entries, eventID)
	return nil
}

func (s *MemoryStore) Fail(_ context.Context, eventID, token, detail string, ttl time.Duration) error {
	if eventID == "" || token == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.entries[eventID]
	if !ok || current.completed || current.failed || current.token != token {
		return nil
	}
	s.entries[eventID] = entry{
		token:     token,
		failed:    true,
		detail:    detail,
		expiresAt: s.clock.Now().Add(ttl),
	}
	return nil
}

func (s *MemoryStore) HasBeenHandled(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeLocked(s.clock.Now())
	current, ok := s.entries[eventID]
	return ok && current.completed, nil
}

// FailureDetail returns the error recorded for the event's last failed
// processing attempt, if the record has not expired.
func (s *MemoryStore) FailureDetail(eventID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeLocked(s.clock.Now())
	current, ok := s.entries[eventID]
	if !ok || !current.failed {
		return "", false
	}
	return current.detail, true
}

// purgeLocked drops expired entries. Called with the mutex held.
func (s *MemoryStore) purgeLocked(now time.Time) {
	for id, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, id)
		}
	}
}

var _ Store = (*MemoryStore)(nil)
