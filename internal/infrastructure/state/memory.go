package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"archie-shopify-session-store/internal/domain"
)

type entry struct {
	shop    string
	expires time.Time
}

// MemoryStateStore keeps OAuth state nonces in process memory. It is only
// suitable for a single instance.
type MemoryStateStore struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// NewMemoryStateStore creates an empty in-memory state store
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Save records state for shop until ttl elapses. Reusing a live state fails.
func (s *MemoryStateStore) Save(_ context.Context, state string, shop string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.evict(now)
	if _, ok := s.entries[state]; ok {
		return fmt.Errorf("%w: state already issued", domain.ErrInvalidState)
	}
	s.entries[state] = entry{shop: shop, expires: now.Add(ttl)}
	return nil
}

// Consume returns the shop bound to state and forgets it
func (s *MemoryStateStore) Consume(_ context.Context, state string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[state]
	if !ok {
		return "", domain.ErrInvalidState
	}
	delete(s.entries, state)
	if !s.now().Before(e.expires) {
		return "", domain.ErrInvalidState
	}
	return e.shop, nil
}

// Len returns the number of unexpired states
func (s *MemoryStateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evict(s.now())
	return len(s.entries)
}

func (s *MemoryStateStore) evict(now time.Time) {
	for k, e := range s.entries {
		if !now.Before(e.expires) {
			delete(s.entries, k)
		}
	}
}
