package memory

import (
	"context"
	"sync"

	audit "membergate/pkg/platform/audit"
)

// InMemoryStore keeps audit events per member. Used in development and tests.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[string][]audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[string][]audit.Event)}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.MemberID] = append(s.events[event.MemberID], event)
	return nil
}

func (s *InMemoryStore) ListByMember(_ context.Context, memberID string) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events[memberID]...), nil
}

// Count returns the total number of stored events across all members.
func (s *InMemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, evs := range s.events {
		n += len(evs)
	}
	return n
}
