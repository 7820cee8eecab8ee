package apikey

import (
	"context"
	"sync"

	"membergate/pkg/platform/sentinel"
)

// InMemoryStore keeps API keys in a map. Key provisioning is an operator
// action, so single-instance deployments load keys at startup.
type InMemoryStore struct {
	mu   sync.RWMutex
	keys map[string]Key
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{keys: make(map[string]Key)}
}

func (s *InMemoryStore) Create(_ context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.keys[key.ID]; exists {
		return sentinel.ErrConflict
	}
	s.keys[key.ID] = key
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (*Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &key, nil
}
