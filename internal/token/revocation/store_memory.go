package revocation

import (
	"context"
	"sync"
	"time"

	"membergate/pkg/platform/sentinel"
)

// InMemoryLedger keeps revocations in a map. Suitable for single-instance
// deployments and tests; distributed deployments should use RedisLedger or
// PostgresLedger.
type InMemoryLedger struct {
	mu      sync.RWMutex
	entries map[string]Entry
	clock   Clock
}

// InMemoryOption configures an InMemoryLedger.
type InMemoryOption func(*InMemoryLedger)

// WithMemoryClock sets the clock function for testability.
func WithMemoryClock(clock Clock) InMemoryOption {
	return func(l *InMemoryLedger) {
		if clock != nil {
			l.clock = clock
		}
	}
}

func NewInMemoryLedger(opts ...InMemoryOption) *InMemoryLedger {
	l := &InMemoryLedger{entries: make(map[string]Entry), clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

func (l *InMemoryLedger) Revoke(_ context.Context, entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = l.clock()
	}
	l.entries[entry.JTI] = entry
	return nil
}

func (l *InMemoryLedger) Get(_ context.Context, jti string) (*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entry, ok := l.entries[jti]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &entry, nil
}

func (l *InMemoryLedger) IsRevoked(_ context.Context, jti string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.entries[jti]
	return ok, nil
}
