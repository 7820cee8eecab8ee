// Package idempotency provides create-once records that let callers retry a
// logical operation without re-running its one-time side effects. The
// create-if-absent write is the sole synchronization point across concurrent
// retries of the same request; it does not block different requests.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"membergate/internal/docstore"
	"membergate/pkg/platform/sentinel"
)

// Collection holds one Record per completed logical operation.
const Collection = "idempotency"

// Record captures the result of a completed operation. Its presence is the
// signal that side effects already ran for that key.
type Record struct {
	Key       string          `json:"key"`
	Result    json.RawMessage `json:"result"`
	CreatedAt time.Time       `json:"created_at"`
}

// Key builds the canonical idempotency key. Source distinguishes manual and
// automated origins so the two cannot mask each other's retries.
func Key(operation, subjectID string, period int, source string) string {
	return fmt.Sprintf("%s:%s:%d:%s", operation, subjectID, period, source)
}

// Outcome is the result of a guarded run. Idempotent reports whether a prior
// completion was found, in which case Result is the stored payload and fn
// did not run (or its effects were superseded by a concurrent winner).
type Outcome struct {
	Result     json.RawMessage
	Idempotent bool
}

// Guard wraps operations with create-once deduplication.
type Guard struct {
	store docstore.Store
	clock func() time.Time
}

// Option configures a Guard.
type Option func(*Guard)

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) Option {
	return func(g *Guard) {
		if clock != nil {
			g.clock = clock
		}
	}
}

func NewGuard(store docstore.Store, opts ...Option) *Guard {
	g := &Guard{store: store, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Run executes fn at most once per key. If a record exists, the stored result
// is returned and fn is skipped entirely. Otherwise fn runs, its result is
// recorded with create-if-absent semantics, and a create conflict means a
// concurrent caller won the race: this caller's result is discarded in favor
// of the winner's stored one when it can be read.
//
// fn must perform its transactional work and post-commit side effects itself;
// the guard only decides whether it runs.
func (g *Guard) Run(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (Outcome, error) {
	var existing Record
	err := g.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		return tx.Get(Collection, key, &existing)
	})
	if err == nil {
		return Outcome{Result: existing.Result, Idempotent: true}, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return Outcome{}, err
	}

	result, err := fn(ctx)
	if err != nil {
		return Outcome{}, err
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return Outcome{}, fmt.Errorf("idempotency: encode result for %s: %w", key, err)
	}

	createErr := g.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		return tx.Create(Collection, key, Record{Key: key, Result: payload, CreatedAt: g.clock()})
	})
	if createErr == nil {
		return Outcome{Result: payload}, nil
	}
	if !errors.Is(createErr, sentinel.ErrConflict) {
		return Outcome{}, createErr
	}

	// A concurrent caller recorded first. Prefer its stored result; if it
	// cannot be read, report success without the idempotent flag.
	var winner Record
	err = g.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		return tx.Get(Collection, key, &winner)
	})
	if err == nil {
		return Outcome{Result: winner.Result, Idempotent: true}, nil
	}
	return Outcome{Result: payload}, nil
}
