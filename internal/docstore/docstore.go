// Package docstore provides the transactional document store the membership
// core runs on. Every multi-document mutation (registry reservation, counter
// increment, activation, idempotency record, rate-limit counter) goes through
// RunTransaction so conflicting writers serialize cleanly.
package docstore

import (
	"context"
	"errors"
)

// Tx batches reads and writes inside one atomic transaction. Reads observe
// writes made earlier in the same transaction. Transaction bodies must be
// retryable: the store re-runs them on write conflict, so they must not
// perform non-idempotent external calls.
type Tx interface {
	// Get decodes the document at (collection, key) into out.
	// Returns sentinel.ErrNotFound if the document does not exist.
	Get(collection, key string, out any) error

	// Put creates or replaces the document at (collection, key).
	Put(collection, key string, doc any) error

	// Create writes the document only if (collection, key) is absent.
	// Returns sentinel.ErrConflict if a document already exists.
	Create(collection, key string, doc any) error

	// Delete removes the document at (collection, key). Deleting an absent
	// document is a no-op.
	Delete(collection, key string) error
}

// Store runs transaction bodies with automatic retry on write conflict.
type Store interface {
	RunTransaction(ctx context.Context, fn func(tx Tx) error) error
}

// ErrContention is returned when a transaction keeps conflicting past the
// retry limit. Callers may retry the whole operation; every operation in this
// core is idempotent or conflict-detecting on retry.
var ErrContention = errors.New("docstore: transaction retry limit reached")
