// Package registry is the uniqueness ledger: it maps normalized values
// (emails, member numbers) to their owning member id and allocates sequential
// member numbers. All operations run inside a caller-supplied docstore
// transaction so a conflicting concurrent registration rolls back with no
// partial state.
package registry

import (
	"errors"
	"strconv"

	"membergate/internal/docstore"
	"membergate/internal/member/models"
	dErrors "membergate/pkg/domain-errors"
	"membergate/pkg/platform/sentinel"
)

// Kind distinguishes the value spaces the ledger guards.
type Kind string

const (
	KindEmail    Kind = "email"
	KindMemberNo Kind = "member_no"
)

const (
	// Collection holds one Entry per reserved value, keyed kind:value.
	Collection = "registry"
	// CounterCollection holds one sequence counter per year.
	CounterCollection = "counters"
)

// Entry records which member owns a reserved value.
type Entry struct {
	Owner string `json:"owner"`
}

// EntryKey builds the document key for a reserved value.
func EntryKey(kind Kind, value string) string {
	return string(kind) + ":" + value
}

// Reserve claims value for ownerID. Re-reserving a value for its current
// owner is an idempotent no-op; a value owned by a different member fails
// with a conflict error and aborts the enclosing transaction.
func Reserve(tx docstore.Tx, kind Kind, value, ownerID string) error {
	var entry Entry
	err := tx.Get(Collection, EntryKey(kind, value), &entry)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		// free to claim
	case err != nil:
		return err
	case entry.Owner != ownerID:
		if kind == KindEmail {
			return dErrors.New(dErrors.CodeConflict, "EMAIL_IN_USE")
		}
		return dErrors.New(dErrors.CodeConflict, "MEMBERNO_IN_USE")
	}
	return tx.Put(Collection, EntryKey(kind, value), Entry{Owner: ownerID})
}

type counter struct {
	Next int `json:"next"`
}

// AllocateMemberNo increments the per-year sequence counter and returns the
// formatted member number. It must run in the same transaction as the
// registry reservation of the returned number, so two concurrent allocations
// never commit the same value.
func AllocateMemberNo(tx docstore.Tx, prefix string, year int) (string, error) {
	key := strconv.Itoa(year)
	var c counter
	if err := tx.Get(CounterCollection, key, &c); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return "", err
	}
	c.Next++
	if err := tx.Put(CounterCollection, key, c); err != nil {
		return "", err
	}
	return models.FormatMemberNo(prefix, year, c.Next), nil
}
