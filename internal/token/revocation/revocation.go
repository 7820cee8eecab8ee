// Package revocation keeps the jti denylist consulted at verification time.
// Presence of an entry makes the token permanently invalid regardless of
// signature or expiry.
package revocation

import (
	"context"
	"time"
)

// Entry records why and by whom a token was revoked.
type Entry struct {
	JTI       string    `json:"jti"`
	Reason    string    `json:"reason"`
	RevokedBy string    `json:"revoked_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Ledger is the revocation denylist. Revoking an already-revoked jti is an
// idempotent overwrite.
type Ledger interface {
	Revoke(ctx context.Context, entry Entry) error
	// Get returns the entry for jti, or sentinel.ErrNotFound.
	Get(ctx context.Context, jti string) (*Entry, error)
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Clock abstracts time.Now for testability.
type Clock func() time.Time
