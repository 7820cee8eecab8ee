package revocation

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"membergate/pkg/platform/sentinel"
)

// PostgresLedger persists revoked jtis in PostgreSQL.
type PostgresLedger struct {
	db    *sql.DB
	clock Clock
}

// PostgresOption configures a PostgresLedger.
type PostgresOption func(*PostgresLedger)

// WithPostgresClock sets the clock function for testability.
func WithPostgresClock(clock Clock) PostgresOption {
	return func(l *PostgresLedger) {
		if clock != nil {
			l.clock = clock
		}
	}
}

func NewPostgresLedger(db *sql.DB, opts ...PostgresOption) *PostgresLedger {
	l := &PostgresLedger{db: db, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS token_revocations (
	jti        text        PRIMARY KEY,
	reason     text        NOT NULL DEFAULT '',
	revoked_by text        NOT NULL DEFAULT '',
	created_at timestamptz NOT NULL
)`

// Migrate creates the token_revocations table if it does not exist.
func (l *PostgresLedger) Migrate(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("revocation: migrate: %w", err)
	}
	return nil
}

func (l *PostgresLedger) Revoke(ctx context.Context, entry Entry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = l.clock()
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO token_revocations (jti, reason, revoked_by, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (jti) DO UPDATE SET
			reason = EXCLUDED.reason,
			revoked_by = EXCLUDED.revoked_by`,
		entry.JTI, entry.Reason, entry.RevokedBy, createdAt,
	)
	if err != nil {
		return fmt.Errorf("revocation: revoke: %w", err)
	}
	return nil
}

func (l *PostgresLedger) Get(ctx context.Context, jti string) (*Entry, error) {
	var entry Entry
	err := l.db.QueryRowContext(ctx, `
		SELECT jti, reason, revoked_by, created_at
		FROM token_revocations WHERE jti = $1`,
		jti,
	).Scan(&entry.JTI, &entry.Reason, &entry.RevokedBy, &entry.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("revocation: get: %w", err)
	}
	return &entry, nil
}

func (l *PostgresLedger) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var one int
	err := l.db.QueryRowContext(ctx,
		`SELECT 1 FROM token_revocations WHERE jti = $1`, jti,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("revocation: check: %w", err)
	}
	return true, nil
}
