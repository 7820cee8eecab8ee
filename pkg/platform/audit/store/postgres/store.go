package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	audit "membergate/pkg/platform/audit"
)

// Store persists audit events in PostgreSQL. The detail column is jsonb so
// event-specific fields do not require schema changes.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id         bigserial   PRIMARY KEY,
	occurred_at timestamptz NOT NULL,
	action     text        NOT NULL,
	member_id  text        NOT NULL DEFAULT '',
	member_no  text        NOT NULL DEFAULT '',
	actor_id   text        NOT NULL DEFAULT '',
	request_id text        NOT NULL DEFAULT '',
	detail     jsonb
)`

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the audit_events table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("audit: migrate: %w", err)
	}
	return nil
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	var detail []byte
	if len(event.Detail) > 0 {
		var err error
		detail, err = json.Marshal(event.Detail)
		if err != nil {
			return fmt.Errorf("audit: encode detail: %w", err)
		}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (occurred_at, action, member_id, member_no, actor_id, request_id, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.Timestamp, string(event.Action), event.MemberID, event.MemberNo,
		event.ActorID, event.RequestID, detail,
	)
	if err != nil {
		return fmt.Errorf("audit: append: %w", err)
	}
	return nil
}

func (s *Store) ListByMember(ctx context.Context, memberID string) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT occurred_at, action, member_id, member_no, actor_id, request_id, detail
		FROM audit_events
		WHERE member_id = $1
		ORDER BY id`,
		memberID,
	)
	if err != nil {
		return nil, fmt.Errorf("audit: list: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var e audit.Event
		var action string
		var detail []byte
		if err := rows.Scan(&e.Timestamp, &action, &e.MemberID, &e.MemberNo, &e.ActorID, &e.RequestID, &detail); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		e.Action = audit.Action(action)
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &e.Detail); err != nil {
				return nil, fmt.Errorf("audit: decode detail: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
