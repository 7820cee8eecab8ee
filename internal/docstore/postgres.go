package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"membergate/pkg/platform/sentinel"
)

// Postgres is a Store backed by a single jsonb documents table. Transactions
// run at serializable isolation; serialization failures re-run the body, which
// gives the same optimistic-retry semantics as the in-memory store.
type Postgres struct {
	pool *pgxpool.Pool
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS documents (
	collection text        NOT NULL,
	key        text        NOT NULL,
	body       jsonb       NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, key)
)`

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("docstore: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("docstore: ping: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Migrate creates the documents table if it does not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("docstore: migrate: %w", err)
	}
	return nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) RunTransaction(ctx context.Context, fn func(tx Tx) error) error {
	opts := pgx.TxOptions{IsoLevel: pgx.Serializable}
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := pgx.BeginTxFunc(ctx, p.pool, opts, func(ptx pgx.Tx) error {
			return fn(&postgresTx{ctx: ctx, tx: ptx})
		})
		if err == nil {
			return nil
		}
		if isSerializationFailure(err) {
			continue
		}
		return err
	}
	return ErrContention
}

// isSerializationFailure matches the SQLSTATEs Postgres raises when
// serializable transactions conflict (40001) or deadlock (40P01).
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

type postgresTx struct {
	ctx context.Context
	tx  pgx.Tx
}

func (t *postgresTx) Get(collection, key string, out any) error {
	var body []byte
	err := t.tx.QueryRow(t.ctx,
		`SELECT body FROM documents WHERE collection = $1 AND key = $2`,
		collection, key,
	).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("docstore: get %s/%s: %w", collection, key, err)
	}
	return json.Unmarshal(body, out)
}

func (t *postgresTx) Put(collection, key string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("docstore: encode %s/%s: %w", collection, key, err)
	}
	_, err = t.tx.Exec(t.ctx, `
		INSERT INTO documents (collection, key, body, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (collection, key) DO UPDATE SET
			body = EXCLUDED.body,
			updated_at = now()`,
		collection, key, body,
	)
	if err != nil {
		return fmt.Errorf("docstore: put %s/%s: %w", collection, key, err)
	}
	return nil
}

func (t *postgresTx) Create(collection, key string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("docstore: encode %s/%s: %w", collection, key, err)
	}
	_, err = t.tx.Exec(t.ctx, `
		INSERT INTO documents (collection, key, body, updated_at)
		VALUES ($1, $2, $3, now())`,
		collection, key, body,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("docstore: create %s/%s: %w", collection, key, err)
	}
	return nil
}

func (t *postgresTx) Delete(collection, key string) error {
	_, err := t.tx.Exec(t.ctx,
		`DELETE FROM documents WHERE collection = $1 AND key = $2`,
		collection, key,
	)
	if err != nil {
		return fmt.Errorf("docstore: delete %s/%s: %w", collection, key, err)
	}
	return nil
}
