package revocation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"membergate/pkg/platform/sentinel"
)

var isRevokedDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "membergate_is_token_revoked_duration_ms",
	Help:    "Latency of token revocation checks in milliseconds",
	Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
})

const revokedKeyPrefix = "trl:jti:"

// RedisLedger is the recommended ledger for distributed deployments where
// multiple instances must share revocation state. Entries are stored as JSON
// under a jti-derived key; key existence is the revocation signal.
type RedisLedger struct {
	client *redis.Client
	clock  Clock
}

// RedisOption configures a RedisLedger.
type RedisOption func(*RedisLedger)

// WithRedisClock sets the clock function for testability.
func WithRedisClock(clock Clock) RedisOption {
	return func(l *RedisLedger) {
		if clock != nil {
			l.clock = clock
		}
	}
}

func NewRedisLedger(client *redis.Client, opts ...RedisOption) *RedisLedger {
	l := &RedisLedger{client: client, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

func (l *RedisLedger) Revoke(ctx context.Context, entry Entry) error {
	if entry.JTI == "" {
		return nil
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = l.clock()
	}
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("revocation: encode entry: %w", err)
	}
	// Revocation is permanent for this core, so no TTL.
	return l.client.Set(ctx, revokedKeyPrefix+entry.JTI, body, 0).Err()
}

func (l *RedisLedger) Get(ctx context.Context, jti string) (*Entry, error) {
	body, err := l.client.Get(ctx, revokedKeyPrefix+jti).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("revocation: get: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal(body, &entry); err != nil {
		return nil, fmt.Errorf("revocation: decode entry: %w", err)
	}
	return &entry, nil
}

func (l *RedisLedger) IsRevoked(ctx context.Context, jti string) (bool, error) {
	start := time.Now()
	defer func() {
		isRevokedDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	if jti == "" {
		return false, nil
	}
	n, err := l.client.Exists(ctx, revokedKeyPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
