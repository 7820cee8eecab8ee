// Package ratelimit implements the per-source counters guarding the public
// verification endpoint. Counters are fixed windows keyed day:sourceHash and
// updated with a transactional read-modify-write, so concurrent requests from
// one source never undercount.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"membergate/internal/docstore"
	dErrors "membergate/pkg/domain-errors"
	"membergate/pkg/platform/sentinel"
)

// Collection holds one Counter per source and day.
const Collection = "ratelimits"

// Counter tracks request counts for one source within one day. The minute
// count resets whenever the minute bucket changes; counts only ever increase
// within their window.
type Counter struct {
	MinuteBucket string `json:"minute_bucket"`
	MinuteCount  int    `json:"minute_count"`
	DayCount     int    `json:"day_count"`
}

// HashSource derives the stable counter key component from a source IP so raw
// addresses are never stored.
func HashSource(sourceIP string) string {
	sum := sha256.Sum256([]byte(sourceIP))
	return hex.EncodeToString(sum[:16])
}

// Limiter enforces per-minute and per-day caps.
type Limiter struct {
	store     docstore.Store
	perMinute int
	perDay    int
	clock     func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) Option {
	return func(l *Limiter) {
		if clock != nil {
			l.clock = clock
		}
	}
}

func NewLimiter(store docstore.Store, perMinute, perDay int, opts ...Option) *Limiter {
	l := &Limiter{store: store, perMinute: perMinute, perDay: perDay, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Allow admits or rejects one request from sourceHash. A rejection aborts the
// transaction, so rejected requests do not consume budget.
func (l *Limiter) Allow(ctx context.Context, sourceHash string) error {
	now := l.clock().UTC()
	day := now.Format("2006-01-02")
	minute := now.Format("2006-01-02T15:04")
	key := day + ":" + sourceHash

	return l.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		var c Counter
		if err := tx.Get(Collection, key, &c); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return err
		}
		if c.MinuteBucket != minute {
			c.MinuteBucket = minute
			c.MinuteCount = 0
		}
		c.MinuteCount++
		c.DayCount++
		if c.MinuteCount > l.perMinute || c.DayCount > l.perDay {
			return dErrors.New(dErrors.CodeRateLimited, "too many verification requests")
		}
		return tx.Put(Collection, key, c)
	})
}
