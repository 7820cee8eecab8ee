//go:build integration

package revocation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"membergate/internal/token/revocation"
	"membergate/pkg/platform/sentinel"
	"membergate/pkg/testutil/containers"
)

type RedisLedgerSuite struct {
	suite.Suite
	redis  *containers.RedisContainer
	ledger *revocation.RedisLedger
}

func TestRedisLedgerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisLedgerSuite))
}

func (s *RedisLedgerSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.ledger = revocation.NewRedisLedger(s.redis.Client)
}

func (s *RedisLedgerSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisLedgerSuite) TestRevokeRoundTrip() {
	ctx := context.Background()

	revoked, err := s.ledger.IsRevoked(ctx, "jti-1")
	s.Require().NoError(err)
	s.False(revoked)

	at := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	err = s.ledger.Revoke(ctx, revocation.Entry{
		JTI:       "jti-1",
		Reason:    "card reported stolen",
		RevokedBy: "ops-1",
		CreatedAt: at,
	})
	s.Require().NoError(err)

	revoked, err = s.ledger.IsRevoked(ctx, "jti-1")
	s.Require().NoError(err)
	s.True(revoked)

	entry, err := s.ledger.Get(ctx, "jti-1")
	s.Require().NoError(err)
	s.Equal("card reported stolen", entry.Reason)
	s.Equal("ops-1", entry.RevokedBy)
	s.True(entry.CreatedAt.Equal(at))
}

func (s *RedisLedgerSuite) TestUnknownJTI() {
	ctx := context.Background()
	_, err := s.ledger.Get(ctx, "jti-unknown")
	s.ErrorIs(err, sentinel.ErrNotFound)
}
