package revocation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"membergate/pkg/platform/sentinel"
)

// =============================================================================
// In-Memory Ledger Test Suite
// =============================================================================

type InMemoryLedgerSuite struct {
	suite.Suite
	ledger *InMemoryLedger
	now    time.Time
}

func TestInMemoryLedgerSuite(t *testing.T) {
	suite.Run(t, new(InMemoryLedgerSuite))
}

func (s *InMemoryLedgerSuite) SetupTest() {
	s.now = time.Date(2025, 7, 4, 9, 0, 0, 0, time.UTC)
	s.ledger = NewInMemoryLedger(WithMemoryClock(func() time.Time { return s.now }))
}

func (s *InMemoryLedgerSuite) TestRevoke() {
	ctx := context.Background()

	s.Run("unknown jti is not revoked", func() {
		revoked, err := s.ledger.IsRevoked(ctx, "jti-unknown")
		s.NoError(err)
		s.False(revoked)

		_, err = s.ledger.Get(ctx, "jti-unknown")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("revoked jti is flagged and readable", func() {
		err := s.ledger.Revoke(ctx, Entry{
			JTI:       "jti-1",
			Reason:    "card reported stolen",
			RevokedBy: "ops-7",
		})
		s.Require().NoError(err)

		revoked, err := s.ledger.IsRevoked(ctx, "jti-1")
		s.NoError(err)
		s.True(revoked)

		entry, err := s.ledger.Get(ctx, "jti-1")
		s.Require().NoError(err)
		s.Equal("card reported stolen", entry.Reason)
		s.Equal("ops-7", entry.RevokedBy)
		s.Equal(s.now, entry.CreatedAt, "missing timestamp is filled from the clock")
	})

	s.Run("revoking twice keeps the entry", func() {
		s.Require().NoError(s.ledger.Revoke(ctx, Entry{JTI: "jti-2", Reason: "first"}))
		s.Require().NoError(s.ledger.Revoke(ctx, Entry{JTI: "jti-2", Reason: "second"}))

		entry, err := s.ledger.Get(ctx, "jti-2")
		s.Require().NoError(err)
		s.Equal("second", entry.Reason)
	})

	s.Run("explicit timestamp is preserved", func() {
		at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		s.Require().NoError(s.ledger.Revoke(ctx, Entry{JTI: "jti-3", CreatedAt: at}))

		entry, err := s.ledger.Get(ctx, "jti-3")
		s.Require().NoError(err)
		s.Equal(at, entry.CreatedAt)
	})
}
