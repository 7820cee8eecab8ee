package token

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	dErrors "membergate/pkg/domain-errors"
)

// =============================================================================
// Token Test Suite
// =============================================================================
// Key rotation is the subtle part: cards signed under retired keys must keep
// verifying as long as the key stays in the ring, and expiry must be visible
// to the caller rather than swallowed by the parser.

type TokenSuite struct {
	suite.Suite
	ring   *Keyring
	issuer *Issuer
	now    time.Time
}

func TestTokenSuite(t *testing.T) {
	suite.Run(t, new(TokenSuite))
}

func (s *TokenSuite) SetupTest() {
	var err error
	s.ring, err = NewKeyring(map[string]string{
		"k1": "secret-one",
		"k2": "secret-two",
		"k3": "secret-three",
	}, "k2")
	s.Require().NoError(err)

	s.now = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	s.issuer = NewIssuer(s.ring, WithClock(func() time.Time { return s.now }))
}

// =============================================================================
// Keyring Tests
// =============================================================================

func (s *TokenSuite) TestNewKeyring() {
	s.Run("empty keyring is rejected", func() {
		_, err := NewKeyring(nil, "k1")
		s.Error(err)
	})

	s.Run("active kid must be present", func() {
		_, err := NewKeyring(map[string]string{"k1": "x"}, "k9")
		s.Error(err)
	})

	s.Run("empty secret is rejected", func() {
		_, err := NewKeyring(map[string]string{"k1": ""}, "k1")
		s.Error(err)
	})

	s.Run("valid ring exposes kids and active", func() {
		s.Equal("k2", s.ring.ActiveKid())
		s.Len(s.ring.Kids(), 3)
	})
}

// =============================================================================
// Issue / Verify Tests
// =============================================================================

func (s *TokenSuite) TestIssueAndVerify() {
	expiry := time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC)

	s.Run("round-trip under every key in the ring", func() {
		for _, kid := range s.ring.Kids() {
			signed, claims, err := s.issuer.Issue("INT-2025-000042", expiry, kid)
			s.Require().NoError(err, "kid %s", kid)
			s.NotEmpty(claims.ID, "jti must be set")

			decoded, err := s.issuer.Verify(signed)
			s.Require().NoError(err, "kid %s", kid)
			s.Equal("INT-2025-000042", decoded.MemberNo)
			s.Equal(claims.ID, decoded.ID)
			s.Equal(1, decoded.Ver)
			s.False(decoded.ExpiredAt(s.now))
		}
	})

	s.Run("empty kid signs with the active key", func() {
		signed, _, err := s.issuer.Issue("INT-2025-000001", expiry, "")
		s.Require().NoError(err)

		// Decoding succeeds against a ring holding only the active key.
		soloRing, err := NewKeyring(map[string]string{"k2": "secret-two"}, "k2")
		s.Require().NoError(err)
		_, err = NewIssuer(soloRing).Verify(signed)
		s.NoError(err)
	})

	s.Run("unknown signing kid is rejected at issuance", func() {
		_, _, err := s.issuer.Issue("INT-2025-000001", expiry, "k9")
		s.Error(err)
		s.True(dErrors.Is(err, dErrors.CodeInvalidInput))
	})

	s.Run("token signed by a key outside the ring fails verification", func() {
		foreignRing, err := NewKeyring(map[string]string{"k9": "foreign"}, "k9")
		s.Require().NoError(err)
		signed, _, err := NewIssuer(foreignRing).Issue("INT-2025-000001", expiry, "")
		s.Require().NoError(err)

		_, err = s.issuer.Verify(signed)
		s.Error(err)
		s.True(dErrors.Is(err, dErrors.CodeUnauthorized))
	})

	s.Run("tampered payload fails verification", func() {
		signed, _, err := s.issuer.Issue("INT-2025-000001", expiry, "")
		s.Require().NoError(err)

		parts := strings.Split(signed, ".")
		s.Require().Len(parts, 3)
		tampered := parts[0] + ".eyJtbm8iOiJJTlQtMjAyNS05OTk5OTkifQ." + parts[2]

		_, err = s.issuer.Verify(tampered)
		s.Error(err)
	})

	s.Run("garbage input fails verification", func() {
		_, err := s.issuer.Verify("not-a-token")
		s.Error(err)
		s.True(dErrors.Is(err, dErrors.CodeUnauthorized))
	})
}

func (s *TokenSuite) TestExpiry() {
	expiry := time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC)

	s.Run("expired token still decodes", func() {
		signed, _, err := s.issuer.Issue("INT-2024-000007", expiry, "")
		s.Require().NoError(err)

		claims, err := s.issuer.Verify(signed)
		s.Require().NoError(err, "expiry must not block decoding")

		after := expiry.Add(time.Second)
		s.True(claims.ExpiredAt(after))
		s.False(claims.ExpiredAt(expiry.Add(-time.Second)))
	})

	s.Run("claims without expiry never expire", func() {
		c := &Claims{}
		s.False(c.ExpiredAt(time.Date(2999, 1, 1, 0, 0, 0, 0, time.UTC)))
	})
}
