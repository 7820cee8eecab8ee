// Package token issues and verifies the signed membership card tokens. Tokens
// are compact HS256 JWTs whose header carries a key id, so signing keys can
// rotate without invalidating outstanding cards: new tokens always sign with
// the active key, verification accepts every key in the ring.
package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "membergate/pkg/domain-errors"
)

// Keyring is the immutable key material injected at construction time: named
// secrets plus the key id used for new signatures.
type Keyring struct {
	keys   map[string][]byte
	active string
}

func NewKeyring(keys map[string]string, activeKid string) (*Keyring, error) {
	if len(keys) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "keyring requires at least one key")
	}
	if _, ok := keys[activeKid]; !ok {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "active kid not present in keyring")
	}
	ring := &Keyring{keys: make(map[string][]byte, len(keys)), active: activeKid}
	for kid, secret := range keys {
		if kid == "" || secret == "" {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "keyring entries must have non-empty kid and secret")
		}
		ring.keys[kid] = []byte(secret)
	}
	return ring, nil
}

// ActiveKid returns the key id used for new signatures.
func (k *Keyring) ActiveKid() string { return k.active }

// Kids lists every key id the ring can verify.
func (k *Keyring) Kids() []string {
	kids := make([]string, 0, len(k.keys))
	for kid := range k.keys {
		kids = append(kids, kid)
	}
	return kids
}

func (k *Keyring) secret(kid string) ([]byte, bool) {
	secret, ok := k.keys[kid]
	return secret, ok
}

// Claims is the card token payload. MemberNo travels as "mno"; jti, iat and
// exp come from the registered claims.
type Claims struct {
	Ver      int    `json:"ver"`
	MemberNo string `json:"mno"`
	jwt.RegisteredClaims
}

// ExpiredAt reports whether the token's expiry has passed at the given time.
// Tokens without an expiry never expire.
func (c *Claims) ExpiredAt(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(c.ExpiresAt.Time)
}

// Issuer mints and verifies card tokens against a keyring.
type Issuer struct {
	ring  *Keyring
	clock func() time.Time
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) Option {
	return func(i *Issuer) {
		if clock != nil {
			i.clock = clock
		}
	}
}

func NewIssuer(ring *Keyring, opts ...Option) *Issuer {
	i := &Issuer{ring: ring, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(i)
		}
	}
	return i
}

// Issue signs a card token for memberNo expiring at expiresAt. An empty kid
// selects the ring's active key; a kid not in the ring is rejected. The
// returned claims expose the generated jti for audit and revocation.
func (i *Issuer) Issue(memberNo string, expiresAt time.Time, kid string) (string, *Claims, error) {
	if kid == "" {
		kid = i.ring.active
	}
	secret, ok := i.ring.secret(kid)
	if !ok {
		return "", nil, dErrors.New(dErrors.CodeInvalidInput, "unknown signing key id")
	}

	claims := &Claims{
		Ver:      1,
		MemberNo: memberNo,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(i.clock()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	t.Header["kid"] = kid
	signed, err := t.SignedString(secret)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// Verify checks the signature and returns the decoded claims. Expiry is
// deliberately not enforced here: callers check it themselves so they can
// distinguish an expired card from a forged one. An unknown kid or signing
// method fails verification.
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	parsed, err := parser.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		secret, ok := i.ring.secret(kid)
		if !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return secret, nil
	})
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeUnauthorized, "invalid token", err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return claims, nil
}
