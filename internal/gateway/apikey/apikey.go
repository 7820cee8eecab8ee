// Package apikey manages the scoped keys that let integrators bypass captcha
// and rate limiting on the public verification endpoint. Keys are issued as
// "<id>.<secret>"; only a bcrypt hash of the secret is stored, so lookups go
// by id and the secret is verified on use.
package apikey

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	dErrors "membergate/pkg/domain-errors"
	"membergate/pkg/platform/sentinel"
)

// Scopes a key may carry.
const (
	ScopeVerify = "verify"
	ScopeAdmin  = "admin"
)

// Key is a stored API key. SecretHash is a bcrypt hash of the secret part.
type Key struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	SecretHash string    `json:"secret_hash"`
	Scopes     []string  `json:"scopes"`
	CreatedAt  time.Time `json:"created_at"`
}

// HasScope reports whether the key carries the given scope.
func (k *Key) HasScope(scope string) bool {
	for _, s := range k.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Store persists API keys.
type Store interface {
	Create(ctx context.Context, key Key) error
	// Get returns the key for id, or sentinel.ErrNotFound.
	Get(ctx context.Context, id string) (*Key, error)
}

// Generate creates a new key id and cryptographically secure secret. The
// caller shows Token(id, secret) to the integrator once and stores only the
// hash.
func Generate() (id, secret string, err error) {
	idBuf := make([]byte, 6)
	if _, err := rand.Read(idBuf); err != nil {
		return "", "", fmt.Errorf("could not generate key id: %w", err)
	}
	secretBuf := make([]byte, 32)
	if _, err := rand.Read(secretBuf); err != nil {
		return "", "", fmt.Errorf("could not generate secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(idBuf),
		base64.RawURLEncoding.EncodeToString(secretBuf), nil
}

// Token joins id and secret into the presented credential.
func Token(id, secret string) string {
	return id + "." + secret
}

// Hash creates a bcrypt hash of the provided secret.
func Hash(secret string) (string, error) {
	if secret == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "secret cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "secret is too long")
		}
		return "", fmt.Errorf("could not hash secret: %w", err)
	}
	return string(hashed), nil
}

// Authenticator resolves presented credentials to stored keys.
type Authenticator struct {
	store Store
}

func NewAuthenticator(store Store) *Authenticator {
	return &Authenticator{store: store}
}

// Authenticate verifies a presented "<id>.<secret>" credential and returns
// the stored key. All failure modes collapse to one unauthorized error so the
// response does not reveal whether the id exists.
func (a *Authenticator) Authenticate(ctx context.Context, presented string) (*Key, error) {
	unauthorized := dErrors.New(dErrors.CodeUnauthorized, "invalid api key")

	id, secret, ok := strings.Cut(presented, ".")
	if !ok || id == "" || secret == "" {
		return nil, unauthorized
	}
	key, err := a.store.Get(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, unauthorized
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(key.SecretHash), []byte(secret)) != nil {
		return nil, unauthorized
	}
	return key, nil
}
