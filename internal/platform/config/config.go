// Package config builds process configuration from environment variables so
// main stays lean. Signing keys are injected here; their storage mechanism is
// the deployment's concern.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config captures everything the server needs at startup.
type Config struct {
	Addr string

	// MemberNoPrefix is the uppercase prefix of issued member numbers,
	// e.g. "INT" for INT-2025-000123.
	MemberNoPrefix string

	// SigningKeys maps key id to secret; ActiveKid selects the key used for
	// new card signatures. Every listed key remains valid for verification.
	SigningKeys map[string]string
	ActiveKid   string

	// TrustedMode skips captcha and rate limiting on the public verification
	// endpoint. Intended for internal deployments behind their own gateway.
	TrustedMode bool

	CaptchaSecret   string
	CaptchaEndpoint string

	VerifyPerMinute int
	VerifyPerDay    int

	PostgresDSN string
	RedisURL    string

	// AdminAPIKey and VerifyAPIKey are bootstrap credentials in "<id>.<secret>"
	// form, seeded into the key store at startup. Optional.
	AdminAPIKey  string
	VerifyAPIKey string

	KafkaBrokers []string
	AuditTopic   string
}

// FromEnv reads configuration from MEMBERGATE_* environment variables,
// falling back to development defaults.
func FromEnv() (Config, error) {
	cfg := Config{
		Addr:            envOr("MEMBERGATE_ADDR", ":8080"),
		MemberNoPrefix:  envOr("MEMBERGATE_MEMBER_PREFIX", "INT"),
		ActiveKid:       envOr("MEMBERGATE_ACTIVE_KID", "k1"),
		TrustedMode:     os.Getenv("MEMBERGATE_TRUSTED_MODE") == "true",
		CaptchaSecret:   os.Getenv("MEMBERGATE_CAPTCHA_SECRET"),
		CaptchaEndpoint: envOr("MEMBERGATE_CAPTCHA_ENDPOINT", "https://challenges.cloudflare.com/turnstile/v0/siteverify"),
		VerifyPerMinute: envIntOr("MEMBERGATE_VERIFY_PER_MINUTE", 60),
		VerifyPerDay:    envIntOr("MEMBERGATE_VERIFY_PER_DAY", 1000),
		PostgresDSN:     os.Getenv("MEMBERGATE_POSTGRES_DSN"),
		RedisURL:        os.Getenv("MEMBERGATE_REDIS_URL"),
		AdminAPIKey:     os.Getenv("MEMBERGATE_ADMIN_API_KEY"),
		VerifyAPIKey:    os.Getenv("MEMBERGATE_VERIFY_API_KEY"),
		AuditTopic:      envOr("MEMBERGATE_AUDIT_TOPIC", "membergate.audit"),
	}

	if brokers := os.Getenv("MEMBERGATE_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	keys, err := parseSigningKeys(os.Getenv("MEMBERGATE_SIGNING_KEYS"))
	if err != nil {
		return Config{}, err
	}
	if len(keys) == 0 {
		// Development default - must be overridden in production.
		keys = map[string]string{"k1": "dev-secret-change-in-production"}
	}
	cfg.SigningKeys = keys

	return cfg, nil
}

// parseSigningKeys parses "kid=secret,kid2=secret2".
func parseSigningKeys(raw string) (map[string]string, error) {
	if raw == "" {
		return nil, nil
	}
	keys := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		kid, secret, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || kid == "" || secret == "" {
			return nil, fmt.Errorf("config: malformed signing key entry %q", pair)
		}
		keys[kid] = secret
	}
	return keys, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
