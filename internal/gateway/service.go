// Package gateway implements the abuse-resistant public verification
// endpoint. It resolves a card token or raw member number to a yes/no
// validity answer without leaking why an input failed: malformed numbers,
// forged tokens, and unknown members all produce the same valid=false shape.
package gateway

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"membergate/internal/gateway/apikey"
	"membergate/internal/gateway/captcha"
	"membergate/internal/gateway/clientinfo"
	"membergate/internal/gateway/ratelimit"
	"membergate/internal/member/models"
	"membergate/internal/platform/metrics"
	"membergate/internal/token"
	"membergate/internal/token/revocation"
	dErrors "membergate/pkg/domain-errors"
	audit "membergate/pkg/platform/audit"
)

// Reasons surfaced on valid=false responses. Absence of a reason means the
// input did not resolve to an active membership; the response deliberately
// does not distinguish malformed, unknown, and forged inputs.
const (
	ReasonRevoked = "revoked"
	ReasonExpired = "expired"
)

// Directory is the member lookup the gateway needs.
type Directory interface {
	FindByMemberNo(ctx context.Context, memberNo string) (*models.MemberRecord, error)
}

// Auditor is the slice of the audit publisher this service needs.
type Auditor interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service runs the verification algorithm.
type Service struct {
	directory Directory
	tokens    *token.Issuer
	ledger    revocation.Ledger
	limiter   *ratelimit.Limiter
	captcha   captcha.Verifier
	keys      *apikey.Authenticator
	auditor   Auditor
	metrics   *metrics.Metrics
	logger    *slog.Logger
	trusted   bool
	clock     func() time.Time
	tracer    trace.Tracer
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithTrustedMode skips captcha and rate limiting. For internal deployments
// already protected by their own gateway.
func WithTrustedMode(trusted bool) Option {
	return func(s *Service) { s.trusted = trusted }
}

func New(
	directory Directory,
	tokens *token.Issuer,
	ledger revocation.Ledger,
	limiter *ratelimit.Limiter,
	captchaVerifier captcha.Verifier,
	keys *apikey.Authenticator,
	auditor Auditor,
	m *metrics.Metrics,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		directory: directory,
		tokens:    tokens,
		ledger:    ledger,
		limiter:   limiter,
		captcha:   captchaVerifier,
		keys:      keys,
		auditor:   auditor,
		metrics:   m,
		logger:    logger,
		clock:     time.Now,
		tracer:    otel.Tracer("membergate/gateway"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// VerifyInput is one verification request. Token and MemberNo are mutually
// exclusive inputs; Token wins when both are present.
type VerifyInput struct {
	Token           string
	MemberNo        string
	APIKey          string
	CaptchaResponse string
	SourceIP        string
	UserAgent       string
}

// VerifyResult is the minimal validity payload. Name and Region are only
// populated for anonymous callers; API-key integrations get no PII.
type VerifyResult struct {
	Valid    bool
	MemberNo string
	Name     string
	Region   string
	Reason   string
}

// Verify runs the gateway algorithm: API-key bypass, then captcha and rate
// limiting for anonymous callers, then identity resolution, revocation check,
// and membership lookup. Captcha and rate-limit failures return domain
// errors; every resolution failure is a plain valid=false result.
func (s *Service) Verify(ctx context.Context, in VerifyInput) (VerifyResult, error) {
	ctx, span := s.tracer.Start(ctx, "gateway.Verify")
	defer span.End()

	apiKeyValid := false
	if in.APIKey != "" {
		if key, err := s.keys.Authenticate(ctx, in.APIKey); err == nil && key.HasScope(apikey.ScopeVerify) {
			apiKeyValid = true
		}
	}
	span.SetAttributes(attribute.Bool("gateway.api_key", apiKeyValid))

	if !apiKeyValid && !s.trusted {
		if err := s.captcha.Verify(ctx, in.CaptchaResponse, in.SourceIP); err != nil {
			s.metrics.CaptchaFailures.Inc()
			return VerifyResult{}, err
		}
		if err := s.limiter.Allow(ctx, ratelimit.HashSource(in.SourceIP)); err != nil {
			if dErrors.Is(err, dErrors.CodeRateLimited) {
				s.metrics.RateLimitRejections.Inc()
				return VerifyResult{}, err
			}
			return VerifyResult{}, dErrors.Wrap(dErrors.CodeInternal, "verification unavailable", err)
		}
	}

	result, err := s.resolve(ctx, in, apiKeyValid)
	if err != nil {
		return VerifyResult{}, err
	}
	s.observe(ctx, result, in.UserAgent)
	return result, nil
}

func (s *Service) resolve(ctx context.Context, in VerifyInput, apiKeyValid bool) (VerifyResult, error) {
	memberNo := in.MemberNo
	expired := false

	if in.Token != "" {
		claims, err := s.tokens.Verify(in.Token)
		if err != nil {
			// Forged or undecodable tokens read exactly like unknown members.
			return VerifyResult{Valid: false}, nil
		}
		revoked, err := s.ledger.IsRevoked(ctx, claims.ID)
		if err != nil {
			return VerifyResult{}, dErrors.Wrap(dErrors.CodeInternal, "verification unavailable", err)
		}
		if revoked {
			return VerifyResult{Valid: false, MemberNo: claims.MemberNo, Reason: ReasonRevoked}, nil
		}
		expired = claims.ExpiredAt(s.clock())
		memberNo = claims.MemberNo
	}

	// Malformed input short-circuits without a store read.
	if !models.ValidMemberNo(memberNo) {
		return VerifyResult{Valid: false}, nil
	}

	member, err := s.directory.FindByMemberNo(ctx, memberNo)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeNotFound) {
			return VerifyResult{Valid: false}, nil
		}
		return VerifyResult{}, dErrors.Wrap(dErrors.CodeInternal, "verification unavailable", err)
	}

	result := VerifyResult{MemberNo: memberNo}
	if !apiKeyValid {
		result.Name = member.Name
		result.Region = member.Region
	}

	if expired {
		result.Reason = ReasonExpired
		return result, nil
	}

	active := member.ActiveMembership
	result.Valid = active != nil &&
		active.Status == models.PeriodActive &&
		(active.ExpiresAt.IsZero() || active.ExpiresAt.After(s.clock()))
	return result, nil
}

// observe records metrics and a best-effort audit event for a served lookup.
// The client description comes from the User-Agent header; the raw header
// never reaches the trail.
func (s *Service) observe(ctx context.Context, result VerifyResult, userAgent string) {
	outcome := "invalid"
	switch {
	case result.Valid:
		outcome = "valid"
	case result.Reason != "":
		outcome = result.Reason
	}
	s.metrics.ObserveVerification(outcome)

	if s.auditor == nil {
		return
	}
	detail := map[string]string{"outcome": outcome}
	if userAgent != "" {
		detail["client"] = clientinfo.Describe(userAgent)
	}
	err := s.auditor.Emit(ctx, audit.Event{
		Action:   audit.ActionVerificationServed,
		MemberNo: result.MemberNo,
		Detail:   detail,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "action", audit.ActionVerificationServed, "error", err)
	}
}

// Revoke writes a revocation entry for jti. Admin-only; the handler enforces
// the scope.
func (s *Service) Revoke(ctx context.Context, jti, reason, revokedBy string) error {
	if jti == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "jti is required")
	}
	err := s.ledger.Revoke(ctx, revocation.Entry{
		JTI:       jti,
		Reason:    reason,
		RevokedBy: revokedBy,
		CreatedAt: s.clock().UTC(),
	})
	if err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "could not revoke token", err)
	}
	if s.auditor != nil {
		emitErr := s.auditor.Emit(ctx, audit.Event{
			Action:  audit.ActionTokenRevoked,
			ActorID: revokedBy,
			Detail:  map[string]string{"jti": jti, "reason": reason},
		})
		if emitErr != nil {
			s.logger.WarnContext(ctx, "audit emit failed", "action", audit.ActionTokenRevoked, "error", emitErr)
		}
	}
	return nil
}
