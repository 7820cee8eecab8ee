package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"membergate/internal/docstore"
	"membergate/internal/member/idempotency"
	"membergate/internal/member/models"
	dErrors "membergate/pkg/domain-errors"
	audit "membergate/pkg/platform/audit"
	"membergate/pkg/platform/sentinel"
)

// Activation sources. They are part of the idempotency key, so an admin
// retry and a payment-webhook retry cannot mask each other.
const (
	SourceAdmin   = "admin"
	SourceWebhook = "webhook"

	opStartMembership = "startMembership"
)

// ActivateInput carries the payment facts recorded on the period.
type ActivateInput struct {
	PriceCents    int64
	Currency      string
	PaymentMethod string
	ExternalRef   string
}

// ActivateResult reports the state transition. Path is a stable reference to
// the period document for downstream linking.
type ActivateResult struct {
	Path          string
	AlreadyActive bool
	Member        models.MemberRecord
	Period        models.MembershipPeriod
}

// Activate transactionally flips the member's period for year to active and
// mirrors the summary onto the member record. Re-activating an active period
// is a no-op that reports AlreadyActive without re-dating or re-pricing it.
// No external side effects happen here; callers gate those through
// StartMembership.
func (s *Service) Activate(ctx context.Context, memberID string, year int, in ActivateInput) (ActivateResult, error) {
	ctx, span := s.tracer.Start(ctx, "member.Activate")
	defer span.End()

	if year < 1900 || year > 9999 {
		return ActivateResult{}, dErrors.New(dErrors.CodeInvalidInput, "year out of range")
	}

	var result ActivateResult
	err := s.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		var member models.MemberRecord
		if err := tx.Get(ColMembers, memberID, &member); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "member not found")
			}
			return err
		}

		key := PeriodKey(memberID, year)
		var period models.MembershipPeriod
		err := tx.Get(ColPeriods, key, &period)
		found := err == nil
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return err
		}

		if found && period.Status == models.PeriodActive {
			// Idempotent rewrite of the stored fields keeps redundant calls
			// deterministic without re-dating or re-pricing the period.
			if err := tx.Put(ColPeriods, key, period); err != nil {
				return err
			}
			result = ActivateResult{
				Path:          periodPath(memberID, year),
				AlreadyActive: true,
				Member:        member,
				Period:        period,
			}
			return nil
		}

		period = models.MembershipPeriod{
			MemberID:      memberID,
			Year:          year,
			Status:        models.PeriodActive,
			StartedAt:     time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
			ExpiresAt:     time.Date(year, time.December, 31, 23, 59, 59, 0, time.UTC),
			PriceCents:    in.PriceCents,
			Currency:      in.Currency,
			PaymentMethod: in.PaymentMethod,
			ExternalRef:   in.ExternalRef,
		}
		if err := tx.Put(ColPeriods, key, period); err != nil {
			return err
		}

		expiresAt := period.ExpiresAt
		member.Status = models.StatusActive
		member.CurrentYear = year
		member.CurrentExpiresAt = &expiresAt
		member.ActiveMembership = &models.ActiveMembership{
			Year:      year,
			Status:    models.PeriodActive,
			ExpiresAt: expiresAt,
		}
		member.UpdatedAt = s.clock().UTC()
		if err := tx.Put(ColMembers, memberID, member); err != nil {
			return err
		}

		result = ActivateResult{
			Path:   periodPath(memberID, year),
			Member: member,
			Period: period,
		}
		return nil
	})
	if err != nil {
		return ActivateResult{}, err
	}
	return result, nil
}

func periodPath(memberID string, year int) string {
	return fmt.Sprintf("members/%s/periods/%d", memberID, year)
}

// StartInput is one logical activation request.
type StartInput struct {
	MemberID string
	Year     int
	Source   string
	ActorID  string
	ActivateInput
}

// StartResult is the outcome of a guarded activation. Idempotent means a
// prior completion with the same key was found and no side effects ran.
type StartResult struct {
	MemberNo      string `json:"member_no"`
	Year          int    `json:"year"`
	Path          string `json:"path"`
	AlreadyActive bool   `json:"already_active"`
	Idempotent    bool   `json:"-"`
}

// StartMembership is the idempotent activation workflow: activation plus its
// one-time side effects (notification, audit, metrics), deduplicated by the
// idempotency guard. Retrying with the same (member, year, source) never
// resends the notification, never writes a duplicate audit entry, and never
// double-increments metrics.
func (s *Service) StartMembership(ctx context.Context, in StartInput) (StartResult, error) {
	ctx, span := s.tracer.Start(ctx, "member.StartMembership")
	defer span.End()

	if in.Source != SourceAdmin && in.Source != SourceWebhook {
		return StartResult{}, dErrors.New(dErrors.CodeInvalidInput, "unknown activation source")
	}

	key := idempotency.Key(opStartMembership, in.MemberID, in.Year, in.Source)
	outcome, err := s.guard.Run(ctx, key, func(ctx context.Context) (any, error) {
		res, err := s.Activate(ctx, in.MemberID, in.Year, in.ActivateInput)
		if err != nil {
			return nil, err
		}

		// Side effects fire only on the activation that changed state: the
		// activation transaction serializes concurrent callers, so exactly
		// one of them observes AlreadyActive == false.
		if res.AlreadyActive {
			s.metrics.DuplicateActivations.Inc()
		} else {
			if err := s.notifier.MembershipActivated(ctx, res.Member.EmailNormalized, res.Member.MemberNo, in.Year); err != nil {
				s.logger.WarnContext(ctx, "activation notification failed",
					"member_no", res.Member.MemberNo,
					"error", err,
				)
			}
			s.emitAudit(ctx, audit.Event{
				Action:   audit.ActionMembershipActivated,
				MemberID: res.Member.ID,
				MemberNo: res.Member.MemberNo,
				ActorID:  in.ActorID,
				Detail: map[string]string{
					"year":   fmt.Sprintf("%d", in.Year),
					"source": in.Source,
				},
			})
			s.metrics.Activations.Inc()
		}

		return StartResult{
			MemberNo:      res.Member.MemberNo,
			Year:          in.Year,
			Path:          res.Path,
			AlreadyActive: res.AlreadyActive,
		}, nil
	})
	if err != nil {
		return StartResult{}, err
	}

	var result StartResult
	if err := json.Unmarshal(outcome.Result, &result); err != nil {
		return StartResult{}, fmt.Errorf("decode start result: %w", err)
	}
	result.Idempotent = outcome.Idempotent
	if outcome.Idempotent {
		s.metrics.DuplicateActivations.Inc()
	}
	return result, nil
}

// IssueCard mints a signed card token for an active membership, expiring with
// the current period. A member whose status was never flipped back after the
// period lapsed is still refused; no card is ever minted already expired.
func (s *Service) IssueCard(ctx context.Context, memberNo string) (string, *models.MemberRecord, error) {
	member, err := s.FindByMemberNo(ctx, memberNo)
	if err != nil {
		return "", nil, err
	}
	if member.Status != models.StatusActive || member.CurrentExpiresAt == nil {
		return "", nil, dErrors.New(dErrors.CodeConflict, "membership is not active")
	}
	if !s.clock().Before(*member.CurrentExpiresAt) {
		return "", nil, dErrors.New(dErrors.CodeConflict, "membership period has expired")
	}

	signed, claims, err := s.tokens.Issue(member.MemberNo, *member.CurrentExpiresAt, "")
	if err != nil {
		return "", nil, err
	}

	s.metrics.TokensIssued.Inc()
	s.emitAudit(ctx, audit.Event{
		Action:   audit.ActionCardIssued,
		MemberID: member.ID,
		MemberNo: member.MemberNo,
		Detail:   map[string]string{"jti": claims.ID},
	})
	return signed, member, nil
}
