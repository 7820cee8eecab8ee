// Package service implements the membership workflows: profile registration
// with member-number allocation, idempotent activation, and card issuance.
// All multi-document mutations run inside docstore transactions; side effects
// (notifications, audit, metrics) fire after commit and are best-effort.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"membergate/internal/docstore"
	"membergate/internal/member/idempotency"
	"membergate/internal/member/models"
	"membergate/internal/member/registry"
	"membergate/internal/notify"
	"membergate/internal/platform/metrics"
	"membergate/internal/token"
	dErrors "membergate/pkg/domain-errors"
	audit "membergate/pkg/platform/audit"
	"membergate/pkg/platform/sentinel"
)

const (
	// ColMembers holds one MemberRecord per person, keyed by member id.
	ColMembers = "members"
	// ColPeriods holds one MembershipPeriod per member and year,
	// keyed memberID:year.
	ColPeriods = "periods"
)

// PeriodKey builds the document key for a membership period.
func PeriodKey(memberID string, year int) string {
	return memberID + ":" + strconv.Itoa(year)
}

// Auditor is the slice of the audit publisher this service needs.
type Auditor interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service owns the membership domain operations.
type Service struct {
	store    docstore.Store
	guard    *idempotency.Guard
	tokens   *token.Issuer
	notifier notify.Notifier
	auditor  Auditor
	metrics  *metrics.Metrics
	logger   *slog.Logger
	prefix   string
	clock    func() time.Time
	tracer   trace.Tracer
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

func New(
	store docstore.Store,
	guard *idempotency.Guard,
	tokens *token.Issuer,
	notifier notify.Notifier,
	auditor Auditor,
	m *metrics.Metrics,
	logger *slog.Logger,
	memberNoPrefix string,
	opts ...Option,
) *Service {
	s := &Service{
		store:    store,
		guard:    guard,
		tokens:   tokens,
		notifier: notifier,
		auditor:  auditor,
		metrics:  m,
		logger:   logger,
		prefix:   memberNoPrefix,
		clock:    time.Now,
		tracer:   otel.Tracer("membergate/member"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// FindByMemberNo resolves a member number to its MemberRecord through the
// registry. Returns a NotFound domain error for unknown numbers.
func (s *Service) FindByMemberNo(ctx context.Context, memberNo string) (*models.MemberRecord, error) {
	var member models.MemberRecord
	err := s.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		var entry registry.Entry
		if err := tx.Get(registry.Collection, registry.EntryKey(registry.KindMemberNo, memberNo), &entry); err != nil {
			return err
		}
		return tx.Get(ColMembers, entry.Owner, &member)
	})
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "member not found")
	}
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// emitAudit publishes an audit event, logging rather than propagating
// failures: audit is best-effort and never rolls back committed state.
func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "action", event.Action, "error", err)
	}
}
