package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"membergate/internal/docstore"
	"membergate/internal/member/models"
	"membergate/internal/member/registry"
	dErrors "membergate/pkg/domain-errors"
	"membergate/pkg/email"
	audit "membergate/pkg/platform/audit"
	"membergate/pkg/platform/sentinel"
)

// RegisterInput is the profile-upsert request.
type RegisterInput struct {
	Email  string
	Name   string
	Region string
}

// Register upserts a member profile. A new email gets a freshly allocated
// member number reserved atomically with the email; re-registering an email
// for its existing owner updates the profile and keeps the assigned number.
// Concurrent registrations of the same email serialize on the registry entry.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.MemberRecord, error) {
	ctx, span := s.tracer.Start(ctx, "member.Register")
	defer span.End()

	normalized := models.NormalizeEmail(in.Email)
	if normalized == "" || !strings.Contains(normalized, "@") {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "valid email is required")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = email.DisplayName(normalized)
	}

	var member models.MemberRecord
	var created bool
	err := s.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		created = false

		var entry registry.Entry
		err := tx.Get(registry.Collection, registry.EntryKey(registry.KindEmail, normalized), &entry)
		switch {
		case err == nil:
			// Existing owner: idempotent profile update, member number is
			// immutable once assigned.
			if err := tx.Get(ColMembers, entry.Owner, &member); err != nil {
				return err
			}
			member.Name = name
			if in.Region != "" {
				member.Region = strings.TrimSpace(in.Region)
			}
			member.UpdatedAt = s.clock().UTC()
			return tx.Put(ColMembers, member.ID, member)
		case !errors.Is(err, sentinel.ErrNotFound):
			return err
		}

		now := s.clock().UTC()
		memberNo, err := registry.AllocateMemberNo(tx, s.prefix, now.Year())
		if err != nil {
			return err
		}

		id := uuid.NewString()
		if err := registry.Reserve(tx, registry.KindEmail, normalized, id); err != nil {
			return err
		}
		if err := registry.Reserve(tx, registry.KindMemberNo, memberNo, id); err != nil {
			return err
		}

		member = models.MemberRecord{
			ID:              id,
			EmailNormalized: normalized,
			MemberNo:        memberNo,
			Name:            name,
			Region:          strings.TrimSpace(in.Region),
			Status:          models.StatusNone,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		created = true
		return tx.Create(ColMembers, id, member)
	})
	if err != nil {
		return nil, err
	}

	if created {
		s.metrics.MembersRegistered.Inc()
		s.emitAudit(ctx, audit.Event{
			Action:   audit.ActionMemberRegistered,
			MemberID: member.ID,
			MemberNo: member.MemberNo,
		})
	}
	return &member, nil
}
