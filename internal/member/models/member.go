// Package models defines the persistent member domain types. Business logic
// belongs in the service layer; these types are shared across stores,
// services, and handlers.
package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// MemberStatus is the denormalized membership state on the member root record.
type MemberStatus string

const (
	StatusNone    MemberStatus = "none"
	StatusActive  MemberStatus = "active"
	StatusExpired MemberStatus = "expired"
)

// PeriodStatus is the state of a single membership year.
type PeriodStatus string

const (
	PeriodActive  PeriodStatus = "active"
	PeriodExpired PeriodStatus = "expired"
)

// ActiveMembership is the summary of the most recently activated period,
// denormalized onto the member record for fast reads. Only the activation
// flow writes it.
type ActiveMembership struct {
	Year      int          `json:"year"`
	Status    PeriodStatus `json:"status"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// MemberRecord is the root document for one person. MemberNo is immutable
// once assigned; Status, CurrentYear, and CurrentExpiresAt always mirror the
// most recently activated period and are never mutated independently.
type MemberRecord struct {
	ID               string            `json:"id"`
	EmailNormalized  string            `json:"email_normalized"`
	MemberNo         string            `json:"member_no"`
	Name             string            `json:"name"`
	Region           string            `json:"region"`
	Status           MemberStatus      `json:"status"`
	CurrentYear      int               `json:"current_year,omitempty"`
	CurrentExpiresAt *time.Time        `json:"current_expires_at,omitempty"`
	ActiveMembership *ActiveMembership `json:"active_membership,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// MembershipPeriod is a child of a MemberRecord, at most one per year.
// PriceCents uses the smallest currency unit to avoid floating-point rounding.
type MembershipPeriod struct {
	MemberID      string       `json:"member_id"`
	Year          int          `json:"year"`
	Status        PeriodStatus `json:"status"`
	StartedAt     time.Time    `json:"started_at"`
	ExpiresAt     time.Time    `json:"expires_at"`
	PriceCents    int64        `json:"price_cents"`
	Currency      string       `json:"currency"`
	PaymentMethod string       `json:"payment_method"`
	ExternalRef   string       `json:"external_ref,omitempty"`
}

var memberNoPattern = regexp.MustCompile(`^[A-Z]+-\d{4}-\d{6}$`)

// ValidMemberNo reports whether s matches the member number wire format
// PREFIX-YYYY-NNNNNN, e.g. INT-2025-000123.
func ValidMemberNo(s string) bool {
	return memberNoPattern.MatchString(s)
}

// FormatMemberNo builds a member number from its parts. The year segment
// partitions the sequence counter; seq is zero-padded to six digits.
func FormatMemberNo(prefix string, year, seq int) string {
	return fmt.Sprintf("%s-%04d-%06d", prefix, year, seq)
}

// NormalizeEmail lowercases and trims an email address so registry lookups
// are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
