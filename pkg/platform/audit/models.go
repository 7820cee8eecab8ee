// Package audit captures key domain actions for the membership core. Events
// are emitted after a transaction commits, are individually best-effort, and
// never roll back committed state.
package audit

import "time"

// Action names the audit events the core emits.
type Action string

const (
	ActionMemberRegistered    Action = "member_registered"
	ActionMembershipActivated Action = "membership_activated"
	ActionCardIssued          Action = "card_issued"
	ActionTokenRevoked        Action = "token_revoked"
	ActionVerificationServed  Action = "verification_served"
)

// Event is emitted from domain logic. Keep it transport-agnostic so stores
// and sinks can fan out.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	Action    Action            `json:"action"`
	MemberID  string            `json:"member_id,omitempty"`
	MemberNo  string            `json:"member_no,omitempty"`
	ActorID   string            `json:"actor_id,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Detail    map[string]string `json:"detail,omitempty"`
}
