// Package notify is the fire-and-forget notification collaborator boundary.
// Delivery is out of scope for the core: implementations are best-effort and
// must never be called inside a docstore transaction.
package notify

import (
	"context"
	"log/slog"
)

// Notifier sends member-facing notifications. Errors are logged by callers,
// never retried synchronously, and never roll back committed state.
type Notifier interface {
	MembershipActivated(ctx context.Context, email, memberNo string, year int) error
}

// LogNotifier writes notifications to the log. It stands in for a real
// delivery provider in development and tests.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) MembershipActivated(ctx context.Context, email, memberNo string, year int) error {
	n.logger.InfoContext(ctx, "membership activated notification",
		"email", email,
		"member_no", memberNo,
		"year", year,
	)
	return nil
}
