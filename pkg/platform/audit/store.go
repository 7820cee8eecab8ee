package audit

import "context"

// Store persists audit events. Implementations must be safe for concurrent
// use; Append is called from the publisher's drain goroutine and from
// synchronous sinks.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByMember(ctx context.Context, memberID string) ([]Event, error)
}
