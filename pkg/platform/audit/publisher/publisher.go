// Package publisher decouples audit emission from persistence. Domain code
// calls Emit after a transaction commits; persistence happens synchronously
// or through a buffered channel drained by the worker.
package publisher

import (
	"context"
	"log/slog"
	"time"

	audit "membergate/pkg/platform/audit"
)

// Sink receives emitted events. audit.Store satisfies it; the Kafka publisher
// is another implementation.
type Sink interface {
	Append(ctx context.Context, event audit.Event) error
}

// Publisher emits audit events to a sink, optionally through an async buffer.
// Emission is best-effort: a full buffer drops the event with a log line
// rather than blocking the request path.
type Publisher struct {
	sink   Sink
	logger *slog.Logger
	inbox  chan audit.Event
	done   chan struct{}
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithAsyncBuffer switches the publisher to asynchronous mode with the given
// channel capacity. Close drains the buffer.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.inbox = make(chan audit.Event, size)
		}
	}
}

func NewPublisher(sink Sink, logger *slog.Logger, opts ...Option) *Publisher {
	p := &Publisher{sink: sink, logger: logger}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.inbox != nil {
		p.done = make(chan struct{})
		go p.drain()
	}
	return p
}

// Emit records an event. In sync mode the sink error is returned; in async
// mode Emit never blocks and a full buffer drops the event.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if p.inbox == nil {
		return p.sink.Append(ctx, event)
	}
	select {
	case p.inbox <- event:
	default:
		p.logger.Warn("audit buffer full, dropping event", "action", event.Action)
	}
	return nil
}

func (p *Publisher) drain() {
	defer close(p.done)
	for event := range p.inbox {
		if err := p.sink.Append(context.Background(), event); err != nil {
			p.logger.Warn("audit append failed", "action", event.Action, "error", err)
		}
	}
}

// Close stops async processing after draining buffered events. Safe to call
// in sync mode.
func (p *Publisher) Close() {
	if p.inbox == nil {
		return
	}
	close(p.inbox)
	<-p.done
}
