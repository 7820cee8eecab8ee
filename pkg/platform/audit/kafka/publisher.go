// Package kafka ships audit events to a Kafka topic so external consumers
// (SIEM, reporting) can follow the membership trail without querying the
// store. It satisfies the publisher Sink interface.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	audit "membergate/pkg/platform/audit"
)

// Publisher produces audit events to a single topic, keyed by member id so
// one member's trail stays ordered within a partition.
type Publisher struct {
	client *kgo.Client
	topic  string
}

func NewPublisher(brokers []string, topic string) (*Publisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("audit kafka: connect: %w", err)
	}
	return &Publisher{client: client, topic: topic}, nil
}

// Append produces the event synchronously. Callers treat failures as
// best-effort, so a broker outage costs latency on the audit path only.
func (p *Publisher) Append(ctx context.Context, event audit.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("audit kafka: encode: %w", err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.MemberID),
		Value: value,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("audit kafka: produce: %w", err)
	}
	return nil
}

func (p *Publisher) Close() {
	p.client.Close()
}
