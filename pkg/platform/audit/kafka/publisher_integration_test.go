//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "membergate/pkg/platform/audit"
	auditkafka "membergate/pkg/platform/audit/kafka"
	"membergate/pkg/testutil/containers"
)

type KafkaPublisherSuite struct {
	suite.Suite
	redpanda  *containers.RedpandaContainer
	publisher *auditkafka.Publisher
}

const testTopic = "membergate.audit.test"

func TestKafkaPublisherSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaPublisherSuite))
}

func (s *KafkaPublisherSuite) SetupSuite() {
	ctx := context.Background()
	s.redpanda = containers.NewRedpandaContainer(s.T())
	s.Require().NoError(s.redpanda.CreateTopic(ctx, testTopic))

	var err error
	s.publisher, err = auditkafka.NewPublisher([]string{s.redpanda.Broker}, testTopic)
	s.Require().NoError(err)
}

func (s *KafkaPublisherSuite) TearDownSuite() {
	s.publisher.Close()
}

func (s *KafkaPublisherSuite) TestAppendDeliversToTopic() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	event := audit.Event{
		Timestamp: time.Now().UTC(),
		Action:    audit.ActionMembershipActivated,
		MemberID:  "member-1",
		MemberNo:  "INT-2025-000001",
		Detail:    map[string]string{"year": "2025", "source": "webhook"},
	}
	s.Require().NoError(s.publisher.Append(ctx, event))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.Broker),
		kgo.ConsumeTopics(testTopic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	s.Require().NoError(fetches.Err())

	records := fetches.Records()
	s.Require().NotEmpty(records)

	var got audit.Event
	s.Require().NoError(json.Unmarshal(records[0].Value, &got))
	s.Equal(audit.ActionMembershipActivated, got.Action)
	s.Equal("INT-2025-000001", got.MemberNo)
	s.Equal("member-1", string(records[0].Key), "events are keyed by member id")
}
