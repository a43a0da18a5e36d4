//go:build integration

package kafka_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"ccms/internal/platform/config"
	"ccms/internal/platform/kafka"
	"ccms/internal/platform/kafka/consumer"
	"ccms/pkg/testutil/containers"
)

type KafkaSuite struct {
	suite.Suite
	cfg config.KafkaConfig
}

func TestKafkaSuite(t *testing.T) {
	suite.Run(t, new(KafkaSuite))
}

func (s *KafkaSuite) SetupSuite() {
	broker := containers.GetManager().GetRedpanda(s.T())
	s.cfg = config.KafkaConfig{
		Brokers:     broker.Brokers,
		Group:       "ccms-test-" + uuid.NewString(),
		Partitions:  1,
		Replication: 1,
	}
}

func (s *KafkaSuite) TestEnsureTopicsIsIdempotent() {
	ctx := context.Background()
	client, err := kafka.NewClient(ctx, s.cfg)
	s.Require().NoError(err)
	defer client.Close()

	topic := "ensure-" + uuid.NewString()
	s.Require().NoError(kafka.EnsureTopics(ctx, client, 1, 1, topic))
	s.Require().NoError(kafka.EnsureTopics(ctx, client, 1, 1, topic))
}

func (s *KafkaSuite) TestConsumerReceivesProducedRecords() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	topic := "roundtrip-" + uuid.NewString()
	producer, err := kafka.NewClient(ctx, s.cfg)
	s.Require().NoError(err)
	defer producer.Close()
	s.Require().NoError(kafka.EnsureTopics(ctx, producer, 1, 1, topic))

	results := producer.ProduceSync(ctx,
		&kgo.Record{Topic: topic, Key: []byte("a"), Value: []byte("1")},
		&kgo.Record{Topic: topic, Key: []byte("b"), Value: []byte("2")},
	)
	s.Require().NoError(results.FirstErr())

	client, err := kafka.NewClient(ctx, s.cfg,
		kgo.ConsumerGroup(s.cfg.Group),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.DisableAutoCommit(),
	)
	s.Require().NoError(err)
	defer client.Close()

	received := make(chan string, 2)
	c := consumer.New(client, consumer.HandlerFunc(func(_ context.Context, msg *consumer.Message) error {
		received <- string(msg.Key)
		return nil
	}))
	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- c.Run(runCtx) }()

	var keys []string
	for len(keys) < 2 {
		select {
		case k := <-received:
			keys = append(keys, k)
		case <-ctx.Done():
			s.T().Fatal("timed out waiting for records")
		}
	}
	stop()
	require.NoError(s.T(), <-done)
	s.ElementsMatch([]string{"a", "b"}, keys)
}
