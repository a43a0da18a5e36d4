// Package producer publishes ledger audit events to Kafka.
package producer

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"ccms/pkg/platform/audit"
)

// Producer is the subset of *kgo.Client the sink needs.
type Producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
}

// EventSink forwards every delivered audit event to a topic, keyed by event
// ID. Delivery is asynchronous; failures are logged.
type EventSink struct {
	producer Producer
	topic    string
	logger   *slog.Logger
}

// NewEventSink returns a sink publishing to topic.
func NewEventSink(producer Producer, topic string, logger *slog.Logger) *EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventSink{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
}

// Deliver implements publisher.Sink.
func (s *EventSink) Deliver(event audit.Event) {
	value, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("failed to marshal ledger event",
			"event_id", event.ID,
			"error", err,
		)
		return
	}
	record := &kgo.Record{
		Topic:     s.topic,
		Key:       []byte(event.ID.String()),
		Value:     value,
		Timestamp: event.Timestamp,
		Headers: []kgo.RecordHeader{
			{Key: "action", Value: []byte(event.Action)},
			{Key: "ledger", Value: []byte(event.Ledger)},
		},
	}
	s.producer.Produce(context.Background(), record, func(r *kgo.Record, err error) {
		if err != nil {
			s.logger.Error("failed to publish ledger event",
				"event_id", event.ID,
				"topic", r.Topic,
				"error", err,
			)
		}
	})
}
