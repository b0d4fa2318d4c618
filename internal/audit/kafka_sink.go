package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"sharedauth/internal/platform/kafka/producer"
)

// Publisher is the subset of the Kafka producer the sink needs.
type Publisher interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

// KafkaSink streams events as JSON records keyed by user id so one user's
// events stay ordered within a partition.
type KafkaSink struct {
	publisher Publisher
	topic     string
}

func NewKafkaSink(publisher Publisher, topic string) *KafkaSink {
	return &KafkaSink{publisher: publisher, topic: topic}
}

func (s *KafkaSink) Append(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	key := event.UserID
	if key == "" {
		key = event.ID
	}
	return s.publisher.Produce(ctx, &producer.Message{
		Topic: s.topic,
		Key:   []byte(key),
		Value: payload,
		Headers: map[string]string{
			"event_type": string(event.Type),
			"app_type":   string(event.AppType),
		},
	})
}
