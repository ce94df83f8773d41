package events

import (
	"context"
	"fmt"
	"vaxslot/pkg/kafka"
	"vaxslot/pkg/middleware"
)

type messagePublisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

// KafkaPublisher keys messages by appointment id so every change to one
// appointment lands on the same partition in order.
type KafkaPublisher struct {
	producer messagePublisher
	source   string
}

func NewKafkaPublisher(producer *kafka.Producer, source string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, source: source}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event AppointmentEvent) error {
	msg, err := kafka.NewMessage(event.AppointmentID, event,
		kafka.WithEventType(event.Type),
		kafka.WithSchemaVersion(SchemaVersion),
		kafka.WithSource(p.source),
		kafka.WithCorrelationID(middleware.RequestIDFrom(ctx)),
		kafka.WithTimestamp(event.OccurredAt),
	)
	if err != nil {
		return err
	}

	if err := p.producer.Publish(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s for appointment %s: %w", event.Type, event.AppointmentID, err)
	}
	return nil
}
