package events

import (
	"context"
	"errors"
	"testing"
	"time"
	"vaxslot/pkg/kafka"
	"vaxslot/pkg/middleware"
)

type recordingProducer struct {
	messages []kafka.Message
	err      error
}

func (r *recordingProducer) Publish(ctx context.Context, msg kafka.Message) error {
	if r.err != nil {
		return r.err
	}
	r.messages = append(r.messages, msg)
	return nil
}

func TestKafkaPublisher_Publish(t *testing.T) {
	rec := &recordingProducer{}
	pub := &KafkaPublisher{producer: rec, source: "appointments-service"}
	occurred := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")
	err := pub.Publish(ctx, AppointmentEvent{
		Type:          AppointmentBooked,
		AppointmentID: "a1",
		UserID:        "u1",
		SlotID:        "s1",
		Status:        "Scheduled",
		OccurredAt:    occurred,
	})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(rec.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(rec.messages))
	}

	msg := rec.messages[0]
	if msg.Key != "a1" {
		t.Errorf("Key = %q, want a1", msg.Key)
	}
	if msg.GetEventType() != AppointmentBooked {
		t.Errorf("event type = %q", msg.GetEventType())
	}
	if msg.GetCorrelationID() != "req-42" {
		t.Errorf("correlation id = %q, want req-42", msg.GetCorrelationID())
	}
	if msg.Headers[kafka.HeaderSource] != "appointments-service" {
		t.Errorf("source = %q", msg.Headers[kafka.HeaderSource])
	}

	var decoded AppointmentEvent
	if err := msg.DecodeValue(&decoded); err != nil {
		t.Fatalf("DecodeValue() error = %v", err)
	}
	if decoded.SlotID != "s1" || !decoded.OccurredAt.Equal(occurred) {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestKafkaPublisher_WrapsError(t *testing.T) {
	boom := errors.New("broker down")
	pub := &KafkaPublisher{producer: &recordingProducer{err: boom}}

	err := pub.Publish(context.Background(), AppointmentEvent{Type: AppointmentCancelled, AppointmentID: "a1"})
	if !errors.Is(err, boom) {
		t.Errorf("Publish() error = %v, want wrapped %v", err, boom)
	}
}
