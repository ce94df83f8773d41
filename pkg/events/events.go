package events

import (
	"context"
	"time"
)

const (
	AppointmentBooked        = "appointment.booked"
	AppointmentCancelled     = "appointment.cancelled"
	AppointmentStatusChanged = "appointment.status_changed"

	SchemaVersion = "1"
)

// AppointmentEvent is emitted after an appointment change has committed.
type AppointmentEvent struct {
	Type           string    `json:"type"`
	AppointmentID  string    `json:"appointment_id"`
	UserID         string    `json:"user_id"`
	SlotID         string    `json:"slot_id"`
	VaccineID      string    `json:"vaccine_id"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	ActorID        string    `json:"actor_id,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, event AppointmentEvent) error
}

type nopPublisher struct{}

// Nop drops every event.
func Nop() Publisher {
	return nopPublisher{}
}

func (nopPublisher) Publish(context.Context, AppointmentEvent) error {
	return nil
}
