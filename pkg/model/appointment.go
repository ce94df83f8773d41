package model

import "time"

type AppointmentStatus string

const (
	StatusScheduled           AppointmentStatus = "Scheduled"
	StatusInProgress          AppointmentStatus = "In Progress"
	StatusCompleted           AppointmentStatus = "Completed"
	StatusMissed              AppointmentStatus = "Missed"
	StatusCancelledByProvider AppointmentStatus = "Cancelled by Provider"
)

var AppointmentStatuses = []AppointmentStatus{
	StatusScheduled,
	StatusInProgress,
	StatusCompleted,
	StatusMissed,
	StatusCancelledByProvider,
}

func (s AppointmentStatus) Valid() bool {
	for _, status := range AppointmentStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Appointment is created once per successful booking. Patient cancellation
// deletes it; every other lifecycle change is a status update.
type Appointment struct {
	ID              string            `json:"id,omitempty" bson:"_id,omitempty"`
	UserID          string            `json:"user_id" bson:"user_id"`
	UserEmail       string            `json:"user_email" bson:"user_email"`
	SlotID          string            `json:"slot_id" bson:"slot_id"`
	VaccineID       string            `json:"vaccine_id" bson:"vaccine_id"`
	BookedAt        time.Time         `json:"booked_at" bson:"booked_at"`
	Status          AppointmentStatus `json:"status" bson:"status"`
	CredentialToken string            `json:"credential_token,omitempty" bson:"credential_token,omitempty"`
	UpdatedAt       time.Time         `json:"updated_at" bson:"updated_at"`
}

type AppointmentView struct {
	Appointment *Appointment `json:"appointment"`
	Slot        *Slot        `json:"slot,omitempty"`
	Vaccine     *Vaccine     `json:"vaccine,omitempty"`

	// Set only when the view was resolved from a scanned credential.
	CredentialStatus AppointmentStatus `json:"credential_status,omitempty"`
	Stale            bool              `json:"stale,omitempty"`
}

type BookingRequest struct {
	SlotID string `json:"slot_id" validate:"required,mongodb"`
}

type StatusUpdateRequest struct {
	Status AppointmentStatus `json:"status" validate:"required,appointment_status"`
}

type VerifyRequest struct {
	Token string `json:"token" validate:"required,max=4096"`
}
