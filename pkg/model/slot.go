package model

import "time"

// Slot is a bookable window for one vaccine. BookedCount is owned by the
// inventory ledger; admin writes never touch it.
type Slot struct {
	ID              string    `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	VaccineID       string    `json:"vaccine_id" bson:"vaccine_id" validate:"required,mongodb"`
	Date            string    `json:"date" bson:"date" validate:"required,datetime=2006-01-02"`
	StartTime       string    `json:"start_time" bson:"start_time" validate:"required,clock_time"`
	EndTime         string    `json:"end_time" bson:"end_time" validate:"required,clock_time"`
	MaxAppointments int       `json:"max_appointments" bson:"max_appointments" validate:"required,min=1,max=1000"`
	BookedCount     int       `json:"booked_count" bson:"booked_count" validate:"min=0"`
	Version         int64     `json:"version" bson:"version"`
	CreatedAt       time.Time `json:"created_at" bson:"created_at" validate:"omitempty"`
}

func (s *Slot) Available() int {
	return max(0, s.MaxAppointments-s.BookedCount)
}

func (s *Slot) TimeRange() string {
	return s.StartTime + " - " + s.EndTime
}

type SlotUpdate struct {
	Date            string `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	StartTime       string `json:"start_time,omitempty" validate:"omitempty,clock_time"`
	EndTime         string `json:"end_time,omitempty" validate:"omitempty,clock_time"`
	MaxAppointments *int   `json:"max_appointments,omitempty" validate:"omitempty,min=1,max=1000"`
}

type SlotFilter struct {
	VaccineID     string
	Date          string
	OnlyAvailable bool
}

// SlotListing is a slot joined with the name of its vaccine.
type SlotListing struct {
	*Slot
	VaccineName string `json:"vaccine_name,omitempty"`
	Available   int    `json:"available"`
}
