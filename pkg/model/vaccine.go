package model

import "time"

type Vaccine struct {
	ID             string    `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	Name           string    `json:"name" bson:"name" validate:"required,not_blank,min=2,max=100"`
	Manufacturer   string    `json:"manufacturer" bson:"manufacturer" validate:"required,not_blank,min=2,max=100"`
	Description    string    `json:"description,omitempty" bson:"description" validate:"omitempty,max=1000"`
	DosesAvailable int       `json:"doses_available" bson:"doses_available" validate:"min=0"`
	CreatedAt      time.Time `json:"created_at" bson:"created_at" validate:"omitempty"`
}

type VaccineUpdate struct {
	Name           string `json:"name,omitempty" validate:"omitempty,min=2,max=100"`
	Manufacturer   string `json:"manufacturer,omitempty" validate:"omitempty,min=2,max=100"`
	Description    string `json:"description,omitempty" validate:"omitempty,max=1000"`
	DosesAvailable *int   `json:"doses_available,omitempty" validate:"omitempty,min=0"`
}
