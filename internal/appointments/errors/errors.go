package errors

import "errors"

var (
	ErrNotFound = errors.New("appointment not found")

	ErrInvalidID = errors.New("invalid appointment ID format")

	ErrAlreadyBooked = errors.New("user already holds an appointment for this slot")
)
