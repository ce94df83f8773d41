package errors

import "errors"

var (
	ErrNotFound = errors.New("slot not found")

	ErrInvalidID = errors.New("invalid slot ID format")

	ErrSlotFull = errors.New("slot is fully booked")

	ErrCapacityBelowBooked = errors.New("max appointments cannot drop below booked count")

	ErrSlotInUse = errors.New("slot has booked appointments")
)
