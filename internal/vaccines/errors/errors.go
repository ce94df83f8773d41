package errors

import "errors"

var (
	ErrNotFound = errors.New("vaccine not found")

	ErrInvalidID = errors.New("invalid vaccine ID format")

	ErrInsufficientDoses = errors.New("not enough doses available")
)
