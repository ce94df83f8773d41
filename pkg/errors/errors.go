package errors

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeNotFound     = "NOT_FOUND"
	CodeValidation   = "VALIDATION_ERROR"
	CodeForbidden    = "FORBIDDEN"
	CodeConflict     = "CONFLICT"
	CodeInternal     = "INTERNAL_ERROR"
	CodeBadRequest   = "BAD_REQUEST"
	CodeTimeout      = "TIMEOUT"
	CodeInvalidInput = "INVALID_INPUT"

	CodeUnauthenticated     = "UNAUTHENTICATED"
	CodeAlreadyBooked       = "ALREADY_BOOKED"
	CodeSlotFull            = "SLOT_FULL"
	CodeSlotNotFound        = "SLOT_NOT_FOUND"
	CodeAppointmentNotFound = "APPOINTMENT_NOT_FOUND"
	CodeMalformedToken      = "MALFORMED_TOKEN"
	CodeContention          = "CONTENTION"
	CodeInvalidTransition   = "INVALID_TRANSITION"
	CodeStoreUnavailable    = "STORE_UNAVAILABLE"
	CodeCredentialMismatch  = "CREDENTIAL_MISMATCH"
)

var statusByCode = map[string]int{
	CodeInvalidInput:        http.StatusBadRequest,
	CodeBadRequest:          http.StatusBadRequest,
	CodeMalformedToken:      http.StatusBadRequest,
	CodeUnauthenticated:     http.StatusUnauthorized,
	CodeForbidden:           http.StatusForbidden,
	CodeNotFound:            http.StatusNotFound,
	CodeSlotNotFound:        http.StatusNotFound,
	CodeAppointmentNotFound: http.StatusNotFound,
	CodeConflict:            http.StatusConflict,
	CodeAlreadyBooked:       http.StatusConflict,
	CodeSlotFull:            http.StatusConflict,
	CodeInvalidTransition:   http.StatusConflict,
	CodeCredentialMismatch:  http.StatusConflict,
	CodeValidation:          http.StatusUnprocessableEntity,
	CodeContention:          http.StatusServiceUnavailable,
	CodeStoreUnavailable:    http.StatusServiceUnavailable,
	CodeTimeout:             http.StatusGatewayTimeout,
	CodeInternal:            http.StatusInternalServerError,
}

// StatusFor returns the HTTP status conventionally paired with code.
func StatusFor(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// AppError is the error shape every service returns to the HTTP layer. Code is
// stable and machine-readable; Message is safe to show to the caller.
type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Err        error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) StatusCode() int {
	if e.HTTPStatus == 0 {
		return StatusFor(e.Code)
	}
	return e.HTTPStatus
}

func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

func New(code, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus}
}

func Wrap(err error, code, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus, Err: err}
}

func coded(code, message string) *AppError {
	return New(code, message, StatusFor(code))
}

func NotFound(resource string) *AppError {
	return coded(CodeNotFound, resource+" not found")
}

func NotFoundWithID(resource, id string) *AppError {
	return NotFound(resource).WithDetails(map[string]any{"resource": resource, "id": id})
}

func Validation(message string, details map[string]any) *AppError {
	return coded(CodeValidation, message).WithDetails(details)
}

func InvalidInput(message string) *AppError {
	return coded(CodeInvalidInput, message)
}

func Unauthenticated(message string) *AppError {
	return coded(CodeUnauthenticated, message)
}

func Forbidden(message string) *AppError {
	return coded(CodeForbidden, message)
}

func Conflict(message string) *AppError {
	return coded(CodeConflict, message)
}

func Internal(message string, err error) *AppError {
	e := coded(CodeInternal, message)
	e.Err = err
	return e
}

func Timeout(message string) *AppError {
	return coded(CodeTimeout, message)
}

func AlreadyBooked(slotID string) *AppError {
	return coded(CodeAlreadyBooked, "You already have an appointment in this slot").
		WithDetails(map[string]any{"slot_id": slotID})
}

func SlotFull(slotID string) *AppError {
	return coded(CodeSlotFull, "This slot is fully booked").
		WithDetails(map[string]any{"slot_id": slotID})
}

func SlotNotFound(slotID string) *AppError {
	return coded(CodeSlotNotFound, "Slot does not exist").
		WithDetails(map[string]any{"slot_id": slotID})
}

func AppointmentNotFound(id string) *AppError {
	return coded(CodeAppointmentNotFound, "Appointment does not exist").
		WithDetails(map[string]any{"appointment_id": id})
}

func MalformedToken(err error) *AppError {
	e := coded(CodeMalformedToken, "Credential could not be read")
	e.Err = err
	return e
}

func Contention(err error) *AppError {
	e := coded(CodeContention, "The slot is busy right now, please try again")
	e.Err = err
	return e
}

func InvalidTransition(from, to string) *AppError {
	return coded(CodeInvalidTransition, fmt.Sprintf("Appointment cannot move from %q to %q", from, to)).
		WithDetails(map[string]any{"from": from, "to": to})
}

func StoreUnavailable(err error) *AppError {
	e := coded(CodeStoreUnavailable, "Appointment storage is unavailable")
	e.Err = err
	return e
}

func CredentialMismatch(appointmentID string) *AppError {
	return coded(CodeCredentialMismatch, "Credential does not match the appointment on record").
		WithDetails(map[string]any{"appointment_id": appointmentID})
}

func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError unwraps err to its AppError, or wraps it as an internal error.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal("An unexpected error occurred", err)
}

// HasCode reports whether err carries an AppError with the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}
