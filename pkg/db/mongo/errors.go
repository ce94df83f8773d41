package mongo

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	// ErrWriteConflict marks errors that are safe to retry from scratch.
	ErrWriteConflict = errors.New("write conflict")

	// ErrUnavailable marks errors where the store could not be reached.
	ErrUnavailable = errors.New("document store unavailable")
)

const writeConflictCode = 112

// Classify marks driver errors with ErrWriteConflict or ErrUnavailable so
// callers can branch with errors.Is after any amount of wrapping.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrWriteConflict) || errors.Is(err, ErrUnavailable) {
		return err
	}
	if IsWriteConflict(err) {
		return errors.Mark(err, ErrWriteConflict)
	}
	if IsUnavailable(err) {
		return errors.Mark(err, ErrUnavailable)
	}
	return err
}

func IsWriteConflict(err error) bool {
	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) {
		if serverErr.HasErrorCode(writeConflictCode) || serverErr.HasErrorLabel("TransientTransactionError") {
			return true
		}
	}
	return false
}

func IsUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return mongo.IsNetworkError(err) || mongo.IsTimeout(err) || errors.Is(err, mongo.ErrClientDisconnected)
}
