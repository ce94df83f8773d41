package mongo

import (
	"context"
	"fmt"
	"testing"

	"github.com/cockroachdb/errors"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestClassify(t *testing.T) {
	writeConflict := mongo.CommandError{Code: writeConflictCode, Message: "WriteConflict"}
	transient := mongo.CommandError{Code: 251, Labels: []string{"TransientTransactionError"}}

	tests := []struct {
		name         string
		err          error
		wantConflict bool
		wantDown     bool
	}{
		{"nil", nil, false, false},
		{"write conflict", writeConflict, true, false},
		{"transient label", transient, true, false},
		{"deadline", context.DeadlineExceeded, false, true},
		{"disconnected", mongo.ErrClientDisconnected, false, true},
		{"plain", errors.New("boom"), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := Classify(tt.err)
			wrapped := fmt.Errorf("repository: %w", classified)

			if got := errors.Is(wrapped, ErrWriteConflict); got != tt.wantConflict {
				t.Errorf("ErrWriteConflict = %v, want %v", got, tt.wantConflict)
			}
			if got := errors.Is(wrapped, ErrUnavailable); got != tt.wantDown {
				t.Errorf("ErrUnavailable = %v, want %v", got, tt.wantDown)
			}
		})
	}
}
