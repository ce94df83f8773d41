package validator

import (
	"errors"
	"strings"
	"testing"
	"vaxslot/pkg/logger"
	"vaxslot/pkg/model"
)

func TestVerificationValidator_ValidateScan(t *testing.T) {
	v := NewVerificationValidator(logger.Discard())

	tests := []struct {
		name        string
		req         *model.VerifyRequest
		wantMessage string
	}{
		{"valid", &model.VerifyRequest{Token: `{"appointmentId":"a1"}`}, ""},
		{"nil request", nil, "Token is required"},
		{"empty token", &model.VerifyRequest{}, "Token is required"},
		{"oversized token", &model.VerifyRequest{Token: strings.Repeat("x", 4097)}, "Token must be at most 4096 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateScan(tt.req)
			if tt.wantMessage == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}

			var errs ValidationErrors
			if !errors.As(err, &errs) {
				t.Fatalf("expected ValidationErrors, got %v", err)
			}
			if errs[0].Message != tt.wantMessage {
				t.Errorf("got %q, want %q", errs[0].Message, tt.wantMessage)
			}
		})
	}
}
