package validator

import (
	"errors"
	"fmt"
	"strings"
	"vaxslot/pkg/logger"
	"vaxslot/pkg/model"

	"github.com/go-playground/validator/v10"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	messages := make([]string, 0, len(v))
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

// VerificationValidator checks scanned payloads before they are decoded.
type VerificationValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewVerificationValidator(log *logger.Logger) *VerificationValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	log.Debug("Verification validator initialized successfully")

	return &VerificationValidator{validate: v, logger: log}
}

func (v *VerificationValidator) ValidateScan(req *model.VerifyRequest) error {
	if req == nil {
		return ValidationErrors{{Field: "Token", Message: "Token is required"}}
	}
	err := v.validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		message := fe.Error()
		switch fe.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", fe.Field())
		case "max":
			message = fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
		}
		out = append(out, ValidationError{Field: fe.Field(), Message: message})
	}
	return out
}
