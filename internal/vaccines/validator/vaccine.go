package validator

import (
	"errors"
	"fmt"
	"reflect"
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
	return v.Field + ": " + v.Message
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	messages := make([]string, 0, len(v))
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

// VaccineValidator checks catalog entries. Fields are reported by their JSON
// names so admins see the same keys they sent.
type VaccineValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewVaccineValidator(log *logger.Logger) *VaccineValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonName)
	if err := v.RegisterValidation("not_blank", notBlank); err != nil {
		log.Fatal("Failed to register 'not_blank' validator", "error", err)
	}

	return &VaccineValidator{validate: v, logger: log}
}

func jsonName(field reflect.StructField) string {
	name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return field.Name
	}
	return name
}

func notBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

func (v *VaccineValidator) Validate(vaccine *model.Vaccine) error {
	err := v.validate.Struct(vaccine)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{Field: fe.Field(), Message: describe(fe)})
	}
	return out
}

func describe(fe validator.FieldError) string {
	unit := ""
	if fe.Kind() == reflect.String {
		unit = " characters"
	}

	switch fe.Tag() {
	case "required", "not_blank":
		return "is required"
	case "min":
		return "must be at least " + fe.Param() + unit
	case "max":
		return "must be at most " + fe.Param() + unit
	case "mongodb":
		return "must be a valid id"
	default:
		return "failed the " + fe.Tag() + " check"
	}
}
