package core

import (
	"errors"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"amberline/internal/types"
)

// Validator wraps go-playground/validator with the domain enum tags.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// FieldError names one failing field by its JSON name.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// NewValidator registers the case_status, lead_status and digest_frequency
// tags and reports fields by their json names.
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	mustRegister(v, "case_status", func(fl validator.FieldLevel) bool {
		return types.CaseStatus(fl.Field().String()).Valid()
	})
	mustRegister(v, "lead_status", func(fl validator.FieldLevel) bool {
		return types.LeadStatus(fl.Field().String()).Valid()
	})
	mustRegister(v, "digest_frequency", func(fl validator.FieldLevel) bool {
		return types.DigestFrequency(fl.Field().String()).Valid()
	})

	return &Validator{validate: v, logger: logger}
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic("core: register validation " + tag + ": " + err.Error())
	}
}

// ValidateStruct returns nil or a validation_* AppError listing every failing
// field. The code follows the first failure: a missing field, a bad email, a
// bad phone number, a bad enum value, or a generic invalid payload.
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		if v.logger != nil {
			v.logger.Error("validator misuse", "error", err)
		}
		return types.NewAppError(types.ErrCodeInternalUnexpected, "request validation failed", err)
	}

	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{Field: fe.Field(), Rule: fe.Tag()})
	}

	first := verrs[0]
	return types.NewAppErrorWithDetails(codeForTag(first.Tag()), messageFor(first), nil,
		map[string]any{"fields": fields})
}

func codeForTag(tag string) types.ErrorCode {
	switch tag {
	case "required", "required_without", "required_if":
		return types.ErrCodeValidationMissingField
	case "email":
		return types.ErrCodeValidationInvalidEmail
	case "e164":
		return types.ErrCodeValidationInvalidPhone
	case "case_status", "lead_status":
		return types.ErrCodeValidationInvalidStatus
	default:
		return types.ErrCodeValidationInvalidPayload
	}
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_without", "required_if":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email address"
	case "e164":
		return fe.Field() + " must be an E.164 phone number"
	case "case_status", "lead_status", "digest_frequency", "oneof":
		return fe.Field() + " has an unsupported value"
	default:
		return fe.Field() + " is invalid"
	}
}
