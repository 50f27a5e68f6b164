package httputil

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/medflow/medflow-clinic/pkg/errors"
)

var validate = newValidator()

// national ID digit bounds, adjustable from config at startup
var (
	nationalIDMin = 8
	nationalIDMax = 20
)

func newValidator() *validator.Validate {
	v := validator.New()

	// Report JSON field names in validation details.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})

	v.RegisterValidation("national_id", func(fl validator.FieldLevel) bool {
		return IsNationalID(fl.Field().String())
	})

	return v
}

// SetNationalIDLength changes the accepted national ID digit count
func SetNationalIDLength(min, max int) {
	if min > 0 && max >= min {
		nationalIDMin, nationalIDMax = min, max
	}
}

// IsNationalID reports whether s is all digits and within the configured length.
func IsNationalID(s string) bool {
	if len(s) < nationalIDMin || len(s) > nationalIDMax {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Validate validates a struct using go-playground/validator
func Validate(v interface{}) error {
	if err := validate.Struct(v); err != nil {
		validationErrors, ok := err.(validator.ValidationErrors)
		if !ok {
			return errors.BadRequest("invalid request")
		}
		details := make(map[string]string)

		for _, e := range validationErrors {
			details[e.Field()] = formatValidationError(e)
		}

		return errors.Validation(details)
	}
	return nil
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + e.Param()
	case "max":
		return "must be at most " + e.Param()
	case "gt":
		return "must be greater than " + e.Param()
	case "uuid":
		return "must be a valid UUID"
	case "oneof":
		return "must be one of: " + e.Param()
	case "national_id":
		return "malformed national ID"
	case "datetime":
		return "must be a date in " + e.Param() + " format"
	default:
		return "invalid value"
	}
}

// RegisterCustomValidation registers a custom validation function
func RegisterCustomValidation(tag string, fn validator.Func) error {
	return validate.RegisterValidation(tag, fn)
}
