package utils

import (
	stderrors "errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"

	"schadenschat/pkg/errors"
)

// NewValidator returns a validator with the non-standard "notblank" tag registered.
func NewValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}
	return v
}

// ValidationError turns a validator failure into a VALIDATION_ERROR.
func ValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if stderrors.As(err, &validationErrs) {
		return errors.Validation(ValidationMessage(validationErrs))
	}
	return errors.Validation(err.Error())
}

// ValidationMessage renders the first failing field of a validator error.
func ValidationMessage(validationErr validator.ValidationErrors) string {
	for _, err := range validationErr {
		field := strings.ToLower(err.Field())
		param := err.Param()

		switch err.Tag() {
		case "required":
			return field + " is required"
		case "min", "gte":
			return field + " must be at least " + param
		case "gt":
			return field + " must be greater than " + param
		case "max", "lte":
			return field + " must be at most " + param
		case "oneof":
			return field + " must be one of: " + param
		case "email":
			return field + " must be a valid email address"
		case "e164":
			return field + " must be a phone number in international format"
		case "notblank":
			return field + " must not be blank"
		default:
			return field + " is invalid"
		}
	}
	return "Invalid input data"
}
