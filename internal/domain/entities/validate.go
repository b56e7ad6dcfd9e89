package entities

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	domainErr "github.com/ersonp/chronicle/internal/domain/errors"
)

// validate is shared by every struct-tagged type in this package.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their payload key rather than the Go field name.
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return strings.ToLower(f.Name)
		}
		return name
	})

	_ = validate.RegisterValidation("histdate", validateHistDate)
}

// validateHistDate accepts the canonical stored date forms: YYYY-MM-DD or YYYY.
func validateHistDate(fl validator.FieldLevel) bool {
	return IsCanonicalDate(fl.Field().String())
}

// validateStruct runs tag validation and converts the first failure into a
// ValidationError naming the offending field.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return domainErr.NewValidationError(fe.Field(), "%s", describeFieldError(fe))
	}
	return domainErr.NewValidationError("", "%v", err)
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	case "uuid":
		return "must be a valid UUID"
	case "histdate":
		return "must be a date (YYYY-MM-DD, DD.MM.YYYY or YYYY)"
	case "alphanumunicode":
		return "must contain only letters and digits"
	default:
		return "failed " + fe.Tag() + " check"
	}
}
