// Package validation checks request payloads against their struct tags and
// reports problems as field-level issues keyed by JSON path.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/printstore/internal/apperr"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		switch name {
		case "-":
			return ""
		case "":
			return f.Name
		default:
			return name
		}
	})

	// Money fields are validated by their numeric value.
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		d, ok := field.Interface().(decimal.Decimal)
		if !ok {
			return nil
		}
		f, _ := d.Float64()
		return f
	}, decimal.Decimal{})

	return v
}

// Check returns one issue per failed rule in s.
func Check(s any) []apperr.Issue {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []apperr.Issue{{Field: "", Message: err.Error()}}
	}

	issues := make([]apperr.Issue, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		issues = append(issues, apperr.Issue{
			Field:   fieldPath(fe),
			Message: message(fe),
		})
	}
	return issues
}

// Struct is Check wrapped as an error; it returns nil for a valid payload.
func Struct(s any) error {
	if issues := Check(s); len(issues) > 0 {
		return &apperr.ValidationError{Issues: issues}
	}
	return nil
}

func fieldPath(fe validator.FieldError) string {
	// Namespace starts with the Go type name of the root struct.
	_, path, ok := strings.Cut(fe.Namespace(), ".")
	if !ok {
		return fe.Field()
	}
	return path
}

func message(fe validator.FieldError) string {
	param := fe.Param()
	lengthy := fe.Kind() == reflect.String || fe.Kind() == reflect.Slice || fe.Kind() == reflect.Map

	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(param, " ", ", ")
	case "alpha":
		return "must contain only letters"
	case "gt":
		return "must be greater than " + param
	case "gte":
		return "must be at least " + param
	case "lt":
		return "must be less than " + param
	case "lte":
		return "must be at most " + param
	case "min":
		if lengthy {
			return fmt.Sprintf("must contain at least %s %s", param, unit(fe.Kind()))
		}
		return "must be at least " + param
	case "max":
		if lengthy {
			return fmt.Sprintf("must contain at most %s %s", param, unit(fe.Kind()))
		}
		return "must be at most " + param
	case "len":
		return fmt.Sprintf("must be exactly %s %s", param, unit(fe.Kind()))
	default:
		return "is invalid"
	}
}

func unit(kind reflect.Kind) string {
	if kind == reflect.String {
		return "characters"
	}
	return "items"
}
