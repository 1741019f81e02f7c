// Package validation checks command and query payloads against their
// `validate` struct tags.
package validation

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var ErrValidation = errors.New("validation failed")

type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

// Error lists the offending fields; it matches ErrValidation with errors.Is.
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		if f.Param != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", f.Field, f.Rule, f.Param))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Rule))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func (e *Error) Unwrap() error { return ErrValidation }

// Invalid builds a validation error for a single field.
func Invalid(field, rule string) error {
	return &Error{Fields: []FieldError{{Field: field, Rule: rule}}}
}

type StructValidator struct {
	validate *validator.Validate
}

func New() *StructValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return &StructValidator{validate: v}
}

func (s *StructValidator) Validate(ctx context.Context, message any) error {
	if message == nil {
		return nil
	}
	rv := reflect.ValueOf(message)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}
	err := s.validate.StructCtx(ctx, rv.Interface())
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := &Error{Fields: make([]FieldError, 0, len(fieldErrs))}
	for _, fe := range fieldErrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Rule: fe.Tag(), Param: fe.Param()})
	}
	return out
}
