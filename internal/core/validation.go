package core

// validation.go checks the batch envelope before any record is processed.
//
// Envelope problems reject the whole batch with an EnvelopeError whose Fields
// map the JSON field name to the failed rule. Record-level rules (identifiers,
// quantities) are checked later by the resolver and only skip the record.

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// envelopeValidator returns the shared validator. Field names in errors are
// taken from json tags so they match what the client sent.
func envelopeValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// ValidateBatch checks the envelope fields of b.
func ValidateBatch(b Batch) error {
	err := envelopeValidator().Struct(b)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &EnvelopeError{Fields: map[string]string{"body": err.Error()}}
	}
	return &EnvelopeError{Fields: processValidationErrors(verrs)}
}

// processValidationErrors maps each failed field to its rule.
func processValidationErrors(verrs validator.ValidationErrors) map[string]string {
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		fields[fe.Field()] = rule
	}
	return fields
}
