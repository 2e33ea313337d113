// SoundLedger - Listening History Sync and Statistics for Music Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/soundledger

// Package validation provides request struct validation using
// go-playground/validator v10. A thread-safe singleton carries one custom
// rule, "itemtype", for the rankable dimensions (artist, track, album).
package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/soundledger/internal/models"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError is one field that failed validation.
type FieldError struct {
	Field   string
	Tag     string
	Param   string
	Message string
}

// RequestError collects every failed field of one request.
type RequestError struct {
	fields []FieldError
}

func (e *RequestError) Error() string {
	if len(e.fields) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(e.fields))
	for i, f := range e.fields {
		msgs[i] = f.Message
	}
	return strings.Join(msgs, "; ")
}

// Fields returns the individual field failures.
func (e *RequestError) Fields() []FieldError {
	return e.fields
}

// ToAPIError converts the failure to the stable VALIDATION_ERROR shape.
func (e *RequestError) ToAPIError() *models.APIError {
	apiErr := &models.APIError{
		Code:    "VALIDATION_ERROR",
		Message: e.Error(),
	}
	if len(e.fields) == 1 {
		apiErr.Details = map[string]interface{}{
			"field": e.fields[0].Field,
			"tag":   e.fields[0].Tag,
		}
		return apiErr
	}
	fields := make([]map[string]interface{}, len(e.fields))
	for i, f := range e.fields {
		fields[i] = map[string]interface{}{
			"field":   f.Field,
			"tag":     f.Tag,
			"message": f.Message,
		}
	}
	apiErr.Details = map[string]interface{}{"fields": fields}
	return apiErr
}

// Validator returns the singleton instance.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// itemtype restricts a field to the rankable dimensions.
		_ = validate.RegisterValidation("itemtype", func(fl validator.FieldLevel) bool {
			return models.ItemType(fl.Field().String()).Valid()
		})
	})
	return validate
}

// ValidateStruct validates s, returning nil on success.
func ValidateStruct(s interface{}) *RequestError {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &RequestError{fields: []FieldError{{
			Field:   "unknown",
			Tag:     "unknown",
			Message: err.Error(),
		}}}
	}

	fields := make([]FieldError, len(verrs))
	for i, fe := range verrs {
		fields[i] = FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Message: translate(fe),
		}
	}
	return &RequestError{fields: fields}
}

func translate(fe validator.FieldError) string {
	field, param := fe.Field(), fe.Param()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "itemtype":
		return fmt.Sprintf("%s must be one of: artist, track, album", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, param)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, param)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
