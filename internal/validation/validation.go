// Package validation collects field-level input checks used by the
// backtest and rule management surfaces.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ValidationError is one failed field check
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors aggregates failed checks for one input
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return "validation errors: " + strings.Join(msgs, "; ")
}

// HasErrors returns true if there are validation errors
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator accumulates field checks
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates an empty validator
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// AddError adds a validation error
func (v *Validator) AddError(field, message string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Message: message,
	})
}

// Errors returns all validation errors
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

// HasErrors returns true if there are validation errors
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Err returns the accumulated errors as an error, nil when clean
func (v *Validator) Err() error {
	if v.HasErrors() {
		return v.errors
	}
	return nil
}

// Required validates that a string is not empty
func (v *Validator) Required(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "is required")
	}
}

// MinValue validates minimum numeric value
func (v *Validator) MinValue(field string, value, min float64) {
	if value < min {
		v.AddError(field, fmt.Sprintf("must be at least %v", min))
	}
}

// MaxValue validates maximum numeric value
func (v *Validator) MaxValue(field string, value, max float64) {
	if value > max {
		v.AddError(field, fmt.Sprintf("must be at most %v", max))
	}
}

// Positive validates that a number is positive
func (v *Validator) Positive(field string, value float64) {
	if value <= 0 {
		v.AddError(field, "must be positive")
	}
}

// PositiveInt validates that an integer is positive
func (v *Validator) PositiveInt(field string, value int) {
	if value <= 0 {
		v.AddError(field, "must be positive")
	}
}

// OneOf validates that a value is one of the allowed values
func (v *Validator) OneOf(field, value string, allowed []string) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	v.AddError(field, fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")))
}

// UUID validates UUID format
func (v *Validator) UUID(field, value string) {
	if _, err := uuid.Parse(value); err != nil {
		v.AddError(field, "must be a valid UUID")
	}
}

var tickerRegex = regexp.MustCompile(`^[A-Z]{3,6}$`)

// Ticker validates exchange ticker format
func (v *Validator) Ticker(field, value string) {
	if !tickerRegex.MatchString(value) {
		v.AddError(field, "must be 3-6 uppercase letters")
	}
}

// TimeRange validates that from strictly precedes to
func (v *Validator) TimeRange(field string, from, to time.Time) {
	if from.IsZero() || to.IsZero() {
		v.AddError(field, "both bounds are required")
		return
	}
	if !from.Before(to) {
		v.AddError(field, "start must be before end")
	}
}

// Percent validates a percentage in (0, max]
func (v *Validator) Percent(field string, value, max float64) {
	if value <= 0 || value > max {
		v.AddError(field, fmt.Sprintf("must be in (0, %v]", max))
	}
}
