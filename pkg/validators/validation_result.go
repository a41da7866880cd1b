package validators

import "strings"

// ValidationCode represents the type of validation result
type ValidationCode string

const (
	ValidationCodeUnspecified ValidationCode = "unspecified"
	ValidationCodeSuccess     ValidationCode = "success"
	ValidationCodeRequired    ValidationCode = "required"
	ValidationCodeInvalid     ValidationCode = "invalid"
)

// ValidationOption defines a function that can customize a ValidationResult
type ValidationOption func(*ValidationResult)

// ValidationResult represents the result of a validation operation
type ValidationResult struct {
	IsValid         bool           `json:"is_valid"`
	FieldName       string         `json:"field_name"`
	Value           string         `json:"value"`
	Message         string         `json:"message"`
	SuggestedAction string         `json:"suggested_action"`
	ValidationCode  ValidationCode `json:"validation_code"`
}

// WithValue sets a custom value for display
func WithValue(value string) ValidationOption {
	return func(vr *ValidationResult) {
		vr.Value = value
	}
}

// WithMessage sets a custom validation message
func WithMessage(message string) ValidationOption {
	return func(vr *ValidationResult) {
		vr.Message = message
	}
}

// WithSuggestedAction sets a custom suggested action
func WithSuggestedAction(action string) ValidationOption {
	return func(vr *ValidationResult) {
		vr.SuggestedAction = action
	}
}

// WithValidationCode sets the validation code
func WithValidationCode(code ValidationCode) ValidationOption {
	return func(vr *ValidationResult) {
		vr.ValidationCode = code
	}
}

// NewValidationResult creates a new ValidationResult
func NewValidationResult(isValid bool, fieldName string, options ...ValidationOption) *ValidationResult {
	vr := &ValidationResult{
		IsValid:        isValid,
		FieldName:      fieldName,
		ValidationCode: ValidationCodeUnspecified,
	}
	for _, option := range options {
		option(vr)
	}
	return vr
}

// Results is an ordered collection of validation results.
type Results []*ValidationResult

// Collect builds Results from individual validations, preserving their order.
func Collect(results ...*ValidationResult) Results {
	return Results(results)
}

// HasErrors returns true if any result is invalid
func (r Results) HasErrors() bool {
	return r.FirstError() != nil
}

// FirstError returns the first invalid result, or nil when everything passed.
func (r Results) FirstError() *ValidationResult {
	for _, result := range r {
		if result != nil && !result.IsValid {
			return result
		}
	}
	return nil
}

// Errors returns only the invalid results.
func (r Results) Errors() Results {
	var out Results
	for _, result := range r {
		if result != nil && !result.IsValid {
			out = append(out, result)
		}
	}
	return out
}

// Messages joins the messages of all invalid results.
func (r Results) Messages() string {
	var msgs []string
	for _, result := range r.Errors() {
		msgs = append(msgs, result.Message)
	}
	return strings.Join(msgs, " ")
}
