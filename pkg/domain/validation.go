package domain

import "fmt"

// ValidationResult aggregates the outcome of a cross-entity consistency
// check. Errors invalidate the result; warnings do not. Details carries raw
// counts for observability and never drives control flow.
type ValidationResult struct {
	Valid    bool           `json:"valid"`
	Errors   []string       `json:"errors,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
}

// NewValidationResult constructs an empty, valid result.
func NewValidationResult() ValidationResult {
	return ValidationResult{Valid: true, Details: map[string]any{}}
}

// AddError records an error and marks the result invalid.
func (r *ValidationResult) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Valid = false
}

// AddWarning records a warning without affecting validity.
func (r *ValidationResult) AddWarning(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Detail records an observability value under the given key.
func (r *ValidationResult) Detail(key string, value any) {
	if r.Details == nil {
		r.Details = map[string]any{}
	}
	r.Details[key] = value
}

// Merge folds another result into this one.
func (r *ValidationResult) Merge(other ValidationResult) {
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
	if !other.Valid {
		r.Valid = false
	}
	for k, v := range other.Details {
		r.Detail(k, v)
	}
}
