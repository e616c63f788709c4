// Package errors provides structured error types for tpm.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
)

// Code represents a unique error code.
type Code string

// Error codes for tpm.
const (
	// Input errors
	CodeValidation Code = "VALIDATION"

	// Reference errors
	CodeNotFound  Code = "NOT_FOUND"
	CodeConflict  Code = "CONFLICT"
	CodeIntegrity Code = "INTEGRITY"

	// Config errors
	CodeConfigInvalid Code = "CONFIG_INVALID"
)

// Category groups error codes for exit status mapping.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryNotFound
	CategoryBadRequest
	CategoryConflict
	CategoryInternal
)

// codeCategories maps error codes to their categories.
var codeCategories = map[Code]Category{
	CodeValidation:    CategoryBadRequest,
	CodeNotFound:      CategoryNotFound,
	CodeConflict:      CategoryConflict,
	CodeIntegrity:     CategoryInternal,
	CodeConfigInvalid: CategoryBadRequest,
}

// ExitCode returns the process exit status for a category.
func (c Category) ExitCode() int {
	switch c {
	case CategoryBadRequest:
		return 2
	case CategoryNotFound:
		return 3
	case CategoryConflict:
		return 4
	default:
		return 1
	}
}

// Sentinels for errors.Is. A TrackerError matches a sentinel when the codes are equal.
var (
	ErrValidation = &TrackerError{Code: CodeValidation, What: "validation failed"}
	ErrNotFound   = &TrackerError{Code: CodeNotFound, What: "not found"}
	ErrConflict   = &TrackerError{Code: CodeConflict, What: "conflict"}
	ErrIntegrity  = &TrackerError{Code: CodeIntegrity, What: "integrity violation"}
)

// TrackerError is the structured error type for tpm.
// Kind, ID and Field locate the offending entity and attribute so callers
// can report or retry without parsing messages.
type TrackerError struct {
	Code    Code     `json:"code"`
	Kind    string   `json:"kind,omitempty"`
	ID      string   `json:"id,omitempty"`
	Field   string   `json:"field,omitempty"`
	Value   string   `json:"value,omitempty"`
	Allowed []string `json:"allowed,omitempty"`
	What    string   `json:"what"`
	Why     string   `json:"why,omitempty"`
	Fix     string   `json:"fix,omitempty"`
	Cause   error    `json:"-"`
}

// Error implements the error interface.
func (e *TrackerError) Error() string {
	var b strings.Builder
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString(": ")
		b.WriteString(e.Why)
	}
	if len(e.Allowed) > 0 {
		b.WriteString(" (allowed: ")
		b.WriteString(strings.Join(e.Allowed, ", "))
		b.WriteString(")")
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *TrackerError) Unwrap() error {
	return e.Cause
}

// UserMessage returns a user-friendly message for CLI output.
func (e *TrackerError) UserMessage() string {
	var b strings.Builder
	b.WriteString("Error: ")
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString("\n\nWhy: ")
		b.WriteString(e.Why)
	}
	if len(e.Allowed) > 0 {
		b.WriteString("\n\nAllowed: ")
		b.WriteString(strings.Join(e.Allowed, ", "))
	}
	if e.Fix != "" {
		b.WriteString("\n\nFix: ")
		b.WriteString(e.Fix)
	}
	return b.String()
}

// Category returns the error category.
func (e *TrackerError) Category() Category {
	if cat, ok := codeCategories[e.Code]; ok {
		return cat
	}
	return CategoryUnknown
}

// MarshalJSON implements json.Marshaler.
func (e *TrackerError) MarshalJSON() ([]byte, error) {
	type alias TrackerError
	aux := struct {
		*alias
		CauseMsg string `json:"cause,omitempty"`
	}{
		alias: (*alias)(e),
	}
	if e.Cause != nil {
		aux.CauseMsg = e.Cause.Error()
	}
	return json.Marshal(aux)
}

// Is reports whether target is a TrackerError with the same code.
func (e *TrackerError) Is(target error) bool {
	t, ok := target.(*TrackerError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of the error with the given cause.
func (e *TrackerError) WithCause(err error) *TrackerError {
	c := *e
	c.Cause = err
	return &c
}

// --- Error constructors ---

// Required returns a validation error for an empty required field.
func Required(kind, field string) *TrackerError {
	return &TrackerError{
		Code:  CodeValidation,
		Kind:  kind,
		Field: field,
		What:  fmt.Sprintf("%s %s is required", kind, field),
		Why:   "The value is empty",
	}
}

// InvalidEnum returns a validation error for a value outside its allowed set.
func InvalidEnum(kind, field, value string, allowed []string) *TrackerError {
	return &TrackerError{
		Code:    CodeValidation,
		Kind:    kind,
		Field:   field,
		Value:   value,
		Allowed: allowed,
		What:    fmt.Sprintf("invalid %s %s %q", kind, field, value),
	}
}

// Invalid returns a generic validation error.
func Invalid(kind, field, why string) *TrackerError {
	return &TrackerError{
		Code:  CodeValidation,
		Kind:  kind,
		Field: field,
		What:  fmt.Sprintf("invalid %s %s", kind, field),
		Why:   why,
	}
}

// NotFound returns an error when an entity doesn't exist.
func NotFound(kind, id string) *TrackerError {
	return &TrackerError{
		Code: CodeNotFound,
		Kind: kind,
		ID:   id,
		What: fmt.Sprintf("%s %s not found", kind, id),
		Fix:  fmt.Sprintf("List existing %ss to find a valid id", kind),
	}
}

// Conflict returns an error for a uniqueness violation.
func Conflict(kind, field, value, why string) *TrackerError {
	return &TrackerError{
		Code:  CodeConflict,
		Kind:  kind,
		Field: field,
		Value: value,
		What:  fmt.Sprintf("%s with %s %q already exists", kind, field, value),
		Why:   why,
	}
}

// Integrity returns an error for a referential invariant violation.
func Integrity(kind, id, why string) *TrackerError {
	return &TrackerError{
		Code: CodeIntegrity,
		Kind: kind,
		ID:   id,
		What: fmt.Sprintf("%s %s violates referential integrity", kind, id),
		Why:  why,
	}
}

// ConfigInvalid returns an error for invalid configuration.
func ConfigInvalid(field, reason string) *TrackerError {
	return &TrackerError{
		Code:  CodeConfigInvalid,
		Field: field,
		What:  fmt.Sprintf("invalid configuration: %s", field),
		Why:   reason,
		Fix:   "Check the config file or TPM_* environment variables",
	}
}

// AsTrackerError attempts to convert an error to a TrackerError.
// Returns nil if the error is not a TrackerError.
func AsTrackerError(err error) *TrackerError {
	var te *TrackerError
	if stderrors.As(err, &te) {
		return te
	}
	return nil
}

// CodeOf returns the code of the first TrackerError in err's chain, or "".
func CodeOf(err error) Code {
	if te := AsTrackerError(err); te != nil {
		return te.Code
	}
	return ""
}

// ItemError records the failure of a single record in a batch operation.
type ItemError struct {
	Kind   string `json:"kind"`
	ID     string `json:"id,omitempty"`
	Code   Code   `json:"code,omitempty"`
	Reason string `json:"reason"`
}

// NewItemError builds an ItemError from err, carrying its code when known.
func NewItemError(kind, id string, err error) ItemError {
	return ItemError{Kind: kind, ID: id, Code: CodeOf(err), Reason: err.Error()}
}

func (e ItemError) String() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s %s: %s", e.Kind, e.ID, e.Reason)
}

// PartialFailure is an aggregate result of a batch that tolerated per-item
// failures. It is not a failure of the whole call.
type PartialFailure struct {
	Succeeded int         `json:"succeeded"`
	Failures  []ItemError `json:"failures"`
}

// Error implements the error interface.
func (p *PartialFailure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d succeeded, %d failed", p.Succeeded, len(p.Failures))
	for i, f := range p.Failures {
		if i == 3 {
			fmt.Fprintf(&b, "; ... and %d more", len(p.Failures)-3)
			break
		}
		b.WriteString("; ")
		b.WriteString(f.String())
	}
	return b.String()
}
