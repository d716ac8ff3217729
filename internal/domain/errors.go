package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors used across all layers.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrValidation    = errors.New("validation error")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrConflict      = errors.New("conflict")
	ErrTransition    = errors.New("transition not permitted")
	ErrDatabase      = errors.New("database error")
)

// FieldError describes a validation error for a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError contains a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation: %s: %s", e.Errors[0].Field, e.Errors[0].Message)
	}
	return fmt.Sprintf("validation: %d errors", len(e.Errors))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Fields groups messages by field name.
func (e *ValidationError) Fields() map[string][]string {
	out := make(map[string][]string, len(e.Errors))
	for _, fe := range e.Errors {
		out[fe.Field] = append(out[fe.Field], fe.Message)
	}
	return out
}

// NewValidationError creates a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Errors: []FieldError{{Field: field, Message: message}},
	}
}

// NewValidationErrors creates a ValidationError from multiple field errors.
func NewValidationErrors(errs []FieldError) *ValidationError {
	return &ValidationError{Errors: errs}
}

// PermissionError is returned when a user is not allowed to perform an action.
type PermissionError struct {
	Entity string
	Action string
	Role   Role
	Reason string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: %s %s as %s: %s", e.Action, e.Entity, e.Role, e.Reason)
}

func (e *PermissionError) Unwrap() error { return ErrForbidden }

// TransitionError is returned when a workflow edge is not permitted or one of
// its validators rejects the record.
type TransitionError struct {
	Entity string
	From   string
	To     string
	Reason string
	Failed []string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("transition %s %s -> %s: %s", e.Entity, e.From, e.To, e.Reason)
	if len(e.Failed) > 0 {
		failed := append([]string(nil), e.Failed...)
		sort.Strings(failed)
		msg += " (" + strings.Join(failed, ", ") + ")"
	}
	return msg
}

func (e *TransitionError) Unwrap() error { return ErrTransition }

// DatabaseError wraps an unexpected storage failure.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() []error { return []error{ErrDatabase, e.Err} }
