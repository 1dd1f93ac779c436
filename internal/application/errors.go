package application

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrPermissionDenied is returned when the acting principal lacks the role or relationship an operation requires.
	ErrPermissionDenied = errors.New("application: permission denied")
	// ErrInvalidState is returned when a transition is not permitted from the entity's current state.
	ErrInvalidState = errors.New("application: invalid state")
	// ErrAlreadyExists is returned when creating something that must be unique.
	ErrAlreadyExists = errors.New("application: already exists")
	// ErrCapacityExceeded is returned when a hard capacity would be exceeded.
	ErrCapacityExceeded = errors.New("application: capacity exceeded")
	// ErrInvalidCredentials is returned when sign-in data does not match an account.
	ErrInvalidCredentials = errors.New("application: invalid credentials")
	// ErrAccountDisabled is returned when a banned account tries to act.
	ErrAccountDisabled = errors.New("application: account disabled")
	// ErrUnauthenticated is returned when no valid session backs the call.
	ErrUnauthenticated = errors.New("application: unauthenticated")
	// ErrNotEligible is returned when a band has not reached its rehearsal goal.
	ErrNotEligible = errors.New("application: not eligible")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	if len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+v.FieldErrors[field])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

// errOrNil returns v as an error only when it holds issues, avoiding typed-nil errors.
func (v *ValidationError) errOrNil() error {
	if v.HasErrors() {
		return v
	}
	return nil
}

func invalidField(field, message string) *ValidationError {
	v := &ValidationError{}
	v.add(field, message)
	return v
}

// StateError reports a transition attempted from a state that does not permit it.
type StateError struct {
	Entity    string
	ID        string
	Current   string
	Attempted string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s %s: cannot move from %q to %q", e.Entity, e.ID, e.Current, e.Attempted)
}

// Unwrap lets errors.Is match ErrInvalidState.
func (e *StateError) Unwrap() error {
	return ErrInvalidState
}

func invalidState[S ~string](entity, id string, current S, attempted S) error {
	return &StateError{Entity: entity, ID: id, Current: string(current), Attempted: string(attempted)}
}

func notFound(entity, id string) error {
	return fmt.Errorf("%s %q: %w", entity, id, ErrNotFound)
}

func denied(reason string) error {
	return fmt.Errorf("%s: %w", reason, ErrPermissionDenied)
}
