// Package hcmerrors provides sentinel and custom error types for the application.
package hcmerrors

// ErrNotFound represents a "not found" error.
// Use when a requested resource doesn't exist.
var ErrNotFound = &NotFoundError{}

// NotFoundError is a sentinel error for resources that are not found.
type NotFoundError struct {
	Resource string
	Message  string
}

// NewNotFoundError creates a new NotFoundError with a custom message.
func NewNotFoundError(resource, message string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		Message:  message,
	}
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Resource != "" {
		return e.Resource + " not found"
	}

	return "resource not found"
}

// Is implements the error interface for error comparison.
func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)

	return ok
}

// ErrValidation represents a validation error.
// Use when client input fails validation.
var ErrValidation = &ValidationError{}

// ValidationError is a sentinel error for validation failures.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a new ValidationError with a custom message.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Field != "" {
		return "validation failed for field: " + e.Field
	}

	return "validation error"
}

// Is implements the error interface for error comparison.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)

	return ok
}

// ErrIllegalTransition is the sentinel for delivery state-machine violations
// (e.g. retrying a delivery that already succeeded). These are caller errors,
// not system faults, and map to 409 at the API boundary.
var ErrIllegalTransition = &IllegalTransitionError{}

// IllegalTransitionError is a sentinel error for forbidden delivery status transitions.
type IllegalTransitionError struct {
	Message string
}

// NewIllegalTransitionError creates an IllegalTransitionError with a custom message.
func NewIllegalTransitionError(message string) *IllegalTransitionError {
	return &IllegalTransitionError{Message: message}
}

// Error implements the error interface.
func (e *IllegalTransitionError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	return "illegal status transition"
}

// Is implements the error interface for error comparison.
func (e *IllegalTransitionError) Is(target error) bool {
	_, ok := target.(*IllegalTransitionError)

	return ok
}
