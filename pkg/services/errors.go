// Package services provides standardized error types for service layer operations.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/decision-editor/pkg/persistence"
)

// Validation Errors (400 Bad Request).
var (
	ErrValidation = errors.New("validation failed")

	ErrMultipleActiveFlows = fmt.Errorf("%w: a rule can have at most one active flow", ErrValidation)
	ErrNameRequired        = fmt.Errorf("%w: name is required", ErrValidation)
	ErrNameTooLong         = fmt.Errorf("%w: name must be at most %d characters", ErrValidation, MaxNameLength)
	ErrInvalidContent      = fmt.Errorf("%w: flow content must be valid JSON", ErrValidation)
	ErrInvalidID           = fmt.Errorf("%w: id must be a UUID", ErrValidation)
)

// Not Found Errors (404). All of them match persistence.ErrNotFound.
var (
	ErrFlowNotFound  error = &notFoundError{msg: "flow not found"}
	ErrRuleNotFound  error = &notFoundError{msg: "rule not found"}
	ErrFlowNotInRule error = &notFoundError{msg: "flow not found in rule"}
)

type notFoundError struct {
	msg string
}

func (e *notFoundError) Error() string {
	return e.msg
}

func (e *notFoundError) Is(target error) bool {
	return target == persistence.ErrNotFound
}

// MaxNameLength bounds flow and rule names.
const MaxNameLength = 100

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	if err == nil {
		err = ErrValidation
	}

	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewNotFoundError creates a not found error for the addressed entity.
func NewNotFoundError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound checks if an error should return HTTP 404.
func IsNotFound(err error) bool {
	return errors.Is(err, persistence.ErrNotFound)
}

// IsStorageUnavailable checks if the backend could not be reached.
func IsStorageUnavailable(err error) bool {
	return persistence.IsStorageUnavailable(err)
}
