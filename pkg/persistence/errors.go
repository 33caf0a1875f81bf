package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrNotFound indicates nothing is stored at the addressed key.
	ErrNotFound = errors.New("record not found")

	// ErrCorruptRecord indicates a stored document could not be parsed.
	ErrCorruptRecord = errors.New("corrupt record")

	// ErrStorageUnavailable indicates the backend could not be reached or refused the operation.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// RecordError wraps record-level errors with additional context.
type RecordError struct {
	Op         string // Operation being performed (e.g., "Get", "Put", "Delete")
	Collection string // Collection name
	ID         string // Record ID if applicable
	Err        error  // Underlying error
}

func (e *RecordError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s operation failed for %s: %v", e.Op, e.Collection, e.Err)
	}

	return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Collection, e.ID, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for record errors.
func (e *RecordError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewRecordError creates a new record error with context.
func NewRecordError(op string, c Collection, id string, err error) *RecordError {
	return &RecordError{
		Op:         op,
		Collection: c.Name,
		ID:         id,
		Err:        err,
	}
}

// Unavailable marks err as a backend connectivity failure while keeping it inspectable.
func Unavailable(err error) error {
	if err == nil || errors.Is(err, ErrStorageUnavailable) {
		return err
	}

	return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
}

// IsNotFound checks if an error indicates a record was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsStorageUnavailable checks if an error indicates a backend failure.
func IsStorageUnavailable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}
