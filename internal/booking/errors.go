package booking

import (
	"errors"
	"fmt"
)

var (
	// ErrClientBlocked means the client is on the business's blocklist. The
	// public surface must not reveal this; it maps to the same generic
	// message as ErrCapacityExceeded.
	ErrClientBlocked = errors.New("client is blocked for this business")

	// ErrCapacityExceeded means the slot filled up between the availability
	// read and the booking write, or was full all along.
	ErrCapacityExceeded = errors.New("slot capacity exceeded")

	// ErrMonthlyLimitReached means the business hit its tier's monthly
	// appointment cap.
	ErrMonthlyLimitReached = errors.New("monthly appointment limit reached")

	ErrAppointmentNotFound = errors.New("appointment not found")
)

// ValidationError rejects malformed input before any storage work happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// StorageError wraps any persistence failure not classified as a domain
// error. Callers map it to a retry-later response.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}
