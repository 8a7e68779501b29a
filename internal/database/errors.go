package database

import (
	"errors"
	"fmt"
)

// Domain errors are surfaced to callers unchanged and never retried:
// retrying a logically invalid request cannot succeed. Only pool timeouts
// are retried internally, and storage errors are left to the caller.

// ValidationError reports malformed input rejected before persistence.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

func newValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError reports a referenced entity, relation or category that does
// not exist.
type NotFoundError struct {
	Kind string
	ID   any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %v", e.Kind, e.ID)
}

func newNotFoundError(kind string, id any) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// ConflictError reports an invariant violation such as a duplicate open
// relation or a duplicate unique name.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return "conflict: " + e.Reason }

// InvalidStateError reports an operation applied to a row in the wrong
// lifecycle state, e.g. closing an already-closed relation.
type InvalidStateError struct {
	Reason string
}

func (e *InvalidStateError) Error() string { return "invalid state: " + e.Reason }

// PoolTimeoutError reports that no connection became available within the
// configured acquisition timeout. Transient under burst load; the store
// retries these internally with backoff before surfacing them.
type PoolTimeoutError struct {
	Waited string
}

func (e *PoolTimeoutError) Error() string {
	return "connection pool acquire timed out after " + e.Waited
}

// StorageError wraps an underlying engine failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure in %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func newStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

// BatchError identifies which operation in a batch failed and why. The whole
// batch was rolled back; nothing was applied.
type BatchError struct {
	BatchID string
	OpIndex int
	Err     error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %s failed at op %d: %v", e.BatchID, e.OpIndex, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// IsRetryable reports whether the error is a transient pool timeout rather
// than a domain or storage error.
func IsRetryable(err error) bool {
	var pt *PoolTimeoutError
	return errors.As(err, &pt)
}
