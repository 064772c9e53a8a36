package filekeep

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a record or blob does not exist
	ErrNotFound = errors.New("not found")
	// ErrInternal is returned when an internal error occurs
	ErrInternal = errors.New("internal error")
	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnauthenticated is returned when no valid identity is present
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrUnauthorized is returned when the identity lacks a required scope
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned when the identity may not access a specific record
	ErrForbidden = errors.New("forbidden")
	// ErrConflict is returned when a versioned update loses a race or the state does not allow it
	ErrConflict = errors.New("conflict")
	// ErrBlobWrite is returned when the blob store fails to persist an object
	ErrBlobWrite = errors.New("blob write failed")
	// ErrBlobRead is returned when the blob store fails to serve an object
	ErrBlobRead = errors.New("blob read failed")
	// ErrUploadFailed is matched by every *UploadFailedError
	ErrUploadFailed = errors.New("upload failed")
	// ErrNotReady is returned when a record exists but is not FINALIZED
	ErrNotReady = errors.New("not ready")
	// ErrInconsistent is returned when a FINALIZED record has no blob
	ErrInconsistent = errors.New("inconsistent")
	// ErrTooLarge is returned when a stream exceeds the acceptable size
	ErrTooLarge = errors.New("too large")
	// ErrSizeMismatch is returned when the streamed size differs from the declared size
	ErrSizeMismatch = errors.New("size mismatch")
	// ErrNotSupported is returned when a backend lacks an optional capability
	ErrNotSupported = errors.New("not supported")
	// ErrReconcileInProgress is returned when a reconcile run is already active
	ErrReconcileInProgress = errors.New("reconcile in progress")
)

// UploadFailedError reports a failed upload together with the record it
// allocated. Cause is one of ErrBlobWrite, ErrSizeMismatch, ErrTooLarge or
// ErrConflict, possibly wrapped.
type UploadFailedError struct {
	RecordID uuid.UUID
	Cause    error
}

func (e *UploadFailedError) Error() string {
	return fmt.Sprintf("upload %s failed: %v", e.RecordID, e.Cause)
}

func (e *UploadFailedError) Unwrap() error {
	return e.Cause
}

func (e *UploadFailedError) Is(target error) bool {
	return target == ErrUploadFailed
}
