package lifecycle

import (
	"errors"
	"fmt"
)

// ErrObjectNotFound indicates an object read found nothing at the key.
var ErrObjectNotFound = errors.New("object not found")

// ErrStalledListing reports a truncated version listing that gives no way to
// advance. The bucket's emptiness is unknown, so it is never treated as empty.
var ErrStalledListing = errors.New("truncated version listing without new markers")

// BackendError wraps a backend failure the manager could not interpret.
//
// The provider error is kept in the chain, so provider.IsThrottled and
// friends still work on a *BackendError.
type BackendError struct {
	// Op is the manager operation that failed (e.g., "BucketExists").
	Op string

	// Bucket is the bucket name.
	Bucket string

	// Key is the object key, if applicable.
	Key string

	// Err is the underlying backend error.
	Err error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("lifecycle %s %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
	}
	return fmt.Sprintf("lifecycle %s %s: %v", e.Op, e.Bucket, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *BackendError) Unwrap() error {
	return e.Err
}

// ObjectNotFoundError reports a read of a missing object.
// It matches ErrObjectNotFound under errors.Is.
type ObjectNotFoundError struct {
	Bucket string
	Key    string
	Err    error
}

// Error implements the error interface.
func (e *ObjectNotFoundError) Error() string {
	return fmt.Sprintf("%s: %s/%s", ErrObjectNotFound, e.Bucket, e.Key)
}

// Is reports whether target is ErrObjectNotFound.
func (e *ObjectNotFoundError) Is(target error) bool {
	return target == ErrObjectNotFound
}

// Unwrap returns the underlying backend error.
func (e *ObjectNotFoundError) Unwrap() error {
	return e.Err
}

// ConfigError represents a manager configuration error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "lifecycle config: " + e.Field + ": " + e.Message
}

// IsBackendError returns true if err is or wraps a *BackendError.
func IsBackendError(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}

// IsObjectNotFound returns true if the error indicates a missing object.
func IsObjectNotFound(err error) bool {
	return errors.Is(err, ErrObjectNotFound)
}
