// Package apperr defines the error taxonomy shared by every service and its
// mapping onto HTTP status codes.
//
// Layers that detect a problem wrap one of the sentinel errors below with
// Wrap or New, attaching the operation name and a client-facing message.
// The HTTP layer only ever calls Status and Message; it never inspects
// backend errors directly.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrMissingField is returned when a request lacks the image (file or base64) field.
	ErrMissingField = errors.New("missing required field")

	// ErrUnsupportedFormat is returned for file extensions or decoded formats outside the allowed set.
	ErrUnsupportedFormat = errors.New("unsupported image format")

	// ErrFileTooLarge is returned when an image or the request body exceeds the size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrInvalidImage is returned when bytes cannot be decoded as an image.
	ErrInvalidImage = errors.New("invalid image data")

	// ErrInference is returned when a model backend fails while running inference.
	ErrInference = errors.New("inference failed")

	// ErrServiceUnavailable is returned when a model failed to load at startup.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrNotFound is returned for unknown routes.
	ErrNotFound = errors.New("endpoint not found")

	// ErrMethodNotAllowed is returned when a route exists but not for the request method.
	ErrMethodNotAllowed = errors.New("method not allowed")
)

// Error wraps a taxonomy error with the failing operation and a message safe
// to show to API clients.
type Error struct {
	// Op is the operation that failed (e.g., "FromUpload", "Classify").
	Op string

	// Err is the underlying error, usually one of the sentinels above.
	Err error

	// Details is the client-facing description of the failure.
	Details string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// New creates an Error for op.
func New(op string, err error, details string) *Error {
	return &Error{
		Op:      op,
		Err:     err,
		Details: details,
	}
}

// Wrap wraps err as an Error if it isn't already one.
func Wrap(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}

	return New(op, err, details)
}

// Inference wraps a backend failure as ErrInference, keeping the backend
// error in the message. Errors already classified are returned unchanged.
func Inference(op string, err error) error {
	if err == nil {
		return nil
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}

	return New(op, fmt.Errorf("%w: %v", ErrInference, err), fmt.Sprintf("inference failed: %v", err))
}

// Status maps err onto the HTTP status code of its taxonomy class.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrMissingField),
		errors.Is(err, ErrUnsupportedFormat),
		errors.Is(err, ErrInvalidImage):
		return http.StatusBadRequest
	case errors.Is(err, ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrMethodNotAllowed):
		return http.StatusMethodNotAllowed
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the client-facing message for err.
func Message(err error) string {
	if err == nil {
		return ""
	}

	var appErr *Error
	if errors.As(err, &appErr) && appErr.Details != "" {
		return appErr.Details
	}

	if errors.Is(err, ErrInference) || Status(err) == http.StatusInternalServerError {
		return fmt.Sprintf("Internal server error: %v", err)
	}

	return err.Error()
}
