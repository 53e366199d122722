package vision

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"aiservices/internal/apperr"
)

// Vision API errors
var (
	// ErrEmptyResponse is returned when the API answers without an annotation response.
	ErrEmptyResponse = errors.New("no response from Vision API")

	// ErrAnnotationFailed is returned when the per-image response carries an error status.
	ErrAnnotationFailed = errors.New("Vision API annotation failed")
)

// handleAPIError converts Vision API errors into the service taxonomy.
// Credential and quota problems make the backend unusable for the request,
// everything else is an inference failure.
func handleAPIError(op string, err error) error {
	errStr := err.Error()

	switch {
	case strings.Contains(errStr, "PermissionDenied") || strings.Contains(errStr, "PERMISSION_DENIED"):
		return apperr.New(op, apperr.ErrServiceUnavailable, "insufficient permissions for Cloud Vision")
	case strings.Contains(errStr, "Unauthenticated") || strings.Contains(errStr, "invalid_grant"):
		return apperr.New(op, apperr.ErrServiceUnavailable, "Cloud Vision authentication failed")
	case strings.Contains(errStr, "ResourceExhausted") || strings.Contains(errStr, "QUOTA_EXCEEDED"):
		return apperr.New(op, apperr.ErrServiceUnavailable, "Cloud Vision quota exceeded")
	case errors.Is(err, context.DeadlineExceeded) || strings.Contains(errStr, "context deadline exceeded"):
		return apperr.Inference(op, fmt.Errorf("Cloud Vision timeout: %w", err))
	default:
		return apperr.Inference(op, fmt.Errorf("Cloud Vision error: %w", err))
	}
}
