package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"missing field", New("op", ErrMissingField, "No image file provided"), http.StatusBadRequest},
		{"unsupported format", New("op", ErrUnsupportedFormat, "bad"), http.StatusBadRequest},
		{"invalid image", New("op", ErrInvalidImage, "bad"), http.StatusBadRequest},
		{"too large", New("op", ErrFileTooLarge, "big"), http.StatusRequestEntityTooLarge},
		{"inference", Inference("Classify", errors.New("tensor shape")), http.StatusInternalServerError},
		{"unavailable", New("op", ErrServiceUnavailable, "down"), http.StatusServiceUnavailable},
		{"not found", ErrNotFound, http.StatusNotFound},
		{"method", ErrMethodNotAllowed, http.StatusMethodNotAllowed},
		{"wrapped with fmt", fmt.Errorf("batch item: %w", New("op", ErrInvalidImage, "bad")), http.StatusBadRequest},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Status(tt.err); got != tt.want {
				t.Errorf("Status() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestWrapDoesNotDoubleWrap(t *testing.T) {
	inner := New("FromBase64", ErrInvalidImage, "Invalid base64 data")
	got := Wrap("handler", inner, "other details")

	var appErr *Error
	if !errors.As(got, &appErr) {
		t.Fatalf("Wrap() = %T, want *Error", got)
	}
	if appErr.Op != "FromBase64" {
		t.Errorf("Op = %q, want FromBase64", appErr.Op)
	}
	if Message(got) != "Invalid base64 data" {
		t.Errorf("Message() = %q, want original details", Message(got))
	}
}

func TestInferenceKeepsClassifiedErrors(t *testing.T) {
	unavailable := New("Get", ErrServiceUnavailable, "model not loaded")
	if got := Inference("Classify", unavailable); !errors.Is(got, ErrServiceUnavailable) {
		t.Errorf("Inference() = %v, want ErrServiceUnavailable kept", got)
	}

	got := Inference("Classify", errors.New("backend exploded"))
	if !errors.Is(got, ErrInference) {
		t.Errorf("Inference() = %v, want ErrInference", got)
	}
	if Message(got) != "inference failed: backend exploded" {
		t.Errorf("Message() = %q", Message(got))
	}
}

func TestMessageForUnclassifiedError(t *testing.T) {
	if got := Message(errors.New("boom")); got != "Internal server error: boom" {
		t.Errorf("Message() = %q", got)
	}
	if got := Message(nil); got != "" {
		t.Errorf("Message(nil) = %q, want empty", got)
	}
}
