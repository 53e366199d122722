package model

import (
	"errors"
	"fmt"

	"aiservices/internal/apperr"
	"aiservices/internal/logger"
)

// Info describes a model handle for /model-info and /health.
type Info struct {
	Name     string `json:"model_name"`
	Provider string `json:"provider"`
	Device   string `json:"device"`
	Loaded   bool   `json:"loaded"`
	Error    string `json:"error,omitempty"`
}

// Handle owns one backend of type T. It is created once at startup and
// never changes afterwards, so concurrent requests share it without locks.
type Handle[T any] struct {
	backend T
	info    Info
	err     error
}

// Load runs load exactly once. A failure leaves the handle permanently
// unavailable; it is logged here and reported by Get and Info.
func Load[T any](info Info, load func() (T, error)) *Handle[T] {
	log := logger.WithComponent("model")

	backend, err := load()
	if err != nil {
		info.Loaded = false
		info.Error = err.Error()
		log.Error().
			Err(err).
			Str("model", info.Name).
			Str("provider", info.Provider).
			Msg("Failed to load model")
		return &Handle[T]{info: info, err: err}
	}

	info.Loaded = true
	info.Error = ""
	log.Info().
		Str("model", info.Name).
		Str("provider", info.Provider).
		Str("device", info.Device).
		Msg("Model loaded")
	return &Handle[T]{backend: backend, info: info}
}

// Ready wraps an already constructed backend in a loaded handle.
func Ready[T any](info Info, backend T) *Handle[T] {
	info.Loaded = true
	return &Handle[T]{backend: backend, info: info}
}

// Unavailable returns a handle that failed to load with err.
func Unavailable[T any](info Info, err error) *Handle[T] {
	info.Loaded = false
	info.Error = err.Error()
	return &Handle[T]{info: info, err: err}
}

// Derive returns a handle over the same backend seen through view, with its
// own info. A handle that failed to load yields an unavailable handle that
// carries the original load error.
func Derive[T, U any](h *Handle[T], info Info, view func(T) U) *Handle[U] {
	if !h.Loaded() {
		err := errors.New("not configured")
		if h != nil {
			err = h.err
		}
		return Unavailable[U](info, err)
	}
	return Ready(info, view(h.backend))
}

// Get returns the backend or an ErrServiceUnavailable error.
func (h *Handle[T]) Get() (T, error) {
	if h == nil {
		var zero T
		return zero, apperr.New("Get", apperr.ErrServiceUnavailable, "model not configured")
	}
	if h.err != nil {
		var zero T
		return zero, apperr.New("Get", apperr.ErrServiceUnavailable, fmt.Sprintf("%s not available", h.info.Name))
	}
	return h.backend, nil
}

// Loaded reports whether the backend loaded successfully.
func (h *Handle[T]) Loaded() bool {
	return h != nil && h.err == nil
}

// Info returns the handle description.
func (h *Handle[T]) Info() Info {
	if h == nil {
		return Info{Loaded: false, Error: "not configured"}
	}
	return h.info
}

// Name returns the model name.
func (h *Handle[T]) Name() string {
	return h.Info().Name
}

// Invoke runs fn against the handle's backend. Unavailable handles fail
// with ErrServiceUnavailable, backend errors and panics with ErrInference.
func Invoke[T, R any](h *Handle[T], op string, fn func(T) (R, error)) (result R, err error) {
	backend, err := h.Get()
	if err != nil {
		return result, err
	}

	defer func() {
		if r := recover(); r != nil {
			log := logger.WithComponent("model")
			log.Error().
				Str("model", h.info.Name).
				Str("op", op).
				Interface("panic", r).
				Msg("Recovered panic during inference")
			var zero R
			result = zero
			err = apperr.Inference(op, fmt.Errorf("panic: %v", r))
		}
	}()

	result, err = fn(backend)
	if err != nil {
		return result, apperr.Inference(op, err)
	}
	return result, nil
}
