// Package ocr provides text extraction over a chain of engines.
//
// The primary engine is tried first. When it fails in a way the fallback
// policy covers, the next engine in the chain is tried, and the result
// reports which engine produced the text.
//
// Engines:
//   - google-vision: Cloud Vision document text detection
//   - documentai:    Document AI OCR processor
//   - openai:        OpenAI vision chat model
//   - ollama:        local vision model served by Ollama
package ocr

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"aiservices/internal/apperr"
	"aiservices/internal/ingest"
	"aiservices/internal/logger"
	"aiservices/internal/model"
)

// Result is the normalized OCR output.
type Result struct {
	// ExtractedText is trimmed and at most maxLength runes long.
	ExtractedText string `json:"extracted_text"`

	// TextLength counts runes in ExtractedText.
	TextLength int `json:"text_length"`

	// ModelUsed names the engine that produced the text.
	ModelUsed string `json:"model_used"`
}

// Engine is one text extractor in the chain.
type Engine struct {
	Name   string
	Handle *model.Handle[model.TextExtractor]
}

// FallbackPolicy selects which primary outcomes move on to the next engine.
type FallbackPolicy struct {
	// OnError falls back when an engine returns an inference error.
	OnError bool

	// OnUnavailable falls back when an engine failed to load or its backend
	// rejected the request as unavailable.
	OnUnavailable bool

	// OnEmpty falls back when an engine returns only whitespace.
	OnEmpty bool
}

// DefaultPolicy falls back on errors and unavailable engines.
func DefaultPolicy() FallbackPolicy {
	return FallbackPolicy{OnError: true, OnUnavailable: true}
}

func (p FallbackPolicy) allows(err error) bool {
	if errors.Is(err, apperr.ErrServiceUnavailable) {
		return p.OnUnavailable
	}
	return p.OnError
}

// Service extracts text through the engine chain.
type Service struct {
	engines          []Engine
	policy           FallbackPolicy
	defaultMaxLength int
}

// NewService creates a service trying engines in order.
func NewService(engines []Engine, policy FallbackPolicy, defaultMaxLength int) *Service {
	return &Service{
		engines:          engines,
		policy:           policy,
		defaultMaxLength: defaultMaxLength,
	}
}

// DefaultMaxLength returns the cap used when a request does not set one.
func (s *Service) DefaultMaxLength() int {
	return s.defaultMaxLength
}

// Available reports whether any engine loaded.
func (s *Service) Available() bool {
	for _, e := range s.engines {
		if e.Handle.Loaded() {
			return true
		}
	}
	return false
}

// Extract runs the chain on img. A non-positive maxLength uses the default.
func (s *Service) Extract(ctx context.Context, img *ingest.Image, maxLength int) (*Result, error) {
	if maxLength <= 0 {
		maxLength = s.defaultMaxLength
	}
	log := logger.WithContext(ctx)

	var lastErr error
	allUnavailable := true
	var emptyFrom string

	for i, engine := range s.engines {
		text, err := model.Invoke(engine.Handle, "ExtractText", func(x model.TextExtractor) (string, error) {
			return x.ExtractText(ctx, img, maxLength)
		})

		if err == nil {
			text = Truncate(strings.TrimSpace(text), maxLength)
			if text != "" || !s.policy.OnEmpty {
				if i > 0 {
					log.Info().
						Str("component", "ocr").
						Str("engine", engine.Name).
						Str("primary", s.engines[0].Name).
						Msg("Text extracted by fallback engine")
				}
				return newResult(text, engine.Name), nil
			}
			if emptyFrom == "" {
				emptyFrom = engine.Name
			}
			allUnavailable = false
			log.Debug().Str("component", "ocr").Str("engine", engine.Name).Msg("Engine returned no text, trying next")
			continue
		}

		lastErr = err
		if !errors.Is(err, apperr.ErrServiceUnavailable) {
			allUnavailable = false
		}
		if !s.policy.allows(err) {
			return nil, err
		}
		log.Warn().
			Err(err).
			Str("component", "ocr").
			Str("engine", engine.Name).
			Msg("Engine failed, trying next")
	}

	// Every engine came back empty or failed after one produced empty text.
	if emptyFrom != "" {
		return newResult("", emptyFrom), nil
	}
	if lastErr == nil || allUnavailable {
		return nil, apperr.New("Extract", apperr.ErrServiceUnavailable, "Image to Text Service not available")
	}
	return nil, lastErr
}

func newResult(text, engine string) *Result {
	return &Result{
		ExtractedText: text,
		TextLength:    utf8.RuneCountInString(text),
		ModelUsed:     engine,
	}
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n]))
}

// EngineInfo describes one engine for /ocr/info.
type EngineInfo struct {
	model.Info
	Role string `json:"role"`
}

// Info describes the chain.
type Info struct {
	Loaded           bool         `json:"loaded"`
	Engines          []EngineInfo `json:"engines"`
	DefaultMaxLength int          `json:"default_max_length"`
	FallbackOnError  bool         `json:"fallback_on_error"`
	FallbackOnEmpty  bool         `json:"fallback_on_empty"`
}

// Info returns the chain description.
func (s *Service) Info() Info {
	info := Info{
		Loaded:           s.Available(),
		DefaultMaxLength: s.defaultMaxLength,
		FallbackOnError:  s.policy.OnError,
		FallbackOnEmpty:  s.policy.OnEmpty,
	}
	for i, e := range s.engines {
		role := "fallback"
		if i == 0 {
			role = "primary"
		}
		info.Engines = append(info.Engines, EngineInfo{Info: e.Handle.Info(), Role: role})
	}
	return info
}
