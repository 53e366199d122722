// Package ollama extracts text from images with a vision model served by a
// local Ollama instance.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/rs/zerolog"

	"aiservices/internal/ingest"
	"aiservices/internal/logger"
)

// ModelName prefixes the chat model in model_used, e.g. "ollama/llama3.2-vision".
const ModelName = "ollama"

const extractionPrompt = "Read all text in this image and output it exactly as written, " +
	"line by line, with no commentary."

// ErrMissingURL is returned when OLLAMA_URL is not configured.
var ErrMissingURL = errors.New("OLLAMA_URL is not set")

type chatter interface {
	Chat(ctx context.Context, req *api.ChatRequest, fn api.ChatResponseFunc) error
	Heartbeat(ctx context.Context) error
}

// Extractor implements model.TextExtractor.
type Extractor struct {
	client chatter
	model  string
	log    zerolog.Logger
}

// New connects to the Ollama server at rawURL and checks it is reachable.
func New(ctx context.Context, rawURL, model string) (*Extractor, error) {
	if rawURL == "" {
		return nil, ErrMissingURL
	}
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid OLLAMA_URL: %v", err)
	}

	// Strip any path such as /api/chat; the client adds its own.
	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}
	e := newExtractor(api.NewClient(baseURL, http.DefaultClient), model)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := e.client.Heartbeat(pingCtx); err != nil {
		return nil, fmt.Errorf("ollama server at %s not reachable: %w", baseURL, err)
	}
	return e, nil
}

func newExtractor(client chatter, model string) *Extractor {
	return &Extractor{
		client: client,
		model:  model,
		log:    logger.WithComponent("ollama-vision"),
	}
}

// Name returns the engine name reported in model_used.
func (e *Extractor) Name() string {
	return ModelName + "/" + e.model
}

// ExtractText runs a non-streaming chat with the image attached.
// maxLength bounds the generated tokens through num_predict.
func (e *Extractor) ExtractText(ctx context.Context, img *ingest.Image, maxLength int) (string, error) {
	stream := false
	req := &api.ChatRequest{
		Model: e.model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: extractionPrompt,
				Images:  []api.ImageData{api.ImageData(img.Data)},
			},
		},
		Stream: &stream,
		Options: map[string]any{
			"num_predict": maxLength,
			"temperature": 0,
		},
	}

	var content strings.Builder
	err := e.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat error: %w", err)
	}

	e.log.Debug().
		Str("model", e.model).
		Int("chars", content.Len()).
		Msg("Vision chat finished")

	return strings.TrimSpace(content.String()), nil
}
