// Package openai extracts text from images with an OpenAI vision chat model.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"aiservices/internal/ingest"
	"aiservices/internal/logger"
)

// ModelName prefixes the chat model in model_used, e.g. "openai/gpt-4o-mini".
const ModelName = "openai"

const extractionPrompt = "Transcribe all text visible in this image exactly as written, " +
	"preserving line breaks. Reply with the text only. If the image contains no text, " +
	"reply with a short description of the image instead."

// ErrMissingAPIKey is returned when OPENAI_API_KEY is not configured.
var ErrMissingAPIKey = errors.New("OPENAI_API_KEY is not set")

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Extractor implements model.TextExtractor.
type Extractor struct {
	client chatCompleter
	model  string
	log    zerolog.Logger
}

// New creates an extractor using apiKey and the given vision model.
func New(apiKey, model string) (*Extractor, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	return newExtractor(openai.NewClient(apiKey), model), nil
}

func newExtractor(client chatCompleter, model string) *Extractor {
	return &Extractor{
		client: client,
		model:  model,
		log:    logger.WithComponent("openai-vision"),
	}
}

// Name returns the engine name reported in model_used.
func (e *Extractor) Name() string {
	return ModelName + "/" + e.model
}

// ExtractText sends the image inline as a data URL. maxLength caps the
// completion tokens.
func (e *Extractor) ExtractText(ctx context.Context, img *ingest.Image, maxLength int) (string, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s", img.MIMEType(), img.Base64())

	req := openai.ChatCompletionRequest{
		Model:     e.model,
		MaxTokens: maxLength,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: extractionPrompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailAuto,
						},
					},
				},
			},
		},
	}

	resp, err := e.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from OpenAI")
	}

	e.log.Debug().
		Str("model", e.model).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Msg("Vision completion finished")

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
