package app

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"aiservices/internal/config"
	"aiservices/internal/documentai"
	"aiservices/internal/model"
	"aiservices/internal/vision"
)

func TestEngineOrder(t *testing.T) {
	tests := []struct {
		name      string
		primary   string
		fallbacks []string
		want      []string
	}{
		{"default chain", "google-vision", []string{"documentai", "openai", "ollama"}, []string{"google-vision", "documentai", "openai", "ollama"}},
		{"repeats dropped", "openai", []string{"OpenAI", " ollama ", "openai"}, []string{"openai", "ollama"}},
		{"blank primary", "", []string{"ollama"}, []string{"ollama"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := engineOrder(tt.primary, tt.fallbacks); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("engineOrder() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTextEngine(t *testing.T) {
	cfg := config.Default()
	cfg.OpenAIAPIKey = ""
	cfg.OllamaURL = ""
	a := &App{Config: cfg}

	client := model.Unavailable[*vision.Client](model.Info{Name: vision.ModelName}, errors.New("no credentials"))
	docai := model.Unavailable[*documentai.Reader](model.Info{Name: documentai.ModelName}, errors.New("no processor"))

	tests := []struct {
		engine   string
		wantName string
		wantErr  string
	}{
		{EngineVision, EngineVision, "no credentials"},
		{EngineDocumentAI, EngineDocumentAI, "no processor"},
		{EngineOpenAI, "openai/" + cfg.OpenAIVisionModel, "OPENAI_API_KEY"},
		{EngineOllama, "ollama/" + cfg.OllamaVisionModel, "OLLAMA_URL"},
	}

	for _, tt := range tests {
		t.Run(tt.engine, func(t *testing.T) {
			e, err := a.textEngine(context.Background(), tt.engine, client, docai)
			if err != nil {
				t.Fatalf("textEngine() error = %v", err)
			}
			if e.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", e.Name, tt.wantName)
			}
			if e.Handle.Loaded() {
				t.Error("engine loaded without credentials")
			}
			if info := e.Handle.Info(); !strings.Contains(info.Error, tt.wantErr) {
				t.Errorf("Info().Error = %q, want it to mention %q", info.Error, tt.wantErr)
			}
		})
	}

	if _, err := a.textEngine(context.Background(), "tesseract", client, docai); !errors.Is(err, errUnknownEngine) {
		t.Errorf("unknown engine error = %v", err)
	}
}
