// Package app builds every model backend and service once at startup.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"aiservices/internal/config"
	"aiservices/internal/documentai"
	"aiservices/internal/idcard"
	"aiservices/internal/logger"
	"aiservices/internal/model"
	"aiservices/internal/nsfw"
	"aiservices/internal/ocr"
	"aiservices/internal/ollama"
	"aiservices/internal/openai"
	"aiservices/internal/sheets"
	"aiservices/internal/vision"
)

// Version is reported by /health and /model-info.
const Version = "1.0.0"

// OCR engine names accepted in OCR_PRIMARY and OCR_FALLBACKS.
const (
	EngineVision     = "google-vision"
	EngineDocumentAI = "documentai"
	EngineOpenAI     = "openai"
	EngineOllama     = "ollama"
)

var errUnknownEngine = errors.New("unknown OCR engine")

// App holds the services shared by every request.
type App struct {
	Config *config.Config
	NSFW   *nsfw.Service
	OCR    *ocr.Service
	IDCard *idcard.Service

	closers []func() error
}

// New loads every backend. Backends that fail to load are marked
// unavailable and the services that need them answer 503.
func New(ctx context.Context, cfg *config.Config) *App {
	log := logger.WithComponent("app")
	a := &App{Config: cfg}

	client := model.Load(model.Info{Name: vision.ModelName, Provider: "google-cloud", Device: "cloud"}, func() (*vision.Client, error) {
		return vision.New(ctx, vision.Config{
			MinDetectionScore: cfg.IDCardMinDetectionScore,
			ObjectLabels:      cfg.IDCardObjectLabels,
		})
	})
	if c, err := client.Get(); err == nil {
		a.closers = append(a.closers, c.Close)
	}

	docai := model.Load(model.Info{Name: documentai.ModelName, Provider: "google-cloud", Device: "cloud"}, func() (*documentai.Reader, error) {
		return documentai.New(ctx, documentai.Config{
			ProjectID:        cfg.GoogleCloudProject,
			Location:         cfg.GoogleCloudLocation,
			ProcessorID:      cfg.DocumentAIProcessorID,
			ProcessorVersion: cfg.DocumentAIProcessorVersion,
		})
	})
	if r, err := docai.Get(); err == nil {
		a.closers = append(a.closers, r.Close)
	}

	classifier := model.Derive(client, visionInfo("safe-search"), func(c *vision.Client) model.Classifier { return c })
	a.NSFW = nsfw.NewService(classifier, cfg.NSFWThreshold, cfg.NSFWPositiveLabel)

	var engines []ocr.Engine
	for _, name := range engineOrder(cfg.OCRPrimary, cfg.OCRFallbacks) {
		engine, err := a.textEngine(ctx, name, client, docai)
		if err != nil {
			log.Warn().Err(err).Str("engine", name).Msg("Skipping OCR engine")
			continue
		}
		engines = append(engines, engine)
	}
	a.OCR = ocr.NewService(engines, ocr.FallbackPolicy{
		OnError:       cfg.OCRFallbackOnError,
		OnUnavailable: cfg.OCRFallbackUnavailable,
		OnEmpty:       cfg.OCRFallbackOnEmpty,
	}, cfg.OCRMaxLength)

	detector := model.Derive(client, visionInfo("object-localization"), func(c *vision.Client) model.CardDetector { return c })
	readers := []idcard.Reader{
		{
			Name:   EngineVision,
			Handle: model.Derive(client, visionInfo("document-text"), func(c *vision.Client) model.LineReader { return c }),
		},
		{
			Name:   EngineDocumentAI,
			Handle: model.Derive(docai, docai.Info(), func(r *documentai.Reader) model.LineReader { return r }),
		},
	}

	opts := []idcard.Option{idcard.WithCropPadding(cfg.IDCardCropPadding)}
	if cfg.AuditSheetURL != "" {
		rec, err := sheets.NewRecorder(ctx, cfg.AuditSheetURL, cfg.AuditSheetWorksheet)
		if err != nil {
			log.Warn().Err(err).Msg("ID card audit disabled")
		} else {
			log.Info().Str("sheet", rec.Worksheet()).Msg("ID card audit enabled")
			opts = append(opts, idcard.WithRecorder(rec))
		}
	}
	a.IDCard = idcard.NewService(detector, readers, opts...)

	log.Info().
		Bool("nsfw", a.NSFW.Available()).
		Bool("ocr", a.OCR.Available()).
		Bool("id_card", a.IDCard.Available()).
		Msg("Services initialized")
	return a
}

func visionInfo(feature string) model.Info {
	return model.Info{Name: vision.ModelName + "/" + feature, Provider: "google-cloud", Device: "cloud"}
}

// engineOrder returns primary followed by fallbacks, lowercased, without
// blanks or repeats.
func engineOrder(primary string, fallbacks []string) []string {
	seen := make(map[string]bool)
	var order []string
	for _, name := range append([]string{primary}, fallbacks...) {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		order = append(order, name)
	}
	return order
}

func (a *App) textEngine(ctx context.Context, name string, client *model.Handle[*vision.Client], docai *model.Handle[*documentai.Reader]) (ocr.Engine, error) {
	cfg := a.Config
	switch name {
	case EngineVision:
		return ocr.Engine{
			Name:   EngineVision,
			Handle: model.Derive(client, visionInfo("document-text"), func(c *vision.Client) model.TextExtractor { return c }),
		}, nil

	case EngineDocumentAI:
		return ocr.Engine{
			Name:   EngineDocumentAI,
			Handle: model.Derive(docai, docai.Info(), func(r *documentai.Reader) model.TextExtractor { return r }),
		}, nil

	case EngineOpenAI:
		info := model.Info{Name: openai.ModelName + "/" + cfg.OpenAIVisionModel, Provider: "openai", Device: "cloud"}
		return ocr.Engine{
			Name: info.Name,
			Handle: model.Load(info, func() (model.TextExtractor, error) {
				e, err := openai.New(cfg.OpenAIAPIKey, cfg.OpenAIVisionModel)
				if err != nil {
					return nil, err
				}
				return e, nil
			}),
		}, nil

	case EngineOllama:
		info := model.Info{Name: ollama.ModelName + "/" + cfg.OllamaVisionModel, Provider: "ollama", Device: "local"}
		return ocr.Engine{
			Name: info.Name,
			Handle: model.Load(info, func() (model.TextExtractor, error) {
				e, err := ollama.New(ctx, cfg.OllamaURL, cfg.OllamaVisionModel)
				if err != nil {
					return nil, err
				}
				return e, nil
			}),
		}, nil
	}
	return ocr.Engine{}, fmt.Errorf("%w: %q", errUnknownEngine, name)
}

// Close releases the cloud clients.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
