// Package nsfw classifies images as safe or not safe for work and shapes
// the classifier output into the public result.
package nsfw

import (
	"context"
	"strings"

	"aiservices/internal/ingest"
	"aiservices/internal/logger"
	"aiservices/internal/model"
)

// Result is the normalized NSFW classification.
type Result struct {
	IsNSFW      bool               `json:"is_nsfw"`
	Confidence  float64            `json:"confidence"`
	Threshold   float64            `json:"threshold"`
	Predictions []model.Prediction `json:"predictions"`
}

// Info is reported by /nsfw/info and /model-info.
type Info struct {
	model.Info
	Threshold     float64 `json:"threshold"`
	PositiveLabel string  `json:"positive_label"`
}

// Normalize derives the result from raw predictions. The confidence is the
// highest score carrying positiveLabel, rounded to four decimals, and the
// image is flagged when that rounded value reaches threshold.
func Normalize(preds []model.Prediction, positiveLabel string, threshold float64) Result {
	confidence := 0.0
	for _, p := range preds {
		if strings.EqualFold(p.Label, positiveLabel) && p.Score > confidence {
			confidence = p.Score
		}
	}
	confidence = model.Round4(confidence)

	out := make([]model.Prediction, len(preds))
	copy(out, preds)

	return Result{
		IsNSFW:      confidence >= threshold,
		Confidence:  confidence,
		Threshold:   threshold,
		Predictions: out,
	}
}

// Service runs the classifier and normalizes its output.
type Service struct {
	classifier    *model.Handle[model.Classifier]
	threshold     float64
	positiveLabel string
}

// NewService creates a service around a loaded classifier handle.
func NewService(classifier *model.Handle[model.Classifier], threshold float64, positiveLabel string) *Service {
	return &Service{
		classifier:    classifier,
		threshold:     threshold,
		positiveLabel: positiveLabel,
	}
}

// Available reports whether the classifier loaded.
func (s *Service) Available() bool {
	return s.classifier.Loaded()
}

// Detect classifies img.
func (s *Service) Detect(ctx context.Context, img *ingest.Image) (*Result, error) {
	preds, err := model.Invoke(s.classifier, "Classify", func(c model.Classifier) ([]model.Prediction, error) {
		return c.Classify(ctx, img)
	})
	if err != nil {
		return nil, err
	}

	result := Normalize(preds, s.positiveLabel, s.threshold)
	logger.WithContext(ctx).Debug().
		Str("component", "nsfw").
		Bool("is_nsfw", result.IsNSFW).
		Float64("confidence", result.Confidence).
		Msg("Image classified")
	return &result, nil
}

// Info describes the classifier.
func (s *Service) Info() Info {
	return Info{
		Info:          s.classifier.Info(),
		Threshold:     s.threshold,
		PositiveLabel: s.positiveLabel,
	}
}
