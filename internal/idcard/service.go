// Package idcard detects identity cards in photos and extracts their
// printed fields.
//
// Processing runs in three steps:
//  1. locate the card with a CardDetector
//  2. crop it and read positioned text lines with the first LineReader that
//     succeeds
//  3. assign rows of text to fields with an ordered rule list
package idcard

import (
	"context"
	"errors"
	"time"

	"aiservices/internal/apperr"
	"aiservices/internal/ingest"
	"aiservices/internal/logger"
	"aiservices/internal/model"
)

const (
	MessageDetected    = "ID card detected"
	MessageNotDetected = "No ID card detected"
)

// DefaultRecordTimeout bounds one audit write.
const DefaultRecordTimeout = 5 * time.Second

// Reader is one line reader in the fallback chain.
type Reader struct {
	Name   string
	Handle *model.Handle[model.LineReader]
}

// Options control a single Process call.
type Options struct {
	// ExtractData runs OCR and parsing on the cropped card. When false only
	// detection is performed.
	ExtractData bool
}

// Confidence summarizes OCR confidence for the card.
type Confidence struct {
	Average          float64   `json:"average"`
	IndividualScores []float64 `json:"individual_scores"`
}

// ProcessingInfo reports how the text was read.
type ProcessingInfo struct {
	TotalTextItems int    `json:"total_text_items"`
	OCREngine      string `json:"ocr_engine"`
}

// Result is the full processing result for one image.
type Result struct {
	CardDetected        bool              `json:"card_detected"`
	BBox                *model.BBox       `json:"bbox"`
	DetectionConfidence float64           `json:"detection_confidence"`
	ExtractedData       *ExtractedData    `json:"extracted_data,omitempty"`
	FieldConfidence     map[Field]float64 `json:"field_confidence,omitempty"`
	Confidence          *Confidence       `json:"confidence,omitempty"`
	ProcessingInfo      *ProcessingInfo   `json:"processing_info,omitempty"`
}

// DetectResult is the detection-only result.
type DetectResult struct {
	CardDetected        bool        `json:"card_detected"`
	BBox                *model.BBox `json:"bbox"`
	DetectionConfidence float64     `json:"detection_confidence"`
	Message             string      `json:"message"`
}

// AuditRecord is what gets recorded for each processed card. It carries no
// card contents.
type AuditRecord struct {
	RequestID           string
	Time                time.Time
	CardDetected        bool
	DetectionConfidence float64
	AverageConfidence   float64
	FieldsFound         []string
	OCREngine           string
}

// Recorder stores audit records.
type Recorder interface {
	Record(ctx context.Context, rec AuditRecord) error
}

// Service runs detection, OCR and parsing.
type Service struct {
	detector *model.Handle[model.CardDetector]
	readers  []Reader
	parser   *Parser
	padding  int
	recorder Recorder

	recordTimeout time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithRecorder records an audit row for every processed image.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithRecordTimeout bounds each audit write. The request carries on when it
// expires.
func WithRecordTimeout(d time.Duration) Option {
	return func(s *Service) { s.recordTimeout = d }
}

// WithParser replaces the default rule set.
func WithParser(p *Parser) Option {
	return func(s *Service) { s.parser = p }
}

// WithCropPadding sets the pixels added around the detected card before OCR.
func WithCropPadding(px int) Option {
	return func(s *Service) { s.padding = px }
}

// NewService creates a service. Readers are tried in order.
func NewService(detector *model.Handle[model.CardDetector], readers []Reader, opts ...Option) *Service {
	s := &Service{
		detector: detector,
		readers:  readers,
		parser:   NewParser(),
		padding:  10,

		recordTimeout: DefaultRecordTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DetectorAvailable reports whether detection can run.
func (s *Service) DetectorAvailable() bool {
	return s.detector.Loaded()
}

// Available reports whether full processing can run.
func (s *Service) Available() bool {
	if !s.detector.Loaded() {
		return false
	}
	for _, r := range s.readers {
		if r.Handle.Loaded() {
			return true
		}
	}
	return false
}

func (s *Service) detect(ctx context.Context, img *ingest.Image) (*model.Detection, error) {
	return model.Invoke(s.detector, "DetectCard", func(d model.CardDetector) (*model.Detection, error) {
		return d.DetectCard(ctx, img)
	})
}

// Detect locates the card without reading it.
func (s *Service) Detect(ctx context.Context, img *ingest.Image) (*DetectResult, error) {
	det, err := s.detect(ctx, img)
	if err != nil {
		return nil, err
	}
	if det == nil {
		return &DetectResult{Message: MessageNotDetected}, nil
	}
	box := det.BBox
	return &DetectResult{
		CardDetected:        true,
		BBox:                &box,
		DetectionConfidence: model.Round4(det.Confidence),
		Message:             MessageDetected,
	}, nil
}

// Process detects the card and, when opts.ExtractData is set, reads and
// parses it. A missing card is a successful result with CardDetected false.
func (s *Service) Process(ctx context.Context, img *ingest.Image, opts Options) (*Result, error) {
	log := logger.WithContext(ctx)

	det, err := s.detect(ctx, img)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	if det == nil {
		log.Debug().Str("component", "idcard").Msg("No card detected")
		s.record(ctx, result)
		return result, nil
	}

	box := det.BBox
	result.CardDetected = true
	result.BBox = &box
	result.DetectionConfidence = model.Round4(det.Confidence)

	if !opts.ExtractData {
		s.record(ctx, result)
		return result, nil
	}

	card, err := img.Crop(box.Rect(), s.padding)
	if err != nil {
		return nil, err
	}

	lines, engine, err := s.readLines(ctx, card)
	if err != nil {
		return nil, err
	}

	parsed := s.parser.Parse(lines)
	result.ExtractedData = &parsed.Data
	result.FieldConfidence = parsed.FieldConfidence
	result.Confidence = &Confidence{
		Average:          parsed.Average,
		IndividualScores: parsed.Scores,
	}
	result.ProcessingInfo = &ProcessingInfo{
		TotalTextItems: len(lines),
		OCREngine:      engine,
	}

	log.Debug().
		Str("component", "idcard").
		Str("engine", engine).
		Int("lines", len(lines)).
		Int("fields", len(parsed.Data.Found())).
		Msg("Card processed")

	s.record(ctx, result)
	return result, nil
}

func (s *Service) readLines(ctx context.Context, img *ingest.Image) ([]model.OCRLine, string, error) {
	log := logger.WithContext(ctx)

	var lastErr error
	allUnavailable := true
	for _, r := range s.readers {
		lines, err := model.Invoke(r.Handle, "ReadLines", func(lr model.LineReader) ([]model.OCRLine, error) {
			return lr.ReadLines(ctx, img)
		})
		if err == nil {
			return lines, r.Name, nil
		}

		lastErr = err
		if !errors.Is(err, apperr.ErrServiceUnavailable) {
			allUnavailable = false
		}
		log.Warn().Err(err).Str("component", "idcard").Str("engine", r.Name).Msg("Line reader failed, trying next")
	}

	if lastErr == nil || allUnavailable {
		return nil, "", apperr.New("ReadLines", apperr.ErrServiceUnavailable, "ID Card OCR Service not available")
	}
	return nil, "", lastErr
}

func (s *Service) record(ctx context.Context, result *Result) {
	if s.recorder == nil {
		return
	}

	rec := AuditRecord{
		RequestID:           logger.RequestID(ctx),
		Time:                time.Now().UTC(),
		CardDetected:        result.CardDetected,
		DetectionConfidence: result.DetectionConfidence,
	}
	if result.Confidence != nil {
		rec.AverageConfidence = result.Confidence.Average
	}
	if result.ExtractedData != nil {
		for _, f := range result.ExtractedData.Found() {
			rec.FieldsFound = append(rec.FieldsFound, string(f))
		}
	}
	if result.ProcessingInfo != nil {
		rec.OCREngine = result.ProcessingInfo.OCREngine
	}

	ctx, cancel := context.WithTimeout(ctx, s.recordTimeout)
	defer cancel()
	if err := s.recorder.Record(ctx, rec); err != nil {
		logger.WithContext(ctx).Warn().Err(err).Str("component", "idcard").Msg("Failed to record audit entry")
	}
}

// ReaderInfo describes one line reader.
type ReaderInfo struct {
	model.Info
	Role string `json:"role"`
}

// Info describes the detector, readers and parser.
type Info struct {
	Loaded      bool         `json:"loaded"`
	Detector    model.Info   `json:"detector"`
	Readers     []ReaderInfo `json:"ocr_engines"`
	Rules       []string     `json:"parser_rules"`
	CropPadding int          `json:"crop_padding"`
	Fields      []Field      `json:"fields"`
	Audit       bool         `json:"audit_enabled"`
}

// Info returns the service description.
func (s *Service) Info() Info {
	info := Info{
		Loaded:      s.Available(),
		Detector:    s.detector.Info(),
		Rules:       s.parser.Rules(),
		CropPadding: s.padding,
		Fields:      Fields,
		Audit:       s.recorder != nil,
	}
	for i, r := range s.readers {
		role := "fallback"
		if i == 0 {
			role = "primary"
		}
		info.Readers = append(info.Readers, ReaderInfo{Info: r.Handle.Info(), Role: role})
	}
	return info
}
