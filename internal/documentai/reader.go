// Package documentai adapts a Google Document AI OCR processor to the text
// extraction and line reading contracts. It is used as a fallback engine
// behind Cloud Vision.
package documentai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/rs/zerolog"

	"aiservices/internal/apperr"
	"aiservices/internal/gcp"
	"aiservices/internal/ingest"
	"aiservices/internal/logger"
	"aiservices/internal/model"
)

// ModelName identifies the backend in model_used and /model-info.
const ModelName = "google-document-ai"

// ErrInvalidConfiguration is returned when the processor cannot be addressed.
var ErrInvalidConfiguration = errors.New("invalid Document AI configuration")

// Config addresses the OCR processor.
type Config struct {
	ProjectID        string
	Location         string
	ProcessorID      string
	ProcessorVersion string
	Timeout          time.Duration
}

type processFunc func(ctx context.Context, req *documentaipb.ProcessRequest) (*documentaipb.ProcessResponse, error)

// Reader implements model.TextExtractor and model.LineReader.
type Reader struct {
	process processFunc
	close   func() error
	config  Config
	log     zerolog.Logger
}

// New creates a Document AI client for config with credentials from the environment.
func New(ctx context.Context, config Config) (*Reader, error) {
	const op = "documentai.New"

	if config.ProjectID == "" {
		return nil, fmt.Errorf("%s: %w: GOOGLE_CLOUD_PROJECT is required", op, ErrInvalidConfiguration)
	}
	if config.ProcessorID == "" {
		return nil, fmt.Errorf("%s: %w: DOCUMENT_AI_PROCESSOR_ID is required", op, ErrInvalidConfiguration)
	}
	if config.Location == "" {
		config.Location = "us"
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	opts := gcp.ClientOptions(gcp.RegionalEndpoint("documentai", config.Location)...)
	client, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		if !gcp.HasExplicitCredentials() {
			return nil, fmt.Errorf("%s: %w: %v", op, gcp.ErrMissingCredentials, err)
		}
		return nil, fmt.Errorf("%s: failed to create Document AI client for location %s: %w", op, config.Location, err)
	}

	r := newReader(func(ctx context.Context, req *documentaipb.ProcessRequest) (*documentaipb.ProcessResponse, error) {
		return client.ProcessDocument(ctx, req)
	}, config)
	r.close = client.Close
	return r, nil
}

func newReader(process processFunc, config Config) *Reader {
	return &Reader{
		process: process,
		close:   func() error { return nil },
		config:  config,
		log:     logger.WithComponent("document-ai"),
	}
}

// Close closes the underlying Document AI client.
func (r *Reader) Close() error {
	return r.close()
}

// processorName constructs the full processor name for the Document AI API.
func (r *Reader) processorName() string {
	if r.config.ProcessorVersion != "" {
		return fmt.Sprintf("projects/%s/locations/%s/processors/%s/processorVersions/%s",
			r.config.ProjectID, r.config.Location, r.config.ProcessorID, r.config.ProcessorVersion)
	}
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s",
		r.config.ProjectID, r.config.Location, r.config.ProcessorID)
}

func (r *Reader) processImage(ctx context.Context, op string, img *ingest.Image) (*documentaipb.Document, error) {
	processCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	req := &documentaipb.ProcessRequest{
		Name: r.processorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  img.Data,
				MimeType: img.MIMEType(),
			},
		},
	}

	start := time.Now()
	resp, err := r.process(processCtx, req)
	if err != nil {
		return nil, r.handleProcessingError(op, err)
	}
	if resp.GetDocument() == nil {
		return nil, fmt.Errorf("%s: no document in response", op)
	}

	r.log.Debug().
		Str("op", op).
		Int("pages", len(resp.GetDocument().GetPages())).
		Dur("duration", time.Since(start)).
		Msg("Document processed")
	return resp.GetDocument(), nil
}

// handleProcessingError converts Document AI errors into the service taxonomy.
func (r *Reader) handleProcessingError(op string, err error) error {
	errStr := err.Error()

	switch {
	case strings.Contains(errStr, "PERMISSION_DENIED") || strings.Contains(errStr, "PermissionDenied"):
		return apperr.New(op, apperr.ErrServiceUnavailable, "insufficient permissions for Document AI")
	case strings.Contains(errStr, "QUOTA_EXCEEDED") || strings.Contains(errStr, "ResourceExhausted"):
		return apperr.New(op, apperr.ErrServiceUnavailable, "Document AI API quota exceeded")
	case strings.Contains(errStr, "NOT_FOUND") || strings.Contains(errStr, "NotFound"):
		return apperr.New(op, apperr.ErrServiceUnavailable, fmt.Sprintf("processor not found: %s", r.config.ProcessorID))
	case strings.Contains(errStr, "INVALID_ARGUMENT") || strings.Contains(errStr, "InvalidArgument"):
		return apperr.Inference(op, fmt.Errorf("document format not supported or corrupted: %w", err))
	case errors.Is(err, context.DeadlineExceeded) || strings.Contains(errStr, "context deadline exceeded"):
		return apperr.Inference(op, fmt.Errorf("processing timeout: %w", err))
	default:
		return apperr.Inference(op, fmt.Errorf("Document AI error: %w", err))
	}
}

// ExtractText returns the document text. The processor has no output length
// control, so maxLength is left to the caller.
func (r *Reader) ExtractText(ctx context.Context, img *ingest.Image, maxLength int) (string, error) {
	doc, err := r.processImage(ctx, "ExtractText", img)
	if err != nil {
		return "", err
	}
	return doc.GetText(), nil
}

// ReadLines returns the lines of the first page with their layout boxes.
func (r *Reader) ReadLines(ctx context.Context, img *ingest.Image) ([]model.OCRLine, error) {
	doc, err := r.processImage(ctx, "ReadLines", img)
	if err != nil {
		return nil, err
	}
	return linesFromDocument(doc, img.Width, img.Height), nil
}

func linesFromDocument(doc *documentaipb.Document, width, height int) []model.OCRLine {
	text := doc.GetText()
	var lines []model.OCRLine

	for _, page := range doc.GetPages() {
		pageW, pageH := float64(width), float64(height)
		if dim := page.GetDimension(); dim != nil && dim.GetWidth() > 0 && dim.GetHeight() > 0 {
			pageW, pageH = float64(dim.GetWidth()), float64(dim.GetHeight())
		}

		for _, line := range page.GetLines() {
			layout := line.GetLayout()
			content := strings.TrimSpace(anchorText(text, layout.GetTextAnchor()))
			if content == "" {
				continue
			}
			lines = append(lines, model.OCRLine{
				Text:       content,
				Confidence: float64(layout.GetConfidence()),
				Quad:       quad(layout.GetBoundingPoly(), pageW, pageH),
			})
		}
	}
	return lines
}

// anchorText resolves a text anchor against the full document text.
func anchorText(text string, anchor *documentaipb.Document_TextAnchor) string {
	var b strings.Builder
	for _, seg := range anchor.GetTextSegments() {
		start, end := seg.GetStartIndex(), seg.GetEndIndex()
		if start < 0 || end > int64(len(text)) || start >= end {
			continue
		}
		b.WriteString(text[start:end])
	}
	return b.String()
}

// quad converts a layout polygon into four corners in pixels. Document AI
// fills either absolute or normalized vertices depending on the processor.
func quad(poly *documentaipb.BoundingPoly, width, height float64) [4]model.Point {
	var pts []model.Point
	if vs := poly.GetVertices(); len(vs) > 0 {
		for _, v := range vs {
			pts = append(pts, model.Point{X: float64(v.GetX()), Y: float64(v.GetY())})
		}
	} else {
		for _, v := range poly.GetNormalizedVertices() {
			pts = append(pts, model.Point{X: float64(v.GetX()) * width, Y: float64(v.GetY()) * height})
		}
	}

	var q [4]model.Point
	for i := 0; i < 4 && i < len(pts); i++ {
		q[i] = pts[i]
	}
	return q
}
