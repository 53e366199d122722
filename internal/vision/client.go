// Package vision adapts Google Cloud Vision to the model contracts.
//
// One Client serves four roles: SafeSearch detection as an NSFW classifier,
// document text detection as both a text extractor and a positioned line
// reader, and object localization as the ID card detector.
//
// Required Environment Variables:
//   - GOOGLE_APPLICATION_CREDENTIALS: Path to service account JSON file, OR
//   - GOOGLE_CREDENTIALS: Inline JSON credentials string
//
// Without either, Application Default Credentials are used.
package vision

import (
	"context"
	"fmt"
	"math"
	"strings"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/rs/zerolog"

	"aiservices/internal/gcp"
	"aiservices/internal/ingest"
	"aiservices/internal/logger"
	"aiservices/internal/model"
)

const (
	// ModelName identifies the backend in model_used and /model-info.
	ModelName = "google-cloud-vision"

	// LabelNSFW and LabelNormal are the two classes reported by Classify.
	LabelNSFW   = "nsfw"
	LabelNormal = "normal"
)

// Config controls the object localization filter used for card detection.
type Config struct {
	// MinDetectionScore drops localized objects scoring below it.
	MinDetectionScore float64

	// ObjectLabels restricts card candidates to these object names
	// (case-insensitive). Empty accepts any object.
	ObjectLabels []string

	// LanguageHints are passed to text detection, e.g. "id", "en".
	LanguageHints []string
}

type annotateFunc func(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error)

// Client implements model.Classifier, model.TextExtractor, model.LineReader
// and model.CardDetector on top of the Cloud Vision image annotator.
type Client struct {
	annotate annotateFunc
	close    func() error
	config   Config
	labels   map[string]bool
	log      zerolog.Logger
}

// New creates a Vision client with credentials from the environment.
func New(ctx context.Context, config Config) (*Client, error) {
	const op = "vision.New"

	client, err := vision.NewImageAnnotatorClient(ctx, gcp.ClientOptions()...)
	if err != nil {
		if !gcp.HasExplicitCredentials() {
			return nil, fmt.Errorf("%s: %w: %v", op, gcp.ErrMissingCredentials, err)
		}
		return nil, fmt.Errorf("%s: failed to create Vision client: %w", op, err)
	}

	c := newClient(func(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
		return client.BatchAnnotateImages(ctx, req)
	}, config)
	c.close = client.Close
	return c, nil
}

func newClient(annotate annotateFunc, config Config) *Client {
	labels := make(map[string]bool, len(config.ObjectLabels))
	for _, l := range config.ObjectLabels {
		labels[strings.ToLower(strings.TrimSpace(l))] = true
	}
	return &Client{
		annotate: annotate,
		close:    func() error { return nil },
		config:   config,
		labels:   labels,
		log:      logger.WithComponent("google-vision"),
	}
}

// Close closes the underlying Vision client.
func (c *Client) Close() error {
	return c.close()
}

// annotateOne sends a single-image request for feature and returns its response.
func (c *Client) annotateOne(ctx context.Context, op string, img *ingest.Image, feature visionpb.Feature_Type) (*visionpb.AnnotateImageResponse, error) {
	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image:    &visionpb.Image{Content: img.Data},
				Features: []*visionpb.Feature{{Type: feature}},
			},
		},
	}
	if len(c.config.LanguageHints) > 0 {
		req.Requests[0].ImageContext = &visionpb.ImageContext{LanguageHints: c.config.LanguageHints}
	}

	resp, err := c.annotate(ctx, req)
	if err != nil {
		return nil, handleAPIError(op, err)
	}
	if len(resp.GetResponses()) == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrEmptyResponse)
	}

	imageResp := resp.GetResponses()[0]
	if imageResp.GetError() != nil && imageResp.GetError().GetMessage() != "" {
		return nil, fmt.Errorf("%s: %w: %s", op, ErrAnnotationFailed, imageResp.GetError().GetMessage())
	}
	return imageResp, nil
}

// Classify reports SafeSearch results as nsfw/normal predictions. The nsfw
// score is the stronger of the adult and racy likelihoods.
func (c *Client) Classify(ctx context.Context, img *ingest.Image) ([]model.Prediction, error) {
	resp, err := c.annotateOne(ctx, "Classify", img, visionpb.Feature_SAFE_SEARCH_DETECTION)
	if err != nil {
		return nil, err
	}

	safe := resp.GetSafeSearchAnnotation()
	nsfw := math.Max(LikelihoodScore(safe.GetAdult()), LikelihoodScore(safe.GetRacy()))

	c.log.Debug().
		Str("adult", safe.GetAdult().String()).
		Str("racy", safe.GetRacy().String()).
		Float64("score", nsfw).
		Msg("SafeSearch annotation")

	return []model.Prediction{
		{Label: LabelNSFW, Score: nsfw},
		{Label: LabelNormal, Score: 1 - nsfw},
	}, nil
}

// LikelihoodScore maps a SafeSearch likelihood bucket onto a score in [0,1].
func LikelihoodScore(l visionpb.Likelihood) float64 {
	switch l {
	case visionpb.Likelihood_VERY_UNLIKELY:
		return 0.05
	case visionpb.Likelihood_UNLIKELY:
		return 0.2
	case visionpb.Likelihood_POSSIBLE:
		return 0.5
	case visionpb.Likelihood_LIKELY:
		return 0.8
	case visionpb.Likelihood_VERY_LIKELY:
		return 0.95
	default:
		return 0
	}
}

// ExtractText returns the full document text. Vision has no output length
// control, so maxLength is left to the caller.
func (c *Client) ExtractText(ctx context.Context, img *ingest.Image, maxLength int) (string, error) {
	resp, err := c.annotateOne(ctx, "ExtractText", img, visionpb.Feature_DOCUMENT_TEXT_DETECTION)
	if err != nil {
		return "", err
	}
	return resp.GetFullTextAnnotation().GetText(), nil
}

// ReadLines rebuilds text lines from the word hierarchy of the full text
// annotation, splitting on line-ending breaks.
func (c *Client) ReadLines(ctx context.Context, img *ingest.Image) ([]model.OCRLine, error) {
	resp, err := c.annotateOne(ctx, "ReadLines", img, visionpb.Feature_DOCUMENT_TEXT_DETECTION)
	if err != nil {
		return nil, err
	}
	return linesFromAnnotation(resp.GetFullTextAnnotation()), nil
}

type lineBuilder struct {
	text       strings.Builder
	confidence float64
	words      int
	minX, minY float64
	maxX, maxY float64
}

func (b *lineBuilder) addWord(word *visionpb.Word) {
	if b.words == 0 {
		b.minX, b.minY = math.Inf(1), math.Inf(1)
		b.maxX, b.maxY = math.Inf(-1), math.Inf(-1)
	}
	for _, v := range word.GetBoundingBox().GetVertices() {
		x, y := float64(v.GetX()), float64(v.GetY())
		b.minX, b.maxX = math.Min(b.minX, x), math.Max(b.maxX, x)
		b.minY, b.maxY = math.Min(b.minY, y), math.Max(b.maxY, y)
	}
	b.confidence += float64(word.GetConfidence())
	b.words++
}

func (b *lineBuilder) line() model.OCRLine {
	return model.OCRLine{
		Text:       strings.TrimSpace(b.text.String()),
		Confidence: b.confidence / float64(b.words),
		Quad: [4]model.Point{
			{X: b.minX, Y: b.minY},
			{X: b.maxX, Y: b.minY},
			{X: b.maxX, Y: b.maxY},
			{X: b.minX, Y: b.maxY},
		},
	}
}

func linesFromAnnotation(annotation *visionpb.TextAnnotation) []model.OCRLine {
	var lines []model.OCRLine
	current := &lineBuilder{}

	flush := func() {
		if current.words > 0 && strings.TrimSpace(current.text.String()) != "" {
			lines = append(lines, current.line())
		}
		current = &lineBuilder{}
	}

	for _, page := range annotation.GetPages() {
		for _, block := range page.GetBlocks() {
			for _, paragraph := range block.GetParagraphs() {
				for _, word := range paragraph.GetWords() {
					current.addWord(word)
					for _, symbol := range word.GetSymbols() {
						current.text.WriteString(symbol.GetText())
						switch symbol.GetProperty().GetDetectedBreak().GetType() {
						case visionpb.TextAnnotation_DetectedBreak_SPACE,
							visionpb.TextAnnotation_DetectedBreak_SURE_SPACE:
							current.text.WriteByte(' ')
						case visionpb.TextAnnotation_DetectedBreak_EOL_SURE_SPACE,
							visionpb.TextAnnotation_DetectedBreak_LINE_BREAK:
							flush()
						}
					}
				}
				flush()
			}
		}
	}
	return lines
}

// DetectCard returns the largest localized object that passes the score
// and label filters, converted to pixel coordinates.
func (c *Client) DetectCard(ctx context.Context, img *ingest.Image) (*model.Detection, error) {
	resp, err := c.annotateOne(ctx, "DetectCard", img, visionpb.Feature_OBJECT_LOCALIZATION)
	if err != nil {
		return nil, err
	}

	var best *model.Detection
	bestArea := 0
	for _, obj := range resp.GetLocalizedObjectAnnotations() {
		score := float64(obj.GetScore())
		if score < c.config.MinDetectionScore {
			continue
		}
		if len(c.labels) > 0 && !c.labels[strings.ToLower(obj.GetName())] {
			continue
		}

		box, ok := pixelBox(obj.GetBoundingPoly(), img.Width, img.Height)
		if !ok {
			continue
		}
		if area := (box[2] - box[0]) * (box[3] - box[1]); area > bestArea {
			bestArea = area
			best = &model.Detection{BBox: box, Confidence: score, Label: obj.GetName()}
		}
	}

	if best != nil {
		c.log.Debug().
			Str("label", best.Label).
			Float64("confidence", best.Confidence).
			Ints("bbox", best.BBox[:]).
			Msg("Card candidate selected")
	}
	return best, nil
}

// pixelBox converts a normalized bounding polygon into a clamped pixel box.
func pixelBox(poly *visionpb.BoundingPoly, width, height int) (model.BBox, bool) {
	vertices := poly.GetNormalizedVertices()
	if len(vertices) == 0 {
		return model.BBox{}, false
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, v := range vertices {
		x, y := float64(v.GetX()), float64(v.GetY())
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}

	box := model.BBox{
		clamp(int(math.Round(minX*float64(width))), width),
		clamp(int(math.Round(minY*float64(height))), height),
		clamp(int(math.Round(maxX*float64(width))), width),
		clamp(int(math.Round(maxY*float64(height))), height),
	}
	if box[2] <= box[0] || box[3] <= box[1] {
		return model.BBox{}, false
	}
	return box, true
}

func clamp(v, limit int) int {
	if v < 0 {
		return 0
	}
	if v > limit {
		return limit
	}
	return v
}
