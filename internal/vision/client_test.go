package vision

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"cloud.google.com/go/vision/v2/apiv1/visionpb"

	"aiservices/internal/apperr"
	"aiservices/internal/ingest"
)

func fakeAnnotate(resp *visionpb.AnnotateImageResponse, err error) (annotateFunc, *int) {
	calls := 0
	return func(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
		calls++
		if err != nil {
			return nil, err
		}
		return &visionpb.BatchAnnotateImagesResponse{Responses: []*visionpb.AnnotateImageResponse{resp}}, nil
	}, &calls
}

func testImage() *ingest.Image {
	return &ingest.Image{Data: []byte("img"), Format: "png", Width: 200, Height: 100}
}

func TestClassifyMapsLikelihoods(t *testing.T) {
	tests := []struct {
		name  string
		adult visionpb.Likelihood
		racy  visionpb.Likelihood
		want  float64
	}{
		{"very likely adult", visionpb.Likelihood_VERY_LIKELY, visionpb.Likelihood_UNLIKELY, 0.95},
		{"racy wins", visionpb.Likelihood_UNLIKELY, visionpb.Likelihood_LIKELY, 0.8},
		{"possible", visionpb.Likelihood_POSSIBLE, visionpb.Likelihood_VERY_UNLIKELY, 0.5},
		{"unknown", visionpb.Likelihood_UNKNOWN, visionpb.Likelihood_UNKNOWN, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			annotate, _ := fakeAnnotate(&visionpb.AnnotateImageResponse{
				SafeSearchAnnotation: &visionpb.SafeSearchAnnotation{Adult: tt.adult, Racy: tt.racy},
			}, nil)
			c := newClient(annotate, Config{})

			preds, err := c.Classify(context.Background(), testImage())
			if err != nil {
				t.Fatalf("Classify() error = %v", err)
			}
			if len(preds) != 2 || preds[0].Label != LabelNSFW || preds[1].Label != LabelNormal {
				t.Fatalf("Classify() = %+v, want nsfw then normal", preds)
			}
			if preds[0].Score != tt.want {
				t.Errorf("nsfw score = %v, want %v", preds[0].Score, tt.want)
			}
			if diff := preds[0].Score + preds[1].Score - 1; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("scores do not sum to 1: %+v", preds)
			}
		})
	}
}

func TestDetectCardPicksLargestPassingObject(t *testing.T) {
	objects := []*visionpb.LocalizedObjectAnnotation{
		{Name: "Person", Score: 0.9, BoundingPoly: normalizedPoly(0.0, 0.0, 0.9, 0.9)},
		{Name: "Identity document", Score: 0.8, BoundingPoly: normalizedPoly(0.1, 0.2, 0.6, 0.8)},
		{Name: "Identity document", Score: 0.7, BoundingPoly: normalizedPoly(0.7, 0.7, 0.8, 0.8)},
		{Name: "Identity document", Score: 0.1, BoundingPoly: normalizedPoly(0.0, 0.0, 1.0, 1.0)},
	}
	annotate, _ := fakeAnnotate(&visionpb.AnnotateImageResponse{LocalizedObjectAnnotations: objects}, nil)
	c := newClient(annotate, Config{MinDetectionScore: 0.3, ObjectLabels: []string{"identity document"}})

	det, err := c.DetectCard(context.Background(), testImage())
	if err != nil {
		t.Fatalf("DetectCard() error = %v", err)
	}
	if det == nil {
		t.Fatal("DetectCard() = nil, want a detection")
	}
	if want := [4]int{20, 20, 120, 80}; det.BBox != want {
		t.Errorf("BBox = %v, want %v", det.BBox, want)
	}
	if det.Confidence < 0.79 || det.Confidence > 0.81 {
		t.Errorf("Confidence = %v, want 0.8", det.Confidence)
	}
}

func TestDetectCardNoObjects(t *testing.T) {
	annotate, _ := fakeAnnotate(&visionpb.AnnotateImageResponse{}, nil)
	c := newClient(annotate, Config{MinDetectionScore: 0.3})

	det, err := c.DetectCard(context.Background(), testImage())
	if err != nil {
		t.Fatalf("DetectCard() error = %v", err)
	}
	if det != nil {
		t.Errorf("DetectCard() = %+v, want nil", det)
	}
}

func TestReadLinesSplitsOnBreaks(t *testing.T) {
	annotation := &visionpb.TextAnnotation{
		Pages: []*visionpb.Page{{
			Blocks: []*visionpb.Block{{
				Paragraphs: []*visionpb.Paragraph{{
					Words: []*visionpb.Word{
						word("NIK", 0.9, 10, 10, 40, 20, visionpb.TextAnnotation_DetectedBreak_SPACE),
						word(":", 0.8, 45, 10, 50, 20, visionpb.TextAnnotation_DetectedBreak_SPACE),
						word("3171234567890123", 1.0, 55, 10, 200, 20, visionpb.TextAnnotation_DetectedBreak_EOL_SURE_SPACE),
						word("Nama", 0.6, 10, 30, 50, 40, visionpb.TextAnnotation_DetectedBreak_LINE_BREAK),
					},
				}},
			}},
		}},
	}
	annotate, _ := fakeAnnotate(&visionpb.AnnotateImageResponse{FullTextAnnotation: annotation}, nil)
	c := newClient(annotate, Config{})

	lines, err := c.ReadLines(context.Background(), testImage())
	if err != nil {
		t.Fatalf("ReadLines() error = %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("ReadLines() returned %d lines, want 2: %+v", len(lines), lines)
	}
	if lines[0].Text != "NIK : 3171234567890123" {
		t.Errorf("line 0 = %q", lines[0].Text)
	}
	if got := lines[0].Confidence; got < 0.899 || got > 0.901 {
		t.Errorf("line 0 confidence = %v, want 0.9", got)
	}
	if lines[0].Quad[0].X != 10 || lines[0].Quad[2].X != 200 {
		t.Errorf("line 0 quad = %+v", lines[0].Quad)
	}
	if lines[1].Text != "Nama" {
		t.Errorf("line 1 = %q", lines[1].Text)
	}
}

func TestAPIErrorsAreClassified(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"permission", errors.New("rpc error: code = PermissionDenied desc = denied"), http.StatusServiceUnavailable},
		{"quota", errors.New("rpc error: code = ResourceExhausted desc = quota"), http.StatusServiceUnavailable},
		{"other", errors.New("rpc error: code = Internal desc = boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			annotate, _ := fakeAnnotate(nil, tt.err)
			c := newClient(annotate, Config{})

			_, err := c.ExtractText(context.Background(), testImage(), 100)
			if got := apperr.Status(err); got != tt.status {
				t.Errorf("status = %d, want %d (err %v)", got, tt.status, err)
			}
		})
	}
}

func normalizedPoly(x1, y1, x2, y2 float32) *visionpb.BoundingPoly {
	return &visionpb.BoundingPoly{NormalizedVertices: []*visionpb.NormalizedVertex{
		{X: x1, Y: y1}, {X: x2, Y: y1}, {X: x2, Y: y2}, {X: x1, Y: y2},
	}}
}

func word(text string, conf float32, x1, y1, x2, y2 int32, brk visionpb.TextAnnotation_DetectedBreak_BreakType) *visionpb.Word {
	symbols := make([]*visionpb.Symbol, 0, len(text))
	for i, r := range text {
		s := &visionpb.Symbol{Text: string(r)}
		if i == len(text)-1 {
			s.Property = &visionpb.TextAnnotation_TextProperty{
				DetectedBreak: &visionpb.TextAnnotation_DetectedBreak{Type: brk},
			}
		}
		symbols = append(symbols, s)
	}
	return &visionpb.Word{
		Confidence: conf,
		Symbols:    symbols,
		BoundingBox: &visionpb.BoundingPoly{Vertices: []*visionpb.Vertex{
			{X: x1, Y: y1}, {X: x2, Y: y1}, {X: x2, Y: y2}, {X: x1, Y: y2},
		}},
	}
}
