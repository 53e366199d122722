package documentai

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"cloud.google.com/go/documentai/apiv1/documentaipb"

	"aiservices/internal/apperr"
	"aiservices/internal/ingest"
)

func testDocument() *documentaipb.Document {
	text := "NIK : 3171234567890123\nNama : BUDI\n"
	return &documentaipb.Document{
		Text: text,
		Pages: []*documentaipb.Document_Page{{
			Dimension: &documentaipb.Document_Page_Dimension{Width: 400, Height: 200},
			Lines: []*documentaipb.Document_Page_Line{
				{Layout: layout(0, 23, 0.95, 0.1, 0.1, 0.9, 0.2)},
				{Layout: layout(23, 35, 0.85, 0.1, 0.3, 0.5, 0.4)},
				{Layout: layout(35, 35, 0.5, 0, 0, 0, 0)},
			},
		}},
	}
}

func layout(start, end int64, conf, x1, y1, x2, y2 float32) *documentaipb.Document_Page_Layout {
	return &documentaipb.Document_Page_Layout{
		TextAnchor: &documentaipb.Document_TextAnchor{
			TextSegments: []*documentaipb.Document_TextAnchor_TextSegment{{StartIndex: start, EndIndex: end}},
		},
		Confidence: conf,
		BoundingPoly: &documentaipb.BoundingPoly{NormalizedVertices: []*documentaipb.NormalizedVertex{
			{X: x1, Y: y1}, {X: x2, Y: y1}, {X: x2, Y: y2}, {X: x1, Y: y2},
		}},
	}
}

func TestReadLines(t *testing.T) {
	var gotReq *documentaipb.ProcessRequest
	r := newReader(func(ctx context.Context, req *documentaipb.ProcessRequest) (*documentaipb.ProcessResponse, error) {
		gotReq = req
		return &documentaipb.ProcessResponse{Document: testDocument()}, nil
	}, Config{ProjectID: "p", Location: "eu", ProcessorID: "ocr1", Timeout: 5e9})

	img := &ingest.Image{Data: []byte("x"), Format: "jpeg", Width: 400, Height: 200}
	lines, err := r.ReadLines(context.Background(), img)
	if err != nil {
		t.Fatalf("ReadLines() error = %v", err)
	}

	if gotReq.GetName() != "projects/p/locations/eu/processors/ocr1" {
		t.Errorf("processor name = %q", gotReq.GetName())
	}
	if gotReq.GetRawDocument().GetMimeType() != "image/jpeg" {
		t.Errorf("mime type = %q", gotReq.GetRawDocument().GetMimeType())
	}

	if len(lines) != 2 {
		t.Fatalf("ReadLines() returned %d lines, want 2", len(lines))
	}
	if lines[0].Text != "NIK : 3171234567890123" || lines[1].Text != "Nama : BUDI" {
		t.Errorf("lines = %q, %q", lines[0].Text, lines[1].Text)
	}
	if q := lines[0].Quad; q[0].X < 39.9 || q[0].X > 40.1 || q[2].Y < 39.9 || q[2].Y > 40.1 {
		t.Errorf("line 0 quad = %+v, want pixel coordinates", q)
	}
}

func TestProcessorNameWithVersion(t *testing.T) {
	r := newReader(nil, Config{ProjectID: "p", Location: "us", ProcessorID: "x", ProcessorVersion: "v2"})
	if got := r.processorName(); got != "projects/p/locations/us/processors/x/processorVersions/v2" {
		t.Errorf("processorName() = %q", got)
	}
}

func TestProcessingErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"permission", errors.New("rpc error: code = PermissionDenied"), http.StatusServiceUnavailable},
		{"missing processor", errors.New("rpc error: code = NotFound"), http.StatusServiceUnavailable},
		{"bad document", errors.New("rpc error: code = InvalidArgument"), http.StatusInternalServerError},
		{"other", errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newReader(func(context.Context, *documentaipb.ProcessRequest) (*documentaipb.ProcessResponse, error) {
				return nil, tt.err
			}, Config{ProjectID: "p", Location: "us", ProcessorID: "x", Timeout: 5e9})

			_, err := r.ExtractText(context.Background(), &ingest.Image{Format: "png"}, 10)
			if got := apperr.Status(err); got != tt.status {
				t.Errorf("status = %d, want %d (err %v)", got, tt.status, err)
			}
		})
	}
}
