// Package model defines the contracts between the services and the
// pretrained model backends, plus the load-once handles that own them.
package model

import (
	"context"
	"image"
	"math"

	"aiservices/internal/ingest"
)

// Prediction is one label/score pair reported by a classifier.
type Prediction struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// BBox is a pixel rectangle [x1, y1, x2, y2] with the origin at the top left.
type BBox [4]int

// Rect converts the box to an image.Rectangle.
func (b BBox) Rect() image.Rectangle {
	return image.Rect(b[0], b[1], b[2], b[3])
}

// Detection is a located object and the detector's confidence in it.
type Detection struct {
	BBox       BBox    `json:"bbox"`
	Confidence float64 `json:"confidence"`
	Label      string  `json:"label,omitempty"`
}

// Point is a pixel coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// OCRLine is one recognized line of text and the quadrilateral around it,
// clockwise from the top-left corner.
type OCRLine struct {
	Text       string   `json:"text"`
	Confidence float64  `json:"confidence"`
	Quad       [4]Point `json:"quad"`
}

// Center returns the mean of the four corners.
func (l OCRLine) Center() Point {
	var c Point
	for _, p := range l.Quad {
		c.X += p.X
		c.Y += p.Y
	}
	c.X /= 4
	c.Y /= 4
	return c
}

// Height returns the vertical extent of the quad.
func (l OCRLine) Height() float64 {
	minY, maxY := l.Quad[0].Y, l.Quad[0].Y
	for _, p := range l.Quad[1:] {
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	return maxY - minY
}

// Classifier assigns labels with scores to an image.
type Classifier interface {
	Classify(ctx context.Context, img *ingest.Image) ([]Prediction, error)
}

// TextExtractor turns an image into free text. maxLength bounds the
// generated output where the backend supports it.
type TextExtractor interface {
	ExtractText(ctx context.Context, img *ingest.Image, maxLength int) (string, error)
}

// LineReader returns positioned text lines found in an image.
type LineReader interface {
	ReadLines(ctx context.Context, img *ingest.Image) ([]OCRLine, error)
}

// CardDetector locates an identity card. A nil Detection with a nil error
// means no card was found.
type CardDetector interface {
	DetectCard(ctx context.Context, img *ingest.Image) (*Detection, error)
}

// Round4 rounds v to four decimal places, the precision of every score the
// API reports.
func Round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
