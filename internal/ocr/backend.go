// Package ocr recognizes text (with per-word bounding boxes) from a single
// rasterized page image, across multiple pluggable backends. Backend is
// the same shape as LitFlow's providers.EmbeddingProvider/LLMProvider
// interfaces: one narrow method per concrete capability, selected at
// startup by config and composed behind a single coordinator.
package ocr

import (
	"context"

	"scancorpus/internal/models"
)

// Result is one backend's recognition output for a single page image.
type Result struct {
	Text       string
	WordBoxes  []models.WordBox
	Confidence float64
}

// Backend recognizes text in the image found at imagePath.
type Backend interface {
	Name() string
	Recognize(ctx context.Context, imagePath string, languages []string) (Result, error)
}
