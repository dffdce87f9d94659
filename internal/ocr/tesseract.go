package ocr

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"os"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"scancorpus/internal/models"
)

// TesseractBackend runs local OCR via github.com/otiai10/gosseract/v2,
// grounded on wudi-pdfkit/ocr/tesseract/tesseract.go's client usage
// (SetImage, SetLanguage, Text, GetBoundingBoxes(RIL_WORD)).
type TesseractBackend struct {
	clientFactory func() *gosseract.Client
}

func NewTesseractBackend() *TesseractBackend {
	return &TesseractBackend{clientFactory: gosseract.NewClient}
}

func (b *TesseractBackend) Name() string { return "tesseract" }

func (b *TesseractBackend) Recognize(ctx context.Context, imagePath string, languages []string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if _, _, err := dimensionsOf(imagePath); err != nil {
		return Result{}, fmt.Errorf("decode image dimensions: %w", err)
	}

	c := b.clientFactory()
	defer c.Close()

	if err := c.SetImage(imagePath); err != nil {
		return Result{}, fmt.Errorf("set image: %w", err)
	}
	if len(languages) > 0 {
		if err := c.SetLanguage(languages...); err != nil {
			return Result{}, fmt.Errorf("set languages: %w", err)
		}
	}

	text, err := c.Text()
	if err != nil {
		return Result{}, fmt.Errorf("recognize text: %w", err)
	}
	plain := strings.TrimSpace(text)

	words, avgConf := extractWordBoxes(c)
	return Result{Text: plain, WordBoxes: words, Confidence: avgConf}, nil
}

// extractWordBoxes reads gosseract's word-level bounding boxes, keeping
// coordinates in the pixel space of the image tesseract actually scanned
// rather than normalizing them to [0,1] — a stored WordBox draws directly
// over that raster. The page confidence is the mean of each word's
// confidence weighted by its character length, so a handful of short,
// high-confidence tokens (page numbers, initials) can't outweigh a long,
// low-confidence line of body text; a page with no recognized words has a
// confidence of 0.
func extractWordBoxes(c *gosseract.Client) ([]models.WordBox, float64) {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return nil, 0
	}
	words := make([]models.WordBox, 0, len(boxes))
	var weightedSum float64
	var totalWeight float64
	for _, box := range boxes {
		conf := box.Confidence / 100.0
		weight := float64(len([]rune(box.Word)))
		if weight == 0 {
			weight = 1
		}
		weightedSum += conf * weight
		totalWeight += weight
		words = append(words, models.WordBox{
			Text:       box.Word,
			Confidence: conf,
			X:          float64(box.Box.Min.X),
			Y:          float64(box.Box.Min.Y),
			Width:      float64(box.Box.Dx()),
			Height:     float64(box.Box.Dy()),
		})
	}
	if totalWeight == 0 {
		return words, 0
	}
	return words, weightedSum / totalWeight
}

func dimensionsOf(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(bufio.NewReader(f))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
