package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"scancorpus/internal/config"
	"scancorpus/internal/entity"
	"scancorpus/internal/indexer"
	"scancorpus/internal/models"
	"scancorpus/internal/normalizer"
)

// pageRepo and resultWriter are the narrow slices of
// internal/storage.{PageRepo,OCRResultWriter} the Coordinator needs, so it
// can be unit tested against fakes without a database.
type pageRepo interface {
	MarkFailed(ctx context.Context, pageID, reason string) error
	Requeue(ctx context.Context, pageID string) error
}

// resultWriter commits one page's full OCR output — text, entities, search
// index row, and the page's done state — atomically. internal/storage's
// implementation runs all four writes in a single transaction so a crash
// mid-persist can never leave the page marked done without its text, or
// leave stale entities/search rows behind from a re-run.
type resultWriter interface {
	Commit(ctx context.Context, r models.OCRResult) error
}

// Coordinator runs one ImagePage through preprocessing, a single Backend
// (composition, not a type switch, per spec.md §9's pluggable-backend
// requirement), normalization, entity extraction, and indexing, then
// persists everything and advances the page's OCR state.
type Coordinator struct {
	cfg     config.Config
	backend Backend
	pre     *Preprocessor
	pages   pageRepo
	writer  resultWriter

	// MaxAttempts is the attempts threshold past which a failed page is
	// marked permanently failed instead of requeued.
	MaxAttempts int
}

func NewCoordinator(cfg config.Config, backend Backend, pages pageRepo, writer resultWriter) *Coordinator {
	maxAttempts := cfg.OCRMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Coordinator{
		cfg:     cfg,
		backend: backend,
		pre:     &Preprocessor{Enabled: cfg.OCRPreprocess, Deskew: cfg.OCRDeskew, Scales: cfg.OCRScales},
		pages:   pages,
		writer:  writer,

		MaxAttempts: maxAttempts,
	}
}

// Process runs OCR for a single claimed page and persists the result. When
// recognition or the commit fails it requeues the page immediately (rather
// than waiting for the TTL reaper) unless the page has reached MaxAttempts,
// in which case it is marked failed with the error text as the reason.
// Errors are not classified: a permanent error is requeued the same way as
// a transient one until MaxAttempts is reached.
func (c *Coordinator) Process(ctx context.Context, page models.ImagePage) error {
	o, err := c.recognize(ctx, page)
	if err != nil {
		if page.Attempts >= c.MaxAttempts {
			_ = c.pages.MarkFailed(ctx, page.PageID, err.Error())
			return fmt.Errorf("page %s permanently failed after %d attempts: %w", page.PageID, page.Attempts, err)
		}
		_ = c.pages.Requeue(ctx, page.PageID)
		return fmt.Errorf("page %s ocr failed, requeued: %w", page.PageID, err)
	}

	var ents []models.Entity
	spans := entity.Detect(c.cfg, o.NormalizedText)
	if len(spans) > 0 {
		ents = make([]models.Entity, 0, len(spans))
		for _, s := range spans {
			ents = append(ents, entity.ToModel(o.OCRID, o.DocumentID, s, o.WordBoxes, o.NormalizedText))
		}
	}

	result := models.OCRResult{
		PageID:   page.PageID,
		OCRText:  o,
		Entities: ents,
		Index:    indexer.Build(o.OCRID, o.NormalizedText),
	}
	if err := c.writer.Commit(ctx, result); err != nil {
		if page.Attempts >= c.MaxAttempts {
			_ = c.pages.MarkFailed(ctx, page.PageID, err.Error())
			return fmt.Errorf("page %s permanently failed persisting ocr result after %d attempts: %w", page.PageID, page.Attempts, err)
		}
		_ = c.pages.Requeue(ctx, page.PageID)
		return fmt.Errorf("persist ocr result for page %s, requeued: %w", page.PageID, err)
	}
	return nil
}

func (c *Coordinator) recognize(ctx context.Context, page models.ImagePage) (models.OCRText, error) {
	srcPath := page.ImagePath
	preppedPath := srcPath
	if c.pre.Enabled {
		dst := preprocessedPath(srcPath)
		p, err := c.pre.Process(srcPath, dst)
		if err != nil {
			return models.OCRText{}, fmt.Errorf("preprocess page %s: %w", page.PageID, err)
		}
		preppedPath = p
		defer func() {
			if preppedPath != srcPath {
				_ = os.Remove(preppedPath)
			}
		}()
	}

	// With more than one configured scale the backend runs once per scale on
	// the same preprocessed image; the image is not resized per scale, so the
	// passes share one pixel space and their boxes are merged as returned.
	var result Result
	if len(c.cfg.OCRScales) > 1 {
		results := make([]Result, 0, len(c.cfg.OCRScales))
		for range c.cfg.OCRScales {
			r, err := c.backend.Recognize(ctx, preppedPath, c.cfg.OCRLanguages)
			if err != nil {
				return models.OCRText{}, err
			}
			results = append(results, r)
		}
		result = MergeMultiScale(results)
	} else {
		r, err := c.backend.Recognize(ctx, preppedPath, c.cfg.OCRLanguages)
		if err != nil {
			return models.OCRText{}, err
		}
		result = r
	}

	normalized := normalizer.Normalize(result.Text)
	bbox := unionBBox(result.WordBoxes)

	return models.OCRText{
		OCRID:          uuid.NewString(),
		PageID:         page.PageID,
		DocumentID:     page.DocumentID,
		RawText:        result.Text,
		NormalizedText: normalized,
		WordBoxes:      result.WordBoxes,
		BBoxX:          bbox.X,
		BBoxY:          bbox.Y,
		BBoxWidth:      bbox.Width,
		BBoxHeight:     bbox.Height,
		PageConfidence: result.Confidence,
		Engine:         c.backend.Name(),
		CreatedAt:      time.Now(),
	}, nil
}

func unionBBox(words []models.WordBox) models.BBox {
	if len(words) == 0 {
		return models.BBox{}
	}
	minX, minY := words[0].X, words[0].Y
	maxX, maxY := words[0].X+words[0].Width, words[0].Y+words[0].Height
	for _, w := range words[1:] {
		if w.X < minX {
			minX = w.X
		}
		if w.Y < minY {
			minY = w.Y
		}
		if w.X+w.Width > maxX {
			maxX = w.X + w.Width
		}
		if w.Y+w.Height > maxY {
			maxY = w.Y + w.Height
		}
	}
	return models.BBox{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

func preprocessedPath(srcPath string) string {
	dir := filepath.Dir(srcPath)
	base := filepath.Base(srcPath)
	return filepath.Join(dir, "prep-"+base)
}
