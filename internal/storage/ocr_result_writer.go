package storage

import (
	"context"
	"fmt"

	"scancorpus/internal/models"
)

// OCRResultWriter commits everything one recognized page produces — the OCR
// text, its entities, its search index row, and the page's done flip — in
// a single transaction, so a crash between steps never leaves a page
// marked done without a search index row, or vice versa.
type OCRResultWriter struct {
	db *DB
}

func NewOCRResultWriter(db *DB) *OCRResultWriter {
	return &OCRResultWriter{db: db}
}

func (w *OCRResultWriter) Commit(ctx context.Context, r models.OCRResult) error {
	tx, err := w.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin commit ocr result tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := replaceOCRText(ctx, tx, r.OCRText, r.Embedding); err != nil {
		return err
	}
	if len(r.Entities) > 0 {
		if err := insertEntities(ctx, tx, r.Entities); err != nil {
			return err
		}
	}
	if err := upsertSearchIndex(ctx, tx, r.Index); err != nil {
		return err
	}
	if err := markPageDone(ctx, tx, r.PageID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit ocr result tx for page %s: %w", r.PageID, err)
	}
	return nil
}
