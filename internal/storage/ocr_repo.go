package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"scancorpus/internal/models"
	"scancorpus/internal/vector"
)

type OCRRepo struct {
	db *DB
}

func NewOCRRepo(db *DB) *OCRRepo {
	return &OCRRepo{db: db}
}

// execer is the slice of pgxpool.Pool/pgx.Tx that replaceOCRText,
// insertEntities, and upsertSearchIndex need, so the same write logic runs
// standalone (its own transaction) or as one step of a caller-owned
// transaction (OCRResultWriter.Commit).
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ReplaceOCRText deletes any prior ocr_texts row for this page (cascading
// to its entities and search_index row) and inserts the fresh one, all in
// one transaction. Re-running OCR on a page is a full replace, never a
// partial merge, per spec.md's re-processing invariant.
func (r *OCRRepo) ReplaceOCRText(ctx context.Context, o models.OCRText, embedding []float32) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace ocr text tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := replaceOCRText(ctx, tx, o, embedding); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit replace ocr text tx: %w", err)
	}
	return nil
}

func replaceOCRText(ctx context.Context, ex execer, o models.OCRText, embedding []float32) error {
	boxes, err := json.Marshal(o.WordBoxes)
	if err != nil {
		return fmt.Errorf("marshal word boxes: %w", err)
	}

	if _, err := ex.Exec(ctx, `DELETE FROM ocr_texts WHERE page_id = $1`, o.PageID); err != nil {
		return fmt.Errorf("delete prior ocr text for page %s: %w", o.PageID, err)
	}

	if len(embedding) > 0 {
		_, err = ex.Exec(ctx, `
INSERT INTO ocr_texts (ocr_id, page_id, document_id, raw_text, normalized_text, word_boxes,
	bbox_x, bbox_y, bbox_width, bbox_height, page_confidence, engine, embedding_dim, embedding, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14::vector,$15)
`, o.OCRID, o.PageID, o.DocumentID, o.RawText, o.NormalizedText, boxes,
			o.BBoxX, o.BBoxY, o.BBoxWidth, o.BBoxHeight, o.PageConfidence, o.Engine, len(embedding), vector.ToLiteral(embedding), o.CreatedAt)
	} else {
		_, err = ex.Exec(ctx, `
INSERT INTO ocr_texts (ocr_id, page_id, document_id, raw_text, normalized_text, word_boxes,
	bbox_x, bbox_y, bbox_width, bbox_height, page_confidence, engine, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`, o.OCRID, o.PageID, o.DocumentID, o.RawText, o.NormalizedText, boxes,
			o.BBoxX, o.BBoxY, o.BBoxWidth, o.BBoxHeight, o.PageConfidence, o.Engine, o.CreatedAt)
	}
	if err != nil {
		return fmt.Errorf("insert ocr text for page %s: %w", o.PageID, err)
	}
	return nil
}

func (r *OCRRepo) GetByPageID(ctx context.Context, pageID string) (models.OCRText, bool, error) {
	row := r.db.Pool.QueryRow(ctx, `
SELECT ocr_id, page_id, document_id, raw_text, normalized_text, word_boxes,
	bbox_x, bbox_y, bbox_width, bbox_height, page_confidence, engine, created_at
FROM ocr_texts WHERE page_id = $1`, pageID)
	o, err := scanOCRText(row)
	if err != nil {
		if isNoRows(err) {
			return models.OCRText{}, false, nil
		}
		return models.OCRText{}, false, fmt.Errorf("get ocr text for page %s: %w", pageID, err)
	}
	return o, true, nil
}

func (r *OCRRepo) GetByID(ctx context.Context, ocrID string) (models.OCRText, bool, error) {
	row := r.db.Pool.QueryRow(ctx, `
SELECT ocr_id, page_id, document_id, raw_text, normalized_text, word_boxes,
	bbox_x, bbox_y, bbox_width, bbox_height, page_confidence, engine, created_at
FROM ocr_texts WHERE ocr_id = $1`, ocrID)
	o, err := scanOCRText(row)
	if err != nil {
		if isNoRows(err) {
			return models.OCRText{}, false, nil
		}
		return models.OCRText{}, false, fmt.Errorf("get ocr text %s: %w", ocrID, err)
	}
	return o, true, nil
}

func scanOCRText(row rowScanner) (models.OCRText, error) {
	var o models.OCRText
	var boxes []byte
	if err := row.Scan(&o.OCRID, &o.PageID, &o.DocumentID, &o.RawText, &o.NormalizedText, &boxes,
		&o.BBoxX, &o.BBoxY, &o.BBoxWidth, &o.BBoxHeight, &o.PageConfidence, &o.Engine, &o.CreatedAt); err != nil {
		return models.OCRText{}, err
	}
	if len(boxes) > 0 {
		_ = json.Unmarshal(boxes, &o.WordBoxes)
	}
	return o, nil
}
