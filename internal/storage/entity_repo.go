package storage

import (
	"context"
	"fmt"

	"scancorpus/internal/models"
)

type EntityRepo struct {
	db *DB
}

func NewEntityRepo(db *DB) *EntityRepo {
	return &EntityRepo{db: db}
}

func (r *EntityRepo) InsertEntities(ctx context.Context, entities []models.Entity) error {
	if len(entities) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin insert entities tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertEntities(ctx, tx, entities); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit insert entities tx: %w", err)
	}
	return nil
}

func insertEntities(ctx context.Context, ex execer, entities []models.Entity) error {
	for _, e := range entities {
		var bx, by, bw, bh any
		if e.BBox != nil {
			bx, by, bw, bh = e.BBox.X, e.BBox.Y, e.BBox.Width, e.BBox.Height
		}
		_, err := ex.Exec(ctx, `
INSERT INTO entities (entity_id, ocr_id, document_id, entity_type, entity_value, normalized_value,
	bbox_x, bbox_y, bbox_width, bbox_height, confidence)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`, e.EntityID, e.OCRID, e.DocumentID, e.EntityType, e.EntityValue, e.NormalizedValue, bx, by, bw, bh, e.Confidence)
		if err != nil {
			return fmt.Errorf("insert entity %s: %w", e.EntityID, err)
		}
	}
	return nil
}

// SearchByTypeAndValue implements the entity_search mode: entity_type is an
// exact match, entity_value is matched case-insensitively against either
// the raw or normalized value, mirroring original_source's
// Entity.entity_value.ilike(...) OR Entity.normalized_value.ilike(...).
func (r *EntityRepo) SearchByTypeAndValue(ctx context.Context, entityType, value string, limit int) ([]models.Entity, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Pool.Query(ctx, `
SELECT entity_id, ocr_id, document_id, entity_type, entity_value, normalized_value,
	bbox_x, bbox_y, bbox_width, bbox_height, confidence
FROM entities
WHERE entity_type = $1 AND (entity_value ILIKE '%' || $2 || '%' OR normalized_value ILIKE '%' || $2 || '%')
LIMIT $3`, entityType, value, limit)
	if err != nil {
		return nil, fmt.Errorf("search entities: %w", err)
	}
	defer rows.Close()
	return scanEntities(rows)
}

func (r *EntityRepo) ListByOCRID(ctx context.Context, ocrID string) ([]models.Entity, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT entity_id, ocr_id, document_id, entity_type, entity_value, normalized_value,
	bbox_x, bbox_y, bbox_width, bbox_height, confidence
FROM entities WHERE ocr_id = $1`, ocrID)
	if err != nil {
		return nil, fmt.Errorf("list entities for ocr %s: %w", ocrID, err)
	}
	defer rows.Close()
	return scanEntities(rows)
}

type entityRowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanEntities(rows entityRowScanner) ([]models.Entity, error) {
	var out []models.Entity
	for rows.Next() {
		var e models.Entity
		var bx, by, bw, bh *float64
		if err := rows.Scan(&e.EntityID, &e.OCRID, &e.DocumentID, &e.EntityType, &e.EntityValue, &e.NormalizedValue,
			&bx, &by, &bw, &bh, &e.Confidence); err != nil {
			return nil, fmt.Errorf("scan entity row: %w", err)
		}
		if bx != nil && by != nil && bw != nil && bh != nil {
			e.BBox = &models.BBox{X: *bx, Y: *by, Width: *bw, Height: *bh}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
