package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"scancorpus/internal/models"
)

type DocumentRepo struct {
	db *DB
}

func NewDocumentRepo(db *DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

// UpsertDocument inserts a document or, if document_id already exists
// (the content hash collided with a prior fetch), updates its metadata.
// document_id is content-derived, so a conflict here means "we already
// have these exact bytes" rather than a real write race.
func (r *DocumentRepo) UpsertDocument(ctx context.Context, d models.Document) error {
	meta, err := json.Marshal(d.Metadata)
	if err != nil {
		return fmt.Errorf("marshal document metadata: %w", err)
	}
	_, err = r.db.Pool.Exec(ctx, `
INSERT INTO documents (document_id, source_url, file_name, file_type, file_size, page_count, metadata, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (document_id) DO UPDATE SET
	source_url = EXCLUDED.source_url,
	file_name = EXCLUDED.file_name,
	file_type = EXCLUDED.file_type,
	file_size = EXCLUDED.file_size,
	metadata = EXCLUDED.metadata
`, d.DocumentID, d.SourceURL, d.FileName, d.FileType, d.FileSize, d.PageCount, meta, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert document %s: %w", d.DocumentID, err)
	}
	return nil
}

func (r *DocumentRepo) SetPageCount(ctx context.Context, documentID string, pageCount int) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE documents SET page_count = $2 WHERE document_id = $1`, documentID, pageCount)
	if err != nil {
		return fmt.Errorf("set page count for %s: %w", documentID, err)
	}
	return nil
}

func (r *DocumentRepo) GetByID(ctx context.Context, documentID string) (models.Document, bool, error) {
	row := r.db.Pool.QueryRow(ctx, `
SELECT document_id, source_url, file_name, file_type, file_size, page_count, metadata, created_at
FROM documents WHERE document_id = $1`, documentID)
	var d models.Document
	var meta []byte
	if err := row.Scan(&d.DocumentID, &d.SourceURL, &d.FileName, &d.FileType, &d.FileSize, &d.PageCount, &meta, &d.CreatedAt); err != nil {
		if isNoRows(err) {
			return models.Document{}, false, nil
		}
		return models.Document{}, false, fmt.Errorf("get document %s: %w", documentID, err)
	}
	if len(meta) > 0 {
		_ = json.Unmarshal(meta, &d.Metadata)
	}
	return d, true, nil
}

func (r *DocumentRepo) ExistsByID(ctx context.Context, documentID string) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM documents WHERE document_id = $1)`, documentID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check document exists %s: %w", documentID, err)
	}
	return exists, nil
}

func (r *DocumentRepo) ExistsBySourceURL(ctx context.Context, sourceURL string) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM documents WHERE source_url = $1)`, sourceURL).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check document exists by source url: %w", err)
	}
	return exists, nil
}
