package storage

import (
	"context"
	"fmt"
	"time"

	"scancorpus/internal/models"
)

type PageRepo struct {
	db *DB
}

func NewPageRepo(db *DB) *PageRepo {
	return &PageRepo{db: db}
}

// InsertPages writes every page of a freshly split document inside one
// transaction, the same tx-scoped-batch-insert shape the teacher used for
// chunk rows in UpsertChunks.
func (r *PageRepo) InsertPages(ctx context.Context, pages []models.ImagePage) error {
	if len(pages) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin insert pages tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, p := range pages {
		_, err := tx.Exec(ctx, `
INSERT INTO image_pages (page_id, document_id, page_number, image_path, width, height, ocr_state, attempts)
VALUES ($1,$2,$3,$4,$5,$6,$7,0)
ON CONFLICT (document_id, page_number) DO UPDATE SET
	image_path = EXCLUDED.image_path,
	width = EXCLUDED.width,
	height = EXCLUDED.height
`, p.PageID, p.DocumentID, p.PageNumber, p.ImagePath, p.Width, p.Height, models.OCRStatePending)
		if err != nil {
			return fmt.Errorf("insert page %s: %w", p.PageID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit insert pages tx: %w", err)
	}
	return nil
}

func (r *PageRepo) GetByID(ctx context.Context, pageID string) (models.ImagePage, bool, error) {
	row := r.db.Pool.QueryRow(ctx, `
SELECT page_id, document_id, page_number, image_path, width, height, ocr_state, claimed_at, attempts, failure_reason
FROM image_pages WHERE page_id = $1`, pageID)
	p, err := scanImagePage(row)
	if err != nil {
		if isNoRows(err) {
			return models.ImagePage{}, false, nil
		}
		return models.ImagePage{}, false, fmt.Errorf("get page %s: %w", pageID, err)
	}
	return p, true, nil
}

func (r *PageRepo) ListByDocument(ctx context.Context, documentID string) ([]models.ImagePage, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT page_id, document_id, page_number, image_path, width, height, ocr_state, claimed_at, attempts, failure_reason
FROM image_pages WHERE document_id = $1 ORDER BY page_number`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list pages for document %s: %w", documentID, err)
	}
	defer rows.Close()
	var out []models.ImagePage
	for rows.Next() {
		p, err := scanImagePage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan page row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ClaimPending atomically claims up to batchSize pending (or reaped) pages
// for OCR. This is the row-locking claim SQL spec.md §9 prescribes in
// place of an application-level lease: SELECT ... FOR UPDATE SKIP LOCKED
// inside the UPDATE's source query, so concurrent worker processes never
// double-claim the same page.
func (r *PageRepo) ClaimPending(ctx context.Context, batchSize int) ([]models.ImagePage, error) {
	rows, err := r.db.Pool.Query(ctx, `
UPDATE image_pages
SET ocr_state = 'in_progress', claimed_at = now(), attempts = attempts + 1
WHERE page_id IN (
	SELECT page_id FROM image_pages
	WHERE ocr_state = 'pending'
	ORDER BY page_id
	FOR UPDATE SKIP LOCKED
	LIMIT $1
)
RETURNING page_id, document_id, page_number, image_path, width, height, ocr_state, claimed_at, attempts, failure_reason
`, batchSize)
	if err != nil {
		return nil, fmt.Errorf("claim pending pages: %w", err)
	}
	defer rows.Close()
	var out []models.ImagePage
	for rows.Next() {
		p, err := scanImagePage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claimed page: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ReapStaleClaims resets any page that has sat in_progress past ttl back to
// pending, so a worker that died mid-OCR doesn't strand its claim forever.
// Returns the number of pages reaped.
func (r *PageRepo) ReapStaleClaims(ctx context.Context, ttl time.Duration) (int, error) {
	tag, err := r.db.Pool.Exec(ctx, `
UPDATE image_pages
SET ocr_state = 'pending', claimed_at = NULL
WHERE ocr_state = 'in_progress' AND claimed_at < now() - $1::interval
`, fmt.Sprintf("%d seconds", int(ttl.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("reap stale claims: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *PageRepo) MarkDone(ctx context.Context, pageID string) error {
	return markPageDone(ctx, r.db.Pool, pageID)
}

func markPageDone(ctx context.Context, ex execer, pageID string) error {
	_, err := ex.Exec(ctx, `UPDATE image_pages SET ocr_state = 'done', claimed_at = NULL WHERE page_id = $1`, pageID)
	if err != nil {
		return fmt.Errorf("mark page done %s: %w", pageID, err)
	}
	return nil
}

// MarkFailed gives up on a page after it has exhausted its retry budget;
// the caller decides the max-attempts threshold. reason is stored so
// operators can see why a page landed in the failed state without digging
// through logs.
func (r *PageRepo) MarkFailed(ctx context.Context, pageID, reason string) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE image_pages SET ocr_state = 'failed', claimed_at = NULL, failure_reason = $2 WHERE page_id = $1`, pageID, reason)
	if err != nil {
		return fmt.Errorf("mark page failed %s: %w", pageID, err)
	}
	return nil
}

// Requeue puts a page back to pending immediately (e.g. a transient OCR
// backend error the coordinator wants retried on the next poll rather than
// waiting out the full claim TTL).
func (r *PageRepo) Requeue(ctx context.Context, pageID string) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE image_pages SET ocr_state = 'pending', claimed_at = NULL WHERE page_id = $1`, pageID)
	if err != nil {
		return fmt.Errorf("requeue page %s: %w", pageID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanImagePage(row rowScanner) (models.ImagePage, error) {
	var p models.ImagePage
	if err := row.Scan(&p.PageID, &p.DocumentID, &p.PageNumber, &p.ImagePath, &p.Width, &p.Height, &p.OCRState, &p.ClaimedAt, &p.Attempts, &p.FailureReason); err != nil {
		return models.ImagePage{}, err
	}
	return p, nil
}
