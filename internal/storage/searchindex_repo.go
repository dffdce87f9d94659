package storage

import (
	"context"
	"fmt"

	"scancorpus/internal/models"
)

type SearchIndexRepo struct {
	db *DB
}

func NewSearchIndexRepo(db *DB) *SearchIndexRepo {
	return &SearchIndexRepo{db: db}
}

func (r *SearchIndexRepo) Upsert(ctx context.Context, idx models.SearchIndex) error {
	return upsertSearchIndex(ctx, r.db.Pool, idx)
}

func upsertSearchIndex(ctx context.Context, ex execer, idx models.SearchIndex) error {
	_, err := ex.Exec(ctx, `
INSERT INTO search_index (index_id, ocr_id, searchable_text, tokens)
VALUES ($1,$2,$3,$4)
ON CONFLICT (ocr_id) DO UPDATE SET
	searchable_text = EXCLUDED.searchable_text,
	tokens = EXCLUDED.tokens
`, idx.IndexID, idx.OCRID, idx.SearchableText, idx.Tokens)
	if err != nil {
		return fmt.Errorf("upsert search index for ocr %s: %w", idx.OCRID, err)
	}
	return nil
}

// KeywordCandidates returns rows whose tokens array contains every one of
// the lowercased query tokens — keyword_search is an AND match, not an OR
// match. The array-containment operator pushes that filter into the index
// rather than scanning searchable_text with ILIKE.
func (r *SearchIndexRepo) KeywordCandidates(ctx context.Context, tokens []string, limit int) ([]models.SearchIndex, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Pool.Query(ctx, `
SELECT index_id, ocr_id, searchable_text, tokens
FROM search_index
WHERE tokens @> $1::text[]
LIMIT $2`, tokens, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword candidates: %w", err)
	}
	defer rows.Close()
	return scanSearchIndexRows(rows)
}

// PhraseCandidates narrows to rows whose searchable_text contains the
// lowercased phrase as a substring. This is only a prefilter: it can admit
// false positives across token boundaries, so internal/search re-checks
// contiguity against the tokens array before counting a row as a match.
func (r *SearchIndexRepo) PhraseCandidates(ctx context.Context, phraseLower string, limit int) ([]models.SearchIndex, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Pool.Query(ctx, `
SELECT index_id, ocr_id, searchable_text, tokens
FROM search_index
WHERE searchable_text LIKE '%' || $1 || '%'
LIMIT $2`, phraseLower, limit)
	if err != nil {
		return nil, fmt.Errorf("phrase candidates: %w", err)
	}
	defer rows.Close()
	return scanSearchIndexRows(rows)
}

// AllForFuzzy returns up to maxScan indexed rows, unfiltered, matching
// original_source's bounded "db.query(SearchIndex).limit(5000).all()" scan
// that fuzzy_search scores client-side.
func (r *SearchIndexRepo) AllForFuzzy(ctx context.Context, maxScan int) ([]models.SearchIndex, error) {
	if maxScan <= 0 {
		maxScan = 5000
	}
	rows, err := r.db.Pool.Query(ctx, `SELECT index_id, ocr_id, searchable_text, tokens FROM search_index LIMIT $1`, maxScan)
	if err != nil {
		return nil, fmt.Errorf("fuzzy scan: %w", err)
	}
	defer rows.Close()
	return scanSearchIndexRows(rows)
}

func scanSearchIndexRows(rows pgxRows) ([]models.SearchIndex, error) {
	var out []models.SearchIndex
	for rows.Next() {
		var idx models.SearchIndex
		if err := rows.Scan(&idx.IndexID, &idx.OCRID, &idx.SearchableText, &idx.Tokens); err != nil {
			return nil, fmt.Errorf("scan search index row: %w", err)
		}
		out = append(out, idx)
	}
	return out, rows.Err()
}

type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}
