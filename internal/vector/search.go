// Package vector is the cosine-distance search over ocr_texts.embedding,
// kept in the same shape as the teacher's internal/vector/search.go
// (pgvector's <=> operator, a string-literal cast to ::vector rather than
// a separate Go vector type) but pointed at ocr_texts instead of chunks.
package vector

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"scancorpus/internal/models"
)

type Queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Searcher struct {
	q Queryer
}

func NewSearcher(q Queryer) *Searcher {
	return &Searcher{q: q}
}

// SemanticSearch ranks ocr_texts rows by cosine distance to queryVec.
// Callers must have already confirmed the embedding column is populated
// (errtax.CapabilityDisabled otherwise) — this issues the query
// unconditionally.
func (s *Searcher) SemanticSearch(ctx context.Context, queryVec []float32, limit int) ([]models.SearchHit, error) {
	if limit <= 0 {
		limit = 50
	}
	lit := ToLiteral(queryVec)
	rows, err := s.q.Query(ctx, `
SELECT o.ocr_id, o.document_id, p.page_number, LEFT(o.normalized_text, 500) AS snippet,
       o.normalized_text, o.page_confidence, 1 - (o.embedding <=> $1::vector) AS score,
       p.image_path
FROM ocr_texts o
JOIN image_pages p ON p.page_id = o.page_id
WHERE o.embedding IS NOT NULL
ORDER BY o.embedding <=> $1::vector
LIMIT $2`, lit, limit)
	if err != nil {
		return nil, fmt.Errorf("query semantic search: %w", err)
	}
	defer rows.Close()

	var out []models.SearchHit
	for rows.Next() {
		var h models.SearchHit
		if err := rows.Scan(&h.OCRID, &h.DocumentID, &h.PageNumber, &h.Snippet, &h.FullText, &h.Confidence, &h.Score, &h.ImagePath); err != nil {
			return nil, fmt.Errorf("scan semantic search row: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func ToLiteral(v []float32) string {
	parts := make([]string, 0, len(v))
	for _, x := range v {
		parts = append(parts, fmt.Sprintf("%f", x))
	}
	return "[" + strings.Join(parts, ",") + "]"
}
