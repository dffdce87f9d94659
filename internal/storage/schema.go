package storage

import (
	"context"
	"fmt"
	"strings"
)

// EnsureSchema creates every table this repo needs, idempotently, the same
// way the teacher repo's ensureKGSchema ran ad-hoc DDL at startup rather
// than shelling out to an external migration tool. Unlike the teacher,
// which called ensureKGSchema lazily per-repo, this runs once from
// cmd/worker/main.go before any repo is used, since every table here is
// needed by every worker loop.
func EnsureSchema(ctx context.Context, db *DB) error {
	// pgvector may not be installed on every deployment; semantic search is
	// an optional capability (errtax.CapabilityDisabled when absent), so a
	// failure here is swallowed rather than aborting startup.
	_, _ = db.Pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`)

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			document_id TEXT PRIMARY KEY,
			source_url TEXT NOT NULL,
			file_name TEXT NOT NULL,
			file_type TEXT NOT NULL,
			file_size BIGINT NOT NULL DEFAULT 0,
			page_count INT NOT NULL DEFAULT 0,
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_source_url
			ON documents (source_url)`,
		`CREATE TABLE IF NOT EXISTS image_pages (
			page_id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES documents(document_id) ON DELETE CASCADE,
			page_number INT NOT NULL,
			image_path TEXT NOT NULL,
			width INT NOT NULL DEFAULT 0,
			height INT NOT NULL DEFAULT 0,
			ocr_state TEXT NOT NULL DEFAULT 'pending'
				CHECK (ocr_state IN ('pending','in_progress','done','failed')),
			claimed_at TIMESTAMPTZ,
			attempts INT NOT NULL DEFAULT 0,
			failure_reason TEXT,
			UNIQUE (document_id, page_number)
		)`,
		`ALTER TABLE image_pages ADD COLUMN IF NOT EXISTS failure_reason TEXT`,
		`CREATE INDEX IF NOT EXISTS idx_image_pages_claim
			ON image_pages (ocr_state, page_id)`,
		`CREATE TABLE IF NOT EXISTS ocr_texts (
			ocr_id TEXT PRIMARY KEY,
			page_id TEXT NOT NULL UNIQUE REFERENCES image_pages(page_id) ON DELETE CASCADE,
			document_id TEXT NOT NULL REFERENCES documents(document_id) ON DELETE CASCADE,
			raw_text TEXT NOT NULL DEFAULT '',
			normalized_text TEXT NOT NULL DEFAULT '',
			word_boxes JSONB NOT NULL DEFAULT '[]'::jsonb,
			bbox_x DOUBLE PRECISION NOT NULL DEFAULT 0,
			bbox_y DOUBLE PRECISION NOT NULL DEFAULT 0,
			bbox_width DOUBLE PRECISION NOT NULL DEFAULT 0,
			bbox_height DOUBLE PRECISION NOT NULL DEFAULT 0,
			page_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			engine TEXT NOT NULL DEFAULT '',
			embedding_dim INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`ALTER TABLE ocr_texts ADD COLUMN IF NOT EXISTS embedding vector`,
		`CREATE INDEX IF NOT EXISTS idx_ocr_texts_document_id
			ON ocr_texts (document_id)`,
		`CREATE TABLE IF NOT EXISTS entities (
			entity_id TEXT PRIMARY KEY,
			ocr_id TEXT NOT NULL REFERENCES ocr_texts(ocr_id) ON DELETE CASCADE,
			document_id TEXT NOT NULL REFERENCES documents(document_id) ON DELETE CASCADE,
			entity_type TEXT NOT NULL
				CHECK (entity_type IN ('email','phone','date','name')),
			entity_value TEXT NOT NULL,
			normalized_value TEXT,
			bbox_x DOUBLE PRECISION,
			bbox_y DOUBLE PRECISION,
			bbox_width DOUBLE PRECISION,
			bbox_height DOUBLE PRECISION,
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entities_type_value
			ON entities (entity_type, entity_value)`,
		`CREATE INDEX IF NOT EXISTS idx_entities_ocr_id
			ON entities (ocr_id)`,
		`CREATE TABLE IF NOT EXISTS search_index (
			index_id TEXT PRIMARY KEY,
			ocr_id TEXT NOT NULL UNIQUE REFERENCES ocr_texts(ocr_id) ON DELETE CASCADE,
			searchable_text TEXT NOT NULL DEFAULT '',
			tokens TEXT[] NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_search_index_tokens
			ON search_index USING GIN (tokens)`,
	}
	for _, s := range stmts {
		if _, err := db.Pool.Exec(ctx, s); err != nil {
			if strings.Contains(s, "ADD COLUMN IF NOT EXISTS embedding vector") {
				// No pgvector extension: semantic search stays disabled,
				// everything else still works.
				continue
			}
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
