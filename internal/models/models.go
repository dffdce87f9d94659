// Package models holds the persisted shapes shared across the ingestion
// pipeline: documents, their rasterized pages, OCR output, extracted
// entities, and the search index built on top of that output.
package models

import "time"

// WordBox is a single recognized word and its bounding box within a page
// image, in the page image's own pixel coordinate space (not normalized),
// so a stored WordBox can be drawn directly over the original raster
// without knowing the image's dimensions.
type WordBox struct {
	Text       string  `json:"text"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Confidence float64 `json:"confidence"`
}

// Document is a single fetched source file (PDF or raster image).
type Document struct {
	DocumentID string            `json:"document_id"`
	SourceURL  string            `json:"source_url"`
	FileName   string            `json:"file_name"`
	FileType   string            `json:"file_type"`
	FileSize   int64             `json:"file_size"`
	PageCount  int               `json:"page_count"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

const (
	OCRStatePending    = "pending"
	OCRStateInProgress = "in_progress"
	OCRStateDone       = "done"
	OCRStateFailed     = "failed"
)

// ImagePage is one page of a Document, rasterized to an image and tracked
// through the OCR claim/reap lifecycle.
type ImagePage struct {
	PageID        string     `json:"page_id"`
	DocumentID    string     `json:"document_id"`
	PageNumber    int        `json:"page_number"`
	ImagePath     string     `json:"image_path"`
	Width         int        `json:"width"`
	Height        int        `json:"height"`
	OCRState      string     `json:"ocr_state"`
	ClaimedAt     *time.Time `json:"claimed_at,omitempty"`
	Attempts      int        `json:"attempts"`
	FailureReason *string    `json:"failure_reason,omitempty"`
}

// OCRText is the recognized text and word boxes for one ImagePage.
type OCRText struct {
	OCRID          string    `json:"ocr_id"`
	PageID         string    `json:"page_id"`
	DocumentID     string    `json:"document_id"`
	RawText        string    `json:"raw_text"`
	NormalizedText string    `json:"normalized_text"`
	WordBoxes      []WordBox `json:"word_boxes"`
	BBoxX          float64   `json:"bbox_x"`
	BBoxY          float64   `json:"bbox_y"`
	BBoxWidth      float64   `json:"bbox_width"`
	BBoxHeight     float64   `json:"bbox_height"`
	PageConfidence float64   `json:"page_confidence"`
	Engine         string    `json:"engine"`
	CreatedAt      time.Time `json:"created_at"`
}

const (
	EntityTypeEmail = "email"
	EntityTypePhone = "phone"
	EntityTypeDate  = "date"
	EntityTypeName  = "name"
)

// BBox is a nullable bounding box attached to an Entity when the entity's
// text span could be traced back to specific word boxes.
type BBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Entity is a single extracted mention (email, phone, date, or name) with
// an optional normalized form and an optional bounding box.
type Entity struct {
	EntityID        string  `json:"entity_id"`
	OCRID           string  `json:"ocr_id"`
	DocumentID      string  `json:"document_id"`
	EntityType      string  `json:"entity_type"`
	EntityValue     string  `json:"entity_value"`
	NormalizedValue *string `json:"normalized_value,omitempty"`
	BBox            *BBox   `json:"bbox,omitempty"`
	Confidence      float64 `json:"confidence"`
}

// SearchIndex is the tokenized, searchable projection of one OCRText row.
type SearchIndex struct {
	IndexID        string   `json:"index_id"`
	OCRID          string   `json:"ocr_id"`
	SearchableText string   `json:"searchable_text"`
	Tokens         []string `json:"tokens"`
}

// OCRResult bundles everything one recognized page produces — the OCR
// text, its extracted entities, its search index row, and the page it
// belongs to — so internal/storage can commit all of it in a single
// transaction and flip the page to done in the same breath.
type OCRResult struct {
	PageID    string
	OCRText   OCRText
	Embedding []float32
	Entities  []Entity
	Index     SearchIndex
}

// SearchHit is a single result row returned by internal/search, joined
// back against the owning page/document for display.
type SearchHit struct {
	OCRID          string    `json:"ocr_id"`
	DocumentID     string    `json:"document_id"`
	PageNumber     int       `json:"page_number"`
	Snippet        string    `json:"snippet"`
	FullText       string    `json:"full_text"`
	Confidence     float64   `json:"confidence"`
	Score          float64   `json:"score"`
	ImagePath      string    `json:"image_path"`
	BBox           BBox      `json:"bbox"`
	WordBoxes      []WordBox `json:"word_boxes,omitempty"`
	EntityType     string    `json:"entity_type,omitempty"`
	EntityValue    string    `json:"entity_value,omitempty"`
}
