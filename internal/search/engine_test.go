package search

import (
	"context"
	"testing"

	"scancorpus/internal/config"
	"scancorpus/internal/models"
)

type fakeOCR struct {
	byID map[string]models.OCRText
}

func (f *fakeOCR) GetByID(ctx context.Context, ocrID string) (models.OCRText, bool, error) {
	o, ok := f.byID[ocrID]
	return o, ok, nil
}

type fakePages struct {
	byID map[string]models.ImagePage
}

func (f *fakePages) GetByID(ctx context.Context, pageID string) (models.ImagePage, bool, error) {
	p, ok := f.byID[pageID]
	return p, ok, nil
}

type fakeIndex struct {
	keyword []models.SearchIndex
	phrase  []models.SearchIndex
	all     []models.SearchIndex
}

func (f *fakeIndex) KeywordCandidates(ctx context.Context, tokens []string, limit int) ([]models.SearchIndex, error) {
	return f.keyword, nil
}
func (f *fakeIndex) PhraseCandidates(ctx context.Context, phraseLower string, limit int) ([]models.SearchIndex, error) {
	return f.phrase, nil
}
func (f *fakeIndex) AllForFuzzy(ctx context.Context, maxScan int) ([]models.SearchIndex, error) {
	return f.all, nil
}

type fakeEntities struct {
	results []models.Entity
}

func (f *fakeEntities) SearchByTypeAndValue(ctx context.Context, entityType, value string, limit int) ([]models.Entity, error) {
	return f.results, nil
}

func newTestEngine(idx *fakeIndex, ocr *fakeOCR, pages *fakePages, ents *fakeEntities, cfg config.Config) *Engine {
	return NewEngine(cfg, idx, ocr, pages, ents, nil, nil)
}

func TestEngineKeywordHydratesCandidates(t *testing.T) {
	ocr := &fakeOCR{byID: map[string]models.OCRText{
		"ocr-1": {OCRID: "ocr-1", DocumentID: "doc-1", PageID: "page-1", NormalizedText: "Agent Smith filed the report"},
	}}
	pages := &fakePages{byID: map[string]models.ImagePage{
		"page-1": {PageID: "page-1", PageNumber: 3, ImagePath: "pages/page-1.png"},
	}}
	idx := &fakeIndex{keyword: []models.SearchIndex{{OCRID: "ocr-1"}}}
	e := newTestEngine(idx, ocr, pages, &fakeEntities{}, config.Config{SnippetChars: 20})

	hits, err := e.Keyword(context.Background(), "smith", 10)
	if err != nil {
		t.Fatalf("Keyword: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if hits[0].PageNumber != 3 || hits[0].ImagePath != "pages/page-1.png" {
		t.Fatalf("expected hit hydrated with page info, got %+v", hits[0])
	}
}

func TestEngineKeywordEmptyQueryReturnsNil(t *testing.T) {
	e := newTestEngine(&fakeIndex{}, &fakeOCR{}, &fakePages{}, &fakeEntities{}, config.Config{})
	hits, err := e.Keyword(context.Background(), "   ", 10)
	if err != nil {
		t.Fatalf("Keyword: %v", err)
	}
	if hits != nil {
		t.Fatalf("expected nil hits for an empty query, got %+v", hits)
	}
}

func TestEngineFuzzyFiltersByThreshold(t *testing.T) {
	ocr := &fakeOCR{byID: map[string]models.OCRText{
		"ocr-close": {OCRID: "ocr-close", NormalizedText: "epstein files regarding the case"},
		"ocr-far":   {OCRID: "ocr-far", NormalizedText: "completely unrelated budget report text"},
	}}
	idx := &fakeIndex{all: []models.SearchIndex{
		{OCRID: "ocr-close", SearchableText: "epstein files regarding the case", Tokens: []string{"epstein", "files", "regarding", "the", "case"}},
		{OCRID: "ocr-far", SearchableText: "completely unrelated budget report text", Tokens: []string{"completely", "unrelated", "budget", "report", "text"}},
	}}
	e := newTestEngine(idx, ocr, &fakePages{byID: map[string]models.ImagePage{}}, &fakeEntities{}, config.Config{FuzzyThreshold: 0.5})

	hits, err := e.Fuzzy(context.Background(), "epstein", 0, 10)
	if err != nil {
		t.Fatalf("Fuzzy: %v", err)
	}
	if len(hits) != 1 || hits[0].OCRID != "ocr-close" {
		t.Fatalf("expected only the close match to survive threshold+prefilter, got %+v", hits)
	}
}

func TestEngineEntityCarriesEntityFieldsOntoHit(t *testing.T) {
	ocr := &fakeOCR{byID: map[string]models.OCRText{
		"ocr-1": {OCRID: "ocr-1", NormalizedText: "contact jane@example.com for details"},
	}}
	ents := &fakeEntities{results: []models.Entity{
		{OCRID: "ocr-1", EntityType: "email", EntityValue: "jane@example.com", Confidence: 0.9},
	}}
	e := newTestEngine(&fakeIndex{}, ocr, &fakePages{byID: map[string]models.ImagePage{}}, ents, config.Config{})

	hits, err := e.Entity(context.Background(), "email", "jane@example.com", 10)
	if err != nil {
		t.Fatalf("Entity: %v", err)
	}
	if len(hits) != 1 || hits[0].EntityType != "email" || hits[0].EntityValue != "jane@example.com" {
		t.Fatalf("expected entity fields carried onto hit, got %+v", hits)
	}
}

func TestEngineSemanticReturnsCapabilityDisabledWhenNotConfigured(t *testing.T) {
	e := newTestEngine(&fakeIndex{}, &fakeOCR{}, &fakePages{}, &fakeEntities{}, config.Config{EnableSemanticSearch: false})
	if _, err := e.Semantic(context.Background(), "query", 10); err == nil {
		t.Fatalf("expected an error when semantic search is disabled")
	}
}
