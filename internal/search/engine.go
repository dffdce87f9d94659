// Package search implements the five query modes spec.md §4.8 describes:
// keyword, phrase, fuzzy, entity, and optional semantic search. Candidate
// generation is pushed into SQL (internal/storage); scoring, tie-breaking,
// and snippet extraction happen here in Go — the same split
// original_source/search/searcher.py uses (SQLAlchemy .contains()/.ilike()
// for candidates, Python string ops for the rest).
package search

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"scancorpus/internal/config"
	"scancorpus/internal/errtax"
	"scancorpus/internal/models"
	"scancorpus/internal/vector"
)

type ocrReader interface {
	GetByID(ctx context.Context, ocrID string) (models.OCRText, bool, error)
}

type pageReader interface {
	GetByID(ctx context.Context, pageID string) (models.ImagePage, bool, error)
}

type indexReader interface {
	KeywordCandidates(ctx context.Context, tokens []string, limit int) ([]models.SearchIndex, error)
	PhraseCandidates(ctx context.Context, phraseLower string, limit int) ([]models.SearchIndex, error)
	AllForFuzzy(ctx context.Context, maxScan int) ([]models.SearchIndex, error)
}

type entityReader interface {
	SearchByTypeAndValue(ctx context.Context, entityType, value string, limit int) ([]models.Entity, error)
}

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type Engine struct {
	cfg      config.Config
	index    indexReader
	ocr      ocrReader
	pages    pageReader
	entities entityReader
	semantic *vector.Searcher
	embedder Embedder
}

func NewEngine(cfg config.Config, index indexReader, ocr ocrReader, pages pageReader, entities entityReader, semantic *vector.Searcher, embedder Embedder) *Engine {
	return &Engine{cfg: cfg, index: index, ocr: ocr, pages: pages, entities: entities, semantic: semantic, embedder: embedder}
}

// fuzzyPreFilterMinJaccard is deliberately low: it only needs to reject
// documents with essentially no character-level overlap with the query,
// not to approximate the final ratio score.
const fuzzyPreFilterMinJaccard = 0.05

var tokenPattern = regexp.MustCompile(`\b\w+\b`)

func tokenize(s string) []string {
	return tokenPattern.FindAllString(strings.ToLower(s), -1)
}

func (e *Engine) hydrate(ctx context.Context, ocrID, query string) (models.SearchHit, bool, error) {
	o, ok, err := e.ocr.GetByID(ctx, ocrID)
	if err != nil || !ok {
		return models.SearchHit{}, false, err
	}
	return e.buildHit(ctx, o, query), true, nil
}

func (e *Engine) buildHit(ctx context.Context, o models.OCRText, query string) models.SearchHit {
	p, ok, _ := e.pages.GetByID(ctx, o.PageID)
	hit := models.SearchHit{
		OCRID:      o.OCRID,
		DocumentID: o.DocumentID,
		PageNumber: p.PageNumber,
		Snippet:    Snippet(o.NormalizedText, query, e.cfg.SnippetChars),
		FullText:   truncate(o.NormalizedText, 500),
		Confidence: o.PageConfidence,
		WordBoxes:  o.WordBoxes,
		BBox:       models.BBox{X: o.BBoxX, Y: o.BBoxY, Width: o.BBoxWidth, Height: o.BBoxHeight},
	}
	if ok {
		hit.ImagePath = p.ImagePath
	}
	return hit
}

// rankedHit pairs a hydrated OCRText with its score so the full total order
// (score desc, then page_confidence desc, then created_at asc) can be
// applied before any per-hit work (snippet extraction, page lookups) runs.
type rankedHit struct {
	o     models.OCRText
	score float64
}

func sortRanked(hits []rankedHit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		if hits[i].o.PageConfidence != hits[j].o.PageConfidence {
			return hits[i].o.PageConfidence > hits[j].o.PageConfidence
		}
		return hits[i].o.CreatedAt.Before(hits[j].o.CreatedAt)
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Keyword implements keyword_search: AND-match on lowercased query tokens,
// scored by how concentrated each query token is near the page's other
// query-token occurrences. A page must contain every query token at least
// once; KeywordCandidates already guarantees that via tokens @> query.
func (e *Engine) Keyword(ctx context.Context, query string, limit int) ([]models.SearchHit, error) {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return nil, nil
	}
	candidates, err := e.index.KeywordCandidates(ctx, tokens, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	var hits []rankedHit
	for _, c := range candidates {
		o, ok, err := e.ocr.GetByID(ctx, c.OCRID)
		if err != nil {
			return nil, fmt.Errorf("keyword search: %w", err)
		}
		if !ok {
			continue
		}
		hits = append(hits, rankedHit{o: o, score: keywordScore(tokens, c.Tokens)})
	}
	sortRanked(hits)
	if limit <= 0 {
		limit = 50
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}

	out := make([]models.SearchHit, 0, len(hits))
	for _, h := range hits {
		hit := e.buildHit(ctx, h.o, query)
		hit.Score = h.score
		out = append(out, hit)
	}
	return out, nil
}

// keywordScore implements Score = Σ count_in_page/(1+distance_to_nearest_
// other_query_token), summed over the distinct query tokens. Distance is
// measured in token positions within docTokens; a query token with no
// other query token nearby scores as if that distance were 0 (the maximum
// possible contribution), since AND semantics already guarantee every
// query token is present somewhere in the page.
func keywordScore(queryTokens, docTokens []string) float64 {
	unique := make([]string, 0, len(queryTokens))
	seen := make(map[string]bool, len(queryTokens))
	for _, q := range queryTokens {
		if !seen[q] {
			seen[q] = true
			unique = append(unique, q)
		}
	}

	positions := make(map[string][]int)
	for i, t := range docTokens {
		if seen[t] {
			positions[t] = append(positions[t], i)
		}
	}

	score := 0.0
	for _, q := range unique {
		qPos := positions[q]
		if len(qPos) == 0 {
			continue
		}
		minDist := -1
		for _, p := range qPos {
			for other, otherPos := range positions {
				if other == q {
					continue
				}
				for _, op := range otherPos {
					d := p - op
					if d < 0 {
						d = -d
					}
					if minDist == -1 || d < minDist {
						minDist = d
					}
				}
			}
		}
		if minDist == -1 {
			minDist = 0
		}
		score += float64(len(qPos)) / (1 + float64(minDist))
	}
	return score
}

// Phrase implements phrase_search: the query tokens must appear as a
// contiguous run within the page's tokens, in order. PhraseCandidates'
// substring prefilter can admit false positives across token boundaries,
// so contiguity is re-checked here against the real token sequence.
func (e *Engine) Phrase(ctx context.Context, phrase string, limit int) ([]models.SearchHit, error) {
	phraseTokens := tokenize(phrase)
	if len(phraseTokens) == 0 {
		return nil, nil
	}
	candidates, err := e.index.PhraseCandidates(ctx, strings.ToLower(phrase), limit)
	if err != nil {
		return nil, fmt.Errorf("phrase search: %w", err)
	}

	var hits []rankedHit
	for _, c := range candidates {
		occurrences := phraseOccurrences(phraseTokens, c.Tokens)
		if occurrences == 0 {
			continue
		}
		o, ok, err := e.ocr.GetByID(ctx, c.OCRID)
		if err != nil {
			return nil, fmt.Errorf("phrase search: %w", err)
		}
		if !ok {
			continue
		}
		hits = append(hits, rankedHit{o: o, score: float64(occurrences)})
	}
	sortRanked(hits)
	if limit <= 0 {
		limit = 50
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}

	out := make([]models.SearchHit, 0, len(hits))
	for _, h := range hits {
		hit := e.buildHit(ctx, h.o, phrase)
		hit.Score = h.score
		out = append(out, hit)
	}
	return out, nil
}

// phraseOccurrences counts how many positions in docTokens start a
// contiguous run matching phraseTokens exactly, in order.
func phraseOccurrences(phraseTokens, docTokens []string) int {
	if len(phraseTokens) == 0 || len(phraseTokens) > len(docTokens) {
		return 0
	}
	count := 0
	for i := 0; i+len(phraseTokens) <= len(docTokens); i++ {
		match := true
		for j, pt := range phraseTokens {
			if docTokens[i+j] != pt {
				match = false
				break
			}
		}
		if match {
			count++
		}
	}
	return count
}

// Fuzzy implements fuzzy_search: bounded full scan, trigram-Jaccard
// per-token similarity against the query's tokens, requiring at least half
// the query tokens to have a match before a page counts as a hit at all.
func (e *Engine) Fuzzy(ctx context.Context, query string, threshold float64, limit int) ([]models.SearchHit, error) {
	queryTerms := tokenize(query)
	if len(queryTerms) == 0 {
		return nil, nil
	}
	if threshold <= 0 {
		threshold = e.cfg.FuzzyThreshold
	}
	all, err := e.index.AllForFuzzy(ctx, e.cfg.FuzzyMaxScan)
	if err != nil {
		return nil, fmt.Errorf("fuzzy search: %w", err)
	}

	queryTrigrams := TrigramSet(strings.ToLower(query))
	usePreFilter := len([]rune(query)) >= 3

	type scored struct {
		idx   models.SearchIndex
		score float64
	}
	var hits []scored
	for _, idx := range all {
		if len(idx.Tokens) == 0 {
			continue
		}
		// Trigram-Jaccard character-overlap pre-filter: skip the
		// O(terms*tokens) per-token scan for pages that share almost no
		// substrings with the query at all.
		if usePreFilter && TrigramJaccard(queryTrigrams, TrigramSet(strings.ToLower(idx.SearchableText))) < fuzzyPreFilterMinJaccard {
			continue
		}

		matchedTerms := 0
		sum := 0.0
		for _, qt := range queryTerms {
			best := BestTokenTrigramJaccard(qt, idx.Tokens)
			sum += best
			if best >= threshold {
				matchedTerms++
			}
		}
		if float64(matchedTerms) < 0.5*float64(len(queryTerms)) {
			continue
		}
		hits = append(hits, scored{idx: idx, score: sum / float64(len(queryTerms))})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if limit <= 0 {
		limit = 50
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}

	out := make([]models.SearchHit, 0, len(hits))
	for _, h := range hits {
		hit, ok, err := e.hydrate(ctx, h.idx.OCRID, query)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		hit.Score = h.score
		out = append(out, hit)
	}
	return out, nil
}

// Entity implements entity_search: exact entity_type, fuzzy entity_value.
func (e *Engine) Entity(ctx context.Context, entityType, value string, limit int) ([]models.SearchHit, error) {
	ents, err := e.entities.SearchByTypeAndValue(ctx, entityType, value, limit)
	if err != nil {
		return nil, fmt.Errorf("entity search: %w", err)
	}
	out := make([]models.SearchHit, 0, len(ents))
	for _, ent := range ents {
		hit, ok, err := e.hydrate(ctx, ent.OCRID, value)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		hit.EntityType = ent.EntityType
		hit.EntityValue = ent.EntityValue
		hit.Confidence = ent.Confidence
		out = append(out, hit)
	}
	return out, nil
}

// Semantic implements the optional embedding-based search mode. It returns
// errtax.CapabilityDisabled, not an error from the database layer, when no
// embedder is configured — spec.md §9's explicit design note.
func (e *Engine) Semantic(ctx context.Context, query string, limit int) ([]models.SearchHit, error) {
	if !e.cfg.EnableSemanticSearch || e.embedder == nil || e.semantic == nil {
		return nil, errtax.New(errtax.CapabilityDisabled, "semantic search is not configured")
	}
	vecs, err := e.embedder.Embed(ctx, []string{query})
	if err != nil || len(vecs) == 0 {
		return nil, errtax.Wrap(errtax.TransientUpstream, "embed query", err)
	}
	return e.semantic.SemanticSearch(ctx, vecs[0], limit)
}
