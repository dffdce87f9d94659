// Package indexer builds the SearchIndex projection of a normalized
// OCRText, grounded on original_source/search/indexer.py's index_ocr_text
// (normalize + tokenize, then a single upsert).
package indexer

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"scancorpus/internal/models"
)

var tokenPattern = regexp.MustCompile(`\b\w+\b`)

// Build derives the searchable_text/tokens pair for one OCRText's
// normalized text: lowercase the text for containment search, and
// tokenize it the same way the fuzzy/keyword query side does so token-set
// comparisons are apples to apples.
func Build(ocrID string, normalizedText string) models.SearchIndex {
	lower := strings.ToLower(normalizedText)
	return models.SearchIndex{
		IndexID:        uuid.NewString(),
		OCRID:          ocrID,
		SearchableText: lower,
		Tokens:         tokenPattern.FindAllString(lower, -1),
	}
}
