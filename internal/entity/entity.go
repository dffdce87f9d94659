// Package entity extracts email/phone/date/name mentions from normalized
// OCR text, grounded on original_source/processing/entity_detector.py.
package entity

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"scancorpus/internal/config"
	"scancorpus/internal/models"
)

var (
	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

	phonePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\(\d{3}\)\s*\d{3}[-.\s]?\d{4}\b`),
		regexp.MustCompile(`\b\d{3}[-.\s]\d{3}[-.\s]\d{4}\b`),
		regexp.MustCompile(`\b\+?1?[-.\s]?\d{3}[-.\s]?\d{3}[-.\s]?\d{4}\b`),
	}

	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{2,4}\b`),
		regexp.MustCompile(`(?i)\b(January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},?\s+\d{4}\b`),
		regexp.MustCompile(`(?i)\b\d{1,2}\s+(January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{4}\b`),
		regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`),
	}

	namePattern = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)+\b`)
)

// falsePositiveNames mirrors _is_false_positive_name's stoplist: document
// boilerplate and calendar words that match the capitalized-bigram name
// shape but are never actually a person's name.
var falsePositiveNames = map[string]bool{
	"the": true, "this": true, "that": true, "these": true, "those": true,
	"page": true, "date": true, "time": true, "subject": true, "from": true, "to": true,
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true, "friday": true, "saturday": true, "sunday": true,
	"january": true, "february": true, "march": true, "april": true, "may": true, "june": true,
	"july": true, "august": true, "september": true, "october": true, "november": true, "december": true,
}

type Span struct {
	Start, End int
	Type       string
	Value      string
	Normalized string
}

// Detect finds every entity span in text. ALL-CAPS runs are title-cased
// before the name regex runs, since justice.gov OCR headings/letterhead
// are frequently all-caps and would otherwise flood the name index with
// document headers rather than actual names — the resolved Open Question
// in SPEC_FULL.md §4.6.
func Detect(cfg config.Config, text string) []Span {
	var spans []Span
	if cfg.EnableEmailDetection {
		spans = append(spans, detectEmails(text)...)
	}
	if cfg.EnablePhoneDetection {
		spans = append(spans, detectPhones(text)...)
	}
	if cfg.EnableDateDetection {
		spans = append(spans, detectDates(text)...)
	}
	if cfg.EnableNameDetection {
		spans = append(spans, detectNames(text)...)
	}
	return dedupe(spans)
}

func detectEmails(text string) []Span {
	var out []Span
	for _, loc := range emailPattern.FindAllStringIndex(text, -1) {
		v := text[loc[0]:loc[1]]
		out = append(out, Span{Start: loc[0], End: loc[1], Type: models.EntityTypeEmail, Value: v, Normalized: strings.ToLower(v)})
	}
	return out
}

func detectPhones(text string) []Span {
	var out []Span
	seen := map[[2]int]bool{}
	for _, pat := range phonePatterns {
		for _, loc := range pat.FindAllStringIndex(text, -1) {
			key := [2]int{loc[0], loc[1]}
			if seen[key] {
				continue
			}
			seen[key] = true
			v := text[loc[0]:loc[1]]
			out = append(out, Span{Start: loc[0], End: loc[1], Type: models.EntityTypePhone, Value: v, Normalized: normalizePhone(v)})
		}
	}
	return out
}

func normalizePhone(v string) string {
	var b strings.Builder
	for _, r := range v {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func detectDates(text string) []Span {
	var out []Span
	seen := map[[2]int]bool{}
	for _, pat := range datePatterns {
		for _, loc := range pat.FindAllStringIndex(text, -1) {
			key := [2]int{loc[0], loc[1]}
			if seen[key] {
				continue
			}
			seen[key] = true
			v := text[loc[0]:loc[1]]
			norm, ok := normalizeDate(v)
			if !ok {
				continue
			}
			out = append(out, Span{Start: loc[0], End: loc[1], Type: models.EntityTypeDate, Value: v, Normalized: norm})
		}
	}
	return out
}

var months = map[string]int{
	"january": 1, "february": 2, "march": 3, "april": 4, "may": 5, "june": 6,
	"july": 7, "august": 8, "september": 9, "october": 10, "november": 11, "december": 12,
}

// normalizeDate converts a recognized date span to ISO-8601, rejecting
// years outside a plausible document range (spec.md's year-bounds edge
// case for OCR misreads like "l9" -> "19").
func normalizeDate(v string) (string, bool) {
	v = strings.TrimSpace(v)
	switch {
	case strings.Contains(v, "/"):
		parts := strings.Split(v, "/")
		if len(parts) != 3 {
			return "", false
		}
		mo, err1 := strconv.Atoi(parts[0])
		day, err2 := strconv.Atoi(parts[1])
		yr, err3 := strconv.Atoi(parts[2])
		if err1 != nil || err2 != nil || err3 != nil {
			return "", false
		}
		if yr < 100 {
			if yr < 50 {
				yr += 2000
			} else {
				yr += 1900
			}
		}
		if !validYMD(yr, mo, day) {
			return "", false
		}
		return time.Date(yr, time.Month(mo), day, 0, 0, 0, 0, time.UTC).Format("2006-01-02"), true
	case strings.Contains(v, "-"):
		t, err := time.Parse("2006-01-02", v)
		if err != nil || !validYMD(t.Year(), int(t.Month()), t.Day()) {
			return "", false
		}
		return t.Format("2006-01-02"), true
	default:
		v = strings.ReplaceAll(v, ",", "")
		fields := strings.Fields(v)
		if len(fields) != 3 {
			return "", false
		}
		// Either "Month D YYYY" or "D Month YYYY" — try both orderings
		// since the pattern that matched this span doesn't say which.
		if mo, ok := months[strings.ToLower(fields[0])]; ok {
			day, err1 := strconv.Atoi(fields[1])
			yr, err2 := strconv.Atoi(fields[2])
			if err1 != nil || err2 != nil || !validYMD(yr, mo, day) {
				return "", false
			}
			return time.Date(yr, time.Month(mo), day, 0, 0, 0, 0, time.UTC).Format("2006-01-02"), true
		}
		mo, ok := months[strings.ToLower(fields[1])]
		if !ok {
			return "", false
		}
		day, err1 := strconv.Atoi(fields[0])
		yr, err2 := strconv.Atoi(fields[2])
		if err1 != nil || err2 != nil || !validYMD(yr, mo, day) {
			return "", false
		}
		return time.Date(yr, time.Month(mo), day, 0, 0, 0, 0, time.UTC).Format("2006-01-02"), true
	}
}

func validYMD(y, m, d int) bool {
	return y >= 1900 && y <= 2100 && m >= 1 && m <= 12 && d >= 1 && d <= 31
}

func detectNames(text string) []Span {
	prepared := titleCaseAllCapsRuns(text)
	var out []Span
	for _, loc := range namePattern.FindAllStringIndex(prepared, -1) {
		v := prepared[loc[0]:loc[1]]
		if isFalsePositiveName(v) {
			continue
		}
		out = append(out, Span{Start: loc[0], End: loc[1], Type: models.EntityTypeName, Value: v, Normalized: titleCaseWords(v)})
	}
	return out
}

// titleCaseWords title-cases every word of a matched name span, so a name
// pulled from mixed-case OCR text ("john SMITH") still normalizes to the
// same key ("John Smith") as its title-case original.
func titleCaseWords(v string) string {
	words := strings.Fields(v)
	for i, w := range words {
		words[i] = titleCase(w)
	}
	return strings.Join(words, " ")
}

func isFalsePositiveName(v string) bool {
	for _, w := range strings.Fields(v) {
		if falsePositiveNames[strings.ToLower(w)] {
			return true
		}
	}
	return false
}

// titleCaseAllCapsRuns converts runs of three or more ALL-CAPS words to
// title case so the name regex (which requires Title Case) can match
// names embedded in all-caps headings without also matching on random
// all-caps acronyms elsewhere (those are typically one or two words,
// below the threshold).
func titleCaseAllCapsRuns(text string) string {
	words := strings.Fields(text)
	runStart := -1
	isAllCapsWord := func(w string) bool {
		letters := 0
		for _, r := range w {
			if unicode.IsLetter(r) {
				letters++
				if !unicode.IsUpper(r) {
					return false
				}
			}
		}
		return letters >= 2
	}
	for i := 0; i <= len(words); i++ {
		capsHere := i < len(words) && isAllCapsWord(words[i])
		if capsHere && runStart == -1 {
			runStart = i
		}
		if !capsHere && runStart != -1 {
			if i-runStart >= 3 {
				for j := runStart; j < i; j++ {
					words[j] = titleCase(words[j])
				}
			}
			runStart = -1
		}
	}
	return strings.Join(words, " ")
}

func titleCase(w string) string {
	r := []rune(strings.ToLower(w))
	if len(r) == 0 {
		return w
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// dedupe keeps the first occurrence of each (type, normalized-or-raw-value)
// pair, matching spec.md's per-page dedupe rule.
func dedupe(spans []Span) []Span {
	seen := map[string]bool{}
	out := make([]Span, 0, len(spans))
	for _, s := range spans {
		key := s.Type + "|" + strings.ToLower(valueKey(s))
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

func valueKey(s Span) string {
	if s.Normalized != "" {
		return s.Normalized
	}
	return s.Value
}

// ToModel attaches a bounding box to a Span by finding which word boxes
// overlap its character span, using the same character-offset tracking as
// extract_entities_from_word_boxes: walk words in reading order, track
// each word's [start,end) offset in the reconstructed text, and union the
// bounding boxes of every word whose span intersects the entity's span.
func ToModel(ocrID, documentID string, s Span, wordBoxes []models.WordBox, fullText string) models.Entity {
	e := models.Entity{
		EntityID:    uuid.NewString(),
		OCRID:       ocrID,
		DocumentID:  documentID,
		EntityType:  s.Type,
		EntityValue: s.Value,
		Confidence:  1.0,
	}
	if s.Normalized != "" {
		norm := s.Normalized
		e.NormalizedValue = &norm
	}
	if bb := overlappingBBox(s, wordBoxes, fullText); bb != nil {
		e.BBox = bb
	}
	return e
}

func overlappingBBox(s Span, wordBoxes []models.WordBox, fullText string) *models.BBox {
	if len(wordBoxes) == 0 {
		return nil
	}
	offset := 0
	var minX, minY, maxX, maxY float64
	found := false
	for _, wb := range wordBoxes {
		idx := strings.Index(fullText[offset:], wb.Text)
		start := offset
		if idx >= 0 {
			start = offset + idx
		}
		end := start + len(wb.Text)
		offset = end
		if end <= s.Start || start >= s.End {
			continue
		}
		x2, y2 := wb.X+wb.Width, wb.Y+wb.Height
		if !found {
			minX, minY, maxX, maxY = wb.X, wb.Y, x2, y2
			found = true
			continue
		}
		if wb.X < minX {
			minX = wb.X
		}
		if wb.Y < minY {
			minY = wb.Y
		}
		if x2 > maxX {
			maxX = x2
		}
		if y2 > maxY {
			maxY = y2
		}
	}
	if !found {
		return nil
	}
	return &models.BBox{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}
