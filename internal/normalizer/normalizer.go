// Package normalizer cleans raw OCR output into the normalized_text stored
// alongside raw_text. Whitespace collapse and tokenization are grounded on
// original_source/processing/normalizer.py's TextNormalizer; NFKC, the
// soft-hyphen join, and the ligature table are spec.md §4.5 additions with
// no Python counterpart (the original relied on a downstream OCR engine to
// already expand ligatures).
package normalizer

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"scancorpus/internal/util"
)

var (
	whitespacePattern = regexp.MustCompile(`\s+`)
	wordPattern        = regexp.MustCompile(`\b\w+\b`)
)

var ligatures = map[rune]string{
	'ﬀ': "ff",
	'ﬁ': "fi",
	'ﬂ': "fl",
	'ﬃ': "ffi",
	'ﬄ': "ffl",
	'ﬅ': "st",
	'ﬆ': "st",
}

// Normalize applies NFKC normalization, joins a soft-hyphen followed by a
// line break (a hyphenated word split across lines by the rasterizer),
// expands common typographic ligatures, strips control characters, and
// collapses whitespace runs to single spaces.
func Normalize(raw string) string {
	if raw == "" {
		return raw
	}
	s := norm.NFKC.String(raw)
	s = joinSoftHyphenatedLines(s)
	s = expandLigatures(s)
	s = util.SanitizeText(s)
	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func joinSoftHyphenatedLines(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		if runes[i] == '­' {
			j := i + 1
			for j < len(runes) && (runes[j] == ' ' || runes[j] == '\t') {
				j++
			}
			if j < len(runes) && runes[j] == '\n' {
				j++
				for j < len(runes) && (runes[j] == ' ' || runes[j] == '\t') {
					j++
				}
				i = j - 1
				continue
			}
		}
		b.WriteRune(runes[i])
	}
	return b.String()
}

func expandLigatures(s string) string {
	var b strings.Builder
	for _, r := range s {
		if exp, ok := ligatures[r]; ok {
			b.WriteString(exp)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Tokenize mirrors original_source's tokenize(): \b\w+\b on lowercased
// text.
func Tokenize(s string) []string {
	return wordPattern.FindAllString(strings.ToLower(s), -1)
}
