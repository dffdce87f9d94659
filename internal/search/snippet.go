package search

import "strings"

// Snippet reproduces original_source/search/searcher.py's _create_snippet:
// find the query (or, failing that, its first word) in the text, take up to
// contextChars on either side trimmed back to a word boundary, and
// prefix/suffix with "..." when the snippet doesn't start/end at the text
// boundary. Short text is returned untouched — there's nothing to trim.
func Snippet(text, query string, contextChars int) string {
	if len(text) < 160 {
		return text
	}
	if contextChars <= 0 || contextChars > 80 {
		contextChars = 80
	}
	queryLower := strings.ToLower(query)
	textLower := strings.ToLower(text)

	pos := strings.Index(textLower, queryLower)
	matchLen := len(query)
	if pos == -1 {
		matchLen = 0
		for _, word := range strings.Fields(queryLower) {
			if p := strings.Index(textLower, word); p != -1 {
				pos = p
				matchLen = len(word)
				break
			}
		}
	}

	if pos == -1 {
		return text[:160] + "..."
	}

	start := pos - contextChars
	if start < 0 {
		start = 0
	} else if sp := strings.IndexByte(text[start:pos], ' '); sp != -1 {
		start += sp + 1
	}

	end := pos + matchLen + contextChars
	if end > len(text) {
		end = len(text)
	} else if sp := strings.LastIndexByte(text[pos+matchLen:end], ' '); sp != -1 {
		end = pos + matchLen + sp
	}

	snippet := text[start:end]
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(text) {
		snippet = snippet + "..."
	}
	return snippet
}
