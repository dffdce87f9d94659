package ocr

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"scancorpus/internal/models"
)

// EnsembleBackend runs every configured child backend against the same
// image and merges their word boxes, per spec.md §4.4's merge rule: any
// pair of boxes with IOU >= 0.5 whose text matches case-insensitively
// within edit distance 1 collapses into one box (higher confidence,
// longer text survives); unmatched boxes pass through; a global
// drop-confidence threshold prunes the result.
type EnsembleBackend struct {
	Children       []Backend
	DropConfidence float64
}

func NewEnsembleBackend(children []Backend, dropConfidence float64) *EnsembleBackend {
	return &EnsembleBackend{Children: children, DropConfidence: dropConfidence}
}

func (e *EnsembleBackend) Name() string { return "ensemble" }

func (e *EnsembleBackend) Recognize(ctx context.Context, imagePath string, languages []string) (Result, error) {
	type childResult struct {
		result Result
		err    error
	}
	results := make([]childResult, len(e.Children))
	var wg sync.WaitGroup
	for i, child := range e.Children {
		wg.Add(1)
		go func(i int, child Backend) {
			defer wg.Done()
			r, err := child.Recognize(ctx, imagePath, languages)
			results[i] = childResult{result: r, err: err}
		}(i, child)
	}
	wg.Wait()

	var allWords []models.WordBox
	var texts []string
	var okCount int
	for i, cr := range results {
		if cr.err != nil {
			continue
		}
		okCount++
		texts = append(texts, cr.result.Text)
		allWords = append(allWords, cr.result.WordBoxes...)
		_ = i
	}
	if okCount == 0 {
		return Result{}, fmt.Errorf("all %d ensemble backends failed", len(e.Children))
	}

	merged := mergeWordBoxes(allWords)
	survivors := make([]models.WordBox, 0, len(merged))
	var confSum float64
	for _, wb := range merged {
		if wb.Confidence < e.DropConfidence {
			continue
		}
		survivors = append(survivors, wb)
		confSum += wb.Confidence
	}

	avgConf := 0.0
	if len(survivors) > 0 {
		avgConf = confSum / float64(len(survivors))
	}
	return Result{
		Text:       strings.Join(texts, "\n"),
		WordBoxes:  survivors,
		Confidence: avgConf,
	}, nil
}

// mergeWordBoxes applies the pairwise IOU+edit-distance merge rule across
// every child backend's word boxes combined. It is O(n^2) in the word
// count of a single page, which is small enough (low hundreds) not to
// matter.
func mergeWordBoxes(words []models.WordBox) []models.WordBox {
	merged := make([]bool, len(words))
	var out []models.WordBox
	for i := range words {
		if merged[i] {
			continue
		}
		best := words[i]
		for j := i + 1; j < len(words); j++ {
			if merged[j] {
				continue
			}
			if iou(best, words[j]) >= 0.5 && editDistanceLE1(strings.ToLower(best.Text), strings.ToLower(words[j].Text)) {
				merged[j] = true
				if words[j].Confidence > best.Confidence || len(words[j].Text) > len(best.Text) {
					keepConf := best.Confidence
					if words[j].Confidence > keepConf {
						keepConf = words[j].Confidence
					}
					keepText := best.Text
					if len(words[j].Text) > len(keepText) {
						keepText = words[j].Text
					}
					best.Text = keepText
					best.Confidence = keepConf
				}
			}
		}
		out = append(out, best)
	}
	return out
}

func iou(a, b models.WordBox) float64 {
	ax1, ay1, ax2, ay2 := a.X, a.Y, a.X+a.Width, a.Y+a.Height
	bx1, by1, bx2, by2 := b.X, b.Y, b.X+b.Width, b.Y+b.Height

	ix1, iy1 := max2(ax1, bx1), max2(ay1, by1)
	ix2, iy2 := min2(ax2, bx2), min2(ay2, by2)
	if ix2 <= ix1 || iy2 <= iy1 {
		return 0
	}
	interArea := (ix2 - ix1) * (iy2 - iy1)
	aArea := a.Width * a.Height
	bArea := b.Width * b.Height
	union := aArea + bArea - interArea
	if union <= 0 {
		return 0
	}
	return interArea / union
}

func max2(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func min2(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// editDistanceLE1 reports whether the Levenshtein distance between a and b
// is at most 1, short-circuiting on length difference before computing the
// full matrix.
func editDistanceLE1(a, b string) bool {
	if a == b {
		return true
	}
	ra, rb := []rune(a), []rune(b)
	if abs(len(ra)-len(rb)) > 1 {
		return false
	}
	return levenshtein(ra, rb) <= 1
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func levenshtein(a, b []rune) int {
	n, m := len(a), len(b)
	prev := make([]int, m+1)
	for j := 0; j <= m; j++ {
		prev[j] = j
	}
	for i := 1; i <= n; i++ {
		curr := make([]int, m+1)
		curr[0] = i
		for j := 1; j <= m; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev = curr
	}
	return prev[m]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
