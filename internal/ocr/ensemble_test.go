package ocr

import (
	"context"
	"testing"

	"scancorpus/internal/models"
)

type fakeBackend struct {
	name   string
	result Result
	err    error
}

func (f *fakeBackend) Name() string { return f.name }
func (f *fakeBackend) Recognize(ctx context.Context, imagePath string, languages []string) (Result, error) {
	return f.result, f.err
}

func TestEnsembleMergesOverlappingWords(t *testing.T) {
	a := &fakeBackend{name: "a", result: Result{
		Text: "hello",
		WordBoxes: []models.WordBox{
			{Text: "Hello", X: 0, Y: 0, Width: 0.1, Height: 0.05, Confidence: 0.7},
		},
	}}
	b := &fakeBackend{name: "b", result: Result{
		Text: "hello",
		WordBoxes: []models.WordBox{
			{Text: "Helllo", X: 0.001, Y: 0.001, Width: 0.1, Height: 0.05, Confidence: 0.9},
		},
	}}
	ens := NewEnsembleBackend([]Backend{a, b}, 0.3)
	res, err := ens.Recognize(context.Background(), "page.png", nil)
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if len(res.WordBoxes) != 1 {
		t.Fatalf("expected merge into 1 word box, got %d: %+v", len(res.WordBoxes), res.WordBoxes)
	}
	if res.WordBoxes[0].Confidence != 0.9 {
		t.Fatalf("expected merged box to keep higher confidence 0.9, got %v", res.WordBoxes[0].Confidence)
	}
}

func TestEnsembleKeepsUnmatchedBoxesSeparate(t *testing.T) {
	a := &fakeBackend{name: "a", result: Result{
		WordBoxes: []models.WordBox{{Text: "alpha", X: 0, Y: 0, Width: 0.1, Height: 0.05, Confidence: 0.8}},
	}}
	b := &fakeBackend{name: "b", result: Result{
		WordBoxes: []models.WordBox{{Text: "beta", X: 0.5, Y: 0.5, Width: 0.1, Height: 0.05, Confidence: 0.8}},
	}}
	ens := NewEnsembleBackend([]Backend{a, b}, 0.3)
	res, err := ens.Recognize(context.Background(), "page.png", nil)
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if len(res.WordBoxes) != 2 {
		t.Fatalf("expected 2 unmatched boxes, got %d", len(res.WordBoxes))
	}
}

func TestEnsembleDropsLowConfidenceSurvivors(t *testing.T) {
	a := &fakeBackend{name: "a", result: Result{
		WordBoxes: []models.WordBox{{Text: "weak", X: 0, Y: 0, Width: 0.1, Height: 0.05, Confidence: 0.1}},
	}}
	ens := NewEnsembleBackend([]Backend{a}, 0.3)
	res, err := ens.Recognize(context.Background(), "page.png", nil)
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if len(res.WordBoxes) != 0 {
		t.Fatalf("expected low-confidence box dropped, got %+v", res.WordBoxes)
	}
}

func TestEnsembleFailsWhenAllChildrenFail(t *testing.T) {
	a := &fakeBackend{name: "a", err: context.DeadlineExceeded}
	ens := NewEnsembleBackend([]Backend{a}, 0.3)
	_, err := ens.Recognize(context.Background(), "page.png", nil)
	if err == nil {
		t.Fatalf("expected error when all children fail")
	}
}

func TestIOU(t *testing.T) {
	a := models.WordBox{X: 0, Y: 0, Width: 10, Height: 10}
	b := models.WordBox{X: 5, Y: 0, Width: 10, Height: 10}
	got := iou(a, b)
	if got < 0.32 || got > 0.34 {
		t.Fatalf("expected ~0.333 iou, got %v", got)
	}
}

func TestEditDistanceLE1(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"hello", "hello", true},
		{"hello", "hallo", true},
		{"hello", "helo", true},
		{"hello", "help", false},
		{"hello", "world", false},
	}
	for _, c := range cases {
		if got := editDistanceLE1(c.a, c.b); got != c.want {
			t.Errorf("editDistanceLE1(%q,%q) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}
