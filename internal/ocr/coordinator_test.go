package ocr

import (
	"context"
	"errors"
	"testing"

	"scancorpus/internal/config"
	"scancorpus/internal/models"
)

type fakePageRepo struct {
	failed, requeued []string
	failReasons      []string
}

func (f *fakePageRepo) MarkFailed(ctx context.Context, pageID, reason string) error {
	f.failed = append(f.failed, pageID)
	f.failReasons = append(f.failReasons, reason)
	return nil
}
func (f *fakePageRepo) Requeue(ctx context.Context, pageID string) error {
	f.requeued = append(f.requeued, pageID)
	return nil
}

type fakeResultWriter struct {
	committed []models.OCRResult
	err       error
}

func (f *fakeResultWriter) Commit(ctx context.Context, r models.OCRResult) error {
	if f.err != nil {
		return f.err
	}
	f.committed = append(f.committed, r)
	return nil
}

func testConfig() config.Config {
	return config.Config{
		OCREngine:            "tesseract",
		OCRPreprocess:        false,
		EnableEmailDetection: true,
		EnablePhoneDetection: true,
		EnableDateDetection:  true,
		EnableNameDetection:  true,
	}
}

func TestCoordinatorProcessSuccess(t *testing.T) {
	backend := &fakeBackend{name: "fake", result: Result{
		Text: "Contact jane@example.com for details.",
		WordBoxes: []models.WordBox{
			{Text: "Contact", X: 0, Y: 0, Width: 0.1, Height: 0.02, Confidence: 0.9},
		},
		Confidence: 0.9,
	}}
	pages := &fakePageRepo{}
	writer := &fakeResultWriter{}

	c := NewCoordinator(testConfig(), backend, pages, writer)
	page := models.ImagePage{PageID: "page-1", DocumentID: "doc-1", ImagePath: "/tmp/page-1.png", Attempts: 0}

	if err := c.Process(context.Background(), page); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(writer.committed) != 1 || writer.committed[0].PageID != "page-1" {
		t.Fatalf("expected one committed ocr result for page-1, got %+v", writer.committed)
	}
	if len(writer.committed[0].Entities) != 1 {
		t.Fatalf("expected 1 entity (email) extracted, got %d: %+v", len(writer.committed[0].Entities), writer.committed[0].Entities)
	}
	if writer.committed[0].Index.OCRID == "" {
		t.Fatalf("expected search index built for the committed result, got %+v", writer.committed[0].Index)
	}
}

func TestCoordinatorRequeuesOnTransientFailure(t *testing.T) {
	backend := &fakeBackend{name: "fake", err: errors.New("ocr engine unavailable")}
	pages := &fakePageRepo{}
	c := NewCoordinator(testConfig(), backend, pages, &fakeResultWriter{})
	page := models.ImagePage{PageID: "page-2", DocumentID: "doc-1", ImagePath: "/tmp/page-2.png", Attempts: 0}

	err := c.Process(context.Background(), page)
	if err == nil {
		t.Fatalf("expected error from failed recognition")
	}
	if len(pages.requeued) != 1 {
		t.Fatalf("expected page requeued, got %+v", pages.requeued)
	}
	if len(pages.failed) != 0 {
		t.Fatalf("did not expect page marked permanently failed, got %+v", pages.failed)
	}
}

func TestCoordinatorMarksPermanentlyFailedAfterMaxAttempts(t *testing.T) {
	backend := &fakeBackend{name: "fake", err: errors.New("ocr engine unavailable")}
	pages := &fakePageRepo{}
	c := NewCoordinator(testConfig(), backend, pages, &fakeResultWriter{})
	page := models.ImagePage{PageID: "page-3", DocumentID: "doc-1", ImagePath: "/tmp/page-3.png", Attempts: c.MaxAttempts}

	err := c.Process(context.Background(), page)
	if err == nil {
		t.Fatalf("expected error from failed recognition")
	}
	if len(pages.failed) != 1 {
		t.Fatalf("expected page marked permanently failed, got %+v", pages.failed)
	}
	if pages.failReasons[0] == "" {
		t.Fatalf("expected a non-empty failure reason recorded")
	}
	if len(pages.requeued) != 0 {
		t.Fatalf("did not expect page requeued, got %+v", pages.requeued)
	}
}

func TestCoordinatorRequeuesWhenCommitFails(t *testing.T) {
	backend := &fakeBackend{name: "fake", result: Result{Text: "plain text", Confidence: 0.8}}
	pages := &fakePageRepo{}
	writer := &fakeResultWriter{err: errors.New("db unavailable")}
	c := NewCoordinator(testConfig(), backend, pages, writer)
	page := models.ImagePage{PageID: "page-4", DocumentID: "doc-1", ImagePath: "/tmp/page-4.png", Attempts: 0}

	if err := c.Process(context.Background(), page); err == nil {
		t.Fatalf("expected error when the result commit fails")
	}
	if len(pages.requeued) != 1 {
		t.Fatalf("expected page requeued after a failed commit, got %+v", pages.requeued)
	}
}

func TestCoordinatorUsesConfiguredMaxAttempts(t *testing.T) {
	cfg := testConfig()
	cfg.OCRMaxAttempts = 2
	c := NewCoordinator(cfg, &fakeBackend{name: "fake"}, &fakePageRepo{}, &fakeResultWriter{})
	if c.MaxAttempts != 2 {
		t.Fatalf("expected MaxAttempts driven from config, got %d", c.MaxAttempts)
	}
}

func TestUnionBBoxEmptyWords(t *testing.T) {
	got := unionBBox(nil)
	want := models.BBox{}
	if got != want {
		t.Fatalf("expected zero-value bbox for no words, got %+v", got)
	}
}

func TestUnionBBoxUnionsAllWords(t *testing.T) {
	words := []models.WordBox{
		{X: 0.1, Y: 0.1, Width: 0.1, Height: 0.1},
		{X: 0.5, Y: 0.05, Width: 0.2, Height: 0.1},
	}
	got := unionBBox(words)
	if got.X != 0.1 || got.Y != 0.05 {
		t.Fatalf("expected union origin (0.1,0.05), got (%v,%v)", got.X, got.Y)
	}
	wantMaxX, wantMaxY := 0.7, 0.2
	if got.X+got.Width != wantMaxX || got.Y+got.Height != wantMaxY {
		t.Fatalf("expected union extent (%v,%v), got (%v,%v)", wantMaxX, wantMaxY, got.X+got.Width, got.Y+got.Height)
	}
}
