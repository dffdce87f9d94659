package splitter

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func writeTestPNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.White)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
}

func TestDecodeDimensions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "page.png")
	writeTestPNG(t, path, 120, 80)

	w, h, err := decodeDimensions(path)
	if err != nil {
		t.Fatalf("decodeDimensions: %v", err)
	}
	if w != 120 || h != 80 {
		t.Fatalf("expected 120x80, got %dx%d", w, h)
	}
}

func TestSplitImageBuildsSinglePage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scan.png")
	writeTestPNG(t, path, 64, 48)

	s := New("", 300)
	page, err := s.SplitImage("doc-1", path)
	if err != nil {
		t.Fatalf("SplitImage: %v", err)
	}
	if page.PageNumber != 1 || page.Width != 64 || page.Height != 48 {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestFindRasterizedPagePicksTwoDigitPadding(t *testing.T) {
	dir := t.TempDir()
	prefix := filepath.Join(dir, "page")
	writeTestPNG(t, prefix+"-03.png", 10, 10)

	found := findRasterizedPage(prefix, 3, 12)
	if found == "" {
		t.Fatalf("expected to find zero-padded page file")
	}
}

func TestPageCountRejectsMissingFile(t *testing.T) {
	s := New("", 300)
	if _, err := s.PageCount("/nonexistent/does-not-exist.pdf"); err == nil {
		t.Fatalf("expected error opening missing pdf")
	}
}
