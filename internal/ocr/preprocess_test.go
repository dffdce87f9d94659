package ocr

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"scancorpus/internal/models"
)

func checkerboardGray(w, h int) *image.Gray {
	gray := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x+y)%2 == 0 {
				gray.SetGray(x, y, color.Gray{Y: 255})
			} else {
				gray.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
	return gray
}

func TestContrastStretchExpandsDynamicRange(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			gray.SetGray(x, y, color.Gray{Y: 100})
		}
	}
	gray.SetGray(0, 0, color.Gray{Y: 80})
	gray.SetGray(3, 3, color.Gray{Y: 140})

	out := contrastStretch(gray)
	if out.GrayAt(0, 0).Y != 0 {
		t.Fatalf("expected darkest pixel stretched to 0, got %d", out.GrayAt(0, 0).Y)
	}
	if out.GrayAt(3, 3).Y != 255 {
		t.Fatalf("expected brightest pixel stretched to 255, got %d", out.GrayAt(3, 3).Y)
	}
}

func TestContrastStretchFlatImageUnchanged(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 3, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			gray.SetGray(x, y, color.Gray{Y: 128})
		}
	}
	out := contrastStretch(gray)
	if out.GrayAt(1, 1).Y != 128 {
		t.Fatalf("expected flat image left unchanged, got %d", out.GrayAt(1, 1).Y)
	}
}

func TestBoxBlurDenoiseSmoothsCheckerboard(t *testing.T) {
	gray := checkerboardGray(5, 5)
	out := boxBlurDenoise(gray)
	center := out.GrayAt(2, 2).Y
	if center == 0 || center == 255 {
		t.Fatalf("expected blurred center pixel between extremes, got %d", center)
	}
}

func TestProjectionVarianceZeroForUniformImage(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range gray.Pix {
		gray.Pix[i] = 128
	}
	if v := projectionVariance(gray); v != 0 {
		t.Fatalf("expected zero variance for uniform image, got %v", v)
	}
}

func TestRotateZeroDegreesIsIdentity(t *testing.T) {
	gray := checkerboardGray(4, 4)
	out := rotate(gray, 0)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			if out.GrayAt(x, y) != gray.GrayAt(x, y) {
				t.Fatalf("expected 0-degree rotation to be identity at (%d,%d)", x, y)
			}
		}
	}
}

func TestProcessDisabledReturnsSourcePath(t *testing.T) {
	p := &Preprocessor{Enabled: false}
	got, err := p.Process("/tmp/nope.png", "/tmp/out.png")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got != "/tmp/nope.png" {
		t.Fatalf("expected unchanged path, got %s", got)
	}
}

func TestProcessWritesPreprocessedFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.png")
	f, err := os.Create(src)
	if err != nil {
		t.Fatalf("create src: %v", err)
	}
	if err := writePNG(f, checkerboardGray(8, 8)); err != nil {
		t.Fatalf("writePNG: %v", err)
	}
	f.Close()

	p := &Preprocessor{Enabled: true, Deskew: false}
	dst := filepath.Join(dir, "dst.png")
	got, err := p.Process(src, dst)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got != dst {
		t.Fatalf("expected output path %s, got %s", dst, got)
	}
	if _, err := os.Stat(dst); err != nil {
		t.Fatalf("expected preprocessed file to exist: %v", err)
	}
}

func writePNG(f *os.File, img image.Image) error {
	return saveImage(f.Name(), img)
}

func TestMergeMultiScalePicksLongestText(t *testing.T) {
	r1 := Result{Text: "hi", WordBoxes: []models.WordBox{{Text: "hi", X: 0, Y: 0, Width: 0.1, Height: 0.1, Confidence: 0.5}}}
	r2 := Result{Text: "hello there", WordBoxes: []models.WordBox{{Text: "hello", X: 0.5, Y: 0.5, Width: 0.1, Height: 0.1, Confidence: 0.9}}}
	merged := MergeMultiScale([]Result{r1, r2})
	if merged.Text != "hello there" {
		t.Fatalf("expected longest text kept, got %q", merged.Text)
	}
	if len(merged.WordBoxes) != 2 {
		t.Fatalf("expected 2 non-overlapping word boxes, got %d", len(merged.WordBoxes))
	}
}

func TestMergeMultiScaleMergesOverlappingBoxes(t *testing.T) {
	r1 := Result{Text: "a", WordBoxes: []models.WordBox{{Text: "a", X: 0, Y: 0, Width: 0.2, Height: 0.2, Confidence: 0.4}}}
	r2 := Result{Text: "a", WordBoxes: []models.WordBox{{Text: "a", X: 0.01, Y: 0.01, Width: 0.2, Height: 0.2, Confidence: 0.95}}}
	merged := MergeMultiScale([]Result{r1, r2})
	if len(merged.WordBoxes) != 1 {
		t.Fatalf("expected overlapping boxes merged into 1, got %d", len(merged.WordBoxes))
	}
	if merged.WordBoxes[0].Confidence != 0.95 {
		t.Fatalf("expected higher confidence box kept, got %v", merged.WordBoxes[0].Confidence)
	}
}
