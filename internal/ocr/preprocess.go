package ocr

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"math"
	"os"

	"scancorpus/internal/models"
)

// Preprocessor rasterizes a page image through grayscale conversion,
// contrast stretching, denoise, and deskew before OCR, per spec.md §4.4
// step 2. CLAHE itself has no equivalent in golang.org/x/image, so
// contrast normalization here is a full-histogram stretch (the simplest
// global approximation of CLAHE's effect; see DESIGN.md).
type Preprocessor struct {
	Enabled bool
	Deskew  bool
	Scales  []float64
}

// Process writes a preprocessed copy of the image at srcPath to dstPath
// and returns the path OCR should actually read. When preprocessing is
// disabled it returns srcPath unchanged.
func (p *Preprocessor) Process(srcPath, dstPath string) (string, error) {
	if !p.Enabled {
		return srcPath, nil
	}
	img, err := loadImage(srcPath)
	if err != nil {
		return "", err
	}
	gray := toGrayscale(img)
	stretched := contrastStretch(gray)
	denoised := boxBlurDenoise(stretched)
	if p.Deskew {
		angle := bestDeskewAngle(denoised)
		if angle != 0 {
			denoised = rotate(denoised, angle)
		}
	}
	if err := saveImage(dstPath, denoised); err != nil {
		return "", err
	}
	return dstPath, nil
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image %s: %w", path, err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", path, err)
	}
	return img, nil
}

func saveImage(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create image %s: %w", path, err)
	}
	defer f.Close()
	return png.Encode(f, img)
}

func toGrayscale(img image.Image) *image.Gray {
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	draw.Draw(gray, bounds, img, bounds.Min, draw.Src)
	return gray
}

// contrastStretch linearly remaps the observed [min,max] intensity range
// to [0,255], a global stand-in for CLAHE's local histogram equalization.
func contrastStretch(gray *image.Gray) *image.Gray {
	bounds := gray.Bounds()
	lo, hi := uint8(255), uint8(0)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			v := gray.GrayAt(x, y).Y
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}
	if hi <= lo {
		return gray
	}
	out := image.NewGray(bounds)
	scale := 255.0 / float64(hi-lo)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			v := gray.GrayAt(x, y).Y
			nv := float64(v-lo) * scale
			out.SetGray(x, y, color.Gray{Y: uint8(clamp(nv, 0, 255))})
		}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// boxBlurDenoise applies a 3x3 box blur, the simplest separable denoise
// available without pulling in an image-processing dependency the
// retrieved pack doesn't carry.
func boxBlurDenoise(gray *image.Gray) *image.Gray {
	bounds := gray.Bounds()
	out := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			sum, count := 0, 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					px, py := x+dx, y+dy
					if px < bounds.Min.X || px >= bounds.Max.X || py < bounds.Min.Y || py >= bounds.Max.Y {
						continue
					}
					sum += int(gray.GrayAt(px, py).Y)
					count++
				}
			}
			out.SetGray(x, y, color.Gray{Y: uint8(sum / count)})
		}
	}
	return out
}

// bestDeskewAngle searches +/-15 degrees at 0.5 degree steps for the
// rotation that maximizes horizontal projection-profile variance (text
// lines align into sharp peaks/troughs once the skew is corrected), per
// spec.md §4.4.
func bestDeskewAngle(gray *image.Gray) float64 {
	bestAngle := 0.0
	bestVariance := projectionVariance(gray)
	for angle := -15.0; angle <= 15.0; angle += 0.5 {
		if angle == 0 {
			continue
		}
		rotated := rotate(gray, angle)
		v := projectionVariance(rotated)
		if v > bestVariance {
			bestVariance = v
			bestAngle = angle
		}
	}
	return bestAngle
}

func projectionVariance(gray *image.Gray) float64 {
	bounds := gray.Bounds()
	h := bounds.Dy()
	if h == 0 {
		return 0
	}
	rowSums := make([]float64, h)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		var sum float64
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			sum += 255 - float64(gray.GrayAt(x, y).Y)
		}
		rowSums[y-bounds.Min.Y] = sum
	}
	mean := 0.0
	for _, s := range rowSums {
		mean += s
	}
	mean /= float64(h)
	var variance float64
	for _, s := range rowSums {
		d := s - mean
		variance += d * d
	}
	return variance / float64(h)
}

// rotate rotates gray by angleDegrees around its center via inverse
// nearest-neighbor sampling, filling uncovered corners with white.
func rotate(gray *image.Gray, angleDegrees float64) *image.Gray {
	bounds := gray.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for i := range out.Pix {
		out.Pix[i] = 255
	}

	theta := angleDegrees * math.Pi / 180
	cos, sin := math.Cos(theta), math.Sin(theta)
	cx, cy := float64(w)/2, float64(h)/2

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx, dy := float64(x)-cx, float64(y)-cy
			srcX := cos*dx + sin*dy + cx
			srcY := -sin*dx + cos*dy + cy
			sx, sy := int(math.Round(srcX)), int(math.Round(srcY))
			if sx < 0 || sx >= w || sy < 0 || sy >= h {
				continue
			}
			out.SetGray(x, y, gray.GrayAt(sx+bounds.Min.X, sy+bounds.Min.Y))
		}
	}
	return out
}

// MergeMultiScale merges the word boxes of several recognition passes over
// one page into a single result. Boxes are compared as given, in the pixel
// space the backend returned; no rescaling is applied before the IOU
// compare. Per spec.md §4.4, overlapping boxes (IOU >= 0.6) keep the
// higher-confidence word.
func MergeMultiScale(results []Result) Result {
	if len(results) == 0 {
		return Result{}
	}
	var allWords []models.WordBox
	var texts []string
	for _, r := range results {
		allWords = append(allWords, r.WordBoxes...)
		texts = append(texts, r.Text)
	}
	merged := mergeAtThreshold(allWords, 0.6)
	var confSum float64
	for _, wb := range merged {
		confSum += wb.Confidence
	}
	avgConf := 0.0
	if len(merged) > 0 {
		avgConf = confSum / float64(len(merged))
	}
	longest := results[0].Text
	for _, r := range results {
		if len(r.Text) > len(longest) {
			longest = r.Text
		}
	}
	return Result{Text: longest, WordBoxes: merged, Confidence: avgConf}
}

func mergeAtThreshold(words []models.WordBox, threshold float64) []models.WordBox {
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
			if iou(best, words[j]) >= threshold {
				merged[j] = true
				if words[j].Confidence > best.Confidence {
					best = words[j]
				}
			}
		}
		out = append(out, best)
	}
	return out
}
