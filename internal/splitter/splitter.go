// Package splitter turns a fetched Document's bytes into one ImagePage per
// page: it validates/counts PDF pages with github.com/ledongthuc/pdf (the
// same binding LitFlow's ExtractTextActivity uses to open a PDF, here used
// for r.NumPage() rather than text extraction), rasterizes each page with
// the poppler pdftoppm CLI via os/exec (grounded on
// toricodesthings-File-Extraction-Service/internal/extractor/poppler.go's
// PageCount, which shells out to pdfinfo the same way), and decodes
// standalone raster image uploads directly, registering
// golang.org/x/image's tiff and bmp decoders alongside the stdlib's
// png/jpeg/gif so TIFF/BMP scans split into a single page without a
// dependency on poppler.
package splitter

import (
	"bufio"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"scancorpus/internal/models"
	"scancorpus/internal/util"
)

type Splitter struct {
	PopplerBinDir string
	DPI           int
}

func New(popplerBinDir string, dpi int) *Splitter {
	if dpi <= 0 {
		dpi = 300
	}
	return &Splitter{PopplerBinDir: popplerBinDir, DPI: dpi}
}

func (s *Splitter) bin(name string) string {
	if s.PopplerBinDir == "" {
		return name
	}
	return filepath.Join(s.PopplerBinDir, name)
}

// PageCount returns a PDF's page count via r.NumPage(), also serving as the
// "is this actually a readable PDF" corruption check the splitter needs
// before handing the file to pdftoppm.
func (s *Splitter) PageCount(pdfPath string) (int, error) {
	f, r, err := pdf.Open(pdfPath)
	if err != nil {
		return 0, fmt.Errorf("open pdf %s: %w", pdfPath, err)
	}
	defer f.Close()
	n := r.NumPage()
	if n <= 0 {
		return 0, util.ErrEmptyPDF
	}
	return n, nil
}

// SplitPDF rasterizes every page of pdfPath into outDir/page-<n>.png (n
// zero-padded by pdftoppm) via pdftoppm, then builds one ImagePage row per
// output file.
func (s *Splitter) SplitPDF(ctx context.Context, documentID, pdfPath, outDir string) ([]models.ImagePage, error) {
	pageCount, err := s.PageCount(pdfPath)
	if err != nil {
		return nil, err
	}
	if err := util.EnsureDir(outDir); err != nil {
		return nil, err
	}

	prefix := filepath.Join(outDir, "page")
	cmd := exec.CommandContext(ctx, s.bin("pdftoppm"),
		"-png", "-r", strconv.Itoa(s.DPI), pdfPath, prefix)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("pdftoppm %s: %w: %s", pdfPath, err, strings.TrimSpace(string(out)))
	}

	pages := make([]models.ImagePage, 0, pageCount)
	for n := 1; n <= pageCount; n++ {
		imgPath := findRasterizedPage(prefix, n, pageCount)
		if imgPath == "" {
			return nil, fmt.Errorf("pdftoppm did not produce page %d of %d", n, pageCount)
		}
		w, h, err := decodeDimensions(imgPath)
		if err != nil {
			return nil, err
		}
		pages = append(pages, models.ImagePage{
			PageID:     uuid.NewString(),
			DocumentID: documentID,
			PageNumber: n,
			ImagePath:  imgPath,
			Width:      w,
			Height:     h,
			OCRState:   models.OCRStatePending,
		})
	}
	return pages, nil
}

// findRasterizedPage accounts for pdftoppm's page-number zero-padding,
// which varies with the total page count (-01 for <100 pages, -001 for
// <1000, and so on).
func findRasterizedPage(prefix string, n, total int) string {
	width := len(strconv.Itoa(total))
	if width < 2 {
		width = 2
	}
	candidate := fmt.Sprintf("%s-%0*d.png", prefix, width, n)
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	for w := 1; w <= 6; w++ {
		candidate = fmt.Sprintf("%s-%0*d.png", prefix, w, n)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// SplitImage handles a standalone raster upload (not a PDF): it decodes
// the image once to confirm it's readable and to read its dimensions, and
// returns a single ImagePage pointing back at the already-stored file.
func (s *Splitter) SplitImage(documentID, imagePath string) (models.ImagePage, error) {
	w, h, err := decodeDimensions(imagePath)
	if err != nil {
		return models.ImagePage{}, err
	}
	return models.ImagePage{
		PageID:     uuid.NewString(),
		DocumentID: documentID,
		PageNumber: 1,
		ImagePath:  imagePath,
		Width:      w,
		Height:     h,
		OCRState:   models.OCRStatePending,
	}, nil
}

func decodeDimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("open image %s: %w", path, err)
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(bufio.NewReader(f))
	if err != nil {
		return 0, 0, fmt.Errorf("decode image %s: %w", path, err)
	}
	return cfg.Width, cfg.Height, nil
}
