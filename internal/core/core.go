// Package core is the facade the CLI/worker entrypoints call into, one
// struct composing every repo and pipeline stage with one method per
// operation in SPEC_FULL.md §6.5. It is grounded on the teacher's
// Activities struct (internal/activities/activities.go): one struct
// holding every repo/service, built once in New, with a thin method per
// externally-exposed operation. The durable-workflow orchestration the
// teacher's Activities methods ran under is gone; callers here invoke
// these methods directly from a plain worker loop or CLI command.
package core

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"scancorpus/internal/blob"
	"scancorpus/internal/config"
	"scancorpus/internal/crawler"
	"scancorpus/internal/embed"
	"scancorpus/internal/errtax"
	"scancorpus/internal/fetcher"
	"scancorpus/internal/models"
	"scancorpus/internal/search"
	"scancorpus/internal/splitter"
	"scancorpus/internal/storage"
	"scancorpus/internal/util"
	"scancorpus/internal/vector"
)

// The narrow interfaces below are the slice of each concrete dependency
// Core actually calls, the same pattern internal/ocr.Coordinator and
// internal/search.Engine use to stay testable without a database.

type documentStore interface {
	UpsertDocument(ctx context.Context, d models.Document) error
	SetPageCount(ctx context.Context, documentID string, pageCount int) error
	ExistsByID(ctx context.Context, documentID string) (bool, error)
	ExistsBySourceURL(ctx context.Context, sourceURL string) (bool, error)
}

type pageStore interface {
	InsertPages(ctx context.Context, pages []models.ImagePage) error
	GetByID(ctx context.Context, pageID string) (models.ImagePage, bool, error)
}

type entityStore interface {
	SearchByTypeAndValue(ctx context.Context, entityType, value string, limit int) ([]models.Entity, error)
}

type discoverer interface {
	Discover(ctx context.Context) ([]crawler.FileRef, error)
}

type documentFetcher interface {
	Fetch(ctx context.Context, ref crawler.FileRef) (fetcher.Result, error)
}

type pageSplitter interface {
	SplitPDF(ctx context.Context, documentID, pdfPath, outDir string) ([]models.ImagePage, error)
	SplitImage(documentID, imagePath string) (models.ImagePage, error)
}

type searchEngine interface {
	Keyword(ctx context.Context, query string, limit int) ([]models.SearchHit, error)
	Phrase(ctx context.Context, phrase string, limit int) ([]models.SearchHit, error)
	Fuzzy(ctx context.Context, query string, threshold float64, limit int) ([]models.SearchHit, error)
	Entity(ctx context.Context, entityType, value string, limit int) ([]models.SearchHit, error)
	Semantic(ctx context.Context, query string, limit int) ([]models.SearchHit, error)
}

type Core struct {
	cfg config.Config

	blob     blob.Store
	docs     documentStore
	pages    pageStore
	entities entityStore

	fetcher  documentFetcher
	splitter pageSplitter
	engine   searchEngine

	genericCrawler discoverer
	siteCrawler    discoverer
}

// New wires every repo and pipeline stage Core needs for ingestion and
// query operations. The OCR Coordinator itself is not built here: OCR
// recognition is the worker loop's job (internal/worker), not Core's —
// Core only needs read access to OCR text through the search engine.
func New(cfg config.Config, db *storage.DB, store blob.Store, client crawler.HTTPDoer) (*Core, error) {
	embedder, err := embed.NewManager(cfg)
	if err != nil {
		return nil, fmt.Errorf("build embedder: %w", err)
	}

	pages := storage.NewPageRepo(db)
	ocrRepo := storage.NewOCRRepo(db)
	entities := storage.NewEntityRepo(db)
	index := storage.NewSearchIndexRepo(db)
	docs := storage.NewDocumentRepo(db)

	c := &Core{
		cfg:      cfg,
		blob:     store,
		docs:     docs,
		pages:    pages,
		entities: entities,

		fetcher:  fetcher.New(client, store, cfg.FetchMaxConcurrent, fetchPoliteness(cfg), cfg.FetchUserAgent, fetchTimeout(cfg)),
		splitter: splitter.New(cfg.PopplerBinDir, cfg.SplitDPI),
		engine:   search.NewEngine(cfg, index, ocrRepo, pages, entities, vector.NewSearcher(db.Pool), embedder),

		genericCrawler: crawler.NewGenericCrawler(client, cfg.SourceEndpoint, cfg.FetchUserAgent),
		siteCrawler:    crawler.NewSiteCrawler(client, cfg.SiteBaseURL, cfg.FetchUserAgent, crawler.DOJExclusionRules()),
	}
	return c, nil
}

// IngestReport is the result shape spec.md §6.5 prescribes for
// ingest_from_source.
type IngestReport struct {
	Discovered int
	Downloaded int
	Processed  int
	Errors     []string
}

// IngestFromSource runs discovery against the named source ("generic" for
// the JSON/HTML crawler, "site" for the DOJ-style site crawler), fetches
// the discovered files, and splits each newly fetched document into pages
// ready for OCR. With skipExisting set, a file is skipped before download
// when a document with its source URL is already stored, and after
// download when its content hash matches a stored document.
func (c *Core) IngestFromSource(ctx context.Context, sourceID string, skipExisting bool) (IngestReport, error) {
	var refs []crawler.FileRef
	var err error
	switch sourceID {
	case "site":
		refs, err = c.siteCrawler.Discover(ctx)
	default:
		refs, err = c.genericCrawler.Discover(ctx)
	}
	if err != nil {
		return IngestReport{}, fmt.Errorf("discover from %s: %w", sourceID, err)
	}

	report := IngestReport{Discovered: len(refs)}
	for _, ref := range refs {
		if skipExisting {
			if exists, _ := c.docs.ExistsBySourceURL(ctx, ref.URL); exists {
				continue
			}
		}
		result, err := c.fetcher.Fetch(ctx, ref)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("fetch %s: %v", ref.URL, err))
			continue
		}
		report.Downloaded++
		if skipExisting {
			if exists, _ := c.docs.ExistsByID(ctx, result.Document.DocumentID); exists {
				continue
			}
		}

		if err := c.docs.UpsertDocument(ctx, result.Document); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("persist document %s: %v", result.Document.DocumentID, err))
			continue
		}
		if err := c.splitAndEnqueue(ctx, result.Document, result.BlobKey); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("split document %s: %v", result.Document.DocumentID, err))
			continue
		}
		report.Processed++
	}
	return report, nil
}

// EnqueueDocument accepts already-in-hand bytes (an upload, rather than
// something the crawler found), stores them content-addressed, and splits
// them into pages the same way a crawled document is split.
func (c *Core) EnqueueDocument(ctx context.Context, data []byte, filename string, sourceURL string) (string, error) {
	if len(data) == 0 {
		return "", errtax.New(errtax.InvalidArgument, "enqueue_document: empty bytes")
	}
	ext, _, ok := crawler.ExtOf(filename)
	if !ok {
		return "", errtax.New(errtax.InvalidArgument, "enqueue_document: unsupported file type for "+filename)
	}

	documentID := util.SHA256Hex(data)

	if exists, _ := c.docs.ExistsByID(ctx, documentID); exists {
		return documentID, nil
	}

	blobKey := fmt.Sprintf("files/%s%s", documentID, ext)
	if _, err := c.blob.Put(ctx, blobKey, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("store enqueued document: %w", err)
	}

	doc := models.Document{
		DocumentID: documentID,
		SourceURL:  sourceURL,
		FileName:   filename,
		FileType:   ext[1:],
		FileSize:   int64(len(data)),
	}
	if err := c.docs.UpsertDocument(ctx, doc); err != nil {
		return "", fmt.Errorf("persist enqueued document: %w", err)
	}
	if err := c.splitAndEnqueue(ctx, doc, blobKey); err != nil {
		return "", fmt.Errorf("split enqueued document: %w", err)
	}
	return documentID, nil
}

func (c *Core) splitAndEnqueue(ctx context.Context, doc models.Document, blobKey string) error {
	localPath, err := c.localPathFor(blobKey)
	if err != nil {
		return err
	}

	var pages []models.ImagePage
	switch doc.FileType {
	case "pdf":
		outDir := filepath.Join(filepath.Dir(localPath), doc.DocumentID+"-pages")
		pages, err = c.splitter.SplitPDF(ctx, doc.DocumentID, localPath, outDir)
	case "doc", "docx":
		// Word documents pass the crawler's downloadable-extension allowlist
		// (a scanned letter is sometimes distributed as a .doc) but have no
		// raster decoder here: no OCR-relevant image to split out.
		return util.ErrUnsupportedType
	default:
		var p models.ImagePage
		p, err = c.splitter.SplitImage(doc.DocumentID, localPath)
		if err == nil {
			pages = []models.ImagePage{p}
		}
	}
	if err != nil {
		return err
	}

	if err := c.pages.InsertPages(ctx, pages); err != nil {
		return err
	}
	return c.docs.SetPageCount(ctx, doc.DocumentID, len(pages))
}

// localPathFor resolves a blob key to a filesystem path the splitter's
// subprocess tools (pdftoppm, image.Decode) can open directly. It only
// works against internal/blob.Local; a cloud blob store would need to
// stage the object to a temp file first, but that case is out of scope
// per spec.md §1.
func (c *Core) localPathFor(blobKey string) (string, error) {
	local, ok := c.blob.(*blob.Local)
	if !ok {
		return "", errtax.New(errtax.Internal, "splitting requires a local blob store")
	}
	return filepath.Join(local.Root, filepath.FromSlash(blobKey)), nil
}

// Search dispatches to the matching internal/search.Engine mode.
// entityType is only used by mode "entity"; fuzzyThreshold <= 0 falls back
// to the configured default for mode "fuzzy".
func (c *Core) Search(ctx context.Context, mode, query string, limit int, entityType string, fuzzyThreshold float64) ([]models.SearchHit, error) {
	switch mode {
	case "keyword":
		return c.engine.Keyword(ctx, query, limit)
	case "phrase":
		return c.engine.Phrase(ctx, query, limit)
	case "fuzzy":
		if fuzzyThreshold <= 0 {
			fuzzyThreshold = c.cfg.FuzzyThreshold
		}
		return c.engine.Fuzzy(ctx, query, fuzzyThreshold, limit)
	case "entity":
		return c.engine.Entity(ctx, entityType, query, limit)
	case "semantic":
		return c.engine.Semantic(ctx, query, limit)
	default:
		return nil, errtax.New(errtax.InvalidArgument, "search: unknown mode "+mode)
	}
}

// ListEntities returns entities matching the given type/value filter.
func (c *Core) ListEntities(ctx context.Context, entityType, value string, limit int) ([]models.Entity, error) {
	return c.entities.SearchByTypeAndValue(ctx, entityType, value, limit)
}

// GetPage resolves a page to its image bytes via the blob store, per
// spec.md §6.5's "get_page(page_id) -> image bytes via blob URL".
func (c *Core) GetPage(ctx context.Context, pageID string) (io.ReadCloser, bool, error) {
	page, ok, err := c.pages.GetByID(ctx, pageID)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	r, err := c.blob.Get(ctx, page.ImagePath)
	if err != nil {
		return nil, false, err
	}
	return r, true, nil
}

func fetchPoliteness(cfg config.Config) time.Duration {
	return time.Duration(cfg.FetchPolitenessMS) * time.Millisecond
}

func fetchTimeout(cfg config.Config) time.Duration {
	return time.Duration(cfg.FetchTimeoutSecs) * time.Second
}
