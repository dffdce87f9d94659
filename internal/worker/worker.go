// Package worker runs the two background loops spec.md §4.9 calls for: one
// claiming and OCR-processing pending pages, one periodically re-crawling a
// configured upstream source. Both are plain time.Ticker loops rather than
// a durable workflow engine — see DESIGN.md for why Temporal, the teacher's
// orchestration layer, is dropped in favor of the row-locking + TTL reaper
// design spec.md §9 mandates.
package worker

import (
	"context"
	"log"
	"time"

	"scancorpus/internal/config"
	"scancorpus/internal/core"
	"scancorpus/internal/models"
)

// pageClaimer is the slice of internal/storage.PageRepo the OCR loop needs
// to pull work and reap stale claims, narrowed the same way
// internal/ocr.Coordinator narrows its own repo dependencies.
type pageClaimer interface {
	ClaimPending(ctx context.Context, batchSize int) ([]models.ImagePage, error)
	ReapStaleClaims(ctx context.Context, ttl time.Duration) (int, error)
}

// pageProcessor is the slice of internal/ocr.Coordinator the OCR loop
// drives; narrowed so this package's tests can substitute a fake
// coordinator without building a real OCR backend.
type pageProcessor interface {
	Process(ctx context.Context, page models.ImagePage) error
}

// sourceIngester is the slice of internal/core.Core the ingest loop drives.
type sourceIngester interface {
	IngestFromSource(ctx context.Context, sourceID string, skipExisting bool) (core.IngestReport, error)
}

// OCRLoop claims pending pages in batches and runs each claimed page
// through a pageProcessor, on a fixed poll interval, with a separate ticker
// periodically reaping claims that have sat in_progress past their TTL
// (a worker that claimed pages and then crashed).
type OCRLoop struct {
	claimer      pageClaimer
	processor    pageProcessor
	batchSize    int
	pollInterval time.Duration
	reapInterval time.Duration
	claimTTL     time.Duration
}

func NewOCRLoop(cfg config.Config, claimer pageClaimer, processor pageProcessor) *OCRLoop {
	return &OCRLoop{
		claimer:      claimer,
		processor:    processor,
		batchSize:    cfg.ClaimBatchSize,
		pollInterval: time.Duration(cfg.PollIntervalSec) * time.Second,
		reapInterval: time.Duration(cfg.ReapIntervalSec) * time.Second,
		claimTTL:     time.Duration(cfg.ClaimTTLSecs) * time.Second,
	}
}

// Run blocks, driving both the claim/process loop and the stale-claim
// reaper, until ctx is canceled.
func (l *OCRLoop) Run(ctx context.Context) {
	pollTicker := time.NewTicker(l.pollInterval)
	reapTicker := time.NewTicker(l.reapInterval)
	defer pollTicker.Stop()
	defer reapTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			l.pollOnce(ctx)
		case <-reapTicker.C:
			l.reapOnce(ctx)
		}
	}
}

func (l *OCRLoop) pollOnce(ctx context.Context) {
	pages, err := l.claimer.ClaimPending(ctx, l.batchSize)
	if err != nil {
		log.Printf("ocr loop: claim pending: %v", err)
		return
	}
	for _, page := range pages {
		if err := l.processor.Process(ctx, page); err != nil {
			log.Printf("ocr loop: page %s: %v", page.PageID, err)
		}
	}
}

func (l *OCRLoop) reapOnce(ctx context.Context) {
	n, err := l.claimer.ReapStaleClaims(ctx, l.claimTTL)
	if err != nil {
		log.Printf("ocr loop: reap stale claims: %v", err)
		return
	}
	if n > 0 {
		log.Printf("ocr loop: reaped %d stale claim(s)", n)
	}
}

// IngestLoop periodically re-runs ingest_from_source against one configured
// source, the "periodic crawl of a specific upstream site" loop spec.md
// §4.9 names.
type IngestLoop struct {
	core         sourceIngester
	sourceID     string
	runInterval  time.Duration
	skipExisting bool
}

func NewIngestLoop(cfg config.Config, core sourceIngester) *IngestLoop {
	return &IngestLoop{
		core:         core,
		sourceID:     cfg.IngestSourceID,
		runInterval:  time.Duration(cfg.IngestRunIntervalSec) * time.Second,
		skipExisting: true,
	}
}

// Run blocks, re-ingesting the configured source once per tick, until ctx
// is canceled. The first run fires immediately rather than waiting a full
// interval.
func (l *IngestLoop) Run(ctx context.Context) {
	l.runOnce(ctx)

	ticker := time.NewTicker(l.runInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.runOnce(ctx)
		}
	}
}

func (l *IngestLoop) runOnce(ctx context.Context) {
	report, err := l.core.IngestFromSource(ctx, l.sourceID, l.skipExisting)
	if err != nil {
		log.Printf("ingest loop: source %s: %v", l.sourceID, err)
		return
	}
	log.Printf("ingest loop: source=%s discovered=%d downloaded=%d processed=%d errors=%d",
		l.sourceID, report.Discovered, report.Downloaded, report.Processed, len(report.Errors))
}
