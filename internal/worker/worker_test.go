package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"scancorpus/internal/config"
	"scancorpus/internal/core"
	"scancorpus/internal/models"
)

type fakeClaimer struct {
	batches   [][]models.ImagePage
	call      int
	reapCalls int
	reapN     int
}

func (f *fakeClaimer) ClaimPending(ctx context.Context, batchSize int) ([]models.ImagePage, error) {
	if f.call >= len(f.batches) {
		return nil, nil
	}
	b := f.batches[f.call]
	f.call++
	return b, nil
}

func (f *fakeClaimer) ReapStaleClaims(ctx context.Context, ttl time.Duration) (int, error) {
	f.reapCalls++
	return f.reapN, nil
}

type fakeProcessor struct {
	processed []string
	failFor   map[string]error
}

func (f *fakeProcessor) Process(ctx context.Context, page models.ImagePage) error {
	if err, ok := f.failFor[page.PageID]; ok {
		return err
	}
	f.processed = append(f.processed, page.PageID)
	return nil
}

func TestOCRLoopPollOnceProcessesClaimedBatch(t *testing.T) {
	claimer := &fakeClaimer{batches: [][]models.ImagePage{
		{{PageID: "p1"}, {PageID: "p2"}},
	}}
	proc := &fakeProcessor{}
	l := NewOCRLoop(config.Config{ClaimBatchSize: 2, PollIntervalSec: 1, ReapIntervalSec: 1, ClaimTTLSecs: 1}, claimer, proc)

	l.pollOnce(context.Background())

	if len(proc.processed) != 2 || proc.processed[0] != "p1" || proc.processed[1] != "p2" {
		t.Fatalf("expected both pages processed in order, got %+v", proc.processed)
	}
}

func TestOCRLoopPollOnceContinuesPastProcessingError(t *testing.T) {
	claimer := &fakeClaimer{batches: [][]models.ImagePage{
		{{PageID: "p1"}, {PageID: "p2"}},
	}}
	proc := &fakeProcessor{failFor: map[string]error{"p1": errors.New("ocr backend down")}}
	l := NewOCRLoop(config.Config{ClaimBatchSize: 2, PollIntervalSec: 1, ReapIntervalSec: 1, ClaimTTLSecs: 1}, claimer, proc)

	l.pollOnce(context.Background())

	if len(proc.processed) != 1 || proc.processed[0] != "p2" {
		t.Fatalf("expected p2 still processed despite p1 failing, got %+v", proc.processed)
	}
}

func TestOCRLoopReapOnceCallsReaper(t *testing.T) {
	claimer := &fakeClaimer{reapN: 3}
	proc := &fakeProcessor{}
	l := NewOCRLoop(config.Config{ClaimBatchSize: 1, PollIntervalSec: 1, ReapIntervalSec: 1, ClaimTTLSecs: 1}, claimer, proc)

	l.reapOnce(context.Background())

	if claimer.reapCalls != 1 {
		t.Fatalf("expected reaper invoked once, got %d", claimer.reapCalls)
	}
}

type fakeIngester struct {
	calls    []string
	report   core.IngestReport
	err      error
}

func (f *fakeIngester) IngestFromSource(ctx context.Context, sourceID string, skipExisting bool) (core.IngestReport, error) {
	f.calls = append(f.calls, sourceID)
	return f.report, f.err
}

func TestIngestLoopRunOnceCallsConfiguredSource(t *testing.T) {
	ing := &fakeIngester{report: core.IngestReport{Discovered: 5, Downloaded: 2, Processed: 2}}
	l := NewIngestLoop(config.Config{IngestSourceID: "site", IngestRunIntervalSec: 600}, ing)

	l.runOnce(context.Background())

	if len(ing.calls) != 1 || ing.calls[0] != "site" {
		t.Fatalf("expected one call for source 'site', got %+v", ing.calls)
	}
}

func TestIngestLoopRunOnceToleratesError(t *testing.T) {
	ing := &fakeIngester{err: errors.New("source unreachable")}
	l := NewIngestLoop(config.Config{IngestSourceID: "site", IngestRunIntervalSec: 600}, ing)

	// Must not panic despite the ingester erroring.
	l.runOnce(context.Background())
}

func TestIngestLoopRunFiresImmediatelyThenStopsOnCancel(t *testing.T) {
	ing := &fakeIngester{}
	l := NewIngestLoop(config.Config{IngestSourceID: "site", IngestRunIntervalSec: 3600}, ing)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	// Give the immediate first run a moment to land, then cancel.
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after context cancellation")
	}

	if len(ing.calls) != 1 {
		t.Fatalf("expected exactly one immediate run before cancellation, got %d", len(ing.calls))
	}
}
