// Package fetcher downloads discovered files with bounded concurrency and
// per-host politeness delay, hashing each file's bytes as it streams to
// the blob store. The concurrency primitives are grounded on
// toricodesthings-File-Extraction-Service/cmd/server/main.go's
// requestSem/getRateLimiter pair (golang.org/x/sync/semaphore.Weighted +
// golang.org/x/time/rate.Limiter), the streaming-hash pattern is grounded
// on scancorpus's own util.SHA256HexFromReader combined with an io.TeeReader.
package fetcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"scancorpus/internal/blob"
	"scancorpus/internal/crawler"
	"scancorpus/internal/errtax"
	"scancorpus/internal/models"
)

// Result is one fetch outcome: the document row plus the blob key its
// bytes were written under.
type Result struct {
	Document models.Document
	BlobKey  string
}

type Fetcher struct {
	client      crawler.HTTPDoer
	store       blob.Store
	sem         *semaphore.Weighted
	limiters    sync.Map // host -> *rate.Limiter
	politeness  time.Duration
	userAgent   string
	timeout     time.Duration
}

func New(client crawler.HTTPDoer, store blob.Store, maxConcurrent int, politeness time.Duration, userAgent string, timeout time.Duration) *Fetcher {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Fetcher{
		client:     client,
		store:      store,
		sem:        semaphore.NewWeighted(int64(maxConcurrent)),
		politeness: politeness,
		userAgent:  userAgent,
		timeout:    timeout,
	}
}

func (f *Fetcher) limiterFor(host string) *rate.Limiter {
	if v, ok := f.limiters.Load(host); ok {
		return v.(*rate.Limiter)
	}
	every := f.politeness
	if every <= 0 {
		every = 500 * time.Millisecond
	}
	lim := rate.NewLimiter(rate.Every(every), 1)
	actual, _ := f.limiters.LoadOrStore(host, lim)
	return actual.(*rate.Limiter)
}

// Fetch downloads ref, computing its content hash as it streams into the
// blob store under key "files/<sha256>.<ext>", so the same bytes
// fetched from two different URLs collapse onto one Document row (the
// Go equivalent of ComputePaperIDActivity's hash-derived identity).
func (f *Fetcher) Fetch(ctx context.Context, ref crawler.FileRef) (Result, error) {
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return Result{}, err
	}
	defer f.sem.Release(1)

	host := hostOf(ref.URL)
	if err := f.limiterFor(host).Wait(ctx); err != nil {
		return Result{}, err
	}

	fetchCtx := ctx
	var cancel context.CancelFunc
	if f.timeout > 0 {
		fetchCtx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, ref.URL, nil)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return Result{}, errtax.Wrap(errtax.TransientUpstream, "fetch "+ref.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		kind := errtax.TransientUpstream
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			kind = errtax.PermanentUpstream
		}
		return Result{}, errtax.New(kind, fmt.Sprintf("fetch %s: status %d", ref.URL, resp.StatusCode))
	}

	tmpKey := fmt.Sprintf("tmp/%d-%s", time.Now().UnixNano(), ref.FileName)
	hasher := sha256.New()
	tee := io.TeeReader(resp.Body, hasher)
	size, err := f.store.Put(ctx, tmpKey, tee)
	if err != nil {
		return Result{}, fmt.Errorf("write fetched bytes: %w", err)
	}
	if size == 0 {
		_ = f.store.Delete(ctx, tmpKey)
		return Result{}, errtax.New(errtax.InvalidArgument, "fetched file was empty")
	}

	documentID := hex.EncodeToString(hasher.Sum(nil))
	finalKey := fmt.Sprintf("files/%s.%s", documentID, ref.FileType)

	if exists, _ := f.store.Exists(ctx, finalKey); !exists {
		r, err := f.store.Get(ctx, tmpKey)
		if err != nil {
			return Result{}, err
		}
		_, err = f.store.Put(ctx, finalKey, r)
		r.Close()
		if err != nil {
			return Result{}, err
		}
	}
	_ = f.store.Delete(ctx, tmpKey)

	doc := models.Document{
		DocumentID: documentID,
		SourceURL:  ref.URL,
		FileName:   ref.FileName,
		FileType:   ref.FileType,
		FileSize:   size,
		Metadata: map[string]string{
			"section":     ref.Section,
			"description": ref.Description,
		},
	}
	return Result{Document: doc, BlobKey: finalKey}, nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Host
}
