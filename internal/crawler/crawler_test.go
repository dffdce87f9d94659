package crawler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"
)

type stubDoer struct {
	responses map[string]stubResponse
}

type stubResponse struct {
	status int
	body   string
	ctype  string
}

func (s *stubDoer) Do(req *http.Request) (*http.Response, error) {
	r, ok := s.responses[req.URL.String()]
	if !ok {
		return &http.Response{StatusCode: 404, Body: io.NopCloser(bytes.NewReader(nil))}, nil
	}
	h := http.Header{}
	if r.ctype != "" {
		h.Set("Content-Type", r.ctype)
	}
	return &http.Response{StatusCode: r.status, Body: io.NopCloser(bytes.NewReader([]byte(r.body))), Header: h}, nil
}

func TestGenericCrawlerDiscoverJSONArrayOfStrings(t *testing.T) {
	doer := &stubDoer{responses: map[string]stubResponse{
		"https://src.example/api/all-files": {
			status: 200,
			ctype:  "application/json",
			body:   `["docs/a.pdf", "docs/b.png", "readme.txt"]`,
		},
	}}
	c := NewGenericCrawler(doer, "https://src.example", "test-agent/1.0")
	refs, err := c.Discover(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("expected 2 refs (pdf+png, txt excluded), got %d: %+v", len(refs), refs)
	}
}

func TestGenericCrawlerDiscoverJSONObjectsWithKey(t *testing.T) {
	doer := &stubDoer{responses: map[string]stubResponse{
		"https://src.example/api/all-files": {
			status: 200,
			ctype:  "application/json",
			body:   `{"files":[{"key":"files/a.pdf","filename":"a.pdf"},{"key":"files/b.jpg"}]}`,
		},
	}}
	c := NewGenericCrawler(doer, "https://src.example", "test-agent/1.0")
	refs, err := c.Discover(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("expected 2 refs, got %d: %+v", len(refs), refs)
	}
}

func TestGenericCrawlerFallsBackToHTML(t *testing.T) {
	doer := &stubDoer{responses: map[string]stubResponse{
		"https://src.example/api/all-files": {status: 404},
		"https://src.example/all":            {status: 404},
		"https://src.example/all.json":       {status: 404},
		"https://src.example":                {status: 404},
		"https://src.example/":               {status: 200, ctype: "text/html", body: `<html><body><a href="/files/report.pdf">Report</a></body></html>`},
	}}
	c := NewGenericCrawler(doer, "https://src.example", "test-agent/1.0")
	refs, err := c.Discover(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(refs) != 1 || refs[0].FileName != "report.pdf" {
		t.Fatalf("expected single report.pdf ref, got %+v", refs)
	}
}

func TestDOJExclusionRulesDropsTransparencyAct(t *testing.T) {
	rules := DOJExclusionRules()
	excluded := false
	for _, r := range rules {
		if r("DOJ Disclosures - Epstein Files Transparency Act", "Exhibit 1", "/epstein/transparency-act/exhibit1.pdf") {
			excluded = true
		}
	}
	if !excluded {
		t.Fatalf("expected transparency act link under DOJ disclosures to be excluded")
	}
}

func TestDOJExclusionRulesKeepsUnrelatedSections(t *testing.T) {
	rules := DOJExclusionRules()
	for _, r := range rules {
		if r("Library - Court Filings", "Exhibit 1", "/epstein/filings/exhibit1.pdf") {
			t.Fatalf("expected unrelated section to survive exclusion rules")
		}
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), 3, time.Millisecond, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), 2, time.Millisecond, func() error {
		attempts++
		return errors.New("permanent")
	})
	if err == nil {
		t.Fatalf("expected error after exhausting attempts")
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}
