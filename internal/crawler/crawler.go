// Package crawler discovers downloadable document URLs from a source
// endpoint. GenericCrawler is grounded on
// original_source/ingestion/crawler.py's DocumentCrawler (JSON-manifest and
// HTML-link discovery against an unknown CF-Worker-style endpoint);
// SiteCrawler is grounded on original_source/ingestion/doj_crawler.py's
// DOJEpsteinCrawler (section-aware HTML walking with declarative exclusion
// rules), but deliberately does not port that file's Akamai interstitial
// bypass: that handshake is specific to one deployment's bot-mitigation
// vendor and is not a generalizable crawling capability.
package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// FileRef is a single discovered downloadable file.
type FileRef struct {
	URL         string
	FileName    string
	FileType    string
	Section     string
	Description string
}

var downloadableExts = map[string]bool{
	".pdf": true, ".jpg": true, ".jpeg": true, ".png": true,
	".tiff": true, ".tif": true, ".bmp": true, ".doc": true, ".docx": true,
}

// ExtOf reports the lowercased extension and file-kind string for name if
// it matches a downloadable type, so both crawler and fetcher/core can
// classify a filename without duplicating the allowlist.
func ExtOf(name string) (ext string, kind string, ok bool) {
	ext = strings.ToLower(path.Ext(name))
	if !downloadableExts[ext] {
		return "", "", false
	}
	return ext, strings.TrimPrefix(ext, "."), true
}

// HTTPDoer is the minimal surface GenericCrawler and SiteCrawler need from
// an HTTP client, so tests can substitute a stub transport.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Retry runs fn up to attempts times with exponential backoff
// (coefficient 2, starting at base), the same shape LitFlow's workflow
// retry policies use for embedding-provider failover, adapted here to a
// plain loop since there is no durable-workflow runtime in this module.
func Retry(ctx context.Context, attempts int, base time.Duration, fn func() error) error {
	var lastErr error
	wait := base
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	return fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}

// GenericCrawler discovers files from an unknown source endpoint by trying
// a fixed list of manifest-style candidate URLs, then falling back to HTML
// link scraping.
type GenericCrawler struct {
	client    HTTPDoer
	root      string
	userAgent string
}

func NewGenericCrawler(client HTTPDoer, root, userAgent string) *GenericCrawler {
	return &GenericCrawler{client: client, root: strings.TrimRight(root, "/"), userAgent: userAgent}
}

// candidateListingURLs mirrors _candidate_listing_urls: order matters,
// endpoints likely to return the full unpaginated set come first.
func (c *GenericCrawler) candidateListingURLs() []string {
	base := c.root
	return []string{
		base + "/api/all-files",
		base + "/all",
		base + "/all.json",
		base,
		base + "/",
		base + "/index",
		base + "/index.html",
		base + "/index.json",
		base + "/manifest.json",
		base + "/files.json",
		base + "/list.json",
		base + "/api",
		base + "/api/list",
		base + "/api/files",
		base + "/files",
		base + "/list",
	}
}

// Discover tries each candidate listing URL in order until one returns
// HTTP 200, then parses it as JSON (several manifest shapes) or, failing
// that, as an HTML link list.
func (c *GenericCrawler) Discover(ctx context.Context) ([]FileRef, error) {
	var body []byte
	var contentType string
	for _, candidate := range c.candidateListingURLs() {
		b, ct, err := c.get(ctx, candidate)
		if err != nil {
			continue
		}
		body, contentType = b, ct
		break
	}
	if body == nil {
		return nil, fmt.Errorf("no listing candidate returned a usable response")
	}

	trimmed := strings.TrimSpace(string(body))
	if strings.Contains(contentType, "application/json") || strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		if refs, err := c.extractFromJSON(body); err == nil && len(refs) > 0 {
			return refs, nil
		}
	}
	return c.extractFromHTML(body)
}

func (c *GenericCrawler) get(ctx context.Context, u string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json,text/html;q=0.9,*/*;q=0.8")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("%s: status %d", u, resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	return b, strings.ToLower(resp.Header.Get("Content-Type")), nil
}

// extractFromJSON handles the manifest shapes _extract_files_from_json
// supports: a flat list of URL strings, a list of {key|url|href|path,
// filename|name} objects, an object wrapping one of those lists under
// files/items/data/results, or a flat filename->url map.
func (c *GenericCrawler) extractFromJSON(body []byte) ([]FileRef, error) {
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	var out []FileRef
	handleItem := func(item any) {
		switch v := item.(type) {
		case string:
			if ref, ok := c.refFromHref(v, ""); ok {
				out = append(out, ref)
			}
		case map[string]any:
			href, _ := firstString(v, "key", "url", "href", "path")
			name, _ := firstString(v, "filename", "name")
			if href == "" {
				return
			}
			if name == "" {
				name = path.Base(href)
			}
			if ref, ok := c.refFromHref(strings.TrimPrefix(href, "/"), name); ok {
				out = append(out, ref)
			}
		}
	}
	switch v := raw.(type) {
	case []any:
		for _, item := range v {
			handleItem(item)
		}
	case map[string]any:
		for _, key := range []string{"files", "items", "data", "results"} {
			if list, ok := v[key].([]any); ok {
				for _, item := range list {
					handleItem(item)
				}
			}
		}
		if len(out) == 0 {
			for _, val := range v {
				if s, ok := val.(string); ok {
					handleItem(s)
				}
			}
		}
	}
	return out, nil
}

func firstString(m map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

func (c *GenericCrawler) refFromHref(href, name string) (FileRef, bool) {
	full, err := resolve(c.root+"/", href)
	if err != nil {
		return FileRef{}, false
	}
	if name == "" {
		name = path.Base(href)
	}
	_, kind, ok := ExtOf(name)
	if !ok {
		return FileRef{}, false
	}
	return FileRef{URL: full, FileName: name, FileType: kind}, true
}

func (c *GenericCrawler) extractFromHTML(body []byte) ([]FileRef, error) {
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	var out []FileRef
	walkAnchors(doc, func(href, _ string) {
		full, err := resolve(c.root+"/", href)
		if err != nil {
			return
		}
		name := path.Base(full)
		_, kind, ok := ExtOf(name)
		if !ok {
			return
		}
		out = append(out, FileRef{URL: full, FileName: name, FileType: kind})
	})
	return out, nil
}

func resolve(base, href string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}

func walkAnchors(n *html.Node, fn func(href, text string)) {
	if n.Type == html.ElementNode && n.DataAtom == atom.A {
		for _, attr := range n.Attr {
			if attr.Key == "href" && attr.Val != "" {
				fn(attr.Val, anchorText(n))
				break
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkAnchors(c, fn)
	}
}

func anchorText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}
