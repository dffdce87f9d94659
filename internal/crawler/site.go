package crawler

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ExclusionRule decides whether a discovered link should be dropped from
// the result set, given the section heading it was found under, its link
// text, and its href. Rules are data, not code branches, matching
// original_source's declarative _should_exclude.
type ExclusionRule func(section, linkText, href string) bool

// DOJExclusionRules reproduces _should_exclude: drop anything filed under a
// "DOJ Disclosures" section whose subsection or link text names the
// "Epstein Files Transparency Act".
func DOJExclusionRules() []ExclusionRule {
	return []ExclusionRule{
		func(section, linkText, href string) bool {
			sectionLower := strings.ToLower(section)
			isDOJDisclosures := containsAny(sectionLower,
				"doj disclosures", "doj disclosure",
				"department of justice disclosures", "department of justice disclosure")
			if !isDOJDisclosures {
				return false
			}
			if strings.Contains(sectionLower, "epstein files transparency act") {
				return true
			}
			linkLower := strings.ToLower(linkText)
			hrefLower := strings.ToLower(href)
			isTransparencyAct := containsAny(linkLower, "epstein files transparency act", "transparency act", "efta") ||
				strings.Contains(hrefLower, "transparency-act")
			return isTransparencyAct
		},
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// SiteCrawler walks a known landing page plus its linked subpages,
// grouping links by the section heading under which they appear so
// ExclusionRules can act on that context, grounded on DOJEpsteinCrawler's
// discover_files.
type SiteCrawler struct {
	client    HTTPDoer
	baseURL   string
	userAgent string
	exclude   []ExclusionRule
}

func NewSiteCrawler(client HTTPDoer, baseURL, userAgent string, exclude []ExclusionRule) *SiteCrawler {
	return &SiteCrawler{client: client, baseURL: strings.TrimRight(baseURL, "/"), userAgent: userAgent, exclude: exclude}
}

var sectionClassPattern = regexp.MustCompile(`(?i)(content|document|file|download|view|field|block)`)

// Discover fetches the base page, follows every link back into the same
// site section, and returns the union of discovered downloadable files
// minus anything any ExclusionRule vetoes.
func (c *SiteCrawler) Discover(ctx context.Context) ([]FileRef, error) {
	rootHTML, err := c.fetchHTML(ctx, c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", c.baseURL, err)
	}
	rootDoc, err := html.Parse(strings.NewReader(rootHTML))
	if err != nil {
		return nil, err
	}

	type page struct{ url, label string }
	pages := []page{{c.baseURL, "Library"}}
	seenPages := map[string]bool{c.baseURL: true}
	basePrefix := c.sitePrefix()
	walkAnchors(rootDoc, func(href, _ string) {
		if !strings.HasPrefix(href, basePrefix) {
			return
		}
		full, err := resolve(c.baseURL+"/", href)
		if err != nil || seenPages[full] {
			return
		}
		seenPages[full] = true
		label := strings.TrimPrefix(href, basePrefix)
		label = strings.ReplaceAll(strings.Trim(label, "/"), "-", " ")
		if label == "" {
			label = "Library"
		}
		pages = append(pages, page{full, titleWords(label)})
	})

	var out []FileRef
	found := map[string]bool{}
	for _, p := range pages {
		pageHTML, err := c.fetchHTML(ctx, p.url)
		if err != nil {
			continue
		}
		doc, err := html.Parse(strings.NewReader(pageHTML))
		if err != nil {
			continue
		}
		out = append(out, c.extractPage(doc, p.label, found)...)
	}
	return out, nil
}

func (c *SiteCrawler) sitePrefix() string {
	// /epstein/ style prefix derived from the base URL's final path segment.
	idx := strings.LastIndex(c.baseURL, "/")
	if idx < 0 {
		return "/"
	}
	return c.baseURL[idx:] + "/"
}

func titleWords(s string) string {
	fields := strings.Fields(s)
	for i, w := range fields {
		if len(w) == 0 {
			continue
		}
		fields[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(fields, " ")
}

func (c *SiteCrawler) extractPage(doc *html.Node, pageLabel string, found map[string]bool) []FileRef {
	var out []FileRef
	maybeAdd := func(href, linkText, section, description string) {
		full, err := resolve(c.baseURL+"/", href)
		if err != nil || found[full] {
			return
		}
		name := pathBase(full)
		_, kind, ok := ExtOf(name)
		if !ok {
			return
		}
		if c.isExcluded(section, linkText, href) {
			found[full] = true
			return
		}
		found[full] = true
		if len(description) > 200 {
			description = description[:200]
		}
		out = append(out, FileRef{URL: full, FileName: name, FileType: kind, Section: section, Description: description})
	}

	var sections []*html.Node
	collectSections(doc, &sections)
	for _, section := range sections {
		heading := findHeadingText(section)
		sectionName := pageLabel
		if heading != "" {
			sectionName = pageLabel + " - " + heading
		}
		walkAnchors(section, func(href, linkText string) {
			maybeAdd(href, linkText, sectionName, linkText)
		})
	}
	walkAnchors(doc, func(href, linkText string) {
		maybeAdd(href, linkText, pageLabel, linkText)
	})
	return out
}

func (c *SiteCrawler) isExcluded(section, linkText, href string) bool {
	for _, rule := range c.exclude {
		if rule(section, linkText, href) {
			return true
		}
	}
	return false
}

func collectSections(n *html.Node, out *[]*html.Node) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Div, atom.Section, atom.Article:
			if hasMatchingClass(n) {
				*out = append(*out, n)
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectSections(c, out)
	}
}

func hasMatchingClass(n *html.Node) bool {
	for _, attr := range n.Attr {
		if attr.Key == "class" && sectionClassPattern.MatchString(attr.Val) {
			return true
		}
	}
	return false
}

func findHeadingText(n *html.Node) string {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5:
			return anchorText(n)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findHeadingText(c); t != "" {
			return t
		}
	}
	return ""
}

func (c *SiteCrawler) fetchHTML(ctx context.Context, u string) (string, error) {
	b, _, err := c.get(ctx, u)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (c *SiteCrawler) get(ctx context.Context, u string) ([]byte, string, error) {
	gc := &GenericCrawler{client: c.client, root: c.baseURL, userAgent: c.userAgent}
	return gc.get(ctx, u)
}

func pathBase(u string) string {
	idx := strings.LastIndex(u, "/")
	if idx < 0 {
		return u
	}
	name := u[idx+1:]
	if q := strings.IndexByte(name, '?'); q >= 0 {
		name = name[:q]
	}
	return name
}
