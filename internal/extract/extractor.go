// Package extract provides the reference HTML link extractor (§6): a
// polymorphic leaf outside the crawl coordinator's core. It discovers
// outbound link candidates from a fetched document; scope and
// deduplication decisions remain the coordinator's responsibility.
package extract

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"sitecrawl/pkg/crawl"
)

// Options bounds link discovery per page.
type Options struct {
	MaxLinksPerPage int
}

// LinkExtractor is the reference crawl.Extractor: goquery-based anchor
// discovery, resolving relative hrefs against the document's final URL.
type LinkExtractor struct {
	maxLinks int
}

// NewLinkExtractor builds an extractor with the given options.
func NewLinkExtractor(opts Options) *LinkExtractor {
	maxLinks := opts.MaxLinksPerPage
	if maxLinks <= 0 {
		maxLinks = 200
	}
	return &LinkExtractor{maxLinks: maxLinks}
}

// ExtractLinks implements crawl.Extractor.
func (x *LinkExtractor) ExtractLinks(doc *crawl.Document) ([]string, error) {
	if doc == nil || len(doc.Body) == 0 {
		return nil, nil
	}

	base, err := url.Parse(doc.FinalURL)
	if err != nil || base == nil {
		base, err = url.Parse(doc.URL)
		if err != nil {
			return nil, err
		}
	}

	parsed, err := goquery.NewDocumentFromReader(bytes.NewReader(doc.Body))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	links := make([]string, 0, x.maxLinks)

	parsed.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, ok := s.Attr("href")
		if !ok {
			return true
		}
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "tel:") {
			return true
		}

		resolved, err := base.Parse(href)
		if err != nil {
			return true
		}
		resolved.Fragment = ""
		scheme := strings.ToLower(resolved.Scheme)
		if scheme != "http" && scheme != "https" {
			return true
		}

		key := resolved.String()
		if _, exists := seen[key]; exists {
			return true
		}
		seen[key] = struct{}{}
		links = append(links, key)
		return len(links) < x.maxLinks
	})

	return links, nil
}
