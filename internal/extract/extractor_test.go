package extract

import (
	"testing"

	"sitecrawl/pkg/crawl"
)

func TestExtractLinksResolvesRelative(t *testing.T) {
	doc := &crawl.Document{
		URL:      "http://example.com/dir/page.html",
		FinalURL: "http://example.com/dir/page.html",
		Body: []byte(`<html><body>
			<a href="other.html">relative</a>
			<a href="/root.html">rooted</a>
			<a href="https://example.com/abs.html">absolute</a>
			<a href="javascript:void(0)">skip</a>
			<a href="mailto:a@b.com">skip</a>
			<a href="#frag">skip</a>
		</body></html>`),
	}

	x := NewLinkExtractor(Options{})
	links, err := x.ExtractLinks(doc)
	if err != nil {
		t.Fatalf("ExtractLinks: %v", err)
	}

	want := map[string]bool{
		"http://example.com/dir/other.html": true,
		"http://example.com/root.html":      true,
		"https://example.com/abs.html":      true,
	}
	if len(links) != len(want) {
		t.Fatalf("got %d links, want %d: %v", len(links), len(want), links)
	}
	for _, l := range links {
		if !want[l] {
			t.Errorf("unexpected link %q", l)
		}
	}
}

func TestExtractLinksDedupesAndCapsLength(t *testing.T) {
	doc := &crawl.Document{
		URL:      "http://example.com/",
		FinalURL: "http://example.com/",
		Body:     []byte(`<a href="/a">a</a><a href="/a">a again</a><a href="/b">b</a>`),
	}
	x := NewLinkExtractor(Options{MaxLinksPerPage: 1})
	links, err := x.ExtractLinks(doc)
	if err != nil {
		t.Fatalf("ExtractLinks: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("got %d links, want 1 (capped)", len(links))
	}
}

func TestExtractLinksEmptyBody(t *testing.T) {
	x := NewLinkExtractor(Options{})
	links, err := x.ExtractLinks(&crawl.Document{URL: "http://example.com/"})
	if err != nil {
		t.Fatalf("ExtractLinks: %v", err)
	}
	if links != nil {
		t.Fatalf("expected nil links for empty body, got %v", links)
	}
}
