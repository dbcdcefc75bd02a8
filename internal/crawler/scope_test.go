package crawler

import "testing"

func TestPrependBaseURLIfNeeded(t *testing.T) {
	s := NewScope("http://example.com", "")

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"already absolute", "https://other.com/x", "https://other.com/x"},
		{"rooted path", "/articles/1", "http://example.com/articles/1"},
		{"relative path", "articles/1", "http://example.com/articles/1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := s.PrependBaseURLIfNeeded(tc.in); got != tc.want {
				t.Errorf("PrependBaseURLIfNeeded(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestGetCleanedURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"http://example.com/a/b?x=1", "example.com/a/b"},
		{"https://example.com:8443/a/b#frag", "example.com/a/b"},
		{"http://example.com", "example.com"},
		{"not-a-url", "not-a-url"},
	}
	for _, tc := range cases {
		if got := GetCleanedURL(tc.in); got != tc.want {
			t.Errorf("GetCleanedURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestGetCleanedURLIdempotent(t *testing.T) {
	raw := "http://example.com:80/a/b?x=1#y"
	once := GetCleanedURL(raw)
	twice := GetCleanedURL(once)
	if once != twice {
		t.Errorf("GetCleanedURL is not idempotent: %q != %q", once, twice)
	}
}

func TestIsExcluded(t *testing.T) {
	s := NewScope("http://example.com", "")
	s.SetBlocked([]string{"/private/"})
	visited := NewVisitedSet()

	if !s.IsExcluded("http://other.com/page.html", visited) {
		t.Error("expected out-of-scope host to be excluded")
	}
	if !s.IsExcluded("http://example.com/data.json", visited) {
		t.Error("expected disallowed suffix to be excluded")
	}
	if !s.IsExcluded("http://example.com/private/x.html", visited) {
		t.Error("expected blocked pattern to be excluded")
	}
	if s.IsExcluded("http://example.com/page.html", visited) {
		t.Error("expected in-scope, allowed-suffix, unvisited url to not be excluded")
	}

	visited.AddBoth("http://example.com/page.html")
	if !s.IsExcluded("http://example.com/page.html", visited) {
		t.Error("expected already-visited url to be excluded")
	}
}

func TestIsExcludedIdempotent(t *testing.T) {
	s := NewScope("http://example.com", "")
	visited := NewVisitedSet()
	url := "http://example.com/page.html"

	first := s.IsExcluded(url, visited)
	second := s.IsExcluded(url, visited)
	if first != second {
		t.Errorf("IsExcluded is not idempotent without state change: %v != %v", first, second)
	}
}

func TestIsExcludedSecureBaseURL(t *testing.T) {
	s := NewScope("http://example.com", "https://example.com")
	visited := NewVisitedSet()
	if s.IsExcluded("https://example.com/page.html", visited) {
		t.Error("expected secure base url variant to be in scope")
	}
}
