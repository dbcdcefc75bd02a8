package crawler

import "strings"

// defaultAllowedSuffixes mirrors the original crawler's default suffix list.
var defaultAllowedSuffixes = []string{"/", ".jsp", ".htm", ".html"}

// Scope decides whether a URL is eligible for crawling. It is frozen for
// the duration of a navigate() call (§5); mutating it mid-crawl has
// undefined observable timing.
type Scope struct {
	baseURL         string
	baseURLSecure   string
	allowedSuffixes []string
	blocked         []string
}

// NewScope builds a Scope from a primary base URL and an optional secure
// variant. baseURLSecure may be empty, in which case only baseURL matches.
func NewScope(baseURL, baseURLSecure string) *Scope {
	return &Scope{
		baseURL:         baseURL,
		baseURLSecure:   baseURLSecure,
		allowedSuffixes: append([]string(nil), defaultAllowedSuffixes...),
	}
}

// SetBlocked replaces the blocked-pattern list.
func (s *Scope) SetBlocked(patterns []string) {
	s.blocked = append([]string(nil), patterns...)
}

// AllowedSuffixes returns the live, mutable suffix list (§6:
// getAllowedSuffixes is mutable before navigate).
func (s *Scope) AllowedSuffixes() []string {
	return s.allowedSuffixes
}

// SetAllowedSuffixes replaces the suffix list.
func (s *Scope) SetAllowedSuffixes(suffixes []string) {
	s.allowedSuffixes = append([]string(nil), suffixes...)
}

// BaseURL returns the primary base URL.
func (s *Scope) BaseURL() string { return s.baseURL }

// PrependBaseURLIfNeeded promotes a relative path to an absolute URL by
// prepending the primary base URL, per §3: a URL whose scheme marker
// "://" is already present is used verbatim.
func (s *Scope) PrependBaseURLIfNeeded(raw string) string {
	if strings.Contains(raw, "://") {
		return raw
	}
	if strings.HasPrefix(raw, "/") {
		return s.baseURL + raw
	}
	return s.baseURL + "/" + raw
}

// GetCleanedURL reduces a URL to its host+path form (§3), discarding
// scheme, port, and query. Malformed input is returned unchanged; the
// cleaned form is advisory, never authoritative for scope decisions beyond
// the visited-set lookup.
func GetCleanedURL(raw string) string {
	rest := raw
	if idx := strings.Index(rest, "://"); idx >= 0 {
		rest = rest[idx+3:]
	}
	if q := strings.IndexByte(rest, '?'); q >= 0 {
		rest = rest[:q]
	}
	if f := strings.IndexByte(rest, '#'); f >= 0 {
		rest = rest[:f]
	}
	slash := strings.IndexByte(rest, '/')
	var host, path string
	if slash < 0 {
		host, path = rest, ""
	} else {
		host, path = rest[:slash], rest[slash:]
	}
	if colon := strings.IndexByte(host, ':'); colon >= 0 {
		host = host[:colon]
	}
	return host + path
}

func pathOnly(raw string) string {
	if q := strings.IndexByte(raw, '?'); q >= 0 {
		return raw[:q]
	}
	return raw
}

func hasAllowedSuffix(path string, suffixes []string) bool {
	lowered := strings.ToLower(path)
	for _, suffix := range suffixes {
		if strings.HasSuffix(lowered, suffix) {
			return true
		}
	}
	return false
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if n == "" {
			continue
		}
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// IsExcluded implements §4.6: a URL is excluded iff ANY of: it does not
// start with either base URL; its lowercased path does not end with an
// allowed suffix; it is already visited (raw or cleaned form); or a
// blocked pattern is a substring of it. Order of checks is observable only
// via logging; semantics are set-union, so evaluation order here is not a
// contract a caller may depend on.
func (s *Scope) IsExcluded(url string, visited *VisitedSet) bool {
	if !s.inBaseScope(url) {
		return true
	}
	if !hasAllowedSuffix(pathOnly(url), s.allowedSuffixes) {
		return true
	}
	if visited.Contains(url) {
		return true
	}
	if containsAny(url, s.blocked) {
		return true
	}
	if visited.Contains(GetCleanedURL(url)) {
		return true
	}
	return false
}

func (s *Scope) inBaseScope(url string) bool {
	if s.baseURL != "" && strings.HasPrefix(url, s.baseURL) {
		return true
	}
	if s.baseURLSecure != "" && strings.HasPrefix(url, s.baseURLSecure) {
		return true
	}
	return false
}
