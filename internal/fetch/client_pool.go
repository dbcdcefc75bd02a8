// Package fetch provides the reference HTTP Fetcher and ClientPool
// collaborators (§6): the variable, polymorphic leaves the crawl
// coordinator is built around. None of this package's state is read by
// internal/crawler; it exists purely behind the crawl.Fetcher and
// crawl.ClientPool interfaces.
package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"sitecrawl/pkg/crawl"
)

// PoolOptions configures a Pool.
type PoolOptions struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int64
	ProxyURL     string
}

// Pool is the reference ClientPool implementation (§6): a bounded set of
// HTTP clients sharing one cookie jar and transport, with mutable
// redirect/script/cookie configuration applied to every client acquired
// afterward.
type Pool struct {
	mu   sync.Mutex
	name string

	size      int
	sem       chan struct{}
	closed    bool
	transport *http.Transport
	jar       http.CookieJar

	userAgent        string
	timeout          time.Duration
	maxBodyBytes     int64
	redirectsEnabled bool
	javascript       bool
}

// NewPool constructs a pool of the given size (§6: new(size)).
func NewPool(size int, opts PoolOptions) (*Pool, error) {
	if size <= 0 {
		return nil, errors.New("fetch: pool size must be positive")
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 6 * 1024 * 1024
	}

	transport := &http.Transport{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   size,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if strings.TrimSpace(opts.ProxyURL) != "" {
		proxyURL, err := parseProxyURL(opts.ProxyURL)
		if err != nil {
			return nil, err
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return &Pool{
		size:             size,
		sem:              make(chan struct{}, size),
		transport:        transport,
		jar:              jar,
		userAgent:        opts.UserAgent,
		timeout:          timeout,
		maxBodyBytes:     maxBody,
		redirectsEnabled: true,
	}, nil
}

// httpClient builds the *http.Client a fetch job should use. This client
// shares the pool's transport and jar but takes the redirect policy as it
// stood at acquire time, matching §5's "conceptually frozen for the
// duration of a navigate() call" rule.
func (p *Pool) httpClient() *http.Client {
	p.mu.Lock()
	redirects := p.redirectsEnabled
	p.mu.Unlock()

	c := &http.Client{
		Transport: p.transport,
		Jar:       p.jar,
		Timeout:   p.timeout,
	}
	if !redirects {
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return c
}

// Acquire reserves a pool slot and returns a Client bound to it. Acquire
// blocks if the pool is saturated; the caller's context still governs the
// wait (§4.1's backpressure is enforced upstream by the coordinator, not
// here, but Acquire still respects cancellation).
func (p *Pool) Acquire(ctx context.Context) (crawl.Client, error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		<-p.sem
		return nil, errClientPoolClosed
	}

	return &httpClient{
		pool:         p,
		client:       p.httpClient(),
		userAgent:    p.userAgent,
		maxBodyBytes: p.maxBodyBytes,
		javascript:   p.javascriptEnabled(),
	}, nil
}

func (p *Pool) javascriptEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.javascript
}

// Release returns a slot to the pool.
func (p *Pool) Release(c crawl.Client) {
	select {
	case <-p.sem:
	default:
	}
}

// Close releases all clients and rejects subsequent acquires (§6).
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.transport.CloseIdleConnections()
	return nil
}

// SetName labels the pool for diagnostics (§12).
func (p *Pool) SetName(name string) {
	p.mu.Lock()
	p.name = name
	p.mu.Unlock()
}

// DisableRedirects stops the HTTP clients built from this pool from
// following redirects automatically.
func (p *Pool) DisableRedirects() {
	p.mu.Lock()
	p.redirectsEnabled = false
	p.mu.Unlock()
}

// EnableRedirects restores the default redirect-following behaviour.
func (p *Pool) EnableRedirects() {
	p.mu.Lock()
	p.redirectsEnabled = true
	p.mu.Unlock()
}

// EnableJavaScript marks the pool so a rendering-capable Fetcher can
// choose to execute scripts. This package does not itself render
// JavaScript (a Non-goal); the flag is a pass-through for an external
// Renderer collaborator.
func (p *Pool) EnableJavaScript() {
	p.mu.Lock()
	p.javascript = true
	p.mu.Unlock()
}

// AddCookie adds a cookie by name/value/domain (§12).
func (p *Pool) AddCookie(name, value, domain string) {
	p.AddCookiePrepared(&http.Cookie{Name: name, Value: value, Domain: domain})
}

// AddCookiePrepared adds a pre-built cookie to the shared jar.
func (p *Pool) AddCookiePrepared(c *http.Cookie) {
	host := c.Domain
	if host == "" {
		return
	}
	u := &url.URL{Scheme: "https", Host: host, Path: "/"}
	p.jar.SetCookies(u, []*http.Cookie{c})
}

// ClearCookies replaces the jar with a fresh, empty one, returning true
// (a pool always exists once constructed; §12's bool return models the
// Java original where a pool may not yet exist).
func (p *Pool) ClearCookies() bool {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return false
	}
	p.mu.Lock()
	p.jar = jar
	p.mu.Unlock()
	return true
}

var errClientPoolClosed = errors.New("fetch: client pool closed")
