package fetch

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"sitecrawl/pkg/crawl"
)

// Fetcher is the reference crawl.Fetcher (§6): it acquires a client from
// the pool, applies per-host politeness, fetches, and releases the
// client on exit regardless of outcome.
type Fetcher struct {
	limiter *DomainLimiter
}

// NewFetcher builds a Fetcher with the given per-host politeness limiter.
// A nil limiter disables politeness waits entirely.
func NewFetcher(limiter *DomainLimiter) *Fetcher {
	return &Fetcher{limiter: limiter}
}

// Fetch implements crawl.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, pool crawl.ClientPool, rawURL string) (*crawl.Document, error) {
	client, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch: acquire client: %w", err)
	}
	defer pool.Release(client)

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, hostOf(rawURL)); err != nil {
			return nil, fmt.Errorf("fetch: politeness wait: %w", err)
		}
	}

	return client.Fetch(ctx, rawURL)
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
