package crawler

import (
	"context"
	"time"

	"sitecrawl/pkg/crawl"
)

// fetchResult is the per-URL outcome produced by the fetch stage (§4.1):
// either a fetched document or a FetchFailed error, never both.
type fetchResult struct {
	url string
	doc *crawl.Document
	err error
}

// fetchStage submits fetch jobs to a bounded worker pool (size W,
// threadLimit) and yields results in completion order via pollCompleted.
// It never touches the frontier — enqueuing newly-discovered links is the
// parse stage's job.
type fetchStage struct {
	pool       *completionPool[fetchResult]
	fetcher    crawl.Fetcher
	clientPool crawl.ClientPool
	counters   *counters
}

func newFetchStage(ctx context.Context, fetcher crawl.Fetcher, clientPool crawl.ClientPool, counters *counters, workers, doneBuffer int) (*fetchStage, error) {
	pool, err := newCompletionPool[fetchResult](ctx, workers, doneBuffer)
	if err != nil {
		return nil, err
	}
	return &fetchStage{pool: pool, fetcher: fetcher, clientPool: clientPool, counters: counters}, nil
}

// submit adds a fetch job and increments linksScheduled, per §4.1 and the
// ordering rule in §4.5 (increment follows successful submission).
func (fs *fetchStage) submit(url string) error {
	err := fs.pool.Submit(func(ctx context.Context) fetchResult {
		doc, ferr := fs.fetcher.Fetch(ctx, fs.clientPool, url)
		if ferr != nil {
			return fetchResult{url: url, err: &FetchFailed{URL: url, Cause: ferr}}
		}
		return fetchResult{url: url, doc: doc}
	})
	if err != nil {
		return err
	}
	fs.counters.linksScheduled.Add(1)
	return nil
}

// pollCompleted returns the next completed fetch, or ok=false on timeout
// (§4.1: "on timeout, returns none, not an error").
func (fs *fetchStage) pollCompleted(timeout time.Duration) (fetchResult, bool) {
	return fs.pool.PollCompleted(timeout)
}

func (fs *fetchStage) close() {
	fs.pool.Close()
}
