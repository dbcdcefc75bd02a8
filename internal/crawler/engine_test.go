package crawler_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sitecrawl/internal/crawler"
	"sitecrawl/internal/extract"
	"sitecrawl/internal/fetch"
	"sitecrawl/pkg/crawl"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func newTestEngine(t *testing.T, baseURL string, opts ...crawler.Option) (*crawler.Engine, *fetch.Fetcher) {
	t.Helper()
	fetcher := fetch.NewFetcher(nil)
	extractor := extract.NewLinkExtractor(extract.Options{})
	factory := func(size int) (crawl.ClientPool, error) {
		return fetch.NewPool(size, fetch.PoolOptions{UserAgent: "test-agent", Timeout: 5 * time.Second, MaxBodyBytes: 1 << 20})
	}
	opts = append([]crawler.Option{crawler.WithLogger(discardLogger())}, opts...)
	engine, err := crawler.NewEngine(baseURL, "", fetcher, extractor, factory, nil, opts...)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return engine, fetcher
}

func TestNavigateSinglePage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>no links here</body></html>`)
	}))
	defer srv.Close()

	engine, _ := newTestEngine(t, srv.URL+"/", crawler.WithThreadLimit(2))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := engine.Navigate(ctx); err != nil {
		t.Fatalf("Navigate: %v", err)
	}

	snap := engine.Snapshot()
	if snap.ActuallyVisited != 1 {
		t.Fatalf("ActuallyVisited = %d, want 1", snap.ActuallyVisited)
	}
	if snap.VisitedCounter != snap.ActuallyVisited {
		t.Fatalf("invariant broken: visitedCounter=%d actuallyVisited=%d", snap.VisitedCounter, snap.ActuallyVisited)
	}
}

func TestNavigateThreePageMutualGraph(t *testing.T) {
	var mux http.ServeMux
	var baseURL string

	pages := map[string]string{
		"/a.html": `<a href="%s/b.html">b</a> <a href="%s/c.html">c</a>`,
		"/b.html": `<a href="%s/a.html">a</a> <a href="%s/c.html">c</a>`,
		"/c.html": `<a href="%s/a.html">a</a> <a href="%s/b.html">b</a>`,
	}
	for path, body := range pages {
		path, body := path, body
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, body, baseURL, baseURL)
		})
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<a href="%s/a.html">a</a>`, baseURL)
	})

	srv := httptest.NewServer(&mux)
	defer srv.Close()
	baseURL = srv.URL

	engine, _ := newTestEngine(t, srv.URL+"/", crawler.WithThreadLimit(4))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := engine.Navigate(ctx); err != nil {
		t.Fatalf("Navigate: %v", err)
	}

	snap := engine.Snapshot()
	if snap.ActuallyVisited != 4 {
		t.Fatalf("ActuallyVisited = %d, want 4 (root + a + b + c)", snap.ActuallyVisited)
	}
	if snap.LinksScheduled != 0 || snap.PagesScheduled != 0 {
		t.Fatalf("expected quiescence at termination, got linksScheduled=%d pagesScheduled=%d", snap.LinksScheduled, snap.PagesScheduled)
	}
}

func TestNavigateBlockedPatternExcludesPage(t *testing.T) {
	var baseURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<a href="%s/private/secret.html">secret</a> <a href="%s/public.html">public</a>`, baseURL, baseURL)
	})
	mux.HandleFunc("/public.html", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `no links`)
	})
	mux.HandleFunc("/private/secret.html", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `should not be fetched`)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()
	baseURL = srv.URL

	engine, _ := newTestEngine(t, srv.URL+"/", crawler.WithThreadLimit(2))
	engine.SetBlocked([]string{"/private/"})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := engine.Navigate(ctx); err != nil {
		t.Fatalf("Navigate: %v", err)
	}

	snap := engine.Snapshot()
	if snap.ActuallyVisited != 2 {
		t.Fatalf("ActuallyVisited = %d, want 2 (root + public, secret blocked)", snap.ActuallyVisited)
	}
}

func TestNavigateOutOfScopeHostIgnored(t *testing.T) {
	external := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("external host should never be fetched")
	}))
	defer external.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<a href="%s">external</a>`, external.URL)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	engine, _ := newTestEngine(t, srv.URL+"/", crawler.WithThreadLimit(2))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := engine.Navigate(ctx); err != nil {
		t.Fatalf("Navigate: %v", err)
	}

	snap := engine.Snapshot()
	if snap.ActuallyVisited != 1 {
		t.Fatalf("ActuallyVisited = %d, want 1 (only root, external host excluded)", snap.ActuallyVisited)
	}
}

func TestNavigateShortCircuitAfterInfiniteChain(t *testing.T) {
	var baseURL string
	var counter int64
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&counter, 1)
		fmt.Fprintf(w, `<a href="%s/page%d.html">next</a>`, baseURL, n)
	})
	mux.Handle("/page1.html", chainHandler(&baseURL, &counter))
	for i := 2; i <= 10; i++ {
		mux.Handle(fmt.Sprintf("/page%d.html", i), chainHandler(&baseURL, &counter))
	}

	srv := httptest.NewServer(mux)
	defer srv.Close()
	baseURL = srv.URL

	engine, _ := newTestEngine(t, srv.URL+"/", crawler.WithThreadLimit(1))
	if err := engine.SetShortCircuitAfter(2); err != nil {
		t.Fatalf("SetShortCircuitAfter: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := engine.Navigate(ctx); err != nil {
		t.Fatalf("Navigate: %v", err)
	}

	snap := engine.Snapshot()
	if snap.ActuallyVisited == 0 {
		t.Fatal("expected at least one page visited before short-circuit stopped the crawl")
	}
}

func chainHandler(baseURL *string, counter *int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(counter, 1)
		fmt.Fprintf(w, `<a href="%s/page%d.html">next</a>`, *baseURL, n)
	}
}

func TestMaxProcessWaitingOneStillPermitsForwardProgress(t *testing.T) {
	var baseURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<a href="%s/b.html">b</a>`, baseURL)
	})
	mux.HandleFunc("/b.html", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `no links`)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()
	baseURL = srv.URL

	engine, _ := newTestEngine(t, srv.URL+"/", crawler.WithThreadLimit(2))
	if err := engine.SetMaxProcessWaiting(1); err != nil {
		t.Fatalf("SetMaxProcessWaiting: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := engine.Navigate(ctx); err != nil {
		t.Fatalf("Navigate: %v", err)
	}

	snap := engine.Snapshot()
	if snap.ActuallyVisited != 2 {
		t.Fatalf("ActuallyVisited = %d, want 2 (root + b, even with maxProcessWaiting=1)", snap.ActuallyVisited)
	}
}

func TestSetThreadLimitResetsMidCrawl(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `no links`)
	}))
	defer srv.Close()

	engine, _ := newTestEngine(t, srv.URL+"/", crawler.WithThreadLimit(2))
	if engine.ThreadLimit() != 2 {
		t.Fatalf("ThreadLimit() = %d, want 2", engine.ThreadLimit())
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = engine.Navigate(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	if err := engine.SetThreadLimit(4); err != nil {
		t.Fatalf("SetThreadLimit: %v", err)
	}
	wg.Wait()

	if engine.ThreadLimit() != 4 {
		t.Fatalf("ThreadLimit() after reset = %d, want 4", engine.ThreadLimit())
	}
	if engine.State() != crawler.StateStopped {
		t.Fatalf("State() = %v, want stopped", engine.State())
	}
}
