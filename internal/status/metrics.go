// Package status exposes the crawl coordinator's progress to the outside
// world: Prometheus gauges for scraping and an optional Redis channel for
// push-based subscribers.
package status

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Progress is a point-in-time snapshot of the four monotonic counters and
// the derived progress figures, independent of the crawler package so the
// status package never imports it.
type Progress struct {
	ActuallyVisited int64
	VisitedCounter  int64
	LinksScheduled  int64
	PagesScheduled  int64
	LeftToCrawl     int64
	PercentComplete float64
}

var (
	actuallyVisited = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sitecrawl_actually_visited",
		Help: "Number of pages whose fetch has completed.",
	})
	visitedCounter = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sitecrawl_visited_total",
		Help: "Number of URLs submitted for download so far.",
	})
	linksScheduled = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sitecrawl_links_scheduled",
		Help: "Number of links currently scheduled for download.",
	})
	pagesScheduled = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sitecrawl_pages_scheduled",
		Help: "Number of pages currently scheduled for processing.",
	})
	leftToCrawl = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sitecrawl_left_to_crawl",
		Help: "Estimated remaining work; cosmetic and may go negative near completion.",
	})
	percentComplete = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sitecrawl_percent_complete",
		Help: "Estimated completion percentage.",
	})
)

func init() {
	prometheus.MustRegister(actuallyVisited, visitedCounter, linksScheduled, pagesScheduled, leftToCrawl, percentComplete)
}

// Record updates the registered gauges from a progress snapshot.
func Record(p Progress) {
	actuallyVisited.Set(float64(p.ActuallyVisited))
	visitedCounter.Set(float64(p.VisitedCounter))
	linksScheduled.Set(float64(p.LinksScheduled))
	pagesScheduled.Set(float64(p.PagesScheduled))
	leftToCrawl.Set(float64(p.LeftToCrawl))
	percentComplete.Set(p.PercentComplete)
}

// Handler returns the Prometheus scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve blocks, exposing /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
