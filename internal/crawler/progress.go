package crawler

import (
	"fmt"
	"log/slog"
	"math"
)

// progressReporter formats the stable progress string (§6) and logs
// periodic progress during the producer loop (§4.5 step 2).
type progressReporter struct {
	logger                   *slog.Logger
	reportEveryVisits        int64
	lastLoggedVisitThreshold int64
}

func newProgressReporter(logger *slog.Logger, reportEveryVisits int) *progressReporter {
	return &progressReporter{logger: logger, reportEveryVisits: int64(reportEveryVisits)}
}

// maybeLog emits a progress line once per reportEveryVisits increments of
// visitedCounter, de-duplicated by lastLoggedVisitThreshold (the Go
// analogue of the source's visitLogged set).
func (r *progressReporter) maybeLog(e *Engine) {
	if r.reportEveryVisits <= 0 {
		return
	}
	_, _, visitedCounter, _ := e.counters.snapshot()
	threshold := (visitedCounter / r.reportEveryVisits) * r.reportEveryVisits
	if threshold == 0 || threshold <= r.lastLoggedVisitThreshold {
		return
	}
	r.lastLoggedVisitThreshold = threshold
	r.logger.Info(e.CrawlProgress())
}

// CrawlProgress renders the stable progress string (§6):
//
//	"<actuallyVisited> crawled. <leftToCrawl> left to crawl.
//	 <linksScheduled> scheduled for download. <pagesScheduled> scheduled
//	 for processing. <pct>% complete."
//
// leftToCrawl = frontier.size + linksScheduled - threadLimit, which can go
// negative near completion; per §9 this is a cosmetic reporting artifact
// and is reported verbatim, never clamped.
func (e *Engine) CrawlProgress() string {
	linksScheduled, pagesScheduled, visitedCounter, actuallyVisited := e.counters.snapshot()
	leftToCrawl := int64(e.frontier.Size()) + linksScheduled - int64(e.ThreadLimit())

	denominator := visitedCounter + leftToCrawl
	var pct float64
	if denominator > 0 {
		pct = math.Round((float64(visitedCounter)/float64(denominator))*10000) / 100
	}

	return fmt.Sprintf(
		"%d crawled. %d left to crawl. %d scheduled for download. %d scheduled for processing. %.2f%% complete.",
		actuallyVisited, leftToCrawl, linksScheduled, pagesScheduled, pct,
	)
}

// Snapshot reports the four monotonic counters plus the derived figures
// used in CrawlProgress, for callers (the control API, metrics exporter)
// that want the raw numbers rather than the formatted string.
type Snapshot struct {
	ActuallyVisited int64
	VisitedCounter  int64
	LinksScheduled  int64
	PagesScheduled  int64
	LeftToCrawl     int64
	PercentComplete float64
}

// Snapshot implements the same arithmetic as CrawlProgress.
func (e *Engine) Snapshot() Snapshot {
	linksScheduled, pagesScheduled, visitedCounter, actuallyVisited := e.counters.snapshot()
	leftToCrawl := int64(e.frontier.Size()) + linksScheduled - int64(e.ThreadLimit())

	denominator := visitedCounter + leftToCrawl
	var pct float64
	if denominator > 0 {
		pct = math.Round((float64(visitedCounter)/float64(denominator))*10000) / 100
	}

	return Snapshot{
		ActuallyVisited: actuallyVisited,
		VisitedCounter:  visitedCounter,
		LinksScheduled:  linksScheduled,
		PagesScheduled:  pagesScheduled,
		LeftToCrawl:     leftToCrawl,
		PercentComplete: pct,
	}
}
