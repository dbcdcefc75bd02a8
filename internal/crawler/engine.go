// Package crawler implements the crawl coordinator: the concurrency engine
// that marries a network-bound fetch stage to a CPU-bound parse stage
// while enforcing scope, deduplication, backpressure, pause/resume, and
// graceful shutdown.
package crawler

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"sitecrawl/pkg/crawl"
)

// downloadVsProcessRatio is a design constant (§9), not a tuning knob: the
// parse pool is always half the width of the fetch pool.
const downloadVsProcessRatio = 0.5

// pollInterval is the 5-second poll used by every suspension point in the
// coordinator, the completion consumers, and the backpressure sleep (§5).
const pollInterval = 5 * time.Second

// shutdownGrace is the per-pool termination grace period (§4.7, §5).
const shutdownGrace = 2 * time.Minute

// State is one of the four lifecycle states (§3, §4.7).
type State int32

const (
	StateConfigured State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateConfigured:
		return "configured"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ClientPoolFactory builds a fresh ClientPool of the given size. init()
// and hardUnpause() call this to recreate the pool without losing the
// cookie/redirect/script configuration applied so far.
type ClientPoolFactory func(size int) (crawl.ClientPool, error)

type pendingClientConfig struct {
	name             string
	redirectsEnabled bool
	javascript       bool
	cookies          []*http.Cookie
}

// Engine is a single crawler instance. All state is per-instance; no
// process-wide singletons (§9) — a host may run many Engines concurrently.
type Engine struct {
	mu sync.Mutex

	scope     *Scope
	visited   *VisitedSet
	scheduled *ScheduledSet
	frontier  *Frontier
	counters  *counters

	actions   []crawl.Action
	fetcher   crawl.Fetcher
	extractor crawl.Extractor

	clientPoolFactory ClientPoolFactory
	clientPool        crawl.ClientPool
	pendingClient     pendingClientConfig

	threadLimit       atomic.Int64
	maxProcessWaiting atomic.Int64
	shortCircuitAfter atomic.Int64
	forcePause        atomic.Bool
	stopFlag          atomic.Bool
	discoverEnabled   atomic.Bool

	state State

	fetchStage *fetchStage
	parseStage *parseStage
	progress   *progressReporter
	logger     *slog.Logger

	consumerCtx    context.Context
	consumerCancel context.CancelFunc
	consumerWG     sync.WaitGroup

	runID string
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithThreadLimit sets the initial fetch concurrency (default: NumCPU).
func WithThreadLimit(n int) Option {
	return func(e *Engine) { e.threadLimit.Store(int64(n)) }
}

// WithReportEvery overrides the progress-reporting cadence (default 2000,
// per reportProgressPerDownloadedPages in §4.5).
func WithReportEvery(n int) Option {
	return func(e *Engine) { e.progress = newProgressReporter(e.logger, n) }
}

// NewEngine constructs an Engine per the Control API constructor (§6):
// constructor(baseUrl, baseUrlSecure?, actions).
func NewEngine(baseURL, baseURLSecure string, fetcher crawl.Fetcher, extractor crawl.Extractor, clientPoolFactory ClientPoolFactory, actions []crawl.Action, opts ...Option) (*Engine, error) {
	if baseURL == "" {
		return nil, &ConfigError{Field: "baseUrl", Msg: "must not be empty"}
	}
	if fetcher == nil || extractor == nil || clientPoolFactory == nil {
		return nil, &ConfigError{Field: "collaborators", Msg: "fetcher, extractor, and client pool factory are required"}
	}

	e := &Engine{
		scope:             NewScope(baseURL, baseURLSecure),
		visited:           NewVisitedSet(),
		scheduled:         NewScheduledSet(),
		frontier:          NewFrontier(),
		counters:          &counters{},
		actions:           append([]crawl.Action(nil), actions...),
		fetcher:           fetcher,
		extractor:         extractor,
		clientPoolFactory: clientPoolFactory,
		logger:            slog.Default(),
		state:             StateConfigured,
	}
	e.threadLimit.Store(int64(defaultThreadLimit()))
	e.maxProcessWaiting.Store(2000)
	e.discoverEnabled.Store(true)
	e.pendingClient.redirectsEnabled = true

	for _, opt := range opts {
		opt(e)
	}
	if e.progress == nil {
		e.progress = newProgressReporter(e.logger, 2000)
	}
	return e, nil
}

func defaultThreadLimit() int {
	n := runtime.NumCPU()
	if n < 1 {
		return 1
	}
	return n
}

// --- Control API: tunables ---------------------------------------------

// ThreadLimit returns the configured fetch concurrency W.
func (e *Engine) ThreadLimit() int { return int(e.threadLimit.Load()) }

// SetThreadLimit sets W (n >= 1 else rejected); triggers a reset if the
// engine is currently running (§4.7).
func (e *Engine) SetThreadLimit(n int) error {
	if n < 1 {
		return &ConfigError{Field: "threadLimit", Msg: "must be >= 1"}
	}
	e.threadLimit.Store(int64(n))
	if e.State() == StateRunning {
		return e.Reset()
	}
	return nil
}

// MaxProcessWaiting returns the backpressure threshold.
func (e *Engine) MaxProcessWaiting() int { return int(e.maxProcessWaiting.Load()) }

// SetMaxProcessWaiting sets the backpressure threshold (n >= 1).
func (e *Engine) SetMaxProcessWaiting(n int) error {
	if n < 1 {
		return &ConfigError{Field: "maxProcessWaiting", Msg: "must be >= 1"}
	}
	e.maxProcessWaiting.Store(int64(n))
	return nil
}

// SetShortCircuitAfter sets the dispatch bound; 0 disables it.
func (e *Engine) SetShortCircuitAfter(n int) error {
	if n < 0 {
		return &ConfigError{Field: "shortCircuitAfter", Msg: "must be >= 0"}
	}
	e.shortCircuitAfter.Store(int64(n))
	return nil
}

// SetIncludePath seeds the frontier with the given URLs, filtering out any
// that are already excluded or already scheduled (§6).
func (e *Engine) SetIncludePath(urls []string) {
	e.seedFrontier(urls)
}

// SetBlocked replaces the blocked-pattern list.
func (e *Engine) SetBlocked(patterns []string) {
	e.scope.SetBlocked(patterns)
}

// AllowedSuffixes returns the live, mutable suffix list.
func (e *Engine) AllowedSuffixes() []string { return e.scope.AllowedSuffixes() }

// SetAllowedSuffixes replaces the suffix list (mutable before navigate, §6).
func (e *Engine) SetAllowedSuffixes(suffixes []string) { e.scope.SetAllowedSuffixes(suffixes) }

// DisableCrawling stops new-link discovery; in-flight work still finishes.
func (e *Engine) DisableCrawling() { e.discoverEnabled.Store(false) }

// --- Control API: client pool configuration ------------------------------

// EnableRedirects / DisableRedirects toggle the client pool's redirect
// policy, applied immediately if a pool exists and remembered for the
// next init()/hardUnpause().
func (e *Engine) EnableRedirects() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pendingClient.redirectsEnabled = true
	if e.clientPool != nil {
		e.clientPool.EnableRedirects()
	}
}

func (e *Engine) DisableRedirects() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pendingClient.redirectsEnabled = false
	if e.clientPool != nil {
		e.clientPool.DisableRedirects()
	}
}

// EnableJavaScript marks the client pool to execute page scripts. The
// coordinator itself never renders JavaScript; this is a pass-through
// configuration flag on the external client pool collaborator.
func (e *Engine) EnableJavaScript() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pendingClient.javascript = true
	if e.clientPool != nil {
		e.clientPool.EnableJavaScript()
	}
}

// AddCookie adds a cookie by name/value/domain (§6, §12).
func (e *Engine) AddCookie(name, value, domain string) {
	e.AddCookiePrepared(&http.Cookie{Name: name, Value: value, Domain: domain})
}

// AddCookiePrepared adds a pre-built cookie object (§6, §12).
func (e *Engine) AddCookiePrepared(c *http.Cookie) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pendingClient.cookies = append(e.pendingClient.cookies, c)
	if e.clientPool != nil {
		e.clientPool.AddCookiePrepared(c)
	}
}

// ClearCookies clears pending and pool-held cookies, returning whether a
// pool existed to clear (§12).
func (e *Engine) ClearCookies() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pendingClient.cookies = nil
	if e.clientPool == nil {
		return false
	}
	return e.clientPool.ClearCookies()
}

// SetClientPoolName labels the client pool for diagnostics (§12).
func (e *Engine) SetClientPoolName(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pendingClient.name = name
	if e.clientPool != nil {
		e.clientPool.SetName(name)
	}
}

func (e *Engine) applyPendingClientConfig(pool crawl.ClientPool) {
	if e.pendingClient.name != "" {
		pool.SetName(e.pendingClient.name)
	}
	if e.pendingClient.redirectsEnabled {
		pool.EnableRedirects()
	} else {
		pool.DisableRedirects()
	}
	if e.pendingClient.javascript {
		pool.EnableJavaScript()
	}
	for _, c := range e.pendingClient.cookies {
		pool.AddCookiePrepared(c)
	}
}

// --- Lifecycle ------------------------------------------------------------

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

func parseWorkerCount(w int) int {
	return int(math.Ceil(float64(w) * downloadVsProcessRatio))
}

// init recreates the client pool, the fetch/parse stages, and starts both
// completion consumers. It is called by Navigate and by hardUnpause.
func (e *Engine) init(ctx context.Context) error {
	consumerCtx, cancel := context.WithCancel(ctx)
	e.consumerCtx = consumerCtx
	e.consumerCancel = cancel

	w := e.ThreadLimit()
	pool, err := e.clientPoolFactory(w)
	if err != nil {
		cancel()
		return err
	}
	e.applyPendingClientConfig(pool)
	e.clientPool = pool

	fs, err := newFetchStage(consumerCtx, e.fetcher, e.clientPool, e.counters, w, w*4)
	if err != nil {
		cancel()
		return err
	}
	p := parseWorkerCount(w)
	ps, err := newParseStage(consumerCtx, e.counters, e.logger, p, p*4)
	if err != nil {
		cancel()
		return err
	}
	e.fetchStage = fs
	e.parseStage = ps

	e.consumerWG.Add(2)
	go e.runFetchCompletionConsumer()
	go e.runParseCompletionConsumer()

	e.logger.Info("crawler pools initialised",
		"component", "lifecycle",
		"thread_limit", w,
		"parse_workers", p,
		"client_pool", e.pendingClient.name,
	)
	return nil
}

// seedFrontier enqueues the given URLs, filtering out anything already
// excluded or already scheduled (§4.4, §6 setIncludePath).
func (e *Engine) seedFrontier(urls []string) {
	for _, raw := range urls {
		url := e.scope.PrependBaseURLIfNeeded(raw)
		if e.scope.IsExcluded(url, e.visited) {
			continue
		}
		if e.scheduled.Contains(url) {
			continue
		}
		e.scheduled.Add(url)
		e.frontier.Put(url)
	}
}

// Navigate seeds the frontier with baseUrl if empty, starts both
// completion consumers, runs the coordinator to quiescence, drains, and
// shuts down (§4.7). It blocks until the crawl completes or ctx is
// cancelled.
func (e *Engine) Navigate(ctx context.Context) error {
	if e.State() == StateRunning {
		return &ConfigError{Field: "state", Msg: "navigate called while already running"}
	}
	e.stopFlag.Store(false)
	e.runID = uuid.NewString()
	e.logger = e.logger.With("run_id", e.runID)

	if err := e.init(ctx); err != nil {
		return err
	}
	e.setState(StateRunning)
	e.logger.Info("navigate started", "base_url", e.scope.BaseURL())

	if e.frontier.Empty() {
		e.seedFrontier([]string{e.scope.BaseURL()})
	}

	e.runProducerLoop(ctx)

	e.setState(StateDraining)
	e.drainToQuiescence(ctx)
	return e.Shutdown()
}

// shouldContinueCrawling implements §4.5 step 1.
func (e *Engine) shouldContinueCrawling() bool {
	if e.frontier.Empty() && e.counters.quiescent() {
		return false
	}
	if !e.discoverEnabled.Load() {
		return false
	}
	if sc := e.shortCircuitAfter.Load(); sc > 0 {
		_, _, visitedCounter, _ := e.counters.snapshot()
		if visitedCounter > sc {
			return false
		}
	}
	return true
}

// shouldPauseCrawling implements §4.5 step 3.
func (e *Engine) shouldPauseCrawling() bool {
	linksScheduled, _, _, _ := e.counters.snapshot()
	return linksScheduled > e.maxProcessWaiting.Load() || e.forcePause.Load()
}

// runProducerLoop is the coordinator (§4.5). It runs on the goroutine that
// called Navigate.
func (e *Engine) runProducerLoop(ctx context.Context) {
	for {
		if e.stopFlag.Load() || ctx.Err() != nil {
			return
		}
		if !e.shouldContinueCrawling() {
			return
		}
		e.progress.maybeLog(e)

		if e.shouldPauseCrawling() {
			e.interruptibleSleep(ctx, pollInterval)
			continue
		}

		url, ok := e.frontier.Poll(pollInterval)
		if !ok {
			continue
		}
		e.scheduled.Remove(url)

		url = e.scope.PrependBaseURLIfNeeded(url)
		if e.scope.IsExcluded(url, e.visited) {
			continue
		}

		if err := e.fetchStage.submit(url); err != nil {
			e.logger.Error("fetch submit failed", "url", url, "err", err)
			continue
		}
		e.visited.AddBoth(url)
		e.counters.visitedCounter.Add(1)
	}
}

func (e *Engine) interruptibleSleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// drainToQuiescence waits for both scheduled counters to reach zero,
// polling every 5 seconds and honoring the stop flag and ctx. URLs still
// in the frontier are left there.
func (e *Engine) drainToQuiescence(ctx context.Context) {
	for !e.stopFlag.Load() && ctx.Err() == nil {
		if e.counters.quiescent() {
			return
		}
		time.Sleep(pollInterval)
	}
}

// runFetchCompletionConsumer implements §4.3.
func (e *Engine) runFetchCompletionConsumer() {
	defer e.consumerWG.Done()
	for {
		if e.stopFlag.Load() {
			return
		}
		result, ok := e.fetchStage.pollCompleted(pollInterval)
		if !ok {
			continue
		}

		e.counters.actuallyVisited.Add(1)
		if result.err != nil {
			e.logger.Warn("fetch failed", "url", result.url, "err", result.err)
		}

		outcome := crawl.Outcome{URL: result.url, Doc: result.doc, Err: result.err}
		input := parseJobInput{
			outcome:       outcome,
			actions:       e.actions,
			extractor:     e.extractor,
			baseURL:       e.scope.baseURL,
			baseURLSecure: e.scope.baseURLSecure,
		}
		if err := e.parseStage.submit(input); err != nil {
			e.logger.Error("parse submit failed", "url", result.url, "err", err)
		}

		e.counters.linksScheduled.Add(-1)
	}
}

// runParseCompletionConsumer implements §4.4.
func (e *Engine) runParseCompletionConsumer() {
	defer e.consumerWG.Done()
	for {
		if e.stopFlag.Load() {
			return
		}
		result, ok := e.parseStage.pollCompleted(pollInterval)
		if !ok {
			continue
		}

		if e.discoverEnabled.Load() {
			for _, discovered := range result.links {
				url := e.scope.PrependBaseURLIfNeeded(discovered)
				if e.scope.IsExcluded(url, e.visited) {
					continue
				}
				if e.scheduled.Contains(url) {
					continue
				}
				e.scheduled.Add(url)
				e.frontier.Put(url)
			}
		}

		e.counters.pagesScheduled.Add(-1)
	}
}

// --- Lifecycle controller: pause/hardPause/shutdown/reset -----------------

// Pause sets forcePause; the coordinator stops dispatching but both
// completion consumers keep running (§4.7).
func (e *Engine) Pause() { e.forcePause.Store(true) }

// Unpause clears forcePause.
func (e *Engine) Unpause() { e.forcePause.Store(false) }

// HardPause pauses, drains both completion consumers to zero, then shuts
// down the pools. Visited/frontier/blocked state is retained (§4.7).
func (e *Engine) HardPause() {
	e.Pause()
	e.drainToQuiescence(context.Background())
	e.closePools()
}

// HardUnpause recreates pools and consumers, clears the stop flag, and
// unpauses (§4.7).
func (e *Engine) HardUnpause() error {
	e.stopFlag.Store(false)
	if err := e.init(context.Background()); err != nil {
		return err
	}
	e.Unpause()
	return nil
}

// Reset is hardPause() then hardUnpause() (§4.7); triggered automatically
// by SetThreadLimit while running.
func (e *Engine) Reset() error {
	e.HardPause()
	return e.HardUnpause()
}

// closePools terminates both worker pools (each with a 2-minute grace),
// cancels the consumer goroutines, and closes the client pool (§4.7,
// §5's 2-minute pool-termination await).
func (e *Engine) closePools() {
	e.mu.Lock()
	fs, ps, pool, cancel := e.fetchStage, e.parseStage, e.clientPool, e.consumerCancel
	e.mu.Unlock()

	var g errgroup.Group
	if fs != nil {
		g.Go(func() error { e.closeWithGrace("fetch", fs.close); return nil })
	}
	if ps != nil {
		g.Go(func() error { e.closeWithGrace("parse", ps.close); return nil })
	}
	_ = g.Wait()

	if cancel != nil {
		cancel()
	}
	waitWithTimeout(&e.consumerWG, shutdownGrace)

	if pool != nil {
		if err := pool.Close(); err != nil {
			e.logger.Error("client pool close failed", "err", err)
		}
	}
}

func (e *Engine) closeWithGrace(name string, closeFn func()) {
	done := make(chan struct{})
	go func() {
		closeFn()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownGrace):
		e.logger.Error((&ShutdownTimeout{Pool: name, Wait: shutdownGrace.String()}).Error())
		<-done
	}
}

func waitWithTimeout(wg *sync.WaitGroup, timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
	}
}

// Shutdown sets the stop flag, terminates both pools with a 2-minute
// per-pool grace, closes the client pool, and joins both consumer
// goroutines (§4.7).
func (e *Engine) Shutdown() error {
	e.stopFlag.Store(true)
	e.closePools()
	e.setState(StateStopped)
	return nil
}
